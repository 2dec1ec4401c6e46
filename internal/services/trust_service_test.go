package services

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestComputeTrustScore(t *testing.T) {
	cases := []struct {
		name            string
		hostedCompleted int64
		joinedCompleted int64
		hostedCancelled int64
		want            float64
	}{
		{"без истории — базовый рейтинг", 0, 0, 0, 4.0},
		{"завершенные поездки повышают", 3, 2, 0, 4.5},
		{"отмены хостом понижают", 0, 0, 2, 3.4},
		{"смешанная история", 5, 0, 1, 4.2},
		{"рейтинг не выше 5", 20, 20, 0, 5.0},
		{"рейтинг не ниже 1", 0, 0, 30, 1.0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := computeTrustScore(tc.hostedCompleted, tc.joinedCompleted, tc.hostedCancelled)
			require.InDelta(t, tc.want, got, 1e-9)
		})
	}
}
