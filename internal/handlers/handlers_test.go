package handlers

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"rydin-backend/internal/faults"
)

func TestAllowedEmailDomain(t *testing.T) {
	t.Setenv("ALLOWED_EMAIL_DOMAINS", "univ.edu, campus.kz")

	require.True(t, allowedEmailDomain("student@univ.edu"))
	require.True(t, allowedEmailDomain("student@UNIV.EDU"))
	require.True(t, allowedEmailDomain("student@campus.kz"))
	require.False(t, allowedEmailDomain("student@gmail.com"))
	require.False(t, allowedEmailDomain("без-собаки"))
}

func TestAllowedEmailDomainUnconfigured(t *testing.T) {
	// Без конфигурации ограничения домена нет
	t.Setenv("ALLOWED_EMAIL_DOMAINS", "")
	require.True(t, allowedEmailDomain("anyone@gmail.com"))
}

func TestStatusForFault(t *testing.T) {
	cases := []struct {
		kind faults.Kind
		want int
	}{
		{faults.KindBusiness, http.StatusBadRequest},
		{faults.KindNetwork, http.StatusServiceUnavailable},
		{faults.KindTimeout, http.StatusGatewayTimeout},
		{faults.KindSchema, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, statusForFault(tc.kind), "класс %s", tc.kind)
	}
}

func TestParseID(t *testing.T) {
	require.Equal(t, uint(42), parseID("42"))
	require.Zero(t, parseID("abc"))
	require.Zero(t, parseID("-1"))
	require.Zero(t, parseID(""))
}
