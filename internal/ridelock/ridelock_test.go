package ridelock

import (
	"testing"

	"github.com/stretchr/testify/require"

	"rydin-backend/internal/faults"
	"rydin-backend/internal/models"
)

func TestDeriveStatusFromSeats(t *testing.T) {
	// Статус выводится только из занятости мест
	require.Equal(t, models.RideStatusOpen, DeriveStatus(4, 0, models.RideStatusOpen))
	require.Equal(t, models.RideStatusOpen, DeriveStatus(4, 3, models.RideStatusOpen))
	require.Equal(t, models.RideStatusFull, DeriveStatus(4, 4, models.RideStatusOpen))

	// Освобождение места возвращает поездку в open
	require.Equal(t, models.RideStatusOpen, DeriveStatus(4, 3, models.RideStatusFull))
}

func TestDeriveStatusStickyStatuses(t *testing.T) {
	// Зафиксированные и терминальные статусы не пересчитываются из мест
	sticky := []models.RideStatus{
		models.RideStatusLocked,
		models.RideStatusCompleted,
		models.RideStatusCancelled,
	}
	for _, status := range sticky {
		require.Equal(t, status, DeriveStatus(4, 0, status), "статус %s", status)
		require.Equal(t, status, DeriveStatus(4, 4, status), "статус %s", status)
		require.True(t, IsSticky(status), "статус %s", status)
	}

	require.False(t, IsSticky(models.RideStatusOpen))
	require.False(t, IsSticky(models.RideStatusFull))
}

func TestDeriveStatusOverbooked(t *testing.T) {
	// Занято больше, чем есть мест: статус full, не паника
	require.Equal(t, models.RideStatusFull, DeriveStatus(4, 5, models.RideStatusOpen))
}

func TestCanLock(t *testing.T) {
	cases := []struct {
		name       string
		status     models.RideStatus
		seatsTaken int
		want       bool
	}{
		{"открытая поездка с участниками", models.RideStatusOpen, 2, true},
		{"заполненная поездка", models.RideStatusFull, 4, true},
		{"открытая поездка без участников", models.RideStatusOpen, 0, false},
		{"уже зафиксирована", models.RideStatusLocked, 3, false},
		{"завершена", models.RideStatusCompleted, 3, false},
		{"отменена", models.RideStatusCancelled, 3, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, CanLock(tc.status, tc.seatsTaken))
		})
	}
}

func TestResultShape(t *testing.T) {
	// Отказ и успех приходят в единой структурированной форме
	ride := &models.Ride{SeatsTotal: 4}

	ok := success(ride)
	require.True(t, ok.Success)
	require.Empty(t, ok.Message)
	require.Equal(t, ride, ok.Ride)

	fail := failure(faults.Business("Поездка не найдена"))
	require.False(t, fail.Success)
	require.Equal(t, "Поездка не найдена", fail.Message)
	require.Equal(t, faults.KindBusiness, fail.Kind)
	require.Nil(t, fail.Ride)
}
