package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDepartureAt(t *testing.T) {
	ride := Ride{
		RideDate: time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
		RideTime: "14:30",
	}

	departure := ride.DepartureAt()
	require.Equal(t, time.Date(2026, 9, 1, 14, 30, 0, 0, time.UTC), departure)
}

func TestDepartureAtInvalidTime(t *testing.T) {
	// Некорректное время трактуется как начало дня
	ride := Ride{
		RideDate: time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
		RideTime: "скоро",
	}

	departure := ride.DepartureAt()
	require.Equal(t, time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC), departure)
}
