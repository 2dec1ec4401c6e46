package ridelock

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"rydin-backend/internal/faults"
	"rydin-backend/internal/models"
	"rydin-backend/internal/realtime"
)

type fakeSink struct {
	events []realtime.ChangeEvent
}

func (s *fakeSink) Publish(event realtime.ChangeEvent) {
	s.events = append(s.events, event)
}

func newTestService(t *testing.T) (*Service, sqlmock.Sqlmock, *fakeSink) {
	t.Helper()

	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{
		Conn:                 conn,
		PreferSimpleProtocol: true,
	}), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	sink := &fakeSink{}
	return NewService(db, sink), mock, sink
}

func rideRow(hostID uint, seatsTotal, seatsTaken int, status models.RideStatus) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "host_id", "seats_total", "seats_taken",
		"estimated_fare", "girls_only", "status",
	}).AddRow(1, hostID, seatsTotal, seatsTaken, 1200.0, false, string(status))
}

func TestLockRideRejectsNonHost(t *testing.T) {
	svc, mock, sink := newTestService(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "rides"`).
		WillReturnRows(rideRow(7, 4, 2, models.RideStatusOpen))
	mock.ExpectRollback()

	res := svc.LockRideByHost(context.Background(), 1, 99)

	require.False(t, res.Success)
	require.Equal(t, faults.KindBusiness, res.Kind)
	require.Equal(t, "Только хост может зафиксировать поездку", res.Message)
	require.Empty(t, sink.events)
	// UPDATE не ожидался: любая попытка изменить строку провалила бы транзакцию
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLockRideRejectsWithoutMembers(t *testing.T) {
	svc, mock, sink := newTestService(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "rides"`).
		WillReturnRows(rideRow(7, 4, 0, models.RideStatusOpen))
	mock.ExpectRollback()

	res := svc.LockRideByHost(context.Background(), 1, 7)

	require.False(t, res.Success)
	require.Equal(t, faults.KindBusiness, res.Kind)
	require.Equal(t, "Нельзя зафиксировать поездку без участников", res.Message)
	require.Empty(t, sink.events)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLockRideRejectsMissingRide(t *testing.T) {
	svc, mock, sink := newTestService(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "rides"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	res := svc.LockRideByHost(context.Background(), 1, 7)

	require.False(t, res.Success)
	require.Equal(t, faults.KindBusiness, res.Kind)
	require.Equal(t, "Поездка не найдена", res.Message)
	require.Empty(t, sink.events)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLockRideSucceedsForHost(t *testing.T) {
	svc, mock, sink := newTestService(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "rides"`).
		WillReturnRows(rideRow(7, 4, 2, models.RideStatusOpen))
	mock.ExpectExec(`UPDATE "rides" SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	res := svc.LockRideByHost(context.Background(), 1, 7)

	require.True(t, res.Success)
	require.NotNil(t, res.Ride)
	require.Equal(t, models.RideStatusLocked, res.Ride.Status)
	require.NotNil(t, res.Ride.LockedAt)

	// Событие рассылается после фиксации транзакции
	require.Len(t, sink.events, 1)
	require.Equal(t, realtime.EventUpdate, sink.events[0].EventType)
	require.Equal(t, realtime.TableRides, sink.events[0].Table)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJoinRideRejectsWhenSeatsExhausted(t *testing.T) {
	svc, mock, sink := newTestService(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "rides"`).
		WillReturnRows(rideRow(7, 4, 4, models.RideStatusOpen))
	mock.ExpectQuery(`SELECT count\(\*\) FROM "ride_members"`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	// Условный инкремент не затронул строк: место уже занято конкурентом
	mock.ExpectExec(`UPDATE "rides" SET "seats_taken"`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	res := svc.JoinRide(context.Background(), 1, models.User{ID: 5})

	require.False(t, res.Success)
	require.Equal(t, faults.KindBusiness, res.Kind)
	require.Equal(t, "Свободных мест больше нет", res.Message)
	require.Empty(t, sink.events)
	require.NoError(t, mock.ExpectationsWereMet())
}
