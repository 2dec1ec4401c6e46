package projection

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"rydin-backend/internal/faults"
	"rydin-backend/internal/models"
	"rydin-backend/internal/realtime"
)

// fakeSource — источник данных в памяти с управляемыми сбоями выборки
type fakeSource struct {
	mu sync.Mutex

	rides    map[uint]models.Ride
	members  map[uint]models.RideMember
	profiles map[uint]models.User

	// Очередь ошибок для FetchRides: каждая выборка снимает одну
	ridesErrs []error

	fetchRidesCalls    int
	fetchProfilesCalls int
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		rides:    make(map[uint]models.Ride),
		members:  make(map[uint]models.RideMember),
		profiles: make(map[uint]models.User),
	}
}

func (s *fakeSource) FetchRides(ctx context.Context, filter RideFilter) ([]models.Ride, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetchRidesCalls++

	if len(s.ridesErrs) > 0 {
		err := s.ridesErrs[0]
		s.ridesErrs = s.ridesErrs[1:]
		return nil, err
	}

	out := make([]models.Ride, 0, len(s.rides))
	for _, ride := range s.rides {
		out = append(out, ride)
	}
	return out, nil
}

func (s *fakeSource) FetchRide(ctx context.Context, id uint) (*models.Ride, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ride, ok := s.rides[id]
	if !ok {
		return nil, errors.New("поездка не найдена")
	}
	return &ride, nil
}

func (s *fakeSource) FetchMembers(ctx context.Context, rideID uint) ([]models.RideMember, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.RideMember, 0, len(s.members))
	for _, member := range s.members {
		if member.RideID == rideID {
			out = append(out, member)
		}
	}
	return out, nil
}

func (s *fakeSource) FetchMember(ctx context.Context, id uint) (*models.RideMember, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	member, ok := s.members[id]
	if !ok {
		return nil, errors.New("участник не найден")
	}
	return &member, nil
}

func (s *fakeSource) FetchProfiles(ctx context.Context, ids []uint) (map[uint]models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetchProfilesCalls++
	result := make(map[uint]models.User, len(ids))
	for _, id := range ids {
		if user, ok := s.profiles[id]; ok {
			result[id] = user
		}
	}
	return result, nil
}

func (s *fakeSource) addRide(ride models.Ride) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rides[ride.ID] = ride
}

func netFailure() error {
	return &net.OpError{Op: "dial", Err: errors.New("connection refused")}
}

func TestRideListWithoutSessionStaysPending(t *testing.T) {
	source := newFakeSource()
	hub := realtime.NewHub(nil)

	list := NewRideList(source, hub, RideFilter{}, 0)
	fault := list.Start(context.Background())

	require.NotNil(t, fault)
	require.Equal(t, faults.KindBusiness, fault.Kind)

	// Без сессии обращений к хранилищу нет, состояние отличимо от пустого списка
	state, _ := list.State()
	require.Equal(t, StatePending, state)
	require.Zero(t, source.fetchRidesCalls)
	require.Empty(t, list.Snapshot())
}

func TestRideListFetchEnrichesHosts(t *testing.T) {
	source := newFakeSource()
	source.profiles[7] = models.User{ID: 7, Name: "Аружан", Department: "ФИТ", TrustScore: 4.5}
	source.addRide(models.Ride{ID: 1, HostID: 7, SeatsTotal: 4, SeatsTaken: 1, Status: models.RideStatusOpen})
	hub := realtime.NewHub(nil)

	list := NewRideList(source, hub, RideFilter{}, 42)
	require.Nil(t, list.Start(context.Background()))
	defer list.Close()

	state, fault := list.State()
	require.Equal(t, StateReady, state)
	require.Nil(t, fault)

	rides := list.Snapshot()
	require.Len(t, rides, 1)
	require.Equal(t, "Аружан", rides[0].HostName)
	require.Equal(t, 4.5, rides[0].HostTrustScore)

	// Профили загружаются одним пакетным запросом
	require.Equal(t, 1, source.fetchProfilesCalls)
}

func TestRideListRetriesNetworkFaults(t *testing.T) {
	source := newFakeSource()
	source.ridesErrs = []error{netFailure(), netFailure()}
	source.addRide(models.Ride{ID: 1, HostID: 7, Status: models.RideStatusOpen})
	hub := realtime.NewHub(nil)

	list := NewRideList(source, hub, RideFilter{}, 42)

	var slept []time.Duration
	list.sleep = func(d time.Duration) { slept = append(slept, d) }

	require.Nil(t, list.Start(context.Background()))
	defer list.Close()

	// Два сетевых сбоя, третья попытка успешна; задержка линейная
	require.Equal(t, 3, source.fetchRidesCalls)
	require.Equal(t, []time.Duration{time.Second, 2 * time.Second}, slept)

	state, _ := list.State()
	require.Equal(t, StateReady, state)
	require.Len(t, list.Snapshot(), 1)
}

func TestRideListTerminalAfterThreeNetworkFaults(t *testing.T) {
	source := newFakeSource()
	source.ridesErrs = []error{netFailure(), netFailure(), netFailure()}
	hub := realtime.NewHub(nil)

	list := NewRideList(source, hub, RideFilter{}, 42)

	var slept []time.Duration
	list.sleep = func(d time.Duration) { slept = append(slept, d) }

	fault := list.Start(context.Background())
	require.NotNil(t, fault)
	require.Equal(t, faults.KindNetwork, fault.Kind)

	// Три попытки и не больше; после последней задержки нет
	require.Equal(t, 3, source.fetchRidesCalls)
	require.Equal(t, []time.Duration{time.Second, 2 * time.Second}, slept)

	state, lastFault := list.State()
	require.Equal(t, StateFailed, state)
	require.Equal(t, faults.KindNetwork, lastFault.Kind)
}

func TestRideListSchemaFaultIsNotRetried(t *testing.T) {
	source := newFakeSource()
	source.ridesErrs = []error{&pq.Error{Code: "42P01"}}
	hub := realtime.NewHub(nil)

	list := NewRideList(source, hub, RideFilter{}, 42)

	var slept []time.Duration
	list.sleep = func(d time.Duration) { slept = append(slept, d) }

	fault := list.Start(context.Background())
	require.NotNil(t, fault)
	require.Equal(t, faults.KindSchema, fault.Kind)

	// Ошибка схемы терминальна с первой попытки
	require.Equal(t, 1, source.fetchRidesCalls)
	require.Empty(t, slept)
}

func TestRideListInsertIsIdempotent(t *testing.T) {
	source := newFakeSource()
	source.profiles[7] = models.User{ID: 7, Name: "Аружан"}
	source.addRide(models.Ride{ID: 1, HostID: 7, Status: models.RideStatusOpen})
	hub := realtime.NewHub(nil)

	list := NewRideList(source, hub, RideFilter{}, 42)
	require.Nil(t, list.Start(context.Background()))
	defer list.Close()

	source.addRide(models.Ride{ID: 2, HostID: 7, Status: models.RideStatusOpen})

	event := realtime.ChangeEvent{
		EventType: realtime.EventInsert,
		Table:     realtime.TableRides,
		New:       map[string]interface{}{"id": 2},
	}
	// Повторная доставка того же события не создает дубликата
	hub.Publish(event)
	hub.Publish(event)

	require.Eventually(t, func() bool {
		return len(list.Snapshot()) == 2
	}, time.Second, 10*time.Millisecond)

	// Новая строка встает в начало списка, загруженная целиком с профилем
	rides := list.Snapshot()
	require.Equal(t, uint(2), rides[0].ID)
	require.Equal(t, "Аружан", rides[0].HostName)
	require.Equal(t, uint(1), rides[1].ID)

	// Даем второму событию время примениться: дубликата нет
	hub.Publish(realtime.ChangeEvent{
		EventType: realtime.EventUpdate,
		Table:     realtime.TableRides,
		New:       map[string]interface{}{"id": 1, "seats_taken": 2},
	})
	require.Eventually(t, func() bool {
		rides := list.Snapshot()
		return len(rides) == 2 && rides[1].SeatsTaken == 2
	}, time.Second, 10*time.Millisecond)
}

func TestRideListUpdateMergesKnownRow(t *testing.T) {
	source := newFakeSource()
	source.profiles[7] = models.User{ID: 7, Name: "Аружан"}
	source.addRide(models.Ride{ID: 1, HostID: 7, SeatsTotal: 4, SeatsTaken: 4, Status: models.RideStatusFull})
	hub := realtime.NewHub(nil)

	list := NewRideList(source, hub, RideFilter{}, 42)
	require.Nil(t, list.Start(context.Background()))
	defer list.Close()

	hub.Publish(realtime.ChangeEvent{
		EventType: realtime.EventUpdate,
		Table:     realtime.TableRides,
		New:       map[string]interface{}{"id": 1, "status": "locked"},
	})

	require.Eventually(t, func() bool {
		rides := list.Snapshot()
		return len(rides) == 1 && rides[0].Status == models.RideStatusLocked
	}, time.Second, 10*time.Millisecond)

	// Нетронутые поля сохраняются при слиянии
	rides := list.Snapshot()
	require.Equal(t, 4, rides[0].SeatsTaken)
	require.Equal(t, "Аружан", rides[0].HostName)
}

func TestRideListUpdateUnknownRowIgnored(t *testing.T) {
	source := newFakeSource()
	source.addRide(models.Ride{ID: 1, HostID: 7, Status: models.RideStatusOpen})
	hub := realtime.NewHub(nil)

	list := NewRideList(source, hub, RideFilter{}, 42)
	require.Nil(t, list.Start(context.Background()))
	defer list.Close()

	hub.Publish(realtime.ChangeEvent{
		EventType: realtime.EventUpdate,
		Table:     realtime.TableRides,
		New:       map[string]interface{}{"id": 99, "status": "locked"},
	})
	// Следом валидное обновление: очередь событий не нарушена
	hub.Publish(realtime.ChangeEvent{
		EventType: realtime.EventUpdate,
		Table:     realtime.TableRides,
		New:       map[string]interface{}{"id": 1, "seats_taken": 3},
	})

	require.Eventually(t, func() bool {
		rides := list.Snapshot()
		return len(rides) == 1 && rides[0].SeatsTaken == 3
	}, time.Second, 10*time.Millisecond)
}

func TestMemberListDeleteRemovesRow(t *testing.T) {
	source := newFakeSource()
	source.profiles[5] = models.User{ID: 5, Name: "Данияр"}
	source.members[10] = models.RideMember{ID: 10, RideID: 3, UserID: 5}
	hub := realtime.NewHub(nil)

	list := NewMemberList(source, hub, 3, 42)
	require.Nil(t, list.Start(context.Background()))
	defer list.Close()
	require.Len(t, list.Snapshot(), 1)

	// Удаление отсутствующей строки — не ошибка
	hub.Publish(realtime.ChangeEvent{
		EventType: realtime.EventDelete,
		Table:     realtime.TableRideMembers,
		RideID:    3,
		Old:       map[string]interface{}{"id": 99},
	})
	hub.Publish(realtime.ChangeEvent{
		EventType: realtime.EventDelete,
		Table:     realtime.TableRideMembers,
		RideID:    3,
		Old:       map[string]interface{}{"id": 10},
	})

	require.Eventually(t, func() bool {
		return len(list.Snapshot()) == 0
	}, time.Second, 10*time.Millisecond)
}

func TestMemberListIgnoresOtherRides(t *testing.T) {
	source := newFakeSource()
	source.profiles[5] = models.User{ID: 5, Name: "Данияр"}
	source.members[10] = models.RideMember{ID: 10, RideID: 3, UserID: 5}
	source.members[11] = models.RideMember{ID: 11, RideID: 4, UserID: 5}
	hub := realtime.NewHub(nil)

	list := NewMemberList(source, hub, 3, 42)
	require.Nil(t, list.Start(context.Background()))
	defer list.Close()

	// Подписка отфильтрована по поездке: чужое событие не доходит
	hub.Publish(realtime.ChangeEvent{
		EventType: realtime.EventInsert,
		Table:     realtime.TableRideMembers,
		RideID:    4,
		New:       map[string]interface{}{"id": 11},
	})
	hub.Publish(realtime.ChangeEvent{
		EventType: realtime.EventUpdate,
		Table:     realtime.TableRideMembers,
		RideID:    3,
		New:       map[string]interface{}{"id": 10, "payment_status": "paid"},
	})

	require.Eventually(t, func() bool {
		members := list.Snapshot()
		return len(members) == 1 && members[0].PaymentStatus == models.PaymentStatusPaid
	}, time.Second, 10*time.Millisecond)
}

func TestLiveListCloseStopsDelivery(t *testing.T) {
	source := newFakeSource()
	source.addRide(models.Ride{ID: 1, HostID: 7, Status: models.RideStatusOpen})
	hub := realtime.NewHub(nil)

	list := NewRideList(source, hub, RideFilter{}, 42)
	require.Nil(t, list.Start(context.Background()))

	list.Close()
	// Повторное закрытие безопасно
	list.Close()

	// После закрытия подписки событие не применяется
	source.addRide(models.Ride{ID: 2, HostID: 7, Status: models.RideStatusOpen})
	hub.Publish(realtime.ChangeEvent{
		EventType: realtime.EventInsert,
		Table:     realtime.TableRides,
		New:       map[string]interface{}{"id": 2},
	})

	time.Sleep(50 * time.Millisecond)
	require.Len(t, list.Snapshot(), 1)
}
