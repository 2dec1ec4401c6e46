package realtime

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func receiveEvent(t *testing.T, sub *Subscription) ChangeEvent {
	t.Helper()
	select {
	case event := <-sub.Events:
		return event
	case <-time.After(time.Second):
		t.Fatal("событие не доставлено")
		return ChangeEvent{}
	}
}

func TestHubDeliversToMatchingSubscriber(t *testing.T) {
	hub := NewHub(nil)

	sub := hub.Subscribe(TableRides, 0)
	defer sub.Close()

	hub.Publish(ChangeEvent{
		EventType: EventInsert,
		Table:     TableRides,
		RideID:    1,
		New:       map[string]interface{}{"id": 1},
	})

	event := receiveEvent(t, sub)
	require.Equal(t, EventInsert, event.EventType)
	require.Equal(t, TableRides, event.Table)
}

func TestHubFiltersByTable(t *testing.T) {
	hub := NewHub(nil)

	ridesSub := hub.Subscribe(TableRides, 0)
	defer ridesSub.Close()
	messagesSub := hub.Subscribe(TableMessages, 0)
	defer messagesSub.Close()

	hub.Publish(ChangeEvent{EventType: EventInsert, Table: TableMessages, RideID: 1})

	event := receiveEvent(t, messagesSub)
	require.Equal(t, TableMessages, event.Table)

	select {
	case <-ridesSub.Events:
		t.Fatal("событие чужой таблицы не должно доставляться")
	default:
	}
}

func TestHubFiltersByRide(t *testing.T) {
	hub := NewHub(nil)

	// rideID == 0 подписывает на всю таблицу
	allSub := hub.Subscribe(TableRideMembers, 0)
	defer allSub.Close()
	rideSub := hub.Subscribe(TableRideMembers, 3)
	defer rideSub.Close()

	hub.Publish(ChangeEvent{EventType: EventInsert, Table: TableRideMembers, RideID: 4})
	hub.Publish(ChangeEvent{EventType: EventInsert, Table: TableRideMembers, RideID: 3})

	// Фильтрованная подписка получает только свою поездку
	event := receiveEvent(t, rideSub)
	require.Equal(t, uint(3), event.RideID)
	select {
	case extra := <-rideSub.Events:
		t.Fatalf("лишнее событие по поездке %d", extra.RideID)
	default:
	}

	// Подписка на всю таблицу получает оба события
	first := receiveEvent(t, allSub)
	second := receiveEvent(t, allSub)
	require.ElementsMatch(t, []uint{3, 4}, []uint{first.RideID, second.RideID})
}

func TestSubscriptionCloseIsIdempotent(t *testing.T) {
	hub := NewHub(nil)

	sub := hub.Subscribe(TableRides, 0)
	sub.Close()
	// Повторное закрытие не паникует на закрытом канале
	sub.Close()

	// После закрытия события не доставляются
	hub.Publish(ChangeEvent{EventType: EventInsert, Table: TableRides})
	_, open := <-sub.Events
	require.False(t, open)
}

func TestHubDropsEventsWhenSubscriberStalls(t *testing.T) {
	hub := NewHub(nil)

	sub := hub.Subscribe(TableRides, 0)
	defer sub.Close()

	// Канал буферизован: переполнение не блокирует публикацию
	for i := 0; i < 200; i++ {
		hub.Publish(ChangeEvent{EventType: EventUpdate, Table: TableRides, RideID: 1})
	}

	require.LessOrEqual(t, len(sub.Events), 64)
}

func TestClientCountWithoutClients(t *testing.T) {
	hub := NewHub(nil)
	require.Zero(t, hub.ClientCount())
}

func TestHubSubscriptionCloseDuringPublish(t *testing.T) {
	hub := NewHub(nil)

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				hub.Publish(ChangeEvent{EventType: EventUpdate, Table: TableRides, RideID: 1})
			}
		}
	}()

	// Подписки открываются и закрываются под непрерывной публикацией:
	// закрытие канала не должно пересекаться с отправкой события
	for i := 0; i < 300; i++ {
		sub := hub.Subscribe(TableRides, 0)
		sub.Close()
	}

	close(stop)
	wg.Wait()
}

func TestHubRelaySkipsOwnEvents(t *testing.T) {
	hub := NewHub(nil)

	sub := hub.Subscribe(TableRides, 0)
	defer sub.Close()

	// Событие с собственным Origin уже доставлено при публикации
	hub.relay(ChangeEvent{EventType: EventInsert, Table: TableRides, Origin: hub.id})

	select {
	case event := <-sub.Events:
		t.Fatalf("собственное событие доставлено повторно: %+v", event)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubRelayDeliversForeignEvents(t *testing.T) {
	hub := NewHub(nil)

	sub := hub.Subscribe(TableRides, 0)
	defer sub.Close()

	hub.relay(ChangeEvent{EventType: EventInsert, Table: TableRides, Origin: "another-instance"})

	event := receiveEvent(t, sub)
	require.Equal(t, EventInsert, event.EventType)
}
