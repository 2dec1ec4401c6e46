package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"rydin-backend/internal/middleware"
)

// Типы событий изменения строк
const (
	EventInsert = "INSERT"
	EventUpdate = "UPDATE"
	EventDelete = "DELETE"
)

// Имена таблиц, по которым рассылаются события
const (
	TableRides         = "rides"
	TableRideMembers   = "ride_members"
	TableProfiles      = "profiles"
	TableMessages      = "messages"
	TableVerifications = "verification_documents"
)

// Канал Redis для обмена событиями между экземплярами сервиса
const redisEventChannel = "realtime:events"

// ChangeEvent представляет событие изменения строки таблицы
type ChangeEvent struct {
	EventType string      `json:"eventType"`
	Table     string      `json:"table"`
	RideID    uint        `json:"ride_id,omitempty"`
	New       interface{} `json:"new,omitempty"`
	Old       interface{} `json:"old,omitempty"`

	// Origin содержит идентификатор экземпляра, опубликовавшего событие
	// в Redis; локальные события поле не заполняют
	Origin string `json:"origin,omitempty"`
}

// Subscription представляет внутрипроцессную подписку на события таблицы
type Subscription struct {
	Events chan ChangeEvent

	hub    *Hub
	table  string
	rideID uint
	once   sync.Once
}

// Close освобождает подписку; обязателен при завершении потребителя,
// иначе канал продолжит копить события
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.unsubscribe(s)
	})
}

func (s *Subscription) matches(event ChangeEvent) bool {
	if s.table != event.Table {
		return false
	}
	// rideID == 0 означает подписку на всю таблицу
	if s.rideID != 0 && event.RideID != s.rideID {
		return false
	}
	return true
}

// wsClient представляет клиентское соединение WebSocket
type wsClient struct {
	conn     *websocket.Conn
	userID   uint
	clientID string
	writeMu  sync.Mutex

	// Подписки клиента: таблица -> фильтр по поездке (0 = вся таблица)
	mu     sync.Mutex
	tables map[string]uint
}

func (c *wsClient) matches(event ChangeEvent) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	rideID, ok := c.tables[event.Table]
	if !ok {
		return false
	}
	if rideID != 0 && event.RideID != rideID {
		return false
	}
	return true
}

func (c *wsClient) send(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Hub управляет всеми подписками на события изменений: внутрипроцессными
// и клиентскими WebSocket соединениями. Экземпляр передается явно,
// глобального менеджера нет.
type Hub struct {
	// id идентифицирует экземпляр сервиса в канале Redis: pub/sub доставляет
	// сообщение и отправителю, собственные события отбрасываются по id
	id string

	mu          sync.RWMutex
	clients     map[*wsClient]bool
	subscribers map[*Subscription]bool

	// Redis используется для ретрансляции событий между экземплярами сервиса;
	// при nil шина работает только внутри процесса
	redisClient *redis.Client
}

// NewHub создает новый хаб событий. redisClient может быть nil.
func NewHub(redisClient *redis.Client) *Hub {
	return &Hub{
		id:          uuid.NewString(),
		clients:     make(map[*wsClient]bool),
		subscribers: make(map[*Subscription]bool),
		redisClient: redisClient,
	}
}

// Start запускает ретрансляцию событий из Redis, если Redis доступен
func (h *Hub) Start(ctx context.Context) {
	if h.redisClient == nil {
		log.Printf("Хаб событий запущен без Redis, рассылка только внутри процесса")
		return
	}

	go h.relayFromRedis(ctx)
	log.Printf("Хаб событий запущен с ретрансляцией через Redis")
}

// Subscribe открывает внутрипроцессную подписку на события таблицы.
// rideID = 0 подписывает на всю таблицу.
func (h *Hub) Subscribe(table string, rideID uint) *Subscription {
	sub := &Subscription{
		Events: make(chan ChangeEvent, 64),
		hub:    h,
		table:  table,
		rideID: rideID,
	}

	h.mu.Lock()
	h.subscribers[sub] = true
	h.mu.Unlock()

	return sub
}

func (h *Hub) unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subscribers[sub]; !ok {
		return
	}
	delete(h.subscribers, sub)
	// Канал закрывается под блокировкой хаба: deliver отправляет события,
	// удерживая блокировку чтения, поэтому отправка в закрытый канал исключена
	close(sub.Events)
}

// Publish рассылает событие всем подходящим подписчикам и клиентам,
// а также ретранслирует его другим экземплярам через Redis
func (h *Hub) Publish(event ChangeEvent) {
	h.deliver(event)

	middleware.RealtimeEventsTotal.WithLabelValues(event.Table, event.EventType).Inc()

	if h.redisClient != nil {
		event.Origin = h.id
		data, err := json.Marshal(event)
		if err != nil {
			log.Printf("Ошибка при кодировании события для Redis: %v", err)
			return
		}
		if err := h.redisClient.Publish(context.Background(), redisEventChannel, data).Err(); err != nil {
			log.Printf("Ошибка при публикации события в Redis: %v", err)
		}
	}
}

// deliver доставляет событие локальным подписчикам без ретрансляции
func (h *Hub) deliver(event ChangeEvent) {
	data, err := json.Marshal(wsEnvelope{Type: "CHANGE_EVENT", Payload: event})
	if err != nil {
		log.Printf("Ошибка при кодировании события: %v", err)
		return
	}

	// Отправка подписчикам выполняется под блокировкой чтения: unsubscribe
	// закрывает канал под блокировкой записи, поэтому канал гарантированно
	// открыт на момент отправки. Отправка неблокирующая, блокировка хаба
	// не удерживается дольше select.
	h.mu.RLock()
	for sub := range h.subscribers {
		if !sub.matches(event) {
			continue
		}
		select {
		case sub.Events <- event:
		default:
			// Подписчик не успевает читать, событие пропускается:
			// проекция выравняется последующими событиями по той же строке
			log.Printf("Переполнен канал подписки на %s, событие пропущено", event.Table)
		}
	}
	clients := make([]*wsClient, 0, len(h.clients))
	for client := range h.clients {
		if client.matches(event) {
			clients = append(clients, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range clients {
		go func(c *wsClient) {
			if err := c.send(data); err != nil {
				log.Printf("Ошибка при отправке события клиенту %s: %v", c.clientID, err)
				h.removeClient(c)
			}
		}(client)
	}
}

// relayFromRedis читает события других экземпляров и доставляет их локально
func (h *Hub) relayFromRedis(ctx context.Context) {
	pubsub := h.redisClient.Subscribe(ctx, redisEventChannel)
	defer pubsub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-pubsub.Channel():
			if !ok {
				return
			}
			var event ChangeEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				log.Printf("Ошибка при разборе события из Redis: %v", err)
				continue
			}
			h.relay(event)
		}
	}
}

// relay доставляет событие другого экземпляра локальным подписчикам.
// Собственные события, вернувшиеся из Redis, уже доставлены в Publish
// и пропускаются, иначе каждый подписчик получил бы их дважды.
func (h *Hub) relay(event ChangeEvent) {
	if event.Origin == h.id {
		return
	}
	h.deliver(event)
}

func (h *Hub) addClient(client *wsClient) {
	h.mu.Lock()
	h.clients[client] = true
	h.mu.Unlock()
	middleware.WSConnections.Inc()
	log.Printf("Регистрация нового клиента: ID=%s, userID=%v", client.clientID, client.userID)
}

func (h *Hub) removeClient(client *wsClient) {
	h.mu.Lock()
	_, exists := h.clients[client]
	if exists {
		delete(h.clients, client)
		client.conn.Close()
	}
	h.mu.Unlock()

	if exists {
		middleware.WSConnections.Dec()
		log.Printf("Клиент %s отключен", client.clientID)
	}
}

// ClientCount возвращает число подключенных WebSocket клиентов
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
