package realtime

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

// wsEnvelope представляет формат сообщения WebSocket
type wsEnvelope struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// clientCommand представляет команду клиента: подписка, отписка, ping
type clientCommand struct {
	Type   string `json:"type"`
	Table  string `json:"table,omitempty"`
	RideID uint   `json:"ride_id,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Разрешаем подключения с любых источников
	},
}

// Handler обрабатывает подключения WebSocket и команды подписки клиента
func (h *Hub) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Проверяем, что это действительно запрос на установление WebSocket соединения
		if c.GetHeader("Upgrade") != "websocket" {
			c.String(http.StatusBadRequest, "Требуется WebSocket соединение")
			return
		}

		userID := c.GetUint("user_id")

		clientID := c.Query("client_id")
		if clientID == "" && userID > 0 {
			clientID = fmt.Sprintf("user_%d", userID)
		} else if clientID == "" {
			clientID = fmt.Sprintf("anon_%d", time.Now().UnixNano())
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Printf("Ошибка обновления соединения до WebSocket: %v", err)
			return
		}

		client := &wsClient{
			conn:     conn,
			userID:   userID,
			clientID: clientID,
			tables:   make(map[string]uint),
		}

		h.addClient(client)
		go h.readLoop(client)
	}
}

// readLoop обрабатывает команды клиента до разрыва соединения
func (h *Hub) readLoop(client *wsClient) {
	defer h.removeClient(client)

	for {
		var cmd clientCommand
		if err := client.conn.ReadJSON(&cmd); err != nil {
			log.Printf("Ошибка при чтении сообщения от клиента %s: %v", client.clientID, err)
			return
		}

		switch cmd.Type {
		case "subscribe":
			if !validTable(cmd.Table) {
				h.sendError(client, fmt.Sprintf("Неизвестная таблица: %s", cmd.Table))
				continue
			}
			client.mu.Lock()
			client.tables[cmd.Table] = cmd.RideID
			client.mu.Unlock()
			h.sendAck(client, "SUBSCRIBED", cmd.Table)

		case "unsubscribe":
			client.mu.Lock()
			delete(client.tables, cmd.Table)
			client.mu.Unlock()
			h.sendAck(client, "UNSUBSCRIBED", cmd.Table)

		case "ping":
			data, _ := json.Marshal(wsEnvelope{Type: "pong", Payload: time.Now().Unix()})
			if err := client.send(data); err != nil {
				log.Printf("Ошибка при отправке pong: %v", err)
			}

		default:
			log.Printf("Получена неизвестная команда от клиента %s: %s", client.clientID, cmd.Type)
		}
	}
}

func (h *Hub) sendAck(client *wsClient, ackType, table string) {
	data, err := json.Marshal(wsEnvelope{Type: ackType, Payload: table})
	if err != nil {
		return
	}
	if err := client.send(data); err != nil {
		log.Printf("Ошибка при отправке подтверждения клиенту %s: %v", client.clientID, err)
	}
}

func (h *Hub) sendError(client *wsClient, message string) {
	data, err := json.Marshal(wsEnvelope{Type: "ERROR", Payload: message})
	if err != nil {
		return
	}
	if err := client.send(data); err != nil {
		log.Printf("Ошибка при отправке сообщения об ошибке клиенту %s: %v", client.clientID, err)
	}
}

func validTable(table string) bool {
	switch table {
	case TableRides, TableRideMembers, TableProfiles, TableMessages, TableVerifications:
		return true
	}
	return false
}
