package models

import (
	"time"
)

// Message представляет сообщение в чате поездки
type Message struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	RideID    uint      `json:"ride_id" gorm:"not null;index"`
	SenderID  uint      `json:"sender_id" gorm:"not null"`
	Body      string    `json:"body" gorm:"not null;type:text"`
	CreatedAt time.Time `json:"created_at"`
	Ride      Ride      `json:"-" gorm:"foreignKey:RideID"`
	Sender    User      `json:"-" gorm:"foreignKey:SenderID"`
}

type MessageResponse struct {
	ID         uint      `json:"id"`
	RideID     uint      `json:"ride_id"`
	SenderID   uint      `json:"sender_id"`
	Body       string    `json:"body"`
	CreatedAt  time.Time `json:"created_at"`
	SenderName string    `json:"sender_name"`
}

// NewMessageResponse собирает ответ API по сообщению вместе с именем отправителя
func NewMessageResponse(msg Message, sender User) MessageResponse {
	return MessageResponse{
		ID:         msg.ID,
		RideID:     msg.RideID,
		SenderID:   msg.SenderID,
		Body:       msg.Body,
		CreatedAt:  msg.CreatedAt,
		SenderName: sender.Name,
	}
}
