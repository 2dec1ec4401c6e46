package models

import (
	"time"
)

type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending" // Доля не оплачена
	PaymentStatusPaid    PaymentStatus = "paid"    // Доля оплачена
	PaymentStatusWaived  PaymentStatus = "waived"  // Оплата не требуется
)

// RideMember представляет участника совместной поездки
type RideMember struct {
	ID            uint          `json:"id" gorm:"primaryKey"`
	RideID        uint          `json:"ride_id" gorm:"not null;index"`
	UserID        uint          `json:"user_id" gorm:"not null;index"`
	JoinedAt      time.Time     `json:"joined_at" gorm:"autoCreateTime"`
	PaymentStatus PaymentStatus `json:"payment_status" gorm:"type:varchar(20);default:'pending'"`
	FareShare     float64       `json:"fare_share" gorm:"default:0"`
	Ride          Ride          `json:"-" gorm:"foreignKey:RideID"`
	User          User          `json:"-" gorm:"foreignKey:UserID"`
}

// RideMemberResponse представляет ответ API с информацией об участнике
type RideMemberResponse struct {
	ID            uint          `json:"id"`
	RideID        uint          `json:"ride_id"`
	UserID        uint          `json:"user_id"`
	JoinedAt      time.Time     `json:"joined_at"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	FareShare     float64       `json:"fare_share"`
	Name          string        `json:"name"`
	Department    string        `json:"department,omitempty"`
	TrustScore    float64       `json:"trust_score"`
	PhotoUrl      string        `json:"photoUrl,omitempty"`
}

// NewRideMemberResponse собирает ответ API по участнику вместе с его профилем
func NewRideMemberResponse(member RideMember, user User) RideMemberResponse {
	return RideMemberResponse{
		ID:            member.ID,
		RideID:        member.RideID,
		UserID:        member.UserID,
		JoinedAt:      member.JoinedAt,
		PaymentStatus: member.PaymentStatus,
		FareShare:     member.FareShare,
		Name:          user.Name,
		Department:    user.Department,
		TrustScore:    user.TrustScore,
		PhotoUrl:      user.PhotoUrl,
	}
}
