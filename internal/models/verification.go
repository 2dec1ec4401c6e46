package models

import (
	"time"
)

type VerificationStatus string

const (
	VerificationStatusPending  VerificationStatus = "pending"  // На модерации
	VerificationStatusApproved VerificationStatus = "approved" // Принят
	VerificationStatusRejected VerificationStatus = "rejected" // Отказ
)

// VerificationDocument представляет документы студента для подтверждения личности
type VerificationDocument struct {
	ID              uint               `json:"id" gorm:"primaryKey"`
	UserID          uint               `json:"user_id" gorm:"not null;index"`
	StudentIDFront  string             `json:"student_id_front" gorm:"not null"`
	StudentIDBack   string             `json:"student_id_back" gorm:"not null"`
	Status          VerificationStatus `json:"status" gorm:"type:varchar(20);default:'pending'"`
	RejectionReason string             `json:"rejection_reason"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
	User            User               `json:"-" gorm:"foreignKey:UserID"`
}

type VerificationDocumentResponse struct {
	ID              uint               `json:"id"`
	UserID          uint               `json:"user_id,omitempty"`
	User            *UserResponse      `json:"user,omitempty"`
	StudentIDFront  string             `json:"student_id_front"`
	StudentIDBack   string             `json:"student_id_back"`
	Status          VerificationStatus `json:"status"`
	RejectionReason string             `json:"rejection_reason,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
}
