package models

import (
	"time"

	"gorm.io/gorm"
)

type User struct {
	ID               uint      `json:"id" gorm:"primaryKey;column:id;autoIncrement"`
	Email            string    `json:"email" gorm:"column:email;unique;not null;type:varchar(255)"`
	PasswordHash     string    `json:"-" gorm:"column:password_hash;not null;type:text"`
	Name             string    `json:"name" gorm:"column:name;not null;type:varchar(255)"`
	Department       string    `json:"department" gorm:"column:department;type:varchar(255)"`
	Gender           string    `json:"gender" gorm:"column:gender;type:varchar(10)"`
	PhotoUrl         string    `json:"photoUrl" gorm:"column:photo_url;type:text"`
	Role             string    `json:"role" gorm:"column:role;default:'user';type:varchar(20)"`
	TrustScore       float64   `json:"trust_score" gorm:"column:trust_score;default:4.0"`
	ProfileComplete  bool      `json:"profile_complete" gorm:"column:profile_complete;default:false"`
	IdentityVerified bool      `json:"identity_verified" gorm:"column:identity_verified;default:false"`
	EmergencyName    string    `json:"emergency_name,omitempty" gorm:"column:emergency_name;type:varchar(255)"`
	EmergencyPhone   string    `json:"emergency_phone,omitempty" gorm:"column:emergency_phone;type:varchar(20)"`
	CreatedAt        time.Time `json:"created_at" gorm:"column:created_at;autoCreateTime;type:timestamp with time zone"`
	UpdatedAt        time.Time `json:"updated_at" gorm:"column:updated_at;autoUpdateTime;type:timestamp with time zone"`
}

type UserResponse struct {
	ID               uint      `json:"id"`
	Email            string    `json:"email"`
	Name             string    `json:"name"`
	Department       string    `json:"department"`
	Gender           string    `json:"gender,omitempty"`
	PhotoUrl         string    `json:"photoUrl"`
	Role             string    `json:"role"`
	TrustScore       float64   `json:"trust_score"`
	ProfileComplete  bool      `json:"profile_complete"`
	IdentityVerified bool      `json:"identity_verified"`
	EmergencyName    string    `json:"emergency_name,omitempty"`
	EmergencyPhone   string    `json:"emergency_phone,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// TableName задает имя таблицы профилей
func (User) TableName() string {
	return "profiles"
}

// NewUserResponse собирает публичный ответ API по пользователю
func NewUserResponse(u User) UserResponse {
	return UserResponse{
		ID:               u.ID,
		Email:            u.Email,
		Name:             u.Name,
		Department:       u.Department,
		Gender:           u.Gender,
		PhotoUrl:         u.PhotoUrl,
		Role:             u.Role,
		TrustScore:       u.TrustScore,
		ProfileComplete:  u.ProfileComplete,
		IdentityVerified: u.IdentityVerified,
		EmergencyName:    u.EmergencyName,
		EmergencyPhone:   u.EmergencyPhone,
		CreatedAt:        u.CreatedAt,
	}
}

// AfterFind вызывается после загрузки модели из базы данных
func (u *User) AfterFind(tx *gorm.DB) error {
	if u.PhotoUrl == "" {
		return nil
	}

	if u.PhotoUrl[0] != '/' {
		u.PhotoUrl = "/" + u.PhotoUrl
	}

	return nil
}
