package models

import (
	"fmt"
	"time"
)

type RideStatus string

const (
	RideStatusOpen      RideStatus = "open"      // Открытая поездка, можно присоединиться
	RideStatusFull      RideStatus = "full"      // Все места заняты
	RideStatusLocked    RideStatus = "locked"    // Зафиксирована хостом, присоединение закрыто
	RideStatusCompleted RideStatus = "completed" // Завершенная поездка
	RideStatusCancelled RideStatus = "cancelled" // Отмененная поездка
)

type Ride struct {
	ID                 uint         `json:"id" gorm:"primaryKey"`
	HostID             uint         `json:"host_id" gorm:"not null;index"`
	Source             string       `json:"source" gorm:"not null"`
	Destination        string       `json:"destination" gorm:"not null"`
	RideDate           time.Time    `json:"ride_date" gorm:"not null;index"`
	RideTime           string       `json:"ride_time" gorm:"type:varchar(5);not null"`
	SeatsTotal         int          `json:"seats_total" gorm:"not null"`
	SeatsTaken         int          `json:"seats_taken" gorm:"default:0"`
	EstimatedFare      float64      `json:"estimated_fare" gorm:"not null"`
	GirlsOnly          bool         `json:"girls_only" gorm:"default:false"`
	TransportRef       string       `json:"transport_ref,omitempty" gorm:"default:''"`
	PrebookedLink      string       `json:"prebooked_link,omitempty" gorm:"default:''"`
	Status             RideStatus   `json:"status" gorm:"type:varchar(20);default:'open';index"`
	LockedAt           *time.Time   `json:"locked_at,omitempty" gorm:"default:null"`
	CancellationReason string       `json:"cancellation_reason,omitempty" gorm:"default:''"`
	CreatedAt          time.Time    `json:"created_at"`
	UpdatedAt          time.Time    `json:"updated_at"`
	Host               User         `json:"-" gorm:"foreignKey:HostID"`
	Members            []RideMember `json:"-" gorm:"foreignKey:RideID"`
}

// DepartureAt возвращает момент отправления, собранный из даты и времени поездки
func (r *Ride) DepartureAt() time.Time {
	var hour, min int
	if _, err := fmt.Sscanf(r.RideTime, "%d:%d", &hour, &min); err != nil {
		// Некорректное время трактуем как начало дня
		hour, min = 0, 0
	}
	return time.Date(r.RideDate.Year(), r.RideDate.Month(), r.RideDate.Day(),
		hour, min, 0, 0, r.RideDate.Location())
}

type RideResponse struct {
	ID                 uint       `json:"id"`
	HostID             uint       `json:"host_id"`
	Source             string     `json:"source"`
	Destination        string     `json:"destination"`
	RideDate           time.Time  `json:"ride_date"`
	RideTime           string     `json:"ride_time"`
	SeatsTotal         int        `json:"seats_total"`
	SeatsTaken         int        `json:"seats_taken"`
	EstimatedFare      float64    `json:"estimated_fare"`
	GirlsOnly          bool       `json:"girls_only"`
	TransportRef       string     `json:"transport_ref,omitempty"`
	PrebookedLink      string     `json:"prebooked_link,omitempty"`
	Status             RideStatus `json:"status"`
	LockedAt           *time.Time `json:"locked_at,omitempty"`
	CancellationReason string     `json:"cancellation_reason,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
	HostName           string     `json:"host_name"`
	HostDepartment     string     `json:"host_department,omitempty"`
	HostTrustScore     float64    `json:"host_trust_score"`
}

// NewRideResponse собирает ответ API по поездке вместе с данными хоста
func NewRideResponse(ride Ride, host User) RideResponse {
	return RideResponse{
		ID:                 ride.ID,
		HostID:             ride.HostID,
		Source:             ride.Source,
		Destination:        ride.Destination,
		RideDate:           ride.RideDate,
		RideTime:           ride.RideTime,
		SeatsTotal:         ride.SeatsTotal,
		SeatsTaken:         ride.SeatsTaken,
		EstimatedFare:      ride.EstimatedFare,
		GirlsOnly:          ride.GirlsOnly,
		TransportRef:       ride.TransportRef,
		PrebookedLink:      ride.PrebookedLink,
		Status:             ride.Status,
		LockedAt:           ride.LockedAt,
		CancellationReason: ride.CancellationReason,
		CreatedAt:          ride.CreatedAt,
		UpdatedAt:          ride.UpdatedAt,
		HostName:           host.Name,
		HostDepartment:     host.Department,
		HostTrustScore:     host.TrustScore,
	}
}

// RideCreate используется только для создания новой поездки
type RideCreate struct {
	ID            uint       `gorm:"primaryKey"`
	HostID        uint       `gorm:"not null"`
	Source        string     `gorm:"not null"`
	Destination   string     `gorm:"not null"`
	RideDate      time.Time  `gorm:"not null"`
	RideTime      string     `gorm:"type:varchar(5);not null"`
	SeatsTotal    int        `gorm:"not null"`
	EstimatedFare float64    `gorm:"not null"`
	GirlsOnly     bool       `gorm:"default:false"`
	TransportRef  string     `gorm:"default:''"`
	PrebookedLink string     `gorm:"default:''"`
	Status        RideStatus `gorm:"type:varchar(20);default:'open'"`
}

func (rc *RideCreate) TableName() string {
	return "rides"
}
