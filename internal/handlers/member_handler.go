package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"rydin-backend/internal/faults"
	"rydin-backend/internal/models"
	"rydin-backend/internal/realtime"
	"rydin-backend/internal/ridelock"
)

// parseID разбирает идентификатор из параметра маршрута; 0 означает ошибку
func parseID(raw string) uint {
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0
	}
	return uint(id)
}

// MemberJoin присоединяет текущего пользователя к поездке.
// Занятость мест обновляется атомарно внутри менеджера жизненного цикла.
func MemberJoin(db *gorm.DB, svc *ridelock.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetUint("user_id")
		rideID := parseID(c.Param("id"))
		if rideID == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Неверный идентификатор поездки"})
			return
		}

		var user models.User
		if err := db.First(&user, userID).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Ошибка при получении пользователя"})
			return
		}

		res := svc.JoinRide(c.Request.Context(), rideID, user)
		if !res.Success {
			c.JSON(statusForFault(res.Kind), res)
			return
		}

		c.JSON(http.StatusOK, res)
	}
}

// MemberLeave выводит текущего пользователя из поездки
func MemberLeave(db *gorm.DB, svc *ridelock.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetUint("user_id")
		rideID := parseID(c.Param("id"))
		if rideID == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Неверный идентификатор поездки"})
			return
		}

		res := svc.LeaveRide(c.Request.Context(), rideID, userID)
		if !res.Success {
			c.JSON(statusForFault(res.Kind), res)
			return
		}

		c.JSON(http.StatusOK, res)
	}
}

// MembersByRide возвращает участников поездки вместе с их профилями.
// Профили загружаются одним пакетным запросом, не по одному на строку.
func MembersByRide(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		rideID := parseID(c.Param("id"))
		if rideID == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Неверный идентификатор поездки"})
			return
		}

		var members []models.RideMember
		if err := db.Where("ride_id = ?", rideID).
			Preload("User").
			Order("joined_at ASC").
			Find(&members).Error; err != nil {
			f := faults.Classify(err)
			c.JSON(statusForFault(f.Kind), gin.H{"error": f.Message})
			return
		}

		response := make([]models.RideMemberResponse, 0, len(members))
		for _, member := range members {
			response = append(response, models.NewRideMemberResponse(member, member.User))
		}

		c.JSON(http.StatusOK, response)
	}
}

// MemberUpdatePayment отмечает статус оплаты доли участника.
// Менять статус может сам участник или хост поездки.
func MemberUpdatePayment(db *gorm.DB, hub *realtime.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetUint("user_id")
		memberID := parseID(c.Param("id"))
		if memberID == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Неверный идентификатор участника"})
			return
		}

		var req struct {
			PaymentStatus models.PaymentStatus `json:"payment_status" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Неверный формат данных"})
			return
		}

		switch req.PaymentStatus {
		case models.PaymentStatusPending, models.PaymentStatusPaid, models.PaymentStatusWaived:
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "Неизвестный статус оплаты"})
			return
		}

		var member models.RideMember
		if err := db.Preload("Ride").First(&member, memberID).Error; err != nil {
			if faults.IsNotFound(err) {
				c.JSON(http.StatusNotFound, gin.H{"error": "Участник не найден"})
				return
			}
			f := faults.Classify(err)
			c.JSON(statusForFault(f.Kind), gin.H{"error": f.Message})
			return
		}

		if member.UserID != userID && member.Ride.HostID != userID {
			c.JSON(http.StatusForbidden, gin.H{"error": "Менять статус оплаты может участник или хост"})
			return
		}

		old := member
		if err := db.Model(&member).Update("payment_status", req.PaymentStatus).Error; err != nil {
			f := faults.Classify(err)
			c.JSON(statusForFault(f.Kind), gin.H{"error": f.Message})
			return
		}
		member.PaymentStatus = req.PaymentStatus

		hub.Publish(realtime.ChangeEvent{
			EventType: realtime.EventUpdate,
			Table:     realtime.TableRideMembers,
			RideID:    member.RideID,
			New:       &member,
			Old:       &old,
		})

		log.Printf("Статус оплаты участника %d поездки %d изменен на %s",
			member.ID, member.RideID, req.PaymentStatus)

		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}
