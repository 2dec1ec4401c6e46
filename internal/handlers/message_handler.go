package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"rydin-backend/internal/faults"
	"rydin-backend/internal/models"
	"rydin-backend/internal/realtime"
)

// isRideParticipant проверяет, что пользователь является хостом
// или участником поездки: чат доступен только своим
func isRideParticipant(db *gorm.DB, rideID, userID uint) (bool, error) {
	var ride models.Ride
	if err := db.First(&ride, rideID).Error; err != nil {
		return false, err
	}
	if ride.HostID == userID {
		return true, nil
	}

	var count int64
	if err := db.Model(&models.RideMember{}).
		Where("ride_id = ? AND user_id = ?", rideID, userID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// MessagesByRide возвращает сообщения чата поездки в хронологическом порядке
func MessagesByRide(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetUint("user_id")
		rideID := parseID(c.Param("id"))
		if rideID == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Неверный идентификатор поездки"})
			return
		}

		ok, err := isRideParticipant(db, rideID, userID)
		if err != nil {
			if faults.IsNotFound(err) {
				c.JSON(http.StatusNotFound, gin.H{"error": "Поездка не найдена"})
				return
			}
			f := faults.Classify(err)
			c.JSON(statusForFault(f.Kind), gin.H{"error": f.Message})
			return
		}
		if !ok {
			c.JSON(http.StatusForbidden, gin.H{"error": "Чат доступен только участникам поездки"})
			return
		}

		var messages []models.Message
		if err := db.Where("ride_id = ?", rideID).
			Preload("Sender").
			Order("created_at ASC").
			Find(&messages).Error; err != nil {
			f := faults.Classify(err)
			c.JSON(statusForFault(f.Kind), gin.H{"error": f.Message})
			return
		}

		response := make([]models.MessageResponse, 0, len(messages))
		for _, msg := range messages {
			response = append(response, models.NewMessageResponse(msg, msg.Sender))
		}

		c.JSON(http.StatusOK, response)
	}
}

// MessageSend отправляет сообщение в чат поездки и рассылает его подписчикам
func MessageSend(db *gorm.DB, hub *realtime.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetUint("user_id")
		rideID := parseID(c.Param("id"))
		if rideID == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Неверный идентификатор поездки"})
			return
		}

		var req struct {
			Body string `json:"body" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Неверный формат данных"})
			return
		}

		ok, err := isRideParticipant(db, rideID, userID)
		if err != nil {
			if faults.IsNotFound(err) {
				c.JSON(http.StatusNotFound, gin.H{"error": "Поездка не найдена"})
				return
			}
			f := faults.Classify(err)
			c.JSON(statusForFault(f.Kind), gin.H{"error": f.Message})
			return
		}
		if !ok {
			c.JSON(http.StatusForbidden, gin.H{"error": "Писать в чат могут только участники поездки"})
			return
		}

		message := models.Message{
			RideID:   rideID,
			SenderID: userID,
			Body:     req.Body,
		}
		if err := db.Create(&message).Error; err != nil {
			f := faults.Classify(err)
			c.JSON(statusForFault(f.Kind), gin.H{"error": f.Message})
			return
		}

		hub.Publish(realtime.ChangeEvent{
			EventType: realtime.EventInsert,
			Table:     realtime.TableMessages,
			RideID:    rideID,
			New:       &message,
		})

		var sender models.User
		if err := db.First(&sender, userID).Error; err != nil {
			c.JSON(http.StatusOK, message)
			return
		}

		c.JSON(http.StatusOK, models.NewMessageResponse(message, sender))
	}
}
