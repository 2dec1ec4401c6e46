package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"rydin-backend/internal/models"
	"rydin-backend/internal/projection"
)

// FeedRides отдает снимок живого списка поездок через настроенный источник
// данных. Выборка проходит ту же политику повторов, что и у подписчиков:
// сетевые сбои повторяются, отказы бизнес-правил и схемы терминальны.
func FeedRides(source projection.Source, feed projection.Feed) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetUint("user_id")

		filter := projection.RideFilter{
			Source:      c.Query("source"),
			Destination: c.Query("destination"),
		}
		if status := c.Query("status"); status != "" {
			filter.Statuses = []models.RideStatus{models.RideStatus(status)}
		} else {
			filter.Statuses = []models.RideStatus{models.RideStatusOpen, models.RideStatusFull}
		}
		if from := c.Query("from_date"); from != "" {
			if parsed, err := time.Parse("2006-01-02", from); err == nil {
				filter.FromDate = parsed
			}
		}

		list := projection.NewRideList(source, feed, filter, userID)
		defer list.Close()

		if fault := list.Start(c.Request.Context()); fault != nil {
			c.JSON(statusForFault(fault.Kind), gin.H{"error": fault.Message})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"state": projection.StateReady,
			"rides": list.Snapshot(),
		})
	}
}

// FeedMembers отдает снимок живого списка участников поездки
func FeedMembers(source projection.Source, feed projection.Feed) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetUint("user_id")

		rideID := parseID(c.Param("id"))
		if rideID == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Неверный идентификатор поездки"})
			return
		}

		list := projection.NewMemberList(source, feed, rideID, userID)
		defer list.Close()

		if fault := list.Start(c.Request.Context()); fault != nil {
			c.JSON(statusForFault(fault.Kind), gin.H{"error": fault.Message})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"state":   projection.StateReady,
			"members": list.Snapshot(),
		})
	}
}
