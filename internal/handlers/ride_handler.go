package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"rydin-backend/internal/faults"
	"rydin-backend/internal/models"
	"rydin-backend/internal/realtime"
	"rydin-backend/internal/ridelock"
	"rydin-backend/internal/services"
)

// statusForFault переводит класс отказа в HTTP статус
func statusForFault(kind faults.Kind) int {
	switch kind {
	case faults.KindBusiness:
		return http.StatusBadRequest
	case faults.KindNetwork:
		return http.StatusServiceUnavailable
	case faults.KindTimeout:
		return http.StatusGatewayTimeout
	case faults.KindSchema:
		return http.StatusInternalServerError
	}
	return http.StatusInternalServerError
}

// RideCreate создает новую поездку от имени текущего пользователя
func RideCreate(db *gorm.DB, hub *realtime.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetUint("user_id")

		var req struct {
			Source        string    `json:"source" binding:"required"`
			Destination   string    `json:"destination" binding:"required"`
			RideDate      time.Time `json:"ride_date" binding:"required"`
			RideTime      string    `json:"ride_time" binding:"required"`
			SeatsTotal    int       `json:"seats_total" binding:"required,min=1"`
			EstimatedFare float64   `json:"estimated_fare" binding:"required"`
			GirlsOnly     bool      `json:"girls_only"`
			TransportRef  string    `json:"transport_ref"`
			PrebookedLink string    `json:"prebooked_link"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			log.Printf("Ошибка валидации данных поездки: %v", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "Неверный формат данных"})
			return
		}

		today := time.Now().Truncate(24 * time.Hour)
		if req.RideDate.Before(today) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Дата поездки не может быть в прошлом"})
			return
		}

		if req.GirlsOnly {
			var host models.User
			if err := db.First(&host, userID).Error; err == nil && host.Gender != "female" {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Поездку только для девушек может создать только девушка"})
				return
			}
		}

		create := models.RideCreate{
			HostID:        userID,
			Source:        req.Source,
			Destination:   req.Destination,
			RideDate:      req.RideDate,
			RideTime:      req.RideTime,
			SeatsTotal:    req.SeatsTotal,
			EstimatedFare: req.EstimatedFare,
			GirlsOnly:     req.GirlsOnly,
			TransportRef:  req.TransportRef,
			PrebookedLink: req.PrebookedLink,
			Status:        models.RideStatusOpen,
		}
		if err := db.Create(&create).Error; err != nil {
			f := faults.Classify(err)
			c.JSON(statusForFault(f.Kind), gin.H{"error": f.Message})
			return
		}

		// Загружаем созданную поездку вместе с хостом для ответа и события
		var ride models.Ride
		if err := db.Preload("Host").First(&ride, create.ID).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Ошибка при получении созданной поездки"})
			return
		}

		hub.Publish(realtime.ChangeEvent{
			EventType: realtime.EventInsert,
			Table:     realtime.TableRides,
			RideID:    ride.ID,
			New:       &ride,
		})

		log.Printf("Пользователь %d создал поездку %d (%s -> %s)",
			userID, ride.ID, ride.Source, ride.Destination)

		c.JSON(http.StatusOK, models.NewRideResponse(ride, ride.Host))
	}
}

// RideSearch ищет поездки по фильтрам: статус из допустимого набора,
// подстроки пунктов отправления и назначения, дата не раньше указанной
func RideSearch(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Source      string              `json:"source"`
			Destination string              `json:"destination"`
			FromDate    time.Time           `json:"from_date"`
			Statuses    []models.RideStatus `json:"statuses"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Неверный формат данных"})
			return
		}

		// По умолчанию показываются поездки, к которым можно присоединиться
		statuses := req.Statuses
		if len(statuses) == 0 {
			statuses = []models.RideStatus{models.RideStatusOpen, models.RideStatusFull}
		}

		query := db.Where("status IN (?)", statuses)

		if req.Source != "" {
			query = query.Where("source ILIKE ?", "%"+req.Source+"%")
		}
		if req.Destination != "" {
			query = query.Where("destination ILIKE ?", "%"+req.Destination+"%")
		}

		// Прошедшие поездки в поиске не показываются
		fromDate := req.FromDate
		if fromDate.IsZero() {
			now := time.Now()
			fromDate = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		}
		query = query.Where("ride_date >= ?", fromDate)

		var rides []models.Ride
		if err := query.Preload("Host").Order("ride_date ASC").Find(&rides).Error; err != nil {
			f := faults.Classify(err)
			c.JSON(statusForFault(f.Kind), gin.H{"error": f.Message})
			return
		}

		response := make([]models.RideResponse, 0, len(rides))
		for _, ride := range rides {
			response = append(response, models.NewRideResponse(ride, ride.Host))
		}

		c.JSON(http.StatusOK, response)
	}
}

// RideGetMine возвращает поездки пользователя: как хоста и как участника
func RideGetMine(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetUint("user_id")

		var rides []models.Ride
		if err := db.
			Where("host_id = ? OR id IN (?)", userID,
				db.Model(&models.RideMember{}).Select("ride_id").Where("user_id = ?", userID)).
			Preload("Host").
			Order("created_at DESC").
			Find(&rides).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Ошибка при получении поездок"})
			return
		}

		response := make([]models.RideResponse, 0, len(rides))
		for _, ride := range rides {
			response = append(response, models.NewRideResponse(ride, ride.Host))
		}

		c.JSON(http.StatusOK, response)
	}
}

// RideGetByID возвращает одну поездку с данными хоста
func RideGetByID(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var ride models.Ride
		if err := db.Preload("Host").First(&ride, c.Param("id")).Error; err != nil {
			if faults.IsNotFound(err) {
				c.JSON(http.StatusNotFound, gin.H{"error": "Поездка не найдена"})
				return
			}
			f := faults.Classify(err)
			c.JSON(statusForFault(f.Kind), gin.H{"error": f.Message})
			return
		}

		c.JSON(http.StatusOK, models.NewRideResponse(ride, ride.Host))
	}
}

// RideLock фиксирует поездку через менеджер жизненного цикла.
// Отказ возвращается структурированно, локальное состояние не меняется.
func RideLock(svc *ridelock.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetUint("user_id")
		rideID := parseID(c.Param("id"))
		if rideID == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Неверный идентификатор поездки"})
			return
		}

		res := svc.LockRideByHost(c.Request.Context(), rideID, userID)
		if !res.Success {
			c.JSON(statusForFault(res.Kind), res)
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

// RideUnlock снимает фиксацию поездки
func RideUnlock(svc *ridelock.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetUint("user_id")
		rideID := parseID(c.Param("id"))
		if rideID == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Неверный идентификатор поездки"})
			return
		}

		res := svc.UnlockRideByHost(c.Request.Context(), rideID, userID)
		if !res.Success {
			c.JSON(statusForFault(res.Kind), res)
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

// RideComplete завершает поездку и запускает пересчет рейтингов участников
func RideComplete(svc *ridelock.Service, trust *services.TrustService) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetUint("user_id")
		rideID := parseID(c.Param("id"))
		if rideID == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Неверный идентификатор поездки"})
			return
		}

		res := svc.CompleteRideByHost(c.Request.Context(), rideID, userID)
		if !res.Success {
			c.JSON(statusForFault(res.Kind), res)
			return
		}

		// Рейтинг пересчитывается асинхронно и вливается в профили подписчиков
		trust.RecalculateParticipants(c.Request.Context(), rideID)

		c.JSON(http.StatusOK, res)
	}
}

// RideCancel отменяет поездку; отмена понижает рейтинг хоста
func RideCancel(svc *ridelock.Service, trust *services.TrustService) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetUint("user_id")
		rideID := parseID(c.Param("id"))
		if rideID == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Неверный идентификатор поездки"})
			return
		}

		var req struct {
			Reason string `json:"reason"`
		}
		// Причина отмены необязательна
		_ = c.ShouldBindJSON(&req)

		res := svc.CancelRideByHost(c.Request.Context(), rideID, userID, req.Reason)
		if !res.Success {
			c.JSON(statusForFault(res.Kind), res)
			return
		}

		trust.RecalculateParticipants(c.Request.Context(), rideID)

		c.JSON(http.StatusOK, res)
	}
}
