package routes

import (
	"rydin-backend/internal/handlers"
	"rydin-backend/internal/middleware"
	"rydin-backend/internal/projection"
	"rydin-backend/internal/realtime"
	"rydin-backend/internal/ridelock"
	"rydin-backend/internal/services"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

func SetupRoutes(api *gin.RouterGroup, db *gorm.DB, hub *realtime.Hub, svc *ridelock.Service, trust *services.TrustService, source projection.Source) {
	// Публичные маршруты для аутентификации
	auth := api.Group("/auth")
	{
		auth.POST("/register", handlers.AuthRegister(db))
		auth.POST("/login", handlers.AuthLogin(db))
	}

	// Защищенные маршруты (требуют аутентификации)
	protected := api.Group("")
	protected.Use(middleware.JWTAuth())
	{
		// Получение информации о текущем пользователе
		protected.GET("/user", handlers.GetCurrentUser(db))

		// Роуты для профиля
		protected.GET("/profile", handlers.UserGetProfile(db))
		protected.PUT("/profile", handlers.UserUpdateProfile(db, hub))

		// Роуты для проверки личности
		protected.POST("/profile/verification", handlers.VerificationSubmit(db, hub))
		protected.GET("/profile/verification", handlers.VerificationGetMine(db))
		protected.GET("/verifications/pending", handlers.VerificationListPending(db))
		protected.PUT("/verifications/:id/status", handlers.VerificationUpdateStatus(db, hub))

		// Роуты для поездок
		protected.POST("/rides", handlers.RideCreate(db, hub))
		protected.POST("/rides/search", handlers.RideSearch(db))
		protected.GET("/rides/mine", handlers.RideGetMine(db))
		protected.GET("/rides/:id", handlers.RideGetByID(db))
		protected.PUT("/rides/:id/lock", handlers.RideLock(svc))
		protected.PUT("/rides/:id/unlock", handlers.RideUnlock(svc))
		protected.PUT("/rides/:id/complete", handlers.RideComplete(svc, trust))
		protected.PUT("/rides/:id/cancel", handlers.RideCancel(svc, trust))

		// Роуты для участников поездки
		protected.POST("/rides/:id/join", handlers.MemberJoin(db, svc))
		protected.DELETE("/rides/:id/leave", handlers.MemberLeave(db, svc))
		protected.GET("/rides/:id/members", handlers.MembersByRide(db))
		protected.PUT("/members/:id/payment", handlers.MemberUpdatePayment(db, hub))

		// Живые ленты через настроенный источник данных
		protected.GET("/feed/rides", handlers.FeedRides(source, hub))
		protected.GET("/feed/rides/:id/members", handlers.FeedMembers(source, hub))

		// Роуты для чата поездки
		protected.GET("/rides/:id/messages", handlers.MessagesByRide(db))
		protected.POST("/rides/:id/messages", handlers.MessageSend(db, hub))

		// Загрузка файлов
		protected.POST("/upload", handlers.UploadFile)

		// WebSocket подключение для получения обновлений в реальном времени
		protected.GET("/ws", hub.Handler())
	}
}
