package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"rydin-backend/internal/models"
	"rydin-backend/internal/realtime"
)

func UserGetProfile(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetUint("user_id")
		role, _ := c.Get("role")

		// Если это админ, возвращаем специальный ответ
		if role == "admin" {
			c.JSON(http.StatusOK, models.UserResponse{
				ID:        0,
				Name:      "Admin",
				Role:      "admin",
				CreatedAt: time.Now(),
			})
			return
		}

		var user models.User
		if err := db.First(&user, userID).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Ошибка при получении профиля"})
			return
		}

		c.JSON(http.StatusOK, models.NewUserResponse(user))
	}
}

// UserUpdateProfile обновляет профиль. Разрешен только безопасный набор
// полей: рейтинг доверия, статус проверки личности и роль клиент менять
// не может ни при каких условиях.
func UserUpdateProfile(db *gorm.DB, hub *realtime.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetUint("user_id")

		var user models.User
		if err := db.First(&user, userID).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Ошибка при получении пользователя"})
			return
		}
		old := user

		var req struct {
			Name           string `json:"name"`
			Department     string `json:"department"`
			Gender         string `json:"gender"`
			PhotoUrl       string `json:"photoUrl"`
			EmergencyName  string `json:"emergency_name"`
			EmergencyPhone string `json:"emergency_phone"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Неверный формат данных"})
			return
		}

		// Обновляем только разрешенные поля
		updates := map[string]interface{}{}

		if req.Name != "" {
			updates["name"] = req.Name
			user.Name = req.Name
		}
		if req.Department != "" {
			updates["department"] = req.Department
			user.Department = req.Department
		}
		if req.Gender != "" {
			updates["gender"] = req.Gender
			user.Gender = req.Gender
		}
		if req.PhotoUrl != "" {
			// Убеждаемся, что URL начинается с /
			photoUrl := req.PhotoUrl
			if photoUrl[0] != '/' {
				photoUrl = "/" + photoUrl
			}
			updates["photo_url"] = photoUrl
			user.PhotoUrl = photoUrl
		}
		if req.EmergencyName != "" {
			updates["emergency_name"] = req.EmergencyName
			user.EmergencyName = req.EmergencyName
		}
		if req.EmergencyPhone != "" {
			updates["emergency_phone"] = req.EmergencyPhone
			user.EmergencyPhone = req.EmergencyPhone
		}

		// Профиль считается заполненным, когда указаны факультет и пол
		complete := user.Department != "" && user.Gender != ""
		if complete != user.ProfileComplete {
			updates["profile_complete"] = complete
			user.ProfileComplete = complete
		}

		if len(updates) == 0 {
			c.JSON(http.StatusOK, models.NewUserResponse(user))
			return
		}

		if err := db.Model(&user).Updates(updates).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Ошибка при обновлении профиля"})
			return
		}

		hub.Publish(realtime.ChangeEvent{
			EventType: realtime.EventUpdate,
			Table:     realtime.TableProfiles,
			New:       models.NewUserResponse(user),
			Old:       models.NewUserResponse(old),
		})

		c.JSON(http.StatusOK, models.NewUserResponse(user))
	}
}
