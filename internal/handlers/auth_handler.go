package handlers

import (
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"rydin-backend/internal/models"
	"rydin-backend/internal/utils"
)

type RegisterRequest struct {
	Email      string `json:"email" binding:"required,email"`
	Password   string `json:"password" binding:"required,min=8"`
	Name       string `json:"name" binding:"required"`
	Department string `json:"department"`
	Gender     string `json:"gender"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type AuthResponse struct {
	Success bool                `json:"success"`
	Message string              `json:"message,omitempty"`
	Token   string              `json:"token,omitempty"`
	User    models.UserResponse `json:"user,omitempty"`
}

// allowedEmailDomain проверяет, что адрес принадлежит разрешенному
// университетскому домену. Список доменов задается конфигурацией.
func allowedEmailDomain(email string) bool {
	domains := os.Getenv("ALLOWED_EMAIL_DOMAINS")
	if domains == "" {
		return true
	}

	at := strings.LastIndex(email, "@")
	if at < 0 {
		return false
	}
	domain := strings.ToLower(email[at+1:])

	for _, allowed := range strings.Split(domains, ",") {
		if domain == strings.ToLower(strings.TrimSpace(allowed)) {
			return true
		}
	}
	return false
}

// AuthRegister регистрирует нового пользователя по университетской почте.
// Профиль создается сразу с рейтингом по умолчанию; заполнение остальных
// полей откладывается до первого обновления профиля.
func AuthRegister(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RegisterRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			log.Printf("Ошибка валидации данных: %v", err)
			c.JSON(http.StatusBadRequest, AuthResponse{
				Success: false,
				Message: "Неверный формат данных",
			})
			return
		}

		email := strings.ToLower(strings.TrimSpace(req.Email))
		if !allowedEmailDomain(email) {
			c.JSON(http.StatusBadRequest, AuthResponse{
				Success: false,
				Message: "Регистрация доступна только с университетской почтой",
			})
			return
		}

		// Проверяем, существует ли пользователь с такой почтой
		var existingUser models.User
		if result := db.Where("email = ?", email).First(&existingUser); result.Error == nil {
			c.JSON(http.StatusBadRequest, AuthResponse{
				Success: false,
				Message: "Пользователь с такой почтой уже существует",
			})
			return
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			c.JSON(http.StatusInternalServerError, AuthResponse{
				Success: false,
				Message: "Ошибка при обработке пароля",
			})
			return
		}

		// Создаем нового пользователя; рейтинг доверия начинается с 4.0
		user := models.User{
			Email:           email,
			PasswordHash:    string(hash),
			Name:            req.Name,
			Department:      req.Department,
			Gender:          req.Gender,
			Role:            "user",
			TrustScore:      4.0,
			ProfileComplete: req.Department != "" && req.Gender != "",
		}

		if result := db.Create(&user); result.Error != nil {
			c.JSON(http.StatusInternalServerError, AuthResponse{
				Success: false,
				Message: "Ошибка при создании пользователя",
			})
			return
		}

		// Генерируем JWT токен
		token, err := utils.GenerateJWT(user.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, AuthResponse{
				Success: false,
				Message: "Ошибка при создании токена",
			})
			return
		}

		log.Printf("Зарегистрирован новый пользователь %d (%s)", user.ID, email)

		c.JSON(http.StatusOK, AuthResponse{
			Success: true,
			Token:   token,
			User:    models.NewUserResponse(user),
		})
	}
}

// AuthLogin выполняет вход по почте и паролю
func AuthLogin(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, AuthResponse{
				Success: false,
				Message: "Неверный формат данных",
			})
			return
		}

		email := strings.ToLower(strings.TrimSpace(req.Email))

		var user models.User
		if err := db.Where("email = ?", email).First(&user).Error; err != nil {
			c.JSON(http.StatusUnauthorized, AuthResponse{
				Success: false,
				Message: "Неверная почта или пароль",
			})
			return
		}

		if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
			c.JSON(http.StatusUnauthorized, AuthResponse{
				Success: false,
				Message: "Неверная почта или пароль",
			})
			return
		}

		token, err := utils.GenerateJWT(user.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, AuthResponse{
				Success: false,
				Message: "Ошибка при создании токена",
			})
			return
		}

		c.JSON(http.StatusOK, AuthResponse{
			Success: true,
			Token:   token,
			User:    models.NewUserResponse(user),
		})
	}
}

// GetCurrentUser возвращает профиль текущего пользователя
func GetCurrentUser(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetUint("user_id")

		var user models.User
		if err := db.First(&user, userID).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Ошибка при получении пользователя"})
			return
		}

		c.JSON(http.StatusOK, models.NewUserResponse(user))
	}
}
