package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"rydin-backend/internal/faults"
	"rydin-backend/internal/models"
	"rydin-backend/internal/realtime"
)

type verificationSubmitRequest struct {
	StudentIDFront string `json:"student_id_front" binding:"required"`
	StudentIDBack  string `json:"student_id_back" binding:"required"`
}

type verificationStatusRequest struct {
	Status          models.VerificationStatus `json:"status" binding:"required"`
	RejectionReason string                    `json:"rejection_reason"`
}

func newVerificationResponse(doc models.VerificationDocument) models.VerificationDocumentResponse {
	resp := models.VerificationDocumentResponse{
		ID:              doc.ID,
		UserID:          doc.UserID,
		StudentIDFront:  doc.StudentIDFront,
		StudentIDBack:   doc.StudentIDBack,
		Status:          doc.Status,
		RejectionReason: doc.RejectionReason,
		CreatedAt:       doc.CreatedAt,
		UpdatedAt:       doc.UpdatedAt,
	}
	if doc.User.ID != 0 {
		user := models.NewUserResponse(doc.User)
		resp.User = &user
	}
	return resp
}

// VerificationSubmit принимает фотографии студенческого билета и ставит
// заявку на модерацию. Повторная отправка заменяет отклоненную заявку.
func VerificationSubmit(db *gorm.DB, hub *realtime.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetUint("user_id")

		var req verificationSubmitRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Необходимо загрузить обе стороны студенческого билета"})
			return
		}

		// Нельзя подать новую заявку, пока предыдущая на модерации или уже принята
		var existing models.VerificationDocument
		err := db.Where("user_id = ?", userID).Order("created_at DESC").First(&existing).Error
		if err == nil && existing.Status != models.VerificationStatusRejected {
			c.JSON(http.StatusConflict, gin.H{"error": "Заявка на проверку уже существует"})
			return
		}

		doc := models.VerificationDocument{
			UserID:         userID,
			StudentIDFront: req.StudentIDFront,
			StudentIDBack:  req.StudentIDBack,
			Status:         models.VerificationStatusPending,
		}
		if err := db.Create(&doc).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Ошибка при сохранении документов"})
			return
		}

		hub.Publish(realtime.ChangeEvent{
			EventType: realtime.EventInsert,
			Table:     realtime.TableVerifications,
			New:       newVerificationResponse(doc),
		})

		c.JSON(http.StatusCreated, newVerificationResponse(doc))
	}
}

// VerificationGetMine возвращает последнюю заявку текущего пользователя
func VerificationGetMine(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetUint("user_id")

		var doc models.VerificationDocument
		err := db.Where("user_id = ?", userID).Order("created_at DESC").First(&doc).Error
		if err != nil {
			if faults.IsNotFound(err) {
				c.JSON(http.StatusNotFound, gin.H{"error": "Документы не найдены"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Ошибка при получении документов"})
			return
		}

		c.JSON(http.StatusOK, newVerificationResponse(doc))
	}
}

// VerificationListPending возвращает все заявки на модерации (только админ)
func VerificationListPending(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if role, _ := c.Get("role"); role != "admin" {
			c.JSON(http.StatusForbidden, gin.H{"error": "Требуются права администратора"})
			return
		}

		var docs []models.VerificationDocument
		if err := db.Preload("User").
			Where("status = ?", models.VerificationStatusPending).
			Order("created_at ASC").
			Find(&docs).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Ошибка при получении списка заявок"})
			return
		}

		responses := make([]models.VerificationDocumentResponse, 0, len(docs))
		for _, doc := range docs {
			responses = append(responses, newVerificationResponse(doc))
		}

		c.JSON(http.StatusOK, responses)
	}
}

// VerificationUpdateStatus меняет статус заявки (только админ). При
// одобрении пользователь получает отметку identity_verified.
func VerificationUpdateStatus(db *gorm.DB, hub *realtime.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		if role, _ := c.Get("role"); role != "admin" {
			c.JSON(http.StatusForbidden, gin.H{"error": "Требуются права администратора"})
			return
		}

		docID := parseID(c.Param("id"))
		if docID == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Неверный идентификатор заявки"})
			return
		}

		var req verificationStatusRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Неверный формат данных"})
			return
		}
		if req.Status != models.VerificationStatusApproved && req.Status != models.VerificationStatusRejected {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Недопустимый статус заявки"})
			return
		}
		if req.Status == models.VerificationStatusRejected && req.RejectionReason == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Укажите причину отказа"})
			return
		}

		var doc models.VerificationDocument
		if err := db.First(&doc, docID).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Заявка не найдена"})
			return
		}
		old := doc

		err := db.Transaction(func(tx *gorm.DB) error {
			doc.Status = req.Status
			doc.RejectionReason = req.RejectionReason
			if err := tx.Model(&doc).Updates(map[string]interface{}{
				"status":           doc.Status,
				"rejection_reason": doc.RejectionReason,
			}).Error; err != nil {
				return err
			}

			verified := req.Status == models.VerificationStatusApproved
			return tx.Model(&models.User{}).
				Where("id = ?", doc.UserID).
				Update("identity_verified", verified).Error
		})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Ошибка при обновлении статуса"})
			return
		}

		hub.Publish(realtime.ChangeEvent{
			EventType: realtime.EventUpdate,
			Table:     realtime.TableVerifications,
			New:       newVerificationResponse(doc),
			Old:       newVerificationResponse(old),
		})

		var user models.User
		if db.First(&user, doc.UserID).Error == nil {
			hub.Publish(realtime.ChangeEvent{
				EventType: realtime.EventUpdate,
				Table:     realtime.TableProfiles,
				New:       models.NewUserResponse(user),
			})
		}

		c.JSON(http.StatusOK, newVerificationResponse(doc))
	}
}
