package services

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"rydin-backend/internal/models"
	"rydin-backend/internal/realtime"
	"rydin-backend/internal/services/cache"
)

// Границы рейтинга доверия и вклад событий истории поездок
const (
	trustBase           = 4.0
	trustMin            = 1.0
	trustMax            = 5.0
	trustPerCompleted   = 0.1
	trustPerCancelledBy = 0.3
)

// TrustService пересчитывает рейтинг доверия по истории поездок.
// Пересчет выполняется асинхронно после завершения или отмены поездки,
// результат вливается в профиль и рассылается подписчикам.
type TrustService struct {
	db    *gorm.DB
	cache *cache.Service
	hub   *realtime.Hub
}

func NewTrustService(db *gorm.DB, cacheService *cache.Service, hub *realtime.Hub) *TrustService {
	return &TrustService{db: db, cache: cacheService, hub: hub}
}

// computeTrustScore считает рейтинг по истории: базовые 4.0, бонус за
// завершенные поездки, штраф за отмененные хостом; итог в пределах [1, 5]
func computeTrustScore(hostedCompleted, joinedCompleted, hostedCancelled int64) float64 {
	score := trustBase +
		trustPerCompleted*float64(hostedCompleted+joinedCompleted) -
		trustPerCancelledBy*float64(hostedCancelled)
	if score < trustMin {
		score = trustMin
	}
	if score > trustMax {
		score = trustMax
	}
	return score
}

// RecalculateAsync запускает пересчет рейтинга в фоне, не блокируя запрос
func (s *TrustService) RecalculateAsync(userID uint) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 8*time.Second)
		defer cancel()
		if err := s.Recalculate(ctx, userID); err != nil {
			log.Printf("Пересчет рейтинга пользователя %d не удался: %v", userID, err)
		}
	}()
}

// Recalculate пересчитывает рейтинг: базовые 4.0, бонус за завершенные
// поездки (свои и чужие), штраф за отмененные хостом; итог в пределах [1, 5]
func (s *TrustService) Recalculate(ctx context.Context, userID uint) error {
	var hostedCompleted int64
	if err := s.db.WithContext(ctx).Model(&models.Ride{}).
		Where("host_id = ? AND status = ?", userID, models.RideStatusCompleted).
		Count(&hostedCompleted).Error; err != nil {
		return err
	}

	var joinedCompleted int64
	if err := s.db.WithContext(ctx).Model(&models.RideMember{}).
		Joins("JOIN rides ON rides.id = ride_members.ride_id").
		Where("ride_members.user_id = ? AND rides.status = ?",
			userID, models.RideStatusCompleted).
		Count(&joinedCompleted).Error; err != nil {
		return err
	}

	var hostedCancelled int64
	if err := s.db.WithContext(ctx).Model(&models.Ride{}).
		Where("host_id = ? AND status = ?", userID, models.RideStatusCancelled).
		Count(&hostedCancelled).Error; err != nil {
		return err
	}

	score := computeTrustScore(hostedCompleted, joinedCompleted, hostedCancelled)

	var user models.User
	if err := s.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		return err
	}
	if user.TrustScore == score {
		return nil
	}

	old := user
	if err := s.db.WithContext(ctx).Model(&user).
		Update("trust_score", score).Error; err != nil {
		return err
	}
	user.TrustScore = score

	if err := s.cache.Set(ctx, s.cache.TrustScoreKey(userID), score); err != nil {
		log.Printf("Не удалось сохранить рейтинг пользователя %d в кэш: %v", userID, err)
	}

	log.Printf("Рейтинг пользователя %d пересчитан: %.2f -> %.2f", userID, old.TrustScore, score)

	// Подписанные проекции вливают новое значение в локальное состояние
	if s.hub != nil {
		s.hub.Publish(realtime.ChangeEvent{
			EventType: realtime.EventUpdate,
			Table:     realtime.TableProfiles,
			New:       models.NewUserResponse(user),
			Old:       models.NewUserResponse(old),
		})
	}
	return nil
}

// CachedScore возвращает рейтинг из кэша, если он там есть
func (s *TrustService) CachedScore(ctx context.Context, userID uint) (float64, bool) {
	var score float64
	found, err := s.cache.Get(ctx, s.cache.TrustScoreKey(userID), &score)
	if err != nil || !found {
		return 0, false
	}
	return score, true
}

// RecalculateParticipants пересчитывает рейтинг хоста и всех участников поездки
func (s *TrustService) RecalculateParticipants(ctx context.Context, rideID uint) {
	var ride models.Ride
	if err := s.db.WithContext(ctx).First(&ride, rideID).Error; err != nil {
		log.Printf("Не удалось загрузить поездку %d для пересчета рейтингов: %v", rideID, err)
		return
	}

	s.RecalculateAsync(ride.HostID)

	var members []models.RideMember
	if err := s.db.WithContext(ctx).Where("ride_id = ?", rideID).Find(&members).Error; err != nil {
		log.Printf("Не удалось загрузить участников поездки %d: %v", rideID, err)
		return
	}
	for _, member := range members {
		s.RecalculateAsync(member.UserID)
	}
}
