package ridelock

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"rydin-backend/internal/faults"
	"rydin-backend/internal/middleware"
	"rydin-backend/internal/models"
	"rydin-backend/internal/realtime"
)

// DeriveStatus вычисляет статус поездки по занятости мест. Терминальные и
// зафиксированные статусы (locked, completed, cancelled) липкие: они
// возвращаются без изменений независимо от мест. Это единственное место,
// где вычисляется статус — любое изменение мест проходит через эту функцию.
func DeriveStatus(seatsTotal, seatsTaken int, current models.RideStatus) models.RideStatus {
	if IsSticky(current) {
		return current
	}
	if seatsTaken >= seatsTotal {
		return models.RideStatusFull
	}
	return models.RideStatusOpen
}

// IsSticky сообщает, что статус не пересчитывается из занятости мест
func IsSticky(status models.RideStatus) bool {
	switch status {
	case models.RideStatusLocked, models.RideStatusCompleted, models.RideStatusCancelled:
		return true
	}
	return false
}

// CanLock сообщает, доступна ли хосту фиксация поездки. Используется для
// отображения кнопки в интерфейсе, границей безопасности не является:
// LockRideByHost перепроверяет условия внутри транзакции.
func CanLock(status models.RideStatus, seatsTaken int) bool {
	if seatsTaken <= 0 {
		return false
	}
	return status == models.RideStatusOpen || status == models.RideStatusFull
}

// Result описывает исход операции жизненного цикла. Операции этого слоя
// никогда не возвращают необработанные ошибки: и отказ бизнес-правила,
// и сетевой сбой приходят в одинаковой структурированной форме.
type Result struct {
	Success bool         `json:"success"`
	Message string       `json:"message,omitempty"`
	Kind    faults.Kind  `json:"kind,omitempty"`
	Ride    *models.Ride `json:"ride,omitempty"`
}

func failure(f *faults.Fault) Result {
	return Result{Success: false, Message: f.Message, Kind: f.Kind}
}

func success(ride *models.Ride) Result {
	return Result{Success: true, Ride: ride}
}

// EventSink принимает события изменений для рассылки подписчикам
type EventSink interface {
	Publish(event realtime.ChangeEvent)
}

// Service выполняет переходы жизненного цикла поездки. Атомарность
// гарантируется транзакциями и условными UPDATE, а не проверками на клиенте.
type Service struct {
	db   *gorm.DB
	feed EventSink
}

func NewService(db *gorm.DB, feed EventSink) *Service {
	return &Service{db: db, feed: feed}
}

// announceRide публикует событие обновления поездки после фиксации транзакции
func (s *Service) announceRide(eventType string, newRow, oldRow *models.Ride, rideID uint) {
	if s.feed == nil {
		return
	}
	event := realtime.ChangeEvent{
		EventType: eventType,
		Table:     realtime.TableRides,
		RideID:    rideID,
	}
	if newRow != nil {
		event.New = newRow
	}
	if oldRow != nil {
		event.Old = oldRow
	}
	s.feed.Publish(event)
}

func (s *Service) announceMember(eventType string, rideID uint, member *models.RideMember) {
	if s.feed == nil {
		return
	}
	event := realtime.ChangeEvent{
		EventType: eventType,
		Table:     realtime.TableRideMembers,
		RideID:    rideID,
	}
	if eventType == realtime.EventDelete {
		event.Old = member
	} else {
		event.New = member
	}
	s.feed.Publish(event)
}

// LockRideByHost фиксирует поездку. Условия: вызывающий является хостом,
// статус open или full, присоединился хотя бы один участник. Все условия
// перепроверяются внутри транзакции, клиентские проверки только для UX.
func (s *Service) LockRideByHost(ctx context.Context, rideID, userID uint) Result {
	var before, after models.Ride

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ride models.Ride
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&ride, rideID).Error; err != nil {
			if faults.IsNotFound(err) {
				return faults.Business("Поездка не найдена")
			}
			return err
		}
		before = ride

		if ride.HostID != userID {
			return faults.Business("Только хост может зафиксировать поездку")
		}
		if !CanLock(ride.Status, ride.SeatsTaken) {
			if ride.SeatsTaken == 0 {
				return faults.Business("Нельзя зафиксировать поездку без участников")
			}
			return faults.Business("Поездка уже зафиксирована или завершена")
		}

		now := time.Now()
		if err := tx.Model(&ride).Updates(map[string]interface{}{
			"status":    models.RideStatusLocked,
			"locked_at": now,
		}).Error; err != nil {
			return err
		}

		ride.Status = models.RideStatusLocked
		ride.LockedAt = &now
		after = ride
		return nil
	})

	if err != nil {
		f := faults.Classify(err)
		log.Printf("Фиксация поездки %d отклонена: %s (%s)", rideID, f.Message, f.Kind)
		middleware.RideLockAttempts.WithLabelValues("lock", string(f.Kind)).Inc()
		return failure(f)
	}

	middleware.RideLockAttempts.WithLabelValues("lock", "success").Inc()
	s.announceRide(realtime.EventUpdate, &after, &before, rideID)
	return success(&after)
}

// UnlockRideByHost снимает фиксацию. Допускается только хостом и только
// до отправления поездки; статус пересчитывается из занятости мест.
func (s *Service) UnlockRideByHost(ctx context.Context, rideID, userID uint) Result {
	var before, after models.Ride

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ride models.Ride
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&ride, rideID).Error; err != nil {
			if faults.IsNotFound(err) {
				return faults.Business("Поездка не найдена")
			}
			return err
		}
		before = ride

		if ride.HostID != userID {
			return faults.Business("Только хост может снять фиксацию поездки")
		}
		if ride.Status != models.RideStatusLocked {
			return faults.Business("Поездка не зафиксирована")
		}
		if !time.Now().Before(ride.DepartureAt()) {
			return faults.Business("Нельзя снять фиксацию после отправления")
		}

		// Статус снова выводится из занятости мест
		newStatus := DeriveStatus(ride.SeatsTotal, ride.SeatsTaken, models.RideStatusOpen)
		if err := tx.Model(&ride).Updates(map[string]interface{}{
			"status":    newStatus,
			"locked_at": nil,
		}).Error; err != nil {
			return err
		}

		ride.Status = newStatus
		ride.LockedAt = nil
		after = ride
		return nil
	})

	if err != nil {
		f := faults.Classify(err)
		log.Printf("Снятие фиксации поездки %d отклонено: %s (%s)", rideID, f.Message, f.Kind)
		middleware.RideLockAttempts.WithLabelValues("unlock", string(f.Kind)).Inc()
		return failure(f)
	}

	middleware.RideLockAttempts.WithLabelValues("unlock", "success").Inc()
	s.announceRide(realtime.EventUpdate, &after, &before, rideID)
	return success(&after)
}

// JoinRide присоединяет пользователя к поездке. Инкремент занятых мест
// выполняется одним условным UPDATE: конкурирующие присоединения не могут
// превысить число мест, проигравший получает отказ бизнес-правила.
func (s *Service) JoinRide(ctx context.Context, rideID uint, user models.User) Result {
	var before, after models.Ride
	var member models.RideMember

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ride models.Ride
		if err := tx.First(&ride, rideID).Error; err != nil {
			if faults.IsNotFound(err) {
				return faults.Business("Поездка не найдена")
			}
			return err
		}
		before = ride

		if ride.HostID == user.ID {
			return faults.Business("Хост уже участвует в своей поездке")
		}
		if ride.GirlsOnly && user.Gender != "female" {
			return faults.Business("Поездка доступна только для девушек")
		}

		var existing int64
		if err := tx.Model(&models.RideMember{}).
			Where("ride_id = ? AND user_id = ?", rideID, user.ID).
			Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return faults.Business("Вы уже присоединились к этой поездке")
		}

		// Атомарный инкремент: место достается только если оно еще есть
		res := tx.Model(&models.Ride{}).
			Where("id = ? AND status = ? AND seats_taken < seats_total",
				rideID, models.RideStatusOpen).
			Update("seats_taken", gorm.Expr("seats_taken + 1"))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return faults.Business("Свободных мест больше нет")
		}

		if err := tx.First(&ride, rideID).Error; err != nil {
			return err
		}
		newStatus := DeriveStatus(ride.SeatsTotal, ride.SeatsTaken, ride.Status)
		if newStatus != ride.Status {
			if err := tx.Model(&ride).Update("status", newStatus).Error; err != nil {
				return err
			}
			ride.Status = newStatus
		}

		// Доля рассчитывается на всех едущих: хост плюс участники
		share := ride.EstimatedFare / float64(ride.SeatsTaken+1)

		member = models.RideMember{
			RideID:        rideID,
			UserID:        user.ID,
			PaymentStatus: models.PaymentStatusPending,
			FareShare:     share,
		}
		if err := tx.Create(&member).Error; err != nil {
			return err
		}

		// Доли остальных участников пересчитываются под новый состав
		if err := tx.Model(&models.RideMember{}).
			Where("ride_id = ?", rideID).
			Update("fare_share", share).Error; err != nil {
			return err
		}

		after = ride
		return nil
	})

	if err != nil {
		f := faults.Classify(err)
		log.Printf("Присоединение пользователя %d к поездке %d отклонено: %s (%s)",
			user.ID, rideID, f.Message, f.Kind)
		return failure(f)
	}

	s.announceMember(realtime.EventInsert, rideID, &member)
	s.announceRide(realtime.EventUpdate, &after, &before, rideID)
	return success(&after)
}

// LeaveRide выводит пользователя из поездки. После фиксации выход закрыт.
func (s *Service) LeaveRide(ctx context.Context, rideID, userID uint) Result {
	var before, after models.Ride
	var member models.RideMember

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ride models.Ride
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&ride, rideID).Error; err != nil {
			if faults.IsNotFound(err) {
				return faults.Business("Поездка не найдена")
			}
			return err
		}
		before = ride

		if IsSticky(ride.Status) {
			return faults.Business("Поездка зафиксирована, выход больше недоступен")
		}

		if err := tx.Where("ride_id = ? AND user_id = ?", rideID, userID).
			First(&member).Error; err != nil {
			if faults.IsNotFound(err) {
				return faults.Business("Вы не участвуете в этой поездке")
			}
			return err
		}

		if err := tx.Delete(&models.RideMember{}, member.ID).Error; err != nil {
			return err
		}

		res := tx.Model(&models.Ride{}).
			Where("id = ? AND seats_taken > 0", rideID).
			Update("seats_taken", gorm.Expr("seats_taken - 1"))
		if res.Error != nil {
			return res.Error
		}

		if err := tx.First(&ride, rideID).Error; err != nil {
			return err
		}
		newStatus := DeriveStatus(ride.SeatsTotal, ride.SeatsTaken, ride.Status)
		if newStatus != ride.Status {
			if err := tx.Model(&ride).Update("status", newStatus).Error; err != nil {
				return err
			}
			ride.Status = newStatus
		}

		if ride.SeatsTaken > 0 {
			share := ride.EstimatedFare / float64(ride.SeatsTaken+1)
			if err := tx.Model(&models.RideMember{}).
				Where("ride_id = ?", rideID).
				Update("fare_share", share).Error; err != nil {
				return err
			}
		}

		after = ride
		return nil
	})

	if err != nil {
		f := faults.Classify(err)
		log.Printf("Выход пользователя %d из поездки %d отклонен: %s (%s)",
			userID, rideID, f.Message, f.Kind)
		return failure(f)
	}

	s.announceMember(realtime.EventDelete, rideID, &member)
	s.announceRide(realtime.EventUpdate, &after, &before, rideID)
	return success(&after)
}

// CompleteRideByHost переводит поездку в терминальный статус completed
func (s *Service) CompleteRideByHost(ctx context.Context, rideID, userID uint) Result {
	return s.finishRide(ctx, rideID, userID, models.RideStatusCompleted, "")
}

// CancelRideByHost переводит поездку в терминальный статус cancelled
func (s *Service) CancelRideByHost(ctx context.Context, rideID, userID uint, reason string) Result {
	return s.finishRide(ctx, rideID, userID, models.RideStatusCancelled, reason)
}

func (s *Service) finishRide(ctx context.Context, rideID, userID uint, target models.RideStatus, reason string) Result {
	var before, after models.Ride

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ride models.Ride
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&ride, rideID).Error; err != nil {
			if faults.IsNotFound(err) {
				return faults.Business("Поездка не найдена")
			}
			return err
		}
		before = ride

		if ride.HostID != userID {
			return faults.Business("Только хост может завершить или отменить поездку")
		}
		if ride.Status == models.RideStatusCompleted || ride.Status == models.RideStatusCancelled {
			return faults.Business("Поездка уже завершена или отменена")
		}

		updates := map[string]interface{}{"status": target}
		if target == models.RideStatusCancelled {
			updates["cancellation_reason"] = reason
		}
		if err := tx.Model(&ride).Updates(updates).Error; err != nil {
			return err
		}

		ride.Status = target
		ride.CancellationReason = reason
		after = ride
		return nil
	})

	if err != nil {
		f := faults.Classify(err)
		log.Printf("Завершение поездки %d отклонено: %s (%s)", rideID, f.Message, f.Kind)
		return failure(f)
	}

	s.announceRide(realtime.EventUpdate, &after, &before, rideID)
	return success(&after)
}
