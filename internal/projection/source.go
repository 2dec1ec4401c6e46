package projection

import (
	"context"
	"database/sql"
	"os"
	"strconv"
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"

	"rydin-backend/internal/models"
)

// RideFilter задает условия выборки поездок
type RideFilter struct {
	Statuses    []models.RideStatus // статус из допустимого набора
	Source      string              // подстрока пункта отправления
	Destination string              // подстрока пункта назначения
	FromDate    time.Time           // дата поездки не раньше указанной
}

// Source — интерфейс доступа к данным для проекций. Две реализации:
// структурный путь через gorm и низкоуровневый через database/sql.
// Реализация выбирается один раз при конфигурации (DATA_ACCESS=raw).
type Source interface {
	FetchRides(ctx context.Context, filter RideFilter) ([]models.Ride, error)
	FetchRide(ctx context.Context, id uint) (*models.Ride, error)
	FetchMembers(ctx context.Context, rideID uint) ([]models.RideMember, error)
	FetchMember(ctx context.Context, id uint) (*models.RideMember, error)
	FetchProfiles(ctx context.Context, ids []uint) (map[uint]models.User, error)
}

// FetchTimeout возвращает тайм-аут сетевых выборок (по умолчанию 6 секунд).
// Зависший запрос не должен удерживать проекцию бесконечно.
func FetchTimeout() time.Duration {
	if val, err := strconv.Atoi(os.Getenv("FETCH_TIMEOUT_SECONDS")); err == nil && val > 0 {
		return time.Duration(val) * time.Second
	}
	return 6 * time.Second
}

// StoreSource — структурная реализация поверх gorm
type StoreSource struct {
	db *gorm.DB
}

func NewStoreSource(db *gorm.DB) *StoreSource {
	return &StoreSource{db: db}
}

func (s *StoreSource) FetchRides(ctx context.Context, filter RideFilter) ([]models.Ride, error) {
	ctx, cancel := context.WithTimeout(ctx, FetchTimeout())
	defer cancel()

	query := s.db.WithContext(ctx).Model(&models.Ride{})
	if len(filter.Statuses) > 0 {
		query = query.Where("status IN (?)", filter.Statuses)
	}
	if filter.Source != "" {
		query = query.Where("source ILIKE ?", "%"+filter.Source+"%")
	}
	if filter.Destination != "" {
		query = query.Where("destination ILIKE ?", "%"+filter.Destination+"%")
	}
	if !filter.FromDate.IsZero() {
		query = query.Where("ride_date >= ?", filter.FromDate)
	}

	var rides []models.Ride
	if err := query.Order("ride_date ASC").Find(&rides).Error; err != nil {
		return nil, err
	}
	return rides, nil
}

func (s *StoreSource) FetchRide(ctx context.Context, id uint) (*models.Ride, error) {
	ctx, cancel := context.WithTimeout(ctx, FetchTimeout())
	defer cancel()

	var ride models.Ride
	if err := s.db.WithContext(ctx).First(&ride, id).Error; err != nil {
		return nil, err
	}
	return &ride, nil
}

func (s *StoreSource) FetchMembers(ctx context.Context, rideID uint) ([]models.RideMember, error) {
	ctx, cancel := context.WithTimeout(ctx, FetchTimeout())
	defer cancel()

	var members []models.RideMember
	if err := s.db.WithContext(ctx).
		Where("ride_id = ?", rideID).
		Order("joined_at ASC").
		Find(&members).Error; err != nil {
		return nil, err
	}
	return members, nil
}

func (s *StoreSource) FetchMember(ctx context.Context, id uint) (*models.RideMember, error) {
	ctx, cancel := context.WithTimeout(ctx, FetchTimeout())
	defer cancel()

	var member models.RideMember
	if err := s.db.WithContext(ctx).First(&member, id).Error; err != nil {
		return nil, err
	}
	return &member, nil
}

// FetchProfiles загружает профили одним запросом по множеству идентификаторов.
// Никогда не выполняется по одному запросу на строку.
func (s *StoreSource) FetchProfiles(ctx context.Context, ids []uint) (map[uint]models.User, error) {
	result := make(map[uint]models.User, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	ctx, cancel := context.WithTimeout(ctx, FetchTimeout())
	defer cancel()

	var users []models.User
	if err := s.db.WithContext(ctx).Where("id IN (?)", ids).Find(&users).Error; err != nil {
		return nil, err
	}
	for _, user := range users {
		result[user.ID] = user
	}
	return result, nil
}

// RawSource — низкоуровневая реализация поверх database/sql и lib/pq.
// Используется как запасной путь, когда структурный клиент не подходит.
type RawSource struct {
	db *sql.DB
}

func NewRawSource(dsn string) (*RawSource, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &RawSource{db: db}, nil
}

const rideColumns = `id, host_id, source, destination, ride_date, ride_time,
	seats_total, seats_taken, estimated_fare, girls_only, transport_ref,
	prebooked_link, status, locked_at, cancellation_reason, created_at, updated_at`

func scanRide(row interface{ Scan(...interface{}) error }) (*models.Ride, error) {
	var ride models.Ride
	err := row.Scan(&ride.ID, &ride.HostID, &ride.Source, &ride.Destination,
		&ride.RideDate, &ride.RideTime, &ride.SeatsTotal, &ride.SeatsTaken,
		&ride.EstimatedFare, &ride.GirlsOnly, &ride.TransportRef,
		&ride.PrebookedLink, &ride.Status, &ride.LockedAt,
		&ride.CancellationReason, &ride.CreatedAt, &ride.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &ride, nil
}

func (s *RawSource) FetchRides(ctx context.Context, filter RideFilter) ([]models.Ride, error) {
	ctx, cancel := context.WithTimeout(ctx, FetchTimeout())
	defer cancel()

	query := `SELECT ` + rideColumns + ` FROM rides WHERE 1=1`
	args := []interface{}{}

	if len(filter.Statuses) > 0 {
		statuses := make([]string, 0, len(filter.Statuses))
		for _, st := range filter.Statuses {
			statuses = append(statuses, string(st))
		}
		args = append(args, pq.Array(statuses))
		query += ` AND status = ANY($` + strconv.Itoa(len(args)) + `)`
	}
	if filter.Source != "" {
		args = append(args, "%"+filter.Source+"%")
		query += ` AND source ILIKE $` + strconv.Itoa(len(args))
	}
	if filter.Destination != "" {
		args = append(args, "%"+filter.Destination+"%")
		query += ` AND destination ILIKE $` + strconv.Itoa(len(args))
	}
	if !filter.FromDate.IsZero() {
		args = append(args, filter.FromDate)
		query += ` AND ride_date >= $` + strconv.Itoa(len(args))
	}
	query += ` ORDER BY ride_date ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rides []models.Ride
	for rows.Next() {
		ride, err := scanRide(rows)
		if err != nil {
			return nil, err
		}
		rides = append(rides, *ride)
	}
	return rides, rows.Err()
}

func (s *RawSource) FetchRide(ctx context.Context, id uint) (*models.Ride, error) {
	ctx, cancel := context.WithTimeout(ctx, FetchTimeout())
	defer cancel()

	row := s.db.QueryRowContext(ctx,
		`SELECT `+rideColumns+` FROM rides WHERE id = $1`, id)
	return scanRide(row)
}

func (s *RawSource) FetchMembers(ctx context.Context, rideID uint) ([]models.RideMember, error) {
	ctx, cancel := context.WithTimeout(ctx, FetchTimeout())
	defer cancel()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, ride_id, user_id, joined_at, payment_status, fare_share
		 FROM ride_members WHERE ride_id = $1 ORDER BY joined_at ASC`, rideID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []models.RideMember
	for rows.Next() {
		var m models.RideMember
		if err := rows.Scan(&m.ID, &m.RideID, &m.UserID, &m.JoinedAt,
			&m.PaymentStatus, &m.FareShare); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func (s *RawSource) FetchMember(ctx context.Context, id uint) (*models.RideMember, error) {
	ctx, cancel := context.WithTimeout(ctx, FetchTimeout())
	defer cancel()

	var m models.RideMember
	err := s.db.QueryRowContext(ctx,
		`SELECT id, ride_id, user_id, joined_at, payment_status, fare_share
		 FROM ride_members WHERE id = $1`, id).
		Scan(&m.ID, &m.RideID, &m.UserID, &m.JoinedAt, &m.PaymentStatus, &m.FareShare)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *RawSource) FetchProfiles(ctx context.Context, ids []uint) (map[uint]models.User, error) {
	result := make(map[uint]models.User, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	ctx, cancel := context.WithTimeout(ctx, FetchTimeout())
	defer cancel()

	int64IDs := make([]int64, 0, len(ids))
	for _, id := range ids {
		int64IDs = append(int64IDs, int64(id))
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, email, name, department, gender, photo_url, role, trust_score,
		        profile_complete, identity_verified, created_at
		 FROM profiles WHERE id = ANY($1)`, pq.Array(int64IDs))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Email, &u.Name, &u.Department, &u.Gender,
			&u.PhotoUrl, &u.Role, &u.TrustScore, &u.ProfileComplete,
			&u.IdentityVerified, &u.CreatedAt); err != nil {
			return nil, err
		}
		result[u.ID] = u
	}
	return result, rows.Err()
}

// NewSourceFromEnv выбирает реализацию доступа к данным при конфигурации:
// DATA_ACCESS=raw включает низкоуровневый путь, иначе используется gorm
func NewSourceFromEnv(db *gorm.DB, dsn string) (Source, error) {
	if os.Getenv("DATA_ACCESS") == "raw" {
		return NewRawSource(dsn)
	}
	return NewStoreSource(db), nil
}
