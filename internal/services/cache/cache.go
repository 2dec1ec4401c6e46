package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

// Service представляет сервис кэширования поверх Redis.
// При отсутствии Redis кэш отключен и все операции становятся пустыми.
type Service struct {
	redisClient *redis.Client
	ttl         time.Duration
	enabled     bool
}

// New создает сервис кэширования. redisClient может быть nil.
func New(redisClient *redis.Client) *Service {
	if redisClient == nil {
		return &Service{enabled: false}
	}

	// Получаем TTL для кэша
	ttl := 3600 // 1 час по умолчанию
	if val, err := strconv.Atoi(os.Getenv("CACHE_TTL_SECONDS")); err == nil && val > 0 {
		ttl = val
	}

	return &Service{
		redisClient: redisClient,
		ttl:         time.Duration(ttl) * time.Second,
		enabled:     true,
	}
}

// Get получает данные из кэша
func (c *Service) Get(ctx context.Context, key string, result interface{}) (bool, error) {
	if !c.enabled {
		return false, nil
	}

	val, err := c.redisClient.Get(ctx, key).Result()
	if err == redis.Nil {
		// Ключ не найден в кэше
		return false, nil
	} else if err != nil {
		return false, fmt.Errorf("ошибка при получении данных из кэша: %w", err)
	}

	// Десериализуем данные из JSON
	if err := json.Unmarshal([]byte(val), result); err != nil {
		return false, fmt.Errorf("ошибка при десериализации данных из кэша: %w", err)
	}

	return true, nil
}

// Set сохраняет данные в кэш
func (c *Service) Set(ctx context.Context, key string, value interface{}) error {
	if !c.enabled {
		return nil
	}

	// Сериализуем данные в JSON
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("ошибка при сериализации данных для кэша: %w", err)
	}

	// Сохраняем данные в Redis
	if err := c.redisClient.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("ошибка при сохранении данных в кэш: %w", err)
	}

	return nil
}

// Delete удаляет ключ из кэша
func (c *Service) Delete(ctx context.Context, key string) error {
	if !c.enabled {
		return nil
	}
	return c.redisClient.Del(ctx, key).Err()
}

// TrustScoreKey генерирует ключ для кэша рейтинга доверия
func (c *Service) TrustScoreKey(userID uint) string {
	return fmt.Sprintf("trust_score:%d", userID)
}
