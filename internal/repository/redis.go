package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"turfbook/internal/config"
	"turfbook/internal/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var errNilClient = errors.New("redis client is nil")

// NewRedisClient создает новый клиент Redis на основе конфигурации
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

func dayKey(venueID int64, date time.Time) string {
	return fmt.Sprintf("availability:%d:%s", venueID, date.Format(time.DateOnly))
}

func venuePattern(venueID int64) string {
	return fmt.Sprintf("availability:%d:*", venueID)
}

// RedisAvailabilityCache хранит снимки дня в JSON с TTL.
type RedisAvailabilityCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisAvailabilityCache(client *redis.Client, ttl time.Duration) *RedisAvailabilityCache {
	return &RedisAvailabilityCache{client: client, ttl: ttl}
}

func (r *RedisAvailabilityCache) GetDay(ctx context.Context, venueID int64, date time.Time) (*models.DaySnapshot, error) {
	if r.client == nil {
		return nil, errNilClient
	}
	val, err := r.client.Get(ctx, dayKey(venueID, date)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot from redis: %w", err)
	}

	var snap models.DaySnapshot
	if err := json.Unmarshal(val, &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

func (r *RedisAvailabilityCache) SetDay(ctx context.Context, snap *models.DaySnapshot) error {
	if r.client == nil {
		return errNilClient
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	if err := r.client.Set(ctx, dayKey(snap.VenueID, snap.Date), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set snapshot in redis: %w", err)
	}
	return nil
}

func (r *RedisAvailabilityCache) InvalidateDay(ctx context.Context, venueID int64, date time.Time) error {
	if r.client == nil {
		return errNilClient
	}
	if err := r.client.Del(ctx, dayKey(venueID, date)).Err(); err != nil {
		return fmt.Errorf("failed to delete snapshot from redis: %w", err)
	}
	return nil
}

// InvalidateVenue сбрасывает все закэшированные дни площадки.
func (r *RedisAvailabilityCache) InvalidateVenue(ctx context.Context, venueID int64) error {
	if r.client == nil {
		return errNilClient
	}
	iter := r.client.Scan(ctx, 0, venuePattern(venueID), 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan venue snapshots: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete venue snapshots: %w", err)
	}
	return nil
}

// releaseScript удаляет ключ только если значение совпадает с токеном владельца
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisSlotLocker захватывает слоты через SET NX PX.
type RedisSlotLocker struct {
	client *redis.Client
	prefix string
}

func NewRedisSlotLocker(client *redis.Client) *RedisSlotLocker {
	return &RedisSlotLocker{client: client, prefix: "slot_hold:"}
}

func (r *RedisSlotLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	if r.client == nil {
		return "", false, errNilClient
	}
	token := uuid.NewString()
	ok, err := r.client.SetNX(ctx, r.prefix+key, token, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("failed to acquire hold %s: %w", key, err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

func (r *RedisSlotLocker) Release(ctx context.Context, key, token string) error {
	if r.client == nil {
		return errNilClient
	}
	if err := releaseScript.Run(ctx, r.client, []string{r.prefix + key}, token).Err(); err != nil {
		return fmt.Errorf("failed to release hold %s: %w", key, err)
	}
	return nil
}

// Ping проверяет соединение с Redis
func Ping(ctx context.Context, client *redis.Client) error {
	if client == nil {
		return errNilClient
	}
	if _, err := client.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

// Close закрывает соединение с Redis
func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
