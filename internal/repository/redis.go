package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/TaroHarado/copytrade-key/internal/config"
)

// NewRedisClient connects with a short ping deadline so a missing Redis
// fails fast at startup instead of on the first signing request.
func NewRedisClient(cfg config.RedisConfig) (*redis.Client, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis addr not configured")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// RedisUsageStore accumulates per-user daily USDC volume under date-scoped
// keys so counters survive restarts and are shared across replicas. Keys
// expire two days out; the day boundary is UTC.
type RedisUsageStore struct {
	client *redis.Client
	prefix string
}

func NewRedisUsageStore(client *redis.Client) *RedisUsageStore {
	return &RedisUsageStore{client: client, prefix: "usage"}
}

func (s *RedisUsageStore) GetDailyVolume(ctx context.Context, userID int64) (float64, error) {
	volume, err := s.client.Get(ctx, s.makeKey(userID)).Float64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return volume, nil
}

func (s *RedisUsageStore) AddDailyVolume(ctx context.Context, userID int64, amountUSDC float64) error {
	key := s.makeKey(userID)
	if err := s.client.IncrByFloat(ctx, key, amountUSDC).Err(); err != nil {
		return err
	}
	return s.client.Expire(ctx, key, 48*time.Hour).Err()
}

func (s *RedisUsageStore) makeKey(userID int64) string {
	date := time.Now().UTC().Format("2006-01-02")
	return fmt.Sprintf("%s:%d:%s", s.prefix, userID, date)
}
