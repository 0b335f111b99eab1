package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"nightloom/server/internal/config"
)

type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(cfg config.RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisStore{client: client}, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) GetClient() *redis.Client {
	return s.client
}

// Helper methods for common operations. Set and Get also satisfy the
// graph persistence KV interface.
func (s *RedisStore) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return s.client.Set(ctx, key, value, expiration).Err()
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	return s.client.Get(ctx, key).Result()
}

func (s *RedisStore) Del(ctx context.Context, keys ...string) error {
	return s.client.Del(ctx, keys...).Err()
}

func (s *RedisStore) Exists(ctx context.Context, keys ...string) (int64, error) {
	return s.client.Exists(ctx, keys...).Result()
}

func (s *RedisStore) Expire(ctx context.Context, key string, expiration time.Duration) error {
	return s.client.Expire(ctx, key, expiration).Err()
}

// Turn feed storage
const (
	turnFeedKey      = "turns:feed"
	turnFeedMaxSize  = 10000
	turnFeedDedupKey = "turns:dedup"
	turnFeedDedupTTL = 5 * time.Minute
	turnFeedTTL      = 24 * time.Hour
)

// TurnEvent is one committed narrative turn in the activity feed.
type TurnEvent struct {
	SessionID string `json:"session_id"`
	Turn      int    `json:"turn"`
	SceneID   string `json:"scene_id"`
	Speaker   string `json:"speaker"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}

// StoreTurnEvent appends a committed turn to the activity feed.
func (s *RedisStore) StoreTurnEvent(ctx context.Context, event TurnEvent) error {
	dedupKey := fmt.Sprintf("%s:%s:%d", turnFeedDedupKey, event.SessionID, event.Turn)
	exists, err := s.Exists(ctx, dedupKey)
	if err != nil {
		return fmt.Errorf("failed to check dedup: %w", err)
	}
	if exists > 0 {
		return nil
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal turn event: %w", err)
	}

	if err := s.client.LPush(ctx, turnFeedKey, data).Err(); err != nil {
		return fmt.Errorf("failed to push turn event: %w", err)
	}
	if err := s.client.LTrim(ctx, turnFeedKey, 0, int64(turnFeedMaxSize-1)).Err(); err != nil {
		return fmt.Errorf("failed to trim turn feed: %w", err)
	}
	if err := s.Set(ctx, dedupKey, "1", turnFeedDedupTTL); err != nil {
		return fmt.Errorf("failed to set dedup key: %w", err)
	}
	// Feed TTL is best effort.
	_ = s.client.Expire(ctx, turnFeedKey, turnFeedTTL).Err()

	return nil
}

// GetRecentTurnEvents returns the newest events from the feed.
func (s *RedisStore) GetRecentTurnEvents(ctx context.Context, limit int64) ([]TurnEvent, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	results, err := s.client.LRange(ctx, turnFeedKey, 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read turn feed: %w", err)
	}

	events := make([]TurnEvent, 0, len(results))
	for _, result := range results {
		var event TurnEvent
		if err := json.Unmarshal([]byte(result), &event); err != nil {
			continue
		}
		events = append(events, event)
	}
	return events, nil
}

// ClearTurnFeed drops the whole feed.
func (s *RedisStore) ClearTurnFeed(ctx context.Context) error {
	return s.Del(ctx, turnFeedKey)
}
