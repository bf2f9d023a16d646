package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const activeRecordKeyPrefix = "patron_blocks:active_record:"

// ErrNoActiveRecord is returned when a patron has no active record.
var ErrNoActiveRecord = errors.New("no active record")

// clearIfMatches deletes the key only when it still holds the expected block id.
var clearIfMatches = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// ActiveRecords stores which manual block is currently being removed for a patron.
type ActiveRecords interface {
	Set(ctx context.Context, patronID, blockID string) error
	Get(ctx context.Context, patronID string) (string, error)
	Clear(ctx context.Context, patronID, blockID string) error
}

// ActiveRecordStore keeps active records in Redis with a TTL.
type ActiveRecordStore struct {
	redisClient *redis.Client
	ttl         time.Duration
}

// NewActiveRecordStore creates a new ActiveRecordStore.
func NewActiveRecordStore(redisClient *redis.Client, ttl time.Duration) *ActiveRecordStore {
	return &ActiveRecordStore{redisClient: redisClient, ttl: ttl}
}

// Set points the patron's active record at blockID.
func (s *ActiveRecordStore) Set(ctx context.Context, patronID, blockID string) error {
	if err := s.redisClient.Set(ctx, activeRecordKeyPrefix+patronID, blockID, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set active record: %w", err)
	}
	return nil
}

// Get returns the block id of the patron's active record.
func (s *ActiveRecordStore) Get(ctx context.Context, patronID string) (string, error) {
	id, err := s.redisClient.Get(ctx, activeRecordKeyPrefix+patronID).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNoActiveRecord
	}
	if err != nil {
		return "", fmt.Errorf("failed to get active record: %w", err)
	}
	return id, nil
}

// Clear removes the active record if it still points at blockID.
func (s *ActiveRecordStore) Clear(ctx context.Context, patronID, blockID string) error {
	if err := clearIfMatches.Run(ctx, s.redisClient, []string{activeRecordKeyPrefix + patronID}, blockID).Err(); err != nil &&
		!errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to clear active record: %w", err)
	}
	return nil
}
