package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/libraryops/patron-blocks/internal/models"
	"github.com/libraryops/patron-blocks/pkg/logger"
)

const automatedKeyPrefix = "patron_blocks:automated:"

// AutomatedSource lists the automated blocks of a patron.
type AutomatedSource interface {
	ListAutomatedBlocks(ctx context.Context, patronID string, limit int) ([]models.AutomatedBlock, error)
}

// AutomatedBlockCache caches automated blocks in Redis in front of the policy engine.
// Cache failures fall through to the source.
type AutomatedBlockCache struct {
	redisClient *redis.Client
	source      AutomatedSource
	ttl         time.Duration
}

// NewAutomatedBlockCache creates a new AutomatedBlockCache.
func NewAutomatedBlockCache(redisClient *redis.Client, source AutomatedSource, ttl time.Duration) *AutomatedBlockCache {
	return &AutomatedBlockCache{
		redisClient: redisClient,
		source:      source,
		ttl:         ttl,
	}
}

func automatedKey(patronID string, limit int) string {
	return fmt.Sprintf("%s%s:%d", automatedKeyPrefix, patronID, limit)
}

// ListAutomatedBlocks returns the cached list or loads and caches it.
func (c *AutomatedBlockCache) ListAutomatedBlocks(
	ctx context.Context,
	patronID string,
	limit int,
) ([]models.AutomatedBlock, error) {
	key := automatedKey(patronID, limit)

	raw, err := c.redisClient.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var cached []models.AutomatedBlock
		if jsonErr := json.Unmarshal(raw, &cached); jsonErr == nil {
			automatedCacheRequests.WithLabelValues("hit").Inc()
			return cached, nil
		}
		logger.Log.Warn("Dropping unreadable automated blocks cache entry", zap.String("key", key))
	case errors.Is(err, redis.Nil):
	default:
		logger.Log.Warn("Automated blocks cache unavailable", zap.Error(err), zap.String("key", key))
	}
	automatedCacheRequests.WithLabelValues("miss").Inc()

	blocks, err := c.source.ListAutomatedBlocks(ctx, patronID, limit)
	if err != nil {
		return nil, err
	}
	if blocks == nil {
		blocks = []models.AutomatedBlock{}
	}

	if payload, err := json.Marshal(blocks); err == nil {
		if err := c.redisClient.Set(ctx, key, payload, c.ttl).Err(); err != nil {
			logger.Log.Warn("Failed to cache automated blocks", zap.Error(err), zap.String("key", key))
		}
	}

	return blocks, nil
}
