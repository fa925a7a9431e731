package cache

import (
	"github.com/loyalty/backend/internal/domain/shared"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// NewIdempotencyStore returns a Redis-backed store when client is set and
// an in-memory store otherwise
func NewIdempotencyStore(client redis.UniversalClient, logger *zap.Logger) shared.IdempotencyStore {
	if client != nil {
		return NewRedisIdempotencyStore(client, "")
	}
	logger.Warn("Redis disabled, event idempotency is tracked per process")
	return NewInMemoryIdempotencyStore(0)
}
