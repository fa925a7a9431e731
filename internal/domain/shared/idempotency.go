package shared

import (
	"context"
	"time"
)

// IdempotencyStore remembers processed keys so that at-least-once delivery
// does not turn into duplicate side effects.
type IdempotencyStore interface {
	// MarkProcessed records key with a TTL.
	// Returns true if the key was newly marked, false if it was already present.
	MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// IsProcessed checks if key has already been recorded
	IsProcessed(ctx context.Context, key string) (bool, error)

	Close() error
}
