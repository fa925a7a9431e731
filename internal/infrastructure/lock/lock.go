// Package lock serialises work on one key across API instances with a
// Redis mutex (redsync).
package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/loyalty/backend/internal/domain/shared"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Options tunes mutex acquisition
type Options struct {
	Prefix     string
	Expiry     time.Duration
	Tries      int
	RetryDelay time.Duration
}

// DefaultOptions returns the ledger defaults
func DefaultOptions() Options {
	return Options{
		Prefix:     "loyalty:lock:enrollment:",
		Expiry:     5 * time.Second,
		Tries:      32,
		RetryDelay: 25 * time.Millisecond,
	}
}

// RedisLocker holds a redsync mutex for the duration of fn
type RedisLocker struct {
	rs     *redsync.Redsync
	opts   Options
	logger *zap.Logger
}

// NewRedisLocker creates a locker on client
func NewRedisLocker(client redis.UniversalClient, opts Options, logger *zap.Logger) *RedisLocker {
	defaults := DefaultOptions()
	if opts.Prefix == "" {
		opts.Prefix = defaults.Prefix
	}
	if opts.Expiry <= 0 {
		opts.Expiry = defaults.Expiry
	}
	if opts.Tries < 1 {
		opts.Tries = defaults.Tries
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = defaults.RetryDelay
	}
	return &RedisLocker{
		rs:     redsync.New(goredis.NewPool(client)),
		opts:   opts,
		logger: logger,
	}
}

// WithLock runs fn while holding the mutex for key. Failing to acquire the
// mutex within the configured tries is shared.ErrConcurrencyConflict.
func (l *RedisLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	mutex := l.rs.NewMutex(l.opts.Prefix+key,
		redsync.WithExpiry(l.opts.Expiry),
		redsync.WithTries(l.opts.Tries),
		redsync.WithRetryDelay(l.opts.RetryDelay),
	)

	if err := mutex.LockContext(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return shared.ErrConcurrencyConflict.
			WithMessage("enrollment is locked by another request").
			Wrap(fmt.Errorf("acquire lock %s: %w", key, err))
	}

	defer func() {
		// A fresh context so a cancelled request still releases the mutex.
		unlockCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if ok, err := mutex.UnlockContext(unlockCtx); err != nil || !ok {
			l.logger.Warn("Failed to release lock",
				zap.String("key", key),
				zap.Bool("held", ok),
				zap.Error(err),
			)
		}
	}()

	return fn(ctx)
}

// NoopLocker runs fn directly. Used when Redis is disabled; the database row
// lock still serialises writers.
type NoopLocker struct{}

// WithLock runs fn
func (NoopLocker) WithLock(ctx context.Context, _ string, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
