package event

import (
	"context"
	"encoding/binary"
	"sync"

	"github.com/loyalty/backend/internal/domain/shared"
	"go.uber.org/zap"
)

const (
	defaultWorkers    = 4
	defaultBufferSize = 256
)

// BusOptions configures the asynchronous dispatch of InMemoryEventBus
type BusOptions struct {
	Workers    int
	BufferSize int
}

type envelope struct {
	ctx   context.Context
	event shared.DomainEvent
}

// InMemoryEventBus implements EventBus with in-memory pub/sub.
//
// Before Start (and after Stop) events are dispatched synchronously. While
// running, each event is queued to the worker owning its aggregate, so events
// of one enrollment are handled in publish order. A full queue blocks the
// publisher until its worker catches up.
type InMemoryEventBus struct {
	registry *HandlerRegistry
	logger   *zap.Logger
	opts     BusOptions

	mu      sync.RWMutex
	running bool
	queues  []chan envelope
	wg      sync.WaitGroup
}

// NewInMemoryEventBus creates a new in-memory event bus
func NewInMemoryEventBus(logger *zap.Logger, opts BusOptions) *InMemoryEventBus {
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = defaultBufferSize
	}
	return &InMemoryEventBus{
		registry: NewHandlerRegistry(),
		logger:   logger,
		opts:     opts,
	}
}

// Publish hands events to their handlers. Handler failures are logged, never returned.
func (b *InMemoryEventBus) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	// Handlers outlive the request that produced the event.
	ctx = context.WithoutCancel(ctx)

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, event := range events {
		if !b.running {
			b.dispatch(ctx, event)
			continue
		}
		b.queues[b.shard(event)] <- envelope{ctx: ctx, event: event}
	}
	return nil
}

// Subscribe registers a handler for specific event types
func (b *InMemoryEventBus) Subscribe(handler shared.EventHandler, eventTypes ...string) {
	// If handler specifies its own event types, use those
	if len(eventTypes) == 0 {
		eventTypes = handler.EventTypes()
	}
	b.registry.Register(handler, eventTypes...)
	b.logger.Debug("handler subscribed",
		zap.Strings("event_types", eventTypes),
	)
}

// Unsubscribe removes a handler
func (b *InMemoryEventBus) Unsubscribe(handler shared.EventHandler) {
	b.registry.Unregister(handler)
	b.logger.Debug("handler unsubscribed")
}

// Start launches the dispatch workers. Calling Start twice is a no-op.
func (b *InMemoryEventBus) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		return nil
	}

	b.queues = make([]chan envelope, b.opts.Workers)
	for i := range b.queues {
		queue := make(chan envelope, b.opts.BufferSize)
		b.queues[i] = queue
		b.wg.Add(1)
		go b.work(queue)
	}
	b.running = true

	b.logger.Info("event bus started",
		zap.Int("workers", b.opts.Workers),
		zap.Int("buffer_size", b.opts.BufferSize),
	)
	return nil
}

// Stop closes the queues and waits for queued events to drain or ctx to expire
func (b *InMemoryEventBus) Stop(ctx context.Context) error {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return nil
	}
	b.running = false
	for _, queue := range b.queues {
		close(queue)
	}
	b.queues = nil
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		b.logger.Info("event bus stopped")
		return nil
	case <-ctx.Done():
		b.logger.Warn("event bus stop timed out with events still queued")
		return ctx.Err()
	}
}

func (b *InMemoryEventBus) work(queue <-chan envelope) {
	defer b.wg.Done()
	for env := range queue {
		b.dispatch(env.ctx, env.event)
	}
}

func (b *InMemoryEventBus) shard(event shared.DomainEvent) int {
	id := event.AggregateID()
	return int(binary.BigEndian.Uint32(id[12:]) % uint32(len(b.queues)))
}

func (b *InMemoryEventBus) dispatch(ctx context.Context, event shared.DomainEvent) {
	for _, handler := range b.registry.GetHandlers(event.EventType()) {
		if err := b.dispatchToHandler(ctx, handler, event); err != nil {
			// Log error but continue with other handlers
			b.logger.Error("handler failed to process event",
				zap.String("event_type", event.EventType()),
				zap.String("event_id", event.EventID().String()),
				zap.Error(err),
			)
		}
	}
}

// dispatchToHandler safely dispatches an event to a handler
func (b *InMemoryEventBus) dispatchToHandler(ctx context.Context, handler shared.EventHandler, event shared.DomainEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("handler panicked",
				zap.String("event_type", event.EventType()),
				zap.Any("panic", r),
			)
		}
	}()

	return handler.Handle(ctx, event)
}

// Ensure InMemoryEventBus implements EventBus
var _ shared.EventBus = (*InMemoryEventBus)(nil)
