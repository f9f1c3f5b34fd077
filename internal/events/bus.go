// internal/events/bus.go
package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

var (
	// ErrBusClosed is returned by Publish after Shutdown.
	ErrBusClosed = errors.New("event bus is shutting down")

	// ErrBusFull is returned by Publish when the queue is full.
	ErrBusFull = errors.New("event queue full")
)

// Handler reacts to one event.
type Handler func(ctx context.Context, event Event) error

type handlerEntry struct {
	id uint64
	fn Handler
}

// Subscription is a registered handler. Unsubscribe is idempotent.
type Subscription struct {
	bus  *Bus
	typ  EventType
	id   uint64
	once sync.Once
}

// Unsubscribe removes the handler from the bus.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() { s.bus.remove(s.typ, s.id) })
}

// Bus fans lifecycle events out to handlers. Publish queues the event for a
// single delivery goroutine, so handlers see queued events in publish order.
// PublishSync delivers on the caller's goroutine. Handlers of one type run in
// subscription order and a panicking handler is reported as an error.
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType][]handlerEntry
	nextID   uint64
	closed   bool

	queue  chan Event
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	logger *zap.Logger

	published     atomic.Int64
	dropped       atomic.Int64
	handlerErrors atomic.Int64
}

// NewBus starts a bus whose async queue holds up to queueSize events.
func NewBus(logger *zap.Logger, queueSize int) *Bus {
	ctx, cancel := context.WithCancel(context.Background())
	b := &Bus{
		handlers: make(map[EventType][]handlerEntry),
		queue:    make(chan Event, queueSize),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
		logger:   logger.Named("event-bus"),
	}
	go b.deliverQueued()
	return b
}

// SubscribeFunc registers fn for events of eventType.
func (b *Bus) SubscribeFunc(eventType EventType, fn Handler) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.handlers[eventType] = append(b.handlers[eventType], handlerEntry{id: id, fn: fn})

	b.logger.Debug("Handler subscribed",
		zap.String("event_type", string(eventType)),
		zap.Uint64("handler_id", id))
	return &Subscription{bus: b, typ: eventType, id: id}
}

func (b *Bus) remove(eventType EventType, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	entries := b.handlers[eventType]
	for i, e := range entries {
		if e.id != id {
			continue
		}
		// In-flight deliveries keep the old slice.
		rest := make([]handlerEntry, 0, len(entries)-1)
		rest = append(rest, entries[:i]...)
		rest = append(rest, entries[i+1:]...)
		if len(rest) == 0 {
			delete(b.handlers, eventType)
		} else {
			b.handlers[eventType] = rest
		}
		break
	}
	b.logger.Debug("Handler unsubscribed",
		zap.String("event_type", string(eventType)),
		zap.Uint64("handler_id", id))
}

// Publish queues event for asynchronous delivery without blocking.
func (b *Bus) Publish(event Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrBusClosed
	}
	select {
	case b.queue <- event:
		b.published.Add(1)
		return nil
	default:
		b.dropped.Add(1)
		b.logger.Warn("Event queue full, dropping event",
			zap.String("event_type", string(event.Type())))
		return ErrBusFull
	}
}

// PublishSync delivers event to every handler before returning and joins
// their errors.
func (b *Bus) PublishSync(ctx context.Context, event Event) error {
	b.published.Add(1)
	return b.deliver(ctx, event)
}

func (b *Bus) deliver(ctx context.Context, event Event) error {
	b.mu.RLock()
	entries := b.handlers[event.Type()]
	b.mu.RUnlock()

	var errs []error
	for _, e := range entries {
		if err := invoke(ctx, e.fn, event); err != nil {
			b.handlerErrors.Add(1)
			b.logger.Error("Handler error",
				zap.String("event_type", string(event.Type())),
				zap.Uint64("handler_id", e.id),
				zap.Error(err))
			errs = append(errs, fmt.Errorf("handler %d: %w", e.id, err))
		}
	}
	return errors.Join(errs...)
}

func invoke(ctx context.Context, fn Handler, event Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return fn(ctx, event)
}

// deliverQueued runs until Shutdown, then drains what is left in the queue.
func (b *Bus) deliverQueued() {
	defer close(b.done)
	for event := range b.queue {
		_ = b.deliver(b.ctx, event)
	}
}

// Shutdown stops accepting events and waits for the queue to drain. When ctx
// expires first, in-flight handlers see their context cancelled.
func (b *Bus) Shutdown(ctx context.Context) error {
	b.mu.Lock()
	if !b.closed {
		b.closed = true
		close(b.queue)
	}
	b.mu.Unlock()

	b.logger.Info("Shutting down event bus", zap.Int("pending", len(b.queue)))
	defer b.cancel()

	select {
	case <-b.done:
		b.logger.Info("Event bus shutdown complete")
		return nil
	case <-ctx.Done():
		b.logger.Warn("Event bus shutdown timeout", zap.Int("pending", len(b.queue)))
		return ctx.Err()
	}
}

// Stats is a snapshot of bus usage.
type Stats struct {
	QueueSize       int
	Pending         int
	Published       int64
	Dropped         int64
	HandlerErrors   int64
	HandlersPerType map[EventType]int
}

// Stats returns counters and subscription counts.
func (b *Bus) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	st := Stats{
		QueueSize:       cap(b.queue),
		Pending:         len(b.queue),
		Published:       b.published.Load(),
		Dropped:         b.dropped.Load(),
		HandlerErrors:   b.handlerErrors.Load(),
		HandlersPerType: make(map[EventType]int, len(b.handlers)),
	}
	for typ, entries := range b.handlers {
		st.HandlersPerType[typ] = len(entries)
	}
	return st
}
