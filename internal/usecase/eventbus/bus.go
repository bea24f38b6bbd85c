package eventbus

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"gpimon/internal/domain"
)

// DefaultCapacity is the queue depth used when Config.Capacity is not positive.
const DefaultCapacity = 32

// Config holds bus settings.
type Config struct {
	Capacity int // queued events before Publish blocks (default: 32)
}

type subscription struct {
	id      uint64
	handler domain.EventHandler
}

// Bus is an in-process, goroutine-safe event bus with a bounded queue.
// A single dispatch goroutine delivers queued events to handlers in publish
// order; handlers therefore run sequentially and must not block for long.
type Bus struct {
	mu      sync.RWMutex
	typed   map[domain.EventType][]subscription
	allSubs []subscription
	nextID  atomic.Uint64
	logger  *slog.Logger

	queue     chan queued
	closing   chan struct{} // closed when Close starts; aborts blocked publishes
	done      chan struct{} // closed once no publish can enqueue any more
	stopped   chan struct{}
	closed    atomic.Bool
	closeOnce sync.Once

	// sendMu is held shared by Publish from the closed check through the
	// enqueue; Close takes it exclusively before closing done.
	sendMu sync.RWMutex
}

type queued struct {
	ctx   context.Context
	event domain.Event
}

// New creates an event bus and starts its dispatch goroutine.
func New(cfg Config, logger *slog.Logger) *Bus {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	b := &Bus{
		typed:   make(map[domain.EventType][]subscription),
		logger:  logger,
		queue:   make(chan queued, cfg.Capacity),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go b.loop()
	return b
}

// Publish queues an event. It blocks while the queue is full; if ctx ends
// first the event is dropped and ErrBusFull is returned.
func (b *Bus) Publish(ctx context.Context, event domain.Event) error {
	b.sendMu.RLock()
	defer b.sendMu.RUnlock()

	if b.closed.Load() {
		return domain.NewSubSystemError("eventbus", "Bus.Publish", domain.ErrBusClosed, string(event.Type))
	}

	q := queued{ctx: context.WithoutCancel(ctx), event: event}

	// Fast path so an already-expired ctx still succeeds when there is room.
	select {
	case b.queue <- q:
		return nil
	default:
	}

	select {
	case b.queue <- q:
		return nil
	case <-b.closing:
		return domain.NewSubSystemError("eventbus", "Bus.Publish", domain.ErrBusClosed, string(event.Type))
	case <-ctx.Done():
		return domain.NewSubSystemError("eventbus", "Bus.Publish", domain.ErrBusFull, string(event.Type)).WithCause(ctx.Err())
	}
}

func (b *Bus) loop() {
	defer close(b.stopped)
	for {
		select {
		case q := <-b.queue:
			b.deliver(q)
		case <-b.done:
			// Drain whatever was accepted before Close.
			for {
				select {
				case q := <-b.queue:
					b.deliver(q)
				default:
					return
				}
			}
		}
	}
}

func (b *Bus) deliver(q queued) {
	b.mu.RLock()
	typed := make([]subscription, len(b.typed[q.event.Type]))
	copy(typed, b.typed[q.event.Type])
	allSubs := make([]subscription, len(b.allSubs))
	copy(allSubs, b.allSubs)
	b.mu.RUnlock()

	for _, sub := range typed {
		b.dispatch(q, sub)
	}
	for _, sub := range allSubs {
		b.dispatch(q, sub)
	}
}

func (b *Bus) dispatch(q queued, sub subscription) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				"event", string(q.event.Type),
				"panic", r,
			)
		}
	}()
	sub.handler(q.ctx, q.event)
}

// Subscribe registers a handler for a specific event type.
// Returns an unsubscribe function.
func (b *Bus) Subscribe(eventType domain.EventType, handler domain.EventHandler) (func(), error) {
	if b.closed.Load() {
		return nil, domain.NewSubSystemError("eventbus", "Bus.Subscribe", domain.ErrBusClosed, string(eventType))
	}
	id := b.nextID.Add(1)
	sub := subscription{id: id, handler: handler}

	b.mu.Lock()
	b.typed[eventType] = append(b.typed[eventType], sub)
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.typed[eventType]
		for i, s := range subs {
			if s.id == id {
				b.typed[eventType] = append(subs[:i:i], subs[i+1:]...)
				return
			}
		}
	}, nil
}

// SubscribeAll registers a handler that receives every event.
// Returns an unsubscribe function.
func (b *Bus) SubscribeAll(handler domain.EventHandler) (func(), error) {
	if b.closed.Load() {
		return nil, domain.NewSubSystemError("eventbus", "Bus.SubscribeAll", domain.ErrBusClosed, "")
	}
	id := b.nextID.Add(1)
	sub := subscription{id: id, handler: handler}

	b.mu.Lock()
	b.allSubs = append(b.allSubs, sub)
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range b.allSubs {
			if s.id == id {
				b.allSubs = append(b.allSubs[:i:i], b.allSubs[i+1:]...)
				return
			}
		}
	}, nil
}

// Len reports the number of queued, undelivered events.
func (b *Bus) Len() int { return len(b.queue) }

// Close prevents new publishes and waits for queued events to be delivered.
// Every Publish that returned nil is delivered before Close returns.
// Close is idempotent and safe to call multiple times.
func (b *Bus) Close() {
	b.closeOnce.Do(func() {
		b.closed.Store(true)
		close(b.closing)
		b.sendMu.Lock()
		close(b.done)
		b.sendMu.Unlock()
	})
	<-b.stopped
}
