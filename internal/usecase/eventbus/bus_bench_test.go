package eventbus

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"gpimon/internal/domain"
)

// BenchmarkEventBusPublish benchmarks the hot path: publishing change events to one subscriber.
func BenchmarkEventBusPublish(b *testing.B) {
	bus := New(Config{Capacity: 256}, slog.Default())
	ctx := context.Background()
	event := domain.Event{
		Source:    domain.SourceGPI,
		Type:      domain.EventGPIChange,
		Timestamp: time.Now(),
		Payload:   make([]byte, 8),
	}

	bus.Subscribe(domain.EventGPIChange, func(_ context.Context, _ domain.Event) {})

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		bus.Publish(ctx, event)
	}

	bus.Close()
}

// BenchmarkEventBusPublishMultipleSubscribers benchmarks with multiple subscribers.
func BenchmarkEventBusPublishMultipleSubscribers(b *testing.B) {
	bus := New(Config{Capacity: 256}, slog.Default())
	ctx := context.Background()
	event := domain.Event{
		Source:    domain.SourceGPI,
		Type:      domain.EventGPIChange,
		Timestamp: time.Now(),
		Payload:   make([]byte, 8),
	}

	for i := 0; i < 10; i++ {
		bus.Subscribe(domain.EventGPIChange, func(_ context.Context, _ domain.Event) {})
	}
	bus.SubscribeAll(func(_ context.Context, _ domain.Event) {})

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		bus.Publish(ctx, event)
	}

	bus.Close()
}
