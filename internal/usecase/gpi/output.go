package gpi

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"time"

	"gpimon/internal/domain"
)

// PayloadSize is the length of an encoded pin value.
const PayloadSize = 8

// EncodeValue encodes a 64-bit pin value as an event payload (little-endian).
func EncodeValue(v uint64) []byte {
	return binary.LittleEndian.AppendUint64(make([]byte, 0, PayloadSize), v)
}

// DecodeValue decodes an event payload produced by EncodeValue.
func DecodeValue(payload []byte) (uint64, error) {
	if len(payload) != PayloadSize {
		return 0, domain.NewSubSystemError("gpi", "DecodeValue", domain.ErrInvalidInput,
			fmt.Sprintf("payload is %d bytes, want %d", len(payload), PayloadSize))
	}
	return binary.LittleEndian.Uint64(payload), nil
}

// publishWrite queues an output request. It does not wait for the write.
func publishWrite(ctx context.Context, bus domain.EventBus, value uint64) error {
	return bus.Publish(ctx, domain.Event{
		Source:    domain.SourceGPI,
		Type:      domain.EventGPIWrite,
		Timestamp: time.Now(),
		Payload:   EncodeValue(value),
	})
}

// writeHandler applies gpi.write events to the output pins of cfg.
// It runs on the bus dispatch goroutine.
func writeHandler(reg *Register, cfg *Config, logger *slog.Logger) domain.EventHandler {
	return func(_ context.Context, ev domain.Event) {
		v, err := DecodeValue(ev.Payload)
		if err != nil {
			logger.Warn("dropping malformed gpi write", "source", ev.Source, "error", err)
			return
		}
		cfg.SetOutputValue(v)
		if cfg.Output.Mask == 0 {
			return
		}
		reg.Write(cfg.Output.Mask, v)
		logger.Debug("gpi output written", "mask", cfg.Output.Mask.String(), "value", domain.Mask(v).String())
	}
}

// OnChange subscribes fn to every accepted input value published on bus.
// Malformed change events are skipped. Returns an unsubscribe function.
func OnChange(bus domain.EventBus, fn func(ctx context.Context, value uint64)) (func(), error) {
	return bus.Subscribe(domain.EventGPIChange, func(ctx context.Context, ev domain.Event) {
		v, err := DecodeValue(ev.Payload)
		if err != nil {
			return
		}
		fn(ctx, v)
	})
}
