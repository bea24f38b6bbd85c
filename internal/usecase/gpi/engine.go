package gpi

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"gpimon/internal/domain"
)

// engine samples the input pins of one Config and publishes every newly
// accepted value. It runs on its own goroutine until ctx is cancelled.
type engine struct {
	reg    *Register
	cfg    *Config
	bus    domain.EventBus
	logger *slog.Logger
	now    func() time.Time
}

func (e *engine) run(ctx context.Context) {
	mask := e.cfg.Input.Mask
	count := e.cfg.SampleCount
	p := newPacer(e.cfg.interval())

	var accepted uint64
	first := true
	for {
		// The first read of the worker's life is the only unpaced one.
		if !first && !p.wait(ctx) {
			return
		}
		first = false
		if ctx.Err() != nil {
			return
		}

		w := newWindow(e.reg.Read(mask))
		for i := 1; i < count; i++ {
			if !p.wait(ctx) {
				return
			}
			w.add(e.reg.Read(mask))
		}

		next := e.cfg.Filter.settle(w, accepted)
		if next == accepted {
			continue
		}
		if ctx.Err() != nil {
			return
		}
		accepted = next
		if err := e.publish(ctx, accepted); err != nil {
			if ctx.Err() == nil {
				e.logger.Warn("gpi change not delivered, stopping monitor",
					"value", domain.Mask(accepted).String(), "error", err)
			}
			return
		}
	}
}

func (e *engine) publish(ctx context.Context, value uint64) error {
	e.logger.Debug("gpi input accepted", "value", domain.Mask(value).String())
	err := e.bus.Publish(ctx, domain.Event{
		Source:    domain.SourceGPI,
		Type:      domain.EventGPIChange,
		Timestamp: e.now(),
		Payload:   EncodeValue(value),
	})
	if err != nil && errors.Is(err, domain.ErrBusFull) && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}
