//go:build edge

package gpio

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"gpimon/internal/domain"
)

type periphPin struct {
	io  gpio.PinIO
	cfg domain.PinConfig
}

// PeriphBank drives pins through periph.io. Pins are resolved as GPIO<n>.
type PeriphBank struct {
	mu     sync.Mutex
	pins   map[int]*periphPin // configured pins
	shadow [2]uint32          // last driven output levels
	logger *slog.Logger
}

var _ Bank = (*PeriphBank)(nil)

// NewPeriphBank initializes periph.io and returns a hardware bank.
// Returns an error if periph.io host initialization fails.
func NewPeriphBank(logger *slog.Logger) (*PeriphBank, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}
	return &PeriphBank{
		pins:   make(map[int]*periphPin),
		logger: logger,
	}, nil
}

// resolvePin looks up a GPIO pin by number.
func resolvePin(pin int) (gpio.PinIO, error) {
	name := fmt.Sprintf("GPIO%d", pin)
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, domain.NewSubSystemError("gpio", "PeriphBank.Configure", domain.ErrNotFound,
			fmt.Sprintf("pin %d (%s) not found in hardware", pin, name))
	}
	return p, nil
}

func periphPull(p domain.Pull) gpio.Pull {
	switch p {
	case domain.PullUp:
		return gpio.PullUp
	case domain.PullDown:
		return gpio.PullDown
	default:
		return gpio.Float
	}
}

func periphEdge(i domain.Interrupt) gpio.Edge {
	switch i {
	case domain.InterruptRising:
		return gpio.RisingEdge
	case domain.InterruptFalling:
		return gpio.FallingEdge
	case domain.InterruptAnyEdge:
		return gpio.BothEdges
	default:
		return gpio.NoEdge
	}
}

// Configure applies cfg to every pin in cfg.Mask. Outputs start low.
func (b *PeriphBank) Configure(_ context.Context, cfg domain.PinConfig) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, pin := range cfg.Mask.Pins() {
		p, err := resolvePin(pin)
		if err != nil {
			return err
		}
		switch cfg.Direction {
		case domain.DirectionInput:
			if err := p.In(periphPull(cfg.Pull), periphEdge(cfg.Interrupt)); err != nil {
				return fmt.Errorf("set pin %d to input: %w", pin, err)
			}
		case domain.DirectionOutput:
			if err := p.Out(gpio.Low); err != nil {
				return fmt.Errorf("set pin %d to output: %w", pin, err)
			}
			word, bit := wordOf(pin)
			b.shadow[word] &^= 1 << bit
		default:
			delete(b.pins, pin)
			continue
		}
		b.pins[pin] = &periphPin{io: p, cfg: cfg}
	}
	return nil
}

func (b *PeriphBank) Input(word int) uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()

	var v uint32
	for pin, p := range b.pins {
		w, bit := wordOf(pin)
		if w != word || p.cfg.Direction != domain.DirectionInput {
			continue
		}
		if p.io.Read() == gpio.High {
			v |= 1 << bit
		}
	}
	return v
}

func (b *PeriphBank) Output(word int) uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.shadow[word]
}

// SetOutput drives every configured output pin of word whose level differs
// from the shadow register. Pin errors are logged; the shadow keeps the
// previous level of a pin that failed.
func (b *PeriphBank) SetOutput(word int, value uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()

	changed := b.shadow[word] ^ value
	for pin, p := range b.pins {
		w, bit := wordOf(pin)
		if w != word || p.cfg.Direction != domain.DirectionOutput || changed&(1<<bit) == 0 {
			continue
		}
		lvl := gpio.Low
		if value&(1<<bit) != 0 {
			lvl = gpio.High
		}
		if err := p.io.Out(lvl); err != nil {
			b.logger.Error("gpio write failed", "pin", pin, "error", err)
			continue
		}
		b.shadow[word] = b.shadow[word]&^(1<<bit) | value&(1<<bit)
	}
}

func (b *PeriphBank) ListPins() []PinInfo {
	b.mu.Lock()
	defer b.mu.Unlock()

	pins := make([]PinInfo, 0, len(b.pins))
	for num, p := range b.pins {
		info := PinInfo{Pin: num, Mode: p.cfg.Direction.String(), Pull: p.cfg.Pull.String()}
		if p.io.Read() == gpio.High {
			info.Value = 1
		}
		pins = append(pins, info)
	}
	sort.Slice(pins, func(i, j int) bool { return pins[i].Pin < pins[j].Pin })
	return pins
}

// Close returns every configured output to input so nothing stays driven.
func (b *PeriphBank) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var firstErr error
	for pin, p := range b.pins {
		if p.cfg.Direction != domain.DirectionOutput {
			continue
		}
		if err := p.io.In(gpio.Float, gpio.NoEdge); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("release pin %d: %w", pin, err)
		}
	}
	b.pins = make(map[int]*periphPin)
	return firstErr
}
