package gpio

import (
	"context"
	"sync"

	"gpimon/internal/domain"
)

// SimBank is an in-memory register file used when no hardware is attached
// and as the test double for the monitor.
type SimBank struct {
	mu         sync.Mutex
	level      uint64   // current input levels
	script     []uint64 // queued readings, consumed one per Input(0)
	reads      int
	output     [2]uint32
	writes     int
	configured []domain.PinConfig
	failErr    error
}

var _ Bank = (*SimBank)(nil)

// NewSimBank creates a bank with all inputs and outputs low.
func NewSimBank() *SimBank {
	return &SimBank{}
}

// SetInput drives the input bits selected by mask to the matching bits of value.
func (s *SimBank) SetInput(mask domain.Mask, value uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.level = s.level&^uint64(mask) | value&uint64(mask)
}

// Script queues raw 64-bit readings. Each Input(0) call consumes the next one,
// and Input(1) returns the high word of the same reading. Once the queue is
// empty the last reading is held.
func (s *SimBank) Script(samples ...uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.script = append(s.script, samples...)
}

// Pending returns the number of scripted readings not yet consumed.
func (s *SimBank) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.script)
}

// Reads returns the number of Input(0) calls so far.
func (s *SimBank) Reads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

func (s *SimBank) Input(word int) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if word == 0 {
		s.reads++
		if len(s.script) > 0 {
			s.level = s.script[0]
			s.script = s.script[1:]
		}
		return uint32(s.level)
	}
	return uint32(s.level >> 32)
}

func (s *SimBank) Output(word int) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.output[word]
}

func (s *SimBank) SetOutput(word int, value uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.output[word] = value
	s.writes++
}

// OutputValue returns both output words as one 64-bit value.
func (s *SimBank) OutputValue() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return uint64(s.output[0]) | uint64(s.output[1])<<32
}

// Writes returns the number of SetOutput calls so far.
func (s *SimBank) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

// FailConfigure makes every later Configure call return err. A nil err
// restores normal behavior.
func (s *SimBank) FailConfigure(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failErr = err
}

// Configure records cfg. It fails only when FailConfigure was set.
func (s *SimBank) Configure(_ context.Context, cfg domain.PinConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failErr != nil {
		return s.failErr
	}
	s.configured = append(s.configured, cfg)
	return nil
}

// Configured returns every descriptor passed to Configure, in call order.
func (s *SimBank) Configured() []domain.PinConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.PinConfig, len(s.configured))
	copy(out, s.configured)
	return out
}

func (s *SimBank) ListPins() []PinInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	modes := make(map[int]domain.PinConfig)
	for _, cfg := range s.configured {
		for _, p := range cfg.Mask.Pins() {
			modes[p] = cfg
		}
	}
	out := uint64(s.output[0]) | uint64(s.output[1])<<32

	var pins []PinInfo
	for p := 0; p < domain.MaxPins; p++ {
		cfg, ok := modes[p]
		if !ok || cfg.Direction == domain.DirectionDisabled {
			continue
		}
		info := PinInfo{Pin: p, Mode: cfg.Direction.String(), Pull: cfg.Pull.String()}
		if cfg.Direction == domain.DirectionOutput {
			info.Value = level(out, p)
		} else {
			info.Value = level(s.level, p)
		}
		pins = append(pins, info)
	}
	return pins
}

func (s *SimBank) Close() error { return nil }
