package domain

import (
	"context"
	"fmt"
	"math/bits"
	"strings"
)

// MaxPins is the width of a pin mask: two 32-bit hardware words.
const MaxPins = 64

// Mask selects pins; bit n set means pin n participates.
type Mask uint64

// MaskOf builds a mask from pin numbers.
func MaskOf(pins ...int) (Mask, error) {
	var m Mask
	for _, p := range pins {
		if p < 0 || p >= MaxPins {
			return 0, NewSubSystemError("gpio", "MaskOf", ErrInvalidInput,
				fmt.Sprintf("pin %d outside 0..%d", p, MaxPins-1))
		}
		m |= 1 << uint(p)
	}
	return m, nil
}

// Low returns the bits for pins 0-31.
func (m Mask) Low() uint32 { return uint32(m) }

// High returns the bits for pins 32-63.
func (m Mask) High() uint32 { return uint32(m >> 32) }

// Has reports whether pin is selected.
func (m Mask) Has(pin int) bool {
	return pin >= 0 && pin < MaxPins && m&(1<<uint(pin)) != 0
}

// Pins lists the selected pin numbers in ascending order.
func (m Mask) Pins() []int {
	pins := make([]int, 0, bits.OnesCount64(uint64(m)))
	for v := uint64(m); v != 0; v &= v - 1 {
		pins = append(pins, bits.TrailingZeros64(v))
	}
	return pins
}

func (m Mask) String() string { return fmt.Sprintf("0x%016x", uint64(m)) }

// Direction of a pin.
type Direction int

const (
	DirectionDisabled Direction = iota
	DirectionInput
	DirectionOutput
)

func (d Direction) String() string {
	switch d {
	case DirectionInput:
		return "input"
	case DirectionOutput:
		return "output"
	default:
		return "disabled"
	}
}

// Pull selects the internal bias resistor.
type Pull int

const (
	PullNone Pull = iota
	PullUp
	PullDown
)

func (p Pull) String() string {
	switch p {
	case PullUp:
		return "up"
	case PullDown:
		return "down"
	default:
		return "none"
	}
}

// ParsePull converts a config string to a Pull.
func ParsePull(s string) (Pull, error) {
	switch strings.ToLower(s) {
	case "", "none", "float":
		return PullNone, nil
	case "up":
		return PullUp, nil
	case "down":
		return PullDown, nil
	}
	return PullNone, NewSubSystemError("gpio", "ParsePull", ErrInvalidInput, fmt.Sprintf("pull %q", s))
}

// Interrupt selects edge detection on inputs.
type Interrupt int

const (
	InterruptDisabled Interrupt = iota
	InterruptRising
	InterruptFalling
	InterruptAnyEdge
)

func (i Interrupt) String() string {
	switch i {
	case InterruptRising:
		return "rising"
	case InterruptFalling:
		return "falling"
	case InterruptAnyEdge:
		return "any"
	default:
		return "disabled"
	}
}

// ParseInterrupt converts a config string to an Interrupt.
func ParseInterrupt(s string) (Interrupt, error) {
	switch strings.ToLower(s) {
	case "", "disabled", "none":
		return InterruptDisabled, nil
	case "rising":
		return InterruptRising, nil
	case "falling":
		return InterruptFalling, nil
	case "any", "both":
		return InterruptAnyEdge, nil
	}
	return InterruptDisabled, NewSubSystemError("gpio", "ParseInterrupt", ErrInvalidInput, fmt.Sprintf("interrupt %q", s))
}

// PinConfig describes how every pin in Mask is configured. All pins of a mask
// share one configuration.
type PinConfig struct {
	Mask      Mask
	Direction Direction
	Pull      Pull
	Interrupt Interrupt
}

// PinConfigurator applies a pin descriptor to hardware.
type PinConfigurator interface {
	Configure(ctx context.Context, cfg PinConfig) error
}

// RegisterBank is the raw two-word GPIO register file. Word 0 holds pins 0-31,
// word 1 holds pins 32-63. Implementations must be safe for concurrent use.
type RegisterBank interface {
	// Input returns the live input levels of a word.
	Input(word int) uint32
	// Output returns the current output latch of a word.
	Output(word int) uint32
	// SetOutput replaces the output latch of a word.
	SetOutput(word int, value uint32)
}
