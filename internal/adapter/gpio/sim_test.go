package gpio

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gpimon/internal/domain"
)

func TestSimBank_SetInput(t *testing.T) {
	b := NewSimBank()
	b.SetInput(0x0000_0001_0000_0003, 0xFFFF_FFFF_FFFF_FFFF)
	assert.Equal(t, uint32(0x3), b.Input(0))
	assert.Equal(t, uint32(0x1), b.Input(1))

	b.SetInput(0x1, 0)
	assert.Equal(t, uint32(0x2), b.Input(0))
}

func TestSimBank_ScriptConsumedPerLowWordRead(t *testing.T) {
	b := NewSimBank()
	b.Script(0x1_0000_0001, 0x2, 0x3)
	require.Equal(t, 3, b.Pending())

	assert.Equal(t, uint32(0x1), b.Input(0))
	assert.Equal(t, uint32(0x1), b.Input(1), "high word belongs to the same reading")
	assert.Equal(t, uint32(0x1), b.Input(1), "high word reads do not consume")
	assert.Equal(t, uint32(0x2), b.Input(0))
	assert.Equal(t, uint32(0x0), b.Input(1))
	assert.Equal(t, uint32(0x3), b.Input(0))

	// Exhausted: last reading is held.
	assert.Equal(t, uint32(0x3), b.Input(0))
	assert.Equal(t, 0, b.Pending())
	assert.Equal(t, 4, b.Reads())
}

func TestSimBank_Outputs(t *testing.T) {
	b := NewSimBank()
	b.SetOutput(0, 0xA)
	b.SetOutput(1, 0xB)
	assert.Equal(t, uint32(0xA), b.Output(0))
	assert.Equal(t, uint32(0xB), b.Output(1))
	assert.Equal(t, uint64(0xB_0000_000A), b.OutputValue())
	assert.Equal(t, 2, b.Writes())
}

func TestSimBank_Configure(t *testing.T) {
	b := NewSimBank()
	in := domain.PinConfig{Mask: 0x3, Direction: domain.DirectionInput, Pull: domain.PullUp}
	out := domain.PinConfig{Mask: 0x1_0000_0000, Direction: domain.DirectionOutput}

	require.NoError(t, b.Configure(context.Background(), in))
	require.NoError(t, b.Configure(context.Background(), out))
	assert.Equal(t, []domain.PinConfig{in, out}, b.Configured())

	boom := errors.New("boom")
	b.FailConfigure(boom)
	assert.ErrorIs(t, b.Configure(context.Background(), in), boom)
	assert.Len(t, b.Configured(), 2)

	b.FailConfigure(nil)
	assert.NoError(t, b.Configure(context.Background(), in))
}

func TestSimBank_ListPins(t *testing.T) {
	b := NewSimBank()
	require.NoError(t, b.Configure(context.Background(), domain.PinConfig{Mask: 0x5, Direction: domain.DirectionInput, Pull: domain.PullDown}))
	require.NoError(t, b.Configure(context.Background(), domain.PinConfig{Mask: 1 << 40, Direction: domain.DirectionOutput}))
	b.SetInput(0x4, 0x4)
	b.SetOutput(1, 1<<8)

	pins := b.ListPins()
	require.Len(t, pins, 3)
	assert.Equal(t, PinInfo{Pin: 0, Mode: "input", Pull: "down", Value: 0}, pins[0])
	assert.Equal(t, PinInfo{Pin: 2, Mode: "input", Pull: "down", Value: 1}, pins[1])
	assert.Equal(t, PinInfo{Pin: 40, Mode: "output", Pull: "none", Value: 1}, pins[2])
}
