package gpi

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"gpimon/internal/adapter/gpio"
	"gpimon/internal/domain"
)

func TestRegister_ReadCombinesWordsAndMasks(t *testing.T) {
	bank := gpio.NewSimBank()
	bank.SetInput(^domain.Mask(0), 0x8000_0001_0000_00F1)
	reg := NewRegister(bank)

	assert.Equal(t, uint64(0x8000_0001_0000_00F1), reg.Read(^domain.Mask(0)))
	assert.Equal(t, uint64(0x0000_0001_0000_0001), reg.Read(0x0000_0001_0000_000F))
	assert.Equal(t, uint64(0), reg.Read(0))
}

func TestRegister_WritePreservesBitsOutsideMask(t *testing.T) {
	bank := gpio.NewSimBank()
	bank.SetOutput(0, 0x0F0F_0F0F)
	bank.SetOutput(1, 0xF0F0_F0F0)
	reg := NewRegister(bank)

	reg.Write(0x0000_00FF_0000_00FF, 0xFFFF_FFAA_FFFF_FF55)

	assert.Equal(t, uint32(0x0F0F_0F55), bank.Output(0))
	assert.Equal(t, uint32(0xF0F0_F0AA), bank.Output(1))
}

func TestRegister_WriteSkipsUnselectedWord(t *testing.T) {
	bank := gpio.NewSimBank()
	reg := NewRegister(bank)

	reg.Write(0x3, 0x1)
	assert.Equal(t, 1, bank.Writes(), "only word 0 is touched")
	assert.Equal(t, uint32(0x1), bank.Output(0))

	reg.Write(0x1_0000_0000, 0x1_0000_0000)
	assert.Equal(t, 2, bank.Writes())
	assert.Equal(t, uint32(0x1), bank.Output(1))
	assert.Equal(t, uint32(0x1), bank.Output(0))

	reg.Write(0, ^uint64(0))
	assert.Equal(t, 2, bank.Writes(), "empty mask writes nothing")
}
