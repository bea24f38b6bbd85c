package gpi

import (
	"sync"

	"gpimon/internal/domain"
)

// Register translates 64-bit logical pin masks into reads and writes of the
// two 32-bit words of a RegisterBank. Word 0 carries pins 0-31, word 1 pins 32-63.
type Register struct {
	bank domain.RegisterBank
	mu   sync.Mutex // serializes read-modify-write of the output latches
}

// NewRegister wraps bank.
func NewRegister(bank domain.RegisterBank) *Register {
	return &Register{bank: bank}
}

// Read returns the live input levels restricted to mask. Bits outside mask are zero.
func (r *Register) Read(mask domain.Mask) uint64 {
	lo := uint64(r.bank.Input(0))
	hi := uint64(r.bank.Input(1))
	return (lo | hi<<32) & uint64(mask)
}

// Write sets the output bits selected by mask to the matching bits of value.
// Bits outside mask keep their current level; a word with no selected bits
// is left untouched.
func (r *Register) Write(mask domain.Mask, value uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for word, m := range [2]uint32{mask.Low(), mask.High()} {
		if m == 0 {
			continue
		}
		v := uint32(value >> (32 * word))
		cur := r.bank.Output(word)
		r.bank.SetOutput(word, cur&^m|v&m)
	}
}
