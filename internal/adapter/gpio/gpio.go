// Package gpio provides the register banks the monitor samples and drives:
// an in-memory SimBank, and periph.io and Linux character-device backends
// in edge builds.
package gpio

import "gpimon/internal/domain"

// Bank is a two-word register file that can also configure its pins.
type Bank interface {
	domain.RegisterBank
	domain.PinConfigurator
	// ListPins describes every configured pin in ascending pin order.
	ListPins() []PinInfo
	Close() error
}

// PinInfo describes a configured pin's current state.
type PinInfo struct {
	Pin   int    `json:"pin"`
	Mode  string `json:"mode"`  // "input", "output"
	Pull  string `json:"pull"`  // "none", "up", "down"
	Value int    `json:"value"` // 0 or 1
}

// level returns bit pin of v as 0 or 1.
func level(v uint64, pin int) int {
	return int(v >> uint(pin) & 1)
}

// wordOf splits a pin number into its register word and bit.
func wordOf(pin int) (word int, bit uint) {
	return pin / 32, uint(pin % 32)
}

// linePlan says how a line request for a mask relates to the requests a bank
// already holds. Held masks never overlap each other.
type linePlan struct {
	reuse   int   // index of a held request on exactly the same mask, or -1
	release []int // indexes of other held requests sharing pins with the mask, descending
}

func planLines(held []domain.Mask, m domain.Mask) linePlan {
	p := linePlan{reuse: -1}
	for i := len(held) - 1; i >= 0; i-- {
		switch {
		case held[i] == m:
			p.reuse = i
		case held[i]&m != 0:
			p.release = append(p.release, i)
		}
	}
	return p
}
