package gpi

import (
	"fmt"
	"strings"

	"gpimon/internal/domain"
)

// Filter decides which value a completed settling window yields.
type Filter int

const (
	// FilterWindow accepts a window only when every sample in it is identical.
	FilterWindow Filter = iota
	// FilterBitwise accepts each bit that held one level for the whole window;
	// bits that toggled keep their previously accepted level.
	FilterBitwise
	// FilterAND keeps a bit set only if it read 1 in every sample.
	FilterAND
)

func (f Filter) String() string {
	switch f {
	case FilterBitwise:
		return "bitwise"
	case FilterAND:
		return "and"
	default:
		return "window"
	}
}

// ParseFilter converts a config string to a Filter. Empty means FilterWindow.
func ParseFilter(s string) (Filter, error) {
	switch strings.ToLower(s) {
	case "", "window":
		return FilterWindow, nil
	case "bitwise":
		return FilterBitwise, nil
	case "and":
		return FilterAND, nil
	}
	return FilterWindow, domain.NewDomainError("gpi.ParseFilter", domain.ErrInvalidInput,
		fmt.Sprintf("filter %q (want: window, bitwise, and)", s))
}

// window accumulates the samples of one settling window.
type window struct {
	and uint64 // bits that were 1 in every sample
	or  uint64 // bits that were 1 in at least one sample
}

func newWindow(v uint64) window { return window{and: v, or: v} }

func (w *window) add(v uint64) {
	w.and &= v
	w.or |= v
}

// settle returns the value a window yields given the currently accepted value.
func (f Filter) settle(w window, accepted uint64) uint64 {
	switch f {
	case FilterBitwise:
		stable := ^(w.and ^ w.or)
		return accepted&^stable | w.and&stable
	case FilterAND:
		return w.and
	default:
		if w.and != w.or {
			return accepted
		}
		return w.and
	}
}
