//go:build edge && linux

package gpio

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync"

	"github.com/warthog618/go-gpiocdev"

	"gpimon/internal/domain"
)

// DefaultChip is the character device used when none is configured.
const DefaultChip = "gpiochip0"

type cdevRequest struct {
	lines   *gpiocdev.Lines
	offsets []int
	cfg     domain.PinConfig
}

// CdevBank drives pins through the Linux GPIO character device. Pin numbers
// are line offsets on one chip. Each configured mask is held as one set of
// lines.
type CdevBank struct {
	chip   string
	mu     sync.Mutex
	reqs   []*cdevRequest
	shadow [2]uint32
	logger *slog.Logger
}

var _ Bank = (*CdevBank)(nil)

// NewCdevBank returns a bank on chip (DefaultChip if empty). Lines are not
// requested until Configure.
func NewCdevBank(chip string, logger *slog.Logger) (*CdevBank, error) {
	if chip == "" {
		chip = DefaultChip
	}
	return &CdevBank{chip: chip, logger: logger}, nil
}

func cdevBias(p domain.Pull) gpiocdev.BiasOption {
	switch p {
	case domain.PullUp:
		return gpiocdev.WithPullUp
	case domain.PullDown:
		return gpiocdev.WithPullDown
	default:
		return gpiocdev.WithBiasDisabled
	}
}

// Configure requests the lines in cfg.Mask. A mask that is already held is
// reconfigured in place; held requests that share pins with it are released
// first, so the monitor can be initialized again on the same pins. Edge
// detection is not supported; the monitor polls.
func (b *CdevBank) Configure(_ context.Context, cfg domain.PinConfig) error {
	if cfg.Interrupt != domain.InterruptDisabled {
		return domain.NewSubSystemError("gpio", "CdevBank.Configure", domain.ErrUnsupported,
			fmt.Sprintf("interrupt %s on %s", cfg.Interrupt, b.chip))
	}
	offsets := cfg.Mask.Pins()
	if len(offsets) == 0 || cfg.Direction == domain.DirectionDisabled {
		return nil
	}

	reqOpts := []gpiocdev.LineReqOption{gpiocdev.WithConsumer("gpimon"), cdevBias(cfg.Pull)}
	lineOpts := []gpiocdev.LineConfigOption{cdevBias(cfg.Pull)}
	if cfg.Direction == domain.DirectionOutput {
		low := gpiocdev.AsOutput(make([]int, len(offsets))...)
		reqOpts = append(reqOpts, low)
		lineOpts = append(lineOpts, low)
	} else {
		reqOpts = append(reqOpts, gpiocdev.AsInput)
		lineOpts = append(lineOpts, gpiocdev.AsInput)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	held := make([]domain.Mask, len(b.reqs))
	for i, r := range b.reqs {
		held[i] = r.cfg.Mask
	}
	plan := planLines(held, cfg.Mask)

	var reuse *cdevRequest
	if plan.reuse >= 0 {
		reuse = b.reqs[plan.reuse]
	}
	for _, i := range plan.release {
		if err := b.reqs[i].lines.Close(); err != nil {
			b.logger.Warn("gpio release failed", "chip", b.chip, "lines", b.reqs[i].offsets, "error", err)
		}
		b.reqs = slices.Delete(b.reqs, i, i+1)
	}

	if reuse != nil {
		if err := reuse.lines.Reconfigure(lineOpts...); err != nil {
			return fmt.Errorf("reconfigure lines %v on %s: %w", offsets, b.chip, err)
		}
		reuse.cfg = cfg
	} else {
		l, err := gpiocdev.RequestLines(b.chip, offsets, reqOpts...)
		if err != nil {
			return fmt.Errorf("request lines %v on %s: %w", offsets, b.chip, err)
		}
		b.reqs = append(b.reqs, &cdevRequest{lines: l, offsets: offsets, cfg: cfg})
	}

	if cfg.Direction == domain.DirectionOutput {
		for _, o := range offsets {
			word, bit := wordOf(o)
			b.shadow[word] &^= 1 << bit
		}
	}
	return nil
}

func (b *CdevBank) Input(word int) uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()

	var v uint32
	for _, r := range b.reqs {
		m := r.cfg.Mask.Low()
		if word == 1 {
			m = r.cfg.Mask.High()
		}
		if r.cfg.Direction != domain.DirectionInput || m == 0 {
			continue
		}
		vals := make([]int, len(r.offsets))
		if err := r.lines.Values(vals); err != nil {
			b.logger.Error("gpio read failed", "chip", b.chip, "lines", r.offsets, "error", err)
			continue
		}
		for i, o := range r.offsets {
			w, bit := wordOf(o)
			if w == word && vals[i] != 0 {
				v |= 1 << bit
			}
		}
	}
	return v
}

func (b *CdevBank) Output(word int) uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.shadow[word]
}

// SetOutput drives the output lines of word. Lines of other words in the same
// request keep their shadow level.
func (b *CdevBank) SetOutput(word int, value uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()

	next := b.shadow
	next[word] = value
	for _, r := range b.reqs {
		if r.cfg.Direction != domain.DirectionOutput {
			continue
		}
		vals := make([]int, len(r.offsets))
		touched := false
		for i, o := range r.offsets {
			w, bit := wordOf(o)
			vals[i] = int(next[w] >> bit & 1)
			touched = touched || w == word
		}
		if !touched {
			continue
		}
		if err := r.lines.SetValues(vals); err != nil {
			b.logger.Error("gpio write failed", "chip", b.chip, "lines", r.offsets, "error", err)
			return
		}
	}
	b.shadow = next
}

func (b *CdevBank) ListPins() []PinInfo {
	b.mu.Lock()
	defer b.mu.Unlock()

	var pins []PinInfo
	for _, r := range b.reqs {
		vals := make([]int, len(r.offsets))
		if err := r.lines.Values(vals); err != nil {
			continue
		}
		for i, o := range r.offsets {
			pins = append(pins, PinInfo{Pin: o, Mode: r.cfg.Direction.String(), Pull: r.cfg.Pull.String(), Value: vals[i]})
		}
	}
	sort.Slice(pins, func(i, j int) bool { return pins[i].Pin < pins[j].Pin })
	return pins
}

// Close returns output lines to input and releases every request.
func (b *CdevBank) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var firstErr error
	for _, r := range b.reqs {
		if r.cfg.Direction == domain.DirectionOutput {
			if err := r.lines.Reconfigure(gpiocdev.AsInput); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		if err := r.lines.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	b.reqs = nil
	return firstErr
}
