package gpi

import (
	"context"
	"time"
)

// pacer produces a fixed sampling cadence. Deadlines accumulate from the
// start time so scheduling jitter does not drift the cadence.
type pacer struct {
	interval time.Duration
	next     time.Time
	now      func() time.Time
}

func newPacer(interval time.Duration) *pacer {
	return &pacer{interval: interval, next: time.Now(), now: time.Now}
}

// wait blocks until the next deadline. It returns false if ctx is done before
// or after the wait, in which case the caller must stop sampling.
func (p *pacer) wait(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}

	p.next = p.next.Add(p.interval)
	now := p.now()
	d := p.next.Sub(now)
	if d <= 0 {
		// More than a full interval behind: resync instead of bursting.
		if -d > p.interval {
			p.next = now
		}
		return ctx.Err() == nil
	}

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
	}
	return ctx.Err() == nil
}
