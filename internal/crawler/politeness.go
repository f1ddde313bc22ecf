package crawler

import (
	"context"
	"fmt"
	"time"
)

// Pauser blocks for a politeness delay or until the context ends.
type Pauser interface {
	Pause(ctx context.Context, delay time.Duration) error
}

// TimerPauser implements Pauser with a real timer.
type TimerPauser struct{}

// Pause waits for delay. It returns the context error if ctx ends first.
func (TimerPauser) Pause(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("pause interrupted: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

// Pacer spaces successive steps of one sequential loop by a fixed delay.
// The first call to Wait never blocks.
type Pacer struct {
	pauser Pauser
	delay  time.Duration
	calls  int
}

// NewPacer returns a Pacer. A nil pauser falls back to TimerPauser.
func NewPacer(pauser Pauser, delay time.Duration) *Pacer {
	if pauser == nil {
		pauser = TimerPauser{}
	}
	return &Pacer{pauser: pauser, delay: delay}
}

// Wait pauses before every step after the first, whatever the previous step's outcome.
func (p *Pacer) Wait(ctx context.Context) error {
	p.calls++
	if p.calls == 1 {
		return nil
	}
	return p.pauser.Pause(ctx, p.delay)
}
