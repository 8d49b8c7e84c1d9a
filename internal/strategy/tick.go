package strategy

import (
	"context"
	"time"
)

// TickLoop runs the 1 Hz timeout sweep (spec component F) until ctx is
// cancelled. Grounded on the teacher's maker.go Run() ticker pattern.
type TickLoop struct {
	machine  *Machine
	interval time.Duration
}

// NewTickLoop creates a TickLoop driving machine at the given interval
// (1s per spec.md §4.F).
func NewTickLoop(machine *Machine, interval time.Duration) *TickLoop {
	if interval <= 0 {
		interval = time.Second
	}
	return &TickLoop{machine: machine, interval: interval}
}

// Run blocks, ticking machine.Tick until ctx is cancelled.
func (l *TickLoop) Run(ctx context.Context) {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.machine.Tick(ctx)
		}
	}
}
