package fabric

import (
	"context"
	"time"

	"github.com/sv2d/sv2d/internal/miningtypes"
)

// Cleaner is the connection cleaner background task spec.md §4.4 names:
// it periodically scans the registry for sessions idle past idleAfter
// and closes them, the same role the teacher leaves implicit in its
// read-deadline-triggered scanner exit but spec.md promotes to an
// explicit background task independent of any one connection's read
// loop (so an idle miner is evicted even between its own reads).
type Cleaner struct {
	registry  *Registry
	interval  time.Duration
	idleAfter time.Duration
}

// NewCleaner builds a Cleaner sweeping registry every interval, closing
// sessions idle longer than idleAfter. interval/idleAfter <= 0 fall
// back to spec.md's defaults (30s sweep, StaleConnectionTimeout idle).
func NewCleaner(registry *Registry, interval, idleAfter time.Duration) *Cleaner {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if idleAfter <= 0 {
		idleAfter = miningtypes.StaleConnectionTimeout
	}
	return &Cleaner{registry: registry, interval: interval, idleAfter: idleAfter}
}

// Run sweeps on a ticker until ctx is cancelled.
func (c *Cleaner) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.sweep(time.Now())
		}
	}
}

func (c *Cleaner) sweep(now time.Time) {
	for _, sess := range c.registry.Snapshot() {
		if sess.Conn.IdleFor(now) >= c.idleAfter {
			sess.Cancel()
		}
	}
}
