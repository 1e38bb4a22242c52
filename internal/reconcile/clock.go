package reconcile

import (
	"sync/atomic"
	"time"
)

// versionClock numbers committed snapshots. Every swap of the committed
// layer takes the next version, so a reader can tell two snapshots apart
// without comparing contents.
//
// Thread-safety: safe for concurrent use (atomic operations).
type versionClock struct {
	seq atomic.Int64
}

// Next returns the next version and increments the clock.
func (c *versionClock) Next() int64 {
	return c.seq.Add(1)
}

// Clock supplies wall time for acknowledgment stamps and the grace window.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
