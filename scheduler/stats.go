package scheduler

import "sync/atomic"

// Stats is a point-in-time snapshot of scheduler counters.
type Stats struct {
	Claimed   uint64
	Completed uint64
	Retried   uint64
	Failed    uint64
	Ticks     uint64
}

// counters holds the scheduler's atomic counters.
type counters struct {
	claimed   atomic.Uint64
	completed atomic.Uint64
	retried   atomic.Uint64
	failed    atomic.Uint64
	ticks     atomic.Uint64
}

func (c *counters) snapshot() Stats {
	return Stats{
		Claimed:   c.claimed.Load(),
		Completed: c.completed.Load(),
		Retried:   c.retried.Load(),
		Failed:    c.failed.Load(),
		Ticks:     c.ticks.Load(),
	}
}
