package monitor

import (
	"sync"
	"time"
)

// fetchHealth tracks consecutive provider fetch failures so the monitor
// can raise a single system event when the provider becomes unreachable
// and another when it recovers, instead of one notification per cycle.
// Guarded by mu because the status API may read it from another
// goroutine while the poll loop writes it.
type fetchHealth struct {
	mu        sync.Mutex
	failures  int
	lastErr   string
	lastFail  time.Time
	threshold int
	// failed is the last emitted status.
	failed bool
}

func newFetchHealth(threshold int) *fetchHealth {
	if threshold <= 0 {
		threshold = 3
	}
	return &fetchHealth{threshold: threshold}
}

// recordFailure counts a failed fetch. It reports true exactly once per
// outage: when the consecutive failure count crosses the threshold.
func (h *fetchHealth) recordFailure(err error) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failures++
	h.lastErr = err.Error()
	h.lastFail = time.Now()
	if h.failures >= h.threshold && !h.failed {
		h.failed = true
		return true
	}
	return false
}

// recordSuccess resets the counter. It reports true when the provider
// just recovered from an emitted outage.
func (h *fetchHealth) recordSuccess() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failures = 0
	h.lastErr = ""
	recovered := h.failed
	h.failed = false
	return recovered
}

// snapshot returns the current counters for the status API.
func (h *fetchHealth) snapshot() (failures int, lastErr string, failed bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.failures, h.lastErr, h.failed
}
