package gateway

import (
	"sync"
	"time"
)

// QuotaTracker counts daily requests per backend against per-backend caps.
// A backend missing from the limits map is unmetered.
type QuotaTracker struct {
	mu     sync.Mutex
	limits map[string]int
	used   map[string]int
	reset  time.Time
}

// NewQuotaTracker creates a tracker with per-backend daily caps.
func NewQuotaTracker(limits map[string]int) *QuotaTracker {
	if limits == nil {
		limits = map[string]int{}
	}
	return &QuotaTracker{
		limits: limits,
		used:   make(map[string]int),
		reset:  nextDay(time.Now()),
	}
}

// Allow reports whether the backend still has quota today.
func (q *QuotaTracker) Allow(backend string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.rollLocked(time.Now())
	limit, metered := q.limits[backend]
	return !metered || q.used[backend] < limit
}

// Record commits one request against the backend's quota.
func (q *QuotaTracker) Record(backend string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.rollLocked(time.Now())
	q.used[backend]++
}

// Usage returns today's per-backend request counts.
func (q *QuotaTracker) Usage() map[string]int {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.rollLocked(time.Now())
	out := make(map[string]int, len(q.used))
	for k, v := range q.used {
		out[k] = v
	}
	return out
}

func (q *QuotaTracker) rollLocked(now time.Time) {
	if now.After(q.reset) {
		q.used = make(map[string]int)
		q.reset = nextDay(now)
	}
}
