package ratelimit

import (
	"sync"
	"time"
)

// logCap bounds the in-memory request log; old entries are dropped in
// chunks when the cap is hit.
const logCap = 10000

// logEntry is one check outcome for global statistics.
type logEntry struct {
	at      time.Time
	tier    Tier
	allowed bool
}

// requestLog is an append-only bounded log written under its own short-held
// lock, separate from the per-device locks.
type requestLog struct {
	mu      sync.Mutex
	entries []logEntry
}

func newRequestLog() *requestLog {
	return &requestLog{entries: make([]logEntry, 0, 1024)}
}

func (r *requestLog) add(at time.Time, tier Tier, allowed bool) {
	r.mu.Lock()
	if len(r.entries) >= logCap {
		r.entries = append(r.entries[:0], r.entries[logCap/2:]...)
	}
	r.entries = append(r.entries, logEntry{at: at, tier: tier, allowed: allowed})
	r.mu.Unlock()
}

// Stats is the global rate-limiter statistics snapshot.
type Stats struct {
	ActiveDevices      int          `json:"active_devices"`
	RequestsLastMinute int          `json:"requests_last_minute"`
	RequestsLastHour   int          `json:"requests_last_hour"`
	BlockedLastMinute  int          `json:"blocked_last_minute"`
	TierBreakdown      map[Tier]int `json:"tier_breakdown"`
}

func (r *requestLog) stats(now time.Time, activeDevices int) Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Stats{ActiveDevices: activeDevices, TierBreakdown: make(map[Tier]int)}
	for _, e := range r.entries {
		age := now.Sub(e.at)
		if age > time.Hour {
			continue
		}
		s.RequestsLastHour++
		s.TierBreakdown[e.tier]++
		if age <= time.Minute {
			s.RequestsLastMinute++
			if !e.allowed {
				s.BlockedLastMinute++
			}
		}
	}
	return s
}
