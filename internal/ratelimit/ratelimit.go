// Package ratelimit implements per-device, per-endpoint-tier admission
// control with minute/hour/day sliding windows, cooldowns, and admin
// block/unblock. Check and Record are separate calls: Check gates the
// request, Record commits the counters after the downstream returns.
package ratelimit

import (
	"sync"
	"time"
)

// window is a fixed counting window anchored at its start time.
type window struct {
	count int
	start time.Time
}

// expire resets the window if it is older than span.
func (w *window) expire(now time.Time, span time.Duration) {
	if !w.start.IsZero() && now.Sub(w.start) > span {
		w.count = 0
		w.start = time.Time{}
	}
}

// tierState is the per-(device, tier) counter set.
type tierState struct {
	minute       window
	hour         window
	day          window
	lastRequest  time.Time
	blockedUntil time.Time
}

// deviceState serializes check/record for one device.
type deviceState struct {
	mu    sync.Mutex
	tiers map[Tier]*tierState
}

func (d *deviceState) tier(t Tier) *tierState {
	ts, ok := d.tiers[t]
	if !ok {
		ts = &tierState{}
		d.tiers[t] = ts
	}
	return ts
}

// Counts reports the current window counters for a tier.
type Counts struct {
	Minute int `json:"minute"`
	Hour   int `json:"hour"`
	Day    int `json:"day"`
}

// Result is the outcome of a rate limit check.
type Result struct {
	Allowed           bool    `json:"allowed"`
	Tier              Tier    `json:"tier"`
	Reason            string  `json:"reason,omitempty"`
	RetryAfterSeconds float64 `json:"retry_after_seconds,omitempty"`
	LimitMinute       int     `json:"limit_minute"`
	RemainingMinute   int     `json:"remaining_minute"`
	Counts            Counts  `json:"counts"`
}

// Limiter owns all device rate-limit state. Safe for concurrent use; state
// for different devices is independent, and check/record for one device is
// serialized on the device's lock.
type Limiter struct {
	mu        sync.RWMutex
	devices   map[string]*deviceState
	limits    map[Tier]TierLimits
	endpoints *EndpointMap
	log       *requestLog
}

// New creates a Limiter with the given tier limits and endpoint map.
// Nil arguments fall back to the defaults.
func New(limits map[Tier]TierLimits, endpoints *EndpointMap) *Limiter {
	if limits == nil {
		limits = DefaultTierLimits
	}
	if endpoints == nil {
		endpoints = DefaultEndpointMap()
	}
	return &Limiter{
		devices:   make(map[string]*deviceState),
		limits:    limits,
		endpoints: endpoints,
		log:       newRequestLog(),
	}
}

// device returns the state for deviceID, creating it lazily.
func (l *Limiter) device(deviceID string) *deviceState {
	l.mu.RLock()
	d, ok := l.devices[deviceID]
	l.mu.RUnlock()
	if ok {
		return d
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if d, ok = l.devices[deviceID]; ok {
		return d
	}
	d = &deviceState{tiers: make(map[Tier]*tierState)}
	l.devices[deviceID] = d
	return d
}

// ResolveTier maps an endpoint path to its tier.
func (l *Limiter) ResolveTier(endpoint string) Tier {
	return l.endpoints.Resolve(endpoint)
}

// Check gates a request for (device, endpoint). It does not consume a slot;
// call Record after the downstream call returns successfully.
func (l *Limiter) Check(deviceID, endpoint string) Result {
	tier := l.endpoints.Resolve(endpoint)
	limits := l.limits[tier]
	now := time.Now()

	d := l.device(deviceID)
	d.mu.Lock()
	defer d.mu.Unlock()

	ts := d.tier(tier)
	ts.minute.expire(now, time.Minute)
	ts.hour.expire(now, time.Hour)
	ts.day.expire(now, 24*time.Hour)

	deny := func(reason string, retryAfter time.Duration) Result {
		l.log.add(now, tier, false)
		return Result{
			Allowed:           false,
			Tier:              tier,
			Reason:            reason,
			RetryAfterSeconds: retryAfter.Seconds(),
			LimitMinute:       limits.RequestsPerMinute,
			RemainingMinute:   max(limits.RequestsPerMinute-ts.minute.count, 0),
			Counts:            Counts{Minute: ts.minute.count, Hour: ts.hour.count, Day: ts.day.count},
		}
	}

	if ts.blockedUntil.After(now) {
		return deny("device blocked", ts.blockedUntil.Sub(now))
	}
	if !ts.lastRequest.IsZero() {
		if delta := now.Sub(ts.lastRequest); delta < limits.Cooldown {
			return deny("cooldown", limits.Cooldown-delta)
		}
	}
	if ts.minute.count >= limits.RequestsPerMinute {
		return deny("minute limit exceeded", windowRetry(ts.minute, now, time.Minute))
	}
	if ts.hour.count >= limits.RequestsPerHour {
		return deny("hour limit exceeded", windowRetry(ts.hour, now, time.Hour))
	}
	if ts.day.count >= limits.RequestsPerDay {
		return deny("day limit exceeded", windowRetry(ts.day, now, 24*time.Hour))
	}

	l.log.add(now, tier, true)
	return Result{
		Allowed:         true,
		Tier:            tier,
		LimitMinute:     limits.RequestsPerMinute,
		RemainingMinute: max(limits.RequestsPerMinute-ts.minute.count, 0),
		Counts:          Counts{Minute: ts.minute.count, Hour: ts.hour.count, Day: ts.day.count},
	}
}

// windowRetry returns the time until the window resets.
func windowRetry(w window, now time.Time, span time.Duration) time.Duration {
	retry := w.start.Add(span).Sub(now)
	if retry < time.Second {
		retry = time.Second
	}
	return retry
}

// Record commits a completed request: increments all three windows and
// updates the last-request timestamp. Invoked after the downstream returns.
func (l *Limiter) Record(deviceID, endpoint string) {
	tier := l.endpoints.Resolve(endpoint)
	now := time.Now()

	d := l.device(deviceID)
	d.mu.Lock()
	defer d.mu.Unlock()

	ts := d.tier(tier)
	for _, w := range []*window{&ts.minute, &ts.hour, &ts.day} {
		if w.start.IsZero() {
			w.start = now
		}
		w.count++
	}
	ts.lastRequest = now
}

// BlockDevice blocks a device's tier for the given duration.
func (l *Limiter) BlockDevice(deviceID string, tier Tier, duration time.Duration) {
	d := l.device(deviceID)
	d.mu.Lock()
	d.tier(tier).blockedUntil = time.Now().Add(duration)
	d.mu.Unlock()
}

// UnblockDevice clears the block on a device's tier, or on all tiers when
// tier is empty.
func (l *Limiter) UnblockDevice(deviceID string, tier Tier) {
	d := l.device(deviceID)
	d.mu.Lock()
	defer d.mu.Unlock()
	if tier != "" {
		d.tier(tier).blockedUntil = time.Time{}
		return
	}
	for _, ts := range d.tiers {
		ts.blockedUntil = time.Time{}
	}
}

// TierStats is the per-tier view returned by DeviceStats.
type TierStats struct {
	Counts       Counts     `json:"counts"`
	Limits       TierLimits `json:"-"`
	LimitMinute  int        `json:"limit_minute"`
	LimitHour    int        `json:"limit_hour"`
	LimitDay     int        `json:"limit_day"`
	BlockedUntil *time.Time `json:"blocked_until,omitempty"`
}

// DeviceStats returns current counters and limits for every tier the
// device has touched, plus untouched tiers at zero.
func (l *Limiter) DeviceStats(deviceID string) map[Tier]TierStats {
	now := time.Now()
	d := l.device(deviceID)
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make(map[Tier]TierStats, len(l.limits))
	for tier, limits := range l.limits {
		ts := d.tier(tier)
		ts.minute.expire(now, time.Minute)
		ts.hour.expire(now, time.Hour)
		ts.day.expire(now, 24*time.Hour)

		st := TierStats{
			Counts:      Counts{Minute: ts.minute.count, Hour: ts.hour.count, Day: ts.day.count},
			Limits:      limits,
			LimitMinute: limits.RequestsPerMinute,
			LimitHour:   limits.RequestsPerHour,
			LimitDay:    limits.RequestsPerDay,
		}
		if ts.blockedUntil.After(now) {
			t := ts.blockedUntil
			st.BlockedUntil = &t
		}
		out[tier] = st
	}
	return out
}

// Stats returns the global request statistics.
func (l *Limiter) Stats() Stats {
	l.mu.RLock()
	active := len(l.devices)
	l.mu.RUnlock()
	return l.log.stats(time.Now(), active)
}

// EvictStale removes device states whose every tier has been idle since
// cutoff. Keeps the registry bounded on long-running gateways.
func (l *Limiter) EvictStale(cutoff time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	evicted := 0
	for id, d := range l.devices {
		d.mu.Lock()
		stale := true
		for _, ts := range d.tiers {
			if ts.lastRequest.After(cutoff) || ts.blockedUntil.After(cutoff) {
				stale = false
				break
			}
		}
		d.mu.Unlock()
		if stale {
			delete(l.devices, id)
			evicted++
		}
	}
	return evicted
}
