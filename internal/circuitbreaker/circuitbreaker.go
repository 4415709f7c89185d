// Package circuitbreaker guards the completion backends with a per-backend
// state machine over a sliding-window error rate. An open breaker fails the
// backend call instantly instead of waiting out a connect timeout, which is
// what lets the router fall back to the other backend quickly.
package circuitbreaker

import (
	"sync"
	"time"
)

// State is the breaker position.
type State int

const (
	// StateClosed passes all requests.
	StateClosed State = iota
	// StateOpen rejects all requests.
	StateOpen
	// StateHalfOpen admits a single probe.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Config holds breaker tuning.
type Config struct {
	ErrorThreshold float64       // weighted error rate that trips the breaker
	MinSamples     int           // samples required before the breaker may trip
	WindowSeconds  int           // sliding window span, capped at 60
	OpenTimeout    time.Duration // dwell time in open before probing
}

// DefaultConfig returns the stock tuning.
func DefaultConfig() Config {
	return Config{
		ErrorThreshold: 0.30,
		MinSamples:     10,
		WindowSeconds:  60,
		OpenTimeout:    30 * time.Second,
	}
}

// slot holds the weighted error sum and request count for one second.
type slot struct {
	errors float64
	total  int
}

// window is a ring of 1-second slots. Fixed backing array so a breaker
// never allocates after construction.
type window struct {
	slots    [60]slot
	size     int
	head     int
	headTime int64
}

func newWindow(seconds int) window {
	if seconds <= 0 || seconds > 60 {
		seconds = 60
	}
	return window{size: seconds}
}

// advance rolls the head to nowSec, zeroing slots that fell out of the span.
func (w *window) advance(nowSec int64) {
	if w.headTime == 0 {
		w.headTime = nowSec
		return
	}
	gap := nowSec - w.headTime
	if gap <= 0 {
		return
	}
	for i := range min(int(gap), w.size) {
		w.slots[(w.head+1+i)%w.size] = slot{}
	}
	w.head = (w.head + int(gap)) % w.size
	w.headTime = nowSec
}

func (w *window) record(weight float64, now time.Time) {
	w.advance(now.Unix())
	w.slots[w.head].total++
	w.slots[w.head].errors += weight
}

// errorRate returns the weighted error rate and sample count over the window.
func (w *window) errorRate(now time.Time) (float64, int) {
	w.advance(now.Unix())
	var errs float64
	var total int
	for i := range w.size {
		errs += w.slots[i].errors
		total += w.slots[i].total
	}
	if total == 0 {
		return 0, 0
	}
	return errs / float64(total), total
}

func (w *window) reset() {
	for i := range w.size {
		w.slots[i] = slot{}
	}
	w.head = 0
	w.headTime = 0
}

// Breaker is the state machine for one backend.
type Breaker struct {
	mu       sync.Mutex
	state    State
	window   window
	openedAt time.Time
	lastUsed time.Time
	probing  bool
	cfg      Config
}

// NewBreaker builds a closed breaker with the given config.
func NewBreaker(cfg Config) *Breaker {
	return &Breaker{
		state:    StateClosed,
		window:   newWindow(cfg.WindowSeconds),
		cfg:      cfg,
		lastUsed: time.Now(),
	}
}

// State reports the current position.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Allow reports whether a request may proceed. In half-open, exactly one
// probe is admitted at a time.
func (b *Breaker) Allow() bool {
	now := time.Now()
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastUsed = now

	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if now.Sub(b.openedAt) >= b.cfg.OpenTimeout {
			b.state = StateHalfOpen
			b.probing = true
			return true
		}
		return false
	case StateHalfOpen:
		if !b.probing {
			b.probing = true
			return true
		}
		return false
	}
	return false
}

// RecordSuccess notes a successful call. A successful half-open probe
// closes the breaker and clears the window.
func (b *Breaker) RecordSuccess() {
	now := time.Now()
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastUsed = now
	b.window.record(0, now)

	if b.state == StateHalfOpen {
		b.state = StateClosed
		b.probing = false
		b.window.reset()
	}
}

// RecordFailure notes a failed call with the given weight. A failed
// half-open probe reopens immediately.
func (b *Breaker) RecordFailure(weight float64) {
	now := time.Now()
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastUsed = now
	b.window.record(weight, now)

	switch b.state {
	case StateClosed:
		rate, samples := b.window.errorRate(now)
		if samples >= b.cfg.MinSamples && rate >= b.cfg.ErrorThreshold {
			b.state = StateOpen
			b.openedAt = now
		}
	case StateHalfOpen:
		b.state = StateOpen
		b.openedAt = now
		b.probing = false
	}
}

// LastUsed returns the time of last activity.
func (b *Breaker) LastUsed() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastUsed
}
