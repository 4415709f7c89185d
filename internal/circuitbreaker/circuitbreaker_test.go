package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	wizard "github.com/wizardlabs/wizard/internal"
)

func testConfig() Config {
	return Config{
		ErrorThreshold: 0.30,
		MinSamples:     10,
		WindowSeconds:  60,
		OpenTimeout:    30 * time.Second,
	}
}

func TestWindow_ErrorRate(t *testing.T) {
	t.Parallel()

	w := newWindow(60)
	now := time.Now()
	for range 7 {
		w.record(0, now)
	}
	for range 3 {
		w.record(1.0, now)
	}

	rate, samples := w.errorRate(now)
	if samples != 10 {
		t.Fatalf("samples = %d, want 10", samples)
	}
	if rate < 0.29 || rate > 0.31 {
		t.Fatalf("rate = %f, want ~0.30", rate)
	}
}

func TestWindow_Expiry(t *testing.T) {
	t.Parallel()

	w := newWindow(5)
	base := time.Now()
	w.record(1.0, base)

	rate, samples := w.errorRate(base.Add(6 * time.Second))
	if samples != 0 || rate != 0 {
		t.Fatalf("after expiry: samples=%d rate=%f, want 0/0", samples, rate)
	}
}

func TestBreaker_TripsAtThreshold(t *testing.T) {
	t.Parallel()

	b := NewBreaker(testConfig())
	for range 7 {
		b.RecordSuccess()
	}
	for range 3 {
		b.RecordFailure(1.0)
	}

	if b.State() != StateOpen {
		t.Fatalf("state = %v, want open", b.State())
	}
	if b.Allow() {
		t.Fatal("open breaker should reject")
	}
}

func TestBreaker_MinSamples(t *testing.T) {
	t.Parallel()

	b := NewBreaker(testConfig())
	for range 9 {
		b.RecordFailure(1.0)
	}
	if b.State() != StateClosed {
		t.Fatalf("state = %v, want closed below min samples", b.State())
	}
}

func TestBreaker_HalfOpenProbe(t *testing.T) {
	t.Parallel()

	b := NewBreaker(testConfig())
	for range 10 {
		b.RecordFailure(1.0)
	}
	if b.State() != StateOpen {
		t.Fatal("breaker should be open")
	}

	// Force the open timeout to elapse.
	b.mu.Lock()
	b.openedAt = time.Now().Add(-time.Minute)
	b.mu.Unlock()

	if !b.Allow() {
		t.Fatal("probe should be admitted after open timeout")
	}
	if b.State() != StateHalfOpen {
		t.Fatalf("state = %v, want half_open", b.State())
	}
	if b.Allow() {
		t.Fatal("second concurrent probe must be rejected")
	}

	b.RecordSuccess()
	if b.State() != StateClosed {
		t.Fatalf("state = %v, want closed after good probe", b.State())
	}
	if !b.Allow() {
		t.Fatal("closed breaker should allow")
	}
}

func TestBreaker_FailedProbeReopens(t *testing.T) {
	t.Parallel()

	b := NewBreaker(testConfig())
	for range 10 {
		b.RecordFailure(1.0)
	}
	b.mu.Lock()
	b.openedAt = time.Now().Add(-time.Minute)
	b.mu.Unlock()

	b.Allow()
	b.RecordFailure(1.0)
	if b.State() != StateOpen {
		t.Fatalf("state = %v, want reopened", b.State())
	}
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	r := NewRegistry(testConfig())
	if r.Get("local") != nil {
		t.Fatal("unused backend should have no breaker")
	}

	b := r.GetOrCreate("local")
	if b == nil || r.GetOrCreate("local") != b {
		t.Fatal("GetOrCreate should return one stable breaker per backend")
	}

	r.GetOrCreate("cloud")
	states := r.States()
	if states["local"] != "closed" || states["cloud"] != "closed" {
		t.Errorf("states = %v, want both closed", states)
	}
}

func TestRegistry_EvictStale(t *testing.T) {
	t.Parallel()

	r := NewRegistry(testConfig())
	stale := r.GetOrCreate("local")
	r.GetOrCreate("cloud")

	stale.mu.Lock()
	stale.lastUsed = time.Now().Add(-2 * time.Hour)
	stale.mu.Unlock()

	if n := r.EvictStale(time.Now().Add(-time.Hour)); n != 1 {
		t.Fatalf("evicted = %d, want 1", n)
	}
	if r.Get("local") != nil {
		t.Error("stale breaker should be gone")
	}
	if r.Get("cloud") == nil {
		t.Error("fresh breaker should survive")
	}
}

func TestWeigh(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want float64
	}{
		{"nil", nil, 0},
		{"deadline", context.DeadlineExceeded, 1.5},
		{"wizard timeout", wizard.NewError(wizard.CodeTimeout, "local", "slow"), 1.5},
		{"wizard unavailable", wizard.NewError(wizard.CodeBackendUnavailable, "cloud", "down"), 1.0},
		{"wizard bad input", wizard.NewError(wizard.CodeInvalidInput, "cloud", "empty prompt"), 0},
		{"wizard auth", wizard.NewError(wizard.CodeAuthRequired, "cloud", "bad key"), 0},
		{"generic", errors.New("connection refused"), 1.0},
	}
	for _, tc := range cases {
		if got := Weigh(tc.err); got != tc.want {
			t.Errorf("%s: weight = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestWeigh_HTTPStatus(t *testing.T) {
	t.Parallel()

	if got := Weigh(statusErr(429)); got != 0.5 {
		t.Errorf("429 weight = %v, want 0.5", got)
	}
	if got := Weigh(statusErr(503)); got != 1.0 {
		t.Errorf("503 weight = %v, want 1.0", got)
	}
	if got := Weigh(statusErr(404)); got != 0 {
		t.Errorf("404 weight = %v, want 0", got)
	}
}

type statusErr int

func (s statusErr) Error() string   { return "status" }
func (s statusErr) HTTPStatus() int { return int(s) }
