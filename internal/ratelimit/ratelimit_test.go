package ratelimit

import (
	"sync"
	"testing"
	"time"
)

// noCooldown builds a limiter with a small standard-tier minute window and
// no cooldown, so window behavior can be tested with rapid calls.
func noCooldown(rpm int) *Limiter {
	limits := map[Tier]TierLimits{
		TierStandard: {RequestsPerMinute: rpm, RequestsPerHour: 1000, RequestsPerDay: 10000},
	}
	return New(limits, NewEndpointMap(map[string]Tier{"/api/dispatch": TierStandard}, TierStandard))
}

func TestEndpointMap_Resolve(t *testing.T) {
	t.Parallel()
	m := DefaultEndpointMap()

	if tier := m.Resolve("/api/ai/complete"); tier != TierExpensive {
		t.Errorf("complete -> %q, want expensive", tier)
	}
	if tier := m.Resolve("/api/sync/status"); tier != TierLight {
		t.Errorf("sync/status -> %q, want light (exact beats pattern)", tier)
	}
	if tier := m.Resolve("/api/sync/calendar"); tier != TierHeavy {
		t.Errorf("sync/calendar -> %q, want heavy via {kind} pattern", tier)
	}
	if tier := m.Resolve("/api/admin/devices/dev-1/block"); tier != TierStandard {
		t.Errorf("block -> %q, want standard via {id} pattern", tier)
	}
	if tier := m.Resolve("/something/else"); tier != TierStandard {
		t.Errorf("unmapped -> %q, want fallback standard", tier)
	}
}

func TestCheck_MinuteWindowDenies(t *testing.T) {
	t.Parallel()
	l := noCooldown(60)

	for i := range 60 {
		r := l.Check("dev-1", "/api/dispatch")
		if !r.Allowed {
			t.Fatalf("request %d should be allowed", i+1)
		}
		l.Record("dev-1", "/api/dispatch")
	}

	r := l.Check("dev-1", "/api/dispatch")
	if r.Allowed {
		t.Fatal("61st request should be denied")
	}
	if r.Tier != TierStandard {
		t.Errorf("tier = %q, want standard", r.Tier)
	}
	if r.RetryAfterSeconds <= 0 {
		t.Error("retry_after_seconds should be positive")
	}
}

func TestCheck_MinuteWindowResets(t *testing.T) {
	t.Parallel()
	l := noCooldown(2)

	for range 2 {
		l.Check("dev-1", "/api/dispatch")
		l.Record("dev-1", "/api/dispatch")
	}
	if r := l.Check("dev-1", "/api/dispatch"); r.Allowed {
		t.Fatal("should be denied at the minute limit")
	}

	// Age the minute window past 60s.
	d := l.device("dev-1")
	d.mu.Lock()
	d.tiers[TierStandard].minute.start = time.Now().Add(-61 * time.Second)
	d.mu.Unlock()

	if r := l.Check("dev-1", "/api/dispatch"); !r.Allowed {
		t.Error("minute counter should clear after the window expires")
	}
}

func TestCheck_Cooldown(t *testing.T) {
	t.Parallel()
	limits := map[Tier]TierLimits{
		TierHeavy: {RequestsPerMinute: 10, RequestsPerHour: 100, RequestsPerDay: 500, Cooldown: time.Second},
	}
	l := New(limits, NewEndpointMap(map[string]Tier{"/api/sync/{kind}": TierHeavy}, TierHeavy))

	if r := l.Check("dev-1", "/api/sync/email"); !r.Allowed {
		t.Fatal("first request should pass")
	}
	l.Record("dev-1", "/api/sync/email")

	r := l.Check("dev-1", "/api/sync/email")
	if r.Allowed {
		t.Fatal("request inside cooldown should be denied")
	}
	if r.Reason != "cooldown" {
		t.Errorf("reason = %q, want cooldown", r.Reason)
	}
	if r.RetryAfterSeconds <= 0 || r.RetryAfterSeconds > 1.0 {
		t.Errorf("retry_after = %v, want in (0, 1]", r.RetryAfterSeconds)
	}
}

func TestCheck_CountersMonotonic(t *testing.T) {
	t.Parallel()
	l := noCooldown(100)

	var prev Counts
	for range 10 {
		r := l.Check("dev-1", "/api/dispatch")
		if !r.Allowed {
			t.Fatal("should be allowed")
		}
		if r.Counts.Minute < prev.Minute || r.Counts.Hour < prev.Hour || r.Counts.Day < prev.Day {
			t.Fatalf("counters went backwards: %+v -> %+v", prev, r.Counts)
		}
		prev = r.Counts
		l.Record("dev-1", "/api/dispatch")
	}
}

func TestBlockUnblockDevice(t *testing.T) {
	t.Parallel()
	l := noCooldown(100)

	l.BlockDevice("dev-1", TierStandard, time.Hour)
	r := l.Check("dev-1", "/api/dispatch")
	if r.Allowed {
		t.Fatal("blocked device must be denied")
	}
	if r.RetryAfterSeconds <= 0 {
		t.Error("blocked deny should carry retry_after")
	}

	// Other devices are unaffected.
	if r := l.Check("dev-2", "/api/dispatch"); !r.Allowed {
		t.Error("block must not leak to other devices")
	}

	l.UnblockDevice("dev-1", TierStandard)
	if r := l.Check("dev-1", "/api/dispatch"); !r.Allowed {
		t.Error("unblocked device should pass")
	}
}

func TestUnblockAllTiers(t *testing.T) {
	t.Parallel()
	l := New(nil, nil)

	l.BlockDevice("dev-1", TierLight, time.Hour)
	l.BlockDevice("dev-1", TierHeavy, time.Hour)
	l.UnblockDevice("dev-1", "")

	stats := l.DeviceStats("dev-1")
	for tier, st := range stats {
		if st.BlockedUntil != nil {
			t.Errorf("tier %q still blocked after unblock-all", tier)
		}
	}
}

func TestDeviceStats(t *testing.T) {
	t.Parallel()
	l := noCooldown(100)
	l.Check("dev-1", "/api/dispatch")
	l.Record("dev-1", "/api/dispatch")

	stats := l.DeviceStats("dev-1")
	st, ok := stats[TierStandard]
	if !ok {
		t.Fatal("standard tier missing from stats")
	}
	if st.Counts.Minute != 1 || st.LimitMinute != 100 {
		t.Errorf("minute count=%d limit=%d, want 1/100", st.Counts.Minute, st.LimitMinute)
	}
}

func TestStats(t *testing.T) {
	t.Parallel()
	l := noCooldown(1)

	l.Check("dev-1", "/api/dispatch")
	l.Record("dev-1", "/api/dispatch")
	l.Check("dev-1", "/api/dispatch") // denied

	s := l.Stats()
	if s.ActiveDevices != 1 {
		t.Errorf("active devices = %d, want 1", s.ActiveDevices)
	}
	if s.RequestsLastMinute != 2 {
		t.Errorf("requests last minute = %d, want 2", s.RequestsLastMinute)
	}
	if s.BlockedLastMinute != 1 {
		t.Errorf("blocked last minute = %d, want 1", s.BlockedLastMinute)
	}
	if s.TierBreakdown[TierStandard] != 2 {
		t.Errorf("tier breakdown = %v, want standard:2", s.TierBreakdown)
	}
}

func TestEvictStale(t *testing.T) {
	t.Parallel()
	l := noCooldown(100)

	l.Check("stale", "/api/dispatch")
	l.Record("stale", "/api/dispatch")
	l.Check("fresh", "/api/dispatch")
	l.Record("fresh", "/api/dispatch")

	d := l.device("stale")
	d.mu.Lock()
	d.tiers[TierStandard].lastRequest = time.Now().Add(-2 * time.Hour)
	d.mu.Unlock()

	if evicted := l.EvictStale(time.Now().Add(-time.Hour)); evicted != 1 {
		t.Errorf("evicted = %d, want 1", evicted)
	}
}

func TestConcurrentSameDevice(t *testing.T) {
	t.Parallel()
	l := noCooldown(1000)

	var wg sync.WaitGroup
	for range 50 {
		wg.Go(func() {
			if r := l.Check("dev-1", "/api/dispatch"); r.Allowed {
				l.Record("dev-1", "/api/dispatch")
			}
		})
	}
	wg.Wait()

	stats := l.DeviceStats("dev-1")
	if got := stats[TierStandard].Counts.Minute; got != 50 {
		t.Errorf("minute count = %d, want 50 (no lost updates)", got)
	}
}

func BenchmarkCheckRecord(b *testing.B) {
	l := noCooldown(1 << 30)
	for b.Loop() {
		l.Check("dev-1", "/api/dispatch")
		l.Record("dev-1", "/api/dispatch")
	}
}
