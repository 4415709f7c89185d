package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/wizardlabs/wizard/internal/circuitbreaker"
	"github.com/wizardlabs/wizard/internal/pairing"
	"github.com/wizardlabs/wizard/internal/ratelimit"
)

const (
	maintenanceInterval = 5 * time.Minute
	limiterIdleFor      = time.Hour
	breakerIdleFor      = time.Hour
)

// Maintenance sweeps expired pairing codes and evicts idle per-device
// limiter and breaker state.
type Maintenance struct {
	pairing  *pairing.Manager
	limiter  *ratelimit.Limiter
	breakers *circuitbreaker.Registry
}

// NewMaintenance creates a Maintenance worker. Any field may be nil.
func NewMaintenance(p *pairing.Manager, l *ratelimit.Limiter, b *circuitbreaker.Registry) *Maintenance {
	return &Maintenance{pairing: p, limiter: l, breakers: b}
}

// Name returns the worker identifier.
func (w *Maintenance) Name() string { return "maintenance" }

// Run sweeps on an interval until ctx is cancelled.
func (w *Maintenance) Run(ctx context.Context) error {
	ticker := time.NewTicker(maintenanceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.sweep(ctx)
		case <-ctx.Done():
			return nil
		}
	}
}

func (w *Maintenance) sweep(ctx context.Context) {
	var codes, devices, breakers int
	if w.pairing != nil {
		codes = w.pairing.Sweep()
	}
	if w.limiter != nil {
		devices = w.limiter.EvictStale(time.Now().Add(-limiterIdleFor))
	}
	if w.breakers != nil {
		breakers = w.breakers.EvictStale(time.Now().Add(-breakerIdleFor))
	}
	if codes+devices+breakers > 0 {
		slog.LogAttrs(ctx, slog.LevelDebug, "maintenance sweep",
			slog.Int("pairing_codes", codes),
			slog.Int("limiter_devices", devices),
			slog.Int("breakers", breakers),
		)
	}
}
