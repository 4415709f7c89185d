// Package server implements the HTTP transport layer for the wizard edge
// gateway.
package server

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	wizard "github.com/wizardlabs/wizard/internal"
	"github.com/wizardlabs/wizard/internal/circuitbreaker"
	"github.com/wizardlabs/wizard/internal/dispatch"
	"github.com/wizardlabs/wizard/internal/gateway"
	"github.com/wizardlabs/wizard/internal/pairing"
	"github.com/wizardlabs/wizard/internal/policy"
	"github.com/wizardlabs/wizard/internal/ratelimit"
	"github.com/wizardlabs/wizard/internal/storage"
	"github.com/wizardlabs/wizard/internal/syncer"
	"github.com/wizardlabs/wizard/internal/telemetry"
)

// ReadyChecker reports whether the system is ready to serve traffic.
type ReadyChecker func(ctx context.Context) error

// Features is the capability set advertised by the health endpoint.
type Features struct {
	CloudEnabled  bool     `json:"cloud_enabled"`
	ShellEnabled  bool     `json:"shell_enabled"`
	SyncProviders []string `json:"sync_providers"`
}

// Deps holds all dependencies for the HTTP server.
type Deps struct {
	Auth       wizard.Authenticator
	Gateway    *gateway.Gateway
	Dispatcher *dispatch.Dispatcher
	Limiter    *ratelimit.Limiter       // nil = no rate limiting
	Pairing    *pairing.Manager
	Sync       *syncer.Orchestrator     // nil = sync endpoints disabled
	Store      storage.Store
	Policy     *policy.Enforcer
	Breakers   *circuitbreaker.Registry // nil = breaker states omitted from status
	Metrics    *telemetry.Metrics       // nil = no metrics middleware
	Gatherer   prometheus.Gatherer      // nil = /metrics not mounted
	ReadyCheck ReadyChecker             // nil = always ready (for tests)
	Features   Features
}

// New creates an http.Handler with all routes and middleware wired.
func New(deps Deps) http.Handler {
	s := &server{deps: deps}

	r := chi.NewRouter()

	// Global middleware
	r.Use(s.recovery)
	r.Use(s.requestID)
	r.Use(s.logging)
	if deps.Metrics != nil {
		r.Use(metricsMiddleware(deps.Metrics))
	}

	// System endpoints (no auth)
	r.Get("/health", s.handleHealth)
	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReadyz)
	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	// Pairing happens before a device has a token.
	r.Post("/api/pair", s.handlePairBegin)
	r.Post("/api/pair/complete", s.handlePairComplete)

	// Device-facing API (auth required)
	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)
		r.Use(s.rateLimit)
		r.Post("/api/ai/complete", s.handleComplete)
		r.Post("/api/dispatch", s.handleDispatch)
		r.Get("/api/status", s.handleStatus)
		r.Get("/api/rate-limits", s.handleRateLimits)
		r.Get("/api/sync/status", s.handleSyncStatus)
		r.Post("/api/sync/{kind}", s.handleSync)
	})

	// Admin surface
	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)
		r.Use(s.requireAdmin)
		r.Get("/api/admin/devices", s.handleListDevices)
		r.Delete("/api/admin/devices/{id}", s.handleRemoveDevice)
		r.Post("/api/admin/devices/{id}/block", s.handleBlockDevice)
		r.Post("/api/admin/devices/{id}/unblock", s.handleUnblockDevice)
		r.Get("/api/admin/policy", s.handlePolicy)
	})

	return r
}

type server struct {
	deps Deps
}
