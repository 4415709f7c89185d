package server

import (
	"net/http"
	"time"

	wizard "github.com/wizardlabs/wizard/internal"
	"github.com/wizardlabs/wizard/internal/gateway"
	"github.com/wizardlabs/wizard/internal/policy"
	"github.com/wizardlabs/wizard/internal/ratelimit"
	"github.com/wizardlabs/wizard/internal/storage"
	"github.com/wizardlabs/wizard/internal/syncer"
)

type statusResponse struct {
	Device   *wizard.Identity                       `json:"device"`
	Cost     gateway.CostStatus                     `json:"cost"`
	Policy   policy.Status                          `json:"policy"`
	Limits   map[ratelimit.Tier]ratelimit.TierStats `json:"limits,omitempty"`
	Global   *ratelimit.Stats                       `json:"global,omitempty"`
	Breakers map[string]string                      `json:"breakers,omitempty"`
	Sync     []syncer.Status                        `json:"sync,omitempty"`
	Queue    *syncer.QueueStatus                    `json:"queue,omitempty"`
	Usage    *storage.UsageTotals                   `json:"usage,omitempty"`
}

// handleStatus is the device-facing system overview. Non-admin devices see
// their own limits; admins additionally get the global limiter stats.
func (s *server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := wizard.IdentityFromContext(r.Context())

	res := statusResponse{
		Device: id,
		Cost:   s.deps.Gateway.CostStatus(),
		Policy: s.deps.Policy.Status(),
	}

	if s.deps.Limiter != nil && id != nil {
		res.Limits = s.deps.Limiter.DeviceStats(id.DeviceID)
		if id.IsAdmin() {
			stats := s.deps.Limiter.Stats()
			res.Global = &stats
		}
	}
	if s.deps.Breakers != nil {
		res.Breakers = s.deps.Breakers.States()
	}
	if s.deps.Sync != nil {
		statuses, queue := s.deps.Sync.Statuses()
		res.Sync = statuses
		res.Queue = &queue
	}
	if s.deps.Store != nil && id != nil {
		if totals, err := s.deps.Store.DeviceUsage(r.Context(), id.DeviceID, time.Now().Add(-24*time.Hour)); err == nil {
			res.Usage = &totals
		}
	}

	writeJSON(w, http.StatusOK, res)
}

type rateLimitsResponse struct {
	DeviceID string                                 `json:"device_id"`
	Tiers    map[ratelimit.Tier]ratelimit.TierStats `json:"tiers"`
}

func (s *server) handleRateLimits(w http.ResponseWriter, r *http.Request) {
	id := wizard.IdentityFromContext(r.Context())
	if id == nil {
		writeError(w, wizard.ErrUnauthorized)
		return
	}
	res := rateLimitsResponse{DeviceID: id.DeviceID}
	if s.deps.Limiter != nil {
		res.Tiers = s.deps.Limiter.DeviceStats(id.DeviceID)
	}
	writeJSON(w, http.StatusOK, res)
}
