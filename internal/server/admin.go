package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	wizard "github.com/wizardlabs/wizard/internal"
	"github.com/wizardlabs/wizard/internal/ratelimit"
)

func (s *server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.deps.Store.ListDevices(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": devices})
}

func (s *server) handleRemoveDevice(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "id")
	if err := s.deps.Store.DeleteDevice(r.Context(), deviceID); err != nil {
		writeError(w, err)
		return
	}
	// Drop the cached token so the removed device loses access immediately.
	if inv, ok := s.deps.Auth.(interface{ InvalidateDevice(string) }); ok {
		inv.InvalidateDevice(deviceID)
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "device_id": deviceID})
}

type blockRequest struct {
	Tier            ratelimit.Tier `json:"tier"`
	DurationSeconds int            `json:"duration_seconds"`
}

const defaultBlockDuration = time.Hour

func (s *server) handleBlockDevice(w http.ResponseWriter, r *http.Request) {
	if s.deps.Limiter == nil {
		writeError(w, wizard.NewError(wizard.CodeUnsupported, "", "rate limiting is not configured"))
		return
	}
	deviceID := chi.URLParam(r, "id")

	var req blockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, wizard.NewError(wizard.CodeInvalidInput, "", "invalid JSON body"))
		return
	}
	if req.Tier == "" {
		writeError(w, wizard.NewError(wizard.CodeInvalidInput, "", "tier is required"))
		return
	}
	dur := defaultBlockDuration
	if req.DurationSeconds > 0 {
		dur = time.Duration(req.DurationSeconds) * time.Second
	}

	s.deps.Limiter.BlockDevice(deviceID, req.Tier, dur)
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"device_id": deviceID,
		"tier":      req.Tier,
		"until":     time.Now().Add(dur),
	})
}

func (s *server) handleUnblockDevice(w http.ResponseWriter, r *http.Request) {
	if s.deps.Limiter == nil {
		writeError(w, wizard.NewError(wizard.CodeUnsupported, "", "rate limiting is not configured"))
		return
	}
	deviceID := chi.URLParam(r, "id")

	// The tier is optional: an absent (or empty-body) request clears the
	// block on every tier.
	var req struct {
		Tier ratelimit.Tier `json:"tier"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, wizard.NewError(wizard.CodeInvalidInput, "", "invalid JSON body"))
		return
	}

	s.deps.Limiter.UnblockDevice(deviceID, req.Tier)
	resp := map[string]any{
		"status":    "ok",
		"device_id": deviceID,
	}
	if req.Tier != "" {
		resp["tier"] = req.Tier
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) handlePolicy(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Policy.Status())
}
