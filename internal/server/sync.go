package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	wizard "github.com/wizardlabs/wizard/internal"
	"github.com/wizardlabs/wizard/internal/syncer"
)

// syncKindAliases maps friendly endpoint kinds to provider keys. Anything
// not listed is treated as a provider key directly (jira, linear, slack).
var syncKindAliases = map[string]string{
	"calendar": "google_calendar",
	"email":    "gmail",
}

type syncRequest struct {
	MissionID string `json:"mission_id,omitempty"`
	Query     string `json:"query,omitempty"`
	Filter    string `json:"filter,omitempty"`
	ChannelID string `json:"channel_id,omitempty"`
	Limit     int    `json:"limit,omitempty"`
}

func (s *server) handleSync(w http.ResponseWriter, r *http.Request) {
	if s.deps.Sync == nil {
		writeError(w, wizard.NewError(wizard.CodeUnsupported, "", "sync is not configured"))
		return
	}

	var req syncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, wizard.NewError(wizard.CodeInvalidInput, "", "invalid JSON body"))
		return
	}
	opts := syncer.Options{
		MissionID: req.MissionID,
		Query:     req.Query,
		Filter:    req.Filter,
		ChannelID: req.ChannelID,
		Limit:     req.Limit,
	}

	kind := chi.URLParam(r, "kind")
	if kind == "status" {
		s.handleSyncStatus(w, r)
		return
	}
	if kind == "all" {
		results := s.deps.Sync.SyncAll(r.Context(), opts)
		s.recordSyncMetrics(results)
		writeJSON(w, http.StatusOK, results)
		return
	}

	key := kind
	if alias, ok := syncKindAliases[kind]; ok {
		key = alias
	}
	res, err := s.deps.Sync.Sync(r.Context(), key, opts)
	if err != nil {
		writeError(w, err)
		return
	}
	s.recordSyncMetrics(map[string]*syncer.Result{key: res})
	writeJSON(w, http.StatusOK, res)
}

func (s *server) recordSyncMetrics(results map[string]*syncer.Result) {
	if s.deps.Metrics == nil {
		return
	}
	for key, res := range results {
		if res == nil {
			continue
		}
		s.deps.Metrics.SyncRecords.WithLabelValues(key, res.Status).Add(float64(res.SyncedCount))
	}
}

func (s *server) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	if s.deps.Sync == nil {
		writeError(w, wizard.NewError(wizard.CodeUnsupported, "", "sync is not configured"))
		return
	}
	statuses, queue := s.deps.Sync.Statuses()
	writeJSON(w, http.StatusOK, map[string]any{
		"providers": statuses,
		"queue":     queue,
		"history":   s.deps.Sync.History(),
	})
}
