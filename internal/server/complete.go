package server

import (
	"encoding/json"
	"net/http"

	wizard "github.com/wizardlabs/wizard/internal"
	"github.com/wizardlabs/wizard/internal/gateway"
)

// handleComplete runs a completion request through the gateway pipeline.
// The gateway always returns a Result; on failure the typed error inside
// it decides the HTTP status while the full Result stays in the body so
// clients see routing and classification detail even for rejections.
func (s *server) handleComplete(w http.ResponseWriter, r *http.Request) {
	var req gateway.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, wizard.NewError(wizard.CodeInvalidInput, "", "invalid JSON body"))
		return
	}

	res := s.deps.Gateway.Complete(r.Context(), &req)
	s.recordCompleteMetrics(res)
	if !res.Success && res.Error != nil {
		writeJSON(w, errorStatus(res.Error), res)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *server) recordCompleteMetrics(res *gateway.Result) {
	m := s.deps.Metrics
	if m == nil {
		return
	}
	if res.Backend != "" {
		m.BackendDuration.WithLabelValues(res.Backend, res.Model).Observe(float64(res.LatencyMs) / 1000)
		m.TokensProcessed.WithLabelValues(res.Backend, "prompt").Add(float64(res.PromptTokens))
		m.TokensProcessed.WithLabelValues(res.Backend, "completion").Add(float64(res.CompletionTokens))
	}
	if res.Error != nil {
		m.BackendErrors.WithLabelValues(res.Error.Backend, string(res.Error.Code)).Inc()
	}
	if res.Route != nil && res.Route.EscalationReason != "" {
		m.Escalations.Inc()
	}
	if res.Cost > 0 {
		m.CloudCostUSD.Add(res.Cost)
	}
}
