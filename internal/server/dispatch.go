package server

import (
	"encoding/json"
	"net/http"
	"strings"

	wizard "github.com/wizardlabs/wizard/internal"
)

type dispatchRequest struct {
	Input string `json:"input"`
}

func (s *server) handleDispatch(w http.ResponseWriter, r *http.Request) {
	var req dispatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, wizard.NewError(wizard.CodeInvalidInput, "", "invalid JSON body"))
		return
	}
	if strings.TrimSpace(req.Input) == "" {
		writeError(w, wizard.NewError(wizard.CodeInvalidInput, "", "input is required"))
		return
	}

	res := s.deps.Dispatcher.Dispatch(req.Input)
	if s.deps.Metrics != nil {
		s.deps.Metrics.DispatchTotal.WithLabelValues(res.DispatchTo).Inc()
	}
	writeJSON(w, http.StatusOK, res)
}
