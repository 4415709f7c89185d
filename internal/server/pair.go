package server

import (
	"encoding/json"
	"net/http"

	wizard "github.com/wizardlabs/wizard/internal"
)

type pairBeginResponse struct {
	Request *wizard.PairingRequest `json:"request"`
	QR      *wizard.QRPayload      `json:"qr"`
}

func (s *server) handlePairBegin(w http.ResponseWriter, r *http.Request) {
	req, qr, err := s.deps.Pairing.Begin(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pairBeginResponse{Request: req, QR: qr})
}

type pairCompleteRequest struct {
	Code       string `json:"code"`
	Name       string `json:"name"`
	DeviceType string `json:"device_type"`
}

type pairCompleteResponse struct {
	Device *wizard.Device `json:"device"`
	Token  string         `json:"token"`
}

func (s *server) handlePairComplete(w http.ResponseWriter, r *http.Request) {
	var req pairCompleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, wizard.NewError(wizard.CodeInvalidInput, "", "invalid JSON body"))
		return
	}
	device, token, err := s.deps.Pairing.Complete(r.Context(), req.Code, req.Name, req.DeviceType)
	if err != nil {
		writeError(w, err)
		return
	}
	// The raw token is returned exactly once; only its hash is stored.
	writeJSON(w, http.StatusOK, pairCompleteResponse{Device: device, Token: token})
}
