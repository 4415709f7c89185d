package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	wizard "github.com/wizardlabs/wizard/internal"
)

// apiError is the error envelope returned by every failing endpoint.
type apiError struct {
	Status  string       `json:"status"`
	Message string       `json:"message"`
	Err     *errorDetail `json:"error,omitempty"`
}

type errorDetail struct {
	Code      wizard.Code `json:"code"`
	Backend   string      `json:"backend,omitempty"`
	Message   string      `json:"message"`
	Retryable bool        `json:"retryable"`
}

func errorResponse(err error) apiError {
	resp := apiError{Status: "error", Message: err.Error()}
	var we *wizard.Error
	if errors.As(err, &we) {
		resp.Err = &errorDetail{
			Code:      we.Code,
			Backend:   we.Backend,
			Message:   we.Message,
			Retryable: we.Retryable(),
		}
	}
	return resp
}

func errorStatus(err error) int {
	var we *wizard.Error
	if errors.As(err, &we) {
		switch we.Code {
		case wizard.CodeNotFound:
			return http.StatusNotFound
		case wizard.CodeInvalidInput:
			return http.StatusBadRequest
		case wizard.CodeAuthRequired:
			return http.StatusUnauthorized
		case wizard.CodeConflict:
			return http.StatusConflict
		case wizard.CodeUnsupported:
			return http.StatusUnprocessableEntity
		case wizard.CodeTimeout:
			return http.StatusGatewayTimeout
		case wizard.CodeBackendUnavailable:
			return http.StatusServiceUnavailable
		}
		return http.StatusInternalServerError
	}

	switch {
	case errors.Is(err, wizard.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, wizard.ErrForbidden), errors.Is(err, wizard.ErrDeviceBlocked):
		return http.StatusForbidden
	case errors.Is(err, wizard.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, wizard.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, wizard.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, wizard.ErrBadRequest):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// jsonCT is a pre-allocated header value slice. Direct map assignment
// (w.Header()["Content-Type"] = jsonCT) avoids the []string{v} alloc
// that Header.Set creates on every call. Saves 1 alloc/req.
var jsonCT = []string{"application/json"}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header()["Content-Type"] = jsonCT
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, errorStatus(err), errorResponse(err))
}
