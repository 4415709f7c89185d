package backend

import (
	"fmt"
	"io"
	"net/http"

	wizard "github.com/wizardlabs/wizard/internal"
)

// APIError is a non-2xx response from a backend service. It keeps the raw
// status for breaker weighting and maps onto the typed error taxonomy.
type APIError struct {
	Backend    string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: HTTP %d: %s", e.Backend, e.StatusCode, e.Body)
}

// HTTPStatus returns the upstream status code.
func (e *APIError) HTTPStatus() int { return e.StatusCode }

// Typed maps the status onto the gateway error taxonomy.
func (e *APIError) Typed() *wizard.Error {
	code := wizard.CodeInternal
	switch {
	case e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden:
		code = wizard.CodeAuthRequired
	case e.StatusCode == http.StatusNotFound:
		code = wizard.CodeNotFound
	case e.StatusCode == http.StatusBadRequest || e.StatusCode == http.StatusUnprocessableEntity:
		code = wizard.CodeInvalidInput
	case e.StatusCode == http.StatusRequestTimeout:
		code = wizard.CodeTimeout
	case e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500:
		code = wizard.CodeBackendUnavailable
	}
	return wizard.WrapError(code, e.Backend, e)
}

// ParseAPIError reads up to 4KB of the error body and returns the typed form.
func ParseAPIError(backend string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	ae := &APIError{Backend: backend, StatusCode: resp.StatusCode, Body: string(body)}
	return ae.Typed()
}
