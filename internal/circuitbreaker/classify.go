package circuitbreaker

import (
	"context"
	"errors"
	"net"
	"os"

	wizard "github.com/wizardlabs/wizard/internal"
)

// httpStatusError matches backend errors that carry the upstream HTTP status.
type httpStatusError interface {
	HTTPStatus() int
}

// Weigh converts a backend error into a breaker weight.
//
// Timeouts weigh heaviest: a hung backend costs the caller the full deadline
// before anything fails over. Hard backend faults weigh 1.0. Caller mistakes
// (bad input, auth, unsupported model) weigh nothing; they say nothing about
// the backend's health.
func Weigh(err error) float64 {
	if err == nil {
		return 0
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return 1.5
	}

	var we *wizard.Error
	if errors.As(err, &we) {
		switch we.Code {
		case wizard.CodeTimeout:
			return 1.5
		case wizard.CodeBackendUnavailable, wizard.CodeInternal:
			return 1.0
		default:
			return 0
		}
	}

	var he httpStatusError
	if errors.As(err, &he) {
		return weighStatus(he.HTTPStatus())
	}

	var ne *net.OpError
	if errors.As(err, &ne) {
		return 1.0
	}

	// Unrecognized errors count as backend faults.
	return 1.0
}

func weighStatus(code int) float64 {
	switch {
	case code == 429:
		return 0.5
	case code >= 500 && code <= 504:
		return 1.0
	default:
		return 0
	}
}
