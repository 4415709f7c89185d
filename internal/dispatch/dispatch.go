// Package dispatch implements the three-stage command dispatcher: canonical
// command fuzzy match, shell validation, and skill inference. The route
// order is a locked contract; every response carries it verbatim.
package dispatch

import (
	"log/slog"
	"strings"
)

// Contract metadata emitted on every response, including errors.
const ContractVersion = "m1.1"

// RouteOrder is the frozen stage ordering of the dispatch contract.
var RouteOrder = []string{"ucode", "shell", "vibe"}

// debugPrefix toggles route tracing when it leads the input.
const debugPrefix = "--dispatch-debug "

// Contract is the locked version + route-order envelope section.
type Contract struct {
	Version    string   `json:"version"`
	RouteOrder []string `json:"route_order"`
}

// ShellPayload describes a validated shell command ready for execution.
type ShellPayload struct {
	Command              string   `json:"command"`
	Args                 []string `json:"args"`
	Raw                  string   `json:"raw"`
	ValidationReason     string   `json:"validation_reason"`
	RequiresConfirmation bool     `json:"requires_confirmation"`
	ConfirmationReason   string   `json:"confirmation_reason,omitempty"`
}

// TraceRecord is one stage decision in the debug route trace.
type TraceRecord struct {
	Stage    int     `json:"stage"`
	Decision string  `json:"decision"` // match | dispatch | validate | confirm_required | skip
	Detail   string  `json:"detail,omitempty"`
	Reason   string  `json:"reason,omitempty"`
	IsSafe   *bool   `json:"is_safe,omitempty"`
	Distance int     `json:"distance,omitempty"`
	Score    float64 `json:"score,omitempty"`
}

// Debug carries the route trace when tracing is enabled.
type Debug struct {
	RouteTrace []TraceRecord `json:"route_trace"`
}

// Response is the dispatch envelope.
type Response struct {
	Status     string        `json:"status"` // ok | error | pending
	Stage      int           `json:"stage"`
	DispatchTo string        `json:"dispatch_to"` // ucode | shell | vibe | confirm
	Command    string        `json:"command,omitempty"`
	Params     []string      `json:"params,omitempty"`
	Confidence float64       `json:"confidence"`
	Skill      string        `json:"skill,omitempty"`
	Message    string        `json:"message,omitempty"`
	Shell      *ShellPayload `json:"shell,omitempty"`
	Debug      *Debug        `json:"debug,omitempty"`
	Contract   Contract      `json:"contract"`
}

// Config controls stage-2 shell validation.
type Config struct {
	ShellEnabled bool
	// AllowList, when non-empty, is a strict allow-list of shell commands.
	AllowList []string
}

// Dispatcher routes free-form user input to a structured decision.
// It owns no mutable state beyond its config and is safe for concurrent use.
type Dispatcher struct {
	cfg   Config
	allow map[string]bool
}

// New creates a Dispatcher with the given config.
func New(cfg Config) *Dispatcher {
	d := &Dispatcher{cfg: cfg}
	if len(cfg.AllowList) > 0 {
		d.allow = make(map[string]bool, len(cfg.AllowList))
		for _, c := range cfg.AllowList {
			d.allow[strings.ToLower(c)] = true
		}
	}
	return d
}

// contract returns the frozen contract metadata.
func contract() Contract {
	return Contract{Version: ContractVersion, RouteOrder: RouteOrder}
}

// Dispatch runs the three stages in order and returns the envelope.
// Stages run sequentially; the first stage to claim the input wins.
func (d *Dispatcher) Dispatch(input string) *Response {
	var trace *Debug
	if strings.HasPrefix(input, debugPrefix) {
		trace = &Debug{}
		input = strings.TrimPrefix(input, debugPrefix)
	}

	input = strings.TrimSpace(input)
	if input == "" {
		return &Response{
			Status:   "error",
			Message:  "Empty input",
			Debug:    trace,
			Contract: contract(),
		}
	}

	if resp := d.stage1(input, trace); resp != nil {
		resp.Debug = trace
		return resp
	}

	if resp := d.stage2(input, trace); resp != nil {
		resp.Debug = trace
		return resp
	}

	resp := d.stage3(input, trace)
	resp.Debug = trace
	return resp
}

// stage1 attempts a canonical command match, exact first then fuzzy.
// Returns nil to fall through to stage 2.
func (d *Dispatcher) stage1(input string, trace *Debug) *Response {
	fields := strings.Fields(input)
	token := strings.ToUpper(fields[0])
	token, injected := resolveAlias(token)

	params := append(append([]string(nil), injected...), fields[1:]...)

	if catalog[token] {
		addTrace(trace, TraceRecord{Stage: 1, Decision: "match", Detail: token})
		return &Response{
			Status:     "ok",
			Stage:      1,
			DispatchTo: "ucode",
			Command:    token,
			Params:     params,
			Confidence: 1.0,
			Contract:   contract(),
		}
	}

	// Short or non-alphabetic first tokens look like shell input ("ls",
	// "nc"); never consume them with a fuzzy command match.
	if len(token) < 4 || !isAlpha(token) {
		addTrace(trace, TraceRecord{Stage: 1, Decision: "skip", Reason: "token not command-like"})
		return nil
	}

	best, bestDist := "", 3
	for _, cmd := range catalogSorted {
		dist := levenshtein(token, cmd)
		if dist <= 2 && dist < bestDist {
			best, bestDist = cmd, dist
		}
	}
	if best == "" {
		addTrace(trace, TraceRecord{Stage: 1, Decision: "skip", Reason: "no candidate within distance 2"})
		return nil
	}

	confidence := max(0.80, 1.0-0.1*float64(bestDist))
	addTrace(trace, TraceRecord{Stage: 1, Decision: "match", Detail: best, Distance: bestDist, Score: confidence})

	resp := &Response{
		Status:     "ok",
		Stage:      1,
		Command:    best,
		Params:     params,
		Confidence: confidence,
		Contract:   contract(),
	}
	switch {
	case confidence >= 0.95:
		resp.DispatchTo = "ucode"
	case confidence >= 0.80:
		resp.DispatchTo = "confirm"
		resp.Message = "Did you mean " + best + "?"
		addTrace(trace, TraceRecord{Stage: 1, Decision: "confirm_required", Detail: best})
	default:
		return nil
	}
	return resp
}

// isAlpha reports whether s consists only of ASCII letters.
func isAlpha(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < 'A' || c > 'Z') && (c < 'a' || c > 'z') {
			return false
		}
	}
	return true
}

// addTrace appends a trace record when tracing is enabled.
func addTrace(trace *Debug, rec TraceRecord) {
	if trace == nil {
		return
	}
	trace.RouteTrace = append(trace.RouteTrace, rec)
}

// logDecision emits a debug log for an unusual routing outcome.
func logDecision(stage int, decision, detail string) {
	slog.Debug("dispatch decision", "stage", stage, "decision", decision, "detail", detail)
}
