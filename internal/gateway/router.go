package gateway

import (
	"sync"
	"time"

	"github.com/wizardlabs/wizard/internal/classify"
)

// Route is a routing decision for one task.
type Route struct {
	TaskID           string           `json:"task_id"`
	Backend          string           `json:"backend"` // "local" or "cloud"
	Model            string           `json:"model"`
	PromptSize       int              `json:"prompt_size"`
	EstimatedCost    float64          `json:"estimated_cost"`
	EscalationReason string           `json:"escalation_reason,omitempty"`
	Privacy          classify.Privacy `json:"privacy_level"`
	Timestamp        time.Time        `json:"timestamp"`
}

// contract is the router's derived execution envelope: the intent family,
// the model pinned for that intent, and whether cloud is reachable at all.
type contract struct {
	Intent        string
	Model         string
	OnlineAllowed bool
}

// contractIntent collapses classification intents into the three contract
// families.
func contractIntent(in classify.Intent) string {
	switch in {
	case classify.IntentDesign:
		return "design"
	case classify.IntentCode, classify.IntentTest:
		return "code"
	default:
		return "chat"
	}
}

// maxHistory bounds the routing decision log.
const maxHistory = 200

// escalateAfterFailures is how many local failures a task accrues before
// the router escalates it to cloud.
const escalateAfterFailures = 2

// Router tracks routing decisions and per-task local failure counts.
// Safe for concurrent use.
type Router struct {
	mu            sync.Mutex
	history       []Route
	localFailures map[string]int
}

// NewRouter creates an empty Router.
func NewRouter() *Router {
	return &Router{localFailures: make(map[string]int)}
}

// RecordDecision appends a route to the bounded history.
func (r *Router) RecordDecision(route Route) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.history = append(r.history, route)
	if len(r.history) > maxHistory {
		r.history = r.history[len(r.history)-maxHistory:]
	}
}

// History returns a copy of the recorded decisions, newest last.
func (r *Router) History() []Route {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Route, len(r.history))
	copy(out, r.history)
	return out
}

// NoteLocalFailure bumps the task's local failure count and reports whether
// the task should escalate to cloud.
func (r *Router) NoteLocalFailure(taskID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.localFailures[taskID]++
	return r.localFailures[taskID] >= escalateAfterFailures
}

// ClearFailures forgets the task's failure count after a success.
func (r *Router) ClearFailures(taskID string) {
	r.mu.Lock()
	delete(r.localFailures, taskID)
	r.mu.Unlock()
}
