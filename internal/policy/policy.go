// Package policy enforces privacy, budget, and secret-safety constraints
// before any cloud transmission. Every rule failure is recorded into a
// bounded audit ring exposed via the status query.
package policy

import (
	"fmt"
	"sync"
	"time"

	"github.com/wizardlabs/wizard/internal/classify"
)

// Severity grades a recorded violation.
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Violation is one audit entry for a failed policy rule.
type Violation struct {
	TaskID    string    `json:"task_id"`
	Rule      string    `json:"rule"`
	Reason    string    `json:"reason"`
	Severity  Severity  `json:"severity"`
	Timestamp time.Time `json:"timestamp"`
}

// Route is the routing decision the enforcer validates. Kept minimal so the
// gateway owns the full route shape.
type Route struct {
	TaskID        string
	Backend       string // "local" or "cloud"
	Privacy       classify.Privacy
	EstimatedCost float64
}

// maxViolations bounds the audit ring.
const maxViolations = 256

// Config holds enforcement parameters.
type Config struct {
	CloudEnabled bool
	DailyBudget  float64 // USD
}

// Enforcer validates routes against the ordered rule set and tracks the
// cloud spend budget. Safe for concurrent use.
type Enforcer struct {
	mu         sync.Mutex
	cfg        Config
	spentToday float64
	resetAt    time.Time
	violations []Violation
	total      int
}

// New creates an Enforcer with the given config.
func New(cfg Config) *Enforcer {
	return &Enforcer{cfg: cfg, resetAt: nextMidnight(time.Now())}
}

// SetCloudEnabled flips the cloud kill switch at runtime. Used by config
// hot reload.
func (e *Enforcer) SetCloudEnabled(enabled bool) {
	e.mu.Lock()
	e.cfg.CloudEnabled = enabled
	e.mu.Unlock()
}

// Validate applies the rules in order and returns (true, "") when the route
// passes. On failure it records a violation and returns the combined reason.
func (e *Enforcer) Validate(r Route, prompt string) (bool, string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rollLocked(time.Now())

	if r.Privacy == classify.PrivacyPrivate && r.Backend != "local" {
		return false, e.recordLocked(r.TaskID, "privacy_private_local_only",
			"Private tasks cannot use cloud backend", SeverityError)
	}
	if r.Backend == "cloud" && !e.cfg.CloudEnabled {
		return false, e.recordLocked(r.TaskID, "cloud_disabled",
			"Cloud backend is disabled", SeverityError)
	}
	if r.Backend == "cloud" {
		if kind, found := detectSecret(prompt); found {
			return false, e.recordLocked(r.TaskID, "secret_detected",
				"Detected secrets in prompt ("+kind+")", SeverityError)
		}
		if e.spentToday+r.EstimatedCost > e.cfg.DailyBudget {
			return false, e.recordLocked(r.TaskID, "daily_budget",
				fmt.Sprintf("Daily budget exceeded: spent %.2f of %.2f", e.spentToday, e.cfg.DailyBudget),
				SeverityError)
		}
	}
	return true, ""
}

// recordLocked appends a violation under e.mu and returns the reason.
func (e *Enforcer) recordLocked(taskID, rule, reason string, sev Severity) string {
	e.total++
	e.violations = append(e.violations, Violation{
		TaskID:    taskID,
		Rule:      rule,
		Reason:    reason,
		Severity:  sev,
		Timestamp: time.Now(),
	})
	if len(e.violations) > maxViolations {
		e.violations = e.violations[len(e.violations)-maxViolations:]
	}
	return reason
}

// RecordCloudCost adds a confirmed cloud spend amount to today's total.
func (e *Enforcer) RecordCloudCost(amount float64) {
	e.mu.Lock()
	e.rollLocked(time.Now())
	e.spentToday += amount
	e.mu.Unlock()
}

// ResetDailyBudget zeroes today's spend. Called at the day boundary.
func (e *Enforcer) ResetDailyBudget() {
	e.mu.Lock()
	e.spentToday = 0
	e.resetAt = nextMidnight(time.Now())
	e.mu.Unlock()
}

// rollLocked resets the daily window if it has elapsed. Caller holds e.mu.
func (e *Enforcer) rollLocked(now time.Time) {
	if now.After(e.resetAt) {
		e.spentToday = 0
		e.resetAt = nextMidnight(now)
	}
}

func nextMidnight(now time.Time) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, now.Location()).AddDate(0, 0, 1)
}

// Status is the policy status query result.
type Status struct {
	CloudEnabled    bool        `json:"cloud_enabled"`
	DailyBudget     float64     `json:"daily_budget"`
	SpentToday      float64     `json:"spent_today"`
	Remaining       float64     `json:"remaining"`
	TotalViolations int         `json:"total_violations"`
	Recent          []Violation `json:"recent_violations"`
}

// Status returns the budget state and the most recent violations.
func (e *Enforcer) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rollLocked(time.Now())

	recent := e.violations
	if len(recent) > 20 {
		recent = recent[len(recent)-20:]
	}
	out := make([]Violation, len(recent))
	copy(out, recent)

	return Status{
		CloudEnabled:    e.cfg.CloudEnabled,
		DailyBudget:     e.cfg.DailyBudget,
		SpentToday:      e.spentToday,
		Remaining:       max(e.cfg.DailyBudget-e.spentToday, 0),
		TotalViolations: e.total,
		Recent:          out,
	}
}

// Violations returns a copy of the audit ring, newest last.
func (e *Enforcer) Violations() []Violation {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Violation, len(e.violations))
	copy(out, e.violations)
	return out
}

// CloudAllowed reports whether the cloud backend is globally enabled and the
// budget can absorb the estimated cost. Used by the sanity-check heuristic.
func (e *Enforcer) CloudAllowed(estimatedCost float64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rollLocked(time.Now())
	return e.cfg.CloudEnabled && e.spentToday+estimatedCost <= e.cfg.DailyBudget
}
