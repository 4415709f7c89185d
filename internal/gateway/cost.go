package gateway

import (
	"fmt"
	"sync"
	"time"

	wizard "github.com/wizardlabs/wizard/internal"
)

// cloudCostPer1K is the blended USD price per 1000 cloud tokens used for
// estimates before the real usage comes back.
const cloudCostPer1K = 0.002

// estimateCloudCost prices a request from its token estimate. Local runs
// are free.
func estimateCloudCost(backend string, tokens int) float64 {
	if backend != "cloud" {
		return 0
	}
	return float64(tokens) / 1000 * cloudCostPer1K
}

// CostTracker owns the gateway-wide spend and request counters. Daily and
// monthly windows roll automatically on first touch after the boundary.
type CostTracker struct {
	mu            sync.Mutex
	dailyBudget   float64
	monthlyBudget float64
	requestCap    int

	spentToday    float64
	spentMonth    float64
	requestsToday int
	dayReset      time.Time
	monthReset    time.Time
}

// NewCostTracker creates a tracker with the given budgets. A requestCap of
// 0 means unlimited requests.
func NewCostTracker(dailyBudget, monthlyBudget float64, requestCap int) *CostTracker {
	now := time.Now()
	return &CostTracker{
		dailyBudget:   dailyBudget,
		monthlyBudget: monthlyBudget,
		requestCap:    requestCap,
		dayReset:      nextDay(now),
		monthReset:    nextMonth(now),
	}
}

// Guard rejects the request when the day's spend or request count is
// already at its cap. Called before any routing work.
func (t *CostTracker) Guard() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollLocked(time.Now())

	if t.dailyBudget > 0 && t.spentToday >= t.dailyBudget {
		return wizard.NewError(wizard.CodeInvalidInput, "",
			fmt.Sprintf("daily budget exhausted: %.2f of %.2f USD", t.spentToday, t.dailyBudget))
	}
	if t.requestCap > 0 && t.requestsToday >= t.requestCap {
		return wizard.NewError(wizard.CodeInvalidInput, "",
			fmt.Sprintf("daily request cap reached: %d", t.requestCap))
	}
	return nil
}

// RecordRequest commits one completed request and its cost.
func (t *CostTracker) RecordRequest(cost float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollLocked(time.Now())
	t.requestsToday++
	t.spentToday += cost
	t.spentMonth += cost
}

// rollLocked resets elapsed windows. Caller holds t.mu.
func (t *CostTracker) rollLocked(now time.Time) {
	if now.After(t.dayReset) {
		t.spentToday = 0
		t.requestsToday = 0
		t.dayReset = nextDay(now)
	}
	if now.After(t.monthReset) {
		t.spentMonth = 0
		t.monthReset = nextMonth(now)
	}
}

func nextDay(now time.Time) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, now.Location()).AddDate(0, 0, 1)
}

func nextMonth(now time.Time) time.Time {
	y, m, _ := now.Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, now.Location()).AddDate(0, 1, 0)
}

// CostStatus is the tracker snapshot for the status surface.
type CostStatus struct {
	DailyBudget   float64 `json:"daily_budget"`
	MonthlyBudget float64 `json:"monthly_budget"`
	SpentToday    float64 `json:"spent_today"`
	SpentMonth    float64 `json:"spent_this_month"`
	RequestsToday int     `json:"requests_today"`
}

// Status returns the current counters.
func (t *CostTracker) Status() CostStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollLocked(time.Now())
	return CostStatus{
		DailyBudget:   t.dailyBudget,
		MonthlyBudget: t.monthlyBudget,
		SpentToday:    t.spentToday,
		SpentMonth:    t.spentMonth,
		RequestsToday: t.requestsToday,
	}
}
