// Package gateway fulfills completion requests end-to-end under the
// offline-first policy: classify, route, enforce policy, execute, account.
// Local is always the default backend; cloud is reached only by explicit
// force or by escalation after repeated local failures.
package gateway

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	wizard "github.com/wizardlabs/wizard/internal"
	"github.com/wizardlabs/wizard/internal/backend"
	"github.com/wizardlabs/wizard/internal/circuitbreaker"
	"github.com/wizardlabs/wizard/internal/classify"
	"github.com/wizardlabs/wizard/internal/policy"
)

// Mode selects the completion preset.
type Mode string

const (
	ModeConversation Mode = "conversation"
	ModeCreative     Mode = "creative"
	ModeCode         Mode = "code"
)

// modePreset fills system prompt and temperature when the caller left
// them unset.
type modePreset struct {
	System      string
	Temperature float64
}

var modePresets = map[Mode]modePreset{
	ModeCode:         {System: "You are a precise coding assistant. Output code with minimal prose.", Temperature: 0.2},
	ModeConversation: {System: "You are a helpful assistant.", Temperature: 0.7},
	ModeCreative:     {System: "You are a creative writing assistant.", Temperature: 1.0},
}

// Request is the completion gateway input contract.
type Request struct {
	Prompt          string           `json:"prompt"`
	Model           string           `json:"model,omitempty"`
	SystemPrompt    string           `json:"system_prompt,omitempty"`
	MaxTokens       int              `json:"max_tokens"`
	Temperature     *float64         `json:"temperature,omitempty"`
	Stream          bool             `json:"stream,omitempty"`
	Mode            Mode             `json:"mode,omitempty"`
	TaskID          string           `json:"task_id,omitempty"`
	Workspace       string           `json:"workspace,omitempty"`
	Privacy         classify.Privacy `json:"privacy,omitempty"`
	Urgency         string           `json:"urgency,omitempty"`
	Tags            []string         `json:"tags,omitempty"`
	ConversationID  string           `json:"conversation_id,omitempty"`
	ForceCloud      bool             `json:"force_cloud,omitempty"`
	CloudSanity     bool             `json:"cloud_sanity,omitempty"`
	AllowCloud      bool             `json:"allow_cloud,omitempty"`
	OfflineRequired bool             `json:"offline_required,omitempty"`
	GhostMode       bool             `json:"ghost_mode,omitempty"`
	TaskHint        string           `json:"task_hint,omitempty"`
}

// Result is the completion gateway output contract.
type Result struct {
	Success          bool                     `json:"success"`
	Content          string                   `json:"content,omitempty"`
	Model            string                   `json:"model,omitempty"`
	Provider         string                   `json:"provider,omitempty"`
	Backend          string                   `json:"backend,omitempty"`
	PromptTokens     int                      `json:"prompt_tokens"`
	CompletionTokens int                      `json:"completion_tokens"`
	TotalTokens      int                      `json:"total_tokens"`
	Cost             float64                  `json:"cost"`
	Route            *Route                   `json:"route,omitempty"`
	Classification   *classify.Classification `json:"classification,omitempty"`
	Cached           bool                     `json:"cached"`
	LatencyMs        int                      `json:"latency_ms"`
	Error            *wizard.Error            `json:"error,omitempty"`
	Timestamp        time.Time                `json:"timestamp"`
	SanityCheck      *SanityCheck             `json:"sanity_check,omitempty"`
}

// Config holds gateway tuning. Cloud enablement itself lives in the policy
// enforcer; the gateway only knows which model to use when cloud is reached.
type Config struct {
	GeneralModel        string // conversation/creative default
	CodeModel           string // code default
	CloudModel          string // escalation and sanity-check model
	OversizeCloudTokens int
	SanityTimeout       time.Duration
}

func (c *Config) withDefaults() {
	if c.GeneralModel == "" {
		c.GeneralModel = "llama3.2"
	}
	if c.CodeModel == "" {
		c.CodeModel = "qwen2.5-coder"
	}
	if c.CloudModel == "" {
		c.CloudModel = "gpt-4o-mini"
	}
	if c.OversizeCloudTokens <= 0 {
		c.OversizeCloudTokens = 6000
	}
	if c.SanityTimeout <= 0 {
		c.SanityTimeout = 10 * time.Second
	}
}

// UsageSink receives one record per completed (or failed) gateway request.
type UsageSink interface {
	Record(rec wizard.UsageRecord)
}

// Gateway wires the pipeline stages together.
type Gateway struct {
	cfg        Config
	classifier *classify.Classifier
	enforcer   *policy.Enforcer
	router     *Router
	cost       *CostTracker
	quota      *QuotaTracker
	breakers   *circuitbreaker.Registry
	local      backend.Backend
	cloud      backend.Backend
	usage      UsageSink
	log        *slog.Logger
}

// Deps bundles the gateway's collaborators.
type Deps struct {
	Classifier *classify.Classifier
	Enforcer   *policy.Enforcer
	Router     *Router
	Cost       *CostTracker
	Quota      *QuotaTracker
	Breakers   *circuitbreaker.Registry
	Local      backend.Backend
	Cloud      backend.Backend
	Usage      UsageSink
	Log        *slog.Logger
}

// New creates a Gateway. Cloud may be nil when the deployment is local-only.
func New(cfg Config, d Deps) *Gateway {
	cfg.withDefaults()
	if d.Log == nil {
		d.Log = slog.Default()
	}
	if d.Router == nil {
		d.Router = NewRouter()
	}
	return &Gateway{
		cfg:        cfg,
		classifier: d.Classifier,
		enforcer:   d.Enforcer,
		router:     d.Router,
		cost:       d.Cost,
		quota:      d.Quota,
		breakers:   d.Breakers,
		local:      d.Local,
		cloud:      d.Cloud,
		usage:      d.Usage,
		log:        d.Log,
	}
}

// Router exposes the routing history for the status surface.
func (g *Gateway) Router() *Router { return g.router }

// CostStatus exposes the cost tracker snapshot.
func (g *Gateway) CostStatus() CostStatus { return g.cost.Status() }

// Complete runs the full pipeline. The result always carries success or a
// typed error; transport errors never escape as raw Go errors.
func (g *Gateway) Complete(ctx context.Context, req *Request) *Result {
	start := time.Now()
	modelExplicit := req.Model != ""
	g.normalize(req)

	if err := g.cost.Guard(); err != nil {
		return g.refuse(ctx, req, nil, start, err)
	}

	cl := g.classifier.Classify(classify.Input{
		Prompt:    req.Prompt,
		TaskID:    req.TaskID,
		Workspace: req.Workspace,
		Privacy:   req.Privacy,
		Urgency:   req.Urgency,
	})
	req.TaskID = cl.TaskID

	// Ghost, private, and offline-required all pin the task to local and
	// drop the sanity check.
	forcedLocal := req.GhostMode || req.OfflineRequired ||
		cl.Privacy == classify.PrivacyPrivate || cl.HasTag("offline_required")
	if forcedLocal {
		req.CloudSanity = false
	}

	ct := contract{
		Intent:        contractIntent(cl.Intent),
		OnlineAllowed: !forcedLocal,
	}
	ct.Model = g.contractModel(ct.Intent)
	if req.ForceCloud && !ct.OnlineAllowed {
		return g.refuse(ctx, req, &cl, start,
			wizard.NewError(wizard.CodeBackendUnavailable, "cloud",
				"cloud backend requested but task is pinned to local"))
	}

	route := Route{
		TaskID:     req.TaskID,
		Backend:    "local",
		Model:      req.Model,
		PromptSize: cl.TokenEstimate,
		Privacy:    cl.Privacy,
		Timestamp:  time.Now(),
	}
	if req.ForceCloud {
		route.Backend = "cloud"
		route.Model = g.cfg.CloudModel
	} else if !modelExplicit {
		route.Model = ct.Model
	}
	route.EstimatedCost = estimateCloudCost(route.Backend, cl.TokenEstimate+req.MaxTokens)

	if route.Backend == "cloud" && cl.TokenEstimate > g.cfg.OversizeCloudTokens {
		return g.refuse(ctx, req, &cl, start,
			wizard.NewError(wizard.CodeInvalidInput, "cloud",
				"prompt too large for cloud backend; trim the context or run locally"))
	}

	ok, reason := g.enforcer.Validate(policyRoute(route), req.Prompt)
	if !ok && route.Backend == "cloud" {
		// Cloud blocked: fall back to local and re-validate.
		route.Backend = "local"
		route.Model = g.modelFor(req.Mode)
		route.EstimatedCost = 0
		ok, reason = g.enforcer.Validate(policyRoute(route), req.Prompt)
	}
	if !ok {
		return g.refuse(ctx, req, &cl, start,
			wizard.NewError(wizard.CodeInvalidInput, route.Backend, reason))
	}

	if !g.quota.Allow(route.Backend) {
		return g.refuse(ctx, req, &cl, start,
			wizard.NewError(wizard.CodeBackendUnavailable, route.Backend, "daily quota exhausted"))
	}

	if route.Model != "" {
		req.Model = route.Model
	}
	res, err := g.execute(ctx, &route, req)
	if err != nil && route.Backend == "local" && g.router.NoteLocalFailure(req.TaskID) &&
		ct.OnlineAllowed && g.cloud != nil {
		escalated := route
		escalated.Backend = "cloud"
		escalated.Model = g.cfg.CloudModel
		escalated.EscalationReason = "local_failures"
		escalated.EstimatedCost = estimateCloudCost("cloud", cl.TokenEstimate+req.MaxTokens)
		escalated.Timestamp = time.Now()

		if ok, _ := g.enforcer.Validate(policyRoute(escalated), req.Prompt); ok && g.quota.Allow("cloud") {
			g.log.LogAttrs(ctx, slog.LevelInfo, "escalating to cloud after local failures",
				slog.String("task_id", req.TaskID))
			escReq := *req
			escReq.Model = escalated.Model
			if res2, err2 := g.execute(ctx, &escalated, &escReq); err2 == nil {
				route, res, err = escalated, res2, nil
			}
		}
	}
	if err != nil {
		return g.refuse(ctx, req, &cl, start, err)
	}

	cost := estimateCloudCost(route.Backend, res.TotalTokens)
	g.cost.RecordRequest(cost)
	g.quota.Record(route.Backend)
	if route.Backend == "cloud" {
		g.enforcer.RecordCloudCost(cost)
	}
	g.router.RecordDecision(route)
	g.router.ClearFailures(req.TaskID)

	out := &Result{
		Success:          true,
		Content:          res.Content,
		Model:            res.Model,
		Provider:         res.Provider,
		Backend:          route.Backend,
		PromptTokens:     res.PromptTokens,
		CompletionTokens: res.CompletionTokens,
		TotalTokens:      res.TotalTokens,
		Cost:             cost,
		Route:            &route,
		Classification:   &cl,
		LatencyMs:        int(time.Since(start).Milliseconds()),
		Timestamp:        time.Now(),
	}

	if route.Backend == "local" && g.cloud != nil && ct.OnlineAllowed &&
		(req.CloudSanity || looksLowConfidence(res.Content)) &&
		g.enforcer.CloudAllowed(estimateCloudCost("cloud", cl.TokenEstimate)) {
		sc := runSanityCheck(ctx, g.cloud, g.cfg.CloudModel, req.Prompt, req.SystemPrompt, g.cfg.SanityTimeout)
		out.SanityCheck = sc
		if sc.Error == "" {
			sanityCost := estimateCloudCost("cloud", cl.TokenEstimate)
			g.cost.RecordRequest(sanityCost)
			g.enforcer.RecordCloudCost(sanityCost)
			g.quota.Record("cloud")
		}
	}

	g.recordUsage(ctx, req, out)
	g.log.LogAttrs(ctx, slog.LevelInfo, "completion served",
		slog.String("task_id", req.TaskID),
		slog.String("backend", out.Backend),
		slog.String("model", out.Model),
		slog.Int("total_tokens", out.TotalTokens),
		slog.Int("latency_ms", out.LatencyMs))
	return out
}

// normalize fills generated ids, default model, and mode presets.
func (g *Gateway) normalize(req *Request) {
	if req.TaskID == "" {
		req.TaskID = uuid.Must(uuid.NewV7()).String()
	}
	if req.Workspace == "" {
		req.Workspace = "core"
	}
	if req.Privacy == "" {
		req.Privacy = classify.PrivacyInternal
	}
	if req.Mode == "" {
		req.Mode = ModeConversation
	}
	if req.Model == "" {
		req.Model = g.modelFor(req.Mode)
	}
	if req.MaxTokens <= 0 {
		req.MaxTokens = 1024
	}
	preset := modePresets[req.Mode]
	if req.SystemPrompt == "" {
		req.SystemPrompt = preset.System
	}
	if req.Temperature == nil {
		t := preset.Temperature
		req.Temperature = &t
	}
}

// modelFor returns the default local model for a mode.
func (g *Gateway) modelFor(mode Mode) string {
	if mode == ModeCode {
		return g.cfg.CodeModel
	}
	return g.cfg.GeneralModel
}

// contractModel pins the local model for a contract intent family.
func (g *Gateway) contractModel(intent string) string {
	if intent == "code" {
		return g.cfg.CodeModel
	}
	return g.cfg.GeneralModel
}

// execute runs the backend call behind its circuit breaker and returns a
// typed error on failure.
func (g *Gateway) execute(ctx context.Context, route *Route, req *Request) (*backend.Result, error) {
	var target backend.Backend
	switch route.Backend {
	case "cloud":
		target = g.cloud
	default:
		target = g.local
	}
	if target == nil {
		return nil, wizard.NewError(wizard.CodeBackendUnavailable, route.Backend, "backend not configured")
	}

	br := g.breakers.GetOrCreate(route.Backend)
	if !br.Allow() {
		return nil, wizard.NewError(wizard.CodeBackendUnavailable, route.Backend, "circuit breaker open")
	}

	res, err := target.Complete(ctx, &backend.Request{
		Model:       req.Model,
		Prompt:      req.Prompt,
		System:      req.SystemPrompt,
		MaxTokens:   req.MaxTokens,
		Temperature: *req.Temperature,
		Stream:      req.Stream,
	})
	if err != nil {
		br.RecordFailure(circuitbreaker.Weigh(err))
		return nil, wizard.Classify(err, route.Backend)
	}
	br.RecordSuccess()
	return res, nil
}

// refuse builds the failure result, accounts the attempt, and logs it.
func (g *Gateway) refuse(ctx context.Context, req *Request, cl *classify.Classification, start time.Time, err error) *Result {
	we := wizard.Classify(err, "")
	out := &Result{
		Success:        false,
		Backend:        we.Backend,
		Model:          req.Model,
		Classification: cl,
		LatencyMs:      int(time.Since(start).Milliseconds()),
		Error:          we,
		Timestamp:      time.Now(),
	}
	g.recordUsage(ctx, req, out)
	g.log.LogAttrs(ctx, slog.LevelWarn, "completion refused",
		slog.String("task_id", req.TaskID),
		slog.String("code", string(we.Code)),
		slog.String("reason", we.Message))
	return out
}

// recordUsage hands the finished request to the usage sink, if wired.
func (g *Gateway) recordUsage(ctx context.Context, req *Request, res *Result) {
	if g.usage == nil {
		return
	}
	var deviceID string
	if id := wizard.IdentityFromContext(ctx); id != nil {
		deviceID = id.DeviceID
	}
	g.usage.Record(wizard.UsageRecord{
		ID:               uuid.Must(uuid.NewV7()).String(),
		DeviceID:         deviceID,
		TaskID:           req.TaskID,
		Model:            res.Model,
		Backend:          res.Backend,
		PromptTokens:     res.PromptTokens,
		CompletionTokens: res.CompletionTokens,
		TotalTokens:      res.TotalTokens,
		CostUSD:          res.Cost,
		LatencyMs:        res.LatencyMs,
		Success:          res.Success,
		CreatedAt:        time.Now(),
	})
}

// policyRoute projects the gateway route onto the enforcer's shape.
func policyRoute(r Route) policy.Route {
	return policy.Route{
		TaskID:        r.TaskID,
		Backend:       r.Backend,
		Privacy:       r.Privacy,
		EstimatedCost: r.EstimatedCost,
	}
}
