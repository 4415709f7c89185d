package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	wizard "github.com/wizardlabs/wizard/internal"
	"github.com/wizardlabs/wizard/internal/storage"
)

const (
	calendarWindow = 7 * 24 * time.Hour
	fetchLimit     = 100
)

// Result is the outcome of one provider sync.
type Result struct {
	Status       string            `json:"status"`
	Provider     string            `json:"provider"`
	MissionID    string            `json:"mission_id,omitempty"`
	Timestamp    time.Time         `json:"timestamp"`
	SyncedCount  int               `json:"synced_count"`
	TasksCreated int               `json:"tasks_created"`
	Errors       []string          `json:"errors,omitempty"`
	Tasks        []wizard.TaskItem `json:"tasks,omitempty"`
}

// History is the rolling per-provider sync record.
type History struct {
	LastSync     time.Time `json:"last_sync"`
	SyncedCount  int       `json:"synced_count"`
	TasksCreated int       `json:"tasks_created"`
	Errors       []string  `json:"errors,omitempty"`
}

// Options tune one sync run.
type Options struct {
	MissionID  string // attach created tasks to a mission
	Query      string // email search query
	Filter     string // issue tracker filter (JQL or equivalent)
	ChannelID  string // chat channel to pull
	Limit      int    // max records per fetch, default 100
	ReturnRows bool   // include transformed tasks in the Result
}

// Orchestrator drives provider syncs: resolve the provider, authenticate
// with stored credentials, fetch, transform to task items, and upsert
// into the store.
type Orchestrator struct {
	factory *Factory
	creds   *CredentialManager
	store   storage.TaskStore
	queue   *EventQueue
	log     *slog.Logger

	mu      sync.Mutex
	configs map[string]ProviderConfig
	history map[string]History
}

// New returns an Orchestrator. queue may be nil when debounced delivery
// is not wanted.
func New(factory *Factory, creds *CredentialManager, store storage.TaskStore, queue *EventQueue, log *slog.Logger) *Orchestrator {
	return &Orchestrator{
		factory: factory,
		creds:   creds,
		store:   store,
		queue:   queue,
		log:     log,
		configs: make(map[string]ProviderConfig),
		history: make(map[string]History),
	}
}

// Configure sets the construction config used when provider key is first
// built.
func (o *Orchestrator) Configure(key string, cfg ProviderConfig) {
	o.mu.Lock()
	o.configs[key] = cfg
	o.mu.Unlock()
}

// Sync runs one provider end to end.
func (o *Orchestrator) Sync(ctx context.Context, key string, opts Options) (*Result, error) {
	res := &Result{Status: "ok", Provider: key, MissionID: opts.MissionID, Timestamp: time.Now()}

	kind, ok := o.factory.Kind(key)
	if !ok {
		return nil, wizard.NewError(wizard.CodeUnsupported, key, fmt.Sprintf("unknown sync provider %q", key))
	}

	o.mu.Lock()
	cfg := o.configs[key]
	o.mu.Unlock()

	p, err := o.factory.Get(key, cfg)
	if err != nil {
		return nil, wizard.Classify(err, key)
	}

	tok, err := o.creds.Token(ctx, key)
	if err != nil {
		return nil, wizard.Classify(err, key)
	}
	if err := p.Authenticate(ctx, tok); err != nil {
		return nil, wizard.Classify(err, key)
	}

	tasks, err := o.fetch(ctx, kind, p, opts)
	if err != nil {
		return nil, wizard.Classify(err, key)
	}
	res.SyncedCount = len(tasks)

	for i := range tasks {
		if opts.MissionID != "" {
			tasks[i].ParentMission = opts.MissionID
		}
		if err := o.store.UpsertTask(ctx, &tasks[i]); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", tasks[i].Title, err))
			continue
		}
		res.TasksCreated++
		if o.queue != nil {
			o.queue.Enqueue(key, wizard.EventCreate, map[string]any{"task_id": tasks[i].ID})
		}
	}
	if opts.ReturnRows {
		res.Tasks = tasks
	}
	if len(res.Errors) > 0 {
		res.Status = "partial"
	}

	o.mu.Lock()
	o.history[key] = History{
		LastSync:     res.Timestamp,
		SyncedCount:  res.SyncedCount,
		TasksCreated: res.TasksCreated,
		Errors:       res.Errors,
	}
	o.mu.Unlock()

	o.log.LogAttrs(ctx, slog.LevelInfo, "provider sync finished",
		slog.String("provider", key),
		slog.String("status", res.Status),
		slog.Int("synced", res.SyncedCount),
		slog.Int("created", res.TasksCreated))
	return res, nil
}

func (o *Orchestrator) fetch(ctx context.Context, kind Kind, p Provider, opts Options) ([]wizard.TaskItem, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = fetchLimit
	}
	key := p.Key()

	switch kind {
	case KindCalendar:
		cp, ok := p.(CalendarProvider)
		if !ok {
			return nil, wizard.NewError(wizard.CodeInternal, key, "provider registered as calendar but does not fetch events")
		}
		// Recent past events are fetched too, so a meeting that just
		// ended still lands in the task list.
		now := time.Now()
		events, err := cp.FetchEvents(ctx, now.Add(-calendarWindow), now.Add(calendarWindow))
		if err != nil {
			return nil, err
		}
		tasks := make([]wizard.TaskItem, 0, len(events))
		for _, ev := range events {
			tasks = append(tasks, TransformCalendarEvent(key, ev))
		}
		return tasks, nil

	case KindEmail:
		ep, ok := p.(EmailProvider)
		if !ok {
			return nil, wizard.NewError(wizard.CodeInternal, key, "provider registered as email but does not fetch messages")
		}
		query := opts.Query
		if query == "" {
			query = "is:unread"
		}
		msgs, err := ep.FetchMessages(ctx, query, limit)
		if err != nil {
			return nil, err
		}
		tasks := make([]wizard.TaskItem, 0, len(msgs))
		for _, m := range msgs {
			tasks = append(tasks, TransformEmailMessage(key, m))
		}
		return tasks, nil

	case KindIssue:
		ip, ok := p.(IssueProvider)
		if !ok {
			return nil, wizard.NewError(wizard.CodeInternal, key, "provider registered as issue but does not fetch issues")
		}
		issues, err := ip.FetchIssues(ctx, opts.Filter, limit)
		if err != nil {
			return nil, err
		}
		tasks := make([]wizard.TaskItem, 0, len(issues))
		for _, is := range issues {
			tasks = append(tasks, TransformIssue(key, is))
		}
		return tasks, nil

	case KindChat:
		cp, ok := p.(ChatProvider)
		if !ok {
			return nil, wizard.NewError(wizard.CodeInternal, key, "provider registered as chat but does not fetch channels")
		}
		if opts.ChannelID == "" {
			return nil, wizard.NewError(wizard.CodeInvalidInput, key, "channel_id is required for chat sync")
		}
		msgs, err := cp.FetchChannel(ctx, opts.ChannelID, limit)
		if err != nil {
			return nil, err
		}
		tasks := make([]wizard.TaskItem, 0, len(msgs))
		for _, m := range msgs {
			tasks = append(tasks, TransformChatMessage(key, m))
		}
		return tasks, nil
	}
	return nil, wizard.NewError(wizard.CodeUnsupported, key, fmt.Sprintf("unknown provider kind %q", kind))
}

// SyncAll runs every registered provider concurrently and returns the
// per-provider results keyed by provider.
func (o *Orchestrator) SyncAll(ctx context.Context, opts Options) map[string]*Result {
	keys := o.factory.Keys()
	sort.Strings(keys)

	results := make(map[string]*Result, len(keys))
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	for _, key := range keys {
		g.Go(func() error {
			res, err := o.Sync(ctx, key, opts)
			if err != nil {
				res = &Result{
					Status:    "error",
					Provider:  key,
					Timestamp: time.Now(),
					Errors:    []string{err.Error()},
				}
			}
			mu.Lock()
			results[key] = res
			mu.Unlock()
			return nil
		})
	}
	g.Wait()
	return results
}

// History returns the recorded outcome of the last sync per provider.
func (o *Orchestrator) History() map[string]History {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make(map[string]History, len(o.history))
	for k, v := range o.history {
		out[k] = v
	}
	return out
}

// Statuses returns the self-reported state of every constructed provider
// plus the queue snapshot.
func (o *Orchestrator) Statuses() ([]Status, QueueStatus) {
	var statuses []Status
	for _, key := range o.factory.Keys() {
		o.mu.Lock()
		cfg := o.configs[key]
		o.mu.Unlock()
		p, err := o.factory.Get(key, cfg)
		if err != nil {
			statuses = append(statuses, Status{Provider: key, LastError: err.Error()})
			continue
		}
		statuses = append(statuses, p.SyncStatus())
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Provider < statuses[j].Provider })

	var qs QueueStatus
	if o.queue != nil {
		qs = o.queue.Status()
	}
	return statuses, qs
}
