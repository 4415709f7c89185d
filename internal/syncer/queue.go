package syncer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	wizard "github.com/wizardlabs/wizard/internal"
)

const (
	defaultDebounce  = 30 * time.Second
	defaultBatchSize = 50
	defaultRetries   = 3
)

// Processor handles one batch of events for a single provider.
type Processor func(ctx context.Context, provider string, events []wizard.SyncEvent) error

// QueueStatus is the snapshot returned by EventQueue.Status.
type QueueStatus struct {
	Processing      bool                 `json:"processing"`
	PendingEvents   map[string]int       `json:"pending_events_by_provider"`
	LastSync        map[string]time.Time `json:"last_sync_by_provider"`
	DebounceSeconds int                  `json:"debounce_seconds"`
	BatchSize       int                  `json:"batch_size"`
}

// EventQueue collects sync events and delivers them to a processor in
// per-provider batches. Bursts are absorbed by a debounce window: each
// enqueue pushes the flush deadline out, and processing starts only once
// the queue has been quiet for the full window.
type EventQueue struct {
	mu         sync.Mutex
	events     []wizard.SyncEvent
	timer      *time.Timer
	processing bool
	lastSync   map[string]time.Time

	debounce   time.Duration
	batchSize  int
	maxRetries uint64
	processor  Processor
	log        *slog.Logger
}

// NewEventQueue returns a queue delivering batches to processor. Zero
// values for debounce and batchSize pick the defaults.
func NewEventQueue(processor Processor, debounce time.Duration, batchSize int, log *slog.Logger) *EventQueue {
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &EventQueue{
		lastSync:   make(map[string]time.Time),
		debounce:   debounce,
		batchSize:  batchSize,
		maxRetries: defaultRetries,
		processor:  processor,
		log:        log,
	}
}

// Enqueue adds one event and arms (or re-arms) the debounce timer.
func (q *EventQueue) Enqueue(provider string, typ wizard.EventType, payload map[string]any) wizard.SyncEvent {
	ev := wizard.SyncEvent{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Provider:  provider,
		Type:      typ,
		Payload:   payload,
		Timestamp: time.Now(),
	}

	q.mu.Lock()
	q.events = append(q.events, ev)
	if q.timer == nil {
		q.timer = time.AfterFunc(q.debounce, q.flushExpired)
	} else {
		q.timer.Reset(q.debounce)
	}
	q.mu.Unlock()

	return ev
}

func (q *EventQueue) flushExpired() {
	if err := q.Flush(context.Background()); err != nil {
		q.log.LogAttrs(context.Background(), slog.LevelWarn, "debounced flush failed",
			slog.String("error", err.Error()))
	}
}

// Flush processes everything currently queued, grouped by provider and
// split into batches. A provider whose last successful delivery is still
// inside the debounce window is skipped; its events stay queued for a
// later flush. Only one flush runs at a time; a flush arriving while
// another is in flight returns immediately and its events are picked up
// by the next one.
func (q *EventQueue) Flush(ctx context.Context) error {
	q.mu.Lock()
	if q.processing || len(q.events) == 0 {
		q.mu.Unlock()
		return nil
	}
	now := time.Now()
	byProvider := make(map[string][]wizard.SyncEvent)
	var deferred []wizard.SyncEvent
	for _, ev := range q.events {
		if last, ok := q.lastSync[ev.Provider]; ok && now.Sub(last) < q.debounce {
			deferred = append(deferred, ev)
			continue
		}
		byProvider[ev.Provider] = append(byProvider[ev.Provider], ev)
	}
	q.events = deferred
	if q.timer != nil {
		q.timer.Stop()
		if len(deferred) > 0 {
			q.timer.Reset(q.debounce)
		}
	}
	if len(byProvider) == 0 {
		q.mu.Unlock()
		return nil
	}
	q.processing = true
	q.mu.Unlock()

	defer func() {
		q.mu.Lock()
		q.processing = false
		q.mu.Unlock()
	}()

	var firstErr error
	for provider, events := range byProvider {
		for start := 0; start < len(events); start += q.batchSize {
			end := min(start+q.batchSize, len(events))
			batch := events[start:end]

			backoff := retry.WithMaxRetries(q.maxRetries, retry.NewExponential(500*time.Millisecond))
			err := retry.Do(ctx, backoff, func(ctx context.Context) error {
				if err := q.processor(ctx, provider, batch); err != nil {
					for i := range batch {
						batch[i].RetryCount++
					}
					return retry.RetryableError(err)
				}
				return nil
			})
			if err != nil {
				q.log.LogAttrs(ctx, slog.LevelError, "event batch dropped after retries",
					slog.String("provider", provider),
					slog.Int("events", len(batch)),
					slog.String("error", err.Error()))
				if firstErr == nil {
					firstErr = err
				}
				continue
			}

			for i := range batch {
				batch[i].Processed = true
			}
			q.mu.Lock()
			q.lastSync[provider] = time.Now()
			q.mu.Unlock()
		}
	}
	return firstErr
}

// Pending returns the number of queued events.
func (q *EventQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Status reports the queue state for the status endpoint.
func (q *EventQueue) Status() QueueStatus {
	q.mu.Lock()
	defer q.mu.Unlock()

	pending := make(map[string]int)
	for _, ev := range q.events {
		pending[ev.Provider]++
	}
	last := make(map[string]time.Time, len(q.lastSync))
	for k, v := range q.lastSync {
		last[k] = v
	}
	return QueueStatus{
		Processing:      q.processing,
		PendingEvents:   pending,
		LastSync:        last,
		DebounceSeconds: int(q.debounce / time.Second),
		BatchSize:       q.batchSize,
	}
}

// Close stops the debounce timer. Queued events are left for a final
// explicit Flush by the caller.
func (q *EventQueue) Close() {
	q.mu.Lock()
	if q.timer != nil {
		q.timer.Stop()
	}
	q.mu.Unlock()
}
