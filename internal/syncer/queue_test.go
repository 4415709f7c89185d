package syncer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	wizard "github.com/wizardlabs/wizard/internal"
)

type batchRecorder struct {
	mu      sync.Mutex
	batches map[string][][]wizard.SyncEvent
	err     error
}

func (r *batchRecorder) process(_ context.Context, provider string, events []wizard.SyncEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	if r.batches == nil {
		r.batches = make(map[string][][]wizard.SyncEvent)
	}
	cp := make([]wizard.SyncEvent, len(events))
	copy(cp, events)
	r.batches[provider] = append(r.batches[provider], cp)
	return nil
}

func (r *batchRecorder) calls(provider string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.batches[provider])
}

func discardLog() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestQueueDefaults(t *testing.T) {
	t.Parallel()
	q := NewEventQueue(nil, 0, 0, discardLog())
	st := q.Status()
	if st.DebounceSeconds != 30 || st.BatchSize != 50 {
		t.Errorf("defaults = %+v", st)
	}
}

func TestQueueFlushBatches(t *testing.T) {
	t.Parallel()
	rec := &batchRecorder{}
	q := NewEventQueue(rec.process, time.Hour, 2, discardLog())

	for range 5 {
		q.Enqueue("jira", wizard.EventCreate, nil)
	}
	q.Enqueue("gmail", wizard.EventUpdate, map[string]any{"id": "m1"})

	if err := q.Flush(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := rec.calls("jira"); got != 3 {
		t.Errorf("jira batches = %d, want 3 (2+2+1)", got)
	}
	if got := rec.calls("gmail"); got != 1 {
		t.Errorf("gmail batches = %d, want 1", got)
	}
	if q.Pending() != 0 {
		t.Errorf("pending = %d after flush", q.Pending())
	}

	st := q.Status()
	if st.LastSync["jira"].IsZero() || st.LastSync["gmail"].IsZero() {
		t.Errorf("last sync not recorded: %+v", st.LastSync)
	}
}

func TestQueueDebouncedFlush(t *testing.T) {
	t.Parallel()
	rec := &batchRecorder{}
	q := NewEventQueue(rec.process, 20*time.Millisecond, 0, discardLog())
	defer q.Close()

	q.Enqueue("jira", wizard.EventCreate, nil)
	q.Enqueue("jira", wizard.EventCreate, nil)

	deadline := time.Now().Add(2 * time.Second)
	for q.Pending() > 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if q.Pending() != 0 {
		t.Fatal("debounce timer never flushed the queue")
	}
	if rec.calls("jira") != 1 {
		t.Errorf("batches = %d, want 1", rec.calls("jira"))
	}
}

func TestQueueDropsBatchAfterRetries(t *testing.T) {
	t.Parallel()
	rec := &batchRecorder{err: errors.New("provider exploded")}
	q := NewEventQueue(rec.process, time.Hour, 0, discardLog())
	q.maxRetries = 0 // single attempt keeps the test fast

	q.Enqueue("linear", wizard.EventCreate, nil)
	if err := q.Flush(context.Background()); err == nil {
		t.Fatal("flush should surface the processor error")
	}
	// Exhausted batches are dropped, not requeued forever.
	if q.Pending() != 0 {
		t.Errorf("pending = %d, want 0", q.Pending())
	}
}

func TestQueueFlushHonorsDebounce(t *testing.T) {
	t.Parallel()
	rec := &batchRecorder{}
	q := NewEventQueue(rec.process, time.Hour, 0, discardLog())

	// jira delivered moments ago; gmail has never delivered.
	q.mu.Lock()
	q.lastSync["jira"] = time.Now()
	q.mu.Unlock()

	q.Enqueue("jira", wizard.EventCreate, nil)
	q.Enqueue("gmail", wizard.EventUpdate, nil)

	if err := q.Flush(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := rec.calls("jira"); got != 0 {
		t.Errorf("jira flushed %d batches inside the debounce window", got)
	}
	if got := rec.calls("gmail"); got != 1 {
		t.Errorf("gmail batches = %d, want 1", got)
	}
	if q.Pending() != 1 {
		t.Errorf("pending = %d, want jira's event still queued", q.Pending())
	}

	// Once the window has passed the deferred events go out.
	q.mu.Lock()
	q.lastSync["jira"] = time.Now().Add(-2 * time.Hour)
	q.mu.Unlock()
	if err := q.Flush(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := rec.calls("jira"); got != 1 {
		t.Errorf("jira batches = %d, want 1 after the window expired", got)
	}
	if q.Pending() != 0 {
		t.Errorf("pending = %d after second flush", q.Pending())
	}
}

func TestQueueSingleFlight(t *testing.T) {
	t.Parallel()
	rec := &batchRecorder{}
	q := NewEventQueue(rec.process, time.Hour, 0, discardLog())

	q.Enqueue("jira", wizard.EventCreate, nil)
	q.mu.Lock()
	q.processing = true
	q.mu.Unlock()

	if err := q.Flush(context.Background()); err != nil {
		t.Fatal(err)
	}
	if q.Pending() != 1 {
		t.Error("concurrent flush must leave events for the in-flight one")
	}
	if !q.Status().Processing {
		t.Error("status should report processing")
	}
}
