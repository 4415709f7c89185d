package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/wizardlabs/wizard/internal/syncer"
)

const syncFlushInterval = time.Minute

// SyncFlusher periodically flushes the sync event queue. The queue flushes
// itself after its debounce window; this worker is the safety net for
// events stranded by a failed debounced flush, and drains the queue once
// more on shutdown.
type SyncFlusher struct {
	queue *syncer.EventQueue
}

// NewSyncFlusher creates a SyncFlusher for queue.
func NewSyncFlusher(queue *syncer.EventQueue) *SyncFlusher {
	return &SyncFlusher{queue: queue}
}

// Name returns the worker identifier.
func (w *SyncFlusher) Name() string { return "sync_flusher" }

// Run flushes on an interval until ctx is cancelled, then drains.
func (w *SyncFlusher) Run(ctx context.Context) error {
	ticker := time.NewTicker(syncFlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := w.queue.Flush(ctx); err != nil {
				slog.LogAttrs(ctx, slog.LevelWarn, "sync flush failed",
					slog.String("error", err.Error()),
				)
			}
		case <-ctx.Done():
			w.queue.Close()
			drainCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := w.queue.Flush(drainCtx); err != nil {
				slog.LogAttrs(drainCtx, slog.LevelWarn, "final sync drain failed",
					slog.String("error", err.Error()),
				)
			}
			return nil
		}
	}
}
