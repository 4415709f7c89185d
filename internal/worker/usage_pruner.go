package worker

import (
	"context"
	"log/slog"
	"time"
)

const (
	pruneInterval  = 24 * time.Hour
	usageRetention = 90 * 24 * time.Hour
)

// PruneStore is the persistence interface consumed by UsagePruner.
type PruneStore interface {
	PruneUsage(ctx context.Context, before time.Time) (int64, error)
}

// UsagePruner deletes usage records older than the retention window. The
// edge box runs unattended for months, so the table is kept bounded.
type UsagePruner struct {
	store PruneStore
}

// NewUsagePruner creates a UsagePruner backed by store.
func NewUsagePruner(store PruneStore) *UsagePruner {
	return &UsagePruner{store: store}
}

// Name returns the worker identifier.
func (w *UsagePruner) Name() string { return "usage_pruner" }

// Run prunes once at startup, then daily until ctx is cancelled.
func (w *UsagePruner) Run(ctx context.Context) error {
	w.prune(ctx)

	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.prune(ctx)
		case <-ctx.Done():
			return nil
		}
	}
}

func (w *UsagePruner) prune(ctx context.Context) {
	n, err := w.store.PruneUsage(ctx, time.Now().Add(-usageRetention))
	if err != nil {
		slog.LogAttrs(ctx, slog.LevelError, "usage prune failed",
			slog.String("error", err.Error()),
		)
		return
	}
	if n > 0 {
		slog.Info("usage records pruned", "count", n)
	}
}
