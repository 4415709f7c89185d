package sqlite

import (
	"context"
	"strings"
	"time"

	wizard "github.com/wizardlabs/wizard/internal"
	"github.com/wizardlabs/wizard/internal/storage"
)

// InsertUsage batch-inserts usage records. A single multi-row INSERT avoids
// N round-trips for large batches.
func (s *Store) InsertUsage(ctx context.Context, records []wizard.UsageRecord) error {
	if len(records) == 0 {
		return nil
	}

	placeholders := make([]string, len(records))
	args := make([]any, 0, len(records)*12)
	for i, r := range records {
		placeholders[i] = "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"
		args = append(args,
			r.ID, r.DeviceID, r.TaskID, r.Model, r.Backend,
			r.PromptTokens, r.CompletionTokens, r.TotalTokens, r.CostUSD,
			r.LatencyMs, boolToInt(r.Success), r.CreatedAt.UTC().Format(time.RFC3339),
		)
	}

	query := `INSERT INTO usage_records
		(id, device_id, task_id, model, backend, prompt_tokens, completion_tokens,
		 total_tokens, cost_usd, latency_ms, success, created_at)
		VALUES ` + strings.Join(placeholders, ", ")

	_, err := s.write.ExecContext(ctx, query, args...)
	return err
}

// SumCostSince returns the total cost of requests at or after since.
func (s *Store) SumCostSince(ctx context.Context, since time.Time) (float64, error) {
	var total float64
	err := s.read.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(cost_usd), 0) FROM usage_records WHERE created_at >= ?`,
		since.UTC().Format(time.RFC3339),
	).Scan(&total)
	return total, err
}

// DeviceUsage aggregates one device's usage since the given time.
func (s *Store) DeviceUsage(ctx context.Context, deviceID string, since time.Time) (storage.UsageTotals, error) {
	var t storage.UsageTotals
	err := s.read.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(total_tokens), 0), COALESCE(SUM(cost_usd), 0)
		 FROM usage_records WHERE device_id = ? AND created_at >= ?`,
		deviceID, since.UTC().Format(time.RFC3339),
	).Scan(&t.Requests, &t.TotalTokens, &t.CostUSD)
	return t, err
}

// PruneUsage deletes records older than before and reports how many went.
func (s *Store) PruneUsage(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.write.ExecContext(ctx,
		`DELETE FROM usage_records WHERE created_at < ?`,
		before.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
