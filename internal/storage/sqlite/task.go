package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	wizard "github.com/wizardlabs/wizard/internal"
)

// UpsertTask inserts a task item or, when its (external_provider,
// external_id) pair already exists, updates the existing row in place.
func (s *Store) UpsertTask(ctx context.Context, t *wizard.TaskItem) error {
	tags, err := marshalJSON(t.Tags)
	if err != nil {
		return err
	}
	meta, err := marshalJSON(t.Metadata)
	if err != nil {
		return err
	}
	provider, _ := t.Metadata["external_provider"].(string)
	externalID := t.ExternalID()

	if externalID != "" {
		var existing string
		err := s.read.QueryRowContext(ctx,
			`SELECT id FROM tasks WHERE external_provider = ? AND external_id = ?`,
			provider, externalID,
		).Scan(&existing)
		switch {
		case err == nil:
			_, err = s.write.ExecContext(ctx,
				`UPDATE tasks SET title=?, description=?, status=?, updated_at=?,
				 due_date=?, assigned_to=?, tags=?, metadata=? WHERE id=?`,
				t.Title, t.Description, string(t.Status),
				t.UpdatedAt.UTC().Format(time.RFC3339),
				timeToStr(t.DueDate), t.AssignedTo, tags, meta, existing,
			)
			if err == nil {
				t.ID = existing
			}
			return err
		case err != sql.ErrNoRows:
			return err
		}
	}

	_, err = s.write.ExecContext(ctx,
		`INSERT INTO tasks (id, type, title, description, status, parent_mission,
		 created_at, updated_at, due_date, assigned_to, tags, metadata,
		 external_provider, external_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, string(t.Type), t.Title, t.Description, string(t.Status), t.ParentMission,
		t.CreatedAt.UTC().Format(time.RFC3339), t.UpdatedAt.UTC().Format(time.RFC3339),
		timeToStr(t.DueDate), t.AssignedTo, tags, meta, provider, externalID,
	)
	return err
}

// GetTask retrieves a task by id.
func (s *Store) GetTask(ctx context.Context, id string) (*wizard.TaskItem, error) {
	return scanTask(s.read.QueryRowContext(ctx, taskSelect+` WHERE id = ?`, id))
}

// ListTasks returns tasks, optionally filtered by external provider,
// newest first.
func (s *Store) ListTasks(ctx context.Context, provider string, limit int) ([]*wizard.TaskItem, error) {
	if limit <= 0 {
		limit = 100
	}
	var (
		rows *sql.Rows
		err  error
	)
	if provider == "" {
		rows, err = s.read.QueryContext(ctx, taskSelect+` ORDER BY updated_at DESC LIMIT ?`, limit)
	} else {
		rows, err = s.read.QueryContext(ctx,
			taskSelect+` WHERE external_provider = ? ORDER BY updated_at DESC LIMIT ?`, provider, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []*wizard.TaskItem
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

const taskSelect = `SELECT id, type, title, description, status, parent_mission,
	created_at, updated_at, due_date, assigned_to, tags, metadata FROM tasks`

func scanTask(sc scanner) (*wizard.TaskItem, error) {
	var t wizard.TaskItem
	var typ, status string
	var createdAt, updatedAt string
	var dueDate, tags, meta sql.NullString

	err := sc.Scan(&t.ID, &typ, &t.Title, &t.Description, &status, &t.ParentMission,
		&createdAt, &updatedAt, &dueDate, &t.AssignedTo, &tags, &meta)
	if err != nil {
		return nil, notFoundErr(err)
	}

	t.Type = wizard.TaskType(typ)
	t.Status = wizard.TaskStatus(status)
	if ts, err := time.Parse(time.RFC3339, createdAt); err == nil {
		t.CreatedAt = ts
	}
	if ts, err := time.Parse(time.RFC3339, updatedAt); err == nil {
		t.UpdatedAt = ts
	}
	t.DueDate = parseTime(dueDate)

	if tags.Valid {
		if err := json.Unmarshal([]byte(tags.String), &t.Tags); err != nil {
			return nil, fmt.Errorf("unmarshal tags: %w", err)
		}
	}
	if meta.Valid {
		if err := json.Unmarshal([]byte(meta.String), &t.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	return &t, nil
}

func marshalJSON(v any) (sql.NullString, error) {
	switch x := v.(type) {
	case nil:
		return sql.NullString{}, nil
	case []string:
		if len(x) == 0 {
			return sql.NullString{}, nil
		}
	case map[string]any:
		if len(x) == 0 {
			return sql.NullString{}, nil
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}
