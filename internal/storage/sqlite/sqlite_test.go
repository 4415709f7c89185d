package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	wizard "github.com/wizardlabs/wizard/internal"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestDeviceCRUD(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	d := &wizard.Device{
		ID:        "dev-1",
		Name:      "workbench",
		Type:      "laptop",
		Trust:     wizard.TrustStandard,
		Status:    wizard.StatusOffline,
		TokenHash: wizard.HashToken("wzd_secret"),
		PairedAt:  time.Now(),
	}
	if err := s.CreateDevice(ctx, d); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := s.GetDevice(ctx, "dev-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "workbench" || got.Trust != wizard.TrustStandard {
		t.Errorf("got %+v", got)
	}

	byHash, err := s.GetDeviceByTokenHash(ctx, wizard.HashToken("wzd_secret"))
	if err != nil || byHash.ID != "dev-1" {
		t.Fatalf("by hash: %v %+v", err, byHash)
	}

	got.Trust = wizard.TrustAdmin
	if err := s.UpdateDevice(ctx, got); err != nil {
		t.Fatalf("update: %v", err)
	}

	if err := s.TouchDeviceSeen(ctx, "dev-1"); err != nil {
		t.Fatalf("touch: %v", err)
	}
	got, _ = s.GetDevice(ctx, "dev-1")
	if got.Status != wizard.StatusOnline || got.LastSeenAt == nil {
		t.Errorf("after touch: %+v", got)
	}

	devices, err := s.ListDevices(ctx)
	if err != nil || len(devices) != 1 {
		t.Fatalf("list: %v %d", err, len(devices))
	}

	if err := s.DeleteDevice(ctx, "dev-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.GetDevice(ctx, "dev-1"); !errors.Is(err, wizard.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if err := s.DeleteDevice(ctx, "dev-1"); !errors.Is(err, wizard.ErrNotFound) {
		t.Errorf("double delete err = %v, want ErrNotFound", err)
	}
}

func TestUsageAggregates(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	now := time.Now()

	records := []wizard.UsageRecord{
		{ID: "u1", DeviceID: "dev-1", Backend: "local", TotalTokens: 100, CostUSD: 0, Success: true, CreatedAt: now},
		{ID: "u2", DeviceID: "dev-1", Backend: "cloud", TotalTokens: 50, CostUSD: 0.01, Success: true, CreatedAt: now},
		{ID: "u3", DeviceID: "dev-2", Backend: "cloud", TotalTokens: 40, CostUSD: 0.02, Success: false, CreatedAt: now},
		{ID: "u4", DeviceID: "dev-1", Backend: "cloud", TotalTokens: 10, CostUSD: 0.05, Success: true, CreatedAt: now.Add(-48 * time.Hour)},
	}
	if err := s.InsertUsage(ctx, records); err != nil {
		t.Fatalf("insert: %v", err)
	}

	total, err := s.SumCostSince(ctx, now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("sum: %v", err)
	}
	if total < 0.029 || total > 0.031 {
		t.Errorf("total = %v, want 0.03", total)
	}

	agg, err := s.DeviceUsage(ctx, "dev-1", now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("device usage: %v", err)
	}
	if agg.Requests != 2 || agg.TotalTokens != 150 {
		t.Errorf("agg = %+v", agg)
	}

	pruned, err := s.PruneUsage(ctx, now.Add(-24*time.Hour))
	if err != nil || pruned != 1 {
		t.Fatalf("prune = %d, %v; want 1", pruned, err)
	}
}

func TestTaskUpsert(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	now := time.Now()

	task := &wizard.TaskItem{
		ID:        "t-1",
		Type:      wizard.TypeIssue,
		Title:     "[WIZ-1] fix pairing",
		Status:    wizard.TaskTodo,
		CreatedAt: now,
		UpdatedAt: now,
		Tags:      []string{"jira", "WIZ"},
		Metadata: map[string]any{
			"external_id":       "10001",
			"external_provider": "jira",
		},
	}
	if err := s.UpsertTask(ctx, task); err != nil {
		t.Fatalf("insert: %v", err)
	}

	// Re-sync of the same source record updates in place.
	update := *task
	update.ID = "t-2"
	update.Title = "[WIZ-1] fix pairing flow"
	update.Status = wizard.TaskInProgress
	update.UpdatedAt = now.Add(time.Minute)
	if err := s.UpsertTask(ctx, &update); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if update.ID != "t-1" {
		t.Errorf("upsert should keep the original row id, got %q", update.ID)
	}

	got, err := s.GetTask(ctx, "t-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != "[WIZ-1] fix pairing flow" || got.Status != wizard.TaskInProgress {
		t.Errorf("got %+v", got)
	}
	if got.ExternalID() != "10001" {
		t.Errorf("external id = %q", got.ExternalID())
	}

	tasks, err := s.ListTasks(ctx, "jira", 10)
	if err != nil || len(tasks) != 1 {
		t.Fatalf("list jira: %v %d, want 1", err, len(tasks))
	}
	tasks, err = s.ListTasks(ctx, "linear", 10)
	if err != nil || len(tasks) != 0 {
		t.Fatalf("list linear: %v %d, want 0", err, len(tasks))
	}
}

func TestTaskWithoutExternalID(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	now := time.Now()

	for _, id := range []string{"a", "b"} {
		task := &wizard.TaskItem{ID: id, Type: wizard.TypeTask, Title: id, Status: wizard.TaskTodo, CreatedAt: now, UpdatedAt: now}
		if err := s.UpsertTask(ctx, task); err != nil {
			t.Fatalf("insert %s: %v", id, err)
		}
	}
	tasks, err := s.ListTasks(ctx, "", 10)
	if err != nil || len(tasks) != 2 {
		t.Fatalf("list: %v %d, want 2 distinct rows", err, len(tasks))
	}
}

func TestCredentials(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	if err := s.SaveCredential(ctx, "gmail", []byte(`{"access_token":"a"}`)); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.SaveCredential(ctx, "gmail", []byte(`{"access_token":"b"}`)); err != nil {
		t.Fatalf("overwrite: %v", err)
	}

	blob, err := s.GetCredential(ctx, "gmail")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(blob) != `{"access_token":"b"}` {
		t.Errorf("blob = %s", blob)
	}

	if _, err := s.GetCredential(ctx, "jira"); !errors.Is(err, wizard.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if err := s.DeleteCredential(ctx, "gmail"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.DeleteCredential(ctx, "gmail"); !errors.Is(err, wizard.ErrNotFound) {
		t.Errorf("double delete err = %v, want ErrNotFound", err)
	}
}

func TestPing(t *testing.T) {
	s := newStore(t)
	if err := s.Ping(context.Background()); err != nil {
		t.Fatal(err)
	}
}
