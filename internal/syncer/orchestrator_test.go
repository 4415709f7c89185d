package syncer

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/oauth2"

	wizard "github.com/wizardlabs/wizard/internal"
	"github.com/wizardlabs/wizard/internal/testutil"
)

type fakeProvider struct {
	key      string
	authErr  error
	fetchErr error

	events []CalendarEvent
	issues []Issue

	gotFrom time.Time
	gotTo   time.Time
}

func (f *fakeProvider) Key() string { return f.key }

func (f *fakeProvider) Authenticate(_ context.Context, token *oauth2.Token) error {
	if token == nil {
		return wizard.NewError(wizard.CodeAuthRequired, f.key, "nil token")
	}
	return f.authErr
}

func (f *fakeProvider) SyncStatus() Status {
	return Status{Provider: f.key, Authenticated: f.authErr == nil}
}

func (f *fakeProvider) FetchEvents(_ context.Context, from, to time.Time) ([]CalendarEvent, error) {
	f.gotFrom, f.gotTo = from, to
	return f.events, f.fetchErr
}

func (f *fakeProvider) FetchIssues(context.Context, string, int) ([]Issue, error) {
	return f.issues, f.fetchErr
}

func newOrchestrator(t *testing.T) (*Orchestrator, *Factory, *testutil.Store) {
	t.Helper()
	store := testutil.NewStore()
	factory := NewFactory()
	creds := NewCredentialManager(store)
	o := New(factory, creds, store, nil, discardLog())
	return o, factory, store
}

func saveToken(t *testing.T, o *Orchestrator, provider string) {
	t.Helper()
	if err := o.creds.Save(context.Background(), provider, &oauth2.Token{AccessToken: "tok"}); err != nil {
		t.Fatal(err)
	}
}

func TestSyncCalendar(t *testing.T) {
	t.Parallel()
	o, factory, store := newOrchestrator(t)
	ctx := context.Background()

	end := time.Now().Add(time.Hour)
	fake := &fakeProvider{key: "google_calendar", events: []CalendarEvent{
		{ID: "ev-1", Title: "Standup", EndTime: end},
		{ID: "ev-2", Title: "Retro", EndTime: end},
	}}
	factory.Register("google_calendar", KindCalendar, func(ProviderConfig) (Provider, error) { return fake, nil })
	saveToken(t, o, "google_calendar")

	res, err := o.Sync(ctx, "google_calendar", Options{MissionID: "m-1", ReturnRows: true})
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != "ok" || res.SyncedCount != 2 || res.TasksCreated != 2 {
		t.Errorf("result = %+v", res)
	}
	if len(res.Tasks) != 2 || res.Tasks[0].ParentMission != "m-1" {
		t.Errorf("tasks = %+v", res.Tasks)
	}

	stored, err := store.ListTasks(ctx, "google_calendar", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(stored) != 2 {
		t.Errorf("stored %d tasks, want 2", len(stored))
	}

	hist := o.History()["google_calendar"]
	if hist.TasksCreated != 2 || hist.LastSync.IsZero() {
		t.Errorf("history = %+v", hist)
	}
}

func TestSyncCalendarFetchWindow(t *testing.T) {
	t.Parallel()
	o, factory, _ := newOrchestrator(t)

	fake := &fakeProvider{key: "google_calendar"}
	factory.Register("google_calendar", KindCalendar, func(ProviderConfig) (Provider, error) { return fake, nil })
	saveToken(t, o, "google_calendar")

	if _, err := o.Sync(context.Background(), "google_calendar", Options{}); err != nil {
		t.Fatal(err)
	}
	// The window is centered on now: recently ended events come back too.
	if !fake.gotFrom.Before(time.Now()) {
		t.Errorf("window start %v does not reach into the past", fake.gotFrom)
	}
	if got := fake.gotTo.Sub(fake.gotFrom); got != 2*calendarWindow {
		t.Errorf("window span = %v, want %v", got, 2*calendarWindow)
	}
}

func TestSyncIsIdempotent(t *testing.T) {
	t.Parallel()
	o, factory, store := newOrchestrator(t)
	ctx := context.Background()

	fake := &fakeProvider{key: "jira", issues: []Issue{{ID: "10001", Key: "WIZ-1", Title: "Bug", Status: "open"}}}
	factory.Register("jira", KindIssue, func(ProviderConfig) (Provider, error) { return fake, nil })
	saveToken(t, o, "jira")

	for range 2 {
		if _, err := o.Sync(ctx, "jira", Options{}); err != nil {
			t.Fatal(err)
		}
	}
	stored, _ := store.ListTasks(ctx, "jira", 10)
	if len(stored) != 1 {
		t.Errorf("re-sync duplicated the task: %d rows", len(stored))
	}
}

func TestSyncUnknownProvider(t *testing.T) {
	t.Parallel()
	o, _, _ := newOrchestrator(t)
	_, err := o.Sync(context.Background(), "fax_machine", Options{})
	var we *wizard.Error
	if !errors.As(err, &we) || we.Code != wizard.CodeUnsupported {
		t.Errorf("err = %v, want unsupported_operation", err)
	}
}

func TestSyncMissingCredentials(t *testing.T) {
	t.Parallel()
	o, factory, _ := newOrchestrator(t)
	factory.Register("gmail", KindEmail, func(ProviderConfig) (Provider, error) {
		return &fakeProvider{key: "gmail"}, nil
	})
	_, err := o.Sync(context.Background(), "gmail", Options{})
	if !errors.Is(err, wizard.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound from credential store", err)
	}
}

func TestSyncChatRequiresChannel(t *testing.T) {
	t.Parallel()
	o, factory, _ := newOrchestrator(t)
	factory.Register("slack", KindChat, func(ProviderConfig) (Provider, error) {
		return &fakeChat{fakeProvider{key: "slack"}}, nil
	})
	saveToken(t, o, "slack")

	_, err := o.Sync(context.Background(), "slack", Options{})
	var we *wizard.Error
	if !errors.As(err, &we) || we.Code != wizard.CodeInvalidInput {
		t.Errorf("err = %v, want invalid_input", err)
	}
}

type fakeChat struct{ fakeProvider }

func (f *fakeChat) FetchChannel(context.Context, string, int) ([]ChatMessage, error) {
	return []ChatMessage{{ID: "1", Text: "hi", Timestamp: time.Now()}}, nil
}

func TestSyncAll(t *testing.T) {
	t.Parallel()
	o, factory, _ := newOrchestrator(t)
	ctx := context.Background()

	factory.Register("google_calendar", KindCalendar, func(ProviderConfig) (Provider, error) {
		return &fakeProvider{key: "google_calendar", events: []CalendarEvent{{ID: "e", Title: "x", EndTime: time.Now()}}}, nil
	})
	factory.Register("jira", KindIssue, func(ProviderConfig) (Provider, error) {
		return &fakeProvider{key: "jira", fetchErr: errors.New("jira down")}, nil
	})
	saveToken(t, o, "google_calendar")
	saveToken(t, o, "jira")

	results := o.SyncAll(ctx, Options{})
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	if results["google_calendar"].Status != "ok" {
		t.Errorf("calendar = %+v", results["google_calendar"])
	}
	if results["jira"].Status != "error" || len(results["jira"].Errors) == 0 {
		t.Errorf("jira = %+v", results["jira"])
	}
}

func TestCredentialManager(t *testing.T) {
	t.Parallel()
	store := testutil.NewStore()
	m := NewCredentialManager(store)
	ctx := context.Background()

	if _, err := m.Token(ctx, "jira"); !errors.Is(err, wizard.ErrNotFound) {
		t.Errorf("missing token err = %v", err)
	}

	tok := &oauth2.Token{AccessToken: "secret", TokenType: "Bearer"}
	if err := m.Save(ctx, "jira", tok); err != nil {
		t.Fatal(err)
	}
	got, err := m.Token(ctx, "jira")
	if err != nil || got.AccessToken != "secret" {
		t.Fatalf("token = %+v, err = %v", got, err)
	}

	// A second manager reads through the store, not the cache.
	m2 := NewCredentialManager(store)
	if got, err := m2.Token(ctx, "jira"); err != nil || got.AccessToken != "secret" {
		t.Fatalf("persisted token = %+v, err = %v", got, err)
	}

	if err := m.Delete(ctx, "jira"); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Token(ctx, "jira"); !errors.Is(err, wizard.ErrNotFound) {
		t.Errorf("deleted token err = %v", err)
	}
}

func TestFactoryLazySingleton(t *testing.T) {
	t.Parallel()
	f := NewFactory()
	built := 0
	f.Register("jira", KindIssue, func(ProviderConfig) (Provider, error) {
		built++
		return &fakeProvider{key: "jira"}, nil
	})

	a, err := f.Get("jira", ProviderConfig{})
	if err != nil {
		t.Fatal(err)
	}
	b, _ := f.Get("jira", ProviderConfig{})
	if a != b || built != 1 {
		t.Errorf("built %d instances", built)
	}

	if _, err := f.Get("nope", ProviderConfig{}); err == nil {
		t.Error("unregistered key should error")
	}
	if k, ok := f.Kind("jira"); !ok || k != KindIssue {
		t.Errorf("kind = %q, %v", k, ok)
	}
}
