package linear

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"golang.org/x/oauth2"

	wizard "github.com/wizardlabs/wizard/internal"
	"github.com/wizardlabs/wizard/internal/syncer"
)

func newAuthed(t *testing.T, baseURL string) *Client {
	t.Helper()
	p, err := New(syncer.ProviderConfig{Key: "linear", BaseURL: baseURL})
	if err != nil {
		t.Fatal(err)
	}
	c := p.(*Client)
	if err := c.Authenticate(context.Background(), &oauth2.Token{AccessToken: "tok"}); err != nil {
		t.Fatal(err)
	}
	return c
}

func TestFetchIssues(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/graphql" {
			t.Errorf("path = %s", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		var req struct {
			Variables map[string]any `json:"variables"`
		}
		json.Unmarshal(body, &req)
		if req.Variables["first"] != float64(25) {
			t.Errorf("first = %v", req.Variables["first"])
		}
		w.Write([]byte(`{"data":{"issues":{"nodes":[
			{"id":"uuid-1","identifier":"WIZ-12","title":"Ship pairing flow",
			 "url":"https://linear.app/wiz/issue/WIZ-12",
			 "state":{"name":"In Progress"},
			 "assignee":{"displayName":"Robin"},
			 "createdAt":"2026-03-01T09:00:00Z","updatedAt":"2026-03-10T12:00:00Z"}
		]}}}`))
	}))
	defer srv.Close()

	c := newAuthed(t, srv.URL)
	issues, err := c.FetchIssues(context.Background(), "", 25)
	if err != nil {
		t.Fatal(err)
	}
	if len(issues) != 1 {
		t.Fatalf("issues = %d", len(issues))
	}
	is := issues[0]
	if is.Key != "WIZ-12" || is.Status != "In Progress" || is.Assignee != "Robin" {
		t.Errorf("issue = %+v", is)
	}
}

func TestGraphQLErrors(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"errors":[{"message":"rate limited"}]}`))
	}))
	defer srv.Close()

	c := newAuthed(t, srv.URL)
	_, err := c.FetchIssues(context.Background(), "", 10)
	var we *wizard.Error
	if !errors.As(err, &we) || we.Code != wizard.CodeBackendUnavailable {
		t.Errorf("err = %v, want backend_unavailable", err)
	}
	if c.SyncStatus().LastError == "" {
		t.Error("status must record the failure")
	}
}

func TestBadFilter(t *testing.T) {
	t.Parallel()
	c := newAuthed(t, "http://linear.local")
	_, err := c.FetchIssues(context.Background(), "{not json", 10)
	var we *wizard.Error
	if !errors.As(err, &we) || we.Code != wizard.CodeInvalidInput {
		t.Errorf("err = %v, want invalid_input", err)
	}
}
