package cloud

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tidwall/gjson"

	wizard "github.com/wizardlabs/wizard/internal"
	"github.com/wizardlabs/wizard/internal/backend"
)

func TestComplete(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q, want /chat/completions", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Error("missing bearer auth")
		}
		body, _ := io.ReadAll(r.Body)
		if gjson.GetBytes(body, "messages.0.role").String() != "system" {
			t.Error("system prompt should be the first message")
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"model":"gpt-4o-mini","choices":[{"message":{"role":"assistant","content":"fine"},"finish_reason":"stop"}],"usage":{"prompt_tokens":8,"completion_tokens":2,"total_tokens":999}}`)
	}))
	defer ts.Close()

	c := New("sk-test", ts.URL, time.Minute, nil)
	res, err := c.Complete(context.Background(), &backend.Request{
		Model:  "gpt-4o-mini",
		Prompt: "check this",
		System: "you are a verifier",
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Content != "fine" {
		t.Errorf("content = %q", res.Content)
	}
	// Upstream total is ignored; the sum invariant wins.
	if res.TotalTokens != 10 {
		t.Errorf("total = %d, want 10", res.TotalTokens)
	}
}

func TestComplete_NoKey(t *testing.T) {
	t.Parallel()

	c := New("", "http://127.0.0.1:0", time.Second, nil)
	_, err := c.Complete(context.Background(), &backend.Request{Model: "m", Prompt: "hi"})
	var we *wizard.Error
	if !errors.As(err, &we) || we.Code != wizard.CodeAuthRequired {
		t.Fatalf("err = %v, want auth_required", err)
	}
}

func TestComplete_RateLimited(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limit", http.StatusTooManyRequests)
	}))
	defer ts.Close()

	c := New("sk-test", ts.URL, time.Minute, nil)
	_, err := c.Complete(context.Background(), &backend.Request{Model: "m", Prompt: "hi"})
	var we *wizard.Error
	if !errors.As(err, &we) || we.Code != wizard.CodeBackendUnavailable {
		t.Fatalf("err = %v, want backend_unavailable", err)
	}

	var ae *backend.APIError
	if !errors.As(err, &ae) || ae.HTTPStatus() != http.StatusTooManyRequests {
		t.Errorf("typed error should carry the raw 429 status, got %v", err)
	}
}

func TestComplete_Unauthorized(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer ts.Close()

	c := New("sk-wrong", ts.URL, time.Minute, nil)
	_, err := c.Complete(context.Background(), &backend.Request{Model: "m", Prompt: "hi"})
	var we *wizard.Error
	if !errors.As(err, &we) || we.Code != wizard.CodeAuthRequired {
		t.Fatalf("err = %v, want auth_required", err)
	}
	if we.Retryable() {
		t.Error("auth errors are not retryable")
	}
}

func TestHealthCheck(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			t.Errorf("path = %q, want /models", r.URL.Path)
		}
		io.WriteString(w, `{"data":[]}`)
	}))
	defer ts.Close()

	c := New("sk-test", ts.URL, time.Minute, nil)
	if err := c.HealthCheck(context.Background()); err != nil {
		t.Fatal(err)
	}
}
