// Package google implements the Calendar and Gmail sync providers against
// the Google REST APIs.
package google

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/oauth2"

	wizard "github.com/wizardlabs/wizard/internal"
	"github.com/wizardlabs/wizard/internal/backend"
	"github.com/wizardlabs/wizard/internal/syncer"
)

const defaultBaseURL = "https://www.googleapis.com"

// client is the shared plumbing for both Google providers.
type client struct {
	key     string
	baseURL string
	http    *http.Client

	mu        sync.Mutex
	token     *oauth2.Token
	lastFetch time.Time
	lastErr   string
}

func newClient(key, baseURL string) *client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &client{
		key:     key,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    backend.NewHTTPClient(nil, true),
	}
}

func (c *client) Key() string { return c.key }

// Authenticate stores the token used on subsequent fetches. An expired
// token is rejected here rather than on the first API call.
func (c *client) Authenticate(_ context.Context, token *oauth2.Token) error {
	if token == nil || !token.Valid() {
		return wizard.NewError(wizard.CodeAuthRequired, c.key, "missing or expired oauth token")
	}
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
	return nil
}

func (c *client) SyncStatus() syncer.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := syncer.Status{Provider: c.key, Authenticated: c.token != nil && c.token.Valid(), LastError: c.lastErr}
	if !c.lastFetch.IsZero() {
		t := c.lastFetch
		st.LastFetch = &t
	}
	return st
}

// get performs an authenticated GET and returns the parsed body.
func (c *client) get(ctx context.Context, path string, query string) (gjson.Result, error) {
	c.mu.Lock()
	tok := c.token
	c.mu.Unlock()
	if tok == nil {
		return gjson.Result{}, wizard.NewError(wizard.CodeAuthRequired, c.key, "provider not authenticated")
	}

	url := c.baseURL + path
	if query != "" {
		url += "?" + query
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("%s: create request: %w", c.key, err)
	}
	tok.SetAuthHeader(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return gjson.Result{}, c.fail(wizard.Classify(err, c.key))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return gjson.Result{}, c.fail(backend.ParseAPIError(c.key, resp))
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return gjson.Result{}, fmt.Errorf("%s: read response: %w", c.key, err)
	}

	c.mu.Lock()
	c.lastFetch = time.Now()
	c.lastErr = ""
	c.mu.Unlock()
	return gjson.ParseBytes(raw), nil
}

func (c *client) fail(err error) error {
	c.mu.Lock()
	c.lastErr = err.Error()
	c.mu.Unlock()
	return err
}
