// Package jira implements the issue sync provider for Jira Cloud.
package jira

import (
	"bytes"
	"context"
	"encoding/json"
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

const defaultFilter = "assignee = currentUser() AND statusCategory != Done ORDER BY updated DESC"

// Client talks to the Jira Cloud REST API.
type Client struct {
	key     string
	baseURL string
	http    *http.Client

	mu        sync.Mutex
	token     *oauth2.Token
	lastFetch time.Time
	lastErr   string
}

// New builds the jira provider. BaseURL is the site root, for example
// https://acme.atlassian.net.
func New(cfg syncer.ProviderConfig) (syncer.Provider, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("jira: base_url is required")
	}
	return &Client{
		key:     cfg.Key,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    backend.NewHTTPClient(nil, true),
	}, nil
}

func (c *Client) Key() string { return c.key }

func (c *Client) Authenticate(_ context.Context, token *oauth2.Token) error {
	if token == nil || !token.Valid() {
		return wizard.NewError(wizard.CodeAuthRequired, c.key, "missing or expired oauth token")
	}
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
	return nil
}

func (c *Client) SyncStatus() syncer.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := syncer.Status{Provider: c.key, Authenticated: c.token != nil && c.token.Valid(), LastError: c.lastErr}
	if !c.lastFetch.IsZero() {
		t := c.lastFetch
		st.LastFetch = &t
	}
	return st
}

// FetchIssues runs a JQL search. An empty filter pulls the caller's open
// issues.
func (c *Client) FetchIssues(ctx context.Context, filter string, limit int) ([]syncer.Issue, error) {
	c.mu.Lock()
	tok := c.token
	c.mu.Unlock()
	if tok == nil {
		return nil, wizard.NewError(wizard.CodeAuthRequired, c.key, "provider not authenticated")
	}
	if filter == "" {
		filter = defaultFilter
	}

	body, err := json.Marshal(map[string]any{
		"jql":        filter,
		"maxResults": limit,
		"fields":     []string{"summary", "description", "status", "assignee", "created", "updated"},
	})
	if err != nil {
		return nil, fmt.Errorf("jira: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rest/api/3/search", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("jira: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	tok.SetAuthHeader(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, c.fail(wizard.Classify(err, c.key))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.fail(backend.ParseAPIError(c.key, resp))
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("jira: read response: %w", err)
	}

	var issues []syncer.Issue
	gjson.ParseBytes(raw).Get("issues").ForEach(func(_, item gjson.Result) bool {
		key := item.Get("key").String()
		is := syncer.Issue{
			ID:          item.Get("id").String(),
			Key:         key,
			Title:       item.Get("fields.summary").String(),
			Description: item.Get("fields.description").String(),
			Status:      item.Get("fields.status.name").String(),
			Assignee:    item.Get("fields.assignee.displayName").String(),
			URL:         c.baseURL + "/browse/" + key,
		}
		is.CreatedAt, _ = time.Parse("2006-01-02T15:04:05.000-0700", item.Get("fields.created").String())
		is.UpdatedAt, _ = time.Parse("2006-01-02T15:04:05.000-0700", item.Get("fields.updated").String())
		issues = append(issues, is)
		return true
	})

	c.mu.Lock()
	c.lastFetch = time.Now()
	c.lastErr = ""
	c.mu.Unlock()
	return issues, nil
}

func (c *Client) fail(err error) error {
	c.mu.Lock()
	c.lastErr = err.Error()
	c.mu.Unlock()
	return err
}
