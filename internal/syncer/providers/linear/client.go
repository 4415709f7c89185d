// Package linear implements the issue sync provider for the Linear
// GraphQL API.
package linear

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

const defaultBaseURL = "https://api.linear.app"

const issuesQuery = `query Issues($first: Int!, $filter: IssueFilter) {
  issues(first: $first, filter: $filter, orderBy: updatedAt) {
    nodes {
      id identifier title description url createdAt updatedAt
      state { name }
      assignee { displayName }
    }
  }
}`

// Client talks to the Linear GraphQL endpoint.
type Client struct {
	key     string
	baseURL string
	http    *http.Client

	mu        sync.Mutex
	token     *oauth2.Token
	lastFetch time.Time
	lastErr   string
}

// New builds the linear provider.
func New(cfg syncer.ProviderConfig) (syncer.Provider, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		key:     cfg.Key,
		baseURL: strings.TrimRight(baseURL, "/"),
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

// FetchIssues pulls issues ordered by last update. The filter, when set,
// is a JSON-encoded Linear IssueFilter.
func (c *Client) FetchIssues(ctx context.Context, filter string, limit int) ([]syncer.Issue, error) {
	c.mu.Lock()
	tok := c.token
	c.mu.Unlock()
	if tok == nil {
		return nil, wizard.NewError(wizard.CodeAuthRequired, c.key, "provider not authenticated")
	}

	variables := map[string]any{"first": limit}
	if filter != "" {
		var f map[string]any
		if err := json.Unmarshal([]byte(filter), &f); err != nil {
			return nil, wizard.NewError(wizard.CodeInvalidInput, c.key, fmt.Sprintf("bad issue filter: %v", err))
		}
		variables["filter"] = f
	}
	body, err := json.Marshal(map[string]any{"query": issuesQuery, "variables": variables})
	if err != nil {
		return nil, fmt.Errorf("linear: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/graphql", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("linear: create request: %w", err)
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
		return nil, fmt.Errorf("linear: read response: %w", err)
	}

	doc := gjson.ParseBytes(raw)
	if errs := doc.Get("errors"); errs.Exists() && len(errs.Array()) > 0 {
		return nil, c.fail(wizard.NewError(wizard.CodeBackendUnavailable, c.key,
			errs.Get("0.message").String()))
	}

	var issues []syncer.Issue
	doc.Get("data.issues.nodes").ForEach(func(_, item gjson.Result) bool {
		is := syncer.Issue{
			ID:          item.Get("id").String(),
			Key:         item.Get("identifier").String(),
			Title:       item.Get("title").String(),
			Description: item.Get("description").String(),
			Status:      item.Get("state.name").String(),
			Assignee:    item.Get("assignee.displayName").String(),
			URL:         item.Get("url").String(),
		}
		is.CreatedAt, _ = time.Parse(time.RFC3339, item.Get("createdAt").String())
		is.UpdatedAt, _ = time.Parse(time.RFC3339, item.Get("updatedAt").String())
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
