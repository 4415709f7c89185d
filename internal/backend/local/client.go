// Package local implements the backend.Backend adapter for the on-device
// Ollama model service.
package local

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/dnscache"
	"github.com/tidwall/gjson"

	wizard "github.com/wizardlabs/wizard/internal"
	"github.com/wizardlabs/wizard/internal/backend"
)

const (
	defaultBaseURL = "http://localhost:11434"
	backendName    = "local"
	providerName   = "ollama"
)

// Client talks to the local Ollama instance over its native API.
type Client struct {
	baseURL string
	timeout time.Duration
	http    *http.Client
}

// New creates a local backend client. An empty baseURL defaults to the
// standard Ollama port; timeout 0 defaults to 120s. The local model can be
// slow on small hardware, so the default is deliberately generous.
func New(baseURL string, timeout time.Duration, resolver *dnscache.Resolver) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
		http:    backend.NewHTTPClient(resolver, false),
	}
}

// Name returns the backend identifier.
func (c *Client) Name() string { return backendName }

// Complete runs a non-streaming generation against /api/generate.
func (c *Client) Complete(ctx context.Context, req *backend.Request) (*backend.Result, error) {
	if err := backend.Validate(req); err != nil {
		return nil, wizard.WrapError(wizard.CodeInvalidInput, backendName, err)
	}

	payload := map[string]any{
		"model":  req.Model,
		"prompt": req.Prompt,
		"stream": false,
		"options": map[string]any{
			"temperature": req.Temperature,
			"num_predict": req.MaxTokens,
		},
	}
	if req.System != "" {
		payload["system"] = req.System
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("local: marshal request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("local: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, wizard.Classify(err, backendName)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, backend.ParseAPIError(backendName, resp)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("local: read response: %w", err)
	}

	doc := gjson.ParseBytes(raw)
	out := &backend.Result{
		Content:          doc.Get("response").String(),
		Model:            doc.Get("model").String(),
		Provider:         providerName,
		PromptTokens:     int(doc.Get("prompt_eval_count").Int()),
		CompletionTokens: int(doc.Get("eval_count").Int()),
		FinishReason:     doc.Get("done_reason").String(),
	}
	if out.Model == "" {
		out.Model = req.Model
	}
	backend.NormalizeTokens(out)
	return out, nil
}

// ListModels returns the model names available on the local instance.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("local: create request: %w", err)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, wizard.Classify(err, backendName)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, backend.ParseAPIError(backendName, resp)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("local: read response: %w", err)
	}

	var names []string
	gjson.ParseBytes(raw).Get("models").ForEach(func(_, m gjson.Result) bool {
		names = append(names, m.Get("name").String())
		return true
	})
	return names, nil
}

// HealthCheck verifies the local service is reachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	_, err := c.ListModels(ctx)
	return err
}
