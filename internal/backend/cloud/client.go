// Package cloud implements the backend.Backend adapter for the remote
// OpenAI-compatible completion provider.
package cloud

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
	defaultBaseURL = "https://api.openai.com/v1"
	backendName    = "cloud"
	providerName   = "openai"
)

// Client talks to an OpenAI-compatible chat completion endpoint.
type Client struct {
	apiKey  string
	baseURL string
	timeout time.Duration
	http    *http.Client
}

// New creates a cloud backend client. Timeout 0 defaults to 30s; the cloud
// path is an escalation target and must fail fast rather than hang.
func New(apiKey, baseURL string, timeout time.Duration, resolver *dnscache.Resolver) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
		http:    backend.NewHTTPClient(resolver, true),
	}
}

// Name returns the backend identifier.
func (c *Client) Name() string { return backendName }

// Complete runs a non-streaming chat completion.
func (c *Client) Complete(ctx context.Context, req *backend.Request) (*backend.Result, error) {
	if err := backend.Validate(req); err != nil {
		return nil, wizard.WrapError(wizard.CodeInvalidInput, backendName, err)
	}
	if c.apiKey == "" {
		return nil, wizard.NewError(wizard.CodeAuthRequired, backendName, "cloud api key not configured")
	}

	messages := make([]map[string]string, 0, 2)
	if req.System != "" {
		messages = append(messages, map[string]string{"role": "system", "content": req.System})
	}
	messages = append(messages, map[string]string{"role": "user", "content": req.Prompt})

	body, err := json.Marshal(map[string]any{
		"model":       req.Model,
		"messages":    messages,
		"max_tokens":  req.MaxTokens,
		"temperature": req.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("cloud: marshal request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("cloud: create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
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
		return nil, fmt.Errorf("cloud: read response: %w", err)
	}

	doc := gjson.ParseBytes(raw)
	out := &backend.Result{
		Content:          doc.Get("choices.0.message.content").String(),
		Model:            doc.Get("model").String(),
		Provider:         providerName,
		PromptTokens:     int(doc.Get("usage.prompt_tokens").Int()),
		CompletionTokens: int(doc.Get("usage.completion_tokens").Int()),
		FinishReason:     doc.Get("choices.0.finish_reason").String(),
	}
	if out.Model == "" {
		out.Model = req.Model
	}
	backend.NormalizeTokens(out)
	return out, nil
}

// HealthCheck probes the models endpoint.
func (c *Client) HealthCheck(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return fmt.Errorf("cloud: create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return wizard.Classify(err, backendName)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return backend.ParseAPIError(backendName, resp)
	}
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
	return nil
}
