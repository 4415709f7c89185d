// Package backend defines the completion execution targets and the shared
// HTTP plumbing for talking to them. Two backends exist: "local" is the
// on-device model service, "cloud" is the remote provider used for
// escalation and sanity checks.
package backend

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/dnscache"
)

// Request is a normalized completion call to one backend.
type Request struct {
	Model       string
	Prompt      string
	System      string
	MaxTokens   int
	Temperature float64
	Stream      bool
}

// Result is a completed backend call. TotalTokens is always the sum of
// prompt and completion tokens.
type Result struct {
	Content          string
	Model            string
	Provider         string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	FinishReason     string
}

// Backend executes completion requests against one target.
type Backend interface {
	Name() string
	Complete(ctx context.Context, req *Request) (*Result, error)
	HealthCheck(ctx context.Context) error
}

// NewHTTPClient builds the tuned client shared by both backend adapters.
// A non-nil resolver wraps DialContext with cached DNS lookups.
func NewHTTPClient(resolver *dnscache.Resolver, http2 bool) *http.Client {
	t := &http.Transport{
		MaxIdleConnsPerHost: 100,
		MaxConnsPerHost:     200,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   http2,
		TLSHandshakeTimeout: 5 * time.Second,
	}
	if resolver != nil {
		t.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
			host, port, err := net.SplitHostPort(addr)
			if err != nil {
				return nil, err
			}
			ips, err := resolver.LookupHost(ctx, host)
			if err != nil {
				return nil, err
			}
			var d net.Dialer
			return d.DialContext(ctx, network, net.JoinHostPort(ips[0], port))
		}
	}
	return &http.Client{Transport: t}
}

// NormalizeTokens enforces total = prompt + completion regardless of what
// the upstream reported.
func NormalizeTokens(r *Result) {
	r.TotalTokens = r.PromptTokens + r.CompletionTokens
}

// Validate rejects obviously broken requests before any network call.
func Validate(req *Request) error {
	if req == nil || req.Prompt == "" {
		return fmt.Errorf("empty prompt")
	}
	return nil
}
