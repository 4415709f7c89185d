package gateway

import (
	"context"
	"strings"
	"time"

	"github.com/wizardlabs/wizard/internal/backend"
)

// SanityCheck is the optional cloud cross-check attached to a local result.
// It never replaces the primary content.
type SanityCheck struct {
	Model     string `json:"model"`
	Content   string `json:"content"`
	LatencyMs int    `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

// lowConfidencePhrases trigger the heuristic sanity check on local output.
var lowConfidencePhrases = []string{
	"i'm not sure",
	"i am not sure",
	"maybe",
	"as an ai",
	"i cannot verify",
}

// shortResponseChars marks a local response as suspiciously terse.
const shortResponseChars = 40

// looksLowConfidence reports whether a local completion warrants a cloud
// cross-check.
func looksLowConfidence(content string) bool {
	if len(strings.TrimSpace(content)) < shortResponseChars {
		return true
	}
	lower := strings.ToLower(content)
	for _, p := range lowConfidencePhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// runSanityCheck calls the cloud model with the primary prompt under a
// short deadline. The primary response is already complete; this must not
// hold it up for long.
func runSanityCheck(ctx context.Context, cloud backend.Backend, model, prompt, system string, timeout time.Duration) *SanityCheck {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	res, err := cloud.Complete(ctx, &backend.Request{
		Model:     model,
		Prompt:    prompt,
		System:    system,
		MaxTokens: 512,
	})
	sc := &SanityCheck{Model: model, LatencyMs: int(time.Since(start).Milliseconds())}
	if err != nil {
		sc.Error = err.Error()
		return sc
	}
	sc.Content = res.Content
	return sc
}
