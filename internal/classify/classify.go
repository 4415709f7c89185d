// Package classify turns a free-form prompt plus caller context into a task
// classification the router and policy enforcer consume.
package classify

import (
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/wizardlabs/wizard/internal/tokencount"
)

// Intent is the detected task intent.
type Intent string

const (
	IntentCode   Intent = "code"
	IntentTest   Intent = "test"
	IntentDocs   Intent = "docs"
	IntentDesign Intent = "design"
	IntentOps    Intent = "ops"
)

// Privacy is the declared or detected sensitivity tier.
type Privacy string

const (
	PrivacyPrivate  Privacy = "private"
	PrivacyInternal Privacy = "internal"
	PrivacyPublic   Privacy = "public"
)

// Size buckets a task by its estimated token footprint.
type Size string

const (
	SizeSmall  Size = "small"
	SizeMedium Size = "medium"
	SizeLarge  Size = "large"
)

// Size breakpoints in estimated tokens.
const (
	mediumTokens = 2000
	largeTokens  = 8000
)

// Classification is the output profile for one task.
type Classification struct {
	TaskID        string   `json:"task_id"`
	Intent        Intent   `json:"intent"`
	Privacy       Privacy  `json:"privacy"`
	Size          Size     `json:"size"`
	Urgency       string   `json:"urgency"`
	Workspace     string   `json:"workspace"`
	TokenEstimate int      `json:"estimated_tokens"`
	Confidence    float64  `json:"confidence"`
	Tags          []string `json:"tags,omitempty"`
	Reasons       []string `json:"reasons,omitempty"`
}

// Input is the caller-supplied context for classification.
type Input struct {
	Prompt    string
	TaskID    string
	Workspace string
	Privacy   Privacy // explicit caller declaration, honored when set
	Urgency   string
}

// intentPatterns score each intent by regex-family hits.
var intentPatterns = map[Intent][]*regexp.Regexp{
	IntentCode: {
		regexp.MustCompile(`(?i)\b(implement|refactor|fix|bug|function|compile)\b`),
		regexp.MustCompile(`(?i)\b(code|struct|class|method|api)\b`),
		regexp.MustCompile("```"),
	},
	IntentTest: {
		regexp.MustCompile(`(?i)\b(test|assert|coverage|mock|regression)\b`),
		regexp.MustCompile(`(?i)\b(unit|integration|e2e) test`),
	},
	IntentDocs: {
		regexp.MustCompile(`(?i)\b(document|readme|changelog|tutorial|explain)\b`),
		regexp.MustCompile(`(?i)\bwrite.*\b(docs?|guide)\b`),
	},
	IntentDesign: {
		regexp.MustCompile(`(?i)\b(design|architect|diagram|tradeoffs?|proposal)\b`),
		regexp.MustCompile(`(?i)\b(layout|wireframe|schema)\b`),
	},
	IntentOps: {
		regexp.MustCompile(`(?i)\b(deploy|rollback|monitor|alert|incident)\b`),
		regexp.MustCompile(`(?i)\b(kubernetes|docker|terraform|pipeline)\b`),
	},
}

// privatePatterns force the private tier when any matches the prompt.
var privatePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(password|passphrase|secret|private key)\b`),
	regexp.MustCompile(`(?i)\b(medical|health record|diagnosis)\b`),
	regexp.MustCompile(`(?i)\b(salary|tax|bank account|ssn)\b`),
	regexp.MustCompile(`(?i)\b(personal|confidential|do not share)\b`),
}

// internalKeywords nudge the tier to internal with raised confidence.
var internalKeywords = regexp.MustCompile(`(?i)\b(internal|workspace|our (team|repo|infra))\b`)

var (
	urgencyPattern = regexp.MustCompile(`(?i)\b(urgent|asap|immediately|right now|critical)\b`)
	toolingPattern = regexp.MustCompile(`(?i)\b(file|directory|shell|terminal|read|write|disk)\b`)
	offlinePattern = regexp.MustCompile(`(?i)\b(offline|no network|air.?gap|local only)\b`)
)

// Classifier derives task classifications. Stateless and safe for
// concurrent use.
type Classifier struct {
	counter *tokencount.Counter
}

// New creates a Classifier.
func New() *Classifier {
	return &Classifier{counter: tokencount.NewCounter()}
}

// Classify produces the classification for the given input.
func (c *Classifier) Classify(in Input) Classification {
	out := Classification{
		TaskID:    in.TaskID,
		Workspace: in.Workspace,
		Urgency:   in.Urgency,
	}
	if out.TaskID == "" {
		out.TaskID = uuid.Must(uuid.NewV7()).String()
	}
	if out.Workspace == "" {
		out.Workspace = "core"
	}

	out.Intent, out.Confidence = detectIntent(in.Prompt, &out)
	out.TokenEstimate = len(in.Prompt) / 4
	out.Size = sizeBucket(out.TokenEstimate)
	out.Privacy = c.detectPrivacy(in, &out)
	c.applyTags(in, &out)
	return out
}

// detectIntent scores the regex families and picks the max; no match
// defaults to code with low confidence.
func detectIntent(prompt string, out *Classification) (Intent, float64) {
	best, bestScore := IntentCode, 0
	// Fixed iteration order keeps the result deterministic on ties.
	for _, intent := range []Intent{IntentCode, IntentTest, IntentDocs, IntentDesign, IntentOps} {
		score := 0
		for _, p := range intentPatterns[intent] {
			if p.MatchString(prompt) {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = intent, score
		}
	}
	if bestScore == 0 {
		out.Reasons = append(out.Reasons, "no intent pattern matched, defaulting to code")
		return IntentCode, 0.3
	}
	out.Reasons = append(out.Reasons, "intent "+string(best)+" matched patterns")
	return best, min(0.5+0.15*float64(bestScore), 0.95)
}

// sizeBucket maps a token estimate to a size bucket.
func sizeBucket(tokens int) Size {
	switch {
	case tokens >= largeTokens:
		return SizeLarge
	case tokens >= mediumTokens:
		return SizeMedium
	default:
		return SizeSmall
	}
}

// detectPrivacy honors an explicit caller tier, then scans the private
// pattern family, then workspace-internal keywords.
func (c *Classifier) detectPrivacy(in Input, out *Classification) Privacy {
	if in.Privacy != "" {
		out.Reasons = append(out.Reasons, "privacy declared by caller")
		return in.Privacy
	}
	for _, p := range privatePatterns {
		if p.MatchString(in.Prompt) {
			out.Reasons = append(out.Reasons, "private pattern matched")
			return PrivacyPrivate
		}
	}
	if internalKeywords.MatchString(in.Prompt) {
		out.Confidence = max(out.Confidence, 0.7)
		out.Reasons = append(out.Reasons, "workspace-internal keywords present")
		return PrivacyInternal
	}
	return PrivacyInternal
}

// applyTags attaches directive tags derived from size, urgency, and
// keyword scans.
func (c *Classifier) applyTags(in Input, out *Classification) {
	if out.Size == SizeLarge {
		out.Tags = append(out.Tags, "long_context")
	}
	if urgencyPattern.MatchString(in.Prompt) || strings.EqualFold(in.Urgency, "high") {
		out.Tags = append(out.Tags, "urgent")
	}
	if toolingPattern.MatchString(in.Prompt) {
		out.Tags = append(out.Tags, "tooling_heavy")
	}
	if offlinePattern.MatchString(in.Prompt) {
		out.Tags = append(out.Tags, "offline_required")
	}
}

// HasTag reports whether the classification carries the given tag.
func (cl *Classification) HasTag(tag string) bool {
	for _, t := range cl.Tags {
		if t == tag {
			return true
		}
	}
	return false
}
