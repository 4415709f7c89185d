package classify

import (
	"strings"
	"testing"
)

func TestClassify_IntentCode(t *testing.T) {
	t.Parallel()
	c := New()

	out := c.Classify(Input{Prompt: "fix the bug in the parse function and refactor the struct"})
	if out.Intent != IntentCode {
		t.Errorf("intent = %q, want code", out.Intent)
	}
	if out.Confidence <= 0.5 {
		t.Errorf("confidence = %v, want > 0.5 with multiple pattern hits", out.Confidence)
	}
}

func TestClassify_IntentDefaultsToCode(t *testing.T) {
	t.Parallel()
	c := New()

	out := c.Classify(Input{Prompt: "hello there"})
	if out.Intent != IntentCode {
		t.Errorf("intent = %q, want code default", out.Intent)
	}
	if out.Confidence != 0.3 {
		t.Errorf("confidence = %v, want 0.3 for no-match default", out.Confidence)
	}
}

func TestClassify_IntentOps(t *testing.T) {
	t.Parallel()
	c := New()

	out := c.Classify(Input{Prompt: "deploy the service and monitor the rollback pipeline"})
	if out.Intent != IntentOps {
		t.Errorf("intent = %q, want ops", out.Intent)
	}
}

func TestClassify_TokenEstimateAndSize(t *testing.T) {
	t.Parallel()
	c := New()

	small := c.Classify(Input{Prompt: "short"})
	if small.TokenEstimate != len("short")/4 {
		t.Errorf("token estimate = %d, want len/4", small.TokenEstimate)
	}
	if small.Size != SizeSmall {
		t.Errorf("size = %q, want small", small.Size)
	}

	medium := c.Classify(Input{Prompt: strings.Repeat("x", 9000)})
	if medium.Size != SizeMedium {
		t.Errorf("size = %q, want medium for 2250 tokens", medium.Size)
	}

	large := c.Classify(Input{Prompt: strings.Repeat("x", 40000)})
	if large.Size != SizeLarge {
		t.Errorf("size = %q, want large for 10000 tokens", large.Size)
	}
	if !large.HasTag("long_context") {
		t.Error("large tasks should carry long_context tag")
	}
}

func TestClassify_PrivacyExplicitWins(t *testing.T) {
	t.Parallel()
	c := New()

	out := c.Classify(Input{Prompt: "my password is hunter2", Privacy: PrivacyPublic})
	if out.Privacy != PrivacyPublic {
		t.Errorf("privacy = %q, explicit caller declaration must win", out.Privacy)
	}
}

func TestClassify_PrivacyDetected(t *testing.T) {
	t.Parallel()
	c := New()

	out := c.Classify(Input{Prompt: "summarize my medical diagnosis notes"})
	if out.Privacy != PrivacyPrivate {
		t.Errorf("privacy = %q, want private", out.Privacy)
	}
}

func TestClassify_PrivacyInternalDefault(t *testing.T) {
	t.Parallel()
	c := New()

	out := c.Classify(Input{Prompt: "write a haiku"})
	if out.Privacy != PrivacyInternal {
		t.Errorf("privacy = %q, want internal default", out.Privacy)
	}
}

func TestClassify_Tags(t *testing.T) {
	t.Parallel()
	c := New()

	out := c.Classify(Input{Prompt: "urgent: read the file from disk offline, no network"})
	for _, tag := range []string{"urgent", "tooling_heavy", "offline_required"} {
		if !out.HasTag(tag) {
			t.Errorf("missing tag %q in %v", tag, out.Tags)
		}
	}
}

func TestClassify_TaskIDGenerated(t *testing.T) {
	t.Parallel()
	c := New()

	out := c.Classify(Input{Prompt: "anything"})
	if out.TaskID == "" {
		t.Error("task id should be generated when absent")
	}
	kept := c.Classify(Input{Prompt: "anything", TaskID: "t-1"})
	if kept.TaskID != "t-1" {
		t.Errorf("task id = %q, want caller-provided t-1", kept.TaskID)
	}
	if out.Workspace != "core" {
		t.Errorf("workspace = %q, want core default", out.Workspace)
	}
}
