package dispatch

import "regexp"

// skillPatterns maps each skill to the phrase patterns that suggest it.
// Matching is case-insensitive; the score is the number of patterns hit.
var skillPatterns = map[string][]*regexp.Regexp{
	"device": {
		regexp.MustCompile(`(?i)\bdevices?\b`),
		regexp.MustCompile(`(?i)\bpair(ing)?\b`),
		regexp.MustCompile(`(?i)\b(phone|tablet|laptop)\b`),
		regexp.MustCompile(`(?i)\btrust\b`),
	},
	"script": {
		regexp.MustCompile(`(?i)\bscripts?\b`),
		regexp.MustCompile(`(?i)\brun\b.*\b(job|automation)\b`),
		regexp.MustCompile(`(?i)\bschedule\b`),
	},
	"vault": {
		regexp.MustCompile(`(?i)\bvault\b`),
		regexp.MustCompile(`(?i)\b(secret|credential|password)s?\b`),
		regexp.MustCompile(`(?i)\bbinders?\b`),
	},
	"workspace": {
		regexp.MustCompile(`(?i)\bworkspaces?\b`),
		regexp.MustCompile(`(?i)\bprojects?\b`),
		regexp.MustCompile(`(?i)\bmissions?\b`),
	},
	"wizops": {
		regexp.MustCompile(`(?i)\b(wizard|gateway)\b`),
		regexp.MustCompile(`(?i)\b(restart|upgrade|maintenance)\b`),
		regexp.MustCompile(`(?i)\blogs?\b`),
	},
	"network": {
		regexp.MustCompile(`(?i)\bnetwork\b`),
		regexp.MustCompile(`(?i)\b(wifi|ethernet|dns|ip address)\b`),
		regexp.MustCompile(`(?i)\b(online|offline|connection)\b`),
	},
	"user": {
		regexp.MustCompile(`(?i)\busers?\b`),
		regexp.MustCompile(`(?i)\baccounts?\b`),
		regexp.MustCompile(`(?i)\bprofile\b`),
	},
	"help": {
		regexp.MustCompile(`(?i)\bhelp\b`),
		regexp.MustCompile(`(?i)\bhow (do|to)\b`),
		regexp.MustCompile(`(?i)\bwhat (is|are)\b`),
	},
}

// fallbackSkill is the neutral skill returned when no skill scores or the
// maximum is tied across skills.
const fallbackSkill = "ask"

// stage3 infers a skill from the input. It always dispatches and never fails.
func (d *Dispatcher) stage3(input string, trace *Debug) *Response {
	scores := make(map[string]int, len(skillPatterns))
	for skill, patterns := range skillPatterns {
		for _, p := range patterns {
			if p.MatchString(input) {
				scores[skill]++
			}
		}
	}

	best, bestScore, tied := fallbackSkill, 0, false
	for skill, score := range scores {
		switch {
		case score > bestScore:
			best, bestScore, tied = skill, score, false
		case score == bestScore && score > 0:
			tied = true
		}
	}
	if tied || bestScore == 0 {
		best = fallbackSkill
	}

	addTrace(trace, TraceRecord{Stage: 3, Decision: "dispatch", Detail: best, Score: float64(bestScore)})
	return &Response{
		Status:     "ok",
		Stage:      3,
		DispatchTo: "vibe",
		Skill:      best,
		Confidence: skillConfidence(bestScore),
		Contract:   contract(),
	}
}

// skillConfidence maps a pattern-hit count to a rough confidence value.
func skillConfidence(score int) float64 {
	switch {
	case score >= 3:
		return 0.9
	case score == 2:
		return 0.75
	case score == 1:
		return 0.6
	default:
		return 0.3
	}
}
