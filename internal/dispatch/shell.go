package dispatch

import (
	"regexp"
	"strings"
)

// shellMetachars are rejected outright; the dispatcher never forwards
// compound or redirecting shell input.
const shellMetachars = ";&|`$<>"

// blockedCommands are never valid shell passthrough regardless of allow-list.
var blockedCommands = map[string]bool{
	"nc": true, "ncat": true, "sudo": true, "su": true,
	"rm": true, "dd": true, "mkfs": true, "shred": true,
	"scp": true, "sftp": true, "tar": true, "curl": true, "wget": true,
	"chmod": true, "chown": true, "kill": true, "pkill": true,
	"shutdown": true, "reboot": true, "halt": true,
	"eval": true, "exec": true, "source": true,
}

// readOnlyCommands execute without confirmation; everything else that passes
// validation dispatches to "confirm" first.
var readOnlyCommands = map[string]bool{
	"ls": true, "cat": true, "grep": true, "head": true, "tail": true,
	"find": true, "pwd": true, "whoami": true, "date": true, "wc": true,
	"df": true, "du": true, "ps": true, "uptime": true, "which": true,
	"file": true, "stat": true, "env": true, "uname": true,
}

// mutatingCommands are recognized shell commands that pass validation but
// dispatch to "confirm" before running.
var mutatingCommands = map[string]bool{
	"mkdir": true, "rmdir": true, "touch": true, "mv": true, "cp": true,
	"ln": true, "git": true, "make": true, "go": true,
	"python": true, "python3": true, "pip": true, "npm": true, "node": true,
	"sed": true, "awk": true, "vi": true, "nano": true,
}

// dangerousPatterns reject by shape what the token checks miss.
var dangerousPatterns = []*regexp.Regexp{
	regexp.MustCompile(`rm\s+-[a-zA-Z]*r[a-zA-Z]*f`),
	regexp.MustCompile(`>\s*/dev/`),
	regexp.MustCompile(`\$\(`),
	regexp.MustCompile("`"),
}

// stage2 validates the input as a shell passthrough command. Returns nil to
// fall through to stage 3: when shell is disabled, or validation fails.
func (d *Dispatcher) stage2(input string, trace *Debug) *Response {
	if !d.cfg.ShellEnabled {
		addTrace(trace, TraceRecord{Stage: 2, Decision: "skip", Reason: "shell_disabled"})
		return nil
	}

	if reason, ok := d.validateShell(input); !ok {
		unsafe := false
		addTrace(trace, TraceRecord{Stage: 2, Decision: "validate", Reason: reason, IsSafe: &unsafe})
		logDecision(2, "reject", reason)
		return nil
	}

	fields := strings.Fields(input)
	command := normalizeShellToken(fields[0])
	payload := &ShellPayload{
		Command:          command,
		Args:             fields[1:],
		Raw:              input,
		ValidationReason: "recognized command, passed token and pattern checks",
	}

	if !readOnlyCommands[command] {
		payload.RequiresConfirmation = true
		payload.ConfirmationReason = command + " can modify state"
		addTrace(trace, TraceRecord{Stage: 2, Decision: "confirm_required", Detail: command})
		return &Response{
			Status:     "pending",
			Stage:      2,
			DispatchTo: "confirm",
			Confidence: 1.0,
			Shell:      payload,
			Contract:   contract(),
		}
	}

	addTrace(trace, TraceRecord{Stage: 2, Decision: "dispatch", Detail: command})
	return &Response{
		Status:     "ok",
		Stage:      2,
		DispatchTo: "shell",
		Confidence: 1.0,
		Shell:      payload,
		Contract:   contract(),
	}
}

// validateShell applies the metachar, block-list, allow-list, and pattern
// checks in order. Returns a reason and false on the first failure.
func (d *Dispatcher) validateShell(input string) (string, bool) {
	if strings.ContainsAny(input, shellMetachars) {
		return "contains shell metacharacters", false
	}

	fields := strings.Fields(input)
	token := normalizeShellToken(fields[0])

	for _, p := range dangerousPatterns {
		if p.MatchString(input) {
			return "matches dangerous pattern " + p.String(), false
		}
	}
	if blockedCommands[token] {
		return "command " + token + " is blocked", false
	}
	if d.allow != nil {
		if !d.allow[token] {
			return "command " + token + " not in allow-list", false
		}
	} else if !readOnlyCommands[token] && !mutatingCommands[token] {
		return "command " + token + " not recognized", false
	}
	return "", true
}

// normalizeShellToken strips ./ prefixes and lowercases the command token.
func normalizeShellToken(token string) string {
	for strings.HasPrefix(token, "./") {
		token = token[2:]
	}
	return strings.ToLower(token)
}
