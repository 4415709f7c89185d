package policy

import "regexp"

// secretPattern pairs a kind label with its detection regex. Detection and
// redaction share this table so a detected prompt always redacts cleanly.
type secretPattern struct {
	kind string
	re   *regexp.Regexp
}

var secretPatterns = []secretPattern{
	{"api_key", regexp.MustCompile(`(?i)\b(sk|pk|rk)[-_][A-Za-z0-9]{16,}\b`)},
	{"api_key", regexp.MustCompile(`(?i)api[-_]?key['"]?\s*[:=]\s*['"]?[A-Za-z0-9_\-]{16,}`)},
	{"oauth_token", regexp.MustCompile(`\bya29\.[A-Za-z0-9_\-]{20,}\b`)},
	{"oauth_token", regexp.MustCompile(`\bgh[pousr]_[A-Za-z0-9]{36,}\b`)},
	{"aws_key", regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`)},
	{"aws_key", regexp.MustCompile(`(?i)aws[-_]?secret[-_]?access[-_]?key['"]?\s*[:=]\s*['"]?[A-Za-z0-9/+=]{30,}`)},
	{"private_key", regexp.MustCompile(`-----BEGIN (?:RSA |EC |OPENSSH |DSA )?PRIVATE KEY-----`)},
	{"password", regexp.MustCompile(`(?i)password['"]?\s*[:=]\s*['"]?\S{6,}`)},
	{"database_url", regexp.MustCompile(`(?i)\b(?:postgres|postgresql|mysql|mongodb|redis)://[^\s'"]+:[^\s'"]+@[^\s'"]+`)},
	{"bearer_token", regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9_\-.=]{20,}`)},
}

// detectSecret scans text against the pattern family and returns the first
// matching kind.
func detectSecret(text string) (string, bool) {
	for _, p := range secretPatterns {
		if p.re.MatchString(text) {
			return p.kind, true
		}
	}
	return "", false
}

// Redact replaces every secret match in text with a [REDACTED:kind] marker.
func Redact(text string) string {
	for _, p := range secretPatterns {
		text = p.re.ReplaceAllString(text, "[REDACTED:"+p.kind+"]")
	}
	return text
}

// ContainsSecret reports whether text matches any secret pattern, with the
// kind of the first hit.
func ContainsSecret(text string) (string, bool) {
	return detectSecret(text)
}
