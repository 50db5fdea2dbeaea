package validator

import (
	"regexp"
	"strings"
)

type threatPattern struct {
	name string
	re   *regexp.Regexp
}

// Injection attempts: SQL verbs near table syntax, script tags, dangerous
// URI schemes, dynamic evaluation.
var injectionPatterns = []threatPattern{
	{"sql_select", regexp.MustCompile(`(?i)\bselect\b.{0,40}\bfrom\b`)},
	{"sql_union", regexp.MustCompile(`(?i)\bunion\b\s+(all\s+)?\bselect\b`)},
	{"sql_mutation", regexp.MustCompile(`(?i)\b(insert\s+into|update\s+\w+\s+set|delete\s+from|drop\s+(table|database)|truncate\s+table)\b`)},
	{"script_tag", regexp.MustCompile(`(?i)<\s*script[\s>]`)},
	{"javascript_uri", regexp.MustCompile(`(?i)javascript\s*:`)},
	{"data_uri", regexp.MustCompile(`(?i)data\s*:\s*text/html`)},
	{"eval_call", regexp.MustCompile(`(?i)\b(eval|exec|execfile|compile)\s*\(`)},
	{"template_injection", regexp.MustCompile(`\{\{.{0,60}\}\}`)},
}

// Sensitive-data shapes: card numbers, national-ID-like digit groups,
// email addresses, IPv4 literals.
var sensitivePatterns = []threatPattern{
	{"card_number", regexp.MustCompile(`\b(?:\d[ -]?){13,16}\b`)},
	{"national_id", regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
	{"email_address", regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)},
	{"ipv4_literal", regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)},
	{"private_key", regexp.MustCompile(`-----BEGIN [A-Z ]*PRIVATE KEY-----`)},
}

// System-command tokens: destructive shell verbs, privilege escalation,
// remote-fetch utilities.
var commandPatterns = []threatPattern{
	{"destructive_rm", regexp.MustCompile(`(?i)\brm\s+(-[a-z]*[rf][a-z]*\s+)+`)},
	{"disk_wipe", regexp.MustCompile(`(?i)\b(mkfs|dd\s+if=|shred)\b`)},
	{"priv_escalation", regexp.MustCompile(`(?i)\b(sudo|chmod\s+[0-7]*7[0-7]*|chown\s+root)\b`)},
	{"remote_fetch", regexp.MustCompile(`(?i)\b(wget|curl)\b.{0,40}\|\s*(sh|bash)\b`)},
	{"shell_spawn", regexp.MustCompile(`(?i)\b(/bin/(ba)?sh|nc\s+-e|reverse\s+shell)\b`)},
}

// scanThreats returns the first matching category and pattern name, or
// empty strings when content is clean.
func scanThreats(content string) (category, pattern string) {
	for _, p := range injectionPatterns {
		if p.re.MatchString(content) {
			return "injection", p.name
		}
	}
	for _, p := range sensitivePatterns {
		if p.re.MatchString(content) {
			return "sensitive_data", p.name
		}
	}
	for _, p := range commandPatterns {
		if p.re.MatchString(content) {
			return "system_command", p.name
		}
	}
	return "", ""
}

// Executable-code markers rejected in pattern-type memory.
var codeMarkers = []string{
	"import ", "require(", "eval(", "exec(", "subprocess", "os.system",
	"__import__", "#!/", "function(", "=>", "lambda ",
}

func scanCodeMarkers(content string) string {
	lower := strings.ToLower(content)
	for _, m := range codeMarkers {
		if strings.Contains(lower, m) {
			return strings.TrimSpace(m)
		}
	}
	return ""
}

// Query-syntax injection patterns: union/select tokens, comment markers,
// always-true boolean injections.
var queryInjectionPatterns = []threatPattern{
	{"union_select", regexp.MustCompile(`union\s+(all\s+)?select`)},
	{"comment_marker", regexp.MustCompile(`(--|/\*|\*/|#\s*$)`)},
	{"always_true", regexp.MustCompile(`(\b(or|and)\b\s+['"]?\d+['"]?\s*=\s*['"]?\d+|'\s*or\s*')`)},
	{"stacked_statement", regexp.MustCompile(`;\s*(select|insert|update|delete|drop)\b`)},
}
