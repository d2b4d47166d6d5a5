package logging

import (
	"regexp"
)

const (
	// MaxQueryLogLength is the maximum length of a query written to logs.
	MaxQueryLogLength = 200
	// MaxErrorLength is the maximum length of an error message stored in history.
	MaxErrorLength = 1000
	// RedactedText is the replacement text for sensitive data.
	RedactedText = "[REDACTED]"
)

type redaction struct {
	pattern     *regexp.Regexp
	replacement string
}

var (
	// password=xxx, pwd=xxx, pass=xxx up to the next delimiter
	passwordRule = redaction{regexp.MustCompile(`(?i)(password|pwd|pass)=[^;&\s]+`), "${1}=" + RedactedText}

	// user:pass@host in DSNs and URLs
	userinfoRule = redaction{regexp.MustCompile(`://[^:/\s]+:\S+@`), "://" + RedactedText + "@"}

	// go-sql-driver/mysql style user:pass@tcp(host)
	mysqlDSNRule = redaction{regexp.MustCompile(`^[^:/\s]+:[^@\s]+@(tcp|unix)\(`), RedactedText + "@${1}("}

	bearerRule = redaction{regexp.MustCompile(`(?i)Bearer\s+[A-Za-z0-9\-_.~+/]+=*`), "Bearer " + RedactedText}
	basicRule  = redaction{regexp.MustCompile(`(?i)Basic\s+[A-Za-z0-9+/]+=*`), "Basic " + RedactedText}

	apiKeyRule = redaction{regexp.MustCompile(`(?i)(api[_-]?key|apikey|access[_-]?token)(["']?\s*[=:]\s*["']?)[A-Za-z0-9\-_.]{8,}`), "${1}${2}" + RedactedText}

	// OpenAI/Anthropic style secret keys
	secretKeyRule = redaction{regexp.MustCompile(`sk-[A-Za-z0-9\-_]{16,}`), RedactedText}

	connectionRules = []redaction{passwordRule, userinfoRule, mysqlDSNRule}
	textRules       = []redaction{passwordRule, userinfoRule, bearerRule, basicRule, apiKeyRule, secretKeyRule}
)

func apply(s string, rules []redaction) string {
	for _, r := range rules {
		s = r.pattern.ReplaceAllString(s, r.replacement)
	}
	return s
}

// SanitizeConnectionString removes credentials from DSNs and URLs.
func SanitizeConnectionString(connStr string) string {
	if connStr == "" {
		return ""
	}
	return apply(connStr, connectionRules)
}

// SanitizeError returns the error text with credentials, tokens and keys redacted.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	return apply(err.Error(), textRules)
}

// ErrorMessage is SanitizeError bounded to MaxErrorLength, for persisting
// user-visible error strings.
func ErrorMessage(err error) string {
	return TruncateString(SanitizeError(err), MaxErrorLength)
}

// SanitizeQuery truncates a query and removes sensitive patterns for logging.
func SanitizeQuery(query string) string {
	if query == "" {
		return ""
	}
	return apply(TruncateString(query, MaxQueryLogLength), textRules)
}

// TruncateString truncates s to maxLen and adds an ellipsis if needed.
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
