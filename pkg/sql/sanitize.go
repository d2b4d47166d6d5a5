package sql

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrEmptyQuery is returned for blank queries.
var ErrEmptyQuery = errors.New("query is empty")

// SanitizationError reports why a query was rejected before execution.
// Keyword is set for destructive-keyword matches, Pattern for injection patterns.
type SanitizationError struct {
	Keyword string
	Pattern string
}

func (e *SanitizationError) Error() string {
	if e.Keyword != "" {
		return fmt.Sprintf("query rejected: destructive keyword %s is not allowed", e.Keyword)
	}
	return fmt.Sprintf("query rejected: %s is not allowed", e.Pattern)
}

// Pattern is a named injection pattern.
type Pattern struct {
	Name string
	Re   *regexp.Regexp
}

// Policy is a static, pre-execution guard for generated SQL.
type Policy struct {
	Keywords []string
	Patterns []Pattern

	keywordRe *regexp.Regexp
}

// DestructiveKeywords are rejected wherever they appear as whole words.
var DestructiveKeywords = []string{
	"DROP", "DELETE", "UPDATE", "INSERT", "TRUNCATE", "ALTER",
	"CREATE", "GRANT", "REVOKE", "EXEC", "EXECUTE",
}

// InjectionPatterns are rejected regardless of keyword checks.
var InjectionPatterns = []Pattern{
	{Name: "statement chaining", Re: regexp.MustCompile(`(?i);\s*(DROP|DELETE|UPDATE|INSERT|TRUNCATE|ALTER|CREATE|GRANT|REVOKE|EXEC|EXECUTE)\b`)},
	{Name: "UNION SELECT", Re: regexp.MustCompile(`(?i)\bUNION\s+(ALL\s+|DISTINCT\s+)?SELECT\b`)},
	{Name: "LOAD_FILE", Re: regexp.MustCompile(`(?i)\bLOAD_FILE\s*\(`)},
	{Name: "INTO OUTFILE", Re: regexp.MustCompile(`(?i)\bINTO\s+(OUTFILE|DUMPFILE)\b`)},
}

// NewPolicy compiles a policy. Keywords match case-insensitively on word
// boundaries, so identifiers such as updated_at or last_update are allowed.
func NewPolicy(keywords []string, patterns []Pattern) *Policy {
	quoted := make([]string, len(keywords))
	for i, k := range keywords {
		quoted[i] = regexp.QuoteMeta(k)
	}
	return &Policy{
		Keywords:  keywords,
		Patterns:  patterns,
		keywordRe: regexp.MustCompile(`(?i)\b(` + strings.Join(quoted, "|") + `)\b`),
	}
}

// DefaultPolicy rejects DestructiveKeywords and InjectionPatterns.
var DefaultPolicy = NewPolicy(DestructiveKeywords, InjectionPatterns)

// FindKeyword returns the first destructive keyword in query, upper-cased, or "".
func (p *Policy) FindKeyword(query string) string {
	if m := p.keywordRe.FindStringSubmatch(query); m != nil {
		return strings.ToUpper(m[1])
	}
	return ""
}

// Check validates query and returns it normalized (trimmed, trailing semicolon
// removed). Any violation returns an error and the query must not be executed.
func (p *Policy) Check(query string) (string, error) {
	normalized := StripTrailingSemicolons(strings.TrimSpace(query))
	if normalized == "" {
		return "", ErrEmptyQuery
	}

	for _, pat := range p.Patterns {
		if pat.Re.MatchString(normalized) {
			return "", &SanitizationError{Pattern: pat.Name}
		}
	}
	if kw := p.FindKeyword(normalized); kw != "" {
		return "", &SanitizationError{Keyword: kw}
	}
	if err := detectMultipleStatements(normalized); err != nil {
		return "", err
	}
	return normalized, nil
}

// SanitizeQuery checks query against DefaultPolicy.
func SanitizeQuery(query string) (string, error) {
	return DefaultPolicy.Check(query)
}

var (
	pathQuoteChars = regexp.MustCompile(`[<>'"]`)
	pathShellChars = regexp.MustCompile("[;&|`$]")
)

// SanitizePath strips markup quotes, parent-directory segments and shell
// metacharacters from an API path.
func SanitizePath(path string) string {
	cleaned := pathQuoteChars.ReplaceAllString(path, "")
	for strings.Contains(cleaned, "../") {
		cleaned = strings.ReplaceAll(cleaned, "../", "")
	}
	cleaned = pathShellChars.ReplaceAllString(cleaned, "")
	return strings.TrimSpace(cleaned)
}

// IsRejected reports whether err is a guard rejection rather than a failure
// of the data source itself.
func IsRejected(err error) bool {
	var sanErr *SanitizationError
	var injErr *InjectionError
	return errors.As(err, &sanErr) || errors.As(err, &injErr) || errors.Is(err, ErrMultipleStatements)
}
