// Package sql guards generated queries before they reach a data source.
package sql

import (
	"errors"
	"strings"
)

// ErrMultipleStatements indicates the query contains more than one statement.
var ErrMultipleStatements = errors.New("multiple SQL statements not allowed; only single statements are permitted")

// detectMultipleStatements expects the trailing semicolon to be stripped
// already, so any remaining semicolon outside a literal starts a second statement.
func detectMultipleStatements(query string) error {
	if hasSemicolonOutsideStrings(query) {
		return ErrMultipleStatements
	}
	return nil
}

// hasSemicolonOutsideStrings scans under both quoting conventions: MySQL
// treats a backslash as an escape inside literals, standard SQL does not. A
// semicolon outside a literal under either reading counts.
func hasSemicolonOutsideStrings(query string) bool {
	return scanForSemicolon(query, true) || scanForSemicolon(query, false)
}

func scanForSemicolon(query string, backslashEscapes bool) bool {
	var quote rune
	escaped := false

	for _, ch := range query {
		switch {
		case escaped:
			escaped = false
		case quote == 0 && ch == ';':
			return true
		case quote == 0 && (ch == '\'' || ch == '"' || ch == '`'):
			quote = ch
		case quote != 0 && backslashEscapes && ch == '\\':
			escaped = true
		case quote != 0 && ch == quote:
			// A doubled quote ('') closes and immediately reopens, staying inside the literal.
			quote = 0
		}
	}
	return false
}

// StripTrailingSemicolons removes any run of trailing semicolons and whitespace.
func StripTrailingSemicolons(query string) string {
	return strings.TrimRight(query, "; \t\n\r")
}
