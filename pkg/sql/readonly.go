package sql

import (
	"fmt"
	"sync"

	"vitess.io/vitess/go/vt/sqlparser"
)

var mysqlParser = sync.OnceValues(func() (*sqlparser.Parser, error) {
	return sqlparser.New(sqlparser.Options{})
})

// CheckMySQLReadOnly parses query with the MySQL grammar and accepts only
// SELECT, UNION, SHOW, DESCRIBE and EXPLAIN statements. Unparseable input is
// rejected.
func CheckMySQLReadOnly(query string) error {
	parser, err := mysqlParser()
	if err != nil {
		return fmt.Errorf("query rejected: MySQL parser unavailable: %w", err)
	}
	stmt, err := parser.Parse(query)
	if err != nil {
		return fmt.Errorf("query rejected: unable to parse as MySQL: %w", err)
	}
	return checkReadOnlyStatement(stmt)
}

func checkReadOnlyStatement(stmt sqlparser.Statement) error {
	switch s := stmt.(type) {
	case *sqlparser.Select, *sqlparser.Union, *sqlparser.Show, *sqlparser.ExplainTab:
		return nil
	case *sqlparser.ExplainStmt:
		// EXPLAIN ANALYZE runs its statement, so the target must be read-only too.
		return checkReadOnlyStatement(s.Statement)
	default:
		return &SanitizationError{Pattern: fmt.Sprintf("%T statement", stmt)}
	}
}
