package prompts

import (
	"fmt"
	"strings"

	"github.com/ekaya-inc/ekaya-query/pkg/models"
)

// UnsupportedQuerySQL is the statement the model is told to return when a
// question cannot be answered from the schema.
const UnsupportedQuerySQL = "SELECT 'unsupported query' AS error"

// SQLSystemMessage frames the model as a read-only query writer.
const SQLSystemMessage = "You translate questions into a single read-only SQL query. Reply with the query only."

// APISystemMessage frames the model as an API call planner.
const APISystemMessage = "You translate questions into a single REST API call. Reply with one JSON object only."

// SQLPromptInput is everything the SQL prompt embeds.
type SQLPromptInput struct {
	Dialect  string
	Database string
	Schema   []models.SchemaColumn
	Question string
}

// BuildSQLPrompt renders the SQL translation prompt. The output depends only
// on the input, so identical requests produce identical prompts.
func BuildSQLPrompt(in SQLPromptInput) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s Query Generation\n\n", in.Dialect)
	if in.Database != "" {
		fmt.Fprintf(&b, "Database: %s\n\n", in.Database)
	}

	b.WriteString("## Schema\n\n")
	writeSchema(&b, in.Schema)

	b.WriteString("\n## Rules\n\n")
	fmt.Fprintf(&b, "1. Write a single %s statement using only the tables and columns listed above.\n", in.Dialect)
	b.WriteString("2. Return the raw SQL only. No markdown, no code fences, no explanation.\n")
	fmt.Fprintf(&b, "3. Use correct %s syntax for identifiers, functions and pagination.\n", in.Dialect)
	b.WriteString("4. Add WHERE clauses that narrow the result to what the question asks for.\n")
	fmt.Fprintf(&b, "5. Limit result sets that could be unbounded (%s).\n", limitHint(in.Dialect))
	b.WriteString("6. Never use DROP, DELETE, UPDATE, INSERT, TRUNCATE, ALTER, CREATE, GRANT, REVOKE, EXEC or EXECUTE.\n")
	fmt.Fprintf(&b, "7. If the question cannot be answered from this schema, return exactly: %s\n", UnsupportedQuerySQL)

	b.WriteString("\n## Question\n\n")
	b.WriteString(strings.TrimSpace(in.Question))
	b.WriteString("\n")

	return b.String()
}

// writeSchema groups the flattened triples by table, keeping first-seen order.
func writeSchema(b *strings.Builder, columns []models.SchemaColumn) {
	if len(columns) == 0 {
		b.WriteString("(no tables discovered)\n")
		return
	}

	var order []string
	byTable := make(map[string][]string)
	for _, c := range columns {
		if _, ok := byTable[c.TableName]; !ok {
			order = append(order, c.TableName)
		}
		byTable[c.TableName] = append(byTable[c.TableName], c.ColumnName+":"+c.DataType)
	}
	for _, table := range order {
		fmt.Fprintf(b, "- %s(%s)\n", table, strings.Join(byTable[table], ", "))
	}
}

func limitHint(dialect string) string {
	if dialect == "T-SQL" {
		return "use TOP 100 unless the question asks for a specific number"
	}
	return "use LIMIT 100 unless the question asks for a specific number"
}

// APIPromptInput is everything the API prompt embeds.
type APIPromptInput struct {
	BaseURL   string
	Endpoints []models.APIEndpoint
	Question  string
}

// BuildAPIPrompt renders the API-call translation prompt.
func BuildAPIPrompt(in APIPromptInput) string {
	var b strings.Builder

	b.WriteString("# REST API Call Generation\n\n")
	if in.BaseURL != "" {
		fmt.Fprintf(&b, "Base URL: %s\n\n", in.BaseURL)
	}

	b.WriteString("## Known Endpoints\n\n")
	if len(in.Endpoints) == 0 {
		b.WriteString("(no endpoints are documented; infer a conventional REST path)\n")
	}
	for _, e := range in.Endpoints {
		fmt.Fprintf(&b, "- %s %s: %s\n", e.Method, e.Path, e.Description)
	}

	b.WriteString("\n## Response Format\n\n")
	b.WriteString("Return one JSON object and nothing else:\n")
	b.WriteString(`{"method": "GET", "path": "/resource", "params": {}, "body": null, "description": "what the call returns"}`)
	b.WriteString("\n\nparams and body are optional. Prefer GET for questions that only read data.\n")
	b.WriteString("If the question cannot be answered with these endpoints, return:\n")
	b.WriteString(`{"error": "unsupported", "reason": "why the question cannot be answered"}`)
	b.WriteString("\n\n## Question\n\n")
	b.WriteString(strings.TrimSpace(in.Question))
	b.WriteString("\n")

	return b.String()
}
