// assess-history evaluates the recorded query history of one tenant using only
// deterministic checks:
// - Guard regression: does every successful SQL query still pass the read-only guard?
// - Record integrity: do failed rows carry an error and successful rows a query?
// - Leak check: do stored error messages survive sanitization unchanged?
// - Confidence: how do recomputed confidence scores distribute across outcomes?
//
// Usage: go run ./scripts/assess-history <tenant-id> [limit]
//
// Database connection: Uses standard PG* environment variables
//
// The script reads ai_query_history directly with pgx rather than through the
// repository layer so it can run against a copy of production data.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"os/exec"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/ekaya-query/pkg/logging"
	"github.com/ekaya-inc/ekaya-query/pkg/models"
	"github.com/ekaya-inc/ekaya-query/pkg/services"
	sqlguard "github.com/ekaya-inc/ekaya-query/pkg/sql"
)

const defaultLimit = 1000

// HistoryRow is the subset of ai_query_history the checks need.
type HistoryRow struct {
	ID              uuid.UUID
	ConnectionID    uuid.UUID
	GeneratedQuery  string
	Status          string
	Error           string
	ExecutionTimeMs int64
}

// Check is one named assessment with its failing examples.
type Check struct {
	Name     string   `json:"name"`
	Checked  int      `json:"checked"`
	Failed   int      `json:"failed"`
	Examples []string `json:"examples,omitempty"`
}

// ConfidenceBand counts outcomes for one confidence range.
type ConfidenceBand struct {
	Band    string `json:"band"`
	Success int    `json:"success"`
	Failed  int    `json:"failed"`
}

// AssessmentResult is the full report printed as JSON.
type AssessmentResult struct {
	CommitInfo   string           `json:"commit_info"`
	TenantID     string           `json:"tenant_id"`
	RowsAssessed int              `json:"rows_assessed"`
	StatusCounts map[string]int   `json:"status_counts"`
	LatencyP50Ms int64            `json:"latency_p50_ms"`
	LatencyP95Ms int64            `json:"latency_p95_ms"`
	Checks       []Check          `json:"checks"`
	Confidence   []ConfidenceBand `json:"confidence"`
	FinalScore   int              `json:"final_score"`
	Summary      string           `json:"summary"`
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: %s <tenant-id> [limit]\n", os.Args[0])
		os.Exit(1)
	}

	tenantID, err := uuid.Parse(os.Args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid tenant ID: %v\n", err)
		os.Exit(1)
	}

	limit := defaultLimit
	if len(os.Args) > 2 {
		if limit, err = strconv.Atoi(os.Args[2]); err != nil || limit < 1 {
			fmt.Fprintf(os.Stderr, "Invalid limit: %s\n", os.Args[2])
			os.Exit(1)
		}
	}

	ctx := context.Background()

	conn, err := pgx.Connect(ctx, buildConnString())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close(ctx)

	rows, err := loadHistory(ctx, conn, tenantID, limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load history: %v\n", err)
		os.Exit(1)
	}
	if len(rows) == 0 {
		fmt.Fprintf(os.Stderr, "No history found for tenant %s\n", tenantID)
		os.Exit(1)
	}

	result := assess(rows)
	result.CommitInfo = getCommitInfo()
	result.TenantID = tenantID.String()

	output, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(output))
}

// loadHistory reads the newest rows. The tenant is set on the session because
// row level security filters ai_query_history by app.current_tenant_id.
func loadHistory(ctx context.Context, conn *pgx.Conn, tenantID uuid.UUID, limit int) ([]HistoryRow, error) {
	if _, err := conn.Exec(ctx, "SELECT set_config('app.current_tenant_id', $1, false)", tenantID.String()); err != nil {
		return nil, fmt.Errorf("set tenant: %w", err)
	}

	query := `
		SELECT id, connection_id, generated_query, status, COALESCE(error, ''), execution_time_ms
		FROM ai_query_history
		WHERE tenant_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	pgRows, err := conn.Query(ctx, query, tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer pgRows.Close()

	var rows []HistoryRow
	for pgRows.Next() {
		var r HistoryRow
		if err := pgRows.Scan(&r.ID, &r.ConnectionID, &r.GeneratedQuery, &r.Status, &r.Error, &r.ExecutionTimeMs); err != nil {
			return nil, err
		}
		rows = append(rows, r)
	}
	return rows, pgRows.Err()
}

func assess(rows []HistoryRow) AssessmentResult {
	result := AssessmentResult{
		RowsAssessed: len(rows),
		StatusCounts: map[string]int{},
	}

	guard := Check{Name: "successful SQL passes the read-only guard"}
	integrity := Check{Name: "row outcome matches its fields"}
	leaks := Check{Name: "stored errors contain no credentials"}

	bands := []ConfidenceBand{{Band: "<0.5"}, {Band: "0.5-0.7"}, {Band: "0.7-0.9"}, {Band: ">=0.9"}}
	latencies := make([]int64, 0, len(rows))

	for _, r := range rows {
		result.StatusCounts[r.Status]++
		latencies = append(latencies, r.ExecutionTimeMs)
		success := r.Status == string(models.QueryStatusSuccess)

		integrity.Checked++
		if (success && r.GeneratedQuery == "") || (!success && r.Error == "") {
			integrity.fail(r.ID, "status "+r.Status)
		}

		if r.Error != "" {
			leaks.Checked++
			if logging.SanitizeError(fmt.Errorf("%s", r.Error)) != r.Error {
				leaks.fail(r.ID, "error message changes under sanitization")
			}
		}

		if r.GeneratedQuery == "" {
			continue
		}

		call, isAPI := parseAPICall(r.GeneratedQuery)
		var confidence float64
		if isAPI {
			confidence = services.ScoreAPICall(call)
		} else {
			confidence = services.ScoreSQL(r.GeneratedQuery)
			if success {
				guard.Checked++
				if _, err := sqlguard.SanitizeQuery(r.GeneratedQuery); err != nil {
					guard.fail(r.ID, err.Error())
				}
			}
		}

		band := &bands[bandIndex(confidence)]
		if success {
			band.Success++
		} else {
			band.Failed++
		}
	}

	result.LatencyP50Ms = percentile(latencies, 0.50)
	result.LatencyP95Ms = percentile(latencies, 0.95)
	result.Checks = []Check{guard, integrity, leaks}
	result.Confidence = bands
	result.FinalScore = score(result.Checks)
	result.Summary = summarize(result)
	return result
}

func (c *Check) fail(id uuid.UUID, reason string) {
	c.Failed++
	if len(c.Examples) < 5 {
		c.Examples = append(c.Examples, id.String()+": "+reason)
	}
}

func parseAPICall(generated string) (*models.APICall, bool) {
	if !strings.HasPrefix(strings.TrimSpace(generated), "{") {
		return nil, false
	}
	var call models.APICall
	if err := json.Unmarshal([]byte(generated), &call); err != nil {
		return nil, false
	}
	return &call, true
}

func bandIndex(confidence float64) int {
	switch {
	case confidence < 0.5:
		return 0
	case confidence < 0.7:
		return 1
	case confidence < 0.9:
		return 2
	}
	return 3
}

func percentile(values []int64, p float64) int64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]int64(nil), values...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	// nearest rank
	idx := int(math.Ceil(p*float64(len(sorted)))) - 1
	return sorted[max(idx, 0)]
}

// score is the share of passed checks over all checked items, 0-100.
func score(checks []Check) int {
	checked, failed := 0, 0
	for _, c := range checks {
		checked += c.Checked
		failed += c.Failed
	}
	if checked == 0 {
		return 100
	}
	return (checked - failed) * 100 / checked
}

func summarize(r AssessmentResult) string {
	var failing []string
	for _, c := range r.Checks {
		if c.Failed > 0 {
			failing = append(failing, fmt.Sprintf("%s (%d/%d)", c.Name, c.Failed, c.Checked))
		}
	}
	if len(failing) == 0 {
		return fmt.Sprintf("All checks passed over %d rows", r.RowsAssessed)
	}
	return "Failing: " + strings.Join(failing, "; ")
}

func buildConnString() string {
	host := getEnvOrDefault("PGHOST", "localhost")
	port := getEnvOrDefault("PGPORT", "5432")
	user := getEnvOrDefault("PGUSER", "ekaya")
	password := os.Getenv("PGPASSWORD")
	dbname := getEnvOrDefault("PGDATABASE", "ekaya_query")

	connStr := fmt.Sprintf("host=%s port=%s user=%s dbname=%s sslmode=disable",
		host, port, user, dbname)
	if password != "" {
		connStr += fmt.Sprintf(" password=%s", password)
	}
	return connStr
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getCommitInfo() string {
	cmd := exec.Command("git", "describe", "--always", "--dirty")
	output, err := cmd.Output()
	if err != nil {
		return "unknown"
	}
	return strings.TrimSpace(string(output))
}
