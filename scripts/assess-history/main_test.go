package main

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssess(t *testing.T) {
	rows := []HistoryRow{
		{ID: uuid.New(), Status: "SUCCESS", GeneratedQuery: "SELECT id FROM users ORDER BY id LIMIT 5", ExecutionTimeMs: 120},
		{ID: uuid.New(), Status: "SUCCESS", GeneratedQuery: `{"method":"GET","path":"/posts"}`, ExecutionTimeMs: 300},
		{ID: uuid.New(), Status: "ERROR", GeneratedQuery: "DELETE FROM users", Error: "query execution failed: query rejected", ExecutionTimeMs: 40},
		{ID: uuid.New(), Status: "TIMEOUT", Error: "", ExecutionTimeMs: 90000},
		{ID: uuid.New(), Status: "SUCCESS", GeneratedQuery: "DROP TABLE users", ExecutionTimeMs: 10},
	}

	result := assess(rows)

	assert.Equal(t, 5, result.RowsAssessed)
	assert.Equal(t, 3, result.StatusCounts["SUCCESS"])
	require.Len(t, result.Checks, 3)

	guard := result.Checks[0]
	assert.Equal(t, 2, guard.Checked)
	assert.Equal(t, 1, guard.Failed)

	integrity := result.Checks[1]
	assert.Equal(t, 5, integrity.Checked)
	assert.Equal(t, 1, integrity.Failed, "TIMEOUT row without error")

	assert.Equal(t, 0, result.Checks[2].Failed)
	assert.Less(t, result.FinalScore, 100)
	assert.Contains(t, result.Summary, "Failing")
	assert.Equal(t, int64(90000), result.LatencyP95Ms)
}

func TestAssess_FlagsCredentialLeak(t *testing.T) {
	rows := []HistoryRow{
		{ID: uuid.New(), Status: "ERROR", Error: "dial failed: postgres://admin:hunter2@db:5432/app"},
	}

	result := assess(rows)

	assert.Equal(t, 1, result.Checks[2].Failed)
}

func TestPercentileAndBands(t *testing.T) {
	assert.Equal(t, int64(0), percentile(nil, 0.5))
	assert.Equal(t, int64(3), percentile([]int64{5, 1, 3}, 0.5))
	assert.Equal(t, 0, bandIndex(0.2))
	assert.Equal(t, 1, bandIndex(0.64))
	assert.Equal(t, 2, bandIndex(0.71))
	assert.Equal(t, 3, bandIndex(1.0))
}
