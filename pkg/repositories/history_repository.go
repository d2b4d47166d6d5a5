package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/ekaya-query/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-query/pkg/database"
	"github.com/ekaya-inc/ekaya-query/pkg/models"
)

const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 200
)

// HistoryRepository is the append-only store of query attempts. There is no
// update or delete; the table's trigger rejects both.
type HistoryRepository interface {
	// Insert assigns ID and CreatedAt and writes the record.
	Insert(ctx context.Context, record *models.AIQueryResult) error
	List(ctx context.Context, tenantID uuid.UUID, filters models.HistoryFilters) ([]*models.AIQueryResult, error)
	GetByID(ctx context.Context, tenantID, id uuid.UUID) (*models.AIQueryResult, error)
}

type historyRepository struct{}

func NewHistoryRepository() HistoryRepository {
	return &historyRepository{}
}

var _ HistoryRepository = (*historyRepository)(nil)

const historyColumns = `id, tenant_id, connection_id, user_id, natural_query, generated_query,
	results, execution_time_ms, status, error, created_at`

func (r *historyRepository) Insert(ctx context.Context, record *models.AIQueryResult) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}

	results := record.Results
	if results == nil {
		results = []models.Row{}
	}
	resultsJSON, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}

	var errText *string
	if record.Error != "" {
		errText = &record.Error
	}

	query := `
		INSERT INTO ai_query_history (
			id, tenant_id, connection_id, user_id, natural_query, generated_query,
			results, execution_time_ms, status, error
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at`

	err = scope.Conn.QueryRow(ctx, query,
		record.ID,
		record.TenantID,
		record.ConnectionID,
		record.UserID,
		record.NaturalQuery,
		record.GeneratedQuery,
		resultsJSON,
		record.ExecutionTimeMs,
		string(record.Status),
		errText,
	).Scan(&record.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert query history: %w", err)
	}
	return nil
}

func (r *historyRepository) List(ctx context.Context, tenantID uuid.UUID, filters models.HistoryFilters) ([]*models.AIQueryResult, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	limit := filters.Limit
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}
	offset := max(filters.Offset, 0)

	conditions := []string{"tenant_id = $1"}
	args := []any{tenantID}
	argIdx := 2

	if filters.ConnectionID != nil {
		conditions = append(conditions, fmt.Sprintf("connection_id = $%d", argIdx))
		args = append(args, *filters.ConnectionID)
		argIdx++
	}
	if filters.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, string(*filters.Status))
		argIdx++
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM ai_query_history
		WHERE %s
		ORDER BY created_at DESC, id
		LIMIT $%d OFFSET $%d`, historyColumns, strings.Join(conditions, " AND "), argIdx, argIdx+1)
	args = append(args, limit, offset)

	rows, err := scope.Conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list query history: %w", err)
	}
	defer rows.Close()

	records := make([]*models.AIQueryResult, 0, limit)
	for rows.Next() {
		record, err := scanHistory(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan query history: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating query history: %w", err)
	}
	return records, nil
}

func (r *historyRepository) GetByID(ctx context.Context, tenantID, id uuid.UUID) (*models.AIQueryResult, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	query := `SELECT ` + historyColumns + ` FROM ai_query_history WHERE tenant_id = $1 AND id = $2`

	record, err := scanHistory(scope.Conn.QueryRow(ctx, query, tenantID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("query history %s: %w", id, apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get query history: %w", err)
	}
	return record, nil
}

func scanHistory(row pgx.Row) (*models.AIQueryResult, error) {
	var record models.AIQueryResult
	var resultsJSON []byte
	var status string
	var errText *string

	err := row.Scan(
		&record.ID,
		&record.TenantID,
		&record.ConnectionID,
		&record.UserID,
		&record.NaturalQuery,
		&record.GeneratedQuery,
		&resultsJSON,
		&record.ExecutionTimeMs,
		&status,
		&errText,
		&record.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	record.Status = models.QueryStatus(status)
	if errText != nil {
		record.Error = *errText
	}
	if len(resultsJSON) > 0 {
		if err := json.Unmarshal(resultsJSON, &record.Results); err != nil {
			return nil, fmt.Errorf("failed to unmarshal results: %w", err)
		}
	}
	return &record, nil
}
