package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ekaya-inc/ekaya-query/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-query/pkg/database"
	"github.com/ekaya-inc/ekaya-query/pkg/models"
)

// ConnectionRepository is data access for data_connections. Config is stored
// as an opaque encrypted blob; the service layer encrypts and decrypts it.
// Every method filters by tenant in addition to row level security.
type ConnectionRepository interface {
	// Create inserts conn and fills in ID and timestamps. A duplicate name
	// within the tenant returns apperrors.ErrConflict.
	Create(ctx context.Context, conn *models.DataConnection, encryptedConfig string) error

	// GetByID returns the connection (Config unset) and its encrypted config.
	GetByID(ctx context.Context, tenantID, id uuid.UUID) (*models.DataConnection, string, error)

	// List returns the tenant's connections and their encrypted configs, index-aligned.
	List(ctx context.Context, tenantID uuid.UUID) ([]*models.DataConnection, []string, error)

	Update(ctx context.Context, conn *models.DataConnection, encryptedConfig string) error
	Delete(ctx context.Context, tenantID, id uuid.UUID) error

	// ClearDefault unsets is_default on every connection of the tenant except keepID.
	ClearDefault(ctx context.Context, tenantID, keepID uuid.UUID) error

	UpdateTestStatus(ctx context.Context, tenantID, id uuid.UUID, status models.ConnectionStatus, testedAt time.Time) error
}

type connectionRepository struct{}

// NewConnectionRepository creates a new connection repository.
func NewConnectionRepository() ConnectionRepository {
	return &connectionRepository{}
}

var _ ConnectionRepository = (*connectionRepository)(nil)

const connectionColumns = `id, tenant_id, name, type, status, config, is_default, created_at, updated_at, last_tested_at`

func (r *connectionRepository) Create(ctx context.Context, conn *models.DataConnection, encryptedConfig string) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	if conn.ID == uuid.Nil {
		conn.ID = uuid.New()
	}
	if conn.Status == "" {
		conn.Status = models.ConnectionStatusActive
	}
	now := time.Now().UTC()
	conn.CreatedAt = now
	conn.UpdatedAt = now

	query := `
		INSERT INTO data_connections (id, tenant_id, name, type, status, config, is_default, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := scope.Conn.Exec(ctx, query,
		conn.ID,
		conn.TenantID,
		conn.Name,
		string(conn.Type),
		string(conn.Status),
		encryptedConfig,
		conn.IsDefault,
		conn.CreatedAt,
		conn.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.ErrConflict
		}
		return fmt.Errorf("failed to create connection: %w", err)
	}
	return nil
}

func (r *connectionRepository) GetByID(ctx context.Context, tenantID, id uuid.UUID) (*models.DataConnection, string, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, "", fmt.Errorf("no tenant scope in context")
	}

	query := `SELECT ` + connectionColumns + ` FROM data_connections WHERE tenant_id = $1 AND id = $2`

	conn, encryptedConfig, err := scanConnection(scope.Conn.QueryRow(ctx, query, tenantID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, "", fmt.Errorf("connection %s: %w", id, apperrors.ErrNotFound)
		}
		return nil, "", fmt.Errorf("failed to get connection: %w", err)
	}
	return conn, encryptedConfig, nil
}

func (r *connectionRepository) List(ctx context.Context, tenantID uuid.UUID) ([]*models.DataConnection, []string, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, nil, fmt.Errorf("no tenant scope in context")
	}

	query := `SELECT ` + connectionColumns + ` FROM data_connections WHERE tenant_id = $1 ORDER BY is_default DESC, name`

	rows, err := scope.Conn.Query(ctx, query, tenantID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list connections: %w", err)
	}
	defer rows.Close()

	var conns []*models.DataConnection
	var configs []string
	for rows.Next() {
		conn, encryptedConfig, err := scanConnection(rows)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to scan connection: %w", err)
		}
		conns = append(conns, conn)
		configs = append(configs, encryptedConfig)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("error iterating connections: %w", err)
	}
	return conns, configs, nil
}

func (r *connectionRepository) Update(ctx context.Context, conn *models.DataConnection, encryptedConfig string) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	conn.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE data_connections
		SET name = $3, type = $4, status = $5, config = $6, is_default = $7, updated_at = $8
		WHERE tenant_id = $1 AND id = $2`

	tag, err := scope.Conn.Exec(ctx, query,
		conn.TenantID,
		conn.ID,
		conn.Name,
		string(conn.Type),
		string(conn.Status),
		encryptedConfig,
		conn.IsDefault,
		conn.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.ErrConflict
		}
		return fmt.Errorf("failed to update connection: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("connection %s: %w", conn.ID, apperrors.ErrNotFound)
	}
	return nil
}

func (r *connectionRepository) Delete(ctx context.Context, tenantID, id uuid.UUID) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	tag, err := scope.Conn.Exec(ctx, `DELETE FROM data_connections WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	if err != nil {
		return fmt.Errorf("failed to delete connection: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("connection %s: %w", id, apperrors.ErrNotFound)
	}
	return nil
}

func (r *connectionRepository) ClearDefault(ctx context.Context, tenantID, keepID uuid.UUID) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	_, err := scope.Conn.Exec(ctx, `
		UPDATE data_connections SET is_default = false, updated_at = now()
		WHERE tenant_id = $1 AND id <> $2 AND is_default`, tenantID, keepID)
	if err != nil {
		return fmt.Errorf("failed to clear default connection: %w", err)
	}
	return nil
}

func (r *connectionRepository) UpdateTestStatus(ctx context.Context, tenantID, id uuid.UUID, status models.ConnectionStatus, testedAt time.Time) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	tag, err := scope.Conn.Exec(ctx, `
		UPDATE data_connections SET status = $3, last_tested_at = $4
		WHERE tenant_id = $1 AND id = $2`, tenantID, id, string(status), testedAt)
	if err != nil {
		return fmt.Errorf("failed to update connection status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("connection %s: %w", id, apperrors.ErrNotFound)
	}
	return nil
}

func scanConnection(row pgx.Row) (*models.DataConnection, string, error) {
	var conn models.DataConnection
	var connType, status, encryptedConfig string
	err := row.Scan(
		&conn.ID,
		&conn.TenantID,
		&conn.Name,
		&connType,
		&status,
		&encryptedConfig,
		&conn.IsDefault,
		&conn.CreatedAt,
		&conn.UpdatedAt,
		&conn.LastTestedAt,
	)
	if err != nil {
		return nil, "", err
	}
	conn.Type = models.ConnectionType(connType)
	conn.Status = models.ConnectionStatus(status)
	return &conn, encryptedConfig, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
