package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-query/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-query/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-query/pkg/crypto"
	"github.com/ekaya-inc/ekaya-query/pkg/models"
	"github.com/ekaya-inc/ekaya-query/pkg/repositories"
)

// ConnectionInput is the caller-supplied part of a DataConnection.
type ConnectionInput struct {
	Name      string
	Type      models.ConnectionType
	Config    models.ConnectionConfig
	IsDefault bool
}

// ConnectionService manages stored connections. Configs are encrypted before
// they reach the repository and decrypted only in memory.
type ConnectionService interface {
	Create(ctx context.Context, tenantID uuid.UUID, in ConnectionInput) (*models.DataConnection, error)

	// Update replaces a connection. Secret fields sent back as the redaction
	// mask keep their stored value.
	Update(ctx context.Context, tenantID, id uuid.UUID, in ConnectionInput) (*models.DataConnection, error)

	Delete(ctx context.Context, tenantID, id uuid.UUID) error

	// Get returns the connection with its decrypted config.
	Get(ctx context.Context, tenantID, id uuid.UUID) (*models.DataConnection, error)

	List(ctx context.Context, tenantID uuid.UUID) ([]*models.DataConnection, error)

	// Test probes a stored connection and records the outcome on it.
	Test(ctx context.Context, tenantID, id uuid.UUID) (*models.ConnectionTestResult, error)

	// TestConfig probes an unsaved config.
	TestConfig(ctx context.Context, connType models.ConnectionType, cfg models.ConnectionConfig) (*models.ConnectionTestResult, error)

	GetSchema(ctx context.Context, tenantID, id uuid.UUID) (*models.SchemaInfo, error)

	// ListTypes returns the connection types with a compiled-in adapter.
	ListTypes() []datasource.AdapterInfo
}

type connectionService struct {
	repo           repositories.ConnectionRepository
	cipher         crypto.ConfigCipher
	adapterFactory datasource.AdapterFactory
	logger         *zap.Logger
	now            func() time.Time
}

// NewConnectionService creates a connection service with dependencies.
func NewConnectionService(
	repo repositories.ConnectionRepository,
	cipher crypto.ConfigCipher,
	adapterFactory datasource.AdapterFactory,
	logger *zap.Logger,
) ConnectionService {
	return &connectionService{
		repo:           repo,
		cipher:         cipher,
		adapterFactory: adapterFactory,
		logger:         logger.Named("connections"),
		now:            time.Now,
	}
}

func validateInput(in *ConnectionInput) error {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return fmt.Errorf("%w: name is required", apperrors.ErrInvalidConfig)
	}
	if !in.Type.Valid() {
		return models.ErrUnsupportedType(in.Type)
	}
	if in.Config == nil {
		return fmt.Errorf("%w: config is required", apperrors.ErrInvalidConfig)
	}
	if !models.MatchesType(in.Type, in.Config) {
		return fmt.Errorf("%w: config does not match connection type %s", apperrors.ErrInvalidConfig, in.Type)
	}
	return in.Config.Validate()
}

func (s *connectionService) Create(ctx context.Context, tenantID uuid.UUID, in ConnectionInput) (*models.DataConnection, error) {
	if err := validateInput(&in); err != nil {
		return nil, err
	}

	encrypted, err := s.cipher.Encrypt(tenantID, in.Config)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt config: %w", err)
	}

	conn := &models.DataConnection{
		TenantID:  tenantID,
		Name:      in.Name,
		Type:      in.Type,
		Status:    models.ConnectionStatusActive,
		Config:    in.Config,
		IsDefault: in.IsDefault,
	}
	if err := s.repo.Create(ctx, conn, encrypted); err != nil {
		return nil, err
	}

	s.logger.Info("Created connection",
		zap.String("id", conn.ID.String()),
		zap.String("tenant_id", tenantID.String()),
		zap.String("name", conn.Name),
		zap.String("type", string(conn.Type)))

	if conn.IsDefault {
		s.clearOtherDefaults(ctx, tenantID, conn.ID)
	}
	return conn, nil
}

func (s *connectionService) Update(ctx context.Context, tenantID, id uuid.UUID, in ConnectionInput) (*models.DataConnection, error) {
	existing, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	if in.Config != nil && existing.Config != nil && in.Type == existing.Type {
		models.PreserveSecrets(in.Config, existing.Config)
	}
	if err := validateInput(&in); err != nil {
		return nil, err
	}

	encrypted, err := s.cipher.Encrypt(tenantID, in.Config)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt config: %w", err)
	}

	existing.Name = in.Name
	existing.Type = in.Type
	existing.Config = in.Config
	existing.IsDefault = in.IsDefault
	if err := s.repo.Update(ctx, existing, encrypted); err != nil {
		return nil, err
	}

	s.logger.Info("Updated connection",
		zap.String("id", id.String()),
		zap.String("tenant_id", tenantID.String()))

	if existing.IsDefault {
		s.clearOtherDefaults(ctx, tenantID, id)
	}
	return existing, nil
}

// clearOtherDefaults is best-effort; a failure leaves more than one default.
func (s *connectionService) clearOtherDefaults(ctx context.Context, tenantID, keepID uuid.UUID) {
	if err := s.repo.ClearDefault(ctx, tenantID, keepID); err != nil {
		s.logger.Warn("Failed to clear previous default connection",
			zap.String("tenant_id", tenantID.String()),
			zap.String("connection_id", keepID.String()),
			zap.Error(err))
	}
}

func (s *connectionService) Delete(ctx context.Context, tenantID, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, tenantID, id); err != nil {
		return err
	}
	s.logger.Info("Deleted connection",
		zap.String("id", id.String()),
		zap.String("tenant_id", tenantID.String()))
	return nil
}

func (s *connectionService) Get(ctx context.Context, tenantID, id uuid.UUID) (*models.DataConnection, error) {
	conn, encrypted, err := s.repo.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if err := s.decryptInto(conn, encrypted); err != nil {
		return nil, err
	}
	return conn, nil
}

func (s *connectionService) List(ctx context.Context, tenantID uuid.UUID) ([]*models.DataConnection, error) {
	conns, configs, err := s.repo.List(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	out := make([]*models.DataConnection, 0, len(conns))
	for i, conn := range conns {
		if err := s.decryptInto(conn, configs[i]); err != nil {
			// Listed with ERROR status and no config.
			s.logger.Error("Failed to decrypt connection config",
				zap.String("id", conn.ID.String()),
				zap.Error(err))
			conn.Status = models.ConnectionStatusError
		}
		out = append(out, conn)
	}
	return out, nil
}

func (s *connectionService) decryptInto(conn *models.DataConnection, encrypted string) error {
	cfg, err := s.cipher.Decrypt(conn.TenantID, conn.Type, encrypted)
	if err != nil {
		if errors.Is(err, crypto.ErrDecryptionFailed) {
			return fmt.Errorf("connection %s: %w", conn.ID, apperrors.ErrCredentialsKeyMismatch)
		}
		return fmt.Errorf("failed to decrypt config: %w", err)
	}
	conn.Config = cfg
	return nil
}

func (s *connectionService) Test(ctx context.Context, tenantID, id uuid.UUID) (*models.ConnectionTestResult, error) {
	conn, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	result, err := s.TestConfig(ctx, conn.Type, conn.Config)
	if err != nil {
		return nil, err
	}

	status := models.ConnectionStatusActive
	if !result.Success {
		status = models.ConnectionStatusError
	}
	if err := s.repo.UpdateTestStatus(ctx, tenantID, id, status, s.now().UTC()); err != nil {
		s.logger.Warn("Failed to record connection test status",
			zap.String("id", id.String()),
			zap.Error(err))
	}
	return result, nil
}

func (s *connectionService) TestConfig(ctx context.Context, connType models.ConnectionType, cfg models.ConnectionConfig) (*models.ConnectionTestResult, error) {
	if cfg == nil || !models.MatchesType(connType, cfg) {
		return nil, fmt.Errorf("%w: config does not match connection type %s", apperrors.ErrInvalidConfig, connType)
	}

	adapter, err := s.adapterFactory.NewAdapter(connType)
	if err != nil {
		return nil, err
	}
	return adapter.TestConnection(ctx, cfg), nil
}

func (s *connectionService) GetSchema(ctx context.Context, tenantID, id uuid.UUID) (*models.SchemaInfo, error) {
	conn, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	adapter, err := s.adapterFactory.NewAdapter(conn.Type)
	if err != nil {
		return nil, err
	}
	return adapter.GetSchemaInfo(ctx, conn.Config)
}

func (s *connectionService) ListTypes() []datasource.AdapterInfo {
	return s.adapterFactory.ListTypes()
}

var _ ConnectionService = (*connectionService)(nil)
