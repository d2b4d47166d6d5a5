package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/ekaya-inc/ekaya-query/pkg/models"
	"github.com/ekaya-inc/ekaya-query/pkg/repositories"
)

// HistoryService reads back the tenant's query attempts.
type HistoryService interface {
	List(ctx context.Context, tenantID uuid.UUID, filters models.HistoryFilters) ([]*models.AIQueryResult, error)
	Get(ctx context.Context, tenantID, id uuid.UUID) (*models.AIQueryResult, error)
}

type historyService struct {
	repo        repositories.HistoryRepository
	defaultPage int
}

// NewHistoryService creates a history service; defaultPage applies when a
// listing does not ask for a limit.
func NewHistoryService(repo repositories.HistoryRepository, defaultPage int) HistoryService {
	return &historyService{repo: repo, defaultPage: defaultPage}
}

func (s *historyService) List(ctx context.Context, tenantID uuid.UUID, filters models.HistoryFilters) ([]*models.AIQueryResult, error) {
	if filters.Limit <= 0 {
		filters.Limit = s.defaultPage
	}
	return s.repo.List(ctx, tenantID, filters)
}

func (s *historyService) Get(ctx context.Context, tenantID, id uuid.UUID) (*models.AIQueryResult, error) {
	return s.repo.GetByID(ctx, tenantID, id)
}

var _ HistoryService = (*historyService)(nil)
