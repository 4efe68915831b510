package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/convexa/nameforge/common/engine"
	"github.com/convexa/nameforge/common/models"
	"github.com/convexa/nameforge/common/repository"
)

// HistoryService reads the append-only audit trail
type HistoryService struct {
	stores *repository.Stores
}

// NewHistoryService creates a new history service
func NewHistoryService(stores *repository.Stores) *HistoryService {
	return &HistoryService{stores: stores}
}

// GetHistory retrieves a string's full audit trail, most recent first
func (s *HistoryService) GetHistory(ctx context.Context, workspaceID, stringID uuid.UUID) ([]*models.AuditEntry, error) {
	// Verify the string belongs to the workspace before exposing history
	if _, err := s.stores.Strings.GetByID(ctx, workspaceID, stringID); err != nil {
		return nil, err
	}
	return s.stores.Audits.ListByString(ctx, stringID)
}

// GetVersion retrieves the audit entry that produced one version
func (s *HistoryService) GetVersion(ctx context.Context, workspaceID, stringID uuid.UUID, version int) (*models.AuditEntry, error) {
	if _, err := s.stores.Strings.GetByID(ctx, workspaceID, stringID); err != nil {
		return nil, err
	}
	return s.stores.Audits.GetByVersion(ctx, stringID, version)
}

// GetBatch retrieves every audit entry produced by one propagation run
func (s *HistoryService) GetBatch(ctx context.Context, batchID uuid.UUID) ([]*models.AuditEntry, error) {
	entries, err := s.stores.Audits.ListByBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, engine.ErrNotFound
	}
	return entries, nil
}
