package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/convexa/nameforge/common/bootstrap"
	"github.com/convexa/nameforge/common/engine"
	"github.com/convexa/nameforge/common/models"
	"github.com/convexa/nameforge/common/repository"
	"github.com/convexa/nameforge/common/worker"
)

// ErrorService exposes administrative handling of propagation errors:
// inspection, manual resolution and on-demand retry
type ErrorService struct {
	stores     *repository.Stores
	retrier    *worker.Retrier
	components *bootstrap.Components
}

// NewErrorService creates a new error service
func NewErrorService(stores *repository.Stores, retrier *worker.Retrier, components *bootstrap.Components) *ErrorService {
	return &ErrorService{
		stores:     stores,
		retrier:    retrier,
		components: components,
	}
}

// Get retrieves one propagation error
func (s *ErrorService) Get(ctx context.Context, errorID uuid.UUID) (*models.PropagationError, error) {
	return s.stores.Errors.GetByID(ctx, errorID)
}

// ListByJob retrieves all errors recorded for a workspace's job
func (s *ErrorService) ListByJob(ctx context.Context, workspaceID, jobID uuid.UUID) ([]*models.PropagationError, error) {
	if err := s.checkWorkspace(ctx, workspaceID, jobID); err != nil {
		return nil, err
	}
	return s.stores.Errors.ListByJob(ctx, jobID)
}

// Resolve marks an error as manually resolved without retrying
func (s *ErrorService) Resolve(ctx context.Context, errorID uuid.UUID, resolvedBy string) (*models.PropagationError, error) {
	propErr, err := s.stores.Errors.GetByID(ctx, errorID)
	if err != nil {
		return nil, err
	}
	if propErr.Resolved {
		return propErr, nil
	}

	if err := s.stores.Errors.MarkResolved(ctx, errorID, resolvedBy); err != nil {
		return nil, err
	}

	s.components.Logger.Info("propagation error manually resolved",
		"error_id", errorID,
		"resolved_by", resolvedBy)

	return s.stores.Errors.GetByID(ctx, errorID)
}

// Retry re-runs one failed item by regenerating its string
func (s *ErrorService) Retry(ctx context.Context, errorID uuid.UUID, actor string) (*models.PropagationError, error) {
	if err := s.retrier.RetryOne(ctx, errorID, actor); err != nil {
		return nil, err
	}
	return s.stores.Errors.GetByID(ctx, errorID)
}

// RetryJob re-runs every retryable unresolved error of a workspace's job
func (s *ErrorService) RetryJob(ctx context.Context, workspaceID, jobID uuid.UUID, actor string) (*worker.RetryResult, error) {
	if err := s.checkWorkspace(ctx, workspaceID, jobID); err != nil {
		return nil, err
	}
	return s.retrier.RetryJob(ctx, jobID, actor)
}

// checkWorkspace hides jobs of other workspaces
func (s *ErrorService) checkWorkspace(ctx context.Context, workspaceID, jobID uuid.UUID) error {
	job, err := s.stores.Jobs.GetByID(ctx, jobID)
	if err != nil {
		return err
	}
	if job.WorkspaceID != workspaceID {
		return engine.ErrNotFound
	}
	return nil
}
