package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/convexa/nameforge/common/engine"
	"github.com/convexa/nameforge/common/models"
)

// ErrorRepository handles database operations for propagation errors
type ErrorRepository struct {
	q Querier
}

// NewErrorRepository creates a new error repository
func NewErrorRepository(q Querier) *ErrorRepository {
	return &ErrorRepository{q: q}
}

const errorColumns = `id, job_id, string_id, slot_id, error_type, message, retry_count, is_retryable, resolved, resolved_by, resolved_at, created_at`

// Create inserts a new propagation error
func (r *ErrorRepository) Create(ctx context.Context, propErr *models.PropagationError) error {
	query := `
		INSERT INTO propagation_error (id, job_id, string_id, slot_id, error_type, message, retry_count, is_retryable, resolved, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.q.Exec(
		ctx,
		query,
		propErr.ID,
		propErr.JobID,
		propErr.StringID,
		propErr.SlotID,
		propErr.ErrorType,
		propErr.Message,
		propErr.RetryCount,
		propErr.IsRetryable,
		propErr.Resolved,
		propErr.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create propagation error: %w", err)
	}

	return nil
}

// GetByID retrieves an error by its ID
func (r *ErrorRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.PropagationError, error) {
	query := `
		SELECT ` + errorColumns + `
		FROM propagation_error
		WHERE id = $1
	`

	propErr, err := scanError(r.q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, engine.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get propagation error: %w", err)
	}

	return propErr, nil
}

// ListByJob retrieves all errors recorded for a job
func (r *ErrorRepository) ListByJob(ctx context.Context, jobID uuid.UUID) ([]*models.PropagationError, error) {
	query := `
		SELECT ` + errorColumns + `
		FROM propagation_error
		WHERE job_id = $1
		ORDER BY created_at
	`

	return r.list(ctx, query, jobID)
}

// ListRetryable retrieves a job's unresolved, retryable errors
func (r *ErrorRepository) ListRetryable(ctx context.Context, jobID uuid.UUID) ([]*models.PropagationError, error) {
	query := `
		SELECT ` + errorColumns + `
		FROM propagation_error
		WHERE job_id = $1 AND is_retryable AND NOT resolved
		ORDER BY created_at
	`

	return r.list(ctx, query, jobID)
}

// MarkResolved records who resolved the error and when
func (r *ErrorRepository) MarkResolved(ctx context.Context, id uuid.UUID, resolvedBy string) error {
	query := `
		UPDATE propagation_error
		SET resolved = true, resolved_by = $2, resolved_at = now()
		WHERE id = $1
	`

	tag, err := r.q.Exec(ctx, query, id, resolvedBy)
	if err != nil {
		return fmt.Errorf("failed to resolve propagation error: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return engine.ErrNotFound
	}

	return nil
}

// IncrementRetry bumps the retry count and returns the new value
func (r *ErrorRepository) IncrementRetry(ctx context.Context, id uuid.UUID) (int, error) {
	query := `
		UPDATE propagation_error
		SET retry_count = retry_count + 1
		WHERE id = $1
		RETURNING retry_count
	`

	var count int
	err := r.q.QueryRow(ctx, query, id).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, engine.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to increment retry count: %w", err)
	}

	return count, nil
}

// SetRetryable flips the retryable flag, demoting exhausted errors to
// manual resolution
func (r *ErrorRepository) SetRetryable(ctx context.Context, id uuid.UUID, retryable bool) error {
	query := `
		UPDATE propagation_error
		SET is_retryable = $2
		WHERE id = $1
	`

	tag, err := r.q.Exec(ctx, query, id, retryable)
	if err != nil {
		return fmt.Errorf("failed to set retryable flag: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return engine.ErrNotFound
	}

	return nil
}

func (r *ErrorRepository) list(ctx context.Context, query string, args ...any) ([]*models.PropagationError, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list propagation errors: %w", err)
	}
	defer rows.Close()

	var out []*models.PropagationError
	for rows.Next() {
		propErr, err := scanError(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan propagation error: %w", err)
		}
		out = append(out, propErr)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating propagation errors: %w", err)
	}

	return out, nil
}

func scanError(row pgx.Row) (*models.PropagationError, error) {
	propErr := &models.PropagationError{}
	err := row.Scan(
		&propErr.ID,
		&propErr.JobID,
		&propErr.StringID,
		&propErr.SlotID,
		&propErr.ErrorType,
		&propErr.Message,
		&propErr.RetryCount,
		&propErr.IsRetryable,
		&propErr.Resolved,
		&propErr.ResolvedBy,
		&propErr.ResolvedAt,
		&propErr.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return propErr, nil
}
