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

// JobRepository handles database operations for propagation jobs
type JobRepository struct {
	q Querier
}

// NewJobRepository creates a new job repository
func NewJobRepository(q Querier) *JobRepository {
	return &JobRepository{q: q}
}

const jobColumns = `id, batch_id, workspace_id, status, total_strings, processed_strings, failed_strings, processing_method, error_message, metadata, started_at, completed_at, created_at`

// Create inserts a new propagation job
func (r *JobRepository) Create(ctx context.Context, job *models.PropagationJob) error {
	query := `
		INSERT INTO propagation_job (id, batch_id, workspace_id, status, total_strings, processed_strings, failed_strings, processing_method, error_message, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now())
	`

	_, err := r.q.Exec(
		ctx,
		query,
		job.ID,
		job.BatchID,
		job.WorkspaceID,
		job.Status,
		job.TotalStrings,
		job.ProcessedStrings,
		job.FailedStrings,
		job.ProcessingMethod,
		job.ErrorMessage,
		job.Metadata,
	)

	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}

	return nil
}

// GetByID retrieves a job by its ID
func (r *JobRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.PropagationJob, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM propagation_job
		WHERE id = $1
	`

	job, err := scanJob(r.q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, engine.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return job, nil
}

// ListByWorkspace retrieves a workspace's jobs, newest first, optionally
// filtered by status
func (r *JobRepository) ListByWorkspace(ctx context.Context, workspaceID uuid.UUID, status models.JobStatus, limit int) ([]*models.PropagationJob, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM propagation_job
		WHERE workspace_id = $1 AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC
		LIMIT $3
	`

	rows, err := r.q.Query(ctx, query, workspaceID, string(status), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.PropagationJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, job)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating jobs: %w", err)
	}

	return jobs, nil
}

// MarkStarted transitions a job to running and stamps started_at
func (r *JobRepository) MarkStarted(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE propagation_job
		SET status = $2, started_at = now()
		WHERE id = $1
	`

	tag, err := r.q.Exec(ctx, query, id, models.JobRunning)
	if err != nil {
		return fmt.Errorf("failed to mark job started: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return engine.ErrNotFound
	}

	return nil
}

// UpdateProgress persists running counts
func (r *JobRepository) UpdateProgress(ctx context.Context, id uuid.UUID, processed, failed int) error {
	query := `
		UPDATE propagation_job
		SET processed_strings = $2, failed_strings = $3
		WHERE id = $1
	`

	_, err := r.q.Exec(ctx, query, id, processed, failed)
	if err != nil {
		return fmt.Errorf("failed to update job progress: %w", err)
	}

	return nil
}

// MarkCompleted sets a terminal status, final counts and completed_at
func (r *JobRepository) MarkCompleted(ctx context.Context, id uuid.UUID, status models.JobStatus, processed, failed int, errorMessage *string) error {
	query := `
		UPDATE propagation_job
		SET status = $2, processed_strings = $3, failed_strings = $4, error_message = $5, completed_at = now()
		WHERE id = $1
	`

	tag, err := r.q.Exec(ctx, query, id, status, processed, failed, errorMessage)
	if err != nil {
		return fmt.Errorf("failed to mark job completed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return engine.ErrNotFound
	}

	return nil
}

func scanJob(row pgx.Row) (*models.PropagationJob, error) {
	job := &models.PropagationJob{}
	err := row.Scan(
		&job.ID,
		&job.BatchID,
		&job.WorkspaceID,
		&job.Status,
		&job.TotalStrings,
		&job.ProcessedStrings,
		&job.FailedStrings,
		&job.ProcessingMethod,
		&job.ErrorMessage,
		&job.Metadata,
		&job.StartedAt,
		&job.CompletedAt,
		&job.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return job, nil
}
