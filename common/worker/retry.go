package worker

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/convexa/nameforge/common/config"
	"github.com/convexa/nameforge/common/engine"
)

// RetryResult summarizes one administrative retry pass
type RetryResult struct {
	Attempted int         `json:"attempted"`
	Resolved  int         `json:"resolved"`
	Demoted   int         `json:"demoted"`
	Remaining []uuid.UUID `json:"remaining,omitempty"`
}

// Retrier re-runs failed propagation items on demand. Retries are
// per-error: each one regenerates its string from current slot state,
// so a fixed underlying cause resolves the error without replaying the
// whole job.
type Retrier struct {
	executor *engine.Executor
	jobs     engine.JobStore
	errs     engine.ErrorStore
	cfg      config.WorkerConfig
	log      engine.Logger
}

// NewRetrier creates an administrative error retrier
func NewRetrier(executor *engine.Executor, jobs engine.JobStore, errs engine.ErrorStore, cfg config.WorkerConfig, log engine.Logger) *Retrier {
	return &Retrier{
		executor: executor,
		jobs:     jobs,
		errs:     errs,
		cfg:      cfg,
		log:      log,
	}
}

// RetryJob retries every unresolved retryable error of one job. Errors
// that exhaust the retry cap are demoted to non-retryable and left for
// manual resolution.
func (r *Retrier) RetryJob(ctx context.Context, jobID uuid.UUID, actor string) (*RetryResult, error) {
	job, err := r.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to load job %s: %w", jobID, err)
	}

	pending, err := r.errs.ListRetryable(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to list retryable errors: %w", err)
	}

	result := &RetryResult{}
	for _, propErr := range pending {
		if propErr.StringID == nil {
			// Job-level error with no item to regenerate
			continue
		}
		result.Attempted++

		count, err := r.errs.IncrementRetry(ctx, propErr.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to bump retry count: %w", err)
		}

		retryErr := r.executor.Regenerate(ctx, job.WorkspaceID, *propErr.StringID, actor, job.BatchID)
		if retryErr == nil {
			if err := r.errs.MarkResolved(ctx, propErr.ID, actor); err != nil {
				return nil, fmt.Errorf("failed to resolve error %s: %w", propErr.ID, err)
			}
			result.Resolved++
			r.log.Info("propagation error resolved by retry",
				"error_id", propErr.ID,
				"string_id", *propErr.StringID,
				"attempts", count)
			continue
		}

		r.log.Warn("retry attempt failed",
			"error_id", propErr.ID,
			"string_id", *propErr.StringID,
			"attempts", count,
			"error", retryErr)

		if count >= r.cfg.MaxErrorRetries {
			if err := r.errs.SetRetryable(ctx, propErr.ID, false); err != nil {
				return nil, fmt.Errorf("failed to demote error %s: %w", propErr.ID, err)
			}
			result.Demoted++
			continue
		}

		result.Remaining = append(result.Remaining, propErr.ID)
	}

	return result, nil
}

// RetryOne retries a single error by id, regardless of which job owns it
func (r *Retrier) RetryOne(ctx context.Context, errorID uuid.UUID, actor string) error {
	propErr, err := r.errs.GetByID(ctx, errorID)
	if err != nil {
		return fmt.Errorf("failed to load error %s: %w", errorID, err)
	}
	if propErr.ResolvedAt != nil {
		return nil
	}
	if propErr.StringID == nil {
		return fmt.Errorf("error %s has no string to regenerate", errorID)
	}

	job, err := r.jobs.GetByID(ctx, propErr.JobID)
	if err != nil {
		return fmt.Errorf("failed to load job %s: %w", propErr.JobID, err)
	}

	count, err := r.errs.IncrementRetry(ctx, errorID)
	if err != nil {
		return fmt.Errorf("failed to bump retry count: %w", err)
	}

	if retryErr := r.executor.Regenerate(ctx, job.WorkspaceID, *propErr.StringID, actor, job.BatchID); retryErr != nil {
		if count >= r.cfg.MaxErrorRetries {
			if err := r.errs.SetRetryable(ctx, errorID, false); err != nil {
				return fmt.Errorf("failed to demote error %s: %w", errorID, err)
			}
		}
		return retryErr
	}

	return r.errs.MarkResolved(ctx, errorID, actor)
}
