package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/convexa/nameforge/common/config"
	"github.com/convexa/nameforge/common/engine"
	"github.com/convexa/nameforge/common/models"
)

// ProgressSink mirrors chunk progress to a hot path (redis) and exposes
// the cooperative cancellation flag. Satisfied by the common redis
// client wrapper.
type ProgressSink interface {
	SetProgress(ctx context.Context, jobID string, processed, failed, total int) error
	IsCancelRequested(ctx context.Context, jobID string) bool
}

// Runner processes queued propagation jobs in bounded chunks. Each
// chunk's writes are transactional per item; cancellation is honored
// only between chunks, so no chunk is ever left partially applied.
type Runner struct {
	executor *engine.Executor
	jobs     engine.JobStore
	errs     engine.ErrorStore
	progress ProgressSink
	cfg      config.WorkerConfig
	log      engine.Logger
}

// NewRunner creates a chunked job runner
func NewRunner(executor *engine.Executor, jobs engine.JobStore, errs engine.ErrorStore, progress ProgressSink, cfg config.WorkerConfig, log engine.Logger) *Runner {
	return &Runner{
		executor: executor,
		jobs:     jobs,
		errs:     errs,
		progress: progress,
		cfg:      cfg,
		log:      log,
	}
}

// Run executes one queued job, retrying job-level transient failures
// with exponential backoff up to the configured cap. Non-retryable
// failures terminate the job immediately.
func (r *Runner) Run(ctx context.Context, req *engine.QueuedJob) error {
	log := r.log
	var lastErr error

	for attempt := 0; attempt <= r.cfg.MaxJobRetries; attempt++ {
		if attempt > 0 {
			delay := r.backoff(attempt)
			log.Warn("retrying job after transient failure",
				"job_id", req.JobID,
				"attempt", attempt,
				"delay", delay,
				"error", lastErr)

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		lastErr = r.runOnce(ctx, req)
		if lastErr == nil {
			return nil
		}

		if !models.Classify(lastErr).IsRetryable() {
			break
		}
	}

	// Carry whatever progress the failed attempts already persisted into
	// the terminal record instead of zeroing it
	processed, failed := 0, 0
	if job, err := r.jobs.GetByID(ctx, req.JobID); err == nil {
		processed, failed = job.ProcessedStrings, job.FailedStrings
	}

	msg := lastErr.Error()
	if err := r.jobs.MarkCompleted(ctx, req.JobID, models.JobFailed, processed, failed, &msg); err != nil {
		log.Error("failed to mark job failed", "job_id", req.JobID, "error", err)
	}

	return fmt.Errorf("job %s failed: %w", req.JobID, lastErr)
}

// runOnce performs a single pass over the job's items
func (r *Runner) runOnce(ctx context.Context, req *engine.QueuedJob) error {
	job, err := r.jobs.GetByID(ctx, req.JobID)
	if err != nil {
		return models.NewEngineError(models.ErrDatabase, "failed to load job", err)
	}
	if job.Status.IsTerminal() {
		// Redelivered message for an already-finished job
		r.log.Info("job already terminal, skipping", "job_id", job.ID, "status", job.Status)
		return nil
	}

	if err := r.jobs.MarkStarted(ctx, job.ID); err != nil {
		return models.NewEngineError(models.ErrDatabase, "failed to mark job running", err)
	}

	chunkSize := req.ChunkSize
	if chunkSize <= 0 {
		chunkSize = r.cfg.ChunkSize
	}

	total := len(req.Items)
	processed, failed := 0, 0

	for start := 0; start < total; start += chunkSize {
		// Cooperative cancellation: checked at chunk boundaries only;
		// already-applied chunks are retained
		if r.progress.IsCancelRequested(ctx, job.ID.String()) {
			r.log.Info("job cancelled between chunks",
				"job_id", job.ID,
				"processed", processed,
				"failed", failed)
			return r.finish(ctx, job, models.JobCancelled, processed, failed, total, nil)
		}

		end := start + chunkSize
		if end > total {
			end = total
		}

		for _, item := range req.Items[start:end] {
			_, err := r.executor.ApplyItem(ctx, req.WorkspaceID, req.Actor, item, req.Rules, job.BatchID, req.Options.MaxDepth)
			if err == nil {
				processed++
				continue
			}

			failed++
			r.recordError(ctx, job.ID, item, err)

			if req.Options.ErrorHandling == models.ErrorStop {
				msg := fmt.Sprintf("aborted in chunk %d: %v", start/chunkSize, err)
				return r.finish(ctx, job, models.JobFailed, processed, failed, total, &msg)
			}
		}

		if err := r.jobs.UpdateProgress(ctx, job.ID, processed, failed); err != nil {
			return models.NewEngineError(models.ErrDatabase, "failed to update progress", err)
		}
		if err := r.progress.SetProgress(ctx, job.ID.String(), processed, failed, total); err != nil {
			// Hot-path mirror only; Postgres remains the source of truth
			r.log.Warn("progress mirror failed", "job_id", job.ID, "error", err)
		}

		r.log.Info("chunk complete",
			"job_id", job.ID,
			"processed", processed,
			"failed", failed,
			"total", total,
			"pct", fmt.Sprintf("%.1f", float64(processed+failed)/float64(total)*100))
	}

	status := models.JobCompleted
	if failed > 0 {
		status = models.JobPartialFailure
	}

	return r.finish(ctx, job, status, processed, failed, total, nil)
}

func (r *Runner) finish(ctx context.Context, job *models.PropagationJob, status models.JobStatus, processed, failed, total int, msg *string) error {
	if err := r.jobs.MarkCompleted(ctx, job.ID, status, processed, failed, msg); err != nil {
		return models.NewEngineError(models.ErrDatabase, "failed to finalize job", err)
	}
	if err := r.progress.SetProgress(ctx, job.ID.String(), processed, failed, total); err != nil {
		r.log.Warn("progress mirror failed", "job_id", job.ID, "error", err)
	}

	r.log.Info("job finished",
		"job_id", job.ID,
		"status", status,
		"processed", processed,
		"failed", failed,
		"total", total)

	return nil
}

func (r *Runner) recordError(ctx context.Context, jobID uuid.UUID, item engine.RootChange, itemErr error) {
	errType := models.Classify(itemErr)
	stringID := item.StringID

	propErr := &models.PropagationError{
		ID:          uuid.New(),
		JobID:       jobID,
		StringID:    &stringID,
		ErrorType:   errType,
		Message:     itemErr.Error(),
		IsRetryable: errType.IsRetryable(),
		CreatedAt:   time.Now(),
	}
	if item.SlotID != uuid.Nil {
		slotID := item.SlotID
		propErr.SlotID = &slotID
	}

	if err := r.errs.Create(ctx, propErr); err != nil {
		r.log.Error("failed to persist propagation error", "job_id", jobID, "error", err)
	}

	r.log.Warn("item failed",
		"job_id", jobID,
		"string_id", item.StringID,
		"error_type", errType,
		"error", itemErr)
}

// backoff returns the exponential delay for a retry attempt, capped
func (r *Runner) backoff(attempt int) time.Duration {
	base := r.cfg.BackoffBase
	if base == 0 {
		base = time.Second
	}
	delay := base << (attempt - 1)
	if r.cfg.BackoffMax > 0 && delay > r.cfg.BackoffMax {
		delay = r.cfg.BackoffMax
	}
	return delay
}
