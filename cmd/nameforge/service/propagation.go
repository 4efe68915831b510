package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/convexa/nameforge/common/bootstrap"
	"github.com/convexa/nameforge/common/engine"
	"github.com/convexa/nameforge/common/models"
	"github.com/convexa/nameforge/common/repository"
)

// SubmitRequest is one caller-submitted propagation batch
type SubmitRequest struct {
	WorkspaceID uuid.UUID            `json:"workspace_id"`
	Actor       string               `json:"actor"`
	Items       []engine.RootChange  `json:"items"`
	Rules       *engine.RuleSet      `json:"rules,omitempty"`
	DryRun      bool                 `json:"dry_run,omitempty"`
	MaxDepth    int                  `json:"max_depth,omitempty"`
	ErrorMode   models.ErrorHandling `json:"error_handling,omitempty"`
	ChunkSize   int                  `json:"chunk_size,omitempty"`
}

// SubmitResult is the outcome of one submission: a dry-run report, a
// blocked submission with its conflicts, or a started/queued job
type SubmitResult struct {
	DryRun bool `json:"dry_run"`

	// Combined impact across all items
	Affected           []engine.ImpactNode `json:"affected,omitempty"`
	AffectedCount      int                 `json:"affected_count"`
	EstimatedDuration  time.Duration       `json:"estimated_duration"`
	BackgroundRequired bool                `json:"background_required"`
	Warnings           []models.Warning    `json:"warnings,omitempty"`
	Conflicts          []models.Conflict   `json:"conflicts,omitempty"`

	// Set when critical conflicts blocked execution
	Blocked bool `json:"blocked,omitempty"`

	// Set when execution started or was queued
	Job     *models.PropagationJob     `json:"job,omitempty"`
	Updated []uuid.UUID                `json:"updated,omitempty"`
	Errors  []*models.PropagationError `json:"errors,omitempty"`
}

// JobStatusResult is one job with its optional error list
type JobStatusResult struct {
	Job    *models.PropagationJob     `json:"job"`
	Errors []*models.PropagationError `json:"errors,omitempty"`
}

// PropagationService is the API-facing entry point of the propagation
// pipeline: analyze, gate on conflicts, then execute synchronously or
// queue for the background worker.
type PropagationService struct {
	stores     *repository.Stores
	analyzer   *engine.Analyzer
	detector   *engine.Detector
	executor   *engine.Executor
	components *bootstrap.Components
}

// NewPropagationService creates a new propagation service
func NewPropagationService(
	stores *repository.Stores,
	analyzer *engine.Analyzer,
	detector *engine.Detector,
	executor *engine.Executor,
	components *bootstrap.Components,
) *PropagationService {
	return &PropagationService{
		stores:     stores,
		analyzer:   analyzer,
		detector:   detector,
		executor:   executor,
		components: components,
	}
}

// Submit analyzes the submitted items and either returns the dry-run
// report, blocks on critical conflicts, executes synchronously, or
// enqueues a chunked background job for large impact sets.
func (s *PropagationService) Submit(ctx context.Context, req *SubmitRequest) (*SubmitResult, error) {
	if len(req.Items) == 0 {
		return nil, models.NewEngineError(models.ErrValidation, "no items submitted", nil)
	}
	if req.Actor == "" {
		return nil, models.NewEngineError(models.ErrValidation, "actor is required", nil)
	}

	result := &SubmitResult{DryRun: req.DryRun}

	// Impact analysis over every root item
	for _, item := range req.Items {
		root, err := s.stores.Strings.GetByID(ctx, req.WorkspaceID, item.StringID)
		if err == engine.ErrNotFound {
			result.Conflicts = append(result.Conflicts, models.Conflict{
				Type:     models.ConflictValidation,
				StringID: item.StringID,
				Message:  "string does not exist in workspace",
				Severity: models.SeverityCritical,
			})
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load string %s: %w", item.StringID, err)
		}

		report, err := s.analyzer.Analyze(ctx, req.WorkspaceID, root, item.Changes, engine.AnalyzeOptions{
			MaxDepth: req.MaxDepth,
			Rules:    req.Rules,
		})
		if err != nil {
			return nil, err
		}

		result.Affected = append(result.Affected, report.Affected...)
		result.Warnings = append(result.Warnings, report.Warnings...)
		result.Conflicts = append(result.Conflicts, report.Conflicts...)
		result.AffectedCount += report.AffectedCount
		result.EstimatedDuration += report.EstimatedDuration
	}

	// Cross-item conflict detection
	updates := proposedUpdates(req)
	conflicts, err := s.detector.Detect(ctx, req.WorkspaceID, updates)
	if err != nil {
		return nil, err
	}
	result.Conflicts = append(result.Conflicts, conflicts...)

	engineCfg := s.components.Config.Engine
	result.BackgroundRequired = result.AffectedCount > engineCfg.BackgroundThreshold

	if req.DryRun {
		return result, nil
	}

	if blocking := engine.Blocking(result.Conflicts); len(blocking) > 0 {
		result.Blocked = true
		result.Conflicts = blocking
		s.components.Logger.Warn("submission blocked by conflicts",
			"workspace_id", req.WorkspaceID,
			"conflicts", len(blocking))
		return result, nil
	}

	if result.BackgroundRequired {
		job, err := s.enqueue(ctx, req)
		if err != nil {
			return nil, err
		}
		result.Job = job
		return result, nil
	}

	execResult, err := s.executor.Execute(ctx, &engine.ExecuteRequest{
		WorkspaceID: req.WorkspaceID,
		Actor:       req.Actor,
		Changes:     req.Items,
		Rules:       req.Rules,
		Options: engine.ExecuteOptions{
			MaxDepth:      req.MaxDepth,
			ErrorHandling: req.ErrorMode,
		},
	})
	if err != nil {
		return nil, err
	}

	result.Job = execResult.Job
	result.Updated = execResult.Updated
	result.Errors = execResult.Errors
	return result, nil
}

// enqueue creates a pending chunked job and hands it to the worker queue
func (s *PropagationService) enqueue(ctx context.Context, req *SubmitRequest) (*models.PropagationJob, error) {
	job := &models.PropagationJob{
		ID:               uuid.New(),
		BatchID:          uuid.New(),
		WorkspaceID:      req.WorkspaceID,
		Status:           models.JobPending,
		TotalStrings:     len(req.Items),
		ProcessingMethod: models.MethodChunked,
		Metadata: map[string]any{
			"actor":           req.Actor,
			"dispatch_source": "api",
		},
		CreatedAt: time.Now(),
	}
	if err := s.stores.Jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create background job: %w", err)
	}

	payload, err := json.Marshal(&engine.QueuedJob{
		JobID:       job.ID,
		WorkspaceID: req.WorkspaceID,
		Actor:       req.Actor,
		Items:       req.Items,
		Rules:       req.Rules,
		Options: engine.ExecuteOptions{
			MaxDepth:      req.MaxDepth,
			ErrorHandling: req.ErrorMode,
		},
		ChunkSize: req.ChunkSize,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job payload: %w", err)
	}

	topic := s.components.Config.Worker.QueueName
	if err := s.components.Queue.Publish(ctx, topic, job.ID.String(), payload); err != nil {
		return nil, fmt.Errorf("failed to enqueue job: %w", err)
	}

	s.components.Logger.Info("background propagation queued",
		"job_id", job.ID,
		"workspace_id", req.WorkspaceID,
		"items", len(req.Items))

	return job, nil
}

// GetJob retrieves a workspace's job, optionally with its recorded
// errors. A job belonging to another workspace reads as absent.
func (s *PropagationService) GetJob(ctx context.Context, workspaceID, jobID uuid.UUID, includeErrors bool) (*JobStatusResult, error) {
	job, err := s.stores.Jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.WorkspaceID != workspaceID {
		return nil, engine.ErrNotFound
	}

	result := &JobStatusResult{Job: job}

	if includeErrors {
		errs, err := s.stores.Errors.ListByJob(ctx, jobID)
		if err != nil {
			return nil, err
		}
		result.Errors = errs
	}

	return result, nil
}

// ListJobs retrieves a workspace's jobs, optionally filtered by status
func (s *PropagationService) ListJobs(ctx context.Context, workspaceID uuid.UUID, status models.JobStatus, limit int) ([]*models.PropagationJob, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.stores.Jobs.ListByWorkspace(ctx, workspaceID, status, limit)
}

// Cancel requests cooperative cancellation of a running or pending job.
// The worker honors the flag at the next chunk boundary; completed
// chunks are retained.
func (s *PropagationService) Cancel(ctx context.Context, workspaceID, jobID uuid.UUID) (*models.PropagationJob, error) {
	job, err := s.stores.Jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.WorkspaceID != workspaceID {
		return nil, engine.ErrNotFound
	}
	if job.Status.IsTerminal() {
		return nil, models.NewEngineError(
			models.ErrValidation,
			fmt.Sprintf("job %s already %s", jobID, job.Status),
			nil,
		)
	}

	if err := s.components.Redis.RequestCancel(ctx, jobID.String()); err != nil {
		return nil, err
	}

	return job, nil
}

// proposedUpdates converts submission items into detector inputs
func proposedUpdates(req *SubmitRequest) []models.ProposedUpdate {
	updates := make([]models.ProposedUpdate, 0, len(req.Items))
	for _, item := range req.Items {
		update := models.ProposedUpdate{
			StringID:    item.StringID,
			BaseVersion: item.BaseVersion,
			Actor:       req.Actor,
			FieldValues: make(map[string]string, len(item.Changes)),
		}
		for _, change := range item.Changes {
			// Dimension-qualified key, same convention the executor uses
			// for generation metadata provenance
			update.FieldValues[change.Key()] = change.New
		}
		updates = append(updates, update)
	}
	return updates
}
