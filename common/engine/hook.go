package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/convexa/nameforge/common/models"
)

// JobEnqueuer hands a background job request to the queue layer
type JobEnqueuer interface {
	EnqueueJob(ctx context.Context, payload []byte) error
}

// QueuedJob is the payload pushed to the worker queue for background runs
type QueuedJob struct {
	JobID       uuid.UUID      `json:"job_id"`
	WorkspaceID uuid.UUID      `json:"workspace_id"`
	Actor       string         `json:"actor"`
	Items       []RootChange   `json:"items"`
	Rules       *RuleSet       `json:"rules,omitempty"`
	Options     ExecuteOptions `json:"options"`
	ChunkSize   int            `json:"chunk_size,omitempty"`
}

// SlotWriteHook is the explicit pipeline stage the persistence layer
// calls after committing a slot write. It replaces hidden write-trigger
// machinery: change detection, impact sizing and dispatch all happen
// here, visibly, with the executor's in-flight guard breaking
// re-entrancy.
type SlotWriteHook struct {
	strings  StringStore
	analyzer *Analyzer
	executor *Executor
	jobs     JobStore
	enqueuer JobEnqueuer
	log      Logger
}

// NewSlotWriteHook creates the post-commit slot hook
func NewSlotWriteHook(strings StringStore, analyzer *Analyzer, executor *Executor, jobs JobStore, enqueuer JobEnqueuer, log Logger) *SlotWriteHook {
	return &SlotWriteHook{
		strings:  strings,
		analyzer: analyzer,
		executor: executor,
		jobs:     jobs,
		enqueuer: enqueuer,
		log:      log,
	}
}

// OnSlotWritten is called synchronously after a slot write commits.
// before is the pre-write snapshot; a nil before means snapshot capture
// was skipped and all fields are treated as changed.
func (h *SlotWriteHook) OnSlotWritten(ctx context.Context, workspaceID uuid.UUID, actor string, before, after *models.Slot, rules *RuleSet) error {
	if after == nil {
		return models.NewEngineError(models.ErrValidation, "post-write slot state is required", nil)
	}

	// Re-entrancy guard: the executor's own writes must not re-trigger
	// propagation within the same call stack
	if h.executor.InFlight(after.StringID) {
		h.log.Debug("skipping slot hook for in-flight string", "string_id", after.StringID)
		return nil
	}

	changes := DetectChanges(before, after)
	if len(changes) == 0 {
		return nil
	}

	root, err := h.strings.GetByID(ctx, workspaceID, after.StringID)
	if err != nil {
		return fmt.Errorf("failed to load string for slot hook: %w", err)
	}

	report, err := h.analyzer.Analyze(ctx, workspaceID, root, changes, AnalyzeOptions{Rules: rules})
	if err != nil {
		return err
	}

	item := RootChange{StringID: root.ID, SlotID: after.ID, Changes: changes}

	if !report.BackgroundRequired {
		_, err := h.executor.Execute(ctx, &ExecuteRequest{
			WorkspaceID: workspaceID,
			Actor:       actor,
			Changes:     []RootChange{item},
			Rules:       rules,
		})
		return err
	}

	return h.enqueueBackground(ctx, workspaceID, actor, item, rules, report)
}

func (h *SlotWriteHook) enqueueBackground(ctx context.Context, workspaceID uuid.UUID, actor string, item RootChange, rules *RuleSet, report *Report) error {
	job := &models.PropagationJob{
		ID:               uuid.New(),
		BatchID:          uuid.New(),
		WorkspaceID:      workspaceID,
		Status:           models.JobPending,
		TotalStrings:     1,
		ProcessingMethod: models.MethodBackground,
		Metadata: map[string]any{
			"actor":           actor,
			"affected_count":  report.AffectedCount,
			"estimated_ms":    report.EstimatedDuration.Milliseconds(),
			"dispatch_source": "slot_write_hook",
		},
	}
	if err := h.jobs.Create(ctx, job); err != nil {
		return models.NewEngineError(models.ErrDatabase, "failed to create background job", err)
	}

	payload, err := json.Marshal(&QueuedJob{
		JobID:       job.ID,
		WorkspaceID: workspaceID,
		Actor:       actor,
		Items:       []RootChange{item},
		Rules:       rules,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal job payload: %w", err)
	}

	if err := h.enqueuer.EnqueueJob(ctx, payload); err != nil {
		return fmt.Errorf("failed to enqueue background job: %w", err)
	}

	h.log.Info("background propagation enqueued",
		"job_id", job.ID,
		"string_id", item.StringID,
		"affected_count", report.AffectedCount)

	return nil
}
