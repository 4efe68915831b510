package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/convexa/nameforge/common/config"
	"github.com/convexa/nameforge/common/models"
)

// RootChange is one approved slot change applied to a root string
type RootChange struct {
	StringID uuid.UUID `json:"string_id"`
	SlotID   uuid.UUID `json:"slot_id,omitempty"`
	Changes  []Change  `json:"changes"`

	// Optimistic token: when >0, the write is rejected if the persisted
	// version differs
	BaseVersion int `json:"base_version,omitempty"`
}

// ExecuteOptions tunes one execution run
type ExecuteOptions struct {
	MaxDepth      int                  `json:"max_depth,omitempty"`
	ErrorHandling models.ErrorHandling `json:"error_handling,omitempty"`
}

// ExecuteRequest is the executor's input: approved root changes for one
// workspace, with explicit actor. No ambient state.
type ExecuteRequest struct {
	WorkspaceID uuid.UUID      `json:"workspace_id"`
	Actor       string         `json:"actor"`
	Changes     []RootChange   `json:"changes"`
	Rules       *RuleSet       `json:"rules,omitempty"`
	Options     ExecuteOptions `json:"options"`
}

// ExecuteResult reports one run's outcome
type ExecuteResult struct {
	Job     *models.PropagationJob     `json:"job"`
	Updated []uuid.UUID                `json:"updated"`
	Errors  []*models.PropagationError `json:"errors"`
}

// Executor applies approved slot changes transactionally: regenerates the
// root value, recurses into children applying the inherited subset, and
// records one audit entry per mutated string. One root change and its
// propagated descendants form one atomic unit.
type Executor struct {
	runner TxRunner
	jobs   JobStore
	errs   ErrorStore
	eval   *ConditionEvaluator
	cfg    config.EngineConfig
	log    Logger

	// In-flight guard: strings currently being written by this executor.
	// OnSlotWritten consults it so the executor's own writes never
	// re-trigger propagation within the same call stack.
	mu       sync.Mutex
	inflight map[uuid.UUID]int
}

// NewExecutor creates a propagation executor
func NewExecutor(runner TxRunner, jobs JobStore, errs ErrorStore, cfg config.EngineConfig, log Logger) *Executor {
	return &Executor{
		runner:   runner,
		jobs:     jobs,
		errs:     errs,
		eval:     NewConditionEvaluator(),
		cfg:      cfg,
		log:      log,
		inflight: make(map[uuid.UUID]int),
	}
}

// Execute runs a full synchronous propagation: creates the job record,
// applies every root change, and finalizes the job status
func (e *Executor) Execute(ctx context.Context, req *ExecuteRequest) (*ExecuteResult, error) {
	if len(req.Changes) == 0 {
		return nil, models.NewEngineError(models.ErrValidation, "no changes submitted", nil)
	}

	job := &models.PropagationJob{
		ID:               uuid.New(),
		BatchID:          uuid.New(),
		WorkspaceID:      req.WorkspaceID,
		Status:           models.JobPending,
		TotalStrings:     len(req.Changes),
		ProcessingMethod: models.MethodSynchronous,
		Metadata:         map[string]any{"actor": req.Actor},
		CreatedAt:        time.Now(),
	}

	if err := e.jobs.Create(ctx, job); err != nil {
		return nil, models.NewEngineError(models.ErrDatabase, "failed to create propagation job", err)
	}
	if err := e.jobs.MarkStarted(ctx, job.ID); err != nil {
		return nil, models.NewEngineError(models.ErrDatabase, "failed to start propagation job", err)
	}
	job.Status = models.JobRunning

	result := &ExecuteResult{Job: job}
	processed, failed := 0, 0
	aborted := false

	for _, change := range req.Changes {
		updated, err := e.ApplyItem(ctx, req.WorkspaceID, req.Actor, change, req.Rules, job.BatchID, req.Options.MaxDepth)
		if err != nil {
			failed++
			propErr := e.recordItemError(ctx, job.ID, change, err)
			result.Errors = append(result.Errors, propErr)

			if req.Options.ErrorHandling == models.ErrorStop {
				// Remaining items stay unprocessed; the trade-off versus
				// continue is the caller's documented choice
				aborted = true
				break
			}
			continue
		}
		processed++
		result.Updated = append(result.Updated, updated...)
	}

	status := models.JobCompleted
	var errMsg *string
	switch {
	case aborted:
		status = models.JobFailed
		msg := "aborted on first failure (error_handling=stop)"
		errMsg = &msg
	case failed > 0:
		status = models.JobPartialFailure
	}

	if err := e.jobs.MarkCompleted(ctx, job.ID, status, processed, failed, errMsg); err != nil {
		return nil, models.NewEngineError(models.ErrDatabase, "failed to finalize propagation job", err)
	}

	job.Status = status
	job.ProcessedStrings = processed
	job.FailedStrings = failed
	job.ErrorMessage = errMsg

	e.log.Info("propagation run finished",
		"job_id", job.ID,
		"batch_id", job.BatchID,
		"status", status,
		"processed", processed,
		"failed", failed)

	return result, nil
}

// ApplyItem applies one root change and its propagated descendants as a
// single transaction. Used directly by the chunked job runner.
func (e *Executor) ApplyItem(ctx context.Context, workspaceID uuid.UUID, actor string, item RootChange, rules *RuleSet, batchID uuid.UUID, maxDepth int) ([]uuid.UUID, error) {
	if rules == nil {
		rules = DefaultRuleSet()
	}
	if maxDepth <= 0 {
		maxDepth = e.cfg.MaxDepth
	}

	var updated []uuid.UUID
	err := e.runner.InTx(ctx, func(s Stores) error {
		node, err := s.Strings.GetByID(ctx, workspaceID, item.StringID)
		if err == ErrNotFound {
			return models.NewEngineError(models.ErrValidation, fmt.Sprintf("string %s not found", item.StringID), nil)
		}
		if err != nil {
			return models.NewEngineError(models.ErrDatabase, "failed to load root string", err)
		}

		if item.BaseVersion > 0 && item.BaseVersion != node.Version {
			return models.NewEngineError(
				models.ErrConflict,
				fmt.Sprintf("string %s at version %d, expected %d", node.ID, node.Version, item.BaseVersion),
				nil,
			)
		}

		visited := map[uuid.UUID]bool{}
		return e.applyNode(ctx, s, applyParams{
			workspaceID: workspaceID,
			actor:       actor,
			batchID:     batchID,
			rules:       rules,
			maxDepth:    maxDepth,
		}, node, item.Changes, nil, nil, models.ChangeTypeDirect, 0, visited, &updated)
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}

// Regenerate re-renders one string from its current slot state and
// persists the result as a direct mutation. This is the single-item
// update path used by administrative error retry.
func (e *Executor) Regenerate(ctx context.Context, workspaceID, stringID uuid.UUID, actor string, batchID uuid.UUID) error {
	return e.runner.InTx(ctx, func(s Stores) error {
		node, err := s.Strings.GetByID(ctx, workspaceID, stringID)
		if err == ErrNotFound {
			return models.NewEngineError(models.ErrValidation, fmt.Sprintf("string %s not found", stringID), nil)
		}
		if err != nil {
			return models.NewEngineError(models.ErrDatabase, "failed to load string", err)
		}

		slots, err := s.Slots.ListByString(ctx, node.ID)
		if err != nil {
			return models.NewEngineError(models.ErrDatabase, "failed to load slots", err)
		}

		tmpl, err := s.Templates.GetByLevel(ctx, node.RuleID, node.LevelID)
		if err != nil {
			return models.NewEngineError(models.ErrGeneration, "failed to load rule template", err)
		}

		value, err := Render(tmpl, slots)
		if err != nil {
			return err
		}

		newVersion, err := s.Strings.UpdateValue(ctx, workspaceID, node.ID, value, node.Version, node.GenerationMetadata)
		if err == ErrVersionMismatch {
			return models.NewEngineError(models.ErrConflict, "string changed during regeneration", err)
		}
		if err != nil {
			return models.NewEngineError(models.ErrDatabase, "failed to persist value", err)
		}

		entry := &models.AuditEntry{
			ID:            uuid.New(),
			StringID:      node.ID,
			WorkspaceID:   workspaceID,
			Version:       newVersion,
			Changes:       models.ChangeSet{},
			OriginalValue: node.Value,
			StringValue:   value,
			ChangeType:    models.ChangeTypeDirect,
			Actor:         actor,
			BatchID:       &batchID,
			CreatedAt:     time.Now(),
		}
		if err := s.Audits.Append(ctx, entry); err != nil {
			return models.NewEngineError(models.ErrDatabase, "failed to append audit entry", err)
		}

		return nil
	})
}

// InFlight reports whether the executor is currently writing a string.
// The slot-write hook consults this to break re-entrancy.
func (e *Executor) InFlight(stringID uuid.UUID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.inflight[stringID] > 0
}

func (e *Executor) beginFlight(stringID uuid.UUID) {
	e.mu.Lock()
	e.inflight[stringID]++
	e.mu.Unlock()
}

func (e *Executor) endFlight(stringID uuid.UUID) {
	e.mu.Lock()
	if e.inflight[stringID] <= 1 {
		delete(e.inflight, stringID)
	} else {
		e.inflight[stringID]--
	}
	e.mu.Unlock()
}

type applyParams struct {
	workspaceID uuid.UUID
	actor       string
	batchID     uuid.UUID
	rules       *RuleSet
	maxDepth    int
}

// applyNode mutates one string and recurses into its children. Parent
// writes always commit before child writes within the shared transaction
// (ancestor-before-descendant ordering comes from the recursion itself).
func (e *Executor) applyNode(
	ctx context.Context,
	s Stores,
	p applyParams,
	node *models.NameString,
	changes []Change,
	sourceID *uuid.UUID,
	parentVersion *int,
	changeType models.ChangeType,
	depth int,
	visited map[uuid.UUID]bool,
	updated *[]uuid.UUID,
) error {
	if visited[node.ID] {
		return nil
	}
	if depth >= p.maxDepth {
		return nil
	}
	visited[node.ID] = true

	e.beginFlight(node.ID)
	defer e.endFlight(node.ID)

	slots, err := s.Slots.ListByString(ctx, node.ID)
	if err != nil {
		return models.NewEngineError(models.ErrDatabase, "failed to load slots", err)
	}

	// Write the changed slot values
	meta := node.GenerationMetadata
	if meta == nil {
		meta = models.GenerationMetadata{}
	}
	for _, change := range changes {
		for _, slot := range slots {
			if slot.DimensionID != change.DimensionID {
				continue
			}
			applyChangeToSlot(slot, change)
			if err := s.Slots.Update(ctx, slot); err != nil {
				return models.NewEngineError(models.ErrDatabase, "failed to update slot", err)
			}
			meta[change.Key()] = models.FieldOrigin{
				Inherited: changeType == models.ChangeTypeInheritance,
				SourceID:  sourceID,
			}
		}
	}

	tmpl, err := s.Templates.GetByLevel(ctx, node.RuleID, node.LevelID)
	if err != nil {
		return models.NewEngineError(models.ErrGeneration, "failed to load rule template", err)
	}

	value, err := Render(tmpl, slots)
	if err != nil {
		return err
	}

	newVersion, err := s.Strings.UpdateValue(ctx, p.workspaceID, node.ID, value, node.Version, meta)
	if err == ErrVersionMismatch {
		return models.NewEngineError(
			models.ErrConflict,
			fmt.Sprintf("string %s changed concurrently", node.ID),
			err,
		)
	}
	if err != nil {
		return models.NewEngineError(models.ErrDatabase, "failed to persist value", err)
	}

	entry := &models.AuditEntry{
		ID:            uuid.New(),
		StringID:      node.ID,
		WorkspaceID:   p.workspaceID,
		Version:       newVersion,
		ParentVersion: parentVersion,
		Changes:       ToChangeSet(changes),
		OriginalValue: node.Value,
		StringValue:   value,
		ChangeType:    changeType,
		Actor:         p.actor,
		BatchID:       &p.batchID,
		CreatedAt:     time.Now(),
	}
	if err := s.Audits.Append(ctx, entry); err != nil {
		return models.NewEngineError(models.ErrDatabase, "failed to append audit entry", err)
	}

	*updated = append(*updated, node.ID)

	e.log.Debug("string updated",
		"string_id", node.ID,
		"version", newVersion,
		"change_type", changeType,
		"depth", depth)

	// Recurse into children with the subset each child inherits
	children, err := s.Strings.ListChildren(ctx, p.workspaceID, node.ID)
	if err != nil {
		return models.NewEngineError(models.ErrDatabase, "failed to list children", err)
	}

	for _, child := range children {
		childSlots, err := s.Slots.ListByString(ctx, child.ID)
		if err != nil {
			return models.NewEngineError(models.ErrDatabase, "failed to load child slots", err)
		}

		inherited, err := p.rules.InheritedSubset(child, childSlots, changes, e.eval)
		if err != nil {
			return err
		}
		if len(inherited) == 0 {
			continue
		}

		// Copied visited-set per branch: siblings must not poison each
		// other's cycle detection
		branchVisited := make(map[uuid.UUID]bool, len(visited))
		for id := range visited {
			branchVisited[id] = true
		}

		if err := e.applyNode(ctx, s, p, child, inherited, &node.ID, &newVersion, models.ChangeTypeInheritance, depth+1, branchVisited, updated); err != nil {
			return err
		}
	}

	return nil
}

// recordItemError persists one per-item failure without aborting the run
func (e *Executor) recordItemError(ctx context.Context, jobID uuid.UUID, item RootChange, itemErr error) *models.PropagationError {
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

	if err := e.errs.Create(ctx, propErr); err != nil {
		e.log.Error("failed to persist propagation error", "job_id", jobID, "error", err)
	}

	e.log.Warn("propagation item failed",
		"job_id", jobID,
		"string_id", item.StringID,
		"error_type", errType,
		"error", itemErr)

	return propErr
}
