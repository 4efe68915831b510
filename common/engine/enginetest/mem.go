// Package enginetest provides in-memory store implementations for
// exercising the propagation engine without Postgres.
package enginetest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/convexa/nameforge/common/engine"
	"github.com/convexa/nameforge/common/models"
)

// NopLogger discards all log output
type NopLogger struct{}

func (NopLogger) Info(msg string, keysAndValues ...interface{})  {}
func (NopLogger) Error(msg string, keysAndValues ...interface{}) {}
func (NopLogger) Warn(msg string, keysAndValues ...interface{})  {}
func (NopLogger) Debug(msg string, keysAndValues ...interface{}) {}

// Env is a complete in-memory persistence environment. Its TxRunner
// snapshots state before each unit and restores it on error, so
// transactional rollback behaves like the real pgx implementation.
type Env struct {
	mu sync.Mutex

	Strings   *StringStore
	Slots     *SlotStore
	Audits    *AuditStore
	Jobs      *JobStore
	Errors    *ErrorStore
	Templates *TemplateStore
}

// NewEnv creates an empty in-memory environment
func NewEnv() *Env {
	return &Env{
		Strings:   &StringStore{byID: map[uuid.UUID]*models.NameString{}},
		Slots:     &SlotStore{byID: map[uuid.UUID]*models.Slot{}},
		Audits:    &AuditStore{},
		Jobs:      &JobStore{byID: map[uuid.UUID]*models.PropagationJob{}},
		Errors:    &ErrorStore{byID: map[uuid.UUID]*models.PropagationError{}},
		Templates: &TemplateStore{byKey: map[string]*models.RuleTemplate{}},
	}
}

// Stores returns the store bundle handed to executor units
func (e *Env) Stores() engine.Stores {
	return engine.Stores{
		Strings:   e.Strings,
		Slots:     e.Slots,
		Audits:    e.Audits,
		Templates: e.Templates,
	}
}

// InTx snapshots mutable state, runs fn, and restores the snapshot if
// fn fails
func (e *Env) InTx(ctx context.Context, fn func(s engine.Stores) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	strings := e.Strings.snapshot()
	slots := e.Slots.snapshot()
	audits := e.Audits.snapshot()

	if err := fn(e.Stores()); err != nil {
		e.Strings.restore(strings)
		e.Slots.restore(slots)
		e.Audits.restore(audits)
		return err
	}
	return nil
}

// AddString registers a string and returns it
func (e *Env) AddString(s *models.NameString) *models.NameString {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.Version == 0 {
		s.Version = 1
	}
	e.Strings.byID[s.ID] = s
	return s
}

// AddSlot registers a slot and returns it
func (e *Env) AddSlot(s *models.Slot) *models.Slot {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	e.Slots.byID[s.ID] = s
	return s
}

// SetTemplate registers the rule template for a rule/level pair
func (e *Env) SetTemplate(t *models.RuleTemplate) {
	e.Templates.byKey[t.RuleID.String()+"/"+t.LevelID.String()] = t
}

// StringStore is an in-memory engine.StringStore
type StringStore struct {
	byID map[uuid.UUID]*models.NameString
}

func (s *StringStore) GetByID(ctx context.Context, workspaceID, id uuid.UUID) (*models.NameString, error) {
	str, ok := s.byID[id]
	if !ok || str.WorkspaceID != workspaceID {
		return nil, engine.ErrNotFound
	}
	return copyString(str), nil
}

func (s *StringStore) ListChildren(ctx context.Context, workspaceID, parentID uuid.UUID) ([]*models.NameString, error) {
	var children []*models.NameString
	for _, str := range s.byID {
		if str.WorkspaceID == workspaceID && str.ParentID != nil && *str.ParentID == parentID {
			children = append(children, copyString(str))
		}
	}
	sort.Slice(children, func(i, j int) bool { return children[i].ID.String() < children[j].ID.String() })
	return children, nil
}

func (s *StringStore) FindByValue(ctx context.Context, workspaceID, ruleID, levelID uuid.UUID, value string, excludeID uuid.UUID) (*models.NameString, error) {
	for _, str := range s.byID {
		if str.ID == excludeID {
			continue
		}
		if str.WorkspaceID == workspaceID && str.RuleID == ruleID && str.LevelID == levelID && str.Value == value {
			return copyString(str), nil
		}
	}
	return nil, engine.ErrNotFound
}

func (s *StringStore) UpdateValue(ctx context.Context, workspaceID, id uuid.UUID, value string, expectedVersion int, meta models.GenerationMetadata) (int, error) {
	str, ok := s.byID[id]
	if !ok || str.WorkspaceID != workspaceID {
		return 0, engine.ErrNotFound
	}
	if str.Version != expectedVersion {
		return 0, engine.ErrVersionMismatch
	}
	str.Value = value
	str.Version++
	str.GenerationMetadata = meta
	str.UpdatedAt = time.Now()
	return str.Version, nil
}

func (s *StringStore) snapshot() map[uuid.UUID]*models.NameString {
	snap := make(map[uuid.UUID]*models.NameString, len(s.byID))
	for id, str := range s.byID {
		snap[id] = copyString(str)
	}
	return snap
}

func (s *StringStore) restore(snap map[uuid.UUID]*models.NameString) {
	s.byID = snap
}

// SlotStore is an in-memory engine.SlotStore
type SlotStore struct {
	byID map[uuid.UUID]*models.Slot
}

func (s *SlotStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Slot, error) {
	slot, ok := s.byID[id]
	if !ok {
		return nil, engine.ErrNotFound
	}
	return copySlot(slot), nil
}

func (s *SlotStore) ListByString(ctx context.Context, stringID uuid.UUID) ([]*models.Slot, error) {
	var slots []*models.Slot
	for _, slot := range s.byID {
		if slot.StringID == stringID {
			slots = append(slots, copySlot(slot))
		}
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i].ID.String() < slots[j].ID.String() })
	return slots, nil
}

func (s *SlotStore) Update(ctx context.Context, slot *models.Slot) error {
	if _, ok := s.byID[slot.ID]; !ok {
		return engine.ErrNotFound
	}
	s.byID[slot.ID] = copySlot(slot)
	return nil
}

func (s *SlotStore) snapshot() map[uuid.UUID]*models.Slot {
	snap := make(map[uuid.UUID]*models.Slot, len(s.byID))
	for id, slot := range s.byID {
		snap[id] = copySlot(slot)
	}
	return snap
}

func (s *SlotStore) restore(snap map[uuid.UUID]*models.Slot) {
	s.byID = snap
}

// AuditStore is an in-memory engine.AuditStore
type AuditStore struct {
	entries []*models.AuditEntry
}

func (s *AuditStore) Append(ctx context.Context, entry *models.AuditEntry) error {
	s.entries = append(s.entries, entry)
	return nil
}

func (s *AuditStore) ListByString(ctx context.Context, stringID uuid.UUID) ([]*models.AuditEntry, error) {
	var out []*models.AuditEntry
	for i := len(s.entries) - 1; i >= 0; i-- {
		if s.entries[i].StringID == stringID {
			out = append(out, s.entries[i])
		}
	}
	return out, nil
}

func (s *AuditStore) GetByVersion(ctx context.Context, stringID uuid.UUID, version int) (*models.AuditEntry, error) {
	for _, entry := range s.entries {
		if entry.StringID == stringID && entry.Version == version {
			return entry, nil
		}
	}
	return nil, engine.ErrNotFound
}

func (s *AuditStore) Latest(ctx context.Context, stringID uuid.UUID) (*models.AuditEntry, error) {
	for i := len(s.entries) - 1; i >= 0; i-- {
		if s.entries[i].StringID == stringID {
			return s.entries[i], nil
		}
	}
	return nil, nil
}

func (s *AuditStore) ListByBatch(ctx context.Context, batchID uuid.UUID) ([]*models.AuditEntry, error) {
	var out []*models.AuditEntry
	for _, entry := range s.entries {
		if entry.BatchID != nil && *entry.BatchID == batchID {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (s *AuditStore) snapshot() []*models.AuditEntry {
	return append([]*models.AuditEntry{}, s.entries...)
}

func (s *AuditStore) restore(snap []*models.AuditEntry) {
	s.entries = snap
}

// JobStore is an in-memory engine.JobStore
type JobStore struct {
	byID map[uuid.UUID]*models.PropagationJob
}

func (s *JobStore) Create(ctx context.Context, job *models.PropagationJob) error {
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	s.byID[job.ID] = job
	return nil
}

func (s *JobStore) GetByID(ctx context.Context, id uuid.UUID) (*models.PropagationJob, error) {
	job, ok := s.byID[id]
	if !ok {
		return nil, engine.ErrNotFound
	}
	return job, nil
}

func (s *JobStore) ListByWorkspace(ctx context.Context, workspaceID uuid.UUID, status models.JobStatus, limit int) ([]*models.PropagationJob, error) {
	var jobs []*models.PropagationJob
	for _, job := range s.byID {
		if job.WorkspaceID != workspaceID {
			continue
		}
		if status != "" && job.Status != status {
			continue
		}
		jobs = append(jobs, job)
		if limit > 0 && len(jobs) >= limit {
			break
		}
	}
	return jobs, nil
}

func (s *JobStore) MarkStarted(ctx context.Context, id uuid.UUID) error {
	job, ok := s.byID[id]
	if !ok {
		return engine.ErrNotFound
	}
	now := time.Now()
	job.Status = models.JobRunning
	job.StartedAt = &now
	return nil
}

func (s *JobStore) UpdateProgress(ctx context.Context, id uuid.UUID, processed, failed int) error {
	job, ok := s.byID[id]
	if !ok {
		return engine.ErrNotFound
	}
	job.ProcessedStrings = processed
	job.FailedStrings = failed
	return nil
}

func (s *JobStore) MarkCompleted(ctx context.Context, id uuid.UUID, status models.JobStatus, processed, failed int, errorMessage *string) error {
	job, ok := s.byID[id]
	if !ok {
		return engine.ErrNotFound
	}
	now := time.Now()
	job.Status = status
	job.ProcessedStrings = processed
	job.FailedStrings = failed
	job.ErrorMessage = errorMessage
	job.CompletedAt = &now
	return nil
}

// ErrorStore is an in-memory engine.ErrorStore
type ErrorStore struct {
	byID map[uuid.UUID]*models.PropagationError
}

func (s *ErrorStore) Create(ctx context.Context, propErr *models.PropagationError) error {
	s.byID[propErr.ID] = propErr
	return nil
}

func (s *ErrorStore) GetByID(ctx context.Context, id uuid.UUID) (*models.PropagationError, error) {
	propErr, ok := s.byID[id]
	if !ok {
		return nil, engine.ErrNotFound
	}
	return propErr, nil
}

func (s *ErrorStore) ListByJob(ctx context.Context, jobID uuid.UUID) ([]*models.PropagationError, error) {
	var out []*models.PropagationError
	for _, propErr := range s.byID {
		if propErr.JobID == jobID {
			out = append(out, propErr)
		}
	}
	return out, nil
}

func (s *ErrorStore) ListRetryable(ctx context.Context, jobID uuid.UUID) ([]*models.PropagationError, error) {
	var out []*models.PropagationError
	for _, propErr := range s.byID {
		if propErr.JobID == jobID && propErr.IsRetryable && !propErr.Resolved {
			out = append(out, propErr)
		}
	}
	return out, nil
}

func (s *ErrorStore) MarkResolved(ctx context.Context, id uuid.UUID, resolvedBy string) error {
	propErr, ok := s.byID[id]
	if !ok {
		return engine.ErrNotFound
	}
	now := time.Now()
	propErr.Resolved = true
	propErr.ResolvedBy = &resolvedBy
	propErr.ResolvedAt = &now
	return nil
}

func (s *ErrorStore) IncrementRetry(ctx context.Context, id uuid.UUID) (int, error) {
	propErr, ok := s.byID[id]
	if !ok {
		return 0, engine.ErrNotFound
	}
	propErr.RetryCount++
	return propErr.RetryCount, nil
}

func (s *ErrorStore) SetRetryable(ctx context.Context, id uuid.UUID, retryable bool) error {
	propErr, ok := s.byID[id]
	if !ok {
		return engine.ErrNotFound
	}
	propErr.IsRetryable = retryable
	return nil
}

// TemplateStore is an in-memory engine.TemplateStore
type TemplateStore struct {
	byKey map[string]*models.RuleTemplate
}

func (s *TemplateStore) GetByLevel(ctx context.Context, ruleID, levelID uuid.UUID) (*models.RuleTemplate, error) {
	tmpl, ok := s.byKey[ruleID.String()+"/"+levelID.String()]
	if !ok {
		return nil, engine.ErrNotFound
	}
	return tmpl, nil
}

func copyString(s *models.NameString) *models.NameString {
	dup := *s
	if s.ParentID != nil {
		p := *s.ParentID
		dup.ParentID = &p
	}
	if s.GenerationMetadata != nil {
		meta := make(models.GenerationMetadata, len(s.GenerationMetadata))
		for k, v := range s.GenerationMetadata {
			meta[k] = v
		}
		dup.GenerationMetadata = meta
	}
	return &dup
}

func copySlot(s *models.Slot) *models.Slot {
	dup := *s
	if s.DimensionValueID != nil {
		v := *s.DimensionValueID
		dup.DimensionValueID = &v
	}
	if s.DimensionValueName != nil {
		v := *s.DimensionValueName
		dup.DimensionValueName = &v
	}
	if s.Freetext != nil {
		v := *s.Freetext
		dup.Freetext = &v
	}
	return &dup
}
