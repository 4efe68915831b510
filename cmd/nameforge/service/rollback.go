package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/google/uuid"

	"github.com/convexa/nameforge/common/engine"
	"github.com/convexa/nameforge/common/models"
)

// RollbackResult reports one string's rollback outcome
type RollbackResult struct {
	StringID uuid.UUID `json:"string_id"`
	// Version the rollback restored the content of
	RestoredVersion int `json:"restored_version"`
	// New version produced by the rollback mutation
	NewVersion int       `json:"new_version"`
	Value      string    `json:"value"`
	BatchID    uuid.UUID `json:"batch_id"`
}

// BatchRollbackResult summarizes reverting one propagation run
type BatchRollbackResult struct {
	BatchID    uuid.UUID        `json:"batch_id"`
	RolledBack []RollbackResult `json:"rolled_back"`
}

// fieldState is the merge-patch document shape for one logical field
type fieldState struct {
	Value   string `json:"value"`
	Display string `json:"display,omitempty"`
}

// RollbackService restores earlier string content as a forward
// mutation: the version counter keeps climbing and the audit trail
// records the rollback itself. History is never rewritten.
//
// Field state is reconstructed by folding the inverse of each newer
// audit change set over the current slots as JSON merge patches.
type RollbackService struct {
	runner engine.TxRunner
	audits engine.AuditStore
	log    engine.Logger
}

// NewRollbackService creates a new rollback service
func NewRollbackService(runner engine.TxRunner, audits engine.AuditStore, log engine.Logger) *RollbackService {
	return &RollbackService{
		runner: runner,
		audits: audits,
		log:    log,
	}
}

// RollbackString restores a string's content to targetVersion
func (s *RollbackService) RollbackString(ctx context.Context, workspaceID, stringID uuid.UUID, targetVersion int, actor string) (*RollbackResult, error) {
	batchID := uuid.New()
	var result *RollbackResult

	err := s.runner.InTx(ctx, func(st engine.Stores) error {
		node, err := st.Strings.GetByID(ctx, workspaceID, stringID)
		if err != nil {
			return err
		}

		if targetVersion <= 0 || targetVersion >= node.Version {
			return models.NewEngineError(
				models.ErrValidation,
				fmt.Sprintf("cannot roll back version %d to %d", node.Version, targetVersion),
				nil,
			)
		}
		if _, err := st.Audits.GetByVersion(ctx, stringID, targetVersion); err != nil {
			return models.NewEngineError(
				models.ErrValidation,
				fmt.Sprintf("no recorded version %d for string %s", targetVersion, stringID),
				err,
			)
		}

		history, err := st.Audits.ListByString(ctx, stringID)
		if err != nil {
			return err
		}

		// Most-recent-first entries newer than the target
		var newer []*models.AuditEntry
		for _, entry := range history {
			if entry.Version > targetVersion {
				newer = append(newer, entry)
			}
		}

		r, err := s.applyInverse(ctx, st, node, newer, actor, batchID)
		if err != nil {
			return err
		}
		r.RestoredVersion = targetVersion
		result = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("string rolled back",
		"string_id", stringID,
		"restored_version", targetVersion,
		"new_version", result.NewVersion)

	return result, nil
}

// RollbackBatch reverts every string one propagation run touched by
// inverting exactly that run's change sets. Each string is reverted in
// its own transaction so one failure does not poison the rest.
func (s *RollbackService) RollbackBatch(ctx context.Context, batchID uuid.UUID, actor string) (*BatchRollbackResult, error) {
	entries, err := s.audits.ListByBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, engine.ErrNotFound
	}

	// Group per string, most recent first within each group
	byString := make(map[uuid.UUID][]*models.AuditEntry)
	var order []uuid.UUID
	for i := len(entries) - 1; i >= 0; i-- {
		entry := entries[i]
		if _, seen := byString[entry.StringID]; !seen {
			order = append(order, entry.StringID)
		}
		byString[entry.StringID] = append(byString[entry.StringID], entry)
	}

	rollbackBatch := uuid.New()
	result := &BatchRollbackResult{BatchID: rollbackBatch}

	for _, stringID := range order {
		group := byString[stringID]
		workspaceID := group[0].WorkspaceID

		err := s.runner.InTx(ctx, func(st engine.Stores) error {
			node, err := st.Strings.GetByID(ctx, workspaceID, stringID)
			if err != nil {
				return err
			}
			r, err := s.applyInverse(ctx, st, node, group, actor, rollbackBatch)
			if err != nil {
				return err
			}
			r.RestoredVersion = group[len(group)-1].Version - 1
			result.RolledBack = append(result.RolledBack, *r)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to roll back string %s: %w", stringID, err)
		}
	}

	s.log.Info("batch rolled back",
		"source_batch_id", batchID,
		"rollback_batch_id", rollbackBatch,
		"strings", len(result.RolledBack))

	return result, nil
}

// applyInverse folds the inverse of the given audit entries (most
// recent first) over the string's current slots, persists the restored
// fields, re-renders the value and appends the rollback audit entry
func (s *RollbackService) applyInverse(ctx context.Context, st engine.Stores, node *models.NameString, entries []*models.AuditEntry, actor string, batchID uuid.UUID) (*RollbackResult, error) {
	slots, err := st.Slots.ListByString(ctx, node.ID)
	if err != nil {
		return nil, err
	}

	doc, err := json.Marshal(currentFieldDoc(slots))
	if err != nil {
		return nil, fmt.Errorf("failed to encode field state: %w", err)
	}

	touched := map[string]bool{}
	for _, entry := range entries {
		patch := make(map[string]*fieldState, len(entry.Changes))
		for key, change := range entry.Changes {
			touched[key] = true
			if change.Old == "" {
				// null removes the key under merge-patch semantics
				patch[key] = nil
				continue
			}
			patch[key] = &fieldState{Value: change.Old, Display: change.OldDisplay}
		}
		if len(patch) == 0 {
			continue
		}

		patchData, err := json.Marshal(patch)
		if err != nil {
			return nil, fmt.Errorf("failed to encode inverse patch: %w", err)
		}
		doc, err = jsonpatch.MergePatch(doc, patchData)
		if err != nil {
			return nil, fmt.Errorf("failed to fold inverse patch: %w", err)
		}
	}

	var restored map[string]fieldState
	if err := json.Unmarshal(doc, &restored); err != nil {
		return nil, fmt.Errorf("failed to decode restored field state: %w", err)
	}

	changeSet := models.ChangeSet{}
	meta := node.GenerationMetadata
	if meta == nil {
		meta = models.GenerationMetadata{}
	}

	for _, slot := range slots {
		before := *slot
		writeRestoredFields(slot, restored)

		if slotUnchanged(&before, slot) {
			continue
		}
		if err := st.Slots.Update(ctx, slot); err != nil {
			return nil, err
		}

		for _, field := range []string{models.FieldDimensionValue, models.FieldFreetext} {
			key := slot.DimensionName + "." + field
			if !touched[key] {
				continue
			}
			changeSet[key] = models.FieldChange{
				Old:        before.FieldValue(field),
				New:        slot.FieldValue(field),
				OldDisplay: before.DisplayValue(field),
				NewDisplay: slot.DisplayValue(field),
			}
			// Restored content is a direct admin mutation, whatever its
			// original provenance was
			meta[field+"_"+slot.DimensionName] = models.FieldOrigin{Inherited: false}
		}
	}

	tmpl, err := st.Templates.GetByLevel(ctx, node.RuleID, node.LevelID)
	if err != nil {
		return nil, models.NewEngineError(models.ErrGeneration, "failed to load rule template", err)
	}
	value, err := engine.Render(tmpl, slots)
	if err != nil {
		return nil, err
	}

	newVersion, err := st.Strings.UpdateValue(ctx, node.WorkspaceID, node.ID, value, node.Version, meta)
	if err == engine.ErrVersionMismatch {
		return nil, models.NewEngineError(models.ErrConflict, "string changed during rollback", err)
	}
	if err != nil {
		return nil, err
	}

	entry := &models.AuditEntry{
		ID:            uuid.New(),
		StringID:      node.ID,
		WorkspaceID:   node.WorkspaceID,
		Version:       newVersion,
		Changes:       changeSet,
		OriginalValue: node.Value,
		StringValue:   value,
		ChangeType:    models.ChangeTypeRollback,
		Actor:         actor,
		BatchID:       &batchID,
		CreatedAt:     time.Now(),
	}
	if err := st.Audits.Append(ctx, entry); err != nil {
		return nil, err
	}

	return &RollbackResult{
		StringID:   node.ID,
		NewVersion: newVersion,
		Value:      value,
		BatchID:    batchID,
	}, nil
}

// slotUnchanged compares the value-bearing fields of two slot states
func slotUnchanged(a, b *models.Slot) bool {
	for _, field := range []string{models.FieldDimensionValue, models.FieldFreetext} {
		if a.FieldValue(field) != b.FieldValue(field) || a.DisplayValue(field) != b.DisplayValue(field) {
			return false
		}
	}
	return true
}

// currentFieldDoc projects slots into the merge-patch document
func currentFieldDoc(slots []*models.Slot) map[string]*fieldState {
	doc := make(map[string]*fieldState)
	for _, slot := range slots {
		if slot.DimensionValueID != nil {
			state := &fieldState{Value: slot.DimensionValueID.String()}
			if slot.DimensionValueName != nil {
				state.Display = *slot.DimensionValueName
			}
			doc[slot.DimensionName+"."+models.FieldDimensionValue] = state
		}
		if slot.Freetext != nil && *slot.Freetext != "" {
			doc[slot.DimensionName+"."+models.FieldFreetext] = &fieldState{Value: *slot.Freetext}
		}
	}
	return doc
}

// writeRestoredFields rewrites one slot from the restored document,
// preserving the exactly-one-of invariant (freetext wins when both
// appear)
func writeRestoredFields(slot *models.Slot, restored map[string]fieldState) {
	refKey := slot.DimensionName + "." + models.FieldDimensionValue
	textKey := slot.DimensionName + "." + models.FieldFreetext

	if state, ok := restored[textKey]; ok && state.Value != "" {
		text := state.Value
		slot.Freetext = &text
		slot.DimensionValueID = nil
		slot.DimensionValueName = nil
		return
	}

	slot.Freetext = nil
	if state, ok := restored[refKey]; ok && state.Value != "" {
		if id, err := uuid.Parse(state.Value); err == nil {
			idCopy := id
			slot.DimensionValueID = &idCopy
		}
		display := state.Display
		slot.DimensionValueName = &display
		return
	}

	slot.DimensionValueID = nil
	slot.DimensionValueName = nil
}
