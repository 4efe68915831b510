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

// SlotRepository handles database operations for string slots
type SlotRepository struct {
	q Querier
}

// NewSlotRepository creates a new slot repository
func NewSlotRepository(q Querier) *SlotRepository {
	return &SlotRepository{q: q}
}

const slotColumns = `id, string_id, dimension_id, dimension_name, dimension_value_id, dimension_value_name, freetext`

// GetByID retrieves a slot by its ID
func (r *SlotRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Slot, error) {
	query := `
		SELECT ` + slotColumns + `
		FROM string_slot
		WHERE id = $1
	`

	slot, err := scanSlot(r.q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, engine.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get slot: %w", err)
	}

	return slot, nil
}

// ListByString retrieves all slots of a string
func (r *SlotRepository) ListByString(ctx context.Context, stringID uuid.UUID) ([]*models.Slot, error) {
	query := `
		SELECT ` + slotColumns + `
		FROM string_slot
		WHERE string_id = $1
		ORDER BY dimension_name
	`

	rows, err := r.q.Query(ctx, query, stringID)
	if err != nil {
		return nil, fmt.Errorf("failed to list slots: %w", err)
	}
	defer rows.Close()

	var slots []*models.Slot
	for rows.Next() {
		slot, err := scanSlot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan slot: %w", err)
		}
		slots = append(slots, slot)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating slots: %w", err)
	}

	return slots, nil
}

// Update persists a slot's value fields
func (r *SlotRepository) Update(ctx context.Context, slot *models.Slot) error {
	query := `
		UPDATE string_slot
		SET dimension_value_id = $2, dimension_value_name = $3, freetext = $4
		WHERE id = $1
	`

	tag, err := r.q.Exec(ctx, query, slot.ID, slot.DimensionValueID, slot.DimensionValueName, slot.Freetext)
	if err != nil {
		return fmt.Errorf("failed to update slot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return engine.ErrNotFound
	}

	return nil
}

func scanSlot(row pgx.Row) (*models.Slot, error) {
	slot := &models.Slot{}
	err := row.Scan(
		&slot.ID,
		&slot.StringID,
		&slot.DimensionID,
		&slot.DimensionName,
		&slot.DimensionValueID,
		&slot.DimensionValueName,
		&slot.Freetext,
	)
	if err != nil {
		return nil, err
	}
	return slot, nil
}
