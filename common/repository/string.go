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

// StringRepository handles database operations for name strings
type StringRepository struct {
	q Querier
}

// NewStringRepository creates a new string repository
func NewStringRepository(q Querier) *StringRepository {
	return &StringRepository{q: q}
}

const stringColumns = `id, workspace_id, rule_id, level_id, parent_id, value, version, generation_metadata, created_at, updated_at`

// Create inserts a new name string
func (r *StringRepository) Create(ctx context.Context, str *models.NameString) error {
	query := `
		INSERT INTO name_string (id, workspace_id, rule_id, level_id, parent_id, value, version, generation_metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
	`

	_, err := r.q.Exec(
		ctx,
		query,
		str.ID,
		str.WorkspaceID,
		str.RuleID,
		str.LevelID,
		str.ParentID,
		str.Value,
		str.Version,
		str.GenerationMetadata,
	)

	if err != nil {
		return fmt.Errorf("failed to create string: %w", err)
	}

	return nil
}

// GetByID retrieves a string by its ID within a workspace
func (r *StringRepository) GetByID(ctx context.Context, workspaceID, id uuid.UUID) (*models.NameString, error) {
	query := `
		SELECT ` + stringColumns + `
		FROM name_string
		WHERE workspace_id = $1 AND id = $2
	`

	str, err := scanString(r.q.QueryRow(ctx, query, workspaceID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, engine.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get string: %w", err)
	}

	return str, nil
}

// ListChildren retrieves the direct children of a string
func (r *StringRepository) ListChildren(ctx context.Context, workspaceID, parentID uuid.UUID) ([]*models.NameString, error) {
	query := `
		SELECT ` + stringColumns + `
		FROM name_string
		WHERE workspace_id = $1 AND parent_id = $2
		ORDER BY created_at
	`

	rows, err := r.q.Query(ctx, query, workspaceID, parentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list children: %w", err)
	}
	defer rows.Close()

	var strs []*models.NameString
	for rows.Next() {
		str, err := scanString(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan string: %w", err)
		}
		strs = append(strs, str)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating strings: %w", err)
	}

	return strs, nil
}

// FindByValue retrieves another string holding the given generated value
// at the same workspace/rule/level, or engine.ErrNotFound
func (r *StringRepository) FindByValue(ctx context.Context, workspaceID, ruleID, levelID uuid.UUID, value string, excludeID uuid.UUID) (*models.NameString, error) {
	query := `
		SELECT ` + stringColumns + `
		FROM name_string
		WHERE workspace_id = $1 AND rule_id = $2 AND level_id = $3 AND value = $4 AND id <> $5
		LIMIT 1
	`

	str, err := scanString(r.q.QueryRow(ctx, query, workspaceID, ruleID, levelID, value, excludeID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, engine.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find string by value: %w", err)
	}

	return str, nil
}

// UpdateValue persists a new value and provenance metadata only if the
// persisted version still equals expectedVersion. Returns the new
// version, or engine.ErrVersionMismatch on a stale token.
func (r *StringRepository) UpdateValue(ctx context.Context, workspaceID, id uuid.UUID, value string, expectedVersion int, meta models.GenerationMetadata) (int, error) {
	query := `
		UPDATE name_string
		SET value = $3, version = version + 1, generation_metadata = $4, updated_at = now()
		WHERE workspace_id = $1 AND id = $2 AND version = $5
		RETURNING version
	`

	var newVersion int
	err := r.q.QueryRow(ctx, query, workspaceID, id, value, meta, expectedVersion).Scan(&newVersion)
	if errors.Is(err, pgx.ErrNoRows) {
		// Distinguish a missing row from a stale version
		var v int
		probeErr := r.q.QueryRow(ctx, `SELECT version FROM name_string WHERE workspace_id = $1 AND id = $2`, workspaceID, id).Scan(&v)
		if errors.Is(probeErr, pgx.ErrNoRows) {
			return 0, engine.ErrNotFound
		}
		if probeErr != nil {
			return 0, fmt.Errorf("failed to probe string version: %w", probeErr)
		}
		return 0, engine.ErrVersionMismatch
	}
	if err != nil {
		return 0, fmt.Errorf("failed to update string value: %w", err)
	}

	return newVersion, nil
}

// UpdateParent reassigns a string's parent link
func (r *StringRepository) UpdateParent(ctx context.Context, workspaceID, id uuid.UUID, parentID *uuid.UUID) error {
	query := `
		UPDATE name_string
		SET parent_id = $3, updated_at = now()
		WHERE workspace_id = $1 AND id = $2
	`

	tag, err := r.q.Exec(ctx, query, workspaceID, id, parentID)
	if err != nil {
		return fmt.Errorf("failed to update parent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return engine.ErrNotFound
	}

	return nil
}

func scanString(row pgx.Row) (*models.NameString, error) {
	str := &models.NameString{}
	err := row.Scan(
		&str.ID,
		&str.WorkspaceID,
		&str.RuleID,
		&str.LevelID,
		&str.ParentID,
		&str.Value,
		&str.Version,
		&str.GenerationMetadata,
		&str.CreatedAt,
		&str.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return str, nil
}
