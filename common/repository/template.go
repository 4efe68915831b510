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

// TemplateRepository handles database operations for rule templates
type TemplateRepository struct {
	q Querier
}

// NewTemplateRepository creates a new template repository
func NewTemplateRepository(q Querier) *TemplateRepository {
	return &TemplateRepository{q: q}
}

// GetByLevel retrieves the rendering template for a rule/level pair
func (r *TemplateRepository) GetByLevel(ctx context.Context, ruleID, levelID uuid.UUID) (*models.RuleTemplate, error) {
	query := `
		SELECT rule_id, level_id, delimiter, slots
		FROM rule_template
		WHERE rule_id = $1 AND level_id = $2
	`

	tmpl := &models.RuleTemplate{}
	err := r.q.QueryRow(ctx, query, ruleID, levelID).Scan(
		&tmpl.RuleID,
		&tmpl.LevelID,
		&tmpl.Delimiter,
		&tmpl.Slots,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, engine.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rule template: %w", err)
	}

	return tmpl, nil
}
