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

// AuditRepository handles the append-only audit trail. Entries are never
// updated or deleted.
type AuditRepository struct {
	q Querier
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(q Querier) *AuditRepository {
	return &AuditRepository{q: q}
}

const auditColumns = `id, string_id, workspace_id, version, parent_version, changes, original_value, string_value, change_type, actor, batch_id, created_at`

// Append inserts a new audit entry
func (r *AuditRepository) Append(ctx context.Context, entry *models.AuditEntry) error {
	query := `
		INSERT INTO audit_entry (id, string_id, workspace_id, version, parent_version, changes, original_value, string_value, change_type, actor, batch_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := r.q.Exec(
		ctx,
		query,
		entry.ID,
		entry.StringID,
		entry.WorkspaceID,
		entry.Version,
		entry.ParentVersion,
		entry.Changes,
		entry.OriginalValue,
		entry.StringValue,
		entry.ChangeType,
		entry.Actor,
		entry.BatchID,
		entry.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}

	return nil
}

// ListByString retrieves a string's history, most recent first
func (r *AuditRepository) ListByString(ctx context.Context, stringID uuid.UUID) ([]*models.AuditEntry, error) {
	query := `
		SELECT ` + auditColumns + `
		FROM audit_entry
		WHERE string_id = $1
		ORDER BY version DESC
	`

	return r.list(ctx, query, stringID)
}

// GetByVersion retrieves the entry that produced a specific version
func (r *AuditRepository) GetByVersion(ctx context.Context, stringID uuid.UUID, version int) (*models.AuditEntry, error) {
	query := `
		SELECT ` + auditColumns + `
		FROM audit_entry
		WHERE string_id = $1 AND version = $2
	`

	entry, err := scanAudit(r.q.QueryRow(ctx, query, stringID, version))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, engine.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get audit entry: %w", err)
	}

	return entry, nil
}

// Latest retrieves the most recent entry for a string, or nil when the
// string has no history yet
func (r *AuditRepository) Latest(ctx context.Context, stringID uuid.UUID) (*models.AuditEntry, error) {
	query := `
		SELECT ` + auditColumns + `
		FROM audit_entry
		WHERE string_id = $1
		ORDER BY version DESC
		LIMIT 1
	`

	entry, err := scanAudit(r.q.QueryRow(ctx, query, stringID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest audit entry: %w", err)
	}

	return entry, nil
}

// ListByBatch retrieves all entries produced by one propagation run
func (r *AuditRepository) ListByBatch(ctx context.Context, batchID uuid.UUID) ([]*models.AuditEntry, error) {
	query := `
		SELECT ` + auditColumns + `
		FROM audit_entry
		WHERE batch_id = $1
		ORDER BY created_at
	`

	return r.list(ctx, query, batchID)
}

func (r *AuditRepository) list(ctx context.Context, query string, args ...any) ([]*models.AuditEntry, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []*models.AuditEntry
	for rows.Next() {
		entry, err := scanAudit(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit entries: %w", err)
	}

	return entries, nil
}

func scanAudit(row pgx.Row) (*models.AuditEntry, error) {
	entry := &models.AuditEntry{}
	err := row.Scan(
		&entry.ID,
		&entry.StringID,
		&entry.WorkspaceID,
		&entry.Version,
		&entry.ParentVersion,
		&entry.Changes,
		&entry.OriginalValue,
		&entry.StringValue,
		&entry.ChangeType,
		&entry.Actor,
		&entry.BatchID,
		&entry.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return entry, nil
}
