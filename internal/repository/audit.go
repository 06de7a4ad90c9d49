package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"draw-engine/internal/model"
)

// AuditRepository stores the audit trail of critical operations.
type AuditRepository struct {
	pool *pgxpool.Pool
}

// NewAuditRepository creates a new AuditRepository instance.
func NewAuditRepository(pool *pgxpool.Pool) *AuditRepository {
	return &AuditRepository{pool: pool}
}

// Record appends an audit entry.
func (r *AuditRepository) Record(ctx context.Context, entry *model.AuditLog) error {
	const query = `
		INSERT INTO audit_logs (action, entity, entity_id, changes, actor, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING id, created_at
	`
	err := r.pool.QueryRow(ctx, query, entry.Action, entry.Entity, entry.EntityID, entry.Changes, entry.Actor).
		Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record audit log: %w", err)
	}
	return nil
}

// ListByEntity returns the audit trail of one entity, newest first.
func (r *AuditRepository) ListByEntity(ctx context.Context, entity, entityID string) ([]*model.AuditLog, error) {
	const query = `
		SELECT id, action, entity, entity_id, changes, actor, created_at
		FROM audit_logs
		WHERE entity = $1 AND entity_id = $2
		ORDER BY id DESC
	`

	rows, err := r.pool.Query(ctx, query, entity, entityID)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit logs: %w", err)
	}
	defer rows.Close()

	var logs []*model.AuditLog
	for rows.Next() {
		var l model.AuditLog
		if err := rows.Scan(&l.ID, &l.Action, &l.Entity, &l.EntityID, &l.Changes, &l.Actor, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}
		logs = append(logs, &l)
	}
	return logs, rows.Err()
}
