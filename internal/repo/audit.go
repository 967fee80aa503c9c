package repo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noah-isme/backend-erp/internal/audit"
)

// AuditLogs is the pgx-backed audit sink.
type AuditLogs struct {
	Pool *pgxpool.Pool
}

// InsertAuditLog writes one audit entry. Changes serialize to JSONB.
func (r *AuditLogs) InsertAuditLog(ctx context.Context, e audit.Entry) error {
	changes, err := json.Marshal(e.Changes)
	if err != nil {
		return fmt.Errorf("marshal changes: %w", err)
	}
	_, err = r.Pool.Exec(ctx, `
INSERT INTO audit_logs (id, entity_type, entity_id, action, user_id, changes, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		uuid.New(), e.EntityType, e.EntityID, e.Action, nullIfEmpty(e.UserID), changes, e.OccurredAt)
	if err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
