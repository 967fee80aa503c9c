package audit

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Entry is one recorded activity against a domain entity.
type Entry struct {
	EntityType string
	EntityID   string
	Action     string
	UserID     string
	Changes    map[string]any
	OccurredAt time.Time
}

// Store persists audit entries.
type Store interface {
	InsertAuditLog(ctx context.Context, e Entry) error
}

// Recorder writes best-effort audit records after successful mutations.
// Failures are logged and never propagated: the primary mutation has already
// committed and must not be rolled back by a sink problem.
type Recorder struct {
	Store   Store
	Enabled bool
	Logger  zerolog.Logger
}

// Record persists an audit entry when auditing is enabled.
func (r *Recorder) Record(ctx context.Context, e Entry) {
	if r == nil || !r.Enabled || r.Store == nil {
		return
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	if err := r.Store.InsertAuditLog(ctx, e); err != nil {
		r.Logger.Error().
			Err(err).
			Str("entity_type", e.EntityType).
			Str("entity_id", e.EntityID).
			Str("action", e.Action).
			Msg("audit record failed")
	}
}
