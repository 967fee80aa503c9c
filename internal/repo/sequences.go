package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Sequences is the pgx-backed entity number sequence store. The increment is
// one atomic statement, so concurrent callers each observe a distinct value.
type Sequences struct {
	Pool *pgxpool.Pool
}

// NextValue increments and returns the sequence for the entity type. An
// unseeded type reports found=false without error.
func (r *Sequences) NextValue(ctx context.Context, entityType string) (int64, bool, error) {
	var value int64
	err := r.Pool.QueryRow(ctx, `
UPDATE entity_sequences
SET value = value + 1
WHERE entity_type = $1
RETURNING value`, entityType).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("increment sequence %s: %w", entityType, err)
	}
	return value, true, nil
}
