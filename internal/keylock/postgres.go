package keylock

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// Execer is satisfied by pgx.Tx and pooled connections.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// XactLock takes a transaction-scoped Postgres advisory lock for each key, in
// sorted order. Postgres releases them when the transaction ends, so no
// unlock call exists and a rolled back attempt cannot leak a lock.
func XactLock(ctx context.Context, tx Execer, keys ...string) error {
	for _, key := range Normalize(keys) {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, key); err != nil {
			return fmt.Errorf("failed to take advisory lock %q: %w", key, err)
		}
	}
	return nil
}
