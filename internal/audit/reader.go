package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Reader struct {
	pool *pgxpool.Pool
	mem  *memoryLog
}

func NewReader(pool *pgxpool.Pool) *Reader {
	return &Reader{pool: pool}
}

// ListByGroup returns the newest events recorded against groupID.
func (r *Reader) ListByGroup(ctx context.Context, groupID uuid.UUID, limit int) ([]Event, error) {
	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}

	if r.pool == nil {
		return r.listMemory(groupID, limit), nil
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, group_id, actor_user_id, action, meta, created_at
		FROM audit_log
		WHERE group_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, groupID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	out := make([]Event, 0)
	for rows.Next() {
		var (
			e        Event
			group    uuid.NullUUID
			actor    uuid.NullUUID
			metaJSON []byte
		)
		if err := rows.Scan(&e.ID, &group, &actor, &e.Action, &metaJSON, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}
		if group.Valid {
			e.GroupID = &group.UUID
		}
		if actor.Valid {
			e.ActorUserID = &actor.UUID
		}
		e.Meta = map[string]any{}
		if len(metaJSON) > 0 {
			if err := json.Unmarshal(metaJSON, &e.Meta); err != nil {
				return nil, fmt.Errorf("failed to decode audit meta: %w", err)
			}
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit log: %w", err)
	}

	return out, nil
}

func (r *Reader) listMemory(groupID uuid.UUID, limit int) []Event {
	out := make([]Event, 0)
	if r.mem == nil {
		return out
	}

	r.mem.mu.Lock()
	defer r.mem.mu.Unlock()
	for i := len(r.mem.events) - 1; i >= 0 && len(out) < limit; i-- {
		e := r.mem.events[i]
		if e.GroupID != nil && *e.GroupID == groupID {
			out = append(out, e)
		}
	}
	return out
}
