package audit

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

const (
	EventInviteSent       = "team.invite_sent"
	EventInviteResponded  = "team.invite_responded"
	EventInviteDeleted    = "team.invite_deleted"
	EventMemberLeft       = "team.member_left"
	EventLockVote         = "team.lock_vote"
	EventTeamLocked       = "team.locked"
	EventInterestRecorded = "team.interest_recorded"
	EventGroupsRepaired   = "team.groups_repaired"
	EventInvitesPurged    = "team.invites_purged"
)

const (
	memoryLogCapacity = 1000
	defaultListLimit  = 50
	maxListLimit      = 200
	detachedTimeout   = 2 * time.Second
)

// Event represents an audit log entry.
type Event struct {
	ID          uuid.UUID      `json:"id"`
	GroupID     *uuid.UUID     `json:"group_id,omitempty"`
	ActorUserID *uuid.UUID     `json:"actor_user_id,omitempty"`
	Action      string         `json:"action"`
	Meta        map[string]any `json:"meta"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Writer appends audit events to the audit_log table, or to a bounded
// in-memory log when running without Postgres.
type Writer struct {
	pool *pgxpool.Pool
	mem  *memoryLog
}

func NewWriter(pool *pgxpool.Pool) *Writer {
	return &Writer{pool: pool}
}

// NewMemory returns a writer and reader sharing one in-memory log.
func NewMemory() (*Writer, *Reader) {
	mem := &memoryLog{}
	return &Writer{mem: mem}, &Reader{mem: mem}
}

// LogParams contains parameters for logging an audit event.
type LogParams struct {
	GroupID     *uuid.UUID
	ActorUserID *uuid.UUID
	Action      string
	Meta        map[string]any
}

func (w *Writer) Log(ctx context.Context, params LogParams) error {
	if params.Meta == nil {
		params.Meta = map[string]any{}
	}

	if w.pool != nil {
		metaJSON, err := json.Marshal(params.Meta)
		if err != nil {
			log.Error().Err(err).Msg("Failed to marshal audit meta")
			return err
		}

		_, err = w.pool.Exec(ctx, `
			INSERT INTO audit_log (group_id, actor_user_id, action, meta)
			VALUES ($1, $2, $3, $4)
		`, toNullUUID(params.GroupID), toNullUUID(params.ActorUserID), params.Action, metaJSON)
		if err != nil {
			log.Error().Err(err).Str("action", params.Action).Msg("Failed to write audit log")
			return err
		}
	} else if w.mem != nil {
		w.mem.append(Event{
			ID:          uuid.New(),
			GroupID:     params.GroupID,
			ActorUserID: params.ActorUserID,
			Action:      params.Action,
			Meta:        params.Meta,
			CreatedAt:   time.Now().UTC(),
		})
	}

	log.Info().
		Str("action", params.Action).
		Interface("group_id", params.GroupID).
		Interface("actor_user_id", params.ActorUserID).
		Msg("Audit event logged")

	return nil
}

// Detached runs a write with a fresh context so that audit rows are not lost
// when the request that triggered them is cancelled after commit.
func (w *Writer) Detached(ctx context.Context, params LogParams) {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), detachedTimeout)
	defer cancel()
	if err := w.Log(writeCtx, params); err != nil {
		log.Error().Err(err).Str("action", params.Action).Msg("Failed to log audit event")
	}
}

func toNullUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}

func ptr(id uuid.UUID) *uuid.UUID {
	return &id
}

func (w *Writer) LogInviteSent(ctx context.Context, groupID, senderID, inviteID, receiverID uuid.UUID) {
	w.Detached(ctx, LogParams{
		GroupID:     ptr(groupID),
		ActorUserID: ptr(senderID),
		Action:      EventInviteSent,
		Meta: map[string]any{
			"invite_id":   inviteID.String(),
			"receiver_id": receiverID.String(),
		},
	})
}

func (w *Writer) LogInviteResponded(ctx context.Context, groupID, responderID, inviteID uuid.UUID, status string, movedFrom *uuid.UUID) {
	meta := map[string]any{
		"invite_id": inviteID.String(),
		"status":    status,
	}
	if movedFrom != nil {
		meta["moved_from_group_id"] = movedFrom.String()
	}
	w.Detached(ctx, LogParams{
		GroupID:     ptr(groupID),
		ActorUserID: ptr(responderID),
		Action:      EventInviteResponded,
		Meta:        meta,
	})
}

func (w *Writer) LogInviteDeleted(ctx context.Context, groupID, senderID, inviteID uuid.UUID) {
	w.Detached(ctx, LogParams{
		GroupID:     ptr(groupID),
		ActorUserID: ptr(senderID),
		Action:      EventInviteDeleted,
		Meta: map[string]any{
			"invite_id": inviteID.String(),
		},
	})
}

func (w *Writer) LogMemberLeft(ctx context.Context, groupID, userID uuid.UUID, newGroupID *uuid.UUID, invitesRemoved int64) {
	meta := map[string]any{
		"invites_removed": invitesRemoved,
	}
	if newGroupID != nil {
		meta["new_group_id"] = newGroupID.String()
	}
	w.Detached(ctx, LogParams{
		GroupID:     ptr(groupID),
		ActorUserID: ptr(userID),
		Action:      EventMemberLeft,
		Meta:        meta,
	})
}

func (w *Writer) LogLockVote(ctx context.Context, groupID, userID uuid.UUID, locked, total int) {
	w.Detached(ctx, LogParams{
		GroupID:     ptr(groupID),
		ActorUserID: ptr(userID),
		Action:      EventLockVote,
		Meta: map[string]any{
			"locked": locked,
			"total":  total,
		},
	})
}

func (w *Writer) LogTeamLocked(ctx context.Context, groupID, userID, finalTeamID uuid.UUID) {
	w.Detached(ctx, LogParams{
		GroupID:     ptr(groupID),
		ActorUserID: ptr(userID),
		Action:      EventTeamLocked,
		Meta: map[string]any{
			"final_team_id": finalTeamID.String(),
		},
	})
}

func (w *Writer) LogInterestRecorded(ctx context.Context, groupID, userID, projectID, teamID uuid.UUID, teamScore float64) {
	w.Detached(ctx, LogParams{
		GroupID:     ptr(groupID),
		ActorUserID: ptr(userID),
		Action:      EventInterestRecorded,
		Meta: map[string]any{
			"project_id": projectID.String(),
			"team_id":    teamID.String(),
			"team_score": teamScore,
		},
	})
}

func (w *Writer) LogGroupsRepaired(ctx context.Context, repaired int) {
	w.Detached(ctx, LogParams{
		Action: EventGroupsRepaired,
		Meta:   map[string]any{"repaired": repaired},
	})
}

func (w *Writer) LogInvitesPurged(ctx context.Context, rejected, pending int64, retentionDays int) {
	w.Detached(ctx, LogParams{
		Action: EventInvitesPurged,
		Meta: map[string]any{
			"rejected":       rejected,
			"pending":        pending,
			"retention_days": retentionDays,
		},
	})
}

type memoryLog struct {
	mu     sync.Mutex
	events []Event
}

func (m *memoryLog) append(e Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	if len(m.events) > memoryLogCapacity {
		m.events = m.events[len(m.events)-memoryLogCapacity:]
	}
}
