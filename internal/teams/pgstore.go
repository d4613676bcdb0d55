package teams

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aliuyar1234/projectportal/internal/keylock"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore is the Postgres-backed Store. uuid arrays cross the wire as text[]
// and are cast in SQL.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

func (s *PGStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *PGStore) PurgeInvites(ctx context.Context, before time.Time) (int64, int64, error) {
	rejected, err := s.pool.Exec(ctx, `
		DELETE FROM invites
		WHERE status = 'rejected' AND created_at < $1
	`, before)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to purge rejected invites: %w", err)
	}

	pending, err := s.pool.Exec(ctx, `
		DELETE FROM invites
		WHERE status = 'pending' AND created_at < $1
	`, before)
	if err != nil {
		return rejected.RowsAffected(), 0, fmt.Errorf("failed to purge stale pending invites: %w", err)
	}

	return rejected.RowsAffected(), pending.RowsAffected(), nil
}

func (s *PGStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) LockKeys(ctx context.Context, keys []string) error {
	return keylock.XactLock(ctx, t.tx, keys...)
}

const inviteColumns = `id, sender_id, receiver_id, group_id, status, created_at`

func scanInvite(row pgx.Row) (*Invite, error) {
	var inv Invite
	err := row.Scan(&inv.ID, &inv.SenderID, &inv.ReceiverID, &inv.GroupID, &inv.Status, &inv.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func (t *pgTx) queryInvites(ctx context.Context, query string, args ...any) ([]Invite, error) {
	rows, err := t.tx.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query invites: %w", err)
	}
	defer rows.Close()

	invites := make([]Invite, 0)
	for rows.Next() {
		var inv Invite
		if err := rows.Scan(&inv.ID, &inv.SenderID, &inv.ReceiverID, &inv.GroupID, &inv.Status, &inv.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan invite: %w", err)
		}
		invites = append(invites, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating invites: %w", err)
	}
	return invites, nil
}

func (t *pgTx) GetInvite(ctx context.Context, id uuid.UUID) (*Invite, error) {
	inv, err := scanInvite(t.tx.QueryRow(ctx, `
		SELECT `+inviteColumns+`
		FROM invites
		WHERE id = $1
		FOR UPDATE
	`, id))
	if err != nil {
		return nil, fmt.Errorf("failed to get invite: %w", err)
	}
	return inv, nil
}

func (t *pgTx) FindActiveInvite(ctx context.Context, a, b uuid.UUID) (*Invite, error) {
	inv, err := scanInvite(t.tx.QueryRow(ctx, `
		SELECT `+inviteColumns+`
		FROM invites
		WHERE status <> 'rejected'
		  AND ((sender_id = $1 AND receiver_id = $2) OR (sender_id = $2 AND receiver_id = $1))
		ORDER BY seq
		LIMIT 1
	`, a, b))
	if err != nil {
		return nil, fmt.Errorf("failed to find invite between users: %w", err)
	}
	return inv, nil
}

func (t *pgTx) ListAcceptedByUser(ctx context.Context, userID uuid.UUID) ([]Invite, error) {
	return t.queryInvites(ctx, `
		SELECT `+inviteColumns+`
		FROM invites
		WHERE status = 'accepted' AND (sender_id = $1 OR receiver_id = $1)
		ORDER BY seq
	`, userID)
}

func (t *pgTx) ListAcceptedByGroup(ctx context.Context, groupID uuid.UUID) ([]Invite, error) {
	return t.queryInvites(ctx, `
		SELECT `+inviteColumns+`
		FROM invites
		WHERE group_id = $1 AND status = 'accepted'
		ORDER BY seq
	`, groupID)
}

func (t *pgTx) ListSent(ctx context.Context, senderID uuid.UUID) ([]Invite, error) {
	return t.queryInvites(ctx, `
		SELECT `+inviteColumns+`
		FROM invites
		WHERE sender_id = $1
		ORDER BY seq
	`, senderID)
}

func (t *pgTx) ListPendingReceived(ctx context.Context, receiverID uuid.UUID) ([]Invite, error) {
	return t.queryInvites(ctx, `
		SELECT `+inviteColumns+`
		FROM invites
		WHERE receiver_id = $1 AND status = 'pending'
		ORDER BY seq
	`, receiverID)
}

func (t *pgTx) CountPendingSent(ctx context.Context, senderID uuid.UUID) (int, error) {
	var n int
	err := t.tx.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM invites
		WHERE sender_id = $1 AND status = 'pending'
	`, senderID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending invites: %w", err)
	}
	return n, nil
}

func (t *pgTx) ListFormingGroupIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT g.group_id
		FROM (
			SELECT group_id, seq FROM invites WHERE status = 'accepted'
			UNION ALL
			SELECT group_id, seq FROM group_members
		) g
		WHERE NOT EXISTS (SELECT 1 FROM teams tm WHERE tm.group_id = g.group_id)
		GROUP BY g.group_id
		ORDER BY MIN(g.seq)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list forming groups: %w", err)
	}
	defer rows.Close()

	ids := make([]uuid.UUID, 0)
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan group id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (t *pgTx) InsertInvite(ctx context.Context, inv *Invite) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO invites (id, sender_id, receiver_id, group_id, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, inv.ID, inv.SenderID, inv.ReceiverID, inv.GroupID, inv.Status, inv.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateInvite
		}
		return fmt.Errorf("failed to insert invite: %w", err)
	}
	return nil
}

func (t *pgTx) UpdateInvite(ctx context.Context, id uuid.UUID, status InviteStatus, groupID uuid.UUID) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE invites
		SET status = $2, group_id = $3
		WHERE id = $1
	`, id, status, groupID)
	if err != nil {
		return fmt.Errorf("failed to update invite: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrInviteNotFound
	}
	return nil
}

func (t *pgTx) DeleteInvites(ctx context.Context, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := t.tx.Exec(ctx, `
		DELETE FROM invites
		WHERE id = ANY($1::text[]::uuid[])
	`, idStrings(ids))
	if err != nil {
		return 0, fmt.Errorf("failed to delete invites: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (t *pgTx) GetMembership(ctx context.Context, userID uuid.UUID) (uuid.UUID, bool, error) {
	var groupID uuid.UUID
	err := t.tx.QueryRow(ctx, `
		SELECT group_id
		FROM group_members
		WHERE user_id = $1
	`, userID).Scan(&groupID)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("failed to get group membership: %w", err)
	}
	return groupID, true, nil
}

func (t *pgTx) ListGroupMembers(ctx context.Context, groupID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT user_id
		FROM group_members
		WHERE group_id = $1
		ORDER BY seq
	`, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to list group members: %w", err)
	}
	defer rows.Close()

	members := make([]uuid.UUID, 0, MaxGroupSize)
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan group member: %w", err)
		}
		members = append(members, id)
	}
	return members, rows.Err()
}

func (t *pgTx) AddMember(ctx context.Context, groupID, userID uuid.UUID) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO group_members (user_id, group_id)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE
		SET group_id = EXCLUDED.group_id
	`, userID, groupID)
	if err != nil {
		return fmt.Errorf("failed to add group member: %w", err)
	}
	return nil
}

func (t *pgTx) RemoveMember(ctx context.Context, userID uuid.UUID) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM group_members WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("failed to remove group member: %w", err)
	}
	return nil
}

func (t *pgTx) RekeyGroup(ctx context.Context, from, to uuid.UUID) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE group_members
		SET group_id = $2
		WHERE group_id = $1
	`, from, to)
	if err != nil {
		return fmt.Errorf("failed to rekey group: %w", err)
	}
	return nil
}

const lockColumns = `group_id, members::text[], locked_by::text[], is_locked, final_team_id, locked_at, created_at`

func scanLockRecord(row pgx.Row) (*LockRecord, error) {
	var (
		rec      LockRecord
		members  []string
		lockedBy []string
	)
	err := row.Scan(&rec.GroupID, &members, &lockedBy, &rec.IsLocked, &rec.FinalTeamID, &rec.LockedAt, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if rec.Members, err = parseIDs(members); err != nil {
		return nil, err
	}
	if rec.LockedBy, err = parseIDs(lockedBy); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (t *pgTx) GetLockRecord(ctx context.Context, groupID uuid.UUID) (*LockRecord, error) {
	rec, err := scanLockRecord(t.tx.QueryRow(ctx, `
		SELECT `+lockColumns+`
		FROM lock_records
		WHERE group_id = $1
		FOR UPDATE
	`, groupID))
	if err != nil {
		return nil, fmt.Errorf("failed to get lock record: %w", err)
	}
	return rec, nil
}

func (t *pgTx) FindLockRecordByMember(ctx context.Context, userID uuid.UUID) (*LockRecord, error) {
	rec, err := scanLockRecord(t.tx.QueryRow(ctx, `
		SELECT `+lockColumns+`
		FROM lock_records
		WHERE $1::uuid = ANY(members)
		ORDER BY is_locked DESC, created_at DESC
		LIMIT 1
		FOR UPDATE
	`, userID))
	if err != nil {
		return nil, fmt.Errorf("failed to find lock record: %w", err)
	}
	return rec, nil
}

func (t *pgTx) SaveLockRecord(ctx context.Context, rec *LockRecord) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO lock_records (group_id, members, locked_by, is_locked, final_team_id, locked_at, created_at)
		VALUES ($1, $2::text[]::uuid[], $3::text[]::uuid[], $4, $5, $6, $7)
		ON CONFLICT (group_id) DO UPDATE
		SET members = EXCLUDED.members,
		    locked_by = EXCLUDED.locked_by,
		    is_locked = EXCLUDED.is_locked,
		    final_team_id = EXCLUDED.final_team_id,
		    locked_at = EXCLUDED.locked_at
	`, rec.GroupID, idStrings(rec.Members), idStrings(rec.LockedBy), rec.IsLocked, rec.FinalTeamID, rec.LockedAt, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save lock record: %w", err)
	}
	return nil
}

func (t *pgTx) DeleteLockRecord(ctx context.Context, groupID uuid.UUID) error {
	_, err := t.tx.Exec(ctx, `
		DELETE FROM lock_records
		WHERE group_id = $1 AND NOT is_locked
	`, groupID)
	if err != nil {
		return fmt.Errorf("failed to delete lock record: %w", err)
	}
	return nil
}

func scanTeam(row pgx.Row) (*Team, error) {
	var (
		team    Team
		members []string
	)
	err := row.Scan(&team.ID, &team.GroupID, &members, &team.LockedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if team.Members, err = parseIDs(members); err != nil {
		return nil, err
	}
	return &team, nil
}

func (t *pgTx) GetTeam(ctx context.Context, teamID uuid.UUID) (*Team, error) {
	team, err := scanTeam(t.tx.QueryRow(ctx, `
		SELECT id, group_id, members::text[], locked_at
		FROM teams
		WHERE id = $1
	`, teamID))
	if err != nil {
		return nil, fmt.Errorf("failed to get team: %w", err)
	}
	return team, nil
}

func (t *pgTx) FindTeamByMember(ctx context.Context, userID uuid.UUID) (*Team, error) {
	team, err := scanTeam(t.tx.QueryRow(ctx, `
		SELECT id, group_id, members::text[], locked_at
		FROM teams
		WHERE $1::uuid = ANY(members)
		LIMIT 1
	`, userID))
	if err != nil {
		return nil, fmt.Errorf("failed to find team by member: %w", err)
	}
	return team, nil
}

func (t *pgTx) InsertTeam(ctx context.Context, team *Team) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO teams (id, group_id, members, locked_at)
		VALUES ($1, $2, $3::text[]::uuid[], $4)
	`, team.ID, team.GroupID, idStrings(team.Members), team.LockedAt)
	if err != nil {
		return fmt.Errorf("failed to insert team: %w", err)
	}
	return nil
}

const profileColumns = `user_id, name, skills, team_id, stage1_completed`

func (t *pgTx) queryProfiles(ctx context.Context, query string, args ...any) ([]Profile, error) {
	rows, err := t.tx.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query profiles: %w", err)
	}
	defer rows.Close()

	profiles := make([]Profile, 0)
	for rows.Next() {
		var p Profile
		if err := rows.Scan(&p.UserID, &p.Name, &p.Skills, &p.TeamID, &p.Stage1Completed); err != nil {
			return nil, fmt.Errorf("failed to scan profile: %w", err)
		}
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating profiles: %w", err)
	}
	return profiles, nil
}

func (t *pgTx) GetProfile(ctx context.Context, userID uuid.UUID) (*Profile, error) {
	profiles, err := t.queryProfiles(ctx, `
		SELECT `+profileColumns+`
		FROM profiles
		WHERE user_id = $1
	`, userID)
	if err != nil {
		return nil, err
	}
	if len(profiles) == 0 {
		return nil, nil
	}
	return &profiles[0], nil
}

func (t *pgTx) ListProfiles(ctx context.Context) ([]Profile, error) {
	return t.queryProfiles(ctx, `
		SELECT `+profileColumns+`
		FROM profiles
		ORDER BY name, user_id
	`)
}

func (t *pgTx) ListProfilesByIDs(ctx context.Context, ids []uuid.UUID) ([]Profile, error) {
	if len(ids) == 0 {
		return []Profile{}, nil
	}
	return t.queryProfiles(ctx, `
		SELECT `+profileColumns+`
		FROM profiles
		WHERE user_id = ANY($1::text[]::uuid[])
		ORDER BY array_position($1::text[]::uuid[], user_id)
	`, idStrings(ids))
}

func (t *pgTx) AssignTeam(ctx context.Context, userID, teamID uuid.UUID) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO profiles (user_id, team_id, stage1_completed)
		VALUES ($1, $2, TRUE)
		ON CONFLICT (user_id) DO UPDATE
		SET team_id = EXCLUDED.team_id,
		    stage1_completed = TRUE
	`, userID, teamID)
	if err != nil {
		return fmt.Errorf("failed to assign team to profile: %w", err)
	}
	return nil
}

func idStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

func parseIDs(values []string) ([]uuid.UUID, error) {
	out := make([]uuid.UUID, 0, len(values))
	for _, v := range values {
		id, err := uuid.Parse(v)
		if err != nil {
			return nil, fmt.Errorf("invalid uuid %q: %w", v, err)
		}
		out = append(out, id)
	}
	return out, nil
}
