package teams

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemStore is an in-memory Store for local runs and tests. Transactions are
// serialized and roll back by restoring a snapshot.
type MemStore struct {
	mu    sync.Mutex
	state memState
}

type memState struct {
	seq      int64
	invites  map[uuid.UUID]memInvite
	members  map[uuid.UUID]memMember
	locks    map[uuid.UUID]LockRecord
	teams    map[uuid.UUID]Team
	profiles map[uuid.UUID]Profile
}

type memInvite struct {
	Invite
	seq int64
}

type memMember struct {
	groupID uuid.UUID
	seq     int64
}

func NewMemStore() *MemStore {
	return &MemStore{state: memState{
		invites:  make(map[uuid.UUID]memInvite),
		members:  make(map[uuid.UUID]memMember),
		locks:    make(map[uuid.UUID]LockRecord),
		teams:    make(map[uuid.UUID]Team),
		profiles: make(map[uuid.UUID]Profile),
	}}
}

// PutProfile creates or replaces a profile.
func (s *MemStore) PutProfile(p Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.Skills = append([]string(nil), p.Skills...)
	s.state.profiles[p.UserID] = p
}

func (s *MemStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.state.clone()
	if err := fn(&memTx{st: &s.state}); err != nil {
		s.state = snapshot
		return err
	}
	return nil
}

func (s *MemStore) PurgeInvites(ctx context.Context, before time.Time) (int64, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rejected, pending int64
	for id, inv := range s.state.invites {
		if !inv.CreatedAt.Before(before) {
			continue
		}
		switch inv.Status {
		case StatusRejected:
			rejected++
		case StatusPending:
			pending++
		default:
			continue
		}
		delete(s.state.invites, id)
	}
	return rejected, pending, nil
}

func (s *MemStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (st memState) clone() memState {
	out := memState{
		seq:      st.seq,
		invites:  make(map[uuid.UUID]memInvite, len(st.invites)),
		members:  make(map[uuid.UUID]memMember, len(st.members)),
		locks:    make(map[uuid.UUID]LockRecord, len(st.locks)),
		teams:    make(map[uuid.UUID]Team, len(st.teams)),
		profiles: make(map[uuid.UUID]Profile, len(st.profiles)),
	}
	for k, v := range st.invites {
		out.invites[k] = v
	}
	for k, v := range st.members {
		out.members[k] = v
	}
	for k, v := range st.locks {
		out.locks[k] = copyLockRecord(v)
	}
	for k, v := range st.teams {
		v.Members = cloneIDs(v.Members)
		out.teams[k] = v
	}
	for k, v := range st.profiles {
		v.Skills = append([]string(nil), v.Skills...)
		out.profiles[k] = v
	}
	return out
}

func copyLockRecord(r LockRecord) LockRecord {
	r.Members = cloneIDs(r.Members)
	r.LockedBy = cloneIDs(r.LockedBy)
	if r.LockedAt != nil {
		t := *r.LockedAt
		r.LockedAt = &t
	}
	return r
}

type memTx struct {
	st *memState
}

// LockKeys is a no-op: memory transactions already run one at a time.
func (tx *memTx) LockKeys(context.Context, []string) error {
	return nil
}

func (tx *memTx) invitesWhere(match func(Invite) bool) []Invite {
	found := make([]memInvite, 0)
	for _, inv := range tx.st.invites {
		if match(inv.Invite) {
			found = append(found, inv)
		}
	}
	sort.Slice(found, func(i, j int) bool {
		if !found[i].CreatedAt.Equal(found[j].CreatedAt) {
			return found[i].CreatedAt.Before(found[j].CreatedAt)
		}
		return found[i].seq < found[j].seq
	})

	out := make([]Invite, len(found))
	for i, inv := range found {
		out[i] = inv.Invite
	}
	return out
}

func (tx *memTx) GetInvite(ctx context.Context, id uuid.UUID) (*Invite, error) {
	inv, ok := tx.st.invites[id]
	if !ok {
		return nil, nil
	}
	out := inv.Invite
	return &out, nil
}

func (tx *memTx) FindActiveInvite(ctx context.Context, a, b uuid.UUID) (*Invite, error) {
	found := tx.invitesWhere(func(inv Invite) bool {
		return inv.Status != StatusRejected && inv.Involves(a) && inv.Involves(b)
	})
	if len(found) == 0 {
		return nil, nil
	}
	return &found[0], nil
}

func (tx *memTx) ListAcceptedByUser(ctx context.Context, userID uuid.UUID) ([]Invite, error) {
	return tx.invitesWhere(func(inv Invite) bool {
		return inv.Status == StatusAccepted && inv.Involves(userID)
	}), nil
}

func (tx *memTx) ListAcceptedByGroup(ctx context.Context, groupID uuid.UUID) ([]Invite, error) {
	return tx.invitesWhere(func(inv Invite) bool {
		return inv.Status == StatusAccepted && inv.GroupID == groupID
	}), nil
}

func (tx *memTx) ListSent(ctx context.Context, senderID uuid.UUID) ([]Invite, error) {
	return tx.invitesWhere(func(inv Invite) bool {
		return inv.SenderID == senderID
	}), nil
}

func (tx *memTx) ListPendingReceived(ctx context.Context, receiverID uuid.UUID) ([]Invite, error) {
	return tx.invitesWhere(func(inv Invite) bool {
		return inv.Status == StatusPending && inv.ReceiverID == receiverID
	}), nil
}

func (tx *memTx) CountPendingSent(ctx context.Context, senderID uuid.UUID) (int, error) {
	n := 0
	for _, inv := range tx.st.invites {
		if inv.Status == StatusPending && inv.SenderID == senderID {
			n++
		}
	}
	return n, nil
}

func (tx *memTx) ListFormingGroupIDs(ctx context.Context) ([]uuid.UUID, error) {
	locked := make(map[uuid.UUID]bool, len(tx.st.teams))
	for _, team := range tx.st.teams {
		locked[team.GroupID] = true
	}

	seen := make(map[uuid.UUID]bool)
	ids := make([]uuid.UUID, 0)
	for _, inv := range tx.invitesWhere(func(inv Invite) bool { return inv.Status == StatusAccepted }) {
		if locked[inv.GroupID] || seen[inv.GroupID] {
			continue
		}
		seen[inv.GroupID] = true
		ids = append(ids, inv.GroupID)
	}
	for _, m := range tx.st.members {
		if locked[m.groupID] || seen[m.groupID] {
			continue
		}
		seen[m.groupID] = true
		ids = append(ids, m.groupID)
	}
	return ids, nil
}

func (tx *memTx) InsertInvite(ctx context.Context, inv *Invite) error {
	if existing, _ := tx.FindActiveInvite(ctx, inv.SenderID, inv.ReceiverID); existing != nil && inv.Status != StatusRejected {
		return ErrDuplicateInvite
	}
	tx.st.seq++
	tx.st.invites[inv.ID] = memInvite{Invite: *inv, seq: tx.st.seq}
	return nil
}

func (tx *memTx) UpdateInvite(ctx context.Context, id uuid.UUID, status InviteStatus, groupID uuid.UUID) error {
	inv, ok := tx.st.invites[id]
	if !ok {
		return ErrInviteNotFound
	}
	inv.Status = status
	inv.GroupID = groupID
	tx.st.invites[id] = inv
	return nil
}

func (tx *memTx) DeleteInvites(ctx context.Context, ids []uuid.UUID) (int64, error) {
	var n int64
	for _, id := range ids {
		if _, ok := tx.st.invites[id]; ok {
			delete(tx.st.invites, id)
			n++
		}
	}
	return n, nil
}

func (tx *memTx) GetMembership(ctx context.Context, userID uuid.UUID) (uuid.UUID, bool, error) {
	m, ok := tx.st.members[userID]
	return m.groupID, ok, nil
}

func (tx *memTx) ListGroupMembers(ctx context.Context, groupID uuid.UUID) ([]uuid.UUID, error) {
	type row struct {
		id  uuid.UUID
		seq int64
	}
	rows := make([]row, 0, MaxGroupSize)
	for id, m := range tx.st.members {
		if m.groupID == groupID {
			rows = append(rows, row{id: id, seq: m.seq})
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].seq < rows[j].seq })

	out := make([]uuid.UUID, len(rows))
	for i, r := range rows {
		out[i] = r.id
	}
	return out, nil
}

func (tx *memTx) AddMember(ctx context.Context, groupID, userID uuid.UUID) error {
	if m, ok := tx.st.members[userID]; ok {
		m.groupID = groupID
		tx.st.members[userID] = m
		return nil
	}
	tx.st.seq++
	tx.st.members[userID] = memMember{groupID: groupID, seq: tx.st.seq}
	return nil
}

func (tx *memTx) RemoveMember(ctx context.Context, userID uuid.UUID) error {
	delete(tx.st.members, userID)
	return nil
}

func (tx *memTx) RekeyGroup(ctx context.Context, from, to uuid.UUID) error {
	for id, m := range tx.st.members {
		if m.groupID == from {
			m.groupID = to
			tx.st.members[id] = m
		}
	}
	return nil
}

func (tx *memTx) GetLockRecord(ctx context.Context, groupID uuid.UUID) (*LockRecord, error) {
	rec, ok := tx.st.locks[groupID]
	if !ok {
		return nil, nil
	}
	out := copyLockRecord(rec)
	return &out, nil
}

func (tx *memTx) FindLockRecordByMember(ctx context.Context, userID uuid.UUID) (*LockRecord, error) {
	var best *LockRecord
	for _, rec := range tx.st.locks {
		if !containsID(rec.Members, userID) {
			continue
		}
		candidate := copyLockRecord(rec)
		switch {
		case best == nil:
			best = &candidate
		case candidate.IsLocked && !best.IsLocked:
			best = &candidate
		case candidate.IsLocked == best.IsLocked && candidate.CreatedAt.After(best.CreatedAt):
			best = &candidate
		}
	}
	return best, nil
}

func (tx *memTx) SaveLockRecord(ctx context.Context, rec *LockRecord) error {
	tx.st.locks[rec.GroupID] = copyLockRecord(*rec)
	return nil
}

func (tx *memTx) DeleteLockRecord(ctx context.Context, groupID uuid.UUID) error {
	if rec, ok := tx.st.locks[groupID]; ok && !rec.IsLocked {
		delete(tx.st.locks, groupID)
	}
	return nil
}

func (tx *memTx) GetTeam(ctx context.Context, teamID uuid.UUID) (*Team, error) {
	team, ok := tx.st.teams[teamID]
	if !ok {
		return nil, nil
	}
	team.Members = cloneIDs(team.Members)
	return &team, nil
}

func (tx *memTx) FindTeamByMember(ctx context.Context, userID uuid.UUID) (*Team, error) {
	for _, team := range tx.st.teams {
		if containsID(team.Members, userID) {
			team.Members = cloneIDs(team.Members)
			return &team, nil
		}
	}
	return nil, nil
}

func (tx *memTx) InsertTeam(ctx context.Context, team *Team) error {
	stored := *team
	stored.Members = cloneIDs(team.Members)
	tx.st.teams[team.ID] = stored
	return nil
}

func (tx *memTx) GetProfile(ctx context.Context, userID uuid.UUID) (*Profile, error) {
	p, ok := tx.st.profiles[userID]
	if !ok {
		return nil, nil
	}
	p.Skills = append([]string(nil), p.Skills...)
	return &p, nil
}

func (tx *memTx) ListProfiles(ctx context.Context) ([]Profile, error) {
	out := make([]Profile, 0, len(tx.st.profiles))
	for _, p := range tx.st.profiles {
		p.Skills = append([]string(nil), p.Skills...)
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].UserID.String() < out[j].UserID.String()
	})
	return out, nil
}

func (tx *memTx) ListProfilesByIDs(ctx context.Context, ids []uuid.UUID) ([]Profile, error) {
	out := make([]Profile, 0, len(ids))
	for _, id := range ids {
		if p, ok := tx.st.profiles[id]; ok {
			p.Skills = append([]string(nil), p.Skills...)
			out = append(out, p)
		}
	}
	return out, nil
}

func (tx *memTx) AssignTeam(ctx context.Context, userID, teamID uuid.UUID) error {
	p, ok := tx.st.profiles[userID]
	if !ok {
		p = Profile{UserID: userID}
	}
	p.TeamID = uuid.NullUUID{UUID: teamID, Valid: true}
	p.Stage1Completed = true
	tx.st.profiles[userID] = p
	return nil
}
