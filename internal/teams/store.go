package teams

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store persists the invite ledger, lock records, teams and profiles.
//
// All reads and writes of one operation run inside InTx. If fn returns an
// error nothing it wrote is kept.
type Store interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error

	// PurgeInvites deletes rejected invites, and pending invites, created
	// before the cutoff.
	PurgeInvites(ctx context.Context, before time.Time) (rejected, pending int64, err error)

	Ping(ctx context.Context) error
}

// Tx is the transactional view used by the service. Getters return (nil, nil)
// when the row does not exist. Invite lists are ordered by creation.
type Tx interface {
	// LockKeys blocks until the transaction holds every key. Keys arrive
	// normalized and stay held until commit or rollback.
	LockKeys(ctx context.Context, keys []string) error

	GetInvite(ctx context.Context, id uuid.UUID) (*Invite, error)
	// FindActiveInvite returns a non-rejected invite between a and b in either
	// direction.
	FindActiveInvite(ctx context.Context, a, b uuid.UUID) (*Invite, error)
	ListAcceptedByUser(ctx context.Context, userID uuid.UUID) ([]Invite, error)
	ListAcceptedByGroup(ctx context.Context, groupID uuid.UUID) ([]Invite, error)
	ListSent(ctx context.Context, senderID uuid.UUID) ([]Invite, error)
	ListPendingReceived(ctx context.Context, receiverID uuid.UUID) ([]Invite, error)
	CountPendingSent(ctx context.Context, senderID uuid.UUID) (int, error)
	// ListFormingGroupIDs returns the distinct group ids of accepted invites
	// whose group has not been locked into a team.
	ListFormingGroupIDs(ctx context.Context) ([]uuid.UUID, error)
	InsertInvite(ctx context.Context, inv *Invite) error
	UpdateInvite(ctx context.Context, id uuid.UUID, status InviteStatus, groupID uuid.UUID) error
	DeleteInvites(ctx context.Context, ids []uuid.UUID) (int64, error)

	// Membership is the materialized member set of each group, kept in step
	// with the ledger inside the same transaction.
	GetMembership(ctx context.Context, userID uuid.UUID) (uuid.UUID, bool, error)
	// ListGroupMembers returns members in join order.
	ListGroupMembers(ctx context.Context, groupID uuid.UUID) ([]uuid.UUID, error)
	// AddMember puts userID into groupID, moving them out of any other group.
	AddMember(ctx context.Context, groupID, userID uuid.UUID) error
	RemoveMember(ctx context.Context, userID uuid.UUID) error
	// RekeyGroup moves every member of from into to, keeping join order.
	RekeyGroup(ctx context.Context, from, to uuid.UUID) error

	GetLockRecord(ctx context.Context, groupID uuid.UUID) (*LockRecord, error)
	// FindLockRecordByMember prefers a locked record, then the newest one.
	FindLockRecordByMember(ctx context.Context, userID uuid.UUID) (*LockRecord, error)
	SaveLockRecord(ctx context.Context, rec *LockRecord) error
	// DeleteLockRecord removes an unlocked record. Locked records are kept.
	DeleteLockRecord(ctx context.Context, groupID uuid.UUID) error

	GetTeam(ctx context.Context, teamID uuid.UUID) (*Team, error)
	FindTeamByMember(ctx context.Context, userID uuid.UUID) (*Team, error)
	InsertTeam(ctx context.Context, team *Team) error

	GetProfile(ctx context.Context, userID uuid.UUID) (*Profile, error)
	ListProfiles(ctx context.Context) ([]Profile, error)
	ListProfilesByIDs(ctx context.Context, ids []uuid.UUID) ([]Profile, error)
	// AssignTeam sets team_id and stage1_completed, creating the profile row
	// if it does not exist yet.
	AssignTeam(ctx context.Context, userID, teamID uuid.UUID) error
}
