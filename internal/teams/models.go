package teams

import (
	"time"

	"github.com/google/uuid"
)

// MaxGroupSize is the largest group a team may grow to.
const MaxGroupSize = 4

// MinLockSize is the smallest group allowed to lock into a team.
const MinLockSize = 3

type InviteStatus string

const (
	StatusPending  InviteStatus = "pending"
	StatusAccepted InviteStatus = "accepted"
	StatusRejected InviteStatus = "rejected"
)

// IsValid reports whether s is a known invite status.
func (s InviteStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusRejected:
		return true
	default:
		return false
	}
}

// Invite is one edge of the invite ledger. Accepted invites that share a
// GroupID connect the members of that group.
type Invite struct {
	ID         uuid.UUID    `json:"invite_id"`
	SenderID   uuid.UUID    `json:"sender_id"`
	ReceiverID uuid.UUID    `json:"receiver_id"`
	GroupID    uuid.UUID    `json:"group_id"`
	Status     InviteStatus `json:"status"`
	CreatedAt  time.Time    `json:"created_at"`
}

// Involves reports whether userID is either endpoint of the invite.
func (i Invite) Involves(userID uuid.UUID) bool {
	return i.SenderID == userID || i.ReceiverID == userID
}

// Other returns the endpoint that is not userID.
func (i Invite) Other(userID uuid.UUID) uuid.UUID {
	if i.SenderID == userID {
		return i.ReceiverID
	}
	return i.SenderID
}

// Phase tells whether a group handle refers to a forming group or to a
// finalized team.
type Phase string

const (
	PhaseForming Phase = "forming"
	PhaseLocked  Phase = "locked"
)

// GroupHandle identifies a group in either phase. A forming handle carries
// the ledger group id, a locked handle the final team id.
type GroupHandle struct {
	Phase Phase     `json:"phase"`
	ID    uuid.UUID `json:"id"`
}

func FormingGroup(id uuid.UUID) GroupHandle {
	return GroupHandle{Phase: PhaseForming, ID: id}
}

func LockedTeam(id uuid.UUID) GroupHandle {
	return GroupHandle{Phase: PhaseLocked, ID: id}
}

func (h GroupHandle) String() string {
	return string(h.Phase) + ":" + h.ID.String()
}

// LockRecord tracks lock votes for one forming group. Members is the
// membership snapshot taken when the first vote was cast.
type LockRecord struct {
	GroupID     uuid.UUID     `json:"group_id"`
	Members     []uuid.UUID   `json:"members"`
	LockedBy    []uuid.UUID   `json:"locked_by"`
	IsLocked    bool          `json:"is_locked"`
	FinalTeamID uuid.NullUUID `json:"final_team_id"`
	LockedAt    *time.Time    `json:"locked_at,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
}

// HasVoted reports whether userID already requested the lock.
func (r *LockRecord) HasVoted(userID uuid.UUID) bool {
	return containsID(r.LockedBy, userID)
}

// Complete reports whether every snapshot member voted and the group size is
// lockable.
func (r *LockRecord) Complete() bool {
	n := len(r.Members)
	if n < MinLockSize || n > MaxGroupSize || len(r.LockedBy) != n {
		return false
	}
	for _, m := range r.Members {
		if !containsID(r.LockedBy, m) {
			return false
		}
	}
	return true
}

// Team is the immutable projection of a locked group.
type Team struct {
	ID       uuid.UUID   `json:"final_team_id"`
	GroupID  uuid.UUID   `json:"group_id"`
	Members  []uuid.UUID `json:"members"`
	LockedAt time.Time   `json:"locked_at"`
}

// Profile is the subset of a student profile this service reads and writes.
type Profile struct {
	UserID          uuid.UUID     `json:"user_id"`
	Name            string        `json:"name"`
	Skills          []string      `json:"skills"`
	TeamID          uuid.NullUUID `json:"team_id"`
	Stage1Completed bool          `json:"stage1_completed"`
}

// DisplayName falls back to "Unknown" for profiles without a name.
func (p *Profile) DisplayName() string {
	if p == nil || p.Name == "" {
		return "Unknown"
	}
	return p.Name
}

func containsID(ids []uuid.UUID, id uuid.UUID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func cloneIDs(ids []uuid.UUID) []uuid.UUID {
	if ids == nil {
		return nil
	}
	out := make([]uuid.UUID, len(ids))
	copy(out, ids)
	return out
}
