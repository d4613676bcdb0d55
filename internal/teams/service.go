package teams

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aliuyar1234/projectportal/internal/keylock"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// maxLockAttempts bounds how often an operation re-resolves its lock keys
// after a concurrent membership change moved them.
const maxLockAttempts = 3

// Notifier receives best-effort events after a mutation has committed.
type Notifier interface {
	InviteReceived(receiverID, inviteID, senderID uuid.UUID)
	InviteResponded(senderID, inviteID uuid.UUID, status string, receiverID uuid.UUID)
	MemberLeft(memberID, leaverID uuid.UUID)
	GroupLocked(memberID, groupID, finalTeamID uuid.UUID)
}

type Service struct {
	store    Store
	notifier Notifier
	now      func() time.Time
	newID    func() uuid.UUID
}

type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDGenerator overrides how invite, group and team ids are minted.
func WithIDGenerator(newID func() uuid.UUID) Option {
	return func(s *Service) { s.newID = newID }
}

func NewService(store Store, notifier Notifier, opts ...Option) *Service {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	s := &Service{
		store:    store,
		notifier: notifier,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.New,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store exposes the underlying store for health checks and maintenance jobs.
func (s *Service) Store() Store {
	return s.store
}

type nopNotifier struct{}

func (nopNotifier) InviteReceived(uuid.UUID, uuid.UUID, uuid.UUID)          {}
func (nopNotifier) InviteResponded(uuid.UUID, uuid.UUID, string, uuid.UUID) {}
func (nopNotifier) MemberLeft(uuid.UUID, uuid.UUID)                         {}
func (nopNotifier) GroupLocked(uuid.UUID, uuid.UUID, uuid.UUID)             {}

func userKey(id uuid.UUID) string  { return "user:" + id.String() }
func groupKey(id uuid.UUID) string { return "group:" + id.String() }

// keysFunc computes the lock keys an operation needs from current state.
type keysFunc func(ctx context.Context, tx Tx) ([]string, error)

// guarded runs fn in a single transaction that first locks the keys returned
// by keys and then re-reads them. The locks belong to the transaction, so an
// operation never needs a second connection while it waits. Events queued by
// fn are emitted only after commit.
func (s *Service) guarded(ctx context.Context, keys keysFunc, fn func(tx Tx, out *outbox) error) error {
	for attempt := 0; attempt < maxLockAttempts; attempt++ {
		var out outbox
		err := s.store.InTx(ctx, func(tx Tx) error {
			want, err := keys(ctx, tx)
			if err != nil {
				return err
			}
			want = keylock.Normalize(want)
			if err := tx.LockKeys(ctx, want); err != nil {
				return fmt.Errorf("failed to acquire group locks: %w", err)
			}

			got, err := keys(ctx, tx)
			if err != nil {
				return err
			}
			if !keylock.Equal(want, keylock.Normalize(got)) {
				log.Debug().Strs("keys", want).Int("attempt", attempt+1).Msg("Lock keys moved, retrying")
				return errKeysMoved
			}
			return fn(tx, &out)
		})
		if errors.Is(err, errKeysMoved) {
			continue
		}
		if err != nil {
			return err
		}
		out.flush()
		return nil
	}
	return ErrConcurrentMutation
}

// errKeysMoved rolls back an attempt whose keys changed before they were locked.
var errKeysMoved = errors.New("lock keys moved")

// outbox holds notifications until the transaction that caused them commits.
type outbox struct {
	events []func()
}

func (o *outbox) add(fn func()) {
	o.events = append(o.events, fn)
}

func (o *outbox) flush() {
	for _, fn := range o.events {
		fn()
	}
}

// currentGroup returns the group the user belongs to.
func currentGroup(ctx context.Context, tx Tx, userID uuid.UUID) (uuid.UUID, bool, error) {
	return tx.GetMembership(ctx, userID)
}

func groupMembers(ctx context.Context, tx Tx, groupID uuid.UUID) ([]uuid.UUID, error) {
	return tx.ListGroupMembers(ctx, groupID)
}

func inLockedTeam(ctx context.Context, tx Tx, userID uuid.UUID) (bool, error) {
	team, err := tx.FindTeamByMember(ctx, userID)
	if err != nil {
		return false, err
	}
	return team != nil, nil
}

// groupKeysFor appends the group key of each user that is currently grouped.
func groupKeysFor(ctx context.Context, tx Tx, keys []string, users ...uuid.UUID) ([]string, error) {
	for _, u := range users {
		g, ok, err := currentGroup(ctx, tx, u)
		if err != nil {
			return nil, err
		}
		if ok {
			keys = append(keys, groupKey(g))
		}
	}
	return keys, nil
}

// SendInvite records a pending invite from sender to receiver, tagged with the
// sender's current group or a freshly minted group id.
func (s *Service) SendInvite(ctx context.Context, senderID, receiverID uuid.UUID) (*Invite, error) {
	if senderID == receiverID {
		return nil, ErrSelfInvite
	}

	keys := func(ctx context.Context, tx Tx) ([]string, error) {
		return groupKeysFor(ctx, tx, []string{userKey(senderID), userKey(receiverID)}, senderID, receiverID)
	}

	var invite *Invite
	err := s.guarded(ctx, keys, func(tx Tx, out *outbox) error {
		locked, err := inLockedTeam(ctx, tx, senderID)
		if err != nil {
			return err
		}
		if locked {
			return ErrSenderLocked
		}
		if locked, err = inLockedTeam(ctx, tx, receiverID); err != nil {
			return err
		} else if locked {
			return ErrReceiverLocked
		}

		existing, err := tx.FindActiveInvite(ctx, senderID, receiverID)
		if err != nil {
			return err
		}
		if existing != nil {
			return ErrDuplicateInvite
		}

		groupID, grouped, err := currentGroup(ctx, tx, senderID)
		if err != nil {
			return err
		}
		size := 1
		if grouped {
			members, err := groupMembers(ctx, tx, groupID)
			if err != nil {
				return err
			}
			size = len(members)
		} else {
			groupID = s.newID()
		}
		if size >= MaxGroupSize {
			return ErrGroupFull
		}

		pending, err := tx.CountPendingSent(ctx, senderID)
		if err != nil {
			return err
		}
		if available := MaxGroupSize - size; pending >= available {
			if available == 1 {
				return ErrPendingCapacity.WithMessage("Group has %d members. Can invite 1 more person.", size)
			}
			return ErrPendingCapacity.WithMessage("Group has %d members. Already have %d pending invites.", size, pending)
		}

		invite = &Invite{
			ID:         s.newID(),
			SenderID:   senderID,
			ReceiverID: receiverID,
			GroupID:    groupID,
			Status:     StatusPending,
			CreatedAt:  s.now(),
		}
		if err := tx.InsertInvite(ctx, invite); err != nil {
			return err
		}

		inv := *invite
		out.add(func() { s.notifier.InviteReceived(inv.ReceiverID, inv.ID, inv.SenderID) })
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("invite_id", invite.ID.String()).
		Str("sender_id", senderID.String()).
		Str("receiver_id", receiverID.String()).
		Str("group_id", invite.GroupID.String()).
		Msg("Invite sent")
	return invite, nil
}

// ParseAction validates a respond action.
func ParseAction(action string) (InviteStatus, error) {
	switch InviteStatus(action) {
	case StatusAccepted, StatusRejected:
		return InviteStatus(action), nil
	default:
		return "", ErrInvalidAction
	}
}

// RespondResult describes the outcome of RespondToInvite.
type RespondResult struct {
	Invite Invite
	// MovedFrom is set when accepting moved the responder out of another group.
	MovedFrom uuid.NullUUID
	// InviterMovedFrom is set when the inviter was pulled into the
	// responder's group.
	InviterMovedFrom uuid.NullUUID
}

// RespondToInvite lets the receiver accept or reject a pending invite.
func (s *Service) RespondToInvite(ctx context.Context, inviteID, responderID uuid.UUID, action InviteStatus) (*RespondResult, error) {
	if action != StatusAccepted && action != StatusRejected {
		return nil, ErrInvalidAction
	}

	keys := func(ctx context.Context, tx Tx) ([]string, error) {
		keys := []string{userKey(responderID)}
		inv, err := tx.GetInvite(ctx, inviteID)
		if err != nil || inv == nil {
			return keys, err
		}
		keys = append(keys, userKey(inv.SenderID), groupKey(inv.GroupID))
		return groupKeysFor(ctx, tx, keys, responderID, inv.SenderID)
	}

	var result RespondResult
	err := s.guarded(ctx, keys, func(tx Tx, out *outbox) error {
		inv, err := tx.GetInvite(ctx, inviteID)
		if err != nil {
			return err
		}
		if inv == nil {
			return ErrInviteNotFound
		}
		if inv.ReceiverID != responderID {
			return ErrNotReceiver
		}

		switch {
		case inv.Status == action:
			return ErrAlreadyInStatus.WithMessage("Invite is already %s.", inv.Status)
		case inv.Status == StatusAccepted:
			return ErrRejectAccepted
		case inv.Status == StatusRejected:
			return ErrAcceptRejected
		}

		if action == StatusRejected {
			if err := tx.UpdateInvite(ctx, inv.ID, StatusRejected, inv.GroupID); err != nil {
				return err
			}
			inv.Status = StatusRejected
		} else {
			m, err := s.accept(ctx, tx, inv, out)
			if err != nil {
				return err
			}
			result.MovedFrom = m.responder
			result.InviterMovedFrom = m.sender
		}

		result.Invite = *inv
		sent := *inv
		out.add(func() { s.notifier.InviteResponded(sent.SenderID, sent.ID, string(sent.Status), sent.ReceiverID) })
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("invite_id", inviteID.String()).
		Str("responder_id", responderID.String()).
		Str("status", string(action)).
		Str("group_id", result.Invite.GroupID.String()).
		Msg("Invite responded")
	return &result, nil
}

// moved records the groups the responder and inviter were moved out of.
type moved struct {
	responder uuid.NullUUID
	sender    uuid.NullUUID
}

// accept merges the responder into the target group and marks inv accepted.
// inv is updated in place.
func (s *Service) accept(ctx context.Context, tx Tx, inv *Invite, out *outbox) (moved, error) {
	responderID := inv.ReceiverID

	if locked, err := inLockedTeam(ctx, tx, responderID); err != nil {
		return moved{}, err
	} else if locked {
		return moved{}, ErrResponderLocked
	}
	if locked, err := inLockedTeam(ctx, tx, inv.SenderID); err != nil {
		return moved{}, err
	} else if locked {
		return moved{}, ErrInviterLocked
	}

	respGroup, respGrouped, err := currentGroup(ctx, tx, responderID)
	if err != nil {
		return moved{}, err
	}
	senderGroup, senderGrouped, err := currentGroup(ctx, tx, inv.SenderID)
	if err != nil {
		return moved{}, err
	}

	// The responder's group wins while it has a free seat; otherwise the
	// inviter's group is the target.
	var target uuid.UUID
	respFull := false
	if respGrouped {
		members, err := groupMembers(ctx, tx, respGroup)
		if err != nil {
			return moved{}, err
		}
		respFull = len(members) >= MaxGroupSize
	}
	switch {
	case respGrouped && !respFull:
		target = respGroup
	case senderGrouped:
		target = senderGroup
	default:
		if target, err = s.inviterGroup(ctx, tx, inv); err != nil {
			return moved{}, err
		}
	}

	targetMembers, err := groupMembers(ctx, tx, target)
	if err != nil {
		return moved{}, err
	}
	future := union(targetMembers, inv.SenderID, responderID)
	if len(future) > MaxGroupSize {
		return moved{}, ErrGroupWouldExceed
	}

	var result moved
	if respGrouped && respGroup != target {
		if err := s.moveOut(ctx, tx, respGroup, responderID, target, out); err != nil {
			return moved{}, err
		}
		result.responder = uuid.NullUUID{UUID: respGroup, Valid: true}
	}
	if senderGrouped && senderGroup != target {
		if err := s.moveOut(ctx, tx, senderGroup, inv.SenderID, target, out); err != nil {
			return moved{}, err
		}
		result.sender = uuid.NullUUID{UUID: senderGroup, Valid: true}
	}

	if err := tx.UpdateInvite(ctx, inv.ID, StatusAccepted, target); err != nil {
		return moved{}, err
	}
	for _, m := range []uuid.UUID{inv.SenderID, responderID} {
		if err := tx.AddMember(ctx, target, m); err != nil {
			return moved{}, err
		}
	}
	if len(future) != len(targetMembers) {
		if err := tx.DeleteLockRecord(ctx, target); err != nil {
			return moved{}, err
		}
	}

	inv.Status = StatusAccepted
	inv.GroupID = target
	return result, nil
}

// moveOut takes userID out of its current group ahead of joining target. The
// members left behind are star-rebuilt under the same id, or released when
// only one remains.
func (s *Service) moveOut(ctx context.Context, tx Tx, from, userID, target uuid.UUID, out *outbox) error {
	remaining, _, err := s.retire(ctx, tx, from, userID, from)
	if err != nil {
		return err
	}
	for _, m := range remaining {
		member := m
		out.add(func() { s.notifier.MemberLeft(member, userID) })
	}
	log.Info().
		Str("user_id", userID.String()).
		Str("from_group_id", from.String()).
		Str("to_group_id", target.String()).
		Msg("Member moved between groups")
	return nil
}

// inviterGroup returns the group id carried by the invite, unless another
// group has since been built under it, in which case a fresh id is minted.
func (s *Service) inviterGroup(ctx context.Context, tx Tx, inv *Invite) (uuid.UUID, error) {
	members, err := groupMembers(ctx, tx, inv.GroupID)
	if err != nil {
		return uuid.Nil, err
	}
	if len(members) == 0 || containsID(members, inv.SenderID) {
		return inv.GroupID, nil
	}
	return s.newID(), nil
}

// retire removes userID from groupID. All of the user's accepted invites are
// deleted, the remaining members are re-keyed and reconnected as a star under
// newGroupID, and any unfinished lock vote on the old group is discarded. A
// single remaining member is released from the group.
func (s *Service) retire(ctx context.Context, tx Tx, groupID, userID, newGroupID uuid.UUID) ([]uuid.UUID, int64, error) {
	members, err := groupMembers(ctx, tx, groupID)
	if err != nil {
		return nil, 0, err
	}
	remaining := without(members, userID)

	mine, err := tx.ListAcceptedByUser(ctx, userID)
	if err != nil {
		return nil, 0, err
	}
	ids := make([]uuid.UUID, 0, len(mine))
	for _, inv := range mine {
		ids = append(ids, inv.ID)
	}
	removed, err := tx.DeleteInvites(ctx, ids)
	if err != nil {
		return nil, 0, err
	}

	if err := tx.RemoveMember(ctx, userID); err != nil {
		return nil, 0, err
	}
	switch {
	case len(remaining) == 1:
		if err := tx.RemoveMember(ctx, remaining[0]); err != nil {
			return nil, 0, err
		}
	case len(remaining) > 1 && newGroupID != groupID:
		if err := tx.RekeyGroup(ctx, groupID, newGroupID); err != nil {
			return nil, 0, err
		}
	}

	if err := s.rebuildStar(ctx, tx, remaining, newGroupID); err != nil {
		return nil, 0, err
	}
	if err := tx.DeleteLockRecord(ctx, groupID); err != nil {
		return nil, 0, err
	}
	return remaining, removed, nil
}

// rebuildStar replaces every live invite among members with accepted edges
// from the first member to each other member, tagged with groupID. A single
// member keeps no edges, which dissolves the group.
func (s *Service) rebuildStar(ctx context.Context, tx Tx, members []uuid.UUID, groupID uuid.UUID) error {
	stale := make([]uuid.UUID, 0)
	for i := 0; i < len(members); i++ {
		for j := i + 1; j < len(members); j++ {
			inv, err := tx.FindActiveInvite(ctx, members[i], members[j])
			if err != nil {
				return err
			}
			if inv != nil {
				stale = append(stale, inv.ID)
			}
		}
	}
	if _, err := tx.DeleteInvites(ctx, stale); err != nil {
		return err
	}

	now := s.now()
	for _, edge := range StarEdges(members) {
		if err := tx.InsertInvite(ctx, &Invite{
			ID:         s.newID(),
			SenderID:   edge[0],
			ReceiverID: edge[1],
			GroupID:    groupID,
			Status:     StatusAccepted,
			CreatedAt:  now,
		}); err != nil {
			return err
		}
	}
	return nil
}

// LeaveResult describes the outcome of LeaveGroup.
type LeaveResult struct {
	GroupID        uuid.UUID
	NewGroupID     uuid.NullUUID
	Remaining      []uuid.UUID
	InvitesRemoved int64
}

// LeaveGroup removes the user from their forming group. Remaining members
// are re-keyed to a fresh group id and reconnected.
func (s *Service) LeaveGroup(ctx context.Context, userID uuid.UUID) (*LeaveResult, error) {
	keys := func(ctx context.Context, tx Tx) ([]string, error) {
		return groupKeysFor(ctx, tx, []string{userKey(userID)}, userID)
	}

	var result LeaveResult
	err := s.guarded(ctx, keys, func(tx Tx, out *outbox) error {
		locked, err := inLockedTeam(ctx, tx, userID)
		if err != nil {
			return err
		}
		if locked {
			return ErrLeaveLocked
		}

		groupID, grouped, err := currentGroup(ctx, tx, userID)
		if err != nil {
			return err
		}
		if !grouped {
			return ErrNotInGroup
		}

		newGroupID := s.newID()
		remaining, removed, err := s.retire(ctx, tx, groupID, userID, newGroupID)
		if err != nil {
			return err
		}

		result = LeaveResult{
			GroupID:        groupID,
			Remaining:      remaining,
			InvitesRemoved: removed,
		}
		if len(remaining) >= 2 {
			result.NewGroupID = uuid.NullUUID{UUID: newGroupID, Valid: true}
		}

		for _, m := range remaining {
			member := m
			out.add(func() { s.notifier.MemberLeft(member, userID) })
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("user_id", userID.String()).
		Str("group_id", result.GroupID.String()).
		Int64("invites_removed", result.InvitesRemoved).
		Int("remaining", len(result.Remaining)).
		Msg("Member left group")
	return &result, nil
}

// DeleteInvite withdraws an invite. Only the sender may delete it, and
// accepted invites are only removed by leaving the group.
func (s *Service) DeleteInvite(ctx context.Context, inviteID, requesterID uuid.UUID) (*Invite, error) {
	keys := func(ctx context.Context, tx Tx) ([]string, error) {
		keys := []string{userKey(requesterID)}
		inv, err := tx.GetInvite(ctx, inviteID)
		if err != nil || inv == nil {
			return keys, err
		}
		return append(keys, groupKey(inv.GroupID)), nil
	}

	var deleted *Invite
	err := s.guarded(ctx, keys, func(tx Tx, out *outbox) error {
		inv, err := tx.GetInvite(ctx, inviteID)
		if err != nil {
			return err
		}
		if inv == nil {
			return ErrInviteNotFound
		}
		if inv.SenderID != requesterID {
			return ErrNotSender
		}
		if inv.Status == StatusAccepted {
			return ErrDeleteAccepted
		}

		n, err := tx.DeleteInvites(ctx, []uuid.UUID{inv.ID})
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrInviteNotFound
		}
		deleted = inv
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("invite_id", inviteID.String()).
		Str("sender_id", requesterID.String()).
		Msg("Invite deleted")
	return deleted, nil
}
