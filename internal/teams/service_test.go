package teams

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aliuyar1234/projectportal/internal/apperrors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type notice struct {
	kind string
	to   uuid.UUID
	ref  uuid.UUID
}

type recordingNotifier struct {
	mu      sync.Mutex
	notices []notice
}

func (n *recordingNotifier) add(kind string, to, ref uuid.UUID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice{kind: kind, to: to, ref: ref})
}

func (n *recordingNotifier) InviteReceived(receiverID, inviteID, senderID uuid.UUID) {
	n.add("invite_received", receiverID, inviteID)
}

func (n *recordingNotifier) InviteResponded(senderID, inviteID uuid.UUID, status string, receiverID uuid.UUID) {
	n.add("invite_responded:"+status, senderID, inviteID)
}

func (n *recordingNotifier) MemberLeft(memberID, leaverID uuid.UUID) {
	n.add("member_left", memberID, leaverID)
}

func (n *recordingNotifier) GroupLocked(memberID, groupID, finalTeamID uuid.UUID) {
	n.add("group_locked", memberID, finalTeamID)
}

func (n *recordingNotifier) of(kind string) []notice {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]notice, 0)
	for _, x := range n.notices {
		if x.kind == kind {
			out = append(out, x)
		}
	}
	return out
}

type fixture struct {
	svc    *Service
	store  *MemStore
	notify *recordingNotifier
	users  []uuid.UUID
}

func newFixture(t *testing.T, n int) *fixture {
	t.Helper()

	store := NewMemStore()
	users := make([]uuid.UUID, n)
	for i := range users {
		users[i] = uuid.New()
		store.PutProfile(Profile{
			UserID: users[i],
			Name:   string(rune('A' + i)),
			Skills: []string{"go"},
		})
	}

	clock := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	now := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		clock = clock.Add(time.Second)
		return clock
	}

	notify := &recordingNotifier{}
	svc := NewService(store, notify, WithClock(now))
	return &fixture{svc: svc, store: store, notify: notify, users: users}
}

func (f *fixture) invite(t *testing.T, from, to uuid.UUID) *Invite {
	t.Helper()
	inv, err := f.svc.SendInvite(context.Background(), from, to)
	require.NoError(t, err)
	return inv
}

func (f *fixture) join(t *testing.T, from, to uuid.UUID) *RespondResult {
	t.Helper()
	inv := f.invite(t, from, to)
	res, err := f.svc.RespondToInvite(context.Background(), inv.ID, to, StatusAccepted)
	require.NoError(t, err)
	return res
}

func (f *fixture) groupOf(t *testing.T, userID uuid.UUID) (uuid.UUID, []uuid.UUID) {
	t.Helper()
	var (
		groupID uuid.UUID
		members []uuid.UUID
	)
	err := f.store.InTx(context.Background(), func(tx Tx) error {
		g, ok, err := tx.GetMembership(context.Background(), userID)
		if err != nil || !ok {
			return err
		}
		groupID = g
		members, err = tx.ListGroupMembers(context.Background(), g)
		return err
	})
	require.NoError(t, err)
	return groupID, members
}

func (f *fixture) accepted(t *testing.T, groupID uuid.UUID) []Invite {
	t.Helper()
	var out []Invite
	err := f.store.InTx(context.Background(), func(tx Tx) error {
		var err error
		out, err = tx.ListAcceptedByGroup(context.Background(), groupID)
		return err
	})
	require.NoError(t, err)
	return out
}

func (f *fixture) acceptedByUser(t *testing.T, userID uuid.UUID) []Invite {
	t.Helper()
	var out []Invite
	err := f.store.InTx(context.Background(), func(tx Tx) error {
		var err error
		out, err = tx.ListAcceptedByUser(context.Background(), userID)
		return err
	})
	require.NoError(t, err)
	return out
}

// requireConsistent checks the materialized member set against the ledger.
func (f *fixture) requireConsistent(t *testing.T, groupID uuid.UUID) {
	t.Helper()
	members := f.membersOf(t, groupID)
	edges := f.accepted(t, groupID)
	resolved := ResolveMembers(edges)
	require.ElementsMatch(t, resolved, members)
	require.True(t, IsConnected(resolved, edges))
	require.LessOrEqual(t, len(members), MaxGroupSize)
}

func (f *fixture) membersOf(t *testing.T, groupID uuid.UUID) []uuid.UUID {
	t.Helper()
	var members []uuid.UUID
	err := f.store.InTx(context.Background(), func(tx Tx) error {
		var err error
		members, err = tx.ListGroupMembers(context.Background(), groupID)
		return err
	})
	require.NoError(t, err)
	return members
}

func TestSendInvite_RejectsSelfInvite(t *testing.T) {
	f := newFixture(t, 1)
	_, err := f.svc.SendInvite(context.Background(), f.users[0], f.users[0])
	require.ErrorIs(t, err, ErrSelfInvite)
	require.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
}

func TestSendInvite_UngroupedSenderMintsGroupAndNotifies(t *testing.T) {
	f := newFixture(t, 2)
	a, b := f.users[0], f.users[1]

	inv := f.invite(t, a, b)
	require.Equal(t, StatusPending, inv.Status)
	require.NotEqual(t, uuid.Nil, inv.GroupID)

	got := f.notify.of("invite_received")
	require.Len(t, got, 1)
	require.Equal(t, b, got[0].to)
	require.Equal(t, inv.ID, got[0].ref)
}

func TestSendInvite_DuplicatePairIsConflict(t *testing.T) {
	f := newFixture(t, 2)
	a, b := f.users[0], f.users[1]
	f.invite(t, a, b)

	_, err := f.svc.SendInvite(context.Background(), a, b)
	require.ErrorIs(t, err, ErrDuplicateInvite)
	require.Equal(t, apperrors.KindConflict, apperrors.KindOf(err))

	_, err = f.svc.SendInvite(context.Background(), b, a)
	require.ErrorIs(t, err, ErrDuplicateInvite)
}

func TestSendInvite_AllowedAgainAfterRejection(t *testing.T) {
	f := newFixture(t, 2)
	a, b := f.users[0], f.users[1]

	inv := f.invite(t, a, b)
	_, err := f.svc.RespondToInvite(context.Background(), inv.ID, b, StatusRejected)
	require.NoError(t, err)

	again, err := f.svc.SendInvite(context.Background(), a, b)
	require.NoError(t, err)
	require.NotEqual(t, inv.ID, again.ID)
}

func TestSendInvite_PendingCapacityForLoneSender(t *testing.T) {
	f := newFixture(t, 5)
	a := f.users[0]
	for _, u := range f.users[1:4] {
		f.invite(t, a, u)
	}

	_, err := f.svc.SendInvite(context.Background(), a, f.users[4])
	require.ErrorIs(t, err, ErrPendingCapacity)
	require.EqualError(t, err, "Group has 1 members. Already have 3 pending invites.")
}

func TestSendInvite_PendingCapacityWithOneSeatLeft(t *testing.T) {
	f := newFixture(t, 5)
	a, b, c, d, e := f.users[0], f.users[1], f.users[2], f.users[3], f.users[4]
	f.join(t, a, b)
	f.join(t, a, c)
	f.invite(t, a, d)

	_, err := f.svc.SendInvite(context.Background(), a, e)
	require.ErrorIs(t, err, ErrPendingCapacity)
	require.EqualError(t, err, "Group has 3 members. Can invite 1 more person.")
}

func TestSendInvite_FullGroupCannotInvite(t *testing.T) {
	f := newFixture(t, 5)
	a := f.users[0]
	for _, u := range f.users[1:4] {
		f.join(t, a, u)
	}

	_, err := f.svc.SendInvite(context.Background(), a, f.users[4])
	require.ErrorIs(t, err, ErrGroupFull)
}

func TestRespond_AcceptFormsGroup(t *testing.T) {
	f := newFixture(t, 2)
	a, b := f.users[0], f.users[1]

	inv := f.invite(t, a, b)
	res, err := f.svc.RespondToInvite(context.Background(), inv.ID, b, StatusAccepted)
	require.NoError(t, err)
	require.Equal(t, StatusAccepted, res.Invite.Status)
	require.Equal(t, inv.GroupID, res.Invite.GroupID)
	require.False(t, res.MovedFrom.Valid)

	groupID, members := f.groupOf(t, b)
	require.Equal(t, inv.GroupID, groupID)
	require.Equal(t, []uuid.UUID{a, b}, members)
	f.requireConsistent(t, groupID)

	got := f.notify.of("invite_responded:accepted")
	require.Len(t, got, 1)
	require.Equal(t, a, got[0].to)
}

func TestRespond_IsOneShot(t *testing.T) {
	f := newFixture(t, 3)
	a, b, c := f.users[0], f.users[1], f.users[2]
	ctx := context.Background()

	acc := f.invite(t, a, b)
	_, err := f.svc.RespondToInvite(ctx, acc.ID, b, StatusAccepted)
	require.NoError(t, err)

	_, err = f.svc.RespondToInvite(ctx, acc.ID, b, StatusAccepted)
	require.ErrorIs(t, err, ErrAlreadyInStatus)
	require.EqualError(t, err, "Invite is already accepted.")

	_, err = f.svc.RespondToInvite(ctx, acc.ID, b, StatusRejected)
	require.ErrorIs(t, err, ErrRejectAccepted)

	rej := f.invite(t, a, c)
	_, err = f.svc.RespondToInvite(ctx, rej.ID, c, StatusRejected)
	require.NoError(t, err)

	_, err = f.svc.RespondToInvite(ctx, rej.ID, c, StatusAccepted)
	require.ErrorIs(t, err, ErrAcceptRejected)
}

func TestRespond_OnlyReceiver(t *testing.T) {
	f := newFixture(t, 3)
	a, b, c := f.users[0], f.users[1], f.users[2]
	inv := f.invite(t, a, b)

	_, err := f.svc.RespondToInvite(context.Background(), inv.ID, c, StatusAccepted)
	require.ErrorIs(t, err, ErrNotReceiver)
	require.Equal(t, apperrors.KindAuthorization, apperrors.KindOf(err))

	_, err = f.svc.RespondToInvite(context.Background(), uuid.New(), b, StatusAccepted)
	require.ErrorIs(t, err, ErrInviteNotFound)

	_, err = f.svc.RespondToInvite(context.Background(), inv.ID, b, InviteStatus("maybe"))
	require.ErrorIs(t, err, ErrInvalidAction)
}

func TestRespond_AcceptWouldExceedGroup(t *testing.T) {
	f := newFixture(t, 5)
	a, b, c, d, e := f.users[0], f.users[1], f.users[2], f.users[3], f.users[4]
	f.join(t, a, b)
	f.join(t, a, c)

	toD := f.invite(t, a, d)
	toE := f.invite(t, b, e)

	_, err := f.svc.RespondToInvite(context.Background(), toD.ID, d, StatusAccepted)
	require.NoError(t, err)

	_, err = f.svc.RespondToInvite(context.Background(), toE.ID, e, StatusAccepted)
	require.ErrorIs(t, err, ErrGroupWouldExceed)

	groupID, members := f.groupOf(t, a)
	require.Len(t, members, MaxGroupSize)
	f.requireConsistent(t, groupID)
}

func TestRespond_ConcurrentAcceptsNeverExceedGroup(t *testing.T) {
	f := newFixture(t, 5)
	a, b, c, d, e := f.users[0], f.users[1], f.users[2], f.users[3], f.users[4]
	f.join(t, a, b)
	f.join(t, a, c)
	toD := f.invite(t, a, d)
	toE := f.invite(t, b, e)

	var (
		wg   sync.WaitGroup
		errs = make([]error, 2)
	)
	for i, pair := range [][2]uuid.UUID{{toD.ID, d}, {toE.ID, e}} {
		wg.Add(1)
		go func(i int, inviteID, responder uuid.UUID) {
			defer wg.Done()
			_, errs[i] = f.svc.RespondToInvite(context.Background(), inviteID, responder, StatusAccepted)
		}(i, pair[0], pair[1])
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		require.ErrorIs(t, err, ErrGroupWouldExceed)
	}
	require.Equal(t, 1, succeeded)

	groupID, members := f.groupOf(t, a)
	require.Len(t, members, MaxGroupSize)
	f.requireConsistent(t, groupID)
}

func TestRespond_BothGroupedJoinsResponderGroupWithSpareSeat(t *testing.T) {
	f := newFixture(t, 5)
	a, x, b, c, d := f.users[0], f.users[1], f.users[2], f.users[3], f.users[4]
	inviterGroup := f.join(t, a, x).Invite.GroupID
	respGroup := f.join(t, b, c).Invite.GroupID
	f.join(t, b, d)

	res := f.join(t, a, b)
	require.False(t, res.MovedFrom.Valid)
	require.True(t, res.InviterMovedFrom.Valid)
	require.Equal(t, inviterGroup, res.InviterMovedFrom.UUID)
	require.Equal(t, respGroup, res.Invite.GroupID)

	groupID, members := f.groupOf(t, b)
	require.Equal(t, respGroup, groupID)
	require.ElementsMatch(t, []uuid.UUID{a, b, c, d}, members)
	f.requireConsistent(t, respGroup)

	// The inviter's old pair dissolves.
	_, left := f.groupOf(t, x)
	require.Empty(t, left)
	require.Empty(t, f.acceptedByUser(t, x))

	got := f.notify.of("member_left")
	require.Len(t, got, 1)
	require.Equal(t, x, got[0].to)
	require.Equal(t, a, got[0].ref)
}

func TestRespond_InviterMoveRebuildsLargerDonor(t *testing.T) {
	f := newFixture(t, 5)
	a, b, x, c, d := f.users[0], f.users[1], f.users[2], f.users[3], f.users[4]
	donor := f.join(t, a, b).Invite.GroupID
	f.join(t, a, x)
	respGroup := f.join(t, c, d).Invite.GroupID

	res := f.join(t, a, c)
	require.Equal(t, respGroup, res.Invite.GroupID)

	groupID, members := f.groupOf(t, b)
	require.Equal(t, donor, groupID)
	require.ElementsMatch(t, []uuid.UUID{b, x}, members)
	f.requireConsistent(t, donor)
	require.Len(t, f.accepted(t, donor), 1)

	_, members = f.groupOf(t, a)
	require.ElementsMatch(t, []uuid.UUID{a, c, d}, members)
	f.requireConsistent(t, respGroup)
}

func TestRespond_FullResponderGroupMovesResponderToInviter(t *testing.T) {
	f := newFixture(t, 6)
	a, b, c, d, e, g := f.users[0], f.users[1], f.users[2], f.users[3], f.users[4], f.users[5]
	inviterGroup := f.join(t, a, b).Invite.GroupID
	donor := f.join(t, c, d).Invite.GroupID
	f.join(t, c, e)
	f.join(t, c, g)

	res := f.join(t, a, d)
	require.True(t, res.MovedFrom.Valid)
	require.Equal(t, donor, res.MovedFrom.UUID)
	require.False(t, res.InviterMovedFrom.Valid)
	require.Equal(t, inviterGroup, res.Invite.GroupID)

	_, members := f.groupOf(t, d)
	require.ElementsMatch(t, []uuid.UUID{a, b, d}, members)
	f.requireConsistent(t, inviterGroup)

	groupID, members := f.groupOf(t, c)
	require.Equal(t, donor, groupID)
	require.ElementsMatch(t, []uuid.UUID{c, e, g}, members)
	f.requireConsistent(t, donor)
}

func TestRespond_UngroupedInvitersJoinResponderGroup(t *testing.T) {
	f := newFixture(t, 4)
	a, b, c, d := f.users[0], f.users[1], f.users[2], f.users[3]
	group := f.join(t, a, b).Invite.GroupID

	res := f.join(t, c, a)
	require.Equal(t, group, res.Invite.GroupID)
	require.False(t, res.MovedFrom.Valid)
	require.False(t, res.InviterMovedFrom.Valid)

	res = f.join(t, d, b)
	require.Equal(t, group, res.Invite.GroupID)

	_, members := f.groupOf(t, a)
	require.ElementsMatch(t, []uuid.UUID{a, b, c, d}, members)
	f.requireConsistent(t, group)
}

func TestRespond_AcceptIntoResponderGroupWhenInviterAlone(t *testing.T) {
	f := newFixture(t, 3)
	a, b, c := f.users[0], f.users[1], f.users[2]
	group := f.join(t, a, b).Invite.GroupID

	res := f.join(t, c, b)
	require.False(t, res.MovedFrom.Valid)
	require.Equal(t, group, res.Invite.GroupID)

	_, members := f.groupOf(t, c)
	require.ElementsMatch(t, []uuid.UUID{a, b, c}, members)
	f.requireConsistent(t, group)
}

func TestLeaveGroup_RebuildsStarFromFirstRemainingMember(t *testing.T) {
	f := newFixture(t, 4)
	a, b, c, d := f.users[0], f.users[1], f.users[2], f.users[3]
	for _, u := range []uuid.UUID{b, c, d} {
		f.join(t, a, u)
	}
	oldGroup, _ := f.groupOf(t, a)

	res, err := f.svc.LeaveGroup(context.Background(), b)
	require.NoError(t, err)
	require.Equal(t, oldGroup, res.GroupID)
	require.True(t, res.NewGroupID.Valid)
	require.NotEqual(t, oldGroup, res.NewGroupID.UUID)
	require.Equal(t, int64(1), res.InvitesRemoved)
	require.ElementsMatch(t, []uuid.UUID{a, c, d}, res.Remaining)

	groupID, members := f.groupOf(t, c)
	require.Equal(t, res.NewGroupID.UUID, groupID)
	require.Equal(t, []uuid.UUID{a, c, d}, members)
	f.requireConsistent(t, groupID)

	edges := f.accepted(t, groupID)
	require.Len(t, edges, 2)
	for _, e := range edges {
		require.Equal(t, a, e.SenderID)
	}
	require.Empty(t, f.acceptedByUser(t, b))
	require.Empty(t, f.accepted(t, oldGroup))

	_, none := f.groupOf(t, b)
	require.Empty(t, none)

	require.Len(t, f.notify.of("member_left"), 3)
}

func TestLeaveGroup_PairDissolves(t *testing.T) {
	f := newFixture(t, 2)
	a, b := f.users[0], f.users[1]
	f.join(t, a, b)

	res, err := f.svc.LeaveGroup(context.Background(), b)
	require.NoError(t, err)
	require.False(t, res.NewGroupID.Valid)
	require.Equal(t, []uuid.UUID{a}, res.Remaining)

	view, err := f.svc.GroupMembers(context.Background(), a)
	require.NoError(t, err)
	require.Nil(t, view.Group)
	require.Equal(t, "You are not in any group", view.Message)

	_, err = f.svc.LeaveGroup(context.Background(), a)
	require.ErrorIs(t, err, ErrNotInGroup)
}

func TestLeaveGroup_ThenRejoin(t *testing.T) {
	f := newFixture(t, 3)
	a, b, c := f.users[0], f.users[1], f.users[2]
	f.join(t, a, b)
	f.join(t, a, c)

	_, err := f.svc.LeaveGroup(context.Background(), b)
	require.NoError(t, err)

	f.join(t, c, b)
	groupID, members := f.groupOf(t, b)
	require.ElementsMatch(t, []uuid.UUID{a, b, c}, members)
	f.requireConsistent(t, groupID)
}

func TestDeleteInvite(t *testing.T) {
	f := newFixture(t, 3)
	a, b, c := f.users[0], f.users[1], f.users[2]
	ctx := context.Background()

	pending := f.invite(t, a, b)
	_, err := f.svc.DeleteInvite(ctx, pending.ID, b)
	require.ErrorIs(t, err, ErrNotSender)

	deleted, err := f.svc.DeleteInvite(ctx, pending.ID, a)
	require.NoError(t, err)
	require.Equal(t, pending.ID, deleted.ID)

	_, err = f.svc.DeleteInvite(ctx, pending.ID, a)
	require.ErrorIs(t, err, ErrInviteNotFound)

	acc := f.join(t, a, c)
	_, err = f.svc.DeleteInvite(ctx, acc.Invite.ID, a)
	require.ErrorIs(t, err, ErrDeleteAccepted)

	sent, err := f.svc.ListSentInvites(ctx, a)
	require.NoError(t, err)
	require.Len(t, sent, 1)
	require.Equal(t, "C", sent[0].ReceiverName)
}

func TestListReceivedInvites_PendingOnly(t *testing.T) {
	f := newFixture(t, 3)
	a, b, c := f.users[0], f.users[1], f.users[2]
	f.invite(t, a, c)
	inv := f.invite(t, b, c)
	_, err := f.svc.RespondToInvite(context.Background(), inv.ID, c, StatusRejected)
	require.NoError(t, err)

	got, err := f.svc.ListReceivedInvites(context.Background(), c)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, a, got[0].SenderID)
	require.Equal(t, "A", got[0].SenderName)
}

func TestRepairGroups_ReconnectsDisconnectedGroup(t *testing.T) {
	f := newFixture(t, 4)
	a, b, c, d := f.users[0], f.users[1], f.users[2], f.users[3]
	g := uuid.New()
	ctx := context.Background()

	err := f.store.InTx(ctx, func(tx Tx) error {
		for _, inv := range []Invite{accepted(g, a, b), accepted(g, c, d)} {
			inv := inv
			if err := tx.InsertInvite(ctx, &inv); err != nil {
				return err
			}
		}
		for _, u := range []uuid.UUID{a, b, c, d} {
			if err := tx.AddMember(ctx, g, u); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	n, err := f.svc.RepairGroups(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	f.requireConsistent(t, g)
	require.Len(t, f.accepted(t, g), 3)

	n, err = f.svc.RepairGroups(ctx)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestRepairGroups_RealignsMaterializedMembers(t *testing.T) {
	f := newFixture(t, 3)
	a, b, c := f.users[0], f.users[1], f.users[2]
	f.join(t, a, b)
	acc := f.join(t, a, c)
	g := acc.Invite.GroupID
	ctx := context.Background()

	err := f.store.InTx(ctx, func(tx Tx) error {
		_, err := tx.DeleteInvites(ctx, []uuid.UUID{acc.Invite.ID})
		return err
	})
	require.NoError(t, err)

	n, err := f.svc.RepairGroups(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	f.requireConsistent(t, g)

	_, members := f.groupOf(t, c)
	require.Empty(t, members)
}

func TestMemStore_RollsBackFailedTransaction(t *testing.T) {
	f := newFixture(t, 2)
	a, b := f.users[0], f.users[1]
	ctx := context.Background()
	boom := errors.New("boom")

	err := f.store.InTx(ctx, func(tx Tx) error {
		if err := tx.AddMember(ctx, uuid.New(), a); err != nil {
			return err
		}
		if err := tx.InsertInvite(ctx, &Invite{ID: uuid.New(), SenderID: a, ReceiverID: b, GroupID: uuid.New(), Status: StatusPending}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, members := f.groupOf(t, a)
	assert.Empty(t, members)
	sent, err := f.svc.ListSentInvites(ctx, a)
	require.NoError(t, err)
	assert.Empty(t, sent)
}

func TestParseAction(t *testing.T) {
	got, err := ParseAction("accepted")
	require.NoError(t, err)
	require.Equal(t, StatusAccepted, got)

	_, err = ParseAction("pending")
	require.ErrorIs(t, err, ErrInvalidAction)
}
