package teams

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func (f *fixture) groupOfThree(t *testing.T) (a, b, c uuid.UUID) {
	t.Helper()
	a, b, c = f.users[0], f.users[1], f.users[2]
	f.join(t, a, b)
	f.join(t, a, c)
	return a, b, c
}

func TestRequestLock_GroupTooSmall(t *testing.T) {
	f := newFixture(t, 2)
	a, b := f.users[0], f.users[1]

	_, err := f.svc.RequestLock(context.Background(), a)
	require.ErrorIs(t, err, ErrNotInGroup)

	f.join(t, a, b)
	_, err = f.svc.RequestLock(context.Background(), a)
	require.ErrorIs(t, err, ErrGroupTooSmall)

	_, err = f.svc.GetLockStatus(context.Background(), a)
	require.ErrorIs(t, err, ErrNoLockRecord)
}

func TestRequestLock_AllVotesFinalizeTeam(t *testing.T) {
	f := newFixture(t, 3)
	a, b, c := f.groupOfThree(t)
	groupID, _ := f.groupOf(t, a)
	ctx := context.Background()

	res, err := f.svc.RequestLock(ctx, a)
	require.NoError(t, err)
	require.False(t, res.TeamLocked)
	require.Equal(t, 1, res.Locked)
	require.Equal(t, 3, res.Total)
	require.Equal(t, "Lock request recorded", res.Message)
	require.Equal(t, FormingGroup(groupID), res.Group)

	_, err = f.svc.RequestLock(ctx, a)
	require.ErrorIs(t, err, ErrAlreadyVoted)

	status, err := f.svc.GetLockStatus(ctx, a)
	require.NoError(t, err)
	require.Equal(t, 2, status.Remaining)
	require.Equal(t, "1 members have locked their group and 2 remaining.", status.Message)

	_, err = f.svc.GetLockStatus(ctx, b)
	require.ErrorIs(t, err, ErrNotVoted)

	_, err = f.svc.RequestLock(ctx, b)
	require.NoError(t, err)
	res, err = f.svc.RequestLock(ctx, c)
	require.NoError(t, err)
	require.True(t, res.TeamLocked)
	require.True(t, res.FinalTeamID.Valid)
	require.Equal(t, "Group locked successfully!", res.Message)
	require.Equal(t, LockedTeam(res.FinalTeamID.UUID), res.Group)
	teamID := res.FinalTeamID.UUID

	for _, u := range []uuid.UUID{a, b, c} {
		stages, err := f.svc.MyStages(ctx, u)
		require.NoError(t, err)
		require.True(t, stages.Stage1Completed)
		require.Equal(t, uuid.NullUUID{UUID: teamID, Valid: true}, stages.TeamID)
	}

	locked := f.notify.of("group_locked")
	require.Len(t, locked, 3)
	for _, n := range locked {
		require.Equal(t, teamID, n.ref)
	}

	status, err = f.svc.GetLockStatus(ctx, b)
	require.NoError(t, err)
	require.True(t, status.IsFullyLocked)
	require.Zero(t, status.Remaining)
	require.Equal(t, "All members have locked their group.", status.Message)
	require.Equal(t, teamID, status.FinalTeamID.UUID)

	again, err := f.svc.RequestLock(ctx, a)
	require.NoError(t, err)
	require.True(t, again.AlreadyLocked)
	require.Equal(t, teamID, again.FinalTeamID.UUID)
	require.Len(t, f.notify.of("group_locked"), 3)

	view, err := f.svc.GroupMembers(ctx, c)
	require.NoError(t, err)
	require.True(t, view.IsLocked)
	require.Equal(t, LockedTeam(teamID), *view.Group)
	require.Equal(t, 3, view.TotalMembers)
}

func TestLockedTeam_FreezesMembership(t *testing.T) {
	f := newFixture(t, 4)
	a, b, c := f.groupOfThree(t)
	d := f.users[3]
	ctx := context.Background()
	for _, u := range []uuid.UUID{a, b, c} {
		_, err := f.svc.RequestLock(ctx, u)
		require.NoError(t, err)
	}

	_, err := f.svc.LeaveGroup(ctx, b)
	require.ErrorIs(t, err, ErrLeaveLocked)

	_, err = f.svc.SendInvite(ctx, a, d)
	require.ErrorIs(t, err, ErrSenderLocked)

	_, err = f.svc.SendInvite(ctx, d, a)
	require.ErrorIs(t, err, ErrReceiverLocked)

	users, err := f.svc.ListUsers(ctx, d)
	require.NoError(t, err)
	require.Len(t, users, 3)
	for _, u := range users {
		require.Equal(t, UserStatusInTeam, u.Status)
	}

	teamID, mates, err := f.svc.MyTeamMembers(ctx, a)
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, teamID)
	require.Len(t, mates, 2)

	_, _, err = f.svc.MyTeamMembers(ctx, d)
	require.ErrorIs(t, err, ErrStage1Incomplete)
}

func TestRequestLock_MembershipChangeResetsVotes(t *testing.T) {
	f := newFixture(t, 4)
	a, _, _ := f.groupOfThree(t)
	d := f.users[3]
	ctx := context.Background()

	_, err := f.svc.RequestLock(ctx, a)
	require.NoError(t, err)

	f.join(t, a, d)

	_, err = f.svc.GetLockStatus(ctx, a)
	require.ErrorIs(t, err, ErrNoLockRecord)

	res, err := f.svc.RequestLock(ctx, a)
	require.NoError(t, err)
	require.Equal(t, 1, res.Locked)
	require.Equal(t, 4, res.Total)
}

func TestRequestLock_LeaveResetsVotes(t *testing.T) {
	f := newFixture(t, 4)
	a, b, c := f.users[0], f.users[1], f.users[2]
	for _, u := range f.users[1:] {
		f.join(t, a, u)
	}
	ctx := context.Background()

	_, err := f.svc.RequestLock(ctx, b)
	require.NoError(t, err)
	_, err = f.svc.RequestLock(ctx, c)
	require.NoError(t, err)

	_, err = f.svc.LeaveGroup(ctx, b)
	require.NoError(t, err)

	res, err := f.svc.RequestLock(ctx, c)
	require.NoError(t, err)
	require.Equal(t, 1, res.Locked)
	require.Equal(t, 3, res.Total)
	require.False(t, res.TeamLocked)
}

func TestRequestLock_ConcurrentFinalVotesLockOnce(t *testing.T) {
	f := newFixture(t, 4)
	a, b, c := f.users[0], f.users[1], f.users[2]
	d := f.users[3]
	for _, u := range []uuid.UUID{b, c, d} {
		f.join(t, a, u)
	}
	ctx := context.Background()

	_, err := f.svc.RequestLock(ctx, a)
	require.NoError(t, err)
	_, err = f.svc.RequestLock(ctx, b)
	require.NoError(t, err)

	var (
		wg      sync.WaitGroup
		results = make([]*LockResult, 2)
		errs    = make([]error, 2)
	)
	for i, u := range []uuid.UUID{c, d} {
		wg.Add(1)
		go func(i int, u uuid.UUID) {
			defer wg.Done()
			results[i], errs[i] = f.svc.RequestLock(ctx, u)
		}(i, u)
	}
	wg.Wait()

	teamIDs := make(map[uuid.UUID]bool)
	lockedNow := 0
	for i := range results {
		require.NoError(t, errs[i])
		if results[i].TeamLocked {
			lockedNow++
			teamIDs[results[i].FinalTeamID.UUID] = true
		}
	}
	require.Equal(t, 1, lockedNow)
	require.Len(t, teamIDs, 1)

	notices := f.notify.of("group_locked")
	require.Len(t, notices, 4)
	for _, n := range notices {
		require.True(t, teamIDs[n.ref])
	}
}

func TestGetLockStatus_FinalizesCompleteRecord(t *testing.T) {
	f := newFixture(t, 3)
	a, b, c := f.groupOfThree(t)
	groupID, members := f.groupOf(t, a)
	ctx := context.Background()

	err := f.store.InTx(ctx, func(tx Tx) error {
		return tx.SaveLockRecord(ctx, &LockRecord{
			GroupID:  groupID,
			Members:  members,
			LockedBy: []uuid.UUID{a, b, c},
		})
	})
	require.NoError(t, err)

	status, err := f.svc.GetLockStatus(ctx, a)
	require.NoError(t, err)
	require.True(t, status.IsFullyLocked)
	require.True(t, status.FinalTeamID.Valid)

	stages, err := f.svc.MyStages(ctx, c)
	require.NoError(t, err)
	require.Equal(t, status.FinalTeamID, stages.TeamID)
}

func TestLockStatusMessage(t *testing.T) {
	require.Equal(t, "All members have locked their group.", lockStatusMessage(4, 0))
	require.Equal(t, "3 members have locked their group and 1 remaining.", lockStatusMessage(3, 1))
	require.Equal(t, "1 members have locked their group and 3 remaining.", lockStatusMessage(1, 3))
}
