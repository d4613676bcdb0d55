package audit

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestMemoryLog_ListByGroupNewestFirst(t *testing.T) {
	w, r := NewMemory()
	ctx := context.Background()

	group, other := uuid.New(), uuid.New()
	actor := uuid.New()

	w.LogInviteSent(ctx, group, actor, uuid.New(), uuid.New())
	w.LogInviteSent(ctx, other, actor, uuid.New(), uuid.New())
	w.LogLockVote(ctx, group, actor, 1, 3)

	events, err := r.ListByGroup(ctx, group, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, EventLockVote, events[0].Action)
	require.Equal(t, EventInviteSent, events[1].Action)
	require.Equal(t, actor, *events[0].ActorUserID)
	require.Equal(t, 3, events[0].Meta["total"])
}

func TestMemoryLog_LimitAndCapacity(t *testing.T) {
	w, r := NewMemory()
	ctx := context.Background()
	group := uuid.New()

	for i := 0; i < memoryLogCapacity+10; i++ {
		w.LogLockVote(ctx, group, uuid.New(), 1, 3)
	}

	events, err := r.ListByGroup(ctx, group, 5)
	require.NoError(t, err)
	require.Len(t, events, 5)

	events, err = r.ListByGroup(ctx, group, maxListLimit)
	require.NoError(t, err)
	require.Len(t, events, maxListLimit)
	require.Len(t, r.mem.events, memoryLogCapacity)
}

func TestWriter_WithoutSinkOnlyLogs(t *testing.T) {
	w := NewWriter(nil)
	require.NoError(t, w.Log(context.Background(), LogParams{Action: EventGroupsRepaired}))
}
