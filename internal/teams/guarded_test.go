package teams

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// lockingStore records the keys each transaction locks.
type lockingStore struct {
	*MemStore

	mu    sync.Mutex
	locks [][]string
}

type lockingTx struct {
	Tx
	store *lockingStore
}

func (s *lockingStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	return s.MemStore.InTx(ctx, func(tx Tx) error {
		return fn(lockingTx{Tx: tx, store: s})
	})
}

func (tx lockingTx) LockKeys(ctx context.Context, keys []string) error {
	tx.store.mu.Lock()
	tx.store.locks = append(tx.store.locks, append([]string(nil), keys...))
	tx.store.mu.Unlock()
	return tx.Tx.LockKeys(ctx, keys)
}

func TestGuarded_LocksSortedKeysInsideTheTransaction(t *testing.T) {
	store := &lockingStore{MemStore: NewMemStore()}
	svc := NewService(store, nil)
	ctx := context.Background()
	a, b, c := uuid.New(), uuid.New(), uuid.New()

	inv, err := svc.SendInvite(ctx, a, b)
	require.NoError(t, err)

	want := []string{userKey(a), userKey(b)}
	if want[0] > want[1] {
		want[0], want[1] = want[1], want[0]
	}
	require.Equal(t, [][]string{want}, store.locks)

	_, err = svc.RespondToInvite(ctx, inv.ID, b, StatusAccepted)
	require.NoError(t, err)

	store.locks = nil
	_, err = svc.SendInvite(ctx, a, c)
	require.NoError(t, err)
	require.Len(t, store.locks, 1)
	require.Contains(t, store.locks[0], groupKey(inv.GroupID))
	require.IsNonDecreasing(t, store.locks[0])
}

func TestGuarded_GivesUpWhenKeysKeepMoving(t *testing.T) {
	store := &lockingStore{MemStore: NewMemStore()}
	svc := NewService(store, nil)

	calls := 0
	keys := func(context.Context, Tx) ([]string, error) {
		calls++
		return []string{fmt.Sprintf("group:%d", calls)}, nil
	}
	ran := false
	err := svc.guarded(context.Background(), keys, func(Tx, *outbox) error {
		ran = true
		return nil
	})

	require.ErrorIs(t, err, ErrConcurrentMutation)
	require.False(t, ran)
	require.Len(t, store.locks, maxLockAttempts)
}

func TestGuarded_FlushesEventsOnlyAfterCommit(t *testing.T) {
	svc := NewService(NewMemStore(), nil)
	keys := func(context.Context, Tx) ([]string, error) { return []string{"user:a"}, nil }

	flushed := false
	err := svc.guarded(context.Background(), keys, func(_ Tx, out *outbox) error {
		out.add(func() { flushed = true })
		return ErrGroupFull
	})
	require.ErrorIs(t, err, ErrGroupFull)
	require.False(t, flushed)

	err = svc.guarded(context.Background(), keys, func(_ Tx, out *outbox) error {
		out.add(func() { flushed = true })
		return nil
	})
	require.NoError(t, err)
	require.True(t, flushed)
}
