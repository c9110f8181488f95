package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/cloo-solutions/docchat/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionStore_HistoryCreatesEmptyLog(t *testing.T) {
	store := NewSessionStore(SessionStoreConfig{})

	history, err := store.History(context.Background(), "s1")

	require.NoError(t, err)
	assert.Empty(t, history)
	assert.Equal(t, 1, store.Len())
}

func TestSessionStore_AppendOrdering(t *testing.T) {
	store := NewSessionStore(SessionStoreConfig{})
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, "s1", "q1", "r1"))
	require.NoError(t, store.Append(ctx, "s1", "q2", "r2"))

	history, err := store.History(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, []domain.ChatTurn{
		domain.HumanTurn("q1"),
		domain.AssistantTurn("r1"),
		domain.HumanTurn("q2"),
		domain.AssistantTurn("r2"),
	}, history)
}

func TestSessionStore_HistoryReturnsCopy(t *testing.T) {
	store := NewSessionStore(SessionStoreConfig{})
	ctx := context.Background()
	require.NoError(t, store.Append(ctx, "s1", "q", "r"))

	history, _ := store.History(ctx, "s1")
	history[0].Text = "mutated"

	again, _ := store.History(ctx, "s1")
	assert.Equal(t, "q", again[0].Text)
}

func TestSessionStore_SessionsAreIsolated(t *testing.T) {
	store := NewSessionStore(SessionStoreConfig{})
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, "a", "qa", "ra"))
	require.NoError(t, store.Append(ctx, "b", "qb", "rb"))

	a, _ := store.History(ctx, "a")
	b, _ := store.History(ctx, "b")
	assert.Equal(t, "qa", a[0].Text)
	assert.Equal(t, "qb", b[0].Text)
	assert.Len(t, a, 2)
	assert.Len(t, b, 2)
}

func TestSessionStore_RejectsEmptyID(t *testing.T) {
	store := NewSessionStore(SessionStoreConfig{})

	_, err := store.History(context.Background(), "")
	assert.Equal(t, domain.ErrCodeValidation, domain.ErrorCode(err))

	_, err = store.Acquire(context.Background(), "")
	assert.Equal(t, domain.ErrCodeValidation, domain.ErrorCode(err))
}

func TestSessionStore_ConcurrentAppendsKeepPairsTogether(t *testing.T) {
	store := NewSessionStore(SessionStoreConfig{})
	ctx := context.Background()

	const writers = 20
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, store.Append(ctx, "shared", fmt.Sprintf("q%d", i), fmt.Sprintf("r%d", i)))
		}(i)
	}
	wg.Wait()

	history, err := store.History(ctx, "shared")
	require.NoError(t, err)
	require.Len(t, history, writers*2)
	for i := 0; i < len(history); i += 2 {
		assert.Equal(t, domain.ChatRoleHuman, history[i].Role)
		assert.Equal(t, domain.ChatRoleAssistant, history[i+1].Role)
		assert.Equal(t, "r"+history[i].Text[1:], history[i+1].Text)
	}
}

func TestSessionStore_AcquireIsExclusivePerSession(t *testing.T) {
	store := NewSessionStore(SessionStoreConfig{})
	ctx := context.Background()

	lease, err := store.Acquire(ctx, "s1")
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = store.Acquire(waitCtx, "s1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	other, err := store.Acquire(ctx, "s2")
	require.NoError(t, err)
	other.Release()

	lease.Release()
	lease.Release()

	again, err := store.Acquire(ctx, "s1")
	require.NoError(t, err)
	again.Release()
}

func TestSessionStore_HistoryDoesNotWaitForLease(t *testing.T) {
	store := NewSessionStore(SessionStoreConfig{})
	ctx := context.Background()

	lease, err := store.Acquire(ctx, "s1")
	require.NoError(t, err)
	defer lease.Release()

	history, err := store.History(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestSessionStore_TTLEvictsIdleSessions(t *testing.T) {
	store := NewSessionStore(SessionStoreConfig{TTL: 30 * time.Millisecond, CleanupInterval: 10 * time.Millisecond})
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, "s1", "q", "r"))

	assert.Eventually(t, func() bool { return store.Len() == 0 }, time.Second, 10*time.Millisecond)

	history, err := store.History(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestSessionStore_ZeroTTLNeverExpires(t *testing.T) {
	store := NewSessionStore(SessionStoreConfig{CleanupInterval: time.Millisecond})
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, "s1", "q", "r"))
	time.Sleep(20 * time.Millisecond)

	history, _ := store.History(ctx, "s1")
	assert.Len(t, history, 2)
}

func TestSessionStore_LeasedSessionOutlivesTTL(t *testing.T) {
	store := NewSessionStore(SessionStoreConfig{TTL: 50 * time.Millisecond, CleanupInterval: 10 * time.Millisecond})
	ctx := context.Background()

	held, err := store.Acquire(ctx, "s")
	require.NoError(t, err)
	time.Sleep(120 * time.Millisecond)

	assert.Equal(t, 1, store.Len())

	waitCtx, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
	defer cancel()
	_, err = store.Acquire(waitCtx, "s")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	held.Append("q1", "r1")
	held.Release()

	next, err := store.Acquire(ctx, "s")
	require.NoError(t, err)
	next.Append("q2", "r2")
	next.Release()

	history, err := store.History(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, []domain.ChatTurn{
		domain.HumanTurn("q1"),
		domain.AssistantTurn("r1"),
		domain.HumanTurn("q2"),
		domain.AssistantTurn("r2"),
	}, history)

	assert.Eventually(t, func() bool { return store.Len() == 0 }, time.Second, 10*time.Millisecond)
}
