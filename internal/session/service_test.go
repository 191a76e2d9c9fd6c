package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/wordfill-backend/internal/store"
)

func newService() *Service {
	return NewService(store.NewMemoryStore(0), 0)
}

func TestSnapshot_UntouchedChallengeIsEmpty(t *testing.T) {
	svc := newService()

	snap, err := svc.Snapshot(context.Background(), "never-touched")
	require.NoError(t, err)
	assert.Equal(t, Snapshot{Locks: []int{}, Filled: []Filled{}, Submitted: false}, snap)
}

func TestLocks_AddThenRemove(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	require.NoError(t, svc.AddLock(ctx, "c1", 5))
	require.NoError(t, svc.AddLock(ctx, "c1", 7))

	snap, err := svc.Snapshot(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, []int{5, 7}, snap.Locks)

	require.NoError(t, svc.RemoveLock(ctx, "c1", 5))
	snap, err = svc.Snapshot(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, []int{7}, snap.Locks)

	// absent token is a no-op
	require.NoError(t, svc.RemoveLock(ctx, "c1", 99))
}

func TestRemoveLock_RemovesEveryDuplicate(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	require.NoError(t, svc.AddLock(ctx, "c1", 3))
	require.NoError(t, svc.AddLock(ctx, "c1", 3))
	require.NoError(t, svc.RemoveLock(ctx, "c1", 3))

	snap, err := svc.Snapshot(ctx, "c1")
	require.NoError(t, err)
	assert.Empty(t, snap.Locks)
}

func TestFilled_RemoveAlsoReleasesLock(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	require.NoError(t, svc.AddLock(ctx, "c1", 5))
	require.NoError(t, svc.AddFilled(ctx, "c1", Filled{Word: 5, Position: 2}))
	require.NoError(t, svc.AddFilled(ctx, "c1", Filled{Word: 1, Position: 4}))

	snap, err := svc.Snapshot(ctx, "c1")
	require.NoError(t, err)
	assert.Contains(t, snap.Filled, Filled{Word: 5, Position: 2})

	removed, ok, err := svc.RemoveFilled(ctx, "c1", 2)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, Filled{Word: 5, Position: 2}, removed)

	snap, err = svc.Snapshot(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, []Filled{{Word: 1, Position: 4}}, snap.Filled)
	assert.Empty(t, snap.Locks)
}

func TestRemoveFilled_WordNeverLocked(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	require.NoError(t, svc.AddFilled(ctx, "c1", Filled{Word: 8, Position: 1}))

	_, ok, err := svc.RemoveFilled(ctx, "c1", 1)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRemoveFilled_EmptyPositionIsNoop(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	require.NoError(t, svc.AddLock(ctx, "c1", 5))

	_, ok, err := svc.RemoveFilled(ctx, "c1", 3)
	require.NoError(t, err)
	assert.False(t, ok)

	snap, err := svc.Snapshot(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, []int{5}, snap.Locks)
}

func TestSubmit_Idempotent(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		require.NoError(t, svc.Submit(ctx, "c1"))
		snap, err := svc.Snapshot(ctx, "c1")
		require.NoError(t, err)
		assert.True(t, snap.Submitted)
	}
}

func TestDeleteChallenge_ResetsToDefaults(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	require.NoError(t, svc.AddLock(ctx, "c1", 1))
	require.NoError(t, svc.AddFilled(ctx, "c1", Filled{Word: 2, Position: 3}))
	require.NoError(t, svc.Submit(ctx, "c1"))

	require.NoError(t, svc.DeleteChallenge(ctx, "c1"))
	require.NoError(t, svc.DeleteChallenge(ctx, "c1"))

	snap, err := svc.Snapshot(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, EmptySnapshot(), snap)
}

func TestChallengesAreIsolated(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	require.NoError(t, svc.AddLock(ctx, "a", 1))
	require.NoError(t, svc.Submit(ctx, "a"))

	snap, err := svc.Snapshot(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, EmptySnapshot(), snap)
}

type failingStore struct{ store.Store }

func (failingStore) Set(context.Context, string, []byte, time.Duration) error {
	return store.ErrUnavailable
}

func TestStoreFailurePropagates(t *testing.T) {
	svc := NewService(failingStore{store.NewMemoryStore(0)}, 0)

	err := svc.AddLock(context.Background(), "c1", 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrUnavailable))
}

func TestPlace_StoresAndReleasesLock(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	require.NoError(t, svc.AddLock(ctx, "c1", 5))
	require.NoError(t, svc.Place(ctx, "c1", Filled{Word: 5, Position: 2}))

	snap, err := svc.Snapshot(ctx, "c1")
	require.NoError(t, err)
	assert.Empty(t, snap.Locks)
	assert.Equal(t, []Filled{{Word: 5, Position: 2}}, snap.Filled)
}

// lockWriteFails lets writes through until broken is set, then fails every
// write to the locks key.
type lockWriteFails struct {
	store.Store
	broken bool
}

func (l *lockWriteFails) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if l.broken && key == LocksKey("c1") {
		return store.ErrUnavailable
	}
	return l.Store.Set(ctx, key, value, ttl)
}

func TestPlace_FailedLockReleaseLeavesNothingBehind(t *testing.T) {
	st := &lockWriteFails{Store: store.NewMemoryStore(0)}
	svc := NewService(st, 0)
	ctx := context.Background()

	require.NoError(t, svc.AddLock(ctx, "c1", 5))
	st.broken = true

	err := svc.Place(ctx, "c1", Filled{Word: 5, Position: 2})
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrUnavailable))

	snap, err := svc.Snapshot(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, []int{5}, snap.Locks)
	assert.Empty(t, snap.Filled)
}

func TestRemoveFilled_FailedLockReleaseRestoresPlacement(t *testing.T) {
	st := &lockWriteFails{Store: store.NewMemoryStore(0)}
	svc := NewService(st, 0)
	ctx := context.Background()

	require.NoError(t, svc.AddLock(ctx, "c1", 5))
	require.NoError(t, svc.AddFilled(ctx, "c1", Filled{Word: 5, Position: 2}))
	require.NoError(t, svc.AddFilled(ctx, "c1", Filled{Word: 6, Position: 3}))
	st.broken = true

	_, ok, err := svc.RemoveFilled(ctx, "c1", 2)
	require.Error(t, err)
	assert.False(t, ok)

	snap, err := svc.Snapshot(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, []Filled{{Word: 5, Position: 2}, {Word: 6, Position: 3}}, snap.Filled)
	assert.Equal(t, []int{5}, snap.Locks)
}

// barrierStore holds every read of one key until n readers have read it (or
// the wait runs out), forcing concurrent read-modify-writes to overlap.
type barrierStore struct {
	store.Store
	key  string
	n    int
	wait time.Duration

	mu      sync.Mutex
	arrived int
	release chan struct{}
}

func newBarrierStore(key string, n int, wait time.Duration) *barrierStore {
	return &barrierStore{
		Store:   store.NewMemoryStore(0),
		key:     key,
		n:       n,
		wait:    wait,
		release: make(chan struct{}),
	}
}

func (b *barrierStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, ok, err := b.Store.Get(ctx, key)
	if key != b.key {
		return val, ok, err
	}

	b.mu.Lock()
	b.arrived++
	if b.arrived == b.n {
		close(b.release)
	}
	b.mu.Unlock()

	select {
	case <-b.release:
	case <-time.After(b.wait):
	}
	return val, ok, err
}

func runConcurrentAddLocks(n int, add func(word int) error) error {
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for w := 1; w <= n; w++ {
		wg.Add(1)
		go func(word int) {
			defer wg.Done()
			errs <- add(word)
		}(w)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func TestConcurrentAddLock_LosesUpdatesWithoutSerialization(t *testing.T) {
	const n = 8
	st := newBarrierStore(LocksKey("race"), n, time.Second)
	svc := NewService(st, 0)
	ctx := context.Background()

	err := runConcurrentAddLocks(n, func(word int) error {
		return svc.addLock(ctx, "race", word)
	})
	require.NoError(t, err)

	snap, err := svc.snapshot(ctx, "race")
	require.NoError(t, err)
	assert.Less(t, len(snap.Locks), n, "unserialized writers should overwrite each other")
}

func TestConcurrentAddLock_SerializedKeepsEveryLock(t *testing.T) {
	const n = 8
	st := newBarrierStore(LocksKey("race"), n, 20*time.Millisecond)
	svc := NewService(st, 0)
	ctx := context.Background()

	err := runConcurrentAddLocks(n, func(word int) error {
		return svc.AddLock(ctx, "race", word)
	})
	require.NoError(t, err)

	snap, err := svc.Snapshot(ctx, "race")
	require.NoError(t, err)
	assert.Len(t, snap.Locks, n)
	assert.ElementsMatch(t, []int{1, 2, 3, 4, 5, 6, 7, 8}, snap.Locks)
	assert.Equal(t, 0, svc.locks.size())
}
