package sessions_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/eizes/gis-gateway/internal/errors"
	"github.com/eizes/gis-gateway/sessions"
)

var testUser = sessions.User{
	Username: "jdoe",
	Email:    "jdoe@example.com",
	Name:     "John Doe",
	Groups:   []string{"gis-users"},
}

var testTokens = sessions.Tokens{
	Access:  "access-token",
	Refresh: "refresh-token",
}

func TestMemoryStoreCreateAndGet(t *testing.T) {
	ctx := context.Background()
	store := sessions.NewMemoryStore()

	id, err := store.Create(ctx, testUser, testTokens, time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	session, err := store.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, id, session.ID)
	require.Equal(t, testUser, session.User)
	require.Equal(t, testTokens, session.Tokens)
	require.True(t, session.ExpiresAt.After(time.Now()))
}

func TestMemoryStoreSessionIDsAreUnique(t *testing.T) {
	ctx := context.Background()
	store := sessions.NewMemoryStore()

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id, err := store.Create(ctx, testUser, testTokens, time.Hour)
		require.NoError(t, err)
		require.False(t, seen[id], "duplicate session identifier")
		require.GreaterOrEqual(t, len(id), 43) // 32 bytes, base64url
		seen[id] = true
	}
}

func TestMemoryStoreGetUnknown(t *testing.T) {
	store := sessions.NewMemoryStore()

	_, err := store.Get(context.Background(), "no-such-session")
	require.ErrorIs(t, err, errors.ErrSessionNotFound)
}

func TestMemoryStoreLazyExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	clock := func() time.Time { return now }
	store := sessions.NewMemoryStore(sessions.WithNowTime(func() time.Time { return clock() }))

	id, err := store.Create(ctx, testUser, testTokens, time.Hour)
	require.NoError(t, err)

	// Just before expiry the session is still returned.
	clock = func() time.Time { return now.Add(time.Hour - time.Second) }
	_, err = store.Get(ctx, id)
	require.NoError(t, err)

	// At expiry it is purged and reported absent.
	clock = func() time.Time { return now.Add(time.Hour) }
	_, err = store.Get(ctx, id)
	require.ErrorIs(t, err, errors.ErrSessionNotFound)

	// Purged for good: moving the clock back does not resurrect it.
	clock = func() time.Time { return now }
	_, err = store.Get(ctx, id)
	require.ErrorIs(t, err, errors.ErrSessionNotFound)
}

func TestMemoryStoreDeleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := sessions.NewMemoryStore()

	id, err := store.Create(ctx, testUser, testTokens, time.Hour)
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, id))
	require.NoError(t, store.Delete(ctx, id))

	_, err = store.Get(ctx, id)
	require.ErrorIs(t, err, errors.ErrSessionNotFound)
}

func TestMemoryStorePendingStateSingleUse(t *testing.T) {
	ctx := context.Background()
	store := sessions.NewMemoryStore()

	require.NoError(t, store.RegisterPendingState(ctx, "state-1"))

	ok, err := store.ConsumePendingState(ctx, "state-1")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = store.ConsumePendingState(ctx, "state-1")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMemoryStorePendingStateUnknown(t *testing.T) {
	store := sessions.NewMemoryStore()

	ok, err := store.ConsumePendingState(context.Background(), "never-registered")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMemoryStorePendingStateExpires(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	clock := func() time.Time { return now }
	store := sessions.NewMemoryStore(sessions.WithNowTime(func() time.Time { return clock() }))

	require.NoError(t, store.RegisterPendingState(ctx, "stale-state"))

	clock = func() time.Time { return now.Add(sessions.PendingStateTTL + time.Minute) }
	ok, err := store.ConsumePendingState(ctx, "stale-state")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMemoryStoreConcurrentConsumeOnce(t *testing.T) {
	ctx := context.Background()
	store := sessions.NewMemoryStore()

	require.NoError(t, store.RegisterPendingState(ctx, "racy-state"))

	const racers = 32
	var wg sync.WaitGroup
	var consumed int64
	var mu sync.Mutex

	wg.Add(racers)
	for i := 0; i < racers; i++ {
		go func() {
			defer wg.Done()
			ok, err := store.ConsumePendingState(ctx, "racy-state")
			require.NoError(t, err)
			if ok {
				mu.Lock()
				consumed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.EqualValues(t, 1, consumed, "state must be consumed exactly once")
}

func TestMemoryStoreSweep(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	clock := func() time.Time { return now }
	store := sessions.NewMemoryStore(sessions.WithNowTime(func() time.Time { return clock() }))

	expired, err := store.Create(ctx, testUser, testTokens, time.Minute)
	require.NoError(t, err)
	live, err := store.Create(ctx, testUser, testTokens, time.Hour)
	require.NoError(t, err)

	clock = func() time.Time { return now.Add(30 * time.Minute) }
	store.Sweep()

	_, err = store.Get(ctx, expired)
	require.ErrorIs(t, err, errors.ErrSessionNotFound)
	_, err = store.Get(ctx, live)
	require.NoError(t, err)
}
