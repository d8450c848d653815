package reset

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/darkEye-2021831014/ProfileBasedTaskManager/internal/auth"
	"github.com/darkEye-2021831014/ProfileBasedTaskManager/internal/testutil"
	"github.com/darkEye-2021831014/ProfileBasedTaskManager/internal/user/entity"
	"github.com/darkEye-2021831014/ProfileBasedTaskManager/internal/user/repo"
)

var hasher = auth.BcryptHasher{Cost: 4}

type fixture struct {
	mgr   *Manager
	users *repo.UserRepo
	store *repo.ResetRepo
}

func setup(t *testing.T) fixture {
	t.Helper()
	db := testutil.SQLiteDB(t)
	digest, err := hasher.Hash("oldpass")
	require.NoError(t, err)
	testutil.InsertUser(t, db, 1, "alice", "alice@example.com", digest, entity.RoleUser)

	store := repo.NewResetRepo(db)
	return fixture{mgr: NewManager(store, hasher), users: repo.NewUserRepo(db), store: store}
}

func TestCreate_StoresDigestOnly(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	issued, err := f.mgr.Create(ctx, 1, time.Hour)
	require.NoError(t, err)
	assert.Len(t, issued.Token, 2*tokenBytes)
	assert.WithinDuration(t, time.Now().Add(time.Hour), issued.ExpiresAt, 5*time.Second)

	rec, err := f.store.FindActive(ctx, Digest(issued.Token))
	require.NoError(t, err)
	assert.NotEqual(t, issued.Token, rec.TokenHash)
	assert.Equal(t, int64(1), rec.UserID)

	other, err := f.mgr.Create(ctx, 1, time.Hour)
	require.NoError(t, err)
	assert.NotEqual(t, issued.Token, other.Token)
}

func TestConsume_OnlyOnce(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	issued, err := f.mgr.Create(ctx, 1, time.Hour)
	require.NoError(t, err)

	require.NoError(t, f.mgr.Consume(ctx, issued.Token, "newpass"))
	u, err := f.users.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.True(t, hasher.Verify(u.PasswordHash, "newpass"))
	assert.False(t, hasher.Verify(u.PasswordHash, "oldpass"))

	assert.ErrorIs(t, f.mgr.Consume(ctx, issued.Token, "another"), auth.ErrNotFound)
	u, err = f.users.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.True(t, hasher.Verify(u.PasswordHash, "newpass"))
}

func TestConsume_UnknownToken(t *testing.T) {
	f := setup(t)
	assert.ErrorIs(t, f.mgr.Consume(context.Background(), "deadbeef", "newpass"), auth.ErrNotFound)
	assert.ErrorIs(t, f.mgr.Consume(context.Background(), "", "newpass"), auth.ErrNotFound)
}

func TestConsume_ExpiryBoundary(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	f.mgr.now = func() time.Time { return base }

	issued, err := f.mgr.Create(ctx, 1, time.Minute)
	require.NoError(t, err)

	f.mgr.now = func() time.Time { return issued.ExpiresAt }
	assert.ErrorIs(t, f.mgr.Consume(ctx, issued.Token, "newpass"), auth.ErrExpired)

	f.mgr.now = func() time.Time { return issued.ExpiresAt.Add(-time.Nanosecond) }
	assert.NoError(t, f.mgr.Consume(ctx, issued.Token, "newpass"))
}

func TestConsume_ExpiredLeavesPasswordAlone(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	issued, err := f.mgr.Create(ctx, 1, time.Minute)
	require.NoError(t, err)

	f.mgr.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	require.ErrorIs(t, f.mgr.Consume(ctx, issued.Token, "newpass"), auth.ErrExpired)

	u, err := f.users.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.True(t, hasher.Verify(u.PasswordHash, "oldpass"))
}

func TestConsume_Concurrent(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	issued, err := f.mgr.Create(ctx, 1, time.Hour)
	require.NoError(t, err)

	const workers = 10
	var (
		wg       sync.WaitGroup
		wins     atomic.Int32
		notFound atomic.Int32
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := f.mgr.Consume(ctx, issued.Token, "newpass")
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, auth.ErrNotFound):
				notFound.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, wins.Load())
	assert.EqualValues(t, workers-1, notFound.Load())
}

func TestDecoy_NotRedeemable(t *testing.T) {
	f := setup(t)
	decoy, err := f.mgr.Decoy(time.Hour)
	require.NoError(t, err)
	assert.Len(t, decoy.Token, 2*tokenBytes)
	assert.ErrorIs(t, f.mgr.Consume(context.Background(), decoy.Token, "newpass"), auth.ErrNotFound)
}

func TestMint_RejectsNonPositiveTTL(t *testing.T) {
	f := setup(t)
	_, err := f.mgr.Create(context.Background(), 1, 0)
	assert.Error(t, err)
}
