package task

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/darkEye-2021831014/ProfileBasedTaskManager/internal/auth"
	"github.com/darkEye-2021831014/ProfileBasedTaskManager/internal/task/entity"
	"github.com/darkEye-2021831014/ProfileBasedTaskManager/internal/task/repo"
	"github.com/darkEye-2021831014/ProfileBasedTaskManager/internal/testutil"
	userentity "github.com/darkEye-2021831014/ProfileBasedTaskManager/internal/user/entity"
	"github.com/darkEye-2021831014/ProfileBasedTaskManager/pkg/utilities"
)

var (
	alice = &auth.Identity{UserID: 1, Role: userentity.RoleUser}
	bob   = &auth.Identity{UserID: 2, Role: userentity.RoleUser}
	admin = &auth.Identity{UserID: 3, Role: userentity.RoleAdmin}
)

func newService(t *testing.T) *Service {
	t.Helper()
	db := testutil.SQLiteDB(t)
	testutil.InsertUser(t, db, 1, "alice", "alice@example.com", "x", userentity.RoleUser)
	testutil.InsertUser(t, db, 2, "bob", "bob@example.com", "x", userentity.RoleUser)
	testutil.InsertUser(t, db, 3, "root", "root@example.com", "x", userentity.RoleAdmin)
	ids, err := utilities.NewIDGenerator(2)
	require.NoError(t, err)
	return NewService(repo.NewTaskRepo(db), ids)
}

func strPtr(s string) *string { return &s }

func TestCreate(t *testing.T) {
	s := newService(t)
	ctx := context.Background()

	task, err := s.Create(ctx, alice, CreateInput{Title: "  Plan trip  ", Description: strPtr("")})
	require.NoError(t, err)
	assert.Equal(t, "Plan trip", task.Title)
	assert.Nil(t, task.Description)
	assert.Equal(t, entity.StatusToDo, task.Status)
	assert.Equal(t, int64(1), task.UserID)
	assert.Equal(t, "alice", task.Username)

	_, err = s.Create(ctx, alice, CreateInput{Title: "   "})
	assert.ErrorIs(t, err, auth.ErrValidation)
	_, err = s.Create(ctx, nil, CreateInput{Title: "x"})
	assert.ErrorIs(t, err, auth.ErrUnauthenticated)
}

func TestList_ScopedToOwnerUnlessAdmin(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	_, err := s.Create(ctx, alice, CreateInput{Title: "alice task"})
	require.NoError(t, err)
	_, err = s.Create(ctx, bob, CreateInput{Title: "bob task"})
	require.NoError(t, err)

	mine, err := s.List(ctx, alice, entity.Filter{OwnerID: 2})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "alice task", mine[0].Title)

	all, err := s.List(ctx, admin, entity.Filter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestOwnership(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	task, err := s.Create(ctx, alice, CreateInput{Title: "private"})
	require.NoError(t, err)

	_, err = s.Get(ctx, bob, task.ID)
	assert.ErrorIs(t, err, auth.ErrForbidden)
	_, err = s.Update(ctx, bob, task.ID, entity.Patch{Title: entity.Some("mine now")})
	assert.ErrorIs(t, err, auth.ErrForbidden)
	assert.ErrorIs(t, s.Delete(ctx, bob, task.ID), auth.ErrForbidden)

	got, err := s.Get(ctx, admin, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "private", got.Title)

	updated, err := s.Update(ctx, admin, task.ID, entity.Patch{Status: entity.Some(entity.StatusInProgress)})
	require.NoError(t, err)
	assert.Equal(t, entity.StatusInProgress, updated.Status)

	require.NoError(t, s.Delete(ctx, alice, task.ID))
	_, err = s.Get(ctx, alice, task.ID)
	assert.ErrorIs(t, err, auth.ErrNotFound)
}

func TestUpdate_Ordering(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	task, err := s.Create(ctx, alice, CreateInput{Title: "t"})
	require.NoError(t, err)

	_, err = s.Update(ctx, bob, 999, entity.Patch{})
	assert.ErrorIs(t, err, auth.ErrNotFound, "missing before forbidden")

	_, err = s.Update(ctx, bob, task.ID, entity.Patch{})
	assert.ErrorIs(t, err, auth.ErrForbidden, "forbidden before empty patch")

	_, err = s.Update(ctx, alice, task.ID, entity.Patch{})
	assert.ErrorIs(t, err, auth.ErrValidation)
}

func TestUpdate_Validation(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	task, err := s.Create(ctx, alice, CreateInput{Title: "t", Description: strPtr("d")})
	require.NoError(t, err)

	_, err = s.Update(ctx, alice, task.ID, entity.Patch{Title: entity.Optional{Set: true}})
	assert.ErrorIs(t, err, auth.ErrValidation)
	_, err = s.Update(ctx, alice, task.ID, entity.Patch{Status: entity.Some("Someday")})
	assert.ErrorIs(t, err, auth.ErrValidation)

	updated, err := s.Update(ctx, alice, task.ID, entity.Patch{Title: entity.Some(" new "), Description: entity.Optional{Set: true}})
	require.NoError(t, err)
	assert.Equal(t, "new", updated.Title)
	assert.Nil(t, updated.Description)
}
