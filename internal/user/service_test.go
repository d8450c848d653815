package user

import (
	"context"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/darkEye-2021831014/ProfileBasedTaskManager/internal/auth"
	"github.com/darkEye-2021831014/ProfileBasedTaskManager/internal/reset"
	"github.com/darkEye-2021831014/ProfileBasedTaskManager/internal/testutil"
	"github.com/darkEye-2021831014/ProfileBasedTaskManager/internal/user/entity"
	userrepo "github.com/darkEye-2021831014/ProfileBasedTaskManager/internal/user/repo"
	"github.com/darkEye-2021831014/ProfileBasedTaskManager/pkg/utilities"
)

type env struct {
	db     *sqlx.DB
	svc    *UserService
	issuer *auth.TokenIssuer
}

func newEnv(t *testing.T) env {
	t.Helper()
	db := testutil.SQLiteDB(t)
	hasher := auth.BcryptHasher{Cost: 4}
	issuer, err := auth.NewTokenIssuer([]byte("test-secret"), time.Hour)
	require.NoError(t, err)
	ids, err := utilities.NewIDGenerator(1)
	require.NoError(t, err)

	svc := NewUserService(Deps{
		Users:    userrepo.NewUserRepo(db),
		Hasher:   hasher,
		Tokens:   issuer,
		Resets:   reset.NewManager(userrepo.NewResetRepo(db), hasher),
		IDs:      ids,
		ResetTTL: time.Hour,
	})
	return env{db: db, svc: svc, issuer: issuer}
}

func register(t *testing.T, s *UserService, username, email, password, role string) *entity.User {
	t.Helper()
	u, err := s.Register(context.Background(), RegisterInput{Username: username, Email: email, Password: password, Role: role})
	require.NoError(t, err)
	return u
}

func countResets(t *testing.T, db *sqlx.DB) int {
	t.Helper()
	var n int
	require.NoError(t, db.Get(&n, `SELECT COUNT(*) FROM password_resets`))
	return n
}

func TestRegister_NormalizesAndDefaultsRole(t *testing.T) {
	e := newEnv(t)
	u := register(t, e.svc, "  alice  ", " Alice@Example.COM ", "secret1", "")

	assert.Equal(t, "alice", u.Username)
	assert.Equal(t, "alice@example.com", u.Email)
	assert.Equal(t, entity.RoleUser, u.Role)
	assert.Positive(t, u.ID)
	assert.NotEqual(t, "secret1", u.PasswordHash)
}

func TestRegister_RoleFromRequest(t *testing.T) {
	e := newEnv(t)
	assert.Equal(t, entity.RoleAdmin, register(t, e.svc, "root", "root@example.com", "secret1", "admin").Role)
	assert.Equal(t, entity.RoleUser, register(t, e.svc, "bob", "bob@example.com", "secret1", "superuser").Role)
}

func TestRegister_Validation(t *testing.T) {
	e := newEnv(t)
	_, err := e.svc.Register(context.Background(), RegisterInput{Username: " ab ", Email: "not-an-email", Password: "12345"})
	require.ErrorIs(t, err, auth.ErrValidation)

	var verr *auth.ValidationError
	require.ErrorAs(t, err, &verr)
	fields := make([]string, 0, len(verr.Fields))
	for _, f := range verr.Fields {
		fields = append(fields, f.Field)
	}
	assert.ElementsMatch(t, []string{"username", "email", "password"}, fields)
}

func TestRegister_Conflict(t *testing.T) {
	e := newEnv(t)
	first := register(t, e.svc, "alice", "alice@example.com", "secret1", "")

	_, err := e.svc.Register(context.Background(), RegisterInput{Username: "alice2", Email: "ALICE@example.com", Password: "secret1"})
	assert.ErrorIs(t, err, auth.ErrConflict)
	_, err = e.svc.Register(context.Background(), RegisterInput{Username: "alice", Email: "other@example.com", Password: "secret1"})
	assert.ErrorIs(t, err, auth.ErrConflict)

	res, err := e.svc.Login(context.Background(), "alice@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, res.User.ID)
}

func TestLogin(t *testing.T) {
	e := newEnv(t)
	u := register(t, e.svc, "alice", "alice@example.com", "secret1", "admin")

	res, err := e.svc.Login(context.Background(), " ALICE@example.com", "secret1")
	require.NoError(t, err)
	id, err := e.issuer.Verify(res.Token)
	require.NoError(t, err)
	assert.Equal(t, auth.Identity{UserID: u.ID, Role: entity.RoleAdmin}, id)
	assert.WithinDuration(t, time.Now().Add(time.Hour), res.ExpiresAt, 5*time.Second)
}

func TestLogin_SameErrorForUnknownUserAndWrongPassword(t *testing.T) {
	e := newEnv(t)
	register(t, e.svc, "alice", "alice@example.com", "secret1", "")

	_, wrongPw := e.svc.Login(context.Background(), "alice@example.com", "nope123")
	_, noUser := e.svc.Login(context.Background(), "ghost@example.com", "secret1")
	_, badEmail := e.svc.Login(context.Background(), "ghost", "secret1")

	assert.ErrorIs(t, wrongPw, auth.ErrInvalidCredentials)
	assert.Equal(t, wrongPw, noUser)
	assert.Equal(t, wrongPw, badEmail)
}

func TestForgotPassword_SameShapeForUnknownEmail(t *testing.T) {
	e := newEnv(t)
	register(t, e.svc, "alice", "alice@example.com", "secret1", "")
	ctx := context.Background()

	known, err := e.svc.ForgotPassword(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, 1, countResets(t, e.db))

	unknown, err := e.svc.ForgotPassword(ctx, "ghost@example.com")
	require.NoError(t, err)
	assert.Equal(t, 1, countResets(t, e.db), "unknown email must not create a record")

	assert.Equal(t, known.Message, unknown.Message)
	assert.Len(t, unknown.ResetToken, len(known.ResetToken))
	assert.WithinDuration(t, known.ExpiresAt, unknown.ExpiresAt, 5*time.Second)

	assert.ErrorIs(t, e.svc.ResetPassword(ctx, unknown.ResetToken, "newpass"), auth.ErrNotFound)
}

func TestForgotPassword_InvalidEmail(t *testing.T) {
	e := newEnv(t)
	_, err := e.svc.ForgotPassword(context.Background(), "nope")
	assert.ErrorIs(t, err, auth.ErrValidation)
}

func TestResetPassword_Flow(t *testing.T) {
	e := newEnv(t)
	register(t, e.svc, "alice", "alice@example.com", "secret1", "")
	ctx := context.Background()

	fr, err := e.svc.ForgotPassword(ctx, "alice@example.com")
	require.NoError(t, err)

	require.NoError(t, e.svc.ResetPassword(ctx, fr.ResetToken, "newpass"))
	assert.ErrorIs(t, e.svc.ResetPassword(ctx, fr.ResetToken, "newpass2"), auth.ErrNotFound)

	_, err = e.svc.Login(ctx, "alice@example.com", "secret1")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
	_, err = e.svc.Login(ctx, "alice@example.com", "newpass")
	assert.NoError(t, err)
}

func TestResetPassword_Validation(t *testing.T) {
	e := newEnv(t)
	err := e.svc.ResetPassword(context.Background(), "", "123")
	require.ErrorIs(t, err, auth.ErrValidation)

	var verr *auth.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Fields, 2)
}

func TestMe(t *testing.T) {
	e := newEnv(t)
	u := register(t, e.svc, "alice", "alice@example.com", "secret1", "")

	got, err := e.svc.Me(context.Background(), &auth.Identity{UserID: u.ID, Role: entity.RoleUser})
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)

	_, err = e.svc.Me(context.Background(), &auth.Identity{UserID: 12345, Role: entity.RoleUser})
	assert.ErrorIs(t, err, auth.ErrNotFound)
	_, err = e.svc.Me(context.Background(), nil)
	assert.ErrorIs(t, err, auth.ErrUnauthenticated)
}

func TestNormalizeEmail(t *testing.T) {
	cases := map[string]bool{
		"a@b.co":           true,
		" Mixed@Case.Org ": true,
		"no-at-sign":       false,
		"a@localhost":      false,
		"Name <a@b.co>":    false,
		"":                 false,
	}
	for in, ok := range cases {
		_, err := NormalizeEmail(in)
		assert.Equal(t, ok, err == nil, in)
	}
	got, err := NormalizeEmail(" Mixed@Case.Org ")
	require.NoError(t, err)
	assert.Equal(t, "mixed@case.org", got)
}
