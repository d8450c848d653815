package user

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/darkEye-2021831014/ProfileBasedTaskManager/internal/auth"
	"github.com/darkEye-2021831014/ProfileBasedTaskManager/internal/reset"
	"github.com/darkEye-2021831014/ProfileBasedTaskManager/internal/user/entity"
	userrepo "github.com/darkEye-2021831014/ProfileBasedTaskManager/internal/user/repo"
	"github.com/darkEye-2021831014/ProfileBasedTaskManager/pkg/utilities"
)

const (
	minUsernameLen = 3
	minPasswordLen = 6
	// bcrypt ignores everything past 72 bytes and GenerateFromPassword rejects it.
	maxPasswordBytes = 72

	ForgotPasswordMessage = "If that email exists, a reset token has been generated."
)

// UserStore is the credential store as seen by the service.
type UserStore interface {
	Create(ctx context.Context, u *entity.User) error
	GetByEmail(ctx context.Context, email string) (*entity.User, error)
	GetByID(ctx context.Context, id int64) (*entity.User, error)
}

// TokenSigner issues identity tokens.
type TokenSigner interface {
	Issue(userID int64, role entity.Role) (string, time.Time, error)
}

// ResetTokens is satisfied by *reset.Manager.
type ResetTokens interface {
	Create(ctx context.Context, userID int64, ttl time.Duration) (*reset.Issued, error)
	Decoy(ttl time.Duration) (*reset.Issued, error)
	Consume(ctx context.Context, token, newPassword string) error
}

// Deps wires a UserService.
type Deps struct {
	Users    UserStore
	Hasher   auth.PasswordHasher
	Tokens   TokenSigner
	Resets   ResetTokens
	IDs      *utilities.IDGenerator
	ResetTTL time.Duration
}

// UserService orchestrates registration, login and the password reset flow.
type UserService struct {
	users    UserStore
	hasher   auth.PasswordHasher
	tokens   TokenSigner
	resets   ResetTokens
	ids      *utilities.IDGenerator
	resetTTL time.Duration
	now      func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

func NewUserService(d Deps) *UserService {
	return &UserService{
		users:    d.Users,
		hasher:   d.Hasher,
		tokens:   d.Tokens,
		resets:   d.Resets,
		ids:      d.IDs,
		resetTTL: d.ResetTTL,
		now:      time.Now,
	}
}

type RegisterInput struct {
	Username string
	Email    string
	Password string
	Role     string
}

// Register creates an account. Any caller may ask for the admin role.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (*entity.User, error) {
	username := strings.TrimSpace(in.Username)
	email, emailErr := NormalizeEmail(in.Email)

	var verr auth.ValidationError
	if utf8.RuneCountInString(username) < minUsernameLen {
		verr.Add("username", fmt.Sprintf("must be at least %d characters", minUsernameLen))
	}
	if emailErr != nil {
		verr.Add("email", "must be a valid email address")
	}
	checkPassword(&verr, in.Password)
	if err := verr.Err(); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	role := entity.RoleUser
	if in.Role == string(entity.RoleAdmin) {
		role = entity.RoleAdmin
	}
	now := s.now().UTC()
	u := &entity.User{
		ID:           s.ids.Next(),
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, userrepo.ErrDuplicate) {
			return nil, auth.ErrConflict
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	User      *entity.User
}

// Login verifies the credentials and issues an identity token. An unknown
// email is checked against a throwaway digest so both failures cost the same
// and return the same error.
func (s *UserService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	normalized, _ := NormalizeEmail(email)

	digest := s.dummyDigest()
	u, err := s.users.GetByEmail(ctx, normalized)
	switch {
	case err == nil:
		digest = u.PasswordHash
	case errors.Is(err, sql.ErrNoRows):
		u = nil
	default:
		return nil, fmt.Errorf("load user: %w", err)
	}

	if !s.hasher.Verify(digest, password) || u == nil {
		return nil, auth.ErrInvalidCredentials
	}
	token, exp, err := s.tokens.Issue(u.ID, u.Role)
	if err != nil {
		return nil, err
	}
	return &LoginResult{Token: token, ExpiresAt: exp, User: u}, nil
}

type ForgotResult struct {
	Message    string
	ResetToken string
	ExpiresAt  time.Time
}

// ForgotPassword answers every well-formed email identically. Only known
// users get a redeemable token.
func (s *UserService) ForgotPassword(ctx context.Context, email string) (*ForgotResult, error) {
	normalized, err := NormalizeEmail(email)
	if err != nil {
		var verr auth.ValidationError
		verr.Add("email", "must be a valid email address")
		return nil, verr.Err()
	}

	mint := func() (*reset.Issued, error) { return s.resets.Decoy(s.resetTTL) }
	u, err := s.users.GetByEmail(ctx, normalized)
	switch {
	case err == nil:
		mint = func() (*reset.Issued, error) { return s.resets.Create(ctx, u.ID, s.resetTTL) }
	case errors.Is(err, sql.ErrNoRows):
	default:
		return nil, fmt.Errorf("load user: %w", err)
	}

	issued, err := mint()
	if err != nil {
		return nil, err
	}
	return &ForgotResult{
		Message:    ForgotPasswordMessage,
		ResetToken: issued.Token,
		ExpiresAt:  issued.ExpiresAt,
	}, nil
}

// ResetPassword redeems a reset token. Errors are those of reset.Manager.Consume
// plus auth.ErrValidation for bad input.
func (s *UserService) ResetPassword(ctx context.Context, token, password string) error {
	var verr auth.ValidationError
	if strings.TrimSpace(token) == "" {
		verr.Add("token", "is required")
	}
	checkPassword(&verr, password)
	if err := verr.Err(); err != nil {
		return err
	}
	return s.resets.Consume(ctx, token, password)
}

// Me returns the profile of the authenticated caller.
func (s *UserService) Me(ctx context.Context, id *auth.Identity) (*entity.User, error) {
	if id == nil {
		return nil, auth.ErrUnauthenticated
	}
	u, err := s.users.GetByID(ctx, id.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, auth.ErrNotFound
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	return u, nil
}

// dummyDigest is a digest of a random secret nobody knows, built with the
// same hasher so verifying against it takes as long as a real check.
func (s *UserService) dummyDigest() string {
	s.dummyOnce.Do(func() {
		buf := make([]byte, 16)
		_, _ = rand.Read(buf)
		h, err := s.hasher.Hash(hex.EncodeToString(buf))
		if err == nil {
			s.dummyHash = h
		}
	})
	return s.dummyHash
}

func checkPassword(verr *auth.ValidationError, pw string) {
	switch {
	case utf8.RuneCountInString(pw) < minPasswordLen:
		verr.Add("password", fmt.Sprintf("must be at least %d characters", minPasswordLen))
	case len(pw) > maxPasswordBytes:
		verr.Add("password", fmt.Sprintf("must be at most %d bytes", maxPasswordBytes))
	}
}

// NormalizeEmail trims and lowercases a bare address. Display names and
// anything else net/mail would accept beyond a plain address are rejected.
func NormalizeEmail(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	addr, err := mail.ParseAddress(trimmed)
	if err != nil {
		return strings.ToLower(trimmed), err
	}
	if addr.Address != trimmed || !strings.Contains(addr.Address[strings.LastIndex(addr.Address, "@"):], ".") {
		return strings.ToLower(trimmed), fmt.Errorf("invalid email %q", raw)
	}
	return strings.ToLower(addr.Address), nil
}
