// Package reset issues and redeems single-use password reset tokens.
package reset

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/darkEye-2021831014/ProfileBasedTaskManager/internal/auth"
	"github.com/darkEye-2021831014/ProfileBasedTaskManager/internal/user/entity"
	"github.com/darkEye-2021831014/ProfileBasedTaskManager/pkg/utilities"
)

// tokenBytes of randomness back every token (256 bits).
const tokenBytes = 32

// Store persists reset records. *repo.ResetRepo satisfies it.
type Store interface {
	Save(ctx context.Context, p *entity.PasswordReset) error
	FindActive(ctx context.Context, tokenHash string) (*entity.PasswordReset, error)
	Consume(ctx context.Context, id string, userID int64, passwordHash string, at time.Time) (bool, error)
}

// Issued is a freshly minted token. Token is shown to the requester once and
// never stored.
type Issued struct {
	Token     string
	ExpiresAt time.Time
}

type Manager struct {
	store  Store
	hasher auth.PasswordHasher
	now    func() time.Time
}

func NewManager(store Store, hasher auth.PasswordHasher) *Manager {
	return &Manager{store: store, hasher: hasher, now: time.Now}
}

// Create mints a token for userID valid for ttl and stores its digest.
func (m *Manager) Create(ctx context.Context, userID int64, ttl time.Duration) (*Issued, error) {
	issued, err := m.mint(ttl)
	if err != nil {
		return nil, err
	}
	rec := &entity.PasswordReset{
		ID:        utilities.NewKSUID(),
		UserID:    userID,
		TokenHash: Digest(issued.Token),
		ExpiresAt: issued.ExpiresAt,
		CreatedAt: m.now().UTC(),
	}
	if err := m.store.Save(ctx, rec); err != nil {
		return nil, fmt.Errorf("save reset token: %w", err)
	}
	return issued, nil
}

// Decoy mints a token exactly like Create but stores nothing. It can never be
// redeemed.
func (m *Manager) Decoy(ttl time.Duration) (*Issued, error) {
	return m.mint(ttl)
}

// Consume redeems token and sets the owner's password to newPassword.
// Unknown or already used tokens yield auth.ErrNotFound, tokens at or past
// their deadline auth.ErrExpired. Of several concurrent calls with the same
// token at most one succeeds.
func (m *Manager) Consume(ctx context.Context, token, newPassword string) error {
	if token == "" {
		return auth.ErrNotFound
	}
	rec, err := m.store.FindActive(ctx, Digest(token))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return auth.ErrNotFound
		}
		return fmt.Errorf("find reset token: %w", err)
	}
	now := m.now()
	if rec.ExpiredAt(now) {
		return auth.ErrExpired
	}
	hash, err := m.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	ok, err := m.store.Consume(ctx, rec.ID, rec.UserID, hash, now.UTC())
	if err != nil {
		return fmt.Errorf("consume reset token: %w", err)
	}
	if !ok {
		return auth.ErrNotFound
	}
	return nil
}

func (m *Manager) mint(ttl time.Duration) (*Issued, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("reset token ttl must be positive, got %s", ttl)
	}
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("read random: %w", err)
	}
	return &Issued{
		Token:     hex.EncodeToString(buf),
		ExpiresAt: m.now().Add(ttl).UTC(),
	}, nil
}

// Digest is the stored form of a token.
func Digest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
