package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/darkEye-2021831014/ProfileBasedTaskManager/internal/user/entity"
)

// Verification failures. The gate treats all of them as ErrUnauthenticated;
// they stay distinct for logging and tests.
var (
	ErrTokenMalformed    = errors.New("token malformed")
	ErrTokenBadSignature = errors.New("token signature invalid")
	ErrTokenExpired      = errors.New("token expired")
)

// Claims is the identity token payload.
type Claims struct {
	UserID int64       `json:"id"`
	Role   entity.Role `json:"role"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies identity tokens with one HMAC secret fixed at
// construction.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenIssuer copies secret; later changes to the caller's slice have no effect.
func NewTokenIssuer(secret []byte, ttl time.Duration) (*TokenIssuer, error) {
	if len(secret) == 0 {
		return nil, errors.New("token signing secret is required")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("token ttl must be positive, got %s", ttl)
	}
	key := make([]byte, len(secret))
	copy(key, secret)
	return &TokenIssuer{secret: key, ttl: ttl, now: time.Now}, nil
}

// TTL is the lifetime applied by Issue.
func (i *TokenIssuer) TTL() time.Duration { return i.ttl }

// Issue signs a token for the user with the configured lifetime.
func (i *TokenIssuer) Issue(userID int64, role entity.Role) (string, time.Time, error) {
	return i.IssueWithTTL(userID, role, i.ttl)
}

// IssueWithTTL signs a token expiring ttl from now. A zero or negative ttl
// yields a token that is already expired.
func (i *TokenIssuer) IssueWithTTL(userID int64, role entity.Role, ttl time.Duration) (string, time.Time, error) {
	now := i.now()
	exp := jwt.NewNumericDate(now.Add(ttl))
	claims := Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: exp,
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp.Time, nil
}

// Verify checks signature and expiry before returning the claims.
func (i *TokenIssuer) Verify(token string) (Identity, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return Identity{}, fmt.Errorf("%w: %v", ErrTokenBadSignature, err)
		case errors.Is(err, jwt.ErrTokenExpired):
			return Identity{}, ErrTokenExpired
		default:
			return Identity{}, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
		}
	}
	if claims.UserID <= 0 || !claims.Role.Valid() {
		return Identity{}, fmt.Errorf("%w: missing id or role", ErrTokenMalformed)
	}
	return Identity{UserID: claims.UserID, Role: claims.Role}, nil
}
