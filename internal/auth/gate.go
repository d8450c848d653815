package auth

import (
	"fmt"
	"slices"
	"strings"

	"github.com/darkEye-2021831014/ProfileBasedTaskManager/internal/user/entity"
)

// TokenVerifier is satisfied by *TokenIssuer.
type TokenVerifier interface {
	Verify(token string) (Identity, error)
}

const bearerScheme = "bearer"

// Authenticate extracts the bearer token from an Authorization header value
// and verifies it. Every failure is ErrUnauthenticated; when verification
// failed the token error is wrapped as well.
func Authenticate(v TokenVerifier, header string) (Identity, error) {
	if header == "" {
		return Identity{}, fmt.Errorf("%w: missing authorization header", ErrUnauthenticated)
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, bearerScheme) {
		return Identity{}, fmt.Errorf("%w: invalid authorization header format", ErrUnauthenticated)
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return Identity{}, fmt.Errorf("%w: missing token", ErrUnauthenticated)
	}
	id, err := v.Verify(token)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}
	return id, nil
}

// RequireRole allows the identity only when its role is one of allowed.
func RequireRole(id *Identity, allowed ...entity.Role) error {
	if id == nil {
		return ErrUnauthenticated
	}
	if !slices.Contains(allowed, id.Role) {
		return ErrForbidden
	}
	return nil
}

// CanAccess applies the ownership rule: admins act on any resource, everyone
// else only on resources they own.
func CanAccess(id *Identity, ownerID int64) error {
	if id == nil {
		return ErrUnauthenticated
	}
	if id.IsAdmin() || id.UserID == ownerID {
		return nil
	}
	return ErrForbidden
}
