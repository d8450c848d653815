package auth

import (
	"context"

	"github.com/darkEye-2021831014/ProfileBasedTaskManager/internal/user/entity"
)

// Identity is the verified caller of a request.
type Identity struct {
	UserID int64       `json:"id"`
	Role   entity.Role `json:"role"`
}

// IsAdmin reports whether the identity carries the admin role.
func (i Identity) IsAdmin() bool { return i.Role == entity.RoleAdmin }

type ctxKey string

const identityKey ctxKey = "identity"

// WithIdentity attaches id to ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, &id)
}

// IdentityFrom returns the identity attached by the authentication gate, or nil.
func IdentityFrom(ctx context.Context) *Identity {
	id, ok := ctx.Value(identityKey).(*Identity)
	if !ok {
		return nil
	}
	return id
}
