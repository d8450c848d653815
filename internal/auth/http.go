package auth

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/darkEye-2021831014/ProfileBasedTaskManager/internal/user/entity"
	"github.com/darkEye-2021831014/ProfileBasedTaskManager/pkg/utilities"
)

// Status maps an error to its HTTP status and stable error code.
func Status(err error) (int, string) {
	switch {
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest, "VALIDATION_FAILED"
	case errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized, "UNAUTHENTICATED"
	case errors.Is(err, ErrInvalidCredentials):
		return http.StatusUnauthorized, "INVALID_CREDENTIALS"
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden, "FORBIDDEN"
	case errors.Is(err, ErrConflict):
		return http.StatusConflict, "CONFLICT"
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, ErrExpired):
		return http.StatusBadRequest, "EXPIRED"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}

// WriteError writes err as a structured body. Internal errors never leak
// their text; validation errors carry the failing fields.
func WriteError(w http.ResponseWriter, err error, message string) {
	status, code := Status(err)
	body := utilities.APIError{Code: code, Message: message}
	if status == http.StatusInternalServerError {
		body.Message = "internal error"
	}
	var verr *ValidationError
	if errors.As(err, &verr) {
		body.Details = verr.Fields
	}
	utilities.WriteJSON(w, status, body)
}

// Authenticator is the HTTP form of the authentication gate.
type Authenticator struct {
	verifier TokenVerifier
	logger   *zap.SugaredLogger
}

func NewAuthenticator(v TokenVerifier, logger *zap.SugaredLogger) *Authenticator {
	return &Authenticator{verifier: v, logger: logger}
}

// Middleware rejects requests without a valid bearer token and attaches the
// identity to the request context otherwise.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := Authenticate(a.verifier, r.Header.Get("Authorization"))
		if err != nil {
			a.logger.Debugw("authentication failed", "path", r.URL.Path, "err", err)
			WriteError(w, err, "Invalid or expired token")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

// RequireRoleMiddleware restricts the wrapped handler to the allowed roles.
// It must run after Authenticator.Middleware.
func RequireRoleMiddleware(allowed ...entity.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch err := RequireRole(IdentityFrom(r.Context()), allowed...); {
			case errors.Is(err, ErrUnauthenticated):
				WriteError(w, err, "Unauthorized")
			case err != nil:
				WriteError(w, err, "Forbidden: insufficient rights")
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}
