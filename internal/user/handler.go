package user

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/darkEye-2021831014/ProfileBasedTaskManager/internal/auth"
	"github.com/darkEye-2021831014/ProfileBasedTaskManager/internal/user/entity"
	"github.com/darkEye-2021831014/ProfileBasedTaskManager/pkg/utilities"
)

// EventRecorder counts auth flow outcomes. *observability.Metrics satisfies it.
type EventRecorder interface {
	RecordAuthEvent(event, outcome string)
}

type nopRecorder struct{}

func (nopRecorder) RecordAuthEvent(string, string) {}

// Handler exposes HTTP endpoints for the auth flows.
type Handler struct {
	svc    *UserService
	logger *zap.SugaredLogger
	events EventRecorder
}

func NewHandler(svc *UserService, logger *zap.SugaredLogger, events EventRecorder) *Handler {
	if events == nil {
		events = nopRecorder{}
	}
	return &Handler{svc: svc, logger: logger, events: events}
}

// RegisterRequest request body for register endpoint.
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type RegisterResponse struct {
	Message string `json:"message"`
	UserID  int64  `json:"userId"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !h.decode(w, r, &req) {
		return
	}
	u, err := h.svc.Register(r.Context(), RegisterInput(req))
	if err != nil {
		h.fail(w, "register", err, "Registration failed")
		return
	}
	h.events.RecordAuthEvent("register", "success")
	if u.Role == entity.RoleAdmin {
		h.logger.Warnw("admin account self-registered", "userId", u.ID)
	}
	utilities.WriteJSON(w, http.StatusCreated, RegisterResponse{Message: "User registered", UserID: u.ID})
}

// LoginRequest login payload.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(w, "login", err, "Invalid credentials")
		return
	}
	h.events.RecordAuthEvent("login", "success")
	utilities.WriteJSON(w, http.StatusOK, LoginResponse{Token: res.Token, ExpiresAt: res.ExpiresAt})
}

type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

type ForgotPasswordResponse struct {
	Message    string    `json:"message"`
	ResetToken string    `json:"resetToken"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req ForgotPasswordRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.svc.ForgotPassword(r.Context(), req.Email)
	if err != nil {
		h.fail(w, "forgot_password", err, "Could not generate reset token")
		return
	}
	h.events.RecordAuthEvent("forgot_password", "success")
	utilities.WriteJSON(w, http.StatusOK, ForgotPasswordResponse{
		Message:    res.Message,
		ResetToken: res.ResetToken,
		ExpiresAt:  res.ExpiresAt,
	})
}

type ResetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if !h.decode(w, r, &req) {
		return
	}
	err := h.svc.ResetPassword(r.Context(), req.Token, req.Password)
	switch {
	case err == nil:
		h.events.RecordAuthEvent("reset_password", "success")
		utilities.WriteJSON(w, http.StatusOK, MessageResponse{Message: "Password reset successful"})
	// a bad reset token is a bad request, not a missing resource
	case errors.Is(err, auth.ErrNotFound):
		h.events.RecordAuthEvent("reset_password", "invalid_token")
		utilities.WriteError(w, http.StatusBadRequest, "INVALID_TOKEN", "Invalid or used token")
	case errors.Is(err, auth.ErrExpired):
		h.events.RecordAuthEvent("reset_password", "expired")
		utilities.WriteError(w, http.StatusBadRequest, "EXPIRED", "Token expired")
	default:
		h.fail(w, "reset_password", err, "Password reset failed")
	}
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	u, err := h.svc.Me(r.Context(), auth.IdentityFrom(r.Context()))
	if err != nil {
		h.fail(w, "me", err, "User not found")
		return
	}
	utilities.WriteJSON(w, http.StatusOK, u)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.logger.Debugw("invalid payload", "path", r.URL.Path, "err", err)
		utilities.WriteError(w, http.StatusBadRequest, "INVALID_PAYLOAD", "invalid payload")
		return false
	}
	return true
}

func (h *Handler) fail(w http.ResponseWriter, event string, err error, message string) {
	status, _ := auth.Status(err)
	if status == http.StatusInternalServerError {
		h.logger.Errorw(event+" failed", "err", err)
		h.events.RecordAuthEvent(event, "error")
	} else {
		h.logger.Debugw(event+" rejected", "err", err)
		h.events.RecordAuthEvent(event, "failure")
	}
	switch {
	case errors.Is(err, auth.ErrValidation):
		message = "Validation failed"
	case errors.Is(err, auth.ErrConflict):
		message = "Username or email already in use"
	}
	auth.WriteError(w, err, message)
}
