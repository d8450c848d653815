package task

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/darkEye-2021831014/ProfileBasedTaskManager/internal/auth"
	"github.com/darkEye-2021831014/ProfileBasedTaskManager/internal/task/entity"
	"github.com/darkEye-2021831014/ProfileBasedTaskManager/pkg/utilities"
)

// Handler exposes the task endpoints. Routes must sit behind the
// authentication middleware.
type Handler struct {
	svc    *Service
	logger *zap.SugaredLogger
}

func NewHandler(svc *Service, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// List handles GET /tasks?status=&q=.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	tasks, err := h.svc.List(r.Context(), auth.IdentityFrom(r.Context()), entity.Filter{
		Status: q.Get("status"),
		Query:  q.Get("q"),
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	utilities.WriteJSON(w, http.StatusOK, tasks)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var in CreateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		h.logger.Debugw("invalid task payload", "err", err)
		utilities.WriteError(w, http.StatusBadRequest, "INVALID_PAYLOAD", "invalid payload")
		return
	}
	t, err := h.svc.Create(r.Context(), auth.IdentityFrom(r.Context()), in)
	if err != nil {
		h.fail(w, err)
		return
	}
	utilities.WriteJSON(w, http.StatusCreated, t)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.taskID(w, r)
	if !ok {
		return
	}
	t, err := h.svc.Get(r.Context(), auth.IdentityFrom(r.Context()), id)
	if err != nil {
		h.fail(w, err)
		return
	}
	utilities.WriteJSON(w, http.StatusOK, t)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.taskID(w, r)
	if !ok {
		return
	}
	var p entity.Patch
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		h.logger.Debugw("invalid task patch", "err", err)
		utilities.WriteError(w, http.StatusBadRequest, "INVALID_PAYLOAD", "invalid payload")
		return
	}
	t, err := h.svc.Update(r.Context(), auth.IdentityFrom(r.Context()), id, p)
	if err != nil {
		h.fail(w, err)
		return
	}
	utilities.WriteJSON(w, http.StatusOK, t)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.taskID(w, r)
	if !ok {
		return
	}
	if err := h.svc.Delete(r.Context(), auth.IdentityFrom(r.Context()), id); err != nil {
		h.fail(w, err)
		return
	}
	utilities.WriteJSON(w, http.StatusOK, map[string]string{"message": "Deleted"})
}

// taskID parses the {id} route variable. Ids that cannot exist are reported
// as missing tasks.
func (h *Handler) taskID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		auth.WriteError(w, auth.ErrNotFound, "Task not found")
		return 0, false
	}
	return id, true
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	message := "Task request failed"
	switch {
	case errors.Is(err, auth.ErrNotFound):
		message = "Task not found"
	case errors.Is(err, auth.ErrForbidden):
		message = "Forbidden"
	case errors.Is(err, auth.ErrValidation):
		message = "Validation failed"
	case errors.Is(err, auth.ErrUnauthenticated):
		message = "Unauthorized"
	default:
		h.logger.Errorw("task request failed", "err", err)
	}
	auth.WriteError(w, err, message)
}
