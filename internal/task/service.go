package task

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/darkEye-2021831014/ProfileBasedTaskManager/internal/auth"
	"github.com/darkEye-2021831014/ProfileBasedTaskManager/internal/task/entity"
	"github.com/darkEye-2021831014/ProfileBasedTaskManager/pkg/utilities"
)

// Store is the task persistence used by Service. *repo.TaskRepo satisfies it.
type Store interface {
	List(ctx context.Context, f entity.Filter) ([]entity.Task, error)
	GetByID(ctx context.Context, id int64) (*entity.Task, error)
	Create(ctx context.Context, t *entity.Task) error
	Update(ctx context.Context, id int64, p entity.Patch, at time.Time) (int64, error)
	Delete(ctx context.Context, id int64) (int64, error)
}

// Service encapsulates task business logic. Every operation runs on behalf of
// an authenticated identity and applies the ownership rule.
type Service struct {
	store Store
	ids   *utilities.IDGenerator
	now   func() time.Time
}

func NewService(store Store, ids *utilities.IDGenerator) *Service {
	return &Service{store: store, ids: ids, now: time.Now}
}

// List returns every task for admins and only the caller's own otherwise.
func (s *Service) List(ctx context.Context, id *auth.Identity, f entity.Filter) ([]entity.Task, error) {
	if id == nil {
		return nil, auth.ErrUnauthenticated
	}
	f.OwnerID = 0
	if !id.IsAdmin() {
		f.OwnerID = id.UserID
	}
	return s.store.List(ctx, f)
}

type CreateInput struct {
	Title       string  `json:"title"`
	Description *string `json:"description"`
}

// Create stores a new task owned by the caller.
func (s *Service) Create(ctx context.Context, id *auth.Identity, in CreateInput) (*entity.Task, error) {
	if id == nil {
		return nil, auth.ErrUnauthenticated
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		var verr auth.ValidationError
		verr.Add("title", "is required")
		return nil, verr.Err()
	}
	desc := in.Description
	if desc != nil && *desc == "" {
		desc = nil
	}
	now := s.now().UTC()
	t := &entity.Task{
		ID:          s.ids.Next(),
		UserID:      id.UserID,
		Title:       title,
		Description: desc,
		Status:      entity.StatusToDo,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.Create(ctx, t); err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	return s.load(ctx, t.ID)
}

// Get returns the task if the caller may see it.
func (s *Service) Get(ctx context.Context, id *auth.Identity, taskID int64) (*entity.Task, error) {
	return s.authorized(ctx, id, taskID)
}

// Update applies p. Absent tasks are reported before ownership, ownership
// before an empty patch.
func (s *Service) Update(ctx context.Context, id *auth.Identity, taskID int64, p entity.Patch) (*entity.Task, error) {
	if _, err := s.authorized(ctx, id, taskID); err != nil {
		return nil, err
	}
	if err := validatePatch(&p); err != nil {
		return nil, err
	}
	n, err := s.store.Update(ctx, taskID, p, s.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("update task: %w", err)
	}
	if n == 0 {
		return nil, auth.ErrNotFound
	}
	return s.load(ctx, taskID)
}

func (s *Service) Delete(ctx context.Context, id *auth.Identity, taskID int64) error {
	if _, err := s.authorized(ctx, id, taskID); err != nil {
		return err
	}
	n, err := s.store.Delete(ctx, taskID)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if n == 0 {
		return auth.ErrNotFound
	}
	return nil
}

func (s *Service) authorized(ctx context.Context, id *auth.Identity, taskID int64) (*entity.Task, error) {
	if id == nil {
		return nil, auth.ErrUnauthenticated
	}
	t, err := s.load(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if err := auth.CanAccess(id, t.UserID); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Service) load(ctx context.Context, taskID int64) (*entity.Task, error) {
	t, err := s.store.GetByID(ctx, taskID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, auth.ErrNotFound
		}
		return nil, fmt.Errorf("load task: %w", err)
	}
	return t, nil
}

func validatePatch(p *entity.Patch) error {
	var verr auth.ValidationError
	if p.Empty() {
		verr.Add("body", "no fields to update")
		return verr.Err()
	}
	if p.Title.Set {
		if p.Title.Value == nil || strings.TrimSpace(*p.Title.Value) == "" {
			verr.Add("title", "cannot be empty")
		} else {
			p.Title = entity.Some(strings.TrimSpace(*p.Title.Value))
		}
	}
	if p.Status.Set && (p.Status.Value == nil || !entity.ValidStatus(*p.Status.Value)) {
		verr.Add("status", fmt.Sprintf("must be one of %q, %q, %q", entity.StatusToDo, entity.StatusInProgress, entity.StatusDone))
	}
	return verr.Err()
}
