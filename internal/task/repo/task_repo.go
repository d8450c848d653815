package repo

import (
	"context"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/darkEye-2021831014/ProfileBasedTaskManager/internal/task/entity"
)

// TaskRepo provides data access for the tasks table.
type TaskRepo struct {
	db *sqlx.DB
}

func NewTaskRepo(db *sqlx.DB) *TaskRepo {
	return &TaskRepo{db: db}
}

const selectTasks = `SELECT t.id, t.user_id, t.title, t.description, t.status, t.created_at, t.updated_at, u.username, u.email
  FROM tasks t JOIN users u ON t.user_id = u.id`

// List returns tasks matching f, newest first.
func (r *TaskRepo) List(ctx context.Context, f entity.Filter) ([]entity.Task, error) {
	q, args := buildListQuery(f)
	tasks := []entity.Task{}
	if err := r.db.SelectContext(ctx, &tasks, r.db.Rebind(q), args...); err != nil {
		return nil, err
	}
	return tasks, nil
}

// buildListQuery assembles the listing from a fixed set of optional
// predicates. User input only ever travels as bound arguments.
func buildListQuery(f entity.Filter) (string, []any) {
	var (
		where []string
		args  []any
	)
	if f.OwnerID != 0 {
		where = append(where, "t.user_id = ?")
		args = append(args, f.OwnerID)
	}
	if f.Status != "" {
		where = append(where, "t.status = ?")
		args = append(args, f.Status)
	}
	if f.Query != "" {
		pattern := "%" + escapeLike(f.Query) + "%"
		where = append(where, `(t.title LIKE ? ESCAPE '\' OR t.description LIKE ? ESCAPE '\')`)
		args = append(args, pattern, pattern)
	}

	q := selectTasks
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	return q + " ORDER BY t.created_at DESC, t.id DESC", args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }

// GetByID returns the task or sql.ErrNoRows.
func (r *TaskRepo) GetByID(ctx context.Context, id int64) (*entity.Task, error) {
	var t entity.Task
	if err := r.db.GetContext(ctx, &t, r.db.Rebind(selectTasks+` WHERE t.id = ?`), id); err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *TaskRepo) Create(ctx context.Context, t *entity.Task) error {
	q := r.db.Rebind(`INSERT INTO tasks (id, user_id, title, description, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	_, err := r.db.ExecContext(ctx, q, t.ID, t.UserID, t.Title, nullable(t.Description), t.Status, t.CreatedAt, t.UpdatedAt)
	return err
}

// Update writes the Set fields of p and returns the number of rows changed.
func (r *TaskRepo) Update(ctx context.Context, id int64, p entity.Patch, at time.Time) (int64, error) {
	sets, args := buildPatch(p)
	sets = append(sets, "updated_at = ?")
	args = append(args, at, id)

	q := r.db.Rebind(`UPDATE tasks SET ` + strings.Join(sets, ", ") + ` WHERE id = ?`)
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func buildPatch(p entity.Patch) ([]string, []any) {
	var (
		sets []string
		args []any
	)
	for _, c := range []struct {
		column string
		value  entity.Optional
	}{
		{"title", p.Title},
		{"description", p.Description},
		{"status", p.Status},
	} {
		if !c.value.Set {
			continue
		}
		sets = append(sets, c.column+" = ?")
		args = append(args, nullable(c.value.Value))
	}
	return sets, args
}

func nullable(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func (r *TaskRepo) Delete(ctx context.Context, id int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM tasks WHERE id = ?`), id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
