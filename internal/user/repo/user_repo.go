package repo

import (
	"context"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/darkEye-2021831014/ProfileBasedTaskManager/internal/user/entity"
	"github.com/darkEye-2021831014/ProfileBasedTaskManager/pkg/database"
)

// ErrDuplicate is returned when a unique constraint (username, email, token
// digest) rejects a write.
var ErrDuplicate = errors.New("duplicate record")

// UserRepo provides data access for the users table using sqlx. Queries are
// written with ? placeholders and rebound for the active driver.
type UserRepo struct {
	db *sqlx.DB
}

func NewUserRepo(db *sqlx.DB) *UserRepo { return &UserRepo{db: db} }

const userColumns = `id, username, email, password_hash, role, created_at, updated_at`

// Create inserts u. The caller assigns ID and timestamps.
func (r *UserRepo) Create(ctx context.Context, u *entity.User) error {
	q := r.db.Rebind(`INSERT INTO users (` + userColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	_, err := r.db.ExecContext(ctx, q, u.ID, u.Username, u.Email, u.PasswordHash, string(u.Role), u.CreatedAt, u.UpdatedAt)
	if database.IsUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

// GetByEmail returns the user with the exact (normalized) email or sql.ErrNoRows.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*entity.User, error) {
	var u entity.User
	q := r.db.Rebind(`SELECT ` + userColumns + ` FROM users WHERE email = ?`)
	if err := r.db.GetContext(ctx, &u, q, email); err != nil {
		return nil, err
	}
	return &u, nil
}

// GetByID fetches a full user row or sql.ErrNoRows.
func (r *UserRepo) GetByID(ctx context.Context, id int64) (*entity.User, error) {
	var u entity.User
	q := r.db.Rebind(`SELECT ` + userColumns + ` FROM users WHERE id = ?`)
	if err := r.db.GetContext(ctx, &u, q, id); err != nil {
		return nil, err
	}
	return &u, nil
}
