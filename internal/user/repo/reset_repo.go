package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/darkEye-2021831014/ProfileBasedTaskManager/internal/user/entity"
	"github.com/darkEye-2021831014/ProfileBasedTaskManager/pkg/database"
)

// ResetRepo stores password reset records.
type ResetRepo struct {
	db *sqlx.DB
}

func NewResetRepo(db *sqlx.DB) *ResetRepo {
	return &ResetRepo{db: db}
}

func (r *ResetRepo) Save(ctx context.Context, p *entity.PasswordReset) error {
	q := r.db.Rebind(`INSERT INTO password_resets (id, user_id, token_hash, expires_at, used, created_at) VALUES (?, ?, ?, ?, ?, ?)`)
	_, err := r.db.ExecContext(ctx, q, p.ID, p.UserID, p.TokenHash, p.ExpiresAt, p.Used, p.CreatedAt)
	if database.IsUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

// FindActive returns the unused record whose digest equals tokenHash, or
// sql.ErrNoRows. Expiry is left to the caller.
func (r *ResetRepo) FindActive(ctx context.Context, tokenHash string) (*entity.PasswordReset, error) {
	var p entity.PasswordReset
	q := r.db.Rebind(`SELECT id, user_id, token_hash, expires_at, used, used_at, created_at
	  FROM password_resets WHERE token_hash = ? AND used = FALSE`)
	if err := r.db.GetContext(ctx, &p, q, tokenHash); err != nil {
		return nil, err
	}
	return &p, nil
}

// Consume marks the record used and sets the owner's password hash in one
// transaction. It reports false, changing nothing, when the record was
// already used.
func (r *ResetRepo) Consume(ctx context.Context, id string, userID int64, passwordHash string, at time.Time) (bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE password_resets SET used = TRUE, used_at = ? WHERE id = ? AND used = FALSE`), at, id)
	if err != nil {
		return false, fmt.Errorf("mark reset used: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}

	res, err = tx.ExecContext(ctx, tx.Rebind(`UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`), passwordHash, at, userID)
	if err != nil {
		return false, fmt.Errorf("update password: %w", err)
	}
	if n, err = res.RowsAffected(); err != nil {
		return false, err
	}
	if n == 0 {
		return false, fmt.Errorf("reset %s references missing user %d", id, userID)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit reset: %w", err)
	}
	return true, nil
}
