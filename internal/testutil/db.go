// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/darkEye-2021831014/ProfileBasedTaskManager/internal/user/entity"
	"github.com/darkEye-2021831014/ProfileBasedTaskManager/pkg/database"
)

// SQLiteDB opens a fresh schema-initialized SQLite file under t.TempDir.
func SQLiteDB(t testing.TB) *sqlx.DB {
	t.Helper()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// InsertUser writes a user row directly, bypassing validation.
func InsertUser(t testing.TB, db *sqlx.DB, id int64, username, email, passwordHash string, role entity.Role) *entity.User {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Second)
	u := &entity.User{
		ID:           id,
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	_, err := db.ExecContext(context.Background(),
		`INSERT INTO users (id, username, email, password_hash, role, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Username, u.Email, u.PasswordHash, string(u.Role), u.CreatedAt, u.UpdatedAt)
	require.NoError(t, err)
	return u
}
