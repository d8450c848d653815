package entity

import "time"

// PasswordReset is a single-use reset token record. Only the SHA-256 digest of
// the token is stored.
type PasswordReset struct {
	ID        string     `db:"id"`
	UserID    int64      `db:"user_id"`
	TokenHash string     `db:"token_hash"`
	ExpiresAt time.Time  `db:"expires_at"`
	Used      bool       `db:"used"`
	UsedAt    *time.Time `db:"used_at"`
	CreatedAt time.Time  `db:"created_at"`
}

// ExpiredAt reports whether the token is past its deadline at now.
func (p *PasswordReset) ExpiredAt(now time.Time) bool {
	return !now.Before(p.ExpiresAt)
}
