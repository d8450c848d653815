package entity

import (
	"bytes"
	"encoding/json"
	"time"
)

// Task statuses.
const (
	StatusToDo       = "To Do"
	StatusInProgress = "In Progress"
	StatusDone       = "Done"
)

// ValidStatus reports whether s is one of the known statuses.
func ValidStatus(s string) bool {
	switch s {
	case StatusToDo, StatusInProgress, StatusDone:
		return true
	}
	return false
}

// Task is a row of the tasks table joined with its owner's username and email.
type Task struct {
	ID          int64     `db:"id" json:"id"`
	UserID      int64     `db:"user_id" json:"userId"`
	Title       string    `db:"title" json:"title"`
	Description *string   `db:"description" json:"description"`
	Status      string    `db:"status" json:"status"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time `db:"updated_at" json:"updatedAt"`
	Username    string    `db:"username" json:"username"`
	Email       string    `db:"email" json:"email"`
}

// Filter narrows a task listing. Zero values mean "any".
type Filter struct {
	OwnerID int64
	Status  string
	Query   string
}

// Optional is a JSON field that remembers whether it was present. An explicit
// null is present with a nil Value.
type Optional struct {
	Set   bool
	Value *string
}

func (o *Optional) UnmarshalJSON(b []byte) error {
	o.Set = true
	if bytes.Equal(b, []byte("null")) {
		o.Value = nil
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	o.Value = &s
	return nil
}

// Some returns a present Optional holding s.
func Some(s string) Optional { return Optional{Set: true, Value: &s} }

// Patch is a partial update; only Set fields are written.
type Patch struct {
	Title       Optional `json:"title"`
	Description Optional `json:"description"`
	Status      Optional `json:"status"`
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return !p.Title.Set && !p.Description.Set && !p.Status.Set
}
