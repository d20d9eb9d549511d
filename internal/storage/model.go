package storage

import (
	"context"
	"time"
)

// User is an identity record. Email is stored trimmed and lower-cased; the
// password hash never leaves the store boundary except through this struct,
// which only the session layer consumes.
type User struct {
	ID            string
	Email         string
	Username      string
	PasswordHash  string
	RefreshTokens []RefreshToken
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// RefreshToken is one entry in a user's ordered session sequence.
type RefreshToken struct {
	Token     string
	CreatedAt time.Time
}

// Note is a personal note owned by exactly one user.
type Note struct {
	ID        string
	UserID    string
	Title     string
	Content   string
	Pinned    bool
	Tags      []string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NotePatch is a partial note update; nil fields are left untouched.
type NotePatch struct {
	Title   *string
	Content *string
	Pinned  *bool
	Tags    *[]string
}

// NoteFilter narrows and pages a note listing.
type NoteFilter struct {
	Pinned *bool
	Tag    string
	Limit  int
	Offset int
}

// Task statuses accepted by the store. Done is always derived from the
// status, never written directly.
const (
	TaskStatusNotStarted = "not started"
	TaskStatusActive     = "active"
	TaskStatusCompleted  = "completed"
)

// ValidTaskStatus reports whether the status is one of the accepted values.
func ValidTaskStatus(status string) bool {
	switch status {
	case TaskStatusNotStarted, TaskStatusActive, TaskStatusCompleted:
		return true
	default:
		return false
	}
}

// Task is a personal task owned by exactly one user.
type Task struct {
	ID          string
	UserID      string
	Title       string
	Description string
	StartDate   time.Time
	EndDate     *time.Time
	Status      string
	Done        bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TaskPatch is a partial task update; nil fields are left untouched.
type TaskPatch struct {
	Title       *string
	Description *string
	Status      *string
	EndDate     *time.Time
}

// UserStore persists users and their refresh-token sequences. Mutations of a
// sequence are atomic conditional updates so concurrent logins and rotations
// for the same user cannot lose each other's sessions.
type UserStore interface {
	CreateUser(ctx context.Context, user *User) error
	UserByID(ctx context.Context, userID string) (*User, error)
	UserByEmail(ctx context.Context, email string) (*User, error)
	// UserByEmailOrUsername resolves either unique attribute in one query,
	// closing the race window between a conflict check and an insert.
	UserByEmailOrUsername(ctx context.Context, email string, username string) (*User, error)
	// AppendRefreshToken appends a token and evicts the oldest entries past
	// the bound in the same transaction.
	AppendRefreshToken(ctx context.Context, userID string, tokenValue string, issuedAt time.Time, bound int) error
	// ReplaceRefreshToken removes exactly oldToken and appends newToken in
	// one transaction, reporting whether oldToken was present. When it was
	// not, no mutation occurs.
	ReplaceRefreshToken(ctx context.Context, userID string, oldToken string, newToken string, issuedAt time.Time, bound int) (bool, error)
	RemoveRefreshToken(ctx context.Context, userID string, tokenValue string) error
	ClearRefreshTokens(ctx context.Context, userID string) error
}

// NoteStore performs user-scoped note CRUD.
type NoteStore interface {
	CreateNote(ctx context.Context, note *Note) error
	ListNotes(ctx context.Context, userID string, filter NoteFilter) ([]Note, error)
	NoteByID(ctx context.Context, userID string, noteID string) (*Note, error)
	UpdateNote(ctx context.Context, userID string, noteID string, patch NotePatch, now time.Time) (*Note, error)
	DeleteNote(ctx context.Context, userID string, noteID string) error
}

// TaskStore performs user-scoped task CRUD.
type TaskStore interface {
	CreateTask(ctx context.Context, task *Task) error
	ListTasks(ctx context.Context, userID string) ([]Task, error)
	UpdateTask(ctx context.Context, userID string, taskID string, patch TaskPatch, now time.Time) (*Task, error)
	DeleteTask(ctx context.Context, userID string, taskID string) error
}
