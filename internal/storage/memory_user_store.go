package storage

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryUserStore is an in-memory UserStore intended for tests and dev. The
// mutex gives the same mutation atomicity the database store gets from
// transactions.
type MemoryUserStore struct {
	mutex sync.Mutex
	users map[string]*User
}

// NewMemoryUserStore creates an empty in-memory user store.
func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{users: make(map[string]*User)}
}

// CreateUser inserts a user, rejecting duplicate ids, emails, or usernames.
func (store *MemoryUserStore) CreateUser(ctx context.Context, user *User) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	if _, exists := store.users[user.ID]; exists {
		return fmt.Errorf("user_store.create.memory: %w", ErrDuplicate)
	}
	for _, existing := range store.users {
		if existing.Email == user.Email {
			return fmt.Errorf("user_store.create.memory: %w", ErrDuplicate)
		}
		if user.Username != "" && existing.Username == user.Username {
			return fmt.Errorf("user_store.create.memory: %w", ErrDuplicate)
		}
	}
	store.users[user.ID] = cloneUser(user)
	return nil
}

// UserByID returns a copy of the stored user.
func (store *MemoryUserStore) UserByID(ctx context.Context, userID string) (*User, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	user, exists := store.users[userID]
	if !exists {
		return nil, fmt.Errorf("user_store.by_id.memory: %w", ErrNotFound)
	}
	return cloneUser(user), nil
}

// UserByEmail returns a copy of the user with the given normalized email.
func (store *MemoryUserStore) UserByEmail(ctx context.Context, email string) (*User, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	for _, user := range store.users {
		if user.Email == email {
			return cloneUser(user), nil
		}
	}
	return nil, fmt.Errorf("user_store.by_email.memory: %w", ErrNotFound)
}

// UserByEmailOrUsername resolves either unique attribute in one pass.
func (store *MemoryUserStore) UserByEmailOrUsername(ctx context.Context, email string, username string) (*User, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	for _, user := range store.users {
		if user.Email == email {
			return cloneUser(user), nil
		}
		if username != "" && user.Username == username {
			return cloneUser(user), nil
		}
	}
	return nil, fmt.Errorf("user_store.by_email_or_username.memory: %w", ErrNotFound)
}

// AppendRefreshToken appends a token and evicts the oldest entries past the bound.
func (store *MemoryUserStore) AppendRefreshToken(ctx context.Context, userID string, tokenValue string, issuedAt time.Time, bound int) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	user, exists := store.users[userID]
	if !exists {
		return fmt.Errorf("user_store.append_token.memory: %w", ErrNotFound)
	}
	user.RefreshTokens = append(user.RefreshTokens, RefreshToken{Token: tokenValue, CreatedAt: issuedAt.UTC()})
	user.RefreshTokens = truncateOldest(user.RefreshTokens, bound)
	return nil
}

// ReplaceRefreshToken removes exactly oldToken and appends newToken,
// reporting whether oldToken was present.
func (store *MemoryUserStore) ReplaceRefreshToken(ctx context.Context, userID string, oldToken string, newToken string, issuedAt time.Time, bound int) (bool, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	user, exists := store.users[userID]
	if !exists {
		return false, fmt.Errorf("user_store.replace_token.memory: %w", ErrNotFound)
	}
	remaining := user.RefreshTokens[:0:0]
	found := false
	for _, record := range user.RefreshTokens {
		if !found && record.Token == oldToken {
			found = true
			continue
		}
		remaining = append(remaining, record)
	}
	if !found {
		return false, nil
	}
	remaining = append(remaining, RefreshToken{Token: newToken, CreatedAt: issuedAt.UTC()})
	user.RefreshTokens = truncateOldest(remaining, bound)
	return true, nil
}

// RemoveRefreshToken deletes the exact token entry if present.
func (store *MemoryUserStore) RemoveRefreshToken(ctx context.Context, userID string, tokenValue string) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	user, exists := store.users[userID]
	if !exists {
		return nil
	}
	remaining := user.RefreshTokens[:0:0]
	for _, record := range user.RefreshTokens {
		if record.Token == tokenValue {
			continue
		}
		remaining = append(remaining, record)
	}
	user.RefreshTokens = remaining
	return nil
}

// ClearRefreshTokens drops the user's entire session sequence.
func (store *MemoryUserStore) ClearRefreshTokens(ctx context.Context, userID string) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	user, exists := store.users[userID]
	if !exists {
		return fmt.Errorf("user_store.clear_tokens.memory: %w", ErrNotFound)
	}
	user.RefreshTokens = nil
	return nil
}

func truncateOldest(records []RefreshToken, bound int) []RefreshToken {
	if bound <= 0 || len(records) <= bound {
		return records
	}
	return records[len(records)-bound:]
}

func cloneUser(user *User) *User {
	clone := *user
	clone.RefreshTokens = make([]RefreshToken, len(user.RefreshTokens))
	copy(clone.RefreshTokens, user.RefreshTokens)
	return &clone
}
