package storage

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func seedUser(t *testing.T, store *MemoryUserStore, id string) *User {
	t.Helper()
	user := &User{
		ID:           id,
		Email:        id + "@example.com",
		Username:     id,
		PasswordHash: "hash",
		CreatedAt:    time.Unix(1700000000, 0).UTC(),
		UpdatedAt:    time.Unix(1700000000, 0).UTC(),
	}
	if err := store.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user
}

func TestMemoryUserStoreDuplicates(t *testing.T) {
	store := NewMemoryUserStore()
	seedUser(t, store, "alice")

	sameEmail := &User{ID: "bob", Email: "alice@example.com", Username: "bob"}
	if err := store.CreateUser(context.Background(), sameEmail); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate for reused email, got %v", err)
	}

	sameUsername := &User{ID: "carol", Email: "carol@example.com", Username: "alice"}
	if err := store.CreateUser(context.Background(), sameUsername); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate for reused username, got %v", err)
	}
}

func TestMemoryUserStoreLookups(t *testing.T) {
	store := NewMemoryUserStore()
	seedUser(t, store, "alice")

	if _, err := store.UserByID(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := store.UserByEmail(context.Background(), "alice@example.com"); err != nil {
		t.Fatalf("unexpected email lookup error: %v", err)
	}
	if _, err := store.UserByEmailOrUsername(context.Background(), "none@example.com", "alice"); err != nil {
		t.Fatalf("unexpected username lookup error: %v", err)
	}
	if _, err := store.UserByEmailOrUsername(context.Background(), "none@example.com", ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for empty username, got %v", err)
	}
}

func TestMemoryUserStoreAppendEnforcesBound(t *testing.T) {
	store := NewMemoryUserStore()
	user := seedUser(t, store, "alice")
	ctx := context.Background()

	for index := 0; index < 10; index++ {
		tokenValue := fmt.Sprintf("token-%d", index)
		if err := store.AppendRefreshToken(ctx, user.ID, tokenValue, time.Unix(int64(1700000000+index), 0), 8); err != nil {
			t.Fatalf("append error: %v", err)
		}
	}

	stored, lookupErr := store.UserByID(ctx, user.ID)
	if lookupErr != nil {
		t.Fatalf("lookup error: %v", lookupErr)
	}
	if len(stored.RefreshTokens) != 8 {
		t.Fatalf("expected sequence bounded at 8, got %d", len(stored.RefreshTokens))
	}
	if stored.RefreshTokens[0].Token != "token-2" {
		t.Fatalf("expected oldest entries evicted first, head is %q", stored.RefreshTokens[0].Token)
	}
	if stored.RefreshTokens[7].Token != "token-9" {
		t.Fatalf("expected insertion order preserved, tail is %q", stored.RefreshTokens[7].Token)
	}
}

func TestMemoryUserStoreReplace(t *testing.T) {
	store := NewMemoryUserStore()
	user := seedUser(t, store, "alice")
	ctx := context.Background()

	if err := store.AppendRefreshToken(ctx, user.ID, "old-token", time.Unix(1700000000, 0), 8); err != nil {
		t.Fatalf("append error: %v", err)
	}

	replaced, replaceErr := store.ReplaceRefreshToken(ctx, user.ID, "old-token", "new-token", time.Unix(1700000100, 0), 8)
	if replaceErr != nil {
		t.Fatalf("replace error: %v", replaceErr)
	}
	if !replaced {
		t.Fatalf("expected replacement to report success")
	}

	replacedAgain, replayErr := store.ReplaceRefreshToken(ctx, user.ID, "old-token", "another-token", time.Unix(1700000200, 0), 8)
	if replayErr != nil {
		t.Fatalf("replay error: %v", replayErr)
	}
	if replacedAgain {
		t.Fatalf("replayed token must not be replaceable")
	}

	stored, lookupErr := store.UserByID(ctx, user.ID)
	if lookupErr != nil {
		t.Fatalf("lookup error: %v", lookupErr)
	}
	if len(stored.RefreshTokens) != 1 || stored.RefreshTokens[0].Token != "new-token" {
		t.Fatalf("expected only the replacement token, got %+v", stored.RefreshTokens)
	}
}

func TestMemoryUserStoreRemoveAndClear(t *testing.T) {
	store := NewMemoryUserStore()
	user := seedUser(t, store, "alice")
	ctx := context.Background()

	for index := 0; index < 3; index++ {
		tokenValue := fmt.Sprintf("token-%d", index)
		if err := store.AppendRefreshToken(ctx, user.ID, tokenValue, time.Unix(1700000000, 0), 8); err != nil {
			t.Fatalf("append error: %v", err)
		}
	}

	if err := store.RemoveRefreshToken(ctx, user.ID, "token-1"); err != nil {
		t.Fatalf("remove error: %v", err)
	}
	if err := store.RemoveRefreshToken(ctx, "missing-user", "token-1"); err != nil {
		t.Fatalf("remove for unknown user must be a no-op, got %v", err)
	}

	stored, _ := store.UserByID(ctx, user.ID)
	if len(stored.RefreshTokens) != 2 {
		t.Fatalf("expected 2 tokens after removal, got %d", len(stored.RefreshTokens))
	}

	if err := store.ClearRefreshTokens(ctx, user.ID); err != nil {
		t.Fatalf("clear error: %v", err)
	}
	stored, _ = store.UserByID(ctx, user.ID)
	if len(stored.RefreshTokens) != 0 {
		t.Fatalf("expected empty sequence after clear, got %d", len(stored.RefreshTokens))
	}
}
