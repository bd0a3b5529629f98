package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestSessionStore(t *testing.T) SessionStore {
	t.Helper()

	client, _ := newTestRedis(t)
	return NewSessionStore(client, 24*time.Hour)
}

func TestSessionStore_Lifecycle(t *testing.T) {
	store := newTestSessionStore(t)
	ctx := context.Background()

	admin := &Admin{ID: "a-1", Email: "admin@example.com"}

	token, err := store.Establish(ctx, admin)
	if err != nil {
		t.Fatalf("Establish returned error: %v", err)
	}
	if len(token) != sessionTokenBytes*2 {
		t.Fatalf("expected %d-char hex token, got %d chars", sessionTokenBytes*2, len(token))
	}

	session, err := store.Validate(ctx, token)
	if err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
	if session.AdminID != "a-1" || session.Email != "admin@example.com" {
		t.Fatalf("unexpected session contents: %+v", session)
	}

	if err := store.Destroy(ctx, token); err != nil {
		t.Fatalf("Destroy returned error: %v", err)
	}
	if _, err := store.Validate(ctx, token); !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("expected ErrSessionInvalid after destroy, got %v", err)
	}
}

func TestSessionStore_ValidateUnknownToken(t *testing.T) {
	store := newTestSessionStore(t)

	_, err := store.Validate(context.Background(), "deadbeef")
	if !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("expected ErrSessionInvalid, got %v", err)
	}
}

func TestSessionStore_DestroyIsIdempotent(t *testing.T) {
	store := newTestSessionStore(t)
	ctx := context.Background()

	if err := store.Destroy(ctx, "never-existed"); err != nil {
		t.Fatalf("Destroy of absent session returned error: %v", err)
	}
	if err := store.Destroy(ctx, "never-existed"); err != nil {
		t.Fatalf("second Destroy returned error: %v", err)
	}
}

func TestSessionStore_TokensAreUnique(t *testing.T) {
	store := newTestSessionStore(t)
	ctx := context.Background()

	admin := &Admin{ID: "a-1", Email: "admin@example.com"}
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		token, err := store.Establish(ctx, admin)
		if err != nil {
			t.Fatalf("Establish returned error: %v", err)
		}
		if seen[token] {
			t.Fatal("duplicate session token generated")
		}
		seen[token] = true
	}
}
