package repo

import (
	"context"
	"errors"
	"testing"
)

func TestCreateUser_Error_NoTable(t *testing.T) {
	db := newBareDB(t)
	u, err := CreateUser(context.Background(), db, "alice", "h")
	if err == nil || u != nil {
		t.Fatalf("expected error creating without table, got user=%v err=%v", u, err)
	}
}

func TestCreateUser_And_Lookups(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()

	u, err := CreateUser(ctx, db, "alice", "hash-a")
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if u.ID == "" || u.Username != "alice" || u.PasswordHash != "hash-a" || u.CreatedAt.IsZero() {
		t.Fatalf("unexpected user fields: %+v", u)
	}

	byName, err := GetUserByUsername(ctx, db, "alice")
	if err != nil || byName.ID != u.ID {
		t.Fatalf("GetUserByUsername: err=%v got=%+v", err, byName)
	}
	byID, err := GetUserByID(ctx, db, u.ID)
	if err != nil || byID.Username != "alice" {
		t.Fatalf("GetUserByID: err=%v got=%+v", err, byID)
	}

	if _, err := GetUserByUsername(ctx, db, "bob"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown username, got %v", err)
	}
	if _, err := GetUserByID(ctx, db, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown id, got %v", err)
	}
}

func TestCreateUser_DuplicateUsername(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()

	if _, err := CreateUser(ctx, db, "alice", "h1"); err != nil {
		t.Fatalf("first CreateUser: %v", err)
	}
	if _, err := CreateUser(ctx, db, "alice", "h2"); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}
