package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-chat-rooms/internal/domain"
	"github.com/tbourn/go-chat-rooms/internal/repo"
)

func seedMessages(t *testing.T, db *gorm.DB, roomID, userID string, n int) []string {
	t.Helper()
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	ids := make([]string, n)
	for i := 0; i < n; i++ {
		m := &domain.Message{
			ID:        uuid.NewString(),
			RoomID:    roomID,
			UserID:    userID,
			Content:   fmt.Sprintf("m%d", i),
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}
		if err := db.Create(m).Error; err != nil {
			t.Fatalf("seed message: %v", err)
		}
		ids[i] = m.ID
	}
	return ids
}

func TestRoomService_CreateMakesOwnerMember(t *testing.T) {
	db := newServiceDB(t)
	s := newRoomService(db)
	ctx := context.Background()
	alice := seedUser(t, db, "alice")

	room, replayed, err := s.Create(ctx, alice.ID, "  team \t chat ", "")
	if err != nil || replayed {
		t.Fatalf("create: room=%v replayed=%v err=%v", room, replayed, err)
	}
	if room.Name != "team chat" {
		t.Fatalf("name=%q", room.Name)
	}
	if room.OwnerUserID == nil || *room.OwnerUserID != alice.ID {
		t.Fatalf("owner=%v", room.OwnerUserID)
	}
	ok, err := repo.IsMember(ctx, db, room.ID, alice.ID)
	if err != nil || !ok {
		t.Fatalf("owner membership missing: ok=%v err=%v", ok, err)
	}
}

func TestRoomService_CreateValidation(t *testing.T) {
	s := newRoomService(newServiceDB(t))
	ctx := context.Background()

	if _, _, err := s.Create(ctx, "u", " \n ", ""); !errors.Is(err, ErrEmptyRoomName) {
		t.Fatalf("blank name: %v", err)
	}
	if _, _, err := s.Create(ctx, "u", strings.Repeat("x", 256), ""); !errors.Is(err, ErrBadRequest) {
		t.Fatalf("long name: %v", err)
	}
}

func TestRoomService_CreateIdempotent(t *testing.T) {
	db := newServiceDB(t)
	s := newRoomService(db)
	ctx := context.Background()
	alice := seedUser(t, db, "alice")
	bob := seedUser(t, db, "bob")

	first, replayed, err := s.Create(ctx, alice.ID, "general", "k1")
	if err != nil || replayed {
		t.Fatalf("first: replayed=%v err=%v", replayed, err)
	}
	again, replayed, err := s.Create(ctx, alice.ID, "general", "k1")
	if err != nil || !replayed || again.ID != first.ID {
		t.Fatalf("retry: id=%s replayed=%v err=%v", again.ID, replayed, err)
	}

	// Keys are per user.
	other, replayed, err := s.Create(ctx, bob.ID, "general", "k1")
	if err != nil || replayed || other.ID == first.ID {
		t.Fatalf("other user: replayed=%v err=%v", replayed, err)
	}

	rooms, err := s.List(ctx)
	if err != nil || len(rooms) != 2 {
		t.Fatalf("rooms=%d err=%v", len(rooms), err)
	}
}

func TestRoomService_CreateIdempotencyExpires(t *testing.T) {
	db := newServiceDB(t)
	s := newRoomService(db)
	ctx := context.Background()
	alice := seedUser(t, db, "alice")

	first, _, err := s.Create(ctx, alice.ID, "general", "k1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	s.now = func() time.Time { return time.Now().UTC().Add(48 * time.Hour) }
	second, replayed, err := s.Create(ctx, alice.ID, "general", "k1")
	if err != nil || replayed || second.ID == first.ID {
		t.Fatalf("expired key replayed: replayed=%v err=%v", replayed, err)
	}
}

func TestRoomService_ListEmptyAndETag(t *testing.T) {
	db := newServiceDB(t)
	s := newRoomService(db)
	ctx := context.Background()

	rooms, err := s.List(ctx)
	if err != nil || rooms == nil || len(rooms) != 0 {
		t.Fatalf("empty list: %v err=%v", rooms, err)
	}
	before, err := s.ListETag(ctx)
	if err != nil || !strings.HasPrefix(before, `W/"rooms:0:`) {
		t.Fatalf("etag=%q err=%v", before, err)
	}

	alice := seedUser(t, db, "alice")
	if _, _, err := s.Create(ctx, alice.ID, "general", ""); err != nil {
		t.Fatalf("create: %v", err)
	}
	after, _ := s.ListETag(ctx)
	if after == before {
		t.Fatal("etag must change when a room is added")
	}
}

func TestRoomService_JoinIsIdempotent(t *testing.T) {
	db := newServiceDB(t)
	s := newRoomService(db)
	ctx := context.Background()
	alice := seedUser(t, db, "alice")
	bob := seedUser(t, db, "bob")
	room, _, _ := s.Create(ctx, alice.ID, "general", "")

	for i := 0; i < 2; i++ {
		if _, err := s.Join(ctx, room.ID, bob.ID); err != nil {
			t.Fatalf("join #%d: %v", i, err)
		}
	}
	// The owner joining again keeps the owner role.
	if _, err := s.Join(ctx, room.ID, alice.ID); err != nil {
		t.Fatalf("owner join: %v", err)
	}

	var n int64
	db.Model(&domain.Membership{}).Where("room_id = ?", room.ID).Count(&n)
	if n != 2 {
		t.Fatalf("memberships=%d want 2", n)
	}
	var owner domain.Membership
	db.Where("room_id = ? AND user_id = ?", room.ID, alice.ID).First(&owner)
	if owner.Role != domain.RoleOwner {
		t.Fatalf("owner role=%q", owner.Role)
	}

	if _, err := s.Join(ctx, uuid.NewString(), bob.ID); !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("unknown room: %v", err)
	}
}

func TestRoomService_ListMessagesAccess(t *testing.T) {
	db := newServiceDB(t)
	s := newRoomService(db)
	ctx := context.Background()
	alice := seedUser(t, db, "alice")
	bob := seedUser(t, db, "bob")
	room, _, _ := s.Create(ctx, alice.ID, "general", "")

	if _, err := s.ListMessages(ctx, uuid.NewString(), alice.ID, 10, ""); !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("unknown room: %v", err)
	}
	if _, err := s.ListMessages(ctx, room.ID, bob.ID, 10, ""); !errors.Is(err, ErrForbidden) {
		t.Fatalf("non-member: %v", err)
	}
	msgs, err := s.ListMessages(ctx, room.ID, alice.ID, 10, "")
	if err != nil || msgs == nil || len(msgs) != 0 {
		t.Fatalf("empty history: %v err=%v", msgs, err)
	}
}

func TestRoomService_ListMessagesPaging(t *testing.T) {
	db := newServiceDB(t)
	s := newRoomService(db)
	ctx := context.Background()
	alice := seedUser(t, db, "alice")
	room, _, _ := s.Create(ctx, alice.ID, "general", "")
	ids := seedMessages(t, db, room.ID, alice.ID, 5)

	page, err := s.ListMessages(ctx, room.ID, alice.ID, 2, "")
	if err != nil {
		t.Fatalf("page 1: %v", err)
	}
	if len(page) != 2 || page[0].ID != ids[4] || page[1].ID != ids[3] {
		t.Fatalf("page 1 not newest-first: %+v", page)
	}
	if page[0].Username != "alice" {
		t.Fatalf("username=%q", page[0].Username)
	}

	page, err = s.ListMessages(ctx, room.ID, alice.ID, 10, ids[3])
	if err != nil {
		t.Fatalf("page 2: %v", err)
	}
	if len(page) != 3 || page[0].ID != ids[2] || page[2].ID != ids[0] {
		t.Fatalf("page 2: %+v", page)
	}

	// Limits outside 1..100 are clamped.
	page, _ = s.ListMessages(ctx, room.ID, alice.ID, 0, "")
	if len(page) != 1 {
		t.Fatalf("limit 0 → %d items", len(page))
	}

	e1, _ := s.MessagesETag(ctx, room.ID, 2, "")
	seedMessages(t, db, room.ID, alice.ID, 1)
	e2, _ := s.MessagesETag(ctx, room.ID, 2, "")
	if e1 == e2 {
		t.Fatal("messages etag must change on insert")
	}
}
