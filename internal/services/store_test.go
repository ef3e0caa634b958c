package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
)

func TestStore_RealtimeOperations(t *testing.T) {
	db := newServiceDB(t)
	ctx := context.Background()
	rs := newRoomService(db)
	alice := seedUser(t, db, "alice")
	bob := seedUser(t, db, "bob")
	room, _, err := rs.Create(ctx, alice.ID, "general", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	st := NewStore(db)

	if ok, err := st.RoomExists(ctx, room.ID); err != nil || !ok {
		t.Fatalf("RoomExists: %v %v", ok, err)
	}
	if ok, _ := st.RoomExists(ctx, uuid.NewString()); ok {
		t.Fatal("unknown room reported as existing")
	}
	if ok, _ := st.IsMember(ctx, room.ID, alice.ID); !ok {
		t.Fatal("owner is not a member")
	}
	if ok, _ := st.IsMember(ctx, room.ID, bob.ID); ok {
		t.Fatal("stranger is a member")
	}

	m, err := st.AppendMessage(ctx, room.ID, alice.ID, "hi")
	if err != nil || m.ID == "" || m.CreatedAt.IsZero() {
		t.Fatalf("AppendMessage: %+v err=%v", m, err)
	}
	recent, err := st.RecentMessages(ctx, room.ID, 50)
	if err != nil || len(recent) != 1 || recent[0].Username != "alice" || recent[0].Content != "hi" {
		t.Fatalf("RecentMessages: %+v err=%v", recent, err)
	}
}
