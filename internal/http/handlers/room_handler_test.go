package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-chat-rooms/internal/domain"
	"github.com/tbourn/go-chat-rooms/internal/services"
)

const (
	roomA = "6f1c2a9e-3a51-4a5e-9d1e-0c8f1f0f7a11"
	msgA  = "0b7a4c55-0d35-4a8e-a8f0-2f7a1e6f9c22"
)

func roomRouter(fr *fakeRooms) *gin.Engine {
	h := New(&fakeAuth{}, fr)
	r := gin.New()
	g := r.Group("/rooms", withCaller("u-1", "alice"))
	g.GET("", h.ListRooms)
	g.POST("", func(c *gin.Context) {
		if k := c.GetHeader("Idempotency-Key"); k != "" {
			c.Set("idem.key", k)
		}
		c.Next()
	}, h.CreateRoom)
	g.POST("/:room_id/join", h.JoinRoom)
	g.GET("/:room_id/messages", h.ListMessages)
	return r
}

func TestListRooms_ETag(t *testing.T) {
	calls := 0
	fr := &fakeRooms{
		listETag: `W/"rooms:1:1"`,
		listFn: func(context.Context) ([]domain.Room, error) {
			calls++
			return []domain.Room{{ID: roomA, Name: "general", CreatedAt: time.Now()}}, nil
		},
	}
	r := roomRouter(fr)

	w := do(r, http.MethodGet, "/rooms", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	var rooms []domain.Room
	if err := json.Unmarshal(w.Body.Bytes(), &rooms); err != nil || len(rooms) != 1 {
		t.Fatalf("rooms=%v err=%v", rooms, err)
	}

	w = do(r, http.MethodGet, "/rooms", "", map[string]string{"If-None-Match": `W/"rooms:1:1"`})
	if w.Code != http.StatusNotModified {
		t.Fatalf("conditional status=%d", w.Code)
	}
	if calls != 1 {
		t.Fatalf("list should be skipped on 304, calls=%d", calls)
	}
}

func TestCreateRoom_CreatedThenReplayed(t *testing.T) {
	var keys []string
	fr := &fakeRooms{createFn: func(_ context.Context, uid, name, key string) (*domain.Room, bool, error) {
		if uid != "u-1" {
			t.Fatalf("uid=%q", uid)
		}
		keys = append(keys, key)
		return &domain.Room{ID: roomA, Name: name}, len(keys) > 1, nil
	}}
	r := roomRouter(fr)
	hdr := map[string]string{"Idempotency-Key": "k-1"}

	w := do(r, http.MethodPost, "/rooms", `{"name":"general"}`, hdr)
	if w.Code != http.StatusCreated {
		t.Fatalf("status=%d", w.Code)
	}
	w = do(r, http.MethodPost, "/rooms", `{"name":"general"}`, hdr)
	if w.Code != http.StatusOK || w.Header().Get("Idempotency-Replayed") != "true" {
		t.Fatalf("replay status=%d hdr=%q", w.Code, w.Header().Get("Idempotency-Replayed"))
	}
	if len(keys) != 2 || keys[0] != "k-1" {
		t.Fatalf("keys=%v", keys)
	}
}

func TestCreateRoom_EmptyName(t *testing.T) {
	fr := &fakeRooms{createFn: func(context.Context, string, string, string) (*domain.Room, bool, error) {
		return nil, false, services.ErrEmptyRoomName
	}}
	w := do(roomRouter(fr), http.MethodPost, "/rooms", `{"name":"  "}`, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestJoinRoom(t *testing.T) {
	fr := &fakeRooms{joinFn: func(_ context.Context, roomID, _ string) (*domain.Room, error) {
		if roomID != roomA {
			return nil, services.ErrRoomNotFound
		}
		return &domain.Room{ID: roomA}, nil
	}}
	r := roomRouter(fr)

	if w := do(r, http.MethodPost, "/rooms/"+roomA+"/join", "", nil); w.Code != http.StatusOK {
		t.Fatalf("join status=%d", w.Code)
	}
	if w := do(r, http.MethodPost, "/rooms/not-a-uuid/join", "", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("bad id status=%d", w.Code)
	}
	if w := do(r, http.MethodPost, "/rooms/"+msgA+"/join", "", nil); w.Code != http.StatusNotFound {
		t.Fatalf("unknown room status=%d", w.Code)
	}
}

func TestListMessages_LimitAndCursor(t *testing.T) {
	var gotLimit int
	var gotBefore string
	fr := &fakeRooms{
		msgETag: `W/"m"`,
		messagesFn: func(_ context.Context, _, _ string, limit int, before string) ([]domain.MessageWithUsername, error) {
			gotLimit, gotBefore = limit, before
			return []domain.MessageWithUsername{}, nil
		},
	}
	r := roomRouter(fr)

	w := do(r, http.MethodGet, "/rooms/"+roomA+"/messages?limit=500&before="+msgA, "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	if gotLimit != services.MaxMessagePage || gotBefore != msgA {
		t.Fatalf("limit=%d before=%q", gotLimit, gotBefore)
	}
	if w.Body.String() != "[]" {
		t.Fatalf("empty page must be [], got %s", w.Body.String())
	}

	do(r, http.MethodGet, "/rooms/"+roomA+"/messages", "", nil)
	if gotLimit != services.DefaultMessagePage {
		t.Fatalf("default limit=%d", gotLimit)
	}

	if w := do(r, http.MethodGet, "/rooms/"+roomA+"/messages?before=x", "", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("bad cursor status=%d", w.Code)
	}
}

func TestListMessages_AccessChecksBeforeETag(t *testing.T) {
	fr := &fakeRooms{
		msgETag: `W/"m"`,
		messagesFn: func(context.Context, string, string, int, string) ([]domain.MessageWithUsername, error) {
			return nil, services.ErrForbidden
		},
	}
	w := do(roomRouter(fr), http.MethodGet, "/rooms/"+roomA+"/messages", "", map[string]string{"If-None-Match": `W/"m"`})
	if w.Code != http.StatusForbidden {
		t.Fatalf("status=%d", w.Code)
	}
	if w.Header().Get("ETag") != "" {
		t.Fatalf("non-member must not see the validator")
	}
}
