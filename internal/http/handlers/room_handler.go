// Room HTTP handlers.
//
//   - GET  /rooms                       (list, weak ETag)
//   - POST /rooms                       (create, Idempotency-Key)
//   - POST /rooms/{room_id}/join        (join, idempotent)
//   - GET  /rooms/{room_id}/messages    (history page, weak ETag)
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tbourn/go-chat-rooms/internal/http/middleware"
	"github.com/tbourn/go-chat-rooms/internal/services"
	"github.com/tbourn/go-chat-rooms/internal/utils"
)

// CreateRoomRequest is the body of POST /rooms.
type CreateRoomRequest struct {
	// Name is the display name; whitespace is collapsed.
	Name string `json:"name" example:"general"`
}

// roomParam returns the validated :room_id or answers 400.
func roomParam(c *gin.Context) (string, bool) {
	id := c.Param("room_id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "room id must be a UUID")
		return "", false
	}
	return id, true
}

// caller returns the authenticated user id or answers 401.
func caller(c *gin.Context) (string, bool) {
	uid, _, authed := middleware.Identity(c)
	if !authed {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "unauthorized")
	}
	return uid, authed
}

// ListRooms godoc
// @ID          listRooms
// @Summary     List rooms
// @Description Returns every room, oldest first. Supports weak ETag via If-None-Match.
// @Tags        Rooms
// @Produce     json
// @Security    BearerAuth
// @Param       If-None-Match  header  string  false  "Return 304 if ETag matches"
// @Success     200  {array}   domain.Room
// @Header      200  {string}  ETag  "Weak ETag for current result"
// @Success     304  {string}  string  "Not Modified"
// @Failure     401  {object}  handlers.ErrorResponse
// @Router      /rooms [get]
func (h *Handlers) ListRooms(c *gin.Context) {
	ctx := c.Request.Context()
	if etag, err := h.roomSvc.ListETag(ctx); err == nil && notModified(c, etag) {
		return
	}
	rooms, err := h.roomSvc.List(ctx)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, rooms)
}

// CreateRoom godoc
// @ID          createRoom
// @Summary     Create a room
// @Description Creates a room owned by the caller, who becomes its first member. With an Idempotency-Key, retries return the original room.
// @Tags        Rooms
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       Idempotency-Key  header  string  false  "Idempotency key for safe retries"
// @Param       body             body    handlers.CreateRoomRequest  true  "Room"
// @Success     201  {object}  domain.Room
// @Success     200  {object}  domain.Room  "Replayed"
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     401  {object}  handlers.ErrorResponse
// @Router      /rooms [post]
func (h *Handlers) CreateRoom(c *gin.Context) {
	uid, authed := caller(c)
	if !authed {
		return
	}
	var req CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	key, _ := middleware.GetIdempotencyKey(c)

	room, replayed, err := h.roomSvc.Create(c.Request.Context(), uid, req.Name, key)
	if err != nil {
		failErr(c, err)
		return
	}
	if replayed {
		c.Header("Idempotency-Replayed", "true")
		ok(c, http.StatusOK, room)
		return
	}
	ok(c, http.StatusCreated, room)
}

// JoinRoom godoc
// @ID          joinRoom
// @Summary     Join a room
// @Description Makes the caller a member. Joining again is a no-op.
// @Tags        Rooms
// @Produce     json
// @Security    BearerAuth
// @Param       room_id  path  string  true  "Room ID (UUID)"  format(uuid)
// @Success     200  {object}  domain.Room
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse  "Room not found"
// @Router      /rooms/{room_id}/join [post]
func (h *Handlers) JoinRoom(c *gin.Context) {
	uid, authed := caller(c)
	if !authed {
		return
	}
	roomID, valid := roomParam(c)
	if !valid {
		return
	}
	room, err := h.roomSvc.Join(c.Request.Context(), roomID, uid)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, room)
}

// ListMessages godoc
// @ID          listMessages
// @Summary     Page through room history
// @Description Returns messages newest first. `before` is a message id; only older messages are returned.
// @Tags        Rooms
// @Produce     json
// @Security    BearerAuth
// @Param       room_id  path   string  true   "Room ID (UUID)"  format(uuid)
// @Param       limit    query  int     false  "Page size"  minimum(1) maximum(100) default(50)
// @Param       before   query  string  false  "Message id cursor"  format(uuid)
// @Success     200  {array}   domain.MessageWithUsername
// @Success     304  {string}  string  "Not Modified"
// @Failure     403  {object}  handlers.ErrorResponse  "Not a member"
// @Failure     404  {object}  handlers.ErrorResponse  "Room not found"
// @Router      /rooms/{room_id}/messages [get]
func (h *Handlers) ListMessages(c *gin.Context) {
	uid, authed := caller(c)
	if !authed {
		return
	}
	roomID, valid := roomParam(c)
	if !valid {
		return
	}
	before := c.Query("before")
	if before != "" {
		if _, err := uuid.Parse(before); err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "before must be a message id")
			return
		}
	}
	limit := utils.ClampLimit(c.Query("limit"), services.DefaultMessagePage, services.MaxMessagePage)

	ctx := c.Request.Context()
	msgs, err := h.roomSvc.ListMessages(ctx, roomID, uid, limit, before)
	if err != nil {
		failErr(c, err)
		return
	}
	if etag, err := h.roomSvc.MessagesETag(ctx, roomID, limit, before); err == nil && notModified(c, etag) {
		return
	}
	ok(c, http.StatusOK, msgs)
}
