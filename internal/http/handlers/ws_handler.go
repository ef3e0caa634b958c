// Websocket HTTP handler.
//
// GET {ws}/rooms/{room_id}?token=<jwt> upgrades to a websocket and hands the
// connection to the realtime hub. The credential travels in the query string
// because browser websocket clients cannot set an Authorization header.
// Everything that can be refused before the upgrade is refused with the
// standard JSON envelope; room admission runs after it and is answered with
// a close frame.
package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/tbourn/go-chat-rooms/internal/domain"
	"github.com/tbourn/go-chat-rooms/internal/http/middleware"
	"github.com/tbourn/go-chat-rooms/internal/realtime"
)

// Hub is the realtime engine as seen by the transport.
type Hub interface {
	Authenticate(credential string) (domain.Identity, error)
	Serve(ctx context.Context, conn realtime.Conn, who domain.Identity, roomID string) error
}

// WSHandler upgrades room connections.
type WSHandler struct {
	hub      Hub
	opts     WSOptions
	upgrader websocket.Upgrader
}

// NewWSHandler builds the handler. checkOrigin may be nil to accept any
// origin; the bearer token is what authorizes the connection.
func NewWSHandler(hub Hub, opts WSOptions, checkOrigin func(*http.Request) bool) *WSHandler {
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &WSHandler{
		hub:  hub,
		opts: opts.withDefaults(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 << 10,
			WriteBufferSize: 4 << 10,
			CheckOrigin:     checkOrigin,
		},
	}
}

// ServeRoom godoc
// @ID          connectRoom
// @Summary     Open a realtime room connection
// @Description Upgrades to a websocket. The server sends recent history (kind=history), a joined notice (kind=system), then live events (kind=message|system). Clients send {"content": "..."} or plain text.
// @Tags        Realtime
//
// @Param       room_id  path   string  true  "Room ID (UUID)"  format(uuid)
// @Param       token    query  string  true  "Bearer token"
//
// @Success     101  {string}  string  "Switching Protocols"
// @Failure     400  {object}  handlers.ErrorResponse  "Malformed room id"
// @Failure     401  {object}  handlers.ErrorResponse  "Missing or invalid token"
// @Router      /rooms/{room_id} [get]
func (h *WSHandler) ServeRoom(c *gin.Context) {
	token := strings.TrimSpace(c.Query("token"))
	who, err := h.hub.Authenticate(token)
	if err != nil {
		msg := "invalid token"
		if token == "" {
			msg = "missing token"
		}
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, msg)
		return
	}

	roomID := c.Param("room_id")
	if _, err := uuid.Parse(roomID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "room id must be a UUID")
		return
	}

	lg := middleware.LoggerFrom(c)
	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// The upgrader has already written the HTTP error.
		lg.Warn().Err(err).Msg("websocket upgrade failed")
		c.Abort()
		return
	}

	ctx := lg.WithContext(c.Request.Context())
	if err := h.hub.Serve(ctx, newWSConn(ws, h.opts), who, roomID); err != nil {
		lg.Info().Err(err).Str("room_id", roomID).Msg("websocket admission refused")
	}
}
