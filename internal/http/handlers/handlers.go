// Package handlers exposes the REST endpoints for accounts and rooms and the
// websocket entry point. Handlers are transport-thin: they bind input, call a
// service, and translate results and errors into HTTP responses.
package handlers

import (
	"context"

	"github.com/tbourn/go-chat-rooms/internal/domain"
	"github.com/tbourn/go-chat-rooms/internal/services"
)

// AuthService registers accounts and issues tokens.
type AuthService interface {
	Register(ctx context.Context, username, password string) (*services.AuthResult, error)
	Login(ctx context.Context, username, password string) (*services.AuthResult, error)
}

// RoomService manages rooms, memberships and room history.
//
// Implementations must be safe for concurrent use and honor ctx.
type RoomService interface {
	// Create makes a room owned by userID; replayed is true when idemKey
	// matched an earlier creation.
	Create(ctx context.Context, userID, name, idemKey string) (room *domain.Room, replayed bool, err error)
	// List returns every room, oldest first.
	List(ctx context.Context) ([]domain.Room, error)
	// ListETag returns a weak validator for List.
	ListETag(ctx context.Context) (string, error)
	// Join adds userID to the room; repeated joins are no-ops.
	Join(ctx context.Context, roomID, userID string) (*domain.Room, error)
	// ListMessages pages through a room's history, newest first.
	ListMessages(ctx context.Context, roomID, userID string, limit int, before string) ([]domain.MessageWithUsername, error)
	// MessagesETag returns a weak validator for one ListMessages page.
	MessagesETag(ctx context.Context, roomID string, limit int, before string) (string, error)
}

// Handlers groups the REST endpoints.
type Handlers struct {
	authSvc AuthService
	roomSvc RoomService
}

// New constructs Handlers bound to the given services.
func New(authSvc AuthService, roomSvc RoomService) *Handlers {
	return &Handlers{authSvc: authSvc, roomSvc: roomSvc}
}
