// Package services defines the business logic for accounts, rooms and room
// history. This file centralizes the service-level error values so that they
// are returned consistently by service methods and checked by callers.
//
// Translation into user-facing messages or HTTP status codes is performed at
// the handler layer.
package services

import (
	"errors"
	"fmt"

	"github.com/tbourn/go-chat-rooms/internal/domain"
)

// Shared taxonomy. These alias the domain values so the realtime engine and
// the REST layer report the same errors.
var (
	ErrUnauthorized = domain.ErrUnauthorized
	ErrForbidden    = domain.ErrForbidden
	ErrRoomNotFound = domain.ErrRoomNotFound
	ErrBadRequest   = domain.ErrBadRequest
	ErrPersistence  = domain.ErrPersistence
	ErrInternal     = domain.ErrInternal
)

// Account errors.
var (
	// ErrUsernameTaken is returned when registering a username that already exists.
	ErrUsernameTaken = errors.New("username already taken")

	// ErrInvalidCredentials is returned by Login for an unknown user or a wrong
	// password. The two cases are deliberately indistinguishable.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrEmptyCredentials is returned when username or password is blank.
	ErrEmptyCredentials = fmt.Errorf("%w: username and password must not be empty", ErrBadRequest)

	// ErrUsernameTooLong is returned when a username exceeds MaxUsernameRunes.
	ErrUsernameTooLong = fmt.Errorf("%w: username too long", ErrBadRequest)
)

// Room errors.
var (
	// ErrEmptyRoomName is returned when a room name is blank after normalization.
	ErrEmptyRoomName = fmt.Errorf("%w: room name must not be empty", ErrBadRequest)

	// ErrRoomNameTooLong is returned when a room name exceeds the configured cap.
	ErrRoomNameTooLong = fmt.Errorf("%w: room name too long", ErrBadRequest)
)
