// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// This file centralizes symbolic error code constants that are mapped to HTTP responses
// (via the `fail()` helper in this package). These codes provide clients with a stable,
// machine-readable error taxonomy that supplements human-readable messages.
//
// Conventions:
//   - Codes are lowercase, snake_case, and domain-agnostic unless explicitly noted.
//   - Generic codes (e.g., bad_request, unauthorized, conflict) mirror common HTTP
//     status semantics to aid interoperability.
//   - Domain-specific codes (e.g., username_taken) are reserved for business
//     errors that status alone cannot convey.
//   - All error responses must include both an HTTP status and one of these codes.
//
// Usage:
//   - Handlers select the most specific matching code and pass it to `fail()` along
//     with the corresponding HTTP status and message.
//   - Clients are expected to branch on these codes for programmatic error handling.
//
// Example response:
//   {
//     "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//     "code": "username_taken",
//     "message": "username already taken"
//   }

package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-chat-rooms/internal/http/middleware"
	"github.com/tbourn/go-chat-rooms/internal/services"
)

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeForbidden        = "forbidden"
	ErrCodeNotFound         = "not_found"
	ErrCodeConflict         = "conflict"
	ErrCodeRateLimited      = "too_many_requests"
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"

	// Domain-specific:
	ErrCodeUsernameTaken      = "username_taken"
	ErrCodeInvalidCredentials = "invalid_credentials"
)

// failErr maps a service error onto status, code and message. Unknown errors
// become a logged 500 whose message does not leak the cause.
func failErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrUsernameTaken):
		fail(c, http.StatusConflict, ErrCodeUsernameTaken, err.Error())
	case errors.Is(err, services.ErrInvalidCredentials):
		fail(c, http.StatusUnauthorized, ErrCodeInvalidCredentials, err.Error())
	case errors.Is(err, services.ErrUnauthorized):
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "unauthorized")
	case errors.Is(err, services.ErrForbidden):
		fail(c, http.StatusForbidden, ErrCodeForbidden, "not a member of this room")
	case errors.Is(err, services.ErrRoomNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case errors.Is(err, services.ErrBadRequest):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	default:
		middleware.LoggerFrom(c).Error().Err(err).Msg("request failed")
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal server error")
	}
}
