// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements bearer authentication for the REST API. The resolved
// identity is stored in the Gin context; handlers read it with Identity.
package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-chat-rooms/internal/auth"
)

// Context keys for the authenticated caller.
const (
	ctxKeyUserID   = "userID"
	ctxKeyUsername = "username"
	ctxKeyIssuedAt = "issuedAt"
)

// TokenParser validates a bearer token.
type TokenParser interface {
	Parse(token string) (*auth.Claims, error)
}

// BearerToken extracts the token from an "Authorization: Bearer <token>"
// header. The scheme is matched case-insensitively.
func BearerToken(c *gin.Context) (string, bool) {
	h := strings.TrimSpace(c.GetHeader("Authorization"))
	scheme, tok, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	tok = strings.TrimSpace(tok)
	return tok, tok != ""
}

// RequireAuth rejects requests without a valid bearer token with 401 and the
// standard error envelope.
func RequireAuth(p TokenParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		tok, ok := BearerToken(c)
		if !ok {
			unauthorized(c, "missing or malformed Authorization header")
			return
		}
		claims, err := p.Parse(tok)
		if err != nil {
			msg := "invalid token"
			if errors.Is(err, auth.ErrExpiredToken) {
				msg = "token has expired"
			}
			unauthorized(c, msg)
			return
		}
		c.Set(ctxKeyUserID, claims.Subject)
		c.Set(ctxKeyUsername, claims.Username)
		if claims.IssuedAt != nil {
			c.Set(ctxKeyIssuedAt, claims.IssuedAt.Time)
		}
		c.Next()
	}
}

// Identity returns the caller resolved by RequireAuth.
func Identity(c *gin.Context) (userID, username string, ok bool) {
	userID = asString(c.Value(ctxKeyUserID))
	username = asString(c.Value(ctxKeyUsername))
	return userID, username, userID != ""
}

// IssuedAt returns the token's issue time, or the zero time.
func IssuedAt(c *gin.Context) time.Time {
	t, _ := c.Value(ctxKeyIssuedAt).(time.Time)
	return t
}

func unauthorized(c *gin.Context, msg string) {
	c.Header("WWW-Authenticate", `Bearer realm="api"`)
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"request_id": GetRequestID(c),
		"code":       "unauthorized",
		"message":    msg,
	})
}
