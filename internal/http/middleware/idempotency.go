// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements Idempotency-Key support for unsafe requests. The
// validator checks the header, stashes the key and, through a narrow lookup
// function, marks requests that would replay an earlier result so the rate
// limiter lets them through. Serving the replay stays with the handler.
package middleware

import (
	"context"
	"net/http"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey is the request header carrying the key.
const HeaderIdempotencyKey = "Idempotency-Key"

const (
	ctxKeyIdemKey    = "idem.key"
	ctxKeyIdemScope  = "idem.scope"
	ctxKeyIdemReplay = "idem.replay"
	ctxKeyRateBypass = "rate.bypass"
)

var defaultKeyPattern = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)

// GetIdempotencyKey returns the validated key, if any.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	s := asString(c.Value(ctxKeyIdemKey))
	return s, s != ""
}

// GetIdempotencyScope returns the scope the key was checked under.
func GetIdempotencyScope(c *gin.Context) string {
	return asString(c.Value(ctxKeyIdemScope))
}

// IsReplay reports whether the lookup found a live record for this key.
func IsReplay(c *gin.Context) bool {
	b, _ := c.Value(ctxKeyIdemReplay).(bool)
	return b
}

// IdempotencyOptions configures IdempotencyValidator.
type IdempotencyOptions struct {
	// MaxLen caps the key length; <= 0 means 200.
	MaxLen int
	// Pattern restricts allowed characters; nil means ^[A-Za-z0-9._~\-:]+$.
	Pattern *regexp.Regexp
	// Scope names the operation a key belongs to. The default is the method
	// plus the registered route, e.g. "POST /api/rooms".
	Scope func(*gin.Context) string
}

// IdempotencyLookup reports whether a live record exists for
// (userID, scope, key). TTL is enforced by the lookup.
type IdempotencyLookup func(ctx context.Context, userID, scope, key string, now time.Time) (bool, error)

// IdempotencyValidator validates and stashes the Idempotency-Key header on
// POST, PUT, PATCH and DELETE. Safe methods and requests without the header
// pass through untouched. An invalid key is answered with 400. Lookup errors
// never block the request.
func IdempotencyValidator(opts IdempotencyOptions, lookup IdempotencyLookup) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = 200
	}
	pat := opts.Pattern
	if pat == nil {
		pat = defaultKeyPattern
	}
	scopeOf := opts.Scope
	if scopeOf == nil {
		scopeOf = func(c *gin.Context) string { return c.Request.Method + " " + c.FullPath() }
	}

	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" || !unsafeMethod(c.Request.Method) {
			c.Next()
			return
		}
		if len(key) > maxLen || !pat.MatchString(key) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"request_id": GetRequestID(c),
				"code":       "bad_request",
				"message":    "invalid Idempotency-Key",
			})
			return
		}

		scope := scopeOf(c)
		c.Set(ctxKeyIdemKey, key)
		c.Set(ctxKeyIdemScope, scope)

		if uid := asString(c.Value(ctxKeyUserID)); lookup != nil && uid != "" {
			if found, err := lookup(c.Request.Context(), uid, scope, key, time.Now().UTC()); err == nil && found {
				c.Set(ctxKeyIdemReplay, true)
				c.Set(ctxKeyRateBypass, true)
			}
		}
		c.Next()
	}
}

func unsafeMethod(m string) bool {
	switch m {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}
