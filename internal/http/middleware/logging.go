// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file provides the correlation ID injector, the panic recovery handler
// and access to the request-scoped logger:
//
//   - RequestID() reuses X-Request-ID or mints a UUID and echoes it back.
//   - Recovery() turns panics into the standard JSON 500 envelope.
//   - LoggerFrom() returns the logger RedactingLogger attached to the request,
//     so handlers and the websocket session log with the same request_id.
//
// Order: RequestID, RedactingLogger, Recovery.
package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// requestIDKey is the Gin context key under which the request ID is stored.
	requestIDKey = "requestID"
	// requestIDHeader is the HTTP header used to propagate the correlation ID.
	requestIDHeader = "X-Request-ID"
	// loggerKey holds the request-scoped *zerolog.Logger.
	loggerKey = "logger"
	// maxRequestIDLength bounds client-supplied correlation IDs.
	maxRequestIDLength = 128
)

// RequestID attaches (or propagates) a correlation identifier per request.
// Client values longer than 128 bytes are replaced.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(requestIDHeader)
		if rid == "" || len(rid) > maxRequestIDLength {
			rid = uuid.NewString()
		}
		c.Set(requestIDKey, rid)
		c.Writer.Header().Set(requestIDHeader, rid)
		c.Next()
	}
}

// GetRequestID returns the correlation ID set by RequestID, or "".
func GetRequestID(c *gin.Context) string {
	v, _ := c.Get(requestIDKey)
	return asString(v)
}

// Recovery intercepts panics, logs the stack, and answers 500 with the
// standard error envelope when nothing has been written yet. A panic after a
// websocket upgrade only logs.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			rid := GetRequestID(c)
			LoggerFrom(c).Error().
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Msg("panic recovered")

			if c.Writer.Written() {
				c.Abort()
				return
			}
			c.Header(requestIDHeader, rid)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"request_id": rid,
				"code":       "internal_error",
				"message":    "internal server error",
			})
		}()
		c.Next()
	}
}

// LoggerFrom returns the request-scoped zerolog.Logger. Without one it returns
// the global logger tagged with the request ID, if any.
func LoggerFrom(c *gin.Context) *zerolog.Logger {
	if v, ok := c.Get(loggerKey); ok {
		if lg, ok := v.(*zerolog.Logger); ok {
			return lg
		}
	}
	l := log.With().Str("request_id", GetRequestID(c)).Logger()
	return &l
}

// asString returns v when it is a string, otherwise "".
func asString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
