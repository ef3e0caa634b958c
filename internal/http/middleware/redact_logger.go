// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements RedactingLogger, the access logger. It never logs
// bodies, masks credential headers, and scrubs query strings. The websocket
// endpoint carries its bearer token in the `token` query parameter, so that
// parameter (and any configured extra one) is always masked before any
// pattern-based scrubbing runs.
package middleware

import (
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const redacted = "[REDACTED]"

// RedactOptions configures additional scrub behavior for RedactingLogger.
type RedactOptions struct {
	// MaskHeaders are masked in addition to Authorization, Cookie and Set-Cookie.
	MaskHeaders []string
	// MaskQuery are masked in addition to token and access_token.
	MaskQuery []string
}

var (
	// UUIDs go before phone numbers so digit runs inside ids stay whole.
	uuidRE  = regexp.MustCompile(`(?i)\b[0-9a-f]{8}-[0-9a-f]{4}-[1-5][0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}\b`)
	emailRE = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)
	phoneRE = regexp.MustCompile(`\b(?:\+?\d{1,3}[ .-]?)?(?:\(?\d{2,4}\)?[ .-]?)?\d{3,4}[ .-]?\d{4}\b`)
)

// scrub replaces ids, emails and phone numbers in s.
func scrub(s string) string {
	if s == "" {
		return s
	}
	s = uuidRE.ReplaceAllString(s, "[REDACTED:id]")
	s = emailRE.ReplaceAllString(s, "[REDACTED:email]")
	return phoneRE.ReplaceAllString(s, "[REDACTED:phone]")
}

func lowerSet(base []string, extra []string) map[string]struct{} {
	out := make(map[string]struct{}, len(base)+len(extra))
	for _, v := range append(base, extra...) {
		if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
			out[v] = struct{}{}
		}
	}
	return out
}

// redactQuery masks the values of sensitive parameters and scrubs the rest.
// Keys are emitted in sorted order. An unparsable query is dropped entirely.
func redactQuery(raw string, mask map[string]struct{}) string {
	if raw == "" {
		return ""
	}
	vals, err := url.ParseQuery(raw)
	if err != nil {
		return redacted
	}
	keys := make([]string, 0, len(vals))
	for k := range vals {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		_, secret := mask[strings.ToLower(k)]
		for _, v := range vals[k] {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(k)
			b.WriteByte('=')
			if secret {
				b.WriteString(redacted)
			} else {
				b.WriteString(scrub(v))
			}
		}
	}
	return b.String()
}

// RedactingLogger returns a Gin middleware that attaches a request-scoped
// logger (see LoggerFrom) and emits one access log line per request: info
// for 1xx-3xx, warn for 4xx, error for 5xx. Upgraded websocket requests are
// logged when the session ends, with the session duration as latency.
func RedactingLogger(opts RedactOptions) gin.HandlerFunc {
	maskHeaders := lowerSet([]string{"authorization", "cookie", "set-cookie"}, opts.MaskHeaders)
	maskQuery := lowerSet([]string{"token", "access_token"}, opts.MaskQuery)

	return func(c *gin.Context) {
		start := time.Now()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		safeQuery := redactQuery(c.Request.URL.RawQuery, maskQuery)

		safeHeaders := make(map[string]string, len(c.Request.Header))
		for k, vv := range c.Request.Header {
			if _, ok := maskHeaders[strings.ToLower(k)]; ok {
				safeHeaders[k] = redacted
				continue
			}
			safeHeaders[k] = scrub(strings.Join(vv, ", "))
		}

		scoped := log.With().
			Str("request_id", GetRequestID(c)).
			Str("method", c.Request.Method).
			Str("path", path).
			Logger()
		c.Set(loggerKey, &scoped)

		c.Next()

		status := c.Writer.Status()
		ev := scoped.Info()
		switch {
		case status >= http.StatusInternalServerError:
			ev = scoped.Error()
		case status >= http.StatusBadRequest:
			ev = scoped.Warn()
		}
		if uid := asString(c.Value("userID")); uid != "" {
			ev = ev.Str("user_id", uid)
		}
		ev.
			Str("query", safeQuery).
			Str("remote_ip", c.ClientIP()).
			Int("status", status).
			Int("bytes", c.Writer.Size()).
			Dur("latency", time.Since(start)).
			Interface("headers", safeHeaders).
			Msg("http_request")
	}
}
