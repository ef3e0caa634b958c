package middleware

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func lastLine(t *testing.T, s string) map[string]any {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(s), "\n")
	var m map[string]any
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &m); err != nil {
		t.Fatalf("decode log line: %v (%s)", err, s)
	}
	return m
}

func TestRedactQuery(t *testing.T) {
	mask := lowerSet([]string{"token"}, nil)
	cases := []struct {
		in, want string
	}{
		{"", ""},
		{"token=eyJhbGciOi.abc.def", "token=[REDACTED]"},
		{"TOKEN=x&limit=5", "TOKEN=[REDACTED]&limit=5"},
		{"before=141add05-4415-4938-b5a1-17e0d3171aff", "before=[REDACTED:id]"},
		{"email=bob@example.com&a=1", "a=1&email=[REDACTED:email]"},
		{"a=%zz", redacted},
	}
	for _, tc := range cases {
		if got := redactQuery(tc.in, mask); got != tc.want {
			t.Fatalf("redactQuery(%q) = %q; want %q", tc.in, got, tc.want)
		}
	}
}

func TestRedactingLogger_MasksTokenAndHeaders(t *testing.T) {
	buf := captureLogs(t)
	r := gin.New()
	r.Use(RequestID(), RedactingLogger(RedactOptions{MaskHeaders: []string{"X-Api-Key"}}))
	r.GET("/ws/rooms/:room_id", func(c *gin.Context) {
		c.Set(ctxKeyUserID, "u1")
		c.Status(http.StatusOK)
	})

	do(r, http.MethodGet, "/ws/rooms/r1?token=secret-jwt", map[string]string{
		"Authorization": "Bearer secret-jwt",
		"X-Api-Key":     "k",
		"X-Contact":     "carol@example.com",
	})

	out := buf.String()
	if strings.Contains(out, "secret-jwt") {
		t.Fatalf("token leaked into logs: %s", out)
	}
	m := lastLine(t, out)
	if m["level"] != "info" || m["path"] != "/ws/rooms/:room_id" || m["user_id"] != "u1" {
		t.Fatalf("unexpected fields: %v", m)
	}
	if m["query"] != "token=[REDACTED]" {
		t.Fatalf("query = %v", m["query"])
	}
	hdr := m["headers"].(map[string]any)
	if hdr["Authorization"] != redacted || hdr["X-Api-Key"] != redacted {
		t.Fatalf("headers not masked: %v", hdr)
	}
	if hdr["X-Contact"] != "[REDACTED:email]" {
		t.Fatalf("header not scrubbed: %v", hdr)
	}
}

func TestRedactingLogger_LevelsByStatus(t *testing.T) {
	buf := captureLogs(t)
	r := gin.New()
	r.Use(RedactingLogger(RedactOptions{}))
	r.GET("/s/:code", func(c *gin.Context) {
		switch c.Param("code") {
		case "400":
			c.Status(http.StatusBadRequest)
		case "500":
			c.Status(http.StatusInternalServerError)
		default:
			c.Status(http.StatusOK)
		}
	})

	for code, level := range map[string]string{"200": "info", "400": "warn", "500": "error"} {
		buf.Reset()
		do(r, http.MethodGet, "/s/"+code, nil)
		if got := lastLine(t, buf.String())["level"]; got != level {
			t.Fatalf("status %s logged at %v; want %s", code, got, level)
		}
	}
}

func TestRedactingLogger_AttachesScopedLogger(t *testing.T) {
	buf := captureLogs(t)
	r := gin.New()
	r.Use(RequestID(), RedactingLogger(RedactOptions{}))
	r.GET("/x", func(c *gin.Context) {
		LoggerFrom(c).Warn().Msg("inside")
		c.Status(http.StatusOK)
	})
	do(r, http.MethodGet, "/x", map[string]string{"X-Request-ID": "rid-7"})

	first := strings.Split(buf.String(), "\n")[0]
	if !strings.Contains(first, `"message":"inside"`) || !strings.Contains(first, `"request_id":"rid-7"`) {
		t.Fatalf("scoped logger missing request id: %s", first)
	}
}
