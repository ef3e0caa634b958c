package middleware

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func securedRouter(opt SecurityOptions) *gin.Engine {
	r := gin.New()
	r.Use(RequestID(), SecurityHeaders(opt))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func TestSecurityHeaders_Baseline(t *testing.T) {
	w := do(securedRouter(SecurityOptions{}), http.MethodGet, "/x", nil)
	h := w.Header()
	for k, v := range map[string]string{
		"X-Content-Type-Options":        "nosniff",
		"X-Frame-Options":               "DENY",
		"Referrer-Policy":               "no-referrer",
		"Access-Control-Expose-Headers": "X-Request-ID",
	} {
		if h.Get(k) != v {
			t.Fatalf("%s = %q; want %q", k, h.Get(k), v)
		}
	}
	for _, k := range []string{"Permissions-Policy", "Cache-Control", "Strict-Transport-Security"} {
		if h.Get(k) != "" {
			t.Fatalf("unexpected %s", k)
		}
	}
}

func TestSecurityHeaders_Optional(t *testing.T) {
	r := securedRouter(SecurityOptions{EnableHSTS: true, HSTSMaxAge: time.Hour, NoStore: true, EnablePolicy: true})

	w := do(r, http.MethodGet, "/x", nil)
	if w.Header().Get("Strict-Transport-Security") != "" {
		t.Fatalf("HSTS must not be sent over plain HTTP")
	}
	if w.Header().Get("Cache-Control") != "no-store" || w.Header().Get("Permissions-Policy") == "" {
		t.Fatalf("optional headers missing: %v", w.Header())
	}

	w = do(r, http.MethodGet, "/x", map[string]string{"X-Forwarded-Proto": "https"})
	if got := w.Header().Get("Strict-Transport-Security"); got != "max-age=3600; includeSubDomains; preload" {
		t.Fatalf("HSTS = %q", got)
	}
}

func TestSecurityHeaders_DefaultHSTSAge(t *testing.T) {
	r := securedRouter(SecurityOptions{EnableHSTS: true})
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.TLS = &tls.ConnectionState{}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if got := w.Header().Get("Strict-Transport-Security"); got != "max-age=15552000; includeSubDomains; preload" {
		t.Fatalf("HSTS = %q", got)
	}
}

func TestSecurityHeaders_AppendsExposeHeader(t *testing.T) {
	r := gin.New()
	r.Use(RequestID(), func(c *gin.Context) {
		c.Header("Access-Control-Expose-Headers", "ETag")
		c.Next()
	}, SecurityHeaders(SecurityOptions{}))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	if got := do(r, http.MethodGet, "/x", nil).Header().Get("Access-Control-Expose-Headers"); got != "ETag, X-Request-ID" {
		t.Fatalf("expose = %q", got)
	}
}
