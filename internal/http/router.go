// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// CORS, security headers, idempotency, and rate limiting.
//
// Two route trees are mounted: the REST API under cfg.APIBasePath and the
// websocket endpoint under cfg.WSBasePath. Compression and body limits apply
// to the REST tree only; the websocket handler needs the raw hijackable
// writer.
package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/go-chat-rooms/internal/config"
	"github.com/tbourn/go-chat-rooms/internal/domain"
	"github.com/tbourn/go-chat-rooms/internal/http/handlers"
	"github.com/tbourn/go-chat-rooms/internal/http/middleware"
	"github.com/tbourn/go-chat-rooms/internal/repo"
	"github.com/tbourn/go-chat-rooms/internal/services"
)

// Tokens issues and validates bearer tokens. *auth.TokenManager satisfies it.
type Tokens interface {
	middleware.TokenParser
	services.TokenIssuer
}

// userRepoShim adapts the repository free functions to services.UserRepo.
type userRepoShim struct{}

func (userRepoShim) CreateUser(ctx context.Context, db *gorm.DB, username, hash string) (*domain.User, error) {
	return repo.CreateUser(ctx, db, username, hash)
}

func (userRepoShim) GetUserByUsername(ctx context.Context, db *gorm.DB, username string) (*domain.User, error) {
	return repo.GetUserByUsername(ctx, db, username)
}

// roomRepoShim adapts the repository free functions to services.RoomRepo.
type roomRepoShim struct{}

func (roomRepoShim) CreateRoom(ctx context.Context, db *gorm.DB, name, ownerID string) (*domain.Room, error) {
	return repo.CreateRoom(ctx, db, name, ownerID)
}

func (roomRepoShim) ListRooms(ctx context.Context, db *gorm.DB) ([]domain.Room, error) {
	return repo.ListRooms(ctx, db)
}

func (roomRepoShim) GetRoom(ctx context.Context, db *gorm.DB, id string) (*domain.Room, error) {
	return repo.GetRoom(ctx, db, id)
}

func (roomRepoShim) JoinRoom(ctx context.Context, db *gorm.DB, roomID, userID string) error {
	return repo.JoinRoom(ctx, db, roomID, userID)
}

func (roomRepoShim) IsMember(ctx context.Context, db *gorm.DB, roomID, userID string) (bool, error) {
	return repo.IsMember(ctx, db, roomID, userID)
}

func (roomRepoShim) RoomsStats(ctx context.Context, db *gorm.DB) (int64, *time.Time, error) {
	return repo.RoomsStats(ctx, db)
}

// messageRepoShim adapts the repository free functions to services.MessageRepo.
type messageRepoShim struct{}

func (messageRepoShim) ListRecentMessages(ctx context.Context, db *gorm.DB, roomID string, limit int) ([]domain.MessageWithUsername, error) {
	return repo.ListRecentMessages(ctx, db, roomID, limit)
}

func (messageRepoShim) ListMessagesBefore(ctx context.Context, db *gorm.DB, roomID, before string, limit int) ([]domain.MessageWithUsername, error) {
	return repo.ListMessagesBefore(ctx, db, roomID, before, limit)
}

func (messageRepoShim) MessagesStats(ctx context.Context, db *gorm.DB, roomID string) (int64, *time.Time, error) {
	return repo.MessagesStats(ctx, db, roomID)
}

// idemRepoShim adapts the repository free functions to services.IdempotencyRepo.
type idemRepoShim struct{}

func (idemRepoShim) GetIdempotency(ctx context.Context, db *gorm.DB, userID, scope, key string, now time.Time) (*domain.Idempotency, error) {
	return repo.GetIdempotency(ctx, db, userID, scope, key, now)
}

func (idemRepoShim) CreateIdempotency(ctx context.Context, db *gorm.DB, userID, scope, key, resourceID string, status int, ttl time.Duration) (*domain.Idempotency, error) {
	return repo.CreateIdempotency(ctx, db, userID, scope, key, resourceID, status, ttl)
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII and token scrubbing
//  4. Recovery: capture panics after logger
//  5. Metrics
//  6. CORS and security headers
//
// Inside the REST tree, authenticated routes run RequireAuth, then the
// idempotency validator, then the rate limiter, so replays bypass the limiter
// and buckets are keyed by user.
func RegisterRoutes(r *gin.Engine, db *gorm.DB, cfg config.Config, hub handlers.Hub, tokens Tokens) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{"Sec-WebSocket-Key"},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 6) CORS posture and security headers
	r.Use(corsMiddleware(cfg.CORS.AllowedOrigins)...)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		EnablePolicy: true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	// Dependency injection: services ← repo/db
	authSvc := services.NewAuthService(db, userRepoShim{}, tokens)
	roomSvc := services.NewRoomService(db, roomRepoShim{}, messageRepoShim{}, idemRepoShim{})
	roomSvc.IdempotencyTTL = cfg.IdempotencyTTL
	h := handlers.New(authSvc, roomSvc)

	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP())
	requireAuth := middleware.RequireAuth(tokens)

	// REST API
	apiBase := cfg.APIBasePath
	api := groupWithPrefix(r, apiBase)
	api.Use(gzip.Gzip(gzip.DefaultCompression), limitBody(1<<20))
	{
		a := api.Group("/auth")
		a.POST("/register", rl.Handler(), h.Register)
		a.POST("/login", rl.Handler(), h.Login)
		a.GET("/me", requireAuth, h.Me)
		a.POST("/me", requireAuth, h.Me)

		rooms := api.Group("/rooms", requireAuth, middleware.IdempotencyValidator(
			middleware.IdempotencyOptions{
				MaxLen: 200,
				Scope:  routeScope(apiBase),
			},
			func(ctx context.Context, userID, scope, key string, now time.Time) (bool, error) {
				rec, err := repo.GetIdempotency(ctx, db, userID, scope, key, now)
				if err != nil || rec == nil {
					return false, nil
				}
				return true, nil
			},
		), rl.Handler())
		rooms.GET("", h.ListRooms)
		rooms.POST("", h.CreateRoom)
		rooms.POST("/:room_id/join", h.JoinRoom)
		rooms.GET("/:room_id/messages", h.ListMessages)
	}

	// Websocket
	ws := groupWithPrefix(r, cfg.WSBasePath)
	wsh := handlers.NewWSHandler(hub, handlers.WSOptions{
		ReadLimit:    cfg.Realtime.ReadLimit,
		PingInterval: cfg.Realtime.PingInterval,
		PongWait:     cfg.Realtime.PongWait,
		WriteTimeout: cfg.Realtime.WriteTimeout,
	}, originChecker(cfg.CORS.AllowedOrigins))
	ws.GET("/rooms/:room_id", wsh.ServeRoom)
}

// routeScope names an operation by method and route relative to the API base,
// so idempotency records do not depend on where the API is mounted.
func routeScope(apiBase string) func(*gin.Context) string {
	return func(c *gin.Context) string {
		p := c.FullPath()
		if apiBase != "/" {
			p = strings.TrimPrefix(p, apiBase)
		}
		return c.Request.Method + " " + p
	}
}

// corsMiddleware returns the CORS chain. With no allowlist any origin is
// accepted without credentials; otherwise the allowlisted Origin is echoed.
func corsMiddleware(origins []string) []gin.HandlerFunc {
	base := cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderIdempotencyKey},
		ExposeHeaders:    []string{"X-Request-ID", "Content-Length", "ETag", "Retry-After", "Idempotency-Replayed"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}
	if len(origins) == 0 {
		base.AllowAllOrigins = true
		return []gin.HandlerFunc{
			// Set ACAO even without an Origin header so simple probes see it.
			func(c *gin.Context) {
				c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
				c.Next()
			},
			cors.New(base),
		}
	}

	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[o] = struct{}{}
	}
	base.AllowOrigins = origins
	return []gin.HandlerFunc{
		func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		},
		cors.New(base),
	}
}

// originChecker restricts websocket upgrades to the CORS allowlist. A nil
// result lets the upgrader accept any origin.
func originChecker(origins []string) func(*http.Request) bool {
	if len(origins) == 0 {
		return nil
	}
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := allowed[origin]
		return ok
	}
}

// limitBody caps the request body size at maxBytes using
// http.MaxBytesReader. Oversized bodies fail on read.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
