// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as server timeouts, logging, database paths, token signing, realtime
// room fanout tuning, rate limiting, and observability.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/tbourn/go-chat-rooms/internal/domain"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "go-chat-rooms")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// AuthConfig defines bearer token signing settings.
type AuthConfig struct {
	JWTSecret string        // JWT_SECRET (HS256 key, >= 16 bytes)
	JWTIssuer string        // JWT_ISSUER
	TokenTTL  time.Duration // JWT_EXP
}

// RealtimeConfig tunes the room fanout engine and the websocket transport.
type RealtimeConfig struct {
	ChannelCapacity int           // ROOM_CHANNEL_CAPACITY: buffered events per room
	HistoryLimit    int           // HISTORY_LIMIT: replayed messages on join (max 50)
	ReadLimit       int64         // WS_READ_LIMIT: max inbound frame size in bytes
	PingInterval    time.Duration // WS_PING_INTERVAL
	PongWait        time.Duration // WS_PONG_WAIT
	WriteTimeout    time.Duration // WS_WRITE_TIMEOUT
	MsgRPS          float64       // WS_MSG_RPS: inbound messages per second per connection (0 = unlimited)
	MsgBurst        int           // WS_MSG_BURST
}

// MaxHistoryLimit caps the history page replayed to a joining connection.
const MaxHistoryLimit = 50

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	ShutdownTimeout   time.Duration // e.g. 10s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging
	LogLevel  string // debug|info|warn|error|fatal|panic
	LogPretty bool   // pretty console logs in dev

	// Routing
	APIBasePath string // base path for REST routes
	WSBasePath  string // base path for websocket routes

	// Storage
	DBPath string // SQLite path

	Auth     AuthConfig
	Realtime RealtimeConfig

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL time.Duration // how long a given Idempotency-Key is valid

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", getenv("SERVER_PORT", "8080")),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout:   getdur("SHUTDOWN_TIMEOUT", 10*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging
		LogLevel:  strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty: getbool("LOG_PRETTY", false),

		// Routing
		APIBasePath: normalizeBasePath(getenv("API_BASE_PATH", "/api")),
		WSBasePath:  normalizeBasePath(getenv("WS_BASE_PATH", "/ws")),

		// Storage
		DBPath: getenv("DB_PATH", "chat.db"),

		Auth: AuthConfig{
			JWTSecret: getenv("JWT_SECRET", ""),
			JWTIssuer: getenv("JWT_ISSUER", "go-chat-rooms"),
			TokenTTL:  getdur("JWT_EXP", 24*time.Hour),
		},

		Realtime: RealtimeConfig{
			ChannelCapacity: getint("ROOM_CHANNEL_CAPACITY", 100),
			HistoryLimit:    getint("HISTORY_LIMIT", MaxHistoryLimit),
			ReadLimit:       int64(getint("WS_READ_LIMIT", 64<<10)),
			PingInterval:    getdur("WS_PING_INTERVAL", 30*time.Second),
			PongWait:        getdur("WS_PONG_WAIT", 90*time.Second),
			WriteTimeout:    getdur("WS_WRITE_TIMEOUT", 10*time.Second),
			MsgRPS:          getfloat("WS_MSG_RPS", 10),
			MsgBurst:        getint("WS_MSG_BURST", 20),
		},

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Idempotency
		IdempotencyTTL: getdur("IDEMPOTENCY_TTL", 24*time.Hour),

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-chat-rooms"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}
	if cfg.Realtime.HistoryLimit > MaxHistoryLimit {
		cfg.Realtime.HistoryLimit = MaxHistoryLimit
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 || cfg.ShutdownTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if cfg.APIBasePath == cfg.WSBasePath {
		return cfg, errors.New("API_BASE_PATH and WS_BASE_PATH must differ")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty")
	}
	if len(cfg.Auth.JWTSecret) < 16 {
		return cfg, errors.New("JWT_SECRET must be set (at least 16 bytes)")
	}
	if strings.TrimSpace(cfg.Auth.JWTIssuer) == "" {
		return cfg, errors.New("JWT_ISSUER must not be empty")
	}
	if cfg.Auth.TokenTTL <= 0 {
		return cfg, errors.New("JWT_EXP must be > 0")
	}
	if cfg.Realtime.ChannelCapacity < 1 {
		return cfg, errors.New("ROOM_CHANNEL_CAPACITY must be >= 1")
	}
	if cfg.Realtime.HistoryLimit < 1 {
		return cfg, errors.New("HISTORY_LIMIT must be between 1 and 50")
	}
	if cfg.Realtime.ReadLimit < domain.MaxMessageFrameBytes {
		return cfg, fmt.Errorf("WS_READ_LIMIT must be >= %d", domain.MaxMessageFrameBytes)
	}
	if cfg.Realtime.PingInterval <= 0 || cfg.Realtime.WriteTimeout <= 0 {
		return cfg, errors.New("WS_PING_INTERVAL and WS_WRITE_TIMEOUT must be positive")
	}
	if cfg.Realtime.PongWait <= cfg.Realtime.PingInterval {
		return cfg, errors.New("WS_PONG_WAIT must exceed WS_PING_INTERVAL")
	}
	if cfg.Realtime.MsgRPS < 0 {
		return cfg, errors.New("WS_MSG_RPS must be >= 0")
	}
	if cfg.Realtime.MsgBurst < 1 {
		return cfg, errors.New("WS_MSG_BURST must be >= 1")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.IdempotencyTTL <= 0 {
		return cfg, errors.New("IDEMPOTENCY_TTL must be > 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
