// Command server runs the chat rooms API: REST endpoints for accounts and
// rooms plus the realtime websocket fanout.
//
// @title          Chat Rooms API
// @version        1.0
// @description    Multi-room chat with persisted history and realtime fanout.
// @BasePath       /api
// @securityDefinitions.apikey BearerAuth
// @in             header
// @name           Authorization
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"github.com/tbourn/go-chat-rooms/internal/auth"
	"github.com/tbourn/go-chat-rooms/internal/config"
	httpapi "github.com/tbourn/go-chat-rooms/internal/http"
	"github.com/tbourn/go-chat-rooms/internal/observability"
	"github.com/tbourn/go-chat-rooms/internal/realtime"
	"github.com/tbourn/go-chat-rooms/internal/repo"
	"github.com/tbourn/go-chat-rooms/internal/services"
	"github.com/tbourn/go-chat-rooms/internal/sysutil"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// A missing .env is fine; the real environment wins either way.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	lg := sysutil.ConfigureLogger(cfg.LogLevel, cfg.LogPretty, cfg.OTEL.ServiceName, nil)
	ver := sysutil.FirstNonEmpty(os.Getenv("APP_VERSION"), version)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, ver)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			lg.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}()
	if cfg.OTEL.Enabled {
		if err := repo.EnableTracing(db); err != nil {
			return fmt.Errorf("db tracing: %w", err)
		}
	}
	if err := repo.AutoMigrate(db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, cfg.Auth.TokenTTL)
	registry := realtime.NewRegistry(cfg.Realtime.ChannelCapacity)
	hub := realtime.NewHub(registry, services.NewStore(db), tokens, realtime.Options{
		HistoryLimit: cfg.Realtime.HistoryLimit,
		MsgRate:      rate.Limit(cfg.Realtime.MsgRPS),
		MsgBurst:     cfg.Realtime.MsgBurst,
	})

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, db, cfg, hub, tokens)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
		BaseContext:       func(net.Listener) context.Context { return lg.WithContext(ctx) },
	}

	go purgeIdempotency(ctx, db, time.Hour)

	errCh := make(chan error, 1)
	go func() {
		lg.Info().Str("addr", srv.Addr).Str("version", ver).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		lg.Info().Msg("shutting down")
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	err = srv.Shutdown(sctx)
	// Hijacked websocket connections are invisible to Shutdown; closing the
	// room channels ends their sessions.
	registry.CloseAll()
	if err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	lg.Info().Msg("stopped")
	return nil
}

// purgeIdempotency deletes expired idempotency records every interval until
// ctx is done.
func purgeIdempotency(ctx context.Context, db *gorm.DB, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			n, err := repo.PurgeExpiredIdempotency(ctx, db, now.UTC())
			if err != nil {
				log.Warn().Err(err).Msg("idempotency purge failed")
				continue
			}
			if n > 0 {
				log.Debug().Int64("deleted", n).Msg("idempotency records purged")
			}
		}
	}
}
