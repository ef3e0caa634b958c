package services

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-chat-rooms/internal/auth"
	"github.com/tbourn/go-chat-rooms/internal/domain"
	"github.com/tbourn/go-chat-rooms/internal/repo"
)

// cheapHash keeps argon2id fast in tests.
var cheapHash = auth.Params{Memory: 8, Iterations: 1, Parallelism: 1, SaltLength: 8, KeyLength: 16}

// repoShim routes every repository interface to the repo package.
type repoShim struct{}

func (repoShim) CreateUser(ctx context.Context, db *gorm.DB, username, hash string) (*domain.User, error) {
	return repo.CreateUser(ctx, db, username, hash)
}

func (repoShim) GetUserByUsername(ctx context.Context, db *gorm.DB, username string) (*domain.User, error) {
	return repo.GetUserByUsername(ctx, db, username)
}

func (repoShim) CreateRoom(ctx context.Context, db *gorm.DB, name, ownerID string) (*domain.Room, error) {
	return repo.CreateRoom(ctx, db, name, ownerID)
}

func (repoShim) ListRooms(ctx context.Context, db *gorm.DB) ([]domain.Room, error) {
	return repo.ListRooms(ctx, db)
}

func (repoShim) GetRoom(ctx context.Context, db *gorm.DB, id string) (*domain.Room, error) {
	return repo.GetRoom(ctx, db, id)
}

func (repoShim) JoinRoom(ctx context.Context, db *gorm.DB, roomID, userID string) error {
	return repo.JoinRoom(ctx, db, roomID, userID)
}

func (repoShim) IsMember(ctx context.Context, db *gorm.DB, roomID, userID string) (bool, error) {
	return repo.IsMember(ctx, db, roomID, userID)
}

func (repoShim) RoomsStats(ctx context.Context, db *gorm.DB) (int64, *time.Time, error) {
	return repo.RoomsStats(ctx, db)
}

func (repoShim) ListRecentMessages(ctx context.Context, db *gorm.DB, roomID string, limit int) ([]domain.MessageWithUsername, error) {
	return repo.ListRecentMessages(ctx, db, roomID, limit)
}

func (repoShim) ListMessagesBefore(ctx context.Context, db *gorm.DB, roomID, before string, limit int) ([]domain.MessageWithUsername, error) {
	return repo.ListMessagesBefore(ctx, db, roomID, before, limit)
}

func (repoShim) MessagesStats(ctx context.Context, db *gorm.DB, roomID string) (int64, *time.Time, error) {
	return repo.MessagesStats(ctx, db, roomID)
}

func (repoShim) GetIdempotency(ctx context.Context, db *gorm.DB, userID, scope, key string, now time.Time) (*domain.Idempotency, error) {
	return repo.GetIdempotency(ctx, db, userID, scope, key, now)
}

func (repoShim) CreateIdempotency(ctx context.Context, db *gorm.DB, userID, scope, key, resourceID string, status int, ttl time.Duration) (*domain.Idempotency, error) {
	return repo.CreateIdempotency(ctx, db, userID, scope, key, resourceID, status, ttl)
}

func newServiceDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := repo.OpenSQLite(filepath.Join(t.TempDir(), "services.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func newRoomService(db *gorm.DB) *RoomService {
	return NewRoomService(db, repoShim{}, repoShim{}, repoShim{})
}

func seedUser(t *testing.T, db *gorm.DB, name string) *domain.User {
	t.Helper()
	u, err := repo.CreateUser(context.Background(), db, name, "hash")
	if err != nil {
		t.Fatalf("seed user %s: %v", name, err)
	}
	return u
}
