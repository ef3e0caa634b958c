package repo

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-chat-rooms/internal/domain"
)

// newRepoDB opens a file-backed SQLite DB in a temp dir. With no models
// given, the full schema is migrated.
func newRepoDB(t *testing.T, migrate ...any) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("repo_test_%d.db", time.Now().UnixNano()))
	db, err := gorm.Open(sqlite.Open(sqliteDSN(dsn)), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	// Ensure the file handle is released before TempDir cleanup (Windows needs this).
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	if len(migrate) == 0 {
		if err := AutoMigrate(db); err != nil {
			t.Fatalf("automigrate: %v", err)
		}
		return db
	}
	if err := db.AutoMigrate(migrate...); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

// newBareDB opens an in-memory DB without any tables.
func newBareDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	return db
}

func seedUser(t *testing.T, db *gorm.DB, username string) *domain.User {
	t.Helper()
	u, err := CreateUser(context.Background(), db, username, "hash")
	if err != nil {
		t.Fatalf("seed user %q: %v", username, err)
	}
	return u
}

func seedMessageAt(t *testing.T, db *gorm.DB, id, roomID, userID, content string, at time.Time) {
	t.Helper()
	m := &domain.Message{ID: id, RoomID: roomID, UserID: userID, Content: content, CreatedAt: at}
	if err := db.Create(m).Error; err != nil {
		t.Fatalf("seed message %s: %v", id, err)
	}
}
