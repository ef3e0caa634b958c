package services

import (
	"context"

	"gorm.io/gorm"

	"github.com/tbourn/go-chat-rooms/internal/domain"
	"github.com/tbourn/go-chat-rooms/internal/repo"
)

// Store backs the realtime engine with the relational store: room lookup,
// membership checks, message append and recent history.
type Store struct {
	DB *gorm.DB
}

// NewStore returns a Store over db.
func NewStore(db *gorm.DB) *Store { return &Store{DB: db} }

// RoomExists reports whether roomID exists.
func (s *Store) RoomExists(ctx context.Context, roomID string) (bool, error) {
	return repo.RoomExists(ctx, s.DB, roomID)
}

// IsMember reports whether userID belongs to roomID.
func (s *Store) IsMember(ctx context.Context, roomID, userID string) (bool, error) {
	return repo.IsMember(ctx, s.DB, roomID, userID)
}

// AppendMessage persists a message and returns it with its id and timestamp.
func (s *Store) AppendMessage(ctx context.Context, roomID, userID, content string) (*domain.Message, error) {
	return repo.CreateMessage(ctx, s.DB, roomID, userID, content)
}

// RecentMessages returns up to limit messages, newest first.
func (s *Store) RecentMessages(ctx context.Context, roomID string, limit int) ([]domain.MessageWithUsername, error) {
	return repo.ListRecentMessages(ctx, s.DB, roomID, limit)
}
