// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Message model.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-chat-rooms/internal/domain"
)

// CreateMessage appends a message and returns it with its assigned id and
// timestamp.
func CreateMessage(ctx context.Context, db *gorm.DB, roomID, userID, content string) (*domain.Message, error) {
	m := &domain.Message{
		ID:        uuid.NewString(),
		RoomID:    roomID,
		UserID:    userID,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(m).Error; err != nil {
		return nil, err
	}
	return m, nil
}

func messagesWithUsernames(ctx context.Context, db *gorm.DB) *gorm.DB {
	return db.WithContext(ctx).
		Table("messages AS m").
		Select("m.id, m.room_id, m.user_id, u.username, m.content, m.created_at").
		Joins("JOIN users u ON u.id = m.user_id")
}

// ListRecentMessages returns the newest limit messages of a room joined with
// author usernames, newest first (CreatedAt DESC, ID DESC).
func ListRecentMessages(ctx context.Context, db *gorm.DB, roomID string, limit int) ([]domain.MessageWithUsername, error) {
	out := []domain.MessageWithUsername{}
	err := messagesWithUsernames(ctx, db).
		Where("m.room_id = ?", roomID).
		Order("m.created_at DESC, m.id DESC").
		Limit(limit).
		Scan(&out).Error
	return out, err
}

// ListMessagesBefore returns up to limit messages strictly older than the
// message identified by before, newest first. An unknown cursor yields an
// empty page.
func ListMessagesBefore(ctx context.Context, db *gorm.DB, roomID, before string, limit int) ([]domain.MessageWithUsername, error) {
	out := []domain.MessageWithUsername{}
	cursor := db.Model(&domain.Message{}).Select("created_at").Where("id = ?", before)
	err := messagesWithUsernames(ctx, db).
		Where("m.room_id = ? AND m.created_at < (?)", roomID, cursor).
		Order("m.created_at DESC, m.id DESC").
		Limit(limit).
		Scan(&out).Error
	return out, err
}
