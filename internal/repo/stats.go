// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate/statistics queries used
// primarily for conditional responses (e.g., ETag generation) in the HTTP
// layer.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-chat-rooms/internal/domain"
)

// RoomsStats returns aggregate metadata for the room listing: the total number
// of rows and the greatest CreatedAt among them. With no rooms the count is 0
// and maxCreatedAt is nil.
func RoomsStats(ctx context.Context, db *gorm.DB) (count int64, maxCreatedAt *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.Room{})

	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Get latest created_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		CreatedAt time.Time
	}
	if err = db.WithContext(ctx).Model(&domain.Room{}).Select("created_at").Order("created_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.CreatedAt, nil
}

// MessagesStats returns the number of messages in a room and the newest
// CreatedAt among them, or (0, nil) for an empty room.
func MessagesStats(ctx context.Context, db *gorm.DB, roomID string) (count int64, maxCreatedAt *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.Message{}).Where("room_id = ?", roomID)

	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	var row struct {
		CreatedAt time.Time
	}
	if err = db.WithContext(ctx).Model(&domain.Message{}).Where("room_id = ?", roomID).
		Select("created_at").Order("created_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.CreatedAt, nil
}
