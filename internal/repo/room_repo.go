// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for rooms and
// memberships.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a room is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
//
// Functions:
//
//   - CreateRoom(ctx, db, name, ownerID) -> *domain.Room, error
//     Inserts the room and the owner's membership in one transaction.
//
//   - ListRooms(ctx, db) -> []domain.Room, error
//     Returns all rooms, oldest first.
//
//   - GetRoom(ctx, db, id) -> *domain.Room, error
//     Fetches a single room by ID, or ErrNotFound if missing.
//
//   - RoomExists(ctx, db, id) -> bool, error
//
//   - JoinRoom(ctx, db, roomID, userID) -> error
//     Adds a member row; a repeated join is a no-op.
//
//   - IsMember(ctx, db, roomID, userID) -> bool, error
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-chat-rooms/internal/domain"
)

// CreateRoom inserts a new room owned by ownerID together with the owner's
// membership. Both rows commit or neither does.
func CreateRoom(ctx context.Context, db *gorm.DB, name, ownerID string) (*domain.Room, error) {
	now := time.Now().UTC()
	owner := ownerID
	r := &domain.Room{
		ID:          uuid.NewString(),
		Name:        name,
		OwnerUserID: &owner,
		CreatedAt:   now,
	}
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(r).Error; err != nil {
			return err
		}
		return tx.Create(&domain.Membership{
			RoomID:    r.ID,
			UserID:    ownerID,
			Role:      domain.RoleOwner,
			CreatedAt: now,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// ListRooms returns every room ordered by creation time ascending.
func ListRooms(ctx context.Context, db *gorm.DB) ([]domain.Room, error) {
	var out []domain.Room
	err := db.WithContext(ctx).
		Order("created_at ASC, id ASC").
		Find(&out).Error
	return out, err
}

// GetRoom fetches a single room by ID. If the record does not exist, it
// returns ErrNotFound.
func GetRoom(ctx context.Context, db *gorm.DB, id string) (*domain.Room, error) {
	var r domain.Room
	if err := db.WithContext(ctx).Where("id = ?", id).First(&r).Error; err != nil {
		return nil, err
	}
	return &r, nil
}

// RoomExists reports whether a room row with the given id exists.
func RoomExists(ctx context.Context, db *gorm.DB, id string) (bool, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.Room{}).
		Where("id = ?", id).
		Limit(1).
		Count(&n).Error
	return n > 0, err
}

// JoinRoom adds userID to roomID with the member role. An existing
// membership (any role) is left untouched.
func JoinRoom(ctx context.Context, db *gorm.DB, roomID, userID string) error {
	m := &domain.Membership{
		RoomID:    roomID,
		UserID:    userID,
		Role:      domain.RoleMember,
		CreatedAt: time.Now().UTC(),
	}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(m).Error
}

// IsMember reports whether userID holds any membership in roomID.
func IsMember(ctx context.Context, db *gorm.DB, roomID, userID string) (bool, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.Membership{}).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		Count(&n).Error
	return n > 0, err
}
