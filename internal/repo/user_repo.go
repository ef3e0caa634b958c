package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-chat-rooms/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound so services can branch with errors.Is.
var ErrNotFound = gorm.ErrRecordNotFound

// CreateUser inserts a new account. A username collision returns ErrDuplicate.
func CreateUser(ctx context.Context, db *gorm.DB, username, passwordHash string) (*domain.User, error) {
	u := &domain.User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(u).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return u, nil
}

// GetUserByUsername fetches a user by exact username, or ErrNotFound.
func GetUserByUsername(ctx context.Context, db *gorm.DB, username string) (*domain.User, error) {
	var u domain.User
	if err := db.WithContext(ctx).Where("username = ?", username).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUserByID fetches a user by id, or ErrNotFound.
func GetUserByID(ctx context.Context, db *gorm.DB, id string) (*domain.User, error) {
	var u domain.User
	if err := db.WithContext(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// isUniqueViolation detects UNIQUE failures. glebarez/sqlite often returns
// plain-text errors for them instead of gorm.ErrDuplicatedKey.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint failed") ||
		strings.Contains(low, "constraint failed: unique")
}
