package domain

import "time"

// Idempotency records the outcome of a previously processed request, keyed by
// (user_id, scope, key). Scope is the route template the key was presented to,
// so the same key may be reused on unrelated endpoints. A retry within the
// TTL replays ResourceID/Status instead of re-executing side effects.
type Idempotency struct {
	ID         string    `gorm:"type:TEXT NOT NULL;primaryKey"`
	UserID     string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_user_scope_key,priority:1"`
	Scope      string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_user_scope_key,priority:2"`
	Key        string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_user_scope_key,priority:3"`
	ResourceID string    `gorm:"type:TEXT NOT NULL"`
	Status     int       `gorm:"type:INTEGER NOT NULL"`
	CreatedAt  time.Time `gorm:"type:DATETIME NOT NULL;autoCreateTime"`
	ExpiresAt  time.Time `gorm:"type:DATETIME NOT NULL;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }
