// Package domain defines the persistence models for users, rooms,
// memberships, and messages. These types are mapped with GORM and form the
// core data layer of the chat service.
package domain

import (
	"time"
)

// Membership roles.
const (
	RoleOwner  = "owner"
	RoleMember = "member"
)

// MaxMessageBytes is the maximum accepted message length, counted in UTF-8
// bytes.
const MaxMessageBytes = 4096

// MaxMessageFrameBytes bounds a transport frame carrying a maximal message:
// every content byte JSON-escaped as \u00XX plus room for the envelope.
const MaxMessageFrameBytes = 6*MaxMessageBytes + 1024

// User is a registered account. Usernames are unique and stored NFC-normalized.
type User struct {
	ID           string    `json:"id"         gorm:"type:char(36);primaryKey"`
	Username     string    `json:"username"   gorm:"type:varchar(64);not null;uniqueIndex:ux_users_username"`
	PasswordHash string    `json:"-"          gorm:"type:text;not null"`
	CreatedAt    time.Time `json:"created_at"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// Room is a named chat channel. The identifier never changes once created.
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - Name: display name.
//   - OwnerUserID: creator of the room; nil when the owner account is gone.
//   - CreatedAt: creation time, also the listing order.
type Room struct {
	ID          string    `json:"id"            gorm:"type:char(36);primaryKey"`
	Name        string    `json:"name"          gorm:"type:varchar(255);not null"`
	OwnerUserID *string   `json:"owner_user_id" gorm:"type:char(36);index"`
	CreatedAt   time.Time `json:"created_at"    gorm:"index"`

	Owner *User `json:"-" gorm:"foreignKey:OwnerUserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL"`
}

// TableName returns the database table name for Room.
func (Room) TableName() string { return "rooms" }

// Membership links a user to a room with a role. The (room_id, user_id) pair
// is unique, so repeated joins never create a second row.
type Membership struct {
	RoomID    string    `json:"room_id"    gorm:"type:char(36);primaryKey;uniqueIndex:ux_membership_room_user,priority:1"`
	UserID    string    `json:"user_id"    gorm:"type:char(36);primaryKey;uniqueIndex:ux_membership_room_user,priority:2;index"`
	Role      string    `json:"role"       gorm:"type:varchar(16);not null;check:role IN ('owner','member')"`
	CreatedAt time.Time `json:"created_at"`

	Room Room `json:"-" gorm:"foreignKey:RoomID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	User User `json:"-" gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Membership.
func (Membership) TableName() string { return "memberships" }

// Message is a single chat line posted to a room. Messages are immutable;
// CreatedAt is assigned on insert and is the ordering key (ties broken by ID).
type Message struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	RoomID    string    `json:"room_id"    gorm:"type:char(36);not null;index:idx_room_msgs,priority:1"`
	UserID    string    `json:"user_id"    gorm:"type:char(36);not null;index"`
	Content   string    `json:"content"    gorm:"type:text;not null"`
	CreatedAt time.Time `json:"created_at" gorm:"index:idx_room_msgs,priority:2"`

	Room Room `json:"-" gorm:"foreignKey:RoomID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	User User `json:"-" gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }

// MessageWithUsername is a message joined with its author's display name.
// It is a read model only and has no table of its own.
type MessageWithUsername struct {
	ID        string    `json:"id"`
	RoomID    string    `json:"room_id"`
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Identity is the authenticated principal resolved from a credential.
type Identity struct {
	UserID   string
	Username string
}
