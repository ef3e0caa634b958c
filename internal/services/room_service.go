// Package services – RoomService
//
// RoomService owns the REST side of rooms: creation (with the owner's
// membership and optional idempotent replay), listing, joining, and paging
// through a room's persisted history. Realtime delivery lives in the
// realtime package; both read and write the same tables.
//
// Observability: public methods open OpenTelemetry spans carrying room and
// user identifiers.
package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/unicode/norm"
	"gorm.io/gorm"

	"github.com/tbourn/go-chat-rooms/internal/domain"
	"github.com/tbourn/go-chat-rooms/internal/repo"
)

// Message paging bounds for ListMessages.
const (
	DefaultMessagePage = 50
	MaxMessagePage     = 100
)

// ScopeCreateRoom namespaces idempotency keys for room creation.
const ScopeCreateRoom = "POST /rooms"

// RoomRepo defines the room persistence contract required by RoomService.
type RoomRepo interface {
	// CreateRoom inserts the room and the owner's membership atomically.
	CreateRoom(ctx context.Context, db *gorm.DB, name, ownerID string) (*domain.Room, error)

	// ListRooms returns every room ordered by creation time ascending.
	ListRooms(ctx context.Context, db *gorm.DB) ([]domain.Room, error)

	// GetRoom fetches a room or repo.ErrNotFound.
	GetRoom(ctx context.Context, db *gorm.DB, id string) (*domain.Room, error)

	// JoinRoom adds a member membership; existing memberships are kept.
	JoinRoom(ctx context.Context, db *gorm.DB, roomID, userID string) error

	// IsMember reports whether userID belongs to roomID.
	IsMember(ctx context.Context, db *gorm.DB, roomID, userID string) (bool, error)

	// RoomsStats returns the room count and the newest creation time.
	RoomsStats(ctx context.Context, db *gorm.DB) (int64, *time.Time, error)
}

// MessageRepo defines the read side of message history.
type MessageRepo interface {
	ListRecentMessages(ctx context.Context, db *gorm.DB, roomID string, limit int) ([]domain.MessageWithUsername, error)
	ListMessagesBefore(ctx context.Context, db *gorm.DB, roomID, before string, limit int) ([]domain.MessageWithUsername, error)
	MessagesStats(ctx context.Context, db *gorm.DB, roomID string) (int64, *time.Time, error)
}

// IdempotencyRepo stores replay records for unsafe requests.
type IdempotencyRepo interface {
	GetIdempotency(ctx context.Context, db *gorm.DB, userID, scope, key string, now time.Time) (*domain.Idempotency, error)
	CreateIdempotency(ctx context.Context, db *gorm.DB, userID, scope, key, resourceID string, status int, ttl time.Duration) (*domain.Idempotency, error)
}

// RoomService provides room lifecycle and history operations.
type RoomService struct {
	DB       *gorm.DB
	Rooms    RoomRepo
	Messages MessageRepo
	Idem     IdempotencyRepo

	// NameMaxLen caps room names by rune length.
	NameMaxLen int
	// IdempotencyTTL is how long a Create key replays the original room.
	IdempotencyTTL time.Duration

	now func() time.Time
}

// NewRoomService constructs a RoomService with default limits.
func NewRoomService(db *gorm.DB, rooms RoomRepo, msgs MessageRepo, idem IdempotencyRepo) *RoomService {
	return &RoomService{
		DB:             db,
		Rooms:          rooms,
		Messages:       msgs,
		Idem:           idem,
		NameMaxLen:     255,
		IdempotencyTTL: 24 * time.Hour,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// Create makes a room owned by userID. When idemKey is set and a record for
// it is still live, the originally created room is returned with replayed
// set and nothing new is written.
func (s *RoomService) Create(ctx context.Context, userID, name, idemKey string) (room *domain.Room, replayed bool, err error) {
	ctx, span := otel.Tracer("services/RoomService").Start(ctx, "Create",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	name = normalizeName(name)
	if name == "" {
		return nil, false, ErrEmptyRoomName
	}
	if s.NameMaxLen > 0 && utf8.RuneCountInString(name) > s.NameMaxLen {
		return nil, false, ErrRoomNameTooLong
	}

	if idemKey != "" && s.Idem != nil {
		if rec, err := s.Idem.GetIdempotency(ctx, s.DB, userID, ScopeCreateRoom, idemKey, s.now()); err == nil {
			if prev, err := s.Rooms.GetRoom(ctx, s.DB, rec.ResourceID); err == nil {
				span.SetAttributes(attribute.Bool("idempotency.replay", true))
				return prev, true, nil
			}
		}
	}

	room, err = s.Rooms.CreateRoom(ctx, s.DB, name, userID)
	if err != nil {
		span.RecordError(err)
		return nil, false, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	span.SetAttributes(attribute.String("room.id", room.ID))

	// Best effort: a lost race against a concurrent retry leaves both rooms.
	if idemKey != "" && s.Idem != nil {
		_, _ = s.Idem.CreateIdempotency(ctx, s.DB, userID, ScopeCreateRoom, idemKey, room.ID, 201, s.IdempotencyTTL)
	}
	return room, false, nil
}

// List returns every room, oldest first. The slice is never nil.
func (s *RoomService) List(ctx context.Context) ([]domain.Room, error) {
	ctx, span := otel.Tracer("services/RoomService").Start(ctx, "List")
	defer span.End()

	rooms, err := s.Rooms.ListRooms(ctx, s.DB)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if rooms == nil {
		rooms = []domain.Room{}
	}
	return rooms, nil
}

// ListETag returns a weak validator for the room listing.
func (s *RoomService) ListETag(ctx context.Context) (string, error) {
	count, maxTS, err := s.Rooms.RoomsStats(ctx, s.DB)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(`W/"rooms:%d:%d"`, count, unixNano(maxTS)), nil
}

// Get returns a single room or ErrRoomNotFound.
func (s *RoomService) Get(ctx context.Context, roomID string) (*domain.Room, error) {
	r, err := s.Rooms.GetRoom(ctx, s.DB, roomID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return r, nil
}

// Join makes userID a member of roomID. Joining twice is not an error and
// never creates a second membership.
func (s *RoomService) Join(ctx context.Context, roomID, userID string) (*domain.Room, error) {
	ctx, span := otel.Tracer("services/RoomService").Start(ctx, "Join",
		trace.WithAttributes(
			attribute.String("room.id", roomID),
			attribute.String("user.id", userID),
		),
	)
	defer span.End()

	r, err := s.Get(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if err := s.Rooms.JoinRoom(ctx, s.DB, roomID, userID); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return r, nil
}

// ListMessages returns up to limit messages of a room, newest first. With a
// before cursor only messages strictly older than that message are returned.
// The caller must be a member of the room.
func (s *RoomService) ListMessages(ctx context.Context, roomID, userID string, limit int, before string) ([]domain.MessageWithUsername, error) {
	ctx, span := otel.Tracer("services/RoomService").Start(ctx, "ListMessages",
		trace.WithAttributes(
			attribute.String("room.id", roomID),
			attribute.String("user.id", userID),
			attribute.Int("limit", limit),
		),
	)
	defer span.End()

	if limit < 1 {
		limit = 1
	}
	if limit > MaxMessagePage {
		limit = MaxMessagePage
	}

	if _, err := s.Get(ctx, roomID); err != nil {
		return nil, err
	}
	member, err := s.Rooms.IsMember(ctx, s.DB, roomID, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if !member {
		return nil, ErrForbidden
	}

	var out []domain.MessageWithUsername
	if before = strings.TrimSpace(before); before == "" {
		out, err = s.Messages.ListRecentMessages(ctx, s.DB, roomID, limit)
	} else {
		out, err = s.Messages.ListMessagesBefore(ctx, s.DB, roomID, before, limit)
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if out == nil {
		out = []domain.MessageWithUsername{}
	}
	return out, nil
}

// MessagesETag returns a weak validator for one page of a room's history.
func (s *RoomService) MessagesETag(ctx context.Context, roomID string, limit int, before string) (string, error) {
	count, maxTS, err := s.Messages.MessagesStats(ctx, s.DB, roomID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(`W/"messages:%s:%d:%d:%d:%s"`, roomID, count, unixNano(maxTS), limit, before), nil
}

func unixNano(t *time.Time) int64 {
	if t == nil {
		return 0
	}
	return t.UnixNano()
}

// normalizeName applies NFC, trims whitespace and collapses inner runs to one space.
func normalizeName(s string) string {
	return whitespaceRE.ReplaceAllString(strings.TrimSpace(norm.NFC.String(s)), " ")
}

// whitespaceRE collapses consecutive whitespace to a single space.
var whitespaceRE = regexp.MustCompile(`\s+`)
