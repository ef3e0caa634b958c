// Package realtime – Replayer
//
// Loads the most recent messages of a room, oldest first, for delivery to a
// connection before it joins the live stream.
package realtime

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/tbourn/go-chat-rooms/internal/domain"
)

// DefaultHistoryLimit is the number of messages replayed to a joining connection.
const DefaultHistoryLimit = 50

// Store is the persistence the realtime engine consumes.
type Store interface {
	RoomExists(ctx context.Context, roomID string) (bool, error)
	IsMember(ctx context.Context, roomID, userID string) (bool, error)
	AppendMessage(ctx context.Context, roomID, userID, content string) (*domain.Message, error)
	// RecentMessages returns up to limit messages, newest first.
	RecentMessages(ctx context.Context, roomID string, limit int) ([]domain.MessageWithUsername, error)
}

// Replayer loads recent history for a single connection.
type Replayer struct {
	store Store
	limit int
}

// NewReplayer returns a Replayer. limit is clamped to 1..DefaultHistoryLimit.
func NewReplayer(store Store, limit int) *Replayer {
	if limit < 1 || limit > DefaultHistoryLimit {
		limit = DefaultHistoryLimit
	}
	return &Replayer{store: store, limit: limit}
}

// Replay returns the room's most recent messages oldest first, tagged as
// history. A failed fetch is logged and yields no events.
func (r *Replayer) Replay(ctx context.Context, roomID string) []Event {
	msgs, err := r.store.RecentMessages(ctx, roomID, r.limit)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("room_id", roomID).Msg("history fetch failed, replaying nothing")
		return nil
	}
	n := len(msgs)
	return lo.Map(msgs, func(_ domain.MessageWithUsername, i int) Event {
		return HistoryEvent{Message: msgs[n-1-i]}
	})
}
