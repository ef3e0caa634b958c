// Package realtime implements the per-room fanout engine: the room channel
// registry, history replay, message ingestion, and the connection session
// that ties them to one client transport.
package realtime

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/samber/lo"

	"github.com/tbourn/go-chat-rooms/internal/domain"
)

// EventKind is the mandatory wire discriminator of an outgoing event.
type EventKind string

const (
	KindHistory EventKind = "history"
	KindMessage EventKind = "message"
	KindSystem  EventKind = "system"
)

// Fixed system notice texts.
const (
	NoticeJoined = "joined the room"
	NoticeLeft   = "left the room"
)

// Event is an outgoing room event. The set of implementations is closed:
// HistoryEvent, MessageEvent and SystemEvent.
type Event interface {
	Kind() EventKind
	Room() string
	event()
}

// HistoryEvent is a persisted message replayed to one joining connection.
type HistoryEvent struct {
	Message domain.MessageWithUsername
}

// MessageEvent is a freshly persisted message published to the room.
type MessageEvent struct {
	Message domain.MessageWithUsername
}

// SystemEvent is a synthetic join/leave notice. It has no id and no author id.
type SystemEvent struct {
	RoomID   string
	Username string
	Content  string
	At       time.Time
}

func (HistoryEvent) Kind() EventKind { return KindHistory }
func (MessageEvent) Kind() EventKind { return KindMessage }
func (SystemEvent) Kind() EventKind  { return KindSystem }

func (e HistoryEvent) Room() string { return e.Message.RoomID }
func (e MessageEvent) Room() string { return e.Message.RoomID }
func (e SystemEvent) Room() string  { return e.RoomID }

func (HistoryEvent) event() {}
func (MessageEvent) event() {}
func (SystemEvent) event()  {}

// Joined builds the notice published when a user enters a room.
func Joined(roomID, username string) SystemEvent {
	return SystemEvent{RoomID: roomID, Username: username, Content: NoticeJoined, At: time.Now().UTC()}
}

// Left builds the notice published when a user's connection ends.
func Left(roomID, username string) SystemEvent {
	return SystemEvent{RoomID: roomID, Username: username, Content: NoticeLeft, At: time.Now().UTC()}
}

// WireEvent is the JSON shape written to clients, one object per text frame.
type WireEvent struct {
	ID        *string   `json:"id"`
	RoomID    string    `json:"room_id"`
	UserID    *string   `json:"user_id"`
	Username  string    `json:"username"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	Kind      EventKind `json:"kind"`
}

// ToWire converts an event to its wire shape.
func ToWire(e Event) (WireEvent, error) {
	switch ev := e.(type) {
	case HistoryEvent:
		return messageWire(ev.Message, KindHistory), nil
	case MessageEvent:
		return messageWire(ev.Message, KindMessage), nil
	case SystemEvent:
		return WireEvent{
			RoomID:    ev.RoomID,
			Username:  ev.Username,
			Content:   ev.Content,
			CreatedAt: ev.At,
			Kind:      KindSystem,
		}, nil
	default:
		return WireEvent{}, fmt.Errorf("%w: unknown event type %T", domain.ErrInternal, e)
	}
}

func messageWire(m domain.MessageWithUsername, kind EventKind) WireEvent {
	return WireEvent{
		ID:        lo.ToPtr(m.ID),
		RoomID:    m.RoomID,
		UserID:    lo.ToPtr(m.UserID),
		Username:  m.Username,
		Content:   m.Content,
		CreatedAt: m.CreatedAt,
		Kind:      kind,
	}
}

// Encode serializes an event for a text frame.
func Encode(e Event) ([]byte, error) {
	w, err := ToWire(e)
	if err != nil {
		return nil, err
	}
	b, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInternal, err)
	}
	return b, nil
}

// incoming is the structured inbound payload. Content is a pointer so a
// JSON object without the field falls back to the raw text.
type incoming struct {
	Content *string `json:"content"`
}

// DecodeContent extracts the message body from an inbound frame. Only text
// frames carry content; every other kind reports ok=false.
func DecodeContent(f Frame) (content string, ok bool) {
	if f.Kind != FrameText {
		return "", false
	}
	var in incoming
	if err := json.Unmarshal(f.Data, &in); err == nil && in.Content != nil {
		return *in.Content, true
	}
	return string(f.Data), true
}
