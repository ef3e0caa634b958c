// Package realtime – Ingestor
//
// Validates an inbound frame, checks the sender is still a member, persists
// the message and only then publishes it to the room channel.
package realtime

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-chat-rooms/internal/domain"
)

// Ingestor validates, authorizes, persists and publishes inbound messages.
type Ingestor struct {
	store    Store
	registry *Registry
}

// NewIngestor returns an Ingestor publishing through registry.
func NewIngestor(store Store, registry *Registry) *Ingestor {
	return &Ingestor{store: store, registry: registry}
}

// Ingest runs one inbound frame through the pipeline. Frames without text,
// blank content and content over domain.MaxMessageBytes are dropped and
// return nil. A sender who is no longer a member gets domain.ErrForbidden.
// Store failures return domain.ErrPersistence and nothing is published.
// The published event is returned for callers that need it; it is nil when
// the frame was dropped.
func (in *Ingestor) Ingest(ctx context.Context, roomID string, who domain.Identity, f Frame) (*MessageEvent, error) {
	content, ok := DecodeContent(f)
	if !ok {
		return nil, nil
	}
	if strings.TrimSpace(content) == "" || len(content) > domain.MaxMessageBytes {
		ingestTotal.WithLabelValues(ingestDropped).Inc()
		return nil, nil
	}

	ctx, span := otel.Tracer("realtime/Ingestor").Start(ctx, "Ingest",
		trace.WithAttributes(
			attribute.String("room.id", roomID),
			attribute.String("user.id", who.UserID),
			attribute.Int("content.bytes", len(content)),
		),
	)
	defer span.End()

	member, err := in.store.IsMember(ctx, roomID, who.UserID)
	if err != nil {
		ingestTotal.WithLabelValues(ingestPersistError).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "membership check")
		return nil, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	if !member {
		ingestTotal.WithLabelValues(ingestForbidden).Inc()
		span.SetStatus(codes.Error, "forbidden")
		return nil, fmt.Errorf("%w: not a member of room %s", domain.ErrForbidden, roomID)
	}

	msg, err := in.store.AppendMessage(ctx, roomID, who.UserID, content)
	if err != nil {
		ingestTotal.WithLabelValues(ingestPersistError).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist")
		return nil, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}

	ev := MessageEvent{Message: domain.MessageWithUsername{
		ID:        msg.ID,
		RoomID:    msg.RoomID,
		UserID:    msg.UserID,
		Username:  who.Username,
		Content:   msg.Content,
		CreatedAt: msg.CreatedAt,
	}}
	ingestTotal.WithLabelValues(ingestAccepted).Inc()
	span.SetAttributes(attribute.String("message.id", msg.ID))

	receivers := publish(in.registry.GetOrCreate(roomID), ev)
	span.SetAttributes(attribute.Int("fanout.receivers", receivers))
	return &ev, nil
}
