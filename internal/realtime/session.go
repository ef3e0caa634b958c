// Package realtime – Hub
//
// Admits an authenticated connection to a room and runs its session: history
// replay, the joined notice, concurrent read and write loops, and a single
// exit path that publishes the left notice.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/tbourn/go-chat-rooms/internal/domain"
)

// State is the lifecycle stage of a session.
type State int32

const (
	StateConnecting State = iota
	StateAdmitted
	StateActive
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAdmitted:
		return "admitted"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// CredentialResolver turns a presented credential into an identity.
type CredentialResolver interface {
	Resolve(credential string) (domain.Identity, error)
}

// Options tune a Hub.
type Options struct {
	HistoryLimit int        // messages replayed on join (1..50)
	MsgRate      rate.Limit // inbound messages per second per session; 0 disables
	MsgBurst     int
}

// Hub admits connections to rooms and runs their sessions. One Hub is built
// at startup and shared by every connection handler.
type Hub struct {
	registry *Registry
	store    Store
	creds    CredentialResolver
	replayer *Replayer
	ingestor *Ingestor
	opts     Options

	// observe, when set, sees every session state transition.
	observe func(State)
}

// NewHub wires the engine around an injected registry.
func NewHub(registry *Registry, store Store, creds CredentialResolver, opts Options) *Hub {
	if opts.MsgBurst < 1 {
		opts.MsgBurst = 1
	}
	return &Hub{
		registry: registry,
		store:    store,
		creds:    creds,
		replayer: NewReplayer(store, opts.HistoryLimit),
		ingestor: NewIngestor(store, registry),
		opts:     opts,
	}
}

// Registry returns the registry the hub publishes through.
func (h *Hub) Registry() *Registry { return h.registry }

// Authenticate resolves a credential. A missing credential is rejected
// without consulting the resolver.
func (h *Hub) Authenticate(credential string) (domain.Identity, error) {
	if strings.TrimSpace(credential) == "" {
		wsSessions.WithLabelValues(outcomeUnauthorized).Inc()
		return domain.Identity{}, fmt.Errorf("%w: missing credential", domain.ErrUnauthorized)
	}
	id, err := h.creds.Resolve(credential)
	if err != nil {
		wsSessions.WithLabelValues(outcomeUnauthorized).Inc()
		if errors.Is(err, domain.ErrUnauthorized) {
			return domain.Identity{}, err
		}
		return domain.Identity{}, fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}
	return id, nil
}

// Admit checks that the room exists and that who is a member of it.
func (h *Hub) Admit(ctx context.Context, who domain.Identity, roomID string) error {
	ok, err := h.store.RoomExists(ctx, roomID)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	if !ok {
		return domain.ErrRoomNotFound
	}
	member, err := h.store.IsMember(ctx, roomID, who.UserID)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	if !member {
		return domain.ErrForbidden
	}
	return nil
}

// Serve runs one connection for an authenticated identity until it ends.
// Admission failures close conn and return the cause; no channel is created.
// Otherwise Serve returns nil after the left notice has been published.
func (h *Hub) Serve(ctx context.Context, conn Conn, who domain.Identity, roomID string) error {
	s := &session{
		hub:    h,
		conn:   conn,
		who:    who,
		roomID: roomID,
	}
	s.log = zerolog.Ctx(ctx).With().
		Str("room_id", roomID).
		Str("user_id", who.UserID).
		Str("conn_id", uuid.NewString()).
		Logger()
	ctx = s.log.WithContext(ctx)
	s.setState(StateConnecting)

	ctx, span := otel.Tracer("realtime/Hub").Start(ctx, "Admit",
		trace.WithAttributes(
			attribute.String("room.id", roomID),
			attribute.String("user.id", who.UserID),
		),
	)
	err := h.Admit(ctx, who, roomID)
	span.End()
	if err != nil {
		s.refuse(ctx, err)
		return err
	}
	wsSessions.WithLabelValues(outcomeAdmitted).Inc()
	s.setState(StateAdmitted)
	s.run(ctx)
	return nil
}

type session struct {
	hub    *Hub
	conn   Conn
	who    domain.Identity
	roomID string
	log    zerolog.Logger

	ch        *RoomChannel
	sub       *Subscriber[Event]
	leaveOnce sync.Once
}

// setState is only called from the goroutine running Serve.
func (s *session) setState(st State) {
	s.log.Debug().Stringer("state", st).Msg("session state")
	if s.hub.observe != nil {
		s.hub.observe(st)
	}
}

func (s *session) refuse(ctx context.Context, cause error) {
	outcome, code, reason := outcomeError, CloseInternalError, "internal error"
	switch {
	case errors.Is(cause, domain.ErrRoomNotFound):
		outcome, code, reason = outcomeNotFound, ClosePolicyViolation, "room not found"
	case errors.Is(cause, domain.ErrForbidden):
		outcome, code, reason = outcomeForbidden, ClosePolicyViolation, "not a member of this room"
	}
	wsSessions.WithLabelValues(outcome).Inc()
	s.log.Warn().Err(cause).Msg("refusing connection")

	_ = s.conn.SendFrame(ctx, CloseFrame(code, reason))
	_ = s.conn.Close()
	s.setState(StateClosed)
}

func (s *session) run(parent context.Context) {
	s.ch = s.hub.registry.GetOrCreate(s.roomID)
	s.sub = s.ch.Subscribe()
	wsActive.Inc()
	defer wsActive.Dec()

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	s.setState(StateActive)
	for _, ev := range s.hub.replayer.Replay(ctx, s.roomID) {
		if err := s.write(ctx, ev); err != nil {
			s.log.Warn().Err(err).Msg("history write failed")
			break
		}
	}
	publish(s.ch, Joined(s.roomID, s.who.Username))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer cancel()
		s.readLoop(ctx)
	}()

	s.writeLoop(ctx)

	s.setState(StateClosing)
	cancel()
	_ = s.conn.Close()
	wg.Wait()
	s.finish()
}

// readLoop feeds inbound frames to the ingestion pipeline until the
// transport fails, reaches end of stream, or ctx is cancelled.
func (s *session) readLoop(ctx context.Context) {
	var limiter *rate.Limiter
	if s.hub.opts.MsgRate > 0 {
		limiter = rate.NewLimiter(s.hub.opts.MsgRate, s.hub.opts.MsgBurst)
	}
	for {
		f, err := s.conn.ReceiveFrame(ctx)
		if err != nil {
			switch {
			case errors.Is(err, io.EOF), ctx.Err() != nil:
				s.log.Debug().Msg("connection closed")
			default:
				s.log.Warn().Err(err).Msg("receive failed")
			}
			return
		}
		if f.Kind != FrameText {
			continue
		}
		if limiter != nil && !limiter.Allow() {
			ingestTotal.WithLabelValues(ingestRateLimited).Inc()
			s.log.Debug().Msg("inbound message rate limited")
			continue
		}
		if _, err := s.hub.ingestor.Ingest(ctx, s.roomID, s.who, f); err != nil {
			s.log.Warn().Err(err).Msg("ingest failed")
		}
	}
}

// writeLoop forwards room events to the transport. It returns when ctx is
// cancelled, the channel closes, or a write fails.
func (s *session) writeLoop(ctx context.Context) {
	for {
		ev, err := s.sub.Recv(ctx)
		if err != nil {
			var lag *LagError
			switch {
			case errors.As(err, &lag):
				eventsLagged.Add(float64(lag.Skipped))
				s.log.Warn().Uint64("skipped", lag.Skipped).Msg("subscriber lagged")
				continue
			case errors.Is(err, ErrClosed):
				s.log.Debug().Msg("room channel closed")
			}
			return
		}
		if err := s.write(ctx, ev); err != nil {
			if errors.Is(err, domain.ErrInternal) {
				s.log.Error().Err(err).Msg("event encode failed")
				continue
			}
			s.log.Debug().Err(err).Msg("write failed")
			return
		}
	}
}

func (s *session) write(ctx context.Context, ev Event) error {
	b, err := Encode(ev)
	if err != nil {
		return err
	}
	return s.conn.SendFrame(ctx, TextFrame(b))
}

// finish publishes the left notice once and releases the subscription.
func (s *session) finish() {
	s.leaveOnce.Do(func() {
		publish(s.ch, Left(s.roomID, s.who.Username))
		s.sub.Close()
		s.setState(StateClosed)
	})
}
