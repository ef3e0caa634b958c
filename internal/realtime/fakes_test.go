package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tbourn/go-chat-rooms/internal/domain"
)

// memStore is an in-memory Store.
type memStore struct {
	mu      sync.Mutex
	rooms   map[string]bool
	members map[string]map[string]bool
	msgs    []domain.Message
	names   map[string]string
	seq     int

	existsErr error
	memberErr error
	appendErr error
	recentErr error
}

func newMemStore() *memStore {
	return &memStore{
		rooms:   map[string]bool{},
		members: map[string]map[string]bool{},
		names:   map[string]string{},
	}
}

func (m *memStore) addRoom(roomID string, members ...domain.Identity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rooms[roomID] = true
	if m.members[roomID] == nil {
		m.members[roomID] = map[string]bool{}
	}
	for _, id := range members {
		m.members[roomID][id.UserID] = true
		m.names[id.UserID] = id.Username
	}
}

func (m *memStore) revoke(roomID, userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.members[roomID], userID)
}

func (m *memStore) RoomExists(_ context.Context, roomID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rooms[roomID], m.existsErr
}

func (m *memStore) IsMember(_ context.Context, roomID, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.memberErr != nil {
		return false, m.memberErr
	}
	return m.members[roomID][userID], nil
}

func (m *memStore) AppendMessage(_ context.Context, roomID, userID, content string) (*domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil {
		return nil, m.appendErr
	}
	m.seq++
	msg := domain.Message{
		ID:        fmt.Sprintf("m%03d", m.seq),
		RoomID:    roomID,
		UserID:    userID,
		Content:   content,
		CreatedAt: time.Date(2025, 1, 1, 0, 0, m.seq, 0, time.UTC),
	}
	m.msgs = append(m.msgs, msg)
	return &msg, nil
}

func (m *memStore) RecentMessages(_ context.Context, roomID string, limit int) ([]domain.MessageWithUsername, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.recentErr != nil {
		return nil, m.recentErr
	}
	var out []domain.MessageWithUsername
	for _, msg := range m.msgs {
		if msg.RoomID != roomID {
			continue
		}
		out = append(out, domain.MessageWithUsername{
			ID: msg.ID, RoomID: msg.RoomID, UserID: msg.UserID,
			Username: m.names[msg.UserID], Content: msg.Content, CreatedAt: msg.CreatedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.msgs)
}

// staticResolver accepts tokens of the form "tok:<user>" for known users.
type staticResolver map[string]domain.Identity

func (r staticResolver) Resolve(credential string) (domain.Identity, error) {
	id, ok := r[credential]
	if !ok {
		return domain.Identity{}, fmt.Errorf("%w: unknown token", domain.ErrUnauthorized)
	}
	return id, nil
}

// fakeConn is a channel-backed Conn. The test plays the client side.
type fakeConn struct {
	in        chan Frame
	out       chan Frame
	done      chan struct{}
	closeOnce sync.Once
	failWrite atomic.Bool
	stall     chan struct{} // when non-nil, SendFrame blocks until it is closed
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:   make(chan Frame, 16),
		out:  make(chan Frame, 1024),
		done: make(chan struct{}),
	}
}

func (c *fakeConn) ReceiveFrame(ctx context.Context) (Frame, error) {
	select {
	case f, ok := <-c.in:
		if !ok {
			return Frame{}, io.EOF
		}
		return f, nil
	case <-c.done:
		return Frame{}, errors.New("use of closed connection")
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	}
}

func (c *fakeConn) SendFrame(ctx context.Context, f Frame) error {
	if c.failWrite.Load() {
		return errors.New("broken pipe")
	}
	if c.stall != nil {
		select {
		case <-c.stall:
		case <-c.done:
			return errors.New("use of closed connection")
		}
	}
	select {
	case c.out <- f:
		return nil
	case <-c.done:
		return errors.New("use of closed connection")
	}
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// hangUp simulates the client ending the stream.
func (c *fakeConn) hangUp() { close(c.in) }

func (c *fakeConn) sendText(s string) { c.in <- TextFrame([]byte(s)) }

// next reads the next frame written by the server.
func (c *fakeConn) next(t *testing.T) Frame {
	t.Helper()
	select {
	case f := <-c.out:
		return f
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for a server frame")
		return Frame{}
	}
}

// nextEvent reads and decodes the next text frame.
func (c *fakeConn) nextEvent(t *testing.T) WireEvent {
	t.Helper()
	f := c.next(t)
	require.Equal(t, FrameText, f.Kind, "expected text frame, got %v", f.Kind)
	var w WireEvent
	require.NoError(t, json.Unmarshal(f.Data, &w))
	return w
}

// recvEvent reads from a raw subscriber with a timeout.
func recvEvent(t *testing.T, sub *Subscriber[Event]) Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	ev, err := sub.Recv(ctx)
	require.NoError(t, err)
	return ev
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond)
}
