package handlers

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tbourn/go-chat-rooms/internal/domain"
	"github.com/tbourn/go-chat-rooms/internal/realtime"
)

// WSOptions tunes the websocket transport.
type WSOptions struct {
	// ReadLimit caps an inbound message in bytes. Values below
	// domain.MaxMessageFrameBytes are raised to it.
	ReadLimit int64
	// PingInterval is how often the server pings. It must be below PongWait.
	PingInterval time.Duration
	// PongWait is how long a read may idle before the peer counts as gone.
	PongWait time.Duration
	// WriteTimeout bounds every write, control frames included.
	WriteTimeout time.Duration
}

func (o WSOptions) withDefaults() WSOptions {
	if o.ReadLimit <= 0 {
		o.ReadLimit = 64 << 10
	}
	if o.ReadLimit < domain.MaxMessageFrameBytes {
		o.ReadLimit = domain.MaxMessageFrameBytes
	}
	if o.PongWait <= 0 {
		o.PongWait = 90 * time.Second
	}
	if o.PingInterval <= 0 || o.PingInterval >= o.PongWait {
		o.PingInterval = o.PongWait / 3
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	return o
}

// wsConn adapts a gorilla connection to realtime.Conn. Pings are written by
// a background loop through WriteControl, which gorilla allows concurrently
// with the session's writer.
type wsConn struct {
	ws   *websocket.Conn
	opts WSOptions

	done      chan struct{}
	closeOnce sync.Once
	closeSent sync.Once
}

func newWSConn(ws *websocket.Conn, opts WSOptions) *wsConn {
	opts = opts.withDefaults()
	c := &wsConn{ws: ws, opts: opts, done: make(chan struct{})}

	ws.SetReadLimit(opts.ReadLimit)
	_ = ws.SetReadDeadline(time.Now().Add(opts.PongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(opts.PongWait))
	})
	go c.pingLoop()
	return c
}

func (c *wsConn) pingLoop() {
	t := time.NewTicker(c.opts.PingInterval)
	defer t.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-t.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.opts.WriteTimeout)); err != nil {
				return
			}
		}
	}
}

// ReceiveFrame reads the next data message. Pings and pongs are consumed by
// gorilla's control handlers and never surface. A close from the peer is
// reported as io.EOF.
func (c *wsConn) ReceiveFrame(ctx context.Context) (realtime.Frame, error) {
	if err := ctx.Err(); err != nil {
		return realtime.Frame{}, err
	}
	mt, data, err := c.ws.ReadMessage()
	if err != nil {
		var ce *websocket.CloseError
		if errors.As(err, &ce) {
			return realtime.Frame{}, io.EOF
		}
		return realtime.Frame{}, err
	}
	switch mt {
	case websocket.TextMessage:
		return realtime.TextFrame(data), nil
	default:
		return realtime.Frame{Kind: realtime.FrameBinary, Data: data}, nil
	}
}

// SendFrame writes a text or close frame under the write deadline.
func (c *wsConn) SendFrame(ctx context.Context, f realtime.Frame) error {
	deadline := time.Now().Add(c.opts.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	switch f.Kind {
	case realtime.FrameClose:
		var err error
		c.closeSent.Do(func() {
			msg := websocket.FormatCloseMessage(f.Code, string(f.Data))
			err = c.ws.WriteControl(websocket.CloseMessage, msg, deadline)
		})
		return err
	case realtime.FrameBinary:
		_ = c.ws.SetWriteDeadline(deadline)
		return c.ws.WriteMessage(websocket.BinaryMessage, f.Data)
	default:
		_ = c.ws.SetWriteDeadline(deadline)
		return c.ws.WriteMessage(websocket.TextMessage, f.Data)
	}
}

// Close sends a normal close frame unless one was already sent, stops the
// pinger and closes the socket, unblocking a pending ReceiveFrame.
func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		_ = c.SendFrame(context.Background(), realtime.CloseFrame(realtime.CloseNormal, ""))
		close(c.done)
		err = c.ws.Close()
	})
	return err
}
