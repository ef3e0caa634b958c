// Package realtime – Conn
//
// The transport contract a session runs on, and the frame and close-code
// vocabulary shared with the websocket adapter.
package realtime

import "context"

// FrameKind identifies the type of a transport frame.
type FrameKind int

const (
	FrameText FrameKind = iota + 1
	FrameBinary
	FramePing
	FramePong
	FrameClose
)

func (k FrameKind) String() string {
	switch k {
	case FrameText:
		return "text"
	case FrameBinary:
		return "binary"
	case FramePing:
		return "ping"
	case FramePong:
		return "pong"
	case FrameClose:
		return "close"
	default:
		return "unknown"
	}
}

// Close codes carried by close frames (RFC 6455 section 7.4.1).
const (
	CloseNormal          = 1000
	ClosePolicyViolation = 1008
	CloseInternalError   = 1011
)

// Frame is one transport message. Code is only meaningful for close frames.
type Frame struct {
	Kind FrameKind
	Data []byte
	Code int
}

// TextFrame wraps a payload in a text frame.
func TextFrame(b []byte) Frame { return Frame{Kind: FrameText, Data: b} }

// CloseFrame builds a close frame with a code and a short reason.
func CloseFrame(code int, reason string) Frame {
	return Frame{Kind: FrameClose, Code: code, Data: []byte(reason)}
}

// Conn is the bidirectional transport a session runs on. ReceiveFrame
// returns io.EOF once the peer has closed the stream. SendFrame is only
// called from one goroutine at a time. Close unblocks a pending ReceiveFrame.
type Conn interface {
	ReceiveFrame(ctx context.Context) (Frame, error)
	SendFrame(ctx context.Context, f Frame) error
	Close() error
}
