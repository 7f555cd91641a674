// Package transport defines the boundary the protocol engine consumes: a
// connected, bidirectional, message-oriented pipe that sends opaque frames
// and delivers inbound frames as they arrive. Reconnection, TLS, and frame
// delimiting are the transport implementation's responsibility. The package
// also provides an in-memory Loopback pair used by tests and examples.
package transport

import (
	"context"
	"fmt"
)

// FrameHandler is invoked by the transport for every inbound frame, one
// frame at a time.
type FrameHandler func(frame []byte)

// Transport is the engine's entire contract with the physical connection.
type Transport interface {
	// Connect establishes the connection. The frame handler must be set
	// before Connect; frames may be delivered as soon as it returns.
	Connect(ctx context.Context) error
	// Send transmits one frame. It must not block on peer consumption.
	Send(frame []byte) error
	// Close tears the connection down. Safe to call more than once.
	Close() error
	// SetHandler registers the inbound frame callback.
	SetHandler(h FrameHandler)
}

// Error reports a failure at the transport boundary, propagated to the
// caller of the operation that attempted the send or connect.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
