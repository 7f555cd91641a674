package engine

import "sync/atomic"

// ConnectionState is the handshake state machine's current position. Owned
// by the engine's connect/disconnect path; read by every send to decide
// whether non-handshake traffic may go out.
type ConnectionState int32

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateAwaitingValidation
	StateReady
	StateDisconnecting
	StateFailed
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateAwaitingValidation:
		return "AWAITING_VALIDATION"
	case StateReady:
		return "READY"
	case StateDisconnecting:
		return "DISCONNECTING"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// connState is an atomically updated ConnectionState, read-mostly.
type connState struct {
	v atomic.Int32
}

func (c *connState) load() ConnectionState {
	return ConnectionState(c.v.Load())
}

func (c *connState) store(s ConnectionState) {
	c.v.Store(int32(s))
}

// compareAndSwap transitions from one state to another atomically,
// reporting whether the transition happened.
func (c *connState) compareAndSwap(from, to ConnectionState) bool {
	return c.v.CompareAndSwap(int32(from), int32(to))
}
