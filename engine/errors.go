package engine

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for gating and lifecycle. Checked with errors.Is.
var (
	// ErrNotReady is returned when a non-handshake operation is attempted
	// before the connection handshake has completed. The transport is not
	// contacted.
	ErrNotReady = errors.New("connection not ready")
	// ErrClosed is returned when an operation is attempted on a closed
	// engine, and used to fail waits outstanding at disconnect.
	ErrClosed = errors.New("engine closed")
	// ErrInvalidTimeout is returned for non-positive timeouts on bounded
	// waits. Unbounded waiting is an explicit separate call, never a magic
	// timeout value.
	ErrInvalidTimeout = errors.New("timeout must be positive; use the unbounded variant for indefinite waits")
	// ErrAbandoned is returned by a prepared wait cancelled before its
	// envelope arrived.
	ErrAbandoned = errors.New("wait abandoned")
)

// TimeoutError reports an exchange or wait whose deadline elapsed with no
// matching envelope. Fatal to that operation only.
type TimeoutError struct {
	Kind    string // expected response kind, "" for predicate waits
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("timed out after %s waiting for %q", e.Timeout, e.Kind)
	}
	return fmt.Sprintf("timed out after %s waiting for matching envelope", e.Timeout)
}

// Is makes errors.Is(err, &TimeoutError{}) match any timeout.
func (e *TimeoutError) Is(target error) bool {
	_, ok := target.(*TimeoutError)
	return ok
}

// ProtocolViolation reports a peer response that breaks the protocol
// contract, such as a subscribe response missing its subscription
// identifier. Fatal to the single operation, not to the connection.
type ProtocolViolation struct {
	Kind   string
	Reason string
}

func (e *ProtocolViolation) Error() string {
	return fmt.Sprintf("protocol violation in %q: %s", e.Kind, e.Reason)
}

// HandshakeError reports a failed connect attempt: the peer explicitly
// rejected the identity, or the validation exchange timed out. The
// connection is left unusable; retry policy is the caller's concern.
type HandshakeError struct {
	Reason string
	Err    error
}

func (e *HandshakeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("handshake failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("handshake failed: %s", e.Reason)
}

func (e *HandshakeError) Unwrap() error { return e.Err }
