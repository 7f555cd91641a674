package transport

import (
	"context"
	"errors"
	"sync"
)

// Loopback is an in-memory Transport. NewLoopbackPair returns two ends wired
// together: frames sent on one end are delivered, in order, to the other
// end's handler on a dedicated goroutine. Used by tests and examples in
// place of a real socket.
type Loopback struct {
	mu        sync.Mutex
	peer      *Loopback
	handler   FrameHandler
	inbox     chan []byte
	connected bool
	closed    bool
	done      chan struct{}
}

// NewLoopbackPair creates two connected loopback transports.
func NewLoopbackPair() (*Loopback, *Loopback) {
	a := &Loopback{inbox: make(chan []byte, 256), done: make(chan struct{})}
	b := &Loopback{inbox: make(chan []byte, 256), done: make(chan struct{})}
	a.peer = b
	b.peer = a
	return a, b
}

func (l *Loopback) SetHandler(h FrameHandler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handler = h
}

// Connect starts the delivery goroutine. One frame at a time, preserving
// send order, matching the single delivery path the engine assumes.
func (l *Loopback) Connect(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return &Error{Op: "connect", Err: errors.New("loopback closed")}
	}
	if l.connected {
		return nil
	}
	l.connected = true

	go func() {
		for {
			select {
			case frame, ok := <-l.inbox:
				if !ok {
					return
				}
				l.mu.Lock()
				h := l.handler
				l.mu.Unlock()
				if h != nil {
					h(frame)
				}
			case <-l.done:
				return
			}
		}
	}()
	return nil
}

func (l *Loopback) Send(frame []byte) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return &Error{Op: "send", Err: errors.New("loopback closed")}
	}
	peer := l.peer
	l.mu.Unlock()

	// Copy so the sender may reuse its buffer.
	buf := make([]byte, len(frame))
	copy(buf, frame)

	select {
	case peer.inbox <- buf:
		return nil
	case <-peer.done:
		return &Error{Op: "send", Err: errors.New("peer closed")}
	}
}

func (l *Loopback) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	close(l.done)
	return nil
}
