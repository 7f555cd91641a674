package engine

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/robmoffat/fdc3-go/envelope"
)

// Exchange sends a request and awaits the response of the expected kind
// carrying the request's correlation id. Exactly one of {matched response,
// timeout, cancellation} resolves the call; a response arriving after the
// deadline has no observable effect.
//
// The timeout must be positive. Operations that legitimately wait on user
// interaction at the peer use ExchangeUnbounded instead; unbounded waiting
// is never inferred from a magic timeout value.
func (e *Engine) Exchange(ctx context.Context, req *envelope.Envelope, expectedKind string, timeout time.Duration) (*envelope.Envelope, error) {
	if timeout <= 0 {
		return nil, ErrInvalidTimeout
	}
	return e.exchange(ctx, req, expectedKind, timeout)
}

// ExchangeUnbounded is Exchange without a deadline, an explicit opt-in for
// operations whose response depends on user interaction at the peer. The
// context remains the only way to abandon the wait.
func (e *Engine) ExchangeUnbounded(ctx context.Context, req *envelope.Envelope, expectedKind string) (*envelope.Envelope, error) {
	return e.exchange(ctx, req, expectedKind, 0)
}

func (e *Engine) exchange(ctx context.Context, req *envelope.Envelope, expectedKind string, timeout time.Duration) (*envelope.Envelope, error) {
	if req.Meta.RequestID == "" {
		req.Meta.RequestID = uuid.NewString()
	}
	if req.Meta.Timestamp.IsZero() {
		req.Meta.Timestamp = time.Now().UTC()
	}
	requestID := req.Meta.RequestID

	p := newPendingWait()
	listenerID := e.dispatcher.Register(Listener{
		Predicate: func(env *envelope.Envelope) bool {
			return env.IsResponseTo(expectedKind, requestID)
		},
		Handler: p.complete,
		OneShot: true,
	})
	e.trackPending(p, listenerID)

	if err := e.Send(req); err != nil {
		e.dispatcher.Unregister(listenerID)
		e.untrackPending(p)
		return nil, err
	}

	return e.await(ctx, p, listenerID, timeout, expectedKind)
}

// WaitFor awaits the next envelope matching a caller-supplied predicate.
// Used where a result arrives as an independent later event rather than as
// the direct response to the triggering request; such a wait is its own
// registration, never shared with any exchange.
func (e *Engine) WaitFor(ctx context.Context, pred Predicate, timeout time.Duration) (*envelope.Envelope, error) {
	if timeout <= 0 {
		return nil, ErrInvalidTimeout
	}
	return e.waitFor(ctx, pred, timeout)
}

// WaitForUnbounded is WaitFor without a deadline; see ExchangeUnbounded.
func (e *Engine) WaitForUnbounded(ctx context.Context, pred Predicate) (*envelope.Envelope, error) {
	return e.waitFor(ctx, pred, 0)
}

// PreparedWait is a predicate wait whose registration precedes the wait
// itself: PrepareWait installs the listener immediately, so a matching
// envelope arriving before Await is captured rather than dropped, and
// Await then resolves with it.
type PreparedWait struct {
	engine     *Engine
	p          *pendingWait
	listenerID string
}

// PrepareWait registers pred now and returns a handle to await the match
// later. Used when the envelope may arrive between sending its triggering
// request and the caller blocking for it, as with an asynchronous intent
// result: the listener must exist before the peer can answer.
func (e *Engine) PrepareWait(pred Predicate) *PreparedWait {
	p := newPendingWait()
	listenerID := e.dispatcher.Register(Listener{
		Predicate: pred,
		Handler:   p.complete,
		OneShot:   true,
	})
	e.trackPending(p, listenerID)
	return &PreparedWait{engine: e, p: p, listenerID: listenerID}
}

// Await blocks until the match arrives or ctx is cancelled. It carries no
// deadline of its own; see ExchangeUnbounded.
func (w *PreparedWait) Await(ctx context.Context) (*envelope.Envelope, error) {
	return w.engine.await(ctx, w.p, w.listenerID, 0, "")
}

// Cancel releases the registration. Await fails with ErrAbandoned unless
// the match already arrived.
func (w *PreparedWait) Cancel() {
	w.engine.dispatcher.Unregister(w.listenerID)
	w.engine.untrackPending(w.p)
	w.p.fail(ErrAbandoned)
}

func (e *Engine) waitFor(ctx context.Context, pred Predicate, timeout time.Duration) (*envelope.Envelope, error) {
	p := newPendingWait()
	listenerID := e.dispatcher.Register(Listener{
		Predicate: pred,
		Handler:   p.complete,
		OneShot:   true,
	})
	e.trackPending(p, listenerID)
	return e.await(ctx, p, listenerID, timeout, "")
}

// await blocks until the pending wait resolves, the timer fires, or the
// context is cancelled. Whichever happens first wins; the others are
// no-ops on the already-completed future.
func (e *Engine) await(ctx context.Context, p *pendingWait, listenerID string, timeout time.Duration, expectedKind string) (*envelope.Envelope, error) {
	var timer *time.Timer
	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer = time.NewTimer(timeout)
		timeoutCh = timer.C
		defer timer.Stop()
	}

	select {
	case <-p.done:
	case <-timeoutCh:
		e.dispatcher.Unregister(listenerID)
		p.fail(&TimeoutError{Kind: expectedKind, Timeout: timeout})
	case <-ctx.Done():
		e.dispatcher.Unregister(listenerID)
		p.fail(ctx.Err())
	}
	e.untrackPending(p)

	// The future may have been completed by a dispatch that raced the
	// timer or cancellation; its first completion is the outcome.
	<-p.done
	return p.result()
}
