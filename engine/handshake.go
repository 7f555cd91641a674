package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/robmoffat/fdc3-go/envelope"
)

// Connect runs the connection handshake:
//
//	Disconnected -> Connecting -> AwaitingValidation -> Ready | Failed
//
// claims is the identity the application presents for validation; it
// becomes the payload of the validateAppIdentityRequest. On success the
// peer-validated identity is adopted for meta.source on all subsequent
// sends and the heartbeat keeper starts. On explicit rejection or timeout
// the connect attempt fails and is not retried; retry policy belongs to
// the caller.
//
// The validation exchange is correlated by a fresh connection-attempt id
// rather than a requestId, because it precedes any assigned identity.
func (e *Engine) Connect(ctx context.Context, claims envelope.Payload) (*envelope.AppIdentifier, error) {
	if !e.state.compareAndSwap(StateDisconnected, StateConnecting) &&
		!e.state.compareAndSwap(StateFailed, StateConnecting) {
		return nil, fmt.Errorf("connect from state %s: %w", e.state.load(), ErrNotReady)
	}

	if err := e.tr.Connect(ctx); err != nil {
		e.state.store(StateDisconnected)
		return nil, err
	}
	e.state.store(StateAwaitingValidation)

	attemptID := uuid.NewString()
	req := &envelope.Envelope{
		Kind: envelope.KindValidateAppIdentityRequest,
		Meta: envelope.Meta{
			ConnectionAttemptID: attemptID,
			Timestamp:           time.Now().UTC(),
		},
		Payload: claims,
	}
	if req.Payload == nil {
		req.Payload = envelope.Payload{}
	}

	p := newPendingWait()
	listenerID := e.dispatcher.Register(Listener{
		Predicate: func(env *envelope.Envelope) bool {
			if env.Meta.ConnectionAttemptID != attemptID {
				return false
			}
			return env.Kind == envelope.KindValidateAppIdentityResponse ||
				env.Kind == envelope.KindValidateAppIdentityFailedResponse
		},
		Handler: p.complete,
		OneShot: true,
	})
	e.trackPending(p, listenerID)

	if err := e.Send(req); err != nil {
		e.dispatcher.Unregister(listenerID)
		e.untrackPending(p)
		e.closeAfterFailedConnect()
		e.state.store(StateFailed)
		return nil, &HandshakeError{Reason: "failed to send identity validation request", Err: err}
	}

	resp, err := e.await(ctx, p, listenerID, e.handshakeTimeout, envelope.KindValidateAppIdentityResponse)
	if err != nil {
		e.closeAfterFailedConnect()
		if ctx.Err() != nil {
			// Caller abandoned the attempt; not a peer failure.
			e.state.store(StateDisconnected)
			return nil, err
		}
		e.state.store(StateFailed)
		return nil, &HandshakeError{Reason: "identity validation timed out", Err: err}
	}

	if resp.Kind == envelope.KindValidateAppIdentityFailedResponse {
		e.closeAfterFailedConnect()
		e.state.store(StateFailed)
		reason := resp.Payload.String("message")
		if reason == "" {
			reason = "peer rejected identity"
		}
		return nil, &HandshakeError{Reason: reason}
	}

	appID := resp.Payload.String("appId")
	if appID == "" {
		e.closeAfterFailedConnect()
		e.state.store(StateFailed)
		return nil, &HandshakeError{
			Reason: "validation response missing appId",
			Err:    &ProtocolViolation{Kind: resp.Kind, Reason: "missing appId"},
		}
	}

	identity := &envelope.AppIdentifier{
		AppID:      appID,
		InstanceID: resp.Payload.String("instanceId"),
	}
	e.setIdentity(identity)
	e.state.store(StateReady)
	e.heartbeat.start()
	e.log.Info("connection ready", "identity", identity.String())
	return identity, nil
}

// closeAfterFailedConnect releases the transport opened for a connect
// attempt that did not reach Ready. Best effort; the attempt's error is
// what the caller sees.
func (e *Engine) closeAfterFailedConnect() {
	if err := e.tr.Close(); err != nil {
		e.log.Warn("failed to close transport after failed connect", "error", err)
	}
}

// Disconnect sends a goodbye and closes the transport:
//
//	Ready -> Disconnecting -> Disconnected
//
// Every outstanding exchange or wait fails with ErrClosed so no caller is
// left hanging on the dead connection. Disconnecting an already
// disconnected engine is a no-op.
func (e *Engine) Disconnect(ctx context.Context) error {
	switch e.state.load() {
	case StateDisconnected, StateFailed:
		return nil
	}
	if !e.state.compareAndSwap(StateReady, StateDisconnecting) {
		return fmt.Errorf("disconnect from state %s: %w", e.state.load(), ErrNotReady)
	}

	e.heartbeat.stop()

	goodbye := &envelope.Envelope{
		Kind:    envelope.KindGoodbye,
		Meta:    envelope.Meta{Timestamp: time.Now().UTC()},
		Payload: envelope.Payload{},
	}
	if err := e.Send(goodbye); err != nil {
		// Best effort: the connection is going away either way.
		e.log.Warn("failed to send goodbye", "error", err)
	}

	err := e.tr.Close()
	e.failAllPending(ErrClosed)
	e.setIdentity(nil)
	e.state.store(StateDisconnected)
	e.log.Debug("disconnected")
	return err
}
