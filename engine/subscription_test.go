package engine

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robmoffat/fdc3-go/envelope"
)

func contextListenerSpec(received *atomic.Int32) SubscriptionSpec {
	return SubscriptionSpec{
		SubscribeKind:           envelope.KindAddContextListenerRequest,
		SubscribeResponseKind:   envelope.KindAddContextListenerResponse,
		UnsubscribeKind:         envelope.KindContextListenerUnsubscribeRequest,
		UnsubscribeResponseKind: envelope.KindContextListenerUnsubscribeResponse,
		SubscribePayload:        envelope.Payload{"channelId": "red", "contextType": "fdc3.instrument"},
		Predicate: func(env *envelope.Envelope) bool {
			return env.Kind == envelope.KindBroadcastEvent
		},
		Handler: func(env *envelope.Envelope) {
			received.Add(1)
		},
	}
}

func TestSubscriptionTwoPhaseRegistration(t *testing.T) {
	e, tr := newReadyEngine(t)
	var received atomic.Int32

	done := make(chan struct{})
	var sub *Subscription
	var subErr error
	go func() {
		sub, subErr = e.RegisterSubscription(context.Background(), contextListenerSpec(&received))
		close(done)
	}()

	require.Eventually(t, func() bool {
		return tr.lastSent(envelope.KindAddContextListenerRequest) != nil
	}, time.Second, time.Millisecond)
	req := tr.lastSent(envelope.KindAddContextListenerRequest)
	require.Equal(t, "red", req.Payload.String("channelId"))

	// No event reaches the handler before the peer has assigned the
	// subscription its identity.
	tr.deliver(envelope.NewEvent(envelope.KindBroadcastEvent, nil))
	require.Zero(t, received.Load())

	resp := envelope.NewResponse(envelope.KindAddContextListenerResponse, req.Meta.RequestID,
		envelope.Payload{"listenerUUID": "lst-42"})
	tr.deliver(resp)
	<-done

	require.NoError(t, subErr)
	require.Equal(t, "lst-42", sub.ID())
	require.Equal(t, SubscriptionActive, sub.State())

	tr.deliver(envelope.NewEvent(envelope.KindBroadcastEvent, nil))
	tr.deliver(envelope.NewEvent(envelope.KindBroadcastEvent, nil))
	require.Equal(t, int32(2), received.Load())
}

// A subscribe response without the peer-assigned identifier installs
// nothing: later matching events must not reach the handler.
func TestSubscribeResponseMissingIdentifier(t *testing.T) {
	e, tr := newReadyEngine(t)
	var received atomic.Int32

	done := make(chan error, 1)
	go func() {
		_, err := e.RegisterSubscription(context.Background(), contextListenerSpec(&received))
		done <- err
	}()

	require.Eventually(t, func() bool {
		return tr.lastSent(envelope.KindAddContextListenerRequest) != nil
	}, time.Second, time.Millisecond)
	req := tr.lastSent(envelope.KindAddContextListenerRequest)
	tr.deliver(envelope.NewResponse(envelope.KindAddContextListenerResponse, req.Meta.RequestID, nil))

	err := <-done
	var violation *ProtocolViolation
	require.ErrorAs(t, err, &violation)

	require.Equal(t, 1, e.Dispatcher().Len(), "only the heartbeat keeper remains registered")
	tr.deliver(envelope.NewEvent(envelope.KindBroadcastEvent, nil))
	require.Zero(t, received.Load(), "no handler may be invoked for a failed subscription")
}

// Unsubscribe kinds must be supplied together: an unsubscribe exchange
// for kind "" could never match, so the mismatch is rejected up front.
func TestSubscriptionSpecUnsubscribeKindsMustPair(t *testing.T) {
	e, tr := newReadyEngine(t)
	var received atomic.Int32
	spec := contextListenerSpec(&received)
	spec.UnsubscribeResponseKind = ""

	sentBefore := tr.sentCount()
	sub, err := e.RegisterSubscription(context.Background(), spec)
	require.Error(t, err)
	require.Nil(t, sub)
	require.Equal(t, sentBefore, tr.sentCount(), "nothing sent for a rejected spec")
	require.Equal(t, 1, e.Dispatcher().Len())
}

func TestSubscribeTimeoutLeavesNothingInstalled(t *testing.T) {
	e, _ := newReadyEngine(t, WithDefaultTimeout(30*time.Millisecond))
	var received atomic.Int32

	sub, err := e.RegisterSubscription(context.Background(), contextListenerSpec(&received))
	require.ErrorIs(t, err, &TimeoutError{})
	require.Nil(t, sub)
	require.Equal(t, 1, e.Dispatcher().Len())
}

// Unsubscribe removes the registry entry before the unsubscribe
// round-trip completes, so events in flight during teardown are dropped.
func TestUnsubscribeRemovesEntryBeforeAcknowledgement(t *testing.T) {
	e, tr := newReadyEngine(t)
	var received atomic.Int32

	done := make(chan struct{})
	var sub *Subscription
	go func() {
		sub, _ = e.RegisterSubscription(context.Background(), contextListenerSpec(&received))
		close(done)
	}()
	require.Eventually(t, func() bool {
		return tr.lastSent(envelope.KindAddContextListenerRequest) != nil
	}, time.Second, time.Millisecond)
	req := tr.lastSent(envelope.KindAddContextListenerRequest)
	tr.deliver(envelope.NewResponse(envelope.KindAddContextListenerResponse, req.Meta.RequestID,
		envelope.Payload{"listenerUUID": "lst-7"}))
	<-done
	require.NotNil(t, sub)

	unsubDone := make(chan error, 1)
	go func() {
		unsubDone <- sub.Unsubscribe(context.Background())
	}()
	require.Eventually(t, func() bool {
		return tr.lastSent(envelope.KindContextListenerUnsubscribeRequest) != nil
	}, time.Second, time.Millisecond)

	// The peer has not acknowledged yet; the handler is already gone.
	require.Equal(t, SubscriptionUnsubscribing, sub.State())
	tr.deliver(envelope.NewEvent(envelope.KindBroadcastEvent, nil))
	require.Zero(t, received.Load())

	unsub := tr.lastSent(envelope.KindContextListenerUnsubscribeRequest)
	require.Equal(t, "lst-7", unsub.Payload.String("listenerUUID"))
	tr.deliver(envelope.NewResponse(envelope.KindContextListenerUnsubscribeResponse, unsub.Meta.RequestID, nil))

	require.NoError(t, <-unsubDone)
	require.Equal(t, SubscriptionRemoved, sub.State())
}

func TestUnsubscribeTwiceFails(t *testing.T) {
	e, tr := newReadyEngine(t)
	var received atomic.Int32

	done := make(chan struct{})
	var sub *Subscription
	go func() {
		spec := contextListenerSpec(&received)
		// local-only teardown
		spec.UnsubscribeKind = ""
		spec.UnsubscribeResponseKind = ""
		sub, _ = e.RegisterSubscription(context.Background(), spec)
		close(done)
	}()
	require.Eventually(t, func() bool {
		return tr.lastSent(envelope.KindAddContextListenerRequest) != nil
	}, time.Second, time.Millisecond)
	req := tr.lastSent(envelope.KindAddContextListenerRequest)
	tr.deliver(envelope.NewResponse(envelope.KindAddContextListenerResponse, req.Meta.RequestID,
		envelope.Payload{"listenerUUID": "lst-9"}))
	<-done

	require.NoError(t, sub.Unsubscribe(context.Background()))
	require.Equal(t, SubscriptionRemoved, sub.State())
	require.Error(t, sub.Unsubscribe(context.Background()))
}
