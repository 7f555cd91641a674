package engine

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/robmoffat/fdc3-go/envelope"
)

// SubscriptionState tracks a durable subscription's lifecycle:
//
//	Unregistered -> Subscribing -> Active -> Unsubscribing -> Removed
//
// with Failed absorbing a subscribe exchange that errors or times out.
type SubscriptionState int32

const (
	SubscriptionUnregistered SubscriptionState = iota
	SubscriptionSubscribing
	SubscriptionActive
	SubscriptionUnsubscribing
	SubscriptionRemoved
	SubscriptionFailed
)

func (s SubscriptionState) String() string {
	switch s {
	case SubscriptionUnregistered:
		return "UNREGISTERED"
	case SubscriptionSubscribing:
		return "SUBSCRIBING"
	case SubscriptionActive:
		return "ACTIVE"
	case SubscriptionUnsubscribing:
		return "UNSUBSCRIBING"
	case SubscriptionRemoved:
		return "REMOVED"
	case SubscriptionFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// SubscriptionSpec describes one durable subscription: the subscribe and
// unsubscribe request/response kinds, the subscribe payload, how to pull
// the peer-assigned subscription identifier out of the subscribe response,
// and the predicate/handler installed once the subscription is active.
type SubscriptionSpec struct {
	SubscribeKind           string
	SubscribeResponseKind   string
	UnsubscribeKind         string
	UnsubscribeResponseKind string
	SubscribePayload        envelope.Payload
	// SubscriptionID extracts the peer-assigned identifier from the
	// subscribe response payload. Defaults to the "listenerUUID" field.
	SubscriptionID func(payload envelope.Payload) string
	Predicate      Predicate
	Handler        Handler
}

func defaultSubscriptionID(payload envelope.Payload) string {
	return payload.String("listenerUUID")
}

// Subscription is the handle for one active durable subscription. Its
// peer-assigned identifier doubles as the local registry id.
type Subscription struct {
	engine *Engine
	spec   SubscriptionSpec
	id     string
	state  atomic.Int32
}

// ID returns the peer-assigned subscription identifier.
func (s *Subscription) ID() string { return s.id }

// State returns the subscription's lifecycle state.
func (s *Subscription) State() SubscriptionState {
	return SubscriptionState(s.state.Load())
}

// RegisterSubscription establishes a durable subscription in two phases:
// first the subscribe request is exchanged and the peer assigns the
// subscription its wire identity, and only then is the registry entry
// installed under that identity. A subscribe response without an
// identifier is a protocol violation: there would be no way to address an
// unsubscribe later, so the subscription fails and nothing is installed.
func (e *Engine) RegisterSubscription(ctx context.Context, spec SubscriptionSpec) (*Subscription, error) {
	if spec.SubscribeKind == "" || spec.SubscribeResponseKind == "" {
		return nil, fmt.Errorf("subscription spec missing subscribe kinds")
	}
	if (spec.UnsubscribeKind == "") != (spec.UnsubscribeResponseKind == "") {
		return nil, fmt.Errorf("subscription spec unsubscribe kinds must be set together")
	}
	if spec.Predicate == nil || spec.Handler == nil {
		return nil, fmt.Errorf("subscription spec missing predicate or handler")
	}
	if spec.SubscriptionID == nil {
		spec.SubscriptionID = defaultSubscriptionID
	}

	sub := &Subscription{engine: e, spec: spec}
	sub.state.Store(int32(SubscriptionSubscribing))

	req := envelope.NewRequest(spec.SubscribeKind, spec.SubscribePayload)
	resp, err := e.Exchange(ctx, req, spec.SubscribeResponseKind, e.defaultTimeout)
	if err != nil {
		sub.state.Store(int32(SubscriptionFailed))
		return nil, err
	}

	subID := spec.SubscriptionID(resp.Payload)
	if subID == "" {
		sub.state.Store(int32(SubscriptionFailed))
		return nil, &ProtocolViolation{
			Kind:   resp.Kind,
			Reason: "subscribe response missing subscription identifier",
		}
	}

	sub.id = subID
	e.dispatcher.Register(Listener{
		ID:        subID,
		Predicate: spec.Predicate,
		Handler:   spec.Handler,
	})
	sub.state.Store(int32(SubscriptionActive))
	e.log.Debug("subscription active", "kind", spec.SubscribeKind, "id", subID)
	return sub, nil
}

// Unsubscribe tears the subscription down, mirroring registration. The
// registry entry is removed before the unsubscribe round-trip, so a
// late-arriving event cannot reach a handler whose owner already believes
// it is unsubscribed, even if the peer acknowledges slowly.
func (s *Subscription) Unsubscribe(ctx context.Context) error {
	if !s.state.CompareAndSwap(int32(SubscriptionActive), int32(SubscriptionUnsubscribing)) {
		return fmt.Errorf("unsubscribe from state %s", s.State())
	}

	s.engine.dispatcher.Unregister(s.id)

	if s.spec.UnsubscribeKind == "" {
		s.state.Store(int32(SubscriptionRemoved))
		return nil
	}

	req := envelope.NewRequest(s.spec.UnsubscribeKind, envelope.Payload{
		"listenerUUID": s.id,
	})
	_, err := s.engine.Exchange(ctx, req, s.spec.UnsubscribeResponseKind, s.engine.defaultTimeout)
	s.state.Store(int32(SubscriptionRemoved))
	if err != nil {
		return fmt.Errorf("unsubscribe %s: %w", s.id, err)
	}
	return nil
}
