// Package agenttest provides a scripted fake desktop agent used by tests.
// It sits on the far end of a loopback transport, answers handshake,
// heartbeat, and subscription traffic with canned responses, and records
// everything it receives for assertions.
package agenttest

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/robmoffat/fdc3-go/envelope"
	"github.com/robmoffat/fdc3-go/transport"
)

// HandlerFunc produces the replies (possibly none) for one received
// envelope.
type HandlerFunc func(req *envelope.Envelope) []*envelope.Envelope

// Agent is the scripted peer.
type Agent struct {
	tr    transport.Transport
	codec envelope.Codec

	mu       sync.Mutex
	received []*envelope.Envelope
	handlers map[string]HandlerFunc
	identity envelope.AppIdentifier
}

// New creates an agent over the peer end of a transport pair. The default
// script validates any identity as appId "app1" instance "i1", answers
// subscribe requests with a fresh listenerUUID, and echoes pings.
func New(tr transport.Transport) *Agent {
	a := &Agent{
		tr:       tr,
		codec:    envelope.NewJSONCodec(),
		handlers: make(map[string]HandlerFunc),
		identity: envelope.AppIdentifier{AppID: "app1", InstanceID: "i1"},
	}
	tr.SetHandler(a.onFrame)
	a.installDefaults()
	return a
}

// WithCodec swaps the wire codec (defaults to JSON).
func (a *Agent) WithCodec(c envelope.Codec) *Agent {
	a.mu.Lock()
	a.codec = c
	a.mu.Unlock()
	return a
}

// SetIdentity changes the identity granted by the default validation
// handler.
func (a *Agent) SetIdentity(id envelope.AppIdentifier) {
	a.mu.Lock()
	a.identity = id
	a.mu.Unlock()
}

// Start connects the agent's transport end.
func (a *Agent) Start(ctx context.Context) error {
	return a.tr.Connect(ctx)
}

// Handle scripts the response for a request kind, replacing any default.
func (a *Agent) Handle(kind string, fn HandlerFunc) {
	a.mu.Lock()
	a.handlers[kind] = fn
	a.mu.Unlock()
}

// Emit pushes an unsolicited envelope (an event) to the client.
func (a *Agent) Emit(env *envelope.Envelope) error {
	a.mu.Lock()
	codec := a.codec
	a.mu.Unlock()
	raw, err := codec.Encode(env)
	if err != nil {
		return err
	}
	return a.tr.Send(raw)
}

// Received returns every envelope of the given kind seen so far, in
// arrival order. Empty kind returns everything.
func (a *Agent) Received(kind string) []*envelope.Envelope {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []*envelope.Envelope
	for _, env := range a.received {
		if kind == "" || env.Kind == kind {
			out = append(out, env)
		}
	}
	return out
}

func (a *Agent) onFrame(frame []byte) {
	a.mu.Lock()
	codec := a.codec
	a.mu.Unlock()

	env, err := codec.Decode(frame)
	if err != nil {
		return
	}

	a.mu.Lock()
	a.received = append(a.received, env)
	handler := a.handlers[env.Kind]
	a.mu.Unlock()

	if handler == nil {
		return
	}
	for _, reply := range handler(env) {
		_ = a.Emit(reply)
	}
}

func (a *Agent) installDefaults() {
	a.handlers[envelope.KindValidateAppIdentityRequest] = func(req *envelope.Envelope) []*envelope.Envelope {
		a.mu.Lock()
		id := a.identity
		a.mu.Unlock()
		resp := envelope.New(envelope.KindValidateAppIdentityResponse)
		resp.Meta.ConnectionAttemptID = req.Meta.ConnectionAttemptID
		resp.Meta.ResponseID = uuid.NewString()
		resp.Payload = envelope.Payload{"appId": id.AppID, "instanceId": id.InstanceID}
		return []*envelope.Envelope{resp}
	}
	a.handlers[envelope.KindPingRequest] = func(req *envelope.Envelope) []*envelope.Envelope {
		return []*envelope.Envelope{
			envelope.NewResponse(envelope.KindPingResponse, req.Meta.RequestID, nil),
		}
	}

	subscribe := func(req *envelope.Envelope) []*envelope.Envelope {
		respKind := subscribeResponseKind(req.Kind)
		return []*envelope.Envelope{
			envelope.NewResponse(respKind, req.Meta.RequestID, envelope.Payload{
				"listenerUUID": uuid.NewString(),
			}),
		}
	}
	a.handlers[envelope.KindAddContextListenerRequest] = subscribe
	a.handlers[envelope.KindAddIntentListenerRequest] = subscribe

	ack := func(req *envelope.Envelope) []*envelope.Envelope {
		respKind := subscribeResponseKind(req.Kind)
		return []*envelope.Envelope{
			envelope.NewResponse(respKind, req.Meta.RequestID, nil),
		}
	}
	a.handlers[envelope.KindContextListenerUnsubscribeRequest] = ack
	a.handlers[envelope.KindIntentListenerUnsubscribeRequest] = ack
	a.handlers[envelope.KindBroadcastRequest] = ack
	a.handlers[envelope.KindJoinUserChannelRequest] = ack
	a.handlers[envelope.KindLeaveCurrentChannelRequest] = ack
}

// subscribeResponseKind derives "<x>Response" from "<x>Request".
func subscribeResponseKind(requestKind string) string {
	const suffix = "Request"
	if len(requestKind) > len(suffix) && requestKind[len(requestKind)-len(suffix):] == suffix {
		return requestKind[:len(requestKind)-len(suffix)] + "Response"
	}
	return requestKind + "Response"
}

// Heartbeat emits a heartbeat event and returns its event id so tests can
// match the acknowledgement.
func (a *Agent) Heartbeat() (string, error) {
	ev := envelope.NewEvent(envelope.KindHeartbeatEvent, nil)
	return ev.Meta.EventID, a.Emit(ev)
}
