// Package envelope defines the wire message model for the desktop agent
// connection: the Envelope/Meta shapes, the message kind strings, and the
// codecs that convert between raw transport frames and Envelope values.
package envelope

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AppIdentifier identifies an application, optionally down to a single
// running instance.
type AppIdentifier struct {
	AppID      string `json:"appId" cbor:"appId"`
	InstanceID string `json:"instanceId,omitempty" cbor:"instanceId,omitempty"`
}

func (a AppIdentifier) String() string {
	if a.InstanceID == "" {
		return a.AppID
	}
	return a.AppID + "/" + a.InstanceID
}

// Meta is the correlation and context block carried by every envelope.
//
// A response's RequestID always equals the RequestID of the request it
// answers. An event carries no RequestID unless it is itself correlated to
// an originating request (an asynchronous intent result, for example).
// ConnectionAttemptID is used only by the identity-validation handshake,
// which precedes any assigned application identity.
type Meta struct {
	RequestID           string         `json:"requestId,omitempty" cbor:"requestId,omitempty"`
	ResponseID          string         `json:"responseId,omitempty" cbor:"responseId,omitempty"`
	EventID             string         `json:"eventId,omitempty" cbor:"eventId,omitempty"`
	ConnectionAttemptID string         `json:"connectionAttemptId,omitempty" cbor:"connectionAttemptId,omitempty"`
	Timestamp           time.Time      `json:"timestamp,omitempty" cbor:"timestamp,omitempty"`
	Source              *AppIdentifier `json:"source,omitempty" cbor:"source,omitempty"`
}

// Payload is the kind-specific structured value of an envelope. It may be
// empty but is always present on the wire.
type Payload map[string]any

// String extracts a string field from the payload, returning "" if absent
// or not a string.
func (p Payload) String(key string) string {
	if p == nil {
		return ""
	}
	s, _ := p[key].(string)
	return s
}

// Map extracts a nested object field from the payload.
func (p Payload) Map(key string) Payload {
	if p == nil {
		return nil
	}
	switch v := p[key].(type) {
	case map[string]any:
		return Payload(v)
	case Payload:
		return v
	default:
		return nil
	}
}

// Envelope is one inbound or outbound unit on the wire: a request, a
// response, or an event, discriminated by Kind.
type Envelope struct {
	Kind    string  `json:"kind" cbor:"kind"`
	Meta    Meta    `json:"meta" cbor:"meta"`
	Payload Payload `json:"payload" cbor:"payload"`
}

// New creates an envelope of the given kind with an empty payload.
func New(kind string) *Envelope {
	return &Envelope{Kind: kind, Payload: Payload{}}
}

// NewRequest creates a request envelope with a fresh RequestID and timestamp.
func NewRequest(kind string, payload Payload) *Envelope {
	if payload == nil {
		payload = Payload{}
	}
	return &Envelope{
		Kind: kind,
		Meta: Meta{
			RequestID: uuid.NewString(),
			Timestamp: time.Now().UTC(),
		},
		Payload: payload,
	}
}

// NewResponse creates a response envelope answering the given request.
func NewResponse(kind string, requestID string, payload Payload) *Envelope {
	if payload == nil {
		payload = Payload{}
	}
	return &Envelope{
		Kind: kind,
		Meta: Meta{
			RequestID:  requestID,
			ResponseID: uuid.NewString(),
			Timestamp:  time.Now().UTC(),
		},
		Payload: payload,
	}
}

// NewEvent creates an event envelope with a fresh EventID and timestamp.
func NewEvent(kind string, payload Payload) *Envelope {
	if payload == nil {
		payload = Payload{}
	}
	return &Envelope{
		Kind: kind,
		Meta: Meta{
			EventID:   uuid.NewString(),
			Timestamp: time.Now().UTC(),
		},
		Payload: payload,
	}
}

// Validate checks the structural invariants: non-empty kind and a present
// (possibly empty) payload.
func (e *Envelope) Validate() error {
	if e.Kind == "" {
		return &DecodeError{Reason: "envelope missing kind"}
	}
	if e.Payload == nil {
		return &DecodeError{Reason: fmt.Sprintf("envelope %q missing payload", e.Kind)}
	}
	return nil
}

// IsResponseTo reports whether e is a response of the given kind correlated
// to requestID.
func (e *Envelope) IsResponseTo(kind, requestID string) bool {
	return e.Kind == kind && e.Meta.RequestID == requestID
}
