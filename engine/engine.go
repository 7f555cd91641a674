// Package engine implements the messaging protocol core for the desktop
// agent connection: the listener registry and dispatcher, the asynchronous
// request/response correlator, the predicate waiter, the two-phase
// subscription protocol, the identity-validation handshake state machine,
// and the heartbeat keeper. Higher-level operations (channels, intents,
// app discovery) are thin facades over this package.
package engine

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/robmoffat/fdc3-go/config"
	"github.com/robmoffat/fdc3-go/envelope"
	"github.com/robmoffat/fdc3-go/logging"
	"github.com/robmoffat/fdc3-go/transport"
)

// Engine drives one desktop agent connection. Application goroutines may
// call its operations concurrently; the transport delivers inbound frames
// one at a time on its own delivery path. The dispatcher's registry is the
// only structure both sides mutate.
type Engine struct {
	tr         transport.Transport
	codec      envelope.Codec
	validator  *envelope.SchemaValidator
	dispatcher *Dispatcher
	log        logging.Logger

	state     connState
	heartbeat *HeartbeatKeeper

	handshakeTimeout time.Duration
	defaultTimeout   time.Duration

	identityMu sync.RWMutex
	identity   *envelope.AppIdentifier

	// Outstanding one-shot waits, failed en masse at disconnect so no
	// caller hangs past connection teardown.
	pendingMu sync.Mutex
	pending   map[*pendingWait]string
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger. Default: silent.
func WithLogger(log logging.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// WithCodec sets the wire codec. Default: JSON.
func WithCodec(c envelope.Codec) Option {
	return func(e *Engine) { e.codec = c }
}

// WithSchemaValidation validates decoded inbound envelopes against the
// envelope schema before dispatch; failures are logged and dropped.
func WithSchemaValidation(v *envelope.SchemaValidator) Option {
	return func(e *Engine) { e.validator = v }
}

// WithHandshakeTimeout bounds the identity-validation exchange.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(e *Engine) { e.handshakeTimeout = d }
}

// WithDefaultTimeout sets the timeout facades use when the caller does not
// supply one.
func WithDefaultTimeout(d time.Duration) Option {
	return func(e *Engine) { e.defaultTimeout = d }
}

// WithHeartbeatThreshold sets the silence window after which Alive reports
// false.
func WithHeartbeatThreshold(d time.Duration) Option {
	return func(e *Engine) { e.heartbeat.threshold = d }
}

// New creates an engine over the given transport. The engine installs
// itself as the transport's frame handler; frames may arrive as soon as the
// transport connects.
func New(tr transport.Transport, opts ...Option) *Engine {
	e := &Engine{
		tr:               tr,
		codec:            envelope.NewJSONCodec(),
		log:              logging.NoOp{},
		handshakeTimeout: config.DefaultHandshakeTimeout,
		defaultTimeout:   config.DefaultExchangeTimeout,
		pending:          make(map[*pendingWait]string),
	}
	e.heartbeat = newHeartbeatKeeper(e, config.DefaultHeartbeatThreshold)
	for _, opt := range opts {
		opt(e)
	}
	e.dispatcher = NewDispatcher(e.log)
	tr.SetHandler(e.onFrame)
	return e
}

// State returns the current connection state.
func (e *Engine) State() ConnectionState {
	return e.state.load()
}

// CurrentIdentity returns the identity validated by the handshake, or nil
// before the connection is ready.
func (e *Engine) CurrentIdentity() *envelope.AppIdentifier {
	e.identityMu.RLock()
	defer e.identityMu.RUnlock()
	return e.identity
}

// CreateCorrelationID returns a fresh correlation identifier.
func (e *Engine) CreateCorrelationID() string {
	return uuid.NewString()
}

// DefaultTimeout returns the configured default exchange timeout.
func (e *Engine) DefaultTimeout() time.Duration {
	return e.defaultTimeout
}

// Heartbeat exposes the liveness observation surface.
func (e *Engine) Heartbeat() *HeartbeatKeeper {
	return e.heartbeat
}

// Dispatcher exposes the listener registry for durable registrations that
// need no subscribe round-trip.
func (e *Engine) Dispatcher() *Dispatcher {
	return e.dispatcher
}

// onFrame is the connection's delivery path: decode, validate, dispatch.
// Decode and validation failures are logged and the frame dropped; one bad
// frame must not disturb the connection's other traffic.
func (e *Engine) onFrame(frame []byte) {
	env, err := e.codec.Decode(frame)
	if err != nil {
		e.log.Warn("dropping undecodable frame", "error", err)
		return
	}
	if e.validator != nil {
		if err := e.validator.Validate(env); err != nil {
			e.log.Warn("dropping invalid envelope", "kind", env.Kind, "error", err)
			return
		}
	}
	e.dispatcher.Dispatch(env)
}

// Send transmits a single envelope without awaiting anything. Subject to
// handshake gating: until the connection is ready only handshake traffic
// may go out, and rejected sends never reach the transport.
func (e *Engine) Send(env *envelope.Envelope) error {
	st := e.state.load()
	if envelope.IsHandshakeKind(env.Kind) {
		switch st {
		case StateAwaitingValidation, StateReady, StateDisconnecting:
		default:
			return ErrNotReady
		}
	} else if st != StateReady {
		return ErrNotReady
	}

	e.stampSource(env)
	raw, err := e.codec.Encode(env)
	if err != nil {
		return err
	}
	return e.tr.Send(raw)
}

// stampSource applies the validated identity to outgoing meta. The engine
// owns meta.source after the handshake; callers cannot override it.
func (e *Engine) stampSource(env *envelope.Envelope) {
	e.identityMu.RLock()
	id := e.identity
	e.identityMu.RUnlock()
	if id != nil {
		src := *id
		env.Meta.Source = &src
	}
}

func (e *Engine) setIdentity(id *envelope.AppIdentifier) {
	e.identityMu.Lock()
	e.identity = id
	e.identityMu.Unlock()
}

// trackPending records an outstanding wait so disconnect can fail it.
func (e *Engine) trackPending(p *pendingWait, listenerID string) {
	e.pendingMu.Lock()
	e.pending[p] = listenerID
	e.pendingMu.Unlock()
}

func (e *Engine) untrackPending(p *pendingWait) {
	e.pendingMu.Lock()
	delete(e.pending, p)
	e.pendingMu.Unlock()
}

// failAllPending unregisters and fails every outstanding wait. Called on
// disconnect so no caller hangs on a connection that no longer exists.
func (e *Engine) failAllPending(err error) {
	e.pendingMu.Lock()
	outstanding := e.pending
	e.pending = make(map[*pendingWait]string)
	e.pendingMu.Unlock()

	for p, listenerID := range outstanding {
		e.dispatcher.Unregister(listenerID)
		p.fail(err)
	}
}
