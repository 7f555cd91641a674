package engine

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/robmoffat/fdc3-go/envelope"
	"github.com/robmoffat/fdc3-go/logging"
)

// Predicate decides whether a listener wants an envelope. Must be pure:
// no side effects, no blocking.
type Predicate func(env *envelope.Envelope) bool

// Handler consumes a matched envelope.
type Handler func(env *envelope.Envelope)

// Listener describes a dispatch registration. Kind-specific behavior lives
// in the predicate and handler closures, not in types.
type Listener struct {
	// ID is locally unique. For durable subscriptions the caller supplies
	// the peer-assigned subscription identifier; otherwise one is generated.
	ID        string
	Predicate Predicate
	Handler   Handler
	// OneShot listeners are removed atomically with their single
	// invocation.
	OneShot bool
}

// registration is the dispatcher's internal record for one listener.
type registration struct {
	id        string
	predicate Predicate
	handler   Handler
	oneShot   bool
	// claimed guards one-shot invocation: exactly one dispatch wins the
	// CAS even when two matching envelopes are dispatched concurrently.
	claimed atomic.Bool
}

// Dispatcher owns the listener registry and fans every inbound envelope out
// to all matching registrations. The registry is the only structure mutated
// by both the delivery path and arbitrary caller goroutines; all access
// goes through Register/Unregister/Dispatch.
//
// Dispatch iterates over a snapshot, so no lock is held across predicate or
// handler invocation: a slow handler cannot block registration of new
// listeners or timeout processing.
type Dispatcher struct {
	mu   sync.RWMutex
	regs map[string]*registration
	log  logging.Logger
}

// NewDispatcher creates an empty dispatcher. A nil logger means silent.
func NewDispatcher(log logging.Logger) *Dispatcher {
	if log == nil {
		log = logging.NoOp{}
	}
	return &Dispatcher{
		regs: make(map[string]*registration),
		log:  log,
	}
}

// Register adds a listener and returns its id (the handle for Unregister).
// Safe to call concurrently with Dispatch; the listener sees only envelopes
// dispatched after registration.
func (d *Dispatcher) Register(l Listener) string {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	reg := &registration{
		id:        l.ID,
		predicate: l.Predicate,
		handler:   l.Handler,
		oneShot:   l.OneShot,
	}
	d.mu.Lock()
	d.regs[l.ID] = reg
	d.mu.Unlock()
	return l.ID
}

// Unregister removes a listener. Safe to call during an in-progress
// dispatch of the same listener: that dispatch still completes, no further
// dispatches occur. Unknown ids are a no-op.
func (d *Dispatcher) Unregister(id string) {
	d.mu.Lock()
	delete(d.regs, id)
	d.mu.Unlock()
}

// Len reports the number of live registrations.
func (d *Dispatcher) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.regs)
}

// Dispatch evaluates every currently-registered listener's predicate
// against env, in unspecified order, and invokes the handler for each
// match. One-shot listeners are claimed before invocation so they fire
// exactly once. A panicking handler is recovered and logged; dispatch
// continues with the remaining listeners.
func (d *Dispatcher) Dispatch(env *envelope.Envelope) {
	d.mu.RLock()
	snapshot := make([]*registration, 0, len(d.regs))
	for _, reg := range d.regs {
		snapshot = append(snapshot, reg)
	}
	d.mu.RUnlock()

	for _, reg := range snapshot {
		if !d.matches(reg, env) {
			continue
		}
		if reg.oneShot {
			if !reg.claimed.CompareAndSwap(false, true) {
				continue // lost the race to a concurrent dispatch
			}
			d.Unregister(reg.id)
		} else {
			// A listener unregistered after the snapshot was taken must
			// not fire.
			d.mu.RLock()
			_, live := d.regs[reg.id]
			d.mu.RUnlock()
			if !live {
				continue
			}
		}
		d.invoke(reg, env)
	}
}

func (d *Dispatcher) matches(reg *registration, env *envelope.Envelope) bool {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("listener predicate panicked", "listener", reg.id, "kind", env.Kind, "panic", r)
		}
	}()
	return reg.predicate(env)
}

func (d *Dispatcher) invoke(reg *registration, env *envelope.Envelope) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("listener handler panicked", "listener", reg.id, "kind", env.Kind, "panic", r)
		}
	}()
	reg.handler(env)
}
