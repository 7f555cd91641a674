package engine

import (
	"sync"
	"time"

	"github.com/robmoffat/fdc3-go/envelope"
)

// HeartbeatKeeper answers the peer's keep-alive events and records when
// they arrive. The protocol delivers heartbeats as plain events with no
// subscribe round-trip, so the keeper is a durable registry entry rather
// than a two-phase subscription.
//
// Silence is exposed as an observation only: the keeper never disconnects
// on its own.
type HeartbeatKeeper struct {
	engine    *Engine
	threshold time.Duration

	mu         sync.Mutex
	listenerID string
	lastSeen   time.Time
}

func newHeartbeatKeeper(e *Engine, threshold time.Duration) *HeartbeatKeeper {
	return &HeartbeatKeeper{engine: e, threshold: threshold}
}

// start installs the durable listener. Called when the connection becomes
// ready; idempotent.
func (h *HeartbeatKeeper) start() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.listenerID != "" {
		return
	}
	h.lastSeen = time.Time{}
	h.listenerID = h.engine.dispatcher.Register(Listener{
		Predicate: func(env *envelope.Envelope) bool {
			return env.Kind == envelope.KindHeartbeatEvent
		},
		Handler: h.onHeartbeat,
	})
}

// stop removes the listener. Called at disconnect; idempotent.
func (h *HeartbeatKeeper) stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.listenerID == "" {
		return
	}
	h.engine.dispatcher.Unregister(h.listenerID)
	h.listenerID = ""
}

// onHeartbeat records the arrival and synchronously acknowledges, echoing
// the event's own identifier so the peer can confirm delivery.
func (h *HeartbeatKeeper) onHeartbeat(env *envelope.Envelope) {
	h.mu.Lock()
	h.lastSeen = time.Now()
	h.mu.Unlock()

	ack := envelope.NewRequest(envelope.KindHeartbeatAcknowledgementRequest, envelope.Payload{
		"heartbeatEventId": env.Meta.EventID,
	})
	if err := h.engine.Send(ack); err != nil {
		h.engine.log.Warn("failed to acknowledge heartbeat", "error", err)
	}
}

// LastSeen returns the arrival time of the most recent heartbeat, or the
// zero time if none has arrived.
func (h *HeartbeatKeeper) LastSeen() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastSeen
}

// SilentFor returns the time elapsed since the last heartbeat.
func (h *HeartbeatKeeper) SilentFor() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.lastSeen.IsZero() {
		return 0
	}
	return time.Since(h.lastSeen)
}

// Alive reports whether a heartbeat has arrived within the configured
// silence threshold.
func (h *HeartbeatKeeper) Alive() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.lastSeen.IsZero() {
		return false
	}
	return time.Since(h.lastSeen) <= h.threshold
}
