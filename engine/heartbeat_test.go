package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robmoffat/fdc3-go/envelope"
)

func TestHeartbeatAcknowledgedWithEventID(t *testing.T) {
	_, tr := newReadyEngine(t)

	hb := envelope.NewEvent(envelope.KindHeartbeatEvent, nil)
	tr.deliver(hb)

	ack := tr.lastSent(envelope.KindHeartbeatAcknowledgementRequest)
	require.NotNil(t, ack)
	require.Equal(t, hb.Meta.EventID, ack.Payload.String("heartbeatEventId"))
	require.Equal(t, &envelope.AppIdentifier{AppID: "app1", InstanceID: "i1"}, ack.Meta.Source)
}

func TestHeartbeatEveryEventAcknowledged(t *testing.T) {
	_, tr := newReadyEngine(t)

	ids := make(map[string]bool)
	for i := 0; i < 3; i++ {
		hb := envelope.NewEvent(envelope.KindHeartbeatEvent, nil)
		ids[hb.Meta.EventID] = true
		tr.deliver(hb)
	}

	tr.mu.Lock()
	sent := append([]*envelope.Envelope(nil), tr.sent...)
	tr.mu.Unlock()

	var acked int
	for _, env := range sent {
		if env.Kind == envelope.KindHeartbeatAcknowledgementRequest {
			require.True(t, ids[env.Payload.String("heartbeatEventId")])
			acked++
		}
	}
	require.Equal(t, 3, acked)
}

func TestHeartbeatLivenessObservation(t *testing.T) {
	e, tr := newReadyEngine(t, WithHeartbeatThreshold(time.Second))
	hb := e.Heartbeat()

	require.True(t, hb.LastSeen().IsZero())
	require.False(t, hb.Alive(), "no heartbeat seen yet")

	tr.deliver(envelope.NewEvent(envelope.KindHeartbeatEvent, nil))
	require.False(t, hb.LastSeen().IsZero())
	require.True(t, hb.Alive())
	require.Less(t, hb.SilentFor(), time.Second)
}

func TestHeartbeatSilenceDoesNotDisconnect(t *testing.T) {
	e, tr := newReadyEngine(t, WithHeartbeatThreshold(10*time.Millisecond))
	hb := e.Heartbeat()

	tr.deliver(envelope.NewEvent(envelope.KindHeartbeatEvent, nil))
	require.Eventually(t, func() bool { return !hb.Alive() }, time.Second, time.Millisecond)

	// Liveness is an observation for the caller; the connection stays up.
	require.Equal(t, StateReady, e.State())
	require.NoError(t, e.Send(envelope.NewRequest(envelope.KindPingRequest, nil)))
}

func TestHeartbeatStopsAtDisconnect(t *testing.T) {
	e, tr := newReadyEngine(t)
	require.NoError(t, e.Disconnect(context.Background()))

	sentBefore := tr.sentCount()
	tr.deliver(envelope.NewEvent(envelope.KindHeartbeatEvent, nil))
	require.Equal(t, sentBefore, tr.sentCount(), "no acknowledgement after disconnect")
}
