package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robmoffat/fdc3-go/envelope"
)

// A response arriving promptly resolves the exchange long before its
// deadline, regardless of unrelated traffic in between.
func TestExchangeResolvesOnMatchingResponse(t *testing.T) {
	e, tr := newReadyEngine(t)

	req := envelope.NewRequest(envelope.KindPingRequest, nil)
	req.Meta.RequestID = "r1"

	go func() {
		time.Sleep(50 * time.Millisecond)
		tr.deliver(event("unrelatedEvent"))
		tr.deliver(pingResponse("other-request"))
		tr.deliver(pingResponse("r1"))
	}()

	start := time.Now()
	resp, err := e.Exchange(context.Background(), req, envelope.KindPingResponse, time.Second)
	elapsed := time.Since(start)

	require.NoError(t, err)
	require.Equal(t, envelope.KindPingResponse, resp.Kind)
	require.Equal(t, "r1", resp.Meta.RequestID)
	require.Less(t, elapsed, 500*time.Millisecond, "resolved at response time, not at deadline")
}

func TestExchangeGeneratesRequestIDWhenAbsent(t *testing.T) {
	e, tr := newReadyEngine(t)

	done := make(chan struct{})
	go func() {
		defer close(done)
		req := envelope.New(envelope.KindPingRequest)
		_, err := e.Exchange(context.Background(), req, envelope.KindPingResponse, time.Second)
		require.NoError(t, err)
	}()

	require.Eventually(t, func() bool {
		return tr.lastSent(envelope.KindPingRequest) != nil
	}, time.Second, time.Millisecond)
	sent := tr.lastSent(envelope.KindPingRequest)
	require.NotEmpty(t, sent.Meta.RequestID)
	tr.deliver(pingResponse(sent.Meta.RequestID))
	<-done
}

func TestExchangeTimesOutWithNoResponse(t *testing.T) {
	e, _ := newReadyEngine(t)

	req := envelope.NewRequest(envelope.KindPingRequest, nil)
	start := time.Now()
	_, err := e.Exchange(context.Background(), req, envelope.KindPingResponse, 100*time.Millisecond)
	elapsed := time.Since(start)

	var timeout *TimeoutError
	require.ErrorAs(t, err, &timeout)
	require.Equal(t, envelope.KindPingResponse, timeout.Kind)
	require.GreaterOrEqual(t, elapsed, 100*time.Millisecond)
}

// After a timeout, a late-arriving matching response has no observable
// effect: the registration is gone and nothing resolves twice.
func TestLateResponseAfterTimeoutHasNoEffect(t *testing.T) {
	e, tr := newReadyEngine(t)

	req := envelope.NewRequest(envelope.KindPingRequest, nil)
	req.Meta.RequestID = "late"
	_, err := e.Exchange(context.Background(), req, envelope.KindPingResponse, 50*time.Millisecond)
	require.Error(t, err)

	before := e.Dispatcher().Len()
	require.NotPanics(t, func() { tr.deliver(pingResponse("late")) })
	require.Equal(t, before, e.Dispatcher().Len())
}

func TestExchangeRejectsNonPositiveTimeout(t *testing.T) {
	e, tr := newReadyEngine(t)

	req := envelope.NewRequest(envelope.KindPingRequest, nil)
	sentBefore := tr.sentCount()

	_, err := e.Exchange(context.Background(), req, envelope.KindPingResponse, 0)
	require.ErrorIs(t, err, ErrInvalidTimeout)
	_, err = e.Exchange(context.Background(), req, envelope.KindPingResponse, -time.Second)
	require.ErrorIs(t, err, ErrInvalidTimeout)

	require.Equal(t, sentBefore, tr.sentCount(), "rejected call must not reach the transport")
}

func TestExchangeCancellation(t *testing.T) {
	e, _ := newReadyEngine(t)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	req := envelope.NewRequest(envelope.KindPingRequest, nil)
	_, err := e.Exchange(ctx, req, envelope.KindPingResponse, time.Minute)
	require.ErrorIs(t, err, context.Canceled)
	// Only the heartbeat keeper's durable entry remains.
	require.Equal(t, 1, e.Dispatcher().Len(), "cancellation releases the registration")
}

// ExchangeUnbounded has no deadline: it waits as long as ctx allows and
// resolves whenever the response shows up.
func TestExchangeUnboundedWaits(t *testing.T) {
	e, tr := newReadyEngine(t)

	req := envelope.NewRequest(envelope.KindPingRequest, nil)
	req.Meta.RequestID = "slow"
	go func() {
		time.Sleep(150 * time.Millisecond)
		tr.deliver(pingResponse("slow"))
	}()

	resp, err := e.ExchangeUnbounded(context.Background(), req, envelope.KindPingResponse)
	require.NoError(t, err)
	require.Equal(t, "slow", resp.Meta.RequestID)
}

// Many goroutines exchanging concurrently against one inbound stream, with
// responses delivered in reverse order: every caller gets its own.
func TestConcurrentExchangesCorrelateIndependently(t *testing.T) {
	e, tr := newReadyEngine(t)

	const n = 16
	var wg sync.WaitGroup
	errs := make([]error, n)
	resps := make([]*envelope.Envelope, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := envelope.NewRequest(envelope.KindPingRequest, nil)
			req.Meta.RequestID = fmt.Sprintf("req-%d", i)
			resps[i], errs[i] = e.Exchange(context.Background(), req, envelope.KindPingResponse, 5*time.Second)
		}(i)
	}

	require.Eventually(t, func() bool {
		return len(tr.sentKinds()) >= n+1 // n pings + handshake
	}, time.Second, time.Millisecond)

	for i := n - 1; i >= 0; i-- {
		tr.deliver(pingResponse(fmt.Sprintf("req-%d", i)))
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, fmt.Sprintf("req-%d", i), resps[i].Meta.RequestID)
	}
	require.Equal(t, 1, e.Dispatcher().Len(), "only the heartbeat keeper remains registered")
}

// WaitFor matches on an arbitrary predicate and is a registration of its
// own, independent of any exchange on the same correlation id.
func TestWaitForIndependentOfExchange(t *testing.T) {
	e, tr := newReadyEngine(t)

	resultCh := make(chan *envelope.Envelope, 1)
	go func() {
		env, err := e.WaitFor(context.Background(), func(env *envelope.Envelope) bool {
			return env.Kind == "resultEvent" && env.Meta.RequestID == "r9"
		}, time.Second)
		require.NoError(t, err)
		resultCh <- env
	}()

	require.Eventually(t, func() bool {
		return e.Dispatcher().Len() == 2 // heartbeat keeper + the wait
	}, time.Second, time.Millisecond)

	ev := envelope.NewEvent("resultEvent", envelope.Payload{"value": 42.0})
	ev.Meta.RequestID = "r9"
	tr.deliver(ev)

	select {
	case env := <-resultCh:
		require.Equal(t, 42.0, env.Payload["value"])
	case <-time.After(time.Second):
		t.Fatal("waitFor did not resolve")
	}
}

func TestWaitForTimeout(t *testing.T) {
	e, _ := newReadyEngine(t)

	_, err := e.WaitFor(context.Background(), func(env *envelope.Envelope) bool {
		return false
	}, 50*time.Millisecond)

	var timeout *TimeoutError
	require.True(t, errors.As(err, &timeout))
	require.Empty(t, timeout.Kind)
}

func TestPreparedWaitCapturesEnvelopeBeforeAwait(t *testing.T) {
	e, tr := newReadyEngine(t)

	w := e.PrepareWait(func(env *envelope.Envelope) bool {
		return env.Kind == envelope.KindPingResponse
	})
	// The match arrives before anyone blocks on the wait.
	tr.deliver(pingResponse("early"))

	env, err := w.Await(context.Background())
	require.NoError(t, err)
	require.Equal(t, "early", env.Meta.RequestID)
	require.Equal(t, 1, e.Dispatcher().Len(), "one-shot registration released")
}

func TestPreparedWaitCancel(t *testing.T) {
	e, _ := newReadyEngine(t)

	w := e.PrepareWait(func(env *envelope.Envelope) bool {
		return env.Kind == envelope.KindPingResponse
	})
	require.Equal(t, 2, e.Dispatcher().Len())

	w.Cancel()
	require.Equal(t, 1, e.Dispatcher().Len())

	_, err := w.Await(context.Background())
	require.ErrorIs(t, err, ErrAbandoned)
}

func TestPreparedWaitContextCancellation(t *testing.T) {
	e, _ := newReadyEngine(t)

	w := e.PrepareWait(func(env *envelope.Envelope) bool {
		return env.Kind == envelope.KindPingResponse
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := w.Await(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, e.Dispatcher().Len())
}
