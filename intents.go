package fdc3

import (
	"context"

	"github.com/robmoffat/fdc3-go/engine"
	"github.com/robmoffat/fdc3-go/envelope"
)

// IntentResolution is the immediate outcome of raising an intent: which
// application will handle it. The intent's return value may arrive much
// later (it can depend on user interaction in the resolved app), so it is
// fetched separately via Result.
type IntentResolution struct {
	Intent string
	Source envelope.AppIdentifier

	result *engine.PreparedWait
}

// Result awaits the intent's eventual return value. The result arrives as
// an independent envelope correlated by the original raise's request id,
// not as a direct response, and there is no protocol bound on how long the
// resolving application may take; the wait is unbounded and governed only
// by ctx. The waiter is registered before the raise request is sent, so a
// result delivered immediately after the resolution is captured even
// though the caller has not blocked for it yet.
func (r *IntentResolution) Result(ctx context.Context) (*Context, error) {
	env, err := r.result.Await(ctx)
	if err != nil {
		return nil, err
	}
	if env.Payload["context"] == nil {
		return nil, nil // void result
	}
	var c Context
	if err := decode(env.Payload["context"], &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// FindIntent asks the agent which applications can resolve an intent,
// optionally filtered by a context.
func (d *DesktopAgent) FindIntent(ctx context.Context, intent string, c *Context) (*AppIntent, error) {
	payload := envelope.Payload{"intent": intent}
	if c != nil {
		ctxPayload, err := encode(*c)
		if err != nil {
			return nil, err
		}
		payload["context"] = ctxPayload
	}
	req := envelope.NewRequest(envelope.KindFindIntentRequest, payload)
	resp, err := d.engine.Exchange(ctx, req, envelope.KindFindIntentResponse, d.timeout)
	if err != nil {
		return nil, err
	}
	var appIntent AppIntent
	if err := decode(resp.Payload["appIntent"], &appIntent); err != nil {
		return nil, err
	}
	return &appIntent, nil
}

// RaiseIntent raises an intent with a context, optionally targeting a
// specific application. The returned resolution identifies the handling
// app; call Result for the intent's eventual return value.
func (d *DesktopAgent) RaiseIntent(ctx context.Context, intent string, c Context, target *envelope.AppIdentifier) (*IntentResolution, error) {
	ctxPayload, err := encode(c)
	if err != nil {
		return nil, err
	}
	payload := envelope.Payload{
		"intent":  intent,
		"context": ctxPayload,
	}
	if target != nil {
		targetPayload, err := encode(*target)
		if err != nil {
			return nil, err
		}
		payload["app"] = targetPayload
	}

	req := envelope.NewRequest(envelope.KindRaiseIntentRequest, payload)
	requestID := req.Meta.RequestID

	// The result may follow the resolution immediately, so its waiter has
	// to exist before the raise goes out.
	resultWait := d.engine.PrepareWait(func(env *envelope.Envelope) bool {
		return env.Kind == envelope.KindRaiseIntentResultResponse && env.Meta.RequestID == requestID
	})

	resp, err := d.engine.Exchange(ctx, req, envelope.KindRaiseIntentResponse, d.timeout)
	if err != nil {
		resultWait.Cancel()
		return nil, err
	}

	var resolved struct {
		Intent string                 `json:"intent"`
		Source envelope.AppIdentifier `json:"source"`
	}
	if err := decode(resp.Payload["intentResolution"], &resolved); err != nil {
		return nil, err
	}
	if resolved.Intent == "" {
		resolved.Intent = intent
	}
	return &IntentResolution{
		Intent: resolved.Intent,
		Source: resolved.Source,
		result: resultWait,
	}, nil
}

// IntentEvent is delivered to an intent listener when another application
// raises the intent at this one.
type IntentEvent struct {
	Intent  string
	Context Context
	// RaiseRequestID correlates an intent result back to the raise.
	RaiseRequestID string
}

// AddIntentListener registers this application as a resolver for an
// intent. The returned subscription is durable until unsubscribed.
func (d *DesktopAgent) AddIntentListener(ctx context.Context, intent string, handler func(IntentEvent)) (*engine.Subscription, error) {
	return d.engine.RegisterSubscription(ctx, engine.SubscriptionSpec{
		SubscribeKind:           envelope.KindAddIntentListenerRequest,
		SubscribeResponseKind:   envelope.KindAddIntentListenerResponse,
		UnsubscribeKind:         envelope.KindIntentListenerUnsubscribeRequest,
		UnsubscribeResponseKind: envelope.KindIntentListenerUnsubscribeResponse,
		SubscribePayload:        envelope.Payload{"intent": intent},
		Predicate: func(env *envelope.Envelope) bool {
			return env.Kind == envelope.KindIntentEvent && env.Payload.String("intent") == intent
		},
		Handler: func(env *envelope.Envelope) {
			var c Context
			if err := decode(env.Payload["context"], &c); err != nil {
				return
			}
			handler(IntentEvent{
				Intent:         intent,
				Context:        c,
				RaiseRequestID: env.Meta.RequestID,
			})
		},
	})
}

// SendIntentResult delivers this application's return value for an intent
// it handled back to the raiser, correlated by the raise's request id.
func (d *DesktopAgent) SendIntentResult(ctx context.Context, raiseRequestID string, result *Context) error {
	payload := envelope.Payload{}
	if result != nil {
		ctxPayload, err := encode(*result)
		if err != nil {
			return err
		}
		payload["context"] = ctxPayload
	}
	req := envelope.NewRequest(envelope.KindIntentResultRequest, payload)
	req.Meta.RequestID = raiseRequestID
	_, err := d.engine.Exchange(ctx, req, envelope.KindIntentResultResponse, d.timeout)
	return err
}
