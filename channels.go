package fdc3

import (
	"context"
	"errors"

	"github.com/robmoffat/fdc3-go/engine"
	"github.com/robmoffat/fdc3-go/envelope"
)

// ErrNoCurrentChannel is returned by Broadcast and AddContextListener when
// the application has not joined a user channel.
var ErrNoCurrentChannel = errors.New("no current channel; join a user channel first")

// GetUserChannels lists the user channels the agent offers.
func (d *DesktopAgent) GetUserChannels(ctx context.Context) ([]Channel, error) {
	req := envelope.NewRequest(envelope.KindGetUserChannelsRequest, nil)
	resp, err := d.engine.Exchange(ctx, req, envelope.KindGetUserChannelsResponse, d.timeout)
	if err != nil {
		return nil, err
	}
	var channels []Channel
	if err := decode(resp.Payload["userChannels"], &channels); err != nil {
		return nil, err
	}
	return channels, nil
}

// JoinUserChannel joins the identified user channel; subsequent broadcasts
// and context listeners apply to it.
func (d *DesktopAgent) JoinUserChannel(ctx context.Context, channelID string) error {
	req := envelope.NewRequest(envelope.KindJoinUserChannelRequest, envelope.Payload{
		"channelId": channelID,
	})
	if _, err := d.engine.Exchange(ctx, req, envelope.KindJoinUserChannelResponse, d.timeout); err != nil {
		return err
	}
	d.setCurrentChannel(&Channel{ID: channelID, Type: "user"})
	return nil
}

// LeaveCurrentChannel leaves the joined channel, if any.
func (d *DesktopAgent) LeaveCurrentChannel(ctx context.Context) error {
	req := envelope.NewRequest(envelope.KindLeaveCurrentChannelRequest, nil)
	if _, err := d.engine.Exchange(ctx, req, envelope.KindLeaveCurrentChannelResponse, d.timeout); err != nil {
		return err
	}
	d.setCurrentChannel(nil)
	return nil
}

// CurrentChannel returns the joined channel as this client last saw it,
// or nil. Use GetCurrentChannel to ask the agent instead.
func (d *DesktopAgent) CurrentChannel() *Channel {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.currentChannel
}

// GetCurrentChannel asks the agent which channel this application is
// joined to and refreshes the local view. Returns nil when no channel is
// joined.
func (d *DesktopAgent) GetCurrentChannel(ctx context.Context) (*Channel, error) {
	req := envelope.NewRequest(envelope.KindGetCurrentChannelRequest, nil)
	resp, err := d.engine.Exchange(ctx, req, envelope.KindGetCurrentChannelResponse, d.timeout)
	if err != nil {
		return nil, err
	}
	if resp.Payload["channel"] == nil {
		d.setCurrentChannel(nil)
		return nil, nil
	}
	var ch Channel
	if err := decode(resp.Payload["channel"], &ch); err != nil {
		return nil, err
	}
	d.setCurrentChannel(&ch)
	return &ch, nil
}

// OnChannelChanged installs a durable listener for agent-driven channel
// changes (the user switching channels in the agent UI). The local channel
// view is kept current; handler may be nil. The returned id unregisters
// the listener via Engine().Dispatcher().Unregister.
func (d *DesktopAgent) OnChannelChanged(handler func(newChannelID string)) string {
	return d.engine.Dispatcher().Register(engine.Listener{
		Predicate: func(env *envelope.Envelope) bool {
			return env.Kind == envelope.KindChannelChangedEvent
		},
		Handler: func(env *envelope.Envelope) {
			newID := env.Payload.String("newChannelId")
			if newID == "" {
				d.setCurrentChannel(nil)
			} else {
				d.setCurrentChannel(&Channel{ID: newID, Type: "user"})
			}
			if handler != nil {
				handler(newID)
			}
		},
	})
}

func (d *DesktopAgent) setCurrentChannel(ch *Channel) {
	d.mu.Lock()
	d.currentChannel = ch
	d.mu.Unlock()
}

// Broadcast publishes a context on the current user channel.
func (d *DesktopAgent) Broadcast(ctx context.Context, c Context) error {
	channel := d.CurrentChannel()
	if channel == nil {
		return ErrNoCurrentChannel
	}
	ctxPayload, err := encode(c)
	if err != nil {
		return err
	}
	req := envelope.NewRequest(envelope.KindBroadcastRequest, envelope.Payload{
		"channelId": channel.ID,
		"context":   ctxPayload,
	})
	_, err = d.engine.Exchange(ctx, req, envelope.KindBroadcastResponse, d.timeout)
	return err
}

// AddContextListener subscribes to broadcasts on the current channel.
// contextType filters by context type; empty means all. The returned
// subscription is durable until unsubscribed.
func (d *DesktopAgent) AddContextListener(ctx context.Context, contextType string, handler func(Context)) (*engine.Subscription, error) {
	channel := d.CurrentChannel()
	if channel == nil {
		return nil, ErrNoCurrentChannel
	}
	channelID := channel.ID

	return d.engine.RegisterSubscription(ctx, engine.SubscriptionSpec{
		SubscribeKind:           envelope.KindAddContextListenerRequest,
		SubscribeResponseKind:   envelope.KindAddContextListenerResponse,
		UnsubscribeKind:         envelope.KindContextListenerUnsubscribeRequest,
		UnsubscribeResponseKind: envelope.KindContextListenerUnsubscribeResponse,
		SubscribePayload: envelope.Payload{
			"channelId":   channelID,
			"contextType": contextType,
		},
		Predicate: func(env *envelope.Envelope) bool {
			if env.Kind != envelope.KindBroadcastEvent {
				return false
			}
			if env.Payload.String("channelId") != channelID {
				return false
			}
			if contextType == "" {
				return true
			}
			return env.Payload.Map("context").String("type") == contextType
		},
		Handler: func(env *envelope.Envelope) {
			var c Context
			if err := decode(env.Payload["context"], &c); err != nil {
				return
			}
			handler(c)
		},
	})
}
