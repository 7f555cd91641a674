package fdc3

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robmoffat/fdc3-go/config"
	"github.com/robmoffat/fdc3-go/engine"
	"github.com/robmoffat/fdc3-go/envelope"
	"github.com/robmoffat/fdc3-go/logging"
	"github.com/robmoffat/fdc3-go/transport"
)

// DesktopAgent is the application's connection to the desktop agent. All
// methods are safe for concurrent use.
type DesktopAgent struct {
	engine  *engine.Engine
	timeout time.Duration

	mu             sync.Mutex
	currentChannel *Channel
}

// Connect builds an engine from the configuration, runs the identity
// validation handshake presenting appID, and returns the connected agent.
func Connect(ctx context.Context, tr transport.Transport, cfg config.Config, appID string, log logging.Logger) (*DesktopAgent, error) {
	codec, err := codecFor(cfg.Agent.Codec)
	if err != nil {
		return nil, err
	}

	opts := []engine.Option{
		engine.WithCodec(codec),
		engine.WithHandshakeTimeout(cfg.Engine.HandshakeTimeout),
		engine.WithDefaultTimeout(cfg.Engine.ExchangeTimeout),
		engine.WithHeartbeatThreshold(cfg.Heartbeat.SilenceThreshold),
	}
	if log != nil {
		opts = append(opts, engine.WithLogger(log))
	}
	if cfg.Engine.ValidateInbound {
		validator, err := envelope.NewSchemaValidator()
		if err != nil {
			return nil, err
		}
		opts = append(opts, engine.WithSchemaValidation(validator))
	}

	eng := engine.New(tr, opts...)
	if _, err := eng.Connect(ctx, envelope.Payload{"appId": appID}); err != nil {
		return nil, err
	}
	return NewAgent(eng), nil
}

// NewAgent wraps an already-constructed engine. The engine need not be
// connected yet; operations fail with the engine's gating error until it
// is.
func NewAgent(eng *engine.Engine) *DesktopAgent {
	return &DesktopAgent{
		engine:  eng,
		timeout: eng.DefaultTimeout(),
	}
}

func codecFor(name string) (envelope.Codec, error) {
	switch name {
	case "", config.CodecJSON:
		return envelope.NewJSONCodec(), nil
	case config.CodecCBOR:
		return envelope.NewCBORCodec()
	default:
		return nil, fmt.Errorf("unknown codec %q", name)
	}
}

// Engine exposes the underlying protocol engine.
func (d *DesktopAgent) Engine() *engine.Engine {
	return d.engine
}

// Identity returns the identity validated by the handshake.
func (d *DesktopAgent) Identity() *envelope.AppIdentifier {
	return d.engine.CurrentIdentity()
}

// Ping round-trips a diagnostic request and reports its latency.
func (d *DesktopAgent) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	req := envelope.NewRequest(envelope.KindPingRequest, nil)
	if _, err := d.engine.Exchange(ctx, req, envelope.KindPingResponse, d.timeout); err != nil {
		return 0, err
	}
	return time.Since(start), nil
}

// Disconnect sends a goodbye and closes the connection.
func (d *DesktopAgent) Disconnect(ctx context.Context) error {
	return d.engine.Disconnect(ctx)
}
