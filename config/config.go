// Package config loads client configuration from YAML. All fields are
// optional; zero values fall back to the defaults below.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default timing values. Handshake and exchange deadlines are deliberately
// short: a healthy desktop agent answers in milliseconds.
const (
	DefaultHandshakeTimeout   = 10 * time.Second
	DefaultExchangeTimeout    = 10 * time.Second
	DefaultHeartbeatThreshold = 30 * time.Second
)

// Wire codec selection.
const (
	CodecJSON = "json"
	CodecCBOR = "cbor"
)

// Config is the full client configuration.
type Config struct {
	Agent     AgentConfig     `yaml:"agent"`
	Engine    EngineConfig    `yaml:"engine"`
	Heartbeat HeartbeatConfig `yaml:"heartbeat"`
}

// AgentConfig describes how to reach the desktop agent.
type AgentConfig struct {
	// URL of the agent endpoint, passed through to the transport.
	URL string `yaml:"url"`
	// Codec selects the wire codec: "json" (default) or "cbor".
	Codec string `yaml:"codec"`
}

// EngineConfig tunes the protocol engine.
type EngineConfig struct {
	HandshakeTimeout time.Duration `yaml:"handshakeTimeout"`
	ExchangeTimeout  time.Duration `yaml:"exchangeTimeout"`
	// ValidateInbound enables JSON-schema validation of decoded envelopes.
	ValidateInbound bool `yaml:"validateInbound"`
}

// HeartbeatConfig tunes liveness observation.
type HeartbeatConfig struct {
	// SilenceThreshold is how long without a peer heartbeat before the
	// connection is reported as not alive. Observation only; the engine
	// never disconnects on its own.
	SilenceThreshold time.Duration `yaml:"silenceThreshold"`
}

// Default returns a configuration with all defaults applied.
func Default() Config {
	cfg := Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Agent.Codec == "" {
		c.Agent.Codec = CodecJSON
	}
	if c.Engine.HandshakeTimeout <= 0 {
		c.Engine.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Engine.ExchangeTimeout <= 0 {
		c.Engine.ExchangeTimeout = DefaultExchangeTimeout
	}
	if c.Heartbeat.SilenceThreshold <= 0 {
		c.Heartbeat.SilenceThreshold = DefaultHeartbeatThreshold
	}
}

func (c *Config) validate() error {
	switch c.Agent.Codec {
	case CodecJSON, CodecCBOR:
	default:
		return fmt.Errorf("unknown codec %q (expected %q or %q)", c.Agent.Codec, CodecJSON, CodecCBOR)
	}
	return nil
}

// Load reads and parses a YAML configuration file, applying defaults for
// any omitted fields.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML configuration bytes.
func Parse(data []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
