// Package fdc3 is a client for a desktop application interoperability
// agent. It exposes channel, intent, and app-directory operations over one
// long-lived connection; the protocol machinery lives in the engine
// package, which this package drives by constructing envelopes and
// interpreting typed payloads.
package fdc3

import (
	"encoding/json"
	"fmt"

	"github.com/robmoffat/fdc3-go/envelope"
)

// Context is a typed piece of shared state broadcast on a channel or
// attached to an intent.
type Context struct {
	Type string         `json:"type"`
	Name string         `json:"name,omitempty"`
	ID   map[string]any `json:"id,omitempty"`
}

// Channel describes a shared user channel.
type Channel struct {
	ID          string `json:"id"`
	Type        string `json:"type,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
	Color       string `json:"color,omitempty"`
}

// AppIntent pairs an intent with the applications able to resolve it.
type AppIntent struct {
	Intent IntentMetadata           `json:"intent"`
	Apps   []envelope.AppIdentifier `json:"apps"`
}

// IntentMetadata names an intent.
type IntentMetadata struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName,omitempty"`
}

// AppMetadata describes an application known to the directory.
type AppMetadata struct {
	envelope.AppIdentifier
	Name        string `json:"name,omitempty"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Version     string `json:"version,omitempty"`
}

// encode converts a typed value into an envelope payload fragment via its
// JSON form, keeping payload handling uniform on the wire.
func encode(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload value: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to normalize payload value: %w", err)
	}
	return out, nil
}

// decode converts an envelope payload fragment back into a typed value.
func decode(fragment any, into any) error {
	data, err := json.Marshal(fragment)
	if err != nil {
		return fmt.Errorf("failed to re-encode payload fragment: %w", err)
	}
	if err := json.Unmarshal(data, into); err != nil {
		return fmt.Errorf("failed to decode payload fragment: %w", err)
	}
	return nil
}
