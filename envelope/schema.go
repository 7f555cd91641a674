package envelope

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// envelopeSchema is a JSON Schema Draft-7 description of the envelope wire
// shape. It constrains structure, not per-kind payload contents; payloads
// are opaque to the engine.
const envelopeSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["kind", "payload"],
  "properties": {
    "kind": {"type": "string", "minLength": 1},
    "meta": {
      "type": "object",
      "properties": {
        "requestId": {"type": "string"},
        "responseId": {"type": "string"},
        "eventId": {"type": "string"},
        "connectionAttemptId": {"type": "string"},
        "timestamp": {"type": "string"},
        "source": {
          "type": "object",
          "required": ["appId"],
          "properties": {
            "appId": {"type": "string", "minLength": 1},
            "instanceId": {"type": "string"}
          }
        }
      }
    },
    "payload": {"type": "object"}
  }
}`

// SchemaValidationError reports an envelope that decoded but failed schema
// validation. Treated like a decode failure: logged and dropped.
type SchemaValidationError struct {
	Kind    string
	Details []string
}

func (e *SchemaValidationError) Error() string {
	return fmt.Sprintf("envelope %q failed schema validation: %s", e.Kind, strings.Join(e.Details, "; "))
}

// SchemaValidator validates decoded envelopes against the envelope schema.
// Optional: the engine only runs it when configured to.
type SchemaValidator struct {
	schema *gojsonschema.Schema
}

// NewSchemaValidator compiles the built-in envelope schema.
func NewSchemaValidator() (*SchemaValidator, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(envelopeSchema))
	if err != nil {
		return nil, fmt.Errorf("failed to compile envelope schema: %w", err)
	}
	return &SchemaValidator{schema: schema}, nil
}

// Validate checks an envelope against the schema. Returns nil when valid.
func (v *SchemaValidator) Validate(env *Envelope) error {
	doc, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope for validation: %w", err)
	}
	result, err := v.schema.Validate(gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}
	if result.Valid() {
		return nil
	}
	details := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		details = append(details, desc.String())
	}
	return &SchemaValidationError{Kind: env.Kind, Details: details}
}
