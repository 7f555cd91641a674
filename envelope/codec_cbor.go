package envelope

import (
	"github.com/fxamacker/cbor/v2"
)

// CBORCodec encodes envelopes as CBOR for transports that deliver binary
// frames. Core-deterministic encoding keeps frames byte-stable for a given
// envelope, which simplifies testing and debugging captures.
type CBORCodec struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

// NewCBORCodec creates a CBOR codec with deterministic encoding options.
func NewCBORCodec() (*CBORCodec, error) {
	enc, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		return nil, err
	}
	dec, err := cbor.DecOptions{
		DefaultMapType: nil, // decode maps as map[interface{}]interface{}, normalized below
	}.DecMode()
	if err != nil {
		return nil, err
	}
	return &CBORCodec{enc: enc, dec: dec}, nil
}

func (c *CBORCodec) Encode(env *Envelope) ([]byte, error) {
	if err := env.Validate(); err != nil {
		return nil, err
	}
	return c.enc.Marshal(env)
}

func (c *CBORCodec) Decode(raw []byte) (*Envelope, error) {
	var env Envelope
	if err := c.dec.Unmarshal(raw, &env); err != nil {
		return nil, &DecodeError{Reason: "malformed CBOR frame", Err: err}
	}
	if env.Payload == nil {
		env.Payload = Payload{}
	} else {
		env.Payload = normalizePayload(env.Payload)
	}
	if err := env.Validate(); err != nil {
		return nil, err
	}
	return &env, nil
}

// normalizePayload converts CBOR's map[interface{}]interface{} values into
// map[string]any so payload access is uniform across codecs.
func normalizePayload(p Payload) Payload {
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v any) any {
	switch m := v.(type) {
	case map[interface{}]interface{}:
		out := make(map[string]any, len(m))
		for k, val := range m {
			if ks, ok := k.(string); ok {
				out[ks] = normalizeValue(val)
			}
		}
		return out
	case []interface{}:
		for i := range m {
			m[i] = normalizeValue(m[i])
		}
		return m
	default:
		return v
	}
}
