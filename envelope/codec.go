package envelope

import "encoding/json"

// Codec converts between raw transport frames and Envelope values.
// Encode must never produce a frame Decode cannot read back.
type Codec interface {
	Encode(env *Envelope) ([]byte, error)
	Decode(raw []byte) (*Envelope, error)
}

// JSONCodec is the default wire codec. The transport carries UTF-8 text
// frames, one JSON object per frame.
type JSONCodec struct{}

// NewJSONCodec creates the default text codec.
func NewJSONCodec() *JSONCodec { return &JSONCodec{} }

func (c *JSONCodec) Encode(env *Envelope) ([]byte, error) {
	if err := env.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(env)
}

func (c *JSONCodec) Decode(raw []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &DecodeError{Reason: "malformed JSON frame", Err: err}
	}
	if env.Payload == nil {
		// Tolerate senders that omit an empty payload block.
		env.Payload = Payload{}
	}
	if err := env.Validate(); err != nil {
		return nil, err
	}
	return &env, nil
}
