package envelope

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestJSONCodecRoundTrip(t *testing.T) {
	c := NewJSONCodec()
	env := NewRequest(KindBroadcastRequest, Payload{
		"channelId": "red",
		"context": map[string]any{
			"type": "fdc3.instrument",
			"id":   map[string]any{"ticker": "AAPL"},
		},
	})
	env.Meta.Source = &AppIdentifier{AppID: "app1", InstanceID: "i1"}

	raw, err := c.Encode(env)
	require.NoError(t, err)

	got, err := c.Decode(raw)
	require.NoError(t, err)
	require.Equal(t, env.Kind, got.Kind)
	require.Equal(t, env.Meta.RequestID, got.Meta.RequestID)
	require.Equal(t, env.Meta.Source, got.Meta.Source)
	require.Equal(t, "red", got.Payload.String("channelId"))
	require.Equal(t, "fdc3.instrument", got.Payload.Map("context").String("type"))
}

func TestJSONCodecDecodeFailures(t *testing.T) {
	c := NewJSONCodec()
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", "{{{"},
		{"wrong top-level type", `[1,2,3]`},
		{"missing kind", `{"meta":{},"payload":{}}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := c.Decode([]byte(tc.raw))
			var decodeErr *DecodeError
			require.ErrorAs(t, err, &decodeErr)
		})
	}
}

func TestJSONCodecToleratesAbsentPayload(t *testing.T) {
	c := NewJSONCodec()
	got, err := c.Decode([]byte(`{"kind":"goodbye","meta":{}}`))
	require.NoError(t, err)
	require.NotNil(t, got.Payload)
	require.Empty(t, got.Payload)
}

func TestJSONCodecRejectsInvalidEnvelopeOnEncode(t *testing.T) {
	c := NewJSONCodec()
	_, err := c.Encode(&Envelope{Payload: Payload{}})
	require.Error(t, err)
}

func TestCBORCodecRoundTrip(t *testing.T) {
	c, err := NewCBORCodec()
	require.NoError(t, err)

	env := NewRequest(KindJoinUserChannelRequest, Payload{
		"channelId": "blue",
		"nested":    map[string]any{"k": "v"},
		"list":      []any{"a", "b"},
	})

	raw, err := c.Encode(env)
	require.NoError(t, err)

	got, err := c.Decode(raw)
	require.NoError(t, err)
	require.Equal(t, env.Kind, got.Kind)
	require.Equal(t, env.Meta.RequestID, got.Meta.RequestID)
	require.Equal(t, "blue", got.Payload.String("channelId"))
	// Nested maps come back as map[string]any regardless of the codec.
	require.Equal(t, "v", got.Payload.Map("nested").String("k"))
}

func TestCBORCodecDeterministicEncoding(t *testing.T) {
	c, err := NewCBORCodec()
	require.NoError(t, err)

	env := NewEvent(KindBroadcastEvent, Payload{"b": 2, "a": 1, "c": 3})
	first, err := c.Encode(env)
	require.NoError(t, err)
	second, err := c.Encode(env)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestCBORCodecRejectsGarbage(t *testing.T) {
	c, err := NewCBORCodec()
	require.NoError(t, err)

	_, err = c.Decode([]byte{0xff, 0x00, 0x12})
	var decodeErr *DecodeError
	require.ErrorAs(t, err, &decodeErr)
}
