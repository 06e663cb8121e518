// Package protocol defines the JSON envelope spoken on both realtime
// channels, the event names, and the reason codes carried by denials.
package protocol

import (
	"bytes"
	"errors"
	"fmt"

	json "github.com/goccy/go-json"
)

// Envelope is an inbound frame as read off a channel. Data is kept raw so
// each handler can validate it against its own schema.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Message is an outbound frame. A nil Data encodes as an event without
// payload.
type Message struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// ErrNoEvent is returned by Decode for frames without an event name.
var ErrNoEvent = errors.New("protocol: missing event name")

// Decode parses a text frame into an Envelope.
func Decode(frame []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Event == "" {
		return Envelope{}, ErrNoEvent
	}
	return env, nil
}

// Encode serializes a Message into a text frame.
func Encode(m Message) ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", m.Event, err)
	}
	return data, nil
}

// HasPayload reports whether the envelope carries a payload. An absent
// data field and an explicit null both count as "no payload".
func (e Envelope) HasPayload() bool {
	trimmed := bytes.TrimSpace(e.Data)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

// DecodeData unmarshals the payload into v.
func (e Envelope) DecodeData(v any) error {
	if !e.HasPayload() {
		return errors.New("protocol: no payload")
	}
	return json.Unmarshal(e.Data, v)
}

// Forward returns the envelope as an outbound message with the payload
// copied verbatim.
func (e Envelope) Forward() Message {
	if !e.HasPayload() {
		return Message{Event: e.Event}
	}
	return Message{Event: e.Event, Data: e.Data}
}

// New builds an outbound message.
func New(event string, data any) Message {
	return Message{Event: event, Data: data}
}
