// SPDX-License-Identifier: MIT
/*
Package transport carries engine notifications to the outside world and
remote commands back in.

A Bridge subscribes to the engine's notification dispatcher and forwards
every event, wrapped in a Message, to one or more Transports. Delivery runs
on the dispatcher's control goroutine, never on the render path.
*/
package transport

import "mixdeck/internal/notify"

// Transport defines a generic interface for sending engine events.
// Implementations should be thread-safe.
type Transport interface {
	Send(data any) error
	Close() error
}

// Message is the wire envelope for one notification. Type is the event's
// Kind, so clients can switch on it before decoding Event.
type Message struct {
	Type  string       `json:"type"`
	Event notify.Event `json:"event,omitempty"`
}

// NewMessage wraps e in its envelope.
func NewMessage(e notify.Event) Message {
	return Message{Type: e.Kind(), Event: e}
}

// Command is a remote control request received from a client.
type Command struct {
	Action  string `json:"action"` // play, stop, load, remove, bpm, key
	TrackID int    `json:"track_id,omitempty"`
	Path    string `json:"path,omitempty"`
	BPM     int    `json:"bpm,omitempty"`
	Key     string `json:"key,omitempty"`
}

// Reply answers a Command.
type Reply struct {
	Type   string `json:"type"` // always "reply"
	Action string `json:"action"`
	OK     bool   `json:"ok"`
	Error  string `json:"error,omitempty"`
}
