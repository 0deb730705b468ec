// Package server defines the inbound wire envelope and its codec. Clients
// send small JSON frames discriminated by a "type" field; the codec maps
// them onto a closed set of typed variants and rejects everything else.
package server

import (
	"encoding/json"
	"fmt"
)

// Envelope is an inbound client frame after decoding. The set of variants
// is closed: SetName and ChatMessage are the only implementations.
type Envelope interface {
	envelope()
}

// SetName asks the relay to (re)assign the sender's display name. An empty
// name is accepted as a valid, if unhelpful, choice.
type SetName struct {
	Name string
}

// ChatMessage is a chat line to broadcast to every connected client.
type ChatMessage struct {
	Text string
}

func (SetName) envelope()     {}
func (ChatMessage) envelope() {}

// ProtocolError reports a malformed inbound frame. The relay treats it as
// fatal to the offending session; other sessions are unaffected.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return "protocol violation: " + e.Reason
}

// rawEnvelope is the superset of fields across all frame types. Pointers
// distinguish an absent field from an empty string.
type rawEnvelope struct {
	Type string  `json:"type"`
	Name *string `json:"name"`
	Text *string `json:"text"`
}

// ParseEnvelope decodes a raw client frame into one of the envelope
// variants. It returns a *ProtocolError when the frame is not valid JSON,
// carries an unknown type, or is missing the field its type requires.
func ParseEnvelope(raw []byte) (Envelope, error) {
	var frame rawEnvelope
	if err := json.Unmarshal(raw, &frame); err != nil {
		return nil, &ProtocolError{Reason: fmt.Sprintf("undecodable frame: %v", err)}
	}

	switch frame.Type {
	case "set_name":
		if frame.Name == nil {
			return nil, &ProtocolError{Reason: `"set_name" frame is missing "name"`}
		}
		return SetName{Name: *frame.Name}, nil
	case "message":
		if frame.Text == nil {
			return nil, &ProtocolError{Reason: `"message" frame is missing "text"`}
		}
		return ChatMessage{Text: *frame.Text}, nil
	default:
		return nil, &ProtocolError{Reason: fmt.Sprintf("unknown frame type %q", frame.Type)}
	}
}
