// Package protocol defines the frames exchanged with the chat server.
//
// The default wire format is deliberately loose: the client sends its message
// as a plain text frame, the server streams arbitrary text chunks back and
// signals the end of a reply with a chunk containing TerminalMarker. Control
// signals travel as small JSON objects.
package protocol

import (
	"bytes"
	"encoding/json"
	"strings"
)

// TerminalMarker is the raw substring that marks the end of a streamed reply.
// It is matched anywhere in the payload; the frame is not parsed.
const TerminalMarker = `"finish_reason":"stop"`

// placeholderArtifact is what a JavaScript server emits when it stringifies
// an object instead of its text. It carries no content.
const placeholderArtifact = "[object Object]"

// ControlType identifies an out-of-band control frame.
type ControlType string

const (
	ControlStopGeneration    ControlType = "stop_generation"
	ControlClearConversation ControlType = "clear_conversation"
)

// String returns the wire name of the control type.
func (ct ControlType) String() string {
	return string(ct)
}

// Valid reports whether ct is a known control type.
func (ct ControlType) Valid() bool {
	switch ct {
	case ControlStopGeneration, ControlClearConversation:
		return true
	default:
		return false
	}
}

// Control is the JSON shape of a control frame.
type Control struct {
	Type ControlType `json:"type"`
}

// IsTerminal reports whether the payload carries the end-of-generation marker.
func IsTerminal(data []byte) bool {
	return bytes.Contains(data, []byte(TerminalMarker))
}

// Sanitize strips placeholder artifacts left in a chunk by malformed payloads.
func Sanitize(chunk string) string {
	if !strings.Contains(chunk, placeholderArtifact) {
		return chunk
	}
	return strings.ReplaceAll(chunk, placeholderArtifact, "")
}

// EncodeControl returns the exact control frame bytes, e.g.
// {"type":"stop_generation"}.
func EncodeControl(ct ControlType) ([]byte, error) {
	return json.Marshal(Control{Type: ct})
}

// DecodeControl reports whether data is a control frame and which one.
// Anything that is not a JSON object with a known "type" is not a control.
func DecodeControl(data []byte) (ControlType, bool) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return "", false
	}
	var c Control
	if err := json.Unmarshal(trimmed, &c); err != nil {
		return "", false
	}
	if !c.Type.Valid() {
		return "", false
	}
	return c.Type, true
}
