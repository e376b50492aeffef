package protocol

import (
	"errors"
	"fmt"
)

// ErrMalformedFrame is returned (wrapped) when a frame does not match the
// codec's envelope. The accompanying Frame is still usable.
var ErrMalformedFrame = errors.New("malformed frame")

// Frame is one decoded inbound frame.
type Frame struct {
	// ID names the exchange the frame belongs to. Empty when the wire format
	// carries no identifiers.
	ID   string
	Text string
	Done bool
}

// RequestKind distinguishes user messages from control frames on the server side.
type RequestKind int

const (
	RequestMessage RequestKind = iota
	RequestControl
)

// String returns the string representation of RequestKind
func (rk RequestKind) String() string {
	switch rk {
	case RequestMessage:
		return "MESSAGE"
	case RequestControl:
		return "CONTROL"
	default:
		return "UNKNOWN"
	}
}

// Request is one decoded outbound frame, as seen by the server.
type Request struct {
	Kind    RequestKind
	ID      string
	Text    string
	Control ControlType
}

// Codec converts between frames and wire bytes. The client side uses
// EncodeMessage, EncodeControl and DecodeFrame; the server side uses
// DecodeRequest, EncodeChunk and EncodeDone.
type Codec interface {
	// Name identifies the codec in configuration.
	Name() string

	EncodeMessage(id, text string) ([]byte, error)
	EncodeControl(id string, ct ControlType) ([]byte, error)

	// DecodeFrame always returns a usable Frame. A non-nil error wraps
	// ErrMalformedFrame and reports that the frame was decoded leniently.
	DecodeFrame(data []byte) (Frame, error)

	DecodeRequest(data []byte) (Request, error)
	EncodeChunk(id, text string) ([]byte, error)
	EncodeDone(id string) ([]byte, error)

	// Binary reports whether server-side chunks go out as binary frames.
	Binary() bool
}

// Codec names accepted by NewCodec.
const (
	CodecSentinel = "sentinel"
	CodecEnvelope = "envelope"
)

// NewCodec returns the codec registered under name. An empty name selects
// the sentinel codec.
func NewCodec(name string) (Codec, error) {
	switch name {
	case "", CodecSentinel:
		return SentinelCodec{}, nil
	case CodecEnvelope:
		return &EnvelopeCodec{}, nil
	case CodecEnvelope + "+binary":
		return &EnvelopeCodec{BinaryFrames: true}, nil
	default:
		return nil, fmt.Errorf("unknown codec %q", name)
	}
}

// SentinelCodec implements the raw wire format: plain text messages, JSON
// control objects and a substring terminal marker.
type SentinelCodec struct{}

var _ Codec = SentinelCodec{}

// Name implements Codec.
func (SentinelCodec) Name() string { return CodecSentinel }

// EncodeMessage implements Codec. The message goes out untouched.
func (SentinelCodec) EncodeMessage(_ string, text string) ([]byte, error) {
	return []byte(text), nil
}

// EncodeControl implements Codec.
func (SentinelCodec) EncodeControl(_ string, ct ControlType) ([]byte, error) {
	return EncodeControl(ct)
}

// DecodeFrame implements Codec. A terminal frame contributes no text.
func (SentinelCodec) DecodeFrame(data []byte) (Frame, error) {
	if IsTerminal(data) {
		return Frame{Done: true}, nil
	}
	return Frame{Text: Sanitize(string(data))}, nil
}

// DecodeRequest implements Codec.
func (SentinelCodec) DecodeRequest(data []byte) (Request, error) {
	if ct, ok := DecodeControl(data); ok {
		return Request{Kind: RequestControl, Control: ct}, nil
	}
	return Request{Kind: RequestMessage, Text: string(data)}, nil
}

// EncodeChunk implements Codec.
func (SentinelCodec) EncodeChunk(_ string, text string) ([]byte, error) {
	return []byte(text), nil
}

// EncodeDone implements Codec.
func (SentinelCodec) EncodeDone(string) ([]byte, error) {
	return []byte("{" + TerminalMarker + "}"), nil
}

// Binary implements Codec.
func (SentinelCodec) Binary() bool { return false }
