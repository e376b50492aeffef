package protocol

import (
	"bytes"
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	fieldType = "type"
	fieldID   = "id"
	fieldText = "text"
	fieldDone = "done"

	typeMessage = "message"
)

// EnvelopeCodec wraps every frame in a structured envelope carrying the
// exchange id, so completion never depends on a substring match and stale
// frames can be told apart from current ones.
//
// Inbound frames are {"id":..,"text":..,"done":bool}, either as JSON text or
// as a protobuf-encoded google.protobuf.Struct in a binary frame.
type EnvelopeCodec struct {
	// BinaryFrames makes the server side emit protobuf binary frames
	// instead of JSON text.
	BinaryFrames bool
}

var _ Codec = (*EnvelopeCodec)(nil)

// Name implements Codec.
func (c *EnvelopeCodec) Name() string {
	if c.BinaryFrames {
		return CodecEnvelope + "+binary"
	}
	return CodecEnvelope
}

// Binary implements Codec.
func (c *EnvelopeCodec) Binary() bool { return c.BinaryFrames }

// EncodeMessage implements Codec.
func (c *EnvelopeCodec) EncodeMessage(id, text string) ([]byte, error) {
	return encodeJSON(map[string]any{
		fieldType: typeMessage,
		fieldID:   id,
		fieldText: text,
	})
}

// EncodeControl implements Codec.
func (c *EnvelopeCodec) EncodeControl(id string, ct ControlType) ([]byte, error) {
	fields := map[string]any{fieldType: ct.String()}
	if id != "" {
		fields[fieldID] = id
	}
	return encodeJSON(fields)
}

// DecodeFrame implements Codec. Payloads that are not envelopes are decoded
// with the sentinel rules so a misbehaving server still streams.
func (c *EnvelopeCodec) DecodeFrame(data []byte) (Frame, error) {
	s, err := decodeStruct(data)
	if err != nil {
		f, _ := SentinelCodec{}.DecodeFrame(data)
		return f, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	fields := s.GetFields()
	done, ok := fields[fieldDone]
	if !ok {
		// A JSON object without an envelope, e.g. a bare finish marker.
		if _, hasText := fields[fieldText]; !hasText {
			f, _ := SentinelCodec{}.DecodeFrame(data)
			return f, nil
		}
	}
	return Frame{
		ID:   fields[fieldID].GetStringValue(),
		Text: Sanitize(fields[fieldText].GetStringValue()),
		Done: done.GetBoolValue(),
	}, nil
}

// DecodeRequest implements Codec.
func (c *EnvelopeCodec) DecodeRequest(data []byte) (Request, error) {
	s, err := decodeStruct(data)
	if err != nil {
		return Request{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	fields := s.GetFields()
	typ := fields[fieldType].GetStringValue()
	id := fields[fieldID].GetStringValue()

	if typ == typeMessage {
		return Request{Kind: RequestMessage, ID: id, Text: fields[fieldText].GetStringValue()}, nil
	}
	ct := ControlType(typ)
	if !ct.Valid() {
		return Request{}, fmt.Errorf("%w: unknown type %q", ErrMalformedFrame, typ)
	}
	return Request{Kind: RequestControl, ID: id, Control: ct}, nil
}

// EncodeChunk implements Codec.
func (c *EnvelopeCodec) EncodeChunk(id, text string) ([]byte, error) {
	return c.encodeReply(map[string]any{
		fieldID:   id,
		fieldText: text,
		fieldDone: false,
	})
}

// EncodeDone implements Codec.
func (c *EnvelopeCodec) EncodeDone(id string) ([]byte, error) {
	return c.encodeReply(map[string]any{
		fieldID:   id,
		fieldDone: true,
	})
}

func (c *EnvelopeCodec) encodeReply(fields map[string]any) ([]byte, error) {
	if !c.BinaryFrames {
		return encodeJSON(fields)
	}
	s, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to build envelope: %w", err)
	}
	data, err := proto.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to encode envelope: %w", err)
	}
	return data, nil
}

func encodeJSON(fields map[string]any) ([]byte, error) {
	s, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to build envelope: %w", err)
	}
	data, err := protojson.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to encode envelope: %w", err)
	}
	return data, nil
}

// decodeStruct accepts a JSON object or a binary google.protobuf.Struct.
func decodeStruct(data []byte) (*structpb.Struct, error) {
	s := &structpb.Struct{}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		jsonErr := protojson.Unmarshal(trimmed, s)
		if jsonErr == nil {
			return s, nil
		}
		// A binary Struct starts with 0x0a, which TrimSpace drops, so the
		// next byte can look like a brace.
		s = &structpb.Struct{}
		if err := proto.Unmarshal(data, s); err != nil || len(s.GetFields()) == 0 {
			return nil, jsonErr
		}
		return s, nil
	}
	if err := proto.Unmarshal(data, s); err != nil {
		return nil, err
	}
	if len(s.GetFields()) == 0 {
		return nil, fmt.Errorf("empty envelope")
	}
	return s, nil
}
