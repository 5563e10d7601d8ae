package protocol

import (
	"fmt"

	"github.com/danmuck/edgefilter/internal/protocol/frame"
	"github.com/danmuck/edgefilter/internal/protocol/schema"
	"github.com/danmuck/edgefilter/internal/protocol/tlv"
)

// PayloadDecoder is implemented by typed payload views.
type PayloadDecoder interface {
	DecodeFields(fields []tlv.Field) error
}

// Message is one decoded frame. It is immutable once built; the payload
// is decoded on demand with Decode.
type Message struct {
	target  CorrelationID
	source  CorrelationID
	kind    Kind
	flags   uint32
	payload []byte
}

// NewMessage builds an outbound message. Target and source default to
// NoCorrelation; use WithTarget/WithSource to set them.
func NewMessage(kind Kind, fields ...tlv.Field) *Message {
	return &Message{
		target:  NoCorrelation,
		source:  NoCorrelation,
		kind:    kind,
		payload: tlv.EncodeFields(fields),
	}
}

// WithTarget returns a copy of m addressed to the request id.
func (m *Message) WithTarget(id CorrelationID) *Message {
	out := *m
	out.target = id
	return &out
}

// WithSource returns a copy of m carrying the sender's request id.
func (m *Message) WithSource(id CorrelationID) *Message {
	out := *m
	out.source = id
	return &out
}

// WithFlags returns a copy of m with the given frame flags.
func (m *Message) WithFlags(flags uint32) *Message {
	out := *m
	out.flags = flags
	return &out
}

// FromFrame converts a wire frame into a message. A service-method frame
// without a method name still converts; DecodeNotification rejects it.
func FromFrame(f frame.Frame) *Message {
	kind := Kind{Type: MessageType(f.Header.MessageType)}
	if f.Header.Flags&frame.FlagHasMethod != 0 {
		kind.Method = string(f.Method)
	}
	return &Message{
		target:  CorrelationID(f.Header.TargetID),
		source:  CorrelationID(f.Header.SourceID),
		kind:    kind,
		flags:   f.Header.Flags &^ frame.FlagHasMethod,
		payload: f.Payload,
	}
}

// Frame converts m back into its wire frame.
func (m *Message) Frame() frame.Frame {
	f := frame.Frame{
		Header: frame.Header{
			TargetID:    uint64(m.target),
			SourceID:    uint64(m.source),
			MessageType: uint32(m.kind.Type),
			Flags:       m.flags,
		},
		Payload: m.payload,
	}
	if m.kind.Method != "" {
		f.Method = []byte(m.kind.Method)
	}
	return f
}

// CorrelationID is the request id this message answers.
func (m *Message) CorrelationID() CorrelationID {
	return m.target
}

// SourceID is the request id the sender allocated, if any.
func (m *Message) SourceID() CorrelationID {
	return m.source
}

func (m *Message) Kind() Kind {
	return m.kind
}

func (m *Message) Flags() uint32 {
	return m.flags
}

func (m *Message) IsError() bool {
	return m.flags&frame.FlagIsError != 0
}

// Payload returns a copy of the raw payload bytes.
func (m *Message) Payload() []byte {
	out := make([]byte, len(m.payload))
	copy(out, m.payload)
	return out
}

// Fields decodes the raw payload into TLV fields and validates them
// against the message type schema when one is registered.
func (m *Message) Fields() ([]tlv.Field, error) {
	fields, err := tlv.DecodeFields(m.payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	if schema.Known(uint32(m.kind.Type)) {
		if err := schema.Validate(uint32(m.kind.Type), fields); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
		}
	}
	return fields, nil
}

// Decode decodes the payload into v.
func (m *Message) Decode(v PayloadDecoder) error {
	if m == nil {
		return ErrNilMessage
	}
	fields, err := m.Fields()
	if err != nil {
		return err
	}
	if err := v.DecodeFields(fields); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	return nil
}

func (m *Message) String() string {
	return fmt.Sprintf("%s target=%s source=%s len=%d", m.kind, m.target, m.source, len(m.payload))
}
