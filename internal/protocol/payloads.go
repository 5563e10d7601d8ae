package protocol

import (
	"fmt"

	"github.com/danmuck/edgefilter/internal/protocol/schema"
	"github.com/danmuck/edgefilter/internal/protocol/tlv"
)

// Notification is the payload view of a service-method frame.
type Notification struct {
	JobName string
	Method  string
	Body    []byte
}

func (n *Notification) DecodeFields(fields []tlv.Field) error {
	var err error
	if n.JobName, err = requiredString(fields, schema.FieldJobName); err != nil {
		return err
	}
	if n.Body, err = requiredBytes(fields, schema.FieldBody); err != nil {
		return err
	}
	return nil
}

// Fields encodes n for an outbound service-method message.
func (n Notification) Fields() []tlv.Field {
	return []tlv.Field{
		tlv.StringField(schema.FieldJobName, n.JobName),
		tlv.BytesField(schema.FieldBody, n.Body),
	}
}

// DecodeNotification decodes a service-method message into a notification.
func DecodeNotification(m *Message) (Notification, error) {
	if m == nil {
		return Notification{}, ErrNilMessage
	}
	if !m.Kind().IsServiceMethod() {
		return Notification{}, fmt.Errorf("%w: kind=%s", ErrNotServiceMethod, m.Kind())
	}
	if m.Kind().Method == "" {
		return Notification{}, fmt.Errorf("%w: service method without method name", ErrMalformedPayload)
	}
	var n Notification
	if err := m.Decode(&n); err != nil {
		return Notification{}, err
	}
	n.Method = m.Kind().Method
	return n, nil
}

// Request is the payload of a plain request.
type Request struct {
	Body []byte
}

func (r *Request) DecodeFields(fields []tlv.Field) error {
	var err error
	r.Body, err = requiredBytes(fields, schema.FieldBody)
	return err
}

func (r Request) Fields() []tlv.Field {
	return []tlv.Field{tlv.BytesField(schema.FieldBody, r.Body)}
}

// Response is the payload of a correlated reply.
type Response struct {
	Status uint32
	Body   []byte
}

func (r *Response) DecodeFields(fields []tlv.Field) error {
	var err error
	if r.Status, err = requiredU32(fields, schema.FieldStatus); err != nil {
		return err
	}
	if r.Body, err = requiredBytes(fields, schema.FieldBody); err != nil {
		return err
	}
	return nil
}

func (r Response) Fields() []tlv.Field {
	return []tlv.Field{
		tlv.U32Field(schema.FieldStatus, r.Status),
		tlv.BytesField(schema.FieldBody, r.Body),
	}
}

// StreamChunk is one element of a multi-message reply.
type StreamChunk struct {
	Sequence uint64
	Body     []byte
	Final    bool
}

func (c *StreamChunk) DecodeFields(fields []tlv.Field) error {
	var err error
	if c.Sequence, err = requiredU64(fields, schema.FieldSequence); err != nil {
		return err
	}
	if c.Body, err = requiredBytes(fields, schema.FieldBody); err != nil {
		return err
	}
	if f, ok := tlv.GetField(fields, schema.FieldFinal); ok {
		c.Final = f.Type == tlv.TypeBool && len(f.Value) == 1 && f.Value[0] == 1
	}
	return nil
}

func (c StreamChunk) Fields() []tlv.Field {
	fields := []tlv.Field{
		tlv.U64Field(schema.FieldSequence, c.Sequence),
		tlv.BytesField(schema.FieldBody, c.Body),
	}
	if c.Final {
		fields = append(fields, tlv.Field{ID: schema.FieldFinal, Type: tlv.TypeBool, Value: []byte{1}})
	}
	return fields
}

// RemoteError is the payload of an error frame.
type RemoteError struct {
	Status  uint32
	Message string
}

func (e *RemoteError) DecodeFields(fields []tlv.Field) error {
	var err error
	if e.Status, err = requiredU32(fields, schema.FieldStatus); err != nil {
		return err
	}
	if e.Message, err = requiredString(fields, schema.FieldMessage); err != nil {
		return err
	}
	return nil
}

func (e RemoteError) Fields() []tlv.Field {
	return []tlv.Field{
		tlv.U32Field(schema.FieldStatus, e.Status),
		tlv.StringField(schema.FieldMessage, e.Message),
	}
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("protocol: remote error status=%d: %s", e.Status, e.Message)
}

func requiredField(fields []tlv.Field, id uint16) (tlv.Field, error) {
	f, ok := tlv.GetField(fields, id)
	if !ok {
		return tlv.Field{}, fmt.Errorf("missing field %d", id)
	}
	return f, nil
}

func requiredString(fields []tlv.Field, id uint16) (string, error) {
	f, err := requiredField(fields, id)
	if err != nil {
		return "", err
	}
	return f.String()
}

func requiredBytes(fields []tlv.Field, id uint16) ([]byte, error) {
	f, err := requiredField(fields, id)
	if err != nil {
		return nil, err
	}
	return f.Bytes()
}

func requiredU32(fields []tlv.Field, id uint16) (uint32, error) {
	f, err := requiredField(fields, id)
	if err != nil {
		return 0, err
	}
	return f.U32()
}

func requiredU64(fields []tlv.Field, id uint16) (uint64, error) {
	f, err := requiredField(fields, id)
	if err != nil {
		return 0, err
	}
	return f.U64()
}
