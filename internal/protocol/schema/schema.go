package schema

import (
	"fmt"

	"github.com/danmuck/edgefilter/internal/protocol/tlv"
	"github.com/rs/zerolog/log"
)

// Message type IDs from tlv contract.
const (
	MsgHeartbeat             uint32 = 1
	MsgLogon                 uint32 = 2
	MsgLogonResponse         uint32 = 3
	MsgError                 uint32 = 7
	MsgRequest               uint32 = 10
	MsgResponse              uint32 = 11
	MsgStreamChunk           uint32 = 12
	MsgServiceMethod         uint32 = 146
	MsgServiceMethodResponse uint32 = 147
)

// Field IDs from tlv contract.
const (
	FieldJobName uint16 = 1
	FieldBody    uint16 = 2

	FieldStatus  uint16 = 100
	FieldMessage uint16 = 101

	FieldSequence uint16 = 200
	FieldFinal    uint16 = 201

	FieldTimestampMS uint16 = 900
)

type Requirement struct {
	ID   uint16
	Type uint8
}

type ValidationError struct {
	MessageType uint32
	FieldID     uint16
	Reason      string
}

func (e ValidationError) Error() string {
	if e.FieldID == 0 {
		return fmt.Sprintf("schema: message_type=%d: %s", e.MessageType, e.Reason)
	}
	return fmt.Sprintf("schema: message_type=%d field=%d: %s", e.MessageType, e.FieldID, e.Reason)
}

var requirements = map[uint32][]Requirement{
	MsgHeartbeat: {},
	MsgLogon: {
		{FieldMessage, tlv.TypeString},
	},
	MsgLogonResponse: {
		{FieldStatus, tlv.TypeU32},
	},
	MsgError: {
		{FieldStatus, tlv.TypeU32},
		{FieldMessage, tlv.TypeString},
	},
	MsgRequest: {
		{FieldBody, tlv.TypeBytes},
	},
	MsgResponse: {
		{FieldStatus, tlv.TypeU32},
		{FieldBody, tlv.TypeBytes},
	},
	MsgStreamChunk: {
		{FieldSequence, tlv.TypeU64},
		{FieldBody, tlv.TypeBytes},
	},
	MsgServiceMethod: {
		{FieldJobName, tlv.TypeString},
		{FieldBody, tlv.TypeBytes},
	},
	MsgServiceMethodResponse: {
		{FieldStatus, tlv.TypeU32},
		{FieldBody, tlv.TypeBytes},
	},
}

// Known reports whether messageType has a registered schema.
func Known(messageType uint32) bool {
	_, ok := requirements[messageType]
	return ok
}

// Validate enforces required fields and required field types for a message type.
// Unknown fields are ignored.
func Validate(messageType uint32, fields []tlv.Field) error {
	reqs, ok := requirements[messageType]
	if !ok {
		log.Debug().Uint32("message_type", messageType).Msg("schema.Validate unknown message_type")
		return ValidationError{MessageType: messageType, Reason: "unknown message_type"}
	}
	for _, req := range reqs {
		f, found := tlv.GetField(fields, req.ID)
		if !found {
			log.Debug().
				Uint32("message_type", messageType).
				Uint16("field_id", req.ID).
				Msg("schema.Validate missing field")
			return ValidationError{MessageType: messageType, FieldID: req.ID, Reason: "missing required field"}
		}
		if f.Type != req.Type {
			log.Debug().
				Uint32("message_type", messageType).
				Uint16("field_id", req.ID).
				Uint8("got", f.Type).
				Uint8("want", req.Type).
				Msg("schema.Validate type mismatch")
			return ValidationError{MessageType: messageType, FieldID: req.ID, Reason: "type mismatch"}
		}
	}
	log.Trace().Uint32("message_type", messageType).Msg("schema.Validate ok")
	return nil
}
