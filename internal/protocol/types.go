package protocol

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/danmuck/edgefilter/internal/protocol/schema"
)

// CorrelationID links a reply frame to the request that caused it.
type CorrelationID uint64

// NoCorrelation marks a frame that answers no outstanding request.
const NoCorrelation CorrelationID = math.MaxUint64

func (id CorrelationID) IsNone() bool {
	return id == NoCorrelation
}

func (id CorrelationID) String() string {
	if id.IsNone() {
		return "none"
	}
	return strconv.FormatUint(uint64(id), 10)
}

// MessageType is the protocol-level enumerated message type.
type MessageType uint32

const (
	MsgHeartbeat             = MessageType(schema.MsgHeartbeat)
	MsgLogon                 = MessageType(schema.MsgLogon)
	MsgLogonResponse         = MessageType(schema.MsgLogonResponse)
	MsgError                 = MessageType(schema.MsgError)
	MsgRequest               = MessageType(schema.MsgRequest)
	MsgResponse              = MessageType(schema.MsgResponse)
	MsgStreamChunk           = MessageType(schema.MsgStreamChunk)
	MsgServiceMethod         = MessageType(schema.MsgServiceMethod)
	MsgServiceMethodResponse = MessageType(schema.MsgServiceMethodResponse)
)

var messageTypeNames = map[MessageType]string{
	MsgHeartbeat:             "Heartbeat",
	MsgLogon:                 "Logon",
	MsgLogonResponse:         "LogonResponse",
	MsgError:                 "Error",
	MsgRequest:               "Request",
	MsgResponse:              "Response",
	MsgStreamChunk:           "StreamChunk",
	MsgServiceMethod:         "ServiceMethod",
	MsgServiceMethodResponse: "ServiceMethodResponse",
}

func (t MessageType) String() string {
	if name, ok := messageTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("MessageType(%d)", uint32(t))
}

// ParseMessageType resolves a message type by name or decimal id.
func ParseMessageType(s string) (MessageType, error) {
	s = strings.TrimSpace(s)
	for t, name := range messageTypeNames {
		if strings.EqualFold(name, s) {
			return t, nil
		}
	}
	if n, err := strconv.ParseUint(s, 10, 32); err == nil {
		return MessageType(n), nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownMessageType, s)
}

// Kind discriminates frames for routing. Method is only set on
// service-method frames, where it names the remote method.
//
// Kind is comparable and used directly as a map key.
type Kind struct {
	Type   MessageType
	Method string
}

// KindOf returns the kind of a plain (non service-method) message type.
func KindOf(t MessageType) Kind {
	return Kind{Type: t}
}

// ServiceMethodKind returns the kind of a service-method frame for method.
func ServiceMethodKind(method string) Kind {
	return Kind{Type: MsgServiceMethod, Method: method}
}

func (k Kind) IsServiceMethod() bool {
	return k.Type == MsgServiceMethod
}

func (k Kind) String() string {
	if k.Method == "" {
		return k.Type.String()
	}
	return k.Type.String() + "(" + k.Method + ")"
}
