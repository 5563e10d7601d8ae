package protocol

import "errors"

var (
	ErrNilMessage         = errors.New("protocol: nil message")
	ErrMalformedPayload   = errors.New("protocol: malformed payload")
	ErrNotServiceMethod   = errors.New("protocol: not a service method message")
	ErrUnknownMessageType = errors.New("protocol: unknown message type")
)
