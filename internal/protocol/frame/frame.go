package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

const (
	Magic          uint32 = 0xEDCE1001
	Version        uint16 = 1
	FixedHeaderLen uint16 = 40

	FlagHasMethod  uint32 = 0x01
	FlagIsResponse uint32 = 0x02
	FlagIsError    uint32 = 0x04

	// MaxMethodLen is the longest method name header_len can describe.
	MaxMethodLen = math.MaxUint16 - uint64(FixedHeaderLen)
)

var (
	ErrShortHeader        = errors.New("frame: short fixed header")
	ErrInvalidMagic       = errors.New("frame: invalid magic")
	ErrUnsupportedVersion = errors.New("frame: unsupported version")
	ErrHeaderLenTooSmall  = errors.New("frame: header_len smaller than fixed header")
	ErrHeaderLenMismatch  = errors.New("frame: method flag set but header_len has no method bytes")
	ErrPayloadTooLarge    = errors.New("frame: payload too large")
	ErrMethodTooLarge     = errors.New("frame: method too large")
)

// Header is the fixed wire header.
//
// TargetID correlates a reply with the request that caused it; SourceID is
// the id the sender allocated for its own request.
type Header struct {
	Magic       uint32
	Version     uint16
	HeaderLen   uint16
	TargetID    uint64
	SourceID    uint64
	MessageType uint32
	Flags       uint32
	PayloadLen  uint64
}

// Frame is one complete wire message.
type Frame struct {
	Header  Header
	Method  []byte
	Payload []byte
}

// Limits constrains frame decode/encode memory use.
type Limits struct {
	MaxMethodBytes  uint64
	MaxPayloadBytes uint64
}

func DefaultLimits() Limits {
	return Limits{
		MaxMethodBytes:  1024,
		MaxPayloadBytes: 8 * 1024 * 1024,
	}
}

func ReadFrame(r io.Reader, limits Limits) (Frame, error) {
	var fixed [FixedHeaderLen]byte
	if _, err := io.ReadFull(r, fixed[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return Frame{}, io.EOF
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return Frame{}, ErrShortHeader
		}
		return Frame{}, err
	}

	h, err := DecodeHeader(fixed[:])
	if err != nil {
		return Frame{}, err
	}
	if h.Magic != Magic {
		return Frame{}, ErrInvalidMagic
	}
	if h.Version != Version {
		return Frame{}, ErrUnsupportedVersion
	}
	if h.HeaderLen < FixedHeaderLen {
		return Frame{}, ErrHeaderLenTooSmall
	}

	methodLen := uint64(h.HeaderLen - FixedHeaderLen)
	if h.Flags&FlagHasMethod != 0 && methodLen == 0 {
		return Frame{}, ErrHeaderLenMismatch
	}
	if methodLen > limits.MaxMethodBytes {
		return Frame{}, ErrMethodTooLarge
	}
	if h.PayloadLen > limits.MaxPayloadBytes {
		return Frame{}, ErrPayloadTooLarge
	}

	var method []byte
	if methodLen > 0 {
		method = make([]byte, methodLen)
		if _, err := io.ReadFull(r, method); err != nil {
			return Frame{}, truncated(err)
		}
	}

	payload := make([]byte, h.PayloadLen)
	if h.PayloadLen > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return Frame{}, truncated(err)
		}
	}

	return Frame{Header: h, Method: method, Payload: payload}, nil
}

// truncated keeps a clean EOF after the header from reading as end of stream.
func truncated(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}

func WriteFrame(w io.Writer, f Frame, limits Limits) error {
	methodLen := uint64(len(f.Method))
	payloadLen := uint64(len(f.Payload))
	if methodLen > limits.MaxMethodBytes || methodLen > MaxMethodLen {
		return ErrMethodTooLarge
	}
	if payloadLen > limits.MaxPayloadBytes {
		return ErrPayloadTooLarge
	}

	h := f.Header
	if h.Magic == 0 {
		h.Magic = Magic
	}
	if h.Version == 0 {
		h.Version = Version
	}
	h.HeaderLen = FixedHeaderLen + uint16(methodLen)
	h.PayloadLen = payloadLen
	if methodLen > 0 {
		h.Flags |= FlagHasMethod
	} else {
		h.Flags &^= FlagHasMethod
	}

	// one Write per frame
	buf := make([]byte, 0, uint64(FixedHeaderLen)+methodLen+payloadLen)
	buf = append(buf, EncodeHeader(h)...)
	buf = append(buf, f.Method...)
	buf = append(buf, f.Payload...)
	_, err := w.Write(buf)
	return err
}

func EncodeHeader(h Header) []byte {
	buf := make([]byte, FixedHeaderLen)
	binary.BigEndian.PutUint32(buf[0:4], h.Magic)
	binary.BigEndian.PutUint16(buf[4:6], h.Version)
	binary.BigEndian.PutUint16(buf[6:8], h.HeaderLen)
	binary.BigEndian.PutUint64(buf[8:16], h.TargetID)
	binary.BigEndian.PutUint64(buf[16:24], h.SourceID)
	binary.BigEndian.PutUint32(buf[24:28], h.MessageType)
	binary.BigEndian.PutUint32(buf[28:32], h.Flags)
	binary.BigEndian.PutUint64(buf[32:40], h.PayloadLen)
	return buf
}

func DecodeHeader(b []byte) (Header, error) {
	if len(b) != int(FixedHeaderLen) {
		return Header{}, fmt.Errorf("frame: invalid fixed header length: %d", len(b))
	}
	return Header{
		Magic:       binary.BigEndian.Uint32(b[0:4]),
		Version:     binary.BigEndian.Uint16(b[4:6]),
		HeaderLen:   binary.BigEndian.Uint16(b[6:8]),
		TargetID:    binary.BigEndian.Uint64(b[8:16]),
		SourceID:    binary.BigEndian.Uint64(b[16:24]),
		MessageType: binary.BigEndian.Uint32(b[24:28]),
		Flags:       binary.BigEndian.Uint32(b[28:32]),
		PayloadLen:  binary.BigEndian.Uint64(b[32:40]),
	}, nil
}
