package frame

import (
	"bytes"
	"errors"
	"io"
	"math"
	"testing"

	"github.com/danmuck/edgefilter/internal/protocol/tlv"
	"github.com/stretchr/testify/require"
)

func TestReadWriteFrameRoundTrip(t *testing.T) {
	payload := tlv.EncodeFields([]tlv.Field{{ID: 1, Type: tlv.TypeString, Value: []byte("job-1")}})
	in := Frame{
		Header:  Header{TargetID: 42, SourceID: 7, MessageType: 146},
		Method:  []byte("Player.NotifyFriend#1"),
		Payload: payload,
	}
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, in, DefaultLimits()))

	out, err := ReadFrame(&buf, DefaultLimits())
	require.NoError(t, err)
	require.Equal(t, Magic, out.Header.Magic)
	require.Equal(t, Version, out.Header.Version)
	require.Equal(t, uint64(42), out.Header.TargetID)
	require.Equal(t, uint64(7), out.Header.SourceID)
	require.Equal(t, uint32(146), out.Header.MessageType)
	require.NotZero(t, out.Header.Flags&FlagHasMethod)
	require.Equal(t, "Player.NotifyFriend#1", string(out.Method))
	require.Equal(t, payload, out.Payload)
}

func TestWriteFrameClearsMethodFlagWithoutMethod(t *testing.T) {
	var buf bytes.Buffer
	in := Frame{Header: Header{MessageType: 1, Flags: FlagHasMethod | FlagIsResponse}}
	require.NoError(t, WriteFrame(&buf, in, DefaultLimits()))

	out, err := ReadFrame(&buf, DefaultLimits())
	require.NoError(t, err)
	require.Zero(t, out.Header.Flags&FlagHasMethod)
	require.NotZero(t, out.Header.Flags&FlagIsResponse)
	require.Empty(t, out.Method)
}

func TestReadFrameCleanEOF(t *testing.T) {
	_, err := ReadFrame(bytes.NewReader(nil), DefaultLimits())
	require.ErrorIs(t, err, io.EOF)
}

func TestReadFrameMalformedHeaderIsDeterministic(t *testing.T) {
	_, err := ReadFrame(bytes.NewReader([]byte{1, 2, 3}), DefaultLimits())
	if !errors.Is(err, ErrShortHeader) {
		t.Fatalf("expected ErrShortHeader, got %v", err)
	}
}

func TestReadFrameInvalidMagic(t *testing.T) {
	h := Header{Magic: 1, Version: Version, HeaderLen: FixedHeaderLen}
	_, err := ReadFrame(bytes.NewReader(EncodeHeader(h)), DefaultLimits())
	require.ErrorIs(t, err, ErrInvalidMagic)
}

func TestReadFrameUnsupportedVersion(t *testing.T) {
	h := Header{Magic: Magic, Version: 9, HeaderLen: FixedHeaderLen}
	_, err := ReadFrame(bytes.NewReader(EncodeHeader(h)), DefaultLimits())
	require.ErrorIs(t, err, ErrUnsupportedVersion)
}

func TestReadFrameHeaderLenTooSmall(t *testing.T) {
	h := Header{Magic: Magic, Version: Version, HeaderLen: 8, MessageType: 1}
	_, err := ReadFrame(bytes.NewReader(EncodeHeader(h)), DefaultLimits())
	require.ErrorIs(t, err, ErrHeaderLenTooSmall)
}

func TestReadFrameMethodFlagWithoutMethodBytes(t *testing.T) {
	h := Header{Magic: Magic, Version: Version, HeaderLen: FixedHeaderLen, MessageType: 1, Flags: FlagHasMethod}
	_, err := ReadFrame(bytes.NewReader(EncodeHeader(h)), DefaultLimits())
	require.ErrorIs(t, err, ErrHeaderLenMismatch)
}

func TestReadFramePayloadLimit(t *testing.T) {
	h := Header{Magic: Magic, Version: Version, HeaderLen: FixedHeaderLen, MessageType: 1, PayloadLen: 64}
	limits := DefaultLimits()
	limits.MaxPayloadBytes = 16
	_, err := ReadFrame(bytes.NewReader(EncodeHeader(h)), limits)
	require.ErrorIs(t, err, ErrPayloadTooLarge)
}

func TestReadFrameTruncatedPayload(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, Frame{Header: Header{MessageType: 11}, Payload: []byte("abcdef")}, DefaultLimits()))

	_, err := ReadFrame(bytes.NewReader(buf.Bytes()[:FixedHeaderLen]), DefaultLimits())
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestWriteFrameRejectsMethodBeyondHeaderLen(t *testing.T) {
	limits := Limits{MaxMethodBytes: 1 << 20, MaxPayloadBytes: 16}

	var buf bytes.Buffer
	err := WriteFrame(&buf, Frame{Method: bytes.Repeat([]byte("m"), int(MaxMethodLen)+1)}, limits)
	require.ErrorIs(t, err, ErrMethodTooLarge)
	require.Zero(t, buf.Len())

	longest := bytes.Repeat([]byte("m"), int(MaxMethodLen))
	require.NoError(t, WriteFrame(&buf, Frame{Method: longest}, limits))
	out, err := ReadFrame(&buf, limits)
	require.NoError(t, err)
	require.Equal(t, uint16(math.MaxUint16), out.Header.HeaderLen)
	require.Equal(t, longest, out.Method)
}
