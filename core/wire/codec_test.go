package wire

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func roundTrip(t *testing.T, mode Mode, payload []byte, bufferSize int) {
	t.Helper()

	var buf bytes.Buffer
	sentinels := DefaultSentinels()

	enc := NewEncoder(&buf, sentinels, 512)
	require.NoError(t, enc.Encode(mode, payload))

	dec := NewDecoder(&buf, sentinels, bufferSize)
	gotMode, gotPayload, err := dec.ReadFrame()
	require.NoError(t, err)
	require.Equal(t, mode, gotMode)
	require.Equal(t, payload, gotPayload)
}

func TestRoundTripAllModes(t *testing.T) {
	for _, mode := range []Mode{ModePacket, ModeFile, ModeBinary} {
		roundTrip(t, mode, []byte("hello fabric"), 64)
	}
}

func TestRoundTripEmptyPayload(t *testing.T) {
	roundTrip(t, ModeBinary, []byte{}, 64)
}

func TestRoundTripBufferBoundaries(t *testing.T) {
	const bufferSize = 128
	sizes := []int{bufferSize - 1, bufferSize, bufferSize + 1, 2 * bufferSize}
	for _, size := range sizes {
		payload := bytes.Repeat([]byte{0x42}, size)
		roundTrip(t, ModePacket, payload, bufferSize)
	}
}

// TestStrayStartBytesInPayloadDoNotDesync exercises spec.md §8's boundary
// case: the start sentinel byte value appearing inside a payload must not
// confuse the decoder, since the decoder is only looking for sentinels
// between frames, and payload bytes are consumed by exact count.
func TestStrayStartBytesInPayloadDoNotDesync(t *testing.T) {
	sentinels := DefaultSentinels()
	payload := bytes.Repeat([]byte{sentinels.Start}, 16)

	var buf bytes.Buffer
	enc := NewEncoder(&buf, sentinels, 512)
	require.NoError(t, enc.Encode(ModeBinary, payload))
	require.NoError(t, enc.Encode(ModePacket, []byte("second frame")))

	dec := NewDecoder(&buf, sentinels, 64)

	mode, got, err := dec.ReadFrame()
	require.NoError(t, err)
	require.Equal(t, ModeBinary, mode)
	require.Equal(t, payload, got)

	mode, got, err = dec.ReadFrame()
	require.NoError(t, err)
	require.Equal(t, ModePacket, mode)
	require.Equal(t, []byte("second frame"), got)
}

// TestResyncAfterBadEndSentinel exercises spec.md §4.1's resync policy: a
// corrupted end sentinel discards the in-flight frame and restarts the
// start search, without losing the next well-formed frame.
func TestResyncAfterBadEndSentinel(t *testing.T) {
	sentinels := DefaultSentinels()

	var frame1 bytes.Buffer
	require.NoError(t, NewEncoder(&frame1, sentinels, 512).Encode(ModePacket, []byte("corrupted")))
	raw1 := frame1.Bytes()
	// Flip the last byte, which falls inside the end sentinel.
	raw1[len(raw1)-1] ^= 0xFF

	var frame2 bytes.Buffer
	require.NoError(t, NewEncoder(&frame2, sentinels, 512).Encode(ModePacket, []byte("clean")))

	raw := append(raw1, frame2.Bytes()...)
	dec := NewDecoder(bytes.NewReader(raw), sentinels, 64)

	_, _, err := dec.ReadFrame()
	var protoErr *ProtocolError
	require.ErrorAs(t, err, &protoErr)

	mode, got, err := dec.ReadFrame()
	require.NoError(t, err)
	require.Equal(t, ModePacket, mode)
	require.Equal(t, []byte("clean"), got)
}

func TestUnknownModeIsProtocolError(t *testing.T) {
	sentinels := DefaultSentinels()
	var buf bytes.Buffer
	enc := NewEncoder(&buf, sentinels, 512)
	require.NoError(t, enc.Encode(Mode(99), []byte("x")))

	dec := NewDecoder(&buf, sentinels, 64)
	_, _, err := dec.ReadFrame()
	var protoErr *ProtocolError
	require.ErrorAs(t, err, &protoErr)
}

func TestShortWriteIsFatal(t *testing.T) {
	enc := NewEncoder(&shortWriter{max: 2}, DefaultSentinels(), 512)
	err := enc.Encode(ModePacket, []byte("payload"))
	require.Error(t, err)
}

type shortWriter struct {
	max int
}

func (s *shortWriter) Write(b []byte) (int, error) {
	if len(b) > s.max {
		return s.max, nil
	}
	return len(b), nil
}

func TestFieldReaderWriterRoundTrip(t *testing.T) {
	fw := (&FieldWriter{}).PutString("abc").PutField([]byte{1, 2, 3}).PutString("")
	fr := NewFieldReader(fw.Bytes())

	s, err := fr.String()
	require.NoError(t, err)
	require.Equal(t, "abc", s)

	b, err := fr.Field()
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3}, b)

	s, err = fr.String()
	require.NoError(t, err)
	require.Equal(t, "", s)
	require.False(t, fr.Remaining())
}

var _ io.Writer = (*shortWriter)(nil)
