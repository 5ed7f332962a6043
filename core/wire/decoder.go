package wire

import (
	"encoding/binary"
	"io"
)

// Decoder implements the receive state machine of spec.md §4.1:
// awaitStart -> awaitMode -> awaitLength -> awaitPayload -> awaitEnd,
// resynchronizing on any sentinel mismatch without ever pushing a byte
// back onto the stream and without ever delivering a partial frame.
type Decoder struct {
	r          io.Reader
	sentinels  Sentinels
	bufferSize int
	one        [1]byte
}

// NewDecoder constructs a Decoder reading from r. bufferSize bounds the
// size of each read in the awaitPayload state (the "last-chunk" path
// spec.md §8 requires to be exercised at buffer_size, buffer_size±1, and
// 2*buffer_size).
func NewDecoder(r io.Reader, sentinels Sentinels, bufferSize int) *Decoder {
	if bufferSize <= 0 {
		bufferSize = 4096
	}
	return &Decoder{r: r, sentinels: sentinels, bufferSize: bufferSize}
}

// ReadFrame blocks until one full frame has been delivered, or a
// transport error occurs, or a protocol error is encountered (unknown
// mode, sentinel mismatch). A *ProtocolError is non-fatal: the decoder
// has already resynchronized internally and the caller should simply
// call ReadFrame again to keep reading. Any other error is a transport
// error (spec.md §7) and the caller should close the session.
func (d *Decoder) ReadFrame() (Mode, []byte, error) {
	if err := d.awaitStart(); err != nil {
		return 0, nil, err
	}

	mode, err := d.awaitMode()
	if err != nil {
		return 0, nil, err
	}

	length, err := d.awaitLength()
	if err != nil {
		return 0, nil, err
	}

	payload, err := d.awaitPayload(length)
	if err != nil {
		return 0, nil, err
	}

	if err := d.awaitEnd(); err != nil {
		// The payload is discarded; the caller sees only the protocol
		// error and must call ReadFrame again to resume.
		return 0, nil, err
	}

	if !isKnownMode(mode) {
		return 0, nil, &ProtocolError{Reason: "unknown mode"}
	}

	return mode, payload, nil
}

func isKnownMode(m Mode) bool {
	switch m {
	case ModePacket, ModeFile, ModeBinary:
		return true
	default:
		return false
	}
}

// awaitStart reads bytes until sentinelLen consecutive start-tag bytes
// have matched. A mismatch anywhere resets the match count to zero and
// the next candidate start is the very next byte read; no byte is ever
// pushed back.
func (d *Decoder) awaitStart() error {
	matched := 0
	for matched < sentinelLen {
		if _, err := io.ReadFull(d.r, d.one[:]); err != nil {
			return err
		}
		if d.one[0] == d.sentinels.Start {
			matched++
		} else {
			matched = 0
		}
	}
	return nil
}

func (d *Decoder) awaitMode() (Mode, error) {
	if _, err := io.ReadFull(d.r, d.one[:]); err != nil {
		return 0, err
	}
	return Mode(d.one[0]), nil
}

func (d *Decoder) awaitLength() (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(d.r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

func (d *Decoder) awaitPayload(length uint32) ([]byte, error) {
	payload := make([]byte, 0, length)
	remaining := int(length)
	chunk := make([]byte, d.bufferSize)
	for remaining > 0 {
		want := remaining
		if want > d.bufferSize {
			want = d.bufferSize
		}
		n, err := io.ReadFull(d.r, chunk[:want])
		if err != nil {
			return nil, err
		}
		payload = append(payload, chunk[:n]...)
		remaining -= n
	}
	return payload, nil
}

// awaitEnd reads the end sentinel. Any mismatch (at any of the four
// positions) discards the in-progress frame and reports a ProtocolError;
// the decoder's next ReadFrame call restarts the start-tag search exactly
// as if nothing had been read, per spec.md's resync policy.
func (d *Decoder) awaitEnd() error {
	for i := 0; i < sentinelLen; i++ {
		if _, err := io.ReadFull(d.r, d.one[:]); err != nil {
			return err
		}
		if d.one[0] != d.sentinels.End {
			return &ProtocolError{Reason: "end sentinel mismatch"}
		}
	}
	return nil
}
