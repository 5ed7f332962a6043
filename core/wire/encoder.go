package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Encoder writes typed frames to an underlying byte stream. Send is atomic
// per frame: spec.md §4.1 requires that any short write be reported as a
// fatal send error (the caller transitions the owning session to
// expired), never a partial frame left on the wire.
type Encoder struct {
	w         io.Writer
	sentinels Sentinels
	// sliceSize bounds the per-write syscall size of the payload; it is
	// not a compression concern, only a write-size cap (spec.md §4.1).
	sliceSize int
}

// NewEncoder constructs an Encoder writing to w. sliceSize is normally the
// session's compress_block_size; zero or negative uses 1 MiB slices.
func NewEncoder(w io.Writer, sentinels Sentinels, sliceSize int) *Encoder {
	if sliceSize <= 0 {
		sliceSize = 1 << 20
	}
	return &Encoder{w: w, sentinels: sentinels, sliceSize: sliceSize}
}

// Encode writes one frame: sentinels, mode, little-endian length, payload
// in bounded slices, end sentinel.
func (e *Encoder) Encode(mode Mode, payload []byte) error {
	if len(payload) > 0xFFFFFFFF {
		return fmt.Errorf("wire: payload too large: %d bytes", len(payload))
	}

	if err := e.writeFull(repeat(e.sentinels.Start, sentinelLen)); err != nil {
		return err
	}
	if err := e.writeFull([]byte{byte(mode)}); err != nil {
		return err
	}
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if err := e.writeFull(lenBuf[:]); err != nil {
		return err
	}

	for off := 0; off < len(payload); off += e.sliceSize {
		end := off + e.sliceSize
		if end > len(payload) {
			end = len(payload)
		}
		if err := e.writeFull(payload[off:end]); err != nil {
			return err
		}
	}

	return e.writeFull(repeat(e.sentinels.End, sentinelLen))
}

// writeFull reports a short write as a fatal send error, never retrying
// partway through a frame.
func (e *Encoder) writeFull(b []byte) error {
	n, err := e.w.Write(b)
	if err != nil {
		return fmt.Errorf("wire: send error: %w", err)
	}
	if n != len(b) {
		return fmt.Errorf("wire: short write: wrote %d of %d bytes", n, len(b))
	}
	return nil
}

func repeat(b byte, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = b
	}
	return out
}
