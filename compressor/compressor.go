// Package compressor implements the compressor collaborator of spec.md
// §6: Compress/Decompress(bytes, block_size). No compression library
// exists in the teacher repo; this is enriched from the rest of the
// retrieval pack, which carries github.com/klauspost/compress as a real
// ecosystem dependency (mickamy-sql-tap/go.mod), per DESIGN.md.
package compressor

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"
)

// Compress deflates data, writing in chunks no larger than blockSize to
// bound per-call memory the same way the wire encoder bounds per-write
// syscall size (spec.md §4.1). blockSize <= 0 uses a single chunk.
func Compress(data []byte, blockSize int) ([]byte, error) {
	var out bytes.Buffer
	w, err := flate.NewWriter(&out, flate.DefaultCompression)
	if err != nil {
		return nil, fmt.Errorf("compressor: %w", err)
	}

	if blockSize <= 0 {
		blockSize = len(data)
		if blockSize == 0 {
			blockSize = 1
		}
	}
	for off := 0; off < len(data); off += blockSize {
		end := off + blockSize
		if end > len(data) {
			end = len(data)
		}
		if _, err := w.Write(data[off:end]); err != nil {
			return nil, fmt.Errorf("compressor: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("compressor: %w", err)
	}
	return out.Bytes(), nil
}

// Decompress inflates data produced by Compress. blockSize bounds the
// per-read chunk size used while draining the inflate stream.
func Decompress(data []byte, blockSize int) ([]byte, error) {
	if blockSize <= 0 {
		blockSize = 4096
	}
	r := flate.NewReader(bytes.NewReader(data))
	defer r.Close()

	var out bytes.Buffer
	buf := make([]byte, blockSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			out.Write(buf[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("compressor: %w", err)
		}
	}
	return out.Bytes(), nil
}
