package wire

import (
	"encoding/binary"
	"fmt"
)

// FieldWriter appends length-prefixed fields in the order callers supply
// them, used to build file- and binary-mode payloads (spec.md §3). Every
// field is prefixed by its byte length as a fixed FieldWidth-byte
// little-endian unsigned integer, resolving the source's size_t
// open question (DESIGN.md).
type FieldWriter struct {
	buf []byte
}

// PutField appends one length-prefixed field.
func (w *FieldWriter) PutField(b []byte) *FieldWriter {
	var lenBuf [FieldWidth]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(b)))
	w.buf = append(w.buf, lenBuf[:]...)
	w.buf = append(w.buf, b...)
	return w
}

// PutString is a convenience wrapper over PutField.
func (w *FieldWriter) PutString(s string) *FieldWriter {
	return w.PutField([]byte(s))
}

// Bytes returns the accumulated payload.
func (w *FieldWriter) Bytes() []byte {
	return w.buf
}

// FieldReader walks length-prefixed fields out of a file- or binary-mode
// payload in the order they were written.
type FieldReader struct {
	buf []byte
	off int
}

// NewFieldReader wraps buf for sequential field extraction.
func NewFieldReader(buf []byte) *FieldReader {
	return &FieldReader{buf: buf}
}

// Field reads the next length-prefixed field.
func (r *FieldReader) Field() ([]byte, error) {
	if r.off+FieldWidth > len(r.buf) {
		return nil, fmt.Errorf("wire: truncated field length prefix")
	}
	n := binary.LittleEndian.Uint64(r.buf[r.off : r.off+FieldWidth])
	r.off += FieldWidth
	if uint64(r.off)+n > uint64(len(r.buf)) {
		return nil, fmt.Errorf("wire: truncated field body")
	}
	field := r.buf[r.off : r.off+int(n)]
	r.off += int(n)
	return field, nil
}

// String reads the next field and converts it to a string.
func (r *FieldReader) String() (string, error) {
	b, err := r.Field()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Remaining reports whether unread bytes remain.
func (r *FieldReader) Remaining() bool {
	return r.off < len(r.buf)
}
