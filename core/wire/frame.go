// Package wire implements the framing codec of spec.md §4.1: a duplex
// byte stream is converted to a lazy sequence of (mode, payload) frames
// and back. The wire layout is
//
//	[start-tag x4 | mode x1 | length x4 LE | payload | end-tag x4]
//
// This is the hardest-to-get-right part of the fabric because it has to
// stay correct under arbitrary TCP fragmentation and resynchronize after
// adversarial or corrupted framing, never delivering a partial frame.
//
// The in-payload length prefixes used by the file and binary channel
// payloads (see payload.go) are a separate, fixed-width concern resolved
// here too: spec.md §9 leaves the source's native-width size_t prefix as
// an open question and recommends a fixed 8-byte little-endian width,
// which is what FieldWidth implements.
package wire

import "fmt"

// Mode identifies which of the three logical channels a frame carries.
type Mode byte

const (
	ModePacket Mode = 0
	ModeFile   Mode = 1
	ModeBinary Mode = 2
)

func (m Mode) String() string {
	switch m {
	case ModePacket:
		return "packet"
	case ModeFile:
		return "file"
	case ModeBinary:
		return "binary"
	default:
		return fmt.Sprintf("mode(%d)", byte(m))
	}
}

// FieldWidth is the fixed byte width of the length prefix on each field
// inside file- and binary-mode payloads (source_id, source_path, ...).
// See package doc and DESIGN.md's "Open Question decisions" entry 1.
const FieldWidth = 8

// Sentinels are the configurable start/end tag byte values of spec.md §3.
// Defaults match the source: 231 and 67.
type Sentinels struct {
	Start byte
	End   byte
}

// DefaultSentinels returns the spec.md default sentinel values.
func DefaultSentinels() Sentinels {
	return Sentinels{Start: 231, End: 67}
}

const sentinelLen = 4

// ProtocolError reports a framing-level problem (bad sentinel, unknown
// mode) that the codec recovers from by resynchronizing; per spec.md §7
// these never terminate the session, they are only logged.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return "wire: protocol error: " + e.Reason
}
