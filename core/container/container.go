// Package container implements the value_container collaborator named in
// spec.md §6: a structured header plus an ordered body of named typed
// values, serialized with cbor the same way the teacher's own wire
// commands (server/cborplugin.Request/Response) and PKI descriptors
// (core/pki/descriptor.go) are.
package container

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Header carries the addressing fields of every packet-mode message
// (spec.md §3).
type Header struct {
	MessageType  string
	SourceID     string
	SourceSubID  string
	TargetID     string
	TargetSubID  string
}

// Swap exchanges source and target, used when answering an echo
// (spec.md §4.3) or synthesizing a message_sending_response (spec.md
// §4.4).
func (h *Header) Swap() {
	h.SourceID, h.TargetID = h.TargetID, h.SourceID
	h.SourceSubID, h.TargetSubID = h.TargetSubID, h.SourceSubID
}

// Container is a structured message: a Header plus an ordered body of
// named typed values. It is the unit that the pipeline's serialize/
// deserialize stage converts to and from frame payload bytes.
type Container struct {
	Header Header
	body   []namedValue
}

type namedValue struct {
	Name  string
	Value interface{}
}

// New returns an empty Container with the given header.
func New(header Header) *Container {
	return &Container{Header: header}
}

// Set inserts or overwrites a named value in the body, preserving
// insertion order for first-time inserts (a "streaming insert" per
// spec.md §6).
func (c *Container) Set(name string, value interface{}) *Container {
	for i := range c.body {
		if c.body[i].Name == name {
			c.body[i].Value = value
			return c
		}
	}
	c.body = append(c.body, namedValue{Name: name, Value: value})
	return c
}

// Get returns the named value and whether it was present.
func (c *Container) Get(name string) (interface{}, bool) {
	for _, nv := range c.body {
		if nv.Name == name {
			return nv.Value, true
		}
	}
	return nil, false
}

// GetString is a typed convenience accessor over Get.
func (c *Container) GetString(name string) (string, bool) {
	v, ok := c.Get(name)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// GetBool is a typed convenience accessor over Get.
func (c *Container) GetBool(name string) (bool, bool) {
	v, ok := c.Get(name)
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

// ValueArray returns the named value as a []string, used for fields such
// as snipping_targets (spec.md §6).
func (c *Container) ValueArray(name string) ([]string, bool) {
	v, ok := c.Get(name)
	if !ok {
		return nil, false
	}
	switch arr := v.(type) {
	case []string:
		return arr, true
	case []interface{}:
		out := make([]string, 0, len(arr))
		for _, e := range arr {
			s, ok := e.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}

// SetMessageType overwrites the header's message type.
func (c *Container) SetMessageType(t string) {
	c.Header.MessageType = t
}

// SwapHeader swaps the source/target addressing in place.
func (c *Container) SwapHeader() {
	c.Header.Swap()
}

// Copy returns a copy of the Container. A deep copy also clones the body
// slice so further mutation of either copy is isolated.
func (c *Container) Copy(deep bool) *Container {
	cp := &Container{Header: c.Header}
	if deep {
		cp.body = make([]namedValue, len(c.body))
		copy(cp.body, c.body)
	} else {
		cp.body = c.body
	}
	return cp
}

// wireForm is the cbor-serialized shape of a Container: the header next to
// the body as parallel name/value arrays, so that the wire encoding doesn't
// carry Go-specific map ordering quirks.
type wireForm struct {
	Header Header
	Names  []string
	Values []cbor.RawMessage
}

// SerializeArray renders the Container to bytes, the serialize stage of
// the outbound packet pipeline (spec.md §4.2).
func (c *Container) SerializeArray() ([]byte, error) {
	wf := wireForm{Header: c.Header}
	for _, nv := range c.body {
		raw, err := cbor.Marshal(nv.Value)
		if err != nil {
			return nil, fmt.Errorf("container: marshal field %q: %w", nv.Name, err)
		}
		wf.Names = append(wf.Names, nv.Name)
		wf.Values = append(wf.Values, raw)
	}
	return cbor.Marshal(wf)
}

// FromBytes parses a Container from bytes, the deserialize stage of the
// inbound packet pipeline. allowCompat permits decoding payloads whose
// body contains fields not known to this reader (forward compatibility);
// when false, any decode anomaly on a body value is fatal.
func FromBytes(b []byte, allowCompat bool) (*Container, error) {
	var wf wireForm
	if err := cbor.Unmarshal(b, &wf); err != nil {
		return nil, fmt.Errorf("container: %w", err)
	}
	if len(wf.Names) != len(wf.Values) {
		return nil, fmt.Errorf("container: field name/value count mismatch")
	}

	c := &Container{Header: wf.Header}
	for i, name := range wf.Names {
		var v interface{}
		if err := cbor.Unmarshal(wf.Values[i], &v); err != nil {
			if allowCompat {
				continue
			}
			return nil, fmt.Errorf("container: decode field %q: %w", name, err)
		}
		c.body = append(c.body, namedValue{Name: name, Value: v})
	}
	return c, nil
}
