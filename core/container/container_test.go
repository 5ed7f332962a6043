package container

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSerializeDeserializeRoundTrip(t *testing.T) {
	c := New(Header{
		MessageType: "echo",
		SourceID:    "A",
		SourceSubID: "127.0.0.1:1000",
		TargetID:    "S",
		TargetSubID: "127.0.0.1:2000",
	})
	c.Set("response", false)
	c.Set("snipping_targets", []string{"x", "y"})

	raw, err := c.SerializeArray()
	require.NoError(t, err)

	got, err := FromBytes(raw, false)
	require.NoError(t, err)
	require.Equal(t, c.Header, got.Header)

	resp, ok := got.GetBool("response")
	require.True(t, ok)
	require.False(t, resp)

	targets, ok := got.ValueArray("snipping_targets")
	require.True(t, ok)
	require.Equal(t, []string{"x", "y"}, targets)
}

func TestSwapHeader(t *testing.T) {
	c := New(Header{SourceID: "A", SourceSubID: "1", TargetID: "B", TargetSubID: "2"})
	c.SwapHeader()
	require.Equal(t, "B", c.Header.SourceID)
	require.Equal(t, "A", c.Header.TargetID)
	require.Equal(t, "2", c.Header.SourceSubID)
	require.Equal(t, "1", c.Header.TargetSubID)
}

func TestCopyDeepIsolatesBody(t *testing.T) {
	c := New(Header{})
	c.Set("a", "1")
	cp := c.Copy(true)
	cp.Set("a", "2")

	orig, _ := c.GetString("a")
	copied, _ := cp.GetString("a")
	require.Equal(t, "1", orig)
	require.Equal(t, "2", copied)
}

func TestEmptyBodyRoundTrip(t *testing.T) {
	c := New(Header{MessageType: "noop"})
	raw, err := c.SerializeArray()
	require.NoError(t, err)
	got, err := FromBytes(raw, false)
	require.NoError(t, err)
	require.Equal(t, "noop", got.Header.MessageType)
}
