package compressor

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCompressDecompressRoundTrip(t *testing.T) {
	data := bytes.Repeat([]byte("messaging-fabric "), 500)
	compressed, err := Compress(data, 1024)
	require.NoError(t, err)
	require.Less(t, len(compressed), len(data))

	got, err := Decompress(compressed, 1024)
	require.NoError(t, err)
	require.Equal(t, data, got)
}

func TestCompressEmpty(t *testing.T) {
	compressed, err := Compress(nil, 1024)
	require.NoError(t, err)
	got, err := Decompress(compressed, 1024)
	require.NoError(t, err)
	require.Empty(t, got)
}
