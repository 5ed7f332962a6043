package filestore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.bin")
	data := []byte("file chunk payload")

	require.True(t, Save(path, data))
	got, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, data, got)
}

func TestSaveEncryptedRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.enc")
	data := []byte("sensitive file contents")
	passphrase := []byte("correct horse battery staple")

	require.NoError(t, SaveEncrypted(path, data, passphrase))
	got, err := LoadEncrypted(path, passphrase)
	require.NoError(t, err)
	require.Equal(t, data, got)

	_, err = LoadEncrypted(path, []byte("wrong passphrase"))
	require.Error(t, err)
}

func TestSaveErrOnUnwritablePath(t *testing.T) {
	err := SaveErr("/nonexistent-dir-xyz/out.bin", []byte("x"))
	require.Error(t, err)
}
