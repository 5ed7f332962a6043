package aead

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key, iv, err := CreateKey()
	require.NoError(t, err)

	plaintext := []byte("the quick brown fox")
	ciphertext, err := Encrypt(plaintext, key, iv)
	require.NoError(t, err)
	require.NotEqual(t, plaintext, ciphertext)

	got, err := Decrypt(ciphertext, key, iv)
	require.NoError(t, err)
	require.Equal(t, plaintext, got)
}

func TestDecryptWrongKeyFails(t *testing.T) {
	key, iv, err := CreateKey()
	require.NoError(t, err)
	other, _, err := CreateKey()
	require.NoError(t, err)

	ciphertext, err := Encrypt([]byte("secret"), key, iv)
	require.NoError(t, err)

	_, err = Decrypt(ciphertext, other, iv)
	require.ErrorIs(t, err, ErrAuthenticationFailed)
}

func TestDeriveKeyIsDeterministic(t *testing.T) {
	secret := []byte("shared-connection-key")
	k1, err := DeriveKey(secret, []byte("salt"), []byte("session"))
	require.NoError(t, err)
	k2, err := DeriveKey(secret, []byte("salt"), []byte("session"))
	require.NoError(t, err)
	require.Equal(t, k1, k2)
	require.Len(t, k1, KeySize)
}
