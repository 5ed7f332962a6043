// Package aead implements the cryptor collaborator of spec.md §6:
// Encrypt/Decrypt(bytes, key, iv) and CreateKey() (key, iv). It is
// grounded in the original disk.go StateWriter's use of
// golang.org/x/crypto/nacl/secretbox for authenticated symmetric
// encryption, and in map/client/stream.go's use of hkdf to derive a
// stream key from shared entropy before handing it to secretbox.
package aead

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"hash"
	"io"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/nacl/secretbox"

	"github.com/kcenon/messaging-fabric/core/xrand"
)

func newSHA256() hash.Hash { return sha256.New() }

const (
	// KeySize is the secretbox key size.
	KeySize = 32
	// IVSize is the nonce size secretbox expects.
	IVSize = 24
)

// ErrCiphertextTooShort is returned when Decrypt is given input shorter
// than the minimum possible ciphertext.
var ErrCiphertextTooShort = errors.New("aead: ciphertext too short")

// ErrAuthenticationFailed is returned when Decrypt's authentication tag
// check fails.
var ErrAuthenticationFailed = errors.New("aead: message authentication failed")

// CreateKey generates a fresh (key, iv) pair for a freshly confirmed
// session (spec.md §4.3: "If encrypt_mode is enabled, generate a fresh
// (key, iv) pair").
func CreateKey() (key, iv []byte, err error) {
	key = make([]byte, KeySize)
	if _, err = io.ReadFull(xrand.Reader, key); err != nil {
		return nil, nil, fmt.Errorf("aead: generate key: %w", err)
	}
	iv = make([]byte, IVSize)
	if _, err = io.ReadFull(xrand.Reader, iv); err != nil {
		return nil, nil, fmt.Errorf("aead: generate iv: %w", err)
	}
	return key, iv, nil
}

// DeriveKey stretches an arbitrary-length shared secret into a KeySize
// key using hkdf, the idiom map/client/stream.go uses to turn a Diffie-
// Hellman output into a secretbox key. It is available to callers that
// need a deterministic (not freshly random) key; the session handshake
// does not call it and installs a fresh CreateKey pair instead.
func DeriveKey(secret, salt, info []byte) ([]byte, error) {
	h := hkdf.New(newSHA256, secret, salt, info)
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(h, key); err != nil {
		return nil, fmt.Errorf("aead: derive key: %w", err)
	}
	return key, nil
}

// Encrypt seals plaintext under key, using iv as the secretbox nonce.
// The returned ciphertext includes secretbox's authentication tag.
func Encrypt(plaintext, key, iv []byte) ([]byte, error) {
	var k [KeySize]byte
	var n [IVSize]byte
	if len(key) != KeySize || len(iv) != IVSize {
		return nil, fmt.Errorf("aead: key/iv must be %d/%d bytes", KeySize, IVSize)
	}
	copy(k[:], key)
	copy(n[:], iv)
	return secretbox.Seal(nil, plaintext, &n, &k), nil
}

// Decrypt opens ciphertext produced by Encrypt with the same key and iv.
func Decrypt(ciphertext, key, iv []byte) ([]byte, error) {
	var k [KeySize]byte
	var n [IVSize]byte
	if len(key) != KeySize || len(iv) != IVSize {
		return nil, fmt.Errorf("aead: key/iv must be %d/%d bytes", KeySize, IVSize)
	}
	if len(ciphertext) < secretbox.Overhead {
		return nil, ErrCiphertextTooShort
	}
	copy(k[:], key)
	copy(n[:], iv)
	plaintext, ok := secretbox.Open(nil, ciphertext, &n, &k)
	if !ok {
		return nil, ErrAuthenticationFailed
	}
	return plaintext, nil
}
