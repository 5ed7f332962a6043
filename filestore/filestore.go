// Package filestore implements the file collaborator of spec.md §6:
// Load(path) -> bytes, Save(path, bytes) -> bool, plus an optional
// passphrase-wrapped save path carried over from the original disk.go
// StateWriter's encrypted-statefile idiom (argon2 key stretch + secretbox
// seal with a random nonce prefix). The file pipeline uses Load and SaveErr
// only; it does not call the passphrase-wrapped pair.
package filestore

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/crypto/argon2"

	"github.com/kcenon/messaging-fabric/core/aead"
	"github.com/kcenon/messaging-fabric/core/xrand"
)

// Load reads the file at path in full, the load() half of the file
// collaborator.
func Load(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// Save writes data to path, creating or truncating it. It reports success
// as a bool per spec.md §6's save() contract; callers that need the
// underlying error for logging should use SaveErr.
func Save(path string, data []byte) bool {
	return SaveErr(path, data) == nil
}

// SaveErr is Save with the error preserved, used by callers (the file
// pipeline's write-file stage) that need to log the failure per spec.md
// §7's "Application errors" rule.
func SaveErr(path string, data []byte) error {
	return os.WriteFile(path, data, 0o600)
}

const (
	keySize   = 32
	nonceSize = 24
)

// SaveEncrypted stretches passphrase with argon2 and seals data with the
// derived key before writing it to path, nonce-prefixed, matching the
// original disk.go StateWriter's statefile format. This is the one
// remaining place in the fabric where a passphrase (rather than a
// negotiated session key) derives encryption key material.
func SaveEncrypted(path string, data, passphrase []byte) error {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(xrand.Reader, nonce[:]); err != nil {
		return fmt.Errorf("filestore: nonce: %w", err)
	}
	key := argon2.Key(passphrase, nil, 3, 32*1024, 4, keySize)
	sealed, err := aead.Encrypt(data, key, nonce[:])
	if err != nil {
		return fmt.Errorf("filestore: seal: %w", err)
	}
	return SaveErr(path, append(nonce[:], sealed...))
}

// LoadEncrypted reverses SaveEncrypted.
func LoadEncrypted(path string, passphrase []byte) ([]byte, error) {
	raw, err := Load(path)
	if err != nil {
		return nil, err
	}
	if len(raw) < nonceSize {
		return nil, fmt.Errorf("filestore: file too short to contain a nonce")
	}
	nonce := raw[:nonceSize]
	sealed := raw[nonceSize:]
	key := argon2.Key(passphrase, nil, 3, 32*1024, 4, keySize)
	return aead.Decrypt(sealed, key, nonce)
}
