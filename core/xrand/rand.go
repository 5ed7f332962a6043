// Package xrand centralizes the two random sources the fabric needs: a
// crypto-grade Reader for key/iv and nonce generation, and a seeded
// math/rand for non-adversarial jitter such as reconnect backoff. This
// mirrors the teacher's own core/crypto/rand split (rand.Reader,
// rand.NewMath()) used throughout client2/connection.go and
// sockatz/common/conn.go.
package xrand

import (
	"crypto/rand"
	"encoding/binary"
	mrand "math/rand"
)

// Reader is the crypto-grade randomness source used for session key/iv
// generation and nonces.
var Reader = rand.Reader

// NewMath returns a math/rand source seeded from Reader, suitable for
// jittering retry delays and selecting among equally-valid candidates
// where cryptographic unpredictability isn't required.
func NewMath() *mrand.Rand {
	var seed [8]byte
	if _, err := rand.Read(seed[:]); err != nil {
		return mrand.New(mrand.NewSource(0))
	}
	return mrand.New(mrand.NewSource(int64(binary.LittleEndian.Uint64(seed[:]))))
}
