// Package crypto provides the cryptographic primitives behind the OPC UA
// security policies used by the Secure Channel and PubSub layers: hashing,
// HMAC signing, symmetric encryption (AES-CBC, AES-CTR), asymmetric
// encryption and signing (RSA, ECDSA/ECDH P-256), and the key-derivation
// function defined by OPC UA Part 6, 6.7.5.
package crypto

import (
	"crypto/sha256"
	"hash"
)

// SHA-256 digest sizes, used throughout the Basic256Sha256 and
// Aes256Sha256RsaPss security policies.
const (
	SHA256LenBits  = 256
	SHA256LenBytes = 32
)

// SHA256 computes the SHA-256 digest of a message.
func SHA256(message []byte) [SHA256LenBytes]byte {
	return sha256.Sum256(message)
}

// SHA256Slice computes the SHA-256 digest and returns it as a slice.
func SHA256Slice(message []byte) []byte {
	h := sha256.Sum256(message)
	return h[:]
}

// NewSHA256 returns a hash.Hash for computing a SHA-256 digest incrementally,
// e.g. over a certificate thumbprint spanning multiple Write calls.
func NewSHA256() hash.Hash {
	return sha256.New()
}
