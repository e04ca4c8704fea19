package crypto

import (
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/hkdf"
)

// PSHA256 implements the P_SHA256(secret, seed) pseudo-random function
// defined by OPC UA Part 6, 6.7.5 (the same construction as the TLS 1.0/1.1
// PRF with SHA-256 as the hash). It is the sole key-derivation primitive
// symmetric security policies use to turn a ClientNonce/ServerNonce pair
// into signing keys, encrypting keys, and initialization vectors.
//
//	A(0) = seed
//	A(i) = HMAC_SHA256(secret, A(i-1))
//	P_SHA256(secret, seed) = HMAC_SHA256(secret, A(1) || seed) ||
//	                         HMAC_SHA256(secret, A(2) || seed) || ...
func PSHA256(secret, seed []byte, length int) []byte {
	out := make([]byte, 0, length+SHA256LenBytes)

	a := seed
	for len(out) < length {
		a = HMACSHA256Slice(secret, a)
		block := HMACSHA256Slice(secret, append(append([]byte{}, a...), seed...))
		out = append(out, block...)
	}

	return out[:length]
}

// HKDFSHA256 derives key material using HKDF-SHA256 (RFC 5869). Used only
// by the ECC_nistP256 channel security policy to expand an ECDH shared
// secret into signing/encrypting keys; the RSA-based policies use PSHA256
// instead, matching what OPC UA Part 6 specifies for each policy family.
func HKDFSHA256(inputKey, salt, info []byte, length int) ([]byte, error) {
	reader := hkdf.New(sha256.New, inputKey, salt, info)
	result := make([]byte, length)
	if _, err := io.ReadFull(reader, result); err != nil {
		return nil, err
	}
	return result, nil
}
