package crypto

import (
	"encoding/binary"
	"errors"
)

// Message security sizes used across the symmetric security policies.
const (
	// SymmetricKeySize256 is the key length for the 256-bit AES policies.
	SymmetricKeySize256 = 32

	// AESBlockSize is the AES block size, also the IV size for AES-CBC.
	AESBlockSize = 16

	// SignatureSizeSHA256 is the HMAC-SHA256 signature length appended to
	// a signed chunk or PubSub dataset message.
	SignatureSizeSHA256 = 32
)

var ErrInvalidIVMaterial = errors.New("crypto: invalid IV seed material")

// BuildPubSubCTRIV constructs the 16-byte initialization vector used by the
// PubSub Aes256-CTR security policies (OPC UA Part 14, 7.2.3). The IV is
// built from the per-message nonce distributed in the network message's
// security header and a block counter that starts at 0 for the first AES
// block of the payload.
//
// Format: MessageNonce (4 bytes) || four zero bytes ||
// BlockCounter (8 bytes, big-endian).
func BuildPubSubCTRIV(messageNonce []byte, blockCounter uint64) ([]byte, error) {
	if len(messageNonce) != 4 {
		return nil, ErrInvalidIVMaterial
	}

	iv := make([]byte, AESBlockSize)
	copy(iv[0:4], messageNonce)
	binary.BigEndian.PutUint64(iv[8:16], blockCounter)
	return iv, nil
}

// BuildSecureChannelIV constructs the AES-CBC initialization vector for a
// symmetric Secure Channel chunk. Basic256Sha256 derives the IV directly
// from the key material via PSHA256 alongside the signing/encrypting keys
// (see DeriveChannelKeys); this helper exists for the rare case an IV must
// be rebuilt independently of key derivation, e.g. in tests.
func BuildSecureChannelIV(seed []byte) ([]byte, error) {
	if len(seed) < AESBlockSize {
		return nil, ErrInvalidIVMaterial
	}
	iv := make([]byte, AESBlockSize)
	copy(iv, seed[:AESBlockSize])
	return iv, nil
}
