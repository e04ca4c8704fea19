// Channel and PubSub security-key derivation.
//
// Both the Secure Channel symmetric security token and the PubSub group
// security context reduce to the same shape: a single master secret is
// distributed (via OpenSecureChannel's nonce exchange, or via a Security
// Key Service), and the signing key, encrypting key, and IV/key-nonce are
// split out of it with a labeled PRF rather than used directly.
package crypto

import (
	"encoding/binary"
	"errors"
)

var ErrInvalidMasterKeySize = errors.New("crypto: invalid master key size")

// Labels for PSHA256-derived sub-keys, distinguishing the three values
// split out of one master secret.
var (
	signingKeyLabel    = []byte("SigningKey")
	encryptingKeyLabel = []byte("EncryptingKey")
	keyNonceLabel      = []byte("KeyNonce")
)

// ChannelKeySet holds the signing key, encrypting key, and IV derived for
// one direction (client-to-server or server-to-client) of a Secure Channel
// symmetric security token.
type ChannelKeySet struct {
	SigningKey    []byte
	EncryptingKey []byte
	IV            []byte
}

// DeriveChannelKeys implements OPC UA Part 6, 6.7.5: derive the
// signing/encrypting/IV triple for one direction of a secure channel from
// a (secret, seed) nonce pair, where secret is the peer's nonce and seed is
// our own nonce (the two directions swap which nonce plays which role).
func DeriveChannelKeys(secret, seed []byte, signingKeyLen, encryptingKeyLen, ivLen int) (*ChannelKeySet, error) {
	if len(secret) == 0 || len(seed) == 0 {
		return nil, ErrInvalidMasterKeySize
	}

	total := signingKeyLen + encryptingKeyLen + ivLen
	material := PSHA256(secret, seed, total)

	return &ChannelKeySet{
		SigningKey:    append([]byte{}, material[:signingKeyLen]...),
		EncryptingKey: append([]byte{}, material[signingKeyLen:signingKeyLen+encryptingKeyLen]...),
		IV:            append([]byte{}, material[signingKeyLen+encryptingKeyLen:total]...),
	}, nil
}

// PubSubKeySet holds the signing key, encrypting key, and key-nonce derived
// for one SecurityGroup's current (or future) security key.
type PubSubKeySet struct {
	SigningKey    []byte
	EncryptingKey []byte
	KeyNonce      []byte
}

// DerivePubSubKeys splits a master SecurityKey (as distributed by a
// Security Key Service's GetSecurityKeys response) into the signing key,
// encrypting key, and 4-byte key-nonce used to build PubSub AES-CTR IVs.
// Each sub-key is derived independently with PSHA256 under a distinguishing
// label, rather than sliced directly out of the master key, so recovering
// one sub-key does not trivially expose the others.
func DerivePubSubKeys(masterKey []byte, signingKeyLen, encryptingKeyLen int) (*PubSubKeySet, error) {
	if len(masterKey) == 0 {
		return nil, ErrInvalidMasterKeySize
	}

	return &PubSubKeySet{
		SigningKey:    PSHA256(masterKey, signingKeyLabel, signingKeyLen),
		EncryptingKey: PSHA256(masterKey, encryptingKeyLabel, encryptingKeyLen),
		KeyNonce:      PSHA256(masterKey, keyNonceLabel, 4),
	}, nil
}

// PubSubMessageNonce builds the 4-byte per-message nonce field carried in a
// network message's security header, combining the group key-nonce with a
// monotonically increasing counter so repeated messages never reuse an IV.
func PubSubMessageNonce(keyNonce []byte, counter uint32) []byte {
	nonce := make([]byte, 4)
	binary.BigEndian.PutUint32(nonce, counter)
	for i := range nonce {
		nonce[i] ^= keyNonce[i%len(keyNonce)]
	}
	return nonce
}
