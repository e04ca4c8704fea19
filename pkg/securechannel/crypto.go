package securechannel

import (
	"github.com/opcua-go/stack/pkg/crypto"
	"github.com/opcua-go/stack/pkg/status"
)

// Symmetric key sizes for the Basic256Sha256 security policy (Part 7,
// Table 4), the one profile this client derives keys for.
const (
	signingKeyLen    = 32
	encryptingKeyLen = 32
	channelIVLen     = 16
)

// channelCrypto holds the two directions of symmetric key material
// derived from the OPN nonce exchange, and seals/unseals chunk bodies
// against it. Grounded on pkg/pubsub/security.go's Unseal: the same
// verify-then-decrypt mode dispatch, adapted from PubSub's AES-CTR
// payload cipher to Secure Conversation's AES-CBC chunk cipher (Part 6,
// 6.7.4 uses CBC, not CTR, for symmetric message protection).
type channelCrypto struct {
	mode SecurityMode
	send *crypto.ChannelKeySet // keys this client signs/encrypts outbound chunks with
	recv *crypto.ChannelKeySet // keys this client verifies/decrypts inbound chunks with
}

// deriveChannelCrypto implements Part 6, 6.7.5: each side derives its own
// sending key set from (peer nonce as secret, own nonce as seed) and its
// receiving key set from the reverse pairing, so both ends agree on both
// directions' keys without ever exchanging them directly.
func deriveChannelCrypto(mode SecurityMode, clientNonce, serverNonce []byte) (*channelCrypto, error) {
	if mode == SecurityModeNone {
		return &channelCrypto{mode: mode}, nil
	}
	if len(clientNonce) == 0 || len(serverNonce) == 0 {
		return nil, status.New(status.InvalidReceivedParameter, "non-None security mode requires both client and server nonce")
	}

	send, err := crypto.DeriveChannelKeys(serverNonce, clientNonce, signingKeyLen, encryptingKeyLen, channelIVLen)
	if err != nil {
		return nil, status.Wrap(status.EncodingError, "deriving client send keys", err)
	}
	recv, err := crypto.DeriveChannelKeys(clientNonce, serverNonce, signingKeyLen, encryptingKeyLen, channelIVLen)
	if err != nil {
		return nil, status.Wrap(status.EncodingError, "deriving client receive keys", err)
	}
	return &channelCrypto{mode: mode, send: send, recv: recv}, nil
}

// seal signs (and, for SignAndEncrypt, encrypts) the sequence header plus
// service body of one chunk, returning the bytes that follow the
// symmetric security header on the wire.
func (c *channelCrypto) seal(plaintext []byte) ([]byte, error) {
	if c.mode == SecurityModeNone {
		return plaintext, nil
	}

	body := plaintext
	if c.mode == SecurityModeSignAndEncrypt {
		cipher, err := crypto.NewAESCBC(c.send.EncryptingKey)
		if err != nil {
			return nil, status.Wrap(status.EncodingError, "building chunk cipher", err)
		}
		ciphertext, err := cipher.Encrypt(c.send.IV, plaintext)
		if err != nil {
			return nil, status.Wrap(status.EncodingError, "encrypting chunk", err)
		}
		body = ciphertext
	}

	sig := crypto.HMACSHA256Slice(c.send.SigningKey, body)
	return append(body, sig...), nil
}

// unseal verifies (and, for SignAndEncrypt, decrypts) a received chunk's
// body, returning the plaintext sequence header plus service body.
func (c *channelCrypto) unseal(data []byte) ([]byte, error) {
	if c.mode == SecurityModeNone {
		return data, nil
	}
	if len(data) < crypto.SignatureSizeSHA256 {
		return nil, status.New(status.InvalidReceivedParameter, "chunk shorter than its signature")
	}

	split := len(data) - crypto.SignatureSizeSHA256
	body, sig := data[:split], data[split:]
	expected := crypto.HMACSHA256Slice(c.recv.SigningKey, body)
	if !crypto.HMACEqual(sig, expected) {
		return nil, status.New(status.InvalidReceivedParameter, "chunk signature verification failed")
	}

	if c.mode == SecurityModeSignAndEncrypt {
		cipher, err := crypto.NewAESCBC(c.recv.EncryptingKey)
		if err != nil {
			return nil, status.Wrap(status.EncodingError, "building chunk cipher", err)
		}
		plaintext, err := cipher.Decrypt(c.recv.IV, body)
		if err != nil {
			return nil, status.Wrap(status.EncodingError, "decrypting chunk", err)
		}
		return plaintext, nil
	}
	return body, nil
}
