// AES-CTR symmetric encryption for the PubSub Aes256-CTR security policy
// family (OPC UA Part 14, 7.2.3). Unlike the Secure Channel's AES-CBC
// policies, PubSub messages are not padded: CTR mode's keystream XOR
// produces ciphertext of exactly the plaintext's length, which matters
// because DataSetMessage sizes are fixed by the published configuration.

package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"errors"
)

var (
	ErrAESCTRInvalidKeySize = errors.New("aesctr: invalid key size, must be 16, 24 or 32 bytes")
	ErrAESCTRInvalidIVSize  = errors.New("aesctr: invalid IV size, must be 16 bytes")
)

// AESCTR is a CTR-mode cipher instance used for PubSub payload encryption.
type AESCTR struct {
	block cipher.Block
}

// NewAESCTR creates an AES-CTR cipher for the given key. Accepts 128, 192
// or 256-bit keys; PubSub Aes256-CTR profiles use 256-bit keys.
func NewAESCTR(key []byte) (*AESCTR, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, ErrAESCTRInvalidKeySize
	}
	return &AESCTR{block: block}, nil
}

// Encrypt XORs plaintext with the AES-CTR keystream generated from iv.
// Encryption and decryption are the same operation in CTR mode.
func (c *AESCTR) Encrypt(iv, plaintext []byte) ([]byte, error) {
	if len(iv) != AESBlockSize {
		return nil, ErrAESCTRInvalidIVSize
	}
	ciphertext := make([]byte, len(plaintext))
	cipher.NewCTR(c.block, iv).XORKeyStream(ciphertext, plaintext)
	return ciphertext, nil
}

// Decrypt is Encrypt's inverse (CTR mode is involutive).
func (c *AESCTR) Decrypt(iv, ciphertext []byte) ([]byte, error) {
	return c.Encrypt(iv, ciphertext)
}

// AESCTREncrypt is a convenience function wrapping NewAESCTR+Encrypt.
func AESCTREncrypt(key, iv, plaintext []byte) ([]byte, error) {
	c, err := NewAESCTR(key)
	if err != nil {
		return nil, err
	}
	return c.Encrypt(iv, plaintext)
}

// AESCTRDecrypt is a convenience function wrapping NewAESCTR+Decrypt.
func AESCTRDecrypt(key, iv, ciphertext []byte) ([]byte, error) {
	c, err := NewAESCTR(key)
	if err != nil {
		return nil, err
	}
	return c.Decrypt(iv, ciphertext)
}
