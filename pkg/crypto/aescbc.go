// AES-CBC symmetric encryption for the Secure Channel's Basic256Sha256
// security policy. Grounded on the same cipher.Block-wrapping shape as
// AESCTR, but requires PKCS#7-style padding since CBC only operates on
// whole blocks: the OPC UA wire format pads the plaintext chunk body out
// to a multiple of the block size before encrypting (Part 6, 6.7.2).

package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"errors"
)

var (
	ErrAESCBCInvalidKeySize = errors.New("aescbc: invalid key size, must be 16, 24 or 32 bytes")
	ErrAESCBCInvalidIVSize  = errors.New("aescbc: invalid IV size, must be 16 bytes")
	ErrAESCBCBadBlockSize   = errors.New("aescbc: ciphertext is not a multiple of the block size")
	ErrAESCBCBadPadding     = errors.New("aescbc: invalid padding")
)

// AESCBC is a CBC-mode cipher instance used for Secure Channel chunk bodies.
type AESCBC struct {
	block cipher.Block
}

// NewAESCBC creates an AES-CBC cipher for the given key.
func NewAESCBC(key []byte) (*AESCBC, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, ErrAESCBCInvalidKeySize
	}
	return &AESCBC{block: block}, nil
}

// Encrypt pads plaintext with PKCS#7 padding to a multiple of the block
// size and encrypts it with CBC mode using iv.
func (c *AESCBC) Encrypt(iv, plaintext []byte) ([]byte, error) {
	if len(iv) != AESBlockSize {
		return nil, ErrAESCBCInvalidIVSize
	}

	padded := pkcs7Pad(plaintext, AESBlockSize)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(c.block, iv).CryptBlocks(ciphertext, padded)
	return ciphertext, nil
}

// Decrypt decrypts a CBC-mode ciphertext and strips its PKCS#7 padding.
func (c *AESCBC) Decrypt(iv, ciphertext []byte) ([]byte, error) {
	if len(iv) != AESBlockSize {
		return nil, ErrAESCBCInvalidIVSize
	}
	if len(ciphertext) == 0 || len(ciphertext)%AESBlockSize != 0 {
		return nil, ErrAESCBCBadBlockSize
	}

	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(c.block, iv).CryptBlocks(plaintext, ciphertext)
	return pkcs7Unpad(plaintext)
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padded := make([]byte, len(data)+padLen)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(padLen)
	}
	return padded
}

func pkcs7Unpad(data []byte) ([]byte, error) {
	n := len(data)
	if n == 0 {
		return nil, ErrAESCBCBadPadding
	}
	padLen := int(data[n-1])
	if padLen == 0 || padLen > AESBlockSize || padLen > n {
		return nil, ErrAESCBCBadPadding
	}
	for i := n - padLen; i < n; i++ {
		if data[i] != byte(padLen) {
			return nil, ErrAESCBCBadPadding
		}
	}
	return data[:n-padLen], nil
}
