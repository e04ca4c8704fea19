// RSA asymmetric crypto for the Basic256Sha256 and Aes256Sha256RsaPss
// channel security policies' OpenSecureChannel exchange: the client
// encrypts its nonce/key material to the server's public key with
// RSA-OAEP, and both sides sign/verify the asymmetric request and response
// bodies with RSA-PSS. Grounded on the same keypair-struct-with-
// Sign/Verify/Encrypt/Decrypt-methods shape as the ECC provider in p256.go.

package crypto

import (
	stdcrypto "crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"errors"
)

var (
	ErrInvalidRSAKey = errors.New("rsa: invalid key material")
)

// RSAKeyPair wraps an RSA private key used for asymmetric channel security.
type RSAKeyPair struct {
	private *rsa.PrivateKey
}

// NewRSAKeyPairFromPKCS1 parses a DER-encoded PKCS#1 RSA private key, the
// format OPC UA application instance certificates' private keys are most
// commonly stored in.
func NewRSAKeyPairFromPKCS1(der []byte) (*RSAKeyPair, error) {
	key, err := x509.ParsePKCS1PrivateKey(der)
	if err != nil {
		return nil, ErrInvalidRSAKey
	}
	return &RSAKeyPair{private: key}, nil
}

// PublicKey returns the DER-encoded PKIX public key.
func (kp *RSAKeyPair) PublicKey() ([]byte, error) {
	return x509.MarshalPKIXPublicKey(&kp.private.PublicKey)
}

// RSAOAEPEncrypt encrypts plaintext to a peer's RSA public key using
// RSA-OAEP with SHA-256, as required for the asymmetric portion of an
// OpenSecureChannel request under the RSA security policies.
func RSAOAEPEncrypt(peerPublicKeyDER, plaintext []byte) ([]byte, error) {
	pub, err := parseRSAPublicKey(peerPublicKeyDER)
	if err != nil {
		return nil, err
	}
	return rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, plaintext, nil)
}

// RSAOAEPDecrypt decrypts ciphertext encrypted with RSAOAEPEncrypt using
// our own private key.
func (kp *RSAKeyPair) RSAOAEPDecrypt(ciphertext []byte) ([]byte, error) {
	return rsa.DecryptOAEP(sha256.New(), rand.Reader, kp.private, ciphertext, nil)
}

// RSAPSSSign signs a SHA-256 digest of message with RSA-PSS, used to sign
// the asymmetric OpenSecureChannel request/response body.
func (kp *RSAKeyPair) RSAPSSSign(message []byte) ([]byte, error) {
	digest := SHA256(message)
	return rsa.SignPSS(rand.Reader, kp.private, stdcrypto.SHA256, digest[:], &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthEqualsHash,
	})
}

// RSAPSSVerify verifies an RSA-PSS signature produced by RSAPSSSign against
// the signer's public key.
func RSAPSSVerify(peerPublicKeyDER, message, signature []byte) error {
	pub, err := parseRSAPublicKey(peerPublicKeyDER)
	if err != nil {
		return err
	}
	digest := SHA256(message)
	return rsa.VerifyPSS(pub, stdcrypto.SHA256, digest[:], signature, &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthEqualsHash,
	})
}

func parseRSAPublicKey(der []byte) (*rsa.PublicKey, error) {
	pub, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, ErrInvalidRSAKey
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, ErrInvalidRSAKey
	}
	return rsaPub, nil
}
