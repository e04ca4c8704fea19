package crypto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHMACSHA256RoundTrip(t *testing.T) {
	key := []byte("0123456789abcdef")
	mac := HMACSHA256Slice(key, []byte("hello"))
	require.Len(t, mac, SHA256LenBytes)
	require.True(t, HMACEqual(mac, HMACSHA256Slice(key, []byte("hello"))))
	require.False(t, HMACEqual(mac, HMACSHA256Slice(key, []byte("world"))))
}

func TestPSHA256Deterministic(t *testing.T) {
	secret := []byte("secret-material")
	seed := []byte("seed-material")

	a := PSHA256(secret, seed, 48)
	b := PSHA256(secret, seed, 48)
	require.Equal(t, a, b)
	require.Len(t, a, 48)

	c := PSHA256(secret, []byte("different-seed"), 48)
	require.NotEqual(t, a, c)
}

func TestDeriveChannelKeys(t *testing.T) {
	clientNonce := make([]byte, 32)
	serverNonce := make([]byte, 32)
	for i := range clientNonce {
		clientNonce[i] = byte(i)
		serverNonce[i] = byte(255 - i)
	}

	ks, err := DeriveChannelKeys(serverNonce, clientNonce, SHA256LenBytes, SymmetricKeySize256, AESBlockSize)
	require.NoError(t, err)
	require.Len(t, ks.SigningKey, SHA256LenBytes)
	require.Len(t, ks.EncryptingKey, SymmetricKeySize256)
	require.Len(t, ks.IV, AESBlockSize)
}

func TestAESCTRRoundTrip(t *testing.T) {
	key := make([]byte, SymmetricKeySize256)
	iv := make([]byte, AESBlockSize)
	plaintext := []byte("pubsub dataset message payload")

	ciphertext, err := AESCTREncrypt(key, iv, plaintext)
	require.NoError(t, err)
	require.Len(t, ciphertext, len(plaintext))

	decrypted, err := AESCTRDecrypt(key, iv, ciphertext)
	require.NoError(t, err)
	require.Equal(t, plaintext, decrypted)
}

func TestAESCBCRoundTrip(t *testing.T) {
	key := make([]byte, SymmetricKeySize256)
	iv := make([]byte, AESBlockSize)
	plaintext := []byte("secure channel chunk body, odd length 13")

	cbc, err := NewAESCBC(key)
	require.NoError(t, err)

	ciphertext, err := cbc.Encrypt(iv, plaintext)
	require.NoError(t, err)
	require.Zero(t, len(ciphertext)%AESBlockSize)

	decrypted, err := cbc.Decrypt(iv, ciphertext)
	require.NoError(t, err)
	require.Equal(t, plaintext, decrypted)
}

func TestP256ECDHAgreement(t *testing.T) {
	a, err := P256GenerateKeyPair()
	require.NoError(t, err)
	b, err := P256GenerateKeyPair()
	require.NoError(t, err)

	secretA, err := P256ECDH(a, b.P256PublicKey())
	require.NoError(t, err)
	secretB, err := P256ECDH(b, a.P256PublicKey())
	require.NoError(t, err)
	require.Equal(t, secretA, secretB)
}

func TestP256SignVerify(t *testing.T) {
	kp, err := P256GenerateKeyPair()
	require.NoError(t, err)

	msg := []byte("OpenSecureChannel request body")
	sig, err := P256Sign(kp, msg)
	require.NoError(t, err)

	ok, err := P256Verify(kp.P256PublicKey(), msg, sig)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestDerivePubSubKeys(t *testing.T) {
	master := make([]byte, 32)
	ks, err := DerivePubSubKeys(master, SHA256LenBytes, SymmetricKeySize256)
	require.NoError(t, err)
	require.Len(t, ks.SigningKey, SHA256LenBytes)
	require.Len(t, ks.EncryptingKey, SymmetricKeySize256)
	require.Len(t, ks.KeyNonce, 4)
}
