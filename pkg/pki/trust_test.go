package pki

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func selfSignedCert(t *testing.T, appURI string, notBefore, notAfter time.Time) []byte {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "test-server"},
		NotBefore:    notBefore,
		NotAfter:     notAfter,
		KeyUsage:     x509.KeyUsageDigitalSignature,
		IsCA:         true,
		BasicConstraintsValid: true,
	}
	if appURI != "" {
		u, err := url.Parse(appURI)
		require.NoError(t, err)
		tmpl.URIs = []*url.URL{u}
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	return der
}

func TestValidateTrustedSelfSignedRoot(t *testing.T) {
	der := selfSignedCert(t, "urn:example:server", time.Now().Add(-time.Hour), time.Now().Add(time.Hour))

	tl := NewTrustList()
	require.NoError(t, tl.AddRoot(der))

	info, err := tl.Validate(der, time.Now())
	require.NoError(t, err)
	require.Equal(t, "urn:example:server", info.ApplicationURI)
	require.NoError(t, CheckApplicationURI(info, "urn:example:server"))
	require.Error(t, CheckApplicationURI(info, "urn:example:other"))
}

func TestValidateUntrustedRoot(t *testing.T) {
	der := selfSignedCert(t, "urn:example:server", time.Now().Add(-time.Hour), time.Now().Add(time.Hour))

	tl := NewTrustList()
	_, err := tl.Validate(der, time.Now())
	require.ErrorIs(t, err, ErrCertificateUntrusted)
}

func TestValidateExpiredCertificate(t *testing.T) {
	der := selfSignedCert(t, "urn:example:server", time.Now().Add(-2*time.Hour), time.Now().Add(-time.Hour))

	tl := NewTrustList()
	require.NoError(t, tl.AddRoot(der))

	_, err := tl.Validate(der, time.Now())
	require.ErrorIs(t, err, ErrCertificateExpired)
}

func TestValidateRejectedCertificate(t *testing.T) {
	der := selfSignedCert(t, "urn:example:server", time.Now().Add(-time.Hour), time.Now().Add(time.Hour))

	tl := NewTrustList()
	require.NoError(t, tl.AddRoot(der))
	tl.Reject(der)

	_, err := tl.Validate(der, time.Now())
	require.ErrorIs(t, err, ErrCertificateRevoked)
}
