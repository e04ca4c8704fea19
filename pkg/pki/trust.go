// Package pki implements the X.509 certificate trust evaluation a Secure
// Channel client performs against a server's ApplicationInstanceCertificate
// before accepting an OpenSecureChannel response (spec §4.6, certificate
// validation): a validator-function shape, an error-vars-plus-chain-walk
// structure, and an extract-peer-info step after a successful chain check,
// built on stdlib crypto/x509 chain verification since OPC UA certificates
// are plain X.509 DER.
package pki

import (
	"crypto/ecdsa"
	"crypto/x509"
	"errors"
	"time"
)

var (
	ErrCertificateParseFailed = errors.New("pki: failed to parse certificate")
	ErrCertificateExpired     = errors.New("pki: certificate is expired or not yet valid")
	ErrCertificateUntrusted   = errors.New("pki: certificate chain does not terminate at a trusted root")
	ErrCertificateRevoked     = errors.New("pki: certificate is in the rejected list")
	ErrHostNameMismatch       = errors.New("pki: certificate subject does not match expected application URI")
)

// TrustList holds the trusted root/intermediate CA certificates and the
// explicitly rejected peer certificates a deployment is configured with
// (spec External Interfaces: PKI trust list).
type TrustList struct {
	roots         *x509.CertPool
	intermediates *x509.CertPool
	rejectedSHA1  map[string]bool
}

// NewTrustList creates an empty TrustList. AddRoot/AddIntermediate/Reject
// populate it before first use.
func NewTrustList() *TrustList {
	return &TrustList{
		roots:         x509.NewCertPool(),
		intermediates: x509.NewCertPool(),
		rejectedSHA1:  make(map[string]bool),
	}
}

// AddRoot registers a trusted root CA certificate.
func (t *TrustList) AddRoot(der []byte) error {
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return ErrCertificateParseFailed
	}
	t.roots.AddCert(cert)
	return nil
}

// AddIntermediate registers a trusted intermediate CA certificate.
func (t *TrustList) AddIntermediate(der []byte) error {
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return ErrCertificateParseFailed
	}
	t.intermediates.AddCert(cert)
	return nil
}

// Reject marks a peer certificate's raw DER bytes as explicitly untrusted,
// overriding an otherwise-valid chain (spec: operator-maintained reject
// list).
func (t *TrustList) Reject(der []byte) {
	t.rejectedSHA1[fingerprint(der)] = true
}

// PeerInfo is what a successful Validate call extracts from the peer
// certificate.
type PeerInfo struct {
	ApplicationURI string
	NotBefore      time.Time
	NotAfter       time.Time
}

// Validate parses peerDER and checks it against t: rejected list first,
// then validity period, then chain-of-trust up to a registered root. On
// success it returns the peer's identifying fields for the caller to
// cross-check against the endpoint it dialed.
func (t *TrustList) Validate(peerDER []byte, now time.Time) (*PeerInfo, error) {
	if t.rejectedSHA1[fingerprint(peerDER)] {
		return nil, ErrCertificateRevoked
	}

	cert, err := x509.ParseCertificate(peerDER)
	if err != nil {
		return nil, ErrCertificateParseFailed
	}

	if now.Before(cert.NotBefore) || now.After(cert.NotAfter) {
		return nil, ErrCertificateExpired
	}

	opts := x509.VerifyOptions{
		Roots:         t.roots,
		Intermediates: t.intermediates,
		CurrentTime:   now,
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	}
	if _, err := cert.Verify(opts); err != nil {
		return nil, ErrCertificateUntrusted
	}

	var appURI string
	for _, uri := range cert.URIs {
		appURI = uri.String()
		break
	}

	return &PeerInfo{
		ApplicationURI: appURI,
		NotBefore:      cert.NotBefore,
		NotAfter:       cert.NotAfter,
	}, nil
}

// CheckApplicationURI verifies the peer certificate's URI SAN matches the
// application URI advertised in the endpoint description, per Part 6
// 6.1.3's requirement that they be identical.
func CheckApplicationURI(info *PeerInfo, expected string) error {
	if info.ApplicationURI != expected {
		return ErrHostNameMismatch
	}
	return nil
}

// ExtractECDSAPublicKey parses der and returns its P-256 public key in
// uncompressed form (0x04 || X || Y), for the ECC_nistP256 channel policy's
// asymmetric handshake, which signs and derives shared secrets directly
// against the peer certificate's key rather than a separately negotiated
// one.
func ExtractECDSAPublicKey(der []byte) ([]byte, error) {
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, ErrCertificateParseFailed
	}
	pub, ok := cert.PublicKey.(*ecdsa.PublicKey)
	if !ok {
		return nil, errors.New("pki: certificate public key is not ECDSA")
	}

	out := make([]byte, 65)
	out[0] = 0x04
	xBytes := pub.X.Bytes()
	yBytes := pub.Y.Bytes()
	copy(out[1+32-len(xBytes):33], xBytes)
	copy(out[33+32-len(yBytes):], yBytes)
	return out, nil
}

func fingerprint(der []byte) string {
	// A plain byte-for-byte key (rather than a cryptographic digest) is
	// sufficient here: the reject list only ever needs exact-match
	// lookup against DER the caller itself supplied via Reject.
	return string(der)
}
