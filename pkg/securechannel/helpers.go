package securechannel

import (
	"crypto/rand"
	"crypto/sha1"
	"crypto/x509"

	"github.com/opcua-go/stack/pkg/builtin"
	"github.com/opcua-go/stack/pkg/buffer"
	"github.com/opcua-go/stack/pkg/status"
)

func readRandom(b []byte) (int, error) {
	return rand.Read(b)
}

// thumbprint computes the SHA-1 digest Part 6 uses for the
// ReceiverCertificateThumbprint field. SHA-1 is the algorithm OPC UA's
// certificate-thumbprint convention fixes; it has no other use in this
// engine, so it is not part of pkg/crypto's API surface.
func thumbprint(certDER []byte) []byte {
	if len(certDER) == 0 {
		return nil
	}
	sum := sha1.Sum(certDER)
	return sum[:]
}

// serverPublicKeyDER extracts the PKIX-encoded public key from an x509
// certificate's DER bytes, for RSA-OAEP encryption against the peer.
func serverPublicKeyDER(certDER []byte) []byte {
	cert, err := x509.ParseCertificate(certDER)
	if err != nil {
		return nil
	}
	der, err := x509.MarshalPKIXPublicKey(cert.PublicKey)
	if err != nil {
		return nil
	}
	return der
}

// decodeAsymHeaderPrefix decodes an AsymmetricSecurityHeader from the
// front of data, returning the header and the remaining (signed/
// encrypted) bytes.
func decodeAsymHeaderPrefix(data []byte) (AsymmetricSecurityHeader, []byte, error) {
	buf := buffer.Wrap(data)
	r := builtin.NewReader(buf)
	hdr, err := DecodeAsymmetricSecurityHeader(r)
	if err != nil {
		return hdr, nil, status.Wrap(status.EncodingError, "decoding asymmetric security header", err)
	}
	return hdr, buf.Unread(), nil
}
