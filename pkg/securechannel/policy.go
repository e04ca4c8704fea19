package securechannel

// Security policy URIs a Client's asymmetric OPN handshake recognizes
// (Part 7, Annex A/D). SecurityPolicyNone carries no signature or
// encryption; the two non-None policies differ only in which key pair
// and algorithm family sealAsymmetric/unsealAsymmetricResponse dispatch
// to, not in how the symmetric phase derives channel keys afterward.
const (
	SecurityPolicyNone           = "http://opcfoundation.org/UA/SecurityPolicy#None"
	SecurityPolicyBasic256Sha256 = "http://opcfoundation.org/UA/SecurityPolicy#Basic256Sha256"
	SecurityPolicyECCNistP256    = "http://opcfoundation.org/UA/SecurityPolicy#ECC_nistP256"
)

// isECCPolicy reports whether uri names an ECC channel policy, whose
// asymmetric handshake signs with ECDSA and derives its encryption key
// from an ECDH shared secret rather than RSA-OAEP/RSA-PSS.
func isECCPolicy(uri string) bool {
	return uri == SecurityPolicyECCNistP256
}
