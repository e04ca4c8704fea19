// Per-group security context lookup and message authentication/decryption
// (spec §4.5 "Security resolution"). Shaped after a
// GroupContext/GroupContext-config pattern: a
// pre-provisioned symmetric key bundle keyed by a composite identity, with
// Decrypt delegating to a shared crypto primitive rather than re-deriving
// keys per message.
package pubsub

import (
	"crypto/aes"
	"fmt"
	"sync"

	"github.com/opcua-go/stack/pkg/crypto"
	"github.com/opcua-go/stack/pkg/status"
)

// SecurityMode is the per-writer-group message protection level (Part 14,
// Table 76).
type SecurityMode byte

const (
	SecurityModeNone SecurityMode = iota
	SecurityModeSign
	SecurityModeSignAndEncrypt
)

// SecurityContext is the provisioned key material and mode for one
// (token id, publisher id, writer group id) tuple. The engine manages
// exactly one active token per group (spec.md §4.5): rotation replaces the
// entry rather than keeping a current/previous pair.
type SecurityContext struct {
	Mode SecurityMode
	Keys *crypto.PubSubKeySet
}

// contextKey identifies a SecurityContext by the three fields spec.md's
// lookup uses.
type contextKey struct {
	tokenID       uint32
	publisherID   string
	writerGroupID uint16
}

// SecurityContextTable is the subscriber's two-level security index
// (spec §4.2 "Subscriber security context"), flattened to a single map
// keyed by the full (token, publisher, group) tuple since lookup is always
// by the full key, never by publisher alone.
type SecurityContextTable struct {
	mu       sync.RWMutex
	contexts map[contextKey]*SecurityContext
}

// NewSecurityContextTable creates an empty table.
func NewSecurityContextTable() *SecurityContextTable {
	return &SecurityContextTable{contexts: make(map[contextKey]*SecurityContext)}
}

// Set provisions (or replaces) the security context for one group.
func (t *SecurityContextTable) Set(tokenID uint32, publisherID string, writerGroupID uint16, ctx *SecurityContext) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.contexts[contextKey{tokenID, publisherID, writerGroupID}] = ctx
}

// Remove drops a group's security context, e.g. on token revocation.
func (t *SecurityContextTable) Remove(tokenID uint32, publisherID string, writerGroupID uint16) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.contexts, contextKey{tokenID, publisherID, writerGroupID})
}

// Resolve looks up the context for nm, returning (nil, false) when none is
// configured — per spec.md, that means the message is not addressed to
// this subscriber and must be dropped silently rather than treated as an
// error.
func (t *SecurityContextTable) Resolve(nm *NetworkMessage) (*SecurityContext, bool) {
	if nm.Security == nil || nm.Group == nil || !nm.Group.WriterGroupIDPresent {
		return nil, false
	}

	t.mu.RLock()
	defer t.mu.RUnlock()
	ctx, ok := t.contexts[contextKey{
		tokenID:       nm.Security.SecurityTokenID,
		publisherID:   PublisherIDKey(nm.Header.PublisherID),
		writerGroupID: nm.Group.WriterGroupID,
	}]
	return ctx, ok
}

// PublisherIDKey formats a NetworkMessageHeader.PublisherID (one of byte,
// uint16, uint32, uint64, string) into a comparable string so the same
// logical publisher id compares equal regardless of which wire width it
// happened to travel in. Exported so callers outside this package (the
// subscriber scheduler's freshness lookup) key on the same identity.
func PublisherIDKey(id any) string {
	switch v := id.(type) {
	case byte:
		return fmt.Sprintf("%d", v)
	case uint16:
		return fmt.Sprintf("%d", v)
	case uint32:
		return fmt.Sprintf("%d", v)
	case uint64:
		return fmt.Sprintf("%d", v)
	case string:
		return v
	default:
		return ""
	}
}

// Unseal verifies (and, if required, decrypts) nm.RawPayload in place
// against ctx, per spec.md's three-way mode dispatch: None does nothing,
// Sign verifies only, SignAndEncrypt verifies then decrypts. On success
// nm.RawPayload holds plaintext DataSetMessage bytes ready for ParsePayload.
func Unseal(nm *NetworkMessage, ctx *SecurityContext, signedPortion []byte) error {
	switch ctx.Mode {
	case SecurityModeNone:
		return nil

	case SecurityModeSign:
		if err := verify(nm, ctx, signedPortion); err != nil {
			return err
		}
		return nil

	case SecurityModeSignAndEncrypt:
		if err := verify(nm, ctx, signedPortion); err != nil {
			return err
		}
		return decrypt(nm, ctx)

	default:
		return status.New(status.InvalidParameters, "unknown security mode")
	}
}

func verify(nm *NetworkMessage, ctx *SecurityContext, signedPortion []byte) error {
	if len(nm.Signature) == 0 {
		return status.New(status.InvalidReceivedParameter, "network message signed but carries no signature")
	}
	expected := crypto.HMACSHA256Slice(ctx.Keys.SigningKey, signedPortion)
	if !crypto.HMACEqual(expected, nm.Signature) {
		return status.New(status.InvalidReceivedParameter, "network message signature verification failed")
	}
	return nil
}

func decrypt(nm *NetworkMessage, ctx *SecurityContext) error {
	iv := buildIV(ctx.Keys.KeyNonce, nm.Security.MessageNonce)
	plaintext, err := crypto.AESCTRDecrypt(ctx.Keys.EncryptingKey, iv, nm.RawPayload)
	if err != nil {
		return status.Wrap(status.EncodingError, "network message decryption failed", err)
	}
	nm.RawPayload = plaintext
	return nil
}

// buildIV assembles the 16-byte AES-CTR counter block from the group's
// key-nonce and the message's own nonce field, padding with zero bytes if
// the combination is short (Part 14, 7.2.7.4: KeyNonce || MessageNonce ||
// BlockCounter, here treated as BlockCounter=0 since each message gets its
// own fresh IV from MessageNonce rather than an incrementing per-chunk
// counter).
func buildIV(keyNonce, messageNonce []byte) []byte {
	iv := make([]byte, aes.BlockSize)
	copy(iv, keyNonce)
	copy(iv[len(keyNonce):], messageNonce)
	return iv
}
