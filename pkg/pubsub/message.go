package pubsub

import (
	"github.com/opcua-go/stack/pkg/buffer"
	"github.com/opcua-go/stack/pkg/builtin"
	"github.com/opcua-go/stack/pkg/status"
	"github.com/opcua-go/stack/pkg/uatypes"
)

// MaxDataSetFields bounds a single DataSetMessage's field count, guarding
// against a corrupt or hostile field-count prefix the same way
// uatypes.MaxArrayLength guards array lengths.
const MaxDataSetFields = 4096

// DataSetMessage is one payload unit inside a NetworkMessage, carrying its
// fields as plain Variants in publisher-configured field order (the
// "Variant field encoding" option of Part 14, 7.2.4, the simplest of the
// three the standard allows and the only one this engine produces or
// consumes).
type DataSetMessage struct {
	Fields []uatypes.Variant
}

// EncodeDataSetMessage writes the field count followed by each field's
// Variant encoding.
func EncodeDataSetMessage(w *builtin.Writer, m *DataSetMessage) error {
	if err := w.PutUInt16(uint16(len(m.Fields))); err != nil {
		return err
	}
	for i := range m.Fields {
		if err := uatypes.EncodeVariant(w, m.Fields[i]); err != nil {
			return err
		}
	}
	return nil
}

// DecodeDataSetMessage reads a field count and that many Variants.
func DecodeDataSetMessage(r *builtin.Reader) (*DataSetMessage, error) {
	count, err := r.GetUInt16()
	if err != nil {
		return nil, err
	}
	if int(count) > MaxDataSetFields {
		return nil, status.New(status.EncodingError, "dataset field count exceeds limit")
	}
	m := &DataSetMessage{Fields: make([]uatypes.Variant, count)}
	for i := range m.Fields {
		v, err := uatypes.DecodeVariant(r)
		if err != nil {
			return nil, err
		}
		m.Fields[i] = v
	}
	return m, nil
}

// NetworkMessage is a fully parsed UADP network message: the sections
// present per its header's flags, and the decoded dataset messages. Its
// payload remains in RawPayload (still possibly encrypted) until Unseal
// has resolved a security context and processed it.
type NetworkMessage struct {
	Header         *NetworkMessageHeader
	Group          *GroupHeader
	Payload        *PayloadHeader
	Extended       *ExtendedHeader
	Security       *SecurityHeader
	RawPayload     []byte // dataset-message bytes, ciphertext if Security.NetworkMessageEncrypted
	Signature      []byte

	DataSets []DataSetMessage // populated once RawPayload has been processed
}

// DecodeNetworkMessage parses every section a NetworkMessage's header flags
// announce. It does not verify signatures, decrypt, or parse DataSetMessages
// out of RawPayload — that happens in Unseal, once a SecurityContext has
// been resolved for this message's (token id, publisher id, writer group
// id), mirroring spec.md's security-then-decode ordering: the payload
// cannot be interpreted as DataSetMessages until it has been authenticated
// and, if needed, decrypted.
func DecodeNetworkMessage(data []byte) (*NetworkMessage, error) {
	buf := buffer.Wrap(data)
	r := builtin.NewReader(buf)

	header, err := DecodeNetworkMessageHeader(r)
	if err != nil {
		return nil, err
	}

	nm := &NetworkMessage{Header: header}

	if header.GroupHeaderPresent {
		if nm.Group, err = DecodeGroupHeader(r); err != nil {
			return nil, err
		}
	}
	if header.PayloadHeaderPresent {
		if nm.Payload, err = DecodePayloadHeader(r); err != nil {
			return nil, err
		}
	}
	if header.TimestampPresent || header.PicosecondsPresent {
		if nm.Extended, err = DecodeExtendedHeader(r, header); err != nil {
			return nil, err
		}
	}
	if header.SecurityEnabled {
		if nm.Security, err = DecodeSecurityHeader(r); err != nil {
			return nil, err
		}
	}

	nm.RawPayload = buf.Unread()
	return nm, nil
}

// EncodeNetworkMessage writes every present section followed by the
// already-protected RawPayload and trailing Signature (if any). Callers
// build RawPayload/Signature themselves via Seal before calling this.
func EncodeNetworkMessage(nm *NetworkMessage) ([]byte, error) {
	buf := buffer.New(buffer.DefaultMaxSize)
	w := builtin.NewWriter(buf)

	if err := EncodeNetworkMessageHeader(w, nm.Header); err != nil {
		return nil, err
	}
	if nm.Header.GroupHeaderPresent {
		if err := EncodeGroupHeader(w, nm.Group); err != nil {
			return nil, err
		}
	}
	if nm.Header.PayloadHeaderPresent {
		if err := EncodePayloadHeader(w, nm.Payload); err != nil {
			return nil, err
		}
	}
	if nm.Header.TimestampPresent || nm.Header.PicosecondsPresent {
		if err := EncodeExtendedHeader(w, nm.Header, nm.Extended); err != nil {
			return nil, err
		}
	}
	if nm.Header.SecurityEnabled {
		if err := EncodeSecurityHeader(w, nm.Security); err != nil {
			return nil, err
		}
	}
	if _, err := w.WriteRaw(nm.RawPayload); err != nil {
		return nil, err
	}
	if len(nm.Signature) > 0 {
		if _, err := w.WriteRaw(nm.Signature); err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}

// SignatureSize is the HMAC-SHA256 signature length PubSub's Sign and
// SignAndEncrypt modes both produce (Part 14, 7.3.5 "NetworkMessage
// Signature").
const SignatureSize = 32

// SplitSignature moves the trailing SignatureSize bytes of nm.RawPayload
// into nm.Signature when the security header announces the message is
// signed. DecodeNetworkMessage has no length prefix to delimit the
// signature from the payload it follows, so callers split it out here,
// before Unseal, once they know NetworkMessageSigned is set.
func SplitSignature(nm *NetworkMessage) error {
	if nm.Security == nil || !nm.Security.NetworkMessageSigned {
		return nil
	}
	if len(nm.RawPayload) < SignatureSize {
		return status.New(status.EncodingError, "network message shorter than its signature")
	}
	split := len(nm.RawPayload) - SignatureSize
	nm.Signature = nm.RawPayload[split:]
	nm.RawPayload = nm.RawPayload[:split]
	return nil
}

// ParsePayload decodes nm.RawPayload (assumed already plaintext) into one
// DataSetMessage per writer id nm.Payload announces, populating
// nm.DataSets. Call this only after Unseal has authenticated and, if
// needed, decrypted RawPayload.
func ParsePayload(nm *NetworkMessage) error {
	count := 1
	if nm.Payload != nil {
		count = len(nm.Payload.DataSetWriterIDs)
	}

	buf := buffer.Wrap(nm.RawPayload)
	r := builtin.NewReader(buf)

	nm.DataSets = make([]DataSetMessage, count)
	for i := 0; i < count; i++ {
		m, err := DecodeDataSetMessage(r)
		if err != nil {
			return err
		}
		nm.DataSets[i] = *m
	}
	return nil
}
