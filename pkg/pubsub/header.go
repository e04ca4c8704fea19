// UADP network-message header codec (OPC UA Part 14, 7.2.3). The header is
// a sequence of optional sections switched on by bits in the leading flags
// byte, a bit-flag-packed-header idiom generalized from a fixed shape to
// one with five independently-present sections.
package pubsub

import (
	"time"

	"github.com/opcua-go/stack/pkg/builtin"
	"github.com/opcua-go/stack/pkg/status"
)

// UADPVersion is the only network-message version this decoder accepts.
const UADPVersion = 1

// Network-message flags byte (first byte on the wire).
const (
	flagPublisherIDPresent byte = 1 << 0
	flagGroupHeaderPresent byte = 1 << 1
	flagPayloadHeaderPresent byte = 1 << 2
	flagExtendedFlags1Present byte = 1 << 3
	flagVersionShift         = 4
	flagVersionMask          = 0x0F
)

// Extended Flags 1 byte.
const (
	ext1PublisherIDTypeMask byte = 0x07
	ext1DataSetClassIDPresent byte = 1 << 3
	ext1SecurityEnabled       byte = 1 << 4
	ext1TimestampPresent      byte = 1 << 5
	ext1PicosecondsPresent    byte = 1 << 6
	ext1ExtendedFlags2Present byte = 1 << 7
)

// PublisherIDType selects the wire width of the PublisherId field.
type PublisherIDType byte

const (
	PublisherIDByte PublisherIDType = iota
	PublisherIDUInt16
	PublisherIDUInt32
	PublisherIDUInt64
	PublisherIDString
)

// NetworkMessageHeader is the always-present leading portion of a UADP
// network message: version, the presence flags, and the PublisherId.
type NetworkMessageHeader struct {
	Version            byte
	PublisherIDPresent bool
	PublisherIDType    PublisherIDType
	PublisherID        any // byte, uint16, uint32, uint64 or string, per PublisherIDType

	GroupHeaderPresent   bool
	PayloadHeaderPresent bool
	SecurityEnabled      bool
	TimestampPresent     bool
	PicosecondsPresent   bool
}

// GroupHeader carries the writer group and its version (OPC UA Part 14,
// 7.2.3.5).
type GroupHeader struct {
	WriterGroupIDPresent bool
	WriterGroupID        uint16
	GroupVersionPresent  bool
	GroupVersion         uint32
	SequenceNumberPresent bool
	SequenceNumber       uint16
}

const (
	groupFlagWriterGroupIDPresent byte = 1 << 0
	groupFlagGroupVersionPresent  byte = 1 << 1
	groupFlagSequenceNumberPresent byte = 1 << 2
)

// PayloadHeader carries the dataset-writer ids this message's dataset
// messages belong to, one per DataSetMessage in the payload.
type PayloadHeader struct {
	DataSetWriterIDs []uint16
}

// ExtendedHeader carries the timestamp/picoseconds fields Extended Flags 1
// announces.
type ExtendedHeader struct {
	HasTimestamp   bool
	Timestamp      time.Time
	HasPicoseconds bool
	Picoseconds    uint16
}

// SecurityHeader carries the fields needed to resolve a security context
// and verify/decrypt the payload (spec.md's security-resolution flow).
type SecurityHeader struct {
	NetworkMessageSigned    bool
	NetworkMessageEncrypted bool
	SecurityFooterPresent   bool
	SecurityTokenID         uint32
	MessageNonce            []byte
	SecurityFooterSize      uint16
}

const (
	secFlagNetworkMessageSigned    byte = 1 << 0
	secFlagNetworkMessageEncrypted byte = 1 << 1
	secFlagSecurityFooterPresent   byte = 1 << 2
	secFlagForceKeyReset           byte = 1 << 3
)

// flagsByte builds the leading flags byte.
func (h *NetworkMessageHeader) flagsByte() byte {
	var f byte
	f |= (h.Version & flagVersionMask) << flagVersionShift
	if h.PublisherIDPresent {
		f |= flagPublisherIDPresent
	}
	if h.GroupHeaderPresent {
		f |= flagGroupHeaderPresent
	}
	if h.PayloadHeaderPresent {
		f |= flagPayloadHeaderPresent
	}
	if h.needsExtendedFlags1() {
		f |= flagExtendedFlags1Present
	}
	return f
}

func (h *NetworkMessageHeader) needsExtendedFlags1() bool {
	return h.PublisherIDType != PublisherIDByte || h.SecurityEnabled ||
		h.TimestampPresent || h.PicosecondsPresent
}

func (h *NetworkMessageHeader) extendedFlags1Byte() byte {
	var f byte
	f |= byte(h.PublisherIDType) & ext1PublisherIDTypeMask
	if h.SecurityEnabled {
		f |= ext1SecurityEnabled
	}
	if h.TimestampPresent {
		f |= ext1TimestampPresent
	}
	if h.PicosecondsPresent {
		f |= ext1PicosecondsPresent
	}
	return f
}

// EncodeNetworkMessageHeader writes the flags byte, optional Extended
// Flags 1 byte, and the PublisherId field.
func EncodeNetworkMessageHeader(w *builtin.Writer, h *NetworkMessageHeader) error {
	if err := w.PutByte(h.flagsByte()); err != nil {
		return err
	}
	if h.needsExtendedFlags1() {
		if err := w.PutByte(h.extendedFlags1Byte()); err != nil {
			return err
		}
	}
	if !h.PublisherIDPresent {
		return nil
	}
	switch h.PublisherIDType {
	case PublisherIDByte:
		v, _ := h.PublisherID.(byte)
		return w.PutByte(v)
	case PublisherIDUInt16:
		v, _ := h.PublisherID.(uint16)
		return w.PutUInt16(v)
	case PublisherIDUInt32:
		v, _ := h.PublisherID.(uint32)
		return w.PutUInt32(v)
	case PublisherIDUInt64:
		v, _ := h.PublisherID.(uint64)
		return w.PutUInt64(v)
	case PublisherIDString:
		v, _ := h.PublisherID.(string)
		return w.PutString(v, false)
	default:
		return status.New(status.InvalidParameters, "unknown publisher id type")
	}
}

// DecodeNetworkMessageHeader parses the flags byte, optional Extended
// Flags 1 byte, and the PublisherId field.
func DecodeNetworkMessageHeader(r *builtin.Reader) (*NetworkMessageHeader, error) {
	flags, err := r.GetByte()
	if err != nil {
		return nil, err
	}
	h := &NetworkMessageHeader{
		Version:              (flags >> flagVersionShift) & flagVersionMask,
		PublisherIDPresent:   flags&flagPublisherIDPresent != 0,
		GroupHeaderPresent:   flags&flagGroupHeaderPresent != 0,
		PayloadHeaderPresent: flags&flagPayloadHeaderPresent != 0,
		PublisherIDType:      PublisherIDByte,
	}
	if h.Version != UADPVersion {
		return nil, status.New(status.InvalidParameters, "unsupported UADP version")
	}

	if flags&flagExtendedFlags1Present != 0 {
		ext1, err := r.GetByte()
		if err != nil {
			return nil, err
		}
		h.PublisherIDType = PublisherIDType(ext1 & ext1PublisherIDTypeMask)
		h.SecurityEnabled = ext1&ext1SecurityEnabled != 0
		h.TimestampPresent = ext1&ext1TimestampPresent != 0
		h.PicosecondsPresent = ext1&ext1PicosecondsPresent != 0
	}

	if !h.PublisherIDPresent {
		return h, nil
	}

	switch h.PublisherIDType {
	case PublisherIDByte:
		v, err := r.GetByte()
		if err != nil {
			return nil, err
		}
		h.PublisherID = v
	case PublisherIDUInt16:
		v, err := r.GetUInt16()
		if err != nil {
			return nil, err
		}
		h.PublisherID = v
	case PublisherIDUInt32:
		v, err := r.GetUInt32()
		if err != nil {
			return nil, err
		}
		h.PublisherID = v
	case PublisherIDUInt64:
		v, err := r.GetUInt64()
		if err != nil {
			return nil, err
		}
		h.PublisherID = v
	case PublisherIDString:
		v, _, err := r.GetString()
		if err != nil {
			return nil, err
		}
		h.PublisherID = v
	default:
		return nil, status.New(status.EncodingError, "unknown publisher id type")
	}

	return h, nil
}

func (g *GroupHeader) flagsByte() byte {
	var f byte
	if g.WriterGroupIDPresent {
		f |= groupFlagWriterGroupIDPresent
	}
	if g.GroupVersionPresent {
		f |= groupFlagGroupVersionPresent
	}
	if g.SequenceNumberPresent {
		f |= groupFlagSequenceNumberPresent
	}
	return f
}

// EncodeGroupHeader writes the group header flags byte followed by its
// present fields.
func EncodeGroupHeader(w *builtin.Writer, g *GroupHeader) error {
	if err := w.PutByte(g.flagsByte()); err != nil {
		return err
	}
	if g.WriterGroupIDPresent {
		if err := w.PutUInt16(g.WriterGroupID); err != nil {
			return err
		}
	}
	if g.GroupVersionPresent {
		if err := w.PutUInt32(g.GroupVersion); err != nil {
			return err
		}
	}
	if g.SequenceNumberPresent {
		if err := w.PutUInt16(g.SequenceNumber); err != nil {
			return err
		}
	}
	return nil
}

// DecodeGroupHeader parses a group header.
func DecodeGroupHeader(r *builtin.Reader) (*GroupHeader, error) {
	flags, err := r.GetByte()
	if err != nil {
		return nil, err
	}
	g := &GroupHeader{
		WriterGroupIDPresent:  flags&groupFlagWriterGroupIDPresent != 0,
		GroupVersionPresent:   flags&groupFlagGroupVersionPresent != 0,
		SequenceNumberPresent: flags&groupFlagSequenceNumberPresent != 0,
	}
	if g.WriterGroupIDPresent {
		if g.WriterGroupID, err = r.GetUInt16(); err != nil {
			return nil, err
		}
	}
	if g.GroupVersionPresent {
		if g.GroupVersion, err = r.GetUInt32(); err != nil {
			return nil, err
		}
	}
	if g.SequenceNumberPresent {
		if g.SequenceNumber, err = r.GetUInt16(); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// EncodePayloadHeader writes the dataset-writer-id count and array.
func EncodePayloadHeader(w *builtin.Writer, p *PayloadHeader) error {
	if err := w.PutByte(byte(len(p.DataSetWriterIDs))); err != nil {
		return err
	}
	for _, id := range p.DataSetWriterIDs {
		if err := w.PutUInt16(id); err != nil {
			return err
		}
	}
	return nil
}

// DecodePayloadHeader parses the dataset-writer-id array.
func DecodePayloadHeader(r *builtin.Reader) (*PayloadHeader, error) {
	count, err := r.GetByte()
	if err != nil {
		return nil, err
	}
	p := &PayloadHeader{DataSetWriterIDs: make([]uint16, count)}
	for i := range p.DataSetWriterIDs {
		if p.DataSetWriterIDs[i], err = r.GetUInt16(); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// EncodeExtendedHeader writes the timestamp and picoseconds fields a
// NetworkMessageHeader's Extended Flags 1 announced as present.
func EncodeExtendedHeader(w *builtin.Writer, h *NetworkMessageHeader, e *ExtendedHeader) error {
	if h.TimestampPresent {
		if err := w.PutDateTime(e.Timestamp); err != nil {
			return err
		}
	}
	if h.PicosecondsPresent {
		if err := w.PutUInt16(e.Picoseconds); err != nil {
			return err
		}
	}
	return nil
}

// DecodeExtendedHeader parses the extended header fields h announces.
func DecodeExtendedHeader(r *builtin.Reader, h *NetworkMessageHeader) (*ExtendedHeader, error) {
	e := &ExtendedHeader{}
	if h.TimestampPresent {
		t, err := r.GetDateTime()
		if err != nil {
			return nil, err
		}
		e.HasTimestamp = true
		e.Timestamp = t
	}
	if h.PicosecondsPresent {
		v, err := r.GetUInt16()
		if err != nil {
			return nil, err
		}
		e.HasPicoseconds = true
		e.Picoseconds = v
	}
	return e, nil
}

func (s *SecurityHeader) flagsByte() byte {
	var f byte
	if s.NetworkMessageSigned {
		f |= secFlagNetworkMessageSigned
	}
	if s.NetworkMessageEncrypted {
		f |= secFlagNetworkMessageEncrypted
	}
	if s.SecurityFooterPresent {
		f |= secFlagSecurityFooterPresent
	}
	return f
}

// EncodeSecurityHeader writes the security flags, token id, message nonce
// and optional footer size.
func EncodeSecurityHeader(w *builtin.Writer, s *SecurityHeader) error {
	if err := w.PutByte(s.flagsByte()); err != nil {
		return err
	}
	if err := w.PutUInt32(s.SecurityTokenID); err != nil {
		return err
	}
	if err := w.PutByte(byte(len(s.MessageNonce))); err != nil {
		return err
	}
	if _, err := w.WriteRaw(s.MessageNonce); err != nil {
		return err
	}
	if s.SecurityFooterPresent {
		if err := w.PutUInt16(s.SecurityFooterSize); err != nil {
			return err
		}
	}
	return nil
}

// DecodeSecurityHeader parses a security header.
func DecodeSecurityHeader(r *builtin.Reader) (*SecurityHeader, error) {
	flags, err := r.GetByte()
	if err != nil {
		return nil, err
	}
	s := &SecurityHeader{
		NetworkMessageSigned:    flags&secFlagNetworkMessageSigned != 0,
		NetworkMessageEncrypted: flags&secFlagNetworkMessageEncrypted != 0,
		SecurityFooterPresent:   flags&secFlagSecurityFooterPresent != 0,
	}
	if s.SecurityTokenID, err = r.GetUInt32(); err != nil {
		return nil, err
	}
	nonceLen, err := r.GetByte()
	if err != nil {
		return nil, err
	}
	s.MessageNonce, err = r.ReadRaw(int(nonceLen))
	if err != nil {
		return nil, err
	}
	if s.SecurityFooterPresent {
		if s.SecurityFooterSize, err = r.GetUInt16(); err != nil {
			return nil, err
		}
	}
	return s, nil
}
