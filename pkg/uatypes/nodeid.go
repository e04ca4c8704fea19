// Package uatypes implements the OPC UA structured builtin types (spec
// §4.4): NodeId, ExpandedNodeId, Variant, DataValue, DiagnosticInfo,
// ExtensionObject, and the generic array encoding contract arrays of any
// of the above share. Each type follows a per-type element encoding idiom —
// a control octet whose bits pick a concrete representation out of a small
// closed set — matching OPC UA's NodeId encoding-byte and Variant
// encoding-mask schemes (Part 6, 5.2.2 and 5.2.2.16).
package uatypes

import (
	"github.com/opcua-go/stack/pkg/builtin"
	"github.com/opcua-go/stack/pkg/status"
)

// IdentifierType is the low two bits of a NodeId's encoding byte, Part 6
// Table 7.
type IdentifierType byte

const (
	IdentifierNumeric IdentifierType = 0
	IdentifierString  IdentifierType = 1
	IdentifierGUID    IdentifierType = 2
	IdentifierOpaque  IdentifierType = 3
)

// NodeId encoding-byte values, Part 6 5.2.2.9. Two-byte and four-byte
// numeric forms are compact encodings of IdentifierNumeric; decode always
// normalizes them to the full NodeId representation below.
const (
	encTwoByte   byte = 0x00
	encFourByte  byte = 0x01
	encNumeric   byte = 0x02
	encString    byte = 0x03
	encGUID      byte = 0x04
	encByteString byte = 0x05
)

// NodeId identifies a node within a server's namespace table (spec
// §4.4.1). Exactly one of Numeric/Str/GUIDData/Opaque is meaningful,
// selected by Kind.
type NodeId struct {
	NamespaceIndex uint16
	Kind           IdentifierType
	Numeric        uint32
	Str            string
	GUIDData       [16]byte
	Opaque         []byte
}

// NewNumericNodeId builds a numeric NodeId.
func NewNumericNodeId(ns uint16, id uint32) NodeId {
	return NodeId{NamespaceIndex: ns, Kind: IdentifierNumeric, Numeric: id}
}

// NewStringNodeId builds a string NodeId.
func NewStringNodeId(ns uint16, id string) NodeId {
	return NodeId{NamespaceIndex: ns, Kind: IdentifierString, Str: id}
}

// IsNull reports whether id is the null NodeId (ns=0, numeric=0), Part 6
// 5.2.2.9.
func (id NodeId) IsNull() bool {
	return id.Kind == IdentifierNumeric && id.NamespaceIndex == 0 && id.Numeric == 0
}

// EncodeNodeId writes id using the most compact applicable representation.
func EncodeNodeId(w *builtin.Writer, id NodeId) error {
	return encodeNodeIdBody(w, id, 0)
}

// DecodeNodeId reads a NodeId in any of its six wire representations and
// normalizes it to the full form.
func DecodeNodeId(r *builtin.Reader) (NodeId, error) {
	encByte, err := r.GetByte()
	if err != nil {
		return NodeId{}, err
	}
	return decodeNodeIdBody(r, encByte)
}

// ExpandedNodeId is a NodeId plus an optional out-of-band namespace URI
// and server index (Part 6, 5.2.2.10), used when a node reference crosses
// a server or namespace-table boundary.
type ExpandedNodeId struct {
	NodeId
	NamespaceURI string
	HasURI       bool
	ServerIndex  uint32
}

const (
	flagHasNamespaceURI byte = 0x80
	flagHasServerIndex  byte = 0x40
	flagBitsMask        byte = 0x3F
)

// EncodeExpandedNodeId writes id, setting the two high flag bits over the
// embedded NodeId's encoding byte.
func EncodeExpandedNodeId(w *builtin.Writer, id ExpandedNodeId) error {
	var flags byte
	if id.HasURI {
		flags |= flagHasNamespaceURI
	}
	if id.ServerIndex != 0 {
		flags |= flagHasServerIndex
	}
	if err := encodeNodeIdBody(w, id.NodeId, flags); err != nil {
		return err
	}
	if id.HasURI {
		if err := w.PutString(id.NamespaceURI, false); err != nil {
			return err
		}
	}
	if id.ServerIndex != 0 {
		if err := w.PutUInt32(id.ServerIndex); err != nil {
			return err
		}
	}
	return nil
}

// DecodeExpandedNodeId reads an ExpandedNodeId, peeling the flag bits off
// the encoding byte before delegating to the NodeId decoder.
func DecodeExpandedNodeId(r *builtin.Reader) (ExpandedNodeId, error) {
	encByte, err := r.GetByte()
	if err != nil {
		return ExpandedNodeId{}, err
	}
	hasURI := encByte&flagHasNamespaceURI != 0
	hasServerIndex := encByte&flagHasServerIndex != 0
	baseByte := encByte &^ (flagHasNamespaceURI | flagHasServerIndex)

	node, err := decodeNodeIdBody(r, baseByte)
	if err != nil {
		return ExpandedNodeId{}, err
	}

	out := ExpandedNodeId{NodeId: node, HasURI: hasURI}
	if hasURI {
		uri, _, err := r.GetString()
		if err != nil {
			return ExpandedNodeId{}, err
		}
		out.NamespaceURI = uri
	}
	if hasServerIndex {
		idx, err := r.GetUInt32()
		if err != nil {
			return ExpandedNodeId{}, err
		}
		out.ServerIndex = idx
	}
	return out, nil
}

// encodeNodeIdBody writes id choosing the same compact representation
// EncodeNodeId does, OR-ing extraFlags into the encoding byte (used by
// ExpandedNodeId to set its HasNamespaceURI/HasServerIndex bits).
func encodeNodeIdBody(w *builtin.Writer, id NodeId, extraFlags byte) error {
	switch id.Kind {
	case IdentifierNumeric:
		switch {
		case id.NamespaceIndex == 0 && id.Numeric <= 0xFF && extraFlags == 0:
			if err := w.PutByte(encTwoByte); err != nil {
				return err
			}
			return w.PutByte(byte(id.Numeric))
		case id.NamespaceIndex <= 0xFF && id.Numeric <= 0xFFFF && extraFlags == 0:
			if err := w.PutByte(encFourByte); err != nil {
				return err
			}
			if err := w.PutByte(byte(id.NamespaceIndex)); err != nil {
				return err
			}
			return w.PutUInt16(uint16(id.Numeric))
		default:
			if err := w.PutByte(encNumeric | extraFlags); err != nil {
				return err
			}
			if err := w.PutUInt16(id.NamespaceIndex); err != nil {
				return err
			}
			return w.PutUInt32(id.Numeric)
		}
	case IdentifierString:
		if err := w.PutByte(encString | extraFlags); err != nil {
			return err
		}
		if err := w.PutUInt16(id.NamespaceIndex); err != nil {
			return err
		}
		return w.PutString(id.Str, false)
	case IdentifierGUID:
		if err := w.PutByte(encGUID | extraFlags); err != nil {
			return err
		}
		if err := w.PutUInt16(id.NamespaceIndex); err != nil {
			return err
		}
		data4 := [8]byte{}
		copy(data4[:], id.GUIDData[8:16])
		return w.PutGUID(
			leUint32(id.GUIDData[0:4]),
			leUint16(id.GUIDData[4:6]),
			leUint16(id.GUIDData[6:8]),
			data4,
		)
	case IdentifierOpaque:
		if err := w.PutByte(encByteString | extraFlags); err != nil {
			return err
		}
		if err := w.PutUInt16(id.NamespaceIndex); err != nil {
			return err
		}
		return w.PutByteString(id.Opaque, id.Opaque == nil)
	default:
		return status.New(status.InvalidParameters, "uatypes: unknown NodeId kind")
	}
}

func decodeNodeIdBody(r *builtin.Reader, encByte byte) (NodeId, error) {
	switch encByte {
	case encTwoByte:
		b, err := r.GetByte()
		if err != nil {
			return NodeId{}, err
		}
		return NewNumericNodeId(0, uint32(b)), nil
	case encFourByte:
		ns, err := r.GetByte()
		if err != nil {
			return NodeId{}, err
		}
		id, err := r.GetUInt16()
		if err != nil {
			return NodeId{}, err
		}
		return NewNumericNodeId(uint16(ns), uint32(id)), nil
	case encNumeric:
		ns, err := r.GetUInt16()
		if err != nil {
			return NodeId{}, err
		}
		id, err := r.GetUInt32()
		if err != nil {
			return NodeId{}, err
		}
		return NewNumericNodeId(ns, id), nil
	case encString:
		ns, err := r.GetUInt16()
		if err != nil {
			return NodeId{}, err
		}
		s, _, err := r.GetString()
		if err != nil {
			return NodeId{}, err
		}
		return NewStringNodeId(ns, s), nil
	case encGUID:
		ns, err := r.GetUInt16()
		if err != nil {
			return NodeId{}, err
		}
		d1, d2, d3, d4, err := r.GetGUID()
		if err != nil {
			return NodeId{}, err
		}
		var raw [16]byte
		putLEUint32(raw[0:4], d1)
		putLEUint16(raw[4:6], d2)
		putLEUint16(raw[6:8], d3)
		copy(raw[8:16], d4[:])
		return NodeId{NamespaceIndex: ns, Kind: IdentifierGUID, GUIDData: raw}, nil
	case encByteString:
		ns, err := r.GetUInt16()
		if err != nil {
			return NodeId{}, err
		}
		data, _, err := r.GetByteString()
		if err != nil {
			return NodeId{}, err
		}
		return NodeId{NamespaceIndex: ns, Kind: IdentifierOpaque, Opaque: data}, nil
	default:
		return NodeId{}, status.New(status.EncodingError, "uatypes: unrecognized NodeId encoding byte")
	}
}

func leUint32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func leUint16(b []byte) uint16 {
	return uint16(b[0]) | uint16(b[1])<<8
}

func putLEUint32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

func putLEUint16(b []byte, v uint16) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
}
