package uatypes

import (
	"github.com/opcua-go/stack/pkg/builtin"
	"github.com/opcua-go/stack/pkg/status"
)

// ExtensionObjectEncoding selects how ExtensionObject.Body is encoded
// (Part 6, 5.2.2.15). This engine never emits or accepts XML bodies.
type ExtensionObjectEncoding byte

const (
	ExtensionEncodingNone       ExtensionObjectEncoding = 0
	ExtensionEncodingByteString ExtensionObjectEncoding = 1
	ExtensionEncodingXML        ExtensionObjectEncoding = 2
)

// ExtensionObject carries an opaque, type-tagged structure body, used by
// DataSetMessages and SecureChannel service bodies alike to embed a
// structure whose concrete type the receiver looks up by TypeId (spec
// §4.4.3).
type ExtensionObject struct {
	TypeId   NodeId
	Encoding ExtensionObjectEncoding
	Body     []byte
}

// EncodeExtensionObject writes eo's TypeId, encoding byte, and body.
func EncodeExtensionObject(w *builtin.Writer, eo ExtensionObject) error {
	if err := EncodeNodeId(w, eo.TypeId); err != nil {
		return err
	}
	if err := w.PutByte(byte(eo.Encoding)); err != nil {
		return err
	}
	switch eo.Encoding {
	case ExtensionEncodingNone:
		return nil
	case ExtensionEncodingByteString:
		return w.PutByteString(eo.Body, eo.Body == nil)
	default:
		return status.New(status.NotSupported, "uatypes: unsupported extension object encoding")
	}
}

// DecodeExtensionObject reads an ExtensionObject. An XML-encoded body is
// rejected with status.NotSupported rather than silently dropped.
func DecodeExtensionObject(r *builtin.Reader) (ExtensionObject, error) {
	typeId, err := DecodeNodeId(r)
	if err != nil {
		return ExtensionObject{}, err
	}
	encByte, err := r.GetByte()
	if err != nil {
		return ExtensionObject{}, err
	}
	enc := ExtensionObjectEncoding(encByte)
	out := ExtensionObject{TypeId: typeId, Encoding: enc}
	switch enc {
	case ExtensionEncodingNone:
		return out, nil
	case ExtensionEncodingByteString:
		body, _, err := r.GetByteString()
		if err != nil {
			return ExtensionObject{}, err
		}
		out.Body = body
		return out, nil
	default:
		return ExtensionObject{}, status.New(status.NotSupported, "uatypes: unsupported extension object encoding")
	}
}
