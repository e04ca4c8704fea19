package uatypes

import (
	"time"

	"github.com/opcua-go/stack/pkg/builtin"
	"github.com/opcua-go/stack/pkg/status"
)

// BuiltinTypeId identifies the concrete type carried by a Variant (Part 6,
// 5.1.2 Table 1). Only the subset this engine's PubSub/SecureChannel paths
// actually carry is implemented; an unsupported id decodes to
// status.NotSupported rather than panicking on an unknown shape.
type BuiltinTypeId byte

const (
	TypeBoolean       BuiltinTypeId = 1
	TypeSByte         BuiltinTypeId = 2
	TypeByte          BuiltinTypeId = 3
	TypeInt16         BuiltinTypeId = 4
	TypeUInt16        BuiltinTypeId = 5
	TypeInt32         BuiltinTypeId = 6
	TypeUInt32        BuiltinTypeId = 7
	TypeInt64         BuiltinTypeId = 8
	TypeUInt64        BuiltinTypeId = 9
	TypeFloat         BuiltinTypeId = 10
	TypeDouble        BuiltinTypeId = 11
	TypeString        BuiltinTypeId = 12
	TypeDateTime      BuiltinTypeId = 13
	TypeGUID          BuiltinTypeId = 14
	TypeByteString    BuiltinTypeId = 15
	TypeNodeId        BuiltinTypeId = 17
	TypeExpandedNodeId BuiltinTypeId = 18
	TypeStatusCode    BuiltinTypeId = 19
	TypeExtensionObject BuiltinTypeId = 22
	TypeDataValue     BuiltinTypeId = 23
	TypeVariant       BuiltinTypeId = 24
)

const (
	variantArrayMask      byte = 0x80
	variantDimensionsMask byte = 0x40
	variantTypeMask       byte = 0x3F
)

// MaxVariantNestedLevel bounds how deeply a Variant and a DataValue may
// contain one another (a Variant holding an array of DataValue, each of
// which holds a Variant, and so on). Decoding past this depth reports
// status.OutOfMemory; encoding past it reports status.EncodingError,
// since at that point the caller handed us a value tree it should never
// have built.
const MaxVariantNestedLevel = 5

// Variant is a tagged union over any of the builtin types above, scalar or
// array-valued (spec §4.4.2). A null Variant has TypeId 0.
type Variant struct {
	TypeId     BuiltinTypeId
	IsArray    bool
	Scalar     any
	Elements   []any
	ArrayDims  []int32
	HasArrayDims bool
}

// IsNull reports whether v carries no value.
func (v Variant) IsNull() bool { return v.TypeId == 0 }

// EncodeVariant writes v's encoding mask followed by its scalar value or
// array payload.
func EncodeVariant(w *builtin.Writer, v Variant) error {
	return encodeVariantAt(w, v, 0)
}

func encodeVariantAt(w *builtin.Writer, v Variant, depth int) error {
	if depth > MaxVariantNestedLevel {
		return status.New(status.EncodingError, "uatypes: variant nesting exceeds max-variant-nested-level")
	}
	if v.IsNull() {
		return w.PutByte(0)
	}
	if v.TypeId == TypeVariant && !v.IsArray {
		return status.New(status.EncodingError, "uatypes: a variant must not directly contain a variant")
	}

	mask := byte(v.TypeId) & variantTypeMask
	if v.IsArray {
		mask |= variantArrayMask
		if v.HasArrayDims {
			mask |= variantDimensionsMask
		}
	}
	if err := w.PutByte(mask); err != nil {
		return err
	}

	if v.IsArray {
		if err := w.PutInt32(int32(len(v.Elements))); err != nil {
			return err
		}
		for _, elem := range v.Elements {
			if err := encodeScalar(w, v.TypeId, elem, depth); err != nil {
				return err
			}
		}
		if v.HasArrayDims {
			if err := validateArrayDims(v.ArrayDims, len(v.Elements)); err != nil {
				return err
			}
			if err := w.PutInt32(int32(len(v.ArrayDims))); err != nil {
				return err
			}
			for _, d := range v.ArrayDims {
				if err := w.PutInt32(d); err != nil {
					return err
				}
			}
		}
		return nil
	}

	return encodeScalar(w, v.TypeId, v.Scalar, depth)
}

// validateArrayDims checks a matrix Variant's ArrayDimensions against its
// flat element count (spec §4.4: every extent must be positive and their
// product must equal the flat array length).
func validateArrayDims(dims []int32, flatCount int) error {
	product := int64(1)
	for _, d := range dims {
		if d <= 0 {
			return status.New(status.EncodingError, "uatypes: matrix extent must be positive")
		}
		product *= int64(d)
	}
	if product != int64(flatCount) {
		return status.New(status.EncodingError, "uatypes: product of matrix extents does not match element count")
	}
	return nil
}

// DecodeVariant reads a Variant, bounding the array length the same way
// DecodeArray does (spec array-decode invariant: a corrupt length prefix
// must not drive an unbounded allocation).
func DecodeVariant(r *builtin.Reader) (Variant, error) {
	return decodeVariantAt(r, 0)
}

func decodeVariantAt(r *builtin.Reader, depth int) (Variant, error) {
	if depth > MaxVariantNestedLevel {
		return Variant{}, status.New(status.OutOfMemory, "uatypes: variant nesting exceeds max-variant-nested-level")
	}
	mask, err := r.GetByte()
	if err != nil {
		return Variant{}, err
	}
	if mask == 0 {
		return Variant{}, nil
	}

	typeId := BuiltinTypeId(mask & variantTypeMask)
	isArray := mask&variantArrayMask != 0
	hasDims := mask&variantDimensionsMask != 0

	if typeId == TypeVariant && !isArray {
		return Variant{}, status.New(status.EncodingError, "uatypes: a variant must not directly contain a variant")
	}

	if !isArray {
		scalar, err := decodeScalar(r, typeId, depth)
		if err != nil {
			return Variant{}, err
		}
		return Variant{TypeId: typeId, Scalar: scalar}, nil
	}

	count, err := r.GetInt32()
	if err != nil {
		return Variant{}, err
	}
	if count < 0 {
		return Variant{TypeId: typeId, IsArray: true}, nil
	}
	if count > MaxArrayLength {
		return Variant{}, status.New(status.OutOfMemory, "uatypes: variant array length exceeds maximum")
	}

	elems := make([]any, 0, count)
	for i := int32(0); i < count; i++ {
		v, err := decodeScalar(r, typeId, depth)
		if err != nil {
			return Variant{}, err
		}
		elems = append(elems, v)
	}

	out := Variant{TypeId: typeId, IsArray: true, Elements: elems, HasArrayDims: hasDims}
	if hasDims {
		dimCount, err := r.GetInt32()
		if err != nil {
			return Variant{}, err
		}
		if dimCount < 0 || dimCount > MaxArrayLength {
			return Variant{}, status.New(status.OutOfMemory, "uatypes: variant dimension count out of range")
		}
		dims := make([]int32, 0, dimCount)
		for i := int32(0); i < dimCount; i++ {
			d, err := r.GetInt32()
			if err != nil {
				return Variant{}, err
			}
			dims = append(dims, d)
		}
		if err := validateArrayDims(dims, len(elems)); err != nil {
			return Variant{}, err
		}
		out.ArrayDims = dims
	}
	return out, nil
}

func encodeScalar(w *builtin.Writer, t BuiltinTypeId, v any, depth int) error {
	switch t {
	case TypeBoolean:
		b, _ := v.(bool)
		return w.PutBoolean(b)
	case TypeSByte:
		b, _ := v.(int8)
		return w.PutSByte(b)
	case TypeByte:
		b, _ := v.(uint8)
		return w.PutByte(b)
	case TypeInt16:
		b, _ := v.(int16)
		return w.PutInt16(b)
	case TypeUInt16:
		b, _ := v.(uint16)
		return w.PutUInt16(b)
	case TypeInt32:
		b, _ := v.(int32)
		return w.PutInt32(b)
	case TypeUInt32:
		b, _ := v.(uint32)
		return w.PutUInt32(b)
	case TypeInt64:
		b, _ := v.(int64)
		return w.PutInt64(b)
	case TypeUInt64:
		b, _ := v.(uint64)
		return w.PutUInt64(b)
	case TypeFloat:
		b, _ := v.(float32)
		return w.PutFloat(b)
	case TypeDouble:
		b, _ := v.(float64)
		return w.PutDouble(b)
	case TypeDateTime:
		ts, _ := v.(time.Time)
		return w.PutDateTime(ts)
	case TypeGUID:
		g, _ := v.(GUID)
		return w.PutGUID(g.Data1, g.Data2, g.Data3, g.Data4)
	case TypeString:
		s, _ := v.(string)
		return w.PutString(s, s == "" && v == nil)
	case TypeByteString:
		bs, _ := v.([]byte)
		return w.PutByteString(bs, bs == nil)
	case TypeStatusCode:
		code, _ := v.(uint32)
		return w.PutUInt32(code)
	case TypeNodeId:
		id, _ := v.(NodeId)
		return EncodeNodeId(w, id)
	case TypeExpandedNodeId:
		id, _ := v.(ExpandedNodeId)
		return EncodeExpandedNodeId(w, id)
	case TypeExtensionObject:
		eo, _ := v.(ExtensionObject)
		return EncodeExtensionObject(w, eo)
	case TypeDataValue:
		dv, _ := v.(DataValue)
		return encodeDataValueAt(w, dv, depth+1)
	case TypeVariant:
		// Reached only for array elements; encodeVariantAt rejects a
		// scalar Variant of type Variant before getting here.
		inner, _ := v.(Variant)
		return encodeVariantAt(w, inner, depth+1)
	default:
		return status.New(status.NotSupported, "uatypes: unsupported variant scalar type")
	}
}

func decodeScalar(r *builtin.Reader, t BuiltinTypeId, depth int) (any, error) {
	switch t {
	case TypeBoolean:
		return r.GetBoolean()
	case TypeSByte:
		return r.GetSByte()
	case TypeByte:
		return r.GetByte()
	case TypeInt16:
		return r.GetInt16()
	case TypeUInt16:
		return r.GetUInt16()
	case TypeInt32:
		return r.GetInt32()
	case TypeUInt32:
		return r.GetUInt32()
	case TypeInt64:
		return r.GetInt64()
	case TypeUInt64:
		return r.GetUInt64()
	case TypeFloat:
		return r.GetFloat()
	case TypeDouble:
		return r.GetDouble()
	case TypeDateTime:
		return r.GetDateTime()
	case TypeGUID:
		data1, data2, data3, data4, err := r.GetGUID()
		if err != nil {
			return nil, err
		}
		return GUID{Data1: data1, Data2: data2, Data3: data3, Data4: data4}, nil
	case TypeString:
		s, _, err := r.GetString()
		return s, err
	case TypeByteString:
		bs, _, err := r.GetByteString()
		return bs, err
	case TypeStatusCode:
		return r.GetUInt32()
	case TypeNodeId:
		return DecodeNodeId(r)
	case TypeExpandedNodeId:
		return DecodeExpandedNodeId(r)
	case TypeExtensionObject:
		return DecodeExtensionObject(r)
	case TypeDataValue:
		return decodeDataValueAt(r, depth+1)
	case TypeVariant:
		// Reached only for array elements; decodeVariantAt rejects a
		// scalar Variant of type Variant before getting here.
		return decodeVariantAt(r, depth+1)
	default:
		return nil, status.New(status.NotSupported, "uatypes: unsupported variant scalar type")
	}
}
