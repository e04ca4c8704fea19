package uatypes

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/opcua-go/stack/pkg/buffer"
	"github.com/opcua-go/stack/pkg/builtin"
	"github.com/opcua-go/stack/pkg/status"
)

func TestNodeIdCompactRoundTrip(t *testing.T) {
	cases := []NodeId{
		NewNumericNodeId(0, 42),
		NewNumericNodeId(5, 1000),
		NewNumericNodeId(12345, 999999),
		NewStringNodeId(2, "Temperature"),
	}
	for _, id := range cases {
		buf := buffer.New(0)
		w := builtin.NewWriter(buf)
		require.NoError(t, EncodeNodeId(w, id))

		r := builtin.NewReader(buf)
		got, err := DecodeNodeId(r)
		require.NoError(t, err)
		require.Equal(t, id, got)
	}
}

func TestExpandedNodeIdRoundTrip(t *testing.T) {
	id := ExpandedNodeId{
		NodeId:       NewNumericNodeId(3, 77),
		HasURI:       true,
		NamespaceURI: "urn:example:ns",
		ServerIndex:  4,
	}
	buf := buffer.New(0)
	w := builtin.NewWriter(buf)
	require.NoError(t, EncodeExpandedNodeId(w, id))

	r := builtin.NewReader(buf)
	got, err := DecodeExpandedNodeId(r)
	require.NoError(t, err)
	require.Equal(t, id, got)
}

func TestVariantScalarRoundTrip(t *testing.T) {
	v := Variant{TypeId: TypeDouble, Scalar: float64(3.25)}
	buf := buffer.New(0)
	w := builtin.NewWriter(buf)
	require.NoError(t, EncodeVariant(w, v))

	r := builtin.NewReader(buf)
	got, err := DecodeVariant(r)
	require.NoError(t, err)
	require.Equal(t, v, got)
}

func TestVariantArrayRoundTrip(t *testing.T) {
	v := Variant{TypeId: TypeInt32, IsArray: true, Elements: []any{int32(1), int32(2), int32(3)}}
	buf := buffer.New(0)
	w := builtin.NewWriter(buf)
	require.NoError(t, EncodeVariant(w, v))

	r := builtin.NewReader(buf)
	got, err := DecodeVariant(r)
	require.NoError(t, err)
	require.Equal(t, v, got)
}

func TestVariantMatrixRoundTrip(t *testing.T) {
	v := Variant{
		TypeId:       TypeInt32,
		IsArray:      true,
		Elements:     []any{int32(1), int32(2), int32(3), int32(4), int32(5), int32(6)},
		HasArrayDims: true,
		ArrayDims:    []int32{2, 3},
	}
	buf := buffer.New(0)
	w := builtin.NewWriter(buf)
	require.NoError(t, EncodeVariant(w, v))

	r := builtin.NewReader(buf)
	got, err := DecodeVariant(r)
	require.NoError(t, err)
	require.Equal(t, v, got)
}

func TestVariantMatrixRejectsZeroExtent(t *testing.T) {
	v := Variant{
		TypeId:       TypeInt32,
		IsArray:      true,
		Elements:     []any{int32(1), int32(2)},
		HasArrayDims: true,
		ArrayDims:    []int32{2, 0},
	}
	buf := buffer.New(0)
	w := builtin.NewWriter(buf)
	err := EncodeVariant(w, v)
	require.Error(t, err)
	require.Equal(t, status.EncodingError, status.From(err))
}

func TestVariantMatrixRejectsExtentMismatch(t *testing.T) {
	v := Variant{
		TypeId:       TypeInt32,
		IsArray:      true,
		Elements:     []any{int32(1), int32(2), int32(3)},
		HasArrayDims: true,
		ArrayDims:    []int32{2, 2},
	}
	buf := buffer.New(0)
	w := builtin.NewWriter(buf)
	err := EncodeVariant(w, v)
	require.Error(t, err)
	require.Equal(t, status.EncodingError, status.From(err))
}

func TestVariantArrayLengthTooLargeIsOutOfMemory(t *testing.T) {
	buf := buffer.New(0)
	w := builtin.NewWriter(buf)
	require.NoError(t, w.PutByte(byte(TypeInt32)|0x80))
	require.NoError(t, w.PutInt32(MaxArrayLength+1))

	r := builtin.NewReader(buf)
	_, err := DecodeVariant(r)
	require.Error(t, err)
	require.Equal(t, status.OutOfMemory, status.From(err))
}

func TestVariantRejectsDirectVariantContainment(t *testing.T) {
	buf := buffer.New(0)
	w := builtin.NewWriter(buf)
	require.NoError(t, w.PutByte(byte(TypeVariant)))

	r := builtin.NewReader(buf)
	_, err := DecodeVariant(r)
	require.Error(t, err)
	require.Equal(t, status.EncodingError, status.From(err))
}

func TestVariantDataValueNestingRoundTrip(t *testing.T) {
	inner := DataValue{Value: Variant{TypeId: TypeInt32, Scalar: int32(7)}, HasValue: true}
	v := Variant{TypeId: TypeDataValue, IsArray: true, Elements: []any{inner}}

	buf := buffer.New(0)
	w := builtin.NewWriter(buf)
	require.NoError(t, EncodeVariant(w, v))

	r := builtin.NewReader(buf)
	got, err := DecodeVariant(r)
	require.NoError(t, err)
	require.Len(t, got.Elements, 1)
	gotInner, ok := got.Elements[0].(DataValue)
	require.True(t, ok)
	require.Equal(t, inner.Value, gotInner.Value)
}

func TestVariantDataValueNestingExceedsLimit(t *testing.T) {
	// Build a DataValue -> Variant -> array-of-DataValue chain one level
	// deeper than MaxVariantNestedLevel allows and confirm encode reports
	// EncodingError rather than recursing indefinitely.
	dv := DataValue{Value: Variant{TypeId: TypeInt32, Scalar: int32(1)}, HasValue: true}
	for i := 0; i <= MaxVariantNestedLevel; i++ {
		dv = DataValue{
			Value:    Variant{TypeId: TypeDataValue, IsArray: true, Elements: []any{dv}},
			HasValue: true,
		}
	}

	buf := buffer.New(0)
	w := builtin.NewWriter(buf)
	err := EncodeDataValue(w, dv)
	require.Error(t, err)
	require.Equal(t, status.EncodingError, status.From(err))
}

func TestDataValueRoundTrip(t *testing.T) {
	dv := DataValue{
		Value:           Variant{TypeId: TypeFloat, Scalar: float32(1.5)},
		HasValue:        true,
		Status:          0,
		HasStatus:       true,
		SourceTimestamp: time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC),
		HasSourceTimestamp: true,
	}
	buf := buffer.New(0)
	w := builtin.NewWriter(buf)
	require.NoError(t, EncodeDataValue(w, dv))

	r := builtin.NewReader(buf)
	got, err := DecodeDataValue(r)
	require.NoError(t, err)
	require.Equal(t, dv.Status, got.Status)
	require.True(t, got.HasSourceTimestamp)
	require.WithinDuration(t, dv.SourceTimestamp, got.SourceTimestamp, time.Microsecond)
}

func TestDiagnosticInfoNesting(t *testing.T) {
	inner := DiagnosticInfo{HasAdditionalInfo: true, AdditionalInfo: "root cause"}
	outer := DiagnosticInfo{HasAdditionalInfo: true, AdditionalInfo: "outer", HasInner: true, Inner: &inner}

	buf := buffer.New(0)
	w := builtin.NewWriter(buf)
	require.NoError(t, EncodeDiagnosticInfo(w, outer))

	r := builtin.NewReader(buf)
	got, err := DecodeDiagnosticInfo(r)
	require.NoError(t, err)
	require.True(t, got.HasInner)
	require.Equal(t, "root cause", got.Inner.AdditionalInfo)
}

func TestExtensionObjectRoundTrip(t *testing.T) {
	eo := ExtensionObject{
		TypeId:   NewNumericNodeId(0, 15001),
		Encoding: ExtensionEncodingByteString,
		Body:     []byte{1, 2, 3, 4},
	}
	buf := buffer.New(0)
	w := builtin.NewWriter(buf)
	require.NoError(t, EncodeExtensionObject(w, eo))

	r := builtin.NewReader(buf)
	got, err := DecodeExtensionObject(r)
	require.NoError(t, err)
	require.Equal(t, eo, got)
}

func TestDecodeArrayNullVsEmpty(t *testing.T) {
	buf := buffer.New(0)
	w := builtin.NewWriter(buf)
	require.NoError(t, EncodeArray[int32](w, nil, true, func(w *builtin.Writer, e int32) error { return w.PutInt32(e) }))
	require.NoError(t, EncodeArray[int32](w, []int32{}, false, func(w *builtin.Writer, e int32) error { return w.PutInt32(e) }))
	require.NoError(t, EncodeArray[int32](w, []int32{7, 8}, false, func(w *builtin.Writer, e int32) error { return w.PutInt32(e) }))

	r := builtin.NewReader(buf)
	decode := func(r *builtin.Reader) (int32, error) { return r.GetInt32() }

	elems, isNull, err := DecodeArray[int32](r, decode, nil)
	require.NoError(t, err)
	require.True(t, isNull)
	require.Nil(t, elems)

	elems, isNull, err = DecodeArray[int32](r, decode, nil)
	require.NoError(t, err)
	require.False(t, isNull)
	require.Len(t, elems, 0)

	elems, isNull, err = DecodeArray[int32](r, decode, nil)
	require.NoError(t, err)
	require.False(t, isNull)
	require.Equal(t, []int32{7, 8}, elems)
}

// TestDecodeArrayFirstElementFailureClearsNothing exercises the edge case
// where the very first array element fails to decode: the clear loop must
// not underflow past index 0.
func TestDecodeArrayFirstElementFailureClearsNothing(t *testing.T) {
	buf := buffer.New(0)
	w := builtin.NewWriter(buf)
	require.NoError(t, w.PutInt32(3))
	// No element bytes follow, so the first decode attempt fails immediately.

	r := builtin.NewReader(buf)
	cleared := 0
	decode := func(r *builtin.Reader) (int32, error) { return r.GetInt32() }
	clear := func(e *int32) { cleared++ }

	_, _, err := DecodeArray[int32](r, decode, clear)
	require.Error(t, err)
	require.Equal(t, 0, cleared)
}

func TestDecodeArrayLengthTooLarge(t *testing.T) {
	buf := buffer.New(0)
	w := builtin.NewWriter(buf)
	require.NoError(t, w.PutInt32(MaxArrayLength+1))

	r := builtin.NewReader(buf)
	decode := func(r *builtin.Reader) (int32, error) { return r.GetInt32() }
	_, _, err := DecodeArray[int32](r, decode, nil)
	require.ErrorIs(t, err, ErrArrayTooLarge)
}
