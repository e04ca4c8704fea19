package uatypes

import (
	"github.com/opcua-go/stack/pkg/builtin"
	"github.com/opcua-go/stack/pkg/status"
)

// MaxArrayLength bounds any array length prefix this package decodes,
// guarding against a corrupt or hostile length driving an unbounded
// allocation (spec §4.4, Array edge cases).
const MaxArrayLength int32 = 1 << 20

// ElementEncoder encodes the i-th array element.
type ElementEncoder[T any] func(w *builtin.Writer, elem T) error

// ElementDecoder decodes one array element.
type ElementDecoder[T any] func(r *builtin.Reader) (T, error)

// ElementClearer resets an already-decoded element to its zero value,
// invoked when a later element in the same array fails to decode so the
// array can be discarded without calling back into a partially built
// value. Most Go element types need no clearing; pass nil to skip it.
type ElementClearer[T any] func(elem *T)

// EncodeArray writes a length-prefixed array, or NullLength with nil
// elements to mean the OPC UA null array (distinct from an empty one).
func EncodeArray[T any](w *builtin.Writer, elems []T, isNull bool, encode ElementEncoder[T]) error {
	if isNull {
		return w.PutInt32(builtin.NullLength)
	}
	if err := w.PutInt32(int32(len(elems))); err != nil {
		return err
	}
	for _, e := range elems {
		if err := encode(w, e); err != nil {
			return err
		}
	}
	return nil
}

// DecodeArray reads a length-prefixed array. isNull reports the null-array
// encoding (length -1), in which case elems is nil. On a mid-array decode
// failure, already-decoded elements are cleared from the last successfully
// decoded index back down to (but not below) zero, then the error is
// returned with a nil slice — clear is optional and may be nil.
func DecodeArray[T any](r *builtin.Reader, decode ElementDecoder[T], clear ElementClearer[T]) (elems []T, isNull bool, err error) {
	count, err := r.GetInt32()
	if err != nil {
		return nil, false, err
	}
	if count == builtin.NullLength {
		return nil, true, nil
	}
	if count < 0 {
		return nil, false, ErrNegativeArrayLength
	}
	if count > MaxArrayLength {
		return nil, false, status.Wrap(status.OutOfMemory, "uatypes: array length exceeds MaxArrayLength", ErrArrayTooLarge)
	}

	out := make([]T, count)
	for i := int32(0); i < count; i++ {
		v, derr := decode(r)
		if derr != nil {
			if clear != nil {
				// Clear everything successfully decoded so far, walking
				// backward from the last good index. i itself never
				// decoded, so the clear loop starts at i-1 and must not
				// run at all when the very first element (i == 0) failed.
				for j := i - 1; j >= 0; j-- {
					clear(&out[j])
				}
			}
			return nil, false, derr
		}
		out[i] = v
	}
	return out, false, nil
}
