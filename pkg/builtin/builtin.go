// Package builtin implements the OPC UA builtin-type binary codec (spec
// §4.3): fixed-width scalars, length-prefixed strings/byte strings, GUIDs
// and date-time values, each encoded positionally with no type tag. A
// Writer/Reader pair wraps an underlying stream, with one Put*/Get* method
// per primitive type and explicit short-read/overflow errors, following
// OPC UA Part 6's plain positional layout.
package builtin

import (
	"encoding/binary"
	"errors"
	"math"
	"time"

	"github.com/opcua-go/stack/pkg/buffer"
	"github.com/opcua-go/stack/pkg/status"
)

// NullString length, used to distinguish a null string/bytestring from an
// empty one on the wire (both carry meaning in OPC UA).
const NullLength int32 = -1

// MaxStringLength bounds a single decoded string/bytestring (spec
// configuration options: a deployment-wide hard cap against malformed or
// hostile length prefixes).
var MaxStringLength int32 = 128 * 1024 * 1024

var (
	ErrNegativeLength = errors.New("builtin: length prefix is negative and not NullLength")
	ErrLengthTooLarge = errors.New("builtin: length prefix exceeds MaxStringLength")
)

// Writer encodes builtin-typed values into an underlying buffer.
type Writer struct {
	buf *buffer.Buffer
}

// NewWriter wraps buf for encoding.
func NewWriter(buf *buffer.Buffer) *Writer { return &Writer{buf: buf} }

func (w *Writer) PutBoolean(v bool) error {
	if v {
		return w.buf.WriteByte(1)
	}
	return w.buf.WriteByte(0)
}

func (w *Writer) PutSByte(v int8) error { return w.buf.WriteByte(byte(v)) }
func (w *Writer) PutByte(v uint8) error { return w.buf.WriteByte(v) }

func (w *Writer) PutInt16(v int16) error  { return w.putUint16(uint16(v)) }
func (w *Writer) PutUInt16(v uint16) error { return w.putUint16(v) }

func (w *Writer) putUint16(v uint16) error {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	_, err := w.buf.Write(b[:])
	return err
}

func (w *Writer) PutInt32(v int32) error   { return w.putUint32(uint32(v)) }
func (w *Writer) PutUInt32(v uint32) error { return w.putUint32(v) }

func (w *Writer) putUint32(v uint32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	_, err := w.buf.Write(b[:])
	return err
}

func (w *Writer) PutInt64(v int64) error   { return w.putUint64(uint64(v)) }
func (w *Writer) PutUInt64(v uint64) error { return w.putUint64(v) }

func (w *Writer) putUint64(v uint64) error {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	_, err := w.buf.Write(b[:])
	return err
}

func (w *Writer) PutFloat(v float32) error { return w.putUint32(math.Float32bits(v)) }
func (w *Writer) PutDouble(v float64) error { return w.putUint64(math.Float64bits(v)) }

// PutDateTime encodes t as a 100ns-tick count since 1601-01-01 UTC, per
// Part 6, 5.2.2.5.
func (w *Writer) PutDateTime(t time.Time) error {
	const ticksPerSecond = 10_000_000
	const epochDeltaSeconds = 11_644_473_600 // 1601-01-01 to 1970-01-01
	ticks := (t.Unix()+epochDeltaSeconds)*ticksPerSecond + int64(t.Nanosecond())/100
	return w.PutInt64(ticks)
}

// PutString encodes a string as an Int32 byte length followed by its UTF-8
// bytes, or NullLength with no bytes for a nil string (s == "" and
// isNull distinguish "" from null).
func (w *Writer) PutString(s string, isNull bool) error {
	return w.PutByteString([]byte(s), isNull)
}

// PutByteString encodes a length-prefixed byte string. Passing isNull=true
// encodes the OPC UA "null" byte string (length -1) regardless of data.
func (w *Writer) PutByteString(data []byte, isNull bool) error {
	if isNull {
		return w.PutInt32(NullLength)
	}
	if err := w.PutInt32(int32(len(data))); err != nil {
		return err
	}
	_, err := w.buf.Write(data)
	return err
}

// PutGUID encodes a GUID in the mixed-endian layout Part 6, 5.1.3 defines:
// Data1 (UInt32 LE), Data2 (UInt16 LE), Data3 (UInt16 LE), Data4 (8 raw
// bytes, big-endian / network order).
func (w *Writer) PutGUID(data1 uint32, data2, data3 uint16, data4 [8]byte) error {
	if err := w.PutUInt32(data1); err != nil {
		return err
	}
	if err := w.PutUInt16(data2); err != nil {
		return err
	}
	if err := w.PutUInt16(data3); err != nil {
		return err
	}
	_, err := w.buf.Write(data4[:])
	return err
}

// WriteRaw writes data with no length prefix or framing of its own, for
// callers (such as the PubSub security header) that manage their own
// length field.
func (w *Writer) WriteRaw(data []byte) (int, error) {
	return w.buf.Write(data)
}

// Reader decodes builtin-typed values from an underlying buffer.
type Reader struct {
	buf *buffer.Buffer
}

// NewReader wraps buf for decoding.
func NewReader(buf *buffer.Buffer) *Reader { return &Reader{buf: buf} }

// ReadRaw reads exactly n unframed bytes, the counterpart to WriteRaw.
func (r *Reader) ReadRaw(n int) ([]byte, error) {
	data, err := r.buf.ReadExact(n)
	if err != nil {
		return nil, wrapShortRead(err, "raw bytes")
	}
	return data, nil
}

func (r *Reader) GetBoolean() (bool, error) {
	b, err := r.buf.ReadByte()
	if err != nil {
		return false, status.Wrap(status.EncodingError, "builtin: read boolean", err)
	}
	return b != 0, nil
}

func (r *Reader) GetSByte() (int8, error) {
	b, err := r.buf.ReadByte()
	return int8(b), wrapShortRead(err, "sbyte")
}

func (r *Reader) GetByte() (uint8, error) {
	b, err := r.buf.ReadByte()
	return b, wrapShortRead(err, "byte")
}

func (r *Reader) GetInt16() (int16, error) {
	v, err := r.getUint16()
	return int16(v), err
}

func (r *Reader) GetUInt16() (uint16, error) { return r.getUint16() }

func (r *Reader) getUint16() (uint16, error) {
	b, err := r.buf.ReadExact(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (r *Reader) GetInt32() (int32, error) {
	v, err := r.getUint32()
	return int32(v), err
}

func (r *Reader) GetUInt32() (uint32, error) { return r.getUint32() }

func (r *Reader) getUint32() (uint32, error) {
	b, err := r.buf.ReadExact(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *Reader) GetInt64() (int64, error) {
	v, err := r.getUint64()
	return int64(v), err
}

func (r *Reader) GetUInt64() (uint64, error) { return r.getUint64() }

func (r *Reader) getUint64() (uint64, error) {
	b, err := r.buf.ReadExact(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (r *Reader) GetFloat() (float32, error) {
	v, err := r.getUint32()
	return math.Float32frombits(v), err
}

func (r *Reader) GetDouble() (float64, error) {
	v, err := r.getUint64()
	return math.Float64frombits(v), err
}

func (r *Reader) GetDateTime() (time.Time, error) {
	ticks, err := r.GetInt64()
	if err != nil {
		return time.Time{}, err
	}
	const ticksPerSecond = 10_000_000
	const epochDeltaSeconds = 11_644_473_600 // 1601-01-01 to 1970-01-01
	sec := ticks/ticksPerSecond - epochDeltaSeconds
	nsec := (ticks % ticksPerSecond) * 100
	return time.Unix(sec, nsec).UTC(), nil
}

// GetString decodes a length-prefixed string. isNull reports whether the
// wire value was the null string (length -1), in which case s is "".
func (r *Reader) GetString() (s string, isNull bool, err error) {
	data, isNull, err := r.GetByteString()
	if err != nil {
		return "", false, err
	}
	return string(data), isNull, nil
}

// GetByteString decodes a length-prefixed byte string, returning
// isNull=true for the null encoding (length -1) with a nil slice.
func (r *Reader) GetByteString() (data []byte, isNull bool, err error) {
	length, err := r.GetInt32()
	if err != nil {
		return nil, false, err
	}
	if length == NullLength {
		return nil, true, nil
	}
	if length < 0 {
		return nil, false, status.Wrap(status.EncodingError, "builtin: negative length", ErrNegativeLength)
	}
	if length > MaxStringLength {
		return nil, false, status.Wrap(status.OutOfMemory, "builtin: length prefix too large", ErrLengthTooLarge)
	}
	raw, err := r.buf.ReadExact(int(length))
	if err != nil {
		return nil, false, err
	}
	out := make([]byte, len(raw))
	copy(out, raw)
	return out, false, nil
}

// GetGUID decodes a GUID in the mixed-endian layout PutGUID writes.
func (r *Reader) GetGUID() (data1 uint32, data2, data3 uint16, data4 [8]byte, err error) {
	if data1, err = r.GetUInt32(); err != nil {
		return
	}
	if data2, err = r.GetUInt16(); err != nil {
		return
	}
	if data3, err = r.GetUInt16(); err != nil {
		return
	}
	raw, rerr := r.buf.ReadExact(8)
	if rerr != nil {
		err = rerr
		return
	}
	copy(data4[:], raw)
	return
}

func wrapShortRead(err error, what string) error {
	if err == nil {
		return nil
	}
	return status.Wrap(status.EncodingError, "builtin: read "+what, err)
}
