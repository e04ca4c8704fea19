package builtin

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/opcua-go/stack/pkg/buffer"
)

func TestScalarRoundTrip(t *testing.T) {
	buf := buffer.New(0)
	w := NewWriter(buf)
	require.NoError(t, w.PutBoolean(true))
	require.NoError(t, w.PutSByte(-5))
	require.NoError(t, w.PutByte(200))
	require.NoError(t, w.PutInt16(-1234))
	require.NoError(t, w.PutUInt32(0xdeadbeef))
	require.NoError(t, w.PutInt64(-9000000000))
	require.NoError(t, w.PutFloat(3.5))
	require.NoError(t, w.PutDouble(-2.25))

	r := NewReader(buf)
	b, err := r.GetBoolean()
	require.NoError(t, err)
	require.True(t, b)

	sb, err := r.GetSByte()
	require.NoError(t, err)
	require.EqualValues(t, -5, sb)

	by, err := r.GetByte()
	require.NoError(t, err)
	require.EqualValues(t, 200, by)

	i16, err := r.GetInt16()
	require.NoError(t, err)
	require.EqualValues(t, -1234, i16)

	u32, err := r.GetUInt32()
	require.NoError(t, err)
	require.EqualValues(t, 0xdeadbeef, u32)

	i64, err := r.GetInt64()
	require.NoError(t, err)
	require.EqualValues(t, -9000000000, i64)

	f, err := r.GetFloat()
	require.NoError(t, err)
	require.EqualValues(t, 3.5, f)

	d, err := r.GetDouble()
	require.NoError(t, err)
	require.EqualValues(t, -2.25, d)
}

func TestStringNullVsEmpty(t *testing.T) {
	buf := buffer.New(0)
	w := NewWriter(buf)
	require.NoError(t, w.PutString("", true))
	require.NoError(t, w.PutString("", false))
	require.NoError(t, w.PutString("hello", false))

	r := NewReader(buf)
	_, isNull, err := r.GetString()
	require.NoError(t, err)
	require.True(t, isNull)

	s, isNull, err := r.GetString()
	require.NoError(t, err)
	require.False(t, isNull)
	require.Equal(t, "", s)

	s, isNull, err = r.GetString()
	require.NoError(t, err)
	require.False(t, isNull)
	require.Equal(t, "hello", s)
}

func TestByteStringLengthTooLarge(t *testing.T) {
	buf := buffer.New(0)
	w := NewWriter(buf)
	require.NoError(t, w.PutInt32(MaxStringLength+1))

	r := NewReader(buf)
	_, _, err := r.GetByteString()
	require.Error(t, err)
}

func TestDateTimeRoundTrip(t *testing.T) {
	buf := buffer.New(0)
	w := NewWriter(buf)
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	require.NoError(t, w.PutDateTime(now))

	r := NewReader(buf)
	got, err := r.GetDateTime()
	require.NoError(t, err)
	require.WithinDuration(t, now, got, time.Microsecond)
}

func TestGUIDRoundTrip(t *testing.T) {
	buf := buffer.New(0)
	w := NewWriter(buf)
	data4 := [8]byte{1, 2, 3, 4, 5, 6, 7, 8}
	require.NoError(t, w.PutGUID(0x12345678, 0xabcd, 0x1234, data4))

	r := NewReader(buf)
	d1, d2, d3, d4, err := r.GetGUID()
	require.NoError(t, err)
	require.EqualValues(t, 0x12345678, d1)
	require.EqualValues(t, 0xabcd, d2)
	require.EqualValues(t, 0x1234, d3)
	require.Equal(t, data4, d4)
}

func TestShortReadReturnsError(t *testing.T) {
	buf := buffer.Wrap([]byte{1, 2})
	r := NewReader(buf)
	_, err := r.GetUInt32()
	require.Error(t, err)
}
