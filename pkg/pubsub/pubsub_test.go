package pubsub

import (
	"testing"
	"time"

	"github.com/opcua-go/stack/pkg/buffer"
	"github.com/opcua-go/stack/pkg/builtin"
	"github.com/opcua-go/stack/pkg/crypto"
	"github.com/opcua-go/stack/pkg/uatypes"
	"github.com/stretchr/testify/require"
)

// encodeDataSetMessagesForTest concatenates the wire encoding of each
// DataSetMessage, the shape NetworkMessage.RawPayload carries before its
// security header (if any) has protected it.
func encodeDataSetMessagesForTest(sets []DataSetMessage) ([]byte, error) {
	buf := buffer.New(buffer.DefaultMaxSize)
	w := builtin.NewWriter(buf)
	for i := range sets {
		if err := EncodeDataSetMessage(w, &sets[i]); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func TestUADPRoundTripFourFields(t *testing.T) {
	fields := []uatypes.Variant{
		{TypeId: uatypes.TypeString, Scalar: "The Ultimate Question of Life, the Universe and Everything"},
		{TypeId: uatypes.TypeUInt32, Scalar: uint32(42)},
		{TypeId: uatypes.TypeInt16, Scalar: int16(-314)},
		{TypeId: uatypes.TypeBoolean, Scalar: true},
	}

	nm := &NetworkMessage{
		Header: &NetworkMessageHeader{
			Version:            UADPVersion,
			PublisherIDPresent: true,
			PublisherIDType:    PublisherIDUInt16,
			PublisherID:        uint16(3),
			GroupHeaderPresent: true,
			PayloadHeaderPresent: true,
		},
		Group: &GroupHeader{
			WriterGroupIDPresent: true,
			WriterGroupID:        10,
			GroupVersionPresent:  true,
			GroupVersion:         0,
		},
		Payload: &PayloadHeader{DataSetWriterIDs: []uint16{62541}},
	}
	nm.DataSets = []DataSetMessage{{Fields: fields}}

	rawPayload, err := encodeDataSetMessagesForTest(nm.DataSets)
	require.NoError(t, err)
	nm.RawPayload = rawPayload

	encoded, err := EncodeNetworkMessage(nm)
	require.NoError(t, err)

	decoded, err := DecodeNetworkMessage(encoded)
	require.NoError(t, err)
	require.Equal(t, byte(UADPVersion), decoded.Header.Version)
	require.Equal(t, uint16(3), decoded.Header.PublisherID)
	require.Equal(t, uint16(10), decoded.Group.WriterGroupID)
	require.Equal(t, []uint16{62541}, decoded.Payload.DataSetWriterIDs)

	require.NoError(t, ParsePayload(decoded))
	require.Len(t, decoded.DataSets, 1)
	require.Equal(t, fields[0].Scalar, decoded.DataSets[0].Fields[0].Scalar)
	require.Equal(t, fields[1].Scalar, decoded.DataSets[0].Fields[1].Scalar)
	require.Equal(t, fields[2].Scalar, decoded.DataSets[0].Fields[2].Scalar)
	require.Equal(t, fields[3].Scalar, decoded.DataSets[0].Fields[3].Scalar)
}

func TestUADPRoundTripFiveFieldsUInt32Publisher(t *testing.T) {
	now := time.Now()
	fields := []uatypes.Variant{
		{TypeId: uatypes.TypeUInt32, Scalar: uint32(12071982)},
		{TypeId: uatypes.TypeByte, Scalar: byte(239)},
		{TypeId: uatypes.TypeUInt16, Scalar: uint16(64852)},
		{TypeId: uatypes.TypeDateTime, Scalar: now},
		{TypeId: uatypes.TypeUInt32, Scalar: uint32(369852)},
	}

	nm := &NetworkMessage{
		Header: &NetworkMessageHeader{
			Version:            UADPVersion,
			PublisherIDPresent: true,
			PublisherIDType:    PublisherIDUInt32,
			PublisherID:        uint32(15300),
			GroupHeaderPresent: true,
			PayloadHeaderPresent: true,
		},
		Group: &GroupHeader{
			WriterGroupIDPresent: true,
			WriterGroupID:        1245,
			GroupVersionPresent:  true,
			GroupVersion:         963852,
		},
		Payload: &PayloadHeader{DataSetWriterIDs: []uint16{123}},
	}
	nm.DataSets = []DataSetMessage{{Fields: fields}}

	rawPayload, err := encodeDataSetMessagesForTest(nm.DataSets)
	require.NoError(t, err)
	nm.RawPayload = rawPayload

	encoded, err := EncodeNetworkMessage(nm)
	require.NoError(t, err)

	decoded, err := DecodeNetworkMessage(encoded)
	require.NoError(t, err)
	require.NoError(t, ParsePayload(decoded))
	require.Len(t, decoded.DataSets[0].Fields, 5)
	require.Equal(t, uint32(12071982), decoded.DataSets[0].Fields[0].Scalar)
	require.Equal(t, byte(239), decoded.DataSets[0].Fields[1].Scalar)
	require.Equal(t, uint16(64852), decoded.DataSets[0].Fields[2].Scalar)
}

func TestFreshnessTrackerAcceptsFirstAndMonotonic(t *testing.T) {
	var gaps []GapEvent
	tr := NewFreshnessTracker(func(e GapEvent) { gaps = append(gaps, e) })

	require.True(t, tr.Check("3", 62541, 100))
	require.True(t, tr.Check("3", 62541, 101))
	require.True(t, tr.Check("3", 62541, 102))

	// replay: same SN again must be rejected.
	require.False(t, tr.Check("3", 62541, 101))
	require.Len(t, gaps, 1)
}

func TestFreshnessTrackerRejectsFarBehind(t *testing.T) {
	tr := NewFreshnessTracker(nil)
	require.True(t, tr.Check("3", 1, 1000))
	require.False(t, tr.Check("3", 1, 1))
}

func TestSecurityContextResolveMissingDropsSilently(t *testing.T) {
	table := NewSecurityContextTable()
	nm := &NetworkMessage{
		Header: &NetworkMessageHeader{PublisherID: uint16(3)},
		Group:  &GroupHeader{WriterGroupIDPresent: true, WriterGroupID: 10},
		Security: &SecurityHeader{SecurityTokenID: 7},
	}
	_, ok := table.Resolve(nm)
	require.False(t, ok)
}

func TestUnsealSignOnly(t *testing.T) {
	keys, err := crypto.DerivePubSubKeys([]byte("0123456789abcdef0123456789abcdef"), 32, 32)
	require.NoError(t, err)

	ctx := &SecurityContext{Mode: SecurityModeSign, Keys: keys}
	body := []byte("payload-bytes")
	sig := crypto.HMACSHA256Slice(keys.SigningKey, body)

	nm := &NetworkMessage{RawPayload: body, Signature: sig}
	require.NoError(t, Unseal(nm, ctx, body))
	require.Equal(t, body, nm.RawPayload)
}

func TestUnsealSignAndEncrypt(t *testing.T) {
	keys, err := crypto.DerivePubSubKeys([]byte("0123456789abcdef0123456789abcdef"), 32, 32)
	require.NoError(t, err)

	ctx := &SecurityContext{Mode: SecurityModeSignAndEncrypt, Keys: keys}
	plaintext := []byte("secret-dataset-bytes")
	messageNonce := []byte{1, 2, 3, 4}
	iv := buildIV(keys.KeyNonce, messageNonce)
	ciphertext, err := crypto.AESCTREncrypt(keys.EncryptingKey, iv, plaintext)
	require.NoError(t, err)
	sig := crypto.HMACSHA256Slice(keys.SigningKey, ciphertext)

	nm := &NetworkMessage{
		RawPayload: ciphertext,
		Signature:  sig,
		Security:   &SecurityHeader{MessageNonce: messageNonce},
	}
	require.NoError(t, Unseal(nm, ctx, ciphertext))
	require.Equal(t, plaintext, nm.RawPayload)
}
