package securechannel

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"net"
	"testing"
	"time"

	"github.com/opcua-go/stack/pkg/actionqueue"
	"github.com/opcua-go/stack/pkg/buffer"
	"github.com/opcua-go/stack/pkg/builtin"
	"github.com/opcua-go/stack/pkg/crypto"
	"github.com/stretchr/testify/require"
)

// selfSignedECCert generates a P-256 key pair and a self-signed certificate
// for it, returning both the certificate DER and the matching
// crypto.P256KeyPair (built from the same private scalar) for the
// ECC_nistP256 asymmetric handshake.
func selfSignedECCert(t *testing.T) ([]byte, *crypto.P256KeyPair) {
	t.Helper()
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "test"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &priv.PublicKey, priv)
	require.NoError(t, err)

	scalar := make([]byte, crypto.P256GroupSizeBytes)
	priv.D.FillBytes(scalar)
	kp, err := crypto.P256KeyPairFromPrivateKey(scalar)
	require.NoError(t, err)

	return der, kp
}

func TestChunkRoundTrip(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	done := make(chan error, 1)
	go func() {
		done <- WriteChunk(client, MessageTypeMSG, ChunkFinal, 7, []byte("hello"))
	}()

	hdr, body, err := ReadChunk(server)
	require.NoError(t, err)
	require.NoError(t, <-done)
	require.Equal(t, MessageTypeMSG, hdr.MessageType)
	require.Equal(t, ChunkFinal, hdr.ChunkType)
	require.Equal(t, uint32(7), hdr.SecureChannelID)
	require.Equal(t, []byte("hello"), body)
}

func TestSequenceNewerWraps(t *testing.T) {
	require.True(t, sequenceNewer(100, 101))
	require.True(t, sequenceNewer(0xFFFFFFFF, 0))
	require.False(t, sequenceNewer(100, 100))
	require.False(t, sequenceNewer(100, 50))
}

func TestSocketTransactionRejectsInterleaving(t *testing.T) {
	txn := newSocketTransaction()
	require.NoError(t, txn.apply(eventStart, 1))
	require.ErrorIs(t, txn.apply(eventStart, 2), ErrSocketBusy)
	require.NoError(t, txn.apply(eventContinue, 1))
	require.NoError(t, txn.apply(eventEnd, 1))
	// transaction is free again
	require.NoError(t, txn.apply(eventStart, 2))
}

func TestSocketTransactionRecoversFromError(t *testing.T) {
	txn := newSocketTransaction()
	require.NoError(t, txn.apply(eventStart, 1))
	require.NoError(t, txn.apply(eventSocketError, 1))
	require.NoError(t, txn.apply(eventStart, 2))
}

func TestHeadersRoundTrip(t *testing.T) {
	buf := buffer.New(256)
	w := builtin.NewWriter(buf)
	asym := AsymmetricSecurityHeader{
		SecurityPolicyURI:             "http://opcfoundation.org/UA/SecurityPolicy#None",
		SenderCertificate:             []byte{1, 2, 3},
		ReceiverCertificateThumbprint: []byte{4, 5, 6},
	}
	require.NoError(t, EncodeAsymmetricSecurityHeader(w, asym))
	require.NoError(t, EncodeSequenceHeader(w, SequenceHeader{SequenceNumber: 9, RequestID: 3}))

	buf.ResetRead()
	r := builtin.NewReader(buf)
	gotAsym, err := DecodeAsymmetricSecurityHeader(r)
	require.NoError(t, err)
	require.Equal(t, asym, gotAsym)
	gotSeq, err := DecodeSequenceHeader(r)
	require.NoError(t, err)
	require.Equal(t, SequenceHeader{SequenceNumber: 9, RequestID: 3}, gotSeq)
}

func TestOpenSecureChannelRequestResponseRoundTrip(t *testing.T) {
	req := OpenSecureChannelRequest{
		Header:                RequestHeader{RequestHandle: 1, ReturnDiagnostics: DiagnosticsSymbolicID},
		ClientProtocolVersion: 0,
		RequestType:           RequestTypeIssue,
		SecurityMode:          SecurityModeNone,
		RequestedLifetime:     60000,
	}
	buf := buffer.New(512)
	require.NoError(t, EncodeOpenSecureChannelRequest(builtin.NewWriter(buf), req))
	buf.ResetRead()
	got, err := DecodeOpenSecureChannelRequest(builtin.NewReader(buf))
	require.NoError(t, err)
	require.Equal(t, req.ClientProtocolVersion, got.ClientProtocolVersion)
	require.Equal(t, req.SecurityMode, got.SecurityMode)
	require.Equal(t, req.RequestedLifetime, got.RequestedLifetime)

	resp := OpenSecureChannelResponse{
		ServerProtocolVersion: 0,
		SecurityToken:         SecurityToken{ChannelID: 42, TokenID: 1, RevisedLifetime: 60000},
	}
	buf2 := buffer.New(512)
	require.NoError(t, EncodeOpenSecureChannelResponse(builtin.NewWriter(buf2), resp))
	buf2.ResetRead()
	gotResp, err := DecodeOpenSecureChannelResponse(builtin.NewReader(buf2))
	require.NoError(t, err)
	require.Equal(t, resp.SecurityToken, gotResp.SecurityToken)
}

// fakeServer plays the minimum required role of an OPC UA server over a
// net.Pipe connection: decode the OPN request, reply with a
// SecurityModeNone OPN response, then echo every MSG request's body back
// as a single final chunk under the same request id.
func fakeServer(t *testing.T, conn net.Conn) {
	t.Helper()
	hdr, rest, err := ReadChunk(conn)
	require.NoError(t, err)
	require.Equal(t, MessageTypeOPN, hdr.MessageType)

	asymHdr, body, err := decodeAsymHeaderPrefix(rest)
	require.NoError(t, err)
	require.Equal(t, "", asymHdr.SecurityPolicyURI)

	plainBuf := buffer.Wrap(body)
	plainReader := builtin.NewReader(plainBuf)
	_, err = DecodeSequenceHeader(plainReader)
	require.NoError(t, err)
	_, err = DecodeOpenSecureChannelRequest(plainReader)
	require.NoError(t, err)

	respBuf := buffer.New(512)
	require.NoError(t, EncodeSequenceHeader(builtin.NewWriter(respBuf), SequenceHeader{SequenceNumber: 1, RequestID: 1}))
	require.NoError(t, EncodeOpenSecureChannelResponse(builtin.NewWriter(respBuf), OpenSecureChannelResponse{
		ServerProtocolVersion: 0,
		SecurityToken:         SecurityToken{ChannelID: 99, TokenID: 7, RevisedLifetime: 60000},
	}))

	respHeaderBuf := buffer.New(64)
	require.NoError(t, EncodeAsymmetricSecurityHeader(builtin.NewWriter(respHeaderBuf), AsymmetricSecurityHeader{}))
	chunkBody := append(append([]byte{}, respHeaderBuf.Bytes()...), respBuf.Bytes()...)
	require.NoError(t, WriteChunk(conn, MessageTypeOPN, ChunkFinal, 0, chunkBody))

	for {
		hdr, rest, err := ReadChunk(conn)
		if err != nil {
			return
		}
		if hdr.MessageType == MessageTypeCLO {
			return
		}

		symBuf := buffer.Wrap(rest)
		symReader := builtin.NewReader(symBuf)
		_, err = DecodeSymmetricSecurityHeader(symReader)
		require.NoError(t, err)
		seqBuf := buffer.Wrap(symBuf.Unread())
		seqReader := builtin.NewReader(seqBuf)
		seq, err := DecodeSequenceHeader(seqReader)
		require.NoError(t, err)
		echoBody := seqBuf.Unread()

		outSeq := buffer.New(16)
		require.NoError(t, EncodeSequenceHeader(builtin.NewWriter(outSeq), SequenceHeader{SequenceNumber: seq.SequenceNumber + 1000, RequestID: seq.RequestID}))
		outSecHeader := buffer.New(8)
		require.NoError(t, EncodeSymmetricSecurityHeader(builtin.NewWriter(outSecHeader), SymmetricSecurityHeader{TokenID: 7}))
		out := append(append([]byte{}, outSecHeader.Bytes()...), append(append([]byte{}, outSeq.Bytes()...), echoBody...)...)
		require.NoError(t, WriteChunk(conn, MessageTypeMSG, ChunkFinal, 99, out))
	}
}

func TestClientConnectAndSendModeNone(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer serverConn.Close()

	go fakeServer(t, serverConn)

	queues := actionqueue.NewManager(actionqueue.ManagerConfig{})
	require.NoError(t, queues.Start())
	defer queues.Stop()

	client := NewClient(ClientConfig{
		Dial:           func(ctx context.Context) (net.Conn, error) { return clientConn, nil },
		SecurityMode:   SecurityModeNone,
		SendBufferSize: 4096,
		Queues:         queues,
	})

	require.NoError(t, client.Connect(context.Background()))
	require.Equal(t, StateConnected, client.State())

	done := make(chan struct{})
	var gotBody []byte
	var gotErr error
	require.NoError(t, client.Send([]byte("ping"), func(body []byte, err error) {
		gotBody, gotErr = body, err
		close(done)
	}))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("response callback never ran")
	}
	require.NoError(t, gotErr)
	require.Equal(t, []byte("ping"), gotBody)

	require.NoError(t, client.Close())
	require.Equal(t, StateDisconnected, client.State())
}

func TestECCAsymmetricSealUnsealRoundTrip(t *testing.T) {
	clientCertDER, clientKP := selfSignedECCert(t)
	serverCertDER, serverKP := selfSignedECCert(t)

	sender := NewClient(ClientConfig{
		SecurityPolicyURI:     SecurityPolicyECCNistP256,
		SecurityMode:          SecurityModeSignAndEncrypt,
		ClientECKeyPair:       clientKP,
		ServerCertificateHint: serverCertDER,
	})

	plaintext := []byte("open secure channel request body")
	sealed, err := sender.sealAsymmetric(plaintext)
	require.NoError(t, err)
	require.NotEqual(t, plaintext, sealed)

	// The receiving side decrypts with its own EC key pair and verifies
	// against the sender's certificate — ECDH agreement is symmetric, so
	// both sides derive the same shared secret from the opposite key pair.
	receiver := NewClient(ClientConfig{
		SecurityPolicyURI: SecurityPolicyECCNistP256,
		SecurityMode:      SecurityModeSignAndEncrypt,
		ClientECKeyPair:   serverKP,
	})
	plain, err := receiver.unsealAsymmetricResponseECC(sealed, AsymmetricSecurityHeader{SenderCertificate: clientCertDER})
	require.NoError(t, err)
	require.Equal(t, plaintext, plain)
}

func TestECCAsymmetricSealRequiresKeyPair(t *testing.T) {
	client := NewClient(ClientConfig{
		SecurityPolicyURI: SecurityPolicyECCNistP256,
		SecurityMode:      SecurityModeSign,
	})
	_, err := client.sealAsymmetric([]byte("body"))
	require.Error(t, err)
}
