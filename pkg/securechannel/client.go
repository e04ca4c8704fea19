package securechannel

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opcua-go/stack/pkg/actionqueue"
	"github.com/opcua-go/stack/pkg/buffer"
	"github.com/opcua-go/stack/pkg/builtin"
	"github.com/opcua-go/stack/pkg/crypto"
	"github.com/opcua-go/stack/pkg/pki"
	"github.com/opcua-go/stack/pkg/status"
	"github.com/pion/logging"
)

// Dialer opens the byte-stream transport connection a Client bootstraps
// its Secure Channel over. Usually net.Dial("tcp", addr) wrapped in a
// signature accepting a context.
type Dialer func(ctx context.Context) (net.Conn, error)

// ClientConfig configures a Client. Fields with no default must be set.
type ClientConfig struct {
	Dial                   Dialer
	SecurityPolicyURI      string
	SecurityMode           SecurityMode
	ClientCertificate      []byte              // DER; nil under SecurityModeNone
	ClientKeyPair          *crypto.RSAKeyPair  // required for Basic256Sha256 and similar RSA policies
	ClientECKeyPair        *crypto.P256KeyPair // required for SecurityPolicyECCNistP256
	ServerCertificateHint  []byte              // expected server cert DER, for the receiver-thumbprint field; optional
	TrustList              *pki.TrustList
	ExpectedApplicationURI string

	ClientProtocolVersion uint32 // defaults to 0
	RequestedLifetime     uint32 // defaults to 60000 (ms)
	SendBufferSize        int    // defaults to 8192
	RequestTimeout        time.Duration
	TimeoutSweepInterval  time.Duration // defaults to 1s

	Queues  *actionqueue.Manager // required; owns the protocol/callback queues
	Handler EventHandler         // optional

	LoggerFactory logging.LoggerFactory

	Backoff *BackoffCalculator // defaults to NewBackoffCalculator(nil)
}

// Client is one Secure Channel connection's client-side state machine
// (spec §4.7): a mutex-guarded struct of negotiated parameters, an
// action-queue-driven dispatch loop, and a dedicated reception goroutine
// reading off one net.Conn.
type Client struct {
	config ClientConfig

	mu      sync.Mutex
	state   State
	conn    net.Conn
	channel SecurityToken
	prevTokenID uint32
	crypto  *channelCrypto

	sendSeq       uint32
	recvSeq       uint32
	recvSeqKnown  bool
	nextHandle    uint32
	maxBodySize   int

	pending   *pendingMap
	socketTxn *socketTransaction

	log      logging.LeveledLogger
	stopCh   chan struct{}
	wg       sync.WaitGroup
	attempts int32
}

// NewClient creates a Client. No connection is made until Connect.
func NewClient(config ClientConfig) *Client {
	if config.ClientProtocolVersion == 0 {
		config.ClientProtocolVersion = 0
	}
	if config.RequestedLifetime == 0 {
		config.RequestedLifetime = 60000
	}
	if config.SendBufferSize == 0 {
		config.SendBufferSize = 8192
	}
	if config.TimeoutSweepInterval == 0 {
		config.TimeoutSweepInterval = time.Second
	}
	if config.Backoff == nil {
		config.Backoff = NewBackoffCalculator(nil)
	}

	c := &Client{
		config:    config,
		state:     StateDisconnected,
		pending:   newPendingMap(),
		socketTxn: newSocketTransaction(),
	}
	if config.LoggerFactory != nil {
		c.log = config.LoggerFactory.NewLogger("securechannel")
	}
	return c
}

// State returns the client's current lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Connect dials the transport, performs the OPN exchange, and on success
// starts the reception and timeout-sweep goroutines, leaving the client
// in StateConnected. Any failure passes through StateError, leaves the
// client in StateDisconnected and, if a Handler is configured, emits
// EventConnectionFailed on the callback queue.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return ErrAlreadyConnecting
	}
	c.state = StateConnectingTransport
	c.mu.Unlock()

	conn, err := c.config.Dial(ctx)
	if err != nil {
		c.fail(EventConnectionFailed, err)
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.state = StateConnectingSecure
	c.mu.Unlock()

	if err := c.openSecureChannel(); err != nil {
		c.fail(EventConnectionFailed, err)
		_ = conn.Close()
		return err
	}

	c.setState(StateConnected)
	c.ResetBackoff()
	c.stopCh = make(chan struct{})
	c.wg.Add(2)
	go c.receiveLoop()
	go c.timeoutSweepLoop()
	return nil
}

// NextReconnectDelay returns the backoff duration a reconnect supervisor
// should wait before the next Connect attempt, advancing the internal
// attempt counter. ResetBackoff zeros the counter again after a
// successful Connect.
func (c *Client) NextReconnectDelay(baseInterval time.Duration) time.Duration {
	n := atomic.AddInt32(&c.attempts, 1) - 1
	return c.config.Backoff.Calculate(baseInterval, int(n))
}

// ResetBackoff zeros the reconnect-attempt counter.
func (c *Client) ResetBackoff() {
	atomic.StoreInt32(&c.attempts, 0)
}

func (c *Client) fail(event Event, cause error) {
	c.setState(StateError)
	if c.config.Handler != nil && c.config.Queues != nil {
		_ = c.config.Queues.Callback.Submit(func() { c.config.Handler(event, cause) })
	}
	c.setState(StateDisconnected)
}

// openSecureChannel sends the single-chunk OPN request and blocks for its
// response, both on the calling goroutine, since the channel is not yet
// established and has no reception goroutine running.
func (c *Client) openSecureChannel() error {
	clientNonce, err := c.clientNonce()
	if err != nil {
		return err
	}

	reqHandle := c.nextRequestHandle()
	req := OpenSecureChannelRequest{
		Header: RequestHeader{
			RequestHandle:     reqHandle,
			ReturnDiagnostics: DiagnosticsSymbolicID,
			Timestamp:         time.Now(),
		},
		ClientProtocolVersion: c.config.ClientProtocolVersion,
		RequestType:           RequestTypeIssue,
		SecurityMode:          c.config.SecurityMode,
		ClientNonce:           clientNonce,
		RequestedLifetime:     c.config.RequestedLifetime,
	}

	bodyBuf := buffer.New(c.config.SendBufferSize)
	bodyWriter := builtin.NewWriter(bodyBuf)
	if err := EncodeOpenSecureChannelRequest(bodyWriter, req); err != nil {
		return status.Wrap(status.EncodingError, "encoding OpenSecureChannelRequest", err)
	}

	asymHeader := AsymmetricSecurityHeader{
		SecurityPolicyURI:             c.config.SecurityPolicyURI,
		SenderCertificate:             c.config.ClientCertificate,
		ReceiverCertificateThumbprint: thumbprint(c.config.ServerCertificateHint),
	}
	headerBuf := buffer.New(c.config.SendBufferSize)
	headerWriter := builtin.NewWriter(headerBuf)
	if err := EncodeAsymmetricSecurityHeader(headerWriter, asymHeader); err != nil {
		return status.Wrap(status.EncodingError, "encoding asymmetric security header", err)
	}

	seq := SequenceHeader{SequenceNumber: c.nextSendSeq(), RequestID: reqHandle}
	seqBuf := buffer.New(16)
	if err := EncodeSequenceHeader(builtin.NewWriter(seqBuf), seq); err != nil {
		return err
	}

	plaintext := append(append([]byte{}, seqBuf.Bytes()...), bodyBuf.Bytes()...)
	signed, err := c.sealAsymmetric(plaintext)
	if err != nil {
		return err
	}

	chunkBody := append(append([]byte{}, headerBuf.Bytes()...), signed...)
	if err := WriteChunk(c.conn, MessageTypeOPN, ChunkFinal, 0, chunkBody); err != nil {
		return status.Wrap(status.GenericFailure, "writing OPN chunk", err)
	}

	hdr, rest, err := ReadChunk(c.conn)
	if err != nil {
		return status.Wrap(status.GenericFailure, "reading OPN response chunk", err)
	}
	if hdr.MessageType != MessageTypeOPN {
		return status.New(status.InvalidReceivedParameter, "expected OPN response message")
	}

	respAsymHeader, r, err := decodeAsymHeaderPrefix(rest)
	if err != nil {
		return err
	}
	plain, err := c.unsealAsymmetricResponse(r, respAsymHeader)
	if err != nil {
		return err
	}

	plainBuf := buffer.Wrap(plain)
	plainReader := builtin.NewReader(plainBuf)
	if _, err := DecodeSequenceHeader(plainReader); err != nil {
		return status.Wrap(status.EncodingError, "decoding OPN response sequence header", err)
	}
	resp, err := DecodeOpenSecureChannelResponse(plainReader)
	if err != nil {
		return status.Wrap(status.EncodingError, "decoding OpenSecureChannelResponse", err)
	}

	if resp.ServerProtocolVersion != c.config.ClientProtocolVersion {
		return status.New(status.InvalidReceivedParameter, "server protocol version mismatch")
	}
	if resp.SecurityToken.ChannelID == 0 {
		return status.New(status.InvalidReceivedParameter, "server returned zero channel id")
	}
	if c.config.SecurityMode != SecurityModeNone && len(resp.ServerNonce) == 0 {
		// Open question (b): an empty server nonce under a non-None mode
		// is a protocol violation, not silently accepted.
		return status.New(status.InvalidReceivedParameter, "empty server nonce under non-None security mode")
	}

	chanCrypto, err := deriveChannelCrypto(c.config.SecurityMode, clientNonce, resp.ServerNonce)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.channel = resp.SecurityToken
	c.crypto = chanCrypto
	c.maxBodySize = computeMaxBodySize(c.config.SendBufferSize, c.config.SecurityMode)
	c.mu.Unlock()
	return nil
}

// clientNonce returns a nonce sized to the security policy, or nil under
// SecurityModeNone (spec §4.7: "a client nonce ... empty if mode=None").
func (c *Client) clientNonce() ([]byte, error) {
	if c.config.SecurityMode == SecurityModeNone {
		return nil, nil
	}
	nonce := make([]byte, 32)
	if _, err := readRandom(nonce); err != nil {
		return nil, status.Wrap(status.GenericFailure, "generating client nonce", err)
	}
	return nonce, nil
}

// sealAsymmetric signs (and, under SignAndEncrypt, encrypts) the OPN
// request's sequence-header+body plaintext, per Part 6 6.7.3's asymmetric
// algorithm selection: RSA-OAEP/RSA-PSS against the client's RSA key pair
// for Basic256Sha256, or sealAsymmetricECC for the ECC_nistP256 policy.
func (c *Client) sealAsymmetric(plaintext []byte) ([]byte, error) {
	if c.config.SecurityMode == SecurityModeNone {
		return plaintext, nil
	}
	if isECCPolicy(c.config.SecurityPolicyURI) {
		return c.sealAsymmetricECC(plaintext)
	}
	if c.config.ClientKeyPair == nil {
		return plaintext, nil
	}

	body := plaintext
	if c.config.SecurityMode == SecurityModeSignAndEncrypt {
		encrypted, err := crypto.RSAOAEPEncrypt(serverPublicKeyDER(c.config.ServerCertificateHint), plaintext)
		if err != nil {
			return nil, status.Wrap(status.EncodingError, "asymmetric chunk encryption", err)
		}
		body = encrypted
	}

	sig, err := c.config.ClientKeyPair.RSAPSSSign(body)
	if err != nil {
		return nil, status.Wrap(status.EncodingError, "asymmetric chunk signing", err)
	}
	return append(body, sig...), nil
}

// sealAsymmetricECC signs (and, under SignAndEncrypt, encrypts) the OPN
// request under the ECC_nistP256 policy: the channel's ephemeral P-256 key
// pair signs with ECDSA, and the encryption key is an ECDH shared secret
// with the server certificate's public key, expanded with HKDF-SHA256,
// rather than RSA-OAEP against a single modulus.
func (c *Client) sealAsymmetricECC(plaintext []byte) ([]byte, error) {
	if c.config.ClientECKeyPair == nil {
		return nil, status.New(status.InvalidParameters, "ECC_nistP256 policy requires a client EC key pair")
	}

	body := plaintext
	if c.config.SecurityMode == SecurityModeSignAndEncrypt {
		serverPub, err := pki.ExtractECDSAPublicKey(c.config.ServerCertificateHint)
		if err != nil {
			return nil, status.Wrap(status.EncodingError, "extracting server EC public key", err)
		}
		shared, err := crypto.P256ECDH(c.config.ClientECKeyPair, serverPub)
		if err != nil {
			return nil, status.Wrap(status.EncodingError, "ECDH shared secret", err)
		}
		keyMaterial, err := crypto.HKDFSHA256(shared, nil, []byte("opcua-opn-ecc"), crypto.AESBlockSize*2)
		if err != nil {
			return nil, status.Wrap(status.EncodingError, "deriving ECC chunk key", err)
		}
		encrypted, err := crypto.AESCTREncrypt(keyMaterial[:crypto.AESBlockSize], keyMaterial[crypto.AESBlockSize:], plaintext)
		if err != nil {
			return nil, status.Wrap(status.EncodingError, "asymmetric chunk encryption", err)
		}
		body = encrypted
	}

	sig, err := crypto.P256Sign(c.config.ClientECKeyPair, body)
	if err != nil {
		return nil, status.Wrap(status.EncodingError, "asymmetric chunk signing", err)
	}
	return append(body, sig...), nil
}

// unsealAsymmetricResponse verifies the server's certificate against the
// trust list and application URI, then verifies (and, under
// SignAndEncrypt, decrypts) the response body.
func (c *Client) unsealAsymmetricResponse(data []byte, hdr AsymmetricSecurityHeader) ([]byte, error) {
	if c.config.SecurityMode == SecurityModeNone {
		return data, nil
	}
	if c.config.TrustList != nil {
		info, err := c.config.TrustList.Validate(hdr.SenderCertificate, time.Now())
		if err != nil {
			return nil, status.Wrap(status.InvalidReceivedParameter, "server certificate validation failed", err)
		}
		if c.config.ExpectedApplicationURI != "" {
			if err := pki.CheckApplicationURI(info, c.config.ExpectedApplicationURI); err != nil {
				return nil, status.Wrap(status.InvalidReceivedParameter, "server application URI mismatch", err)
			}
		}
	}

	if isECCPolicy(c.config.SecurityPolicyURI) {
		return c.unsealAsymmetricResponseECC(data, hdr)
	}

	if len(data) < 256/8 {
		return nil, status.New(status.InvalidReceivedParameter, "asymmetric response shorter than a signature")
	}
	// RSA-PSS signatures are as long as the modulus; assume the server's
	// modulus matches the client key pair's (both sides of a
	// Basic256Sha256 channel use the same key length convention).
	sigLen := 256
	if len(data) < sigLen {
		sigLen = len(data)
	}
	split := len(data) - sigLen
	body, sig := data[:split], data[split:]

	if c.config.ClientKeyPair != nil {
		if err := crypto.RSAPSSVerify(serverPublicKeyDER(hdr.SenderCertificate), body, sig); err != nil {
			return nil, status.Wrap(status.InvalidReceivedParameter, "asymmetric response signature verification failed", err)
		}
	}

	if c.config.SecurityMode == SecurityModeSignAndEncrypt && c.config.ClientKeyPair != nil {
		plain, err := c.config.ClientKeyPair.RSAOAEPDecrypt(body)
		if err != nil {
			return nil, status.Wrap(status.EncodingError, "asymmetric response decryption", err)
		}
		return plain, nil
	}
	return body, nil
}

// unsealAsymmetricResponseECC mirrors unsealAsymmetricResponse for the
// ECC_nistP256 policy: a fixed-width 64-byte ECDSA signature rather than a
// modulus-sized RSA-PSS one, and an ECDH-derived AES-CTR key rather than
// RSA-OAEP for SignAndEncrypt.
func (c *Client) unsealAsymmetricResponseECC(data []byte, hdr AsymmetricSecurityHeader) ([]byte, error) {
	if len(data) < crypto.P256SignatureSizeBytes {
		return nil, status.New(status.InvalidReceivedParameter, "asymmetric response shorter than an ECDSA signature")
	}
	split := len(data) - crypto.P256SignatureSizeBytes
	body, sig := data[:split], data[split:]

	verifyPub, err := pki.ExtractECDSAPublicKey(hdr.SenderCertificate)
	if err != nil {
		return nil, status.Wrap(status.EncodingError, "extracting server EC public key", err)
	}
	if ok, err := crypto.P256Verify(verifyPub, body, sig); err != nil || !ok {
		return nil, status.New(status.InvalidReceivedParameter, "asymmetric response signature verification failed")
	}

	if c.config.SecurityMode == SecurityModeSignAndEncrypt && c.config.ClientECKeyPair != nil {
		serverPub, err := pki.ExtractECDSAPublicKey(hdr.SenderCertificate)
		if err != nil {
			return nil, status.Wrap(status.EncodingError, "extracting server EC public key", err)
		}
		shared, err := crypto.P256ECDH(c.config.ClientECKeyPair, serverPub)
		if err != nil {
			return nil, status.Wrap(status.EncodingError, "ECDH shared secret", err)
		}
		keyMaterial, err := crypto.HKDFSHA256(shared, nil, []byte("opcua-opn-ecc"), crypto.AESBlockSize*2)
		if err != nil {
			return nil, status.Wrap(status.EncodingError, "deriving ECC chunk key", err)
		}
		plain, err := crypto.AESCTRDecrypt(keyMaterial[:crypto.AESBlockSize], keyMaterial[crypto.AESBlockSize:], body)
		if err != nil {
			return nil, status.Wrap(status.EncodingError, "asymmetric response decryption", err)
		}
		return plain, nil
	}
	return body, nil
}

// computeMaxBodySize implements spec §4.7's "maximum body size per chunk
// is computed once after OPN response, based on send-buffer size minus
// header/footer and cipher overhead."
func computeMaxBodySize(sendBufferSize int, mode SecurityMode) int {
	overhead := chunkHeaderSize + 4 /* channel id */ + 4 /* token id */ + 8 /* sequence header */
	if mode != SecurityModeNone {
		overhead += crypto.SignatureSizeSHA256
		if mode == SecurityModeSignAndEncrypt {
			overhead += crypto.AESBlockSize // worst-case PKCS7 padding block
		}
	}
	size := sendBufferSize - overhead
	if size < 0 {
		size = 0
	}
	return size
}

func (c *Client) nextRequestHandle() uint32 { return atomic.AddUint32(&c.nextHandle, 1) }
func (c *Client) nextSendSeq() uint32       { return atomic.AddUint32(&c.sendSeq, 1) }

// Send submits a symmetric request for transmission on the protocol
// queue. callback runs on the callback queue once a final response
// chunk (or a timeout/abort/close) completes the request.
func (c *Client) Send(serviceBody []byte, callback ResponseCallback) error {
	if c.State() != StateConnected {
		return ErrNotConnected
	}
	if c.config.Queues == nil {
		return status.New(status.InvalidState, "no action queue manager configured")
	}

	reqID := c.nextRequestHandle()
	c.pending.add(reqID, c.config.RequestTimeout, callback)

	return c.config.Queues.Protocol.Submit(func() {
		if err := c.writeSymmetric(reqID, serviceBody); err != nil {
			if p, ok := c.pending.complete(reqID); ok {
				c.invokeCallback(p, nil, err)
			}
		}
	})
}

// writeSymmetric chunks serviceBody against the negotiated maximum body
// size, signing/encrypting and writing each chunk under the socket
// transaction so a concurrent request cannot interleave its chunks.
func (c *Client) writeSymmetric(requestID uint32, serviceBody []byte) error {
	c.mu.Lock()
	maxBody := c.maxBodySize
	tokenID := c.channel.TokenID
	channelID := c.channel.ChannelID
	chanCrypto := c.crypto
	c.mu.Unlock()
	if maxBody <= 0 {
		maxBody = len(serviceBody)
		if maxBody == 0 {
			maxBody = 1
		}
	}

	chunks := splitChunks(serviceBody, maxBody)
	for i, chunk := range chunks {
		last := i == len(chunks)-1
		first := i == 0
		event := eventContinue
		switch {
		case first && last:
			event = eventStartEnd
		case first:
			event = eventStart
		case last:
			event = eventEnd
		}
		chunkType := ChunkIntermediate
		if last {
			chunkType = ChunkFinal
		}

		if err := c.socketTxn.apply(event, requestID); err != nil {
			return err
		}

		secHeaderBuf := buffer.New(8)
		if err := EncodeSymmetricSecurityHeader(builtin.NewWriter(secHeaderBuf), SymmetricSecurityHeader{TokenID: tokenID}); err != nil {
			_ = c.socketTxn.apply(eventEndError, requestID)
			return err
		}
		seqHeaderBuf := buffer.New(16)
		if err := EncodeSequenceHeader(builtin.NewWriter(seqHeaderBuf), SequenceHeader{SequenceNumber: c.nextSendSeq(), RequestID: requestID}); err != nil {
			_ = c.socketTxn.apply(eventEndError, requestID)
			return err
		}

		plaintext := append(append([]byte{}, seqHeaderBuf.Bytes()...), chunk...)
		sealed, err := chanCrypto.seal(plaintext)
		if err != nil {
			_ = c.socketTxn.apply(eventEndError, requestID)
			return err
		}

		body := append(append([]byte{}, secHeaderBuf.Bytes()...), sealed...)
		if err := WriteChunk(c.conn, MessageTypeMSG, chunkType, channelID, body); err != nil {
			_ = c.socketTxn.apply(eventSocketError, requestID)
			return status.Wrap(status.GenericFailure, "writing chunk", err)
		}
	}
	return nil
}

// splitChunks divides body into pieces no larger than maxBody, always
// producing at least one piece (even for an empty body).
func splitChunks(body []byte, maxBody int) [][]byte {
	if len(body) == 0 {
		return [][]byte{{}}
	}
	var chunks [][]byte
	for len(body) > 0 {
		n := maxBody
		if n > len(body) {
			n = len(body)
		}
		chunks = append(chunks, body[:n])
		body = body[n:]
	}
	return chunks
}

// receiveLoop is the Secure-Channel reception/dispatch thread (spec §5):
// it drains chunks off the connection and posts decoded events onto the
// protocol queue.
func (c *Client) receiveLoop() {
	defer c.wg.Done()
	for {
		select {
		case <-c.stopCh:
			return
		default:
		}

		hdr, rest, err := ReadChunk(c.conn)
		if err != nil {
			c.onFatal(err)
			return
		}

		if err := c.config.Queues.Protocol.Submit(func() { c.handleChunk(hdr, rest) }); err != nil && c.log != nil {
			c.log.Warnf("securechannel: dropping received chunk, protocol queue full: %v", err)
		}
	}
}

func (c *Client) onFatal(err error) {
	c.setState(StateError)
	for _, p := range c.pending.drainAll() {
		c.invokeCallback(p, nil, ErrSecureChannelClosed)
	}
	if c.config.Handler != nil && c.config.Queues != nil {
		_ = c.config.Queues.Callback.Submit(func() { c.config.Handler(EventDisconnected, err) })
	}
	c.setState(StateDisconnected)
}

func (c *Client) handleChunk(hdr ChunkHeader, rest []byte) {
	c.mu.Lock()
	channelID := c.channel.ChannelID
	chanCrypto := c.crypto
	c.mu.Unlock()

	if hdr.SecureChannelID != channelID {
		return
	}

	switch hdr.MessageType {
	case MessageTypeMSG:
		c.handleMSGChunk(hdr, rest, chanCrypto)
	case MessageTypeCLO:
		c.onFatal(status.New(status.Closed, "peer closed secure channel"))
	case MessageTypeERR:
		c.onFatal(status.New(status.GenericFailure, "peer reported transport error"))
	}
}

func (c *Client) handleMSGChunk(hdr ChunkHeader, rest []byte, chanCrypto *channelCrypto) {
	secBuf := buffer.Wrap(rest)
	secReader := builtin.NewReader(secBuf)
	sym, err := DecodeSymmetricSecurityHeader(secReader)
	if err != nil {
		return
	}

	c.mu.Lock()
	current, prev := c.channel.TokenID, c.prevTokenID
	c.mu.Unlock()
	if sym.TokenID != current && sym.TokenID != prev {
		return
	}

	sealed := secBuf.Unread()
	plain, err := chanCrypto.unseal(sealed)
	if err != nil {
		c.onFatal(err)
		return
	}

	plainBuf := buffer.Wrap(plain)
	plainReader := builtin.NewReader(plainBuf)
	seq, err := DecodeSequenceHeader(plainReader)
	if err != nil {
		return
	}

	c.mu.Lock()
	newer := !c.recvSeqKnown || sequenceNewer(c.recvSeq, seq.SequenceNumber)
	if newer {
		c.recvSeq = seq.SequenceNumber
		c.recvSeqKnown = true
	}
	c.mu.Unlock()
	if !newer {
		c.onFatal(status.New(status.InvalidReceivedParameter, "non-monotonic sequence number"))
		return
	}

	body := plainBuf.Unread()

	switch hdr.ChunkType {
	case ChunkAbort:
		reasonBuf := buffer.Wrap(body)
		reasonReader := builtin.NewReader(reasonBuf)
		reason, _, _ := reasonReader.GetString()
		if p, ok := c.pending.complete(seq.RequestID); ok {
			c.invokeCallback(p, nil, status.Wrap(status.GenericFailure, reason, ErrAborted))
		}

	case ChunkIntermediate:
		if !c.pending.appendChunk(seq.RequestID, body) {
			return
		}

	case ChunkFinal:
		if !c.pending.has(seq.RequestID) {
			return
		}
		c.pending.appendChunk(seq.RequestID, body)
		if p, ok := c.pending.complete(seq.RequestID); ok {
			c.invokeCallback(p, p.body, nil)
		}
	}
}

func (c *Client) invokeCallback(p *pendingRequest, body []byte, err error) {
	if p.callback == nil || c.config.Queues == nil {
		return
	}
	_ = c.config.Queues.Callback.Submit(func() { p.callback(body, err) })
}

// timeoutSweepLoop periodically fails expired pending requests (spec §5:
// "an external timer sweeps periodically and fails expired requests with
// Timeout").
func (c *Client) timeoutSweepLoop() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.config.TimeoutSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stopCh:
			return
		case now := <-ticker.C:
			for _, p := range c.pending.sweepExpired(now) {
				c.invokeCallback(p, nil, ErrRequestTimeout)
			}
		}
	}
}

// Close sends a CloseSecureChannelRequest (best effort), stops the
// reception and timeout goroutines, and fails every still-pending
// request with ErrSecureChannelClosed.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.state == StateDisconnected {
		c.mu.Unlock()
		return nil
	}
	conn := c.conn
	channelID := c.channel.ChannelID
	tokenID := c.channel.TokenID
	chanCrypto := c.crypto
	c.state = StateDisconnected
	c.mu.Unlock()

	if conn != nil && chanCrypto != nil {
		req := CloseSecureChannelRequest{Header: RequestHeader{RequestHandle: c.nextRequestHandle(), Timestamp: time.Now()}}
		bodyBuf := buffer.New(256)
		if err := EncodeCloseSecureChannelRequest(builtin.NewWriter(bodyBuf), req); err == nil {
			secHeaderBuf := buffer.New(8)
			_ = EncodeSymmetricSecurityHeader(builtin.NewWriter(secHeaderBuf), SymmetricSecurityHeader{TokenID: tokenID})
			seqHeaderBuf := buffer.New(16)
			_ = EncodeSequenceHeader(builtin.NewWriter(seqHeaderBuf), SequenceHeader{SequenceNumber: c.nextSendSeq(), RequestID: req.Header.RequestHandle})
			plaintext := append(append([]byte{}, seqHeaderBuf.Bytes()...), bodyBuf.Bytes()...)
			if sealed, err := chanCrypto.seal(plaintext); err == nil {
				chunkBody := append(append([]byte{}, secHeaderBuf.Bytes()...), sealed...)
				_ = WriteChunk(conn, MessageTypeCLO, ChunkFinal, channelID, chunkBody)
			}
		}
	}

	if c.stopCh != nil {
		close(c.stopCh)
	}
	if conn != nil {
		_ = conn.Close()
	}
	c.wg.Wait()

	for _, p := range c.pending.drainAll() {
		c.invokeCallback(p, nil, ErrSecureChannelClosed)
	}
	return nil
}
