package securechannel

import (
	"encoding/binary"
	"io"
	"net"

	"github.com/opcua-go/stack/pkg/status"
)

// MessageType is the 3-byte ASCII tag identifying a Secure Conversation
// message kind (spec §6: "3-byte ASCII type tag OPN, MSG, CLO, ERR").
type MessageType [3]byte

var (
	MessageTypeOPN = MessageType{'O', 'P', 'N'}
	MessageTypeMSG = MessageType{'M', 'S', 'G'}
	MessageTypeCLO = MessageType{'C', 'L', 'O'}
	MessageTypeERR = MessageType{'E', 'R', 'R'}
)

func (m MessageType) String() string { return string(m[:]) }

// ChunkType is the 1-byte chunk marker following MessageType.
type ChunkType byte

const (
	ChunkFinal        ChunkType = 'F'
	ChunkIntermediate ChunkType = 'C'
	ChunkAbort        ChunkType = 'A'
)

// chunkHeaderSize is the length of a Secure Conversation chunk header:
// 3-byte message type, 1-byte chunk type, 4-byte little-endian total
// chunk size (spec §6). Grounded on pkg/transport/tcp.go's
// chunkHeaderSize/readChunk, reimplemented here because those are
// unexported to the transport package and this package's chunks carry a
// SecureChannelId field the transport layer knows nothing about.
const chunkHeaderSize = 8

// MaxChunkSize bounds a single chunk this client will read or write,
// guarding against a peer announcing an unreasonable size.
const MaxChunkSize = 256 * 1024

// ChunkHeader is the fixed 8-byte prefix of every Secure Conversation
// chunk, plus the 4-byte SecureChannelId that immediately follows it on
// the wire (spec §6: "Message header: ... 4-byte channel id").
type ChunkHeader struct {
	MessageType     MessageType
	ChunkType       ChunkType
	MessageSize     uint32
	SecureChannelID uint32
}

// WriteChunk frames body as one complete chunk (header, channel id, body)
// and writes it to conn in a single call so the write cannot be
// interleaved with another goroutine's partial write on the same
// connection; callers still serialize concurrent writers via the socket
// transaction (socket.go).
func WriteChunk(conn net.Conn, msgType MessageType, chunkType ChunkType, channelID uint32, body []byte) error {
	total := chunkHeaderSize + 4 + len(body)
	buf := make([]byte, total)
	copy(buf[0:3], msgType[:])
	buf[3] = byte(chunkType)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(total))
	binary.LittleEndian.PutUint32(buf[8:12], channelID)
	copy(buf[12:], body)
	_, err := conn.Write(buf)
	return err
}

// ReadChunk reads one complete chunk from conn: the 8-byte header, the
// 4-byte SecureChannelId, and the remaining body bytes (which, for MSG
// and CLO, still hold the symmetric security header, sequence header,
// and ciphertext — unwrapped by the caller).
func ReadChunk(conn net.Conn) (ChunkHeader, []byte, error) {
	var hdr [chunkHeaderSize]byte
	if _, err := io.ReadFull(conn, hdr[:]); err != nil {
		return ChunkHeader{}, nil, err
	}
	size := binary.LittleEndian.Uint32(hdr[4:8])
	if size < chunkHeaderSize+4 || size > MaxChunkSize {
		return ChunkHeader{}, nil, status.New(status.EncodingError, "chunk size out of range")
	}

	rest := make([]byte, size-chunkHeaderSize)
	if _, err := io.ReadFull(conn, rest); err != nil {
		return ChunkHeader{}, nil, err
	}

	ch := ChunkHeader{ChunkType: ChunkType(hdr[3]), MessageSize: size}
	copy(ch.MessageType[:], hdr[0:3])
	ch.SecureChannelID = binary.LittleEndian.Uint32(rest[0:4])
	return ch, rest[4:], nil
}
