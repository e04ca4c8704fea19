// Package buffer implements the bounded byte buffer the builtin and
// structured codecs read from and write to (spec Data Model: Buffer).
// It tracks a read/write position, a current length, and a hard maximum,
// and implements io.Reader/io.Writer so it composes with the rest of the
// codec and transport layers as plain io.Writer/io.Reader values.
package buffer

import (
	"io"

	"github.com/opcua-go/stack/pkg/status"
)

// DefaultMaxSize bounds a Buffer that was not given an explicit maximum.
// It matches the default OPC UA TCP max message size many server/client
// configurations use (spec External Interfaces, configuration options).
const DefaultMaxSize = 64 * 1024

// Buffer is a growable byte buffer with a hard maximum size. Encode
// operations append at the write position; decode operations read from
// the read position. The two positions are independent so a Buffer can be
// filled once by a decoder and read by several structured-type Decode
// calls in sequence.
type Buffer struct {
	data     []byte
	readPos  int
	maxSize  int
}

// New creates an empty Buffer bounded by maxSize. A maxSize of 0 uses
// DefaultMaxSize.
func New(maxSize int) *Buffer {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Buffer{maxSize: maxSize}
}

// Wrap creates a Buffer pre-loaded with data for decoding. The buffer's
// maximum is set to len(data); further writes cannot grow it past that
// unless NewWithCapacity is used instead.
func Wrap(data []byte) *Buffer {
	return &Buffer{data: data, maxSize: len(data)}
}

// NewWithCapacity creates a Buffer pre-loaded with a copy of data but bounded
// by a larger maxSize, for cases where a received chunk must be appended
// to after the fact (chunk reassembly).
func NewWithCapacity(data []byte, maxSize int) *Buffer {
	if maxSize < len(data) {
		maxSize = len(data)
	}
	return &Buffer{data: append([]byte{}, data...), maxSize: maxSize}
}

// Len returns the number of bytes currently stored.
func (b *Buffer) Len() int { return len(b.data) }

// Remaining returns the number of unread bytes.
func (b *Buffer) Remaining() int { return len(b.data) - b.readPos }

// Cap returns the buffer's maximum size.
func (b *Buffer) Cap() int { return b.maxSize }

// Bytes returns the full underlying byte slice (for encoding: the
// complete message written so far).
func (b *Buffer) Bytes() []byte { return b.data }

// Unread returns the slice of not-yet-read bytes.
func (b *Buffer) Unread() []byte { return b.data[b.readPos:] }

// ResetRead rewinds the read position to the start, for re-decoding the
// same buffer (used by chunk reassembly when a sequence header must be
// peeked before the full message body is available).
func (b *Buffer) ResetRead() { b.readPos = 0 }

// Write implements io.Writer, appending p and growing the buffer. Returns
// status.OutOfMemory wrapped in an error if the write would exceed maxSize.
func (b *Buffer) Write(p []byte) (int, error) {
	if len(b.data)+len(p) > b.maxSize {
		return 0, status.New(status.OutOfMemory, "buffer: write exceeds maximum size")
	}
	b.data = append(b.data, p...)
	return len(p), nil
}

// WriteByte implements io.ByteWriter.
func (b *Buffer) WriteByte(c byte) error {
	_, err := b.Write([]byte{c})
	return err
}

// Read implements io.Reader, reading from the current read position.
func (b *Buffer) Read(p []byte) (int, error) {
	if b.readPos >= len(b.data) {
		return 0, io.EOF
	}
	n := copy(p, b.data[b.readPos:])
	b.readPos += n
	return n, nil
}

// ReadByte implements io.ByteReader.
func (b *Buffer) ReadByte() (byte, error) {
	if b.readPos >= len(b.data) {
		return 0, io.EOF
	}
	c := b.data[b.readPos]
	b.readPos++
	return c, nil
}

// ReadExact reads exactly n bytes or returns status.EncodingError wrapping
// io.ErrUnexpectedEOF, the decode-side counterpart to a short Write.
func (b *Buffer) ReadExact(n int) ([]byte, error) {
	if b.Remaining() < n {
		return nil, status.Wrap(status.EncodingError, "buffer: short read", io.ErrUnexpectedEOF)
	}
	out := b.data[b.readPos : b.readPos+n]
	b.readPos += n
	return out, nil
}

// Reset discards all data and rewinds both positions, for reusing a
// Buffer across messages without reallocating.
func (b *Buffer) Reset() {
	b.data = b.data[:0]
	b.readPos = 0
}
