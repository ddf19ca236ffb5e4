package bitio

import "fmt"

// Buffer is a growable byte buffer bounded by a capacity limit.
// Every write is checked against the limit and fails with
// ErrBufferOverflow without writing anything.
type Buffer struct {
	buf   []byte
	limit int
}

// NewBuffer returns a buffer that accepts at most limit bytes.
func NewBuffer(limit int) *Buffer {
	const maxPrealloc = 1 << 16
	prealloc := limit
	if prealloc > maxPrealloc {
		prealloc = maxPrealloc
	}
	if prealloc < 0 {
		prealloc = 0
	}
	return &Buffer{
		buf:   make([]byte, 0, prealloc),
		limit: limit,
	}
}

func (b *Buffer) reserve(n int) error {
	if n > b.limit-len(b.buf) {
		return fmt.Errorf("%w: write %d bytes, %d of %d used",
			ErrBufferOverflow, n, len(b.buf), b.limit)
	}
	return nil
}

// Write implements io.Writer.
func (b *Buffer) Write(p []byte) (int, error) {
	if err := b.reserve(len(p)); err != nil {
		return 0, err
	}
	b.buf = append(b.buf, p...)
	return len(p), nil
}

// WriteByte implements io.ByteWriter.
func (b *Buffer) WriteByte(c byte) error {
	if err := b.reserve(1); err != nil {
		return err
	}
	b.buf = append(b.buf, c)
	return nil
}

// Bytes returns the written data.
func (b *Buffer) Bytes() []byte {
	return b.buf
}

// Len returns the number of bytes written.
func (b *Buffer) Len() int {
	return len(b.buf)
}

// Cap returns the capacity limit.
func (b *Buffer) Cap() int {
	return b.limit
}
