// Package bufioutil provides small helpers on top of bufio that the rest of
// the fs tree uses when reading checkpoint containers.
package bufioutil

import (
	"bufio"
	"io"
)

// BufferedSeeker wraps an io.ReadSeeker with a bufio.Reader while keeping
// Seek accurate: seeking discards the buffer and repositions the underlying
// reader, rather than trying to reconcile buffered bytes with the new offset.
type BufferedSeeker struct {
	rs io.ReadSeeker
	br *bufio.Reader
}

// NewBufferedSeeker returns a BufferedSeeker reading from rs with the given
// buffer size.
func NewBufferedSeeker(rs io.ReadSeeker, size int) *BufferedSeeker {
	return &BufferedSeeker{
		rs: rs,
		br: bufio.NewReaderSize(rs, size),
	}
}

func (b *BufferedSeeker) Read(p []byte) (int, error) {
	return b.br.Read(p)
}

func (b *BufferedSeeker) Seek(offset int64, whence int) (int64, error) {
	if whence == io.SeekCurrent {
		offset -= int64(b.br.Buffered())
	}

	n, err := b.rs.Seek(offset, whence)
	if err != nil {
		return n, err
	}

	b.br.Reset(b.rs)
	return n, nil
}
