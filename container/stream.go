package container

import (
	"bufio"
	"io"

	"github.com/INLOpen/avromr/core"
)

// positionedReader buffers reads from a seekable stream while keeping the
// exact stream offset of the next unread byte.
type positionedReader struct {
	rs  io.ReadSeeker
	br  *bufio.Reader
	pos int64
}

func newPositionedReader(rs io.ReadSeeker) *positionedReader {
	return &positionedReader{
		rs: rs,
		br: bufio.NewReaderSize(rs, core.DefaultWindowSize),
	}
}

func (p *positionedReader) Read(b []byte) (int, error) {
	n, err := p.br.Read(b)
	p.pos += int64(n)
	return n, err
}

func (p *positionedReader) ReadByte() (byte, error) {
	b, err := p.br.ReadByte()
	if err == nil {
		p.pos++
	}
	return b, err
}

// Seek moves to an absolute offset and drops buffered data.
func (p *positionedReader) Seek(abs int64) error {
	if _, err := p.rs.Seek(abs, io.SeekStart); err != nil {
		return err
	}
	p.br.Reset(p.rs)
	p.pos = abs
	return nil
}

// ReadAt reads len(b) bytes at off straight from the stream, bypassing and
// invalidating the buffer. Callers must Seek before the next buffered read.
func (p *positionedReader) ReadAt(b []byte, off int64) (int, error) {
	if _, err := p.rs.Seek(off, io.SeekStart); err != nil {
		return 0, err
	}
	return io.ReadFull(p.rs, b)
}
