package compressors

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/INLOpen/avromr/core"
	"github.com/klauspost/compress/flate"
)

// DeflateCompressor implements the "deflate" codec: raw RFC 1951 data with
// no zlib header or checksum.
type DeflateCompressor struct {
	level      int
	writerPool sync.Pool
}

var _ core.Compressor = (*DeflateCompressor)(nil)

// NewDeflateCompressor returns a deflate codec using the given flate level.
// Levels outside [flate.HuffmanOnly, flate.BestCompression] fall back to
// flate.DefaultCompression.
func NewDeflateCompressor(level int) *DeflateCompressor {
	if level < flate.HuffmanOnly || level > flate.BestCompression {
		level = flate.DefaultCompression
	}
	c := &DeflateCompressor{level: level}
	c.writerPool.New = func() interface{} {
		// The level has been validated above, so NewWriter cannot fail.
		w, _ := flate.NewWriter(nil, c.level)
		return w
	}
	return c
}

func (c *DeflateCompressor) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := c.CompressTo(&buf, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// CompressTo compresses src into dst, reusing pooled flate writers.
func (c *DeflateCompressor) CompressTo(dst *bytes.Buffer, src []byte) error {
	dst.Reset()
	w := c.writerPool.Get().(*flate.Writer)
	defer c.writerPool.Put(w)
	w.Reset(dst)

	if _, err := w.Write(src); err != nil {
		_ = w.Close()
		return fmt.Errorf("deflate compress write error: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("deflate compress close error: %w", err)
	}
	return nil
}

func (c *DeflateCompressor) Decompress(data []byte) (io.ReadCloser, error) {
	return flate.NewReader(bytes.NewReader(data)), nil
}

func (c *DeflateCompressor) Type() core.CompressionType {
	return core.CompressionDeflate
}
