package compressors

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/INLOpen/avromr/core"
	lz4 "github.com/pierrec/lz4/v4"
)

// lz4SizePrefix holds the uncompressed length, stored as a big-endian uint32
// ahead of the lz4 block so decompression can size its buffer exactly.
const lz4SizePrefix = 4

// LZ4Compressor implements the non-standard "lz4" codec.
type LZ4Compressor struct{}

type lz4ReadCloser struct {
	*bytes.Reader
}

func (lrc *lz4ReadCloser) Close() error {
	return nil
}

var _ core.Compressor = (*LZ4Compressor)(nil)

func NewLz4Compressor() *LZ4Compressor {
	return &LZ4Compressor{}
}

func (c *LZ4Compressor) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := c.CompressTo(&buf, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *LZ4Compressor) Decompress(data []byte) (io.ReadCloser, error) {
	if len(data) < lz4SizePrefix {
		return nil, fmt.Errorf("lz4 block too short (%d bytes): %w", len(data), core.ErrCorrupted)
	}
	size := binary.BigEndian.Uint32(data[:lz4SizePrefix])
	if size > core.MaxBlockSize {
		return nil, fmt.Errorf("lz4 block claims %d bytes: %w", size, core.ErrCorrupted)
	}
	if size == 0 {
		return &lz4ReadCloser{Reader: bytes.NewReader(nil)}, nil
	}

	dst := make([]byte, size)
	n, err := lz4.UncompressBlock(data[lz4SizePrefix:], dst)
	if err != nil {
		return nil, fmt.Errorf("lz4 decompress error: %w", err)
	}
	if n != int(size) {
		return nil, fmt.Errorf("lz4 decompressed %d bytes, want %d: %w", n, size, core.ErrCorrupted)
	}
	return &lz4ReadCloser{Reader: bytes.NewReader(dst)}, nil
}

func (c *LZ4Compressor) Type() core.CompressionType {
	return core.CompressionLZ4
}

// CompressTo compresses src data into the dst buffer using LZ4.
func (c *LZ4Compressor) CompressTo(dst *bytes.Buffer, src []byte) error {
	dst.Reset()
	var prefix [lz4SizePrefix]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(src)))
	dst.Write(prefix[:])
	if len(src) == 0 {
		return nil
	}

	tempBuf := make([]byte, lz4.CompressBlockBound(len(src)))
	n, err := lz4.CompressBlock(src, tempBuf, nil)
	if err != nil {
		return fmt.Errorf("lz4 compress error: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("lz4 compression resulted in zero bytes for non-empty input")
	}
	dst.Write(tempBuf[:n])
	return nil
}
