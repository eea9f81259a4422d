package compressors

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/INLOpen/avromr/core"
	"github.com/golang/snappy"
)

// snappyChecksumSize is the length of the big-endian CRC32 of the
// uncompressed payload that follows every snappy block.
const snappyChecksumSize = 4

// SnappyCompressor implements the "snappy" codec: a snappy block followed by
// the CRC32 (IEEE) of the uncompressed data.
type SnappyCompressor struct{}

// snappyReadCloser wraps decompressed in-memory data as an io.ReadCloser.
type snappyReadCloser struct {
	*bytes.Reader
}

// Close is a no-op; the data is already in memory.
func (src *snappyReadCloser) Close() error {
	return nil
}

var _ core.Compressor = (*SnappyCompressor)(nil)
var _ io.ReadCloser = (*snappyReadCloser)(nil)

func NewSnappyCompressor() *SnappyCompressor {
	return &SnappyCompressor{}
}

func (c *SnappyCompressor) Compress(data []byte) ([]byte, error) {
	compressed := snappy.Encode(nil, data)
	return binary.BigEndian.AppendUint32(compressed, crc32.ChecksumIEEE(data)), nil
}

func (c *SnappyCompressor) Decompress(data []byte) (io.ReadCloser, error) {
	if len(data) < snappyChecksumSize {
		return nil, fmt.Errorf("snappy block too short (%d bytes): %w", len(data), core.ErrCorrupted)
	}
	body := data[:len(data)-snappyChecksumSize]
	want := binary.BigEndian.Uint32(data[len(data)-snappyChecksumSize:])

	decompressed, err := snappy.Decode(nil, body)
	if err != nil {
		return nil, fmt.Errorf("snappy decompress error: %w", err)
	}
	if got := crc32.ChecksumIEEE(decompressed); got != want {
		return nil, fmt.Errorf("snappy checksum mismatch: got %08x, want %08x: %w", got, want, core.ErrCorrupted)
	}
	return &snappyReadCloser{Reader: bytes.NewReader(decompressed)}, nil
}

func (c *SnappyCompressor) Type() core.CompressionType {
	return core.CompressionSnappy
}

// CompressTo compresses src data into the dst buffer using Snappy.
func (c *SnappyCompressor) CompressTo(dst *bytes.Buffer, src []byte) error {
	dst.Reset()
	dst.Write(snappy.Encode(nil, src))
	var sum [snappyChecksumSize]byte
	binary.BigEndian.PutUint32(sum[:], crc32.ChecksumIEEE(src))
	dst.Write(sum[:])
	return nil
}
