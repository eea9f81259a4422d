// Package container reads and writes Avro object container files.
//
// A container file is a header (magic, metadata map, 16-byte sync marker)
// followed by blocks. Every block is a record count, a payload size, the
// payload, and a copy of the header's sync marker. Because the marker
// trails every block, a reader dropped at an arbitrary byte offset can find
// the next block start by scanning for the marker, which is what makes a
// single file splittable across workers.
package container

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"sort"

	"github.com/INLOpen/avromr/core"
	"github.com/google/uuid"
)

// SyncMarker is the 16-byte block delimiter of a container file.
type SyncMarker [core.SyncSize]byte

// NewSyncMarker returns a fresh random marker.
func NewSyncMarker() SyncMarker {
	return SyncMarker(uuid.New())
}

// Header is the parsed file header. It is immutable once read.
type Header struct {
	Meta map[string][]byte
	Sync SyncMarker
	// Size is the encoded length of the header; the first block starts here.
	Size int64
}

// SchemaText returns the writer schema stored in the header.
func (h Header) SchemaText() string {
	return string(h.Meta[core.MetaSchemaKey])
}

// Codec returns the codec name stored in the header ("null" when absent).
func (h Header) Codec() string {
	if c, ok := h.Meta[core.MetaCodecKey]; ok && len(c) > 0 {
		return string(c)
	}
	return core.CompressionNone.String()
}

// BlockInfo locates one block inside a file.
type BlockInfo struct {
	// Offset is the position of the block's record count field.
	Offset int64
	// Length covers everything from Offset through the trailing sync marker.
	Length int64
	Count  int64
}

// End returns the position just past the trailing sync marker, which is
// where the next block starts.
func (b BlockInfo) End() int64 { return b.Offset + b.Length }

// SyncOffset returns the position of the trailing sync marker.
func (b BlockInfo) SyncOffset() int64 { return b.End() - core.SyncSize }

// Block is a block as stored on disk. Data is still compressed.
type Block struct {
	BlockInfo
	Data []byte
}

func appendLong(dst []byte, v int64) []byte {
	return binary.AppendVarint(dst, v)
}

func appendBytes(dst []byte, b []byte) []byte {
	dst = appendLong(dst, int64(len(b)))
	return append(dst, b...)
}

// encodeHeader renders the header bytes. Metadata keys are written in
// lexical order so equal headers encode identically.
func encodeHeader(meta map[string][]byte, sync SyncMarker) []byte {
	buf := make([]byte, 0, 256)
	buf = append(buf, core.MagicString...)
	if len(meta) > 0 {
		keys := make([]string, 0, len(meta))
		for k := range meta {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf = appendLong(buf, int64(len(keys)))
		for _, k := range keys {
			buf = appendBytes(buf, []byte(k))
			buf = appendBytes(buf, meta[k])
		}
	}
	buf = appendLong(buf, 0)
	return append(buf, sync[:]...)
}

// byteReader is what header and block parsing needs from a stream.
type byteReader interface {
	io.Reader
	io.ByteReader
}

func readLong(r io.ByteReader) (int64, error) {
	v, err := binary.ReadVarint(r)
	if err != nil {
		if err == io.EOF {
			return 0, io.ErrUnexpectedEOF
		}
		return 0, fmt.Errorf("invalid long: %w", err)
	}
	return v, nil
}

func readBytes(r byteReader) ([]byte, error) {
	n, err := readLong(r)
	if err != nil {
		return nil, err
	}
	if n < 0 || n > core.MaxBlockSize {
		return nil, fmt.Errorf("invalid byte length %d: %w", n, core.ErrCorrupted)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}

// decodeHeader parses a header from r, which must be positioned at byte 0.
func decodeHeader(r byteReader) (Header, error) {
	var magic [core.MagicLen]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return Header{}, fmt.Errorf("failed to read magic: %w", err)
	}
	if !bytes.Equal(magic[:], []byte(core.MagicString)) {
		return Header{}, fmt.Errorf("invalid magic %q: %w", magic[:], core.ErrCorrupted)
	}

	meta := make(map[string][]byte)
	for {
		count, err := readLong(r)
		if err != nil {
			return Header{}, fmt.Errorf("failed to read metadata count: %w", err)
		}
		if count == 0 {
			break
		}
		if count < 0 {
			// A negative count is followed by the byte size of the block.
			count = -count
			if _, err := readLong(r); err != nil {
				return Header{}, fmt.Errorf("failed to read metadata block size: %w", err)
			}
		}
		for i := int64(0); i < count; i++ {
			key, err := readBytes(r)
			if err != nil {
				return Header{}, fmt.Errorf("failed to read metadata key: %w", err)
			}
			value, err := readBytes(r)
			if err != nil {
				return Header{}, fmt.Errorf("failed to read metadata value for %q: %w", key, err)
			}
			meta[string(key)] = value
		}
	}

	var h Header
	h.Meta = meta
	if _, err := io.ReadFull(r, h.Sync[:]); err != nil {
		return Header{}, fmt.Errorf("failed to read sync marker: %w", err)
	}
	return h, nil
}
