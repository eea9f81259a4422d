package core

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/hamba/avro/v2"
)

// CompressionType identifies the codec used for container block payloads.
// The string form is the value stored under the "avro.codec" header key.
type CompressionType byte

const (
	CompressionNone    CompressionType = 0
	CompressionDeflate CompressionType = 1
	CompressionSnappy  CompressionType = 2
	CompressionZSTD    CompressionType = 3
	// CompressionLZ4 is not part of the Avro specification. Files written with
	// it can only be read back by this module.
	CompressionLZ4 CompressionType = 4
)

// Compressor defines the interface for block compression and decompression.
type Compressor interface {
	// Compress compresses the input data.
	Compress(data []byte) ([]byte, error)
	CompressTo(dst *bytes.Buffer, src []byte) error
	// Decompress decompresses the input data.
	Decompress(data []byte) (io.ReadCloser, error)
	// Type returns the CompressionType identifier for this compressor.
	Type() CompressionType
}

// String returns the codec name as written in the container header.
func (ct CompressionType) String() string {
	switch ct {
	case CompressionNone:
		return "null"
	case CompressionDeflate:
		return "deflate"
	case CompressionSnappy:
		return "snappy"
	case CompressionZSTD:
		return "zstandard"
	case CompressionLZ4:
		return "lz4"
	default:
		return "unknown"
	}
}

// ParseCompressionType maps a header codec name to a CompressionType.
// An empty name means "null", as the container format allows the codec
// key to be omitted.
func ParseCompressionType(name string) (CompressionType, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "null":
		return CompressionNone, nil
	case "deflate":
		return CompressionDeflate, nil
	case "snappy":
		return CompressionSnappy, nil
	case "zstandard", "zstd":
		return CompressionZSTD, nil
	case "lz4":
		return CompressionLZ4, nil
	default:
		return 0, &UnsupportedTypeError{Message: fmt.Sprintf("codec %q", name)}
	}
}

// Split is the half-open byte range [Offset, Offset+Length) of a container
// file that is assigned to one worker.
type Split struct {
	Filename string
	Offset   int64
	Length   int64
}

// End returns the first byte offset past the split.
func (s Split) End() int64 {
	return s.Offset + s.Length
}

func (s Split) String() string {
	return fmt.Sprintf("%s:%d+%d", s.Filename, s.Offset, s.Length)
}

// EvenSplits cuts a file of size bytes into n adjacent splits. The last
// split absorbs the remainder. n below 1 is treated as 1.
func EvenSplits(name string, size int64, n int) []Split {
	n = max(n, 1)
	step := size / int64(n)
	splits := make([]Split, 0, n)
	var off int64
	for i := 0; i < n; i++ {
		length := step
		if i == n-1 {
			length = size - off
		}
		splits = append(splits, Split{Filename: name, Offset: off, Length: length})
		off += length
	}
	return splits
}

// IOMode tells which of key and value are container-encoded on one side
// (input or output) of a task.
type IOMode uint8

const (
	IONone     IOMode = 0
	IOKey      IOMode = 1 << 0
	IOValue    IOMode = 1 << 1
	IOKeyValue        = IOKey | IOValue
)

// ParseIOMode parses one of the NONE, K, V or KV tokens. Tokens are
// case-insensitive.
func ParseIOMode(token string) (IOMode, error) {
	switch strings.ToUpper(strings.TrimSpace(token)) {
	case "NONE":
		return IONone, nil
	case "K":
		return IOKey, nil
	case "V":
		return IOValue, nil
	case "KV":
		return IOKeyValue, nil
	default:
		return IONone, &ConfigurationError{Key: "mode", Message: fmt.Sprintf("invalid I/O mode %q, want one of NONE, K, V, KV", token)}
	}
}

// Key reports whether the key role is active.
func (m IOMode) Key() bool { return m&IOKey != 0 }

// Value reports whether the value role is active.
func (m IOMode) Value() bool { return m&IOValue != 0 }

func (m IOMode) String() string {
	switch m {
	case IONone:
		return "NONE"
	case IOKey:
		return "K"
	case IOValue:
		return "V"
	case IOKeyValue:
		return "KV"
	default:
		return fmt.Sprintf("IOMode(%d)", uint8(m))
	}
}

// TaskRole is supplied by the host framework and fixed for a task's lifetime.
type TaskRole uint8

const (
	RoleMapper TaskRole = iota
	RoleReducer
)

func (r TaskRole) String() string {
	if r == RoleReducer {
		return "reducer"
	}
	return "mapper"
}

// SchemaSet holds the key and value schemas of one side of a task.
type SchemaSet struct {
	Key   avro.Schema
	Value avro.Schema
}

// Validate checks that a schema is present for every role mode activates.
func (s SchemaSet) Validate(mode IOMode) error {
	if mode.Key() && s.Key == nil {
		return &ConfigurationError{Key: "key schema", Message: fmt.Sprintf("mode %s requires a key schema", mode)}
	}
	if mode.Value() && s.Value == nil {
		return &ConfigurationError{Key: "value schema", Message: fmt.Sprintf("mode %s requires a value schema", mode)}
	}
	return nil
}
