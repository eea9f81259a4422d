// Package compressors provides the block codecs of the container format.
package compressors

import (
	"fmt"

	"github.com/INLOpen/avromr/core"
	"github.com/klauspost/compress/flate"
)

// GetCompressor returns a Compressor instance based on the CompressionType.
func GetCompressor(compressionType core.CompressionType) (core.Compressor, error) {
	switch compressionType {
	case core.CompressionNone:
		return &NoCompressionCompressor{}, nil
	case core.CompressionDeflate:
		return NewDeflateCompressor(flate.DefaultCompression), nil
	case core.CompressionSnappy:
		return NewSnappyCompressor(), nil
	case core.CompressionZSTD:
		return NewZstdCompressor(), nil
	case core.CompressionLZ4:
		return NewLz4Compressor(), nil
	default:
		return nil, fmt.Errorf("unknown compression type: %d", compressionType)
	}
}

// ForName returns the Compressor registered under a header codec name.
func ForName(name string) (core.Compressor, error) {
	ct, err := core.ParseCompressionType(name)
	if err != nil {
		return nil, err
	}
	return GetCompressor(ct)
}
