package core

import "fmt"

// This file centralizes constants of the container file format and the
// output naming convention.

// --- Magic & Sync ---
const (
	// MagicString opens every container file: "Obj" followed by version 1.
	MagicString = "Obj\x01"
	MagicLen    = len(MagicString)
	// SyncSize is the length of the sync marker written after the header and
	// after every block.
	SyncSize = 16
)

// --- Header metadata keys ---
const (
	MetaSchemaKey = "avro.schema"
	MetaCodecKey  = "avro.codec"
)

// --- Default Sizes & Limits ---
const (
	// DefaultWindowSize is the read size used when scanning for a sync marker.
	DefaultWindowSize = 8192
	// DefaultBlockSize is the uncompressed payload size at which a writer
	// flushes its current block.
	DefaultBlockSize = 64 * 1024
	// DefaultBlockRecords caps the record count of a single block.
	DefaultBlockRecords = 4000
	// MaxBlockSize guards against corrupted size fields.
	MaxBlockSize = 256 * 1024 * 1024
)

// --- File Names ---
const (
	OutputFilePrefix = "part-r-"
	OutputFileSuffix = ".avro"
)

// FormatOutputFilename returns the reducer-style output name for a partition,
// e.g. part-r-00003.avro.
func FormatOutputFilename(partition int) string {
	return fmt.Sprintf("%s%05d%s", OutputFilePrefix, partition, OutputFileSuffix)
}
