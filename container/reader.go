package container

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/INLOpen/avromr/compressors"
	"github.com/INLOpen/avromr/core"
	"github.com/INLOpen/avromr/sys"
	"github.com/hamba/avro/v2"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ReaderOptions configures a Reader.
type ReaderOptions struct {
	Logger *slog.Logger
	Tracer trace.Tracer
	// WindowSize is the chunk size used when scanning for sync markers.
	// Values below the marker size are raised to it.
	WindowSize int
}

// Reader decodes records from a container file and can reposition itself
// onto the block boundary that follows any byte offset.
//
// Block payloads are read whole and decoded from memory, so between two
// Read calls the stream always sits either inside a loaded block or exactly
// at the start of the next one. A Reader is not safe for concurrent use.
type Reader struct {
	in     *positionedReader
	closer io.Closer
	length int64

	header Header
	schema avro.Schema
	codec  core.Compressor

	windowSize int
	// prevSync is the offset of the last sync marker passed by the stream.
	prevSync  int64
	remaining int64
	dec       *avro.Decoder

	closed bool
	logger *slog.Logger
	tracer trace.Tracer
}

// NewReader reads the header of the container in rs. If rs is an io.Closer
// it is closed by Reader.Close.
func NewReader(rs io.ReadSeeker, opts ReaderOptions) (*Reader, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.WindowSize <= 0 {
		opts.WindowSize = core.DefaultWindowSize
	}
	if opts.WindowSize < core.SyncSize {
		opts.WindowSize = core.SyncSize
	}

	length, err := sys.Size(rs)
	if err != nil {
		return nil, fmt.Errorf("failed to determine container length: %w", err)
	}

	r := &Reader{
		in:         newPositionedReader(rs),
		length:     length,
		windowSize: opts.WindowSize,
		logger:     opts.Logger.With("component", "ContainerReader"),
		tracer:     opts.Tracer,
	}
	if c, ok := rs.(io.Closer); ok {
		r.closer = c
	}
	if err := r.readHeader(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Reader) readHeader() error {
	if err := r.in.Seek(0); err != nil {
		return fmt.Errorf("failed to seek to header: %w", err)
	}
	h, err := decodeHeader(r.in)
	if err != nil {
		return fmt.Errorf("failed to read container header: %w", err)
	}
	h.Size = r.in.pos

	schema, err := core.ParseSchema(core.MetaSchemaKey, h.SchemaText())
	if err != nil {
		return err
	}
	codec, err := compressors.ForName(h.Codec())
	if err != nil {
		return fmt.Errorf("container codec: %w", err)
	}

	r.header = h
	r.schema = schema
	r.codec = codec
	r.prevSync = h.Size - core.SyncSize
	r.remaining = 0
	r.dec = nil
	r.logger.Debug("Read container header", "header_size", h.Size, "codec", h.Codec(), "length", r.length)
	return nil
}

func (r *Reader) Header() Header { return r.header }

// Schema returns the writer schema from the header.
func (r *Reader) Schema() avro.Schema { return r.schema }

func (r *Reader) Codec() core.CompressionType { return r.codec.Type() }

// Length returns the size of the underlying stream.
func (r *Reader) Length() int64 { return r.length }

// Tell returns the stream position. While a block is loaded this is the
// start of the block after it.
func (r *Reader) Tell() int64 { return r.in.pos }

// PreviousSync returns the offset of the most recent sync marker the stream
// has moved past: the header's marker right after opening, or the marker
// found by AlignAfter.
func (r *Reader) PreviousSync() int64 { return r.prevSync }

// BlockRemaining returns the number of undecoded records in the loaded block.
func (r *Reader) BlockRemaining() int64 { return r.remaining }

// AtBlockBoundary reports whether every record of the loaded block has been
// decoded, so the next Read starts a new block.
func (r *Reader) AtBlockBoundary() bool { return r.remaining == 0 }

// AlignAfter positions the reader at the first block whose preceding sync
// marker starts at or after offset. An offset at or before zero rewinds to
// the first block. When no marker follows offset the reader is left at the
// end of the stream and an error wrapping core.ErrAlignmentNotFound is
// returned.
//
// Rewinding parses the header again, so a reader can be reused after the
// stream was repositioned behind its back.
func (r *Reader) AlignAfter(offset int64) error {
	if r.closed {
		return core.ErrClosed
	}
	var span trace.Span
	if r.tracer != nil {
		_, span = r.tracer.Start(context.Background(), "ContainerReader.AlignAfter")
		defer span.End()
		span.SetAttributes(attribute.Int64("container.offset", offset))
	}

	r.remaining = 0
	r.dec = nil

	if offset <= 0 {
		if err := r.readHeader(); err != nil {
			return r.fail(span, fmt.Errorf("failed to rewind to first block: %w", err))
		}
		return nil
	}

	found, err := r.scanSync(offset)
	if err != nil {
		return r.fail(span, fmt.Errorf("failed to scan for sync marker after %d: %w", offset, err))
	}
	if found < 0 {
		if err := r.in.Seek(r.length); err != nil {
			return r.fail(span, err)
		}
		r.prevSync = r.length
		r.logger.Debug("No sync marker after offset", "offset", offset, "length", r.length)
		return fmt.Errorf("align after %d: %w", offset, core.ErrAlignmentNotFound)
	}

	if err := r.in.Seek(found + core.SyncSize); err != nil {
		return r.fail(span, err)
	}
	r.prevSync = found
	if span != nil {
		span.SetAttributes(attribute.Int64("container.sync_offset", found))
	}
	r.logger.Debug("Aligned to block boundary", "offset", offset, "sync_offset", found)
	return nil
}

// scanSync returns the start of the first sync marker at or after offset, or
// -1. Consecutive windows overlap by SyncSize-1 bytes so a marker that
// straddles two windows is still seen whole.
func (r *Reader) scanSync(offset int64) (int64, error) {
	window := make([]byte, r.windowSize)
	pos := offset
	for pos <= r.length-core.SyncSize {
		n := min(int64(len(window)), r.length-pos)
		buf := window[:n]
		if _, err := r.in.ReadAt(buf, pos); err != nil {
			return -1, err
		}
		if i := bytes.Index(buf, r.header.Sync[:]); i >= 0 {
			return pos + int64(i), nil
		}
		pos += n - (core.SyncSize - 1)
	}
	return -1, nil
}

// ReadBlock reads the next block as stored, without decompressing it. Any
// records left in the loaded block are skipped. It returns io.EOF at the end
// of the stream.
func (r *Reader) ReadBlock() (Block, error) {
	if r.closed {
		return Block{}, core.ErrClosed
	}
	r.remaining = 0
	r.dec = nil
	return r.readRawBlock()
}

func (r *Reader) readRawBlock() (Block, error) {
	offset := r.in.pos
	if offset >= r.length {
		return Block{}, io.EOF
	}
	count, err := readLong(r.in)
	if err != nil {
		return Block{}, fmt.Errorf("failed to read block count at %d: %w", offset, err)
	}
	size, err := readLong(r.in)
	if err != nil {
		return Block{}, fmt.Errorf("failed to read block size at %d: %w", offset, err)
	}
	if count < 0 || size < 0 || size > core.MaxBlockSize {
		return Block{}, fmt.Errorf("invalid block at %d (count=%d, size=%d): %w", offset, count, size, core.ErrCorrupted)
	}

	data := make([]byte, size)
	if err := readFull(r.in, data); err != nil {
		return Block{}, fmt.Errorf("failed to read block payload at %d: %w", offset, err)
	}
	var sync SyncMarker
	if err := readFull(r.in, sync[:]); err != nil {
		return Block{}, fmt.Errorf("failed to read block sync at %d: %w", offset, err)
	}
	if sync != r.header.Sync {
		return Block{}, fmt.Errorf("sync marker mismatch after block at %d: %w", offset, core.ErrCorrupted)
	}
	r.prevSync = r.in.pos - core.SyncSize

	return Block{
		BlockInfo: BlockInfo{Offset: offset, Length: r.in.pos - offset, Count: count},
		Data:      data,
	}, nil
}

// LoadBlock reads and decompresses the next block so its records can be
// decoded. The loaded block may hold zero records.
func (r *Reader) LoadBlock() error {
	if r.closed {
		return core.ErrClosed
	}
	block, err := r.readRawBlock()
	if err != nil {
		r.remaining = 0
		r.dec = nil
		return err
	}

	rc, err := r.codec.Decompress(block.Data)
	if err != nil {
		return fmt.Errorf("failed to decompress block at %d: %w", block.Offset, err)
	}
	payload, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return fmt.Errorf("failed to decompress block at %d: %w", block.Offset, err)
	}

	r.dec = avro.NewDecoderForSchema(r.schema, bytes.NewReader(payload))
	r.remaining = block.Count
	return nil
}

// Read decodes the next record into v, loading blocks as needed. It returns
// io.EOF once the stream is exhausted.
func (r *Reader) Read(v any) error {
	if r.closed {
		return core.ErrClosed
	}
	for r.remaining == 0 {
		if err := r.LoadBlock(); err != nil {
			return err
		}
	}
	if err := r.dec.Decode(v); err != nil {
		return &core.DecodingError{Role: "record", Err: err}
	}
	r.remaining--
	return nil
}

// Close releases the reader and closes the underlying stream when it is
// closable. Calling Close more than once is a no-op.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	r.dec = nil
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}

// readFull is io.ReadFull that never reports a clean io.EOF, since the
// stream only ends cleanly between blocks.
func readFull(r io.Reader, b []byte) error {
	if _, err := io.ReadFull(r, b); err != nil {
		if err == io.EOF {
			return io.ErrUnexpectedEOF
		}
		return err
	}
	return nil
}

func (r *Reader) fail(span trace.Span, err error) error {
	r.logger.Error("Container reader failed", "error", err)
	if span != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// IsEndOfData reports whether err marks a reader that has nothing left,
// either because the stream ended or because no block follows an offset.
func IsEndOfData(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, core.ErrAlignmentNotFound)
}
