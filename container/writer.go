package container

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"

	"github.com/INLOpen/avromr/compressors"
	"github.com/INLOpen/avromr/core"
	"github.com/hamba/avro/v2"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// WriterOptions configures a Writer.
type WriterOptions struct {
	Schema avro.Schema
	Codec  core.CompressionType
	// BlockSize is the uncompressed payload size that triggers a flush.
	BlockSize int
	// BlockRecords is the record count that triggers a flush.
	BlockRecords int
	// Metadata is added to the header. The schema and codec entries are
	// always set by the writer.
	Metadata map[string][]byte
	Logger   *slog.Logger
	Tracer   trace.Tracer
}

// Writer appends records to a container stream. The first write error is
// sticky: every later call returns it. A Writer is not safe for concurrent
// use.
type Writer struct {
	w          io.Writer
	schema     avro.Schema
	compressor core.Compressor
	header     Header

	blockSize    int
	blockRecords int

	buf    []byte
	count  int64
	offset int64
	blocks []BlockInfo

	err    error
	closed bool
	logger *slog.Logger
	tracer trace.Tracer
}

// NewWriter writes a header with a fresh sync marker to w and returns a
// Writer for the records that follow.
func NewWriter(w io.Writer, opts WriterOptions) (*Writer, error) {
	if opts.Schema == nil {
		return nil, &core.ConfigurationError{Key: core.MetaSchemaKey, Message: "writer schema is required"}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.BlockSize <= 0 {
		opts.BlockSize = core.DefaultBlockSize
	}
	if opts.BlockRecords <= 0 {
		opts.BlockRecords = core.DefaultBlockRecords
	}
	compressor, err := compressors.GetCompressor(opts.Codec)
	if err != nil {
		return nil, err
	}

	meta := make(map[string][]byte, len(opts.Metadata)+2)
	for k, v := range opts.Metadata {
		meta[k] = v
	}
	meta[core.MetaSchemaKey] = []byte(opts.Schema.String())
	meta[core.MetaCodecKey] = []byte(opts.Codec.String())

	sync := NewSyncMarker()
	headerBytes := encodeHeader(meta, sync)
	if _, err := w.Write(headerBytes); err != nil {
		return nil, fmt.Errorf("failed to write container header: %w", err)
	}

	return &Writer{
		w:            w,
		schema:       opts.Schema,
		compressor:   compressor,
		header:       Header{Meta: meta, Sync: sync, Size: int64(len(headerBytes))},
		blockSize:    opts.BlockSize,
		blockRecords: opts.BlockRecords,
		buf:          make([]byte, 0, opts.BlockSize),
		offset:       int64(len(headerBytes)),
		logger:       opts.Logger.With("component", "ContainerWriter"),
		tracer:       opts.Tracer,
	}, nil
}

func (w *Writer) Header() Header { return w.header }

// Offset returns the number of bytes handed to the underlying writer.
func (w *Writer) Offset() int64 { return w.offset }

// Blocks returns the layout of every block flushed so far.
func (w *Writer) Blocks() []BlockInfo {
	return append([]BlockInfo(nil), w.blocks...)
}

// Append encodes v with the writer schema and buffers it. A value that
// does not match the schema is rejected with a core.EncodingError and
// leaves the writer usable.
func (w *Writer) Append(v any) error {
	if w.closed {
		return core.ErrClosed
	}
	if w.err != nil {
		return w.err
	}
	data, err := avro.Marshal(w.schema, v)
	if err != nil {
		return &core.EncodingError{Role: "record", Err: err}
	}
	w.buf = append(w.buf, data...)
	w.count++
	if len(w.buf) >= w.blockSize || w.count >= int64(w.blockRecords) {
		return w.Flush()
	}
	return nil
}

// Flush writes buffered records as one block. It does nothing when no
// records are buffered.
func (w *Writer) Flush() error {
	if w.err != nil {
		return w.err
	}
	if w.count == 0 {
		return nil
	}

	var span trace.Span
	if w.tracer != nil {
		_, span = w.tracer.Start(context.Background(), "ContainerWriter.Flush")
		defer span.End()
	}

	payload := core.BufferPool.Get()
	defer core.BufferPool.Put(payload)
	if err := w.compressor.CompressTo(payload, w.buf); err != nil {
		return w.fail(span, fmt.Errorf("failed to compress block: %w", err))
	}

	block := core.BufferPool.Get()
	defer core.BufferPool.Put(block)
	var scratch [binary.MaxVarintLen64]byte
	block.Write(binary.AppendVarint(scratch[:0], w.count))
	block.Write(binary.AppendVarint(scratch[:0], int64(payload.Len())))
	block.Write(payload.Bytes())
	block.Write(w.header.Sync[:])

	if _, err := w.w.Write(block.Bytes()); err != nil {
		return w.fail(span, fmt.Errorf("failed to write block at %d: %w", w.offset, err))
	}

	info := BlockInfo{Offset: w.offset, Length: int64(block.Len()), Count: w.count}
	w.blocks = append(w.blocks, info)
	w.offset = info.End()
	if span != nil {
		span.SetAttributes(
			attribute.Int64("container.block.offset", info.Offset),
			attribute.Int64("container.block.records", info.Count),
			attribute.Int("container.block.uncompressed", len(w.buf)),
			attribute.Int("container.block.compressed", payload.Len()),
		)
	}
	w.logger.Debug("Flushed block", "offset", info.Offset, "records", info.Count, "length", info.Length)

	w.buf = w.buf[:0]
	w.count = 0
	return nil
}

// Sync flushes the current block and returns the offset at which the next
// block will start. That offset is a valid target for Reader.AlignAfter.
func (w *Writer) Sync() (int64, error) {
	if w.closed {
		return 0, core.ErrClosed
	}
	if err := w.Flush(); err != nil {
		return 0, err
	}
	return w.offset, nil
}

// Close flushes buffered records. It does not close the underlying writer.
// Calling Close more than once is a no-op.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	err := w.Flush()
	w.closed = true
	w.buf = nil
	return err
}

func (w *Writer) fail(span trace.Span, err error) error {
	w.err = err
	w.logger.Error("Container writer failed", "error", err)
	if span != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}
