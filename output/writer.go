// Package output writes a task's final records to its partition file.
package output

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"

	"github.com/INLOpen/avromr/config"
	"github.com/INLOpen/avromr/container"
	"github.com/INLOpen/avromr/core"
	"github.com/INLOpen/avromr/sys"
	"github.com/hamba/avro/v2"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Options configures a PartitionWriter. Zero values fall back to the job
// configuration and then to the container defaults.
type Options struct {
	Codec        *core.CompressionType
	BlockSize    int
	BlockRecords int
	Metadata     map[string][]byte
	Logger       *slog.Logger
	Tracer       trace.Tracer
}

// PartitionWriter writes records to <output dir>/part-r-<partition>.avro.
// When the filesystem is a sys.Locker the file stays locked until Close.
type PartitionWriter struct {
	path   string
	file   sys.FileHandle
	writer *container.Writer
	unlock func() error
	closed bool

	logger *slog.Logger
	tracer trace.Tracer
}

// NewPartitionWriter creates the partition file named by conf and writes
// the container header for schema.
func NewPartitionWriter(conf *config.JobConf, fs sys.FileSystem, schema avro.Schema, opts Options) (_ *PartitionWriter, err error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	logger := opts.Logger.With("component", "PartitionWriter")

	outPath, err := OutputPath(conf)
	if err != nil {
		return nil, err
	}

	codec := core.CompressionNone
	if opts.Codec != nil {
		codec = *opts.Codec
	} else if name, ok := conf.Lookup(config.OutputCodecKey); ok {
		if codec, err = core.ParseCompressionType(name); err != nil {
			return nil, &core.ConfigurationError{Key: config.OutputCodecKey, Message: err.Error()}
		}
	}
	blockSize := opts.BlockSize
	if blockSize <= 0 {
		if blockSize, err = conf.GetInt(config.OutputBlockSizeKey, core.DefaultBlockSize); err != nil {
			return nil, err
		}
	}

	unlock := func() error { return nil }
	if l, ok := fs.(sys.Locker); ok {
		release, err := l.Lock(outPath)
		switch {
		case err == nil:
			unlock = release
		case sys.IsLockUnsupported(err):
			logger.Debug("Output locking unavailable", "path", outPath)
		default:
			return nil, err
		}
	}
	defer func() {
		if err != nil {
			unlock()
		}
	}()

	file, err := fs.Create(outPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file %s: %w", outPath, err)
	}
	logger.Debug("Created output file", "path", outPath)
	defer func() {
		if err != nil {
			file.Close()
		}
	}()

	writer, err := container.NewWriter(file, container.WriterOptions{
		Schema:       schema,
		Codec:        codec,
		BlockSize:    blockSize,
		BlockRecords: opts.BlockRecords,
		Metadata:     opts.Metadata,
		Logger:       opts.Logger,
		Tracer:       opts.Tracer,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start container in %s: %w", outPath, err)
	}

	return &PartitionWriter{
		path:   outPath,
		file:   file,
		writer: writer,
		unlock: unlock,
		logger: logger.With("path", outPath),
		tracer: opts.Tracer,
	}, nil
}

// OutputPath derives the partition file path from the task partition and
// output directory in conf.
func OutputPath(conf *config.JobConf) (string, error) {
	if !conf.Has(config.TaskPartitionKey) {
		return "", &core.ConfigurationError{Key: config.TaskPartitionKey, Message: "task partition is not set"}
	}
	partition, err := conf.GetInt(config.TaskPartitionKey, 0)
	if err != nil {
		return "", err
	}
	if partition < 0 {
		return "", &core.ConfigurationError{Key: config.TaskPartitionKey, Message: fmt.Sprintf("negative partition %d", partition)}
	}
	dir, ok := conf.Lookup(config.TaskOutputDirKey)
	if !ok || dir == "" {
		return "", &core.ConfigurationError{Key: config.TaskOutputDirKey, Message: "output directory is not set"}
	}
	return path.Join(dir, core.FormatOutputFilename(partition)), nil
}

func (w *PartitionWriter) Path() string { return w.path }

// Write appends one record.
func (w *PartitionWriter) Write(record any) error {
	if w.closed {
		return core.ErrClosed
	}
	return w.writer.Append(record)
}

// Close flushes the last block and closes the file. Later calls return nil.
func (w *PartitionWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	var span trace.Span
	if w.tracer != nil {
		_, span = w.tracer.Start(context.Background(), "PartitionWriter.Close")
		defer span.End()
		span.SetAttributes(attribute.String("output.path", w.path))
	}

	flushErr := w.writer.Close()
	closeErr := w.file.Close()
	unlockErr := w.unlock()
	if err := errors.Join(flushErr, closeErr, unlockErr); err != nil {
		w.logger.Error("Failed to close output file", "error", err)
		if span != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return fmt.Errorf("failed to close %s: %w", w.path, err)
	}
	w.logger.Debug("Closed output file", "bytes", w.writer.Offset(), "blocks", len(w.writer.Blocks()))
	return nil
}
