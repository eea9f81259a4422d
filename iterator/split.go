package iterator

import (
	"errors"
	"fmt"
	"iter"
	"log/slog"

	"github.com/INLOpen/avromr/container"
	"github.com/INLOpen/avromr/core"
	"github.com/INLOpen/avromr/sys"
	"go.opentelemetry.io/otel/trace"
)

// Options configures how a split is opened.
type Options struct {
	Logger *slog.Logger
	Tracer trace.Tracer
	// WindowSize is passed to the container reader's sync marker scan.
	WindowSize int
}

// SplitIterator yields the records of every block owned by a split. A block
// is owned by the split that contains the start of the sync marker in front
// of it, so adjacent splits of one file see each record exactly once.
type SplitIterator[T any] struct {
	reader *container.Reader
	split  core.Split
	start  int64
	end    int64

	// pos is the start of the current block; blockEnd and blockCount
	// describe the same block.
	pos        int64
	blockEnd   int64
	blockCount int64
	cur        T
	err        error
	done       bool

	logger *slog.Logger
}

// NewSplitIterator aligns reader to the first block of split. A split that
// holds no sync marker yields nothing.
func NewSplitIterator[T any](reader *container.Reader, split core.Split, logger *slog.Logger) (*SplitIterator[T], error) {
	if logger == nil {
		logger = slog.Default()
	}
	it := &SplitIterator[T]{
		reader: reader,
		split:  split,
		start:  split.Offset,
		end:    split.End(),
		pos:    split.Offset,
		logger: logger.With("component", "SplitIterator", "split", split.String()),
	}
	if err := reader.AlignAfter(split.Offset); err != nil {
		if !errors.Is(err, core.ErrAlignmentNotFound) {
			return nil, fmt.Errorf("failed to align split %s: %w", split, err)
		}
		it.logger.Debug("Split holds no block start")
		it.done = true
	}
	return it, nil
}

// Open opens the split's file on fs and returns an iterator over it. Closing
// the iterator closes the file.
func Open[T any](fs sys.FileSystem, split core.Split, opts Options) (_ *SplitIterator[T], err error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	f, err := fs.Open(split.Filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open split file %s: %w", split.Filename, err)
	}
	defer func() {
		if err != nil {
			f.Close()
		}
	}()

	reader, err := container.NewReader(f, container.ReaderOptions{
		Logger:     opts.Logger,
		Tracer:     opts.Tracer,
		WindowSize: opts.WindowSize,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open container %s: %w", split.Filename, err)
	}
	return NewSplitIterator[T](reader, split, opts.Logger)
}

// Next decodes the next owned record. It returns false at the end of the
// split or on error; check Error afterwards.
func (it *SplitIterator[T]) Next() bool {
	if it.done || it.err != nil {
		return false
	}
	for it.reader.AtBlockBoundary() {
		if it.reader.PreviousSync() >= it.end {
			it.finish()
			return false
		}
		it.pos = it.reader.Tell()
		if err := it.reader.LoadBlock(); err != nil {
			if container.IsEndOfData(err) {
				it.finish()
				return false
			}
			it.err = err
			return false
		}
		it.blockEnd = it.reader.Tell()
		it.blockCount = it.reader.BlockRemaining()
	}

	var v T
	if err := it.reader.Read(&v); err != nil {
		it.err = err
		return false
	}
	it.cur = v
	return true
}

func (it *SplitIterator[T]) finish() {
	it.done = true
	it.pos = it.end
	var zero T
	it.cur = zero
}

// At returns the start offset of the block holding the current record and
// the record itself. Every record of a block reports the same offset, since
// blocks are decoded from memory.
func (it *SplitIterator[T]) At() (int64, T) {
	return it.pos, it.cur
}

func (it *SplitIterator[T]) Error() error {
	return it.err
}

// Progress estimates the consumed fraction of the split from the stream
// position, interpolated across the current block by records consumed. It
// never decreases and is exactly 1 once the split is drained.
func (it *SplitIterator[T]) Progress() float64 {
	if it.end <= it.start || it.done {
		return 1.0
	}
	at := float64(it.pos)
	if it.blockCount > 0 {
		consumed := it.blockCount - it.reader.BlockRemaining()
		at += float64(it.blockEnd-it.pos) * float64(consumed) / float64(it.blockCount)
	}
	p := (at - float64(it.start)) / float64(it.end-it.start)
	switch {
	case p < 0:
		return 0
	case p > 1:
		return 1
	}
	return p
}

// All returns the remaining records as a range-over-func sequence.
func (it *SplitIterator[T]) All() iter.Seq2[int64, T] {
	return Seq[T](it)
}

// Close closes the underlying reader.
func (it *SplitIterator[T]) Close() error {
	it.done = true
	return it.reader.Close()
}

// Split returns the byte range this iterator covers.
func (it *SplitIterator[T]) Split() core.Split {
	return it.split
}
