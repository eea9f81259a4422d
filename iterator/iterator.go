// Package iterator turns a byte-range split of a container file into the
// sequence of records whose blocks belong to that split.
package iterator

import "iter"

// Interface is the pull iterator shape shared by the readers in this module.
type Interface[T any] interface {
	Next() bool
	// At returns the stream position and the current record. The record is
	// only valid until the next call to Next.
	At() (int64, T)
	Error() error
	Close() error
}

var _ Interface[any] = (*SplitIterator[any])(nil)

// Seq adapts it to a range-over-func sequence. Iteration stops early when
// the loop body breaks; the caller still owns it and must Close it and
// check Error.
func Seq[T any](it Interface[T]) iter.Seq2[int64, T] {
	return func(yield func(int64, T) bool) {
		for it.Next() {
			if !yield(it.At()) {
				return
			}
		}
	}
}

// Collect drains it into a slice and closes it.
func Collect[T any](it Interface[T]) (_ []T, err error) {
	defer func() {
		if cerr := it.Close(); err == nil {
			err = cerr
		}
	}()
	var out []T
	for _, v := range Seq(it) {
		out = append(out, v)
	}
	return out, it.Error()
}
