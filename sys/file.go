// Package sys abstracts the filesystem that container files live on, so the
// readers and writers can run against local disks, a distributed filesystem
// client, or an in-memory store in tests.
package sys

import (
	"errors"
	"io"
	"os"
)

// FileSystem opens seekable byte streams by name.
type FileSystem interface {
	// Open opens an existing file for reading.
	Open(name string) (FileHandle, error)
	// Create creates or truncates a file for writing, creating missing
	// parent directories.
	Create(name string) (FileHandle, error)
	// Stat returns the file size in bytes.
	Stat(name string) (int64, error)
}

// FileHandle is an open file. Handles are not safe for concurrent use.
type FileHandle interface {
	io.ReadWriteCloser
	io.Seeker

	Name() string
}

// Size returns the length of f by seeking to its end, restoring the current
// position afterwards.
func Size(f io.Seeker) (int64, error) {
	cur, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, err
	}
	end, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, err
	}
	if _, err := f.Seek(cur, io.SeekStart); err != nil {
		return 0, err
	}
	return end, nil
}

// IsNotExist reports whether err says a file does not exist.
func IsNotExist(err error) bool {
	return errors.Is(err, os.ErrNotExist)
}
