package sys

import (
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
)

// Debug wraps a FileSystem and keeps track of the handles that are still
// open. Tests use it to check that every exit path releases its files.
type Debug struct {
	fs     FileSystem
	logger *slog.Logger

	nextID atomic.Uint64
	open   sync.Map // id -> name
}

var _ FileSystem = (*Debug)(nil)

func NewDebug(fs FileSystem, logger *slog.Logger) *Debug {
	if logger == nil {
		logger = slog.Default()
	}
	return &Debug{fs: fs, logger: logger.With("component", "DebugFile")}
}

func (d *Debug) Open(name string) (FileHandle, error) {
	f, err := d.fs.Open(name)
	if err != nil {
		return nil, err
	}
	return d.track(f), nil
}

func (d *Debug) Create(name string) (FileHandle, error) {
	f, err := d.fs.Create(name)
	if err != nil {
		return nil, err
	}
	return d.track(f), nil
}

func (d *Debug) Stat(name string) (int64, error) {
	return d.fs.Stat(name)
}

// OpenFiles lists the names of handles that have not been closed.
func (d *Debug) OpenFiles() []string {
	var names []string
	d.open.Range(func(_, value any) bool {
		names = append(names, value.(string))
		return true
	})
	sort.Strings(names)
	return names
}

func (d *Debug) track(f FileHandle) FileHandle {
	id := d.nextID.Add(1)
	logger := d.logger.With("id", id, "file_name", f.Name())
	logger.Debug("Opening file")
	d.open.Store(id, f.Name())
	return &DebugFile{FileHandle: f, id: id, owner: d, logger: logger}
}

// DebugFile is a FileHandle tracked by a Debug filesystem.
type DebugFile struct {
	FileHandle
	id     uint64
	owner  *Debug
	logger *slog.Logger
}

func (df *DebugFile) Close() error {
	df.logger.Debug("Closing file")
	df.owner.open.Delete(df.id)
	return df.FileHandle.Close()
}
