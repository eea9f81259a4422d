package sys

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"
)

var (
	// ErrLocked is returned when another holder owns a lock.
	ErrLocked = errors.New("file is locked")
	// ErrOSFileLockNotSupported is returned by OS.Lock on platforms without
	// advisory file locks.
	ErrOSFileLockNotSupported = errors.New("OS file locking not supported on this platform")
)

// IsLockUnsupported reports whether err says the platform cannot lock files.
func IsLockUnsupported(err error) bool {
	return errors.Is(err, ErrOSFileLockNotSupported)
}

// LockSuffix is appended to a file name to form its lock file name.
const LockSuffix = ".lock"

// LockPath returns the lock file guarding name: a dot-prefixed sibling, so
// listings of the data files skip it.
func LockPath(name string) string {
	dir, base := filepath.Split(name)
	return filepath.Join(dir, "."+base+LockSuffix)
}

// DefaultLockTimeout bounds how long OS.Lock waits for a held lock.
var DefaultLockTimeout = 500 * time.Millisecond

// Locker is implemented by filesystems that can hand out exclusive,
// advisory locks on a file name. Writers take the lock before creating the
// file so two attempts of one task cannot write the same output.
type Locker interface {
	Lock(name string) (release func() error, err error)
}

var (
	_ Locker = OS{}
	_ Locker = (*Mem)(nil)
	_ Locker = (*Debug)(nil)
)

// Lock takes an OS-level lock on LockPath(name), creating missing parent
// directories.
func (OS) Lock(name string) (func() error, error) {
	if err := ensureDir(name); err != nil {
		return nil, err
	}
	release, err := lockFile(LockPath(name), DefaultLockTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to lock %s: %w", name, err)
	}
	return release, nil
}

// Lock marks name as locked until the release function runs. It never
// waits.
func (m *Mem) Lock(name string) (func() error, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locks == nil {
		m.locks = make(map[string]bool)
	}
	if m.locks[name] {
		return nil, fmt.Errorf("failed to lock %s: %w", name, ErrLocked)
	}
	m.locks[name] = true

	var released bool
	return func() error {
		m.mu.Lock()
		defer m.mu.Unlock()
		if !released {
			released = true
			delete(m.locks, name)
		}
		return nil
	}, nil
}

// Lock delegates to the wrapped filesystem. Filesystems without locking get
// a no-op lock.
func (d *Debug) Lock(name string) (func() error, error) {
	l, ok := d.fs.(Locker)
	if !ok {
		return func() error { return nil }, nil
	}
	release, err := l.Lock(name)
	if err != nil {
		return nil, err
	}
	d.logger.Debug("Locked file", "file_name", name)
	return func() error {
		d.logger.Debug("Unlocked file", "file_name", name)
		return release()
	}, nil
}
