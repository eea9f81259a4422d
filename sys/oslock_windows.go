//go:build windows

package sys

import (
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/windows"
)

// lockFile locks the first byte of lockPath with LockFileEx, creating the
// file if needed. It retries until timeout elapses. The release function
// unlocks and removes the lock file.
func lockFile(lockPath string, timeout time.Duration) (func() error, error) {
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, err
	}

	h := windows.Handle(f.Fd())
	var ov windows.Overlapped

	deadline := time.Now().Add(timeout)
	for {
		err = windows.LockFileEx(h, windows.LOCKFILE_EXCLUSIVE_LOCK|windows.LOCKFILE_FAIL_IMMEDIATELY, 0, 1, 0, &ov)
		if err == nil {
			return func() error {
				_ = windows.UnlockFileEx(h, 0, 1, 0, &ov)
				cerr := f.Close()
				_ = os.Remove(lockPath)
				return cerr
			}, nil
		}
		if time.Now().After(deadline) {
			_ = f.Close()
			return nil, fmt.Errorf("%w: %s: %v", ErrLocked, lockPath, err)
		}
		time.Sleep(25 * time.Millisecond)
	}
}
