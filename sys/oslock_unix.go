//go:build unix

package sys

import (
	"fmt"
	"os"
	"syscall"
	"time"
)

// lockFile takes an advisory exclusive flock on lockPath, creating the file
// if needed. It retries until timeout elapses. The release function unlocks
// and removes the lock file.
func lockFile(lockPath string, timeout time.Duration) (func() error, error) {
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, err
	}

	fd := int(f.Fd())
	deadline := time.Now().Add(timeout)
	for {
		err = syscall.Flock(fd, syscall.LOCK_EX|syscall.LOCK_NB)
		if err == nil {
			return func() error {
				_ = syscall.Flock(fd, syscall.LOCK_UN)
				_ = os.Remove(lockPath)
				return f.Close()
			}, nil
		}
		if time.Now().After(deadline) {
			_ = f.Close()
			return nil, fmt.Errorf("%w: %s: %v", ErrLocked, lockPath, err)
		}
		time.Sleep(25 * time.Millisecond)
	}
}
