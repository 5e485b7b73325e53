package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"
)

// FileLock provides advisory file locking for cross-process synchronization.
// This uses flock(2) system call which is available on Unix-like systems.
type FileLock struct {
	path string
	file *os.File
}

// NewFileLock creates a file lock. The lock is not acquired until Lock() is called.
// The lock file will be created at path + ".lock".
func NewFileLock(path string) *FileLock {
	return &FileLock{path: path + ".lock"}
}

// Lock acquires an exclusive lock, polling until timeout or ctx ends.
// Returns an error matching both ErrLocked and ErrLockTimeout on timeout.
func (l *FileLock) Lock(ctx context.Context, timeout time.Duration) error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return &StorageError{Op: "lock", Entity: "file", ID: l.path, Err: err}
	}
	var err error
	l.file, err = os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return &StorageError{Op: "lock", Entity: "file", ID: l.path, Err: err}
	}

	deadline := time.Now().Add(timeout)
	for {
		err = syscall.Flock(int(l.file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
		if err == nil {
			return nil
		}
		if !time.Now().Before(deadline) {
			break
		}
		select {
		case <-ctx.Done():
			l.file.Close()
			l.file = nil
			return ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}

	l.file.Close()
	l.file = nil
	return &StorageError{Op: "lock", Entity: "file", ID: l.path, Err: fmt.Errorf("%w: %w", ErrLocked, ErrLockTimeout)}
}

// Unlock releases the lock.
func (l *FileLock) Unlock() error {
	if l.file == nil {
		return nil
	}
	syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN)
	l.file.Close()
	l.file = nil
	return nil
}

// FileLocker hands out flock-based leases under Dir, one lock file per key.
type FileLocker struct {
	Dir     string
	Timeout time.Duration
}

// NewFileLocker returns a locker storing lock files in dir.
func NewFileLocker(dir string, timeout time.Duration) *FileLocker {
	return &FileLocker{Dir: dir, Timeout: timeout}
}

// Lock implements Locker.
func (f *FileLocker) Lock(ctx context.Context, key string) (Lease, error) {
	if err := checkID("lock", key); err != nil {
		return nil, err
	}
	l := NewFileLock(filepath.Join(f.Dir, key))
	if err := l.Lock(ctx, f.Timeout); err != nil {
		return nil, err
	}
	return fileLease{l}, nil
}

type fileLease struct{ lock *FileLock }

func (l fileLease) Release(context.Context) error { return l.lock.Unlock() }
