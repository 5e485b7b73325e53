// Package storage persists accounts and serializes per-account runs.
package storage

import (
	"context"
	"errors"
	"fmt"

	"clipsync/internal/account"
)

// Sentinel errors for common storage conditions.
var (
	// ErrNotFound indicates the requested account was not found.
	ErrNotFound = errors.New("storage: not found")
	// ErrAlreadyExists indicates the account already exists in storage.
	ErrAlreadyExists = errors.New("storage: already exists")
	// ErrInvalidInput indicates invalid or malformed input was provided.
	ErrInvalidInput = errors.New("storage: invalid input")
	// ErrStorageCorrupt indicates a stored record could not be decoded.
	ErrStorageCorrupt = errors.New("storage: data corruption detected")
	// ErrLockTimeout indicates a timeout acquiring a file lock.
	ErrLockTimeout = errors.New("storage: lock acquisition timeout")
	// ErrLocked indicates another process holds the account lock.
	ErrLocked = errors.New("storage: account is locked")
)

// StorageError wraps storage errors with operation and entity context.
// Use errors.As() to extract this error type and get operation details:
//
//	var storErr *storage.StorageError
//	if errors.As(err, &storErr) {
//		fmt.Printf("Failed to %s %s %s: %v\n", storErr.Op, storErr.Entity, storErr.ID, storErr.Err)
//	}
type StorageError struct {
	// Op is the operation that failed ("create", "read", "write", "delete", "lock").
	Op string
	// Entity is the entity type ("account", "lock").
	Entity string
	// ID is the entity ID if applicable.
	ID string
	// Err is the underlying error that occurred.
	Err error
}

// Error returns a string representation of the storage error.
func (e *StorageError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("storage: %s %s %s: %v", e.Op, e.Entity, e.ID, e.Err)
	}
	return fmt.Sprintf("storage: %s %s: %v", e.Op, e.Entity, e.Err)
}

// Unwrap returns the underlying error for use with errors.Is() and errors.As().
func (e *StorageError) Unwrap() error { return e.Err }

// Store loads and saves whole account records.
// Implementations must be safe for concurrent use.
type Store interface {
	// Load retrieves an account by ID.
	Load(ctx context.Context, id string) (*account.Account, error)
	// Save writes the account, replacing any previous record with the same ID.
	Save(ctx context.Context, acct *account.Account) error
	// Create saves a new account and fails if the ID is taken.
	Create(ctx context.Context, acct *account.Account) error
	// Delete removes an account.
	Delete(ctx context.Context, id string) error
	// List returns every stored account ID in ascending order.
	List(ctx context.Context) ([]string, error)
	// Close releases any resources held by the store.
	Close() error
}

// Locker serializes runs of the same account across processes.
type Locker interface {
	// Lock acquires the lock for key or fails with ErrLocked.
	Lock(ctx context.Context, key string) (Lease, error)
}

// Lease is a held lock.
type Lease interface {
	Release(ctx context.Context) error
}

func checkID(op, id string) error {
	if id == "" {
		return &StorageError{Op: op, Entity: "account", Err: ErrInvalidInput}
	}
	return nil
}
