package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"clipsync/internal/account"
)

const (
	schemaVersion = "1.0"
	recordExt     = ".json"
)

// JSONStore implements Store with one JSON file per account in a directory.
type JSONStore struct {
	dir string
	mu  sync.RWMutex
	now func() time.Time
}

// NewJSONStore creates the directory if needed and returns a store over it.
func NewJSONStore(dir string) (*JSONStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, &StorageError{Op: "open", Entity: "store", ID: dir, Err: err}
	}
	return &JSONStore{dir: dir, now: time.Now}, nil
}

// Dir returns the directory holding account records.
func (s *JSONStore) Dir() string { return s.dir }

func (s *JSONStore) path(id string) string {
	return filepath.Join(s.dir, id+recordExt)
}

// Load implements Store.
func (s *JSONStore) Load(ctx context.Context, id string) (*account.Account, error) {
	if err := checkID("read", id); err != nil {
		return nil, err
	}
	if strings.ContainsAny(id, `/\`) {
		return nil, &StorageError{Op: "read", Entity: "account", ID: id, Err: ErrInvalidInput}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &StorageError{Op: "read", Entity: "account", ID: id, Err: ErrNotFound}
		}
		return nil, &StorageError{Op: "read", Entity: "account", ID: id, Err: err}
	}

	var rec accountRecord
	if err := json.Unmarshal(data, &rec); err != nil || rec.Account == nil {
		return nil, &StorageError{Op: "read", Entity: "account", ID: id, Err: ErrStorageCorrupt}
	}
	if rec.Account.ID != id {
		return nil, &StorageError{Op: "read", Entity: "account", ID: id, Err: ErrStorageCorrupt}
	}
	return rec.Account, nil
}

// Save implements Store. The record is written exactly as given.
func (s *JSONStore) Save(ctx context.Context, acct *account.Account) error {
	if err := s.checkAccount("write", acct); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(acct)
}

// Create implements Store.
func (s *JSONStore) Create(ctx context.Context, acct *account.Account) error {
	if err := s.checkAccount("create", acct); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.path(acct.ID)); err == nil {
		return &StorageError{Op: "create", Entity: "account", ID: acct.ID, Err: ErrAlreadyExists}
	}

	now := s.now()
	if acct.CreatedAt.IsZero() {
		acct.CreatedAt = now
	}
	acct.UpdatedAt = now
	return s.write(acct)
}

// Delete implements Store.
func (s *JSONStore) Delete(ctx context.Context, id string) error {
	if err := checkID("delete", id); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path(id)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &StorageError{Op: "delete", Entity: "account", ID: id, Err: ErrNotFound}
		}
		return &StorageError{Op: "delete", Entity: "account", ID: id, Err: err}
	}
	return nil
}

// List implements Store.
func (s *JSONStore) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, &StorageError{Op: "read", Entity: "store", ID: s.dir, Err: err}
	}

	var ids []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		if id, ok := strings.CutSuffix(name, recordExt); ok {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Close implements Store.
func (s *JSONStore) Close() error { return nil }

func (s *JSONStore) checkAccount(op string, acct *account.Account) error {
	if acct == nil {
		return &StorageError{Op: op, Entity: "account", Err: ErrInvalidInput}
	}
	if err := checkID(op, acct.ID); err != nil {
		return err
	}
	if strings.ContainsAny(acct.ID, `/\`) || strings.HasPrefix(acct.ID, ".") {
		return &StorageError{Op: op, Entity: "account", ID: acct.ID, Err: ErrInvalidInput}
	}
	return nil
}

// write persists the record atomically. Callers hold s.mu.
func (s *JSONStore) write(acct *account.Account) error {
	writer, err := NewAtomicWriter(s.path(acct.ID))
	if err != nil {
		return &StorageError{Op: "write", Entity: "account", ID: acct.ID, Err: err}
	}

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(accountRecord{Version: schemaVersion, Account: acct}); err != nil {
		writer.Abort()
		return &StorageError{Op: "write", Entity: "account", ID: acct.ID, Err: err}
	}

	if err := writer.Commit(); err != nil {
		return &StorageError{Op: "write", Entity: "account", ID: acct.ID, Err: err}
	}
	return nil
}
