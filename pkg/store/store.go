// Package store persists one JSON record per account under a single data
// directory, using write-temp-then-rename so a reader never sees a partially
// written record.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Sentinel errors returned by Read.
var (
	// ErrNotFound means no record exists for the account id.
	ErrNotFound = errors.New("account record not found")

	// ErrCorrupt means a record file exists but its contents do not parse
	// into a valid record. Callers treat this like ErrNotFound.
	ErrCorrupt = errors.New("account record corrupt")
)

const recordExt = ".json"

// Record is the persisted state of one account.
// Salt and PasswordHash are set only when the credential gate is in use.
type Record struct {
	Balance      int64  `json:"balance"`
	Salt         string `json:"salt,omitempty"`
	PasswordHash string `json:"password_hash,omitempty"`
}

// Store reads and writes account records in a data directory.
//
// Store performs no locking of its own: the ledger engine holds the account
// lock around every read-modify-write sequence. A bare Read may race a
// concurrent Write to the same id and see either the old or the new record,
// never a torn one.
type Store struct {
	dir string

	// rename is swapped out in tests to simulate a crash mid-write.
	rename func(oldpath, newpath string) error
}

// New opens a store rooted at dir, creating the directory if needed.
func New(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("store: data directory is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("store: create data dir: %w", err)
	}
	return &Store{dir: dir, rename: os.Rename}, nil
}

// Dir returns the data directory the store is rooted at.
func (s *Store) Dir() string { return s.dir }

// path maps an account id to its record file.
func (s *Store) path(id string) string {
	return filepath.Join(s.dir, id+recordExt)
}

// validID rejects ids that would escape the data directory or collide with
// the store's own files.
func validID(id string) bool {
	return id != "" && id != "." && id != ".." && !strings.ContainsAny(id, `/\`)
}

// Read returns the record for id. Missing files yield ErrNotFound;
// unparseable or invalid contents yield ErrCorrupt.
func (s *Store) Read(id string) (Record, error) {
	if !validID(id) {
		return Record{}, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	b, err := os.ReadFile(s.path(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return Record{}, fmt.Errorf("read record %s: %w", id, err)
	}
	var rec Record
	if err := json.Unmarshal(b, &rec); err != nil {
		return Record{}, fmt.Errorf("%w: %s: %v", ErrCorrupt, id, err)
	}
	if rec.Balance < 0 {
		return Record{}, fmt.Errorf("%w: %s: negative balance", ErrCorrupt, id)
	}
	return rec, nil
}

// Exists reports whether a record file is present for id.
func (s *Store) Exists(id string) bool {
	if !validID(id) {
		return false
	}
	_, err := os.Stat(s.path(id))
	return err == nil
}

// Write persists rec for id atomically: the full record is written to a
// temporary file beside the final path, then renamed over it. A crash
// mid-write leaves the previous record intact; the orphaned temp file is
// removed best-effort on failure.
func (s *Store) Write(id string, rec Record) error {
	if !validID(id) {
		return fmt.Errorf("invalid account id %q", id)
	}
	final := s.path(id)
	tmp := final + ".tmp"
	b, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal record %s: %w", id, err)
	}
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return fmt.Errorf("write record %s: %w", id, err)
	}
	if err := s.rename(tmp, final); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace record %s: %w", id, err)
	}
	return nil
}

// List returns the ids of every account with a record file, sorted.
func (s *Store) List() ([]string, error) {
	ents, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	var ids []string
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, recordExt) || strings.HasSuffix(name, ".tmp") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, recordExt))
	}
	sort.Strings(ids)
	return ids, nil
}
