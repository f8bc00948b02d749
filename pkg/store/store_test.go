package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

func TestReadWriteRoundTrip(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	want := Record{Balance: 1234, Salt: "c2FsdA==", PasswordHash: "abcd"}
	if err := s.Write("alice", want); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := s.Read("alice")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got != want {
		t.Fatalf("Read = %+v, want %+v", got, want)
	}
}

func TestReadMissing(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := s.Read("ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Read missing: got %v, want ErrNotFound", err)
	}
	if s.Exists("ghost") {
		t.Fatal("Exists reported a record for a missing account")
	}
}

func TestReadCorrupt(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	cases := map[string]string{
		"garbled":  "not json at all",
		"negative": `{"balance": -5}`,
	}
	for id, contents := range cases {
		if err := os.WriteFile(filepath.Join(dir, id+".json"), []byte(contents), 0o600); err != nil {
			t.Fatalf("seed %s: %v", id, err)
		}
		if _, err := s.Read(id); !errors.Is(err, ErrCorrupt) {
			t.Fatalf("Read(%s): got %v, want ErrCorrupt", id, err)
		}
	}
}

func TestWriteCrashLeavesPreviousRecord(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Write("alice", Record{Balance: 1000}); err != nil {
		t.Fatalf("initial Write: %v", err)
	}

	// Simulate a crash at the rename step.
	s.rename = func(oldpath, newpath string) error {
		return fmt.Errorf("disk gone")
	}
	if err := s.Write("alice", Record{Balance: 2000}); err == nil {
		t.Fatal("Write with failing rename should error")
	}

	s.rename = os.Rename
	got, err := s.Read("alice")
	if err != nil {
		t.Fatalf("Read after failed write: %v", err)
	}
	if got.Balance != 1000 {
		t.Fatalf("balance after failed write = %d, want previous 1000", got.Balance)
	}

	// The orphaned temp file must have been cleaned up.
	if _, err := os.Stat(filepath.Join(dir, "alice.json.tmp")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("temp file still present: %v", err)
	}
}

func TestInvalidIDsNeverTouchDisk(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for _, id := range []string{"", ".", "..", "../escape", `a\b`, "x/y"} {
		if _, err := s.Read(id); !errors.Is(err, ErrNotFound) {
			t.Fatalf("Read(%q): got %v, want ErrNotFound", id, err)
		}
		if err := s.Write(id, Record{Balance: 1}); err == nil {
			t.Fatalf("Write(%q) should fail", id)
		}
		if s.Exists(id) {
			t.Fatalf("Exists(%q) = true", id)
		}
	}
}

func TestListSkipsNonRecords(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for _, id := range []string{"bob", "alice"} {
		if err := s.Write(id, Record{Balance: 1}); err != nil {
			t.Fatalf("Write %s: %v", id, err)
		}
	}
	for _, name := range []string{"transactions.log", "central_log.txt", "alice.json.tmp"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o600); err != nil {
			t.Fatalf("seed %s: %v", name, err)
		}
	}

	ids, err := s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(ids) != 2 || ids[0] != "alice" || ids[1] != "bob" {
		t.Fatalf("List = %v, want [alice bob]", ids)
	}
}
