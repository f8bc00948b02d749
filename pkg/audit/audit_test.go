package audit

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestAppendFormat(t *testing.T) {
	dir := t.TempDir()
	l := New(filepath.Join(dir, "transactions.log"), zerolog.Nop())
	l.now = func() time.Time {
		return time.Date(2024, 3, 1, 12, 30, 45, 0, time.UTC)
	}

	l.Append(OpDeposit, "alice", "Amount: 50", OutcomeSuccess)

	b, err := os.ReadFile(l.Path())
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	want := "2024-03-01 12:30:45 | Deposit | alice | Amount: 50 | Success\n"
	if string(b) != want {
		t.Fatalf("log line = %q, want %q", string(b), want)
	}
}

func TestAppendErrorsAreSwallowed(t *testing.T) {
	// A path inside a directory that does not exist cannot be opened; the
	// append must still return without panicking.
	l := New(filepath.Join(t.TempDir(), "no", "such", "dir", "t.log"), zerolog.Nop())
	l.Append(OpCreate, "alice", "Initial balance: 1", OutcomeFailed)
}

func TestConcurrentAppendsNeverInterleaveMidLine(t *testing.T) {
	dir := t.TempDir()
	l := New(filepath.Join(dir, "transactions.log"), zerolog.Nop())

	const writers = 8
	const perWriter = 50
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWriter; j++ {
				l.Append(OpTransfer, "acct", "Amount: 1", OutcomeSuccess)
			}
		}()
	}
	wg.Wait()

	b, err := os.ReadFile(l.Path())
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	lines := strings.Split(strings.TrimSuffix(string(b), "\n"), "\n")
	if len(lines) != writers*perWriter {
		t.Fatalf("got %d lines, want %d", len(lines), writers*perWriter)
	}
	for _, line := range lines {
		if strings.Count(line, "|") != 4 {
			t.Fatalf("malformed line: %q", line)
		}
	}
}
