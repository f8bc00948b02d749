// Package audit appends pipe-separated transaction records to a single
// append-only log file. The trail is best-effort: append errors never
// propagate to the financial operation that produced the entry.
package audit

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Operation names recorded in the log.
const (
	OpCreate       = "Create Account"
	OpDeposit      = "Deposit"
	OpWithdraw     = "Withdraw"
	OpTransfer     = "Transfer"
	OpViewBalance  = "View Balance"
	OpAuthenticate = "Authenticate"
)

// Outcomes recorded in the log.
const (
	OutcomeSuccess = "Success"
	OutcomeFailed  = "Failed"
)

const timeLayout = "2006-01-02 15:04:05"

// Log serializes appends to one log file through its own mutex, independent
// of any account lock. Lines from concurrent operations interleave but never
// overlap mid-line.
type Log struct {
	mu   sync.Mutex
	path string
	log  zerolog.Logger

	// now is swapped out in tests for deterministic timestamps.
	now func() time.Time
}

// New returns a Log that appends to the file at path.
func New(path string, logger zerolog.Logger) *Log {
	return &Log{path: path, log: logger, now: time.Now}
}

// Path returns the log file location.
func (l *Log) Path() string { return l.path }

// Append writes one entry: `timestamp | op | accountID | details | outcome`.
// I/O errors are swallowed; they are reported to the structured logger only.
func (l *Log) Append(op, accountID, details, outcome string) {
	line := fmt.Sprintf("%s | %s | %s | %s | %s\n",
		l.now().Format(timeLayout), op, accountID, details, outcome)

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		l.log.Debug().Err(err).Str("op", op).Msg("audit append skipped")
		return
	}
	defer f.Close()
	if _, err := f.WriteString(line); err != nil {
		l.log.Debug().Err(err).Str("op", op).Msg("audit append failed")
	}
}
