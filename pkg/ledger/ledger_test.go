package ledger

import (
	"bytes"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fin-labs/ledgerd/pkg/audit"
	"github.com/fin-labs/ledgerd/pkg/store"
)

// memAudit captures audit entries in memory for assertions.
type memAudit struct {
	mu      sync.Mutex
	entries []auditEntry
}

type auditEntry struct {
	op, account, details, outcome string
}

func (m *memAudit) Append(op, accountID, details, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, auditEntry{op, accountID, details, outcome})
}

// matching returns the entries with the given op and outcome.
func (m *memAudit) matching(op, outcome string) []auditEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []auditEntry
	for _, e := range m.entries {
		if e.op == op && e.outcome == outcome {
			out = append(out, e)
		}
	}
	return out
}

// failingStore wraps a real store and fails writes according to writeErr.
type failingStore struct {
	*store.Store
	mu       sync.Mutex
	writeErr func(id string) error
}

func (f *failingStore) Write(id string, rec store.Record) error {
	f.mu.Lock()
	hook := f.writeErr
	f.mu.Unlock()
	if hook != nil {
		if err := hook(id); err != nil {
			return err
		}
	}
	return f.Store.Write(id, rec)
}

func (f *failingStore) setWriteErr(hook func(id string) error) {
	f.mu.Lock()
	f.writeErr = hook
	f.mu.Unlock()
}

func newTestLedger(t *testing.T) (*Ledger, *memAudit, *failingStore) {
	t.Helper()
	st, err := store.New(t.TempDir())
	require.NoError(t, err)
	fs := &failingStore{Store: st}
	aud := &memAudit{}
	return New(fs, aud), aud, fs
}

func TestCreateAndDuplicate(t *testing.T) {
	l, aud, _ := newTestLedger(t)

	require.NoError(t, l.Create("X", 1000))
	err := l.Create("X", 500)
	require.ErrorIs(t, err, ErrAccountExists)

	balance, err := l.View("X")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), balance)

	assert.Len(t, aud.matching(audit.OpCreate, audit.OutcomeSuccess), 1)
	assert.Len(t, aud.matching(audit.OpCreate, audit.OutcomeFailed), 1)
}

func TestCreateRejectsNegativeBalance(t *testing.T) {
	l, _, _ := newTestLedger(t)
	require.ErrorIs(t, l.Create("X", -1), ErrInvalidAmount)
}

func TestDepositAndWithdraw(t *testing.T) {
	l, _, _ := newTestLedger(t)
	require.NoError(t, l.Create("A", 100))

	balance, err := l.Deposit("A", 50)
	require.NoError(t, err)
	assert.Equal(t, int64(150), balance)

	balance, err = l.Withdraw("A", 30)
	require.NoError(t, err)
	assert.Equal(t, int64(120), balance)

	_, err = l.Deposit("A", 0)
	require.ErrorIs(t, err, ErrInvalidAmount)
	_, err = l.Withdraw("A", -5)
	require.ErrorIs(t, err, ErrInvalidAmount)

	_, err = l.Deposit("nobody", 10)
	require.ErrorIs(t, err, ErrNoSuchAccount)
	_, err = l.Withdraw("nobody", 10)
	require.ErrorIs(t, err, ErrNoSuchAccount)
}

func TestWithdrawInsufficientFunds(t *testing.T) {
	l, aud, _ := newTestLedger(t)
	require.NoError(t, l.Create("A", 1000))

	_, err := l.Withdraw("A", 5000)
	require.ErrorIs(t, err, ErrInsufficientFunds)

	balance, err := l.View("A")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), balance)

	failed := aud.matching(audit.OpWithdraw, audit.OutcomeFailed)
	require.Len(t, failed, 1)
	assert.Equal(t, "A", failed[0].account)
}

func TestTransfer(t *testing.T) {
	l, aud, _ := newTestLedger(t)
	require.NoError(t, l.Create("A", 1000))
	require.NoError(t, l.Create("B", 1000))

	require.NoError(t, l.Transfer("A", "B", 300))

	a, err := l.View("A")
	require.NoError(t, err)
	b, err := l.View("B")
	require.NoError(t, err)
	assert.Equal(t, int64(700), a)
	assert.Equal(t, int64(1300), b)

	// One success entry per side, each naming the counterpart.
	success := aud.matching(audit.OpTransfer, audit.OutcomeSuccess)
	require.Len(t, success, 2)
	assert.Equal(t, "A", success[0].account)
	assert.Contains(t, success[0].details, "To: B")
	assert.Equal(t, "B", success[1].account)
	assert.Contains(t, success[1].details, "From: A")
}

func TestTransferSameAccount(t *testing.T) {
	l, aud, _ := newTestLedger(t)
	require.NoError(t, l.Create("A", 1000))

	require.ErrorIs(t, l.Transfer("A", "A", 100), ErrSameAccount)

	balance, err := l.View("A")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), balance)

	failed := aud.matching(audit.OpTransfer, audit.OutcomeFailed)
	require.Len(t, failed, 1)
	assert.Equal(t, "A", failed[0].account)
}

func TestTransferMissingAccount(t *testing.T) {
	l, _, _ := newTestLedger(t)
	require.NoError(t, l.Create("A", 1000))

	require.ErrorIs(t, l.Transfer("A", "ghost", 100), ErrNoSuchAccount)
	require.ErrorIs(t, l.Transfer("ghost", "A", 100), ErrNoSuchAccount)

	balance, err := l.View("A")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), balance)
}

func TestTransferInsufficientFunds(t *testing.T) {
	l, _, _ := newTestLedger(t)
	require.NoError(t, l.Create("A", 100))
	require.NoError(t, l.Create("B", 100))

	require.ErrorIs(t, l.Transfer("A", "B", 500), ErrInsufficientFunds)

	a, _ := l.View("A")
	b, _ := l.View("B")
	assert.Equal(t, int64(100), a)
	assert.Equal(t, int64(100), b)
}

func TestTransferRollsBackOnCreditFailure(t *testing.T) {
	l, aud, fs := newTestLedger(t)
	require.NoError(t, l.Create("A", 1000))
	require.NoError(t, l.Create("B", 1000))

	fs.setWriteErr(func(id string) error {
		if id == "B" {
			return fmt.Errorf("disk full")
		}
		return nil
	})

	err := l.Transfer("A", "B", 300)
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrUnrecovered)

	fs.setWriteErr(nil)
	a, _ := l.View("A")
	b, _ := l.View("B")
	assert.Equal(t, int64(1000), a, "debit must be compensated")
	assert.Equal(t, int64(1000), b)

	assert.Len(t, aud.matching(audit.OpTransfer, audit.OutcomeFailed), 2)
}

func TestTransferUnrecoveredWhenRollbackFails(t *testing.T) {
	l, aud, fs := newTestLedger(t)
	require.NoError(t, l.Create("A", 1000))
	require.NoError(t, l.Create("B", 1000))

	// First write to A (the debit) succeeds, the credit to B fails, and the
	// compensating write to A fails too.
	aWrites := 0
	fs.setWriteErr(func(id string) error {
		switch id {
		case "A":
			aWrites++
			if aWrites > 1 {
				return fmt.Errorf("disk gone")
			}
			return nil
		case "B":
			return fmt.Errorf("disk full")
		}
		return nil
	})

	err := l.Transfer("A", "B", 300)
	require.ErrorIs(t, err, ErrUnrecovered)
	assert.Len(t, aud.matching(audit.OpTransfer, audit.OutcomeFailed), 2)

	// The ledger is knowingly inconsistent: the debit stuck, the credit did
	// not.
	fs.setWriteErr(nil)
	a, _ := l.View("A")
	b, _ := l.View("B")
	assert.Equal(t, int64(700), a)
	assert.Equal(t, int64(1000), b)
}

func TestConcurrentDepositsAndWithdrawals(t *testing.T) {
	l, _, _ := newTestLedger(t)
	require.NoError(t, l.Create("A", 1000))

	const workers = 4
	const opsPerWorker = 25

	var wg sync.WaitGroup
	var mu sync.Mutex
	var deposited, withdrawn int64

	for i := 0; i < workers; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < opsPerWorker; j++ {
				if _, err := l.Deposit("A", 10); err == nil {
					mu.Lock()
					deposited += 10
					mu.Unlock()
				}
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < opsPerWorker; j++ {
				if _, err := l.Withdraw("A", 10); err == nil {
					mu.Lock()
					withdrawn += 10
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	balance, err := l.View("A")
	require.NoError(t, err)
	assert.Equal(t, 1000+deposited-withdrawn, balance)
	assert.GreaterOrEqual(t, balance, int64(0))
}

func TestOpposingTransfersDoNotDeadlock(t *testing.T) {
	l, _, _ := newTestLedger(t)
	require.NoError(t, l.Create("A", 10000))
	require.NoError(t, l.Create("B", 10000))

	const rounds = 100
	done := make(chan struct{}, 2)
	go func() {
		for i := 0; i < rounds; i++ {
			_ = l.Transfer("A", "B", 1)
		}
		done <- struct{}{}
	}()
	go func() {
		for i := 0; i < rounds; i++ {
			_ = l.Transfer("B", "A", 1)
		}
		done <- struct{}{}
	}()

	timeout := time.After(30 * time.Second)
	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-timeout:
			t.Fatal("opposing transfers deadlocked")
		}
	}

	a, _ := l.View("A")
	b, _ := l.View("B")
	assert.Equal(t, int64(20000), a+b, "transfers must conserve the total")
}

func TestSnapshotListing(t *testing.T) {
	l, _, _ := newTestLedger(t)
	require.NoError(t, l.Create("bob", 250))
	require.NoError(t, l.Create("alice", 750))

	var buf bytes.Buffer
	require.NoError(t, l.Snapshot(&buf))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "Central Log - Account Balances", lines[0])
	assert.Equal(t, "Account: alice, Balance: 750", lines[2])
	assert.Equal(t, "Account: bob, Balance: 250", lines[3])
}

func TestOpenCreatesDataDirAndAuditLog(t *testing.T) {
	dir := t.TempDir() + "/ledger"
	l, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, l.Create("A", 10))

	_, err = l.View("A")
	require.NoError(t, err)
}
