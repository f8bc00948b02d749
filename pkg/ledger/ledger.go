// Package ledger implements a persistent account ledger: per-account
// concurrency control, crash-safe balance persistence, ordered two-account
// transfers with rollback on partial failure, and an append-only audit
// trail.
package ledger

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog"

	"github.com/fin-labs/ledgerd/pkg/audit"
	"github.com/fin-labs/ledgerd/pkg/store"
)

// AuditLogName is the audit trail file created inside the data directory.
const AuditLogName = "transactions.log"

// SnapshotName is the balance listing file regenerated inside the data
// directory.
const SnapshotName = "central_log.txt"

// RecordStore is the persistence surface the engine drives. *store.Store
// satisfies it; tests substitute failing implementations to exercise the
// rollback paths.
type RecordStore interface {
	Read(id string) (store.Record, error)
	Write(id string, rec store.Record) error
	Exists(id string) bool
	List() ([]string, error)
}

// Auditor records one line per operation outcome. *audit.Log satisfies it.
type Auditor interface {
	Append(op, accountID, details, outcome string)
}

// Ledger orchestrates all account operations. Each operation acquires the
// account lock(s) it needs, performs the state transition against the
// record store, then emits audit entries. The audit mutex is never held
// while an account lock is being acquired, so audit writes cannot
// participate in deadlock ordering.
type Ledger struct {
	store RecordStore
	audit Auditor
	locks *lockRegistry
	log   zerolog.Logger
}

// Option configures optional behavior of a Ledger.
type Option func(*Ledger)

// WithLogger sets a structured logger. If not provided, logging is disabled.
func WithLogger(logger zerolog.Logger) Option {
	return func(l *Ledger) { l.log = logger }
}

// New creates a Ledger over an existing record store and audit sink.
func New(st RecordStore, aud Auditor, opts ...Option) *Ledger {
	l := &Ledger{
		store: st,
		audit: aud,
		locks: newLockRegistry(),
		log:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Open creates a Ledger rooted at dataDir, creating the directory, the
// record store, and the audit log inside it.
func Open(dataDir string, opts ...Option) (*Ledger, error) {
	st, err := store.New(dataDir)
	if err != nil {
		return nil, err
	}
	l := New(st, nil, opts...)
	l.audit = audit.New(filepath.Join(dataDir, AuditLogName), l.log)
	return l, nil
}

// Create makes a new account with the given initial balance. It fails with
// ErrAccountExists if a record is already present, and ErrInvalidAmount if
// the initial balance is negative. The existence probe is unlocked, but the
// write happens under the account lock to close the duplicate-create race.
func (l *Ledger) Create(id string, initialBalance int64) error {
	if id == "" {
		return fmt.Errorf("account id is required")
	}
	if initialBalance < 0 {
		return fmt.Errorf("%w: initial balance %d", ErrInvalidAmount, initialBalance)
	}
	details := fmt.Sprintf("Initial balance: %d", initialBalance)
	if l.store.Exists(id) {
		l.audit.Append(audit.OpCreate, id, details, audit.OutcomeFailed)
		return fmt.Errorf("%w: %s", ErrAccountExists, id)
	}

	lock := l.locks.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	if l.store.Exists(id) {
		l.audit.Append(audit.OpCreate, id, details, audit.OutcomeFailed)
		return fmt.Errorf("%w: %s", ErrAccountExists, id)
	}
	if err := l.store.Write(id, store.Record{Balance: initialBalance}); err != nil {
		l.audit.Append(audit.OpCreate, id, details, audit.OutcomeFailed)
		l.log.Warn().Err(err).Str("account", id).Msg("create failed")
		return err
	}
	l.audit.Append(audit.OpCreate, id, details, audit.OutcomeSuccess)
	l.log.Debug().Str("account", id).Int64("balance", initialBalance).Msg("account created")
	return nil
}

// Deposit adds amount to the account's balance and returns the new balance.
func (l *Ledger) Deposit(id string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidAmount, amount)
	}
	details := fmt.Sprintf("Amount: %d", amount)

	lock := l.locks.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	rec, err := l.readExisting(id)
	if err != nil {
		l.audit.Append(audit.OpDeposit, id, details, audit.OutcomeFailed)
		return 0, err
	}
	rec.Balance += amount
	if err := l.store.Write(id, rec); err != nil {
		l.audit.Append(audit.OpDeposit, id, details, audit.OutcomeFailed)
		l.log.Warn().Err(err).Str("account", id).Msg("deposit failed")
		return 0, err
	}
	l.audit.Append(audit.OpDeposit, id, details, audit.OutcomeSuccess)
	l.log.Debug().Str("account", id).Int64("amount", amount).Int64("balance", rec.Balance).Msg("deposit")
	return rec.Balance, nil
}

// Withdraw subtracts amount from the account's balance and returns the new
// balance. It fails with ErrInsufficientFunds before any write if the
// balance would go negative.
func (l *Ledger) Withdraw(id string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidAmount, amount)
	}
	details := fmt.Sprintf("Amount: %d", amount)

	lock := l.locks.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	rec, err := l.readExisting(id)
	if err != nil {
		l.audit.Append(audit.OpWithdraw, id, details, audit.OutcomeFailed)
		return 0, err
	}
	if rec.Balance < amount {
		l.audit.Append(audit.OpWithdraw, id, details, audit.OutcomeFailed)
		return 0, fmt.Errorf("%w: balance %d, requested %d", ErrInsufficientFunds, rec.Balance, amount)
	}
	rec.Balance -= amount
	if err := l.store.Write(id, rec); err != nil {
		l.audit.Append(audit.OpWithdraw, id, details, audit.OutcomeFailed)
		l.log.Warn().Err(err).Str("account", id).Msg("withdraw failed")
		return 0, err
	}
	l.audit.Append(audit.OpWithdraw, id, details, audit.OutcomeSuccess)
	l.log.Debug().Str("account", id).Int64("amount", amount).Int64("balance", rec.Balance).Msg("withdraw")
	return rec.Balance, nil
}

// Transfer moves amount from one account to another. The two account locks
// are always acquired in lexicographic id order so that opposing concurrent
// transfers over the same pair cannot deadlock. The debit is persisted
// first, then the credit; if either write fails, the engine restores the
// other side to its pre-transfer value best-effort. If that compensating
// write also fails the error is ErrUnrecovered, since balances can no
// longer be trusted.
func (l *Ledger) Transfer(from, to string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidAmount, amount)
	}
	if from == to {
		l.audit.Append(audit.OpTransfer, from,
			fmt.Sprintf("Attempted to transfer to self: %d", amount), audit.OutcomeFailed)
		return fmt.Errorf("%w: %s", ErrSameAccount, from)
	}

	fromDetails := fmt.Sprintf("To: %s, Amount: %d", to, amount)
	toDetails := fmt.Sprintf("From: %s, Amount: %d", from, amount)

	// Fixed total order over the lock set, derived from the ids themselves.
	first, second := from, to
	if second < first {
		first, second = second, first
	}
	firstLock := l.locks.lockFor(first)
	secondLock := l.locks.lockFor(second)
	firstLock.Lock()
	defer firstLock.Unlock()
	secondLock.Lock()
	defer secondLock.Unlock()

	fromRec, err := l.readExisting(from)
	if err != nil {
		l.audit.Append(audit.OpTransfer, from, fromDetails, audit.OutcomeFailed)
		return err
	}
	toRec, err := l.readExisting(to)
	if err != nil {
		l.audit.Append(audit.OpTransfer, from, fromDetails, audit.OutcomeFailed)
		return err
	}
	if fromRec.Balance < amount {
		l.audit.Append(audit.OpTransfer, from, fromDetails, audit.OutcomeFailed)
		return fmt.Errorf("%w: balance %d, requested %d", ErrInsufficientFunds, fromRec.Balance, amount)
	}

	prevFrom := fromRec.Balance
	fromRec.Balance -= amount
	toRec.Balance += amount

	if err := l.store.Write(from, fromRec); err != nil {
		l.audit.Append(audit.OpTransfer, from, fromDetails, audit.OutcomeFailed)
		l.audit.Append(audit.OpTransfer, to, toDetails, audit.OutcomeFailed)
		l.log.Warn().Err(err).Str("from", from).Str("to", to).Msg("transfer debit failed")
		return err
	}
	if err := l.store.Write(to, toRec); err != nil {
		// Compensating write: put the debited side back.
		fromRec.Balance = prevFrom
		if rbErr := l.store.Write(from, fromRec); rbErr != nil {
			l.audit.Append(audit.OpTransfer, from, fromDetails, audit.OutcomeFailed)
			l.audit.Append(audit.OpTransfer, to, toDetails, audit.OutcomeFailed)
			l.log.Error().Err(rbErr).Str("from", from).Str("to", to).
				Msg("transfer rollback failed, balances inconsistent")
			return fmt.Errorf("%w: credit %s failed (%v), rollback of %s failed: %v",
				ErrUnrecovered, to, err, from, rbErr)
		}
		l.audit.Append(audit.OpTransfer, from, fromDetails, audit.OutcomeFailed)
		l.audit.Append(audit.OpTransfer, to, toDetails, audit.OutcomeFailed)
		l.log.Warn().Err(err).Str("from", from).Str("to", to).Msg("transfer credit failed, rolled back")
		return err
	}
	l.audit.Append(audit.OpTransfer, from, fromDetails, audit.OutcomeSuccess)
	l.audit.Append(audit.OpTransfer, to, toDetails, audit.OutcomeSuccess)
	l.log.Debug().Str("from", from).Str("to", to).Int64("amount", amount).Msg("transfer")
	return nil
}

// View returns the account's current balance without taking its lock. A
// concurrent mutation may land between the read and the caller seeing the
// result; the value is always a complete record, never a torn one.
func (l *Ledger) View(id string) (int64, error) {
	rec, err := l.readExisting(id)
	if err != nil {
		return 0, err
	}
	l.audit.Append(audit.OpViewBalance, id, fmt.Sprintf("Balance: %d", rec.Balance), audit.OutcomeSuccess)
	return rec.Balance, nil
}

// readExisting reads id's record, folding store-level not-found and corrupt
// results into ErrNoSuchAccount.
func (l *Ledger) readExisting(id string) (store.Record, error) {
	rec, err := l.store.Read(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrCorrupt) {
			return store.Record{}, fmt.Errorf("%w: %s", ErrNoSuchAccount, id)
		}
		return store.Record{}, err
	}
	return rec, nil
}

// Balances returns a point-in-time listing of every account's balance,
// sorted by id. Each record is read individually without its account lock,
// so mutations concurrent with the enumeration are reflected per account as
// of the moment that account is read.
func (l *Ledger) Balances() ([]Balance, error) {
	ids, err := l.store.List()
	if err != nil {
		return nil, err
	}
	out := make([]Balance, 0, len(ids))
	for _, id := range ids {
		rec, err := l.store.Read(id)
		if err != nil {
			// Skip records that vanished or turned unreadable mid-scan.
			continue
		}
		out = append(out, Balance{Account: id, Balance: rec.Balance})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Account < out[j].Account })
	return out, nil
}

// Balance is one line of a snapshot listing.
type Balance struct {
	Account string
	Balance int64
}
