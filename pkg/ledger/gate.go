package ledger

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/fin-labs/ledgerd/pkg/audit"
	"github.com/fin-labs/ledgerd/pkg/store"
)

const saltLen = 16

// Gate wraps a Ledger with a per-account password check performed before
// each protected operation. Credentials are generated once at create time:
// a random 16-byte salt and hex(SHA-256(salt || password)). The gate is a
// precondition layer only; the locking and rollback protocol of the
// underlying engine is unchanged.
type Gate struct {
	ledger *Ledger
}

// NewGate returns a credential gate over l.
func NewGate(l *Ledger) *Gate {
	return &Gate{ledger: l}
}

func hashPassword(salt []byte, password string) string {
	sum := sha256.Sum256(append(append([]byte{}, salt...), []byte(password)...))
	return hex.EncodeToString(sum[:])
}

// Create makes a new account protected by password. The salt and hash are
// persisted in the account record alongside the initial balance.
func (g *Gate) Create(id string, initialBalance int64, password string) error {
	if initialBalance < 0 {
		return fmt.Errorf("%w: initial balance %d", ErrInvalidAmount, initialBalance)
	}
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("generate salt: %w", err)
	}
	rec := store.Record{
		Balance:      initialBalance,
		Salt:         base64.StdEncoding.EncodeToString(salt),
		PasswordHash: hashPassword(salt, password),
	}
	details := fmt.Sprintf("Initial balance: %d", initialBalance)
	l := g.ledger

	lock := l.locks.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	if l.store.Exists(id) {
		l.audit.Append(audit.OpCreate, id, details, audit.OutcomeFailed)
		return fmt.Errorf("%w: %s", ErrAccountExists, id)
	}
	if err := l.store.Write(id, rec); err != nil {
		l.audit.Append(audit.OpCreate, id, details, audit.OutcomeFailed)
		return err
	}
	l.audit.Append(audit.OpCreate, id, details, audit.OutcomeSuccess)
	return nil
}

// Authenticate verifies password against the account's stored credentials.
// A missing account, missing credentials, or hash mismatch all yield
// ErrAuthenticationFailed.
func (g *Gate) Authenticate(id, password string) error {
	rec, err := g.ledger.readExisting(id)
	if err != nil {
		if errors.Is(err, ErrNoSuchAccount) {
			g.ledger.audit.Append(audit.OpAuthenticate, id, "Unknown account", audit.OutcomeFailed)
			return fmt.Errorf("%w: %s", ErrAuthenticationFailed, id)
		}
		return err
	}
	salt, err := base64.StdEncoding.DecodeString(rec.Salt)
	if err != nil || rec.PasswordHash == "" {
		g.ledger.audit.Append(audit.OpAuthenticate, id, "No stored credentials", audit.OutcomeFailed)
		return fmt.Errorf("%w: %s", ErrAuthenticationFailed, id)
	}
	attempt := hashPassword(salt, password)
	if subtle.ConstantTimeCompare([]byte(attempt), []byte(rec.PasswordHash)) != 1 {
		g.ledger.audit.Append(audit.OpAuthenticate, id, "Incorrect password", audit.OutcomeFailed)
		return fmt.Errorf("%w: %s", ErrAuthenticationFailed, id)
	}
	return nil
}

// Deposit runs the underlying deposit after authenticating id.
func (g *Gate) Deposit(id string, amount int64, password string) (int64, error) {
	if err := g.Authenticate(id, password); err != nil {
		return 0, err
	}
	return g.ledger.Deposit(id, amount)
}

// Withdraw runs the underlying withdrawal after authenticating id.
func (g *Gate) Withdraw(id string, amount int64, password string) (int64, error) {
	if err := g.Authenticate(id, password); err != nil {
		return 0, err
	}
	return g.ledger.Withdraw(id, amount)
}

// Transfer runs the underlying transfer after authenticating the source
// account. Only the debited side's password is checked, matching the
// ownership model: you prove you own the money you are moving.
func (g *Gate) Transfer(from, to string, amount int64, password string) error {
	if err := g.Authenticate(from, password); err != nil {
		return err
	}
	return g.ledger.Transfer(from, to, amount)
}

// View returns the balance after authenticating id. The balance is re-read
// without the account lock after the credential check, so it may reflect a
// mutation that landed in between; this weak read is intentional.
func (g *Gate) View(id, password string) (int64, error) {
	if err := g.Authenticate(id, password); err != nil {
		return 0, err
	}
	return g.ledger.View(id)
}
