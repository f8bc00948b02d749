package ledger

import "errors"

// Typed failures returned by ledger operations. Callers match them with
// errors.Is; anything else is an I/O failure wrapping the underlying error.
var (
	// ErrAccountExists means create was called for an id that already has a
	// record.
	ErrAccountExists = errors.New("account already exists")

	// ErrNoSuchAccount means the account has no readable record. A corrupt
	// record is reported the same way; only create may proceed against it.
	ErrNoSuchAccount = errors.New("no such account")

	// ErrInsufficientFunds means a withdrawal or transfer would drive the
	// balance negative. The record is left untouched.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrSameAccount means a transfer named the same account on both sides.
	ErrSameAccount = errors.New("cannot transfer to the same account")

	// ErrInvalidAmount means a non-positive amount (or negative initial
	// balance) was supplied.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrAuthenticationFailed means the credential gate rejected the
	// password, or the account has no stored credentials.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrUnrecovered means a transfer's compensating write failed after a
	// partial persist. Balances can no longer be trusted without manual
	// reconciliation, so this is distinct from an ordinary I/O failure.
	ErrUnrecovered = errors.New("transfer partially applied and rollback failed")
)
