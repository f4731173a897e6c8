/*
store.go - Persistence interface for books, accounts and loans

PURPOSE:
  Defines the interface between the lending engine and the database.
  The engine never talks SQL; it asks the Store for records and asks it
  to apply guarded inventory changes.

KEY INTERFACES:
  Store:     Records, guarded inventory updates, version counter
  TxStore:   Store + WithTx for all-or-nothing transitions
  RuleStore: BorrowRule table persistence

ATOMIC TRANSITIONS:
  Every state-machine operation runs inside WithTx. The loan row, the
  book's available count and the version bump commit together or not at
  all. Callers never observe a half-applied transition.

GUARDED INVENTORY:
  TakeCopy must check and decrement in one step (a conditional UPDATE or
  an equivalent under the store's lock). Two concurrent approvals for the
  last copy: one gets nil, the other gets ErrOutOfStock.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite
  - lending/store/memory.go: In-memory for testing and tooling

SEE ALSO:
  - service.go: Uses TxStore
  - version.go: VersionCounter built on the store counter
*/
package lending

import "context"

// =============================================================================
// STORE
// =============================================================================

// Store handles persistence of the lending records.
// Lookups of a missing record return a *NotFoundError.
type Store interface {
	GetBook(ctx context.Context, id BookID) (*Book, error)
	SaveBook(ctx context.Context, b Book) error
	ListBooks(ctx context.Context) ([]Book, error)
	// DeleteBook removes the book and cascades to its loans.
	DeleteBook(ctx context.Context, id BookID) error

	GetAccount(ctx context.Context, id AccountID) (*Account, error)
	SaveAccount(ctx context.Context, a Account) error
	ListAccounts(ctx context.Context) ([]Account, error)
	// DeleteAccount removes the account and cascades to its loans.
	DeleteAccount(ctx context.Context, id AccountID) error

	GetLoan(ctx context.Context, id LoanID) (*Loan, error)
	FindLoans(ctx context.Context, filter LoanFilter) ([]Loan, error)
	CountLoans(ctx context.Context, filter LoanFilter) (int, error)
	// InsertLoan returns ErrDuplicateLoan if the (account, book) pair already
	// has an open loan.
	InsertLoan(ctx context.Context, l Loan) error
	UpdateLoan(ctx context.Context, l Loan) error
	DeleteLoan(ctx context.Context, id LoanID) error
	// CountLoansByBook ranks books by number of loans, most borrowed first.
	CountLoansByBook(ctx context.Context, limit int) ([]BookCount, error)

	// TakeCopy decrements available by one. ErrOutOfStock if none left.
	TakeCopy(ctx context.Context, id BookID) error
	// ReturnCopy increments available by one, never above quantity.
	ReturnCopy(ctx context.Context, id BookID) error
	// SetAvailable overwrites the cached available count (reconciliation only).
	SetAvailable(ctx context.Context, id BookID, available int) error

	CurrentVersion(ctx context.Context) (int64, error)
	BumpVersion(ctx context.Context) (int64, error)
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// RuleStore persists the borrow-duration policy table.
type RuleStore interface {
	LoadBorrowRules(ctx context.Context) (RuleTable, error)
	SaveBorrowRules(ctx context.Context, table RuleTable) error
}

// BookCount is one row of the popularity ranking.
type BookCount struct {
	BookID BookID
	Loans  int
}
