/*
Package lending provides the borrow lifecycle engine for the library.

PURPOSE:
  This package owns the rules that move a physical copy of a book between
  the shelf and a borrower: the loan state machine, the inventory invariant,
  fine calculation, loan-duration policy and the change-version counter
  that polling clients watch.

KEY CONCEPTS IN THIS FILE (types.go):
  - Book:    Catalog entry with total quantity and cached available count
  - Account: Borrower with a user class that selects loan-duration rules
  - Loan:    One account holding (or asking for) one copy of one book
  - LoanStatus / Damage / UserClass: Closed vocabularies

LOAN LIFECYCLE:

    requested ──approve──▶ active ──request return──▶ pending-return
        │                    │  ▲                          │
     cancel/reject           │  └──────withdraw────────────┤
        ▼                    │                             │
     (deleted)               └──────confirm return──▶ closed ◀┘

INVARIANTS:
  1. 0 ≤ book.Available ≤ book.Quantity
  2. book.Available == book.Quantity − loans on book in {active, pending-return}
  3. At most one open loan (requested/active/pending-return) per (account, book)
  4. DueDate is set exactly when a loan enters active
  5. Loan.Fine is persisted only when the loan is closed

SEE ALSO:
  - service.go:   LoanService (state machine)
  - fine.go:      FineCalculator
  - rules.go:     RuleResolver
  - inventory.go: Reconciliation
*/
package lending

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type BookID string
type AccountID string
type LoanID string

// =============================================================================
// BOOK
// =============================================================================

type Book struct {
	ID          BookID
	Title       string
	Author      string
	Categories  []string
	Publisher   string
	PublishYear int
	Price       decimal.Decimal
	Quantity    int
	Available   int
	Description string
	CreatedAt   time.Time
}

// =============================================================================
// ACCOUNT
// =============================================================================

type AccountStatus string

const (
	AccountActive   AccountStatus = "active"
	AccountInactive AccountStatus = "inactive"
)

// UserClass selects which borrow rules apply to an account.
type UserClass string

const (
	ClassStudent       UserClass = "student"
	ClassStaff         UserClass = "staff"
	ClassLecturer      UserClass = "lecturer"
	ClassAdministrator UserClass = "administrator"
)

type Account struct {
	ID           AccountID
	Name         string
	Email        string
	Username     string
	PasswordHash string // opaque; credential checks live outside the engine
	Phone        string
	Status       AccountStatus
	Class        UserClass
	CreatedAt    time.Time
}

// =============================================================================
// LOAN
// =============================================================================

type LoanStatus string

const (
	StatusRequested     LoanStatus = "requested"
	StatusActive        LoanStatus = "active"
	StatusPendingReturn LoanStatus = "pending-return"
	StatusClosed        LoanStatus = "closed"
)

// OpenStatuses returns the states that block a second loan on the same book.
// Each call returns a new slice.
func OpenStatuses() []LoanStatus {
	return []LoanStatus{StatusRequested, StatusActive, StatusPendingReturn}
}

// HoldingStatuses returns the states in which the copy is off the shelf.
func HoldingStatuses() []LoanStatus {
	return []LoanStatus{StatusActive, StatusPendingReturn}
}

// HistoryStatuses returns the states that count as "borrowed" for mining.
func HistoryStatuses() []LoanStatus {
	return []LoanStatus{StatusActive, StatusPendingReturn, StatusClosed}
}

func (s LoanStatus) IsOpen() bool { return s != StatusClosed && s.Valid() }

// HoldsCopy reports whether a loan in this state consumes an available copy.
func (s LoanStatus) HoldsCopy() bool { return s == StatusActive || s == StatusPendingReturn }

func (s LoanStatus) Valid() bool {
	switch s {
	case StatusRequested, StatusActive, StatusPendingReturn, StatusClosed:
		return true
	}
	return false
}

// ParseLegacyStatus maps the older status vocabularies onto the canonical
// four states. Unknown values return false.
func ParseLegacyStatus(s string) (LoanStatus, bool) {
	switch s {
	case "requested", "reserved", "pending":
		return StatusRequested, true
	case "active", "borrowed":
		return StatusActive, true
	case "pending-return", "await_return":
		return StatusPendingReturn, true
	case "closed", "returned":
		return StatusClosed, true
	}
	return "", false
}

// Damage is the condition assessment recorded when a copy comes back.
type Damage string

const (
	DamageNone  Damage = "none"
	DamageLight Damage = "light"
	DamageHeavy Damage = "heavy"
	DamageLost  Damage = "lost"
)

func (d Damage) Valid() bool {
	switch d {
	case DamageNone, DamageLight, DamageHeavy, DamageLost:
		return true
	}
	return false
}

type Loan struct {
	ID         LoanID
	AccountID  AccountID
	BookID     BookID
	Status     LoanStatus
	BorrowDate Date
	DueDate    *Date
	ReturnDate *Date
	Damage     Damage
	Fine       decimal.Decimal
	Notified   bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// DaysUntilDue is negative once the loan is overdue. Returns false when the
// loan is not out or has no due date.
func (l *Loan) DaysUntilDue(today Date) (int, bool) {
	if l.DueDate == nil || !l.Status.HoldsCopy() {
		return 0, false
	}
	return today.DaysUntil(*l.DueDate), true
}

// LoanFilter selects loans for listing. Empty fields match everything.
type LoanFilter struct {
	AccountID AccountID
	BookID    BookID
	Statuses  []LoanStatus
	DueOn     *Date
}

// LoanView is a loan with advisory values computed at read time.
type LoanView struct {
	Loan
	CurrentDebt  decimal.Decimal
	DaysUntilDue *int
}

// =============================================================================
// ASSOCIATION RULE - Derived recommendation cache
// =============================================================================

type AssociationRule struct {
	Antecedent  BookID
	Consequent  BookID
	Support     float64
	Confidence  float64
	Lift        float64
	GeneratedAt time.Time
}
