/*
errors.go - Centralized error kinds for the lending engine

PURPOSE:
  Every caller-visible failure of the borrow lifecycle maps to one of a
  small set of kinds. The web boundary decides user messaging from the
  kind; none of them is fatal to the process.

ERROR KINDS:
  ErrDuplicateLoan      Account already has an open loan on the book
  ErrLimitExceeded      Account reached the open-loan cap
  ErrOutOfStock         No copy available at approval time
  ErrInvalidTransition  Operation not allowed from the loan's state
  ErrNotOwner           Account acting on a loan it does not own
  ErrPolicyViolation    Request breaks a policy (due date beyond maximum, ...)
  ErrNotFound           Referenced book/account/loan does not exist

USAGE:
  Structured errors carry context and unwrap to the sentinel:

    if errors.Is(err, lending.ErrOutOfStock) { ... }

    var te *lending.TransitionError
    if errors.As(err, &te) { log te.From }

SEE ALSO:
  - service.go: Returns these errors
  - api/handlers.go: Maps Code(err) to HTTP status
*/
package lending

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrDuplicateLoan     = errors.New("duplicate open loan")
	ErrLimitExceeded     = errors.New("open loan limit reached")
	ErrOutOfStock        = errors.New("no copies available")
	ErrInvalidTransition = errors.New("invalid loan transition")
	ErrNotOwner          = errors.New("loan belongs to another account")
	ErrPolicyViolation   = errors.New("policy violation")
	ErrNotFound          = errors.New("not found")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// TransitionError reports an operation attempted from a state that does not allow it.
type TransitionError struct {
	LoanID LoanID
	Op     string
	From   LoanStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s loan %s in state %s", e.Op, e.LoanID, e.From)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// LimitError provides details about an exhausted per-account cap.
type LimitError struct {
	AccountID AccountID
	Open      int
	Limit     int
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("account %s has %d open loans (limit %d)", e.AccountID, e.Open, e.Limit)
}

func (e *LimitError) Unwrap() error { return ErrLimitExceeded }

// OutOfStockError identifies the book that had no copy left.
type OutOfStockError struct {
	BookID    BookID
	Available int
}

func (e *OutOfStockError) Error() string {
	return fmt.Sprintf("book %s has no copies available (available %d)", e.BookID, e.Available)
}

func (e *OutOfStockError) Unwrap() error { return ErrOutOfStock }

// PolicyError describes which policy a request broke.
type PolicyError struct {
	Rule    string
	Message string
}

func (e *PolicyError) Error() string {
	return fmt.Sprintf("%s: %s", e.Rule, e.Message)
}

func (e *PolicyError) Unwrap() error { return ErrPolicyViolation }

// NotFoundError names the missing record.
type NotFoundError struct {
	Kind string // "book", "account", "loan"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// Code returns the stable error-kind code for err, or "internal".
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrDuplicateLoan):
		return "duplicate_loan"
	case errors.Is(err, ErrLimitExceeded):
		return "limit_exceeded"
	case errors.Is(err, ErrOutOfStock):
		return "out_of_stock"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrNotOwner):
		return "not_owner"
	case errors.Is(err, ErrPolicyViolation):
		return "policy_violation"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "internal"
	}
}

// IsClientError returns true if the error is a recoverable business-rule failure.
func IsClientError(err error) bool {
	c := Code(err)
	return c != "" && c != "internal"
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
