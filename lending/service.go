/*
service.go - Borrow state machine

PURPOSE:
  LoanService owns the lifecycle of a loan. Every user or librarian action
  on a loan goes through one of its operations, which validate the
  transition, apply inventory changes, bump the change version and emit
  notices.

TRANSITIONS:
  ┌──────────────────────────────────────────────────────────────────────┐
  │ Operation              From                   To                     │
  │ RequestLoan            (new)                  requested              │
  │ CheckoutDirect         (new)                  active      copy −1    │
  │ ApproveLoan            requested              active      copy −1    │
  │ RejectRequest          requested              (deleted)              │
  │ CancelRequested        requested              (deleted)   owner only │
  │ RequestReturn          active                 pending-return owner   │
  │ WithdrawReturnRequest  pending-return         active      owner only │
  │ ConfirmReturn          active|pending-return  closed      copy +1    │
  │ DeleteClosed           closed                 (deleted)   owner only │
  │ ForceDeleteLoan        any                    (deleted)   reconcile  │
  └──────────────────────────────────────────────────────────────────────┘

ATOMICITY:
  Each operation runs inside one store transaction. Loan row, available
  count and version bump commit together or roll back together. The
  availability check in ApproveLoan is TakeCopy's guarded decrement, so it
  happens in the same step as the decrement.

SIDE EFFECTS:
  Operations do not hide side effects in save hooks. After a successful
  commit the service:
    1. bumps the shared VersionCounter when one is configured
    2. hands Notices (approved, returned) to the NoticeDispatcher
  Dispatch failures are logged and swallowed.

EXAMPLE:
  svc := lending.NewLoanService(store, resolver, lending.NewFineCalculator(rate), lending.DefaultPolicy())

  loan, err := svc.RequestLoan(ctx, "acc-1", "book-1")
  loan, err = svc.ApproveLoan(ctx, loan.ID)
  loan, err = svc.RequestReturn(ctx, loan.ID, "acc-1")
  loan, err = svc.ConfirmReturn(ctx, loan.ID, lending.DamageNone)

SEE ALSO:
  - store.go: TxStore
  - fine.go: FineCalculator
  - rules.go: RuleResolver
  - inventory.go: Reconciliation after out-of-band deletes
*/
package lending

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/warp/lending-engine/metrics"
)

// =============================================================================
// POLICY
// =============================================================================

// Policy holds the per-account and per-book limits.
type Policy struct {
	// MaxOpenLoans caps requested+active loans per account.
	MaxOpenLoans int

	// CountPendingReturns also counts pending-return loans toward the cap.
	CountPendingReturns bool

	// CapReservations rejects a request when the book's requested loans
	// already reach its available count.
	CapReservations bool
}

func DefaultPolicy() Policy {
	return Policy{
		MaxOpenLoans:        5,
		CountPendingReturns: true,
	}
}

// =============================================================================
// LOAN SERVICE
// =============================================================================

type LoanService struct {
	Store  TxStore
	Rules  *RuleResolver
	Fines  FineCalculator
	Policy Policy

	// Versions, when set, is bumped after every commit in addition to the
	// store's own counter and is what Version reports.
	Versions VersionCounter

	// Notices receives approved/returned notices after commit.
	Notices NoticeDispatcher

	Clock Clock
	Log   zerolog.Logger
}

func NewLoanService(store TxStore, rules *RuleResolver, fines FineCalculator, policy Policy) *LoanService {
	return &LoanService{
		Store:  store,
		Rules:  rules,
		Fines:  fines,
		Policy: policy,
		Log:    zerolog.Nop(),
	}
}

// ApproveOption adjusts an approval.
type ApproveOption func(*approveOptions)

type approveOptions struct {
	dueDate *Date
}

// WithDueDate sets the due date manually. It must not exceed the
// resolver's maximum for the account and book.
func WithDueDate(d Date) ApproveOption {
	return func(o *approveOptions) { o.dueDate = &d }
}

// RequestLoan creates a requested loan. No inventory is consumed.
func (s *LoanService) RequestLoan(ctx context.Context, accountID AccountID, bookID BookID) (*Loan, error) {
	var loan Loan
	err := s.transition(ctx, "request", func(tx Store) ([]Notice, error) {
		acct, book, err := loadParties(ctx, tx, accountID, bookID)
		if err != nil {
			return nil, err
		}
		if err := s.checkCanOpen(ctx, tx, acct, book); err != nil {
			return nil, err
		}
		if s.Policy.CapReservations {
			reserved, err := tx.CountLoans(ctx, LoanFilter{BookID: book.ID, Statuses: []LoanStatus{StatusRequested}})
			if err != nil {
				return nil, err
			}
			if reserved >= book.Available {
				return nil, &OutOfStockError{BookID: book.ID, Available: book.Available}
			}
		}

		loan = s.newLoan(acct.ID, book.ID)
		if err := tx.InsertLoan(ctx, loan); err != nil {
			return nil, err
		}
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	s.Log.Info().Str("loan_id", string(loan.ID)).Str("account_id", string(accountID)).
		Str("book_id", string(bookID)).Msg("loan requested")
	return &loan, nil
}

// CheckoutDirect is the librarian walk-up path: the loan is created
// directly in active, with the same checks as RequestLoan plus ApproveLoan.
func (s *LoanService) CheckoutDirect(ctx context.Context, accountID AccountID, bookID BookID, opts ...ApproveOption) (*Loan, error) {
	o := applyApproveOptions(opts)
	var loan Loan
	err := s.transition(ctx, "checkout", func(tx Store) ([]Notice, error) {
		acct, book, err := loadParties(ctx, tx, accountID, bookID)
		if err != nil {
			return nil, err
		}
		if err := s.checkCanOpen(ctx, tx, acct, book); err != nil {
			return nil, err
		}
		loan = s.newLoan(acct.ID, book.ID)
		if err := s.activate(ctx, tx, &loan, acct, book, o.dueDate); err != nil {
			return nil, err
		}
		if err := tx.InsertLoan(ctx, loan); err != nil {
			return nil, err
		}
		return []Notice{newNotice(NoticeApproved, &loan, acct, book, s.Clock.Now())}, nil
	})
	if err != nil {
		return nil, err
	}
	s.Log.Info().Str("loan_id", string(loan.ID)).Str("due", loan.DueDate.String()).Msg("walk-up checkout")
	return &loan, nil
}

// ApproveLoan moves a requested loan to active, taking one copy off the shelf.
func (s *LoanService) ApproveLoan(ctx context.Context, id LoanID, opts ...ApproveOption) (*Loan, error) {
	o := applyApproveOptions(opts)
	var loan *Loan
	err := s.transition(ctx, "approve", func(tx Store) ([]Notice, error) {
		l, err := tx.GetLoan(ctx, id)
		if err != nil {
			return nil, err
		}
		if l.Status != StatusRequested {
			return nil, &TransitionError{LoanID: id, Op: "approve", From: l.Status}
		}
		acct, book, err := loadParties(ctx, tx, l.AccountID, l.BookID)
		if err != nil {
			return nil, err
		}
		if err := s.activate(ctx, tx, l, acct, book, o.dueDate); err != nil {
			return nil, err
		}
		if err := tx.UpdateLoan(ctx, *l); err != nil {
			return nil, err
		}
		loan = l
		return []Notice{newNotice(NoticeApproved, l, acct, book, s.Clock.Now())}, nil
	})
	if err != nil {
		return nil, err
	}
	s.Log.Info().Str("loan_id", string(id)).Str("due", loan.DueDate.String()).Msg("loan approved")
	return loan, nil
}

// RejectRequest deletes a requested loan on the librarian's behalf.
func (s *LoanService) RejectRequest(ctx context.Context, id LoanID) error {
	return s.transition(ctx, "reject", func(tx Store) ([]Notice, error) {
		l, err := tx.GetLoan(ctx, id)
		if err != nil {
			return nil, err
		}
		if l.Status != StatusRequested {
			return nil, &TransitionError{LoanID: id, Op: "reject", From: l.Status}
		}
		return nil, tx.DeleteLoan(ctx, id)
	})
}

// CancelRequested lets the owner withdraw a request before approval.
func (s *LoanService) CancelRequested(ctx context.Context, id LoanID, actor AccountID) error {
	return s.transition(ctx, "cancel", func(tx Store) ([]Notice, error) {
		l, err := ownedLoan(ctx, tx, id, actor)
		if err != nil {
			return nil, err
		}
		if l.Status != StatusRequested {
			return nil, &TransitionError{LoanID: id, Op: "cancel", From: l.Status}
		}
		return nil, tx.DeleteLoan(ctx, id)
	})
}

// RequestReturn marks an active loan as handed back, pending confirmation.
// The copy stays counted as out until ConfirmReturn.
func (s *LoanService) RequestReturn(ctx context.Context, id LoanID, actor AccountID) (*Loan, error) {
	var loan *Loan
	err := s.transition(ctx, "request_return", func(tx Store) ([]Notice, error) {
		l, err := ownedLoan(ctx, tx, id, actor)
		if err != nil {
			return nil, err
		}
		if l.Status != StatusActive {
			return nil, &TransitionError{LoanID: id, Op: "request return for", From: l.Status}
		}
		l.Status = StatusPendingReturn
		l.ReturnDate = s.Clock.Today().Ptr()
		l.UpdatedAt = s.Clock.Now()
		loan = l
		return nil, tx.UpdateLoan(ctx, *l)
	})
	if err != nil {
		return nil, err
	}
	return loan, nil
}

// WithdrawReturnRequest puts a pending-return loan back to active.
func (s *LoanService) WithdrawReturnRequest(ctx context.Context, id LoanID, actor AccountID) (*Loan, error) {
	var loan *Loan
	err := s.transition(ctx, "withdraw_return", func(tx Store) ([]Notice, error) {
		l, err := ownedLoan(ctx, tx, id, actor)
		if err != nil {
			return nil, err
		}
		if l.Status != StatusPendingReturn {
			return nil, &TransitionError{LoanID: id, Op: "withdraw return for", From: l.Status}
		}
		l.Status = StatusActive
		l.ReturnDate = nil
		l.UpdatedAt = s.Clock.Now()
		loan = l
		return nil, tx.UpdateLoan(ctx, *l)
	})
	if err != nil {
		return nil, err
	}
	return loan, nil
}

// ConfirmReturn closes the loan, records damage, persists the fine and puts
// the copy back on the shelf. Allowed from pending-return, or directly from
// active for the librarian fast path.
func (s *LoanService) ConfirmReturn(ctx context.Context, id LoanID, damage Damage) (*Loan, error) {
	if damage == "" {
		damage = DamageNone
	}
	if !damage.Valid() {
		return nil, &PolicyError{Rule: "damage", Message: fmt.Sprintf("unknown damage assessment %q", damage)}
	}

	var loan *Loan
	err := s.transition(ctx, "confirm_return", func(tx Store) ([]Notice, error) {
		l, err := tx.GetLoan(ctx, id)
		if err != nil {
			return nil, err
		}
		if !l.Status.HoldsCopy() {
			return nil, &TransitionError{LoanID: id, Op: "confirm return for", From: l.Status}
		}
		acct, book, err := loadParties(ctx, tx, l.AccountID, l.BookID)
		if err != nil {
			return nil, err
		}

		today := s.Clock.Today()
		if l.ReturnDate == nil {
			l.ReturnDate = today.Ptr()
		}
		l.Status = StatusClosed
		l.Damage = damage
		l.Fine = s.Fines.Fine(l, book.Price, today)
		l.UpdatedAt = s.Clock.Now()

		if err := tx.ReturnCopy(ctx, book.ID); err != nil {
			return nil, err
		}
		if err := tx.UpdateLoan(ctx, *l); err != nil {
			return nil, err
		}
		loan = l
		return []Notice{newNotice(NoticeReturned, l, acct, book, s.Clock.Now())}, nil
	})
	if err != nil {
		return nil, err
	}
	s.Log.Info().Str("loan_id", string(id)).Str("damage", string(damage)).
		Str("fine", loan.Fine.String()).Msg("return confirmed")
	return loan, nil
}

// DeleteClosed removes a closed loan from the owner's history.
func (s *LoanService) DeleteClosed(ctx context.Context, id LoanID, actor AccountID) error {
	return s.transition(ctx, "delete_closed", func(tx Store) ([]Notice, error) {
		l, err := ownedLoan(ctx, tx, id, actor)
		if err != nil {
			return nil, err
		}
		if l.Status != StatusClosed {
			return nil, &TransitionError{LoanID: id, Op: "delete", From: l.Status}
		}
		return nil, tx.DeleteLoan(ctx, id)
	})
}

// ForceDeleteLoan deletes a loan regardless of state (admin cleanup).
// Deleting a loan that held a copy reconciles the book in the same transaction.
func (s *LoanService) ForceDeleteLoan(ctx context.Context, id LoanID) error {
	return s.transition(ctx, "force_delete", func(tx Store) ([]Notice, error) {
		l, err := tx.GetLoan(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := tx.DeleteLoan(ctx, id); err != nil {
			return nil, err
		}
		if l.Status.HoldsCopy() {
			if _, err := reconcileBook(ctx, tx, l.BookID, s.Log); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
}

// =============================================================================
// QUERIES
// =============================================================================

func (s *LoanService) GetLoan(ctx context.Context, id LoanID) (*Loan, error) {
	return s.Store.GetLoan(ctx, id)
}

// GetActiveLoans returns the account's loans that are out (active or
// pending-return) with the advisory debt accrued so far.
func (s *LoanService) GetActiveLoans(ctx context.Context, accountID AccountID) ([]LoanView, error) {
	return s.accountLoans(ctx, accountID, HoldingStatuses())
}

// GetHistory returns the account's closed loans.
func (s *LoanService) GetHistory(ctx context.Context, accountID AccountID) ([]LoanView, error) {
	return s.accountLoans(ctx, accountID, []LoanStatus{StatusClosed})
}

// GetPendingRequests returns requested loans awaiting approval, oldest first.
func (s *LoanService) GetPendingRequests(ctx context.Context) ([]Loan, error) {
	return s.Store.FindLoans(ctx, LoanFilter{Statuses: []LoanStatus{StatusRequested}})
}

// GetPendingReturns returns loans awaiting return confirmation.
func (s *LoanService) GetPendingReturns(ctx context.Context) ([]Loan, error) {
	return s.Store.FindLoans(ctx, LoanFilter{Statuses: []LoanStatus{StatusPendingReturn}})
}

// Version reports the change counter polled by clients. With a shared
// counter it is the larger of the two, so a commit whose shared bump failed
// still shows up through the store's counter.
func (s *LoanService) Version(ctx context.Context) (int64, error) {
	v, err := s.Store.CurrentVersion(ctx)
	if err != nil {
		return 0, err
	}
	if s.Versions == nil {
		return v, nil
	}
	shared, err := s.Versions.Current(ctx)
	if err != nil {
		return 0, err
	}
	return max(v, shared), nil
}

func (s *LoanService) accountLoans(ctx context.Context, accountID AccountID, statuses []LoanStatus) ([]LoanView, error) {
	if _, err := s.Store.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}
	loans, err := s.Store.FindLoans(ctx, LoanFilter{AccountID: accountID, Statuses: statuses})
	if err != nil {
		return nil, err
	}

	today := s.Clock.Today()
	prices := make(map[BookID]decimal.Decimal)
	views := make([]LoanView, 0, len(loans))
	for i := range loans {
		l := &loans[i]
		price, ok := prices[l.BookID]
		if !ok {
			b, err := s.Store.GetBook(ctx, l.BookID)
			if err != nil {
				return nil, err
			}
			price = b.Price
			prices[l.BookID] = price
		}
		v := LoanView{Loan: *l, CurrentDebt: s.Fines.CurrentDebt(l, price, today)}
		if d, ok := l.DaysUntilDue(today); ok {
			v.DaysUntilDue = &d
		}
		views = append(views, v)
	}
	return views, nil
}

// =============================================================================
// INTERNALS
// =============================================================================

// transition runs fn and the version bump in one transaction, then performs
// the post-commit side effects.
func (s *LoanService) transition(ctx context.Context, op string, fn func(tx Store) ([]Notice, error)) error {
	var (
		notices []Notice
		version int64
	)
	err := s.Store.WithTx(ctx, func(tx Store) error {
		ns, err := fn(tx)
		if err != nil {
			return err
		}
		v, err := tx.BumpVersion(ctx)
		if err != nil {
			return fmt.Errorf("bump version: %w", err)
		}
		notices, version = ns, v
		return nil
	})
	if err != nil {
		metrics.LoanTransitions.WithLabelValues(op, Code(err)).Inc()
		if !IsClientError(err) {
			s.Log.Error().Err(err).Str("op", op).Msg("loan transition failed")
		}
		return err
	}
	metrics.LoanTransitions.WithLabelValues(op, "ok").Inc()

	if s.Versions != nil {
		v, err := s.Versions.Bump(ctx)
		if err != nil {
			s.Log.Warn().Err(err).Str("op", op).Int64("version", version).Msg("shared version bump failed")
		} else {
			version = max(version, v)
		}
	}
	metrics.LoanVersion.Set(float64(version))

	for _, n := range notices {
		s.dispatch(ctx, n)
	}
	return nil
}

func (s *LoanService) dispatch(ctx context.Context, n Notice) {
	if s.Notices == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.Log.Error().Interface("panic", r).Str("loan_id", string(n.LoanID)).Msg("notice dispatcher panicked")
			metrics.NoticesDispatched.WithLabelValues(string(n.Kind), "error").Inc()
		}
	}()
	if err := s.Notices.Dispatch(ctx, n); err != nil {
		s.Log.Warn().Err(err).Str("loan_id", string(n.LoanID)).Str("kind", string(n.Kind)).Msg("notice dispatch failed")
		metrics.NoticesDispatched.WithLabelValues(string(n.Kind), "error").Inc()
		return
	}
	metrics.NoticesDispatched.WithLabelValues(string(n.Kind), "ok").Inc()
}

// checkCanOpen enforces the account-level rules for a new loan.
func (s *LoanService) checkCanOpen(ctx context.Context, tx Store, acct *Account, book *Book) error {
	if acct.Status != AccountActive {
		return &PolicyError{Rule: "account_inactive", Message: fmt.Sprintf("account %s is not active", acct.ID)}
	}

	open, err := tx.CountLoans(ctx, LoanFilter{AccountID: acct.ID, BookID: book.ID, Statuses: OpenStatuses()})
	if err != nil {
		return err
	}
	if open > 0 {
		return fmt.Errorf("account %s, book %s: %w", acct.ID, book.ID, ErrDuplicateLoan)
	}

	counted := []LoanStatus{StatusRequested, StatusActive}
	if s.Policy.CountPendingReturns {
		counted = append(counted, StatusPendingReturn)
	}
	n, err := tx.CountLoans(ctx, LoanFilter{AccountID: acct.ID, Statuses: counted})
	if err != nil {
		return err
	}
	if s.Policy.MaxOpenLoans > 0 && n >= s.Policy.MaxOpenLoans {
		return &LimitError{AccountID: acct.ID, Open: n, Limit: s.Policy.MaxOpenLoans}
	}
	return nil
}

// activate sets the due date, takes a copy and marks the loan active.
// Policy is checked before stock so a bad override is never masked.
func (s *LoanService) activate(ctx context.Context, tx Store, l *Loan, acct *Account, book *Book, override *Date) error {
	if l.BorrowDate.IsZero() {
		l.BorrowDate = s.Clock.Today()
	}
	maxDays := s.Rules.MaxDays(acct.Class, book.Categories)
	due := l.BorrowDate.AddDays(maxDays)
	if override != nil {
		if override.Before(l.BorrowDate) {
			return &PolicyError{Rule: "due_date", Message: fmt.Sprintf("due date %s is before borrow date %s", override, l.BorrowDate)}
		}
		if override.After(due) {
			return &PolicyError{Rule: "due_date", Message: fmt.Sprintf("due date %s exceeds maximum %s (%d days)", override, due, maxDays)}
		}
		due = *override
	}

	if err := tx.TakeCopy(ctx, book.ID); err != nil {
		return err
	}

	l.Status = StatusActive
	l.DueDate = &due
	l.ReturnDate = nil
	l.Notified = false
	l.Fine = decimal.Zero
	l.UpdatedAt = s.Clock.Now()
	return nil
}

func (s *LoanService) newLoan(accountID AccountID, bookID BookID) Loan {
	now := s.Clock.Now()
	return Loan{
		ID:        LoanID(uuid.NewString()),
		AccountID: accountID,
		BookID:    bookID,
		Status:    StatusRequested,
		Damage:    DamageNone,
		Fine:      decimal.Zero,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func applyApproveOptions(opts []ApproveOption) approveOptions {
	var o approveOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func loadParties(ctx context.Context, tx Store, accountID AccountID, bookID BookID) (*Account, *Book, error) {
	acct, err := tx.GetAccount(ctx, accountID)
	if err != nil {
		return nil, nil, err
	}
	book, err := tx.GetBook(ctx, bookID)
	if err != nil {
		return nil, nil, err
	}
	return acct, book, nil
}

func ownedLoan(ctx context.Context, tx Store, id LoanID, actor AccountID) (*Loan, error) {
	l, err := tx.GetLoan(ctx, id)
	if err != nil {
		return nil, err
	}
	if l.AccountID != actor {
		return nil, fmt.Errorf("loan %s, account %s: %w", id, actor, ErrNotOwner)
	}
	return l, nil
}
