package lending_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/lending-engine/lending"
	"github.com/warp/lending-engine/lending/store"
)

// =============================================================================
// FIXTURE
// =============================================================================

type noticeLog struct {
	mu      sync.Mutex
	notices []lending.Notice
	err     error
}

func (n *noticeLog) Dispatch(_ context.Context, notice lending.Notice) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.notices = append(n.notices, notice)
	return nil
}

func (n *noticeLog) all() []lending.Notice {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]lending.Notice(nil), n.notices...)
}

type fixture struct {
	t       *testing.T
	ctx     context.Context
	store   *store.Memory
	svc     *lending.LoanService
	notices *noticeLog
	now     time.Time
}

func newFixture(t *testing.T) *fixture {
	f := &fixture{
		t:       t,
		ctx:     context.Background(),
		store:   store.NewMemory(),
		notices: &noticeLog{},
		now:     time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
	}
	resolver := lending.NewRuleResolver(lending.RuleTable{
		DefaultDays: 14,
		Types: []lending.TypeRule{
			{Class: lending.ClassStudent, Type: lending.TypeTextbook, MaxDays: 30},
			{Class: lending.ClassStudent, Type: lending.TypeReference, MaxDays: 7},
		},
	})
	f.svc = lending.NewLoanService(f.store, resolver, lending.NewFineCalculator(lending.DefaultFinePerDay), lending.DefaultPolicy())
	f.svc.Clock = func() time.Time { return f.now }
	f.svc.Notices = f.notices
	return f
}

func (f *fixture) setDate(year int, month time.Month, day int) {
	f.now = time.Date(year, month, day, 9, 0, 0, 0, time.UTC)
}

func (f *fixture) book(id string, quantity int, categories ...string) lending.BookID {
	f.t.Helper()
	b, err := f.svc.AddBook(f.ctx, lending.Book{
		ID:         lending.BookID(id),
		Title:      "Book " + id,
		Categories: categories,
		Price:      decimal.NewFromInt(100000),
		Quantity:   quantity,
	})
	require.NoError(f.t, err)
	return b.ID
}

func (f *fixture) account(id string) lending.AccountID {
	f.t.Helper()
	a, err := f.svc.AddAccount(f.ctx, lending.Account{
		ID:    lending.AccountID(id),
		Name:  "Reader " + id,
		Email: id + "@example.edu",
	})
	require.NoError(f.t, err)
	return a.ID
}

func (f *fixture) available(id lending.BookID) int {
	f.t.Helper()
	b, err := f.store.GetBook(f.ctx, id)
	require.NoError(f.t, err)
	return b.Available
}

func (f *fixture) version() int64 {
	f.t.Helper()
	v, err := f.svc.Version(f.ctx)
	require.NoError(f.t, err)
	return v
}

// activeLoan requests and approves a loan on the current day.
func (f *fixture) activeLoan(acct lending.AccountID, book lending.BookID) *lending.Loan {
	f.t.Helper()
	l, err := f.svc.RequestLoan(f.ctx, acct, book)
	require.NoError(f.t, err)
	l, err = f.svc.ApproveLoan(f.ctx, l.ID)
	require.NoError(f.t, err)
	return l
}

// =============================================================================
// REQUEST / APPROVE
// =============================================================================

func TestRequestLoan_ConsumesNoInventory(t *testing.T) {
	f := newFixture(t)
	book := f.book("b1", 2, "Philosophy")
	acct := f.account("a1")

	loan, err := f.svc.RequestLoan(f.ctx, acct, book)

	require.NoError(t, err)
	assert.Equal(t, lending.StatusRequested, loan.Status)
	assert.Nil(t, loan.DueDate)
	assert.True(t, loan.BorrowDate.IsZero())
	assert.Equal(t, 2, f.available(book))
	assert.Empty(t, f.notices.all())
}

func TestApproveLoan_DueDateFromRules(t *testing.T) {
	// GIVEN: A student request on 2024-01-01 for an unclassified category
	f := newFixture(t)
	book := f.book("b1", 2, "Philosophy")
	acct := f.account("a1")
	loan, err := f.svc.RequestLoan(f.ctx, acct, book)
	require.NoError(t, err)

	// WHEN: Approved the same day
	loan, err = f.svc.ApproveLoan(f.ctx, loan.ID)
	require.NoError(t, err)

	// THEN: Due in 14 days, one copy out, approved notice sent
	assert.Equal(t, lending.StatusActive, loan.Status)
	assert.Equal(t, lending.NewDate(2024, time.January, 1), loan.BorrowDate)
	require.NotNil(t, loan.DueDate)
	assert.Equal(t, lending.NewDate(2024, time.January, 15), *loan.DueDate)
	assert.Equal(t, 1, f.available(book))

	notices := f.notices.all()
	require.Len(t, notices, 1)
	assert.Equal(t, lending.NoticeApproved, notices[0].Kind)
	assert.Equal(t, loan.ID, notices[0].LoanID)
	assert.Equal(t, "a1@example.edu", notices[0].AccountEmail)
	require.NotNil(t, notices[0].DueDate)
	assert.Equal(t, *loan.DueDate, *notices[0].DueDate)
}

func TestApproveLoan_TypeRule(t *testing.T) {
	f := newFixture(t)
	book := f.book("b1", 1, "Giáo trình Toán", "Philosophy")
	acct := f.account("a1")

	loan := f.activeLoan(acct, book)

	assert.Equal(t, lending.NewDate(2024, time.January, 31), *loan.DueDate)
}

func TestRequestLoan_DuplicateOpenLoan(t *testing.T) {
	f := newFixture(t)
	book := f.book("b1", 3)
	acct := f.account("a1")
	f.activeLoan(acct, book)

	_, err := f.svc.RequestLoan(f.ctx, acct, book)

	assert.ErrorIs(t, err, lending.ErrDuplicateLoan)
	assert.Equal(t, "duplicate_loan", lending.Code(err))
}

func TestRequestLoan_LimitExceeded(t *testing.T) {
	// GIVEN: An account with five open loans
	f := newFixture(t)
	acct := f.account("a1")
	for _, id := range []string{"b1", "b2", "b3", "b4", "b5"} {
		_, err := f.svc.RequestLoan(f.ctx, acct, f.book(id, 1))
		require.NoError(t, err)
	}

	// WHEN: Requesting a sixth
	_, err := f.svc.RequestLoan(f.ctx, acct, f.book("b6", 1))

	// THEN: The cap applies
	var le *lending.LimitError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, 5, le.Open)
	assert.Equal(t, 5, le.Limit)
	assert.ErrorIs(t, err, lending.ErrLimitExceeded)
}

func TestRequestLoan_PendingReturnCountsTowardLimit(t *testing.T) {
	f := newFixture(t)
	acct := f.account("a1")
	for _, id := range []string{"b1", "b2", "b3", "b4", "b5"} {
		l := f.activeLoan(acct, f.book(id, 1))
		_, err := f.svc.RequestReturn(f.ctx, l.ID, acct)
		require.NoError(t, err)
	}

	_, err := f.svc.RequestLoan(f.ctx, acct, f.book("b6", 1))
	assert.ErrorIs(t, err, lending.ErrLimitExceeded)

	f.svc.Policy.CountPendingReturns = false
	_, err = f.svc.RequestLoan(f.ctx, acct, f.book("b7", 1))
	assert.NoError(t, err)
}

func TestRequestLoan_InactiveAccount(t *testing.T) {
	f := newFixture(t)
	book := f.book("b1", 1)
	_, err := f.svc.AddAccount(f.ctx, lending.Account{ID: "a1", Name: "Gone", Status: lending.AccountInactive})
	require.NoError(t, err)

	_, err = f.svc.RequestLoan(f.ctx, "a1", book)

	var pe *lending.PolicyError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "account_inactive", pe.Rule)
}

func TestRequestLoan_UnknownParties(t *testing.T) {
	f := newFixture(t)
	acct := f.account("a1")

	_, err := f.svc.RequestLoan(f.ctx, acct, "missing")

	assert.True(t, lending.IsNotFound(err))
	var nf *lending.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "book", nf.Kind)
}

func TestRequestLoan_CapReservations(t *testing.T) {
	f := newFixture(t)
	f.svc.Policy.CapReservations = true
	book := f.book("b1", 1)
	_, err := f.svc.RequestLoan(f.ctx, f.account("a1"), book)
	require.NoError(t, err)

	_, err = f.svc.RequestLoan(f.ctx, f.account("a2"), book)

	assert.ErrorIs(t, err, lending.ErrOutOfStock)
}

func TestApproveLoan_OutOfStock(t *testing.T) {
	// GIVEN: Two requests for the only copy
	f := newFixture(t)
	book := f.book("b1", 1)
	first, err := f.svc.RequestLoan(f.ctx, f.account("a1"), book)
	require.NoError(t, err)
	second, err := f.svc.RequestLoan(f.ctx, f.account("a2"), book)
	require.NoError(t, err)

	_, err = f.svc.ApproveLoan(f.ctx, first.ID)
	require.NoError(t, err)
	before := f.version()

	// WHEN: Approving the second
	_, err = f.svc.ApproveLoan(f.ctx, second.ID)

	// THEN: Out of stock, nothing changed
	var oos *lending.OutOfStockError
	require.ErrorAs(t, err, &oos)
	assert.Equal(t, book, oos.BookID)

	l, err := f.svc.GetLoan(f.ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, lending.StatusRequested, l.Status)
	assert.Nil(t, l.DueDate)
	assert.Equal(t, 0, f.available(book))
	assert.Equal(t, before, f.version())
}

func TestApproveLoan_ConcurrentLastCopy(t *testing.T) {
	f := newFixture(t)
	book := f.book("b1", 1)
	var ids []lending.LoanID
	for _, a := range []string{"a1", "a2"} {
		l, err := f.svc.RequestLoan(f.ctx, f.account(a), book)
		require.NoError(t, err)
		ids = append(ids, l.ID)
	}

	errs := make([]error, len(ids))
	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id lending.LoanID) {
			defer wg.Done()
			_, errs[i] = f.svc.ApproveLoan(f.ctx, id)
		}(i, id)
	}
	wg.Wait()

	var ok, oos int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, lending.ErrOutOfStock):
			oos++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, oos)
	assert.Equal(t, 0, f.available(book))
}

func TestApproveLoan_NotRequested(t *testing.T) {
	f := newFixture(t)
	loan := f.activeLoan(f.account("a1"), f.book("b1", 2))

	_, err := f.svc.ApproveLoan(f.ctx, loan.ID)

	var te *lending.TransitionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, lending.StatusActive, te.From)
	assert.ErrorIs(t, err, lending.ErrInvalidTransition)
}

func TestApproveLoan_ManualDueDate(t *testing.T) {
	tests := []struct {
		name    string
		due     lending.Date
		wantErr bool
	}{
		{"earlier than maximum", lending.NewDate(2024, time.January, 8), false},
		{"exactly maximum", lending.NewDate(2024, time.January, 15), false},
		{"beyond maximum", lending.NewDate(2024, time.January, 16), true},
		{"before borrow date", lending.NewDate(2023, time.December, 31), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			book := f.book("b1", 1)
			loan, err := f.svc.RequestLoan(f.ctx, f.account("a1"), book)
			require.NoError(t, err)

			got, err := f.svc.ApproveLoan(f.ctx, loan.ID, lending.WithDueDate(tt.due))

			if tt.wantErr {
				assert.ErrorIs(t, err, lending.ErrPolicyViolation)
				assert.Equal(t, 1, f.available(book))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.due, *got.DueDate)
		})
	}
}

func TestCheckoutDirect(t *testing.T) {
	f := newFixture(t)
	book := f.book("b1", 1)

	loan, err := f.svc.CheckoutDirect(f.ctx, f.account("a1"), book)

	require.NoError(t, err)
	assert.Equal(t, lending.StatusActive, loan.Status)
	assert.Equal(t, lending.NewDate(2024, time.January, 15), *loan.DueDate)
	assert.Equal(t, 0, f.available(book))

	_, err = f.svc.CheckoutDirect(f.ctx, f.account("a2"), book)
	assert.ErrorIs(t, err, lending.ErrOutOfStock)
	loans, err := f.store.FindLoans(f.ctx, lending.LoanFilter{BookID: book})
	require.NoError(t, err)
	assert.Len(t, loans, 1)
}

// =============================================================================
// CANCEL / REJECT
// =============================================================================

func TestCancelRequested(t *testing.T) {
	f := newFixture(t)
	book := f.book("b1", 1)
	acct := f.account("a1")
	other := f.account("a2")
	loan, err := f.svc.RequestLoan(f.ctx, acct, book)
	require.NoError(t, err)

	err = f.svc.CancelRequested(f.ctx, loan.ID, other)
	assert.ErrorIs(t, err, lending.ErrNotOwner)

	require.NoError(t, f.svc.CancelRequested(f.ctx, loan.ID, acct))
	_, err = f.svc.GetLoan(f.ctx, loan.ID)
	assert.True(t, lending.IsNotFound(err))
	assert.Equal(t, 1, f.available(book))

	// The pair is free again
	_, err = f.svc.RequestLoan(f.ctx, acct, book)
	assert.NoError(t, err)
}

func TestCancelRequested_ActiveLoan(t *testing.T) {
	f := newFixture(t)
	acct := f.account("a1")
	loan := f.activeLoan(acct, f.book("b1", 1))

	err := f.svc.CancelRequested(f.ctx, loan.ID, acct)

	assert.ErrorIs(t, err, lending.ErrInvalidTransition)
}

func TestRejectRequest(t *testing.T) {
	f := newFixture(t)
	loan, err := f.svc.RequestLoan(f.ctx, f.account("a1"), f.book("b1", 1))
	require.NoError(t, err)

	require.NoError(t, f.svc.RejectRequest(f.ctx, loan.ID))

	_, err = f.svc.GetLoan(f.ctx, loan.ID)
	assert.ErrorIs(t, err, lending.ErrNotFound)
	assert.ErrorIs(t, f.svc.RejectRequest(f.ctx, loan.ID), lending.ErrNotFound)
}

// =============================================================================
// RETURNS
// =============================================================================

func TestReturn_OnDueDateLightDamage(t *testing.T) {
	// GIVEN: A loan due 2024-01-15
	f := newFixture(t)
	book := f.book("b1", 2)
	acct := f.account("a1")
	loan := f.activeLoan(acct, book)

	// WHEN: Returned on the due date with light damage
	f.setDate(2024, time.January, 15)
	loan, err := f.svc.RequestReturn(f.ctx, loan.ID, acct)
	require.NoError(t, err)
	assert.Equal(t, lending.StatusPendingReturn, loan.Status)
	assert.Equal(t, 1, f.available(book))

	loan, err = f.svc.ConfirmReturn(f.ctx, loan.ID, lending.DamageLight)
	require.NoError(t, err)

	// THEN: No late fee, 20% of the price, copy back on the shelf
	assert.Equal(t, lending.StatusClosed, loan.Status)
	assert.True(t, decimal.NewFromInt(20000).Equal(loan.Fine), "fine = %s", loan.Fine)
	assert.Equal(t, lending.NewDate(2024, time.January, 15), *loan.ReturnDate)
	assert.Equal(t, 2, f.available(book))

	notices := f.notices.all()
	require.Len(t, notices, 2)
	assert.Equal(t, lending.NoticeReturned, notices[1].Kind)
	assert.True(t, notices[1].Fine.Equal(loan.Fine))
}

func TestReturn_ThreeDaysLate(t *testing.T) {
	f := newFixture(t)
	acct := f.account("a1")
	loan := f.activeLoan(acct, f.book("b1", 1))

	f.setDate(2024, time.January, 18)
	loan, err := f.svc.ConfirmReturn(f.ctx, loan.ID, lending.DamageNone)

	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(9000).Equal(loan.Fine), "fine = %s", loan.Fine)
}

func TestReturn_LateFeeStopsAtReturnRequest(t *testing.T) {
	// Return requested on the due date, confirmed a week later
	f := newFixture(t)
	acct := f.account("a1")
	loan := f.activeLoan(acct, f.book("b1", 1))

	f.setDate(2024, time.January, 15)
	_, err := f.svc.RequestReturn(f.ctx, loan.ID, acct)
	require.NoError(t, err)

	f.setDate(2024, time.January, 22)
	loan, err = f.svc.ConfirmReturn(f.ctx, loan.ID, "")

	require.NoError(t, err)
	assert.True(t, loan.Fine.IsZero(), "fine = %s", loan.Fine)
	assert.Equal(t, lending.DamageNone, loan.Damage)
}

func TestReturn_WithdrawAndRequestAgain(t *testing.T) {
	f := newFixture(t)
	book := f.book("b1", 1)
	acct := f.account("a1")
	loan := f.activeLoan(acct, book)

	_, err := f.svc.RequestReturn(f.ctx, loan.ID, acct)
	require.NoError(t, err)

	loan, err = f.svc.WithdrawReturnRequest(f.ctx, loan.ID, acct)
	require.NoError(t, err)
	assert.Equal(t, lending.StatusActive, loan.Status)
	assert.Nil(t, loan.ReturnDate)
	assert.Equal(t, 0, f.available(book))

	_, err = f.svc.WithdrawReturnRequest(f.ctx, loan.ID, acct)
	assert.ErrorIs(t, err, lending.ErrInvalidTransition)

	_, err = f.svc.RequestReturn(f.ctx, loan.ID, acct)
	assert.NoError(t, err)
}

func TestRequestReturn_Errors(t *testing.T) {
	f := newFixture(t)
	book := f.book("b1", 1)
	acct := f.account("a1")
	requested, err := f.svc.RequestLoan(f.ctx, acct, book)
	require.NoError(t, err)

	_, err = f.svc.RequestReturn(f.ctx, requested.ID, acct)
	assert.ErrorIs(t, err, lending.ErrInvalidTransition)

	_, err = f.svc.ApproveLoan(f.ctx, requested.ID)
	require.NoError(t, err)
	_, err = f.svc.RequestReturn(f.ctx, requested.ID, f.account("a2"))
	assert.ErrorIs(t, err, lending.ErrNotOwner)
}

func TestConfirmReturn_Errors(t *testing.T) {
	f := newFixture(t)
	acct := f.account("a1")
	loan := f.activeLoan(acct, f.book("b1", 1))

	_, err := f.svc.ConfirmReturn(f.ctx, loan.ID, "scratched")
	assert.ErrorIs(t, err, lending.ErrPolicyViolation)

	_, err = f.svc.ConfirmReturn(f.ctx, loan.ID, lending.DamageNone)
	require.NoError(t, err)

	_, err = f.svc.ConfirmReturn(f.ctx, loan.ID, lending.DamageNone)
	assert.ErrorIs(t, err, lending.ErrInvalidTransition)
}

func TestDeleteClosed(t *testing.T) {
	f := newFixture(t)
	book := f.book("b1", 1)
	acct := f.account("a1")
	loan := f.activeLoan(acct, book)

	assert.ErrorIs(t, f.svc.DeleteClosed(f.ctx, loan.ID, acct), lending.ErrInvalidTransition)

	_, err := f.svc.ConfirmReturn(f.ctx, loan.ID, lending.DamageNone)
	require.NoError(t, err)

	assert.ErrorIs(t, f.svc.DeleteClosed(f.ctx, loan.ID, f.account("a2")), lending.ErrNotOwner)
	require.NoError(t, f.svc.DeleteClosed(f.ctx, loan.ID, acct))
	assert.Equal(t, 1, f.available(book))
}

func TestForceDeleteLoan_ReconcilesHeldCopy(t *testing.T) {
	f := newFixture(t)
	book := f.book("b1", 2)
	loan := f.activeLoan(f.account("a1"), book)
	require.Equal(t, 1, f.available(book))

	require.NoError(t, f.svc.ForceDeleteLoan(f.ctx, loan.ID))

	assert.Equal(t, 2, f.available(book))
}

// =============================================================================
// VERSION / NOTICES
// =============================================================================

func TestVersion_AdvancesOnEveryCommittedChange(t *testing.T) {
	f := newFixture(t)
	book := f.book("b1", 1)
	acct := f.account("a1")

	v0 := f.version()
	assert.Equal(t, int64(1), v0)

	loan, err := f.svc.RequestLoan(f.ctx, acct, book)
	require.NoError(t, err)
	v1 := f.version()
	assert.Greater(t, v1, v0)

	_, err = f.svc.ApproveLoan(f.ctx, loan.ID)
	require.NoError(t, err)
	v2 := f.version()
	assert.Greater(t, v2, v1)

	// A rejected operation leaves the version alone
	_, err = f.svc.RequestLoan(f.ctx, acct, book)
	require.Error(t, err)
	assert.Equal(t, v2, f.version())
}

type countingVersions struct {
	mu sync.Mutex
	v  int64
}

func (c *countingVersions) Current(context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.v == 0 {
		c.v = 1
	}
	return c.v, nil
}

func (c *countingVersions) Bump(ctx context.Context) (int64, error) {
	cur, _ := c.Current(ctx)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.v = cur + 1
	return c.v, nil
}

func TestVersion_SharedCounter(t *testing.T) {
	f := newFixture(t)
	shared := &countingVersions{v: 100}
	f.svc.Versions = shared

	_, err := f.svc.RequestLoan(f.ctx, f.account("a1"), f.book("b1", 1))
	require.NoError(t, err)

	assert.Equal(t, int64(101), f.version())
}

func TestNoticeFailureDoesNotRollBack(t *testing.T) {
	f := newFixture(t)
	f.notices.err = errors.New("queue closed")
	book := f.book("b1", 1)

	loan := f.activeLoan(f.account("a1"), book)

	assert.Equal(t, lending.StatusActive, loan.Status)
	assert.Equal(t, 0, f.available(book))
}

func TestNoticePanicIsContained(t *testing.T) {
	f := newFixture(t)
	f.svc.Notices = lending.NoticeFunc(func(context.Context, lending.Notice) error { panic("boom") })

	loan := f.activeLoan(f.account("a1"), f.book("b1", 1))

	assert.Equal(t, lending.StatusActive, loan.Status)
}

type brokenVersions struct{}

func (brokenVersions) Current(context.Context) (int64, error) { return 1, nil }

func (brokenVersions) Bump(context.Context) (int64, error) {
	return 0, errors.New("connection refused")
}

func TestVersion_AdvancesWhenSharedBumpFails(t *testing.T) {
	f := newFixture(t)
	f.svc.Versions = brokenVersions{}
	acct := f.account("a1")
	book := f.book("b1", 1)
	before := f.version()

	// WHEN: a loan commits but the shared counter cannot be bumped
	_, err := f.svc.RequestLoan(f.ctx, acct, book)
	require.NoError(t, err)

	// THEN: polling clients still see the change
	assert.Greater(t, f.version(), before)
}

func TestVersion_StaysMonotonicAcrossSharedOutage(t *testing.T) {
	f := newFixture(t)
	shared := &countingVersions{}
	f.svc.Versions = shared
	acct := f.account("a1")

	first := f.activeLoan(acct, f.book("b1", 1))
	v1 := f.version()

	f.svc.Versions = brokenVersions{}
	_, err := f.svc.RequestReturn(f.ctx, first.ID, acct)
	require.NoError(t, err)
	v2 := f.version()
	assert.Greater(t, v2, v1)

	f.svc.Versions = shared
	_, err = f.svc.ConfirmReturn(f.ctx, first.ID, lending.DamageNone)
	require.NoError(t, err)
	assert.Greater(t, f.version(), v2)
}

// =============================================================================
// QUERIES
// =============================================================================

func TestGetActiveLoans_CurrentDebt(t *testing.T) {
	f := newFixture(t)
	acct := f.account("a1")
	f.activeLoan(acct, f.book("b1", 1))
	_, err := f.svc.RequestLoan(f.ctx, acct, f.book("b2", 1))
	require.NoError(t, err)

	f.setDate(2024, time.January, 20)
	views, err := f.svc.GetActiveLoans(f.ctx, acct)

	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.True(t, decimal.NewFromInt(15000).Equal(views[0].CurrentDebt), "debt = %s", views[0].CurrentDebt)
	require.NotNil(t, views[0].DaysUntilDue)
	assert.Equal(t, -5, *views[0].DaysUntilDue)

	// Advisory only: nothing persisted
	stored, err := f.svc.GetLoan(f.ctx, views[0].ID)
	require.NoError(t, err)
	assert.True(t, stored.Fine.IsZero())
}

func TestGetActiveLoans_PendingReturnDebtMatchesFinalFine(t *testing.T) {
	f := newFixture(t)
	acct := f.account("a1")
	loan := f.activeLoan(acct, f.book("b1", 1))
	require.Equal(t, lending.NewDate(2024, time.January, 15), *loan.DueDate)

	// GIVEN: the borrower hands the book back one day late
	f.setDate(2024, time.January, 16)
	_, err := f.svc.RequestReturn(f.ctx, loan.ID, acct)
	require.NoError(t, err)

	// WHEN: the librarian has not confirmed it four days later
	f.setDate(2024, time.January, 20)
	views, err := f.svc.GetActiveLoans(f.ctx, acct)
	require.NoError(t, err)
	require.Len(t, views, 1)

	// THEN: the shown debt equals the fine the confirmation charges
	closed, err := f.svc.ConfirmReturn(f.ctx, loan.ID, lending.DamageNone)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(3000).Equal(closed.Fine), "fine = %s", closed.Fine)
	assert.True(t, closed.Fine.Equal(views[0].CurrentDebt), "debt = %s", views[0].CurrentDebt)
}

func TestGetHistoryAndPending(t *testing.T) {
	f := newFixture(t)
	acct := f.account("a1")
	closed := f.activeLoan(acct, f.book("b1", 1))
	_, err := f.svc.ConfirmReturn(f.ctx, closed.ID, lending.DamageNone)
	require.NoError(t, err)
	returning := f.activeLoan(acct, f.book("b2", 1))
	_, err = f.svc.RequestReturn(f.ctx, returning.ID, acct)
	require.NoError(t, err)
	requested, err := f.svc.RequestLoan(f.ctx, acct, f.book("b3", 1))
	require.NoError(t, err)

	history, err := f.svc.GetHistory(f.ctx, acct)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, closed.ID, history[0].ID)

	pending, err := f.svc.GetPendingRequests(f.ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, requested.ID, pending[0].ID)

	returns, err := f.svc.GetPendingReturns(f.ctx)
	require.NoError(t, err)
	require.Len(t, returns, 1)
	assert.Equal(t, returning.ID, returns[0].ID)

	_, err = f.svc.GetHistory(f.ctx, "nobody")
	assert.ErrorIs(t, err, lending.ErrNotFound)
}
