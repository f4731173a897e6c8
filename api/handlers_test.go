/*
handlers_test.go - HTTP tests for the lending API

Tests drive the chi router end to end over a sqlite :memory: store with
a fixed clock (2024-03-20), covering:
- The borrow lifecycle through the loan routes
- Error kind to status mapping
- Borrow rule administration
- Scenario seeding, mining and recommendations
*/
package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/lending-engine/factory"
	"github.com/warp/lending-engine/lending"
	"github.com/warp/lending-engine/recommend"
	"github.com/warp/lending-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var mar20 = time.Date(2024, time.March, 20, 9, 0, 0, 0, time.UTC)

type apiFixture struct {
	t     *testing.T
	store *sqlite.Store
	svc   *lending.LoanService
	h     *Handler
	srv   http.Handler
}

func newAPI(t *testing.T) *apiFixture {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	svc := lending.NewLoanService(store,
		lending.NewRuleResolver(factory.NewRuleFactory().Default()),
		lending.NewFineCalculator(lending.DefaultFinePerDay),
		lending.DefaultPolicy())
	svc.Clock = lending.FixedClock(mar20)

	recs := recommend.NewEngine(store, recommend.DefaultParams(), zerolog.Nop()).WithClock(svc.Clock)
	h := NewHandler(svc, recs, zerolog.Nop())
	h.RuleStore = store
	h.Resetter = store

	return &apiFixture{t: t, store: store, svc: svc, h: h, srv: NewRouter(h, RouterOptions{})}
}

func (f *apiFixture) do(method, path, account string, body any) *httptest.ResponseRecorder {
	f.t.Helper()
	var rd io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rd = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(f.t, err)
		rd = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if account != "" {
		req.Header.Set(AccountHeader, account)
	}
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	return rec
}

func decodeAs[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

// seedCatalog creates one textbook with the given quantity and two students.
func (f *apiFixture) seedCatalog(quantity int) {
	rec := f.do(http.MethodPost, "/api/books", "", map[string]any{
		"id": "bk-1", "title": "The Go Programming Language", "categories": []string{"Textbook"},
		"price": 100000, "quantity": quantity,
	})
	require.Equal(f.t, http.StatusCreated, rec.Code, rec.Body.String())

	for _, id := range []string{"acc-1", "acc-2"} {
		rec := f.do(http.MethodPost, "/api/accounts", "", map[string]any{
			"id": id, "name": "Reader " + id, "email": id + "@example.edu",
		})
		require.Equal(f.t, http.StatusCreated, rec.Code, rec.Body.String())
	}
}

func (f *apiFixture) requestLoan(account string) LoanDTO {
	rec := f.do(http.MethodPost, "/api/loans", account, CreateLoanRequest{BookID: "bk-1"})
	require.Equal(f.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeAs[LoanDTO](f.t, rec)
}

func (f *apiFixture) version() int64 {
	rec := f.do(http.MethodGet, "/api/version", "", nil)
	require.Equal(f.t, http.StatusOK, rec.Code)
	return decodeAs[VersionDTO](f.t, rec).Version
}

// =============================================================================
// LIFECYCLE
// =============================================================================

func TestLoanLifecycle_RequestToClosed(t *testing.T) {
	// GIVEN: One copy of a textbook and a student
	f := newAPI(t)
	f.seedCatalog(1)
	v0 := f.version()

	// WHEN: The student requests it
	loan := f.requestLoan("acc-1")

	// THEN: It waits for approval without touching the shelf
	assert.Equal(t, "requested", loan.Status)
	assert.Nil(t, loan.DueDate)
	pending := decodeAs[[]LoanDTO](t, f.do(http.MethodGet, "/api/loans/pending", "", nil))
	require.Len(t, pending, 1)
	assert.Equal(t, loan.ID, pending[0].ID)

	// WHEN: A librarian approves it
	rec := f.do(http.MethodPost, "/api/loans/"+loan.ID+"/approve", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	loan = decodeAs[LoanDTO](t, rec)

	// THEN: Student textbook rule gives 30 days and the copy is out
	assert.Equal(t, "active", loan.Status)
	require.NotNil(t, loan.DueDate)
	assert.Equal(t, "2024-04-19", loan.DueDate.String())
	books := decodeAs[[]BookDTO](t, f.do(http.MethodGet, "/api/books", "", nil))
	require.Len(t, books, 1)
	assert.Equal(t, 0, books[0].Available)

	// WHEN: The student hands it back and the librarian finds light damage
	rec = f.do(http.MethodPost, "/api/loans/"+loan.ID+"/return-request", "acc-1", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "pending-return", decodeAs[LoanDTO](t, rec).Status)

	rec = f.do(http.MethodPost, "/api/loans/"+loan.ID+"/confirm-return", "", ConfirmReturnRequest{Damage: "light"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	loan = decodeAs[LoanDTO](t, rec)

	// THEN: The loan is closed with a 20% damage fee and the copy is back
	assert.Equal(t, "closed", loan.Status)
	assert.True(t, decimal.NewFromInt(20000).Equal(loan.Fine), "fine %s", loan.Fine)
	books = decodeAs[[]BookDTO](t, f.do(http.MethodGet, "/api/books", "", nil))
	assert.Equal(t, 1, books[0].Available)

	history := decodeAs[[]LoanDTO](t, f.do(http.MethodGet, "/api/accounts/acc-1/history", "", nil))
	require.Len(t, history, 1)
	assert.Equal(t, loan.ID, history[0].ID)

	// Four committed transitions, four bumps
	assert.Equal(t, v0+4, f.version())
}

func TestWalkup_CreatesActiveLoan(t *testing.T) {
	f := newAPI(t)
	f.seedCatalog(2)

	rec := f.do(http.MethodPost, "/api/loans/walkup", "", map[string]any{
		"account_id": "acc-2", "book_id": "bk-1", "due_date": "2024-03-27",
	})

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	loan := decodeAs[LoanDTO](t, rec)
	assert.Equal(t, "active", loan.Status)
	assert.Equal(t, "2024-03-27", loan.DueDate.String())

	views := decodeAs[[]LoanDTO](t, f.do(http.MethodGet, "/api/accounts/acc-2/loans", "", nil))
	require.Len(t, views, 1)
	require.NotNil(t, views[0].DaysUntilDue)
	assert.Equal(t, 7, *views[0].DaysUntilDue)
	require.NotNil(t, views[0].CurrentDebt)
	assert.True(t, views[0].CurrentDebt.IsZero())
}

func TestWithdrawReturn_BackToActive(t *testing.T) {
	f := newAPI(t)
	f.seedCatalog(1)
	loan := f.requestLoan("acc-1")
	require.Equal(t, http.StatusOK, f.do(http.MethodPost, "/api/loans/"+loan.ID+"/approve", "", nil).Code)
	require.Equal(t, http.StatusOK, f.do(http.MethodPost, "/api/loans/"+loan.ID+"/return-request", "acc-1", nil).Code)

	rec := f.do(http.MethodPost, "/api/loans/"+loan.ID+"/return-withdraw", "acc-1", nil)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decodeAs[LoanDTO](t, rec)
	assert.Equal(t, "active", got.Status)
	assert.Nil(t, got.ReturnDate)
}

func TestRejectAndCancel_RemoveRequests(t *testing.T) {
	f := newAPI(t)
	f.seedCatalog(1)
	first := f.requestLoan("acc-1")
	second := f.requestLoan("acc-2")

	assert.Equal(t, http.StatusNoContent, f.do(http.MethodPost, "/api/loans/"+first.ID+"/reject", "", nil).Code)
	assert.Equal(t, http.StatusNoContent, f.do(http.MethodPost, "/api/loans/"+second.ID+"/cancel", "acc-2", nil).Code)

	pending := decodeAs[[]LoanDTO](t, f.do(http.MethodGet, "/api/loans/pending", "", nil))
	assert.Empty(t, pending)
}

func TestDeleteClosed_AndForceDelete(t *testing.T) {
	f := newAPI(t)
	f.seedCatalog(2)
	closed := f.requestLoan("acc-1")
	f.do(http.MethodPost, "/api/loans/"+closed.ID+"/approve", "", nil)
	f.do(http.MethodPost, "/api/loans/"+closed.ID+"/confirm-return", "", nil)
	active := f.requestLoan("acc-2")
	f.do(http.MethodPost, "/api/loans/"+active.ID+"/approve", "", nil)

	// Borrower hides their closed loan
	assert.Equal(t, http.StatusNoContent, f.do(http.MethodDelete, "/api/loans/"+closed.ID, "acc-1", nil).Code)

	// Borrower cannot hide an active loan, admin can force it
	rec := f.do(http.MethodDelete, "/api/loans/"+active.ID, "acc-2", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, http.StatusNoContent, f.do(http.MethodDelete, "/api/admin/loans/"+active.ID, "", nil).Code)

	books := decodeAs[[]BookDTO](t, f.do(http.MethodGet, "/api/books", "", nil))
	assert.Equal(t, 2, books[0].Available)
}

// =============================================================================
// ERRORS
// =============================================================================

func TestLoanErrors_MapToStatus(t *testing.T) {
	f := newAPI(t)
	f.seedCatalog(1)
	loan := f.requestLoan("acc-1")

	tests := []struct {
		name    string
		method  string
		path    string
		account string
		body    any
		status  int
		code    string
	}{
		{"missing account header", http.MethodPost, "/api/loans", "", CreateLoanRequest{BookID: "bk-1"}, http.StatusBadRequest, "bad_request"},
		{"empty book id", http.MethodPost, "/api/loans", "acc-2", CreateLoanRequest{}, http.StatusBadRequest, "bad_request"},
		{"malformed json", http.MethodPost, "/api/loans", "acc-2", `{"book_id":`, http.StatusBadRequest, "bad_request"},
		{"unknown book", http.MethodPost, "/api/loans", "acc-2", CreateLoanRequest{BookID: "nope"}, http.StatusNotFound, "not_found"},
		{"duplicate", http.MethodPost, "/api/loans", "acc-1", CreateLoanRequest{BookID: "bk-1"}, http.StatusConflict, "duplicate_loan"},
		{"not owner", http.MethodPost, "/api/loans/" + loan.ID + "/cancel", "acc-2", nil, http.StatusForbidden, "not_owner"},
		{"unknown loan", http.MethodPost, "/api/loans/missing/approve", "", nil, http.StatusNotFound, "not_found"},
		{"due date beyond maximum", http.MethodPost, "/api/loans/" + loan.ID + "/approve", "", map[string]string{"due_date": "2024-06-01"}, http.StatusUnprocessableEntity, "policy_violation"},
		{"return before approval", http.MethodPost, "/api/loans/" + loan.ID + "/return-request", "acc-1", nil, http.StatusConflict, "invalid_transition"},
		{"bad damage", http.MethodPost, "/api/loans/" + loan.ID + "/confirm-return", "", map[string]string{"damage": "soggy"}, http.StatusBadRequest, "bad_request"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(tt.method, tt.path, tt.account, tt.body)

			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			resp := decodeAs[ErrorResponse](t, rec)
			assert.Equal(t, tt.code, resp.Code)
			assert.NotEmpty(t, resp.Error)
		})
	}
}

func TestApprove_OutOfStock(t *testing.T) {
	// GIVEN: One copy, two requests
	f := newAPI(t)
	f.seedCatalog(1)
	first := f.requestLoan("acc-1")
	second := f.requestLoan("acc-2")
	require.Equal(t, http.StatusOK, f.do(http.MethodPost, "/api/loans/"+first.ID+"/approve", "", nil).Code)

	// WHEN: The second is approved
	rec := f.do(http.MethodPost, "/api/loans/"+second.ID+"/approve", "", nil)

	// THEN: Conflict, and the request is still waiting
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "out_of_stock", decodeAs[ErrorResponse](t, rec).Code)
	pending := decodeAs[[]LoanDTO](t, f.do(http.MethodGet, "/api/loans/pending", "", nil))
	require.Len(t, pending, 1)
	assert.Equal(t, second.ID, pending[0].ID)
}

func TestStatusFor_WrappedErrors(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{&lending.NotFoundError{Kind: "book", ID: "x"}, http.StatusNotFound},
		{fmt.Errorf("cancel: %w", lending.ErrNotOwner), http.StatusForbidden},
		{&lending.LimitError{Open: 5, Limit: 5}, http.StatusConflict},
		{&lending.OutOfStockError{BookID: "x"}, http.StatusConflict},
		{&lending.TransitionError{From: lending.StatusClosed}, http.StatusConflict},
		{fmt.Errorf("wrap: %w", lending.ErrDuplicateLoan), http.StatusConflict},
		{&lending.PolicyError{Rule: "due_date"}, http.StatusUnprocessableEntity},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.status, statusFor(tt.err), tt.err.Error())
	}
}

// =============================================================================
// CATALOG
// =============================================================================

func TestSetQuantity_CannotDropBelowCopiesOut(t *testing.T) {
	f := newAPI(t)
	f.seedCatalog(2)
	loan := f.requestLoan("acc-1")
	f.do(http.MethodPost, "/api/loans/"+loan.ID+"/approve", "", nil)

	rec := f.do(http.MethodPut, "/api/books/bk-1/quantity", "", map[string]int{"quantity": 0})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = f.do(http.MethodPut, "/api/books/bk-1/quantity", "", map[string]int{"quantity": 5})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	book := decodeAs[BookDTO](t, rec)
	assert.Equal(t, 5, book.Quantity)
	assert.Equal(t, 4, book.Available)

	rec = f.do(http.MethodPut, "/api/books/bk-1/quantity", "", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateAccount_ValidatesClassAndEmail(t *testing.T) {
	f := newAPI(t)

	rec := f.do(http.MethodPost, "/api/accounts", "", map[string]string{"name": "X", "class": "wizard"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPost, "/api/accounts", "", map[string]string{"name": "X", "email": "not-an-email"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPost, "/api/accounts", "", map[string]string{"name": "Dr. X", "class": "lecturer"})
	require.Equal(t, http.StatusCreated, rec.Code)
	acct := decodeAs[AccountDTO](t, rec)
	assert.NotEmpty(t, acct.ID)
	assert.Equal(t, "lecturer", acct.Class)
	assert.Equal(t, "active", acct.Status)
}

func TestDeleteAccount_ReturnsCopies(t *testing.T) {
	f := newAPI(t)
	f.seedCatalog(1)
	loan := f.requestLoan("acc-1")
	f.do(http.MethodPost, "/api/loans/"+loan.ID+"/approve", "", nil)

	assert.Equal(t, http.StatusNoContent, f.do(http.MethodDelete, "/api/accounts/acc-1", "", nil).Code)

	books := decodeAs[[]BookDTO](t, f.do(http.MethodGet, "/api/books", "", nil))
	assert.Equal(t, 1, books[0].Available)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/api/accounts/acc-1/loans", "", nil).Code)
}

// =============================================================================
// BORROW RULES
// =============================================================================

func TestBorrowRules_PutPersistsAndApplies(t *testing.T) {
	f := newAPI(t)

	// GIVEN: The built-in table
	got := decodeAs[factory.RulesJSON](t, f.do(http.MethodGet, "/api/admin/rules", "", nil))
	assert.Equal(t, 14, got.DefaultDays)
	assert.Len(t, got.Rules, 12)

	// WHEN: A librarian installs a stricter table
	rec := f.do(http.MethodPut, "/api/admin/rules", "", map[string]any{
		"default_days": 10,
		"rules":        []map[string]any{{"class": "student", "category": "Dictionary", "max_days": 3}},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// THEN: It is live and stored
	assert.Equal(t, 3, f.svc.Rules.MaxDays(lending.ClassStudent, []string{"Dictionary"}))
	assert.Equal(t, 10, f.svc.Rules.MaxDays(lending.ClassStudent, []string{"Textbook"}))
	stored, err := f.store.LoadBorrowRules(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10, stored.DefaultDays)
	require.Len(t, stored.Categories, 1)
}

func TestBorrowRules_InvalidTableKeepsCurrent(t *testing.T) {
	f := newAPI(t)

	rec := f.do(http.MethodPut, "/api/admin/rules", "", map[string]any{
		"rules": []map[string]any{{"class": "guest", "type": "novel", "max_days": 3}},
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeAs[ErrorResponse](t, rec).Details, "unknown user class")
	assert.Equal(t, 30, f.svc.Rules.MaxDays(lending.ClassStudent, []string{"Textbook"}))
}

// =============================================================================
// SCENARIOS, MINING, RECOMMENDATIONS
// =============================================================================

func TestScenario_BusySemester(t *testing.T) {
	// GIVEN: The busy-semester demo data
	f := newAPI(t)
	rec := f.do(http.MethodPost, "/api/scenarios/load", "", LoadScenarioRequest{ScenarioID: "busy-semester"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	current := decodeAs[map[string]string](t, f.do(http.MethodGet, "/api/scenarios/current", "", nil))
	assert.Equal(t, "busy-semester", current["scenario"])

	// THEN: Loans exist in every open state
	assert.Len(t, decodeAs[[]LoanDTO](t, f.do(http.MethodGet, "/api/loans/pending", "", nil)), 2)
	assert.Len(t, decodeAs[[]LoanDTO](t, f.do(http.MethodGet, "/api/loans/pending-returns", "", nil)), 1)

	// AND: The dictionary is 13 days overdue at 3000 per day
	views := decodeAs[[]LoanDTO](t, f.do(http.MethodGet, "/api/accounts/acc-binh/loans", "", nil))
	require.Len(t, views, 1)
	assert.Equal(t, "bk-dict", views[0].BookID)
	require.NotNil(t, views[0].DaysUntilDue)
	assert.Equal(t, -13, *views[0].DaysUntilDue)
	assert.True(t, decimal.NewFromInt(39000).Equal(*views[0].CurrentDebt), "debt %s", views[0].CurrentDebt)

	// AND: Loading mined the history, algorithms go with data structures
	recs := decodeAs[RecommendationsResponse](t, f.do(http.MethodGet, "/api/books/bk-algo/recommendations", "", nil))
	require.NotEmpty(t, recs.Items)
	assert.Equal(t, lending.BookID("bk-ds"), recs.Items[0].BookID)
	assert.InDelta(t, 1.8, recs.Items[0].Lift, 1e-9)

	// AND: One novel is due tomorrow, its borrower has an email
	res := decodeAs[lending.ReminderResult](t, f.do(http.MethodPost, "/api/admin/due-notices", "", nil))
	assert.Equal(t, 1, res.Sent)
	assert.Equal(t, "2024-03-21", res.DueOn.String())
}

func TestScenario_UnknownAndReload(t *testing.T) {
	f := newAPI(t)

	rec := f.do(http.MethodPost, "/api/scenarios/load", "", LoadScenarioRequest{ScenarioID: "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	require.Equal(t, http.StatusOK, f.do(http.MethodPost, "/api/scenarios/load", "", LoadScenarioRequest{ScenarioID: "busy-semester"}).Code)
	v := f.version()
	require.Equal(t, http.StatusOK, f.do(http.MethodPost, "/api/scenarios/load", "", LoadScenarioRequest{ScenarioID: "small-library"}).Code)

	// Reload wipes loans but the counter keeps climbing
	assert.Empty(t, decodeAs[[]LoanDTO](t, f.do(http.MethodGet, "/api/loans/pending", "", nil)))
	assert.Len(t, decodeAs[[]BookDTO](t, f.do(http.MethodGet, "/api/books", "", nil)), len(demoBooks))
	assert.Greater(t, f.version(), v)
}

func TestMine_OverridesAndPopular(t *testing.T) {
	f := newAPI(t)
	require.Equal(t, http.StatusOK, f.do(http.MethodPost, "/api/scenarios/load", "", LoadScenarioRequest{ScenarioID: "busy-semester"}).Code)
	rules := decodeAs[[]AssociationRuleDTO](t, f.do(http.MethodGet, "/api/admin/association-rules", "", nil))
	require.NotEmpty(t, rules)

	// WHEN: Mining with an unreachable lift
	rec := f.do(http.MethodPost, "/api/admin/mine", "", map[string]float64{"min_lift": 50})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decodeAs[recommend.RunResult](t, rec)

	// THEN: The table is replaced with nothing
	assert.True(t, res.Replaced)
	assert.Equal(t, 0, res.Rules)
	assert.Empty(t, decodeAs[[]AssociationRuleDTO](t, f.do(http.MethodGet, "/api/admin/association-rules", "", nil)))

	// Out-of-range override is rejected before mining
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/api/admin/mine", "", map[string]float64{"min_support": 2}).Code)

	popular := decodeAs[[]PopularBookDTO](t, f.do(http.MethodGet, "/api/books/popular?limit=1", "", nil))
	require.Len(t, popular, 1)
	assert.Equal(t, "bk-algo", popular[0].BookID)
	assert.Equal(t, "Introduction to Algorithms", popular[0].Title)
}

func TestRecommendations_UnknownTargets(t *testing.T) {
	f := newAPI(t)

	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/api/books/nope/recommendations", "", nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/api/accounts/nope/recommendations", "", nil).Code)

	f.seedCatalog(1)
	rec := f.do(http.MethodGet, "/api/accounts/acc-1/recommendations", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"items":[]}`, rec.Body.String())
}

func TestAdminReconcile_ReportsNothingWhenConsistent(t *testing.T) {
	f := newAPI(t)
	f.seedCatalog(1)

	rec := f.do(http.MethodPost, "/api/admin/reconcile", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"corrected":[]}`, rec.Body.String())
}

func TestMetricsEndpoint_RecordsRoutePattern(t *testing.T) {
	f := newAPI(t)
	f.seedCatalog(1)
	f.requestLoan("acc-1")

	rec := f.do(http.MethodGet, "/metrics", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Regexp(t, `library_api_requests_total\{method="POST",route="/api/loans/?",status_code="201"\}`, rec.Body.String())
}
