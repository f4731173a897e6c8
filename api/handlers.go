/*
handlers.go - HTTP API handlers for the library lending engine

PURPOSE:
  Exposes the borrow lifecycle engine and the recommendation engine via
  REST. Handles HTTP request/response, JSON serialization, request
  validation, and delegates every decision to the lending package.

ENDPOINTS:
  Loans:
    POST   /api/loans                         Request a loan (X-Account-ID)
    POST   /api/loans/walkup                  Librarian checkout
    POST   /api/loans/{id}/approve            Approve (optional due_date)
    POST   /api/loans/{id}/reject             Reject a request
    POST   /api/loans/{id}/cancel             Borrower cancels a request
    POST   /api/loans/{id}/return-request     Borrower says "returned"
    POST   /api/loans/{id}/return-withdraw    Borrower takes it back
    POST   /api/loans/{id}/confirm-return     Librarian closes (damage)
    DELETE /api/loans/{id}                    Borrower hides a closed loan
    GET    /api/loans/pending                 Requests awaiting approval
    GET    /api/loans/pending-returns         Returns awaiting confirmation

  Accounts / books:
    GET    /api/accounts/{id}/loans           Books out, with current debt
    GET    /api/accounts/{id}/history         Closed loans
    GET    /api/accounts/{id}/recommendations Personal suggestions
    GET    /api/books/{id}/recommendations    "Borrowed together"
    GET    /api/books/popular                 Most borrowed

  Polling:
    GET    /api/version                       Change counter

  Admin:
    POST   /api/admin/reconcile               Recompute available counts
    POST   /api/admin/mine                    Rebuild association rules
    GET    /api/admin/rules                   Borrow-duration table
    PUT    /api/admin/rules                   Replace the table
    POST   /api/admin/due-notices             Send due-tomorrow reminders
    DELETE /api/admin/loans/{id}              Force-delete any loan

ACTING ACCOUNT:
  Session handling lives outside the engine. The borrower-facing routes
  take the acting account from the X-Account-ID header.

ERROR HANDLING:
  Errors are returned as {error, code, details} with the status from
  statusFor:
  - 400: Malformed or invalid body, missing header
  - 403: Loan belongs to another account
  - 404: Book, account or loan not found
  - 409: Duplicate loan, limit reached, out of stock, wrong state
  - 422: Policy violation (due date beyond maximum, inactive account)
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/warp/lending-engine/factory"
	"github.com/warp/lending-engine/lending"
	"github.com/warp/lending-engine/recommend"
)

// AccountHeader carries the acting account id on borrower routes.
const AccountHeader = "X-Account-ID"

const defaultListLimit = 10

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Resetter wipes books, accounts and loans. Both stores implement it.
type Resetter interface {
	Reset(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Loans *lending.LoanService
	Recs  *recommend.Engine

	// RuleStore persists PUT /admin/rules. Nil keeps the table in memory only.
	RuleStore   lending.RuleStore
	RuleFactory *factory.RuleFactory

	// Resetter enables scenario loading. Nil disables it.
	Resetter Resetter

	Log zerolog.Logger

	validate *validator.Validate

	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a handler over the lending and recommendation services.
func NewHandler(loans *lending.LoanService, recs *recommend.Engine, log zerolog.Logger) *Handler {
	return &Handler{
		Loans:       loans,
		Recs:        recs,
		RuleFactory: factory.NewRuleFactory(),
		Log:         log,
		validate:    validator.New(),
	}
}

// =============================================================================
// LOAN HANDLERS
// =============================================================================

// RequestLoan opens a request for the acting account.
// POST /api/loans
func (h *Handler) RequestLoan(w http.ResponseWriter, r *http.Request) {
	actor, ok := actingAccount(w, r)
	if !ok {
		return
	}
	var req CreateLoanRequest
	if !h.decode(w, r, &req) {
		return
	}

	loan, err := h.Loans.RequestLoan(r.Context(), actor, lending.BookID(req.BookID))
	if err != nil {
		h.fail(w, "Failed to request loan", err)
		return
	}
	writeJSON(w, http.StatusCreated, toLoanDTO(*loan))
}

// Walkup creates an active loan directly at the desk.
// POST /api/loans/walkup
func (h *Handler) Walkup(w http.ResponseWriter, r *http.Request) {
	var req WalkupRequest
	if !h.decode(w, r, &req) {
		return
	}

	var opts []lending.ApproveOption
	if req.DueDate != nil && !req.DueDate.IsZero() {
		opts = append(opts, lending.WithDueDate(*req.DueDate))
	}
	loan, err := h.Loans.CheckoutDirect(r.Context(), lending.AccountID(req.AccountID), lending.BookID(req.BookID), opts...)
	if err != nil {
		h.fail(w, "Failed to check out", err)
		return
	}
	writeJSON(w, http.StatusCreated, toLoanDTO(*loan))
}

// ApproveLoan activates a requested loan.
// POST /api/loans/{id}/approve
func (h *Handler) ApproveLoan(w http.ResponseWriter, r *http.Request) {
	var req ApproveRequest
	if !h.decodeOptional(w, r, &req) {
		return
	}

	var opts []lending.ApproveOption
	if req.DueDate != nil && !req.DueDate.IsZero() {
		opts = append(opts, lending.WithDueDate(*req.DueDate))
	}
	loan, err := h.Loans.ApproveLoan(r.Context(), loanID(r), opts...)
	if err != nil {
		h.fail(w, "Failed to approve loan", err)
		return
	}
	writeJSON(w, http.StatusOK, toLoanDTO(*loan))
}

// RejectLoan deletes a requested loan.
// POST /api/loans/{id}/reject
func (h *Handler) RejectLoan(w http.ResponseWriter, r *http.Request) {
	if err := h.Loans.RejectRequest(r.Context(), loanID(r)); err != nil {
		h.fail(w, "Failed to reject loan", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CancelLoan lets the borrower drop their own request.
// POST /api/loans/{id}/cancel
func (h *Handler) CancelLoan(w http.ResponseWriter, r *http.Request) {
	actor, ok := actingAccount(w, r)
	if !ok {
		return
	}
	if err := h.Loans.CancelRequested(r.Context(), loanID(r), actor); err != nil {
		h.fail(w, "Failed to cancel loan", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RequestReturn marks the copy as handed back, pending confirmation.
// POST /api/loans/{id}/return-request
func (h *Handler) RequestReturn(w http.ResponseWriter, r *http.Request) {
	actor, ok := actingAccount(w, r)
	if !ok {
		return
	}
	loan, err := h.Loans.RequestReturn(r.Context(), loanID(r), actor)
	if err != nil {
		h.fail(w, "Failed to request return", err)
		return
	}
	writeJSON(w, http.StatusOK, toLoanDTO(*loan))
}

// WithdrawReturn moves a pending return back to active.
// POST /api/loans/{id}/return-withdraw
func (h *Handler) WithdrawReturn(w http.ResponseWriter, r *http.Request) {
	actor, ok := actingAccount(w, r)
	if !ok {
		return
	}
	loan, err := h.Loans.WithdrawReturnRequest(r.Context(), loanID(r), actor)
	if err != nil {
		h.fail(w, "Failed to withdraw return request", err)
		return
	}
	writeJSON(w, http.StatusOK, toLoanDTO(*loan))
}

// ConfirmReturn closes a loan and freezes its fine.
// POST /api/loans/{id}/confirm-return
func (h *Handler) ConfirmReturn(w http.ResponseWriter, r *http.Request) {
	var req ConfirmReturnRequest
	if !h.decodeOptional(w, r, &req) {
		return
	}
	damage := lending.Damage(req.Damage)
	if damage == "" {
		damage = lending.DamageNone
	}

	loan, err := h.Loans.ConfirmReturn(r.Context(), loanID(r), damage)
	if err != nil {
		h.fail(w, "Failed to confirm return", err)
		return
	}
	writeJSON(w, http.StatusOK, toLoanDTO(*loan))
}

// DeleteClosedLoan removes a closed loan from the borrower's history.
// DELETE /api/loans/{id}
func (h *Handler) DeleteClosedLoan(w http.ResponseWriter, r *http.Request) {
	actor, ok := actingAccount(w, r)
	if !ok {
		return
	}
	if err := h.Loans.DeleteClosed(r.Context(), loanID(r), actor); err != nil {
		h.fail(w, "Failed to delete loan", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ForceDeleteLoan removes any loan and reconciles its book.
// DELETE /api/admin/loans/{id}
func (h *Handler) ForceDeleteLoan(w http.ResponseWriter, r *http.Request) {
	if err := h.Loans.ForceDeleteLoan(r.Context(), loanID(r)); err != nil {
		h.fail(w, "Failed to delete loan", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListPendingRequests returns requests awaiting a librarian.
// GET /api/loans/pending
func (h *Handler) ListPendingRequests(w http.ResponseWriter, r *http.Request) {
	loans, err := h.Loans.GetPendingRequests(r.Context())
	if err != nil {
		h.fail(w, "Failed to list pending requests", err)
		return
	}
	writeJSON(w, http.StatusOK, toLoanDTOs(loans))
}

// ListPendingReturns returns copies waiting for confirmation.
// GET /api/loans/pending-returns
func (h *Handler) ListPendingReturns(w http.ResponseWriter, r *http.Request) {
	loans, err := h.Loans.GetPendingReturns(r.Context())
	if err != nil {
		h.fail(w, "Failed to list pending returns", err)
		return
	}
	writeJSON(w, http.StatusOK, toLoanDTOs(loans))
}

// =============================================================================
// ACCOUNT VIEWS
// =============================================================================

// GetAccountLoans returns the books an account has out.
// GET /api/accounts/{id}/loans
func (h *Handler) GetAccountLoans(w http.ResponseWriter, r *http.Request) {
	views, err := h.Loans.GetActiveLoans(r.Context(), lending.AccountID(chi.URLParam(r, "id")))
	if err != nil {
		h.fail(w, "Failed to list loans", err)
		return
	}
	writeJSON(w, http.StatusOK, toLoanViewDTOs(views))
}

// GetAccountHistory returns an account's closed loans.
// GET /api/accounts/{id}/history
func (h *Handler) GetAccountHistory(w http.ResponseWriter, r *http.Request) {
	views, err := h.Loans.GetHistory(r.Context(), lending.AccountID(chi.URLParam(r, "id")))
	if err != nil {
		h.fail(w, "Failed to list history", err)
		return
	}
	writeJSON(w, http.StatusOK, toLoanViewDTOs(views))
}

// =============================================================================
// RECOMMENDATIONS
// =============================================================================

// AccountRecommendations suggests books from the account's history.
// GET /api/accounts/{id}/recommendations?limit=N
func (h *Handler) AccountRecommendations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := lending.AccountID(chi.URLParam(r, "id"))
	if _, err := h.Loans.Store.GetAccount(ctx, id); err != nil {
		h.fail(w, "Failed to load account", err)
		return
	}

	recs, err := h.Recs.ForAccount(ctx, id, queryLimit(r))
	if err != nil {
		h.fail(w, "Failed to compute recommendations", err)
		return
	}
	writeJSON(w, http.StatusOK, RecommendationsResponse{Items: nonNilRecs(recs)})
}

// BookRecommendations lists books borrowed together with one book.
// GET /api/books/{id}/recommendations?limit=N
func (h *Handler) BookRecommendations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := lending.BookID(chi.URLParam(r, "id"))
	if _, err := h.Loans.Store.GetBook(ctx, id); err != nil {
		h.fail(w, "Failed to load book", err)
		return
	}

	recs, err := h.Recs.ForBook(ctx, id, queryLimit(r))
	if err != nil {
		h.fail(w, "Failed to compute recommendations", err)
		return
	}
	writeJSON(w, http.StatusOK, RecommendationsResponse{Items: nonNilRecs(recs)})
}

// PopularBooks ranks books by loan count.
// GET /api/books/popular?limit=N
func (h *Handler) PopularBooks(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	counts, err := h.Recs.Popular(ctx, queryLimit(r))
	if err != nil {
		h.fail(w, "Failed to rank books", err)
		return
	}

	dtos := make([]PopularBookDTO, 0, len(counts))
	for _, c := range counts {
		dto := PopularBookDTO{BookID: string(c.BookID), Loans: c.Loans}
		if b, err := h.Loans.Store.GetBook(ctx, c.BookID); err == nil {
			dto.Title = b.Title
		}
		dtos = append(dtos, dto)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// VERSION
// =============================================================================

// GetVersion returns the change counter clients poll to refresh views.
// GET /api/version
func (h *Handler) GetVersion(w http.ResponseWriter, r *http.Request) {
	v, err := h.Loans.Version(r.Context())
	if err != nil {
		h.fail(w, "Failed to read version", err)
		return
	}
	writeJSON(w, http.StatusOK, VersionDTO{
		Version:    v,
		ServerTime: formatTimestamp(h.Loans.Clock.Now()),
	})
}

// =============================================================================
// CATALOG
// =============================================================================

// ListBooks returns the catalog.
// GET /api/books
func (h *Handler) ListBooks(w http.ResponseWriter, r *http.Request) {
	books, err := h.Loans.Store.ListBooks(r.Context())
	if err != nil {
		h.fail(w, "Failed to list books", err)
		return
	}
	dtos := make([]BookDTO, len(books))
	for i, b := range books {
		dtos[i] = toBookDTO(b)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateBook adds a book with every copy on the shelf.
// POST /api/books
func (h *Handler) CreateBook(w http.ResponseWriter, r *http.Request) {
	var req CreateBookRequest
	if !h.decode(w, r, &req) {
		return
	}

	book, err := h.Loans.AddBook(r.Context(), lending.Book{
		ID:          lending.BookID(req.ID),
		Title:       req.Title,
		Author:      req.Author,
		Categories:  req.Categories,
		Publisher:   req.Publisher,
		PublishYear: req.PublishYear,
		Price:       req.Price,
		Quantity:    req.Quantity,
		Description: req.Description,
	})
	if err != nil {
		h.fail(w, "Failed to create book", err)
		return
	}
	writeJSON(w, http.StatusCreated, toBookDTO(*book))
}

// SetBookQuantity changes the number of owned copies.
// PUT /api/books/{id}/quantity
func (h *Handler) SetBookQuantity(w http.ResponseWriter, r *http.Request) {
	var req SetQuantityRequest
	if !h.decode(w, r, &req) {
		return
	}

	book, err := h.Loans.SetQuantity(r.Context(), lending.BookID(chi.URLParam(r, "id")), *req.Quantity)
	if err != nil {
		h.fail(w, "Failed to set quantity", err)
		return
	}
	writeJSON(w, http.StatusOK, toBookDTO(*book))
}

// DeleteBook removes a book and its loans.
// DELETE /api/books/{id}
func (h *Handler) DeleteBook(w http.ResponseWriter, r *http.Request) {
	if err := h.Loans.DeleteBook(r.Context(), lending.BookID(chi.URLParam(r, "id"))); err != nil {
		h.fail(w, "Failed to delete book", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListAccounts returns every borrower.
// GET /api/accounts
func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.Loans.Store.ListAccounts(r.Context())
	if err != nil {
		h.fail(w, "Failed to list accounts", err)
		return
	}
	dtos := make([]AccountDTO, len(accounts))
	for i, a := range accounts {
		dtos[i] = toAccountDTO(a)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateAccount registers a borrower.
// POST /api/accounts
func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req CreateAccountRequest
	if !h.decode(w, r, &req) {
		return
	}

	acct, err := h.Loans.AddAccount(r.Context(), lending.Account{
		ID:       lending.AccountID(req.ID),
		Name:     req.Name,
		Email:    req.Email,
		Username: req.Username,
		Phone:    req.Phone,
		Class:    lending.UserClass(req.Class),
		Status:   lending.AccountStatus(req.Status),
	})
	if err != nil {
		h.fail(w, "Failed to create account", err)
		return
	}
	writeJSON(w, http.StatusCreated, toAccountDTO(*acct))
}

// DeleteAccount removes a borrower and returns their copies to the shelf.
// DELETE /api/accounts/{id}
func (h *Handler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	if err := h.Loans.DeleteAccount(r.Context(), lending.AccountID(chi.URLParam(r, "id"))); err != nil {
		h.fail(w, "Failed to delete account", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// ADMIN
// =============================================================================

// Reconcile recomputes every book's available count.
// POST /api/admin/reconcile
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	changed, err := h.Loans.ReconcileAll(r.Context())
	if err != nil {
		h.fail(w, "Reconciliation failed", err)
		return
	}
	if changed == nil {
		changed = []lending.ReconcileResult{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"corrected": changed})
}

// MineRules rebuilds the association rule table.
// POST /api/admin/mine
func (h *Handler) MineRules(w http.ResponseWriter, r *http.Request) {
	var req MineRequest
	if !h.decodeOptional(w, r, &req) {
		return
	}

	p := h.Recs.Params()
	if req.MinSupport != nil {
		p.MinSupport = *req.MinSupport
	}
	if req.MinConfidence != nil {
		p.MinConfidence = *req.MinConfidence
	}
	if req.MinLift != nil {
		p.MinLift = *req.MinLift
	}

	res, err := h.Recs.RunWith(r.Context(), p)
	if err != nil {
		h.fail(w, "Mining failed", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ListAssociationRules returns the stored recommendation rules.
// GET /api/admin/association-rules
func (h *Handler) ListAssociationRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.Recs.Rules(r.Context())
	if err != nil {
		h.fail(w, "Failed to list rules", err)
		return
	}
	dtos := make([]AssociationRuleDTO, len(rules))
	for i, rule := range rules {
		dtos[i] = toRuleDTO(rule)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetBorrowRules returns the loan-duration table in its JSON form.
// GET /api/admin/rules
func (h *Handler) GetBorrowRules(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.RuleFactory.ToJSON(h.Loans.Rules.Table()))
}

// PutBorrowRules validates and installs a new loan-duration table.
// PUT /api/admin/rules
func (h *Handler) PutBorrowRules(w http.ResponseWriter, r *http.Request) {
	var rj factory.RulesJSON
	if err := json.NewDecoder(r.Body).Decode(&rj); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON", "bad_request", err)
		return
	}
	table, err := h.RuleFactory.FromJSON(rj)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid rule table", "bad_request", err)
		return
	}

	if h.RuleStore != nil {
		if err := h.RuleStore.SaveBorrowRules(r.Context(), table); err != nil {
			h.fail(w, "Failed to save rules", err)
			return
		}
	}
	h.Loans.Rules.Replace(table)
	h.Log.Info().Int("categories", len(table.Categories)).Int("types", len(table.Types)).
		Msg("borrow rules replaced")
	writeJSON(w, http.StatusOK, h.RuleFactory.ToJSON(table))
}

// SendDueNotices runs the due-tomorrow reminder job once.
// POST /api/admin/due-notices
func (h *Handler) SendDueNotices(w http.ResponseWriter, r *http.Request) {
	res, err := h.Loans.SendDueReminders(r.Context())
	if err != nil {
		h.fail(w, "Failed to send reminders", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// =============================================================================
// HELPERS
// =============================================================================

// decode reads and validates a JSON body. It writes the 400 itself and
// returns false on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON", "bad_request", err)
		return false
	}
	if err := h.validate.Struct(v); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", "bad_request", err)
		return false
	}
	return true
}

// decodeOptional is decode for routes whose body may be absent.
func (h *Handler) decodeOptional(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	switch {
	case errors.Is(err, io.EOF):
		return true
	case err != nil:
		writeError(w, http.StatusBadRequest, "Invalid JSON", "bad_request", err)
		return false
	}
	if err := h.validate.Struct(v); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", "bad_request", err)
		return false
	}
	return true
}

// fail maps a service error to its status and logs server-side failures.
func (h *Handler) fail(w http.ResponseWriter, message string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.Log.Error().Err(err).Msg(message)
	}
	writeError(w, status, message, lending.Code(err), err)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, lending.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, lending.ErrNotOwner):
		return http.StatusForbidden
	case errors.Is(err, lending.ErrDuplicateLoan),
		errors.Is(err, lending.ErrLimitExceeded),
		errors.Is(err, lending.ErrOutOfStock),
		errors.Is(err, lending.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, lending.ErrPolicyViolation):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func actingAccount(w http.ResponseWriter, r *http.Request) (lending.AccountID, bool) {
	id := r.Header.Get(AccountHeader)
	if id == "" {
		writeError(w, http.StatusBadRequest, "Missing acting account",
			"bad_request", fmt.Errorf("%s header is required", AccountHeader))
		return "", false
	}
	return lending.AccountID(id), true
}

func loanID(r *http.Request) lending.LoanID {
	return lending.LoanID(chi.URLParam(r, "id"))
}

func queryLimit(r *http.Request) int {
	if n, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && n > 0 {
		return n
	}
	return defaultListLimit
}

func toLoanViewDTOs(views []lending.LoanView) []LoanDTO {
	out := make([]LoanDTO, len(views))
	for i, v := range views {
		out[i] = toLoanViewDTO(v)
	}
	return out
}

func nonNilRecs(recs []recommend.Recommendation) []recommend.Recommendation {
	if recs == nil {
		return []recommend.Recommendation{}
	}
	return recs
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message, code string, err error) {
	resp := ErrorResponse{Error: message, Code: code}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
