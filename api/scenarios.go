/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:
  Populates the store with realistic library data for demos, frontend
  work and manual testing. Every record goes through the LoanService, so
  seeded data obeys the same invariants as live traffic.

AVAILABLE SCENARIOS:
  empty:          Nothing but the borrow rules
  small-library:  A handful of books and borrowers, no loans
  busy-semester:  Three months of closed history (enough baskets for
                  mining), plus active, overdue, due-tomorrow,
                  pending-return and requested loans

HOW SCENARIOS WORK:
 1. Reset the store (books, accounts, loans, association rules)
 2. Create books and accounts
 3. Replay history with a clock moved into the past
 4. Leave current loans in every state

USAGE VIA API:
  POST /api/scenarios/load
  {"scenario_id": "busy-semester"}

USAGE VIA CLI:
  libctl seed busy-semester

NOTE:
  Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Handler wiring
  - cmd/libctl: seed command
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/lending-engine/lending"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "empty",
		Name:        "Empty Library",
		Description: "No books, accounts or loans",
	},
	{
		ID:          "small-library",
		Name:        "Small Library",
		Description: "Eight books and six borrowers, nothing on loan",
	},
	{
		ID:          "busy-semester",
		Name:        "Busy Semester",
		Description: "Three months of history plus loans in every state",
	},
}

// Scenarios lists the available demo scenarios.
func Scenarios() []ScenarioDTO {
	out := make([]ScenarioDTO, len(scenarios))
	copy(out, scenarios)
	return out
}

// ListScenarios returns available demo scenarios.
// GET /api/scenarios
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Scenarios())
}

// GetCurrentScenario returns the last loaded scenario.
// GET /api/scenarios/current
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"scenario": current})
}

// LoadScenario resets the store and seeds a scenario.
// POST /api/scenarios/load
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	if h.Resetter == nil {
		writeError(w, http.StatusNotImplemented, "Scenario loading is disabled", "disabled", nil)
		return
	}
	var req LoadScenarioRequest
	if !h.decode(w, r, &req) {
		return
	}
	if !knownScenario(req.ScenarioID) {
		writeError(w, http.StatusBadRequest, "Unknown scenario", "bad_request",
			fmt.Errorf("scenario %q", req.ScenarioID))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.currentScenario = ""

	if err := SeedScenario(r.Context(), h.Loans, h.Resetter, req.ScenarioID); err != nil {
		h.fail(w, "Failed to load scenario", err)
		return
	}
	h.currentScenario = req.ScenarioID
	h.Log.Info().Str("scenario", req.ScenarioID).Msg("scenario loaded")

	// Seeded history is mined right away so recommendations show up.
	if h.Recs != nil {
		if _, err := h.Recs.Run(r.Context()); err != nil {
			h.Log.Warn().Err(err).Msg("mining after scenario load failed")
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

func knownScenario(id string) bool {
	for _, s := range scenarios {
		if s.ID == id {
			return true
		}
	}
	return false
}

// SeedScenario resets the store and loads the named scenario through loans.
func SeedScenario(ctx context.Context, loans *lending.LoanService, resetter Resetter, id string) error {
	if !knownScenario(id) {
		return fmt.Errorf("unknown scenario %q", id)
	}
	if err := resetter.Reset(ctx); err != nil {
		return fmt.Errorf("reset store: %w", err)
	}

	s := newSeeder(loans)
	switch id {
	case "empty":
		return nil
	case "small-library":
		return s.catalog(ctx)
	case "busy-semester":
		if err := s.catalog(ctx); err != nil {
			return err
		}
		return s.semester(ctx)
	}
	return nil
}

// =============================================================================
// SEEDER
// =============================================================================

// seeder drives a copy of the service whose clock it can move, so history
// lands in past months. Notices are not sent for seeded loans.
type seeder struct {
	svc   *lending.LoanService
	today time.Time
	at    time.Time
}

func newSeeder(loans *lending.LoanService) *seeder {
	s := &seeder{today: loans.Clock.Now()}
	s.at = s.today

	svc := *loans
	svc.Notices = nil
	svc.Clock = func() time.Time { return s.at }
	s.svc = &svc
	return s
}

// daysAgo moves the seeding clock to n days before today.
func (s *seeder) daysAgo(n int) {
	s.at = s.today.AddDate(0, 0, -n)
}

var demoBooks = []lending.Book{
	{ID: "bk-algo", Title: "Introduction to Algorithms", Author: "Cormen, Leiserson, Rivest, Stein", Categories: []string{"Giáo trình CNTT"}, Publisher: "MIT Press", PublishYear: 2009, Price: decimal.NewFromInt(450000), Quantity: 4},
	{ID: "bk-ds", Title: "Data Structures and Algorithms in Go", Author: "Hemant Jain", Categories: []string{"Textbook"}, PublishYear: 2017, Price: decimal.NewFromInt(220000), Quantity: 3},
	{ID: "bk-db", Title: "Database System Concepts", Author: "Silberschatz, Korth, Sudarshan", Categories: []string{"Textbook", "Databases"}, PublishYear: 2019, Price: decimal.NewFromInt(380000), Quantity: 3},
	{ID: "bk-net", Title: "Computer Networking: A Top-Down Approach", Author: "Kurose, Ross", Categories: []string{"Textbook"}, PublishYear: 2016, Price: decimal.NewFromInt(320000), Quantity: 2},
	{ID: "bk-os", Title: "Operating System Concepts", Author: "Silberschatz, Galvin, Gagne", Categories: []string{"Textbook"}, PublishYear: 2018, Price: decimal.NewFromInt(350000), Quantity: 2},
	{ID: "bk-dict", Title: "Oxford Advanced Learner's Dictionary", Author: "A. S. Hornby", Categories: []string{"Dictionary"}, PublishYear: 2020, Price: decimal.NewFromInt(300000), Quantity: 2},
	{ID: "bk-norwegian", Title: "Norwegian Wood", Author: "Haruki Murakami", Categories: []string{"Novel"}, PublishYear: 1987, Price: decimal.NewFromInt(120000), Quantity: 2},
	{ID: "bk-prince", Title: "The Little Prince", Author: "Antoine de Saint-Exupéry", Categories: []string{"Fiction"}, PublishYear: 1943, Price: decimal.NewFromInt(80000), Quantity: 3},
}

var demoAccounts = []lending.Account{
	{ID: "acc-an", Name: "Nguyen Van An", Email: "an@example.edu", Username: "an", Class: lending.ClassStudent},
	{ID: "acc-binh", Name: "Tran Thi Binh", Email: "binh@example.edu", Username: "binh", Class: lending.ClassStudent},
	{ID: "acc-chi", Name: "Le Minh Chi", Email: "chi@example.edu", Username: "chi", Class: lending.ClassStudent},
	{ID: "acc-dung", Name: "Pham Quoc Dung", Username: "dung", Class: lending.ClassStudent},
	{ID: "acc-hoa", Name: "Dr. Vo Thi Hoa", Email: "hoa@example.edu", Username: "hoa", Class: lending.ClassLecturer},
	{ID: "acc-khanh", Name: "Do Khanh", Email: "khanh@example.edu", Username: "khanh", Class: lending.ClassStudent, Status: lending.AccountInactive},
}

func (s *seeder) catalog(ctx context.Context) error {
	for _, b := range demoBooks {
		if _, err := s.svc.AddBook(ctx, b); err != nil {
			return fmt.Errorf("book %s: %w", b.ID, err)
		}
	}
	for _, a := range demoAccounts {
		if _, err := s.svc.AddAccount(ctx, a); err != nil {
			return fmt.Errorf("account %s: %w", a.ID, err)
		}
	}
	return nil
}

// pastBasket is one account borrowing several books on the same day.
type pastBasket struct {
	daysAgo int
	account lending.AccountID
	books   []lending.BookID
	damage  lending.Damage
}

// Baskets fall in three distinct months so (account, month) grouping
// yields one basket each.
var semesterHistory = []pastBasket{
	{95, "acc-an", []lending.BookID{"bk-algo", "bk-ds"}, lending.DamageNone},
	{95, "acc-binh", []lending.BookID{"bk-algo", "bk-ds", "bk-db"}, lending.DamageNone},
	{95, "acc-chi", []lending.BookID{"bk-norwegian", "bk-prince"}, lending.DamageNone},
	{64, "acc-an", []lending.BookID{"bk-db", "bk-net"}, lending.DamageNone},
	{64, "acc-dung", []lending.BookID{"bk-algo", "bk-ds"}, lending.DamageLight},
	{64, "acc-hoa", []lending.BookID{"bk-net", "bk-os"}, lending.DamageNone},
	{33, "acc-binh", []lending.BookID{"bk-norwegian", "bk-prince"}, lending.DamageNone},
	{33, "acc-chi", []lending.BookID{"bk-algo", "bk-db"}, lending.DamageNone},
	{33, "acc-hoa", []lending.BookID{"bk-algo", "bk-ds", "bk-os"}, lending.DamageNone},
}

func (s *seeder) semester(ctx context.Context) error {
	for _, pb := range semesterHistory {
		if err := s.closedBasket(ctx, pb); err != nil {
			return err
		}
	}

	// Current loans, one per interesting state.
	if _, err := s.activeSince(ctx, 10, "acc-an", "bk-algo"); err != nil {
		return err
	}
	// Reference for a student is 7 days: overdue by 13.
	if _, err := s.activeSince(ctx, 20, "acc-binh", "bk-dict"); err != nil {
		return err
	}
	// Novel for a student is 14 days: due tomorrow.
	if _, err := s.activeSince(ctx, 13, "acc-chi", "bk-norwegian"); err != nil {
		return err
	}
	pending, err := s.activeSince(ctx, 5, "acc-dung", "bk-db")
	if err != nil {
		return err
	}
	s.daysAgo(0)
	if _, err := s.svc.RequestReturn(ctx, pending.ID, pending.AccountID); err != nil {
		return fmt.Errorf("return request: %w", err)
	}
	if _, err := s.svc.RequestLoan(ctx, "acc-an", "bk-os"); err != nil {
		return fmt.Errorf("request: %w", err)
	}
	if _, err := s.svc.RequestLoan(ctx, "acc-hoa", "bk-prince"); err != nil {
		return fmt.Errorf("request: %w", err)
	}
	return nil
}

// closedBasket checks every book out on the basket's day and confirms
// their return a week later.
func (s *seeder) closedBasket(ctx context.Context, pb pastBasket) error {
	s.daysAgo(pb.daysAgo)
	ids := make([]lending.LoanID, 0, len(pb.books))
	for _, b := range pb.books {
		l, err := s.svc.CheckoutDirect(ctx, pb.account, b)
		if err != nil {
			return fmt.Errorf("history %s/%s: %w", pb.account, b, err)
		}
		ids = append(ids, l.ID)
	}

	s.daysAgo(pb.daysAgo - 7)
	for _, id := range ids {
		if _, err := s.svc.RequestReturn(ctx, id, pb.account); err != nil {
			return fmt.Errorf("history return %s: %w", id, err)
		}
		if _, err := s.svc.ConfirmReturn(ctx, id, pb.damage); err != nil {
			return fmt.Errorf("history confirm %s: %w", id, err)
		}
	}
	return nil
}

func (s *seeder) activeSince(ctx context.Context, days int, account lending.AccountID, book lending.BookID) (*lending.Loan, error) {
	s.daysAgo(days)
	l, err := s.svc.CheckoutDirect(ctx, account, book)
	if err != nil {
		return nil, fmt.Errorf("checkout %s/%s: %w", account, book, err)
	}
	return l, nil
}
