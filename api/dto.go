/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the lending model from the external API contract.

NAMING CONVENTION:
  - *DTO:      Response types returned to clients
  - *Request:  Request body types from clients
  - *Response: Wrappers around lists or computed results

VALIDATION:
  Request types carry go-playground/validator tags. decodeAndValidate in
  handlers.go rejects a body that fails them with 400 before any service
  call. Business rules (limits, stock, due dates) stay in the service.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/rules.go: RulesJSON is the rule table wire format
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/lending-engine/lending"
	"github.com/warp/lending-engine/recommend"
)

// =============================================================================
// CATALOG
// =============================================================================

type BookDTO struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Author      string          `json:"author,omitempty"`
	Categories  []string        `json:"categories"`
	Publisher   string          `json:"publisher,omitempty"`
	PublishYear int             `json:"publish_year,omitempty"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int             `json:"quantity"`
	Available   int             `json:"available"`
	Description string          `json:"description,omitempty"`
	CreatedAt   string          `json:"created_at,omitempty"`
}

type CreateBookRequest struct {
	ID          string          `json:"id"`
	Title       string          `json:"title" validate:"required"`
	Author      string          `json:"author"`
	Categories  []string        `json:"categories" validate:"dive,required"`
	Publisher   string          `json:"publisher"`
	PublishYear int             `json:"publish_year" validate:"min=0"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int             `json:"quantity" validate:"min=0"`
	Description string          `json:"description"`
}

type SetQuantityRequest struct {
	Quantity *int `json:"quantity" validate:"required,min=0"`
}

type AccountDTO struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email,omitempty"`
	Username  string `json:"username,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Status    string `json:"status"`
	Class     string `json:"class"`
	CreatedAt string `json:"created_at,omitempty"`
}

type CreateAccountRequest struct {
	ID       string `json:"id"`
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"omitempty,email"`
	Username string `json:"username"`
	Phone    string `json:"phone"`
	Class    string `json:"class" validate:"omitempty,oneof=student staff lecturer administrator"`
	Status   string `json:"status" validate:"omitempty,oneof=active inactive"`
}

// =============================================================================
// LOANS
// =============================================================================

type LoanDTO struct {
	ID           string           `json:"id"`
	AccountID    string           `json:"account_id"`
	BookID       string           `json:"book_id"`
	Status       string           `json:"status"`
	BorrowDate   *lending.Date    `json:"borrow_date"`
	DueDate      *lending.Date    `json:"due_date"`
	ReturnDate   *lending.Date    `json:"return_date"`
	Damage       string           `json:"damage"`
	Fine         decimal.Decimal  `json:"fine"`
	Notified     bool             `json:"notified"`
	CurrentDebt  *decimal.Decimal `json:"current_debt,omitempty"`
	DaysUntilDue *int             `json:"days_until_due,omitempty"`
	CreatedAt    string           `json:"created_at"`
	UpdatedAt    string           `json:"updated_at"`
}

// CreateLoanRequest opens a request for the acting account.
type CreateLoanRequest struct {
	BookID string `json:"book_id" validate:"required"`
}

// WalkupRequest is a librarian checkout on an account's behalf.
type WalkupRequest struct {
	AccountID string        `json:"account_id" validate:"required"`
	BookID    string        `json:"book_id" validate:"required"`
	DueDate   *lending.Date `json:"due_date"`
}

type ApproveRequest struct {
	DueDate *lending.Date `json:"due_date"`
}

type ConfirmReturnRequest struct {
	Damage string `json:"damage" validate:"omitempty,oneof=none light heavy lost"`
}

// =============================================================================
// VERSION / RECOMMENDATIONS
// =============================================================================

type VersionDTO struct {
	Version    int64  `json:"version"`
	ServerTime string `json:"server_time"`
}

type RecommendationsResponse struct {
	Items []recommend.Recommendation `json:"items"`
}

type PopularBookDTO struct {
	BookID string `json:"book_id"`
	Title  string `json:"title,omitempty"`
	Loans  int    `json:"loans"`
}

type AssociationRuleDTO struct {
	Antecedent  string  `json:"antecedent"`
	Consequent  string  `json:"consequent"`
	Support     float64 `json:"support"`
	Confidence  float64 `json:"confidence"`
	Lift        float64 `json:"lift"`
	GeneratedAt string  `json:"generated_at"`
}

// MineRequest optionally overrides the configured thresholds for one run.
type MineRequest struct {
	MinSupport    *float64 `json:"min_support" validate:"omitempty,gt=0,lte=1"`
	MinConfidence *float64 `json:"min_confidence" validate:"omitempty,gte=0,lte=1"`
	MinLift       *float64 `json:"min_lift" validate:"omitempty,gte=0"`
}

// =============================================================================
// SCENARIOS / ERRORS
// =============================================================================

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toBookDTO(b lending.Book) BookDTO {
	cats := b.Categories
	if cats == nil {
		cats = []string{}
	}
	return BookDTO{
		ID:          string(b.ID),
		Title:       b.Title,
		Author:      b.Author,
		Categories:  cats,
		Publisher:   b.Publisher,
		PublishYear: b.PublishYear,
		Price:       b.Price,
		Quantity:    b.Quantity,
		Available:   b.Available,
		Description: b.Description,
		CreatedAt:   formatTimestamp(b.CreatedAt),
	}
}

func toAccountDTO(a lending.Account) AccountDTO {
	return AccountDTO{
		ID:        string(a.ID),
		Name:      a.Name,
		Email:     a.Email,
		Username:  a.Username,
		Phone:     a.Phone,
		Status:    string(a.Status),
		Class:     string(a.Class),
		CreatedAt: formatTimestamp(a.CreatedAt),
	}
}

func toLoanDTO(l lending.Loan) LoanDTO {
	dto := LoanDTO{
		ID:         string(l.ID),
		AccountID:  string(l.AccountID),
		BookID:     string(l.BookID),
		Status:     string(l.Status),
		DueDate:    l.DueDate,
		ReturnDate: l.ReturnDate,
		Damage:     string(l.Damage),
		Fine:       l.Fine,
		Notified:   l.Notified,
		CreatedAt:  formatTimestamp(l.CreatedAt),
		UpdatedAt:  formatTimestamp(l.UpdatedAt),
	}
	if !l.BorrowDate.IsZero() {
		dto.BorrowDate = l.BorrowDate.Ptr()
	}
	return dto
}

func toLoanViewDTO(v lending.LoanView) LoanDTO {
	dto := toLoanDTO(v.Loan)
	debt := v.CurrentDebt
	dto.CurrentDebt = &debt
	dto.DaysUntilDue = v.DaysUntilDue
	return dto
}

func toLoanDTOs(loans []lending.Loan) []LoanDTO {
	out := make([]LoanDTO, len(loans))
	for i, l := range loans {
		out[i] = toLoanDTO(l)
	}
	return out
}

func toRuleDTO(r lending.AssociationRule) AssociationRuleDTO {
	return AssociationRuleDTO{
		Antecedent:  string(r.Antecedent),
		Consequent:  string(r.Consequent),
		Support:     r.Support,
		Confidence:  r.Confidence,
		Lift:        r.Lift,
		GeneratedAt: formatTimestamp(r.GeneratedAt),
	}
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
