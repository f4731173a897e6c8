package lending

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// =============================================================================
// CATALOG MAINTENANCE - Books and accounts as seen by the engine
// =============================================================================

// AddBook registers a book with all copies on the shelf.
func (s *LoanService) AddBook(ctx context.Context, b Book) (*Book, error) {
	if b.Title == "" {
		return nil, &PolicyError{Rule: "book", Message: "title is required"}
	}
	if b.Quantity < 0 {
		return nil, &PolicyError{Rule: "book", Message: "quantity must not be negative"}
	}
	if b.Price.IsNegative() {
		return nil, &PolicyError{Rule: "book", Message: "price must not be negative"}
	}
	if b.ID == "" {
		b.ID = BookID(uuid.NewString())
	}
	b.Available = b.Quantity
	b.CreatedAt = s.Clock.Now()

	if err := s.Store.SaveBook(ctx, b); err != nil {
		return nil, err
	}
	return &b, nil
}

// SetQuantity changes the number of owned copies. It cannot drop below the
// copies currently out.
func (s *LoanService) SetQuantity(ctx context.Context, id BookID, quantity int) (*Book, error) {
	var book *Book
	err := s.Store.WithTx(ctx, func(tx Store) error {
		b, err := tx.GetBook(ctx, id)
		if err != nil {
			return err
		}
		holding, err := tx.CountLoans(ctx, LoanFilter{BookID: id, Statuses: HoldingStatuses()})
		if err != nil {
			return err
		}
		if quantity < holding {
			return &PolicyError{Rule: "quantity", Message: fmt.Sprintf("%d copies are out, quantity %d is too low", holding, quantity)}
		}
		b.Quantity = quantity
		b.Available = quantity - holding
		if err := tx.SaveBook(ctx, *b); err != nil {
			return err
		}
		book = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return book, nil
}

// DeleteBook removes a book and all its loans.
func (s *LoanService) DeleteBook(ctx context.Context, id BookID) error {
	return s.transition(ctx, "delete_book", func(tx Store) ([]Notice, error) {
		if _, err := tx.GetBook(ctx, id); err != nil {
			return nil, err
		}
		return nil, tx.DeleteBook(ctx, id)
	})
}

// AddAccount registers a borrower. Class defaults to student and status to active.
func (s *LoanService) AddAccount(ctx context.Context, a Account) (*Account, error) {
	if a.Name == "" {
		return nil, &PolicyError{Rule: "account", Message: "name is required"}
	}
	if a.ID == "" {
		a.ID = AccountID(uuid.NewString())
	}
	if a.Class == "" {
		a.Class = ClassStudent
	}
	if a.Status == "" {
		a.Status = AccountActive
	}
	a.CreatedAt = s.Clock.Now()

	if err := s.Store.SaveAccount(ctx, a); err != nil {
		return nil, err
	}
	return &a, nil
}

// DeleteAccount removes an account and its loans, then reconciles every
// book the account was holding.
func (s *LoanService) DeleteAccount(ctx context.Context, id AccountID) error {
	return s.transition(ctx, "delete_account", func(tx Store) ([]Notice, error) {
		if _, err := tx.GetAccount(ctx, id); err != nil {
			return nil, err
		}
		held, err := tx.FindLoans(ctx, LoanFilter{AccountID: id, Statuses: HoldingStatuses()})
		if err != nil {
			return nil, err
		}
		if err := tx.DeleteAccount(ctx, id); err != nil {
			return nil, err
		}
		seen := make(map[BookID]bool, len(held))
		for _, l := range held {
			if seen[l.BookID] {
				continue
			}
			seen[l.BookID] = true
			if _, err := reconcileBook(ctx, tx, l.BookID, s.Log); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
}
