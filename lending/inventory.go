/*
inventory.go - Inventory ledger reconciliation

PURPOSE:
  Book.Available is a cached count. The source of truth is

    available = quantity − count(loans on book in active | pending-return)

  Normal transitions keep the cache in step. Reconcile recomputes it after
  out-of-band changes: admin deletes, account/book cascades, quantity
  edits, or data imported from elsewhere.

ANOMALIES:
  More holding loans than copies yields a negative count. That is clamped
  to zero and reported as a data-integrity warning (log + metric), never
  as a request error.

SEE ALSO:
  - service.go: ForceDeleteLoan, DeleteAccount and SetQuantity reconcile
*/
package lending

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/warp/lending-engine/metrics"
)

// ReconcileResult describes one book's recomputation.
type ReconcileResult struct {
	BookID   BookID `json:"book_id"`
	Quantity int    `json:"quantity"`
	Holding  int    `json:"holding"`
	Before   int    `json:"before"`
	After    int    `json:"after"`
	Clamped  bool   `json:"clamped"`
}

// Changed reports whether the cached count was corrected.
func (r ReconcileResult) Changed() bool { return r.Before != r.After }

// Reconcile recomputes one book's available count.
func (s *LoanService) Reconcile(ctx context.Context, id BookID) (ReconcileResult, error) {
	var res ReconcileResult
	err := s.Store.WithTx(ctx, func(tx Store) error {
		r, err := reconcileBook(ctx, tx, id, s.Log)
		res = r
		return err
	})
	return res, err
}

// ReconcileAll recomputes every book and returns the ones that changed.
func (s *LoanService) ReconcileAll(ctx context.Context) ([]ReconcileResult, error) {
	var changed []ReconcileResult
	err := s.Store.WithTx(ctx, func(tx Store) error {
		books, err := tx.ListBooks(ctx)
		if err != nil {
			return err
		}
		for _, b := range books {
			r, err := reconcileBook(ctx, tx, b.ID, s.Log)
			if err != nil {
				return err
			}
			if r.Changed() || r.Clamped {
				changed = append(changed, r)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.Log.Info().Int("corrected", len(changed)).Msg("inventory reconciled")
	return changed, nil
}

func reconcileBook(ctx context.Context, tx Store, id BookID, log zerolog.Logger) (ReconcileResult, error) {
	b, err := tx.GetBook(ctx, id)
	if err != nil {
		return ReconcileResult{}, err
	}
	holding, err := tx.CountLoans(ctx, LoanFilter{BookID: id, Statuses: HoldingStatuses()})
	if err != nil {
		return ReconcileResult{}, err
	}

	res := ReconcileResult{
		BookID:   id,
		Quantity: b.Quantity,
		Holding:  holding,
		Before:   b.Available,
		After:    b.Quantity - holding,
	}
	if res.After < 0 {
		res.After = 0
		res.Clamped = true
		metrics.InventoryClamped.Inc()
		log.Warn().Str("book_id", string(id)).Int("quantity", b.Quantity).Int("holding", holding).
			Msg("more copies out than owned; available clamped to zero")
	}
	if res.After != res.Before {
		if err := tx.SetAvailable(ctx, id, res.After); err != nil {
			return ReconcileResult{}, err
		}
	}
	return res, nil
}
