package lending

import (
	"context"
)

// =============================================================================
// DUE-SOON REMINDERS
// =============================================================================

// ReminderResult summarises one reminder run.
type ReminderResult struct {
	DueOn   Date `json:"due_on"`
	Sent    int  `json:"sent"`
	Skipped int  `json:"skipped"`
	Failed  int  `json:"failed"`
}

// SendDueReminders notifies borrowers whose active loans are due tomorrow.
// Accounts without an email and loans already notified are skipped. A loan
// is marked notified only after its notice was accepted, so failed
// deliveries are retried on the next run.
func (s *LoanService) SendDueReminders(ctx context.Context) (ReminderResult, error) {
	res := ReminderResult{DueOn: s.Clock.Today().AddDays(1)}

	loans, err := s.Store.FindLoans(ctx, LoanFilter{Statuses: []LoanStatus{StatusActive}, DueOn: &res.DueOn})
	if err != nil {
		return res, err
	}

	for i := range loans {
		l := &loans[i]
		if l.Notified {
			res.Skipped++
			continue
		}
		acct, book, err := loadParties(ctx, s.Store, l.AccountID, l.BookID)
		if err != nil {
			return res, err
		}
		if acct.Email == "" {
			res.Skipped++
			continue
		}

		if s.Notices != nil {
			if err := s.Notices.Dispatch(ctx, newNotice(NoticeDueSoon, l, acct, book, s.Clock.Now())); err != nil {
				s.Log.Warn().Err(err).Str("loan_id", string(l.ID)).Msg("due-soon notice failed")
				res.Failed++
				continue
			}
		}

		err = s.transition(ctx, "mark_notified", func(tx Store) ([]Notice, error) {
			cur, err := tx.GetLoan(ctx, l.ID)
			if err != nil {
				return nil, err
			}
			if cur.Status != StatusActive {
				return nil, &TransitionError{LoanID: l.ID, Op: "mark notified", From: cur.Status}
			}
			cur.Notified = true
			cur.UpdatedAt = s.Clock.Now()
			return nil, tx.UpdateLoan(ctx, *cur)
		})
		if err != nil {
			if IsClientError(err) {
				res.Skipped++
				continue
			}
			return res, err
		}
		res.Sent++
	}

	s.Log.Info().Str("due_on", res.DueOn.String()).Int("sent", res.Sent).
		Int("skipped", res.Skipped).Int("failed", res.Failed).Msg("due-soon reminders")
	return res, nil
}
