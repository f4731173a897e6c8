package lending

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// NOTICES - Outbound events for the notification collaborator
// =============================================================================

type NoticeKind string

const (
	NoticeApproved NoticeKind = "approved"
	NoticeReturned NoticeKind = "returned"
	NoticeDueSoon  NoticeKind = "due_soon"
)

// Notice is emitted after a transition commits. Approved and due-soon
// notices carry DueDate; returned notices carry Fine.
type Notice struct {
	Kind         NoticeKind
	LoanID       LoanID
	AccountID    AccountID
	AccountName  string
	AccountEmail string
	BookID       BookID
	BookTitle    string
	DueDate      *Date
	Fine         decimal.Decimal
	At           time.Time
}

// NoticeDispatcher hands notices to delivery. A dispatch error never
// rolls back the transition that produced the notice.
type NoticeDispatcher interface {
	Dispatch(ctx context.Context, n Notice) error
}

// NoticeFunc adapts a function to NoticeDispatcher.
type NoticeFunc func(ctx context.Context, n Notice) error

func (f NoticeFunc) Dispatch(ctx context.Context, n Notice) error { return f(ctx, n) }

func newNotice(kind NoticeKind, l *Loan, a *Account, b *Book, at time.Time) Notice {
	n := Notice{
		Kind:         kind,
		LoanID:       l.ID,
		AccountID:    a.ID,
		AccountName:  a.Name,
		AccountEmail: a.Email,
		BookID:       b.ID,
		BookTitle:    b.Title,
		Fine:         decimal.Zero,
		At:           at,
	}
	switch kind {
	case NoticeApproved, NoticeDueSoon:
		if l.DueDate != nil {
			d := *l.DueDate
			n.DueDate = &d
		}
	case NoticeReturned:
		n.Fine = l.Fine
	}
	return n
}
