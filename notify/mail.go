/*
Package notify delivers lending notices to borrowers.

FLOW:
  LoanService ──Dispatch──▶ Queue (watermill gochannel, topic library.notices)
                               │
                               ▼
                            Worker ──Compose──▶ Mailer (behind a circuit breaker)

  The service dispatches only after a transition commits. The queue
  decouples the request path from mail delivery; a slow or failing mail
  transport never blocks or rolls back a loan change. The worker acks
  every message, so a failed delivery is logged and counted, not retried.

SEE ALSO:
  - lending/notice.go:    Notice and NoticeDispatcher
  - lending/reminders.go: due-soon selection
*/
package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/warp/lending-engine/lending"
)

// displayDate is the day format used in message bodies.
const displayDate = "02/01/2006"

// Mail is one composed message.
type Mail struct {
	To      string
	Subject string
	Body    string
}

// Mailer is the outbound mail transport.
type Mailer interface {
	Send(ctx context.Context, m Mail) error
}

// MailerFunc adapts a function to Mailer.
type MailerFunc func(ctx context.Context, m Mail) error

func (f MailerFunc) Send(ctx context.Context, m Mail) error { return f(ctx, m) }

// LogMailer writes mail to the log instead of sending it.
type LogMailer struct {
	Log zerolog.Logger
}

func (l LogMailer) Send(_ context.Context, m Mail) error {
	l.Log.Info().Str("to", m.To).Str("subject", m.Subject).Msg("mail")
	return nil
}

// Compose renders the mail for n. It returns false when the account has
// no email address.
func Compose(n lending.Notice) (Mail, bool) {
	if strings.TrimSpace(n.AccountEmail) == "" {
		return Mail{}, false
	}

	var subject string
	var b strings.Builder
	fmt.Fprintf(&b, "Hello %s,\n\n", n.AccountName)

	switch n.Kind {
	case lending.NoticeApproved:
		subject = fmt.Sprintf("Loan approved: '%s'", n.BookTitle)
		fmt.Fprintf(&b, "Your request to borrow '%s' has been approved.\n", n.BookTitle)
		if n.DueDate != nil {
			fmt.Fprintf(&b, "Please return it by %s.\n", n.DueDate.Time.Format(displayDate))
		}
	case lending.NoticeDueSoon:
		subject = fmt.Sprintf("Reminder: '%s' is due tomorrow", n.BookTitle)
		fmt.Fprintf(&b, "The book '%s' is due back tomorrow", n.BookTitle)
		if n.DueDate != nil {
			fmt.Fprintf(&b, " (%s)", n.DueDate.Time.Format(displayDate))
		}
		b.WriteString(".\nPlease return it on time to avoid an overdue fine.\n")
	case lending.NoticeReturned:
		subject = fmt.Sprintf("Return confirmed: '%s'", n.BookTitle)
		fmt.Fprintf(&b, "We have received '%s'. Thank you.\n", n.BookTitle)
		if n.Fine.IsPositive() {
			fmt.Fprintf(&b, "A fine of %s applies to this loan.\n", n.Fine.StringFixed(0))
		}
	default:
		subject = fmt.Sprintf("Library notice: '%s'", n.BookTitle)
		fmt.Fprintf(&b, "There is an update on your loan of '%s'.\n", n.BookTitle)
	}

	b.WriteString("\nThe Library\n")
	return Mail{To: n.AccountEmail, Subject: subject, Body: b.String()}, true
}
