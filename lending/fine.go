/*
fine.go - Fine calculation

PURPOSE:
  Computes what a borrower owes for a loan:

    Fine = LateFee + DamageFee

  LateFee   = max(0, end − due) days × PerDayRate
              end = return date for closed loans, today otherwise
  DamageFee = floor(price × rate(damage))
              none 0%, light 20%, heavy 50%, lost 100%

PERSISTED vs ADVISORY:
  Only ConfirmReturn writes a fine to the loan. For open loans the value
  from CurrentDebt is shown to the borrower and never stored.

PRECISION:
  Prices, rates and fines are decimal.Decimal in whole currency units.
  Damage percentages are truncated (floor), never rounded up.

SEE ALSO:
  - service.go: ConfirmReturn persists Fine
*/
package lending

import "github.com/shopspring/decimal"

// DefaultFinePerDay is the late fee per overdue day, in currency units.
var DefaultFinePerDay = decimal.NewFromInt(3000)

var damageRates = map[Damage]decimal.Decimal{
	DamageNone:  decimal.Zero,
	DamageLight: decimal.NewFromFloat(0.2),
	DamageHeavy: decimal.NewFromFloat(0.5),
	DamageLost:  decimal.NewFromInt(1),
}

// FineCalculator is a pure function of a loan, the book price and a date.
type FineCalculator struct {
	PerDayRate decimal.Decimal
}

func NewFineCalculator(perDay decimal.Decimal) FineCalculator {
	return FineCalculator{PerDayRate: perDay}
}

// OverdueDays returns how many days past due the loan is at end.
func OverdueDays(l *Loan, end Date) int {
	if l.DueDate == nil || end.IsZero() {
		return 0
	}
	days := l.DueDate.DaysUntil(end)
	if days < 0 {
		return 0
	}
	return days
}

// LateFee is OverdueDays × PerDayRate. The end date is the loan's return
// date once one is recorded (pending-return or closed) and today for
// active loans.
func (fc FineCalculator) LateFee(l *Loan, today Date) decimal.Decimal {
	end := today
	if l.Status != StatusActive && l.ReturnDate != nil {
		end = *l.ReturnDate
	}
	return fc.PerDayRate.Mul(decimal.NewFromInt(int64(OverdueDays(l, end))))
}

// DamageFee is the truncated share of the book price for the assessment.
func (fc FineCalculator) DamageFee(d Damage, price decimal.Decimal) decimal.Decimal {
	rate, ok := damageRates[d]
	if !ok {
		return decimal.Zero
	}
	return price.Mul(rate).Floor()
}

// Fine computes the total owed.
func (fc FineCalculator) Fine(l *Loan, price decimal.Decimal, today Date) decimal.Decimal {
	return fc.LateFee(l, today).Add(fc.DamageFee(l.Damage, price))
}

// CurrentDebt is the advisory amount shown for an open loan.
// Requested loans owe nothing; closed loans report their stored fine.
func (fc FineCalculator) CurrentDebt(l *Loan, price decimal.Decimal, today Date) decimal.Decimal {
	switch l.Status {
	case StatusClosed:
		return l.Fine
	case StatusActive, StatusPendingReturn:
		return fc.Fine(l, price, today)
	default:
		return decimal.Zero
	}
}
