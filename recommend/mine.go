/*
Package recommend mines "borrowed together" rules from loan history and
answers recommendation queries from them.

BASKETS:
  A basket is the set of distinct books one account borrowed in one
  calendar month (by borrow date). Only loans that actually went out count
  (active, pending-return, closed). Baskets with fewer than two books say
  nothing about co-borrowing and are dropped.

MINING (pairs only):
  N              = number of baskets
  support(X)     = baskets containing X / N
  confidence(a→b) = support({a,b}) / support(a)
  lift(a→b)      = confidence(a→b) / support(b)

  Items and pairs below MinSupport are pruned (apriori). A frequent pair
  yields up to two rules, a→b and b→a, each kept when confidence ≥
  MinConfidence and lift ≥ MinLift.

EXAMPLE:
  Baskets {A,B}, {A,B}, {A,C}:
    A→B  support 2/3, confidence 2/3, lift 1
    A→C  confidence 1/3, dropped when MinConfidence > 1/3

SEE ALSO:
  - engine.go: Run replaces the stored rule table
*/
package recommend

import (
	"context"
	"sort"
	"time"

	"github.com/warp/lending-engine/lending"
)

// Basket is a sorted set of distinct book ids.
type Basket []lending.BookID

// Params are the mining thresholds.
type Params struct {
	MinSupport    float64 `json:"min_support" validate:"gt=0,lte=1"`
	MinConfidence float64 `json:"min_confidence" validate:"gte=0,lte=1"`
	MinLift       float64 `json:"min_lift" validate:"gte=0"`
	// MinBaskets is how many valid baskets Run needs before it touches the table.
	MinBaskets int `json:"min_baskets" validate:"min=1"`
}

func DefaultParams() Params {
	return Params{
		MinSupport:    0.01,
		MinConfidence: 0.1,
		MinLift:       1.0,
		MinBaskets:    5,
	}
}

// BuildBaskets groups loans into (account, borrow month) baskets.
// Loans that never went out or have no borrow date are ignored.
func BuildBaskets(loans []lending.Loan) []Basket {
	type key struct {
		account lending.AccountID
		month   string
	}
	sets := make(map[key]map[lending.BookID]struct{})
	var order []key
	for _, l := range loans {
		if !l.Status.HoldsCopy() && l.Status != lending.StatusClosed {
			continue
		}
		if l.BorrowDate.IsZero() {
			continue
		}
		k := key{l.AccountID, l.BorrowDate.YearMonth()}
		set, ok := sets[k]
		if !ok {
			set = make(map[lending.BookID]struct{})
			sets[k] = set
			order = append(order, k)
		}
		set[l.BookID] = struct{}{}
	}

	baskets := make([]Basket, 0, len(order))
	for _, k := range order {
		set := sets[k]
		if len(set) < 2 {
			continue
		}
		b := make(Basket, 0, len(set))
		for id := range set {
			b = append(b, id)
		}
		sort.Slice(b, func(i, j int) bool { return b[i] < b[j] })
		baskets = append(baskets, b)
	}
	return baskets
}

type pair struct {
	a, b lending.BookID // a < b
}

// Mine derives single-antecedent, single-consequent rules from baskets.
// Rules come back ordered by antecedent, then consequent.
func Mine(ctx context.Context, baskets []Basket, p Params, at time.Time) ([]lending.AssociationRule, error) {
	n := float64(len(baskets))
	if n == 0 {
		return nil, nil
	}

	// Pass 1: frequent single items.
	itemCounts := make(map[lending.BookID]int)
	for _, b := range baskets {
		for _, id := range b {
			itemCounts[id]++
		}
	}
	frequent := make(map[lending.BookID]bool, len(itemCounts))
	for id, c := range itemCounts {
		if float64(c)/n >= p.MinSupport {
			frequent[id] = true
		}
	}

	// Pass 2: pairs of frequent items.
	pairCounts := make(map[pair]int)
	for _, b := range baskets {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for i := 0; i < len(b); i++ {
			if !frequent[b[i]] {
				continue
			}
			for j := i + 1; j < len(b); j++ {
				if frequent[b[j]] {
					pairCounts[pair{b[i], b[j]}]++
				}
			}
		}
	}

	var rules []lending.AssociationRule
	for pr, c := range pairCounts {
		support := float64(c) / n
		if support < p.MinSupport {
			continue
		}
		for _, dir := range [2][2]lending.BookID{{pr.a, pr.b}, {pr.b, pr.a}} {
			ant, cons := dir[0], dir[1]
			confidence := float64(c) / float64(itemCounts[ant])
			lift := confidence / (float64(itemCounts[cons]) / n)
			if confidence < p.MinConfidence || lift < p.MinLift {
				continue
			}
			rules = append(rules, lending.AssociationRule{
				Antecedent:  ant,
				Consequent:  cons,
				Support:     support,
				Confidence:  confidence,
				Lift:        lift,
				GeneratedAt: at,
			})
		}
	}

	sort.Slice(rules, func(i, j int) bool {
		if rules[i].Antecedent != rules[j].Antecedent {
			return rules[i].Antecedent < rules[j].Antecedent
		}
		return rules[i].Consequent < rules[j].Consequent
	})
	return rules, nil
}
