package recommend

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/warp/lending-engine/lending"
	"github.com/warp/lending-engine/metrics"
)

// Store is what the engine needs from persistence. Both the sqlite and
// the in-memory store satisfy it.
type Store interface {
	FindLoans(ctx context.Context, filter lending.LoanFilter) ([]lending.Loan, error)
	CountLoansByBook(ctx context.Context, limit int) ([]lending.BookCount, error)
	ReplaceRules(ctx context.Context, rules []lending.AssociationRule) error
	ListRules(ctx context.Context) ([]lending.AssociationRule, error)
	RulesByAntecedent(ctx context.Context, ids ...lending.BookID) ([]lending.AssociationRule, error)
}

// Recommendation is a scored book suggestion.
type Recommendation struct {
	BookID     lending.BookID `json:"book_id"`
	Score      float64        `json:"score"`
	Confidence float64        `json:"confidence,omitempty"`
	Lift       float64        `json:"lift,omitempty"`
}

// RunResult describes one mining run.
type RunResult struct {
	Baskets  int           `json:"baskets"`
	Rules    int           `json:"rules"`
	Replaced bool          `json:"replaced"`
	Duration time.Duration `json:"duration"`
}

// Engine runs mining and serves queries from the stored rules.
type Engine struct {
	store  Store
	params Params
	clock  lending.Clock
	log    zerolog.Logger

	// one mining run at a time
	runMu sync.Mutex
}

func NewEngine(store Store, params Params, log zerolog.Logger) *Engine {
	return &Engine{store: store, params: params, log: log}
}

// WithClock sets the timestamp source for GeneratedAt.
func (e *Engine) WithClock(c lending.Clock) *Engine {
	e.clock = c
	return e
}

func (e *Engine) Params() Params { return e.params }

// Run mines with the engine's parameters.
func (e *Engine) Run(ctx context.Context) (RunResult, error) {
	return e.RunWith(ctx, e.params)
}

// RunWith mines from current loan history and replaces the rule table.
// With fewer than p.MinBaskets valid baskets the table is left untouched.
// A failure or panic during mining also leaves it untouched and reports
// zero rules.
func (e *Engine) RunWith(ctx context.Context, p Params) (res RunResult, err error) {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("mining panicked: %v", r)
		}
		res.Duration = time.Since(start)
		switch {
		case err != nil:
			res.Rules, res.Replaced = 0, false
			e.log.Error().Err(err).Msg("association rule mining failed")
			metrics.RecordMiningRun("error", 0, res.Duration)
		case !res.Replaced:
			metrics.RecordMiningRun("insufficient", 0, res.Duration)
		default:
			metrics.RecordMiningRun("replaced", res.Rules, res.Duration)
		}
	}()

	loans, err := e.store.FindLoans(ctx, lending.LoanFilter{Statuses: lending.HistoryStatuses()})
	if err != nil {
		return res, fmt.Errorf("load loan history: %w", err)
	}
	baskets := BuildBaskets(loans)
	res.Baskets = len(baskets)

	if len(baskets) < p.MinBaskets {
		e.log.Info().Int("baskets", len(baskets)).Int("min_baskets", p.MinBaskets).
			Msg("not enough baskets to mine; keeping existing rules")
		return res, nil
	}

	rules, err := Mine(ctx, baskets, p, e.clock.Now())
	if err != nil {
		return res, err
	}
	if err := e.store.ReplaceRules(ctx, rules); err != nil {
		return res, fmt.Errorf("replace rules: %w", err)
	}

	res.Rules = len(rules)
	res.Replaced = true
	e.log.Info().Int("baskets", res.Baskets).Int("rules", res.Rules).
		Float64("min_support", p.MinSupport).Float64("min_confidence", p.MinConfidence).
		Msg("association rules replaced")
	return res, nil
}

// =============================================================================
// QUERIES
// =============================================================================

// ForBook returns the consequents of rules on id, strongest lift first.
func (e *Engine) ForBook(ctx context.Context, id lending.BookID, limit int) ([]Recommendation, error) {
	rules, err := e.store.RulesByAntecedent(ctx, id)
	if err != nil {
		return nil, err
	}
	sort.Slice(rules, func(i, j int) bool {
		if rules[i].Lift != rules[j].Lift {
			return rules[i].Lift > rules[j].Lift
		}
		if rules[i].Confidence != rules[j].Confidence {
			return rules[i].Confidence > rules[j].Confidence
		}
		return rules[i].Consequent < rules[j].Consequent
	})

	out := make([]Recommendation, 0, len(rules))
	for _, r := range rules {
		out = append(out, Recommendation{
			BookID:     r.Consequent,
			Score:      r.Lift * r.Confidence,
			Confidence: r.Confidence,
			Lift:       r.Lift,
		})
	}
	return truncate(out, limit), nil
}

// ForAccount scores every book the account has not borrowed by the sum of
// lift × confidence over rules whose antecedent it has borrowed.
func (e *Engine) ForAccount(ctx context.Context, account lending.AccountID, limit int) ([]Recommendation, error) {
	loans, err := e.store.FindLoans(ctx, lending.LoanFilter{AccountID: account})
	if err != nil {
		return nil, err
	}
	if len(loans) == 0 {
		return []Recommendation{}, nil
	}

	borrowed := make(map[lending.BookID]bool, len(loans))
	ids := make([]lending.BookID, 0, len(loans))
	for _, l := range loans {
		if !borrowed[l.BookID] {
			borrowed[l.BookID] = true
			ids = append(ids, l.BookID)
		}
	}

	rules, err := e.store.RulesByAntecedent(ctx, ids...)
	if err != nil {
		return nil, err
	}

	scores := make(map[lending.BookID]float64)
	for _, r := range rules {
		if borrowed[r.Consequent] {
			continue
		}
		scores[r.Consequent] += r.Lift * r.Confidence
	}

	out := make([]Recommendation, 0, len(scores))
	for id, s := range scores {
		out = append(out, Recommendation{BookID: id, Score: s})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].BookID < out[j].BookID
	})
	return truncate(out, limit), nil
}

// Popular ranks books by how often they were borrowed.
func (e *Engine) Popular(ctx context.Context, limit int) ([]lending.BookCount, error) {
	return e.store.CountLoansByBook(ctx, limit)
}

// Rules returns the stored rule table.
func (e *Engine) Rules(ctx context.Context) ([]lending.AssociationRule, error) {
	return e.store.ListRules(ctx)
}

func truncate(recs []Recommendation, limit int) []Recommendation {
	if limit > 0 && len(recs) > limit {
		return recs[:limit]
	}
	return recs
}
