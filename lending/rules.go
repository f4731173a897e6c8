/*
rules.go - Borrow rule resolver (maximum loan duration)

PURPOSE:
  Answers "how many days may this account keep this book?". The answer
  depends on the account's user class and the book's categories.

RESOLUTION ORDER (per category):
  1. Explicit rule for (class, category)
  2. Rule for (class, book type), where the type is inferred from the
     category name: textbook, reference or novel
  3. Nothing: the category does not contribute

  MaxDays = max over contributing categories; if none contribute, the
  table's default (14 days unless configured).

  A category without any rule does not pull the result up to the default,
  so a restrictive explicit rule (e.g. 7 days for reference works) still
  wins over an unclassified second category.

CONCURRENCY:
  The resolver is read on every approval and may be replaced at runtime
  from the admin API, so the table sits behind an RWMutex.

SEE ALSO:
  - factory/rules.go: JSON rule table parser
  - service.go: ApproveLoan computes the due date from MaxDays
*/
package lending

import (
	"strings"
	"sync"
)

// DefaultLoanDays applies when no rule matches.
const DefaultLoanDays = 14

// BookType is the coarse bucket inferred from category names.
type BookType string

const (
	TypeTextbook  BookType = "textbook"
	TypeReference BookType = "reference"
	TypeNovel     BookType = "novel"
)

// Keyword lists are checked in this order; the first hit wins.
var bookTypeKeywords = []struct {
	Type     BookType
	Keywords []string
}{
	{TypeTextbook, []string{"textbook", "giáo trình", "course", "curriculum", "lecture"}},
	{TypeReference, []string{"reference", "dictionary", "encyclopedia", "handbook", "atlas", "tham khảo", "từ điển"}},
	{TypeNovel, []string{"novel", "fiction", "tiểu thuyết", "story", "stories"}},
}

// InferBookType maps a category name to a book type bucket.
func InferBookType(category string) (BookType, bool) {
	name := normalize(category)
	for _, kw := range bookTypeKeywords {
		for _, k := range kw.Keywords {
			if strings.Contains(name, k) {
				return kw.Type, true
			}
		}
	}
	return "", false
}

// =============================================================================
// RULE TABLE
// =============================================================================

type CategoryRule struct {
	Class    UserClass
	Category string
	MaxDays  int
}

type TypeRule struct {
	Class   UserClass
	Type    BookType
	MaxDays int
}

// RuleTable is the static policy consulted by the resolver.
type RuleTable struct {
	DefaultDays int
	Categories  []CategoryRule
	Types       []TypeRule
}

// =============================================================================
// RESOLVER
// =============================================================================

type ruleKey struct {
	class UserClass
	name  string
}

type RuleResolver struct {
	mu          sync.RWMutex
	table       RuleTable
	byCategory  map[ruleKey]int
	byType      map[ruleKey]int
	defaultDays int
}

func NewRuleResolver(table RuleTable) *RuleResolver {
	r := &RuleResolver{}
	r.Replace(table)
	return r
}

// Replace swaps in a new table atomically.
func (r *RuleResolver) Replace(table RuleTable) {
	byCategory := make(map[ruleKey]int, len(table.Categories))
	for _, cr := range table.Categories {
		k := ruleKey{cr.Class, normalize(cr.Category)}
		if cr.MaxDays > byCategory[k] {
			byCategory[k] = cr.MaxDays
		}
	}
	byType := make(map[ruleKey]int, len(table.Types))
	for _, tr := range table.Types {
		k := ruleKey{tr.Class, string(tr.Type)}
		if tr.MaxDays > byType[k] {
			byType[k] = tr.MaxDays
		}
	}
	def := table.DefaultDays
	if def <= 0 {
		def = DefaultLoanDays
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.table = table
	r.byCategory = byCategory
	r.byType = byType
	r.defaultDays = def
}

// Table returns the table currently in effect.
func (r *RuleResolver) Table() RuleTable {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.table
}

// MaxDays returns the maximum loan duration for the class and categories.
// A nil resolver answers DefaultLoanDays.
func (r *RuleResolver) MaxDays(class UserClass, categories []string) int {
	if r == nil {
		return DefaultLoanDays
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	best := 0
	for _, c := range categories {
		days, ok := r.byCategory[ruleKey{class, normalize(c)}]
		if !ok {
			if bt, typed := InferBookType(c); typed {
				days, ok = r.byType[ruleKey{class, string(bt)}]
			}
		}
		if ok && days > best {
			best = days
		}
	}
	if best == 0 {
		return r.defaultDays
	}
	return best
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
