// Package store provides an in-memory lending.TxStore.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/lending-engine/lending"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory keeps all records in maps guarded by one mutex. WithTx holds the
// write lock for the whole callback, so transactions are serialized.
type Memory struct {
	mu sync.RWMutex
	st *state
}

type state struct {
	books    map[lending.BookID]lending.Book
	accounts map[lending.AccountID]lending.Account
	loans    []lending.Loan // insertion order
	rules    []lending.AssociationRule
	version  int64 // 0 = not yet initialised
}

func newState() *state {
	return &state{
		books:    make(map[lending.BookID]lending.Book),
		accounts: make(map[lending.AccountID]lending.Account),
	}
}

func NewMemory() *Memory {
	return &Memory{st: newState()}
}

var (
	_ lending.TxStore = (*Memory)(nil)
	_ lending.Store   = (*memTx)(nil)
)

// WithTx executes fn within a transaction.
// Simulated with a snapshot + rollback on error.
func (m *Memory) WithTx(ctx context.Context, fn func(lending.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.st.clone()
	if err := fn(&memTx{st: m.st}); err != nil {
		m.st = snapshot
		return err
	}
	return nil
}

// Reset drops all records except the version counter, which is bumped.
func (m *Memory) Reset(_ context.Context) error {
	return m.write(func(st *state) error {
		v := st.currentVersion()
		*st = *newState()
		st.version = v + 1
		return nil
	})
}

// =============================================================================
// LOCKED ACCESSORS
// =============================================================================

func (m *Memory) read(fn func(st *state)) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	fn(m.st)
}

func (m *Memory) write(fn func(st *state) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(m.st)
}

func (m *Memory) GetBook(_ context.Context, id lending.BookID) (b *lending.Book, err error) {
	m.read(func(st *state) { b, err = st.getBook(id) })
	return
}

func (m *Memory) SaveBook(_ context.Context, b lending.Book) error {
	return m.write(func(st *state) error { return st.saveBook(b) })
}

func (m *Memory) ListBooks(_ context.Context) (out []lending.Book, err error) {
	m.read(func(st *state) { out = st.listBooks() })
	return
}

func (m *Memory) DeleteBook(_ context.Context, id lending.BookID) error {
	return m.write(func(st *state) error { return st.deleteBook(id) })
}

func (m *Memory) GetAccount(_ context.Context, id lending.AccountID) (a *lending.Account, err error) {
	m.read(func(st *state) { a, err = st.getAccount(id) })
	return
}

func (m *Memory) SaveAccount(_ context.Context, a lending.Account) error {
	return m.write(func(st *state) error { return st.saveAccount(a) })
}

func (m *Memory) ListAccounts(_ context.Context) (out []lending.Account, err error) {
	m.read(func(st *state) { out = st.listAccounts() })
	return
}

func (m *Memory) DeleteAccount(_ context.Context, id lending.AccountID) error {
	return m.write(func(st *state) error { return st.deleteAccount(id) })
}

func (m *Memory) GetLoan(_ context.Context, id lending.LoanID) (l *lending.Loan, err error) {
	m.read(func(st *state) { l, err = st.getLoan(id) })
	return
}

func (m *Memory) FindLoans(_ context.Context, f lending.LoanFilter) (out []lending.Loan, err error) {
	m.read(func(st *state) { out = st.findLoans(f) })
	return
}

func (m *Memory) CountLoans(_ context.Context, f lending.LoanFilter) (n int, err error) {
	m.read(func(st *state) { n = len(st.findLoans(f)) })
	return
}

func (m *Memory) InsertLoan(_ context.Context, l lending.Loan) error {
	return m.write(func(st *state) error { return st.insertLoan(l) })
}

func (m *Memory) UpdateLoan(_ context.Context, l lending.Loan) error {
	return m.write(func(st *state) error { return st.updateLoan(l) })
}

func (m *Memory) DeleteLoan(_ context.Context, id lending.LoanID) error {
	return m.write(func(st *state) error { return st.deleteLoan(id) })
}

func (m *Memory) CountLoansByBook(_ context.Context, limit int) (out []lending.BookCount, err error) {
	m.read(func(st *state) { out = st.countLoansByBook(limit) })
	return
}

func (m *Memory) TakeCopy(_ context.Context, id lending.BookID) error {
	return m.write(func(st *state) error { return st.takeCopy(id) })
}

func (m *Memory) ReturnCopy(_ context.Context, id lending.BookID) error {
	return m.write(func(st *state) error { return st.returnCopy(id) })
}

func (m *Memory) SetAvailable(_ context.Context, id lending.BookID, available int) error {
	return m.write(func(st *state) error { return st.setAvailable(id, available) })
}

// CurrentVersion initialises the counter on first read, so it takes the write lock.
func (m *Memory) CurrentVersion(_ context.Context) (v int64, err error) {
	err = m.write(func(st *state) error { v = st.currentVersion(); return nil })
	return
}

func (m *Memory) BumpVersion(_ context.Context) (v int64, err error) {
	err = m.write(func(st *state) error { v = st.bumpVersion(); return nil })
	return
}

// ReplaceRules swaps the whole association rule table.
func (m *Memory) ReplaceRules(_ context.Context, rules []lending.AssociationRule) error {
	return m.write(func(st *state) error {
		st.rules = append([]lending.AssociationRule(nil), rules...)
		return nil
	})
}

func (m *Memory) ListRules(_ context.Context) (out []lending.AssociationRule, err error) {
	m.read(func(st *state) { out = append([]lending.AssociationRule(nil), st.rules...) })
	return
}

// RulesByAntecedent returns the rules whose antecedent is one of ids.
func (m *Memory) RulesByAntecedent(_ context.Context, ids ...lending.BookID) (out []lending.AssociationRule, err error) {
	want := make(map[lending.BookID]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	m.read(func(st *state) {
		for _, r := range st.rules {
			if want[r.Antecedent] {
				out = append(out, r)
			}
		}
	})
	return
}

// =============================================================================
// TRANSACTIONAL VIEW - Used inside WithTx, lock already held
// =============================================================================

type memTx struct {
	st *state
}

func (t *memTx) GetBook(_ context.Context, id lending.BookID) (*lending.Book, error) {
	return t.st.getBook(id)
}

func (t *memTx) SaveBook(_ context.Context, b lending.Book) error { return t.st.saveBook(b) }

func (t *memTx) ListBooks(_ context.Context) ([]lending.Book, error) { return t.st.listBooks(), nil }

func (t *memTx) DeleteBook(_ context.Context, id lending.BookID) error { return t.st.deleteBook(id) }

func (t *memTx) GetAccount(_ context.Context, id lending.AccountID) (*lending.Account, error) {
	return t.st.getAccount(id)
}

func (t *memTx) SaveAccount(_ context.Context, a lending.Account) error { return t.st.saveAccount(a) }

func (t *memTx) ListAccounts(_ context.Context) ([]lending.Account, error) {
	return t.st.listAccounts(), nil
}

func (t *memTx) DeleteAccount(_ context.Context, id lending.AccountID) error {
	return t.st.deleteAccount(id)
}

func (t *memTx) GetLoan(_ context.Context, id lending.LoanID) (*lending.Loan, error) {
	return t.st.getLoan(id)
}

func (t *memTx) FindLoans(_ context.Context, f lending.LoanFilter) ([]lending.Loan, error) {
	return t.st.findLoans(f), nil
}

func (t *memTx) CountLoans(_ context.Context, f lending.LoanFilter) (int, error) {
	return len(t.st.findLoans(f)), nil
}

func (t *memTx) InsertLoan(_ context.Context, l lending.Loan) error { return t.st.insertLoan(l) }

func (t *memTx) UpdateLoan(_ context.Context, l lending.Loan) error { return t.st.updateLoan(l) }

func (t *memTx) DeleteLoan(_ context.Context, id lending.LoanID) error { return t.st.deleteLoan(id) }

func (t *memTx) CountLoansByBook(_ context.Context, limit int) ([]lending.BookCount, error) {
	return t.st.countLoansByBook(limit), nil
}

func (t *memTx) TakeCopy(_ context.Context, id lending.BookID) error { return t.st.takeCopy(id) }

func (t *memTx) ReturnCopy(_ context.Context, id lending.BookID) error { return t.st.returnCopy(id) }

func (t *memTx) SetAvailable(_ context.Context, id lending.BookID, available int) error {
	return t.st.setAvailable(id, available)
}

func (t *memTx) CurrentVersion(_ context.Context) (int64, error) { return t.st.currentVersion(), nil }

func (t *memTx) BumpVersion(_ context.Context) (int64, error) { return t.st.bumpVersion(), nil }

// =============================================================================
// STATE - Unlocked operations shared by both views
// =============================================================================

func (st *state) clone() *state {
	c := &state{
		books:    make(map[lending.BookID]lending.Book, len(st.books)),
		accounts: make(map[lending.AccountID]lending.Account, len(st.accounts)),
		loans:    append([]lending.Loan(nil), st.loans...),
		rules:    append([]lending.AssociationRule(nil), st.rules...),
		version:  st.version,
	}
	for k, v := range st.books {
		c.books[k] = v
	}
	for k, v := range st.accounts {
		c.accounts[k] = v
	}
	return c
}

func (st *state) getBook(id lending.BookID) (*lending.Book, error) {
	b, ok := st.books[id]
	if !ok {
		return nil, &lending.NotFoundError{Kind: "book", ID: string(id)}
	}
	b.Categories = append([]string(nil), b.Categories...)
	return &b, nil
}

func (st *state) saveBook(b lending.Book) error {
	b.Categories = append([]string(nil), b.Categories...)
	st.books[b.ID] = b
	return nil
}

func (st *state) listBooks() []lending.Book {
	out := make([]lending.Book, 0, len(st.books))
	for _, b := range st.books {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (st *state) deleteBook(id lending.BookID) error {
	if _, ok := st.books[id]; !ok {
		return &lending.NotFoundError{Kind: "book", ID: string(id)}
	}
	delete(st.books, id)
	st.removeLoans(func(l lending.Loan) bool { return l.BookID == id })
	kept := st.rules[:0:0]
	for _, r := range st.rules {
		if r.Antecedent != id && r.Consequent != id {
			kept = append(kept, r)
		}
	}
	st.rules = kept
	return nil
}

func (st *state) getAccount(id lending.AccountID) (*lending.Account, error) {
	a, ok := st.accounts[id]
	if !ok {
		return nil, &lending.NotFoundError{Kind: "account", ID: string(id)}
	}
	return &a, nil
}

func (st *state) saveAccount(a lending.Account) error {
	st.accounts[a.ID] = a
	return nil
}

func (st *state) listAccounts() []lending.Account {
	out := make([]lending.Account, 0, len(st.accounts))
	for _, a := range st.accounts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (st *state) deleteAccount(id lending.AccountID) error {
	if _, ok := st.accounts[id]; !ok {
		return &lending.NotFoundError{Kind: "account", ID: string(id)}
	}
	delete(st.accounts, id)
	st.removeLoans(func(l lending.Loan) bool { return l.AccountID == id })
	return nil
}

func (st *state) loanIndex(id lending.LoanID) int {
	for i := range st.loans {
		if st.loans[i].ID == id {
			return i
		}
	}
	return -1
}

func (st *state) getLoan(id lending.LoanID) (*lending.Loan, error) {
	i := st.loanIndex(id)
	if i < 0 {
		return nil, &lending.NotFoundError{Kind: "loan", ID: string(id)}
	}
	l := st.loans[i]
	return &l, nil
}

func (st *state) findLoans(f lending.LoanFilter) []lending.Loan {
	var out []lending.Loan
	for _, l := range st.loans {
		if matches(l, f) {
			out = append(out, l)
		}
	}
	return out
}

func matches(l lending.Loan, f lending.LoanFilter) bool {
	if f.AccountID != "" && l.AccountID != f.AccountID {
		return false
	}
	if f.BookID != "" && l.BookID != f.BookID {
		return false
	}
	if f.DueOn != nil && (l.DueDate == nil || !l.DueDate.Equal(*f.DueOn)) {
		return false
	}
	if len(f.Statuses) == 0 {
		return true
	}
	for _, s := range f.Statuses {
		if l.Status == s {
			return true
		}
	}
	return false
}

// insertLoan enforces one open loan per (account, book) like the unique
// partial index of the sqlite schema.
func (st *state) insertLoan(l lending.Loan) error {
	if st.loanIndex(l.ID) >= 0 {
		return lending.ErrDuplicateLoan
	}
	if l.Status.IsOpen() {
		for _, o := range st.loans {
			if o.AccountID == l.AccountID && o.BookID == l.BookID && o.Status.IsOpen() {
				return lending.ErrDuplicateLoan
			}
		}
	}
	st.loans = append(st.loans, l)
	return nil
}

func (st *state) updateLoan(l lending.Loan) error {
	i := st.loanIndex(l.ID)
	if i < 0 {
		return &lending.NotFoundError{Kind: "loan", ID: string(l.ID)}
	}
	st.loans[i] = l
	return nil
}

func (st *state) deleteLoan(id lending.LoanID) error {
	i := st.loanIndex(id)
	if i < 0 {
		return &lending.NotFoundError{Kind: "loan", ID: string(id)}
	}
	st.loans = append(st.loans[:i:i], st.loans[i+1:]...)
	return nil
}

func (st *state) removeLoans(drop func(lending.Loan) bool) {
	kept := st.loans[:0:0]
	for _, l := range st.loans {
		if !drop(l) {
			kept = append(kept, l)
		}
	}
	st.loans = kept
}

func (st *state) countLoansByBook(limit int) []lending.BookCount {
	counts := make(map[lending.BookID]int)
	for _, l := range st.loans {
		counts[l.BookID]++
	}
	out := make([]lending.BookCount, 0, len(counts))
	for id, n := range counts {
		out = append(out, lending.BookCount{BookID: id, Loans: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Loans != out[j].Loans {
			return out[i].Loans > out[j].Loans
		}
		return out[i].BookID < out[j].BookID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (st *state) takeCopy(id lending.BookID) error {
	b, ok := st.books[id]
	if !ok {
		return &lending.NotFoundError{Kind: "book", ID: string(id)}
	}
	if b.Available <= 0 {
		return &lending.OutOfStockError{BookID: id, Available: b.Available}
	}
	b.Available--
	st.books[id] = b
	return nil
}

func (st *state) returnCopy(id lending.BookID) error {
	b, ok := st.books[id]
	if !ok {
		return &lending.NotFoundError{Kind: "book", ID: string(id)}
	}
	if b.Available < b.Quantity {
		b.Available++
		st.books[id] = b
	}
	return nil
}

func (st *state) setAvailable(id lending.BookID, available int) error {
	b, ok := st.books[id]
	if !ok {
		return &lending.NotFoundError{Kind: "book", ID: string(id)}
	}
	b.Available = available
	st.books[id] = b
	return nil
}

func (st *state) currentVersion() int64 {
	if st.version == 0 {
		st.version = 1
	}
	return st.version
}

func (st *state) bumpVersion() int64 {
	st.version = st.currentVersion() + 1
	return st.version
}
