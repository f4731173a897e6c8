/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements the lending persistence interfaces (Store, TxStore, RuleStore)
  and the recommendation rule cache on SQLite.

INTERFACES IMPLEMENTED:
  lending.TxStore:   Books, accounts, loans, guarded inventory, version counter
  lending.RuleStore: Borrow-duration policy table
  recommend.Store:   Association rule cache (full replace per mining run)

KEY TABLES:
  books:             Catalog with quantity and cached available count
  accounts:          Borrowers
  loans:             One row per loan, any state
  association_rules: Derived recommendation cache
  borrow_rules:      (class, category|type) → max days
  versions:          Named monotonic counters

INTEGRITY IN THE SCHEMA:
  - CHECK (available >= 0 AND available <= quantity) on books
  - idx_unique_open_loan: one requested/active/pending-return loan per
    (account, book), so a racing duplicate request fails at INSERT
  - ON DELETE CASCADE from accounts and books to loans

GUARDED DECREMENT:
  TakeCopy is a single conditional UPDATE:

    UPDATE books SET available = available - 1 WHERE id = ? AND available > 0

  Zero rows affected means the copy was already gone. Check and
  decrement cannot interleave with another approval.

CONCURRENCY:
  One connection (":memory:" databases are per-connection in SQLite) and a
  mutex serialising WithTx. Statements outside a transaction are atomic on
  their own.

USAGE:
  store, err := sqlite.New("./data/library.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  svc := lending.NewLoanService(store, resolver, fines, policy)

SEE ALSO:
  - lending/store.go: Interface definitions
  - lending/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/mattn/go-sqlite3"

	"github.com/warp/lending-engine/lending"
)

const loanVersionName = "borrows"

// Store implements all storage interfaces using SQLite.
type Store struct {
	queries
	db *sql.DB
	mu sync.Mutex
}

var (
	_ lending.TxStore   = (*Store)(nil)
	_ lending.RuleStore = (*Store)(nil)
	_ lending.Store     = (*queries)(nil)
)

const dsnParams = "_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000"

// dsn appends the connection parameters, keeping any query the path has.
func dsn(dbPath string) string {
	sep := "?"
	if strings.Contains(dbPath, "?") {
		sep = "&"
	}
	return dbPath + sep + dsnParams
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{queries: queries{q: db}, db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS books (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		author TEXT NOT NULL DEFAULT '',
		categories_json TEXT NOT NULL DEFAULT '[]',
		publisher TEXT NOT NULL DEFAULT '',
		publish_year INTEGER NOT NULL DEFAULT 0,
		price TEXT NOT NULL DEFAULT '0',
		quantity INTEGER NOT NULL CHECK (quantity >= 0),
		available INTEGER NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		CHECK (available >= 0 AND available <= quantity)
	);

	CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL DEFAULT '',
		username TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL DEFAULT '',
		phone TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'active',
		class TEXT NOT NULL DEFAULT 'student',
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS loans (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
		book_id TEXT NOT NULL REFERENCES books(id) ON DELETE CASCADE,
		status TEXT NOT NULL,
		borrow_date TEXT,
		due_date TEXT,
		return_date TEXT,
		damage TEXT NOT NULL DEFAULT 'none',
		fine TEXT NOT NULL DEFAULT '0',
		notified INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- At most one open loan per (account, book)
	CREATE UNIQUE INDEX IF NOT EXISTS idx_unique_open_loan
		ON loans(account_id, book_id)
		WHERE status IN ('requested', 'active', 'pending-return');

	CREATE INDEX IF NOT EXISTS idx_loans_account_status
		ON loans(account_id, status);
	CREATE INDEX IF NOT EXISTS idx_loans_book_status
		ON loans(book_id, status);
	CREATE INDEX IF NOT EXISTS idx_loans_due_active
		ON loans(due_date) WHERE status = 'active';

	CREATE TABLE IF NOT EXISTS association_rules (
		antecedent TEXT NOT NULL,
		consequent TEXT NOT NULL,
		support REAL NOT NULL,
		confidence REAL NOT NULL,
		lift REAL NOT NULL,
		generated_at TEXT NOT NULL,
		PRIMARY KEY (antecedent, consequent)
	);

	CREATE TABLE IF NOT EXISTS borrow_rules (
		kind TEXT NOT NULL CHECK (kind IN ('default', 'category', 'type')),
		user_class TEXT NOT NULL DEFAULT '',
		name TEXT NOT NULL DEFAULT '',
		max_days INTEGER NOT NULL CHECK (max_days > 0),
		PRIMARY KEY (kind, user_class, name)
	);

	CREATE TABLE IF NOT EXISTS versions (
		name TEXT PRIMARY KEY,
		value INTEGER NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store lending.Store) error) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return fn(&queries{q: tx})
	})
}

// Reset deletes every book, account, loan and association rule. The borrow
// rule table survives and the version counter is bumped, never reset.
func (s *Store) Reset(ctx context.Context) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, table := range []string{"loans", "association_rules", "books", "accounts"} {
			if _, err := tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
				return fmt.Errorf("reset %s: %w", table, err)
			}
		}
		_, err := (&queries{q: tx}).BumpVersion(ctx)
		return err
	})
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(sqlTx); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries implements lending.Store against either the database or an open
// transaction.
type queries struct {
	q querier
}

// =============================================================================
// BOOKS
// =============================================================================

const bookColumns = `id, title, author, categories_json, publisher, publish_year, price, quantity, available, description, created_at`

func (s *queries) GetBook(ctx context.Context, id lending.BookID) (*lending.Book, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+bookColumns+` FROM books WHERE id = ?`, id)
	b, err := scanBook(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &lending.NotFoundError{Kind: "book", ID: string(id)}
	}
	return b, err
}

func (s *queries) SaveBook(ctx context.Context, b lending.Book) error {
	cats, err := json.Marshal(nonNil(b.Categories))
	if err != nil {
		return fmt.Errorf("encode categories: %w", err)
	}
	_, err = s.q.ExecContext(ctx, `
		INSERT INTO books (`+bookColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			author = excluded.author,
			categories_json = excluded.categories_json,
			publisher = excluded.publisher,
			publish_year = excluded.publish_year,
			price = excluded.price,
			quantity = excluded.quantity,
			available = excluded.available,
			description = excluded.description
	`, b.ID, b.Title, b.Author, string(cats), b.Publisher, b.PublishYear, b.Price.String(),
		b.Quantity, b.Available, b.Description, formatTime(b.CreatedAt))
	return err
}

func (s *queries) ListBooks(ctx context.Context) ([]lending.Book, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT `+bookColumns+` FROM books ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var books []lending.Book
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, err
		}
		books = append(books, *b)
	}
	return books, rows.Err()
}

// DeleteBook also drops association rules mentioning the book.
func (s *queries) DeleteBook(ctx context.Context, id lending.BookID) error {
	if _, err := s.q.ExecContext(ctx,
		`DELETE FROM association_rules WHERE antecedent = ? OR consequent = ?`, id, id); err != nil {
		return err
	}
	return s.deleteByID(ctx, "books", "book", string(id))
}

// =============================================================================
// ACCOUNTS
// =============================================================================

const accountColumns = `id, name, email, username, password_hash, phone, status, class, created_at`

func (s *queries) GetAccount(ctx context.Context, id lending.AccountID) (*lending.Account, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id)
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &lending.NotFoundError{Kind: "account", ID: string(id)}
	}
	return a, err
}

func (s *queries) SaveAccount(ctx context.Context, a lending.Account) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO accounts (`+accountColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			username = excluded.username,
			password_hash = excluded.password_hash,
			phone = excluded.phone,
			status = excluded.status,
			class = excluded.class
	`, a.ID, a.Name, a.Email, a.Username, a.PasswordHash, a.Phone, a.Status, a.Class, formatTime(a.CreatedAt))
	return err
}

func (s *queries) ListAccounts(ctx context.Context) ([]lending.Account, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []lending.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *a)
	}
	return accounts, rows.Err()
}

func (s *queries) DeleteAccount(ctx context.Context, id lending.AccountID) error {
	return s.deleteByID(ctx, "accounts", "account", string(id))
}

// =============================================================================
// LOANS
// =============================================================================

const loanColumns = `id, account_id, book_id, status, borrow_date, due_date, return_date, damage, fine, notified, created_at, updated_at`

func (s *queries) GetLoan(ctx context.Context, id lending.LoanID) (*lending.Loan, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+loanColumns+` FROM loans WHERE id = ?`, id)
	l, err := scanLoan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &lending.NotFoundError{Kind: "loan", ID: string(id)}
	}
	return l, err
}

// FindLoans returns matching loans, oldest first.
func (s *queries) FindLoans(ctx context.Context, f lending.LoanFilter) ([]lending.Loan, error) {
	where, args := loanWhere(f)
	rows, err := s.q.QueryContext(ctx, `SELECT `+loanColumns+` FROM loans`+where+` ORDER BY created_at, rowid`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var loans []lending.Loan
	for rows.Next() {
		l, err := scanLoan(rows)
		if err != nil {
			return nil, err
		}
		loans = append(loans, *l)
	}
	return loans, rows.Err()
}

func (s *queries) CountLoans(ctx context.Context, f lending.LoanFilter) (int, error) {
	where, args := loanWhere(f)
	var n int
	err := s.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM loans`+where, args...).Scan(&n)
	return n, err
}

func (s *queries) InsertLoan(ctx context.Context, l lending.Loan) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO loans (`+loanColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, loanArgs(l)...)
	if isUniqueConstraintError(err) {
		return fmt.Errorf("insert loan %s: %w", l.ID, lending.ErrDuplicateLoan)
	}
	return err
}

func (s *queries) UpdateLoan(ctx context.Context, l lending.Loan) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE loans SET
			status = ?, borrow_date = ?, due_date = ?, return_date = ?,
			damage = ?, fine = ?, notified = ?, updated_at = ?
		WHERE id = ?
	`, l.Status, nullDate(&l.BorrowDate), nullDate(l.DueDate), nullDate(l.ReturnDate),
		l.Damage, l.Fine.String(), l.Notified, formatTime(l.UpdatedAt), l.ID)
	if isUniqueConstraintError(err) {
		return fmt.Errorf("update loan %s: %w", l.ID, lending.ErrDuplicateLoan)
	}
	if err != nil {
		return err
	}
	return requireRow(res, "loan", string(l.ID))
}

func (s *queries) DeleteLoan(ctx context.Context, id lending.LoanID) error {
	return s.deleteByID(ctx, "loans", "loan", string(id))
}

// CountLoansByBook ranks books by loans in any state. limit <= 0 means all.
func (s *queries) CountLoansByBook(ctx context.Context, limit int) ([]lending.BookCount, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.q.QueryContext(ctx, `
		SELECT book_id, COUNT(*) AS n FROM loans
		GROUP BY book_id
		ORDER BY n DESC, book_id
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []lending.BookCount
	for rows.Next() {
		var c lending.BookCount
		if err := rows.Scan(&c.BookID, &c.Loans); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// =============================================================================
// INVENTORY
// =============================================================================

func (s *queries) TakeCopy(ctx context.Context, id lending.BookID) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE books SET available = available - 1 WHERE id = ? AND available > 0`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil || n > 0 {
		return err
	}

	var available int
	err = s.q.QueryRowContext(ctx, `SELECT available FROM books WHERE id = ?`, id).Scan(&available)
	if errors.Is(err, sql.ErrNoRows) {
		return &lending.NotFoundError{Kind: "book", ID: string(id)}
	}
	if err != nil {
		return err
	}
	return &lending.OutOfStockError{BookID: id, Available: available}
}

func (s *queries) ReturnCopy(ctx context.Context, id lending.BookID) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE books SET available = MIN(quantity, available + 1) WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireRow(res, "book", string(id))
}

func (s *queries) SetAvailable(ctx context.Context, id lending.BookID, available int) error {
	res, err := s.q.ExecContext(ctx, `UPDATE books SET available = ? WHERE id = ?`, available, id)
	if err != nil {
		return err
	}
	return requireRow(res, "book", string(id))
}

// =============================================================================
// VERSION COUNTER
// =============================================================================

// CurrentVersion reads the counter, creating it at 1 on first access.
func (s *queries) CurrentVersion(ctx context.Context) (int64, error) {
	if _, err := s.q.ExecContext(ctx,
		`INSERT INTO versions (name, value) VALUES (?, 1) ON CONFLICT(name) DO NOTHING`, loanVersionName); err != nil {
		return 0, err
	}
	var v int64
	err := s.q.QueryRowContext(ctx, `SELECT value FROM versions WHERE name = ?`, loanVersionName).Scan(&v)
	return v, err
}

// BumpVersion increments the counter. A missing counter counts as 1, so the
// first bump yields 2 and is still greater than any earlier read.
func (s *queries) BumpVersion(ctx context.Context) (int64, error) {
	var v int64
	err := s.q.QueryRowContext(ctx, `
		INSERT INTO versions (name, value) VALUES (?, 2)
		ON CONFLICT(name) DO UPDATE SET value = value + 1
		RETURNING value
	`, loanVersionName).Scan(&v)
	return v, err
}

// =============================================================================
// BORROW RULES
// =============================================================================

func (s *Store) LoadBorrowRules(ctx context.Context) (lending.RuleTable, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT kind, user_class, name, max_days FROM borrow_rules ORDER BY kind, user_class, name`)
	if err != nil {
		return lending.RuleTable{}, err
	}
	defer rows.Close()

	var table lending.RuleTable
	for rows.Next() {
		var kind, class, name string
		var days int
		if err := rows.Scan(&kind, &class, &name, &days); err != nil {
			return lending.RuleTable{}, err
		}
		switch kind {
		case "default":
			table.DefaultDays = days
		case "category":
			table.Categories = append(table.Categories, lending.CategoryRule{Class: lending.UserClass(class), Category: name, MaxDays: days})
		case "type":
			table.Types = append(table.Types, lending.TypeRule{Class: lending.UserClass(class), Type: lending.BookType(name), MaxDays: days})
		}
	}
	return table, rows.Err()
}

// SaveBorrowRules replaces the stored table.
func (s *Store) SaveBorrowRules(ctx context.Context, table lending.RuleTable) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM borrow_rules`); err != nil {
			return err
		}
		stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO borrow_rules (kind, user_class, name, max_days) VALUES (?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		if table.DefaultDays > 0 {
			if _, err := stmt.ExecContext(ctx, "default", "", "", table.DefaultDays); err != nil {
				return err
			}
		}
		for _, r := range table.Categories {
			if _, err := stmt.ExecContext(ctx, "category", r.Class, r.Category, r.MaxDays); err != nil {
				return fmt.Errorf("rule %s/%s: %w", r.Class, r.Category, err)
			}
		}
		for _, r := range table.Types {
			if _, err := stmt.ExecContext(ctx, "type", r.Class, r.Type, r.MaxDays); err != nil {
				return fmt.Errorf("rule %s/%s: %w", r.Class, r.Type, err)
			}
		}
		return nil
	})
}

// =============================================================================
// ASSOCIATION RULES
// =============================================================================

const ruleColumns = `antecedent, consequent, support, confidence, lift, generated_at`

// ReplaceRules swaps the whole rule table in one transaction.
func (s *Store) ReplaceRules(ctx context.Context, rules []lending.AssociationRule) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM association_rules`); err != nil {
			return err
		}
		if len(rules) == 0 {
			return nil
		}
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO association_rules (`+ruleColumns+`) VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, r := range rules {
			if _, err := stmt.ExecContext(ctx, r.Antecedent, r.Consequent, r.Support, r.Confidence, r.Lift, formatTime(r.GeneratedAt)); err != nil {
				return fmt.Errorf("rule %s->%s: %w", r.Antecedent, r.Consequent, err)
			}
		}
		return nil
	})
}

// ListRules returns every stored rule, strongest first.
func (s *Store) ListRules(ctx context.Context) ([]lending.AssociationRule, error) {
	return s.queryRules(ctx, `SELECT `+ruleColumns+` FROM association_rules ORDER BY lift DESC, confidence DESC, antecedent, consequent`)
}

// RulesByAntecedent returns the rules whose antecedent is one of ids.
func (s *Store) RulesByAntecedent(ctx context.Context, ids ...lending.BookID) ([]lending.AssociationRule, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return s.queryRules(ctx, `SELECT `+ruleColumns+` FROM association_rules WHERE antecedent IN (`+placeholders(len(ids))+`)
		ORDER BY lift DESC, confidence DESC, consequent`, args...)
}

func (s *Store) queryRules(ctx context.Context, query string, args ...any) ([]lending.AssociationRule, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []lending.AssociationRule
	for rows.Next() {
		var r lending.AssociationRule
		var generated string
		if err := rows.Scan(&r.Antecedent, &r.Consequent, &r.Support, &r.Confidence, &r.Lift, &generated); err != nil {
			return nil, err
		}
		r.GeneratedAt = parseTime(generated)
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

type scanner interface {
	Scan(dest ...any) error
}

func scanBook(row scanner) (*lending.Book, error) {
	var b lending.Book
	var cats, created string
	if err := row.Scan(&b.ID, &b.Title, &b.Author, &cats, &b.Publisher, &b.PublishYear, &b.Price,
		&b.Quantity, &b.Available, &b.Description, &created); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(cats), &b.Categories); err != nil {
		return nil, fmt.Errorf("book %s categories: %w", b.ID, err)
	}
	b.CreatedAt = parseTime(created)
	return &b, nil
}

func scanAccount(row scanner) (*lending.Account, error) {
	var a lending.Account
	var created string
	if err := row.Scan(&a.ID, &a.Name, &a.Email, &a.Username, &a.PasswordHash, &a.Phone,
		&a.Status, &a.Class, &created); err != nil {
		return nil, err
	}
	a.CreatedAt = parseTime(created)
	return &a, nil
}

// scanLoan accepts legacy status names written by older importers.
func scanLoan(row scanner) (*lending.Loan, error) {
	var l lending.Loan
	var status, created, updated string
	var borrow, due, ret sql.NullString
	if err := row.Scan(&l.ID, &l.AccountID, &l.BookID, &status, &borrow, &due, &ret,
		&l.Damage, &l.Fine, &l.Notified, &created, &updated); err != nil {
		return nil, err
	}
	st, ok := lending.ParseLegacyStatus(status)
	if !ok {
		return nil, fmt.Errorf("loan %s has unknown status %q", l.ID, status)
	}
	l.Status = st

	var err error
	if borrow.Valid {
		if l.BorrowDate, err = lending.ParseDate(borrow.String); err != nil {
			return nil, fmt.Errorf("loan %s borrow_date: %w", l.ID, err)
		}
	}
	if l.DueDate, err = parseNullDate(due); err != nil {
		return nil, fmt.Errorf("loan %s due_date: %w", l.ID, err)
	}
	if l.ReturnDate, err = parseNullDate(ret); err != nil {
		return nil, fmt.Errorf("loan %s return_date: %w", l.ID, err)
	}
	l.CreatedAt = parseTime(created)
	l.UpdatedAt = parseTime(updated)
	return &l, nil
}

func loanArgs(l lending.Loan) []any {
	return []any{
		l.ID, l.AccountID, l.BookID, l.Status,
		nullDate(&l.BorrowDate), nullDate(l.DueDate), nullDate(l.ReturnDate),
		l.Damage, l.Fine.String(), l.Notified,
		formatTime(l.CreatedAt), formatTime(l.UpdatedAt),
	}
}

func loanWhere(f lending.LoanFilter) (string, []any) {
	var conds []string
	var args []any
	if f.AccountID != "" {
		conds = append(conds, "account_id = ?")
		args = append(args, f.AccountID)
	}
	if f.BookID != "" {
		conds = append(conds, "book_id = ?")
		args = append(args, f.BookID)
	}
	if len(f.Statuses) > 0 {
		conds = append(conds, "status IN ("+placeholders(len(f.Statuses))+")")
		for _, st := range f.Statuses {
			args = append(args, st)
		}
	}
	if f.DueOn != nil {
		conds = append(conds, "due_date = ?")
		args = append(args, f.DueOn.String())
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (s *queries) deleteByID(ctx context.Context, table, kind, id string) error {
	res, err := s.q.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireRow(res, kind, id)
}

func requireRow(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return &lending.NotFoundError{Kind: kind, ID: id}
	}
	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func nullDate(d *lending.Date) sql.NullString {
	if d == nil || d.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func parseNullDate(s sql.NullString) (*lending.Date, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	d, err := lending.ParseDate(s.String)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func isUniqueConstraintError(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}
