// Package sqlite implements ledger.Store on a SQLite database. The same
// schema would port to PostgreSQL with minor dialect changes; SQLite keeps
// the tool a single binary with a single data file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/cream-budget/cream/internal/ledger"
)

const dateFormat = "2006-01-02"

// dbtx is the subset of *sql.DB and *sql.Tx the queries need, so the same
// code runs inside and outside a transaction.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store is a SQLite-backed ledger.Store.
type Store struct {
	db *sql.DB // nil inside Atomic
	q  dbtx
}

// New opens (or creates) the database at path and ensures the schema.
// Use ":memory:" for a throwaway database.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL; PRAGMA foreign_keys = ON;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set pragmas: %w", err)
	}
	s := &Store{db: db, q: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS incomes (
		id TEXT PRIMARY KEY,
		budgeted TEXT NOT NULL,
		budgeted_date TEXT NOT NULL UNIQUE,
		recurrence TEXT NOT NULL DEFAULT '',
		series_root TEXT NOT NULL DEFAULT '',
		transaction_id TEXT NOT NULL DEFAULT '',
		carry_over_override TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_incomes_date ON incomes(budgeted_date);
	CREATE INDEX IF NOT EXISTS idx_incomes_root ON incomes(series_root);

	CREATE TABLE IF NOT EXISTS expenses (
		id TEXT PRIMARY KEY,
		budgeted TEXT NOT NULL,
		budgeted_date TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		recurrence TEXT NOT NULL DEFAULT '',
		series_root TEXT NOT NULL DEFAULT '',
		income_id TEXT NOT NULL DEFAULT '',
		transaction_id TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_expenses_date ON expenses(budgeted_date);
	CREATE INDEX IF NOT EXISTS idx_expenses_income ON expenses(income_id);
	CREATE INDEX IF NOT EXISTS idx_expenses_root ON expenses(series_root);

	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		memo TEXT NOT NULL DEFAULT '',
		amount TEXT NOT NULL,
		posted TEXT NOT NULL,
		check_number INTEGER NOT NULL DEFAULT 0,
		tx_type TEXT NOT NULL DEFAULT 'OTHER',
		account_id TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_transactions_posted ON transactions(posted);

	CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		acct_type TEXT NOT NULL DEFAULT '',
		acct_number TEXT NOT NULL DEFAULT '',
		bank TEXT NOT NULL DEFAULT ''
	);`
	_, err := s.db.Exec(schema)
	return err
}

// Atomic runs fn inside a database transaction. Nested calls join the
// enclosing transaction.
func (s *Store) Atomic(ctx context.Context, fn func(ledger.Store) error) error {
	if s.db == nil {
		return fn(s)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(&Store{q: tx}); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func rootArg(id uuid.UUID) string {
	if id == uuid.Nil {
		return ""
	}
	return id.String()
}

func parseRoot(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, nil
	}
	return uuid.Parse(s)
}

const incomeCols = "id, budgeted, budgeted_date, recurrence, series_root, transaction_id, carry_over_override"

func scanIncome(row interface{ Scan(...any) error }) (ledger.Income, error) {
	var (
		in       ledger.Income
		id       string
		budgeted string
		date     string
		root     string
		override sql.NullString
	)
	if err := row.Scan(&id, &budgeted, &date, &in.Recurrence, &root, &in.TransactionID, &override); err != nil {
		return ledger.Income{}, err
	}
	var err error
	if in.ID, err = uuid.Parse(id); err != nil {
		return ledger.Income{}, fmt.Errorf("income id %q: %w", id, err)
	}
	if in.Budgeted, err = decimal.NewFromString(budgeted); err != nil {
		return ledger.Income{}, fmt.Errorf("income %s amount: %w", id, err)
	}
	if in.BudgetedDate, err = time.ParseInLocation(dateFormat, date, time.UTC); err != nil {
		return ledger.Income{}, fmt.Errorf("income %s date: %w", id, err)
	}
	if in.SeriesRoot, err = parseRoot(root); err != nil {
		return ledger.Income{}, fmt.Errorf("income %s root: %w", id, err)
	}
	if override.Valid {
		d, err := decimal.NewFromString(override.String)
		if err != nil {
			return ledger.Income{}, fmt.Errorf("income %s override: %w", id, err)
		}
		in.CarryOverOverride = &d
	}
	return in, nil
}

func (s *Store) Income(ctx context.Context, id uuid.UUID) (ledger.Income, error) {
	row := s.q.QueryRowContext(ctx, "SELECT "+incomeCols+" FROM incomes WHERE id = ?", id.String())
	in, err := scanIncome(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Income{}, fmt.Errorf("income %s: %w", id, ledger.ErrNotFound)
	}
	return in, err
}

func (s *Store) queryIncomes(ctx context.Context, query string, args ...any) ([]ledger.Income, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ledger.Income
	for rows.Next() {
		in, err := scanIncome(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

func (s *Store) Incomes(ctx context.Context) ([]ledger.Income, error) {
	return s.queryIncomes(ctx, "SELECT "+incomeCols+" FROM incomes ORDER BY budgeted_date ASC")
}

func (s *Store) incomeEdge(ctx context.Context, query string, args ...any) (ledger.Income, bool, error) {
	row := s.q.QueryRowContext(ctx, query, args...)
	in, err := scanIncome(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Income{}, false, nil
	}
	if err != nil {
		return ledger.Income{}, false, err
	}
	return in, true, nil
}

func (s *Store) IncomeOnOrBefore(ctx context.Context, date time.Time) (ledger.Income, bool, error) {
	return s.incomeEdge(ctx,
		"SELECT "+incomeCols+" FROM incomes WHERE budgeted_date <= ? ORDER BY budgeted_date DESC LIMIT 1",
		ledger.DateOf(date).Format(dateFormat))
}

func (s *Store) IncomeBefore(ctx context.Context, date time.Time) (ledger.Income, bool, error) {
	return s.incomeEdge(ctx,
		"SELECT "+incomeCols+" FROM incomes WHERE budgeted_date < ? ORDER BY budgeted_date DESC LIMIT 1",
		ledger.DateOf(date).Format(dateFormat))
}

func (s *Store) FirstIncome(ctx context.Context) (ledger.Income, bool, error) {
	return s.incomeEdge(ctx,
		"SELECT "+incomeCols+" FROM incomes ORDER BY budgeted_date ASC LIMIT 1")
}

func (s *Store) dateTaken(ctx context.Context, date time.Time, exclude uuid.UUID) (bool, error) {
	var n int
	err := s.q.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM incomes WHERE budgeted_date = ? AND id <> ?",
		ledger.DateOf(date).Format(dateFormat), exclude.String()).Scan(&n)
	return n > 0, err
}

func (s *Store) InsertIncomes(ctx context.Context, ins []ledger.Income) error {
	return s.Atomic(ctx, func(st ledger.Store) error {
		tx := st.(*Store)
		seen := map[string]bool{}
		for _, in := range ins {
			key := ledger.DateOf(in.BudgetedDate).Format(dateFormat)
			taken, err := tx.dateTaken(ctx, in.BudgetedDate, in.ID)
			if err != nil {
				return err
			}
			if taken || seen[key] {
				return fmt.Errorf("income on %s: %w", key, ledger.ErrDateCollision)
			}
			seen[key] = true
		}
		for _, in := range ins {
			if err := tx.execInsertIncome(ctx, in); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) execInsertIncome(ctx context.Context, in ledger.Income) error {
	var override any
	if in.CarryOverOverride != nil {
		override = in.CarryOverOverride.String()
	}
	_, err := s.q.ExecContext(ctx,
		"INSERT INTO incomes ("+incomeCols+") VALUES (?, ?, ?, ?, ?, ?, ?)",
		in.ID.String(), in.Budgeted.String(), ledger.DateOf(in.BudgetedDate).Format(dateFormat),
		in.Recurrence, rootArg(in.SeriesRoot), in.TransactionID, override)
	return err
}

func (s *Store) UpdateIncome(ctx context.Context, in ledger.Income) error {
	taken, err := s.dateTaken(ctx, in.BudgetedDate, in.ID)
	if err != nil {
		return err
	}
	if taken {
		return fmt.Errorf("income on %s: %w",
			ledger.DateOf(in.BudgetedDate).Format(dateFormat), ledger.ErrDateCollision)
	}
	var override any
	if in.CarryOverOverride != nil {
		override = in.CarryOverOverride.String()
	}
	res, err := s.q.ExecContext(ctx,
		`UPDATE incomes SET budgeted = ?, budgeted_date = ?, recurrence = ?,
		 series_root = ?, transaction_id = ?, carry_over_override = ? WHERE id = ?`,
		in.Budgeted.String(), ledger.DateOf(in.BudgetedDate).Format(dateFormat), in.Recurrence,
		rootArg(in.SeriesRoot), in.TransactionID, override, in.ID.String())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("income %s: %w", in.ID, ledger.ErrNotFound)
	}
	return nil
}

func (s *Store) DeleteIncomesInSeriesAfter(ctx context.Context, root uuid.UUID, after time.Time) ([]uuid.UUID, error) {
	return s.deleteSeriesAfter(ctx, "incomes", root, after)
}

func (s *Store) deleteSeriesAfter(ctx context.Context, table string, root uuid.UUID, after time.Time) ([]uuid.UUID, error) {
	// Membership is "root column points at root, or the row IS the root",
	// matching Root() on the entity types.
	rows, err := s.q.QueryContext(ctx,
		"SELECT id FROM "+table+" WHERE (series_root = ? OR id = ?) AND budgeted_date > ?",
		root.String(), root.String(), ledger.DateOf(after).Format(dateFormat))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []uuid.UUID
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, id := range ids {
		if _, err := s.q.ExecContext(ctx, "DELETE FROM "+table+" WHERE id = ?", id.String()); err != nil {
			return nil, err
		}
	}
	return ids, nil
}

const expenseCols = "id, budgeted, budgeted_date, description, recurrence, series_root, income_id, transaction_id"

func scanExpense(row interface{ Scan(...any) error }) (ledger.Expense, error) {
	var (
		e        ledger.Expense
		id       string
		budgeted string
		date     string
		root     string
		income   string
	)
	if err := row.Scan(&id, &budgeted, &date, &e.Description, &e.Recurrence, &root, &income, &e.TransactionID); err != nil {
		return ledger.Expense{}, err
	}
	var err error
	if e.ID, err = uuid.Parse(id); err != nil {
		return ledger.Expense{}, fmt.Errorf("expense id %q: %w", id, err)
	}
	if e.Budgeted, err = decimal.NewFromString(budgeted); err != nil {
		return ledger.Expense{}, fmt.Errorf("expense %s amount: %w", id, err)
	}
	if e.BudgetedDate, err = time.ParseInLocation(dateFormat, date, time.UTC); err != nil {
		return ledger.Expense{}, fmt.Errorf("expense %s date: %w", id, err)
	}
	if e.SeriesRoot, err = parseRoot(root); err != nil {
		return ledger.Expense{}, fmt.Errorf("expense %s root: %w", id, err)
	}
	if e.IncomeID, err = parseRoot(income); err != nil {
		return ledger.Expense{}, fmt.Errorf("expense %s income: %w", id, err)
	}
	return e, nil
}

func (s *Store) Expense(ctx context.Context, id uuid.UUID) (ledger.Expense, error) {
	row := s.q.QueryRowContext(ctx, "SELECT "+expenseCols+" FROM expenses WHERE id = ?", id.String())
	e, err := scanExpense(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Expense{}, fmt.Errorf("expense %s: %w", id, ledger.ErrNotFound)
	}
	return e, err
}

func (s *Store) queryExpenses(ctx context.Context, query string, args ...any) ([]ledger.Expense, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ledger.Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) Expenses(ctx context.Context) ([]ledger.Expense, error) {
	return s.queryExpenses(ctx, "SELECT "+expenseCols+" FROM expenses ORDER BY budgeted_date ASC, id ASC")
}

func (s *Store) ExpensesOwnedBy(ctx context.Context, incomeID uuid.UUID) ([]ledger.Expense, error) {
	return s.queryExpenses(ctx,
		"SELECT "+expenseCols+" FROM expenses WHERE income_id = ? ORDER BY budgeted_date ASC, id ASC",
		incomeID.String())
}

func (s *Store) InsertExpenses(ctx context.Context, exps []ledger.Expense) error {
	return s.Atomic(ctx, func(st ledger.Store) error {
		tx := st.(*Store)
		for _, e := range exps {
			_, err := tx.q.ExecContext(ctx,
				"INSERT INTO expenses ("+expenseCols+") VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
				e.ID.String(), e.Budgeted.String(), ledger.DateOf(e.BudgetedDate).Format(dateFormat),
				e.Description, e.Recurrence, rootArg(e.SeriesRoot), rootArg(e.IncomeID), e.TransactionID)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) UpdateExpense(ctx context.Context, e ledger.Expense) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE expenses SET budgeted = ?, budgeted_date = ?, description = ?,
		 recurrence = ?, series_root = ?, income_id = ?, transaction_id = ? WHERE id = ?`,
		e.Budgeted.String(), ledger.DateOf(e.BudgetedDate).Format(dateFormat), e.Description,
		e.Recurrence, rootArg(e.SeriesRoot), rootArg(e.IncomeID), e.TransactionID, e.ID.String())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("expense %s: %w", e.ID, ledger.ErrNotFound)
	}
	return nil
}

func (s *Store) DeleteExpensesInSeriesAfter(ctx context.Context, root uuid.UUID, after time.Time) ([]uuid.UUID, error) {
	return s.deleteSeriesAfter(ctx, "expenses", root, after)
}

func (s *Store) Transaction(ctx context.Context, id string) (ledger.Transaction, error) {
	row := s.q.QueryRowContext(ctx,
		"SELECT id, name, memo, amount, posted, check_number, tx_type, account_id FROM transactions WHERE id = ?", id)
	tx, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Transaction{}, fmt.Errorf("transaction %s: %w", id, ledger.ErrNotFound)
	}
	return tx, err
}

func scanTransaction(row interface{ Scan(...any) error }) (ledger.Transaction, error) {
	var (
		tx     ledger.Transaction
		amount string
		posted string
		kind   string
	)
	if err := row.Scan(&tx.ID, &tx.Name, &tx.Memo, &amount, &posted, &tx.CheckNumber, &kind, &tx.AccountID); err != nil {
		return ledger.Transaction{}, err
	}
	var err error
	if tx.Amount, err = decimal.NewFromString(amount); err != nil {
		return ledger.Transaction{}, fmt.Errorf("transaction %s amount: %w", tx.ID, err)
	}
	if tx.Posted, err = time.Parse(time.RFC3339, posted); err != nil {
		return ledger.Transaction{}, fmt.Errorf("transaction %s posted: %w", tx.ID, err)
	}
	tx.Type = ledger.TransactionType(kind)
	return tx, nil
}

func (s *Store) Transactions(ctx context.Context) ([]ledger.Transaction, error) {
	rows, err := s.q.QueryContext(ctx,
		"SELECT id, name, memo, amount, posted, check_number, tx_type, account_id FROM transactions ORDER BY posted ASC, id ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ledger.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

func (s *Store) InsertTransactions(ctx context.Context, txs []ledger.Transaction) (int, error) {
	added := 0
	err := s.Atomic(ctx, func(st ledger.Store) error {
		tx := st.(*Store)
		for _, t := range txs {
			res, err := tx.q.ExecContext(ctx,
				`INSERT OR IGNORE INTO transactions
				 (id, name, memo, amount, posted, check_number, tx_type, account_id)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				t.ID, t.Name, t.Memo, t.Amount.String(), t.Posted.UTC().Format(time.RFC3339),
				t.CheckNumber, string(t.Type), t.AccountID)
			if err != nil {
				return err
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			added += int(n)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return added, nil
}

func (s *Store) Accounts(ctx context.Context) ([]ledger.Account, error) {
	rows, err := s.q.QueryContext(ctx,
		"SELECT id, acct_type, acct_number, bank FROM accounts ORDER BY id ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ledger.Account
	for rows.Next() {
		var a ledger.Account
		if err := rows.Scan(&a.ID, &a.Type, &a.Number, &a.Bank); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) UpsertAccount(ctx context.Context, a ledger.Account) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO accounts (id, acct_type, acct_number, bank) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET acct_type = excluded.acct_type,
		 acct_number = excluded.acct_number, bank = excluded.bank`,
		a.ID, a.Type, a.Number, a.Bank)
	return err
}
