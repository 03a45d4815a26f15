package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store is the persistence capability the engine runs against. Incomes and
// expenses are returned in ascending budgeted-date order wherever a slice is
// returned. Implementations enforce the income date-uniqueness invariant on
// every insert and update, returning ErrDateCollision on violation.
type Store interface {
	// Atomic runs fn against a transactional view of the store. If fn
	// returns an error none of its writes become visible.
	Atomic(ctx context.Context, fn func(Store) error) error

	Income(ctx context.Context, id uuid.UUID) (Income, error)
	Incomes(ctx context.Context) ([]Income, error)
	// IncomeOnOrBefore returns the income with the greatest budgeted date
	// at or before the given date. ok is false when none exists.
	IncomeOnOrBefore(ctx context.Context, date time.Time) (in Income, ok bool, err error)
	// IncomeBefore is IncomeOnOrBefore with a strict bound, used for
	// predecessor lookups.
	IncomeBefore(ctx context.Context, date time.Time) (in Income, ok bool, err error)
	// FirstIncome returns the chronologically earliest income on record.
	FirstIncome(ctx context.Context) (in Income, ok bool, err error)
	// InsertIncomes creates all given incomes or none of them.
	InsertIncomes(ctx context.Context, ins []Income) error
	UpdateIncome(ctx context.Context, in Income) error
	// DeleteIncomesInSeriesAfter removes members of the series rooted at
	// root dated strictly after the given date. Returns the removed IDs.
	DeleteIncomesInSeriesAfter(ctx context.Context, root uuid.UUID, after time.Time) ([]uuid.UUID, error)

	Expense(ctx context.Context, id uuid.UUID) (Expense, error)
	Expenses(ctx context.Context) ([]Expense, error)
	ExpensesOwnedBy(ctx context.Context, incomeID uuid.UUID) ([]Expense, error)
	InsertExpenses(ctx context.Context, exps []Expense) error
	UpdateExpense(ctx context.Context, e Expense) error
	DeleteExpensesInSeriesAfter(ctx context.Context, root uuid.UUID, after time.Time) ([]uuid.UUID, error)

	Transaction(ctx context.Context, id string) (Transaction, error)
	Transactions(ctx context.Context) ([]Transaction, error)
	// InsertTransactions adds the transactions that are not yet present,
	// keyed by ID, and reports how many were added. Re-importing the same
	// batch is a no-op.
	InsertTransactions(ctx context.Context, txs []Transaction) (added int, err error)

	Accounts(ctx context.Context) ([]Account, error)
	UpsertAccount(ctx context.Context, a Account) error
}
