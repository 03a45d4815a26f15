package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store. It backs tests and ad-hoc runs against
// a throwaway ledger; durable setups use the sqlite store instead.
type MemoryStore struct {
	mu    sync.RWMutex
	state *memState
}

type memState struct {
	incomes  map[uuid.UUID]Income
	expenses map[uuid.UUID]Expense
	txs      map[string]Transaction
	accounts map[string]Account
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: newMemState()}
}

func newMemState() *memState {
	return &memState{
		incomes:  map[uuid.UUID]Income{},
		expenses: map[uuid.UUID]Expense{},
		txs:      map[string]Transaction{},
		accounts: map[string]Account{},
	}
}

func (st *memState) clone() *memState {
	c := newMemState()
	for k, v := range st.incomes {
		c.incomes[k] = v
	}
	for k, v := range st.expenses {
		c.expenses[k] = v
	}
	for k, v := range st.txs {
		c.txs[k] = v
	}
	for k, v := range st.accounts {
		c.accounts[k] = v
	}
	return c
}

// Atomic clones the current state, applies fn to the clone, and swaps it in
// only when fn succeeds. A failed unit of work leaves no trace.
func (s *MemoryStore) Atomic(ctx context.Context, fn func(Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.state.clone()
	if err := fn(&memTx{state: work}); err != nil {
		return err
	}
	s.state = work
	return nil
}

func (s *MemoryStore) Income(ctx context.Context, id uuid.UUID) (Income, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.income(id)
}

func (s *MemoryStore) Incomes(ctx context.Context) ([]Income, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.incomesByDate(), nil
}

func (s *MemoryStore) IncomeOnOrBefore(ctx context.Context, date time.Time) (Income, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	in, ok := s.state.incomeOnOrBefore(date, true)
	return in, ok, nil
}

func (s *MemoryStore) IncomeBefore(ctx context.Context, date time.Time) (Income, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	in, ok := s.state.incomeOnOrBefore(date, false)
	return in, ok, nil
}

func (s *MemoryStore) FirstIncome(ctx context.Context) (Income, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	in, ok := s.state.firstIncome()
	return in, ok, nil
}

func (s *MemoryStore) InsertIncomes(ctx context.Context, ins []Income) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.insertIncomes(ins)
}

func (s *MemoryStore) UpdateIncome(ctx context.Context, in Income) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.updateIncome(in)
}

func (s *MemoryStore) DeleteIncomesInSeriesAfter(ctx context.Context, root uuid.UUID, after time.Time) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.deleteIncomesInSeriesAfter(root, after), nil
}

func (s *MemoryStore) Expense(ctx context.Context, id uuid.UUID) (Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.expense(id)
}

func (s *MemoryStore) Expenses(ctx context.Context) ([]Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.expensesByDate(), nil
}

func (s *MemoryStore) ExpensesOwnedBy(ctx context.Context, incomeID uuid.UUID) ([]Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.expensesOwnedBy(incomeID), nil
}

func (s *MemoryStore) InsertExpenses(ctx context.Context, exps []Expense) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.insertExpenses(exps)
	return nil
}

func (s *MemoryStore) UpdateExpense(ctx context.Context, e Expense) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.updateExpense(e)
}

func (s *MemoryStore) DeleteExpensesInSeriesAfter(ctx context.Context, root uuid.UUID, after time.Time) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.deleteExpensesInSeriesAfter(root, after), nil
}

func (s *MemoryStore) Transaction(ctx context.Context, id string) (Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.transaction(id)
}

func (s *MemoryStore) Transactions(ctx context.Context) ([]Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.transactionsByDate(), nil
}

func (s *MemoryStore) InsertTransactions(ctx context.Context, txs []Transaction) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.insertTransactions(txs), nil
}

func (s *MemoryStore) Accounts(ctx context.Context) ([]Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.accountList(), nil
}

func (s *MemoryStore) UpsertAccount(ctx context.Context, a Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.accounts[a.ID] = a
	return nil
}

// memTx is the view handed to Atomic callbacks. It works on the cloned
// state without locking; the parent store holds its lock for the duration.
type memTx struct {
	state *memState
}

func (t *memTx) Atomic(ctx context.Context, fn func(Store) error) error {
	// Already inside a unit of work.
	return fn(t)
}

func (t *memTx) Income(ctx context.Context, id uuid.UUID) (Income, error) {
	return t.state.income(id)
}

func (t *memTx) Incomes(ctx context.Context) ([]Income, error) {
	return t.state.incomesByDate(), nil
}

func (t *memTx) IncomeOnOrBefore(ctx context.Context, date time.Time) (Income, bool, error) {
	in, ok := t.state.incomeOnOrBefore(date, true)
	return in, ok, nil
}

func (t *memTx) IncomeBefore(ctx context.Context, date time.Time) (Income, bool, error) {
	in, ok := t.state.incomeOnOrBefore(date, false)
	return in, ok, nil
}

func (t *memTx) FirstIncome(ctx context.Context) (Income, bool, error) {
	in, ok := t.state.firstIncome()
	return in, ok, nil
}

func (t *memTx) InsertIncomes(ctx context.Context, ins []Income) error {
	return t.state.insertIncomes(ins)
}

func (t *memTx) UpdateIncome(ctx context.Context, in Income) error {
	return t.state.updateIncome(in)
}

func (t *memTx) DeleteIncomesInSeriesAfter(ctx context.Context, root uuid.UUID, after time.Time) ([]uuid.UUID, error) {
	return t.state.deleteIncomesInSeriesAfter(root, after), nil
}

func (t *memTx) Expense(ctx context.Context, id uuid.UUID) (Expense, error) {
	return t.state.expense(id)
}

func (t *memTx) Expenses(ctx context.Context) ([]Expense, error) {
	return t.state.expensesByDate(), nil
}

func (t *memTx) ExpensesOwnedBy(ctx context.Context, incomeID uuid.UUID) ([]Expense, error) {
	return t.state.expensesOwnedBy(incomeID), nil
}

func (t *memTx) InsertExpenses(ctx context.Context, exps []Expense) error {
	t.state.insertExpenses(exps)
	return nil
}

func (t *memTx) UpdateExpense(ctx context.Context, e Expense) error {
	return t.state.updateExpense(e)
}

func (t *memTx) DeleteExpensesInSeriesAfter(ctx context.Context, root uuid.UUID, after time.Time) ([]uuid.UUID, error) {
	return t.state.deleteExpensesInSeriesAfter(root, after), nil
}

func (t *memTx) Transaction(ctx context.Context, id string) (Transaction, error) {
	return t.state.transaction(id)
}

func (t *memTx) Transactions(ctx context.Context) ([]Transaction, error) {
	return t.state.transactionsByDate(), nil
}

func (t *memTx) InsertTransactions(ctx context.Context, txs []Transaction) (int, error) {
	return t.state.insertTransactions(txs), nil
}

func (t *memTx) Accounts(ctx context.Context) ([]Account, error) {
	return t.state.accountList(), nil
}

func (t *memTx) UpsertAccount(ctx context.Context, a Account) error {
	t.state.accounts[a.ID] = a
	return nil
}

func (st *memState) income(id uuid.UUID) (Income, error) {
	in, ok := st.incomes[id]
	if !ok {
		return Income{}, fmt.Errorf("income %s: %w", id, ErrNotFound)
	}
	return in, nil
}

func (st *memState) incomesByDate() []Income {
	out := make([]Income, 0, len(st.incomes))
	for _, in := range st.incomes {
		out = append(out, in)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].BudgetedDate.Before(out[j].BudgetedDate)
	})
	return out
}

func (st *memState) incomeOnOrBefore(date time.Time, inclusive bool) (Income, bool) {
	date = DateOf(date)
	var best Income
	found := false
	for _, in := range st.incomes {
		d := DateOf(in.BudgetedDate)
		if d.After(date) || (!inclusive && d.Equal(date)) {
			continue
		}
		if !found || d.After(DateOf(best.BudgetedDate)) {
			best = in
			found = true
		}
	}
	return best, found
}

func (st *memState) firstIncome() (Income, bool) {
	var first Income
	found := false
	for _, in := range st.incomes {
		if !found || in.BudgetedDate.Before(first.BudgetedDate) {
			first = in
			found = true
		}
	}
	return first, found
}

func (st *memState) dateTaken(date time.Time, exclude uuid.UUID) bool {
	for _, in := range st.incomes {
		if in.ID != exclude && SameDate(in.BudgetedDate, date) {
			return true
		}
	}
	return false
}

func (st *memState) insertIncomes(ins []Income) error {
	// Validate the whole batch before touching state so a conflict cannot
	// leave a partial write behind.
	seen := map[string]bool{}
	for _, in := range ins {
		key := DateOf(in.BudgetedDate).Format("2006-01-02")
		if seen[key] || st.dateTaken(in.BudgetedDate, in.ID) {
			return fmt.Errorf("income on %s: %w", key, ErrDateCollision)
		}
		seen[key] = true
	}
	for _, in := range ins {
		in.BudgetedDate = DateOf(in.BudgetedDate)
		st.incomes[in.ID] = in
	}
	return nil
}

func (st *memState) updateIncome(in Income) error {
	if _, ok := st.incomes[in.ID]; !ok {
		return fmt.Errorf("income %s: %w", in.ID, ErrNotFound)
	}
	if st.dateTaken(in.BudgetedDate, in.ID) {
		return fmt.Errorf("income on %s: %w", DateOf(in.BudgetedDate).Format("2006-01-02"), ErrDateCollision)
	}
	in.BudgetedDate = DateOf(in.BudgetedDate)
	st.incomes[in.ID] = in
	return nil
}

func (st *memState) deleteIncomesInSeriesAfter(root uuid.UUID, after time.Time) []uuid.UUID {
	after = DateOf(after)
	var removed []uuid.UUID
	for id, in := range st.incomes {
		if in.Root() == root && DateOf(in.BudgetedDate).After(after) {
			removed = append(removed, id)
		}
	}
	for _, id := range removed {
		delete(st.incomes, id)
	}
	return removed
}

func (st *memState) expense(id uuid.UUID) (Expense, error) {
	e, ok := st.expenses[id]
	if !ok {
		return Expense{}, fmt.Errorf("expense %s: %w", id, ErrNotFound)
	}
	return e, nil
}

func (st *memState) expensesByDate() []Expense {
	out := make([]Expense, 0, len(st.expenses))
	for _, e := range st.expenses {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].BudgetedDate.Equal(out[j].BudgetedDate) {
			return out[i].BudgetedDate.Before(out[j].BudgetedDate)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

func (st *memState) expensesOwnedBy(incomeID uuid.UUID) []Expense {
	var out []Expense
	for _, e := range st.expenses {
		if e.IncomeID == incomeID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].BudgetedDate.Equal(out[j].BudgetedDate) {
			return out[i].BudgetedDate.Before(out[j].BudgetedDate)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

func (st *memState) insertExpenses(exps []Expense) {
	for _, e := range exps {
		e.BudgetedDate = DateOf(e.BudgetedDate)
		st.expenses[e.ID] = e
	}
}

func (st *memState) updateExpense(e Expense) error {
	if _, ok := st.expenses[e.ID]; !ok {
		return fmt.Errorf("expense %s: %w", e.ID, ErrNotFound)
	}
	e.BudgetedDate = DateOf(e.BudgetedDate)
	st.expenses[e.ID] = e
	return nil
}

func (st *memState) deleteExpensesInSeriesAfter(root uuid.UUID, after time.Time) []uuid.UUID {
	after = DateOf(after)
	var removed []uuid.UUID
	for id, e := range st.expenses {
		if e.Root() == root && DateOf(e.BudgetedDate).After(after) {
			removed = append(removed, id)
		}
	}
	for _, id := range removed {
		delete(st.expenses, id)
	}
	return removed
}

func (st *memState) transaction(id string) (Transaction, error) {
	tx, ok := st.txs[id]
	if !ok {
		return Transaction{}, fmt.Errorf("transaction %s: %w", id, ErrNotFound)
	}
	return tx, nil
}

func (st *memState) transactionsByDate() []Transaction {
	out := make([]Transaction, 0, len(st.txs))
	for _, tx := range st.txs {
		out = append(out, tx)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Posted.Equal(out[j].Posted) {
			return out[i].Posted.Before(out[j].Posted)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (st *memState) insertTransactions(txs []Transaction) int {
	added := 0
	for _, tx := range txs {
		if _, ok := st.txs[tx.ID]; ok {
			continue
		}
		st.txs[tx.ID] = tx
		added++
	}
	return added
}

func (st *memState) accountList() []Account {
	out := make([]Account, 0, len(st.accounts))
	for _, a := range st.accounts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
