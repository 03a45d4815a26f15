package ledger

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func date(s string) time.Time {
	t, err := time.ParseInLocation("2006-01-02", s, time.UTC)
	if err != nil {
		panic(err)
	}
	return t
}

func amount(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func income(budgeted, day string) Income {
	return Income{ID: uuid.New(), Budgeted: amount(budgeted), BudgetedDate: date(day)}
}

func TestInsertIncomesRejectsDateCollision(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()

	if err := st.InsertIncomes(ctx, []Income{income("1000.00", "2020-10-23")}); err != nil {
		t.Fatalf("inserting: %v", err)
	}

	tests := []struct {
		name  string
		batch []Income
	}{
		{"against existing", []Income{income("500.00", "2020-10-23")}},
		{"within batch", []Income{income("500.00", "2020-11-06"), income("600.00", "2020-11-06")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := st.InsertIncomes(ctx, tt.batch)
			if !errors.Is(err, ErrDateCollision) {
				t.Fatalf("expected ErrDateCollision, got %v", err)
			}
		})
	}

	// Neither failed batch may have written anything.
	ins, err := st.Incomes(ctx)
	if err != nil {
		t.Fatalf("listing: %v", err)
	}
	if len(ins) != 1 {
		t.Errorf("expected 1 income record, got %d", len(ins))
	}
}

func TestUpdateIncomeRejectsDateCollision(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()

	a := income("1000.00", "2020-10-23")
	b := income("1000.00", "2020-11-06")
	if err := st.InsertIncomes(ctx, []Income{a, b}); err != nil {
		t.Fatalf("inserting: %v", err)
	}

	b.BudgetedDate = date("2020-10-23")
	if err := st.UpdateIncome(ctx, b); !errors.Is(err, ErrDateCollision) {
		t.Errorf("expected ErrDateCollision, got %v", err)
	}

	// Re-saving on its own date is not a collision.
	b.BudgetedDate = date("2020-11-06")
	b.Budgeted = amount("1100.00")
	if err := st.UpdateIncome(ctx, b); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestIncomeQueries(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()

	first := income("1000.00", "2020-10-23")
	second := income("1000.00", "2020-11-06")
	third := income("1000.00", "2020-11-20")
	// Insertion order must not matter.
	if err := st.InsertIncomes(ctx, []Income{third, first, second}); err != nil {
		t.Fatalf("inserting: %v", err)
	}

	ins, err := st.Incomes(ctx)
	if err != nil {
		t.Fatalf("listing: %v", err)
	}
	if len(ins) != 3 || ins[0].ID != first.ID || ins[2].ID != third.ID {
		t.Error("expected the listing ordered by date")
	}

	in, ok, err := st.IncomeOnOrBefore(ctx, date("2020-11-06"))
	if err != nil || !ok || in.ID != second.ID {
		t.Errorf("IncomeOnOrBefore(2020-11-06) = %v, %v, %v; want the 2020-11-06 record", in.ID, ok, err)
	}
	in, ok, err = st.IncomeBefore(ctx, date("2020-11-06"))
	if err != nil || !ok || in.ID != first.ID {
		t.Errorf("IncomeBefore(2020-11-06) = %v, %v, %v; want the 2020-10-23 record", in.ID, ok, err)
	}
	_, ok, err = st.IncomeBefore(ctx, date("2020-10-23"))
	if err != nil || ok {
		t.Errorf("expected no income before the earliest, got ok=%v err=%v", ok, err)
	}
	in, ok, err = st.FirstIncome(ctx)
	if err != nil || !ok || in.ID != first.ID {
		t.Errorf("FirstIncome = %v, %v, %v; want the earliest record", in.ID, ok, err)
	}

	if _, err := st.Income(ctx, uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteIncomesInSeriesAfter(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()

	head := income("1000.00", "2020-10-23")
	mid := income("1000.00", "2020-11-06")
	mid.SeriesRoot = head.ID
	tail := income("1000.00", "2020-11-20")
	tail.SeriesRoot = head.ID
	other := income("500.00", "2020-12-01")
	if err := st.InsertIncomes(ctx, []Income{head, mid, tail, other}); err != nil {
		t.Fatalf("inserting: %v", err)
	}

	removed, err := st.DeleteIncomesInSeriesAfter(ctx, head.ID, date("2020-11-06"))
	if err != nil {
		t.Fatalf("deleting: %v", err)
	}
	if len(removed) != 1 || removed[0] != tail.ID {
		t.Errorf("expected exactly the tail removed, got %v", removed)
	}
	// The head, the cutoff occurrence, and the unrelated record survive.
	ins, err := st.Incomes(ctx)
	if err != nil {
		t.Fatalf("listing: %v", err)
	}
	if len(ins) != 3 {
		t.Errorf("expected 3 surviving records, got %d", len(ins))
	}
}

func TestAtomicRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()

	if err := st.InsertIncomes(ctx, []Income{income("1000.00", "2020-10-23")}); err != nil {
		t.Fatalf("inserting: %v", err)
	}

	boom := errors.New("boom")
	err := st.Atomic(ctx, func(tx Store) error {
		if err := tx.InsertIncomes(ctx, []Income{income("1000.00", "2020-11-06")}); err != nil {
			return err
		}
		e := Expense{ID: uuid.New(), Budgeted: amount("50.00"), BudgetedDate: date("2020-10-24")}
		if err := tx.InsertExpenses(ctx, []Expense{e}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected the callback error, got %v", err)
	}

	ins, err := st.Incomes(ctx)
	if err != nil {
		t.Fatalf("listing incomes: %v", err)
	}
	if len(ins) != 1 {
		t.Errorf("expected the income write rolled back, got %d records", len(ins))
	}
	exps, err := st.Expenses(ctx)
	if err != nil {
		t.Fatalf("listing expenses: %v", err)
	}
	if len(exps) != 0 {
		t.Errorf("expected the expense write rolled back, got %d records", len(exps))
	}
}

func TestAtomicCommitsAndNests(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()

	err := st.Atomic(ctx, func(tx Store) error {
		if err := tx.InsertIncomes(ctx, []Income{income("1000.00", "2020-10-23")}); err != nil {
			return err
		}
		// A nested unit of work joins the enclosing one.
		return tx.Atomic(ctx, func(inner Store) error {
			return inner.InsertIncomes(ctx, []Income{income("1000.00", "2020-11-06")})
		})
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ins, err := st.Incomes(ctx)
	if err != nil {
		t.Fatalf("listing: %v", err)
	}
	if len(ins) != 2 {
		t.Errorf("expected both writes committed, got %d records", len(ins))
	}
}

func TestInsertTransactionsIsIdempotent(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()

	batch := []Transaction{
		{ID: "t1", Name: "COFFEE", Amount: amount("-4.50"), Posted: date("2020-10-23"), Type: TxDebit},
		{ID: "t2", Name: "PAYROLL", Amount: amount("1000.00"), Posted: date("2020-10-23"), Type: TxCredit},
	}
	added, err := st.InsertTransactions(ctx, batch)
	if err != nil || added != 2 {
		t.Fatalf("first insert added %d (%v), want 2", added, err)
	}
	added, err = st.InsertTransactions(ctx, batch)
	if err != nil || added != 0 {
		t.Fatalf("re-insert added %d (%v), want 0", added, err)
	}
	txs, err := st.Transactions(ctx)
	if err != nil {
		t.Fatalf("listing: %v", err)
	}
	if len(txs) != 2 {
		t.Errorf("expected 2 transactions, got %d", len(txs))
	}
}

func TestMaybePaycheck(t *testing.T) {
	tests := []struct {
		tx   Transaction
		want bool
	}{
		{Transaction{Amount: amount("1000.00"), Type: TxCredit}, true},
		{Transaction{Amount: amount("1000.00"), Type: TxDirectDep}, true},
		{Transaction{Amount: amount("1000.00"), Type: TxOther}, true},
		{Transaction{Amount: amount("1000.00"), Type: TxDebit}, false},
		{Transaction{Amount: amount("-1000.00"), Type: TxCredit}, false},
		{Transaction{Amount: amount("0"), Type: TxCredit}, false},
	}
	for _, tt := range tests {
		name := fmt.Sprintf("%s %s", tt.tx.Type, tt.tx.Amount)
		t.Run(name, func(t *testing.T) {
			if got := tt.tx.MaybePaycheck(); got != tt.want {
				t.Errorf("MaybePaycheck() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDateHelpers(t *testing.T) {
	stamp := time.Date(2020, 10, 23, 14, 30, 12, 999, time.FixedZone("X", -5*3600))
	d := DateOf(stamp)
	if d.Hour() != 0 || d.Location() != time.UTC {
		t.Errorf("DateOf did not normalize to UTC midnight: %v", d)
	}
	if !SameDate(stamp, d) {
		t.Error("SameDate should ignore time of day")
	}
	if SameDate(date("2020-10-23"), date("2020-10-24")) {
		t.Error("SameDate across days should be false")
	}
}
