package series

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cream-budget/cream/internal/ledger"
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

const biweeklyFriday = "RRULE:FREQ=WEEKLY;INTERVAL=2;BYDAY=FR;UNTIL=20211023T000000Z"

func newIncomeTemplate(t *testing.T, st ledger.Store, budgeted, day, rule string) ledger.Income {
	t.Helper()
	in := ledger.Income{
		ID:           uuid.New(),
		Budgeted:     amount(budgeted),
		BudgetedDate: date(day),
		Recurrence:   rule,
	}
	if err := st.InsertIncomes(context.Background(), []ledger.Income{in}); err != nil {
		t.Fatalf("inserting income template: %v", err)
	}
	return in
}

func newExpenseTemplate(t *testing.T, st ledger.Store, budgeted, day, descr, rule string) ledger.Expense {
	t.Helper()
	e := ledger.Expense{
		ID:           uuid.New(),
		Budgeted:     amount(budgeted),
		BudgetedDate: date(day),
		Description:  descr,
		Recurrence:   rule,
	}
	if err := st.InsertExpenses(context.Background(), []ledger.Expense{e}); err != nil {
		t.Fatalf("inserting expense template: %v", err)
	}
	return e
}

func incomesSorted(t *testing.T, st ledger.Store) []ledger.Income {
	t.Helper()
	ins, err := st.Incomes(context.Background())
	if err != nil {
		t.Fatalf("listing incomes: %v", err)
	}
	return ins
}

func TestCreateIncomeSeries(t *testing.T) {
	ctx := context.Background()
	st := ledger.NewMemoryStore()
	mgr := NewManager(st, 0)

	tmpl := newIncomeTemplate(t, st, "1000.00", "2020-10-23", biweeklyFriday)
	ids, err := mgr.CreateSeries(ctx, IncomeSeries{}, tmpl.ID)
	if err != nil {
		t.Fatalf("creating series: %v", err)
	}
	if len(ids) != 27 {
		t.Fatalf("expected 27 member IDs, got %d", len(ids))
	}
	if ids[0] != tmpl.ID {
		t.Error("expected the template ID first in the result")
	}

	ins := incomesSorted(t, st)
	if len(ins) != 27 {
		t.Fatalf("expected 27 income records, got %d", len(ins))
	}
	if ins[0].ID != tmpl.ID {
		t.Error("expected the template to be the earliest occurrence")
	}
	if ins[0].SeriesRoot != uuid.Nil {
		t.Error("expected the template to head the series")
	}
	for i, in := range ins {
		if i == 0 {
			continue
		}
		if in.SeriesRoot != tmpl.ID {
			t.Errorf("occurrence %d not grouped under the template", i)
		}
		if !in.Budgeted.Equal(tmpl.Budgeted) {
			t.Errorf("occurrence %d budgeted %s, want %s", i, in.Budgeted, tmpl.Budgeted)
		}
		if in.Recurrence != tmpl.Recurrence {
			t.Errorf("occurrence %d lost the recurrence text", i)
		}
		want := date("2020-10-23").AddDate(0, 0, 14*i)
		if !ledger.SameDate(in.BudgetedDate, want) {
			t.Errorf("occurrence %d on %s, want %s",
				i, in.BudgetedDate.Format("2006-01-02"), want.Format("2006-01-02"))
		}
	}
}

func TestCreateIncomeSeriesSnapsTemplateDate(t *testing.T) {
	ctx := context.Background()
	st := ledger.NewMemoryStore()
	mgr := NewManager(st, 0)

	// Thursday anchor against a Friday rule: the template itself moves to
	// the first rule-valid date.
	tmpl := newIncomeTemplate(t, st, "1000.00", "2020-10-22", biweeklyFriday)
	if _, err := mgr.CreateSeries(ctx, IncomeSeries{}, tmpl.ID); err != nil {
		t.Fatalf("creating series: %v", err)
	}

	ins := incomesSorted(t, st)
	if len(ins) != 27 {
		t.Fatalf("expected 27 income records, got %d", len(ins))
	}
	got, err := st.Income(ctx, tmpl.ID)
	if err != nil {
		t.Fatalf("reloading template: %v", err)
	}
	if !ledger.SameDate(got.BudgetedDate, date("2020-10-23")) {
		t.Errorf("template date %s, want snapped 2020-10-23", got.BudgetedDate.Format("2006-01-02"))
	}
}

func TestCreateSeriesWithoutRecurrence(t *testing.T) {
	ctx := context.Background()
	st := ledger.NewMemoryStore()
	mgr := NewManager(st, 0)

	tmpl := newIncomeTemplate(t, st, "1000.00", "2020-10-23", "")
	ids, err := mgr.CreateSeries(ctx, IncomeSeries{}, tmpl.ID)
	if err != nil {
		t.Fatalf("creating series: %v", err)
	}
	if len(ids) != 1 || ids[0] != tmpl.ID {
		t.Errorf("expected a series of one, got %d members", len(ids))
	}
	if got := incomesSorted(t, st); len(got) != 1 {
		t.Errorf("expected 1 income record, got %d", len(got))
	}
}

func TestCreateSeriesDateCollisionRollsBack(t *testing.T) {
	ctx := context.Background()
	st := ledger.NewMemoryStore()
	mgr := NewManager(st, 0)

	// A standalone income already sits on one of the dates the expansion
	// will produce.
	newIncomeTemplate(t, st, "500.00", "2020-11-06", "")
	tmpl := newIncomeTemplate(t, st, "1000.00", "2020-10-23", biweeklyFriday)

	_, err := mgr.CreateSeries(ctx, IncomeSeries{}, tmpl.ID)
	if !errors.Is(err, ledger.ErrDateCollision) {
		t.Fatalf("expected ErrDateCollision, got %v", err)
	}
	// The failed expansion must leave no partial tail behind.
	if got := incomesSorted(t, st); len(got) != 2 {
		t.Errorf("expected 2 income records after rollback, got %d", len(got))
	}
}

func TestCreateExpenseSeriesWithoutIncomeRollsBack(t *testing.T) {
	ctx := context.Background()
	st := ledger.NewMemoryStore()
	mgr := NewManager(st, 0)

	tmpl := newExpenseTemplate(t, st, "120.00", "2020-10-20",
		"electricity", "RRULE:FREQ=MONTHLY;BYMONTHDAY=17;UNTIL=20210917T000000Z")
	_, err := mgr.CreateSeries(ctx, ExpenseSeries{}, tmpl.ID)
	if !errors.Is(err, ledger.ErrNoIncome) {
		t.Fatalf("expected ErrNoIncome, got %v", err)
	}

	exps, err := st.Expenses(ctx)
	if err != nil {
		t.Fatalf("listing expenses: %v", err)
	}
	if len(exps) != 1 {
		t.Errorf("expected only the template after rollback, got %d records", len(exps))
	}
}

func TestCreateExpenseSeriesAttributesOwners(t *testing.T) {
	ctx := context.Background()
	st := ledger.NewMemoryStore()
	mgr := NewManager(st, 0)

	paycheck := newIncomeTemplate(t, st, "1000.00", "2020-10-23", biweeklyFriday)
	if _, err := mgr.CreateSeries(ctx, IncomeSeries{}, paycheck.ID); err != nil {
		t.Fatalf("creating income series: %v", err)
	}

	tmpl := newExpenseTemplate(t, st, "120.00", "2020-10-20",
		"electricity", "RRULE:FREQ=MONTHLY;BYMONTHDAY=17;UNTIL=20210917T000000Z")
	ids, err := mgr.CreateSeries(ctx, ExpenseSeries{}, tmpl.ID)
	if err != nil {
		t.Fatalf("creating expense series: %v", err)
	}
	if len(ids) != 11 {
		t.Fatalf("expected 11 expense occurrences, got %d", len(ids))
	}

	got, err := st.Expense(ctx, tmpl.ID)
	if err != nil {
		t.Fatalf("reloading template: %v", err)
	}
	if !ledger.SameDate(got.BudgetedDate, date("2020-11-17")) {
		t.Errorf("template date %s, want snapped 2020-11-17", got.BudgetedDate.Format("2006-01-02"))
	}

	exps, err := st.Expenses(ctx)
	if err != nil {
		t.Fatalf("listing expenses: %v", err)
	}
	owners := map[uuid.UUID]bool{}
	for _, e := range exps {
		if e.IncomeID == uuid.Nil {
			t.Fatalf("expense on %s has no owning period", e.BudgetedDate.Format("2006-01-02"))
		}
		owner, err := st.Income(ctx, e.IncomeID)
		if err != nil {
			t.Fatalf("loading owner: %v", err)
		}
		if owner.BudgetedDate.After(e.BudgetedDate) {
			t.Errorf("expense on %s owned by later period %s",
				e.BudgetedDate.Format("2006-01-02"), owner.BudgetedDate.Format("2006-01-02"))
		}
		owners[e.IncomeID] = true
	}
	// Monthly expenses against biweekly periods: each lands in its own
	// period for this span.
	if len(owners) != 11 {
		t.Errorf("expected 11 distinct owning periods, got %d", len(owners))
	}
}

func TestReviseSingleOccurrence(t *testing.T) {
	ctx := context.Background()
	st := ledger.NewMemoryStore()
	mgr := NewManager(st, 0)

	tmpl := newIncomeTemplate(t, st, "1000.00", "2020-10-23", biweeklyFriday)
	if _, err := mgr.CreateSeries(ctx, IncomeSeries{}, tmpl.ID); err != nil {
		t.Fatalf("creating series: %v", err)
	}
	ins := incomesSorted(t, st)
	target := ins[5]

	raise := amount("1250.00")
	affected, err := mgr.ReviseSeries(ctx, IncomeSeries{}, target.ID, Fields{Amount: &raise}, false)
	if err != nil {
		t.Fatalf("revising: %v", err)
	}
	if len(affected) != 1 || affected[0] != target.ID {
		t.Fatalf("expected exactly the edited occurrence affected, got %v", affected)
	}

	ins = incomesSorted(t, st)
	if len(ins) != 27 {
		t.Fatalf("expected the series to keep 27 members, got %d", len(ins))
	}
	for i, in := range ins {
		want := amount("1000.00")
		if in.ID == target.ID {
			want = raise
		}
		if !in.Budgeted.Equal(want) {
			t.Errorf("occurrence %d budgeted %s, want %s", i, in.Budgeted, want)
		}
	}
}

func TestReviseAllFutureSplitsSeries(t *testing.T) {
	ctx := context.Background()
	st := ledger.NewMemoryStore()
	mgr := NewManager(st, 0)

	tmpl := newIncomeTemplate(t, st, "1000.00", "2020-10-23", biweeklyFriday)
	if _, err := mgr.CreateSeries(ctx, IncomeSeries{}, tmpl.ID); err != nil {
		t.Fatalf("creating series: %v", err)
	}
	ins := incomesSorted(t, st)
	pivot := ins[10] // 2021-03-12

	raise := amount("1500.00")
	affected, err := mgr.ReviseSeries(ctx, IncomeSeries{}, pivot.ID, Fields{Amount: &raise}, true)
	if err != nil {
		t.Fatalf("revising: %v", err)
	}
	if len(affected) != 17 {
		t.Fatalf("expected 17 affected occurrences, got %d", len(affected))
	}
	if affected[0] != pivot.ID {
		t.Error("expected the edited occurrence first in the result")
	}

	ins = incomesSorted(t, st)
	if len(ins) != 27 {
		t.Fatalf("expected 27 income records after the split, got %d", len(ins))
	}

	oldCount, newCount, oldChildren := 0, 0, 0
	for _, in := range ins {
		switch {
		case in.Budgeted.Equal(amount("1000.00")):
			oldCount++
		case in.Budgeted.Equal(raise):
			newCount++
		default:
			t.Errorf("unexpected budgeted amount %s", in.Budgeted)
		}
		if in.SeriesRoot == tmpl.ID {
			oldChildren++
		}
	}
	if oldCount != 10 {
		t.Errorf("expected 10 occurrences at the old amount, got %d", oldCount)
	}
	if newCount != 17 {
		t.Errorf("expected 17 occurrences at the new amount, got %d", newCount)
	}
	if oldChildren != 9 {
		t.Errorf("expected the original head to keep 9 children, got %d", oldChildren)
	}

	head, err := st.Income(ctx, pivot.ID)
	if err != nil {
		t.Fatalf("reloading pivot: %v", err)
	}
	if head.SeriesRoot != uuid.Nil {
		t.Error("expected the edited occurrence to head its new series")
	}
	if !ledger.SameDate(head.BudgetedDate, date("2021-03-12")) {
		t.Errorf("pivot moved to %s", head.BudgetedDate.Format("2006-01-02"))
	}
	for _, in := range ins {
		if in.SeriesRoot == pivot.ID && !in.Budgeted.Equal(raise) {
			t.Error("new-series member missing the revised amount")
		}
		if in.Budgeted.Equal(raise) && in.ID != pivot.ID && in.SeriesRoot != pivot.ID {
			t.Error("revised occurrence not grouped under the new head")
		}
	}
}

func TestReviseAllFutureWithLaterDate(t *testing.T) {
	ctx := context.Background()
	st := ledger.NewMemoryStore()
	mgr := NewManager(st, 0)

	tmpl := newIncomeTemplate(t, st, "1000.00", "2020-10-23", biweeklyFriday)
	if _, err := mgr.CreateSeries(ctx, IncomeSeries{}, tmpl.ID); err != nil {
		t.Fatalf("creating series: %v", err)
	}
	ins := incomesSorted(t, st)
	pivot := ins[10] // 2021-03-12

	// Moving the pivot past its original date must not let the deletion
	// of later siblings sweep up the pivot itself.
	later := date("2021-03-15")
	raise := amount("1500.00")
	affected, err := mgr.ReviseSeries(ctx, IncomeSeries{}, pivot.ID, Fields{Date: &later, Amount: &raise}, true)
	if err != nil {
		t.Fatalf("revising with a later date: %v", err)
	}

	head, err := st.Income(ctx, pivot.ID)
	if err != nil {
		t.Fatalf("reloading pivot: %v", err)
	}
	if head.SeriesRoot != uuid.Nil {
		t.Error("expected the edited occurrence to head its new series")
	}
	// Monday anchor against the Friday rule snaps to the next Friday.
	if !ledger.SameDate(head.BudgetedDate, date("2021-03-19")) {
		t.Errorf("pivot on %s, want 2021-03-19", head.BudgetedDate.Format("2006-01-02"))
	}

	// 2021-03-19 through 2021-10-15 in two-week steps.
	if len(affected) != 16 {
		t.Fatalf("expected 16 affected occurrences, got %d", len(affected))
	}
	ins = incomesSorted(t, st)
	if len(ins) != 26 {
		t.Fatalf("expected 26 income records, got %d", len(ins))
	}
	oldCount, newCount := 0, 0
	for _, in := range ins {
		switch {
		case in.Budgeted.Equal(amount("1000.00")):
			oldCount++
			if in.BudgetedDate.After(date("2021-02-26")) {
				t.Errorf("old-series occurrence on %s survived past the pivot's original date",
					in.BudgetedDate.Format("2006-01-02"))
			}
		case in.Budgeted.Equal(raise):
			newCount++
			if in.BudgetedDate.Before(date("2021-03-19")) {
				t.Errorf("new-series occurrence on %s before the new head",
					in.BudgetedDate.Format("2006-01-02"))
			}
		}
	}
	if oldCount != 10 || newCount != 16 {
		t.Errorf("expected 10 old + 16 new occurrences, got %d + %d", oldCount, newCount)
	}
}

func TestReviseAllFutureReattachesExpenses(t *testing.T) {
	ctx := context.Background()
	st := ledger.NewMemoryStore()
	mgr := NewManager(st, 0)

	paycheck := newIncomeTemplate(t, st, "1000.00", "2020-10-23", biweeklyFriday)
	if _, err := mgr.CreateSeries(ctx, IncomeSeries{}, paycheck.ID); err != nil {
		t.Fatalf("creating income series: %v", err)
	}
	rent := newExpenseTemplate(t, st, "450.00", "2020-11-07", "rent", "")
	if _, err := mgr.CreateSeries(ctx, ExpenseSeries{}, rent.ID); err != nil {
		t.Fatalf("creating expense: %v", err)
	}

	before, err := st.Expense(ctx, rent.ID)
	if err != nil {
		t.Fatalf("reloading expense: %v", err)
	}
	ins := incomesSorted(t, st)
	if before.IncomeID != ins[1].ID { // 2020-11-06 period
		t.Fatalf("expected the expense owned by the 2020-11-06 period")
	}

	// Pushing the owning occurrence past the expense hands the expense to
	// the prior period.
	moved := date("2020-11-09")
	if _, err := mgr.ReviseSeries(ctx, IncomeSeries{}, ins[1].ID, Fields{Date: &moved}, false); err != nil {
		t.Fatalf("revising: %v", err)
	}
	after, err := st.Expense(ctx, rent.ID)
	if err != nil {
		t.Fatalf("reloading expense: %v", err)
	}
	if after.IncomeID != ins[0].ID {
		t.Error("expected the expense to move back to the first period")
	}
}

func TestRevisePinsCarryOver(t *testing.T) {
	ctx := context.Background()
	st := ledger.NewMemoryStore()
	mgr := NewManager(st, 0)

	tmpl := newIncomeTemplate(t, st, "1000.00", "2020-10-23", "")
	pinned := amount("42.00")
	if _, err := mgr.ReviseSeries(ctx, IncomeSeries{}, tmpl.ID, Fields{CarryOver: &pinned}, false); err != nil {
		t.Fatalf("revising: %v", err)
	}
	got, err := st.Income(ctx, tmpl.ID)
	if err != nil {
		t.Fatalf("reloading: %v", err)
	}
	if got.CarryOverOverride == nil || !got.CarryOverOverride.Equal(pinned) {
		t.Errorf("override %v, want %s", got.CarryOverOverride, pinned)
	}
}

func TestReviseBrokenSeriesLink(t *testing.T) {
	ctx := context.Background()
	st := ledger.NewMemoryStore()
	mgr := NewManager(st, 0)

	orphan := ledger.Income{
		ID:           uuid.New(),
		Budgeted:     amount("1000.00"),
		BudgetedDate: date("2020-10-23"),
		SeriesRoot:   uuid.New(), // no such head
	}
	if err := st.InsertIncomes(ctx, []ledger.Income{orphan}); err != nil {
		t.Fatalf("inserting: %v", err)
	}
	raise := amount("1100.00")
	_, err := mgr.ReviseSeries(ctx, IncomeSeries{}, orphan.ID, Fields{Amount: &raise}, false)
	if !errors.Is(err, ledger.ErrBrokenSeriesLink) {
		t.Errorf("expected ErrBrokenSeriesLink, got %v", err)
	}
}

func TestReviseNonHeadRootLink(t *testing.T) {
	ctx := context.Background()
	st := ledger.NewMemoryStore()
	mgr := NewManager(st, 0)

	head := ledger.Income{ID: uuid.New(), Budgeted: amount("1000.00"), BudgetedDate: date("2020-10-23")}
	child := ledger.Income{ID: uuid.New(), Budgeted: amount("1000.00"), BudgetedDate: date("2020-11-06"), SeriesRoot: head.ID}
	grand := ledger.Income{ID: uuid.New(), Budgeted: amount("1000.00"), BudgetedDate: date("2020-11-20"), SeriesRoot: child.ID}
	if err := st.InsertIncomes(ctx, []ledger.Income{head, child, grand}); err != nil {
		t.Fatalf("inserting: %v", err)
	}
	raise := amount("1100.00")
	_, err := mgr.ReviseSeries(ctx, IncomeSeries{}, grand.ID, Fields{Amount: &raise}, false)
	if !errors.Is(err, ledger.ErrBrokenSeriesLink) {
		t.Errorf("expected ErrBrokenSeriesLink, got %v", err)
	}
}

func TestReviseUnknownOccurrence(t *testing.T) {
	ctx := context.Background()
	st := ledger.NewMemoryStore()
	mgr := NewManager(st, 0)

	raise := amount("1100.00")
	_, err := mgr.ReviseSeries(ctx, IncomeSeries{}, uuid.New(), Fields{Amount: &raise}, false)
	if !errors.Is(err, ledger.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
