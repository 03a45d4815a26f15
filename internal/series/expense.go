package series

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/cream-budget/cream/internal/ledger"
	"github.com/cream-budget/cream/internal/period"
)

// ExpenseSeries adapts the series algorithm to expense records. Every
// occurrence must end up attributed to an income period; reattachment fails
// the whole unit of work with ledger.ErrNoIncome when no period exists.
type ExpenseSeries struct{}

func (ExpenseSeries) Kind() string { return "expense" }

func (ExpenseSeries) Occurrence(ctx context.Context, st ledger.Store, id uuid.UUID) (Occurrence, error) {
	e, err := st.Expense(ctx, id)
	if err != nil {
		return Occurrence{}, err
	}
	return Occurrence{
		ID:         e.ID,
		Date:       e.BudgetedDate,
		Recurrence: e.Recurrence,
		SeriesRoot: e.SeriesRoot,
	}, nil
}

func (ExpenseSeries) ApplyEdit(ctx context.Context, st ledger.Store, id uuid.UUID, f Fields) error {
	e, err := st.Expense(ctx, id)
	if err != nil {
		return err
	}
	if f.Amount != nil {
		e.Budgeted = *f.Amount
	}
	if f.Date != nil {
		e.BudgetedDate = ledger.DateOf(*f.Date)
	}
	if f.Description != nil {
		e.Description = *f.Description
	}
	if f.Recurrence != nil {
		e.Recurrence = *f.Recurrence
	}
	if f.Transaction != nil {
		e.TransactionID = *f.Transaction
	}
	return st.UpdateExpense(ctx, e)
}

func (ExpenseSeries) CreateSiblings(ctx context.Context, st ledger.Store, templateID, root uuid.UUID, dates []time.Time) ([]uuid.UUID, error) {
	if len(dates) == 0 {
		return nil, nil
	}
	tmpl, err := st.Expense(ctx, templateID)
	if err != nil {
		return nil, err
	}
	exps := make([]ledger.Expense, 0, len(dates))
	ids := make([]uuid.UUID, 0, len(dates))
	for _, d := range dates {
		e := ledger.Expense{
			ID:           uuid.New(),
			Budgeted:     tmpl.Budgeted,
			BudgetedDate: d,
			Description:  tmpl.Description,
			Recurrence:   tmpl.Recurrence,
			SeriesRoot:   root,
			// IncomeID is left unset here; reattachment resolves the
			// owning period per occurrence before the batch commits.
		}
		exps = append(exps, e)
		ids = append(ids, e.ID)
	}
	if err := st.InsertExpenses(ctx, exps); err != nil {
		return nil, err
	}
	return ids, nil
}

func (ExpenseSeries) DeleteSiblingsAfter(ctx context.Context, st ledger.Store, root uuid.UUID, after time.Time) ([]uuid.UUID, error) {
	return st.DeleteExpensesInSeriesAfter(ctx, root, after)
}

func (ExpenseSeries) MakeHead(ctx context.Context, st ledger.Store, id uuid.UUID) error {
	e, err := st.Expense(ctx, id)
	if err != nil {
		return err
	}
	if e.SeriesRoot == uuid.Nil {
		return nil
	}
	e.SeriesRoot = uuid.Nil
	return st.UpdateExpense(ctx, e)
}

func (ExpenseSeries) ReattachChildren(ctx context.Context, st ledger.Store) error {
	return period.ReattachAll(ctx, st)
}
