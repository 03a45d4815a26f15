package series

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/cream-budget/cream/internal/ledger"
	"github.com/cream-budget/cream/internal/period"
)

// IncomeSeries adapts the series algorithm to income records. Incomes carry
// the date-uniqueness invariant, so sibling creation surfaces
// ledger.ErrDateCollision when an expansion lands on a taken date.
type IncomeSeries struct{}

func (IncomeSeries) Kind() string { return "income" }

func (IncomeSeries) Occurrence(ctx context.Context, st ledger.Store, id uuid.UUID) (Occurrence, error) {
	in, err := st.Income(ctx, id)
	if err != nil {
		return Occurrence{}, err
	}
	return Occurrence{
		ID:         in.ID,
		Date:       in.BudgetedDate,
		Recurrence: in.Recurrence,
		SeriesRoot: in.SeriesRoot,
	}, nil
}

func (IncomeSeries) ApplyEdit(ctx context.Context, st ledger.Store, id uuid.UUID, f Fields) error {
	in, err := st.Income(ctx, id)
	if err != nil {
		return err
	}
	if f.Amount != nil {
		in.Budgeted = *f.Amount
	}
	if f.Date != nil {
		in.BudgetedDate = ledger.DateOf(*f.Date)
	}
	if f.Recurrence != nil {
		in.Recurrence = *f.Recurrence
	}
	if f.Transaction != nil {
		in.TransactionID = *f.Transaction
	}
	if f.CarryOver != nil {
		v := *f.CarryOver
		in.CarryOverOverride = &v
	}
	return st.UpdateIncome(ctx, in)
}

func (IncomeSeries) CreateSiblings(ctx context.Context, st ledger.Store, templateID, root uuid.UUID, dates []time.Time) ([]uuid.UUID, error) {
	if len(dates) == 0 {
		return nil, nil
	}
	tmpl, err := st.Income(ctx, templateID)
	if err != nil {
		return nil, err
	}
	ins := make([]ledger.Income, 0, len(dates))
	ids := make([]uuid.UUID, 0, len(dates))
	for _, d := range dates {
		in := ledger.Income{
			ID:           uuid.New(),
			Budgeted:     tmpl.Budgeted,
			BudgetedDate: d,
			Recurrence:   tmpl.Recurrence,
			SeriesRoot:   root,
			// The actual-paycheck link and carry-over override belong to
			// one occurrence, never the whole series.
		}
		ins = append(ins, in)
		ids = append(ids, in.ID)
	}
	if err := st.InsertIncomes(ctx, ins); err != nil {
		return nil, err
	}
	return ids, nil
}

func (IncomeSeries) DeleteSiblingsAfter(ctx context.Context, st ledger.Store, root uuid.UUID, after time.Time) ([]uuid.UUID, error) {
	return st.DeleteIncomesInSeriesAfter(ctx, root, after)
}

func (IncomeSeries) MakeHead(ctx context.Context, st ledger.Store, id uuid.UUID) error {
	in, err := st.Income(ctx, id)
	if err != nil {
		return err
	}
	if in.SeriesRoot == uuid.Nil {
		return nil
	}
	in.SeriesRoot = uuid.Nil
	return st.UpdateIncome(ctx, in)
}

// ReattachChildren lets new or moved income periods claim the expenses that
// now fall within their span.
func (IncomeSeries) ReattachChildren(ctx context.Context, st ledger.Store) error {
	return period.ReattachAll(ctx, st)
}
