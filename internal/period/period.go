// Package period resolves which income period owns an expense and computes
// the running carry-over balance along the chronological chain of periods.
package period

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cream-budget/cream/internal/ledger"
)

// ResolveOwner returns the income period responsible for an expense dated
// on the given date: the latest income at or before it. An expense that
// predates all income is attributed to the earliest income on record — a
// deliberate policy, pre-income spending still has to be covered by the
// first period. Returns ledger.ErrNoIncome when no income exists at all.
func ResolveOwner(ctx context.Context, st ledger.Store, date time.Time) (ledger.Income, error) {
	in, ok, err := st.IncomeOnOrBefore(ctx, date)
	if err != nil {
		return ledger.Income{}, err
	}
	if ok {
		return in, nil
	}
	in, ok, err = st.FirstIncome(ctx)
	if err != nil {
		return ledger.Income{}, err
	}
	if !ok {
		return ledger.Income{}, fmt.Errorf("resolving owner for %s: %w",
			ledger.DateOf(date).Format("2006-01-02"), ledger.ErrNoIncome)
	}
	return in, nil
}

// ReattachAll re-resolves the owning period of every expense. Run after any
// mutation that can shift ownership: a new income occurrence can claim
// expenses from a later period, a deleted one hands its expenses back.
func ReattachAll(ctx context.Context, st ledger.Store) error {
	exps, err := st.Expenses(ctx)
	if err != nil {
		return err
	}
	for _, e := range exps {
		owner, err := ResolveOwner(ctx, st, e.BudgetedDate)
		if err != nil {
			return err
		}
		if e.IncomeID == owner.ID {
			continue
		}
		e.IncomeID = owner.ID
		if err := st.UpdateExpense(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

// Calculator computes period amounts, memoizing carry-over per income ID.
// A calculator is scoped to one listing request; it does not watch for
// writes behind its back.
type Calculator struct {
	st    ledger.Store
	carry map[uuid.UUID]decimal.Decimal
}

func NewCalculator(st ledger.Store) *Calculator {
	return &Calculator{st: st, carry: map[uuid.UUID]decimal.Decimal{}}
}

// IncomeAmount returns the period's actual paycheck amount when one is
// linked, otherwise the budgeted amount.
func (c *Calculator) IncomeAmount(ctx context.Context, in ledger.Income) (decimal.Decimal, error) {
	if in.TransactionID == "" {
		return in.Budgeted, nil
	}
	tx, err := c.st.Transaction(ctx, in.TransactionID)
	if err != nil {
		return decimal.Zero, err
	}
	return tx.Amount, nil
}

// TotalExpenses sums the period's attributed expenses, preferring the
// absolute linked transaction amount over the budgeted one.
func (c *Calculator) TotalExpenses(ctx context.Context, in ledger.Income) (decimal.Decimal, error) {
	exps, err := c.st.ExpensesOwnedBy(ctx, in.ID)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, e := range exps {
		amount := e.Budgeted
		if e.TransactionID != "" {
			tx, err := c.st.Transaction(ctx, e.TransactionID)
			if err != nil {
				return decimal.Zero, err
			}
			amount = tx.Amount.Abs()
		}
		total = total.Add(amount)
	}
	return total, nil
}

// CarryOver returns the balance carried into the period from all prior
// periods: predecessor income minus predecessor expenses, plus whatever the
// predecessor itself carried. The earliest period carries zero. An explicit
// override on the period wins outright.
func (c *Calculator) CarryOver(ctx context.Context, in ledger.Income) (decimal.Decimal, error) {
	if v, ok := c.carry[in.ID]; ok {
		return v, nil
	}
	if in.CarryOverOverride != nil {
		c.carry[in.ID] = *in.CarryOverOverride
		return *in.CarryOverOverride, nil
	}

	prev, ok, err := c.st.IncomeBefore(ctx, in.BudgetedDate)
	if err != nil {
		return decimal.Zero, err
	}
	if !ok {
		c.carry[in.ID] = decimal.Zero
		return decimal.Zero, nil
	}

	prevCarry, err := c.CarryOver(ctx, prev)
	if err != nil {
		return decimal.Zero, err
	}
	prevIncome, err := c.IncomeAmount(ctx, prev)
	if err != nil {
		return decimal.Zero, err
	}
	prevExpenses, err := c.TotalExpenses(ctx, prev)
	if err != nil {
		return decimal.Zero, err
	}

	v := prevIncome.Sub(prevExpenses.Abs()).Add(prevCarry)
	c.carry[in.ID] = v
	return v, nil
}
