// Package ledger defines the budgeting records (incomes, expenses, bank
// transactions) and the narrow persistence interface the engine runs against.
package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Date returns a calendar date as a UTC-midnight time.Time. All budgeted
// dates in the ledger are normalized through this.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// DateOf truncates t to its UTC calendar date.
func DateOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// SameDate reports whether a and b fall on the same UTC calendar date.
func SameDate(a, b time.Time) bool {
	return DateOf(a).Equal(DateOf(b))
}

// Income is one occurrence of a recurring money-in schedule. A standalone
// income is a series of one. The occurrence that a series was expanded from
// is its head; all other members point at it through SeriesRoot.
type Income struct {
	ID           uuid.UUID
	Budgeted     decimal.Decimal
	BudgetedDate time.Time
	// Recurrence is the serialized schedule (RRULE/RDATE text), empty for
	// occurrences entered without one.
	Recurrence string
	// SeriesRoot is uuid.Nil for a series head, otherwise the head's ID.
	SeriesRoot uuid.UUID
	// TransactionID links the actual paycheck, empty when unmatched.
	TransactionID string
	// CarryOverOverride, when set, replaces the computed carry-over.
	CarryOverOverride *decimal.Decimal
}

// IsSeriesHead reports whether the income is the head of its series.
func (in Income) IsSeriesHead() bool {
	return in.SeriesRoot == uuid.Nil
}

// Root returns the ID grouping the income's series.
func (in Income) Root() uuid.UUID {
	if in.SeriesRoot == uuid.Nil {
		return in.ID
	}
	return in.SeriesRoot
}

// Expense is one occurrence of a recurring money-out schedule. Each expense
// is attributed to the income period chronologically responsible for it.
type Expense struct {
	ID           uuid.UUID
	Budgeted     decimal.Decimal
	BudgetedDate time.Time
	Description  string
	Recurrence   string
	SeriesRoot   uuid.UUID
	// IncomeID is the owning period, uuid.Nil until resolved.
	IncomeID uuid.UUID
	// TransactionID links the actual bank movement, empty when unmatched.
	TransactionID string
}

// IsSeriesHead reports whether the expense is the head of its series.
func (e Expense) IsSeriesHead() bool {
	return e.SeriesRoot == uuid.Nil
}

// Root returns the ID grouping the expense's series.
func (e Expense) Root() uuid.UUID {
	if e.SeriesRoot == uuid.Nil {
		return e.ID
	}
	return e.SeriesRoot
}

// TransactionType is the bank-reported kind of a transaction.
type TransactionType string

const (
	TxCredit      TransactionType = "CREDIT"
	TxDebit       TransactionType = "DEBIT"
	TxInterest    TransactionType = "INT"
	TxDividend    TransactionType = "DIV"
	TxFee         TransactionType = "FEE"
	TxServiceChg  TransactionType = "SRVCHG"
	TxDeposit     TransactionType = "DEP"
	TxATM         TransactionType = "ATM"
	TxPOS         TransactionType = "POS"
	TxTransfer    TransactionType = "XFER"
	TxCheck       TransactionType = "CHECK"
	TxPayment     TransactionType = "PAYMENT"
	TxCash        TransactionType = "CASH"
	TxDirectDep   TransactionType = "DIRECTDEP"
	TxDirectDebit TransactionType = "DIRECTDEBIT"
	TxRepeatPmt   TransactionType = "REPEATPMT"
	TxHold        TransactionType = "HOLD"
	TxOther       TransactionType = "OTHER"
)

// Transaction is an externally sourced bank movement. The engine never
// mutates transactions except to link them to an income or expense.
type Transaction struct {
	// ID is the bank's transaction identifier (FITID or synthesized);
	// imports are idempotent on it.
	ID          string
	Name        string
	Memo        string
	Amount      decimal.Decimal
	Posted      time.Time
	CheckNumber int
	Type        TransactionType
	AccountID   string
}

// MaybePaycheck reports whether the transaction looks like income: a
// positive deposit-like movement. Used to shortlist linking candidates.
func (t Transaction) MaybePaycheck() bool {
	if !t.Amount.IsPositive() {
		return false
	}
	switch t.Type {
	case TxCredit, TxDeposit, TxDirectDep, TxTransfer, TxOther:
		return true
	}
	return false
}

// Account identifies where transactions came from.
type Account struct {
	ID     string
	Type   string
	Number string
	Bank   string
}
