// Package output renders ledger listings for the terminal.
package output

import (
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/shopspring/decimal"

	"github.com/cream-budget/cream/internal/ledger"
)

// PeriodRow is one income period with its computed amounts.
type PeriodRow struct {
	Date         time.Time
	Budgeted     decimal.Decimal
	Income       decimal.Decimal
	HasActual    bool
	Expenses     decimal.Decimal
	ExpenseCount int
	CarryOver    decimal.Decimal
	Overridden   bool
}

// PrintPeriodsTable writes the chronological period listing.
func PrintPeriodsTable(w io.Writer, rows []PeriodRow, cur Currency) {
	if len(rows) == 0 {
		fmt.Fprintln(w, "No income periods on record.")
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Period", "Income", "Expenses", "Carry-over", "Available"})

	for _, row := range rows {
		income := cur.Format(row.Income)
		if row.HasActual {
			income += " *"
		}
		carry := cur.Format(row.CarryOver)
		if row.Overridden {
			carry += " (set)"
		}
		available := row.Income.Sub(row.Expenses.Abs()).Add(row.CarryOver)
		availStr := cur.Format(available)
		if available.IsNegative() {
			availStr = text.FgRed.Sprint(availStr)
		}
		t.AppendRow(table.Row{
			row.Date.Format("2006-01-02"),
			income,
			fmt.Sprintf("%s (%d)", cur.Format(row.Expenses), row.ExpenseCount),
			carry,
			availStr,
		})
	}
	t.Render()
	fmt.Fprintln(w, "* income backed by an actual transaction")
}

// SuggestionRow is one detected recurring movement, ready to render.
type SuggestionRow struct {
	Name    string
	Kind    string
	Cadence string
	RRule   string
	Average decimal.Decimal
	Last    time.Time
	Count   int
	Active  bool
}

// PrintSuggestionsTable writes detected recurring patterns with their
// proposed schedule rules.
func PrintSuggestionsTable(w io.Writer, rows []SuggestionRow, cur Currency) {
	if len(rows) == 0 {
		fmt.Fprintln(w, "No recurring patterns detected.")
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Name", "Kind", "Cadence", "Average", "Last seen", "Seen", "Status", "Proposed rule"})
	for _, row := range rows {
		status := text.FgGreen.Sprint("active")
		if !row.Active {
			status = text.FgRed.Sprint("ended")
		}
		t.AppendRow(table.Row{
			row.Name,
			row.Kind,
			row.Cadence,
			cur.Format(row.Average),
			row.Last.Format("2006-01-02"),
			row.Count,
			status,
			row.RRule,
		})
	}
	t.Render()
	fmt.Fprintln(w, "Add a suggestion to a plan file and run apply to adopt it.")
}

// PrintTransactionsTable writes imported transactions, most recent last.
func PrintTransactionsTable(w io.Writer, txs []ledger.Transaction, cur Currency) {
	if len(txs) == 0 {
		fmt.Fprintln(w, "No transactions on record.")
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Posted", "Name", "Type", "Amount", "ID"})
	for _, tx := range txs {
		amount := cur.Format(tx.Amount)
		if tx.Amount.IsNegative() {
			amount = text.FgRed.Sprint(amount)
		}
		t.AppendRow(table.Row{
			tx.Posted.Format("2006-01-02"),
			tx.Name,
			string(tx.Type),
			amount,
			tx.ID,
		})
	}
	t.Render()
}
