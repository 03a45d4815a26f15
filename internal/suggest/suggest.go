// Package suggest scans imported bank transactions for recurring money
// movements and proposes budget templates for them: a paycheck arriving
// every other Friday becomes a candidate income schedule, a bill landing on
// the 17th every month a candidate expense schedule.
package suggest

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cream-budget/cream/internal/ledger"
)

// Status says whether a detected pattern still looks alive at the end of the
// analyzed data.
type Status string

const (
	StatusActive Status = "active"
	StatusEnded  Status = "ended"
)

// Cadence is the detected repeat interval.
type Cadence string

const (
	CadenceWeekly   Cadence = "weekly"
	CadenceBiweekly Cadence = "biweekly"
	CadenceMonthly  Cadence = "monthly"
)

// Suggestion is one detected recurring movement with a proposed schedule.
type Suggestion struct {
	Name    string
	Kind    string // "income" or "expense"
	Cadence Cadence
	// TypicalDay is the average day of month, only set for monthly cadence.
	TypicalDay int
	Average    decimal.Decimal
	Latest     decimal.Decimal
	Min        decimal.Decimal
	Max        decimal.Decimal
	First      time.Time
	Last       time.Time
	Count      int
	Status     Status
}

// RRule returns the proposed recurrence text for the suggestion, bounded to
// one year past the last observed occurrence.
func (s Suggestion) RRule() string {
	until := ledger.DateOf(s.Last).AddDate(1, 0, 0).Format("20060102T000000Z")
	switch s.Cadence {
	case CadenceMonthly:
		return fmt.Sprintf("RRULE:FREQ=MONTHLY;BYMONTHDAY=%d;UNTIL=%s", s.TypicalDay, until)
	case CadenceWeekly:
		return fmt.Sprintf("RRULE:FREQ=WEEKLY;BYDAY=%s;UNTIL=%s", byDay(s.Last), until)
	default:
		return fmt.Sprintf("RRULE:FREQ=WEEKLY;INTERVAL=2;BYDAY=%s;UNTIL=%s", byDay(s.Last), until)
	}
}

func byDay(t time.Time) string {
	return map[time.Weekday]string{
		time.Monday: "MO", time.Tuesday: "TU", time.Wednesday: "WE",
		time.Thursday: "TH", time.Friday: "FR", time.Saturday: "SA", time.Sunday: "SU",
	}[t.UTC().Weekday()]
}

// DetectRecurring analyzes transactions for repeating patterns. tolerance is
// the max allowed relative amount change between consecutive occurrences
// (e.g. 0.35 = 35%); asOf marks the end of the analyzed data and drives the
// active/ended call.
func DetectRecurring(txs []ledger.Transaction, tolerance float64, asOf time.Time) []Suggestion {
	// Group by payee name (case-insensitive); the display name keeps
	// updating to the most recent spelling.
	byName := make(map[string][]ledger.Transaction)
	displayNames := make(map[string]string)
	for _, tx := range txs {
		key := strings.ToLower(tx.Name)
		if key == "" {
			continue
		}
		byName[key] = append(byName[key], tx)
		displayNames[key] = tx.Name
	}

	var out []Suggestion
	for key, group := range byName {
		// Need at least 3 occurrences before a pattern means anything.
		if len(group) < 3 {
			continue
		}
		sort.Slice(group, func(i, j int) bool {
			return group[i].Posted.Before(group[j].Posted)
		})
		// Mixed-sign groups (refunds, reversals) are not schedules.
		if !sameSign(group) {
			continue
		}
		cadence, typicalDay, ok := classifyCadence(group)
		if !ok {
			continue
		}
		if !amountsWithinTolerance(group, tolerance) {
			continue
		}

		kind := "expense"
		if group[0].Amount.IsPositive() {
			kind = "income"
		}
		min, max := amountRange(group)
		last := group[len(group)-1]
		out = append(out, Suggestion{
			Name:       displayNames[key],
			Kind:       kind,
			Cadence:    cadence,
			TypicalDay: typicalDay,
			Average:    averageAmount(group),
			Latest:     last.Amount.Abs(),
			Min:        min,
			Max:        max,
			First:      ledger.DateOf(group[0].Posted),
			Last:       ledger.DateOf(last.Posted),
			Count:      len(group),
			Status:     determineStatus(cadence, last.Posted, asOf),
		})
	}

	// Active first, incomes before expenses, then by amount (highest first).
	sort.Slice(out, func(i, j int) bool {
		if out[i].Status != out[j].Status {
			return out[i].Status == StatusActive
		}
		if out[i].Kind != out[j].Kind {
			return out[i].Kind == "income"
		}
		return out[i].Average.GreaterThan(out[j].Average)
	})
	return out
}

func sameSign(txs []ledger.Transaction) bool {
	positive := txs[0].Amount.IsPositive()
	for _, tx := range txs {
		if tx.Amount.IsZero() || tx.Amount.IsPositive() != positive {
			return false
		}
	}
	return true
}

// classifyCadence inspects the gaps between consecutive occurrences. Weekly
// and biweekly patterns need near-constant gaps; monthly patterns need one
// occurrence per calendar month around a stable day.
func classifyCadence(txs []ledger.Transaction) (Cadence, int, bool) {
	gaps := make([]int, 0, len(txs)-1)
	for i := 1; i < len(txs); i++ {
		days := int(ledger.DateOf(txs[i].Posted).Sub(ledger.DateOf(txs[i-1].Posted)).Hours() / 24)
		if days == 0 {
			// Two movements on one day are never one schedule.
			return "", 0, false
		}
		gaps = append(gaps, days)
	}
	med := median(gaps)

	within := func(slack int) bool {
		for _, g := range gaps {
			if g < med-slack || g > med+slack {
				return false
			}
		}
		return true
	}
	switch {
	case med >= 6 && med <= 8 && within(1):
		return CadenceWeekly, 0, true
	case med >= 13 && med <= 15 && within(2):
		return CadenceBiweekly, 0, true
	case med >= 28 && med <= 31 && within(3):
		if !oncePerMonth(txs) {
			return "", 0, false
		}
		return CadenceMonthly, typicalDay(txs), true
	}
	return "", 0, false
}

func median(v []int) int {
	s := append([]int(nil), v...)
	sort.Ints(s)
	return s[len(s)/2]
}

func oncePerMonth(txs []ledger.Transaction) bool {
	byMonth := map[string]int{}
	for _, tx := range txs {
		byMonth[tx.Posted.UTC().Format("2006-01")]++
	}
	for _, n := range byMonth {
		if n != 1 {
			return false
		}
	}
	return true
}

func typicalDay(txs []ledger.Transaction) int {
	sum := 0
	for _, tx := range txs {
		sum += tx.Posted.UTC().Day()
	}
	return sum / len(txs)
}

// amountsWithinTolerance checks consecutive occurrences against each other
// rather than against an average; that tracks gradual drift (salary raises,
// price changes) without flagging it.
func amountsWithinTolerance(txs []ledger.Transaction, tolerance float64) bool {
	for i := 1; i < len(txs); i++ {
		prev := math.Abs(txs[i-1].Amount.InexactFloat64())
		curr := math.Abs(txs[i].Amount.InexactFloat64())
		if prev == 0 {
			return false
		}
		if math.Abs(curr-prev)/prev > tolerance {
			return false
		}
	}
	return true
}

func averageAmount(txs []ledger.Transaction) decimal.Decimal {
	sum := decimal.Zero
	for _, tx := range txs {
		sum = sum.Add(tx.Amount.Abs())
	}
	return sum.Div(decimal.NewFromInt(int64(len(txs)))).Round(2)
}

func amountRange(txs []ledger.Transaction) (min, max decimal.Decimal) {
	min = txs[0].Amount.Abs()
	max = min
	for _, tx := range txs[1:] {
		a := tx.Amount.Abs()
		if a.LessThan(min) {
			min = a
		}
		if a.GreaterThan(max) {
			max = a
		}
	}
	return min, max
}

// determineStatus calls a pattern ended once the next expected occurrence is
// more than a few days overdue at the end of the data.
func determineStatus(cadence Cadence, last, asOf time.Time) Status {
	last = ledger.DateOf(last)
	var next time.Time
	switch cadence {
	case CadenceWeekly:
		next = last.AddDate(0, 0, 7)
	case CadenceBiweekly:
		next = last.AddDate(0, 0, 14)
	default:
		next = last.AddDate(0, 1, 0)
	}
	if ledger.DateOf(asOf).After(next.AddDate(0, 0, 5)) {
		return StatusEnded
	}
	return StatusActive
}
