// Package planfile reads budget-plan YAML files: the income and expense
// templates a user wants expanded into series.
package planfile

import (
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/cream-budget/cream/internal/ledger"
	"github.com/cream-budget/cream/internal/recur"
)

// Plan is the top-level shape of a budget-plan file. Example:
//
//	incomes:
//	  - amount: "1500.00"
//	    date: 2025-01-10
//	    rrule: "RRULE:FREQ=WEEKLY;INTERVAL=2;BYDAY=FR;UNTIL=20260110T000000Z"
//	expenses:
//	  - amount: "120.00"
//	    date: 2025-01-17
//	    description: electricity
//	    rrule: "RRULE:FREQ=MONTHLY;BYMONTHDAY=17;UNTIL=20260117T000000Z"
type Plan struct {
	Incomes  []IncomeTemplate  `yaml:"incomes,omitempty"`
	Expenses []ExpenseTemplate `yaml:"expenses,omitempty"`
}

type IncomeTemplate struct {
	Amount string `yaml:"amount"`
	Date   string `yaml:"date"`
	RRule  string `yaml:"rrule,omitempty"`
}

type ExpenseTemplate struct {
	Amount      string `yaml:"amount"`
	Date        string `yaml:"date"`
	Description string `yaml:"description"`
	RRule       string `yaml:"rrule,omitempty"`
}

// Load reads and validates a plan file. Amounts must parse as decimals,
// dates as YYYY-MM-DD, and recurrence text must be a valid bounded rule.
func Load(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading plan file: %w", err)
	}
	var plan Plan
	if err := yaml.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("parsing plan file: %w", err)
	}

	for i, tmpl := range plan.Incomes {
		if err := validateTemplate(tmpl.Amount, tmpl.Date, tmpl.RRule); err != nil {
			return nil, fmt.Errorf("incomes[%d]: %w", i, err)
		}
	}
	for i, tmpl := range plan.Expenses {
		if err := validateTemplate(tmpl.Amount, tmpl.Date, tmpl.RRule); err != nil {
			return nil, fmt.Errorf("expenses[%d]: %w", i, err)
		}
	}
	return &plan, nil
}

func validateTemplate(amount, date, rule string) error {
	if _, err := decimal.NewFromString(amount); err != nil {
		return fmt.Errorf("amount %q: %w", amount, err)
	}
	if _, err := ParseDate(date); err != nil {
		return err
	}
	if rule != "" {
		if _, err := recur.Parse(rule); err != nil {
			return err
		}
	}
	return nil
}

// ParseDate parses a plan-file date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02", s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("date %q: expected YYYY-MM-DD", s)
	}
	return ledger.DateOf(t), nil
}

// Amount parses a plan-file amount. Load has already validated it; this is
// for callers materializing records.
func Amount(s string) decimal.Decimal {
	d, _ := decimal.NewFromString(s)
	return d
}
