package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/GiGurra/boa/pkg/boa"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cream-budget/cream/internal/config"
	"github.com/cream-budget/cream/internal/imports"
	"github.com/cream-budget/cream/internal/ledger"
	"github.com/cream-budget/cream/internal/output"
	"github.com/cream-budget/cream/internal/period"
	"github.com/cream-budget/cream/internal/planfile"
	"github.com/cream-budget/cream/internal/series"
	"github.com/cream-budget/cream/internal/sqlite"
	"github.com/cream-budget/cream/internal/suggest"
)

type Params struct {
	Command     string `descr:"Command: apply, import, periods, transactions, paychecks, suggest, revise, link" positional:"true"`
	Config      string `descr:"Path to the config file"`
	DB          string `descr:"Ledger database path (overrides config)"`
	File        string `descr:"Input file: plan yaml for apply, bank export for import"`
	Source      string `descr:"Import source type (default: guessed from file extension)"`
	Account     string `descr:"Account ID stamped on imported transactions"`
	Kind        string `descr:"Entity kind for revise/link: income or expense"`
	ID          string `descr:"Occurrence ID for revise/link"`
	Amount      string `descr:"New budgeted amount for revise"`
	Date        string `descr:"New budgeted date for revise (YYYY-MM-DD)"`
	Description string `descr:"New description for revise (expenses only)"`
	RRule       string `descr:"New recurrence rule for revise"`
	CarryOver   string `descr:"Pin the period's carry-over balance (incomes only)"`
	AllFuture   bool   `descr:"Apply the revision to this and all future occurrences"`
	Tx          string `descr:"Transaction ID for link"`
	Tolerance   string `descr:"Max relative amount drift for suggest (default 0.35)"`
}

func main() {
	boa.NewCmdT[Params]("cream").
		WithShort("Budget recurring income and expenses against real bank activity").
		WithLong("Expands recurring income/expense templates into dated series, attributes each "+
			"expense to the pay period responsible for it, and tracks the carry-over balance "+
			"across periods, reconciling budgeted amounts with imported bank transactions.").
		WithRunFunc(func(params *Params) {
			if err := execute(params); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
		}).
		Run()
}

func execute(p *Params) error {
	cfgPath := p.Config
	if cfgPath == "" {
		cfgPath = config.DefaultPath()
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	dbPath := p.DB
	if dbPath == "" {
		dbPath = cfg.DBPath
	}
	st, err := sqlite.New(dbPath)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := context.Background()
	cur := output.NewCurrency(cfg.Currency, cfg.Locale)

	switch p.Command {
	case "apply":
		return runApply(ctx, st, cfg, p.File)
	case "import":
		return runImport(ctx, st, cfg, p)
	case "periods":
		return runPeriods(ctx, st, cur)
	case "transactions":
		return runTransactions(ctx, st, cur, false)
	case "paychecks":
		return runTransactions(ctx, st, cur, true)
	case "suggest":
		return runSuggest(ctx, st, cur, p)
	case "revise":
		return runRevise(ctx, st, cfg, p)
	case "link":
		return runLink(ctx, st, cfg, p)
	default:
		return fmt.Errorf("unknown command %q", p.Command)
	}
}

func runApply(ctx context.Context, st ledger.Store, cfg *config.Config, file string) error {
	if file == "" {
		return fmt.Errorf("apply requires --file pointing at a plan yaml")
	}
	plan, err := planfile.Load(file)
	if err != nil {
		return err
	}
	mgr := series.NewManager(st, cfg.HorizonDays)

	created := 0
	for _, tmpl := range plan.Incomes {
		date, err := planfile.ParseDate(tmpl.Date)
		if err != nil {
			return err
		}
		in := ledger.Income{
			ID:           uuid.New(),
			Budgeted:     planfile.Amount(tmpl.Amount),
			BudgetedDate: date,
			Recurrence:   tmpl.RRule,
		}
		if err := st.InsertIncomes(ctx, []ledger.Income{in}); err != nil {
			return err
		}
		ids, err := mgr.CreateSeries(ctx, series.IncomeSeries{}, in.ID)
		if err != nil {
			return err
		}
		created += len(ids)
	}
	for _, tmpl := range plan.Expenses {
		date, err := planfile.ParseDate(tmpl.Date)
		if err != nil {
			return err
		}
		e := ledger.Expense{
			ID:           uuid.New(),
			Budgeted:     planfile.Amount(tmpl.Amount),
			BudgetedDate: date,
			Description:  tmpl.Description,
			Recurrence:   tmpl.RRule,
		}
		if err := st.InsertExpenses(ctx, []ledger.Expense{e}); err != nil {
			return err
		}
		ids, err := mgr.CreateSeries(ctx, series.ExpenseSeries{}, e.ID)
		if err != nil {
			return err
		}
		created += len(ids)
	}
	fmt.Printf("Applied %s: %d occurrences created\n", file, created)
	return nil
}

func runImport(ctx context.Context, st ledger.Store, cfg *config.Config, p *Params) error {
	if p.File == "" {
		return fmt.Errorf("import requires --file pointing at a bank export")
	}
	source := p.Source
	if source == "" {
		source = imports.DetectSource(p.File)
	}
	parser, err := imports.GetParser(source)
	if err != nil {
		return err
	}
	txs, err := parser.Parse(p.File)
	if err != nil {
		return err
	}

	account := p.Account
	if account == "" {
		account = cfg.DefaultAccount
	}
	if account == "" {
		account = "default"
	}
	if err := st.UpsertAccount(ctx, ledger.Account{ID: account}); err != nil {
		return err
	}

	txs = imports.Normalize(txs, account)
	added, err := st.InsertTransactions(ctx, txs)
	if err != nil {
		return err
	}
	fmt.Printf("Imported %d new transactions (%d already known)\n", added, len(txs)-added)
	return nil
}

func runPeriods(ctx context.Context, st ledger.Store, cur output.Currency) error {
	incomes, err := st.Incomes(ctx)
	if err != nil {
		return err
	}
	calc := period.NewCalculator(st)

	var rows []output.PeriodRow
	for _, in := range incomes {
		income, err := calc.IncomeAmount(ctx, in)
		if err != nil {
			return err
		}
		expenses, err := calc.TotalExpenses(ctx, in)
		if err != nil {
			return err
		}
		carry, err := calc.CarryOver(ctx, in)
		if err != nil {
			return err
		}
		owned, err := st.ExpensesOwnedBy(ctx, in.ID)
		if err != nil {
			return err
		}
		rows = append(rows, output.PeriodRow{
			Date:         in.BudgetedDate,
			Budgeted:     in.Budgeted,
			Income:       income,
			HasActual:    in.TransactionID != "",
			Expenses:     expenses,
			ExpenseCount: len(owned),
			CarryOver:    carry,
			Overridden:   in.CarryOverOverride != nil,
		})
	}
	output.PrintPeriodsTable(os.Stdout, rows, cur)
	return nil
}

func runTransactions(ctx context.Context, st ledger.Store, cur output.Currency, paychecksOnly bool) error {
	txs, err := st.Transactions(ctx)
	if err != nil {
		return err
	}
	if paychecksOnly {
		incomes, err := st.Incomes(ctx)
		if err != nil {
			return err
		}
		linked := map[string]bool{}
		for _, in := range incomes {
			if in.TransactionID != "" {
				linked[in.TransactionID] = true
			}
		}
		var candidates []ledger.Transaction
		for _, tx := range txs {
			if tx.MaybePaycheck() && !linked[tx.ID] {
				candidates = append(candidates, tx)
			}
		}
		txs = candidates
	}
	output.PrintTransactionsTable(os.Stdout, txs, cur)
	return nil
}

func runSuggest(ctx context.Context, st ledger.Store, cur output.Currency, p *Params) error {
	txs, err := st.Transactions(ctx)
	if err != nil {
		return err
	}
	tolerance := 0.35
	if p.Tolerance != "" {
		if tolerance, err = strconv.ParseFloat(p.Tolerance, 64); err != nil {
			return fmt.Errorf("parsing --tolerance: %w", err)
		}
	}
	asOf := time.Now().UTC()
	if len(txs) > 0 {
		asOf = txs[len(txs)-1].Posted
	}

	suggestions := suggest.DetectRecurring(txs, tolerance, asOf)
	rows := make([]output.SuggestionRow, 0, len(suggestions))
	for _, s := range suggestions {
		rows = append(rows, output.SuggestionRow{
			Name:    s.Name,
			Kind:    s.Kind,
			Cadence: string(s.Cadence),
			RRule:   s.RRule(),
			Average: s.Average,
			Last:    s.Last,
			Count:   s.Count,
			Active:  s.Status == suggest.StatusActive,
		})
	}
	output.PrintSuggestionsTable(os.Stdout, rows, cur)
	return nil
}

func adapterFor(kind string) (series.Adapter, error) {
	switch kind {
	case "income":
		return series.IncomeSeries{}, nil
	case "expense":
		return series.ExpenseSeries{}, nil
	default:
		return nil, fmt.Errorf("unknown kind %q (expected income or expense)", kind)
	}
}

func runRevise(ctx context.Context, st ledger.Store, cfg *config.Config, p *Params) error {
	ad, err := adapterFor(p.Kind)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(p.ID)
	if err != nil {
		return fmt.Errorf("parsing --id: %w", err)
	}

	var fields series.Fields
	if p.Amount != "" {
		amount, err := decimal.NewFromString(p.Amount)
		if err != nil {
			return fmt.Errorf("parsing --amount: %w", err)
		}
		fields.Amount = &amount
	}
	if p.Date != "" {
		date, err := planfile.ParseDate(p.Date)
		if err != nil {
			return err
		}
		fields.Date = &date
	}
	if p.Description != "" {
		fields.Description = &p.Description
	}
	if p.RRule != "" {
		fields.Recurrence = &p.RRule
	}
	if p.CarryOver != "" {
		if p.Kind != "income" {
			return fmt.Errorf("--carry-over only applies to incomes")
		}
		carry, err := decimal.NewFromString(p.CarryOver)
		if err != nil {
			return fmt.Errorf("parsing --carry-over: %w", err)
		}
		fields.CarryOver = &carry
	}

	mgr := series.NewManager(st, cfg.HorizonDays)
	affected, err := mgr.ReviseSeries(ctx, ad, id, fields, p.AllFuture)
	if err != nil {
		return err
	}
	fmt.Printf("Revised %d occurrence(s)\n", len(affected))
	return nil
}

func runLink(ctx context.Context, st ledger.Store, cfg *config.Config, p *Params) error {
	ad, err := adapterFor(p.Kind)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(p.ID)
	if err != nil {
		return fmt.Errorf("parsing --id: %w", err)
	}
	if p.Tx == "" {
		return fmt.Errorf("link requires --tx")
	}
	if _, err := st.Transaction(ctx, p.Tx); err != nil {
		return err
	}

	mgr := series.NewManager(st, cfg.HorizonDays)
	if _, err := mgr.ReviseSeries(ctx, ad, id, series.Fields{Transaction: &p.Tx}, false); err != nil {
		return err
	}
	fmt.Printf("Linked %s %s to transaction %s\n", p.Kind, id, p.Tx)
	return nil
}
