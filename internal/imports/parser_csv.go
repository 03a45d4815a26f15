package imports

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cream-budget/cream/internal/ledger"
)

// ParseCSV reads transactions from a CSV export. The header row names the
// columns; "date" and "amount" are required, "name", "memo", "type", "id"
// and "check_number" are optional. Dates are YYYY-MM-DD.
func ParseCSV(path string) ([]ledger.Transaction, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading csv: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("empty csv file")
	}

	cols := map[string]int{}
	for i, name := range records[0] {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	dateCol, ok := cols["date"]
	if !ok {
		return nil, fmt.Errorf("missing required column %q", "date")
	}
	amountCol, ok := cols["amount"]
	if !ok {
		return nil, fmt.Errorf("missing required column %q", "amount")
	}

	get := func(row []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var txs []ledger.Transaction
	for n, row := range records[1:] {
		if len(row) == 0 || (len(row) <= dateCol && len(row) <= amountCol) {
			continue
		}
		dateStr := strings.TrimSpace(row[dateCol])
		amountStr := strings.TrimSpace(row[amountCol])
		if dateStr == "" && amountStr == "" {
			continue
		}
		posted, err := time.ParseInLocation("2006-01-02", dateStr, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("row %d: parsing date %q: %w", n+2, dateStr, err)
		}
		amount, err := decimal.NewFromString(strings.ReplaceAll(amountStr, ",", ""))
		if err != nil {
			return nil, fmt.Errorf("row %d: parsing amount %q: %w", n+2, amountStr, err)
		}
		tx := ledger.Transaction{
			ID:     get(row, "id"),
			Name:   get(row, "name"),
			Memo:   get(row, "memo"),
			Amount: amount,
			Posted: posted,
			Type:   ledger.TransactionType(strings.ToUpper(get(row, "type"))),
		}
		if check := get(row, "check_number"); check != "" {
			num, err := strconv.Atoi(check)
			if err != nil {
				return nil, fmt.Errorf("row %d: parsing check number %q: %w", n+2, check, err)
			}
			tx.CheckNumber = num
		}
		txs = append(txs, tx)
	}
	return txs, nil
}

func init() {
	RegisterParser("csv", ParserFunc(ParseCSV))
}
