package imports

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/cream-budget/cream/internal/ledger"
)

// ParseXLSX reads transactions from an Excel export. It scans the first
// sheet for a header row containing "Date", "Amount" and a text column
// ("Name", "Text" or "Description"); "Memo" and "Type" columns are picked
// up when present. Rows above the header and empty rows are skipped, which
// copes with the preamble most bank exports carry.
func ParseXLSX(path string) ([]ledger.Transaction, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("no sheets found in file")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("reading sheet: %w", err)
	}

	dateCol, nameCol, amountCol, memoCol, typeCol := -1, -1, -1, -1, -1
	dataStartRow := -1
	for i, row := range rows {
		for j, cell := range row {
			switch strings.ToLower(strings.TrimSpace(cell)) {
			case "date":
				dateCol = j
				dataStartRow = i + 1
			case "name", "text", "description":
				nameCol = j
			case "amount":
				amountCol = j
			case "memo":
				memoCol = j
			case "type":
				typeCol = j
			}
		}
		if dateCol >= 0 && nameCol >= 0 && amountCol >= 0 {
			break
		}
	}
	if dateCol < 0 || nameCol < 0 || amountCol < 0 {
		return nil, fmt.Errorf("could not find required columns (Date, Name/Text, Amount)")
	}

	cell := func(row []string, col int) string {
		if col < 0 || col >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[col])
	}

	var txs []ledger.Transaction
	for i := dataStartRow; i < len(rows); i++ {
		row := rows[i]
		dateStr := cell(row, dateCol)
		name := cell(row, nameCol)
		amountStr := cell(row, amountCol)
		if dateStr == "" || amountStr == "" {
			continue
		}
		posted, err := parseCellDate(dateStr)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		amount, err := decimal.NewFromString(normalizeCellAmount(amountStr))
		if err != nil {
			return nil, fmt.Errorf("row %d: parsing amount %q: %w", i+1, amountStr, err)
		}
		txs = append(txs, ledger.Transaction{
			Name:   name,
			Memo:   cell(row, memoCol),
			Amount: amount,
			Posted: posted,
			Type:   ledger.TransactionType(strings.ToUpper(cell(row, typeCol))),
		})
	}
	return txs, nil
}

func parseCellDate(s string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02", "2006/01/02", "01-02-06", "1/2/06", "1/2/2006"} {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("parsing date %q: unrecognized format", s)
}

// normalizeCellAmount strips thousands separators and non-breaking spaces
// spreadsheets like to inject.
func normalizeCellAmount(s string) string {
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, ",", "")
	return s
}

func init() {
	RegisterParser("xlsx", ParserFunc(ParseXLSX))
}
