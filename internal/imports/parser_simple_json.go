package imports

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cream-budget/cream/internal/ledger"
)

// SimpleJSONFormat is a minimal JSON format for importing transactions.
// Example:
//
//	{
//	  "transactions": [
//	    {"date": "2025-01-15", "name": "ACME PAYROLL", "amount": "1500.00", "type": "DIRECTDEP"},
//	    {"date": "2025-01-16", "name": "GROCER", "amount": "-52.40"}
//	  ]
//	}
//
// Amounts are strings so no precision is lost in transit. Any bank export
// is easy to convert to this shape.
type SimpleJSONFormat struct {
	Transactions []SimpleJSONTransaction `json:"transactions"`
}

type SimpleJSONTransaction struct {
	ID     string `json:"id,omitempty"`
	Date   string `json:"date"`
	Name   string `json:"name"`
	Memo   string `json:"memo,omitempty"`
	Amount string `json:"amount"`
	Type   string `json:"type,omitempty"`
}

// ParseSimpleJSON parses a file in the simple JSON format.
func ParseSimpleJSON(path string) ([]ledger.Transaction, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}

	var jsonData SimpleJSONFormat
	if err := json.Unmarshal(data, &jsonData); err != nil {
		return nil, fmt.Errorf("parsing JSON: %w", err)
	}

	var txs []ledger.Transaction
	for _, row := range jsonData.Transactions {
		posted, err := time.ParseInLocation("2006-01-02", row.Date, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("parsing date %q: %w", row.Date, err)
		}
		amount, err := decimal.NewFromString(row.Amount)
		if err != nil {
			return nil, fmt.Errorf("parsing amount %q: %w", row.Amount, err)
		}
		txs = append(txs, ledger.Transaction{
			ID:     row.ID,
			Name:   row.Name,
			Memo:   row.Memo,
			Amount: amount,
			Posted: posted,
			Type:   ledger.TransactionType(strings.ToUpper(row.Type)),
		})
	}
	return txs, nil
}

func init() {
	RegisterParser("simple-json", ParserFunc(ParseSimpleJSON))
}
