// Package imports turns bank-export files into normalized ledger
// transactions. Parsers register under a source name; nothing downstream of
// this package touches source formats.
package imports

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cream-budget/cream/internal/ledger"
)

// Parser parses a transaction file into normalized rows.
type Parser interface {
	Parse(path string) ([]ledger.Transaction, error)
}

// ParserFunc is a function that implements Parser.
type ParserFunc func(path string) ([]ledger.Transaction, error)

func (f ParserFunc) Parse(path string) ([]ledger.Transaction, error) {
	return f(path)
}

var parsers = map[string]Parser{}

// RegisterParser registers a parser under the given source name.
func RegisterParser(name string, p Parser) {
	parsers[name] = p
}

// GetParser returns the parser registered for the source name.
func GetParser(source string) (Parser, error) {
	p, ok := parsers[source]
	if !ok {
		return nil, fmt.Errorf("unknown source type: %s (available: %v)", source, AvailableSources())
	}
	return p, nil
}

// AvailableSources lists the registered source names, sorted.
func AvailableSources() []string {
	var sources []string
	for name := range parsers {
		sources = append(sources, name)
	}
	sort.Strings(sources)
	return sources
}

// DetectSource guesses the source name from the file extension. Returns ""
// when the extension is not recognized.
func DetectSource(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return "csv"
	case ".json":
		return "simple-json"
	case ".xlsx":
		return "xlsx"
	}
	return ""
}

// Normalize stamps the account onto parsed rows and fills missing IDs with
// a deterministic digest of the row's content, so re-importing the same
// file never duplicates transactions.
func Normalize(txs []ledger.Transaction, accountID string) []ledger.Transaction {
	seen := map[string]int{}
	out := make([]ledger.Transaction, len(txs))
	for i, tx := range txs {
		tx.AccountID = accountID
		if tx.Type == "" {
			tx.Type = ledger.TxOther
		}
		if tx.ID == "" {
			key := fmt.Sprintf("%s|%s|%s|%s",
				accountID, tx.Posted.UTC().Format("2006-01-02"), tx.Amount.String(), tx.Name)
			// Identical rows in one file stay distinct but keep the same
			// IDs across re-imports.
			n := seen[key]
			seen[key]++
			sum := sha1.Sum([]byte(fmt.Sprintf("%s|%d", key, n)))
			tx.ID = hex.EncodeToString(sum[:])
		}
		out[i] = tx
	}
	return out
}
