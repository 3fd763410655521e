// Package statement imports bank statement lines from OFX/QFX and CSV files.
package statement

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/Veraticus/the-spice-must-balance/internal/model"
)

// Parser reads statement transactions from a stream.
type Parser interface {
	Parse(ctx context.Context, r io.Reader) ([]model.StatementTransaction, error)
}

// ParserFor picks a parser from the file extension.
func ParserFor(path string) (Parser, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".ofx", ".qfx":
		return NewOFXParser(), nil
	case ".csv":
		return NewCSVParser(), nil
	default:
		return nil, fmt.Errorf("unsupported statement format: %q", filepath.Ext(path))
	}
}

// ParseFile parses one statement file. Lines without an account take the
// fallback account ID.
func ParseFile(ctx context.Context, path, accountID string) ([]model.StatementTransaction, error) {
	parser, err := ParserFor(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open statement %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	txns, err := parser.Parse(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	for i := range txns {
		if txns[i].AccountID == "" {
			txns[i].AccountID = accountID
			txns[i].Hash = txns[i].GenerateHash()
		}
	}
	return txns, nil
}

// ParseFiles parses several files. A line is dropped when an earlier file
// already produced its ID, or the same content the same number of times,
// which happens when overlapping exports are combined. Lines within one
// file are never merged.
func ParseFiles(ctx context.Context, paths []string, accountID string) ([]model.StatementTransaction, error) {
	var all []model.StatementTransaction
	seenIDs := make(map[string]bool)
	seenContent := make(map[string]bool)

	for _, path := range paths {
		txns, err := ParseFile(ctx, path, accountID)
		if err != nil {
			return nil, err
		}

		occurrences := make(map[string]int, len(txns))
		fileIDs := make(map[string]bool, len(txns))
		fileContent := make(map[string]bool, len(txns))
		for _, txn := range txns {
			occurrences[txn.Hash]++
			contentKey := fmt.Sprintf("%s#%d", txn.Hash, occurrences[txn.Hash])

			fileIDs[txn.ID] = true
			fileContent[contentKey] = true
			if seenIDs[txn.ID] || seenContent[contentKey] {
				continue
			}
			all = append(all, txn)
		}

		for id := range fileIDs {
			seenIDs[id] = true
		}
		for key := range fileContent {
			seenContent[key] = true
		}
	}
	return all, nil
}

// ToBookTransactions converts imported lines into ledger rows for the
// given account.
func ToBookTransactions(txns []model.StatementTransaction, accountID string) []model.BookTransaction {
	books := make([]model.BookTransaction, len(txns))
	for i, txn := range txns {
		books[i] = model.BookTransaction{
			ID:              txn.ID,
			AccountID:       accountID,
			TransactionDate: txn.Date,
			Amount:          txn.Amount,
			Description:     txn.Description,
			ReferenceID:     txn.Reference,
		}
	}
	return books
}
