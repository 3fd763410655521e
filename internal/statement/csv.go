package statement

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/Veraticus/the-spice-must-balance/internal/model"
	"github.com/shopspring/decimal"
)

var csvDateLayouts = []string{"2006-01-02", "01/02/2006", "1/2/2006", "2006/01/02"}

// CSVParser reads statements with a header row naming at least the date,
// description and amount columns. The id and reference columns are
// optional.
type CSVParser struct{}

// NewCSVParser creates a new CSV parser.
func NewCSVParser() *CSVParser {
	return &CSVParser{}
}

// Parse reads every data row. Rows without an id get one derived from
// their content and how often that content occurred earlier in the file,
// so re-importing a file yields the same ids and different files do not
// collide.
func (p *CSVParser) Parse(ctx context.Context, r io.Reader) ([]model.StatementTransaction, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"date", "description", "amount"} {
		if _, ok := columns[required]; !ok {
			return nil, fmt.Errorf("CSV header is missing the %q column", required)
		}
	}

	field := func(record []string, name string) string {
		i, ok := columns[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	var txns []model.StatementTransaction
	occurrences := make(map[string]int)
	for line := 2; ; line++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error reading CSV at line %d: %w", line, err)
		}

		date, err := parseDate(field(record, "date"))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		amount, err := parseAmount(field(record, "amount"))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		txn := model.StatementTransaction{
			ID:          field(record, "id"),
			Date:        date,
			Amount:      amount,
			Description: field(record, "description"),
			Reference:   field(record, "reference"),
			Source:      "csv",
		}
		txn.Hash = txn.GenerateHash()
		if txn.ID == "" {
			occurrences[txn.Hash]++
			txn.ID = derivedID(txn, occurrences[txn.Hash])
		}
		txns = append(txns, txn)
	}

	return txns, nil
}

// derivedID names a row that has no id column value.
func derivedID(txn model.StatementTransaction, occurrence int) string {
	key := txn.Hash
	if txn.Reference != "" {
		key = key + ":" + txn.Reference
	}
	return fmt.Sprintf("csv-%s-%d", key[:16], occurrence)
}

func parseDate(value string) (time.Time, error) {
	for _, layout := range csvDateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", value)
}

// parseAmount accepts currency symbols, thousands separators and
// accounting parentheses for negatives.
func parseAmount(value string) (decimal.Decimal, error) {
	cleaned := strings.NewReplacer("$", "", ",", "", " ", "").Replace(value)

	negative := strings.HasPrefix(cleaned, "(") && strings.HasSuffix(cleaned, ")")
	if negative {
		cleaned = strings.TrimSuffix(strings.TrimPrefix(cleaned, "("), ")")
	}

	amount, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q", value)
	}
	if negative {
		amount = amount.Neg()
	}
	return amount, nil
}
