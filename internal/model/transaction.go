// Package model defines the core domain models used throughout the application.
package model

import (
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType tells a categorizer which way money moved.
type TransactionType string

// Transaction type constants.
const (
	TransactionDebit  TransactionType = "debit"
	TransactionCredit TransactionType = "credit"
)

// StatementTransaction is a single line from a bank or card statement.
// Values are never modified once handed to the matcher.
type StatementTransaction struct {
	Date        time.Time
	Amount      decimal.Decimal
	ID          string
	Description string
	Reference   string // Optional free-text reference (check number, FITID, etc.)
	AccountID   string
	Source      string // ofx, csv, plaid
	Hash        string
}

// Type derives the direction of a statement line from the sign of its amount.
func (s StatementTransaction) Type() TransactionType {
	if s.Amount.IsNegative() {
		return TransactionDebit
	}
	return TransactionCredit
}

// GenerateHash creates a unique hash for duplicate detection across imports.
func (s *StatementTransaction) GenerateHash() string {
	data := fmt.Sprintf("%s:%s:%s:%s",
		s.Date.Format("2006-01-02"),
		s.Amount.StringFixed(2),
		s.Description,
		s.AccountID)
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash)
}

// BookTransaction is a ledger row for the account being reconciled.
type BookTransaction struct {
	TransactionDate time.Time
	Amount          decimal.Decimal
	ID              string
	AccountID       string
	Description     string
	ReferenceID     string
	Category        string
	Reconciled      bool
}
