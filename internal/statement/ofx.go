package statement

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"

	"github.com/Veraticus/the-spice-must-balance/internal/model"
	"github.com/aclindsa/ofxgo"
	"github.com/shopspring/decimal"
)

var (
	severityRegex = regexp.MustCompile(`(?i)<SEVERITY>(Info|Warn|Error)</SEVERITY>`)
	// Opening tags at end of line that lost their closing bracket.
	tagFixRegex = regexp.MustCompile(`(?m)^(\s*<[A-Z][A-Z0-9._]*[A-Z0-9])$`)
)

// OFXParser implements OFX/QFX statement parsing.
type OFXParser struct {
	logger *slog.Logger
}

// NewOFXParser creates a new OFX parser.
func NewOFXParser() *OFXParser {
	return &OFXParser{logger: slog.Default().With("component", "ofx")}
}

// preprocessOFX fixes common formatting issues in bank exports.
func preprocessOFX(content string) string {
	content = strings.TrimLeft(content, " \t\r\n")
	content = severityRegex.ReplaceAllStringFunc(content, strings.ToUpper)
	return tagFixRegex.ReplaceAllString(content, "$1>")
}

// Parse reads bank and credit card statements from an OFX file.
func (p *OFXParser) Parse(ctx context.Context, r io.Reader) ([]model.StatementTransaction, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read OFX file: %w", err)
	}

	resp, err := ofxgo.ParseResponse(strings.NewReader(preprocessOFX(string(content))))
	if err != nil {
		return nil, fmt.Errorf("failed to parse OFX file: %w", err)
	}

	var txns []model.StatementTransaction
	var bankStmts, ccStmts int

	for _, msg := range resp.Bank {
		if stmt, ok := msg.(*ofxgo.StatementResponse); ok {
			bankStmts++
			if stmt.BankTranList != nil {
				txns = append(txns, convertTransactions(stmt.BankTranList.Transactions, string(stmt.BankAcctFrom.AcctID))...)
			}
		}
	}

	for _, msg := range resp.CreditCard {
		if stmt, ok := msg.(*ofxgo.CCStatementResponse); ok {
			ccStmts++
			if stmt.BankTranList != nil {
				txns = append(txns, convertTransactions(stmt.BankTranList.Transactions, string(stmt.CCAcctFrom.AcctID))...)
			}
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.logger.Info("parsed OFX file",
		"transactions", len(txns),
		"bank_statements", bankStmts,
		"cc_statements", ccStmts)

	return txns, nil
}

func convertTransactions(ofxTxns []ofxgo.Transaction, accountID string) []model.StatementTransaction {
	txns := make([]model.StatementTransaction, 0, len(ofxTxns))
	for _, ofxTx := range ofxTxns {
		txns = append(txns, convertTransaction(ofxTx, accountID))
	}
	return txns
}

// convertTransaction keeps the OFX sign: debits are negative.
func convertTransaction(ofxTx ofxgo.Transaction, accountID string) model.StatementTransaction {
	amount, err := decimal.NewFromString(ofxTx.TrnAmt.FloatString(2))
	if err != nil {
		amount = decimal.Zero
	}

	reference := string(ofxTx.CheckNum)
	if reference == "" {
		reference = string(ofxTx.RefNum)
	}

	txn := model.StatementTransaction{
		ID:          string(ofxTx.FiTID),
		Date:        ofxTx.DtPosted.Time,
		Amount:      amount,
		Description: extractDescription(ofxTx),
		Reference:   reference,
		AccountID:   accountID,
		Source:      "ofx",
	}
	txn.Hash = txn.GenerateHash()
	return txn
}

var descriptionPrefixes = []string{
	"POS PURCHASE ",
	"PURCHASE AUTHORIZED ON ",
	"DEBIT CARD PURCHASE ",
	"ACH DEBIT ",
	"CHECK CARD ",
	"VISA PURCHASE ",
	"MC PURCHASE ",
	"DEBIT PURCHASE ",
}

// extractDescription prefers the payee, then NAME, then MEMO when NAME is
// generic, and strips card network noise.
func extractDescription(tx ofxgo.Transaction) string {
	if tx.Payee != nil && tx.Payee.Name != "" {
		return strings.TrimSpace(string(tx.Payee.Name))
	}

	name := strings.TrimSpace(string(tx.Name))
	if tx.Memo != "" && isGenericDescription(name) {
		name = strings.TrimSpace(string(tx.Memo))
	}

	for _, prefix := range descriptionPrefixes {
		if strings.HasPrefix(strings.ToUpper(name), prefix) {
			name = name[len(prefix):]
			break
		}
	}

	// Leading "MM/DD " posting dates.
	if len(name) > 5 && name[2] == '/' && name[5] == ' ' {
		name = strings.TrimSpace(name[6:])
	}

	return name
}

func isGenericDescription(name string) bool {
	switch strings.ToUpper(name) {
	case "", "DEBIT", "CREDIT", "PURCHASE", "PAYMENT", "POS TRANSACTION", "CARD PURCHASE":
		return true
	}
	return false
}
