package models

import (
	"github.com/shopspring/decimal"
)

// EntryType is the side of a journal line.
type EntryType string

const (
	EntryDebit  EntryType = "DEBIT"
	EntryCredit EntryType = "CREDIT"
)

// GLAccountType is the general-ledger classification of the account a line
// posts to.
type GLAccountType string

const (
	GLAsset     GLAccountType = "ASSET"
	GLLiability GLAccountType = "LIABILITY"
	GLEquity    GLAccountType = "EQUITY"
	GLIncome    GLAccountType = "INCOME"
	GLExpense   GLAccountType = "EXPENSE"
)

// Valid reports whether t is a known classification. An empty type is
// accepted as unclassified.
func (t GLAccountType) Valid() bool {
	switch t {
	case "", GLAsset, GLLiability, GLEquity, GLIncome, GLExpense:
		return true
	}
	return false
}

// CanClear reports whether a line on an account of this type may settle
// against the ledger. Clearing accounts live on the balance sheet as assets
// or liabilities.
func (t GLAccountType) CanClear() bool {
	return t == "" || t == GLAsset || t == GLLiability
}

// JournalEntry is the accounting event delivered by the core-banking system
// for entity JOURNALENTRY, action CREATE.
type JournalEntry struct {
	ID           string        `json:"id"`
	CurrencyCode string        `json:"currencyCode"`
	AssetIssuer  string        `json:"assetIssuer,omitempty"`
	Lines        []JournalLine `json:"lines"`
}

// JournalLine is one posting. Lines that post to a bridged clearing account
// carry the counterpart's ledger address.
type JournalLine struct {
	GLAccountCode string          `json:"glAccountCode"`
	GLAccountType GLAccountType   `json:"glAccountType"`
	EntryType     EntryType       `json:"entryType"`
	Amount        decimal.Decimal `json:"amount"`
	LedgerAddress string          `json:"ledgerAddress,omitempty"`
}

// IsLedgerClearing reports whether the line settles against the ledger.
func (l JournalLine) IsLedgerClearing() bool {
	return l.LedgerAddress != ""
}
