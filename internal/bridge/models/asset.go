package models

import (
	"github.com/shopspring/decimal"

	dErrors "stellarbridge/pkg/domain-errors"
)

// LedgerScale is the number of fractional digits the ledger keeps.
const LedgerScale = 7

// ValidateAssetCode enforces the ledger's credit asset code shape:
// 1 to 12 ASCII letters or digits.
func ValidateAssetCode(code string) error {
	if code == "" || len(code) > 12 {
		return dErrors.New(dErrors.CodeInvalidInput, "asset code must be 1 to 12 characters")
	}
	for _, r := range code {
		isDigit := r >= '0' && r <= '9'
		isLetter := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
		if !isDigit && !isLetter {
			return dErrors.New(dErrors.CodeInvalidInput, "asset code must be alphanumeric")
		}
	}
	return nil
}

// ValidateAmount rejects negative amounts and amounts finer than the ledger
// can represent.
func ValidateAmount(amount decimal.Decimal) error {
	if amount.IsNegative() {
		return dErrors.New(dErrors.CodeInvalidInput, "amount must not be negative")
	}
	if !amount.Equal(amount.Truncate(LedgerScale)) {
		return dErrors.New(dErrors.CodeInvalidInput, "amount has more than 7 fractional digits")
	}
	return nil
}
