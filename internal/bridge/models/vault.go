package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// VaultIssuance records how much of an asset the vault account has issued.
// IssuedAmount is the value achieved on the ledger, which can be lower than
// the last requested value.
type VaultIssuance struct {
	AssetCode    string          `json:"asset_code"`
	IssuedAmount decimal.Decimal `json:"issued_amount"`
	UpdatedAt    time.Time       `json:"updated_at"`
}
