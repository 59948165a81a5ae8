package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TrustLineKey identifies a trust line. IssuerAccountID is the resolved
// ledger account, so two spellings of the same issuer address share a line.
type TrustLineKey struct {
	TenantID        string
	IssuerAccountID string
	AssetCode       string
}

func (k TrustLineKey) String() string {
	return k.TenantID + "|" + k.IssuerAccountID + "|" + k.AssetCode
}

// TrustLine lets a tenant's shadow account hold up to MaximumAmount of an
// asset from one issuer.
//
// CurrentBalance is the ledger balance read when MaximumAmount was last set.
// Payments read the live balance from the ledger instead.
//
// Invariants:
//   - CurrentBalance <= MaximumAmount
//   - MaximumAmount == 0 means the line is removed; such records are not stored
type TrustLine struct {
	TenantID        string          `json:"tenant_id"`
	IssuerAccountID string          `json:"issuer_account_id"`
	IssuerAddress   string          `json:"issuer_address"`
	AssetCode       string          `json:"asset_code"`
	MaximumAmount   decimal.Decimal `json:"maximum_amount"`
	CurrentBalance  decimal.Decimal `json:"current_balance"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

func (t *TrustLine) Key() TrustLineKey {
	return TrustLineKey{TenantID: t.TenantID, IssuerAccountID: t.IssuerAccountID, AssetCode: t.AssetCode}
}

// Removed reports whether the line has been taken down.
func (t *TrustLine) Removed() bool {
	return t.MaximumAmount.IsZero()
}

// Headroom is how much more the line can accept.
func (t *TrustLine) Headroom() decimal.Decimal {
	h := t.MaximumAmount.Sub(t.CurrentBalance)
	if h.IsNegative() {
		return decimal.Zero
	}
	return h
}
