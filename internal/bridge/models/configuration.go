package models

import (
	"strings"
	"time"

	dErrors "stellarbridge/pkg/domain-errors"
)

// BridgeConfiguration binds a tenant to its shadow account on the ledger.
//
// Invariants:
//   - TenantID is non-empty and unique across configurations
//   - LedgerAccountID and LedgerSigningKey are set at creation and never change
//   - Only the registry reads LedgerSigningKey; other components receive a
//     ledger.Signer for the duration of one operation
type BridgeConfiguration struct {
	TenantID         string    `json:"tenant_id"`
	LedgerAccountID  string    `json:"ledger_account_id"`
	LedgerSigningKey string    `json:"-"`
	ExternalToken    string    `json:"-"`
	CreatedAt        time.Time `json:"created_at"`
}

func NewBridgeConfiguration(tenantID, accountID, signingKey, externalToken string, now time.Time) (*BridgeConfiguration, error) {
	tenantID = strings.TrimSpace(tenantID)
	if err := ValidateTenantID(tenantID); err != nil {
		return nil, err
	}
	if accountID == "" || signingKey == "" {
		return nil, dErrors.New(dErrors.CodeInvalidConfiguration, "ledger account and signing key are required")
	}
	return &BridgeConfiguration{
		TenantID:         tenantID,
		LedgerAccountID:  accountID,
		LedgerSigningKey: signingKey,
		ExternalToken:    externalToken,
		CreatedAt:        now,
	}, nil
}

// ValidateTenantID checks the shape of a tenant identifier.
func ValidateTenantID(tenantID string) error {
	if tenantID == "" {
		return dErrors.New(dErrors.CodeInvalidConfiguration, "tenant id is required")
	}
	if len(tenantID) > 100 {
		return dErrors.New(dErrors.CodeInvalidConfiguration, "tenant id must be 100 characters or less")
	}
	return nil
}
