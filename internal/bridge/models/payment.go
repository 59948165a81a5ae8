package models

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	dErrors "stellarbridge/pkg/domain-errors"
)

// PaymentStatus is the position of a payment in its lifecycle.
//
//	Pending -> Submitted -> Confirmed
//	Pending -> Failed
//	Submitted -> Failed
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentSubmitted PaymentStatus = "submitted"
	PaymentConfirmed PaymentStatus = "confirmed"
	PaymentFailed    PaymentStatus = "failed"
)

// IsTerminal reports whether no further transitions are possible.
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentConfirmed || s == PaymentFailed
}

// CanTransitionTo reports whether the state machine allows s -> next.
func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	switch s {
	case PaymentPending:
		return next == PaymentSubmitted || next == PaymentFailed || next == PaymentConfirmed
	case PaymentSubmitted:
		return next == PaymentConfirmed || next == PaymentFailed
	default:
		return false
	}
}

// Payment is a ledger transfer derived from one journal entry.
//
// Reference is deterministic in (SourceTenantID, SourceJournalEntryRef) and
// travels with the ledger transaction, so a resubmission can be recognised.
type Payment struct {
	ID                    uuid.UUID       `json:"id"`
	Reference             string          `json:"reference"`
	SourceTenantID        string          `json:"source_tenant_id"`
	SourceJournalEntryRef string          `json:"source_journal_entry_ref"`
	DestinationAddress    string          `json:"destination_address"`
	DestinationAccountID  string          `json:"destination_account_id,omitempty"`
	AssetCode             string          `json:"asset_code"`
	AssetIssuer           string          `json:"asset_issuer"`
	Amount                decimal.Decimal `json:"amount"`
	IsLedgerPayment       bool            `json:"is_ledger_payment"`
	Status                PaymentStatus   `json:"status"`
	FailureCode           dErrors.Code    `json:"failure_code,omitempty"`
	FailureReason         string          `json:"failure_reason,omitempty"`
	LedgerTxHash          string          `json:"ledger_tx_hash,omitempty"`
	Attempts              int             `json:"attempts"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
}

// PaymentReference derives the idempotent identifier of a journal entry's
// payment: hex(sha256(tenantID "|" journalEntryRef)). It fits the ledger's
// 32-byte hash memo.
func PaymentReference(tenantID, journalEntryRef string) string {
	sum := sha256.Sum256([]byte(tenantID + "|" + journalEntryRef))
	return hex.EncodeToString(sum[:])
}

// Transition moves the payment to next, enforcing the state machine.
func (p *Payment) Transition(next PaymentStatus, now time.Time) error {
	if !p.Status.CanTransitionTo(next) {
		return dErrors.New(dErrors.CodeConflict, "payment cannot move from "+string(p.Status)+" to "+string(next))
	}
	p.Status = next
	p.UpdatedAt = now
	return nil
}

// Fail moves the payment to Failed and records the cause.
func (p *Payment) Fail(cause error, now time.Time) error {
	if err := p.Transition(PaymentFailed, now); err != nil {
		return err
	}
	code, ok := dErrors.CodeOf(cause)
	if !ok {
		code = dErrors.CodeInternal
	}
	p.FailureCode = code
	p.FailureReason = cause.Error()
	return nil
}
