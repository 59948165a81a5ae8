package events

import "time"

// Type names a bridge event.
type Type string

const (
	BridgeCreated     Type = "bridge.created"
	BridgeDeleted     Type = "bridge.deleted"
	TrustLineAdjusted Type = "trustline.adjusted"
	VaultAdjusted     Type = "vault.adjusted"
	PaymentConfirmed  Type = "payment.confirmed"
	PaymentFailed     Type = "payment.failed"
)

// Event is emitted from domain logic after a state change has been
// persisted. Keep it transport-agnostic so sinks can fan out.
type Event struct {
	ID         string            `json:"id"`
	Type       Type              `json:"type"`
	TenantID   string            `json:"tenant_id,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
	Data       map[string]string `json:"data,omitempty"`
}
