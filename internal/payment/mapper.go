// Package payment turns accounting journal entries into ledger payments and
// drives those payments to a terminal state exactly once.
package payment

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"stellarbridge/internal/bridge/models"
	dErrors "stellarbridge/pkg/domain-errors"
	"stellarbridge/pkg/requestcontext"
)

// EntryKind is the closed set of journal entry classifications.
type EntryKind int

const (
	// EntryInternal moves value between the tenant's own GL accounts.
	EntryInternal EntryKind = iota
	// EntryOutboundLedger credits a ledger clearing account: value leaves
	// the tenant's books towards a ledger address.
	EntryOutboundLedger
	// EntryInboundLedger debits a ledger clearing account. The transfer is
	// initiated by the sending side, so nothing is submitted here.
	EntryInboundLedger
)

func (k EntryKind) String() string {
	switch k {
	case EntryInternal:
		return "internal"
	case EntryOutboundLedger:
		return "outbound_ledger"
	case EntryInboundLedger:
		return "inbound_ledger"
	default:
		return fmt.Sprintf("EntryKind(%d)", int(k))
	}
}

// Classify checks that entry is a well-formed double-entry posting and
// decides what it means for the ledger.
func Classify(entry models.JournalEntry) (EntryKind, error) {
	if strings.TrimSpace(entry.ID) == "" {
		return 0, invalidEntry("journal entry has no id")
	}
	if strings.TrimSpace(entry.CurrencyCode) == "" {
		return 0, invalidEntry("journal entry has no currency")
	}

	var debits, credits decimal.Decimal
	var debitLines, creditLines, inbound, outbound int
	for i, line := range entry.Lines {
		if strings.TrimSpace(line.GLAccountCode) == "" {
			return 0, invalidEntry(fmt.Sprintf("line %d names no GL account", i))
		}
		if !line.Amount.IsPositive() {
			return 0, invalidEntry(fmt.Sprintf("line %d amount must be positive", i))
		}
		if !line.GLAccountType.Valid() {
			return 0, invalidEntry(fmt.Sprintf("line %d has unknown GL account type %q", i, line.GLAccountType))
		}
		if line.IsLedgerClearing() && !line.GLAccountType.CanClear() {
			return 0, invalidEntry(fmt.Sprintf("line %d settles against the ledger from a %s account", i, line.GLAccountType))
		}
		switch line.EntryType {
		case models.EntryDebit:
			debitLines++
			debits = debits.Add(line.Amount)
			if line.IsLedgerClearing() {
				inbound++
			}
		case models.EntryCredit:
			creditLines++
			credits = credits.Add(line.Amount)
			if line.IsLedgerClearing() {
				outbound++
			}
		default:
			return 0, invalidEntry(fmt.Sprintf("line %d has unknown entry type %q", i, line.EntryType))
		}
	}

	if debitLines == 0 || creditLines == 0 {
		return 0, invalidEntry("journal entry needs at least one debit and one credit")
	}
	if !debits.Equal(credits) {
		return 0, invalidEntry("journal entry is unbalanced: debits " + debits.String() + ", credits " + credits.String())
	}

	switch {
	case inbound > 0 && outbound > 0:
		return 0, invalidEntry("journal entry both sends to and receives from the ledger")
	case outbound > 1:
		return 0, invalidEntry("journal entry credits more than one ledger clearing account")
	case outbound == 1:
		return EntryOutboundLedger, nil
	case inbound > 0:
		return EntryInboundLedger, nil
	default:
		return EntryInternal, nil
	}
}

// Mapper builds payments from journal entries.
type Mapper struct{}

func NewMapper() *Mapper {
	return &Mapper{}
}

// MapToPayment classifies entry and returns the payment it implies. Entries
// that do not leave the tenant's books towards the ledger yield a payment
// with IsLedgerPayment false, which must not be sent.
func (m *Mapper) MapToPayment(ctx context.Context, tenantID string, entry models.JournalEntry) (*models.Payment, error) {
	kind, err := Classify(entry)
	if err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	p := &models.Payment{
		ID:                    uuid.New(),
		Reference:             models.PaymentReference(tenantID, entry.ID),
		SourceTenantID:        tenantID,
		SourceJournalEntryRef: entry.ID,
		AssetCode:             entry.CurrencyCode,
		AssetIssuer:           entry.AssetIssuer,
		Status:                models.PaymentPending,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if kind != EntryOutboundLedger {
		return p, nil
	}

	if err := models.ValidateAssetCode(entry.CurrencyCode); err != nil {
		return nil, invalidEntry("currency is not a valid asset code")
	}
	if strings.TrimSpace(entry.AssetIssuer) == "" {
		return nil, invalidEntry("ledger payment names no asset issuer")
	}
	for _, line := range entry.Lines {
		if line.EntryType == models.EntryCredit && line.IsLedgerClearing() {
			if err := models.ValidateAmount(line.Amount); err != nil {
				return nil, invalidEntry("ledger payment amount has more than 7 fractional digits")
			}
			p.DestinationAddress = line.LedgerAddress
			p.Amount = line.Amount
		}
	}
	p.IsLedgerPayment = true
	return p, nil
}

func invalidEntry(msg string) error {
	return dErrors.New(dErrors.CodeInvalidJournalEntry, msg)
}
