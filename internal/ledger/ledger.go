// Package ledger is the bridge's boundary with the distributed ledger. The
// wire protocol, signing and consensus live behind Client; the bridge only
// sequences and retries what it asks of it.
package ledger

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// AmountScale is the number of decimal places the ledger carries.
const AmountScale = 7

//go:generate mockgen -source=ledger.go -destination=mocks/mocks.go -package=mocks Client,KeyGenerator

// Signer is an account together with the secret that authorises operations
// from it. Signers are handed out per operation and never persisted outside
// the registry.
type Signer struct {
	AccountID string
	Seed      string
}

// Asset is a credit asset. Native balances use Code "native" and no issuer.
type Asset struct {
	Code   string
	Issuer string
}

func (a Asset) IsNative() bool {
	return a.Issuer == ""
}

func (a Asset) String() string {
	if a.IsNative() {
		return a.Code
	}
	return a.Code + ":" + a.Issuer
}

// Balance is one line of an account: a holding and its trust limit.
type Balance struct {
	Asset  Asset
	Amount decimal.Decimal
	Limit  decimal.Decimal
}

// Headroom is how much more the line can receive.
func (b Balance) Headroom() decimal.Decimal {
	h := b.Limit.Sub(b.Amount)
	if h.IsNegative() {
		return decimal.Zero
	}
	return h
}

// PaymentOp is a transfer from the signer's account.
type PaymentOp struct {
	Destination string
	Asset       Asset
	Amount      decimal.Decimal
	// Reference is the hex idempotency reference carried as the transaction's
	// hash memo. Empty for transfers that need none.
	Reference string
}

// Client is what the bridge needs from the ledger.
type Client interface {
	AccountExists(ctx context.Context, accountID string) (bool, error)
	// CreateAccount creates and funds destination from funder.
	CreateAccount(ctx context.Context, funder Signer, destination string, startingBalance decimal.Decimal) (string, error)
	// ChangeTrust sets the signer's trust limit for asset; a zero limit removes the line.
	ChangeTrust(ctx context.Context, signer Signer, asset Asset, limit decimal.Decimal) (string, error)
	// Pay submits a payment and returns the transaction hash.
	Pay(ctx context.Context, source Signer, op PaymentOp) (string, error)
	// FindPaymentByReference looks for a successful transaction from accountID
	// carrying reference. It returns the hash and whether one was found.
	FindPaymentByReference(ctx context.Context, accountID, reference string) (string, bool, error)
	Balances(ctx context.Context, accountID string) ([]Balance, error)
}

// KeyGenerator creates fresh ledger keypairs and validates account ids.
type KeyGenerator interface {
	NewSigner() (Signer, error)
	ValidAccountID(accountID string) bool
}

// Ledger facts. Adapters wrap these so services can decide what to retry.
var (
	ErrSequenceConflict = errors.New("ledger: sequence number conflict")
	ErrTransient        = errors.New("ledger: transient failure")
	ErrAccountNotFound  = errors.New("ledger: account not found")
	ErrUnderfunded      = errors.New("ledger: underfunded")
	ErrNoTrust          = errors.New("ledger: destination lacks trust line")
	ErrLineFull         = errors.New("ledger: destination trust line full")
	ErrRejected         = errors.New("ledger: transaction rejected")
)

// Retryable reports whether err may succeed if the operation is rebuilt and
// resubmitted. Sequence conflicts are resolved by reloading the account.
func Retryable(err error) bool {
	return errors.Is(err, ErrSequenceConflict) ||
		errors.Is(err, ErrTransient) ||
		errors.Is(err, context.DeadlineExceeded)
}

// FindBalance returns the balance line for asset, if any.
func FindBalance(balances []Balance, asset Asset) (Balance, bool) {
	for _, b := range balances {
		if b.Asset == asset {
			return b, true
		}
	}
	return Balance{}, false
}

// SumByCode adds up every credit line with the given asset code regardless of issuer.
func SumByCode(balances []Balance, code string) decimal.Decimal {
	total := decimal.Zero
	for _, b := range balances {
		if b.Asset.Code == code {
			total = total.Add(b.Amount)
		}
	}
	return total
}
