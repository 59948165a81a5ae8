// Package ledgertest provides an in-memory ledger for tests. It enforces the
// rules the bridge relies on (account existence, trust limits, balances,
// reference memos) and can inject failures, including "applied but the
// response was lost" timeouts.
package ledgertest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"stellarbridge/internal/ledger"
)

type line struct {
	amount decimal.Decimal
	limit  decimal.Decimal
}

type transaction struct {
	hash      string
	reference string
}

type account struct {
	native decimal.Decimal
	lines  map[ledger.Asset]*line
	txs    []transaction
}

type fault struct {
	err       error
	remaining int
	// applyFirst executes the operation before returning err.
	applyFirst bool
}

// Ledger is an in-memory ledger.Client and ledger.KeyGenerator.
type Ledger struct {
	mu       sync.Mutex
	accounts map[string]*account
	faults   map[string][]*fault
	calls    map[string]int
	nextKey  int
	nextTx   int
}

var (
	_ ledger.Client       = (*Ledger)(nil)
	_ ledger.KeyGenerator = (*Ledger)(nil)
)

func New() *Ledger {
	return &Ledger{
		accounts: make(map[string]*account),
		faults:   make(map[string][]*fault),
		calls:    make(map[string]int),
	}
}

// NewAccountID returns a fresh, valid account id without creating the account.
func (l *Ledger) NewAccountID() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.newAccountIDLocked()
}

func (l *Ledger) newAccountIDLocked() string {
	l.nextKey++
	return fmt.Sprintf("G%055d", l.nextKey)
}

func (l *Ledger) NewSigner() (ledger.Signer, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	id := l.newAccountIDLocked()
	return ledger.Signer{AccountID: id, Seed: "S" + id[1:]}, nil
}

func (l *Ledger) ValidAccountID(accountID string) bool {
	return len(accountID) == 56 && strings.HasPrefix(accountID, "G")
}

// Fund creates accountID if needed and sets its native balance.
func (l *Ledger) Fund(accountID string, native decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	a := l.ensureLocked(accountID)
	a.native = native
}

// Trust sets a trust line directly.
func (l *Ledger) Trust(accountID string, asset ledger.Asset, limit decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	a := l.ensureLocked(accountID)
	ln, ok := a.lines[asset]
	if !ok {
		ln = &line{}
		a.lines[asset] = ln
	}
	ln.limit = limit
}

// Credit sets a trust line balance directly.
func (l *Ledger) Credit(accountID string, asset ledger.Asset, amount decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	a := l.ensureLocked(accountID)
	ln, ok := a.lines[asset]
	if !ok {
		ln = &line{limit: amount}
		a.lines[asset] = ln
	}
	ln.amount = amount
}

// Fail makes the next n calls of method return err.
func (l *Ledger) Fail(method string, err error, n int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.faults[method] = append(l.faults[method], &fault{err: err, remaining: n})
}

// ApplyThenFail makes the next n calls of method take effect and then report
// err, as when a response is lost after the ledger accepted the transaction.
func (l *Ledger) ApplyThenFail(method string, err error, n int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.faults[method] = append(l.faults[method], &fault{err: err, remaining: n, applyFirst: true})
}

// Calls returns how many times method was invoked.
func (l *Ledger) Calls(method string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls[method]
}

// Transfers counts applied transactions from accountID carrying reference.
func (l *Ledger) Transfers(accountID, reference string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.accounts[accountID]
	if !ok {
		return 0
	}
	n := 0
	for _, tx := range a.txs {
		if tx.reference == reference {
			n++
		}
	}
	return n
}

// BalanceOf returns the holding of asset on accountID.
func (l *Ledger) BalanceOf(accountID string, asset ledger.Asset) decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.accounts[accountID]
	if !ok {
		return decimal.Zero
	}
	if asset.IsNative() {
		return a.native
	}
	if ln, ok := a.lines[asset]; ok {
		return ln.amount
	}
	return decimal.Zero
}

// HasTrustLine reports whether accountID trusts asset.
func (l *Ledger) HasTrustLine(accountID string, asset ledger.Asset) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.accounts[accountID]
	if !ok {
		return false
	}
	_, ok = a.lines[asset]
	return ok
}

func (l *Ledger) AccountExists(ctx context.Context, accountID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if f := l.faultLocked("AccountExists"); f != nil {
		return false, f.err
	}
	_, ok := l.accounts[accountID]
	return ok, ctx.Err()
}

func (l *Ledger) CreateAccount(ctx context.Context, funder ledger.Signer, destination string, startingBalance decimal.Decimal) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	f := l.faultLocked("CreateAccount")
	if f != nil && !f.applyFirst {
		return "", f.err
	}
	src, ok := l.accounts[funder.AccountID]
	if !ok {
		return "", ledger.ErrAccountNotFound
	}
	if _, exists := l.accounts[destination]; exists {
		return "", fmt.Errorf("%w: account already exists", ledger.ErrRejected)
	}
	if src.native.LessThan(startingBalance) {
		return "", ledger.ErrUnderfunded
	}
	src.native = src.native.Sub(startingBalance)
	dst := l.ensureLocked(destination)
	dst.native = startingBalance
	hash := l.recordLocked(src, "")
	if f != nil {
		return "", f.err
	}
	return hash, ctx.Err()
}

func (l *Ledger) ChangeTrust(ctx context.Context, signer ledger.Signer, asset ledger.Asset, limit decimal.Decimal) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	f := l.faultLocked("ChangeTrust")
	if f != nil && !f.applyFirst {
		return "", f.err
	}
	a, ok := l.accounts[signer.AccountID]
	if !ok {
		return "", ledger.ErrAccountNotFound
	}
	ln, exists := a.lines[asset]
	switch {
	case limit.IsZero():
		if exists && ln.amount.IsPositive() {
			return "", fmt.Errorf("%w: cannot remove trust line with balance", ledger.ErrRejected)
		}
		delete(a.lines, asset)
	case exists && limit.LessThan(ln.amount):
		return "", fmt.Errorf("%w: limit below balance", ledger.ErrRejected)
	case exists:
		ln.limit = limit
	default:
		a.lines[asset] = &line{limit: limit}
	}
	hash := l.recordLocked(a, "")
	if f != nil {
		return "", f.err
	}
	return hash, ctx.Err()
}

func (l *Ledger) Pay(ctx context.Context, source ledger.Signer, op ledger.PaymentOp) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	f := l.faultLocked("Pay")
	if f != nil && !f.applyFirst {
		return "", f.err
	}
	src, ok := l.accounts[source.AccountID]
	if !ok {
		return "", ledger.ErrAccountNotFound
	}
	dst, ok := l.accounts[op.Destination]
	if !ok {
		return "", ledger.ErrAccountNotFound
	}

	if source.AccountID != op.Asset.Issuer {
		sl, ok := src.lines[op.Asset]
		if !ok || sl.amount.LessThan(op.Amount) {
			return "", ledger.ErrUnderfunded
		}
	}
	if op.Destination != op.Asset.Issuer {
		dl, ok := dst.lines[op.Asset]
		if !ok {
			return "", ledger.ErrNoTrust
		}
		if dl.limit.Sub(dl.amount).LessThan(op.Amount) {
			return "", ledger.ErrLineFull
		}
		dl.amount = dl.amount.Add(op.Amount)
	}
	if source.AccountID != op.Asset.Issuer {
		sl := src.lines[op.Asset]
		sl.amount = sl.amount.Sub(op.Amount)
	}
	hash := l.recordLocked(src, op.Reference)
	if f != nil {
		return "", f.err
	}
	return hash, ctx.Err()
}

func (l *Ledger) FindPaymentByReference(ctx context.Context, accountID, reference string) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if f := l.faultLocked("FindPaymentByReference"); f != nil {
		return "", false, f.err
	}
	a, ok := l.accounts[accountID]
	if !ok {
		return "", false, nil
	}
	for _, tx := range a.txs {
		if reference != "" && tx.reference == reference {
			return tx.hash, true, nil
		}
	}
	return "", false, ctx.Err()
}

func (l *Ledger) Balances(ctx context.Context, accountID string) ([]ledger.Balance, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if f := l.faultLocked("Balances"); f != nil {
		return nil, f.err
	}
	a, ok := l.accounts[accountID]
	if !ok {
		return nil, ledger.ErrAccountNotFound
	}
	out := []ledger.Balance{{Asset: ledger.Asset{Code: "native"}, Amount: a.native}}
	for asset, ln := range a.lines {
		out = append(out, ledger.Balance{Asset: asset, Amount: ln.amount, Limit: ln.limit})
	}
	return out, ctx.Err()
}

func (l *Ledger) ensureLocked(accountID string) *account {
	a, ok := l.accounts[accountID]
	if !ok {
		a = &account{native: decimal.Zero, lines: make(map[ledger.Asset]*line)}
		l.accounts[accountID] = a
	}
	return a
}

func (l *Ledger) recordLocked(a *account, reference string) string {
	l.nextTx++
	hash := fmt.Sprintf("%064x", l.nextTx)
	a.txs = append(a.txs, transaction{hash: hash, reference: reference})
	return hash
}

func (l *Ledger) faultLocked(method string) *fault {
	l.calls[method]++
	queue := l.faults[method]
	if len(queue) == 0 {
		return nil
	}
	f := queue[0]
	f.remaining--
	if f.remaining <= 0 {
		l.faults[method] = queue[1:]
	}
	return f
}
