package payment

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"stellarbridge/internal/bridge/models"
	"stellarbridge/internal/events"
	"stellarbridge/internal/ledger"
	"stellarbridge/internal/payment/metrics"
	dErrors "stellarbridge/pkg/domain-errors"
	"stellarbridge/pkg/platform/keylock"
	"stellarbridge/pkg/platform/retry"
	"stellarbridge/pkg/platform/sentinel"
	"stellarbridge/pkg/requestcontext"
)

// Store is the payment log. Reference is the primary key.
type Store interface {
	Insert(ctx context.Context, p *models.Payment) error
	FindByReference(ctx context.Context, reference string) (*models.Payment, error)
	Update(ctx context.Context, p *models.Payment) error
	ListByStatus(ctx context.Context, statuses ...models.PaymentStatus) ([]*models.Payment, error)
}

type Resolver interface {
	ResolveAccount(ctx context.Context, raw string) (string, error)
}

// TrustLines reads the trust lines established for a tenant.
type TrustLines interface {
	Get(ctx context.Context, tenantID, issuer, assetCode string) (*models.TrustLine, error)
}

type SignerSource interface {
	Signer(ctx context.Context, tenantID string) (ledger.Signer, error)
}

// Bridge submits payments to the ledger. Every payment carries its
// reference as the transaction memo; the ledger is searched for that
// reference before anything is submitted, so a payment is transferred at
// most once however often it is sent.
type Bridge struct {
	store        Store
	resolver     Resolver
	signers      SignerSource
	ledger       ledger.Client
	trustLines   TrustLines
	locks        *keylock.Locker
	policy       retry.Policy
	installation string
	publisher    events.Publisher
	logger       *slog.Logger
	metrics      *metrics.Metrics
}

type Option func(*Bridge)

func WithLogger(logger *slog.Logger) Option {
	return func(b *Bridge) {
		b.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Bridge) {
		b.metrics = m
	}
}

func WithPublisher(p events.Publisher) Option {
	return func(b *Bridge) {
		b.publisher = p
	}
}

func WithRetryPolicy(p retry.Policy) Option {
	return func(b *Bridge) {
		b.policy = p
	}
}

func WithLocker(l *keylock.Locker) Option {
	return func(b *Bridge) {
		b.locks = l
	}
}

// WithTrustLines makes a payment require a stored trust line on the source
// tenant for the paid asset before the ledger is consulted.
func WithTrustLines(t TrustLines) Option {
	return func(b *Bridge) {
		b.trustLines = t
	}
}

// WithInstallationAccount sets the shared account queried by
// GetInstallationAccountBalance.
func WithInstallationAccount(accountID string) Option {
	return func(b *Bridge) {
		b.installation = accountID
	}
}

func NewBridge(store Store, resolver Resolver, signers SignerSource, client ledger.Client, opts ...Option) *Bridge {
	b := &Bridge{
		store:     store,
		resolver:  resolver,
		signers:   signers,
		ledger:    client,
		locks:     keylock.New(),
		policy:    retry.DefaultPolicy(),
		publisher: events.Noop{},
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Send drives p to a terminal state and returns it. A payment already in
// the log under the same reference is resumed, or reported as is when it
// has finished. Once the payment is Submitted, cancelling ctx no longer
// stops it.
func (b *Bridge) Send(ctx context.Context, p *models.Payment) (models.PaymentStatus, error) {
	if !p.IsLedgerPayment {
		return "", dErrors.New(dErrors.CodeInvalidInput, "journal entry does not produce a ledger payment")
	}
	start := time.Now()

	unlock, err := b.locks.Lock(ctx, "payment:"+p.Reference)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeUnavailable, "payment cancelled")
	}
	defer unlock()

	current, err := b.record(ctx, p)
	if err != nil {
		return "", err
	}
	switch current.Status {
	case models.PaymentConfirmed:
		return current.Status, nil
	case models.PaymentFailed:
		return current.Status, dErrors.New(current.FailureCode, current.FailureReason)
	}
	p = current

	signer, err := b.signers.Signer(ctx, p.SourceTenantID)
	if err != nil {
		return b.fail(ctx, p, err, start)
	}

	if hash, found, err := b.findByReference(ctx, signer.AccountID, p.Reference); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeUnavailable, "could not search the ledger for the payment reference")
	} else if found {
		b.logger.InfoContext(ctx, "payment already on ledger",
			"reference", p.Reference,
			"tenant_id", p.SourceTenantID,
		)
		return b.confirm(ctx, p, hash, start)
	}

	if p.Status == models.PaymentPending {
		if err := b.prepare(ctx, p, signer); err != nil {
			return b.fail(ctx, p, err, start)
		}
		if err := p.Transition(models.PaymentSubmitted, requestcontext.Now(ctx)); err != nil {
			return "", err
		}
		if err := b.store.Update(ctx, p); err != nil {
			return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to store payment")
		}
	}

	// The bridge owns a submitted payment until it is terminal.
	work := context.WithoutCancel(ctx)
	hash, err := b.submit(work, p, signer)
	if err != nil {
		return b.fail(work, p, err, start)
	}
	return b.confirm(work, p, hash, start)
}

// record inserts p into the log, or returns the entry already stored under
// its reference.
func (b *Bridge) record(ctx context.Context, p *models.Payment) (*models.Payment, error) {
	err := b.store.Insert(ctx, p)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, sentinel.ErrAlreadyUsed) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record payment")
	}
	existing, err := b.store.FindByReference(ctx, p.Reference)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load payment")
	}
	return existing, nil
}

// prepare resolves the counterparties and checks that the transfer fits on
// both sides before anything is submitted.
func (b *Bridge) prepare(ctx context.Context, p *models.Payment, signer ledger.Signer) error {
	destination, err := b.resolver.ResolveAccount(ctx, p.DestinationAddress)
	if err != nil {
		return err
	}
	issuer, err := b.resolver.ResolveAccount(ctx, p.AssetIssuer)
	if err != nil {
		return err
	}
	p.DestinationAccountID = destination
	p.AssetIssuer = issuer
	asset := ledger.Asset{Code: p.AssetCode, Issuer: issuer}

	if destination != issuer {
		balances, err := b.balances(ctx, destination)
		if errors.Is(err, ledger.ErrAccountNotFound) {
			return dErrors.New(dErrors.CodeTrustLineAdjustmentFailed, "destination account does not exist")
		}
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeUnavailable, "could not read destination account")
		}
		line, ok := ledger.FindBalance(balances, asset)
		if !ok {
			return dErrors.New(dErrors.CodeTrustLineAdjustmentFailed, "destination does not trust "+asset.String())
		}
		if line.Headroom().LessThan(p.Amount) {
			return dErrors.New(dErrors.CodeTrustLineAdjustmentFailed, "destination trust line cannot take "+p.Amount.String())
		}
	}

	if signer.AccountID != issuer {
		if err := b.requireTrustLine(ctx, p, issuer); err != nil {
			return err
		}
		balances, err := b.balances(ctx, signer.AccountID)
		if errors.Is(err, ledger.ErrAccountNotFound) {
			return dErrors.New(dErrors.CodeTrustLineAdjustmentFailed, "source account does not exist")
		}
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeUnavailable, "could not read source account")
		}
		line, ok := ledger.FindBalance(balances, asset)
		if !ok || line.Amount.LessThan(p.Amount) {
			return dErrors.New(dErrors.CodeTrustLineAdjustmentFailed, "source account holds less than "+p.Amount.String()+" "+asset.Code)
		}
	}
	return nil
}

func (b *Bridge) requireTrustLine(ctx context.Context, p *models.Payment, issuer string) error {
	if b.trustLines == nil {
		return nil
	}
	_, err := b.trustLines.Get(ctx, p.SourceTenantID, issuer, p.AssetCode)
	if dErrors.HasCode(err, dErrors.CodeNotFound) {
		return dErrors.New(dErrors.CodeTrustLineAdjustmentFailed, "tenant has no trust line for "+p.AssetCode)
	}
	return err
}

// submit pays from the tenant's account under its lane. Before every retry
// the ledger is searched for the reference, since an attempt that timed out
// may still have been applied.
func (b *Bridge) submit(ctx context.Context, p *models.Payment, signer ledger.Signer) (string, error) {
	unlock, err := b.locks.Lock(ctx, keylock.AccountLane(signer.AccountID))
	if err != nil {
		return "", err
	}
	defer unlock()

	op := ledger.PaymentOp{
		Destination: p.DestinationAccountID,
		Asset:       ledger.Asset{Code: p.AssetCode, Issuer: p.AssetIssuer},
		Amount:      p.Amount,
		Reference:   p.Reference,
	}
	return retry.Do(ctx, b.policy, b.logger, "payment", ledger.Retryable,
		func(ctx context.Context, attempt int) (string, error) {
			if attempt > 1 {
				hash, found, err := b.ledger.FindPaymentByReference(ctx, signer.AccountID, p.Reference)
				if err != nil {
					return "", err
				}
				if found {
					return hash, nil
				}
			}
			p.Attempts++
			return b.ledger.Pay(ctx, signer, op)
		})
}

func (b *Bridge) confirm(ctx context.Context, p *models.Payment, hash string, start time.Time) (models.PaymentStatus, error) {
	if err := p.Transition(models.PaymentConfirmed, requestcontext.Now(ctx)); err != nil {
		return "", err
	}
	p.LedgerTxHash = hash
	if err := b.store.Update(ctx, p); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to store payment")
	}

	b.logger.InfoContext(ctx, "payment confirmed",
		"reference", p.Reference,
		"tenant_id", p.SourceTenantID,
		"asset_code", p.AssetCode,
		"amount", p.Amount.String(),
		"attempts", p.Attempts,
	)
	if b.metrics != nil {
		b.metrics.ObserveOutcome(string(models.PaymentConfirmed), p.Attempts, start)
	}
	events.Emit(ctx, b.publisher, b.logger, events.Event{
		Type:     events.PaymentConfirmed,
		TenantID: p.SourceTenantID,
		Data:     paymentEventData(p),
	})
	return p.Status, nil
}

func (b *Bridge) fail(ctx context.Context, p *models.Payment, cause error, start time.Time) (models.PaymentStatus, error) {
	cause = classifyFailure(cause)
	if err := p.Fail(cause, requestcontext.Now(ctx)); err != nil {
		return "", err
	}
	if err := b.store.Update(ctx, p); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to store payment")
	}

	b.logger.WarnContext(ctx, "payment failed",
		"reference", p.Reference,
		"tenant_id", p.SourceTenantID,
		"failure_code", string(p.FailureCode),
		"error", cause,
	)
	if b.metrics != nil {
		b.metrics.ObserveOutcome(string(models.PaymentFailed), p.Attempts, start)
	}
	data := paymentEventData(p)
	data["failure_code"] = string(p.FailureCode)
	events.Emit(ctx, b.publisher, b.logger, events.Event{
		Type:     events.PaymentFailed,
		TenantID: p.SourceTenantID,
		Data:     data,
	})
	return p.Status, cause
}

// classifyFailure gives ledger errors a domain code. Capacity problems are
// trust line failures; anything else that survived the retries means the
// ledger was unavailable or refused the transaction.
func classifyFailure(err error) error {
	if _, ok := dErrors.CodeOf(err); ok {
		return err
	}
	switch {
	case errors.Is(err, ledger.ErrNoTrust),
		errors.Is(err, ledger.ErrLineFull),
		errors.Is(err, ledger.ErrUnderfunded):
		return dErrors.Wrap(err, dErrors.CodeTrustLineAdjustmentFailed, "ledger refused the payment for lack of capacity")
	case errors.Is(err, ledger.ErrRejected):
		return dErrors.Wrap(err, dErrors.CodeInternal, "ledger rejected the payment")
	default:
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "payment could not be submitted")
	}
}

func paymentEventData(p *models.Payment) map[string]string {
	return map[string]string{
		"reference":         p.Reference,
		"journal_entry_ref": p.SourceJournalEntryRef,
		"asset_code":        p.AssetCode,
		"amount":            p.Amount.String(),
		"ledger_tx_hash":    p.LedgerTxHash,
	}
}

func (b *Bridge) findByReference(ctx context.Context, accountID, reference string) (string, bool, error) {
	type result struct {
		hash  string
		found bool
	}
	r, err := retry.Do(ctx, b.policy, b.logger, "find_payment", ledger.Retryable,
		func(ctx context.Context, _ int) (result, error) {
			hash, found, err := b.ledger.FindPaymentByReference(ctx, accountID, reference)
			return result{hash, found}, err
		})
	return r.hash, r.found, err
}

func (b *Bridge) balances(ctx context.Context, accountID string) ([]ledger.Balance, error) {
	return retry.Do(ctx, b.policy, b.logger, "balances", ledger.Retryable,
		func(ctx context.Context, _ int) ([]ledger.Balance, error) {
			return b.ledger.Balances(ctx, accountID)
		})
}

// GetBalance sums the tenant's holdings of assetCode across all issuers.
func (b *Bridge) GetBalance(ctx context.Context, tenantID, assetCode string) (decimal.Decimal, error) {
	signer, err := b.signers.Signer(ctx, tenantID)
	if err != nil {
		return decimal.Zero, err
	}
	balances, err := b.accountBalances(ctx, signer.AccountID)
	if err != nil {
		return decimal.Zero, err
	}
	return ledger.SumByCode(balances, assetCode), nil
}

// GetBalanceByIssuer returns the tenant's holding of assetCode from issuer.
func (b *Bridge) GetBalanceByIssuer(ctx context.Context, tenantID, assetCode, issuer string) (decimal.Decimal, error) {
	signer, err := b.signers.Signer(ctx, tenantID)
	if err != nil {
		return decimal.Zero, err
	}
	return b.balanceByIssuer(ctx, signer.AccountID, assetCode, issuer)
}

// GetInstallationAccountBalance returns the installation account's holding
// of assetCode from issuer.
func (b *Bridge) GetInstallationAccountBalance(ctx context.Context, assetCode, issuer string) (decimal.Decimal, error) {
	if b.installation == "" {
		return decimal.Zero, dErrors.New(dErrors.CodeInvalidConfiguration, "no installation account is configured")
	}
	return b.balanceByIssuer(ctx, b.installation, assetCode, issuer)
}

func (b *Bridge) balanceByIssuer(ctx context.Context, accountID, assetCode, issuer string) (decimal.Decimal, error) {
	issuerID, err := b.resolver.ResolveAccount(ctx, issuer)
	if err != nil {
		return decimal.Zero, err
	}
	balances, err := b.accountBalances(ctx, accountID)
	if err != nil {
		return decimal.Zero, err
	}
	if line, ok := ledger.FindBalance(balances, ledger.Asset{Code: assetCode, Issuer: issuerID}); ok {
		return line.Amount, nil
	}
	return decimal.Zero, nil
}

// accountBalances treats an account that does not exist yet as empty.
func (b *Bridge) accountBalances(ctx context.Context, accountID string) ([]ledger.Balance, error) {
	balances, err := b.balances(ctx, accountID)
	if errors.Is(err, ledger.ErrAccountNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "could not read ledger balances")
	}
	return balances, nil
}

// Payment returns the logged payment the tenant's journal entry produced.
func (b *Bridge) Payment(ctx context.Context, tenantID, journalEntryRef string) (*models.Payment, error) {
	p, err := b.store.FindByReference(ctx, models.PaymentReference(tenantID, journalEntryRef))
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "no payment with that reference")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load payment")
	}
	return p, nil
}
