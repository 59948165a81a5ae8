// Package vault tracks how much of each asset the bridge's vault account has
// issued. Issued units sit on the installation account, so the issued amount
// of an asset is the installation account's holding of it.
package vault

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"stellarbridge/internal/bridge/models"
	"stellarbridge/internal/events"
	"stellarbridge/internal/ledger"
	"stellarbridge/internal/vault/metrics"
	dErrors "stellarbridge/pkg/domain-errors"
	"stellarbridge/pkg/platform/keylock"
	"stellarbridge/pkg/platform/retry"
	"stellarbridge/pkg/platform/sentinel"
	"stellarbridge/pkg/requestcontext"
)

// IssuanceStore persists one VaultIssuance per asset code.
type IssuanceStore interface {
	Find(ctx context.Context, assetCode string) (*models.VaultIssuance, error)
	Upsert(ctx context.Context, issuance *models.VaultIssuance) error
}

// TenantChecker reports whether a tenant is bound to the bridge.
type TenantChecker interface {
	Exists(ctx context.Context, tenantID string) (bool, error)
}

// Accounts are the bridge-owned ledger accounts the vault works with.
type Accounts struct {
	Vault        ledger.Signer
	Installation ledger.Signer
	// TrustLimit is the installation account's trust limit for vault assets.
	TrustLimit decimal.Decimal
}

// Service adjusts vault issuance. Adjustments of one asset code are
// serialised, and every adjustment holds the lanes of both accounts.
type Service struct {
	store     IssuanceStore
	tenants   TenantChecker
	ledger    ledger.Client
	accounts  *Accounts
	locks     *keylock.Locker
	policy    retry.Policy
	publisher events.Publisher
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithPublisher(p events.Publisher) Option {
	return func(s *Service) {
		s.publisher = p
	}
}

func WithRetryPolicy(p retry.Policy) Option {
	return func(s *Service) {
		s.policy = p
	}
}

func WithLocker(l *keylock.Locker) Option {
	return func(s *Service) {
		s.locks = l
	}
}

// WithAccounts configures the vault. Without it the process has no vault.
func WithAccounts(a Accounts) Option {
	return func(s *Service) {
		s.accounts = &a
	}
}

func New(store IssuanceStore, tenants TenantChecker, client ledger.Client, opts ...Option) *Service {
	s := &Service{
		store:     store,
		tenants:   tenants,
		ledger:    client,
		locks:     keylock.New(),
		policy:    retry.DefaultPolicy(),
		publisher: events.Noop{},
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AdjustIssuedAssets moves the issued amount of assetCode towards requested
// and returns what the ledger ended up with. The achieved amount is lower
// than requested when the installation account's trust line cannot hold
// more; that is reported through the return value, not as an error.
func (s *Service) AdjustIssuedAssets(ctx context.Context, assetCode string, requested decimal.Decimal) (decimal.Decimal, error) {
	defer s.observe(time.Now())
	if err := models.ValidateAssetCode(assetCode); err != nil {
		return decimal.Zero, err
	}
	if err := models.ValidateAmount(requested); err != nil {
		return decimal.Zero, err
	}
	if s.accounts == nil {
		return decimal.Zero, dErrors.New(dErrors.CodeInvalidConfiguration, "no vault account is configured")
	}

	vault, installation := s.accounts.Vault, s.accounts.Installation
	unlock, err := s.locks.Lock(ctx, "vault:"+assetCode,
		keylock.AccountLane(vault.AccountID),
		keylock.AccountLane(installation.AccountID))
	if err != nil {
		return decimal.Zero, dErrors.Wrap(err, dErrors.CodeUnavailable, "vault adjustment cancelled")
	}
	defer unlock()

	asset := ledger.Asset{Code: assetCode, Issuer: vault.AccountID}
	line, err := s.installationLine(ctx, asset)
	if err != nil {
		return decimal.Zero, err
	}

	target := decimal.Min(requested, line.Limit)
	moveErr := s.moveTo(ctx, asset, target)

	// The ledger is the source of truth whatever happened above.
	achieved, err := s.installationLine(ctx, asset)
	if err != nil {
		return decimal.Zero, err
	}
	issuance := &models.VaultIssuance{
		AssetCode:    assetCode,
		IssuedAmount: achieved.Amount,
		UpdatedAt:    requestcontext.Now(ctx),
	}
	if err := s.store.Upsert(ctx, issuance); err != nil {
		return decimal.Zero, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store vault issuance")
	}

	s.logger.InfoContext(ctx, "vault issuance adjusted",
		"asset_code", assetCode,
		"requested", requested.String(),
		"achieved", achieved.Amount.String(),
	)
	if s.metrics != nil {
		s.metrics.Adjustments.Inc()
		if !achieved.Amount.Equal(requested) {
			s.metrics.PartialAdjustments.Inc()
		}
	}
	events.Emit(ctx, s.publisher, s.logger, events.Event{
		Type: events.VaultAdjusted,
		Data: map[string]string{
			"asset_code": assetCode,
			"requested":  requested.String(),
			"achieved":   achieved.Amount.String(),
		},
	})

	if moveErr != nil && !capacityError(moveErr) {
		return achieved.Amount, dErrors.Wrap(moveErr, dErrors.CodeUnavailable, "vault transfer did not complete")
	}
	return achieved.Amount, nil
}

// GetIssuedAssets returns the stored issued amount, zero when none is stored.
func (s *Service) GetIssuedAssets(ctx context.Context, assetCode string) (decimal.Decimal, error) {
	issuance, err := s.store.Find(ctx, assetCode)
	if errors.Is(err, sentinel.ErrNotFound) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load vault issuance")
	}
	return issuance.IssuedAmount, nil
}

// HasVault reports whether the process has a vault and tenantID is bound to
// the bridge. The vault itself is shared by all tenants.
func (s *Service) HasVault(ctx context.Context, tenantID string) (bool, error) {
	if s.accounts == nil {
		return false, nil
	}
	return s.tenants.Exists(ctx, tenantID)
}

// installationLine returns the installation account's line for asset,
// creating it with the configured limit when missing.
func (s *Service) installationLine(ctx context.Context, asset ledger.Asset) (ledger.Balance, error) {
	installation := s.accounts.Installation
	balances, err := s.balances(ctx, installation.AccountID)
	if err != nil {
		return ledger.Balance{}, err
	}
	if line, ok := ledger.FindBalance(balances, asset); ok {
		return line, nil
	}

	_, err = retry.Do(ctx, s.policy, s.logger, "vault_change_trust", ledger.Retryable,
		func(ctx context.Context, _ int) (string, error) {
			return s.ledger.ChangeTrust(ctx, installation, asset, s.accounts.TrustLimit)
		})
	if err != nil {
		return ledger.Balance{}, dErrors.Wrap(err, dErrors.CodeTrustLineAdjustmentFailed, "installation account could not trust "+asset.Code)
	}
	return ledger.Balance{Asset: asset, Amount: decimal.Zero, Limit: s.accounts.TrustLimit}, nil
}

// moveTo pays between vault and installation until the installation account
// holds target. Each attempt recomputes the difference from the ledger, so
// an attempt that landed despite an error is not repeated.
func (s *Service) moveTo(ctx context.Context, asset ledger.Asset, target decimal.Decimal) error {
	vault, installation := s.accounts.Vault, s.accounts.Installation
	_, err := retry.Do(ctx, s.policy, s.logger, "vault_transfer", ledger.Retryable,
		func(ctx context.Context, _ int) (string, error) {
			balances, err := s.ledger.Balances(ctx, installation.AccountID)
			if err != nil {
				return "", err
			}
			current := decimal.Zero
			if line, ok := ledger.FindBalance(balances, asset); ok {
				current = line.Amount
			}
			delta := target.Sub(current)
			switch {
			case delta.IsPositive():
				return s.ledger.Pay(ctx, vault, ledger.PaymentOp{Destination: installation.AccountID, Asset: asset, Amount: delta})
			case delta.IsNegative():
				return s.ledger.Pay(ctx, installation, ledger.PaymentOp{Destination: vault.AccountID, Asset: asset, Amount: delta.Neg()})
			default:
				return "", nil
			}
		})
	if err != nil {
		s.logger.WarnContext(ctx, "vault transfer failed",
			"asset_code", asset.Code,
			"target", target.String(),
			"error", err,
		)
	}
	return err
}

func (s *Service) balances(ctx context.Context, accountID string) ([]ledger.Balance, error) {
	balances, err := retry.Do(ctx, s.policy, s.logger, "vault_balances", ledger.Retryable,
		func(ctx context.Context, _ int) ([]ledger.Balance, error) {
			return s.ledger.Balances(ctx, accountID)
		})
	if errors.Is(err, ledger.ErrAccountNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidConfiguration, "installation account does not exist on the ledger")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "could not read installation account")
	}
	return balances, nil
}

func capacityError(err error) bool {
	return errors.Is(err, ledger.ErrLineFull) || errors.Is(err, ledger.ErrUnderfunded)
}

func (s *Service) observe(start time.Time) {
	if s.metrics != nil {
		s.metrics.AdjustDuration.Observe(time.Since(start).Seconds())
	}
}
