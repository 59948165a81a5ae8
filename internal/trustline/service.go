// Package trustline maintains the trust lines of tenant accounts: how much
// of an issuer's asset each tenant account is willing to hold.
package trustline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"stellarbridge/internal/bridge/models"
	"stellarbridge/internal/events"
	"stellarbridge/internal/ledger"
	"stellarbridge/internal/trustline/metrics"
	dErrors "stellarbridge/pkg/domain-errors"
	"stellarbridge/pkg/platform/keylock"
	"stellarbridge/pkg/platform/retry"
	"stellarbridge/pkg/platform/sentinel"
	"stellarbridge/pkg/requestcontext"
)

// Store persists trust lines. Removed lines are deleted, not stored.
type Store interface {
	Find(ctx context.Context, key models.TrustLineKey) (*models.TrustLine, error)
	Upsert(ctx context.Context, line *models.TrustLine) error
	Delete(ctx context.Context, key models.TrustLineKey) error
	ListByTenant(ctx context.Context, tenantID string) ([]*models.TrustLine, error)
}

type Resolver interface {
	ResolveAccount(ctx context.Context, raw string) (string, error)
}

type SignerSource interface {
	Signer(ctx context.Context, tenantID string) (ledger.Signer, error)
}

// Funder creates missing tenant accounts from a bridge-owned account.
type Funder struct {
	Signer          ledger.Signer
	StartingBalance decimal.Decimal
}

// Service adjusts trust lines one key at a time. Operations on one tenant
// account are serialised because they share its sequence number.
type Service struct {
	store     Store
	resolver  Resolver
	signers   SignerSource
	ledger    ledger.Client
	locks     *keylock.Locker
	funder    *Funder
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

// WithFunder enables creation of missing tenant accounts.
func WithFunder(f Funder) Option {
	return func(s *Service) {
		s.funder = &f
	}
}

// WithLocker shares a locker with other services that submit from the same
// accounts.
func WithLocker(l *keylock.Locker) Option {
	return func(s *Service) {
		s.locks = l
	}
}

func New(store Store, resolver Resolver, signers SignerSource, client ledger.Client, opts ...Option) *Service {
	s := &Service{
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
		opt(s)
	}
	return s
}

// Adjust sets the tenant's trust limit for assetCode issued by issuer.
// A zero maximum removes the line, which requires a zero balance.
func (s *Service) Adjust(ctx context.Context, tenantID, issuer, assetCode string, maximumAmount decimal.Decimal) error {
	if s.metrics != nil {
		defer s.metrics.ObserveAdjust(time.Now())
	}
	if err := models.ValidateAssetCode(assetCode); err != nil {
		return err
	}
	if err := models.ValidateAmount(maximumAmount); err != nil {
		return err
	}

	issuerAccountID, err := s.resolver.ResolveAccount(ctx, issuer)
	if err != nil {
		return err
	}
	signer, err := s.signers.Signer(ctx, tenantID)
	if err != nil {
		return err
	}

	key := models.TrustLineKey{TenantID: tenantID, IssuerAccountID: issuerAccountID, AssetCode: assetCode}
	unlock, err := s.locks.Lock(ctx, "trustline:"+key.String(), keylock.AccountLane(signer.AccountID))
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "trust line adjustment cancelled")
	}
	defer unlock()

	stored, err := s.store.Find(ctx, key)
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load trust line")
	}
	if stored == nil && maximumAmount.IsZero() {
		return nil
	}
	if stored != nil && stored.MaximumAmount.Equal(maximumAmount) {
		return nil
	}

	asset := ledger.Asset{Code: assetCode, Issuer: issuerAccountID}
	balance, err := s.currentBalance(ctx, signer.AccountID, asset)
	if err != nil {
		return err
	}
	if maximumAmount.LessThan(balance) {
		s.countFailure()
		return dErrors.New(dErrors.CodeTrustLineAdjustmentFailed,
			"trust limit "+maximumAmount.String()+" is below the current balance "+balance.String())
	}

	if err := s.EnsureAccount(ctx, signer.AccountID); err != nil {
		return err
	}

	_, err = retry.Do(ctx, s.policy, s.logger, "change_trust", ledger.Retryable,
		func(ctx context.Context, _ int) (string, error) {
			return s.ledger.ChangeTrust(ctx, signer, asset, maximumAmount)
		})
	if err != nil {
		s.countFailure()
		s.logger.WarnContext(ctx, "trust line adjustment failed",
			"tenant_id", tenantID,
			"asset_code", assetCode,
			"issuer", issuerAccountID,
			"error", err,
		)
		return dErrors.Wrap(err, dErrors.CodeTrustLineAdjustmentFailed, "ledger did not accept the trust line change")
	}

	if maximumAmount.IsZero() {
		if err := s.store.Delete(ctx, key); err != nil && !errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete trust line")
		}
	} else {
		line := &models.TrustLine{
			TenantID:        tenantID,
			IssuerAccountID: issuerAccountID,
			IssuerAddress:   issuer,
			AssetCode:       assetCode,
			MaximumAmount:   maximumAmount,
			CurrentBalance:  balance,
			UpdatedAt:       requestcontext.Now(ctx),
		}
		if err := s.store.Upsert(ctx, line); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to store trust line")
		}
	}

	s.logger.InfoContext(ctx, "trust line adjusted",
		"tenant_id", tenantID,
		"asset_code", assetCode,
		"issuer", issuerAccountID,
		"maximum_amount", maximumAmount.String(),
	)
	if s.metrics != nil {
		s.metrics.IncrementAdjusted()
	}
	events.Emit(ctx, s.publisher, s.logger, events.Event{
		Type:     events.TrustLineAdjusted,
		TenantID: tenantID,
		Data: map[string]string{
			"asset_code":     assetCode,
			"issuer":         issuerAccountID,
			"maximum_amount": maximumAmount.String(),
		},
	})
	return nil
}

// EnsureAccount creates accountID on the ledger, funded with the starting
// balance from the funder account, when it does not exist yet.
func (s *Service) EnsureAccount(ctx context.Context, accountID string) error {
	exists, err := s.accountExists(ctx, accountID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeAccountCreationFailed, "could not check the tenant account")
	}
	if exists {
		return nil
	}
	if s.funder == nil {
		return dErrors.New(dErrors.CodeAccountCreationFailed, "tenant account does not exist and no funding account is configured")
	}

	unlock, err := s.locks.Lock(ctx, keylock.AccountLane(s.funder.Signer.AccountID))
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "account creation cancelled")
	}
	defer unlock()

	_, err = retry.Do(ctx, s.policy, s.logger, "create_account", ledger.Retryable,
		func(ctx context.Context, attempt int) (string, error) {
			if attempt > 1 {
				// A timed-out attempt may have created the account.
				if ok, err := s.ledger.AccountExists(ctx, accountID); err == nil && ok {
					return "", nil
				}
			}
			return s.ledger.CreateAccount(ctx, s.funder.Signer, accountID, s.funder.StartingBalance)
		})
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeAccountCreationFailed, "could not create the tenant account")
	}
	s.logger.InfoContext(ctx, "ledger account created", "account_id", accountID)
	if s.metrics != nil {
		s.metrics.IncrementAccountsCreated()
	}
	return nil
}

// Get returns the stored trust line or CodeNotFound.
func (s *Service) Get(ctx context.Context, tenantID, issuer, assetCode string) (*models.TrustLine, error) {
	issuerAccountID, err := s.resolver.ResolveAccount(ctx, issuer)
	if err != nil {
		return nil, err
	}
	line, err := s.store.Find(ctx, models.TrustLineKey{TenantID: tenantID, IssuerAccountID: issuerAccountID, AssetCode: assetCode})
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "no trust line for "+assetCode)
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load trust line")
	}
	return line, nil
}

// List returns every stored trust line of the tenant.
func (s *Service) List(ctx context.Context, tenantID string) ([]*models.TrustLine, error) {
	lines, err := s.store.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list trust lines")
	}
	return lines, nil
}

func (s *Service) accountExists(ctx context.Context, accountID string) (bool, error) {
	return retry.Do(ctx, s.policy, s.logger, "account_exists", ledger.Retryable,
		func(ctx context.Context, _ int) (bool, error) {
			return s.ledger.AccountExists(ctx, accountID)
		})
}

// currentBalance reads the account's holding of asset from the ledger. A
// missing account holds nothing.
func (s *Service) currentBalance(ctx context.Context, accountID string, asset ledger.Asset) (decimal.Decimal, error) {
	balances, err := retry.Do(ctx, s.policy, s.logger, "balances", ledger.Retryable,
		func(ctx context.Context, _ int) ([]ledger.Balance, error) {
			return s.ledger.Balances(ctx, accountID)
		})
	if errors.Is(err, ledger.ErrAccountNotFound) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, dErrors.Wrap(err, dErrors.CodeTrustLineAdjustmentFailed, "could not read the tenant account balance")
	}
	if b, ok := ledger.FindBalance(balances, asset); ok {
		return b.Amount, nil
	}
	return decimal.Zero, nil
}

func (s *Service) countFailure() {
	if s.metrics != nil {
		s.metrics.IncrementFailed()
	}
}
