// Package registry binds tenants to their ledger accounts and owns the
// accounts' signing keys.
package registry

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"stellarbridge/internal/bridge/models"
	"stellarbridge/internal/events"
	"stellarbridge/internal/ledger"
	"stellarbridge/internal/registry/metrics"
	dErrors "stellarbridge/pkg/domain-errors"
	"stellarbridge/pkg/platform/sentinel"
	"stellarbridge/pkg/platform/tx"
	"stellarbridge/pkg/requestcontext"
)

type ConfigurationStore interface {
	// Create fails with sentinel.ErrAlreadyUsed when the tenant is bound.
	Create(ctx context.Context, cfg *models.BridgeConfiguration) error
	FindByTenantID(ctx context.Context, tenantID string) (*models.BridgeConfiguration, error)
	Delete(ctx context.Context, tenantID string) error
	Count(ctx context.Context) (int, error)
}

// KeyIssuer manages tenant API keys.
type KeyIssuer interface {
	GenerateAPIKey(ctx context.Context, tenantID string) (string, error)
	RemoveAPIKey(ctx context.Context, tenantID string) error
}

// Service creates, deletes and looks up bridge configurations.
type Service struct {
	configs   ConfigurationStore
	keys      KeyIssuer
	keygen    ledger.KeyGenerator
	tx        tx.Runner
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

// WithTxRunner makes configuration and key writes atomic.
func WithTxRunner(r tx.Runner) Option {
	return func(s *Service) {
		s.tx = r
	}
}

func New(configs ConfigurationStore, keys KeyIssuer, keygen ledger.KeyGenerator, opts ...Option) *Service {
	s := &Service{
		configs:   configs,
		keys:      keys,
		keygen:    keygen,
		tx:        tx.Direct{},
		publisher: events.Noop{},
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create binds tenantID to a fresh ledger keypair and returns the tenant's
// API key. The account itself is created on the ledger lazily, the first
// time an operation needs it.
func (s *Service) Create(ctx context.Context, tenantID, externalToken string) (string, error) {
	if s.metrics != nil {
		defer s.metrics.ObserveCreate(time.Now())
	}
	tenantID = strings.TrimSpace(tenantID)
	if err := models.ValidateTenantID(tenantID); err != nil {
		return "", err
	}

	signer, err := s.keygen.NewSigner()
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate ledger keypair")
	}
	cfg, err := models.NewBridgeConfiguration(tenantID, signer.AccountID, signer.Seed, externalToken, requestcontext.Now(ctx))
	if err != nil {
		return "", err
	}

	var apiKey string
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.configs.Create(ctx, cfg); err != nil {
			if errors.Is(err, sentinel.ErrAlreadyUsed) {
				return dErrors.New(dErrors.CodeInvalidConfiguration, "tenant already has a bridge configuration")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to store bridge configuration")
		}
		key, err := s.keys.GenerateAPIKey(ctx, tenantID)
		if err != nil {
			s.compensate(ctx, tenantID)
			return err
		}
		apiKey = key
		return nil
	})
	if err != nil {
		return "", err
	}

	s.logger.InfoContext(ctx, "bridge configuration created",
		"tenant_id", tenantID,
		"ledger_account_id", cfg.LedgerAccountID,
	)
	if s.metrics != nil {
		s.metrics.IncrementCreated()
	}
	s.refreshActive(ctx)
	events.Emit(ctx, s.publisher, s.logger, events.Event{
		Type:     events.BridgeCreated,
		TenantID: tenantID,
		Data:     map[string]string{"ledger_account_id": cfg.LedgerAccountID},
	})
	return apiKey, nil
}

// compensate removes a configuration whose key could not be issued. Inside a
// database transaction the rollback already does this.
func (s *Service) compensate(ctx context.Context, tenantID string) {
	if _, inTx := tx.From(ctx); inTx {
		return
	}
	if err := s.configs.Delete(ctx, tenantID); err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		s.logger.ErrorContext(ctx, "failed to roll back bridge configuration",
			"tenant_id", tenantID,
			"error", err,
		)
	}
}

// Delete removes the tenant's configuration and API key. It reports false
// when the tenant was not bound. The ledger account is left untouched.
func (s *Service) Delete(ctx context.Context, tenantID string) (bool, error) {
	deleted := false
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.keys.RemoveAPIKey(ctx, tenantID); err != nil {
			return err
		}
		err := s.configs.Delete(ctx, tenantID)
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil
		}
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete bridge configuration")
		}
		deleted = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if deleted {
		s.logger.InfoContext(ctx, "bridge configuration deleted", "tenant_id", tenantID)
		if s.metrics != nil {
			s.metrics.IncrementDeleted()
		}
		s.refreshActive(ctx)
		events.Emit(ctx, s.publisher, s.logger, events.Event{Type: events.BridgeDeleted, TenantID: tenantID})
	}
	return deleted, nil
}

// Lookup returns the tenant's configuration or CodeInvalidConfiguration.
func (s *Service) Lookup(ctx context.Context, tenantID string) (*models.BridgeConfiguration, error) {
	cfg, err := s.configs.FindByTenantID(ctx, tenantID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeInvalidConfiguration, "tenant has no bridge configuration")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load bridge configuration")
	}
	return cfg, nil
}

// Exists reports whether tenantID is bound.
func (s *Service) Exists(ctx context.Context, tenantID string) (bool, error) {
	_, err := s.Lookup(ctx, tenantID)
	if dErrors.HasCode(err, dErrors.CodeInvalidConfiguration) {
		return false, nil
	}
	return err == nil, err
}

// Signer hands out the tenant account's credentials for one operation.
func (s *Service) Signer(ctx context.Context, tenantID string) (ledger.Signer, error) {
	cfg, err := s.Lookup(ctx, tenantID)
	if err != nil {
		return ledger.Signer{}, err
	}
	return ledger.Signer{AccountID: cfg.LedgerAccountID, Seed: cfg.LedgerSigningKey}, nil
}

// Count returns the number of bound tenants and records it in the active
// bridges gauge.
func (s *Service) Count(ctx context.Context) (int, error) {
	n, err := s.configs.Count(ctx)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count bridge configurations")
	}
	if s.metrics != nil {
		s.metrics.SetActive(n)
	}
	return n, nil
}

func (s *Service) refreshActive(ctx context.Context) {
	if s.metrics == nil {
		return
	}
	if _, err := s.Count(ctx); err != nil {
		s.logger.WarnContext(ctx, "failed to refresh active bridge count", "error", err)
	}
}
