package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"stellarbridge/internal/events"
	"stellarbridge/internal/federation"
	federationmetrics "stellarbridge/internal/federation/metrics"
	"stellarbridge/internal/ledger/horizon"
	"stellarbridge/internal/payment"
	paymentmetrics "stellarbridge/internal/payment/metrics"
	paymentstore "stellarbridge/internal/payment/store"
	"stellarbridge/internal/platform/config"
	"stellarbridge/internal/platform/kafka"
	"stellarbridge/internal/platform/metrics"
	"stellarbridge/internal/platform/postgres"
	"stellarbridge/internal/platform/redis"
	"stellarbridge/internal/registry"
	registrymetrics "stellarbridge/internal/registry/metrics"
	registrystore "stellarbridge/internal/registry/store"
	"stellarbridge/internal/security"
	securitystore "stellarbridge/internal/security/store"
	"stellarbridge/internal/trustline"
	trustlinemetrics "stellarbridge/internal/trustline/metrics"
	trustlinestore "stellarbridge/internal/trustline/store"
	httptransport "stellarbridge/internal/transport/http"
	"stellarbridge/internal/vault"
	vaultmetrics "stellarbridge/internal/vault/metrics"
	vaultstore "stellarbridge/internal/vault/store"
	"stellarbridge/pkg/platform/circuit"
	"stellarbridge/pkg/platform/keylock"
	"stellarbridge/pkg/platform/retry"
	"stellarbridge/pkg/platform/tx"
)

// infra holds external connections. Fields are nil when the concern is not
// configured.
type infra struct {
	db       *sql.DB
	redis    *redis.Client
	producer *kafka.Producer
	ledger   *horizon.Client
}

func openInfra(ctx context.Context, cfg config.Config, log *slog.Logger) (*infra, error) {
	in := &infra{}

	breaker := circuit.New("horizon",
		circuit.WithFailureThreshold(cfg.Ledger.BreakerFailures),
		circuit.WithCooldown(cfg.Ledger.BreakerCooldown),
	)
	in.ledger = horizon.New(cfg.Ledger.HorizonURL, cfg.Ledger.NetworkPassphrase, cfg.Ledger.RequestTimeout,
		horizon.WithLogger(log),
		horizon.WithBreaker(breaker),
	)

	if cfg.Database.DSN != "" {
		db, err := postgres.Open(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		in.db = db
		log.Info("using postgres stores")
	} else {
		log.Warn("STELLAR_BRIDGE_DATABASE_URL not set, using in-memory stores")
	}

	rc, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		in.Close()
		return nil, err
	}
	in.redis = rc

	producer, err := kafka.New(ctx, cfg.Kafka, log)
	if err != nil {
		in.Close()
		return nil, err
	}
	in.producer = producer
	return in, nil
}

func (in *infra) Close() {
	if in.producer != nil {
		in.producer.Close()
	}
	if in.redis != nil {
		_ = in.redis.Close()
	}
	if in.db != nil {
		_ = in.db.Close()
	}
}

func (in *infra) healthChecks() map[string]httptransport.HealthCheck {
	checks := map[string]httptransport.HealthCheck{
		"horizon": in.ledger.Health,
	}
	if in.db != nil {
		checks["postgres"] = in.db.PingContext
	}
	if in.redis != nil {
		checks["redis"] = in.redis.Health
	}
	if in.producer != nil {
		checks["kafka"] = in.producer.Health
	}
	return checks
}

func (in *infra) publisher(log *slog.Logger) events.Publisher {
	if in.producer == nil {
		return events.Noop{}
	}
	return events.NewKafkaPublisher(in.producer, log)
}

// app is the wired service graph.
type app struct {
	services    httptransport.Services
	registry    *registry.Service
	dispatcher  *payment.Dispatcher
	httpMetrics *metrics.Metrics
}

type stores struct {
	configs   registry.ConfigurationStore
	keys      security.KeyStore
	lines     trustline.Store
	issuances vault.IssuanceStore
	payments  paymentStore
	txRunner  tx.Runner
}

// paymentStore satisfies both the bridge and the dispatcher.
type paymentStore interface {
	payment.Store
	payment.Log
}

func newStores(db *sql.DB) stores {
	if db == nil {
		return stores{
			configs:   registrystore.NewInMemory(),
			keys:      securitystore.NewInMemory(),
			lines:     trustlinestore.NewInMemory(),
			issuances: vaultstore.NewInMemory(),
			payments:  paymentstore.NewInMemory(),
			txRunner:  tx.Direct{},
		}
	}
	return stores{
		configs:   registrystore.NewPostgres(db),
		keys:      securitystore.NewPostgres(db),
		lines:     trustlinestore.NewPostgres(db),
		issuances: vaultstore.NewPostgres(db),
		payments:  paymentstore.NewPostgres(db),
		txRunner:  postgres.NewTxRunner(db),
	}
}

func buildApp(cfg config.Config, in *infra, log *slog.Logger, reg prometheus.Registerer) (*app, error) {
	st := newStores(in.db)
	publisher := in.publisher(log)
	locks := keylock.New()
	policy := retry.Policy{
		MaxAttempts:       cfg.Ledger.MaxAttempts,
		InitialBackoff:    cfg.Ledger.InitialBackoff,
		MaxBackoff:        cfg.Ledger.MaxBackoff,
		BackoffMultiplier: 2.0,
		AttemptTimeout:    cfg.Ledger.AttemptTimeout,
	}

	keys := security.New(st.keys, security.WithLogger(log))
	bridges := registry.New(st.configs, keys, horizon.KeyGenerator{},
		registry.WithLogger(log),
		registry.WithMetrics(registrymetrics.New(reg)),
		registry.WithPublisher(publisher),
		registry.WithTxRunner(st.txRunner),
	)

	var cache federation.Cache = federation.NewMemoryCache()
	if in.redis != nil {
		cache = federation.NewRedisCache(in.redis)
	}
	resolver := federation.New(horizon.KeyGenerator{},
		federation.WithHTTPClient(&http.Client{Timeout: cfg.Federation.RequestTimeout}),
		federation.WithCache(cache, cfg.Federation.CacheTTL),
		federation.WithLookupTimeout(2*cfg.Federation.RequestTimeout),
		federation.WithLogger(log),
		federation.WithMetrics(federationmetrics.New(reg)),
	)

	lineOpts := []trustline.Option{
		trustline.WithLogger(log),
		trustline.WithMetrics(trustlinemetrics.New(reg)),
		trustline.WithPublisher(publisher),
		trustline.WithRetryPolicy(policy),
		trustline.WithLocker(locks),
	}
	vaultOpts := []vault.Option{
		vault.WithLogger(log),
		vault.WithMetrics(vaultmetrics.New(reg)),
		vault.WithPublisher(publisher),
		vault.WithRetryPolicy(policy),
		vault.WithLocker(locks),
	}
	bridgeOpts := []payment.Option{
		payment.WithLogger(log),
		payment.WithPublisher(publisher),
		payment.WithRetryPolicy(policy),
		payment.WithLocker(locks),
	}

	if cfg.Ledger.VaultSeed != "" && cfg.Ledger.InstallationSeed != "" {
		vaultSigner, err := horizon.SignerFromSeed(cfg.Ledger.VaultSeed)
		if err != nil {
			return nil, fmt.Errorf("vault seed: %w", err)
		}
		installation, err := horizon.SignerFromSeed(cfg.Ledger.InstallationSeed)
		if err != nil {
			return nil, fmt.Errorf("installation seed: %w", err)
		}
		lineOpts = append(lineOpts, trustline.WithFunder(trustline.Funder{
			Signer:          vaultSigner,
			StartingBalance: cfg.Ledger.StartingBalance,
		}))
		vaultOpts = append(vaultOpts, vault.WithAccounts(vault.Accounts{
			Vault:        vaultSigner,
			Installation: installation,
			TrustLimit:   cfg.Ledger.VaultTrustLimit,
		}))
		bridgeOpts = append(bridgeOpts, payment.WithInstallationAccount(installation.AccountID))
	} else {
		log.Warn("vault and installation seeds not set, vault and account funding disabled")
	}

	paymentMetrics := paymentmetrics.New(reg)
	bridgeOpts = append(bridgeOpts, payment.WithMetrics(paymentMetrics))

	lines := trustline.New(st.lines, resolver, bridges, in.ledger, lineOpts...)
	vaults := vault.New(st.issuances, bridges, in.ledger, vaultOpts...)
	bridgeOpts = append(bridgeOpts, payment.WithTrustLines(lines))
	sender := payment.NewBridge(st.payments, resolver, bridges, in.ledger, bridgeOpts...)
	dispatcher := payment.NewDispatcher(sender, st.payments,
		payment.WithWorkers(cfg.Payments.Workers),
		payment.WithQueueSize(cfg.Payments.QueueSize),
		payment.WithDispatcherLogger(log),
		payment.WithDispatcherMetrics(paymentMetrics),
	)

	return &app{
		services: httptransport.Services{
			Registry:   bridges,
			TrustLines: lines,
			Vault:      vaults,
			Balances:   sender,
			Mapper:     payment.NewMapper(),
			Payments:   dispatcher,
			PaymentLog: sender,
			Verifier:   keys,
		},
		registry:    bridges,
		dispatcher:  dispatcher,
		httpMetrics: metrics.New(reg),
	}, nil
}
