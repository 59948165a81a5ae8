package vault

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"stellarbridge/internal/events"
	"stellarbridge/internal/ledger"
	"stellarbridge/internal/ledger/ledgertest"
	"stellarbridge/internal/vault/metrics"
	"stellarbridge/internal/vault/store"
	dErrors "stellarbridge/pkg/domain-errors"
	"stellarbridge/pkg/platform/retry"
)

type tenants map[string]bool

func (t tenants) Exists(_ context.Context, tenantID string) (bool, error) {
	return t[tenantID], nil
}

type ServiceSuite struct {
	suite.Suite
	ctx          context.Context
	ledger       *ledgertest.Ledger
	store        *store.InMemory
	events       *events.Memory
	metrics      *metrics.Metrics
	vault        ledger.Signer
	installation ledger.Signer
	service      *Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.ledger = ledgertest.New()
	s.store = store.NewInMemory()
	s.events = events.NewMemory()
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.vault, _ = s.ledger.NewSigner()
	s.installation, _ = s.ledger.NewSigner()
	s.ledger.Fund(s.vault.AccountID, decimal.NewFromInt(100))
	s.ledger.Fund(s.installation.AccountID, decimal.NewFromInt(100))
	s.service = s.newService(decimal.NewFromInt(1000))
}

func (s *ServiceSuite) newService(limit decimal.Decimal) *Service {
	return New(s.store, tenants{"tenant-a": true}, s.ledger,
		WithAccounts(Accounts{Vault: s.vault, Installation: s.installation, TrustLimit: limit}),
		WithRetryPolicy(retry.Policy{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, BackoffMultiplier: 2}),
		WithPublisher(s.events),
		WithMetrics(s.metrics),
	)
}

func (s *ServiceSuite) asset(code string) ledger.Asset {
	return ledger.Asset{Code: code, Issuer: s.vault.AccountID}
}

func (s *ServiceSuite) TestIncreaseAndDecrease() {
	achieved, err := s.service.AdjustIssuedAssets(s.ctx, "USD", decimal.NewFromInt(100))
	s.Require().NoError(err)
	s.True(achieved.Equal(decimal.NewFromInt(100)))
	s.True(s.ledger.BalanceOf(s.installation.AccountID, s.asset("USD")).Equal(decimal.NewFromInt(100)))

	achieved, err = s.service.AdjustIssuedAssets(s.ctx, "USD", decimal.NewFromInt(40))
	s.Require().NoError(err)
	s.True(achieved.Equal(decimal.NewFromInt(40)))
	s.True(s.ledger.BalanceOf(s.installation.AccountID, s.asset("USD")).Equal(decimal.NewFromInt(40)))

	stored, err := s.service.GetIssuedAssets(s.ctx, "USD")
	s.Require().NoError(err)
	s.True(stored.Equal(decimal.NewFromInt(40)))
	s.Len(s.events.OfType(events.VaultAdjusted), 2)
	s.Equal(0.0, testutil.ToFloat64(s.metrics.PartialAdjustments))
}

func (s *ServiceSuite) TestAchievedIsCappedByTrustLimit() {
	svc := s.newService(decimal.NewFromInt(80))

	achieved, err := svc.AdjustIssuedAssets(s.ctx, "USD", decimal.NewFromInt(100))
	s.Require().NoError(err)
	s.True(achieved.Equal(decimal.NewFromInt(80)))

	stored, err := svc.GetIssuedAssets(s.ctx, "USD")
	s.Require().NoError(err)
	s.True(stored.Equal(decimal.NewFromInt(80)))
	s.Equal(1.0, testutil.ToFloat64(s.metrics.PartialAdjustments))
}

func (s *ServiceSuite) TestExistingLineLimitIsRespected() {
	s.ledger.Trust(s.installation.AccountID, s.asset("EUR"), decimal.NewFromInt(50))

	achieved, err := s.service.AdjustIssuedAssets(s.ctx, "EUR", decimal.NewFromInt(70))
	s.Require().NoError(err)
	s.True(achieved.Equal(decimal.NewFromInt(50)))
	s.Equal(0, s.ledger.Calls("ChangeTrust"))
}

func (s *ServiceSuite) TestLostResponseIsNotRepeated() {
	s.ledger.ApplyThenFail("Pay", ledger.ErrTransient, 1)

	achieved, err := s.service.AdjustIssuedAssets(s.ctx, "USD", decimal.NewFromInt(100))
	s.Require().NoError(err)
	s.True(achieved.Equal(decimal.NewFromInt(100)))
	s.Equal(1, s.ledger.Calls("Pay"))
}

func (s *ServiceSuite) TestRejectedTransferReportsAchieved() {
	s.ledger.Fail("Pay", ledger.ErrRejected, 1)

	achieved, err := s.service.AdjustIssuedAssets(s.ctx, "USD", decimal.NewFromInt(100))
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
	s.True(achieved.IsZero())

	stored, err := s.service.GetIssuedAssets(s.ctx, "USD")
	s.Require().NoError(err)
	s.True(stored.IsZero())
}

func (s *ServiceSuite) TestNegativeAmountIsInvalid() {
	_, err := s.service.AdjustIssuedAssets(s.ctx, "USD", decimal.NewFromInt(-5))
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	s.Equal(0, s.ledger.Calls("Pay"))
}

func (s *ServiceSuite) TestGetIssuedAssetsDefaultsToZero() {
	amount, err := s.service.GetIssuedAssets(s.ctx, "GBP")
	s.Require().NoError(err)
	s.True(amount.IsZero())
}

func (s *ServiceSuite) TestHasVault() {
	ok, err := s.service.HasVault(s.ctx, "tenant-a")
	s.Require().NoError(err)
	s.True(ok)

	ok, err = s.service.HasVault(s.ctx, "tenant-b")
	s.Require().NoError(err)
	s.False(ok)

	unconfigured := New(s.store, tenants{"tenant-a": true}, s.ledger)
	ok, err = unconfigured.HasVault(s.ctx, "tenant-a")
	s.Require().NoError(err)
	s.False(ok)

	_, err = unconfigured.AdjustIssuedAssets(s.ctx, "USD", decimal.NewFromInt(1))
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidConfiguration))
}

func (s *ServiceSuite) TestConcurrentAdjustmentsMatchLedger() {
	var wg sync.WaitGroup
	for i := 1; i <= 10; i++ {
		wg.Add(1)
		go func(amount int64) {
			defer wg.Done()
			_, err := s.service.AdjustIssuedAssets(s.ctx, "EUR", decimal.NewFromInt(amount*10))
			s.NoError(err)
		}(int64(i))
	}
	wg.Wait()

	stored, err := s.service.GetIssuedAssets(s.ctx, "EUR")
	s.Require().NoError(err)
	s.True(stored.Equal(s.ledger.BalanceOf(s.installation.AccountID, s.asset("EUR"))))
	s.Equal(1, s.ledger.Calls("ChangeTrust"))
}
