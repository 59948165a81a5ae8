package payment

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stellarbridge/internal/bridge/models"
	"stellarbridge/internal/ledger"
	"stellarbridge/internal/ledger/ledgertest"
	"stellarbridge/internal/payment/metrics"
	"stellarbridge/internal/payment/store"
	dErrors "stellarbridge/pkg/domain-errors"
)

type recordingSender struct {
	mu   sync.Mutex
	seen []string
}

func (r *recordingSender) Send(_ context.Context, p *models.Payment) (models.PaymentStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, p.Reference)
	return models.PaymentConfirmed, nil
}

func (r *recordingSender) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.seen)
}

func pendingPayment(ref string) *models.Payment {
	return &models.Payment{
		Reference:       ref,
		SourceTenantID:  "tenant-a",
		IsLedgerPayment: true,
		Status:          models.PaymentPending,
		Amount:          decimal.NewFromInt(1),
	}
}

func TestDispatcherCompletesEnqueuedPayments(t *testing.T) {
	l := ledgertest.New()
	tenant, _ := l.NewSigner()
	issuer := l.NewAccountID()
	usd := ledger.Asset{Code: "USD", Issuer: issuer}
	l.Fund(issuer, decimal.NewFromInt(10))
	l.Trust(tenant.AccountID, usd, decimal.NewFromInt(1000))
	l.Credit(tenant.AccountID, usd, decimal.NewFromInt(1000))
	destinations := make([]string, 5)
	for i := range destinations {
		destinations[i] = l.NewAccountID()
		l.Trust(destinations[i], usd, decimal.NewFromInt(100))
	}

	payments := store.NewInMemory()
	bridge := NewBridge(payments, fakeResolver{"issuer*bank.example": issuer}, signers{"tenant-a": tenant}, l,
		WithRetryPolicy(testPolicy))
	d := NewDispatcher(bridge, payments, WithWorkers(3), WithQueueSize(10))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	mapper := NewMapper()
	var refs []string
	for i, dest := range destinations {
		p, err := mapper.MapToPayment(ctx, "tenant-a", outboundEntry("je-"+string(rune('a'+i)), dest, "10"))
		require.NoError(t, err)
		require.NoError(t, d.Enqueue(ctx, p))
		refs = append(refs, p.Reference)
	}

	require.Eventually(t, func() bool {
		for _, ref := range refs {
			p, err := payments.FindByReference(context.Background(), ref)
			if err != nil || p.Status != models.PaymentConfirmed {
				return false
			}
		}
		return true
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	assert.True(t, l.BalanceOf(tenant.AccountID, usd).Equal(decimal.NewFromInt(950)))
	for _, dest := range destinations {
		assert.True(t, l.BalanceOf(dest, usd).Equal(decimal.NewFromInt(10)))
	}
}

func TestEnqueueRecordsPaymentAndRejectsWhenFull(t *testing.T) {
	payments := store.NewInMemory()
	m := metrics.New(prometheus.NewRegistry())
	d := NewDispatcher(&recordingSender{}, payments, WithQueueSize(1), WithDispatcherMetrics(m))
	ctx := context.Background()

	require.NoError(t, d.Enqueue(ctx, pendingPayment("ref-1")))
	err := d.Enqueue(ctx, pendingPayment("ref-2"))
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnavailable))

	for _, ref := range []string{"ref-1", "ref-2"} {
		p, err := payments.FindByReference(ctx, ref)
		require.NoError(t, err)
		assert.Equal(t, models.PaymentPending, p.Status)
	}
	assert.Equal(t, 1.0, testutil.ToFloat64(m.QueueRejected))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.QueueDepth))
}

func TestRunRecoversUnfinishedPayments(t *testing.T) {
	payments := store.NewInMemory()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pending := pendingPayment("ref-pending")
	submitted := pendingPayment("ref-submitted")
	submitted.Status = models.PaymentSubmitted
	finished := pendingPayment("ref-done")
	finished.Status = models.PaymentConfirmed
	for _, p := range []*models.Payment{pending, submitted, finished} {
		require.NoError(t, payments.Insert(ctx, p))
	}

	sender := &recordingSender{}
	m := metrics.New(prometheus.NewRegistry())
	d := NewDispatcher(sender, payments, WithWorkers(1), WithDispatcherMetrics(m))
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	require.Eventually(t, func() bool { return sender.count() == 2 }, 5*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	sender.mu.Lock()
	defer sender.mu.Unlock()
	assert.ElementsMatch(t, []string{"ref-pending", "ref-submitted"}, sender.seen)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Recovered))
}
