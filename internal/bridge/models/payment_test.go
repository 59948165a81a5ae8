package models

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "stellarbridge/pkg/domain-errors"
)

func TestPaymentReference(t *testing.T) {
	a := PaymentReference("tenant-a", "je-1")
	assert.Len(t, a, 64)
	assert.Equal(t, a, PaymentReference("tenant-a", "je-1"), "deterministic")
	assert.NotEqual(t, a, PaymentReference("tenant-b", "je-1"), "scoped by tenant")
	assert.NotEqual(t, a, PaymentReference("tenant-a", "je-2"))
}

func TestPaymentStateMachine(t *testing.T) {
	now := time.Now()

	t.Run("happy path", func(t *testing.T) {
		p := &Payment{Status: PaymentPending}
		require.NoError(t, p.Transition(PaymentSubmitted, now))
		require.NoError(t, p.Transition(PaymentConfirmed, now))
		assert.True(t, p.Status.IsTerminal())
	})

	t.Run("terminal states are final", func(t *testing.T) {
		p := &Payment{Status: PaymentConfirmed}
		err := p.Transition(PaymentFailed, now)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))

		p = &Payment{Status: PaymentFailed}
		assert.Error(t, p.Transition(PaymentSubmitted, now))
	})

	t.Run("submitted cannot go back to pending", func(t *testing.T) {
		p := &Payment{Status: PaymentSubmitted}
		assert.Error(t, p.Transition(PaymentPending, now))
	})

	t.Run("fail records coded cause", func(t *testing.T) {
		p := &Payment{Status: PaymentPending}
		cause := dErrors.New(dErrors.CodeTrustLineAdjustmentFailed, "no trust line")
		require.NoError(t, p.Fail(cause, now))
		assert.Equal(t, PaymentFailed, p.Status)
		assert.Equal(t, dErrors.CodeTrustLineAdjustmentFailed, p.FailureCode)
		assert.Equal(t, "no trust line", p.FailureReason)
	})

	t.Run("fail with uncoded cause is internal", func(t *testing.T) {
		p := &Payment{Status: PaymentSubmitted}
		require.NoError(t, p.Fail(errors.New("boom"), now))
		assert.Equal(t, dErrors.CodeInternal, p.FailureCode)
	})
}

func TestValidateAssetCode(t *testing.T) {
	for _, ok := range []string{"USD", "EUR", "X", "ABCDEFGHIJKL", "usd1"} {
		assert.NoError(t, ValidateAssetCode(ok), ok)
	}
	for _, bad := range []string{"", "ABCDEFGHIJKLM", "US-D", "€UR"} {
		assert.Error(t, ValidateAssetCode(bad), bad)
	}
}

func TestValidateAmount(t *testing.T) {
	assert.NoError(t, ValidateAmount(decimal.RequireFromString("10.1234567")))
	assert.NoError(t, ValidateAmount(decimal.Zero))
	assert.Error(t, ValidateAmount(decimal.RequireFromString("-1")))
	assert.Error(t, ValidateAmount(decimal.RequireFromString("0.00000001")))
}

func TestTrustLineHeadroom(t *testing.T) {
	line := &TrustLine{MaximumAmount: decimal.NewFromInt(100), CurrentBalance: decimal.NewFromInt(30)}
	assert.True(t, line.Headroom().Equal(decimal.NewFromInt(70)))
	assert.False(t, line.Removed())

	line.MaximumAmount = decimal.Zero
	assert.True(t, line.Removed())
	assert.True(t, line.Headroom().IsZero())
}
