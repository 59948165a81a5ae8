package horizon

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stellar/go/clients/horizonclient"
	"github.com/stellar/go/keypair"
	"github.com/stellar/go/network"
	hProtocol "github.com/stellar/go/protocols/horizon"
	"github.com/stellar/go/protocols/horizon/base"
	"github.com/stellar/go/support/render/problem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stellarbridge/internal/ledger"
	"stellarbridge/pkg/platform/circuit"
)

func horizonError(status int, typ string, resultCodes map[string]any) error {
	p := problem.P{Type: typ, Status: status, Title: http.StatusText(status)}
	if resultCodes != nil {
		p.Extras = map[string]any{"result_codes": resultCodes}
	}
	return &horizonclient.Error{Problem: p}
}

func newTestClient(h horizonclient.ClientInterface, opts ...Option) *Client {
	opts = append([]Option{WithHorizon(h)}, opts...)
	return New("http://horizon.invalid", network.TestNetworkPassphrase, time.Second, opts...)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"bad sequence", horizonError(400, "transaction_failed", map[string]any{"transaction": "tx_bad_seq"}), ledger.ErrSequenceConflict},
		{"underfunded", horizonError(400, "transaction_failed", map[string]any{"transaction": "tx_failed", "operations": []string{"op_underfunded"}}), ledger.ErrUnderfunded},
		{"no trust", horizonError(400, "transaction_failed", map[string]any{"transaction": "tx_failed", "operations": []string{"op_no_trust"}}), ledger.ErrNoTrust},
		{"line full", horizonError(400, "transaction_failed", map[string]any{"transaction": "tx_failed", "operations": []string{"op_line_full"}}), ledger.ErrLineFull},
		{"server error", horizonError(503, "server_error", nil), ledger.ErrTransient},
		{"rate limited", horizonError(429, "rate_limit_exceeded", nil), ledger.ErrTransient},
		{"other rejection", horizonError(400, "transaction_failed", map[string]any{"transaction": "tx_bad_auth"}), ledger.ErrRejected},
		{"transport", errors.New("connection reset"), ledger.ErrTransient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, classify(tt.err), tt.want)
		})
	}
	assert.NoError(t, classify(nil))
}

func TestAccountExists(t *testing.T) {
	kp := keypair.MustRandom()
	hmock := &horizonclient.MockClient{}
	hmock.On("AccountDetail", horizonclient.AccountRequest{AccountID: kp.Address()}).
		Return(hProtocol.Account{AccountID: kp.Address()}, nil).Once()
	hmock.On("AccountDetail", horizonclient.AccountRequest{AccountID: "GMISSING"}).
		Return(hProtocol.Account{}, horizonError(404, "https://stellar.org/horizon-errors/not_found", nil)).Once()

	c := newTestClient(hmock)

	ok, err := c.AccountExists(context.Background(), kp.Address())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.AccountExists(context.Background(), "GMISSING")
	require.NoError(t, err)
	assert.False(t, ok)
	hmock.AssertExpectations(t)
}

func TestBalances(t *testing.T) {
	kp := keypair.MustRandom()
	issuer := keypair.MustRandom().Address()
	hmock := &horizonclient.MockClient{}
	hmock.On("AccountDetail", horizonclient.AccountRequest{AccountID: kp.Address()}).
		Return(hProtocol.Account{
			AccountID: kp.Address(),
			Balances: []hProtocol.Balance{
				{Balance: "12.5000000", Asset: base.Asset{Type: "native"}},
				{Balance: "3.0000000", Limit: "100.0000000", Asset: base.Asset{Type: "credit_alphanum4", Code: "USD", Issuer: issuer}},
			},
		}, nil)

	balances, err := newTestClient(hmock).Balances(context.Background(), kp.Address())
	require.NoError(t, err)
	require.Len(t, balances, 2)

	usd, ok := ledger.FindBalance(balances, ledger.Asset{Code: "USD", Issuer: issuer})
	require.True(t, ok)
	assert.True(t, usd.Amount.Equal(decimal.NewFromInt(3)))
	assert.True(t, usd.Limit.Equal(decimal.NewFromInt(100)))
	assert.True(t, balances[0].Asset.IsNative())
}

func TestCircuitOpensOnTransientFailures(t *testing.T) {
	kp := keypair.MustRandom()
	hmock := &horizonclient.MockClient{}
	hmock.On("AccountDetail", horizonclient.AccountRequest{AccountID: kp.Address()}).
		Return(hProtocol.Account{}, horizonError(502, "bad_gateway", nil)).Times(2)

	c := newTestClient(hmock, WithBreaker(circuit.New("test", circuit.WithFailureThreshold(2), circuit.WithCooldown(time.Hour))))

	for i := 0; i < 2; i++ {
		_, err := c.AccountExists(context.Background(), kp.Address())
		require.ErrorIs(t, err, ledger.ErrTransient)
	}
	_, err := c.AccountExists(context.Background(), kp.Address())
	assert.ErrorIs(t, err, ErrCircuitOpen)
	hmock.AssertExpectations(t)
}

func TestPayRejectsMalformedReference(t *testing.T) {
	kp := keypair.MustRandom()
	c := newTestClient(&horizonclient.MockClient{})
	_, err := c.Pay(context.Background(), ledger.Signer{AccountID: kp.Address(), Seed: kp.Seed()}, ledger.PaymentOp{
		Destination: keypair.MustRandom().Address(),
		Asset:       ledger.Asset{Code: "USD", Issuer: kp.Address()},
		Amount:      decimal.NewFromInt(1),
		Reference:   "not-hex",
	})
	assert.ErrorIs(t, err, ledger.ErrRejected)
}

func TestKeyGenerator(t *testing.T) {
	signer, err := KeyGenerator{}.NewSigner()
	require.NoError(t, err)
	assert.True(t, KeyGenerator{}.ValidAccountID(signer.AccountID))
	assert.False(t, KeyGenerator{}.ValidAccountID("not-an-account"))
	assert.False(t, KeyGenerator{}.ValidAccountID(signer.Seed))
}

func TestSignerFromSeed(t *testing.T) {
	kp := keypair.MustRandom()
	signer, err := SignerFromSeed(kp.Seed())
	require.NoError(t, err)
	assert.Equal(t, kp.Address(), signer.AccountID)

	_, err = SignerFromSeed(kp.Address())
	assert.Error(t, err)
}

func historyPage(records ...hProtocol.Transaction) hProtocol.TransactionsPage {
	var page hProtocol.TransactionsPage
	page.Embedded.Records = records
	return page
}

func TestFindPaymentByReferencePagesBack(t *testing.T) {
	account := keypair.MustRandom().Address()
	reference := strings.Repeat("ab", 32)
	raw, err := hex.DecodeString(reference)
	require.NoError(t, err)
	memo := base64.StdEncoding.EncodeToString(raw)

	other := func(pt string) hProtocol.Transaction {
		return hProtocol.Transaction{PT: pt, Successful: true, MemoType: "none", Account: account, Hash: "h" + pt}
	}
	match := hProtocol.Transaction{PT: "5", Successful: true, MemoType: "hash", Memo: memo, Account: account, Hash: "found"}

	hmock := &horizonclient.MockClient{}
	request := horizonclient.TransactionRequest{ForAccount: account, Order: horizonclient.OrderDesc, Limit: 2}
	hmock.On("Transactions", request).Return(historyPage(other("9"), other("8")), nil).Once()
	request.Cursor = "8"
	hmock.On("Transactions", request).Return(historyPage(other("7"), other("6")), nil).Once()
	request.Cursor = "6"
	hmock.On("Transactions", request).Return(historyPage(match), nil).Once()

	c := newTestClient(hmock, WithHistoryWindow(2, 10))
	hash, found, err := c.FindPaymentByReference(context.Background(), account, reference)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "found", hash)
	hmock.AssertExpectations(t)
}

func TestFindPaymentByReferenceStopsAtWindow(t *testing.T) {
	account := keypair.MustRandom().Address()
	reference := strings.Repeat("cd", 32)

	hmock := &horizonclient.MockClient{}
	request := horizonclient.TransactionRequest{ForAccount: account, Order: horizonclient.OrderDesc, Limit: 1}
	hmock.On("Transactions", request).
		Return(historyPage(hProtocol.Transaction{PT: "3", Successful: true, Account: account}), nil).Once()
	request.Cursor = "3"
	hmock.On("Transactions", request).
		Return(historyPage(hProtocol.Transaction{PT: "2", Successful: true, Account: account}), nil).Once()

	c := newTestClient(hmock, WithHistoryWindow(1, 2))
	_, found, err := c.FindPaymentByReference(context.Background(), account, reference)
	require.NoError(t, err)
	assert.False(t, found)
	hmock.AssertExpectations(t)
}
