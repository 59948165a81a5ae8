// Package horizon implements ledger.Client against a Stellar Horizon server.
package horizon

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stellar/go/clients/horizonclient"
	"github.com/stellar/go/keypair"
	hProtocol "github.com/stellar/go/protocols/horizon"
	"github.com/stellar/go/strkey"
	"github.com/stellar/go/txnbuild"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"stellarbridge/internal/ledger"
	"stellarbridge/pkg/platform/circuit"
)

const (
	// transactionTimeout bounds the validity window of every submitted envelope.
	transactionTimeout = 30
	historyPageSize = 200
	// historyMaxPages bounds reference lookups to the newest
	// historyPageSize*historyMaxPages transactions of the source account. A
	// payment recovered after more newer transactions than that is not found.
	historyMaxPages = 50
)

// ErrCircuitOpen is returned without contacting Horizon while the breaker is open.
var ErrCircuitOpen = fmt.Errorf("%w: horizon circuit open", ledger.ErrTransient)

// Client talks to Horizon. It is safe for concurrent use; callers serialise
// submissions per source account.
type Client struct {
	horizon    horizonclient.ClientInterface
	passphrase string
	breaker    *circuit.Breaker
	logger     *slog.Logger
	tracer     trace.Tracer
	pageSize   uint
	maxPages   int
}

var (
	_ ledger.Client       = (*Client)(nil)
	_ ledger.KeyGenerator = KeyGenerator{}
)

type Option func(*Client)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(c *Client) {
		c.breaker = b
	}
}

// WithHistoryWindow sets how many transactions per page and how many pages
// reference lookups scan.
func WithHistoryWindow(pageSize uint, maxPages int) Option {
	return func(c *Client) {
		if pageSize > 0 {
			c.pageSize = pageSize
		}
		if maxPages > 0 {
			c.maxPages = maxPages
		}
	}
}

// WithHorizon replaces the underlying Horizon client.
func WithHorizon(h horizonclient.ClientInterface) Option {
	return func(c *Client) {
		c.horizon = h
	}
}

// New returns a Client for the Horizon server at url on the network
// identified by passphrase.
func New(url, passphrase string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		horizon: &horizonclient.Client{
			HorizonURL: url,
			HTTP:       &http.Client{Timeout: timeout},
		},
		passphrase: passphrase,
		breaker:    circuit.New("horizon"),
		logger:     slog.Default(),
		tracer:     otel.Tracer("stellarbridge/ledger/horizon"),
		pageSize:   historyPageSize,
		maxPages:   historyMaxPages,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Health fetches the Horizon root document.
func (c *Client) Health(ctx context.Context) error {
	_, err := call(ctx, c, c.horizon.Root)
	return err
}

func (c *Client) AccountExists(ctx context.Context, accountID string) (bool, error) {
	_, err := c.account(ctx, accountID)
	if errors.Is(err, ledger.ErrAccountNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (c *Client) CreateAccount(ctx context.Context, funder ledger.Signer, destination string, startingBalance decimal.Decimal) (string, error) {
	op := &txnbuild.CreateAccount{
		Destination: destination,
		Amount:      formatAmount(startingBalance),
	}
	return c.submit(ctx, "CreateAccount", funder, nil, op)
}

func (c *Client) ChangeTrust(ctx context.Context, signer ledger.Signer, asset ledger.Asset, limit decimal.Decimal) (string, error) {
	line, err := txnbuild.CreditAsset{Code: asset.Code, Issuer: asset.Issuer}.ToChangeTrustAsset()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ledger.ErrRejected, err)
	}
	op := &txnbuild.ChangeTrust{
		Line:  line,
		Limit: formatAmount(limit),
	}
	return c.submit(ctx, "ChangeTrust", signer, nil, op)
}

func (c *Client) Pay(ctx context.Context, source ledger.Signer, op ledger.PaymentOp) (string, error) {
	var memo txnbuild.Memo
	if op.Reference != "" {
		m, err := referenceMemo(op.Reference)
		if err != nil {
			return "", err
		}
		memo = m
	}
	payment := &txnbuild.Payment{
		Destination: op.Destination,
		Amount:      formatAmount(op.Amount),
		Asset:       toTxnAsset(op.Asset),
	}
	return c.submit(ctx, "Pay", source, memo, payment)
}

func (c *Client) FindPaymentByReference(ctx context.Context, accountID, reference string) (string, bool, error) {
	ctx, span := c.tracer.Start(ctx, "horizon.FindPaymentByReference",
		trace.WithAttributes(attribute.String("ledger.account", accountID)))
	defer span.End()

	raw, err := hex.DecodeString(reference)
	if err != nil {
		return "", false, fmt.Errorf("%w: reference is not hex: %v", ledger.ErrRejected, err)
	}
	want := base64.StdEncoding.EncodeToString(raw)

	cursor := ""
	for pages := 0; pages < c.maxPages; pages++ {
		req := horizonclient.TransactionRequest{
			ForAccount: accountID,
			Order:      horizonclient.OrderDesc,
			Limit:      c.pageSize,
			Cursor:     cursor,
		}
		page, err := call(ctx, c, func() (hProtocol.TransactionsPage, error) {
			return c.horizon.Transactions(req)
		})
		if errors.Is(err, ledger.ErrAccountNotFound) {
			return "", false, nil
		}
		if err != nil {
			recordError(span, err)
			return "", false, err
		}
		records := page.Embedded.Records
		for _, tx := range records {
			if tx.Successful && tx.MemoType == "hash" && tx.Memo == want && tx.Account == accountID {
				return tx.Hash, true, nil
			}
		}
		if uint(len(records)) < c.pageSize {
			return "", false, nil
		}
		cursor = records[len(records)-1].PagingToken()
	}
	span.SetAttributes(attribute.Bool("ledger.history_truncated", true))
	c.logger.WarnContext(ctx, "reference lookup stopped at history window",
		"account_id", accountID,
		"transactions", uint(c.maxPages)*c.pageSize,
	)
	return "", false, nil
}

func (c *Client) Balances(ctx context.Context, accountID string) ([]ledger.Balance, error) {
	acct, err := c.account(ctx, accountID)
	if err != nil {
		return nil, err
	}
	out := make([]ledger.Balance, 0, len(acct.Balances))
	for _, b := range acct.Balances {
		amount, err := decimal.NewFromString(b.Balance)
		if err != nil {
			return nil, fmt.Errorf("parse balance %q: %w", b.Balance, err)
		}
		bal := ledger.Balance{Amount: amount}
		if b.Type == "native" {
			bal.Asset = ledger.Asset{Code: "native"}
		} else {
			bal.Asset = ledger.Asset{Code: b.Code, Issuer: b.Issuer}
			if bal.Limit, err = decimal.NewFromString(b.Limit); err != nil {
				return nil, fmt.Errorf("parse limit %q: %w", b.Limit, err)
			}
		}
		out = append(out, bal)
	}
	return out, nil
}

func (c *Client) account(ctx context.Context, accountID string) (hProtocol.Account, error) {
	return call(ctx, c, func() (hProtocol.Account, error) {
		return c.horizon.AccountDetail(horizonclient.AccountRequest{AccountID: accountID})
	})
}

// submit loads the source account's current sequence, builds and signs a
// single-operation transaction, and submits it.
func (c *Client) submit(ctx context.Context, name string, signer ledger.Signer, memo txnbuild.Memo, op txnbuild.Operation) (string, error) {
	ctx, span := c.tracer.Start(ctx, "horizon."+name,
		trace.WithAttributes(attribute.String("ledger.source", signer.AccountID)))
	defer span.End()

	kp, err := keypair.ParseFull(signer.Seed)
	if err != nil {
		recordError(span, err)
		return "", fmt.Errorf("%w: invalid signing key", ledger.ErrRejected)
	}

	acct, err := c.account(ctx, signer.AccountID)
	if err != nil {
		recordError(span, err)
		return "", err
	}

	tx, err := txnbuild.NewTransaction(txnbuild.TransactionParams{
		SourceAccount:        &acct,
		IncrementSequenceNum: true,
		Operations:           []txnbuild.Operation{op},
		BaseFee:              txnbuild.MinBaseFee,
		Memo:                 memo,
		Preconditions:        txnbuild.Preconditions{TimeBounds: txnbuild.NewTimeout(transactionTimeout)},
	})
	if err != nil {
		recordError(span, err)
		return "", fmt.Errorf("%w: build transaction: %v", ledger.ErrRejected, err)
	}
	tx, err = tx.Sign(c.passphrase, kp)
	if err != nil {
		recordError(span, err)
		return "", fmt.Errorf("%w: sign transaction: %v", ledger.ErrRejected, err)
	}

	resp, err := call(ctx, c, func() (hProtocol.Transaction, error) {
		return c.horizon.SubmitTransaction(tx)
	})
	if err != nil {
		recordError(span, err)
		c.logger.WarnContext(ctx, "ledger submission failed",
			"operation", name,
			"source", signer.AccountID,
			"error", err,
		)
		return "", err
	}
	span.SetAttributes(attribute.String("ledger.tx_hash", resp.Hash))
	return resp.Hash, nil
}

// call runs fn behind the breaker, honouring ctx even though the Horizon
// client has no context-aware calls.
func call[T any](ctx context.Context, c *Client, fn func() (T, error)) (T, error) {
	var zero T
	if !c.breaker.Allow() {
		return zero, ErrCircuitOpen
	}

	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn()
		done <- result{v: v, err: err}
	}()

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case r := <-done:
		err := classify(r.err)
		c.record(err)
		return r.v, err
	}
}

func (c *Client) record(err error) {
	if err != nil && errors.Is(err, ledger.ErrTransient) {
		if _, change := c.breaker.RecordFailure(); change.Opened {
			c.logger.Warn("horizon circuit opened", "breaker", c.breaker.Name())
		}
		return
	}
	if _, change := c.breaker.RecordSuccess(); change.Closed {
		c.logger.Info("horizon circuit closed", "breaker", c.breaker.Name())
	}
}

// classify maps Horizon responses onto ledger errors.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if horizonclient.IsNotFoundError(err) {
		return ledger.ErrAccountNotFound
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%w: %v", ledger.ErrTransient, err)
	}

	herr := horizonclient.GetError(err)
	if herr == nil {
		return fmt.Errorf("%w: %v", ledger.ErrTransient, err)
	}
	if herr.Problem.Status == http.StatusNotFound {
		return ledger.ErrAccountNotFound
	}
	if herr.Problem.Status >= http.StatusInternalServerError || herr.Problem.Status == http.StatusTooManyRequests {
		return fmt.Errorf("%w: horizon status %d", ledger.ErrTransient, herr.Problem.Status)
	}

	rc, rcErr := herr.ResultCodes()
	if rcErr != nil || rc == nil {
		return fmt.Errorf("%w: %s", ledger.ErrRejected, herr.Problem.Title)
	}
	switch rc.TransactionCode {
	case "tx_bad_seq":
		return ledger.ErrSequenceConflict
	case "tx_insufficient_fee", "tx_too_late":
		return fmt.Errorf("%w: %s", ledger.ErrTransient, rc.TransactionCode)
	}
	for _, opCode := range rc.OperationCodes {
		switch opCode {
		case "op_underfunded", "op_src_no_trust":
			return ledger.ErrUnderfunded
		case "op_no_trust", "op_not_authorized":
			return ledger.ErrNoTrust
		case "op_line_full":
			return ledger.ErrLineFull
		case "op_no_destination":
			return ledger.ErrAccountNotFound
		}
	}
	return fmt.Errorf("%w: %s %v", ledger.ErrRejected, rc.TransactionCode, rc.OperationCodes)
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

func toTxnAsset(a ledger.Asset) txnbuild.Asset {
	if a.IsNative() {
		return txnbuild.NativeAsset{}
	}
	return txnbuild.CreditAsset{Code: a.Code, Issuer: a.Issuer}
}

func formatAmount(d decimal.Decimal) string {
	return d.StringFixed(ledger.AmountScale)
}

func referenceMemo(reference string) (txnbuild.MemoHash, error) {
	var memo txnbuild.MemoHash
	raw, err := hex.DecodeString(reference)
	if err != nil || len(raw) != len(memo) {
		return memo, fmt.Errorf("%w: reference must be 32 hex-encoded bytes", ledger.ErrRejected)
	}
	copy(memo[:], raw)
	return memo, nil
}

// KeyGenerator creates ed25519 keypairs and validates G-addresses.
type KeyGenerator struct{}

func (KeyGenerator) NewSigner() (ledger.Signer, error) {
	kp, err := keypair.Random()
	if err != nil {
		return ledger.Signer{}, err
	}
	return ledger.Signer{AccountID: kp.Address(), Seed: kp.Seed()}, nil
}

// SignerFromSeed parses a secret seed into the signer it controls.
func SignerFromSeed(seed string) (ledger.Signer, error) {
	kp, err := keypair.ParseFull(seed)
	if err != nil {
		return ledger.Signer{}, fmt.Errorf("parse seed: %w", err)
	}
	return ledger.Signer{AccountID: kp.Address(), Seed: kp.Seed()}, nil
}

func (KeyGenerator) ValidAccountID(accountID string) bool {
	return strkey.IsValidEd25519PublicKey(accountID)
}
