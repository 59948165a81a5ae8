package httptransport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"stellarbridge/internal/bridge/models"
	"stellarbridge/internal/platform/metrics"
	"stellarbridge/internal/platform/middleware"
	dErrors "stellarbridge/pkg/domain-errors"
	"stellarbridge/pkg/platform/httputil"
	"stellarbridge/pkg/requestcontext"
)

// Headers set by the core-banking platform's event hooks.
const (
	HeaderEntity = "X-Mifos-Entity"
	HeaderAction = "X-Mifos-Action"
)

const maxBodyBytes = 1 << 20

type Registry interface {
	Create(ctx context.Context, tenantID, externalToken string) (string, error)
	Delete(ctx context.Context, tenantID string) (bool, error)
}

type TrustLines interface {
	Adjust(ctx context.Context, tenantID, issuer, assetCode string, maximumAmount decimal.Decimal) error
	Get(ctx context.Context, tenantID, issuer, assetCode string) (*models.TrustLine, error)
	List(ctx context.Context, tenantID string) ([]*models.TrustLine, error)
}

type Vault interface {
	AdjustIssuedAssets(ctx context.Context, assetCode string, requested decimal.Decimal) (decimal.Decimal, error)
	GetIssuedAssets(ctx context.Context, assetCode string) (decimal.Decimal, error)
	HasVault(ctx context.Context, tenantID string) (bool, error)
}

type Balances interface {
	GetBalance(ctx context.Context, tenantID, assetCode string) (decimal.Decimal, error)
	GetBalanceByIssuer(ctx context.Context, tenantID, assetCode, issuer string) (decimal.Decimal, error)
	GetInstallationAccountBalance(ctx context.Context, assetCode, issuer string) (decimal.Decimal, error)
}

type PaymentMapper interface {
	MapToPayment(ctx context.Context, tenantID string, entry models.JournalEntry) (*models.Payment, error)
}

type PaymentQueue interface {
	Enqueue(ctx context.Context, p *models.Payment) error
}

type PaymentLog interface {
	Payment(ctx context.Context, tenantID, journalEntryRef string) (*models.Payment, error)
}

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

// Handler is the bridge's HTTP boundary. It decodes requests, calls the
// services and maps their errors; it holds no state of its own.
type Handler struct {
	registry   Registry
	trustLines TrustLines
	vault      Vault
	balances   Balances
	mapper     PaymentMapper
	payments   PaymentQueue
	paymentLog PaymentLog
	verifier   middleware.APIKeyVerifier
	health     map[string]HealthCheck
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// Services groups what the handler delegates to.
type Services struct {
	Registry   Registry
	TrustLines TrustLines
	Vault      Vault
	Balances   Balances
	Mapper     PaymentMapper
	Payments   PaymentQueue
	PaymentLog PaymentLog
	Verifier   middleware.APIKeyVerifier
}

func NewHandler(svc Services, logger *slog.Logger, m *metrics.Metrics, health map[string]HealthCheck) *Handler {
	return &Handler{
		registry:   svc.Registry,
		trustLines: svc.TrustLines,
		vault:      svc.Vault,
		balances:   svc.Balances,
		mapper:     svc.Mapper,
		payments:   svc.Payments,
		paymentLog: svc.PaymentLog,
		verifier:   svc.Verifier,
		health:     health,
		logger:     logger,
		metrics:    m,
	}
}

type createRequest struct {
	TenantID string `json:"mifosTenantId"`
	Token    string `json:"mifosToken"`
}

type createResponse struct {
	APIKey string `json:"apiKey"`
}

type trustLineRequest struct {
	MaximumAmount *decimal.Decimal `json:"maximumAmount"`
}

type amountRequest struct {
	Amount *decimal.Decimal `json:"amount"`
}

type amountResponse struct {
	Amount decimal.Decimal `json:"amount"`
}

// interruptedResponse carries the amount the ledger holds after a transfer
// that stopped for a reason other than capacity.
type interruptedResponse struct {
	Error       string          `json:"error"`
	Description string          `json:"error_description"`
	Amount      decimal.Decimal `json:"amount"`
}

// trustLineResponse reports CurrentBalance as observed when the limit was
// last changed.
type trustLineResponse struct {
	AssetCode       string          `json:"assetCode"`
	IssuerAccountID string          `json:"issuerAccountId"`
	IssuerAddress   string          `json:"issuerAddress"`
	MaximumAmount   decimal.Decimal `json:"maximumAmount"`
	CurrentBalance  decimal.Decimal `json:"currentBalance"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

type paymentResponse struct {
	Reference          string          `json:"reference"`
	JournalEntryID     string          `json:"journalEntryId"`
	Status             string          `json:"status"`
	AssetCode          string          `json:"assetCode"`
	AssetIssuer        string          `json:"assetIssuer"`
	Amount             decimal.Decimal `json:"amount"`
	DestinationAddress string          `json:"destinationAddress"`
	LedgerTxHash       string          `json:"ledgerTxHash,omitempty"`
	FailureCode        string          `json:"failureCode,omitempty"`
	FailureReason      string          `json:"failureReason,omitempty"`
	Attempts           int             `json:"attempts"`
	UpdatedAt          time.Time       `json:"updatedAt"`
}

func toTrustLineResponse(l *models.TrustLine) trustLineResponse {
	return trustLineResponse{
		AssetCode:       l.AssetCode,
		IssuerAccountID: l.IssuerAccountID,
		IssuerAddress:   l.IssuerAddress,
		MaximumAmount:   l.MaximumAmount,
		CurrentBalance:  l.CurrentBalance,
		UpdatedAt:       l.UpdatedAt,
	}
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req createRequest
	if err := h.decode(w, r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	apiKey, err := h.registry.Create(ctx, strings.TrimSpace(req.TenantID), req.Token)
	if err != nil {
		h.fail(w, r, "bridge creation failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, createResponse{APIKey: apiKey})
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	found, err := h.registry.Delete(ctx, requestcontext.TenantID(ctx))
	if err != nil {
		h.fail(w, r, "bridge deletion failed", err)
		return
	}
	if !found {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) handleAdjustTrustLine(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	issuer, err := pathIssuer(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req trustLineRequest
	if err := h.decode(w, r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if req.MaximumAmount == nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "maximumAmount is required"))
		return
	}
	err = h.trustLines.Adjust(ctx, requestcontext.TenantID(ctx), issuer, chi.URLParam(r, "assetCode"), *req.MaximumAmount)
	if err != nil {
		h.fail(w, r, "trust line adjustment failed", err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) handleGetTrustLine(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	issuer, err := pathIssuer(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	line, err := h.trustLines.Get(ctx, requestcontext.TenantID(ctx), issuer, chi.URLParam(r, "assetCode"))
	if err != nil {
		h.fail(w, r, "trust line lookup failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toTrustLineResponse(line))
}

func (h *Handler) handleListTrustLines(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	lines, err := h.trustLines.List(ctx, requestcontext.TenantID(ctx))
	if err != nil {
		h.fail(w, r, "trust line listing failed", err)
		return
	}
	resp := make([]trustLineResponse, 0, len(lines))
	for _, l := range lines {
		resp = append(resp, toTrustLineResponse(l))
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// handleAdjustVault answers 409 with the achieved amount when the ledger
// could not reach the requested one. When the ledger became unavailable
// midway the achieved amount accompanies the 503.
func (h *Handler) handleAdjustVault(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req amountRequest
	if err := h.decode(w, r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if req.Amount == nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "amount is required"))
		return
	}
	requested := *req.Amount
	if requested.IsNegative() {
		httputil.WriteJSON(w, http.StatusBadRequest, amountResponse{Amount: requested})
		return
	}

	achieved, err := h.vault.AdjustIssuedAssets(ctx, chi.URLParam(r, "assetCode"), requested)
	if dErrors.HasCode(err, dErrors.CodeUnavailable) {
		h.logger.ErrorContext(ctx, "vault adjustment interrupted",
			"request_id", middleware.GetRequestID(ctx),
			"requested", requested.String(),
			"achieved", achieved.String(),
			"error", err.Error(),
		)
		httputil.WriteJSON(w, http.StatusServiceUnavailable, interruptedResponse{
			Error:       string(dErrors.CodeUnavailable),
			Description: dErrors.Message(err),
			Amount:      achieved,
		})
		return
	}
	if err != nil {
		h.fail(w, r, "vault adjustment failed", err)
		return
	}
	if !achieved.Equal(requested) {
		h.logger.InfoContext(ctx, "vault adjustment partially achieved",
			"request_id", middleware.GetRequestID(ctx),
			"requested", requested.String(),
			"achieved", achieved.String(),
		)
		httputil.WriteJSON(w, http.StatusConflict, amountResponse{Amount: achieved})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, amountResponse{Amount: achieved})
}

func (h *Handler) handleGetVault(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ok, err := h.vault.HasVault(ctx, requestcontext.TenantID(ctx))
	if err != nil {
		h.fail(w, r, "vault lookup failed", err)
		return
	}
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	amount, err := h.vault.GetIssuedAssets(ctx, chi.URLParam(r, "assetCode"))
	if err != nil {
		h.fail(w, r, "vault lookup failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, amountResponse{Amount: amount})
}

func (h *Handler) handleBalance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	amount, err := h.balances.GetBalance(ctx, requestcontext.TenantID(ctx), chi.URLParam(r, "assetCode"))
	if err != nil {
		h.fail(w, r, "balance lookup failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, amountResponse{Amount: amount})
}

func (h *Handler) handleBalanceByIssuer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	issuer, err := pathIssuer(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	amount, err := h.balances.GetBalanceByIssuer(ctx, requestcontext.TenantID(ctx), chi.URLParam(r, "assetCode"), issuer)
	if err != nil {
		h.fail(w, r, "balance lookup failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, amountResponse{Amount: amount})
}

func (h *Handler) handleInstallationBalance(w http.ResponseWriter, r *http.Request) {
	issuer, err := pathIssuer(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	amount, err := h.balances.GetInstallationAccountBalance(r.Context(), chi.URLParam(r, "assetCode"), issuer)
	if err != nil {
		h.fail(w, r, "installation balance lookup failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, amountResponse{Amount: amount})
}

// handlePaymentEvent accepts platform events. Only journal entry creation is
// mapped; every other event is acknowledged and dropped.
func (h *Handler) handlePaymentEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	entity := r.Header.Get(HeaderEntity)
	action := r.Header.Get(HeaderAction)
	if !strings.EqualFold(entity, "JOURNALENTRY") || !strings.EqualFold(action, "CREATE") {
		w.WriteHeader(http.StatusAccepted)
		return
	}

	var entry models.JournalEntry
	if err := h.decode(w, r, &entry); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidJournalEntry, "journal entry is not valid JSON"))
		return
	}
	tenantID := requestcontext.TenantID(ctx)
	p, err := h.mapper.MapToPayment(ctx, tenantID, entry)
	if err != nil {
		h.fail(w, r, "journal entry rejected", err)
		return
	}
	if !p.IsLedgerPayment {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err := h.payments.Enqueue(ctx, p); err != nil {
		h.fail(w, r, "payment not accepted", err)
		return
	}
	h.logger.InfoContext(ctx, "payment accepted",
		"request_id", middleware.GetRequestID(ctx),
		"tenant_id", tenantID,
		"reference", p.Reference,
	)
	w.WriteHeader(http.StatusAccepted)
}

// handlePaymentStatus reports the payment produced by one of the tenant's
// journal entries.
func (h *Handler) handlePaymentStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, err := h.paymentLog.Payment(ctx, requestcontext.TenantID(ctx), chi.URLParam(r, "journalEntryId"))
	if err != nil {
		h.fail(w, r, "payment lookup failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, paymentResponse{
		Reference:          p.Reference,
		JournalEntryID:     p.SourceJournalEntryRef,
		Status:             string(p.Status),
		AssetCode:          p.AssetCode,
		AssetIssuer:        p.AssetIssuer,
		Amount:             p.Amount,
		DestinationAddress: p.DestinationAddress,
		LedgerTxHash:       p.LedgerTxHash,
		FailureCode:        string(p.FailureCode),
		FailureReason:      p.FailureReason,
		Attempts:           p.Attempts,
		UpdatedAt:          p.UpdatedAt,
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	failures := map[string]string{}
	for name, check := range h.health {
		if err := check(r.Context()); err != nil {
			failures[name] = err.Error()
		}
	}
	if len(failures) > 0 {
		httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "checks": failures})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.logger.WarnContext(r.Context(), "invalid request body",
			"request_id", middleware.GetRequestID(r.Context()),
			"error", err.Error(),
		)
		return dErrors.New(dErrors.CodeBadRequest, "invalid request body")
	}
	return nil
}

// fail logs at a level matching the error class and writes the response.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	ctx := r.Context()
	code, _ := dErrors.CodeOf(err)
	attrs := []any{
		"request_id", middleware.GetRequestID(ctx),
		"tenant_id", requestcontext.TenantID(ctx),
		"error", err.Error(),
	}
	if httputil.StatusFor(code) >= http.StatusInternalServerError {
		h.logger.ErrorContext(ctx, msg, attrs...)
	} else {
		h.logger.WarnContext(ctx, msg, attrs...)
	}
	httputil.WriteError(w, err)
}

// pathIssuer returns the URL-decoded issuer segment.
func pathIssuer(r *http.Request) (string, error) {
	issuer, err := url.PathUnescape(chi.URLParam(r, "issuer"))
	if err != nil || strings.TrimSpace(issuer) == "" {
		return "", dErrors.New(dErrors.CodeInvalidAddress, "issuer is not a valid address")
	}
	return issuer, nil
}
