package middleware

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stellarbridge/internal/platform/metrics"
	dErrors "stellarbridge/pkg/domain-errors"
	"stellarbridge/pkg/requestcontext"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type keyVerifier map[string]string

func (k keyVerifier) VerifyAPIKey(_ context.Context, apiKey, tenantID string) error {
	if want, ok := k[tenantID]; ok && want == apiKey {
		return nil
	}
	return dErrors.New(dErrors.CodeSecurity, "invalid api key")
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body["error"]
}

func TestTenantAndAPIKey(t *testing.T) {
	var seen string
	h := TenantID(discard)(RequireAPIKey(keyVerifier{"tenant-a": "secret"}, discard)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = requestcontext.TenantID(r.Context())
		}),
	))

	tests := []struct {
		name     string
		tenantID string
		apiKey   string
		status   int
		code     string
	}{
		{name: "valid", tenantID: "tenant-a", apiKey: "secret", status: http.StatusOK},
		{name: "missing tenant", apiKey: "secret", status: http.StatusNotFound, code: string(dErrors.CodeInvalidConfiguration)},
		{name: "wrong key", tenantID: "tenant-a", apiKey: "guess", status: http.StatusUnauthorized, code: string(dErrors.CodeSecurity)},
		{name: "key of another tenant", tenantID: "tenant-b", apiKey: "secret", status: http.StatusUnauthorized, code: string(dErrors.CodeSecurity)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = ""
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.tenantID != "" {
				req.Header.Set(HeaderTenantID, tt.tenantID)
			}
			req.Header.Set(HeaderAPIKey, tt.apiKey)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			if tt.code != "" {
				assert.Equal(t, tt.code, errorCode(t, rec))
				assert.Empty(t, seen)
				return
			}
			assert.Equal(t, tt.tenantID, seen)
		})
	}
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", seen)
}

func TestRequestTimeIsStable(t *testing.T) {
	var first, second time.Time
	h := RequestTime(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		first = requestcontext.Now(r.Context())
		time.Sleep(2 * time.Millisecond)
		second = requestcontext.Now(r.Context())
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.False(t, first.IsZero())
	assert.True(t, first.Equal(second))
}

func TestRecovery(t *testing.T) {
	h := Recovery(discard)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, string(dErrors.CodeInternal), errorCode(t, rec))
}

func TestLatencyRecordsStatus(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	h := Latency(m, func(*http.Request) string { return "/things" })(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTeapot)
		}),
	)
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/things", nil))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Requests.WithLabelValues(http.MethodPost, "/things", "418")))
}
