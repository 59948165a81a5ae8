// Package federation resolves name*domain addresses to ledger account ids
// through the domain's stellar.toml and federation server.
package federation

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"golang.org/x/sync/singleflight"

	"stellarbridge/internal/federation/metrics"
	dErrors "stellarbridge/pkg/domain-errors"
)

const (
	defaultCacheTTL      = 10 * time.Minute
	defaultTimeout       = 10 * time.Second
	defaultLookupTimeout = 2 * defaultTimeout
	// maxDocumentSize caps stellar.toml and federation responses.
	maxDocumentSize = 100 << 10
)

// AccountValidator decides whether a string is a well-formed account id.
type AccountValidator interface {
	ValidAccountID(accountID string) bool
}

type stellarTOML struct {
	FederationServer string `toml:"FEDERATION_SERVER"`
}

type federationRecord struct {
	StellarAddress string `json:"stellar_address"`
	AccountID      string `json:"account_id"`
	MemoType       string `json:"memo_type,omitempty"`
	Memo           string `json:"memo,omitempty"`
}

// Resolver turns addresses into account ids. Successful lookups are cached
// and concurrent lookups of one address share a single round trip.
type Resolver struct {
	accounts   AccountValidator
	httpClient *http.Client
	cache      Cache
	ttl        time.Duration
	timeout    time.Duration
	tomlURL    func(domain string) string
	group      singleflight.Group
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

type Option func(*Resolver)

func WithHTTPClient(c *http.Client) Option {
	return func(r *Resolver) {
		r.httpClient = c
	}
}

func WithCache(c Cache, ttl time.Duration) Option {
	return func(r *Resolver) {
		r.cache = c
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// WithLookupTimeout bounds one shared lookup, stellar.toml and federation
// round trips together.
func WithLookupTimeout(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithTOMLURL overrides where a domain's stellar.toml is fetched from.
func WithTOMLURL(fn func(domain string) string) Option {
	return func(r *Resolver) {
		r.tomlURL = fn
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Resolver) {
		r.metrics = m
	}
}

func New(accounts AccountValidator, opts ...Option) *Resolver {
	r := &Resolver{
		accounts:   accounts,
		httpClient: &http.Client{Timeout: defaultTimeout},
		cache:      NewMemoryCache(),
		ttl:        defaultCacheTTL,
		timeout:    defaultLookupTimeout,
		tomlURL: func(domain string) string {
			return "https://" + domain + "/.well-known/stellar.toml"
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ResolveAccount accepts a raw account id, returned unchanged, or a
// name*domain address, which is resolved.
func (r *Resolver) ResolveAccount(ctx context.Context, raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if r.accounts.ValidAccountID(raw) {
		return raw, nil
	}
	if !strings.Contains(raw, "*") {
		return "", dErrors.New(dErrors.CodeInvalidAddress, "neither an account id nor a federated address")
	}
	addr, err := Parse(raw)
	if err != nil {
		return "", err
	}
	return r.Resolve(ctx, addr)
}

// Resolve looks addr up on its domain's federation server.
func (r *Resolver) Resolve(ctx context.Context, addr Address) (string, error) {
	key := addr.FederationName()

	if id, ok, err := r.cache.Get(ctx, key); err != nil {
		r.logger.WarnContext(ctx, "federation cache read failed", "error", err)
	} else if ok {
		r.countHit()
		return id, nil
	}
	r.countMiss()

	// The shared lookup outlives any single caller; each caller stops
	// waiting when its own context ends.
	ch := r.group.DoChan(key, func() (any, error) {
		lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		defer cancel()
		return r.lookup(lookupCtx, addr)
	})
	var res singleflight.Result
	select {
	case <-ctx.Done():
		return "", dErrors.Wrap(ctx.Err(), dErrors.CodeUnavailable, "federation lookup abandoned")
	case res = <-ch:
	}
	v, err, shared := res.Val, res.Err, res.Shared
	if err != nil {
		if r.metrics != nil {
			r.metrics.LookupFailures.Inc()
		}
		r.logger.InfoContext(ctx, "federation lookup failed",
			"address", key,
			"shared", shared,
			"error", err,
		)
		return "", err
	}
	return v.(string), nil
}

func (r *Resolver) lookup(ctx context.Context, addr Address) (string, error) {
	if r.metrics != nil {
		defer r.metrics.ObserveLookup(time.Now())
	}

	server, err := r.federationServer(ctx, addr.Domain)
	if err != nil {
		return "", err
	}

	endpoint, err := url.Parse(server)
	if err != nil || endpoint.Host == "" {
		return "", dErrors.New(dErrors.CodeFederationFailed, "FEDERATION_SERVER is not a valid URL")
	}
	q := endpoint.Query()
	q.Set("q", addr.FederationName())
	q.Set("type", "name")
	endpoint.RawQuery = q.Encode()

	body, err := r.get(ctx, endpoint.String())
	if err != nil {
		return "", err
	}
	var rec federationRecord
	if err := json.Unmarshal(body, &rec); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeFederationFailed, "malformed federation response")
	}
	if !r.accounts.ValidAccountID(rec.AccountID) {
		return "", dErrors.New(dErrors.CodeFederationFailed, "federation server returned an invalid account id")
	}

	if err := r.cache.Set(ctx, addr.FederationName(), rec.AccountID, r.ttl); err != nil {
		r.logger.WarnContext(ctx, "federation cache write failed", "error", err)
	}
	return rec.AccountID, nil
}

func (r *Resolver) federationServer(ctx context.Context, domain string) (string, error) {
	body, err := r.get(ctx, r.tomlURL(domain))
	if err != nil {
		return "", err
	}
	var doc stellarTOML
	if _, err := toml.Decode(string(body), &doc); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeFederationFailed, "malformed stellar.toml")
	}
	if doc.FederationServer == "" {
		return "", dErrors.New(dErrors.CodeFederationFailed, "stellar.toml has no FEDERATION_SERVER")
	}
	return doc.FederationServer, nil
}

func (r *Resolver) get(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeFederationFailed, "invalid federation request")
	}
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeFederationFailed, "federation request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, dErrors.New(dErrors.CodeFederationFailed, "not found at "+target)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, dErrors.New(dErrors.CodeFederationFailed, fmt.Sprintf("unexpected status %d from %s", resp.StatusCode, target))
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeFederationFailed, "read federation response")
	}
	return body, nil
}

func (r *Resolver) countHit() {
	if r.metrics != nil {
		r.metrics.CacheHits.Inc()
	}
}

func (r *Resolver) countMiss() {
	if r.metrics != nil {
		r.metrics.CacheMisses.Inc()
	}
}
