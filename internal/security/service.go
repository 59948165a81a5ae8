// Package security issues and verifies the per-tenant API keys that guard
// every bridge operation.
package security

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	dErrors "stellarbridge/pkg/domain-errors"
	"stellarbridge/pkg/platform/sentinel"
	"stellarbridge/pkg/requestcontext"
	"stellarbridge/pkg/secrets"
)

// KeyStore persists API key hashes. Put replaces any existing hash.
type KeyStore interface {
	Put(ctx context.Context, tenantID, keyHash string, createdAt time.Time) error
	Get(ctx context.Context, tenantID string) (string, error)
	Delete(ctx context.Context, tenantID string) error
}

// Service manages API keys. Only bcrypt hashes are stored.
type Service struct {
	keys      KeyStore
	logger    *slog.Logger
	dummyHash string
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func New(keys KeyStore, opts ...Option) *Service {
	s := &Service{keys: keys, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	// Compared against when a tenant has no key so that unknown tenants cost
	// the same bcrypt round as known ones.
	h, err := bcrypt.GenerateFromPassword([]byte("stellarbridge-unknown-tenant"), bcrypt.DefaultCost)
	if err == nil {
		s.dummyHash = string(h)
	}
	return s
}

// GenerateAPIKey creates a fresh key for tenantID and returns it in clear.
// The key cannot be recovered later.
func (s *Service) GenerateAPIKey(ctx context.Context, tenantID string) (string, error) {
	if strings.TrimSpace(tenantID) == "" {
		return "", dErrors.New(dErrors.CodeInvalidConfiguration, "tenant id is required")
	}
	key, err := secrets.Generate()
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate api key")
	}
	hash, err := secrets.Hash(key)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash api key")
	}
	if err := s.keys.Put(ctx, tenantID, hash, requestcontext.Now(ctx)); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to store api key")
	}
	s.logger.InfoContext(ctx, "api key generated", "tenant_id", tenantID)
	return key, nil
}

// VerifyAPIKey fails with CodeSecurity unless apiKey is the current key of
// tenantID.
func (s *Service) VerifyAPIKey(ctx context.Context, apiKey, tenantID string) error {
	hash, err := s.keys.Get(ctx, tenantID)
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load api key")
	}
	if errors.Is(err, sentinel.ErrNotFound) || tenantID == "" {
		_ = bcrypt.CompareHashAndPassword([]byte(s.dummyHash), []byte(apiKey))
		return dErrors.New(dErrors.CodeSecurity, "invalid api key")
	}
	if apiKey == "" {
		_ = bcrypt.CompareHashAndPassword([]byte(hash), []byte(apiKey))
		return dErrors.New(dErrors.CodeSecurity, "invalid api key")
	}
	if err := secrets.Verify(apiKey, hash); err != nil {
		if dErrors.HasCode(err, dErrors.CodeSecurity) {
			return dErrors.New(dErrors.CodeSecurity, "invalid api key")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to verify api key")
	}
	return nil
}

// RemoveAPIKey deletes tenantID's key. Removing a missing key is not an error.
func (s *Service) RemoveAPIKey(ctx context.Context, tenantID string) error {
	if err := s.keys.Delete(ctx, tenantID); err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to remove api key")
	}
	return nil
}
