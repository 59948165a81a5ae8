package store

import (
	"context"
	"sync"

	"stellarbridge/internal/bridge/models"
	"stellarbridge/pkg/platform/sentinel"
)

// InMemory stores bridge configurations in a map keyed by tenant.
type InMemory struct {
	mu      sync.RWMutex
	configs map[string]models.BridgeConfiguration
}

func NewInMemory() *InMemory {
	return &InMemory{configs: make(map[string]models.BridgeConfiguration)}
}

func (s *InMemory) Create(_ context.Context, cfg *models.BridgeConfiguration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.configs[cfg.TenantID]; exists {
		return sentinel.ErrAlreadyUsed
	}
	s.configs[cfg.TenantID] = *cfg
	return nil
}

func (s *InMemory) FindByTenantID(_ context.Context, tenantID string) (*models.BridgeConfiguration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.configs[tenantID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &cfg, nil
}

func (s *InMemory) Delete(_ context.Context, tenantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.configs[tenantID]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.configs, tenantID)
	return nil
}

func (s *InMemory) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.configs), nil
}
