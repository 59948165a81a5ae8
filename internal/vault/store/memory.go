package store

import (
	"context"
	"sync"

	"stellarbridge/internal/bridge/models"
	"stellarbridge/pkg/platform/sentinel"
)

// InMemory keeps vault issuance per asset code.
type InMemory struct {
	mu        sync.RWMutex
	issuances map[string]models.VaultIssuance
}

func NewInMemory() *InMemory {
	return &InMemory{issuances: make(map[string]models.VaultIssuance)}
}

func (s *InMemory) Find(_ context.Context, assetCode string) (*models.VaultIssuance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.issuances[assetCode]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &v, nil
}

func (s *InMemory) Upsert(_ context.Context, issuance *models.VaultIssuance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.issuances[issuance.AssetCode] = *issuance
	return nil
}
