package store

import (
	"context"
	"sync"
	"time"

	"stellarbridge/pkg/platform/sentinel"
)

type keyRecord struct {
	hash      string
	createdAt time.Time
}

// InMemory keeps API key hashes in a map.
type InMemory struct {
	mu   sync.RWMutex
	keys map[string]keyRecord
}

func NewInMemory() *InMemory {
	return &InMemory{keys: make(map[string]keyRecord)}
}

func (s *InMemory) Put(_ context.Context, tenantID, keyHash string, createdAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[tenantID] = keyRecord{hash: keyHash, createdAt: createdAt}
	return nil
}

func (s *InMemory) Get(_ context.Context, tenantID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.keys[tenantID]
	if !ok {
		return "", sentinel.ErrNotFound
	}
	return rec.hash, nil
}

func (s *InMemory) Delete(_ context.Context, tenantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keys[tenantID]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.keys, tenantID)
	return nil
}
