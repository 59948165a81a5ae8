package store

import (
	"context"
	"sort"
	"sync"

	"stellarbridge/internal/bridge/models"
	"stellarbridge/pkg/platform/sentinel"
)

// InMemory keeps trust lines in a map keyed by TrustLineKey.
type InMemory struct {
	mu    sync.RWMutex
	lines map[models.TrustLineKey]models.TrustLine
}

func NewInMemory() *InMemory {
	return &InMemory{lines: make(map[models.TrustLineKey]models.TrustLine)}
}

func (s *InMemory) Find(_ context.Context, key models.TrustLineKey) (*models.TrustLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	line, ok := s.lines[key]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &line, nil
}

func (s *InMemory) Upsert(_ context.Context, line *models.TrustLine) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines[line.Key()] = *line
	return nil
}

func (s *InMemory) Delete(_ context.Context, key models.TrustLineKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.lines[key]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.lines, key)
	return nil
}

func (s *InMemory) ListByTenant(_ context.Context, tenantID string) ([]*models.TrustLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.TrustLine
	for key, line := range s.lines {
		if key.TenantID == tenantID {
			l := line
			out = append(out, &l)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Key().String() < out[j].Key().String()
	})
	return out, nil
}
