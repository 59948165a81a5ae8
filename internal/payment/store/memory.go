package store

import (
	"context"
	"slices"
	"sort"
	"sync"

	"stellarbridge/internal/bridge/models"
	"stellarbridge/pkg/platform/sentinel"
)

// InMemory is the payment log keyed by reference.
type InMemory struct {
	mu       sync.RWMutex
	payments map[string]models.Payment
}

func NewInMemory() *InMemory {
	return &InMemory{payments: make(map[string]models.Payment)}
}

func (s *InMemory) Insert(_ context.Context, p *models.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.payments[p.Reference]; exists {
		return sentinel.ErrAlreadyUsed
	}
	s.payments[p.Reference] = *p
	return nil
}

func (s *InMemory) FindByReference(_ context.Context, reference string) (*models.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.payments[reference]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &p, nil
}

func (s *InMemory) Update(_ context.Context, p *models.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.payments[p.Reference]; !ok {
		return sentinel.ErrNotFound
	}
	s.payments[p.Reference] = *p
	return nil
}

// ListByStatus returns payments in any of statuses, oldest first.
func (s *InMemory) ListByStatus(_ context.Context, statuses ...models.PaymentStatus) ([]*models.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Payment
	for _, p := range s.payments {
		if slices.Contains(statuses, p.Status) {
			cp := p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}
