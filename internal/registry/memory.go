package registry

import (
	"context"
	"sync"
	"time"
)

// InMemory implements Store with in-process maps. It backs tests and
// embedded deployments; production uses the PostgreSQL store.
type InMemory struct {
	mu         sync.RWMutex
	tokens     map[string]*Token
	principals map[int64]bool
	tenants    map[int64]bool
	batches    map[string]*Batch
	order      []string // batch IDs in creation order
}

var _ Store = (*InMemory)(nil)

// NewInMemory creates an empty store.
func NewInMemory() *InMemory {
	return &InMemory{
		tokens:     make(map[string]*Token),
		principals: make(map[int64]bool),
		tenants:    make(map[int64]bool),
		batches:    make(map[string]*Batch),
	}
}

// AddPrincipal registers a principal for existence checks.
func (s *InMemory) AddPrincipal(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.principals[id] = true
}

// AddTenant registers a tenant for existence checks.
func (s *InMemory) AddTenant(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tenants[id] = true
}

func (s *InMemory) Tokens(ctx context.Context) TokenStore         { return (*memTokens)(s) }
func (s *InMemory) Principals(ctx context.Context) PrincipalStore { return (*memPrincipals)(s) }
func (s *InMemory) Tenants(ctx context.Context) TenantStore       { return (*memTenants)(s) }
func (s *InMemory) Batches(ctx context.Context) BatchStore        { return (*memBatches)(s) }

type memTokens InMemory

func (s *memTokens) Create(ctx context.Context, tok *Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *tok
	s.tokens[tok.ID] = &cp
	return nil
}

func (s *memTokens) Find(ctx context.Context, id string) (*Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tok, ok := s.tokens[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *tok
	return &cp, nil
}

func (s *memTokens) FindActiveByPrincipal(ctx context.Context, principalID int64, serviceID string) (*Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, tok := range s.tokens {
		if tok.PrincipalID == principalID && tok.ServiceID == serviceID && tok.RevokedAt == nil {
			cp := *tok
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *memTokens) MarkRevoked(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tok, ok := s.tokens[id]
	if !ok {
		return nil
	}
	if tok.RevokedAt == nil {
		now := time.Now().UTC()
		tok.RevokedAt = &now
	}
	return nil
}

type memPrincipals InMemory

func (s *memPrincipals) Exists(ctx context.Context, id int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.principals[id], nil
}

type memTenants InMemory

func (s *memTenants) Exists(ctx context.Context, id int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tenants[id], nil
}

type memBatches InMemory

func (s *memBatches) Create(ctx context.Context, batch *Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *batch
	cp.Items = append([]BatchItem(nil), batch.Items...)
	s.batches[batch.ID] = &cp
	s.order = append(s.order, batch.ID)
	return nil
}

func (s *memBatches) Find(ctx context.Context, id string) (*Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	batch, ok := s.batches[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *batch
	cp.Items = append([]BatchItem(nil), batch.Items...)
	return &cp, nil
}

func (s *memBatches) List(ctx context.Context, tenantID *int64, limit int) ([]*Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Batch
	for i := len(s.order) - 1; i >= 0 && len(out) < limit; i-- {
		batch := s.batches[s.order[i]]
		if tenantID != nil {
			if batch.TenantID == nil || *batch.TenantID != *tenantID {
				continue
			}
		}
		cp := *batch
		cp.Items = append([]BatchItem(nil), batch.Items...)
		out = append(out, &cp)
	}
	return out, nil
}
