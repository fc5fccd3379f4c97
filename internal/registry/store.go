package registry

import "context"

// Store describes persistence operations required by the token registry.
type Store interface {
	Tokens(ctx context.Context) TokenStore
	Principals(ctx context.Context) PrincipalStore
	Tenants(ctx context.Context) TenantStore
	Batches(ctx context.Context) BatchStore
}

// TokenStore manages token rows. Tokens are independent entities; no
// cross-row locking is required.
type TokenStore interface {
	Create(ctx context.Context, tok *Token) error
	Find(ctx context.Context, id string) (*Token, error)
	// FindActiveByPrincipal returns the principal's unrevoked token for a
	// service, or ErrNotFound.
	FindActiveByPrincipal(ctx context.Context, principalID int64, serviceID string) (*Token, error)
	MarkRevoked(ctx context.Context, id string) error
}

// PrincipalStore answers existence checks for principals.
type PrincipalStore interface {
	Exists(ctx context.Context, id int64) (bool, error)
}

// TenantStore answers existence checks for tenants.
type TenantStore interface {
	Exists(ctx context.Context, id int64) (bool, error)
}

// BatchStore persists immutable batch records.
type BatchStore interface {
	Create(ctx context.Context, batch *Batch) error
	Find(ctx context.Context, id string) (*Batch, error)
	List(ctx context.Context, tenantID *int64, limit int) ([]*Batch, error)
}
