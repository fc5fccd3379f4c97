package registry

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"scopetree.org/internal/ids"
	"scopetree.org/internal/obs"
)

// Service maps bearer credentials to restrictions and owns issuance and
// revocation. All operations are request-scoped; time comes from the
// injected clock.
type Service struct {
	store Store
	now   func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs a Service.
func NewService(store Store, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("registry: store is required")
	}
	s := &Service{store: store, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Resolve maps a credential to its Restriction. Absent, revoked and expired
// tokens all yield ErrNotFound; callers cannot tell the cases apart.
func (s *Service) Resolve(ctx context.Context, credential string) (Restriction, error) {
	tokenID, secret, err := splitCredential(credential)
	if err != nil {
		obs.CountTokenResolve("not_found")
		return Restriction{}, ErrNotFound
	}
	tok, err := s.store.Tokens(ctx).Find(ctx, tokenID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			obs.CountTokenResolve("not_found")
			return Restriction{}, ErrNotFound
		}
		obs.CountTokenResolve("error")
		return Restriction{}, err
	}
	if tok.RevokedAt != nil {
		obs.CountTokenResolve("not_found")
		return Restriction{}, ErrNotFound
	}
	if tok.ValidUntil != nil && s.now().After(*tok.ValidUntil) {
		obs.CountTokenResolve("not_found")
		return Restriction{}, ErrNotFound
	}
	if !secureCompareHash(tok.SecretHash, secret) {
		obs.CountTokenResolve("not_found")
		return Restriction{}, ErrNotFound
	}
	obs.CountTokenResolve("ok")
	return restrictionOf(tok), nil
}

// Issue creates a token for one principal. A non-nil tenantID must name an
// existing tenant. One active token per (principal, service) is enforced;
// a second issuance fails with ErrAlreadyExists.
func (s *Service) Issue(ctx context.Context, principalID int64, tenantID *int64, serviceID string, opts IssueOptions) (IssuedToken, error) {
	issued, err := s.issue(ctx, principalID, tenantID, serviceID, opts)
	if err != nil {
		return IssuedToken{}, err
	}
	if tenantID != nil {
		obs.CountTokenIssued("tenant")
	} else {
		obs.CountTokenIssued("unscoped")
	}
	return issued, nil
}

// IssueAdmin creates an unscoped token. The caller-facing layer is
// responsible for verifying administrative rights before calling this.
func (s *Service) IssueAdmin(ctx context.Context, principalID int64, serviceID string, opts IssueOptions) (IssuedToken, error) {
	unrestricted := false
	opts.RestrictToTenant = &unrestricted
	issued, err := s.issue(ctx, principalID, nil, serviceID, opts)
	if err != nil {
		return IssuedToken{}, err
	}
	obs.CountTokenIssued("unscoped")
	return issued, nil
}

// IssueBatch attempts Issue for every principal and never aborts on item
// failures. The batch summary is persisted once, after all items were
// attempted; issued tokens survive even if writing the summary fails.
func (s *Service) IssueBatch(ctx context.Context, principalIDs []int64, tenantID *int64, serviceID string, opts IssueOptions, createdBy string) (BatchResult, error) {
	if len(principalIDs) == 0 {
		return BatchResult{}, fmt.Errorf("%w: at least one principal is required", ErrInvalidInput)
	}
	if tenantID != nil {
		ok, err := s.store.Tenants(ctx).Exists(ctx, *tenantID)
		if err != nil {
			return BatchResult{}, err
		}
		if !ok {
			return BatchResult{}, ErrTenantNotFound
		}
	}

	batch := &Batch{
		ID:        ids.New(),
		TenantID:  tenantID,
		ServiceID: serviceID,
		Total:     len(principalIDs),
		CreatedBy: createdBy,
		CreatedAt: s.now().UTC(),
	}
	result := BatchResult{BatchID: batch.ID}

	for _, principalID := range principalIDs {
		issued, err := s.issue(ctx, principalID, tenantID, serviceID, opts)
		if err != nil {
			batch.Failed++
			result.Failed++
			reason := batchReason(err)
			batch.Items = append(batch.Items, BatchItem{PrincipalID: principalID, Reason: reason})
			result.Errors = append(result.Errors, BatchError{PrincipalID: principalID, Reason: reason})
			obs.CountBatchItem("failure")
			continue
		}
		batch.Succeeded++
		result.Succeeded++
		batch.Items = append(batch.Items, BatchItem{PrincipalID: principalID, TokenID: issued.Token.ID})
		result.Tokens = append(result.Tokens, issued)
		if tenantID != nil {
			obs.CountTokenIssued("tenant")
		} else {
			obs.CountTokenIssued("unscoped")
		}
		obs.CountBatchItem("success")
	}

	if err := s.store.Batches(ctx).Create(ctx, batch); err != nil {
		return result, fmt.Errorf("persist batch %s: %w", batch.ID, err)
	}
	return result, nil
}

// Revoke invalidates a credential. Revoking an unknown, malformed or
// already-revoked credential is not an error.
func (s *Service) Revoke(ctx context.Context, credential string) error {
	tokenID, _, err := splitCredential(credential)
	if err != nil {
		return nil
	}
	tokens := s.store.Tokens(ctx)
	if _, err := tokens.Find(ctx, tokenID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	if err := tokens.MarkRevoked(ctx, tokenID); err != nil {
		return err
	}
	obs.CountTokenRevoked()
	return nil
}

// Batch returns one immutable batch record.
func (s *Service) Batch(ctx context.Context, id string) (*Batch, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: batch id is required", ErrInvalidInput)
	}
	return s.store.Batches(ctx).Find(ctx, id)
}

// Batches lists recent batch records, optionally filtered by tenant.
func (s *Service) Batches(ctx context.Context, tenantID *int64, limit int) ([]*Batch, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	return s.store.Batches(ctx).List(ctx, tenantID, limit)
}

func (s *Service) issue(ctx context.Context, principalID int64, tenantID *int64, serviceID string, opts IssueOptions) (IssuedToken, error) {
	serviceID = strings.TrimSpace(serviceID)
	if serviceID == "" {
		return IssuedToken{}, fmt.Errorf("%w: service id is required", ErrInvalidInput)
	}
	if principalID <= 0 {
		return IssuedToken{}, fmt.Errorf("%w: principal id is required", ErrInvalidInput)
	}

	restrictTenant := true
	if opts.RestrictToTenant != nil {
		restrictTenant = *opts.RestrictToTenant
	}
	restrictEnrollment := true
	if opts.RestrictToEnrollment != nil {
		restrictEnrollment = *opts.RestrictToEnrollment
	}
	if tenantID == nil {
		if opts.RestrictToTenant != nil && *opts.RestrictToTenant {
			return IssuedToken{}, fmt.Errorf("%w: restrict_to_tenant requires a tenant", ErrInvalidConfig)
		}
		// An unscoped token cannot be tenant-restricted.
		restrictTenant = false
	}
	if opts.IPRestriction != "" {
		if err := validateIPRestriction(opts.IPRestriction); err != nil {
			return IssuedToken{}, err
		}
	}

	ok, err := s.store.Principals(ctx).Exists(ctx, principalID)
	if err != nil {
		return IssuedToken{}, err
	}
	if !ok {
		return IssuedToken{}, ErrPrincipalNotFound
	}
	if tenantID != nil {
		ok, err := s.store.Tenants(ctx).Exists(ctx, *tenantID)
		if err != nil {
			return IssuedToken{}, err
		}
		if !ok {
			return IssuedToken{}, ErrTenantNotFound
		}
	}
	if existing, err := s.store.Tokens(ctx).FindActiveByPrincipal(ctx, principalID, serviceID); err == nil && existing != nil {
		return IssuedToken{}, ErrAlreadyExists
	} else if err != nil && !errors.Is(err, ErrNotFound) {
		return IssuedToken{}, err
	}

	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		return IssuedToken{}, err
	}
	secret := base64.RawURLEncoding.EncodeToString(secretBytes)
	sum := sha256.Sum256([]byte(secret))

	tok := &Token{
		ID:                   ids.New(),
		PrincipalID:          principalID,
		TenantID:             tenantID,
		ServiceID:            serviceID,
		SecretHash:           hex.EncodeToString(sum[:]),
		RestrictToTenant:     restrictTenant,
		RestrictToEnrollment: restrictEnrollment,
		IPRestriction:        strings.TrimSpace(opts.IPRestriction),
		Note:                 strings.TrimSpace(opts.Note),
		CreatedAt:            s.now().UTC(),
		ValidUntil:           opts.ValidUntil,
	}
	if err := s.store.Tokens(ctx).Create(ctx, tok); err != nil {
		return IssuedToken{}, err
	}
	return IssuedToken{Token: *tok, Credential: tok.ID + "." + secret}, nil
}

func restrictionOf(tok *Token) Restriction {
	return Restriction{
		TokenID:              tok.ID,
		PrincipalID:          tok.PrincipalID,
		ServiceID:            tok.ServiceID,
		TenantID:             tok.TenantID,
		RestrictToTenant:     tok.RestrictToTenant,
		RestrictToEnrollment: tok.RestrictToEnrollment,
		IPRestriction:        tok.IPRestriction,
		ValidUntil:           tok.ValidUntil,
	}
}

func batchReason(err error) string {
	switch {
	case errors.Is(err, ErrPrincipalNotFound):
		return "principal not found"
	case errors.Is(err, ErrAlreadyExists):
		return "already has token"
	case errors.Is(err, ErrTenantNotFound):
		return "tenant not found"
	case errors.Is(err, ErrInvalidConfig), errors.Is(err, ErrInvalidInput):
		return err.Error()
	default:
		return "issue failed"
	}
}

func splitCredential(raw string) (id, secret string, err error) {
	parts := strings.Split(raw, ".")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", errors.New("invalid credential format")
	}
	return parts[0], parts[1], nil
}

func secureCompareHash(expectedHash, secret string) bool {
	sum := sha256.Sum256([]byte(secret))
	actual := hex.EncodeToString(sum[:])
	if len(expectedHash) != len(actual) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expectedHash), []byte(actual)) == 1
}
