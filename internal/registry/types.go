package registry

import (
	"errors"
	"time"

	"scopetree.org/internal/tenancy"
)

var (
	ErrNotFound          = errors.New("registry: token not found")
	ErrTenantNotFound    = errors.New("registry: tenant not found")
	ErrPrincipalNotFound = errors.New("registry: principal not found")
	ErrAlreadyExists     = errors.New("registry: principal already has a token")
	ErrUnauthorized      = errors.New("registry: unauthorized")
	ErrInvalidConfig     = errors.New("registry: invalid restriction configuration")
	ErrInvalidInput      = errors.New("registry: invalid input")
)

// Token is a persisted bearer credential record. The secret itself is never
// stored; only its SHA-256 hash survives issuance.
type Token struct {
	ID                   string     `json:"id"`
	PrincipalID          int64      `json:"principal_id"`
	TenantID             *int64     `json:"tenant_id,omitempty"`
	ServiceID            string     `json:"service_id"`
	SecretHash           string     `json:"-"`
	RestrictToTenant     bool       `json:"restrict_to_tenant"`
	RestrictToEnrollment bool       `json:"restrict_to_enrollment"`
	IPRestriction        string     `json:"ip_restriction,omitempty"`
	Note                 string     `json:"note,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	ValidUntil           *time.Time `json:"valid_until,omitempty"`
	RevokedAt            *time.Time `json:"revoked_at,omitempty"`
}

// IssuedToken pairs the stored record with the one-time credential string
// ("<id>.<secret>"), shown exactly once at issuance.
type IssuedToken struct {
	Token      Token  `json:"token"`
	Credential string `json:"credential"`
}

// Restriction is the resolved, read-only view of a token's scoping rules.
type Restriction struct {
	TokenID              string     `json:"token_id"`
	PrincipalID          int64      `json:"principal_id"`
	ServiceID            string     `json:"service_id"`
	TenantID             *int64     `json:"tenant_id,omitempty"`
	RestrictToTenant     bool       `json:"restrict_to_tenant"`
	RestrictToEnrollment bool       `json:"restrict_to_enrollment"`
	IPRestriction        string     `json:"ip_restriction,omitempty"`
	ValidUntil           *time.Time `json:"valid_until,omitempty"`
}

// Scope projects the restriction into the shape the scope resolver consumes.
func (r Restriction) Scope() tenancy.Scope {
	return tenancy.Scope{TenantID: r.TenantID, RestrictToTenant: r.RestrictToTenant}
}

// IssueOptions configures a new token. Nil boolean fields default to true;
// there are no sentinel values for "not provided".
type IssueOptions struct {
	RestrictToTenant     *bool      `json:"restrict_to_tenant,omitempty"`
	RestrictToEnrollment *bool      `json:"restrict_to_enrollment,omitempty"`
	IPRestriction        string     `json:"ip_restriction,omitempty"`
	ValidUntil           *time.Time `json:"valid_until,omitempty"`
	Note                 string     `json:"note,omitempty"`
}

// Batch records one bulk issuance: immutable once written.
type Batch struct {
	ID        string      `json:"id"`
	TenantID  *int64      `json:"tenant_id,omitempty"`
	ServiceID string      `json:"service_id"`
	Total     int         `json:"total"`
	Succeeded int         `json:"succeeded"`
	Failed    int         `json:"failed"`
	CreatedBy string      `json:"created_by"`
	CreatedAt time.Time   `json:"created_at"`
	Items     []BatchItem `json:"items"`
}

// BatchItem is one principal's outcome inside a batch. Reason is empty on
// success; TokenID is empty on failure.
type BatchItem struct {
	PrincipalID int64  `json:"principal_id"`
	TokenID     string `json:"token_id,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// BatchResult is returned to the caller of IssueBatch. Succeeded+Failed
// always equals the number of requested principals.
type BatchResult struct {
	BatchID   string        `json:"batch_id"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Tokens    []IssuedToken `json:"tokens"`
	Errors    []BatchError  `json:"errors"`
}

// BatchError describes one failed batch item.
type BatchError struct {
	PrincipalID int64  `json:"principal_id"`
	Reason      string `json:"reason"`
}
