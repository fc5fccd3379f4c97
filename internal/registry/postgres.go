package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	db *sql.DB
}

// NewPGStore wraps an open database handle.
func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Tokens(ctx context.Context) TokenStore         { return &tokenStore{db: s.db} }
func (s *PGStore) Principals(ctx context.Context) PrincipalStore { return &principalStore{db: s.db} }
func (s *PGStore) Tenants(ctx context.Context) TenantStore       { return &tenantStore{db: s.db} }
func (s *PGStore) Batches(ctx context.Context) BatchStore        { return &batchStore{db: s.db} }

// Token store ---------------------------------------------------------------
type tokenStore struct{ db *sql.DB }

func (s *tokenStore) Create(ctx context.Context, tok *Token) error {
	_, err := s.db.ExecContext(ctx,
		`insert into tokens(id, principal_id, tenant_id, service_id, secret_hash,
		   restrict_to_tenant, restrict_to_enrollment, ip_restriction, note, created_at, valid_until)
		 values($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		tok.ID, tok.PrincipalID, tok.TenantID, tok.ServiceID, tok.SecretHash,
		tok.RestrictToTenant, tok.RestrictToEnrollment, nullString(tok.IPRestriction),
		nullString(tok.Note), tok.CreatedAt, tok.ValidUntil,
	)
	// The partial unique index on (principal_id, service_id) where
	// revoked_at is null rejects a concurrent second active token.
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcodeUniqueViolation {
		return ErrAlreadyExists
	}
	return err
}

const pgerrcodeUniqueViolation = "23505"

func (s *tokenStore) Find(ctx context.Context, id string) (*Token, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, principal_id, tenant_id, service_id, secret_hash,
		   restrict_to_tenant, restrict_to_enrollment, coalesce(ip_restriction, ''), coalesce(note, ''),
		   created_at, valid_until, revoked_at
		 from tokens where id=$1`, id)
	return scanToken(row)
}

func (s *tokenStore) FindActiveByPrincipal(ctx context.Context, principalID int64, serviceID string) (*Token, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, principal_id, tenant_id, service_id, secret_hash,
		   restrict_to_tenant, restrict_to_enrollment, coalesce(ip_restriction, ''), coalesce(note, ''),
		   created_at, valid_until, revoked_at
		 from tokens where principal_id=$1 and service_id=$2 and revoked_at is null
		 order by created_at desc limit 1`, principalID, serviceID)
	return scanToken(row)
}

func (s *tokenStore) MarkRevoked(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`update tokens set revoked_at=coalesce(revoked_at, $2) where id=$1`,
		id, time.Now().UTC())
	return err
}

func scanToken(row *sql.Row) (*Token, error) {
	var tok Token
	if err := row.Scan(
		&tok.ID, &tok.PrincipalID, &tok.TenantID, &tok.ServiceID, &tok.SecretHash,
		&tok.RestrictToTenant, &tok.RestrictToEnrollment, &tok.IPRestriction, &tok.Note,
		&tok.CreatedAt, &tok.ValidUntil, &tok.RevokedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &tok, nil
}

// Principal store -----------------------------------------------------------
type principalStore struct{ db *sql.DB }

func (s *principalStore) Exists(ctx context.Context, id int64) (bool, error) {
	var ok bool
	err := s.db.QueryRowContext(ctx,
		`select exists(select 1 from principals where id=$1 and deleted_at is null)`, id).Scan(&ok)
	return ok, err
}

// Tenant store --------------------------------------------------------------
type tenantStore struct{ db *sql.DB }

func (s *tenantStore) Exists(ctx context.Context, id int64) (bool, error) {
	var ok bool
	err := s.db.QueryRowContext(ctx,
		`select exists(select 1 from tenants where id=$1)`, id).Scan(&ok)
	return ok, err
}

// Batch store ---------------------------------------------------------------
type batchStore struct{ db *sql.DB }

func (s *batchStore) Create(ctx context.Context, batch *Batch) error {
	items, err := json.Marshal(batch.Items)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`insert into token_batches(id, tenant_id, service_id, total, succeeded, failed, created_by, created_at, items)
		 values($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		batch.ID, batch.TenantID, batch.ServiceID, batch.Total, batch.Succeeded,
		batch.Failed, batch.CreatedBy, batch.CreatedAt, items,
	)
	return err
}

func (s *batchStore) Find(ctx context.Context, id string) (*Batch, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, tenant_id, service_id, total, succeeded, failed, created_by, created_at, items
		 from token_batches where id=$1`, id)
	var (
		batch Batch
		items []byte
	)
	if err := row.Scan(&batch.ID, &batch.TenantID, &batch.ServiceID, &batch.Total,
		&batch.Succeeded, &batch.Failed, &batch.CreatedBy, &batch.CreatedAt, &items); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(items, &batch.Items); err != nil {
		return nil, err
	}
	return &batch, nil
}

func (s *batchStore) List(ctx context.Context, tenantID *int64, limit int) ([]*Batch, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if tenantID != nil {
		rows, err = s.db.QueryContext(ctx,
			`select id, tenant_id, service_id, total, succeeded, failed, created_by, created_at, items
			 from token_batches where tenant_id=$1 order by created_at desc limit $2`, *tenantID, limit)
	} else {
		rows, err = s.db.QueryContext(ctx,
			`select id, tenant_id, service_id, total, succeeded, failed, created_by, created_at, items
			 from token_batches order by created_at desc limit $1`, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Batch
	for rows.Next() {
		var (
			batch Batch
			items []byte
		)
		if err := rows.Scan(&batch.ID, &batch.TenantID, &batch.ServiceID, &batch.Total,
			&batch.Succeeded, &batch.Failed, &batch.CreatedBy, &batch.CreatedAt, &items); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(items, &batch.Items); err != nil {
			return nil, err
		}
		out = append(out, &batch)
	}
	return out, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
