package auth

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"
)

func TestGenerateAndValidate(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()
	m, err := NewManager("test-secret", WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	token, err := m.GenerateToken("operator-42", []string{"Tokens.Admin", "viewer", "tokens.admin"}, 30*time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	claims, err := m.ParseAndValidate(token)
	if err != nil {
		t.Fatalf("ParseAndValidate: %v", err)
	}
	if claims.Subject != "operator-42" {
		t.Fatalf("unexpected subject: %s", claims.Subject)
	}
	if claims.Issuer != "scopetree" {
		t.Fatalf("unexpected issuer: %s", claims.Issuer)
	}
	if len(claims.Roles) != 2 {
		t.Fatalf("expected deduplicated roles, got %v", claims.Roles)
	}
	if !slices.Contains(claims.Roles, "tokens.admin") || !slices.Contains(claims.Roles, "viewer") {
		t.Fatalf("roles were not preserved: %v", claims.Roles)
	}
	if !claims.HasRole(RoleTokenAdmin) || !claims.HasRole("Viewer") {
		t.Fatalf("HasRole missing expected roles: %v", claims.Roles)
	}
	if claims.HasRole("operator") {
		t.Fatal("unexpected role found")
	}
}

func TestExpiredToken(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()
	m, err := NewManager("test-secret", WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	token, err := m.GenerateToken("operator-42", nil, time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	now = now.Add(2 * time.Minute)
	if _, err := m.ParseAndValidate(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken after expiry, got %v", err)
	}
}

func TestWrongSecretRejected(t *testing.T) {
	m1, err := NewManager("secret-one")
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	m2, err := NewManager("secret-two")
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	token, err := m1.GenerateToken("operator-42", nil, time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if _, err := m2.ParseAndValidate(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for foreign signature, got %v", err)
	}
	if _, err := m1.ParseAndValidate("not.a.jwt"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for garbage, got %v", err)
	}
}

func TestManagerRequiresSecret(t *testing.T) {
	if _, err := NewManager("   "); err == nil {
		t.Fatal("expected error for empty secret")
	}
}

func TestGenerateTokenValidation(t *testing.T) {
	m, err := NewManager("test-secret")
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if _, err := m.GenerateToken("", nil, time.Minute); err == nil {
		t.Fatal("expected error for empty operator id")
	}
	if _, err := m.GenerateToken("operator-42", nil, 0); err == nil {
		t.Fatal("expected error for zero ttl")
	}
}

func TestOperatorContext(t *testing.T) {
	ctx := context.Background()
	if _, ok := OperatorFromContext(ctx); ok {
		t.Fatal("empty context must not carry an operator")
	}

	ctx = ContextWithOperator(ctx, Operator{ID: "operator-7", Roles: []string{"tokens.admin"}})
	op, ok := OperatorFromContext(ctx)
	if !ok || op.ID != "operator-7" {
		t.Fatalf("unexpected operator: %+v, ok=%v", op, ok)
	}
	if !op.HasRole(RoleTokenAdmin) {
		t.Fatal("operator must carry its role")
	}
	if op.HasRole("viewer") {
		t.Fatal("unexpected role found")
	}
}
