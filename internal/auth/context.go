package auth

import (
	"context"
	"strings"
)

type operatorContextKey struct{}

// Operator is the authenticated management-API caller attached to a request
// context.
type Operator struct {
	ID    string
	Roles []string
}

// HasRole reports whether the operator carries the role.
func (o Operator) HasRole(role string) bool {
	role = strings.TrimSpace(strings.ToLower(role))
	for _, r := range o.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// ContextWithOperator attaches the authenticated operator to the context.
func ContextWithOperator(ctx context.Context, op Operator) context.Context {
	return context.WithValue(ctx, operatorContextKey{}, &op)
}

// OperatorFromContext extracts the authenticated operator from the context.
func OperatorFromContext(ctx context.Context) (Operator, bool) {
	if ctx == nil {
		return Operator{}, false
	}
	v, ok := ctx.Value(operatorContextKey{}).(*Operator)
	if !ok || v == nil {
		return Operator{}, false
	}
	return *v, true
}
