// Package authctx carries the authenticated caller through request contexts.
package authctx

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
)

const (
	RoleAdmin        = "admin"
	RoleClinicOwner  = "clinic_owner"
	RoleProfessional = "professional"
)

// Principal is the authenticated user behind a request.
type Principal struct {
	UserID   string
	TenantID snowflake.ID
	Role     string
}

func (p Principal) IsAdmin() bool {
	return strings.EqualFold(p.Role, RoleAdmin)
}

// Subject is the casbin subject for the principal.
func (p Principal) Subject() string {
	return "user:" + strings.TrimSpace(p.UserID)
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	if ctx == nil {
		return Principal{}, false
	}
	p, ok := ctx.Value(principalKey{}).(Principal)
	if !ok || strings.TrimSpace(p.UserID) == "" {
		return Principal{}, false
	}
	return p, true
}
