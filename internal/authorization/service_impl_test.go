package authorization

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/clinicsub/internal/authctx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) Service {
	t.Helper()
	enforcer, err := NewMemoryEnforcer()
	require.NoError(t, err)
	return NewService(Params{Log: zap.NewNop(), Enforcer: enforcer})
}

func principal(userID, role string) authctx.Principal {
	return authctx.Principal{UserID: userID, TenantID: snowflake.ID(42), Role: role}
}

func TestAuthorizeRolePolicies(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	cases := []struct {
		name    string
		role    string
		object  string
		action  string
		allowed bool
	}{
		{"owner creates", authctx.RoleClinicOwner, ObjectSubscription, ActionSubscriptionCreate, true},
		{"owner cancels", authctx.RoleClinicOwner, ObjectSubscription, ActionSubscriptionCancel, true},
		{"owner cannot override", authctx.RoleClinicOwner, ObjectSubscription, ActionSubscriptionOverride, false},
		{"admin overrides", authctx.RoleAdmin, ObjectSubscription, ActionSubscriptionOverride, true},
		{"admin cancels", authctx.RoleAdmin, ObjectSubscription, ActionSubscriptionCancel, true},
		{"professional cannot cancel", authctx.RoleProfessional, ObjectSubscription, ActionSubscriptionCancel, false},
		{"professional reads plan status", authctx.RoleProfessional, ObjectPlanStatus, ActionPlanStatusView, true},
		{"unknown role denied", "receptionist", ObjectSubscription, ActionSubscriptionCreate, false},
	}

	for i, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := principal(snowflake.ID(int64(100+i)).String(), tc.role)
			err := svc.Authorize(ctx, p, tc.object, tc.action)
			if tc.allowed {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrForbidden)
			}
		})
	}
}

func TestAuthorizeFollowsRoleChange(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Authorize(ctx, principal("7", authctx.RoleAdmin), ObjectSubscription, ActionSubscriptionOverride))
	err := svc.Authorize(ctx, principal("7", authctx.RoleClinicOwner), ObjectSubscription, ActionSubscriptionOverride)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestAuthorizeRejectsIncompleteRequests(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	assert.ErrorIs(t, svc.Authorize(ctx, authctx.Principal{Role: authctx.RoleAdmin}, ObjectSubscription, ActionSubscriptionView), ErrInvalidActor)
	assert.ErrorIs(t, svc.Authorize(ctx, principal("1", authctx.RoleAdmin), "", ActionSubscriptionView), ErrInvalidObject)
	assert.ErrorIs(t, svc.Authorize(ctx, principal("1", authctx.RoleAdmin), ObjectSubscription, " "), ErrInvalidAction)
	assert.ErrorIs(t, svc.Authorize(ctx, principal("1", ""), ObjectSubscription, ActionSubscriptionView), ErrForbidden)
}
