package authorization

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"github.com/casbin/casbin/v2/persist"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"github.com/smallbiznis/clinicsub/internal/authctx"
	obscontext "github.com/smallbiznis/clinicsub/internal/observability/context"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	ObjectSubscription    = "subscription"
	ObjectSubscriptionLog = "subscription_log"
	ObjectPlanStatus      = "plan_status"
)

const (
	ActionSubscriptionView     = "subscription.view"
	ActionSubscriptionCreate   = "subscription.create"
	ActionSubscriptionCancel   = "subscription.cancel"
	ActionSubscriptionOverride = "subscription.override"

	ActionSubscriptionLogView = "subscription_log.view"

	ActionPlanStatusView = "plan_status.view"
)

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
}

// NewEnforcer builds the policy enforcer persisted through the gorm adapter.
func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	return newEnforcer(adapter)
}

// NewMemoryEnforcer builds an enforcer that keeps policies in memory only.
func NewMemoryEnforcer() (*casbin.SyncedEnforcer, error) {
	return newEnforcer(nil)
}

func newEnforcer(adapter persist.Adapter) (*casbin.SyncedEnforcer, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}

	var enforcer *casbin.SyncedEnforcer
	if adapter == nil {
		enforcer, err = casbin.NewSyncedEnforcer(m)
	} else {
		enforcer, err = casbin.NewSyncedEnforcer(m, adapter)
	}
	if err != nil {
		return nil, err
	}

	enforcer.EnableAutoSave(adapter != nil)
	enforcer.EnableAutoBuildRoleLinks(true)
	if adapter != nil {
		if err := enforcer.LoadPolicy(); err != nil {
			return nil, err
		}
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	if err := enforcer.BuildRoleLinks(); err != nil {
		return nil, err
	}
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, principal authctx.Principal, object string, action string) error {
	userID := strings.TrimSpace(principal.UserID)
	if userID == "" {
		return ErrInvalidActor
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}
	role := strings.ToLower(strings.TrimSpace(principal.Role))
	if role == "" {
		s.logDenied(ctx, principal, object, action, "missing_role")
		return ErrForbidden
	}

	subject := principal.Subject()
	roleName := fmt.Sprintf("role:%s", role)
	if err := s.ensureGrouping(subject, roleName); err != nil {
		return err
	}

	allowed, err := s.enforcer.Enforce(subject, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.logDenied(ctx, principal, object, action, "policy")
		return ErrForbidden
	}
	return nil
}

// ensureGrouping keeps exactly one role link per subject, following role changes in the session.
func (s *ServiceImpl) ensureGrouping(subject string, roleName string) error {
	existing, err := s.enforcer.GetFilteredGroupingPolicy(0, subject)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) < 2 {
			continue
		}
		if rule[1] != roleName {
			params := make([]interface{}, 0, len(rule))
			for _, value := range rule {
				params = append(params, value)
			}
			_, _ = s.enforcer.RemoveGroupingPolicy(params...)
		}
	}

	has, err := s.enforcer.HasGroupingPolicy(subject, roleName)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	_, err = s.enforcer.AddGroupingPolicy(subject, roleName)
	return err
}

func (s *ServiceImpl) logDenied(ctx context.Context, principal authctx.Principal, object string, action string, reason string) {
	s.log.Warn("authorization denied",
		zap.String("subject", principal.Subject()),
		zap.String("role", principal.Role),
		zap.String("tenant_id", principal.TenantID.String()),
		zap.String("object", object),
		zap.String("action", action),
		zap.String("reason", reason),
		zap.String("request_id", obscontext.RequestIDFromContext(ctx)),
	)
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		// Clinic owner permissions
		{"role:clinic_owner", ObjectSubscription, ActionSubscriptionView},
		{"role:clinic_owner", ObjectSubscription, ActionSubscriptionCreate},
		{"role:clinic_owner", ObjectSubscription, ActionSubscriptionCancel},
		{"role:clinic_owner", ObjectSubscriptionLog, ActionSubscriptionLogView},
		{"role:clinic_owner", ObjectPlanStatus, ActionPlanStatusView},

		// Admin permissions
		{"role:admin", ObjectSubscription, ActionSubscriptionView},
		{"role:admin", ObjectSubscription, ActionSubscriptionCancel},
		{"role:admin", ObjectSubscription, ActionSubscriptionOverride},
		{"role:admin", ObjectSubscriptionLog, ActionSubscriptionLogView},
		{"role:admin", ObjectPlanStatus, ActionPlanStatusView},

		// Professionals only read the plan status of their clinic
		{"role:professional", ObjectPlanStatus, ActionPlanStatusView},
	}

	for _, policy := range policies {
		has, err := enforcer.HasPolicy(policy)
		if err != nil {
			return err
		}
		if has {
			continue
		}
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	return nil
}
