package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/clinicsub/internal/accessgate"
	"github.com/smallbiznis/clinicsub/internal/authctx"
	obstracing "github.com/smallbiznis/clinicsub/internal/observability/tracing"
	"github.com/smallbiznis/clinicsub/internal/planstatus"
	subscriptiondomain "github.com/smallbiznis/clinicsub/internal/subscription/domain"
	tenantdomain "github.com/smallbiznis/clinicsub/internal/tenant/domain"
)

// GetAccessDecision evaluates the gate for the route in ?path= against a
// freshly loaded tenant and subscription.
func (s *Server) GetAccessDecision(c *gin.Context) {
	principal, ok := principalFromRequest(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	path := strings.TrimSpace(c.Query("path"))
	if path == "" {
		path = "/"
	}

	var (
		plan      planstatus.Result
		subStatus subscriptiondomain.SubscriptionStatus
	)
	switch {
	case principal.TenantID != 0:
		in, err := s.loadPlanInput(c, principal.TenantID)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		plan = planstatus.Resolve(in, s.clock.Now())
		if in.Subscription != nil {
			subStatus = in.Subscription.Status
		}
	case principal.IsAdmin():
		plan = planstatus.Resolve(planstatus.Input{}, s.clock.Now())
	default:
		AbortWithError(c, ErrForbidden)
		return
	}

	decision := accessgate.Evaluate(accessgate.Input{
		Role:               principal.Role,
		Path:               path,
		Plan:               plan,
		SubscriptionStatus: subStatus,
	}, s.policies.Get())

	s.obsMetrics.RecordAccessDecision(c.Request.Context(), string(decision.Outcome), string(plan.Status))
	c.Set(obstracing.GinKeyAccessOutcome, string(decision.Outcome))
	c.Set(obstracing.GinKeyPlanStatus, string(plan.Status))
	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, gin.H{"data": decision})
}

func (s *Server) GetPlanStatus(c *gin.Context) {
	tenantID, ok := s.requestTenant(c)
	if !ok {
		return
	}

	in, err := s.loadPlanInput(c, tenantID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, gin.H{"data": planstatus.Resolve(in, s.clock.Now())})
}

// loadPlanInput reads the tenant and its latest subscription on every call.
// A tenant without any subscription still resolves as loaded.
func (s *Server) loadPlanInput(c *gin.Context, tenantID snowflake.ID) (planstatus.Input, error) {
	ctx := c.Request.Context()
	if principal, ok := authctx.PrincipalFromContext(ctx); ok && !principal.IsAdmin() && principal.TenantID != tenantID {
		return planstatus.Input{}, tenantdomain.ErrTenantNotFound
	}

	tenant, err := s.tenantRepo.FindByID(ctx, s.db, tenantID)
	if err != nil {
		return planstatus.Input{}, err
	}
	if tenant == nil {
		return planstatus.Input{}, tenantdomain.ErrTenantNotFound
	}

	sub, err := s.subscriptionSvc.GetCurrent(ctx, tenantID)
	if err != nil && !errors.Is(err, subscriptiondomain.ErrSubscriptionNotFound) {
		return planstatus.Input{}, err
	}

	return planstatus.Input{
		Loaded:       true,
		Tenant:       tenant,
		Subscription: sub,
	}, nil
}
