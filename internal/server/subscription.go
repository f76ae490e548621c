package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	sublogdomain "github.com/smallbiznis/clinicsub/internal/sublog/domain"
	subscriptiondomain "github.com/smallbiznis/clinicsub/internal/subscription/domain"
)

type createSubscriptionRequest struct {
	TenantID    string          `json:"tenantId" binding:"required"`
	PlanName    string          `json:"planName" binding:"required"`
	BillingType string          `json:"billingType" binding:"required"`
	Value       decimal.Decimal `json:"value"`
	Cycle       string          `json:"cycle" binding:"required"`
}

type overrideStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

func (s *Server) CreateSubscription(c *gin.Context) {
	var req createSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindingError(err))
		return
	}

	tenantID, err := snowflake.ParseString(strings.TrimSpace(req.TenantID))
	if err != nil {
		AbortWithError(c, subscriptiondomain.ErrInvalidTenant)
		return
	}

	sub, err := s.subscriptionSvc.Create(c.Request.Context(), subscriptiondomain.CreateRequest{
		TenantID:    tenantID,
		PlanName:    req.PlanName,
		BillingType: subscriptiondomain.BillingType(req.BillingType),
		Value:       req.Value,
		Cycle:       subscriptiondomain.BillingCycle(req.Cycle),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": sub})
}

// CancelSubscription takes the provider subscription id in the path.
func (s *Server) CancelSubscription(c *gin.Context) {
	sub, err := s.subscriptionSvc.Cancel(c.Request.Context(), subscriptiondomain.CancelRequest{
		ProviderSubscriptionID: c.Param("id"),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": sub})
}

func (s *Server) OverrideSubscriptionStatus(c *gin.Context) {
	id, err := snowflake.ParseString(strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, subscriptiondomain.ErrInvalidID)
		return
	}

	var req overrideStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindingError(err))
		return
	}

	sub, err := s.subscriptionSvc.OverrideStatus(c.Request.Context(), subscriptiondomain.OverrideStatusRequest{
		ID:     id,
		Status: req.Status,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": sub})
}

// GetCurrentSubscription returns the caller's latest record. Admins may pass
// tenant_id to look at any clinic.
func (s *Server) GetCurrentSubscription(c *gin.Context) {
	tenantID, ok := s.requestTenant(c)
	if !ok {
		return
	}

	sub, err := s.subscriptionSvc.GetCurrent(c.Request.Context(), tenantID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": sub})
}

func (s *Server) ListSubscriptionLogs(c *gin.Context) {
	id, err := snowflake.ParseString(strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, subscriptiondomain.ErrInvalidID)
		return
	}

	var query sublogdomain.ListRequest
	if err := c.ShouldBindQuery(&query.Pagination); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	ctx := c.Request.Context()
	// scopes the log to subscriptions the caller can see
	if _, err := s.subscriptionSvc.Get(ctx, id); err != nil {
		AbortWithError(c, err)
		return
	}

	query.SubscriptionID = id
	resp, err := s.sublogSvc.List(ctx, query)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":      resp.Entries,
		"page_info": resp.PageInfo,
	})
}

// requestTenant resolves which clinic a read is about. It aborts the request
// and returns false when no tenant can be determined.
func (s *Server) requestTenant(c *gin.Context) (snowflake.ID, bool) {
	principal, ok := principalFromRequest(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return 0, false
	}

	if principal.IsAdmin() {
		if raw := strings.TrimSpace(c.Query("tenant_id")); raw != "" {
			id, err := snowflake.ParseString(raw)
			if err != nil {
				AbortWithError(c, subscriptiondomain.ErrInvalidTenant)
				return 0, false
			}
			return id, true
		}
	}

	if principal.TenantID == 0 {
		AbortWithError(c, subscriptiondomain.ErrInvalidTenant)
		return 0, false
	}
	return principal.TenantID, true
}
