package server

import (
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/clinicsub/internal/authctx"
	obscontext "github.com/smallbiznis/clinicsub/internal/observability/context"
)

// AuthRequired verifies the bearer session token and stores the principal on the request context.
func (s *Server) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := s.sessions.ReadToken(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		principal, err := s.sessions.Verify(token)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		ctx := authctx.WithPrincipal(c.Request.Context(), principal)
		ctx = obscontext.WithActor(ctx, "user", principal.UserID)
		if principal.TenantID != 0 {
			ctx = obscontext.WithTenantID(ctx, principal.TenantID.String())
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func (s *Server) authorize(object string, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := authctx.PrincipalFromContext(c.Request.Context())
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		if s.authzSvc == nil {
			AbortWithError(c, ErrForbidden)
			return
		}
		if err := s.authzSvc.Authorize(c.Request.Context(), principal, object, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

func principalFromRequest(c *gin.Context) (authctx.Principal, bool) {
	return authctx.PrincipalFromContext(c.Request.Context())
}
