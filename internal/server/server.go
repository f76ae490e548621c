package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/clinicsub/internal/accessgate"
	"github.com/smallbiznis/clinicsub/internal/auth"
	"github.com/smallbiznis/clinicsub/internal/auth/session"
	"github.com/smallbiznis/clinicsub/internal/authorization"
	"github.com/smallbiznis/clinicsub/internal/clock"
	"github.com/smallbiznis/clinicsub/internal/config"
	"github.com/smallbiznis/clinicsub/internal/observability"
	obsmiddleware "github.com/smallbiznis/clinicsub/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/clinicsub/internal/observability/metrics"
	obstracing "github.com/smallbiznis/clinicsub/internal/observability/tracing"
	"github.com/smallbiznis/clinicsub/internal/providers/asaas"
	"github.com/smallbiznis/clinicsub/internal/ratelimit"
	"github.com/smallbiznis/clinicsub/internal/sublog"
	sublogdomain "github.com/smallbiznis/clinicsub/internal/sublog/domain"
	"github.com/smallbiznis/clinicsub/internal/subscription"
	subscriptiondomain "github.com/smallbiznis/clinicsub/internal/subscription/domain"
	"github.com/smallbiznis/clinicsub/internal/tenant"
	tenantdomain "github.com/smallbiznis/clinicsub/internal/tenant/domain"
	"github.com/smallbiznis/clinicsub/internal/webhook"
	webhookdomain "github.com/smallbiznis/clinicsub/internal/webhook/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	authorization.Module,
	auth.Module,
	accessgate.Module,
	asaas.Module,
	ratelimit.Module,
	tenant.Module,
	sublog.Module,
	subscription.Module,
	webhook.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine          *gin.Engine
	cfg             config.Config
	db              *gorm.DB
	clock           clock.Clock
	sessions        *session.Manager
	authzSvc        authorization.Service
	subscriptionSvc subscriptiondomain.Service
	sublogSvc       sublogdomain.Service
	webhookSvc      webhookdomain.Service
	tenantRepo      tenantdomain.Repository
	policies        *accessgate.PolicyHolder
	obsMetrics      *obsmetrics.Metrics
	limiter         *ratelimit.TenantLimiter
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	DB              *gorm.DB
	Clock           clock.Clock
	Sessions        *session.Manager
	AuthzSvc        authorization.Service
	SubscriptionSvc subscriptiondomain.Service
	SublogSvc       sublogdomain.Service
	WebhookSvc      webhookdomain.Service
	TenantRepo      tenantdomain.Repository
	Policies        *accessgate.PolicyHolder
	ObsMetrics      *obsmetrics.Metrics      `optional:"true"`
	Limiter         *ratelimit.TenantLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		db:              p.DB,
		clock:           p.Clock,
		sessions:        p.Sessions,
		authzSvc:        p.AuthzSvc,
		subscriptionSvc: p.SubscriptionSvc,
		sublogSvc:       p.SublogSvc,
		webhookSvc:      p.WebhookSvc,
		tenantRepo:      p.TenantRepo,
		policies:        p.Policies,
		obsMetrics:      p.ObsMetrics,
		limiter:         p.Limiter,
	}

	svc.RegisterRoutes()
	return svc
}

func (s *Server) RegisterRoutes() {
	s.engine.POST("/webhooks/subscription", s.ReceiveProviderWebhook)

	api := s.engine.Group("/", s.AuthRequired())

	api.GET("/access", s.GetAccessDecision)
	api.GET("/plan-status",
		s.authorize(authorization.ObjectPlanStatus, authorization.ActionPlanStatusView),
		s.GetPlanStatus,
	)

	subs := api.Group("/subscriptions")
	subs.POST("",
		s.authorize(authorization.ObjectSubscription, authorization.ActionSubscriptionCreate),
		s.TenantRateLimit(),
		s.CreateSubscription,
	)
	subs.GET("/current",
		s.authorize(authorization.ObjectSubscription, authorization.ActionSubscriptionView),
		s.GetCurrentSubscription,
	)
	subs.GET("/:id/logs",
		s.authorize(authorization.ObjectSubscriptionLog, authorization.ActionSubscriptionLogView),
		s.ListSubscriptionLogs,
	)
	subs.POST("/:id/cancel",
		s.authorize(authorization.ObjectSubscription, authorization.ActionSubscriptionCancel),
		s.TenantRateLimit(),
		s.CancelSubscription,
	)
	subs.POST("/:id/status",
		s.authorize(authorization.ObjectSubscription, authorization.ActionSubscriptionOverride),
		s.OverrideSubscriptionStatus,
	)
}
