// Package server is the HTTP edge: gin wiring, session middleware, and
// the JSON handlers that translate requests into service calls.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"

	authdomain "github.com/dukahub/dukahub/internal/auth/domain"
	"github.com/dukahub/dukahub/internal/auth/session"
	"github.com/dukahub/dukahub/internal/authorization"
	catalogdomain "github.com/dukahub/dukahub/internal/catalog/domain"
	"github.com/dukahub/dukahub/internal/config"
	"github.com/dukahub/dukahub/internal/observability"
	obslogger "github.com/dukahub/dukahub/internal/observability/logger"
	obsmetrics "github.com/dukahub/dukahub/internal/observability/metrics"
	obstracing "github.com/dukahub/dukahub/internal/observability/tracing"
	reportingdomain "github.com/dukahub/dukahub/internal/reporting/domain"
	salesdomain "github.com/dukahub/dukahub/internal/sales/domain"
	stockdomain "github.com/dukahub/dukahub/internal/stock/domain"
	subscriptiondomain "github.com/dukahub/dukahub/internal/subscription/domain"
	tenantdomain "github.com/dukahub/dukahub/internal/tenant/domain"
)

func NewEngine(cfg config.Config, obsCfg observability.Config) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	// CORS comes before the error middleware so denied and failed
	// requests still carry cross-origin headers.
	r.Use(corsMiddleware(cfg))
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func corsMiddleware(cfg config.Config) gin.HandlerFunc {
	corsCfg := cors.DefaultConfig()
	if len(cfg.CORSOrigins) > 0 {
		corsCfg.AllowOrigins = cfg.CORSOrigins
	} else {
		corsCfg.AllowAllOrigins = true
	}
	corsCfg.AllowCredentials = !corsCfg.AllowAllOrigins
	corsCfg.AllowHeaders = append(corsCfg.AllowHeaders, "Authorization", "X-Request-ID")
	return cors.New(corsCfg)
}

func run(lc fx.Lifecycle, r *gin.Engine) {
	srv := &http.Server{
		Addr:    ":8080",
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
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
	authsvc         authdomain.Service
	sessions        *session.Manager
	authzSvc        authorization.Service
	tenantSvc       tenantdomain.Service
	catalogSvc      catalogdomain.Service
	stockSvc        stockdomain.Service
	salesSvc        salesdomain.Service
	reportingSvc    reportingdomain.Service
	subscriptionSvc subscriptiondomain.Service
	obsMetrics      *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	Authsvc         authdomain.Service
	Sessions        *session.Manager
	AuthzSvc        authorization.Service
	TenantSvc       tenantdomain.Service
	CatalogSvc      catalogdomain.Service
	StockSvc        stockdomain.Service
	SalesSvc        salesdomain.Service
	ReportingSvc    reportingdomain.Service
	SubscriptionSvc subscriptiondomain.Service
	ObsMetrics      *obsmetrics.Metrics `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	s := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		authsvc:         p.Authsvc,
		sessions:        p.Sessions,
		authzSvc:        p.AuthzSvc,
		tenantSvc:       p.TenantSvc,
		catalogSvc:      p.CatalogSvc,
		stockSvc:        p.StockSvc,
		salesSvc:        p.SalesSvc,
		reportingSvc:    p.ReportingSvc,
		subscriptionSvc: p.SubscriptionSvc,
		obsMetrics:      p.ObsMetrics,
	}

	s.registerAuthRoutes()
	s.registerAPIRoutes()
	s.registerWebhookRoutes()

	return s
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAuthRoutes() {
	auth := s.engine.Group("/auth")

	auth.POST("/register", s.RegisterOrganization)
	auth.POST("/login", s.Login)
	auth.POST("/logout", s.Logout)
	auth.GET("/me", s.AuthRequired(), s.Me)
	auth.POST("/switch/:tenantId", s.AuthRequired(), s.SwitchTenant)
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api", s.AuthRequired())

	// -------- Tenants & members --------
	api.GET("/tenant", s.GetTenant)
	api.PATCH("/tenant/settings", s.requireAction(authorization.ActionSettingsEdit), s.UpdateSettings)
	api.GET("/branches", s.ListBranches)
	api.POST("/branches", s.requireAction(authorization.ActionSettingsEdit), s.CreateBranch)
	api.GET("/members", s.requireAction(authorization.ActionMemberManage), s.ListMembers)
	api.POST("/members", s.requireAction(authorization.ActionMemberManage), s.AddMember)
	api.PATCH("/members/:id", s.requireAction(authorization.ActionMemberManage), s.UpdateMember)
	api.DELETE("/members/:id", s.requireAction(authorization.ActionMemberManage), s.DeactivateMember)

	// -------- Catalog --------
	api.GET("/products", s.ListProducts)
	api.POST("/products", s.requireAction(authorization.ActionCatalogEdit), s.CreateProduct)
	api.GET("/products/:id", s.GetProduct)
	api.PATCH("/products/:id", s.requireAction(authorization.ActionCatalogEdit), s.UpdateProduct)
	api.DELETE("/products/:id", s.requireAction(authorization.ActionCatalogEdit), s.DeactivateProduct)
	api.GET("/categories", s.ListCategories)
	api.POST("/categories", s.requireAction(authorization.ActionCatalogEdit), s.CreateCategory)
	api.GET("/units", s.ListUnits)
	api.POST("/units", s.requireAction(authorization.ActionCatalogEdit), s.CreateUnit)

	// -------- Stock --------
	api.POST("/stock/receive", s.ReceiveStock)
	api.POST("/stock/adjust", s.AdjustStock)
	api.GET("/stock/movements", s.ListMovements)
	api.GET("/stock/low", s.LowStock)

	// -------- Sales --------
	api.POST("/sales", s.CreateSale)
	api.GET("/sales", s.ListSales)
	api.GET("/sales/:id", s.GetSale)
	api.POST("/sales/:id/receipt/email", s.MarkEmailSent)
	api.POST("/sales/:id/receipt/whatsapp", s.MarkWhatsappSent)

	// -------- Reports --------
	api.GET("/reports/dashboard", s.Dashboard)
	api.GET("/reports/price-variance", s.requireAction(authorization.ActionReportsView), s.PriceVariance)

	// -------- Subscription --------
	api.GET("/subscription", s.SubscriptionStatus)
	api.POST("/subscription/initialize", s.requireAction(authorization.ActionSubscriptionManage), s.InitializeSubscription)
	api.POST("/subscription/verify/:reference", s.VerifySubscription)
	api.POST("/subscription/branches/:branchId", s.requireAction(authorization.ActionSubscriptionManage), s.AddBranchMidCycle)
	api.POST("/subscription/cancel", s.requireAction(authorization.ActionSubscriptionManage), s.CancelSubscription)
	api.POST("/subscription/reactivate", s.requireAction(authorization.ActionSubscriptionManage), s.ReactivateSubscription)
	api.POST("/subscription/auto-renewal/enable", s.requireAction(authorization.ActionSubscriptionManage), s.EnableAutoRenewal)
	api.POST("/subscription/auto-renewal/disable", s.requireAction(authorization.ActionSubscriptionManage), s.DisableAutoRenewal)
}

func (s *Server) registerWebhookRoutes() {
	// Signature is the only authentication on this route.
	s.engine.POST("/webhooks/gateway", s.GatewayWebhook)
}

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)
