// Package front registers the public and signed-in user API.
package front

import (
	"github.com/gin-gonic/gin"
	"github.com/tubekit/tubekit-server/internal/config"
	"github.com/tubekit/tubekit-server/internal/entitlement"
	handlers "github.com/tubekit/tubekit-server/internal/http/api/front/handlers"
	"github.com/tubekit/tubekit-server/internal/http/middleware"
	"github.com/tubekit/tubekit-server/internal/ratelimit"
	"github.com/tubekit/tubekit-server/internal/subject"
	"github.com/tubekit/tubekit-server/internal/tools"
	"gorm.io/gorm"
)

// Deps are the collaborators the front routes need.
type Deps struct {
	DB            *gorm.DB
	JWT           config.JWTConfig
	Resolver      *subject.Resolver
	Evaluator     *entitlement.Evaluator
	Tools         *tools.Registry
	Limiter       *ratelimit.Manager
	WebhookSecret string
}

// RegisterFrontRoutes registers /healthz and the /v0 user routes.
func RegisterFrontRoutes(r *gin.Engine, deps Deps) {
	if r == nil || deps.DB == nil || deps.Evaluator == nil {
		return
	}
	if deps.Tools == nil {
		deps.Tools = tools.DefaultRegistry()
	}

	healthHandler := handlers.NewHealthHandler(deps.DB)
	r.GET("/healthz", healthHandler.Healthz)

	v0 := r.Group("/v0")

	authHandler := handlers.NewAuthHandler(deps.DB, deps.JWT)
	v0.POST("/auth/register", authHandler.Register)
	v0.POST("/auth/login", authHandler.Login)

	planHandler := handlers.NewPlanFrontHandler(deps.DB)
	v0.GET("/plans", planHandler.List)

	webhookHandler := handlers.NewWebhookHandler(deps.DB, deps.WebhookSecret)
	v0.POST("/webhooks/:provider", webhookHandler.Receive)

	scoped := v0.Group("")
	scoped.Use(deps.Resolver.Middleware())

	scoped.GET("/me", authHandler.Me)

	entitlementHandler := handlers.NewEntitlementHandler(deps.Evaluator)
	scoped.GET("/entitlements", entitlementHandler.List)
	scoped.GET("/entitlements/:tool", entitlementHandler.Get)

	toolHandler := handlers.NewToolHandler(deps.Evaluator, deps.Tools)
	scoped.POST("/tools/:tool/run", toolHandler.Run)

	videoHandler := handlers.NewVideoHandler(deps.Evaluator, deps.Tools)
	scoped.GET("/videos/:id", middleware.RateLimit(deps.Limiter, "videos"), videoHandler.Get)
}
