// Package admin registers the operator API under /v0/admin.
package admin

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/tubekit/tubekit-server/internal/config"
	"github.com/tubekit/tubekit-server/internal/entitlement"
	handlers "github.com/tubekit/tubekit-server/internal/http/api/admin/handlers"
	"github.com/tubekit/tubekit-server/internal/models"
	"github.com/tubekit/tubekit-server/internal/security"
	"github.com/tubekit/tubekit-server/internal/usage"
	"gorm.io/gorm"
)

// Deps are the collaborators the admin routes need.
type Deps struct {
	DB         *gorm.DB
	JWT        config.JWTConfig
	Evaluator  *entitlement.Evaluator
	Catalog    handlers.CatalogInvalidator
	Usage      usage.Lister
	Debts      *usage.DebtLedger
	Reconciler *usage.Reconciler
}

// RegisterAdminRoutes registers admin routes, middleware, and handlers.
func RegisterAdminRoutes(r *gin.Engine, deps Deps) {
	if r == nil || deps.DB == nil || deps.Evaluator == nil {
		return
	}

	authed := r.Group("/v0/admin")
	authed.Use(adminAuthMiddleware(deps.DB, deps.JWT))

	userHandler := handlers.NewUserHandler(deps.DB)
	authed.GET("/users", userHandler.List)
	authed.GET("/users/:id", userHandler.Get)
	authed.PUT("/users/:id/entitlement", userHandler.UpdateEntitlement)
	authed.POST("/users/:id/disable", userHandler.Disable)
	authed.POST("/users/:id/enable", userHandler.Enable)
	authed.PUT("/users/:id/password", userHandler.ChangePassword)

	usageHandler := handlers.NewUsageHandler(deps.Usage, deps.Evaluator, deps.Debts, deps.Reconciler)
	authed.GET("/usage", usageHandler.List)
	authed.DELETE("/usage/:subject/:tool", usageHandler.Reset)
	authed.GET("/usage/debts", usageHandler.Debts)
	authed.POST("/usage/reconcile", usageHandler.Reconcile)

	toolHandler := handlers.NewToolHandler(deps.DB, deps.Catalog)
	authed.GET("/tools", toolHandler.List)
	authed.PUT("/tools/:id", toolHandler.Update)

	planHandler := handlers.NewPlanHandler(deps.DB)
	authed.GET("/plans", planHandler.List)
	authed.PUT("/plans/:code", planHandler.Update)

	settingHandler := handlers.NewSettingHandler(deps.DB)
	authed.POST("/settings", settingHandler.Create)
	authed.GET("/settings", settingHandler.List)
	authed.GET("/settings/:key", settingHandler.Get)
	authed.PUT("/settings/:key", settingHandler.Update)
	authed.DELETE("/settings/:key", settingHandler.Delete)

	statsHandler := handlers.NewStatsHandler(deps.DB)
	authed.GET("/stats", statsHandler.Summary)
}

// adminAuthMiddleware validates user JWTs and requires the admin role.
func adminAuthMiddleware(db *gorm.DB, jwtCfg config.JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}

		token := strings.TrimPrefix(authHeader, "Bearer ")
		if token == authHeader {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization format"})
			return
		}
		token = strings.TrimSpace(token)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "empty token"})
			return
		}

		claims, errJWT := security.ParseUserToken(jwtCfg.Secret, token)
		if errJWT != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		// Role comes from the stored user, not the token.
		var user models.User
		if errFind := db.WithContext(c.Request.Context()).First(&user, claims.UserID).Error; errFind != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
			return
		}
		if user.Disabled {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "user disabled"})
			return
		}
		if entitlement.ParseRole(user.Role) != entitlement.RoleAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin role required"})
			return
		}

		c.Set("adminID", user.ID)
		c.Set("adminEmail", user.Email)
		c.Next()
	}
}
