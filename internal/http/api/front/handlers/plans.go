package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tubekit/tubekit-server/internal/entitlement"
	"github.com/tubekit/tubekit-server/internal/models"
	internalsettings "github.com/tubekit/tubekit-server/internal/settings"
	"gorm.io/gorm"
)

// PlanFrontHandler serves plan-related front endpoints.
type PlanFrontHandler struct {
	db *gorm.DB
}

// NewPlanFrontHandler constructs a PlanFrontHandler.
func NewPlanFrontHandler(db *gorm.DB) *PlanFrontHandler {
	return &PlanFrontHandler{db: db}
}

// List returns enabled plans for the pricing page.
func (h *PlanFrontHandler) List(c *gin.Context) {
	var plans []models.Plan
	if errFind := h.db.WithContext(c.Request.Context()).
		Where("is_enabled = ?", true).
		Order("sort_order ASC, created_at DESC").
		Find(&plans).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list plans failed"})
		return
	}

	out := make([]gin.H, 0, len(plans))
	for _, plan := range plans {
		features := []string{}
		if len(plan.Features) > 0 {
			_ = json.Unmarshal(plan.Features, &features)
		}
		out = append(out, gin.H{
			"code":          plan.Code,
			"name":          plan.Name,
			"price":         plan.Price,
			"currency":      plan.Currency,
			"description":   plan.Description,
			"features":      features,
			"duration_days": entitlement.ParsePlan(plan.Code).DurationDays(),
			"sort_order":    plan.SortOrder,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"site_name": internalsettings.String(internalsettings.SiteNameKey, internalsettings.DefaultSiteName),
		"plans":     out,
	})
}
