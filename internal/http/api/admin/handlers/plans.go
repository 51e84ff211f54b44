package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tubekit/tubekit-server/internal/entitlement"
	"github.com/tubekit/tubekit-server/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// PlanHandler manages the pricing entries of the fixed plan codes.
// Codes cannot be added or removed; their durations are part of the entitlement rules.
type PlanHandler struct {
	db *gorm.DB // Database handle for plan records.
}

// NewPlanHandler constructs a plan handler.
func NewPlanHandler(db *gorm.DB) *PlanHandler {
	return &PlanHandler{db: db}
}

// normalizePlanFeatures accepts a JSON string array and drops blank entries.
func normalizePlanFeatures(raw json.RawMessage) (datatypes.JSON, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return datatypes.JSON([]byte("[]")), nil
	}
	var features []string
	if errUnmarshal := json.Unmarshal(raw, &features); errUnmarshal != nil {
		return nil, errors.New("invalid features")
	}
	cleaned := make([]string, 0, len(features))
	for _, feature := range features {
		if feature = strings.TrimSpace(feature); feature != "" {
			cleaned = append(cleaned, feature)
		}
	}
	rawFeatures, errMarshal := json.Marshal(cleaned)
	if errMarshal != nil {
		return nil, errMarshal
	}
	return datatypes.JSON(rawFeatures), nil
}

// List returns all plans ordered for display.
func (h *PlanHandler) List(c *gin.Context) {
	var plans []models.Plan
	if errFind := h.db.WithContext(c.Request.Context()).Order("sort_order ASC, id ASC").Find(&plans).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list plans failed"})
		return
	}
	out := make([]gin.H, 0, len(plans))
	for i := range plans {
		out = append(out, formatPlan(&plans[i]))
	}
	c.JSON(http.StatusOK, gin.H{"plans": out})
}

// updatePlanRequest captures the editable plan fields.
type updatePlanRequest struct {
	Name        *string         `json:"name"`        // Plan name.
	Price       *float64        `json:"price"`       // Price per period.
	Currency    *string         `json:"currency"`    // ISO currency code.
	Description *string         `json:"description"` // Plan description.
	Features    json.RawMessage `json:"features"`    // Feature list.
	SortOrder   *int            `json:"sort_order"`  // Display order.
	IsEnabled   *bool           `json:"is_enabled"`  // Offered flag.
}

// Update modifies the pricing entry of :code.
func (h *PlanHandler) Update(c *gin.Context) {
	code := strings.ToLower(strings.TrimSpace(c.Param("code")))
	if string(entitlement.ParsePlan(code)) != code {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid plan code"})
		return
	}
	var body updatePlanRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	updates := map[string]any{"updated_at": time.Now().UTC()}
	if body.Name != nil {
		name := strings.TrimSpace(*body.Name)
		if name == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
			return
		}
		updates["name"] = name
	}
	if body.Price != nil {
		if *body.Price < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "price must be non-negative"})
			return
		}
		updates["price"] = *body.Price
	}
	if body.Currency != nil {
		updates["currency"] = strings.ToUpper(strings.TrimSpace(*body.Currency))
	}
	if body.Description != nil {
		updates["description"] = *body.Description
	}
	if body.Features != nil {
		features, errFeatures := normalizePlanFeatures(body.Features)
		if errFeatures != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": errFeatures.Error()})
			return
		}
		updates["features"] = features
	}
	if body.SortOrder != nil {
		updates["sort_order"] = *body.SortOrder
	}
	if body.IsEnabled != nil {
		updates["is_enabled"] = *body.IsEnabled
	}

	res := h.db.WithContext(c.Request.Context()).Model(&models.Plan{}).Where("code = ?", code).Updates(updates)
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update plan failed"})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func formatPlan(p *models.Plan) gin.H {
	return gin.H{
		"id":            p.ID,
		"code":          p.Code,
		"name":          p.Name,
		"price":         p.Price,
		"currency":      p.Currency,
		"description":   p.Description,
		"features":      p.Features,
		"duration_days": entitlement.ParsePlan(p.Code).DurationDays(),
		"sort_order":    p.SortOrder,
		"is_enabled":    p.IsEnabled,
		"created_at":    p.CreatedAt,
		"updated_at":    p.UpdatedAt,
	}
}
