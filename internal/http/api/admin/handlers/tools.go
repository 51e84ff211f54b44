package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tubekit/tubekit-server/internal/models"
	"gorm.io/gorm"
)

// CatalogInvalidator drops cached tool policies after an edit.
type CatalogInvalidator interface {
	Invalidate()
}

// ToolHandler manages the metered tool catalog.
type ToolHandler struct {
	db      *gorm.DB
	catalog CatalogInvalidator
}

// NewToolHandler constructs a ToolHandler. catalog may be nil.
func NewToolHandler(db *gorm.DB, catalog CatalogInvalidator) *ToolHandler {
	return &ToolHandler{db: db, catalog: catalog}
}

// List returns every tool, enabled or not.
func (h *ToolHandler) List(c *gin.Context) {
	var rows []models.Tool
	if errFind := h.db.WithContext(c.Request.Context()).Order("sort_order ASC, id ASC").Find(&rows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list tools failed"})
		return
	}
	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		out = append(out, formatTool(row))
	}
	c.JSON(http.StatusOK, gin.H{"tools": out})
}

// updateToolRequest captures editable tool fields.
type updateToolRequest struct {
	Name         *string `json:"name"`
	FreeLimit    *int    `json:"free_limit"` // Negative defers to DEFAULT_FREE_LIMIT.
	RequiresAuth *bool   `json:"requires_auth"`
	IsEnabled    *bool   `json:"is_enabled"`
	SortOrder    *int    `json:"sort_order"`
}

// Update changes limits and flags of one tool.
func (h *ToolHandler) Update(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var body updateToolRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	updates := map[string]any{"updated_at": time.Now().UTC()}
	if body.Name != nil {
		if name := strings.TrimSpace(*body.Name); name != "" {
			updates["name"] = name
		}
	}
	if body.FreeLimit != nil {
		limit := *body.FreeLimit
		if limit < 0 {
			limit = -1
		}
		updates["free_limit"] = limit
	}
	if body.RequiresAuth != nil {
		updates["requires_auth"] = *body.RequiresAuth
	}
	if body.IsEnabled != nil {
		updates["is_enabled"] = *body.IsEnabled
	}
	if body.SortOrder != nil {
		updates["sort_order"] = *body.SortOrder
	}

	res := h.db.WithContext(c.Request.Context()).Model(&models.Tool{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	if h.catalog != nil {
		h.catalog.Invalidate()
	}

	var tool models.Tool
	if errFind := h.db.WithContext(c.Request.Context()).First(&tool, "id = ?", id).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, formatTool(tool))
}

func formatTool(tool models.Tool) gin.H {
	return gin.H{
		"id":            tool.ID,
		"name":          tool.Name,
		"free_limit":    tool.FreeLimit,
		"requires_auth": tool.RequiresAuth,
		"is_enabled":    tool.IsEnabled,
		"sort_order":    tool.SortOrder,
		"meta":          tool.Meta,
		"updated_at":    tool.UpdatedAt,
	}
}
