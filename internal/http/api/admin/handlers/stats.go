package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tubekit/tubekit-server/internal/models"
	"gorm.io/gorm"
)

// StatsHandler serves dashboard counters.
type StatsHandler struct {
	db    *gorm.DB
	nowFn func() time.Time
}

// NewStatsHandler constructs a StatsHandler.
func NewStatsHandler(db *gorm.DB) *StatsHandler {
	return &StatsHandler{db: db, nowFn: time.Now}
}

type planCountRow struct {
	Plan  string `gorm:"column:plan"`
	Total int64  `gorm:"column:total"`
}

type toolUsageRow struct {
	ToolID   string `gorm:"column:tool_id"`
	Subjects int64  `gorm:"column:subjects"`
	Uses     int64  `gorm:"column:uses"`
}

// Summary returns users per plan, uses per tool and recent payment events.
// Usage totals come from the usage_counters table and are empty for other backends.
func (h *StatsHandler) Summary(c *gin.Context) {
	ctx := c.Request.Context()

	var plans []planCountRow
	if errPlans := h.db.WithContext(ctx).Model(&models.User{}).
		Select("plan, COUNT(*) AS total").
		Group("plan").
		Scan(&plans).Error; errPlans != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "count users failed"})
		return
	}

	var toolsUsage []toolUsageRow
	if errUsage := h.db.WithContext(ctx).Model(&models.UsageCounter{}).
		Select("tool_id, COUNT(*) AS subjects, COALESCE(SUM(used_count), 0) AS uses").
		Group("tool_id").
		Order("tool_id ASC").
		Scan(&toolsUsage).Error; errUsage != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "sum usage failed"})
		return
	}

	since := h.nowFn().UTC().Add(-30 * 24 * time.Hour)
	var payments int64
	if errPayments := h.db.WithContext(ctx).Model(&models.PaymentEvent{}).
		Where("created_at >= ?", since).
		Count(&payments).Error; errPayments != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "count payments failed"})
		return
	}

	var openDebts int64
	if errDebts := h.db.WithContext(ctx).Model(&models.UsageDebt{}).
		Where("resolved_at IS NULL").
		Count(&openDebts).Error; errDebts != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "count debts failed"})
		return
	}

	usersByPlan := make(map[string]int64, len(plans))
	for _, row := range plans {
		usersByPlan[row.Plan] = row.Total
	}
	usage := make([]gin.H, 0, len(toolsUsage))
	for _, row := range toolsUsage {
		usage = append(usage, gin.H{"tool": row.ToolID, "subjects": row.Subjects, "uses": row.Uses})
	}
	c.JSON(http.StatusOK, gin.H{
		"users_by_plan":    usersByPlan,
		"tool_usage":       usage,
		"payments_30d":     payments,
		"open_usage_debts": openDebts,
	})
}
