package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/tubekit/tubekit-server/internal/entitlement"
	"github.com/tubekit/tubekit-server/internal/usage"
)

// UsageHandler exposes usage counters and reconciliation debts.
type UsageHandler struct {
	lister     usage.Lister
	evaluator  *entitlement.Evaluator
	ledger     *usage.DebtLedger
	reconciler *usage.Reconciler
}

// NewUsageHandler constructs a UsageHandler. ledger and reconciler may be nil.
func NewUsageHandler(lister usage.Lister, evaluator *entitlement.Evaluator, ledger *usage.DebtLedger, reconciler *usage.Reconciler) *UsageHandler {
	return &UsageHandler{lister: lister, evaluator: evaluator, ledger: ledger, reconciler: reconciler}
}

// usageListQuery defines filters for the usage list view.
type usageListQuery struct {
	Subject string `form:"subject"`           // Subject key prefix.
	Tool    string `form:"tool"`              // Tool ID.
	Limit   int    `form:"limit,default=100"` // Maximum rows.
}

// List returns usage counters filtered by subject prefix and tool.
func (h *UsageHandler) List(c *gin.Context) {
	if h.lister == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "usage store cannot list counters"})
		return
	}
	var q usageListQuery
	if errBind := c.ShouldBindQuery(&q); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid query"})
		return
	}
	if q.Limit < 1 || q.Limit > 1000 {
		q.Limit = 100
	}
	counters, errList := h.lister.List(c.Request.Context(), usage.ListFilter{
		SubjectPrefix: strings.TrimSpace(q.Subject),
		ToolID:        strings.TrimSpace(q.Tool),
		Limit:         q.Limit,
	})
	if errList != nil {
		log.WithError(errList).Error("admin: list usage failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "list usage failed"})
		return
	}
	out := make([]gin.H, 0, len(counters))
	for _, counter := range counters {
		out = append(out, gin.H{
			"subject":    counter.SubjectKey,
			"tool":       counter.ToolID,
			"count":      counter.Count,
			"updated_at": counter.UpdatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"usage": out})
}

// Reset clears one subject's counter for one tool.
func (h *UsageHandler) Reset(c *gin.Context) {
	subjectKey := strings.TrimSpace(c.Param("subject"))
	toolID := strings.TrimSpace(c.Param("tool"))
	if subjectKey == "" || toolID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "subject and tool are required"})
		return
	}
	if errReset := h.evaluator.Reset(c.Request.Context(), subjectKey, toolID); errReset != nil {
		log.WithError(errReset).Error("admin: reset usage failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "reset failed"})
		return
	}
	c.Status(http.StatusNoContent)
}

// Debts lists unresolved reconciliation debts.
func (h *UsageHandler) Debts(c *gin.Context) {
	if h.ledger == nil {
		c.JSON(http.StatusOK, gin.H{"debts": []gin.H{}})
		return
	}
	limit, errLimit := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if errLimit != nil || limit < 1 || limit > 1000 {
		limit = 100
	}
	rows, errOpen := h.ledger.Open(c.Request.Context(), limit)
	if errOpen != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list debts failed"})
		return
	}
	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		out = append(out, gin.H{
			"id":         row.ID,
			"subject":    row.SubjectKey,
			"tool":       row.ToolID,
			"amount":     row.Amount,
			"attempts":   row.Attempts,
			"last_error": row.LastError,
			"created_at": row.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"debts": out})
}

// Reconcile runs one reconciliation pass now.
func (h *UsageHandler) Reconcile(c *gin.Context) {
	if h.reconciler == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "reconciler not configured"})
		return
	}
	replayed, errPass := h.reconciler.ReconcileOnce(c.Request.Context())
	if errPass != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "reconcile failed", "replayed": replayed})
		return
	}
	c.JSON(http.StatusOK, gin.H{"replayed": replayed})
}
