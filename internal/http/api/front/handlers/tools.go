package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/tubekit/tubekit-server/internal/entitlement"
	"github.com/tubekit/tubekit-server/internal/subject"
	"github.com/tubekit/tubekit-server/internal/tools"
)

// ToolHandler runs metered tools behind the entitlement check.
type ToolHandler struct {
	evaluator *entitlement.Evaluator
	registry  *tools.Registry
}

// NewToolHandler constructs a ToolHandler.
func NewToolHandler(evaluator *entitlement.Evaluator, registry *tools.Registry) *ToolHandler {
	return &ToolHandler{evaluator: evaluator, registry: registry}
}

// Run checks the quota, runs the tool and reserves the use before answering.
func (h *ToolHandler) Run(c *gin.Context) {
	toolID := strings.TrimSpace(c.Param("tool"))
	runner, ok := h.registry.Get(toolID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown tool"})
		return
	}
	var req tools.Request
	if errBind := c.ShouldBindJSON(&req); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	subj, _ := subject.FromContext(c)
	ctx := c.Request.Context()
	decision := h.evaluator.Check(ctx, subj, toolID)
	if !decision.Allowed {
		respondDenied(c, decision)
		return
	}

	result, errRun := runner.Run(ctx, req)
	if errRun != nil {
		if errors.Is(errRun, tools.ErrInvalidInput) {
			c.JSON(http.StatusBadRequest, gin.H{"error": errRun.Error()})
			return
		}
		log.WithError(errRun).WithField("tool", toolID).Error("tool run failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "tool run failed"})
		return
	}

	h.respondConsumed(c, subj, toolID, result)
}

// respondConsumed reserves the use and answers with the decision after it.
// The reservation is conditional, so a run that lost the race for the last
// use is denied. A counter failure does not fail the request; the use is
// owed as a debt.
func (h *ToolHandler) respondConsumed(c *gin.Context, subj entitlement.Subject, toolID string, result any) {
	decision, errConsume := h.evaluator.TryConsume(c.Request.Context(), subj, toolID)
	if errConsume != nil {
		log.WithError(errConsume).WithField("tool", toolID).Warn("usage not counted, owed as debt")
	}
	if !decision.Allowed {
		respondDenied(c, decision)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"tool":     toolID,
		"result":   result,
		"decision": decision,
	})
}
