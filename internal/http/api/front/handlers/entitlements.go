package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/tubekit/tubekit-server/internal/entitlement"
	"github.com/tubekit/tubekit-server/internal/subject"
)

// EntitlementHandler reports quota state for the current subject.
type EntitlementHandler struct {
	evaluator *entitlement.Evaluator
}

// NewEntitlementHandler constructs an EntitlementHandler.
func NewEntitlementHandler(evaluator *entitlement.Evaluator) *EntitlementHandler {
	return &EntitlementHandler{evaluator: evaluator}
}

// List returns one decision per enabled tool.
func (h *EntitlementHandler) List(c *gin.Context) {
	subj, _ := subject.FromContext(c)
	c.JSON(http.StatusOK, gin.H{
		"anonymous": subj.IsAnonymous(),
		"tools":     h.evaluator.Status(c.Request.Context(), subj),
	})
}

// Get returns the decision for one tool.
func (h *EntitlementHandler) Get(c *gin.Context) {
	toolID := strings.TrimSpace(c.Param("tool"))
	subj, _ := subject.FromContext(c)
	decision := h.evaluator.Check(c.Request.Context(), subj, toolID)
	if decision.Reason == entitlement.ReasonUnknownTool {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown tool"})
		return
	}
	c.JSON(http.StatusOK, decision)
}

// deniedStatus maps a denied decision to its HTTP status.
func deniedStatus(reason entitlement.Reason) int {
	switch reason {
	case entitlement.ReasonNotAuthenticated:
		return http.StatusUnauthorized
	case entitlement.ReasonQuotaExhausted:
		return http.StatusPaymentRequired
	case entitlement.ReasonRateLimited:
		return http.StatusTooManyRequests
	case entitlement.ReasonUnknownTool:
		return http.StatusNotFound
	default:
		return http.StatusForbidden
	}
}

func deniedMessage(reason entitlement.Reason) string {
	switch reason {
	case entitlement.ReasonNotAuthenticated:
		return "sign in to use this tool"
	case entitlement.ReasonQuotaExhausted:
		return "free limit reached, upgrade to continue"
	case entitlement.ReasonRateLimited:
		return "rate limit exceeded"
	case entitlement.ReasonUnknownTool:
		return "unknown tool"
	default:
		return "not allowed"
	}
}

func respondDenied(c *gin.Context, decision entitlement.Decision) {
	c.JSON(deniedStatus(decision.Reason), gin.H{
		"error":    deniedMessage(decision.Reason),
		"decision": decision,
	})
}
