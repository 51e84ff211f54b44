package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tubekit/tubekit-server/internal/entitlement"
	"github.com/tubekit/tubekit-server/internal/models"
	"github.com/tubekit/tubekit-server/internal/subject"
	"github.com/tubekit/tubekit-server/internal/tools"
)

// VideoHandler serves video data lookups.
type VideoHandler struct {
	tools *ToolHandler
}

// NewVideoHandler constructs a VideoHandler.
func NewVideoHandler(evaluator *entitlement.Evaluator, registry *tools.Registry) *VideoHandler {
	return &VideoHandler{tools: NewToolHandler(evaluator, registry)}
}

// Get returns links and thumbnails for the video in :id.
// The route is expected to sit behind the client rate limiter.
func (h *VideoHandler) Get(c *gin.Context) {
	id, ok := tools.ParseVideoID(c.Param("id"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid video id"})
		return
	}
	subj, _ := subject.FromContext(c)
	decision := h.tools.evaluator.Check(c.Request.Context(), subj, models.ToolVideoData)
	if !decision.Allowed {
		respondDenied(c, decision)
		return
	}
	h.tools.respondConsumed(c, subj, models.ToolVideoData, tools.DescribeVideo(id))
}
