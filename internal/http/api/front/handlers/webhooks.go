package handlers

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/tubekit/tubekit-server/internal/payments"
	"gorm.io/gorm"
)

// WebhookSecretHeader carries the shared webhook secret.
const WebhookSecretHeader = "X-Webhook-Secret"

const maxWebhookBody = 1 << 20

// WebhookHandler applies payment provider notifications.
type WebhookHandler struct {
	db     *gorm.DB
	secret string
}

// NewWebhookHandler constructs a WebhookHandler.
func NewWebhookHandler(db *gorm.DB, secret string) *WebhookHandler {
	return &WebhookHandler{db: db, secret: secret}
}

// Receive handles POST /v0/webhooks/:provider.
func (h *WebhookHandler) Receive(c *gin.Context) {
	if !payments.VerifySecret(h.secret, c.GetHeader(WebhookSecretHeader)) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid webhook secret"})
		return
	}
	body, errRead := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if errRead != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "read body failed"})
		return
	}

	ev, errParse := payments.Parse(c.Param("provider"), body, time.Now())
	if errParse != nil {
		if errors.Is(errParse, payments.ErrUnknownProvider) {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown provider"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": errParse.Error()})
		return
	}

	user, errApply := payments.Apply(c.Request.Context(), h.db, ev)
	switch {
	case errApply == nil:
	case errors.Is(errApply, payments.ErrDuplicateEvent):
		c.JSON(http.StatusOK, gin.H{"ok": true, "duplicate": true})
		return
	case errors.Is(errApply, payments.ErrStaleEvent):
		c.JSON(http.StatusOK, gin.H{"ok": true, "stale": true})
		return
	case errors.Is(errApply, payments.ErrUnknownUser):
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	default:
		log.WithError(errApply).WithField("provider", ev.Provider).Error("apply payment event failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "apply event failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"ok":             true,
		"user_id":        user.ID,
		"plan":           user.Plan,
		"payment_status": ev.Status(),
	})
}
