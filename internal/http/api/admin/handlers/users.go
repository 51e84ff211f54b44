package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	dbutil "github.com/tubekit/tubekit-server/internal/db"
	"github.com/tubekit/tubekit-server/internal/entitlement"
	"github.com/tubekit/tubekit-server/internal/models"
	"github.com/tubekit/tubekit-server/internal/security"
	"gorm.io/gorm"
)

// UserHandler manages user account endpoints.
type UserHandler struct {
	db    *gorm.DB
	nowFn func() time.Time
}

// NewUserHandler constructs a UserHandler.
func NewUserHandler(db *gorm.DB) *UserHandler {
	return &UserHandler{db: db, nowFn: time.Now}
}

// List returns users with optional filters.
func (h *UserHandler) List(c *gin.Context) {
	var (
		emailQ  = strings.TrimSpace(c.Query("email"))
		planQ   = strings.TrimSpace(c.Query("plan"))
		roleQ   = strings.TrimSpace(c.Query("role"))
		searchQ = strings.TrimSpace(c.Query("search"))
	)

	q := h.db.WithContext(c.Request.Context()).Model(&models.User{})
	if emailQ != "" {
		q = q.Where(dbutil.CaseInsensitiveLikeExpr(h.db, "email"), dbutil.LikePattern(h.db, emailQ))
	}
	if planQ != "" {
		q = q.Where("plan = ?", string(entitlement.ParsePlan(planQ)))
	}
	if roleQ != "" {
		q = q.Where("role = ?", string(entitlement.ParseRole(roleQ)))
	}
	if searchQ != "" {
		pattern := dbutil.LikePattern(h.db, searchQ)
		q = q.Where(
			dbutil.CaseInsensitiveLikeExpr(h.db, "email")+" OR "+
				dbutil.CaseInsensitiveLikeExpr(h.db, "name")+" OR CAST(id AS TEXT) LIKE ?",
			pattern,
			pattern,
			"%"+searchQ+"%",
		)
	}

	var rows []models.User
	if errFind := q.Order("created_at DESC").Find(&rows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list users failed"})
		return
	}
	now := h.nowFn()
	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		out = append(out, formatUser(row, now))
	}
	c.JSON(http.StatusOK, gin.H{"users": out})
}

// Get returns a user by ID.
func (h *UserHandler) Get(c *gin.Context) {
	user, ok := h.loadUser(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, formatUser(user, h.nowFn()))
}

// updateEntitlementRequest changes the billing and role state of a user.
// An empty subscription_started_at clears the start date.
type updateEntitlementRequest struct {
	Plan                  *string `json:"plan"`
	Role                  *string `json:"role"`
	PaymentStatus         *string `json:"payment_status"`
	SubscriptionStartedAt *string `json:"subscription_started_at"`
	Disabled              *bool   `json:"disabled"`
}

// UpdateEntitlement sets plan, role, payment status and subscription start.
func (h *UserHandler) UpdateEntitlement(c *gin.Context) {
	id, errParse := strconv.ParseUint(strings.TrimSpace(c.Param("id")), 10, 64)
	if errParse != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var body updateEntitlementRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	updates := map[string]any{"updated_at": time.Now().UTC()}
	if body.Plan != nil {
		raw := strings.ToLower(strings.TrimSpace(*body.Plan))
		plan := entitlement.ParsePlan(raw)
		if string(plan) != raw {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid plan"})
			return
		}
		updates["plan"] = string(plan)
	}
	if body.Role != nil {
		raw := strings.ToLower(strings.TrimSpace(*body.Role))
		if raw != models.RoleUser && raw != models.RoleAdmin {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid role"})
			return
		}
		updates["role"] = raw
	}
	if body.PaymentStatus != nil {
		updates["payment_status"] = strings.TrimSpace(*body.PaymentStatus)
	}
	if body.SubscriptionStartedAt != nil {
		raw := strings.TrimSpace(*body.SubscriptionStartedAt)
		if raw == "" {
			updates["subscription_started_at"] = nil
		} else {
			at, errTime := time.Parse(time.RFC3339, raw)
			if errTime != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid subscription_started_at"})
				return
			}
			updates["subscription_started_at"] = at.UTC()
		}
	}
	if body.Disabled != nil {
		updates["disabled"] = *body.Disabled
	}

	res := h.db.WithContext(c.Request.Context()).Model(&models.User{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	user, ok := h.loadUser(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, formatUser(user, h.nowFn()))
}

// Disable deactivates a user account.
func (h *UserHandler) Disable(c *gin.Context) { h.setDisabled(c, true) }

// Enable reactivates a user account.
func (h *UserHandler) Enable(c *gin.Context) { h.setDisabled(c, false) }

func (h *UserHandler) setDisabled(c *gin.Context, disabled bool) {
	id, errParse := strconv.ParseUint(strings.TrimSpace(c.Param("id")), 10, 64)
	if errParse != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	res := h.db.WithContext(c.Request.Context()).Model(&models.User{}).
		Where("id = ?", id).
		Updates(map[string]any{"disabled": disabled, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// changePasswordRequest defines the request body for password changes.
type changePasswordRequest struct {
	Password string `json:"password"`
}

// ChangePassword updates a user's password.
func (h *UserHandler) ChangePassword(c *gin.Context) {
	id, errParse := strconv.ParseUint(strings.TrimSpace(c.Param("id")), 10, 64)
	if errParse != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var body changePasswordRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	hash, errHash := security.HashPassword(body.Password)
	if errHash != nil {
		if errors.Is(errHash, security.ErrWeakPassword) {
			c.JSON(http.StatusBadRequest, gin.H{"error": errHash.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "hash password failed"})
		return
	}
	res := h.db.WithContext(c.Request.Context()).Model(&models.User{}).
		Where("id = ?", id).
		Updates(map[string]any{"password": hash, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "change password failed"})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *UserHandler) loadUser(c *gin.Context) (models.User, bool) {
	id, errParse := strconv.ParseUint(strings.TrimSpace(c.Param("id")), 10, 64)
	if errParse != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return models.User{}, false
	}
	var user models.User
	if errFind := h.db.WithContext(c.Request.Context()).First(&user, id).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return models.User{}, false
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return models.User{}, false
	}
	return user, true
}

func formatUser(user models.User, now time.Time) gin.H {
	ent := entitlement.FromUser(user)
	out := gin.H{
		"id":                      user.ID,
		"name":                    user.Name,
		"email":                   user.Email,
		"role":                    ent.Role,
		"plan":                    ent.Plan,
		"payment_status":          user.PaymentStatus,
		"payment_state":           ent.PaymentStatus,
		"subscription_started_at": user.SubscriptionStartedAt,
		"privileged":              ent.IsPrivileged(now),
		"disabled":                user.Disabled,
		"created_at":              user.CreatedAt,
		"updated_at":              user.UpdatedAt,
	}
	if end, ok := ent.SubscriptionEndsAt(); ok {
		out["subscription_ends_at"] = end
	}
	return out
}
