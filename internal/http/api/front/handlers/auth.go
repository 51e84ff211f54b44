package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tubekit/tubekit-server/internal/config"
	dbutil "github.com/tubekit/tubekit-server/internal/db"
	"github.com/tubekit/tubekit-server/internal/entitlement"
	"github.com/tubekit/tubekit-server/internal/models"
	"github.com/tubekit/tubekit-server/internal/security"
	"github.com/tubekit/tubekit-server/internal/subject"
	"gorm.io/gorm"
)

// AuthHandler handles sign-up and sign-in for end users.
type AuthHandler struct {
	db     *gorm.DB
	jwtCfg config.JWTConfig
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(db *gorm.DB, jwtCfg config.JWTConfig) *AuthHandler {
	return &AuthHandler{db: db, jwtCfg: jwtCfg}
}

type credentialsRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register creates a free account and returns a token.
func (h *AuthHandler) Register(c *gin.Context) {
	var body credentialsRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	email := strings.ToLower(strings.TrimSpace(body.Email))
	if email == "" || !strings.Contains(email, "@") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid email"})
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

	user := models.User{
		Name:     strings.TrimSpace(body.Name),
		Email:    email,
		Password: hash,
		Role:     models.RoleUser,
		Plan:     models.PlanCodeFree,
	}
	if errCreate := h.db.WithContext(c.Request.Context()).Create(&user).Error; errCreate != nil {
		if dbutil.IsUniqueViolation(errCreate) {
			c.JSON(http.StatusConflict, gin.H{"error": "email already registered"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create user failed"})
		return
	}
	h.respondWithToken(c, http.StatusCreated, user)
}

// Login verifies credentials and returns a token.
func (h *AuthHandler) Login(c *gin.Context) {
	var body credentialsRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	email := strings.ToLower(strings.TrimSpace(body.Email))
	if email == "" || body.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing email or password"})
		return
	}

	var user models.User
	if errFind := h.db.WithContext(c.Request.Context()).Where("email = ?", email).First(&user).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query user failed"})
		return
	}
	if !security.CheckPassword(user.Password, body.Password) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	if user.Disabled {
		c.JSON(http.StatusForbidden, gin.H{"error": "user disabled"})
		return
	}
	h.respondWithToken(c, http.StatusOK, user)
}

// Me returns the signed-in user's account and plan state.
func (h *AuthHandler) Me(c *gin.Context) {
	subj, ok := subject.FromContext(c)
	if !ok || subj.IsAnonymous() || subj.Entitlement == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}
	ent := *subj.Entitlement
	now := time.Now().UTC()
	out := gin.H{
		"user_id":        ent.UserID,
		"role":           ent.Role,
		"plan":           ent.Plan,
		"payment_status": ent.PaymentStatus,
		"privileged":     ent.IsPrivileged(now),
	}
	if ent.SubscriptionStartedAt != nil {
		out["subscription_started_at"] = ent.SubscriptionStartedAt
	}
	if end, okEnd := ent.SubscriptionEndsAt(); okEnd {
		out["subscription_ends_at"] = end
	}
	c.JSON(http.StatusOK, out)
}

func (h *AuthHandler) respondWithToken(c *gin.Context, status int, user models.User) {
	token, errToken := security.IssueUserToken(h.jwtCfg.Secret, user.ID, user.Role, h.jwtCfg.Expiry, time.Now())
	if errToken != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "issue token failed"})
		return
	}
	c.JSON(status, gin.H{
		"token": token,
		"user": gin.H{
			"id":    user.ID,
			"name":  user.Name,
			"email": user.Email,
			"role":  entitlement.ParseRole(user.Role),
			"plan":  entitlement.ParsePlan(user.Plan),
		},
	})
}
