// Package subject resolves who is making a request: a signed-in user with
// their entitlement, or an anonymous visitor identified by IP and cookie.
package subject

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/tubekit/tubekit-server/internal/config"
	"github.com/tubekit/tubekit-server/internal/entitlement"
	"github.com/tubekit/tubekit-server/internal/models"
	"github.com/tubekit/tubekit-server/internal/ratelimit"
	"github.com/tubekit/tubekit-server/internal/security"
	"gorm.io/gorm"
)

const contextKey = "tubekitSubject"

var (
	// ErrInvalidCredentials is returned for a bad or expired bearer token.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserDisabled is returned for disabled accounts.
	ErrUserDisabled = errors.New("user disabled")
)

// Resolver builds the request Subject.
type Resolver struct {
	db        *gorm.DB
	jwtSecret string
	visitor   config.VisitorConfig
	nowFn     func() time.Time
}

// NewResolver constructs a Resolver. An empty visitor secret falls back to the JWT secret.
func NewResolver(db *gorm.DB, jwtCfg config.JWTConfig, visitor config.VisitorConfig) *Resolver {
	if strings.TrimSpace(visitor.Secret) == "" {
		visitor.Secret = jwtCfg.Secret
	}
	return &Resolver{db: db, jwtSecret: jwtCfg.Secret, visitor: visitor, nowFn: time.Now}
}

// Resolve reads the bearer token or the visitor cookie. Anonymous callers
// without a valid cookie get a fresh one.
func (r *Resolver) Resolve(c *gin.Context) (entitlement.Subject, error) {
	clientIP := ratelimit.ClientIP(c.Request)

	if token, ok := bearerToken(c.GetHeader("Authorization")); ok {
		claims, errParse := security.ParseUserToken(r.jwtSecret, token)
		if errParse != nil {
			return entitlement.Subject{}, ErrInvalidCredentials
		}
		user, errLoad := r.loadUser(c.Request.Context(), claims.UserID)
		if errLoad != nil {
			return entitlement.Subject{}, errLoad
		}
		ent := entitlement.FromUser(user)
		return entitlement.Subject{
			UserID:      ent.UserID,
			ClientIP:    clientIP,
			Entitlement: &ent,
		}, nil
	}

	return entitlement.Subject{
		ClientIP:  clientIP,
		VisitorID: r.visitorID(c),
	}, nil
}

func (r *Resolver) loadUser(ctx context.Context, userID uint64) (models.User, error) {
	var user models.User
	if errFind := r.db.WithContext(ctx).First(&user, userID).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return models.User{}, ErrInvalidCredentials
		}
		return models.User{}, fmt.Errorf("subject: load user: %w", errFind)
	}
	if user.Disabled {
		return models.User{}, ErrUserDisabled
	}
	return user, nil
}

func (r *Resolver) visitorID(c *gin.Context) string {
	if strings.TrimSpace(r.visitor.Secret) == "" {
		return ""
	}
	if raw, errCookie := c.Cookie(r.visitor.CookieName); errCookie == nil && raw != "" {
		if id, errParse := security.ParseVisitorToken(r.visitor.Secret, raw); errParse == nil {
			return id
		}
	}
	id := security.NewVisitorID()
	token, errIssue := security.IssueVisitorToken(r.visitor.Secret, id, r.visitor.TTL, r.nowFn())
	if errIssue != nil {
		log.WithError(errIssue).Warn("subject: issue visitor token failed")
		return ""
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(r.visitor.CookieName, token, int(r.visitor.TTL.Seconds()), "/", "", r.visitor.Secure, true)
	return id
}

// Middleware resolves the subject once per request and stores it on the context.
func (r *Resolver) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		subj, errResolve := r.Resolve(c)
		if errResolve != nil {
			switch {
			case errors.Is(errResolve, ErrInvalidCredentials):
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			case errors.Is(errResolve, ErrUserDisabled):
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "user disabled"})
			default:
				log.WithError(errResolve).Error("subject: resolve failed")
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "resolve subject failed"})
			}
			return
		}
		c.Set(contextKey, subj)
		c.Next()
	}
}

// FromContext returns the subject stored by Middleware.
func FromContext(c *gin.Context) (entitlement.Subject, bool) {
	raw, ok := c.Get(contextKey)
	if !ok {
		return entitlement.Subject{}, false
	}
	subj, ok := raw.(entitlement.Subject)
	return subj, ok
}

func bearerToken(header string) (string, bool) {
	if header == "" {
		return "", false
	}
	token := strings.TrimPrefix(header, "Bearer ")
	if token == header {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
