package subject

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/tubekit/tubekit-server/internal/config"
	"github.com/tubekit/tubekit-server/internal/entitlement"
	"github.com/tubekit/tubekit-server/internal/models"
	"github.com/tubekit/tubekit-server/internal/security"
	"gorm.io/gorm"
)

func setup(t *testing.T) (*gorm.DB, *Resolver, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db, err := gorm.Open(sqlite.Open("file:"+filepath.Join(t.TempDir(), "subject.db")), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if errMigrate := db.AutoMigrate(&models.User{}); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	resolver := NewResolver(db, config.JWTConfig{Secret: "jwt-secret", Expiry: time.Hour}, config.VisitorConfig{
		CookieName: "tk_vid",
		TTL:        time.Hour,
	})
	r := gin.New()
	r.Use(resolver.Middleware())
	r.GET("/whoami", func(c *gin.Context) {
		subj, _ := FromContext(c)
		c.JSON(http.StatusOK, gin.H{"keys": subj.CounterKeys(), "anonymous": subj.IsAnonymous()})
	})
	return db, resolver, r
}

func TestResolveAnonymousIssuesVisitorCookie(t *testing.T) {
	_, _, r := setup(t)

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.5")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	cookies := w.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != "tk_vid" {
		t.Fatalf("expected visitor cookie, got %v", cookies)
	}

	req2 := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req2.Header.Set("X-Forwarded-For", "203.0.113.5")
	req2.AddCookie(cookies[0])
	w2 := httptest.NewRecorder()
	r.ServeHTTP(w2, req2)
	if len(w2.Result().Cookies()) != 0 {
		t.Fatalf("expected valid cookie to be reused")
	}
	if w.Body.String() != w2.Body.String() {
		t.Fatalf("expected same counter keys, got %s vs %s", w.Body.String(), w2.Body.String())
	}
}

func TestResolveUserLoadsEntitlement(t *testing.T) {
	db, resolver, r := setup(t)
	started := time.Now().Add(-time.Hour)
	user := models.User{Email: "a@example.com", Password: "x", Role: models.RoleUser, Plan: models.PlanCodeYearlyPremium, PaymentStatus: "paid", SubscriptionStartedAt: &started}
	if errCreate := db.Create(&user).Error; errCreate != nil {
		t.Fatalf("create user: %v", errCreate)
	}
	token, _ := security.IssueUserToken("jwt-secret", user.ID, user.Role, time.Hour, time.Now())

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/whoami", nil)
	c.Request.Header.Set("Authorization", "Bearer "+token)
	subj, err := resolver.Resolve(c)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if subj.IsAnonymous() || subj.Entitlement == nil {
		t.Fatalf("expected signed-in subject, got %+v", subj)
	}
	if subj.Entitlement.Plan != entitlement.PlanYearlyPremium || !subj.Entitlement.IsPrivileged(time.Now()) {
		t.Fatalf("expected active yearly entitlement, got %+v", subj.Entitlement)
	}

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	w2 := httptest.NewRecorder()
	r.ServeHTTP(w2, req)
	if w2.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d", w2.Code)
	}

	if errUpdate := db.Model(&user).Update("disabled", true).Error; errUpdate != nil {
		t.Fatalf("disable user: %v", errUpdate)
	}
	req3 := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req3.Header.Set("Authorization", "Bearer "+token)
	w3 := httptest.NewRecorder()
	r.ServeHTTP(w3, req3)
	if w3.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for disabled user, got %d", w3.Code)
	}
}
