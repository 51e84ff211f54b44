package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tubekit/tubekit-server/internal/config"
	dbutil "github.com/tubekit/tubekit-server/internal/db"
	"github.com/tubekit/tubekit-server/internal/entitlement"
	"github.com/tubekit/tubekit-server/internal/models"
	"github.com/tubekit/tubekit-server/internal/security"
	internalsettings "github.com/tubekit/tubekit-server/internal/settings"
	"github.com/tubekit/tubekit-server/internal/usage"
	"gorm.io/gorm"
)

type adminFixture struct {
	engine     *gin.Engine
	db         *gorm.DB
	evaluator  *entitlement.Evaluator
	adminToken string
	userToken  string
	user       models.User
}

func newAdminFixture(t *testing.T) *adminFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	conn, err := dbutil.Open(filepath.Join(t.TempDir(), "admin.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if errMigrate := dbutil.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	if errRefresh := internalsettings.Refresh(context.Background(), conn); errRefresh != nil {
		t.Fatalf("refresh: %v", errRefresh)
	}

	jwtCfg := config.JWTConfig{Secret: "admin-secret", Expiry: time.Hour}
	adminUser := models.User{Email: "root@example.com", Password: "x", Role: models.RoleAdmin}
	plainUser := models.User{Email: "plain@example.com", Password: "x", Role: models.RoleUser}
	if errCreate := conn.Create(&adminUser).Error; errCreate != nil {
		t.Fatalf("create admin: %v", errCreate)
	}
	if errCreate := conn.Create(&plainUser).Error; errCreate != nil {
		t.Fatalf("create user: %v", errCreate)
	}
	adminToken, _ := security.IssueUserToken(jwtCfg.Secret, adminUser.ID, adminUser.Role, time.Hour, time.Now())
	userToken, _ := security.IssueUserToken(jwtCfg.Secret, plainUser.ID, plainUser.Role, time.Hour, time.Now())

	store := usage.NewGormStore(conn)
	catalog := entitlement.NewDBCatalog(conn, time.Hour)
	ledger := usage.NewDebtLedger(conn)
	evaluator := entitlement.NewEvaluator(store, catalog, entitlement.WithDebtRecorder(ledger))

	r := gin.New()
	RegisterAdminRoutes(r, Deps{
		DB:         conn,
		JWT:        jwtCfg,
		Evaluator:  evaluator,
		Catalog:    catalog,
		Usage:      store,
		Debts:      ledger,
		Reconciler: usage.NewReconciler(ledger, store, time.Minute),
	})
	return &adminFixture{engine: r, db: conn, evaluator: evaluator, adminToken: adminToken, userToken: userToken, user: plainUser}
}

func (f *adminFixture) do(method, path, token string, body any) *httptest.ResponseRecorder {
	var raw []byte
	if body != nil {
		raw, _ = json.Marshal(body)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	return w
}

func (f *adminFixture) subject() entitlement.Subject {
	ent := entitlement.FromUser(f.user)
	return entitlement.Subject{UserID: ent.UserID, Entitlement: &ent}
}

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	f := newAdminFixture(t)
	if w := f.do(http.MethodGet, "/v0/admin/users", "", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}
	if w := f.do(http.MethodGet, "/v0/admin/users", f.userToken, nil); w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-admin, got %d", w.Code)
	}
	w := f.do(http.MethodGet, "/v0/admin/users", f.adminToken, nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "plain@example.com") {
		t.Fatalf("expected user list, got %d: %s", w.Code, w.Body.String())
	}
}

func TestUpdateEntitlementGrantsPrivilege(t *testing.T) {
	f := newAdminFixture(t)
	path := "/v0/admin/users/" + strconv.FormatUint(f.user.ID, 10) + "/entitlement"
	start := time.Now().UTC().Add(-time.Hour).Format(time.RFC3339)

	if w := f.do(http.MethodPut, path, f.adminToken, gin.H{"plan": "gold"}); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown plan, got %d", w.Code)
	}
	w := f.do(http.MethodPut, path, f.adminToken, gin.H{
		"plan":                    "yearly_premium",
		"payment_status":          "COMPLETED",
		"subscription_started_at": start,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"privileged":true`) {
		t.Fatalf("expected privileged user, got %s", w.Body.String())
	}

	var stored models.User
	f.db.First(&stored, f.user.ID)
	if stored.Plan != models.PlanCodeYearlyPremium || stored.SubscriptionStartedAt == nil {
		t.Fatalf("expected stored plan and start, got %+v", stored)
	}
}

func TestUsageListAndReset(t *testing.T) {
	f := newAdminFixture(t)
	ctx := context.Background()
	subj := f.subject()
	for i := 0; i < 2; i++ {
		if err := f.evaluator.Consume(ctx, subj, models.ToolTitleAnalyzer); err != nil {
			t.Fatalf("consume: %v", err)
		}
	}
	if d := f.evaluator.Check(ctx, subj, models.ToolTitleAnalyzer); d.Allowed {
		t.Fatalf("expected exhausted quota before reset, got %+v", d)
	}

	w := f.do(http.MethodGet, "/v0/admin/usage?subject=u:", f.adminToken, nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"count":2`) {
		t.Fatalf("expected counter in list, got %d: %s", w.Code, w.Body.String())
	}

	reset := f.do(http.MethodDelete, "/v0/admin/usage/"+subj.Key()+"/"+models.ToolTitleAnalyzer, f.adminToken, nil)
	if reset.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", reset.Code)
	}
	if d := f.evaluator.Check(ctx, subj, models.ToolTitleAnalyzer); !d.Allowed || d.Remaining != 2 {
		t.Fatalf("expected full quota after reset, got %+v", d)
	}

	debts := f.do(http.MethodGet, "/v0/admin/usage/debts", f.adminToken, nil)
	if debts.Code != http.StatusOK || !strings.Contains(debts.Body.String(), `"debts":[]`) {
		t.Fatalf("expected no debts, got %d: %s", debts.Code, debts.Body.String())
	}
	if w := f.do(http.MethodPost, "/v0/admin/usage/reconcile", f.adminToken, nil); w.Code != http.StatusOK {
		t.Fatalf("expected reconcile 200, got %d", w.Code)
	}
}

func TestToolUpdateInvalidatesCatalog(t *testing.T) {
	f := newAdminFixture(t)
	ctx := context.Background()
	if d := f.evaluator.Check(ctx, f.subject(), models.ToolTagGenerator); d.Limit != 5 {
		t.Fatalf("expected seeded limit 5, got %d", d.Limit)
	}

	w := f.do(http.MethodPut, "/v0/admin/tools/"+models.ToolTagGenerator, f.adminToken, gin.H{"free_limit": 1})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if d := f.evaluator.Check(ctx, f.subject(), models.ToolTagGenerator); d.Limit != 1 || d.Remaining != 1 {
		t.Fatalf("expected new limit to apply immediately, got %+v", d)
	}

	if w := f.do(http.MethodPut, "/v0/admin/tools/"+models.ToolVideoData, f.adminToken, gin.H{"is_enabled": false}); w.Code != http.StatusOK {
		t.Fatalf("expected 200 disabling tool, got %d", w.Code)
	}
	if d := f.evaluator.Check(ctx, f.subject(), models.ToolVideoData); d.Reason != entitlement.ReasonUnknownTool {
		t.Fatalf("expected disabled tool to be unknown, got %+v", d)
	}
	if w := f.do(http.MethodPut, "/v0/admin/tools/missing", f.adminToken, gin.H{"free_limit": 1}); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing tool, got %d", w.Code)
	}
}

func TestSettingsUpdateRefreshesSnapshot(t *testing.T) {
	f := newAdminFixture(t)
	path := "/v0/admin/settings/" + internalsettings.AnonRateLimitKey

	if w := f.do(http.MethodPut, path, f.adminToken, gin.H{"value": "lots"}); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid value, got %d", w.Code)
	}
	if w := f.do(http.MethodPut, path, f.adminToken, gin.H{"value": 5}); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if got := internalsettings.Int(internalsettings.AnonRateLimitKey, 0); got != 5 {
		t.Fatalf("expected snapshot value 5, got %d", got)
	}

	if w := f.do(http.MethodPut, "/v0/admin/settings/"+internalsettings.AnonRateLimitWindowSecondsKey, f.adminToken, gin.H{"value": 0}); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for zero window, got %d", w.Code)
	}
	if w := f.do(http.MethodGet, "/v0/admin/stats", f.adminToken, nil); w.Code != http.StatusOK {
		t.Fatalf("expected stats 200, got %d: %s", w.Code, w.Body.String())
	}
	if w := f.do(http.MethodPut, "/v0/admin/plans/monthly_premium", f.adminToken, gin.H{"price": 12.5, "features": []string{"Everything", " "}}); w.Code != http.StatusOK {
		t.Fatalf("expected plan update 200, got %d: %s", w.Code, w.Body.String())
	}
}
