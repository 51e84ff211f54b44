package entitlement

import (
	"context"
	"sort"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tubekit/tubekit-server/internal/models"
	"github.com/tubekit/tubekit-server/internal/settings"
	"gorm.io/gorm"
)

// ToolPolicy is the free-tier rule for one tool.
type ToolPolicy struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Limit        int    `json:"limit"`
	RequiresAuth bool   `json:"requires_auth"`
	SortOrder    int    `json:"-"`
}

// PolicySource resolves tool policies.
type PolicySource interface {
	Policy(ctx context.Context, toolID string) (ToolPolicy, bool)
	Policies(ctx context.Context) []ToolPolicy
}

// StaticCatalog is a fixed set of policies.
type StaticCatalog struct {
	policies map[string]ToolPolicy
}

// NewStaticCatalog builds a catalog from policies.
func NewStaticCatalog(policies ...ToolPolicy) *StaticCatalog {
	c := &StaticCatalog{policies: make(map[string]ToolPolicy, len(policies))}
	for _, p := range policies {
		c.policies[p.ID] = p
	}
	return c
}

// DefaultCatalog returns the seed tool catalog.
func DefaultCatalog() *StaticCatalog {
	return NewStaticCatalog(policiesFromTools(models.DefaultTools())...)
}

// Policy returns the policy for toolID.
func (c *StaticCatalog) Policy(_ context.Context, toolID string) (ToolPolicy, bool) {
	p, ok := c.policies[toolID]
	return p, ok
}

// Policies returns every policy in display order.
func (c *StaticCatalog) Policies(_ context.Context) []ToolPolicy {
	out := make([]ToolPolicy, 0, len(c.policies))
	for _, p := range c.policies {
		out = append(out, p)
	}
	sortPolicies(out)
	return out
}

// DBCatalog reads enabled tools from the tools table, caching them for ttl.
// When the table cannot be read, the last good snapshot (or the defaults) is served.
type DBCatalog struct {
	db       *gorm.DB
	ttl      time.Duration
	fallback *StaticCatalog
	nowFn    func() time.Time

	mu       sync.Mutex
	cached   *StaticCatalog
	loadedAt time.Time
}

// NewDBCatalog constructs a DBCatalog.
func NewDBCatalog(db *gorm.DB, ttl time.Duration) *DBCatalog {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &DBCatalog{db: db, ttl: ttl, fallback: DefaultCatalog(), nowFn: time.Now}
}

// Policy returns the policy for toolID.
func (c *DBCatalog) Policy(ctx context.Context, toolID string) (ToolPolicy, bool) {
	return c.current(ctx).Policy(ctx, toolID)
}

// Policies returns every enabled policy in display order.
func (c *DBCatalog) Policies(ctx context.Context) []ToolPolicy {
	return c.current(ctx).Policies(ctx)
}

// Invalidate forces the next lookup to reload from the database.
func (c *DBCatalog) Invalidate() {
	c.mu.Lock()
	c.loadedAt = time.Time{}
	c.mu.Unlock()
}

func (c *DBCatalog) current(ctx context.Context) *StaticCatalog {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.nowFn()
	if c.cached != nil && !c.loadedAt.IsZero() && now.Sub(c.loadedAt) < c.ttl {
		return c.cached
	}
	var rows []models.Tool
	if errFind := c.db.WithContext(ctx).Where("is_enabled = ?", true).Find(&rows).Error; errFind != nil {
		log.WithError(errFind).Warn("entitlement: load tool catalog failed, serving last snapshot")
		if c.cached != nil {
			return c.cached
		}
		return c.fallback
	}
	c.cached = NewStaticCatalog(policiesFromTools(rows)...)
	c.loadedAt = now
	return c.cached
}

func policiesFromTools(tools []models.Tool) []ToolPolicy {
	out := make([]ToolPolicy, 0, len(tools))
	for _, tool := range tools {
		if !tool.IsEnabled {
			continue
		}
		// A negative free limit defers to the site-wide default.
		limit := tool.FreeLimit
		if limit < 0 {
			limit = settings.Int(settings.DefaultFreeLimitKey, settings.DefaultFreeLimit)
		}
		out = append(out, ToolPolicy{
			ID:           tool.ID,
			Name:         tool.Name,
			Limit:        limit,
			RequiresAuth: tool.RequiresAuth,
			SortOrder:    tool.SortOrder,
		})
	}
	return out
}

func sortPolicies(policies []ToolPolicy) {
	sort.Slice(policies, func(i, j int) bool {
		if policies[i].SortOrder == policies[j].SortOrder {
			return policies[i].ID < policies[j].ID
		}
		return policies[i].SortOrder < policies[j].SortOrder
	})
}
