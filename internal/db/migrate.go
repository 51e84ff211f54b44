package db

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/tubekit/tubekit-server/internal/models"
	internalsettings "github.com/tubekit/tubekit-server/internal/settings"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Migrate runs database migrations for the current dialect.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	switch DialectName(conn) {
	case DialectSQLite, DialectPostgres, "":
	default:
		return fmt.Errorf("db: unsupported dialect: %s", DialectName(conn))
	}

	if errAutoMigrate := conn.AutoMigrate(
		&models.User{},
		&models.Plan{},
		&models.Tool{},
		&models.UsageCounter{},
		&models.UsageDebt{},
		&models.PaymentEvent{},
		&models.Setting{},
	); errAutoMigrate != nil {
		return fmt.Errorf("db: migrate: %w", errAutoMigrate)
	}
	if errSeed := ensureDefaultTools(conn); errSeed != nil {
		return errSeed
	}
	if errSeed := ensureDefaultPlans(conn); errSeed != nil {
		return errSeed
	}
	if errSeed := ensureDefaultSettings(conn); errSeed != nil {
		return errSeed
	}

	// ddl defines an index or DDL statement to apply.
	type ddl struct {
		name string // Human-readable name for error reporting.
		sql  string // SQL to execute.
	}
	ddls := []ddl{
		{
			name: "idx_usage_counters_tool_updated_at",
			sql: `
				CREATE INDEX IF NOT EXISTS idx_usage_counters_tool_updated_at
				ON usage_counters (tool_id, updated_at DESC)
			`,
		},
		{
			name: "idx_usage_debts_open",
			sql: `
				CREATE INDEX IF NOT EXISTS idx_usage_debts_open
				ON usage_debts (created_at, id)
				WHERE resolved_at IS NULL
			`,
		},
		{
			name: "idx_payment_events_user_id_occurred_at",
			sql: `
				CREATE INDEX IF NOT EXISTS idx_payment_events_user_id_occurred_at
				ON payment_events (user_id, occurred_at DESC)
			`,
		},
		{
			name: "idx_tools_is_enabled_sort_order",
			sql: `
				CREATE INDEX IF NOT EXISTS idx_tools_is_enabled_sort_order
				ON tools (is_enabled, sort_order ASC)
			`,
		},
		{
			name: "idx_settings_updated_at_key",
			sql: `
				CREATE INDEX IF NOT EXISTS idx_settings_updated_at_key
				ON settings (updated_at DESC, key DESC)
			`,
		},
	}
	for _, item := range ddls {
		if errDDL := conn.Exec(item.sql).Error; errDDL != nil {
			return fmt.Errorf("db: create index %s: %w", item.name, errDDL)
		}
	}
	return nil
}

// ensureDefaultTools inserts catalog tools that do not exist yet; existing rows keep admin edits.
func ensureDefaultTools(conn *gorm.DB) error {
	for _, tool := range models.DefaultTools() {
		var count int64
		if errCount := conn.Model(&models.Tool{}).Where("id = ?", tool.ID).Count(&count).Error; errCount != nil {
			return fmt.Errorf("db: query tool %s: %w", tool.ID, errCount)
		}
		if count > 0 {
			continue
		}
		row := tool
		row.Meta = datatypes.JSON([]byte("{}"))
		if errCreate := conn.Create(&row).Error; errCreate != nil {
			return fmt.Errorf("db: create tool %s: %w", tool.ID, errCreate)
		}
	}
	return nil
}

func ensureDefaultPlans(conn *gorm.DB) error {
	var count int64
	if errCount := conn.Model(&models.Plan{}).Count(&count).Error; errCount != nil {
		return fmt.Errorf("db: count plans: %w", errCount)
	}
	if count > 0 {
		return nil
	}
	plans := []models.Plan{
		{Code: models.PlanCodeFree, Name: "Free", Description: "Limited uses per tool.", Features: datatypes.JSON([]byte(`["Tag generator: 5 uses","Title analyzer: 2 uses"]`)), SortOrder: 10, IsEnabled: true},
		{Code: models.PlanCodeMonthlyPremium, Name: "Premium Monthly", Price: 9.99, Description: "Unlimited use for 30 days.", Features: datatypes.JSON([]byte(`["Unlimited tools","Keyword research"]`)), SortOrder: 20, IsEnabled: true},
		{Code: models.PlanCodeYearlyPremium, Name: "Premium Yearly", Price: 79.99, Description: "Unlimited use for 365 days.", Features: datatypes.JSON([]byte(`["Unlimited tools","Keyword research","Two months free"]`)), SortOrder: 30, IsEnabled: true},
	}
	for i := range plans {
		plans[i].Currency = "USD"
	}
	if errCreate := conn.Create(&plans).Error; errCreate != nil {
		return fmt.Errorf("db: create plans: %w", errCreate)
	}
	return nil
}

func ensureDefaultSettings(conn *gorm.DB) error {
	defaults := internalsettings.Defaults()
	keys := make([]string, 0, len(defaults))
	for key := range defaults {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if errEnsure := ensureSetting(conn, key, defaults[key]); errEnsure != nil {
			return errEnsure
		}
	}
	return nil
}

// ensureSetting ensures a setting exists and defaults when empty.
func ensureSetting(conn *gorm.DB, key string, value any) error {
	payload, errMarshal := json.Marshal(value)
	if errMarshal != nil {
		return fmt.Errorf("db: marshal %s setting: %w", key, errMarshal)
	}
	rawValue := string(payload)

	var existing models.Setting
	if errFind := conn.Where("key = ?", key).First(&existing).Error; errFind == nil {
		trimmed := strings.TrimSpace(existing.Value)
		if len(existing.Value) == 0 || trimmed == "" || trimmed == "null" {
			if errUpdate := conn.Model(&existing).Updates(map[string]any{
				"value":      rawValue,
				"updated_at": time.Now().UTC(),
			}).Error; errUpdate != nil {
				return fmt.Errorf("db: update %s setting: %w", key, errUpdate)
			}
		}
		return nil
	} else if !errors.Is(errFind, gorm.ErrRecordNotFound) {
		return fmt.Errorf("db: query %s setting: %w", key, errFind)
	}

	setting := models.Setting{
		Key:       key,
		Value:     rawValue,
		UpdatedAt: time.Now().UTC(),
	}
	if errCreate := conn.Create(&setting).Error; errCreate != nil {
		return fmt.Errorf("db: create %s setting: %w", key, errCreate)
	}
	return nil
}
