package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tubekit/tubekit-server/internal/config"
	"github.com/tubekit/tubekit-server/internal/db"
	"github.com/tubekit/tubekit-server/internal/models"
	"github.com/tubekit/tubekit-server/internal/security"
	internalsettings "github.com/tubekit/tubekit-server/internal/settings"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
)

// ErrConfigExists is returned when init-config would overwrite a file.
var ErrConfigExists = errors.New("config file already exists")

// ConfigExists reports whether the config file exists at the path.
func ConfigExists(configPath string) bool {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return false
	}
	return true
}

// configFile maps YAML fields for the generated config file.
type configFile struct {
	Host        string     `yaml:"host"`
	Port        int        `yaml:"port"`
	DatabaseDSN string     `yaml:"database-dsn"`
	JWT         jwtCfg     `yaml:"jwt"`
	Visitor     secretCfg  `yaml:"visitor"`
	Webhook     secretCfg  `yaml:"webhook"`
	Logging     loggingCfg `yaml:"logging"`
	UsageStore  usageCfg   `yaml:"usage-store"`
}

type jwtCfg struct {
	Secret string `yaml:"secret"`
	Expiry string `yaml:"expiry"`
}

type secretCfg struct {
	Secret string `yaml:"secret"`
}

type loggingCfg struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type usageCfg struct {
	Backend string `yaml:"backend"`
}

// generateSecret creates a random secret string.
func generateSecret() (string, error) {
	return security.GenerateRandomString(32)
}

// WriteConfigFile writes a starter config file with fresh secrets to disk.
func WriteConfigFile(configPath string, dsn string, port int) error {
	if ConfigExists(configPath) {
		return ErrConfigExists
	}
	if strings.TrimSpace(dsn) == "" {
		dsn = "tubekit.db"
	}
	secrets := make([]string, 3)
	for i := range secrets {
		secret, errSecret := generateSecret()
		if errSecret != nil {
			return errSecret
		}
		secrets[i] = secret
	}
	cfg := configFile{
		Port:        port,
		DatabaseDSN: dsn,
		JWT:         jwtCfg{Secret: secrets[0], Expiry: "720h"},
		Visitor:     secretCfg{Secret: secrets[1]},
		Webhook:     secretCfg{Secret: secrets[2]},
		Logging:     loggingCfg{Level: "info", Format: "text"},
		UsageStore:  usageCfg{Backend: config.UsageBackendDB},
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	dir := filepath.Dir(configPath)
	if errMkdir := os.MkdirAll(dir, 0755); errMkdir != nil {
		return fmt.Errorf("create config dir: %w", errMkdir)
	}

	if errWrite := os.WriteFile(configPath, data, 0600); errWrite != nil {
		return fmt.Errorf("write config file: %w", errWrite)
	}
	log.Infof("wrote config file %s", configPath)
	return nil
}

// CreateAdminUser opens the configured database and creates an admin account.
func CreateAdminUser(cfg config.AppConfig, email, password, siteName string) error {
	conn, _, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	return CreateAdminUserWithConn(conn, email, password, siteName)
}

// CreateAdminUserWithConn creates an admin account and seeds the site name when given.
func CreateAdminUserWithConn(conn *gorm.DB, email, password, siteName string) error {
	if conn == nil {
		return fmt.Errorf("open database: nil connection")
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return fmt.Errorf("admin email is required")
	}

	hashedPassword, errHash := security.HashPassword(password)
	if errHash != nil {
		return fmt.Errorf("hash password: %w", errHash)
	}

	admin := models.User{
		Email:    email,
		Password: hashedPassword,
		Role:     models.RoleAdmin,
		Plan:     models.PlanCodeFree,
	}
	if errCreate := conn.Create(&admin).Error; errCreate != nil {
		if db.IsUniqueViolation(errCreate) {
			return fmt.Errorf("create admin: email %s already registered", email)
		}
		return fmt.Errorf("create admin: %w", errCreate)
	}

	if strings.TrimSpace(siteName) != "" {
		if errSite := upsertSiteNameSetting(conn, siteName); errSite != nil {
			return errSite
		}
	}
	log.WithField("user_id", admin.ID).Info("admin user created")
	return nil
}

// upsertSiteNameSetting stores the SITE_NAME setting in the database.
func upsertSiteNameSetting(conn *gorm.DB, siteName string) error {
	payload, errMarshal := json.Marshal(strings.TrimSpace(siteName))
	if errMarshal != nil {
		return fmt.Errorf("db: marshal SITE_NAME setting: %w", errMarshal)
	}
	value := string(payload)

	now := time.Now().UTC()
	res := conn.Model(&models.Setting{}).Where("key = ?", internalsettings.SiteNameKey).
		Updates(map[string]any{
			"value":      value,
			"updated_at": now,
		})
	if res.Error != nil {
		return fmt.Errorf("db: update SITE_NAME setting: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}

	setting := models.Setting{
		Key:       internalsettings.SiteNameKey,
		Value:     value,
		UpdatedAt: now,
	}
	if errCreate := conn.Create(&setting).Error; errCreate != nil {
		return fmt.Errorf("db: create SITE_NAME setting: %w", errCreate)
	}
	return nil
}
