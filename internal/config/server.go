package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Usage store backends.
const (
	UsageBackendDB     = "db"
	UsageBackendMemory = "memory"
	UsageBackendRedis  = "redis"
)

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max-size-mb"`
	MaxBackups int    `yaml:"max-backups"`
	MaxAgeDays int    `yaml:"max-age-days"`
}

// VisitorConfig controls the anonymous visitor cookie.
type VisitorConfig struct {
	Secret     string        `yaml:"secret"`
	CookieName string        `yaml:"cookie-name"`
	TTL        time.Duration `yaml:"ttl"`
	Secure     bool          `yaml:"secure"`
}

// WebhookConfig holds the shared secret payment providers send.
type WebhookConfig struct {
	Secret string `yaml:"secret"`
}

// UsageStoreConfig selects where usage counters live.
type UsageStoreConfig struct {
	Backend       string `yaml:"backend"`
	RedisAddr     string `yaml:"redis-addr"`
	RedisPassword string `yaml:"redis-password"`
	RedisDB       int    `yaml:"redis-db"`
	RedisPrefix   string `yaml:"redis-prefix"`
}

// ServerConfig is everything the HTTP server needs besides the DSN and JWT settings.
type ServerConfig struct {
	Host       string           `yaml:"host"`
	Port       int              `yaml:"port"`
	Logging    LoggingConfig    `yaml:"logging"`
	Visitor    VisitorConfig    `yaml:"visitor"`
	Webhook    WebhookConfig    `yaml:"webhook"`
	UsageStore UsageStoreConfig `yaml:"usage-store"`
}

const (
	defaultVisitorCookie = "tk_vid"
	defaultVisitorTTL    = 7 * 24 * time.Hour
)

// ErrInvalidUsageBackend is returned for an unknown usage-store.backend.
var ErrInvalidUsageBackend = errors.New("invalid usage-store backend (use db, memory or redis)")

// normalize lowercases enum fields, fills defaults and validates the usage store.
func (cfg *ServerConfig) normalize() error {
	cfg.Logging.Level = strings.ToLower(strings.TrimSpace(cfg.Logging.Level))
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	cfg.Logging.Format = strings.ToLower(strings.TrimSpace(cfg.Logging.Format))
	if cfg.Visitor.CookieName = strings.TrimSpace(cfg.Visitor.CookieName); cfg.Visitor.CookieName == "" {
		cfg.Visitor.CookieName = defaultVisitorCookie
	}
	if cfg.Visitor.TTL <= 0 {
		cfg.Visitor.TTL = defaultVisitorTTL
	}
	cfg.UsageStore.Backend = strings.ToLower(strings.TrimSpace(cfg.UsageStore.Backend))
	switch cfg.UsageStore.Backend {
	case "":
		cfg.UsageStore.Backend = UsageBackendDB
	case UsageBackendDB, UsageBackendMemory:
	case UsageBackendRedis:
		if strings.TrimSpace(cfg.UsageStore.RedisAddr) == "" {
			return fmt.Errorf("usage-store backend redis requires redis-addr or %s", EnvRedisAddr)
		}
	default:
		return ErrInvalidUsageBackend
	}
	return nil
}
