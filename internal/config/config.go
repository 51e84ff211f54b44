// Package config reads the YAML config file and layers environment
// overrides on top of it.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables that override values from the config file.
const (
	EnvConfigPath    = "CONFIG_PATH"
	EnvDBConnection  = "DB_CONNECTION"
	EnvJWTSecret     = "JWT_SECRET"
	EnvJWTExpiry     = "JWT_EXPIRY"
	EnvRedisAddr     = "REDIS_ADDR"
	EnvLogLevel      = "LOG_LEVEL"
	EnvVisitorSecret = "VISITOR_SECRET"
	EnvWebhookSecret = "WEBHOOK_SECRET"
)

const (
	defaultConfigFile = "./config.yaml"
	defaultJWTExpiry  = 30 * 24 * time.Hour
)

// ErrMissingDatabaseDSN means neither the file nor DB_CONNECTION names a database.
var ErrMissingDatabaseDSN = errors.New("missing database dsn (set `database-dsn` or `database.dsn` in config file, or " + EnvDBConnection + ")")

// AppConfig locates the config file for the CLI commands.
type AppConfig struct {
	ConfigPath string
}

// LoadFromEnv resolves the config path from CONFIG_PATH.
func LoadFromEnv() (AppConfig, error) {
	return AppConfig{ConfigPath: ResolveConfigPath(os.Getenv(EnvConfigPath))}, nil
}

// ResolveConfigPath returns p as an absolute path, defaulting to ./config.yaml.
func ResolveConfigPath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		p = defaultConfigFile
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return p
	}
	return abs
}

// JWTConfig holds the token signing secret and lifetime.
type JWTConfig struct {
	Secret string        `yaml:"secret"`
	Expiry time.Duration `yaml:"expiry"`
}

// document is the whole config file. Each Load function returns one view of it.
type document struct {
	DatabaseDSN string `yaml:"database-dsn"`
	Database    struct {
		DSN string `yaml:"dsn"`
	} `yaml:"database"`
	JWT          JWTConfig `yaml:"jwt"`
	ServerConfig `yaml:",inline"`
}

func (d *document) dsn() string {
	if dsn := strings.TrimSpace(d.DatabaseDSN); dsn != "" {
		return dsn
	}
	return strings.TrimSpace(d.Database.DSN)
}

// envOverride copies a non-empty environment variable onto the document.
type envOverride struct {
	name  string
	apply func(d *document, value string)
}

var envOverrides = []envOverride{
	{EnvDBConnection, func(d *document, v string) { d.DatabaseDSN = v }},
	{EnvJWTSecret, func(d *document, v string) { d.JWT.Secret = v }},
	{EnvJWTExpiry, func(d *document, v string) {
		if expiry, err := time.ParseDuration(v); err == nil && expiry > 0 {
			d.JWT.Expiry = expiry
		}
	}},
	{EnvLogLevel, func(d *document, v string) { d.Logging.Level = v }},
	{EnvVisitorSecret, func(d *document, v string) { d.Visitor.Secret = v }},
	{EnvWebhookSecret, func(d *document, v string) { d.Webhook.Secret = v }},
	{EnvRedisAddr, func(d *document, v string) { d.UsageStore.RedisAddr = v }},
}

func (d *document) applyEnv() {
	for _, override := range envOverrides {
		if value := strings.TrimSpace(os.Getenv(override.name)); value != "" {
			override.apply(d, value)
		}
	}
}

// load parses configPath and applies the environment. A missing file reads
// as an empty document so the server can run from env alone.
func load(configPath string) (document, error) {
	var doc document
	data, errRead := os.ReadFile(configPath)
	switch {
	case errRead == nil:
		if errUnmarshal := yaml.Unmarshal(data, &doc); errUnmarshal != nil {
			return document{}, fmt.Errorf("parse config file: %w", errUnmarshal)
		}
	case errors.Is(errRead, os.ErrNotExist):
	default:
		return document{}, fmt.Errorf("read config file: %w", errRead)
	}
	doc.applyEnv()
	return doc, nil
}

// LoadDatabaseDSN returns the database DSN; DB_CONNECTION wins over the file.
func LoadDatabaseDSN(configPath string) (string, error) {
	doc, err := load(configPath)
	if err != nil {
		return "", err
	}
	dsn := doc.dsn()
	if dsn == "" {
		return "", ErrMissingDatabaseDSN
	}
	return dsn, nil
}

// LoadJWTConfig returns the JWT settings. A zero expiry becomes 30 days.
func LoadJWTConfig(configPath string) (JWTConfig, error) {
	doc, err := load(configPath)
	if err != nil {
		return JWTConfig{Expiry: defaultJWTExpiry}, err
	}
	jwt := doc.JWT
	jwt.Secret = strings.TrimSpace(jwt.Secret)
	if jwt.Expiry <= 0 {
		jwt.Expiry = defaultJWTExpiry
	}
	return jwt, nil
}

// LoadServerConfig returns the server sections with env overrides and defaults applied.
func LoadServerConfig(configPath string) (ServerConfig, error) {
	doc, err := load(configPath)
	if err != nil {
		return ServerConfig{}, err
	}
	cfg := doc.ServerConfig
	if errNormalize := cfg.normalize(); errNormalize != nil {
		return ServerConfig{}, errNormalize
	}
	return cfg, nil
}
