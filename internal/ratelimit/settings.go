package ratelimit

import (
	"strings"
	"time"

	internalsettings "github.com/tubekit/tubekit-server/internal/settings"
)

// SettingsConfig captures rate limit settings stored in DB config.
type SettingsConfig struct {
	AnonLimit     int
	AnonWindow    time.Duration
	UserLimit     int
	RedisEnabled  bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
}

// LoadSettingsConfig loads the current rate limit settings snapshot.
func LoadSettingsConfig() SettingsConfig {
	windowSeconds := internalsettings.Int(internalsettings.AnonRateLimitWindowSecondsKey, internalsettings.DefaultAnonRateLimitWindowSeconds)
	if windowSeconds <= 0 {
		windowSeconds = internalsettings.DefaultAnonRateLimitWindowSeconds
	}
	cfg := SettingsConfig{
		AnonLimit:     internalsettings.Int(internalsettings.AnonRateLimitKey, internalsettings.DefaultAnonRateLimit),
		AnonWindow:    time.Duration(windowSeconds) * time.Second,
		UserLimit:     internalsettings.Int(internalsettings.UserRateLimitKey, internalsettings.DefaultUserRateLimit),
		RedisEnabled:  internalsettings.Bool(internalsettings.RateLimitRedisEnabledKey, false),
		RedisAddr:     internalsettings.String(internalsettings.RateLimitRedisAddrKey, ""),
		RedisPassword: internalsettings.String(internalsettings.RateLimitRedisPasswordKey, ""),
		RedisDB:       internalsettings.Int(internalsettings.RateLimitRedisDBKey, 0),
		RedisPrefix:   internalsettings.String(internalsettings.RateLimitRedisPrefixKey, internalsettings.DefaultRateLimitRedisPrefix),
	}
	cfg.RedisAddr = strings.TrimSpace(cfg.RedisAddr)
	cfg.RedisPrefix = strings.TrimSpace(cfg.RedisPrefix)
	if cfg.RedisPrefix == "" {
		cfg.RedisPrefix = internalsettings.DefaultRateLimitRedisPrefix
	}
	return cfg
}
