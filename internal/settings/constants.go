package settings

import "time"

// DB config keys and defaults for settings.
const (
	// SiteNameKey is the DB config key for the UI site name.
	SiteNameKey = "SITE_NAME"
	// DefaultSiteName is the fallback UI site name.
	DefaultSiteName = "TubeKit"
	// DefaultFreeLimitKey is the limit applied to tools without an explicit free limit.
	DefaultFreeLimitKey = "DEFAULT_FREE_LIMIT"
	// AnonRateLimitKey is the number of anonymous lookups allowed per window.
	AnonRateLimitKey = "ANON_RATE_LIMIT"
	// AnonRateLimitWindowSecondsKey is the anonymous lookup window length.
	AnonRateLimitWindowSecondsKey = "ANON_RATE_LIMIT_WINDOW_SECONDS"
	// UserRateLimitKey is the number of lookups allowed per window for signed-in users (0 disables).
	UserRateLimitKey = "USER_RATE_LIMIT"
	// RateLimitRedisEnabledKey toggles Redis-backed rate limiting.
	RateLimitRedisEnabledKey = "RATE_LIMIT_REDIS_ENABLED"
	// RateLimitRedisAddrKey defines the Redis address for rate limiting.
	RateLimitRedisAddrKey = "RATE_LIMIT_REDIS_ADDR"
	// RateLimitRedisPasswordKey defines the Redis password for rate limiting.
	RateLimitRedisPasswordKey = "RATE_LIMIT_REDIS_PASSWORD"
	// RateLimitRedisDBKey defines the Redis DB index for rate limiting.
	RateLimitRedisDBKey = "RATE_LIMIT_REDIS_DB"
	// RateLimitRedisPrefixKey defines the Redis key prefix for rate limiting.
	RateLimitRedisPrefixKey = "RATE_LIMIT_REDIS_PREFIX"
	// ReconcileIntervalSecondsKey controls how often usage debts are replayed.
	ReconcileIntervalSecondsKey = "RECONCILE_INTERVAL_SECONDS"

	// DefaultFreeLimit is the fallback free limit per tool.
	DefaultFreeLimit = 3
	// DefaultAnonRateLimit is the fallback anonymous lookup limit.
	DefaultAnonRateLimit = 2
	// DefaultAnonRateLimitWindowSeconds is one day.
	DefaultAnonRateLimitWindowSeconds = 24 * 60 * 60
	// DefaultUserRateLimit is the fallback signed-in lookup limit (0 means unlimited).
	DefaultUserRateLimit = 0
	// DefaultRateLimitRedisPrefix is the fallback Redis key prefix.
	DefaultRateLimitRedisPrefix = "tubekit:rl"
	// DefaultReconcileIntervalSeconds is the fallback reconcile interval.
	DefaultReconcileIntervalSeconds = 60

	// DefaultRefreshInterval is how often the snapshot is reloaded from the settings table.
	DefaultRefreshInterval = 30 * time.Second
)

// Defaults lists the seed values written by migrations when a key is absent.
func Defaults() map[string]any {
	return map[string]any{
		SiteNameKey:                   DefaultSiteName,
		DefaultFreeLimitKey:           DefaultFreeLimit,
		AnonRateLimitKey:              DefaultAnonRateLimit,
		AnonRateLimitWindowSecondsKey: DefaultAnonRateLimitWindowSeconds,
		UserRateLimitKey:              DefaultUserRateLimit,
		RateLimitRedisEnabledKey:      false,
		RateLimitRedisPrefixKey:       DefaultRateLimitRedisPrefix,
		ReconcileIntervalSecondsKey:   DefaultReconcileIntervalSeconds,
	}
}
