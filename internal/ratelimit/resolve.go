package ratelimit

// ResolvePolicy picks the limit for a request. Anonymous callers get the
// anonymous limit and window; signed-in callers get the user limit over the
// same window, where 0 means they are not limited.
func ResolvePolicy(cfg SettingsConfig, authenticated bool) Policy {
	if authenticated {
		if cfg.UserLimit <= 0 {
			return Policy{Scope: ScopeNone}
		}
		return Policy{Limit: cfg.UserLimit, Window: cfg.AnonWindow, Scope: ScopeUser}
	}
	if cfg.AnonLimit <= 0 {
		return Policy{Scope: ScopeNone}
	}
	return Policy{Limit: cfg.AnonLimit, Window: cfg.AnonWindow, Scope: ScopeAnonymous}
}
