package config

// CacheConfig controls the shared availability cache.  When Enabled is
// false or Redis is unreachable the engine falls back to an in-process
// cache.  Prefix namespaces the Redis keys.
type CacheConfig struct {
	Enabled bool
	Prefix  string
}

// LoadCacheConfig reads CACHE_ENABLED and CACHE_PREFIX.
func LoadCacheConfig() CacheConfig {
	return CacheConfig{
		Enabled: envBool("CACHE_ENABLED", true),
		Prefix:  envStr("CACHE_PREFIX", "avail"),
	}
}
