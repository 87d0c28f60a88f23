package config

import "time"

// StoreConfig configures the record store.
type StoreConfig struct {
	Dir         string `yaml:"dir"`          // root holding one directory per feedback type
	LockTimeout string `yaml:"lock_timeout"` // wait for a record lock before failing
	CacheTTL    string `yaml:"cache_ttl"`    // lifetime of id→partition hints
}

// GetLockTimeout returns the record lock timeout as a duration.
func (c *Config) GetLockTimeout() time.Duration {
	d, err := time.ParseDuration(c.Store.LockTimeout)
	if err != nil || d <= 0 {
		return 5 * time.Second
	}
	return d
}

// GetCacheTTL returns the location cache TTL as a duration.
func (c *Config) GetCacheTTL() time.Duration {
	d, err := time.ParseDuration(c.Store.CacheTTL)
	if err != nil || d <= 0 {
		return 10 * time.Minute
	}
	return d
}
