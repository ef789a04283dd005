package objectstore

import "time"

// Config configures the bucket and read cache.
type Config struct {
	// Bucket is the ObjectStore bucket name.
	Bucket string `json:"bucket" yaml:"bucket"`

	// CacheSize is the number of objects kept in memory. Zero disables the cache.
	CacheSize int `json:"cache_size" yaml:"cache_size"`

	// CacheTTL bounds how long a cached object is served.
	CacheTTL time.Duration `json:"cache_ttl" yaml:"cache_ttl"`
}

// DefaultConfig returns a config for the DEVICE_STREAMS bucket with a small
// five minute cache.
func DefaultConfig() Config {
	return Config{
		Bucket:    "DEVICE_STREAMS",
		CacheSize: 1000,
		CacheTTL:  5 * time.Minute,
	}
}
