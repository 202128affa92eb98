package cache

import "time"

// Cache is a byte-oriented key/value cache with per-entry expiry.
type Cache interface {
	Get(key string) ([]byte, error)
	Set(key string, content []byte, duration time.Duration) error
	Delete(key string) error
}
