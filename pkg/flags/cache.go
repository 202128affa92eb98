package flags

import (
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/sentichat/sentichat/pkg/apis/cache"
	"github.com/sentichat/sentichat/pkg/cache/compressed"
	"github.com/sentichat/sentichat/pkg/cache/redis"
	"github.com/sentichat/sentichat/pkg/chatstore"
)

// CacheFlags holds configuration for the chat history read cache.
type CacheFlags struct {
	RedisURL   string
	HistoryTTL time.Duration
	Compress   bool
}

func NewCacheFlags() *CacheFlags {
	return &CacheFlags{
		HistoryTTL: chatstore.DefaultHistoryCacheTTL,
		Compress:   true,
	}
}

func (f *CacheFlags) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&f.RedisURL,
		"redis-url",
		os.Getenv("REDIS_URL"),
		"Redis URL for caching chat history; caching is disabled when empty")
	fs.DurationVar(&f.HistoryTTL, "history-cache-ttl", f.HistoryTTL, "How long a user's chat history may be served from cache")
	fs.BoolVar(&f.Compress, "compress-cache", f.Compress, "Gzip chat history before writing it to redis")
}

// GetCacheClient returns nil when no redis URL is configured.
func (f *CacheFlags) GetCacheClient() (*redis.Cache, error) {
	if f.RedisURL != "" {
		return redis.NewRedisCache(f.RedisURL)
	}

	return nil, nil
}

// WrapStore layers the history cache over store when a cache client is available.
func (f *CacheFlags) WrapStore(store chatstore.Store, client *redis.Cache) chatstore.Store {
	if client == nil {
		return store
	}

	var c cache.Cache = client
	if f.Compress {
		c = compressed.NewCompressedCache(client)
	}
	return chatstore.NewCachedStore(store, c, f.HistoryTTL)
}
