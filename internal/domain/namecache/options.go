package namecache

// Option configures the in-memory cache.
type Option func(*inMemoryCache)

// WithMaxSize sets how many names are kept.
// If maxSize > 0: bounded, the oldest entry is evicted first.
// If maxSize <= 0: unbounded.
func WithMaxSize(maxSize int) Option {
	return func(c *inMemoryCache) {
		c.maxSize = maxSize
	}
}
