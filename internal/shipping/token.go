package shipping

import (
	"strings"
	"sync"
	"time"
)

// DefaultTokenTTL is the soft expiry applied to carrier tokens. The carrier
// issues tokens valid for ten days; refreshing after nine keeps a margin.
const DefaultTokenTTL = 9 * 24 * time.Hour

// TokenCache holds a carrier auth token with a soft expiry. It is owned by
// the Client that authenticates, never package-level, so tests can drive it
// with fake clocks and tokens without cross-test leakage.
type TokenCache struct {
	mu        sync.Mutex
	token     string
	expiresAt time.Time
	ttl       time.Duration
	clock     func() time.Time
}

// NewTokenCache builds a cache with the given soft TTL. A non-positive TTL
// falls back to DefaultTokenTTL; a nil clock falls back to time.Now.
func NewTokenCache(ttl time.Duration, clock func() time.Time) *TokenCache {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	if clock == nil {
		clock = time.Now
	}
	return &TokenCache{
		ttl:   ttl,
		clock: func() time.Time { return clock().UTC() },
	}
}

// Token returns the cached token, or "" when absent or past its soft expiry.
func (c *TokenCache) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token == "" || !c.clock().Before(c.expiresAt) {
		return ""
	}
	return c.token
}

// Store replaces the cached token and restarts the expiry window.
func (c *TokenCache) Store(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.token = strings.TrimSpace(token)
	c.expiresAt = c.clock().Add(c.ttl)
}

// Invalidate drops the cached token, forcing the next caller to re-authenticate.
func (c *TokenCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.token = ""
	c.expiresAt = time.Time{}
}
