package cache

import (
	"sync"

	"github.com/cablewatch/cablemap/internal/route"
)

// RouteCache holds the latest route per segment key. Routes are immutable, so
// a refetch replaces the entry wholesale and readers keep whatever they loaded.
type RouteCache struct {
	mu     sync.RWMutex
	routes map[string]*route.Route
}

// NewRouteCache creates a new RouteCache
func NewRouteCache() *RouteCache {
	return &RouteCache{
		routes: make(map[string]*route.Route),
	}
}

// Get retrieves the route for a segment key
func (c *RouteCache) Get(key string) (*route.Route, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.routes[key]
	return r, ok
}

// Set stores a route, replacing any previous one for the key. Nil routes are ignored.
func (c *RouteCache) Set(key string, r *route.Route) {
	if r == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.routes[key] = r
}

// Delete removes a route by key
func (c *RouteCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.routes, key)
}

// Len returns the number of cached routes
func (c *RouteCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.routes)
}
