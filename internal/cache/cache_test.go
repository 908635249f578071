package cache

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cablewatch/cablemap/internal/route"
	"github.com/cablewatch/cablemap/pkg/core"
)

func testRoute(maxKm float64) *route.Route {
	return route.New(core.SegmentRef{CableSystem: "sjc2", SegmentID: "s1"}, []core.Waypoint{
		{Latitude: 1, Longitude: 104, CumulativeDistanceKm: 0},
		{Latitude: 2, Longitude: 105, CumulativeDistanceKm: maxKm},
	})
}

func TestRouteCache_NewRouteCache(t *testing.T) {
	cache := NewRouteCache()

	require.NotNil(t, cache)
	assert.NotNil(t, cache.routes)
	assert.Equal(t, 0, cache.Len())
}

func TestRouteCache_SetAndGet(t *testing.T) {
	cache := NewRouteCache()
	r := testRoute(100)

	cache.Set("sjc2/s1", r)

	got, ok := cache.Get("sjc2/s1")
	require.True(t, ok, "expected to find sjc2/s1")
	assert.Same(t, r, got)
}

func TestRouteCache_Get_NotFound(t *testing.T) {
	cache := NewRouteCache()

	_, ok := cache.Get("nonexistent")
	assert.False(t, ok)
}

func TestRouteCache_SetReplacesWholesale(t *testing.T) {
	cache := NewRouteCache()
	first := testRoute(100)
	second := testRoute(250)

	cache.Set("sjc2/s1", first)
	held, _ := cache.Get("sjc2/s1")
	cache.Set("sjc2/s1", second)

	got, _ := cache.Get("sjc2/s1")
	assert.Same(t, second, got)
	// a reader holding the old route still sees the old bounds
	assert.Equal(t, 100.0, held.Bounds().MaxKm)
	assert.Equal(t, 1, cache.Len())
}

func TestRouteCache_SetNilIgnored(t *testing.T) {
	cache := NewRouteCache()
	cache.Set("sjc2/s1", testRoute(100))

	cache.Set("sjc2/s1", nil)

	got, ok := cache.Get("sjc2/s1")
	require.True(t, ok)
	assert.NotNil(t, got)
}

func TestRouteCache_Delete(t *testing.T) {
	cache := NewRouteCache()
	cache.Set("a", testRoute(1))
	cache.Set("b", testRoute(2))

	cache.Delete("a")
	_, ok := cache.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 1, cache.Len())

	cache.Delete("missing")
	assert.Equal(t, 1, cache.Len())
}

func TestRouteCache_Concurrent(t *testing.T) {
	cache := NewRouteCache()
	r := testRoute(10)
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			cache.Set("k", r)
		}()
		go func() {
			defer wg.Done()
			cache.Get("k")
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, cache.Len())
}
