package airservice

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/couchcryptid/airwatch/internal/domain"
	"github.com/couchcryptid/airwatch/internal/observability"
)

// StationSearcher looks up monitoring stations by keyword.
type StationSearcher interface {
	SearchStations(ctx context.Context, keyword string) domain.Result[[]domain.Station]
}

// CachedStations wraps a StationSearcher with an in-memory LRU cache.
type CachedStations struct {
	inner   StationSearcher
	cache   *lruCache[[]domain.Station]
	metrics *observability.Metrics
}

// NewCachedStations creates a cache decorator around a station searcher.
func NewCachedStations(inner StationSearcher, maxEntries int, metrics *observability.Metrics) *CachedStations {
	return &CachedStations{
		inner:   inner,
		cache:   newLRUCache[[]domain.Station](maxEntries),
		metrics: metrics,
	}
}

func (c *CachedStations) SearchStations(ctx context.Context, keyword string) domain.Result[[]domain.Station] {
	key := strings.ToLower(strings.TrimSpace(keyword))
	if stations, ok := c.cache.get(key); ok {
		c.metrics.StationCache.WithLabelValues("hit").Inc()
		return domain.Ok(slices.Clone(stations))
	}
	c.metrics.StationCache.WithLabelValues("miss").Inc()

	res := c.inner.SearchStations(ctx, keyword)
	// Only cache non-empty results so a search that found nothing can be retried.
	if res.OK() && len(res.Value) > 0 {
		c.cache.put(key, slices.Clone(res.Value))
	}
	return res
}

// lruCache is a small thread-safe LRU cache.
type lruCache[V any] struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[string]*entry[V]
	head       *entry[V] // most recently used
	tail       *entry[V] // least recently used
}

type entry[V any] struct {
	key   string
	value V
	prev  *entry[V]
	next  *entry[V]
}

func newLRUCache[V any](maxEntries int) *lruCache[V] {
	if maxEntries <= 0 {
		maxEntries = 1
	}
	return &lruCache[V]{
		maxEntries: maxEntries,
		entries:    make(map[string]*entry[V]),
	}
}

func (c *lruCache[V]) get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	c.moveToFront(e)
	return e.value, true
}

func (c *lruCache[V]) put(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		c.moveToFront(e)
		return
	}

	e := &entry[V]{key: key, value: value}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

func (c *lruCache[V]) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *lruCache[V]) moveToFront(e *entry[V]) {
	if e == c.head {
		return
	}
	c.unlink(e)
	c.addToFront(e)
}

func (c *lruCache[V]) addToFront(e *entry[V]) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *lruCache[V]) unlink(e *entry[V]) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *lruCache[V]) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.unlink(c.tail)
}
