package depgraph

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// GraphBuilder builds the graph of one project root
type GraphBuilder interface {
	Build(ctx context.Context, root string) (*Graph, error)
}

// Store is the eviction policy of a Cache. Implementations must be safe for
// concurrent use.
type Store interface {
	Get(root string) (*Graph, bool)
	Add(root string, g *Graph)
	Remove(root string)
	Len() int
}

// LRUStore keeps the most recently used graphs
type LRUStore struct {
	cache *lru.Cache[string, *Graph]
}

// NewLRUStore creates a store holding at most size graphs
func NewLRUStore(size int) *LRUStore {
	if size < 1 {
		size = 1
	}
	// lru.New only fails for non-positive sizes
	cache, _ := lru.New[string, *Graph](size)
	return &LRUStore{cache: cache}
}

func (s *LRUStore) Get(root string) (*Graph, bool) { return s.cache.Get(root) }

func (s *LRUStore) Add(root string, g *Graph) { s.cache.Add(root, g) }

func (s *LRUStore) Remove(root string) { s.cache.Remove(root) }

func (s *LRUStore) Len() int { return s.cache.Len() }

// SingleSlotStore holds only the last graph built; switching roots discards it
type SingleSlotStore struct {
	mu    sync.Mutex
	root  string
	graph *Graph
}

// NewSingleSlotStore creates an empty single-slot store
func NewSingleSlotStore() *SingleSlotStore {
	return &SingleSlotStore{}
}

func (s *SingleSlotStore) Get(root string) (*Graph, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.graph == nil || s.root != root {
		return nil, false
	}
	return s.graph, true
}

func (s *SingleSlotStore) Add(root string, g *Graph) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.root, s.graph = root, g
}

func (s *SingleSlotStore) Remove(root string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.root == root {
		s.root, s.graph = "", nil
	}
}

func (s *SingleSlotStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.graph == nil {
		return 0
	}
	return 1
}

// Cache builds each project root's graph once and serves it to every file
// analyzed under that root. Concurrent requests for a root that is still
// being built wait for the same build.
type Cache struct {
	builder GraphBuilder
	store   Store
	group   singleflight.Group
	builds  atomic.Int64
}

// NewCache creates a cache. A nil store defaults to an LRU of four roots.
func NewCache(builder GraphBuilder, store Store) *Cache {
	if store == nil {
		store = NewLRUStore(4)
	}
	return &Cache{builder: builder, store: store}
}

// GetOrBuild returns the cached graph for root, building it on first use.
// A failed build is logged and yields an empty graph carrying BuildErr; it is
// not cached so a later call retries.
func (c *Cache) GetOrBuild(ctx context.Context, root string) *Graph {
	key := rootKey(root)

	if g, ok := c.store.Get(key); ok {
		return g
	}

	v, _, _ := c.group.Do(key, func() (interface{}, error) {
		if g, ok := c.store.Get(key); ok {
			return g, nil
		}

		log.Info().Str("root", key).Msg("building dependency graph")
		c.builds.Add(1)

		g, err := c.builder.Build(ctx, key)
		if err != nil {
			log.Warn().Err(err).Str("root", key).Msg("could not build dependency graph")
			empty := EmptyGraph()
			empty.BuildErr = err
			return empty, nil
		}

		c.store.Add(key, g)
		log.Info().Str("root", key).Int("files", g.Len()).Msg("dependency graph built")
		return g, nil
	})

	return v.(*Graph)
}

// Keep stores g as the graph of root until it is invalidated or evicted.
// Runs use it to pin a failed build so each file does not retry it.
func (c *Cache) Keep(root string, g *Graph) {
	c.store.Add(rootKey(root), g)
}

// Invalidate drops the cached graph of root
func (c *Cache) Invalidate(root string) {
	c.store.Remove(rootKey(root))
}

// Builds returns how many graph builds the cache has started
func (c *Cache) Builds() int64 {
	return c.builds.Load()
}

func rootKey(root string) string {
	if abs, err := filepath.Abs(root); err == nil {
		return abs
	}
	return filepath.Clean(root)
}
