package cache

import (
	"context"
	"time"

	"github.com/bornholm/remotedav/store"
	"github.com/dgraph-io/ristretto/v2"
	"github.com/pkg/errors"
)

// Cache holds store metadata for a bounded duration.
type Cache interface {
	Get(ctx context.Context, name string) (*store.Info, bool)
	Put(ctx context.Context, name string, info *store.Info)
	Invalidate(ctx context.Context, name string)
	GetChildren(ctx context.Context, name string) ([]*store.Info, bool)
	PutChildren(ctx context.Context, name string, children []*store.Info)
	InvalidateChildren(ctx context.Context, name string)
	Purge(ctx context.Context)
}

type MemoryCache struct {
	ttl      time.Duration
	items    *ristretto.Cache[string, *store.Info]
	children *ristretto.Cache[string, []*store.Info]
}

// Get implements Cache.
func (m *MemoryCache) Get(ctx context.Context, name string) (*store.Info, bool) {
	return m.items.Get(name)
}

// Put implements Cache.
func (m *MemoryCache) Put(ctx context.Context, name string, info *store.Info) {
	m.items.SetWithTTL(name, info, 1, m.ttl)
	m.items.Wait()
}

// Invalidate implements Cache.
func (m *MemoryCache) Invalidate(ctx context.Context, name string) {
	m.items.Del(name)
}

// GetChildren implements Cache.
func (m *MemoryCache) GetChildren(ctx context.Context, name string) ([]*store.Info, bool) {
	return m.children.Get(name)
}

// PutChildren implements Cache.
func (m *MemoryCache) PutChildren(ctx context.Context, name string, children []*store.Info) {
	m.children.SetWithTTL(name, children, int64(len(children)+1), m.ttl)
	m.children.Wait()
}

// InvalidateChildren implements Cache.
func (m *MemoryCache) InvalidateChildren(ctx context.Context, name string) {
	m.children.Del(name)
}

// Purge implements Cache.
func (m *MemoryCache) Purge(ctx context.Context) {
	m.items.Clear()
	m.children.Clear()
}

func (m *MemoryCache) Close() {
	m.items.Close()
	m.children.Close()
}

// NewMemoryCache creates a cache holding up to maxEntries metadata entries
// for the given duration.
func NewMemoryCache(ttl time.Duration, maxEntries int64) (*MemoryCache, error) {
	items, err := ristretto.NewCache(&ristretto.Config[string, *store.Info]{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, errors.WithStack(err)
	}

	children, err := ristretto.NewCache(&ristretto.Config[string, []*store.Info]{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		items.Close()
		return nil, errors.WithStack(err)
	}

	return &MemoryCache{
		ttl:      ttl,
		items:    items,
		children: children,
	}, nil
}

var _ Cache = &MemoryCache{}
