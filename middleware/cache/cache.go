package cache

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/bornholm/remotedav/store"
	"github.com/minio/minio-go/v7/pkg/singleflight"
)

// Store caches the metadata reported by a backend store. Contents are never
// cached.
type Store struct {
	backend          store.Store
	cache            Cache
	statSingleFlight *singleflight.Group[string, *store.Info]
	listSingleFlight *singleflight.Group[string, []*store.Info]

	// generation is bumped on every invalidation. A miss only fills the
	// cache when no invalidation happened during its backend call.
	mu         sync.Mutex
	generation uint64
}

// List implements store.Store.
func (s *Store) List(ctx context.Context, name string) ([]string, error) {
	infos, err := s.ListInfo(ctx, name)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(infos))
	for _, info := range infos {
		names = append(names, store.Base(info.Path))
	}

	return names, nil
}

// ListInfo implements store.InfoLister.
func (s *Store) ListInfo(ctx context.Context, name string) ([]*store.Info, error) {
	name = store.Join("/", name)

	if children, ok := s.cache.GetChildren(ctx, name); ok {
		slog.DebugContext(ctx, "cache hit", slog.String("name", name), slog.String("kind", "children"))
		return children, nil
	}

	children, err, _ := s.listSingleFlight.Do(name, func() ([]*store.Info, error) {
		slog.DebugContext(ctx, "cache miss", slog.String("name", name), slog.String("kind", "children"))

		generation := s.currentGeneration()

		children, err := store.ListInfo(ctx, s.backend, name)
		if err != nil {
			return nil, err
		}

		s.fill(ctx, generation, func() {
			s.cache.PutChildren(ctx, name, children)

			for _, child := range children {
				s.cache.Put(ctx, child.Path, child)
			}
		})

		return children, nil
	})

	return children, err
}

// Stat implements store.Store.
func (s *Store) Stat(ctx context.Context, name string) (*store.Info, error) {
	name = store.Join("/", name)

	if info, ok := s.cache.Get(ctx, name); ok {
		slog.DebugContext(ctx, "cache hit", slog.String("name", name), slog.String("kind", "stat"))
		return info, nil
	}

	info, err, _ := s.statSingleFlight.Do(name, func() (*store.Info, error) {
		slog.DebugContext(ctx, "cache miss", slog.String("name", name), slog.String("kind", "stat"))

		generation := s.currentGeneration()

		info, err := s.backend.Stat(ctx, name)
		if err != nil {
			return nil, err
		}

		s.fill(ctx, generation, func() {
			s.cache.Put(ctx, name, info)
		})

		return info, nil
	})

	return info, err
}

// Read implements store.Store.
func (s *Store) Read(ctx context.Context, name string) (io.ReadCloser, error) {
	return s.backend.Read(ctx, name)
}

// Write implements store.Store.
func (s *Store) Write(ctx context.Context, name string, r io.Reader, opts store.WriteOptions) (string, error) {
	defer s.invalidateWithParent(ctx, name)
	return s.backend.Write(ctx, name, r, opts)
}

// Delete implements store.Store.
func (s *Store) Delete(ctx context.Context, name string) error {
	defer s.invalidateWithParent(ctx, name)
	return s.backend.Delete(ctx, name)
}

// Mkcol implements store.Store.
func (s *Store) Mkcol(ctx context.Context, name string) error {
	defer s.invalidateWithParent(ctx, name)
	return s.backend.Mkcol(ctx, name)
}

// Move implements store.Store.
func (s *Store) Move(ctx context.Context, from, to string) error {
	defer s.invalidateWithParent(ctx, from)
	defer s.invalidateWithParent(ctx, to)
	return s.backend.Move(ctx, from, to)
}

// Copy implements store.Store.
func (s *Store) Copy(ctx context.Context, from, to string) error {
	defer s.invalidateWithParent(ctx, to)
	return s.backend.Copy(ctx, from, to)
}

// MoveTree implements store.TreeMover.
func (s *Store) MoveTree(ctx context.Context, from, to string) error {
	// Every cached descendant of the source is stale after a tree move
	defer s.purge(ctx)
	return store.MoveTree(ctx, s.backend, from, to)
}

func (s *Store) currentGeneration() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.generation
}

// fill runs put unless the cache was invalidated since generation.
func (s *Store) fill(ctx context.Context, generation uint64, put func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.generation != generation {
		slog.DebugContext(ctx, "discarding stale cache fill")
		return
	}

	put()
}

func (s *Store) purge(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.generation++
	s.cache.Purge(ctx)
}

func (s *Store) invalidateWithParent(ctx context.Context, name string) {
	name = store.Join("/", name)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.generation++

	s.cache.Invalidate(ctx, name)
	s.cache.InvalidateChildren(ctx, name)

	if store.IsRoot(name) {
		return
	}

	parent := store.Parent(name)

	// The parent listing changes and so does its modification time
	s.cache.Invalidate(ctx, parent)
	s.cache.InvalidateChildren(ctx, parent)
}

func NewStore(backend store.Store, cache Cache) *Store {
	return &Store{
		backend:          backend,
		cache:            cache,
		statSingleFlight: &singleflight.Group[string, *store.Info]{},
		listSingleFlight: &singleflight.Group[string, []*store.Info]{},
	}
}

var (
	_ store.Store      = &Store{}
	_ store.TreeMover  = &Store{}
	_ store.InfoLister = &Store{}
)
