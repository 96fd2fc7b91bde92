package cache

import (
	"context"
	"io"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bornholm/remotedav/store"
	"github.com/bornholm/remotedav/store/memory"
	"github.com/bornholm/remotedav/store/testsuite"
	"github.com/pkg/errors"
)

type countingStore struct {
	store.Store
	stats atomic.Int64
	lists atomic.Int64
}

func (s *countingStore) Stat(ctx context.Context, name string) (*store.Info, error) {
	s.stats.Add(1)
	return s.Store.Stat(ctx, name)
}

func (s *countingStore) List(ctx context.Context, name string) ([]string, error) {
	s.lists.Add(1)
	return s.Store.List(ctx, name)
}

func (s *countingStore) Read(ctx context.Context, name string) (io.ReadCloser, error) {
	return s.Store.Read(ctx, name)
}

func TestStore(t *testing.T) {
	c := createCache(t)
	testsuite.TestStore(t, NewStore(memory.NewStore(0), c))
}

func TestStatIsCached(t *testing.T) {
	ctx := context.Background()

	backend := &countingStore{Store: memory.NewStore(0)}
	s := NewStore(backend, createCache(t))

	if _, err := s.Write(ctx, "/file.txt", strings.NewReader("v1"), store.WriteOptions{}); err != nil {
		t.Fatalf("%+v", errors.WithStack(err))
	}

	for i := 0; i < 5; i++ {
		if _, err := s.Stat(ctx, "/file.txt"); err != nil {
			t.Fatalf("%+v", errors.WithStack(err))
		}
	}

	if e, g := int64(1), backend.stats.Load(); e != g {
		t.Errorf("backend stats: expected '%v', got '%v'", e, g)
	}

	etag, err := s.Write(ctx, "/file.txt", strings.NewReader("v2"), store.WriteOptions{})
	if err != nil {
		t.Fatalf("%+v", errors.WithStack(err))
	}

	info, err := s.Stat(ctx, "/file.txt")
	if err != nil {
		t.Fatalf("%+v", errors.WithStack(err))
	}

	if e, g := etag, info.ETag; e != g {
		t.Errorf("info.ETag after write: expected '%v', got '%v'", e, g)
	}

	if e, g := int64(2), backend.stats.Load(); e != g {
		t.Errorf("backend stats: expected '%v', got '%v'", e, g)
	}
}

func TestListingInvalidation(t *testing.T) {
	ctx := context.Background()

	backend := &countingStore{Store: memory.NewStore(0)}
	s := NewStore(backend, createCache(t))

	if err := s.Mkcol(ctx, "/dir"); err != nil {
		t.Fatalf("%+v", errors.WithStack(err))
	}

	children, err := s.ListInfo(ctx, "/dir")
	if err != nil {
		t.Fatalf("%+v", errors.WithStack(err))
	}

	if e, g := 0, len(children); e != g {
		t.Fatalf("len(children): expected '%v', got '%v'", e, g)
	}

	if _, err := s.Write(ctx, "/dir/new.txt", strings.NewReader("new"), store.WriteOptions{}); err != nil {
		t.Fatalf("%+v", errors.WithStack(err))
	}

	children, err = s.ListInfo(ctx, "/dir")
	if err != nil {
		t.Fatalf("%+v", errors.WithStack(err))
	}

	if e, g := 1, len(children); e != g {
		t.Fatalf("len(children): expected '%v', got '%v'", e, g)
	}

	if err := store.MoveTree(ctx, s, "/dir", "/moved"); err != nil {
		t.Fatalf("%+v", errors.WithStack(err))
	}

	if _, err := s.Stat(ctx, "/dir/new.txt"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("stat after tree move: expected ErrNotFound, got '%v'", err)
	}
}

// blockingStore holds Stat calls until released.
type blockingStore struct {
	store.Store
	entered chan struct{}
	release chan struct{}
}

func (s *blockingStore) Stat(ctx context.Context, name string) (*store.Info, error) {
	info, err := s.Store.Stat(ctx, name)
	s.entered <- struct{}{}
	<-s.release
	return info, err
}

func TestStaleFillDiscarded(t *testing.T) {
	ctx := context.Background()

	backend := &blockingStore{
		Store:   memory.NewStore(0),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	s := NewStore(backend, createCache(t))

	if _, err := backend.Store.Write(ctx, "/file.txt", strings.NewReader("v1"), store.WriteOptions{}); err != nil {
		t.Fatalf("%+v", errors.WithStack(err))
	}

	stale := make(chan *store.Info)
	go func() {
		info, _ := s.Stat(ctx, "/file.txt")
		stale <- info
	}()

	<-backend.entered

	etag, err := s.Write(ctx, "/file.txt", strings.NewReader("v2"), store.WriteOptions{})
	if err != nil {
		t.Fatalf("%+v", errors.WithStack(err))
	}

	close(backend.release)

	if info := <-stale; info == nil || info.ETag == etag {
		t.Fatalf("in flight stat should report the previous version, got '%v'", info)
	}

	go func() {
		for range backend.entered {
		}
	}()

	info, err := s.Stat(ctx, "/file.txt")
	if err != nil {
		t.Fatalf("%+v", errors.WithStack(err))
	}

	close(backend.entered)

	if e, g := etag, info.ETag; e != g {
		t.Errorf("info.ETag after write: expected '%v', got '%v'", e, g)
	}
}

func TestExpiry(t *testing.T) {
	ctx := context.Background()

	c, err := NewMemoryCache(50*time.Millisecond, 1000)
	if err != nil {
		t.Fatalf("%+v", errors.WithStack(err))
	}

	defer c.Close()

	c.Put(ctx, "/file.txt", &store.Info{Path: "/file.txt"})

	if _, ok := c.Get(ctx, "/file.txt"); !ok {
		t.Fatal("entry should be cached")
	}

	time.Sleep(200 * time.Millisecond)

	if _, ok := c.Get(ctx, "/file.txt"); ok {
		t.Error("entry should have expired")
	}
}

func createCache(t testing.TB) *MemoryCache {
	c, err := NewMemoryCache(time.Minute, 10000)
	if err != nil {
		t.Fatalf("%+v", errors.WithStack(err))
	}

	t.Cleanup(c.Close)

	return c
}
