package memory

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bornholm/remotedav/store"
	"github.com/pkg/errors"
)

type entry struct {
	data        []byte
	modTime     time.Time
	etag        string
	contentType string
	collection  bool
}

// Store keeps every resource in memory. It is safe for concurrent use by
// multiple goroutines.
type Store struct {
	mu       sync.RWMutex
	entries  map[string]*entry
	capacity int64
	used     int64
}

// List implements [store.Store].
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

// ListInfo implements [store.InfoLister].
func (s *Store) ListInfo(ctx context.Context, name string) ([]*store.Info, error) {
	name = clean(name)

	s.mu.RLock()
	defer s.mu.RUnlock()

	e, exists := s.entries[name]
	if !exists {
		return nil, errors.WithStack(store.ErrNotFound)
	}

	if !e.collection {
		return nil, errors.Wrapf(store.ErrConflict, "'%s' is not a collection", name)
	}

	infos := make([]*store.Info, 0)
	for p, child := range s.entries {
		if p == name || store.Parent(p) != name {
			continue
		}
		infos = append(infos, child.info(p))
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Path < infos[j].Path
	})

	return infos, nil
}

// Stat implements [store.Store].
func (s *Store) Stat(ctx context.Context, name string) (*store.Info, error) {
	name = clean(name)

	s.mu.RLock()
	defer s.mu.RUnlock()

	e, exists := s.entries[name]
	if !exists {
		return nil, errors.WithStack(store.ErrNotFound)
	}

	return e.info(name), nil
}

// Read implements [store.Store].
func (s *Store) Read(ctx context.Context, name string) (io.ReadCloser, error) {
	name = clean(name)

	s.mu.RLock()
	defer s.mu.RUnlock()

	e, exists := s.entries[name]
	if !exists {
		return nil, errors.WithStack(store.ErrNotFound)
	}

	if e.collection {
		return nil, errors.Wrapf(store.ErrConflict, "'%s' is a collection", name)
	}

	return readSeekNopCloser{bytes.NewReader(e.data)}, nil
}

// Write implements [store.Store].
func (s *Store) Write(ctx context.Context, name string, r io.Reader, opts store.WriteOptions) (string, error) {
	name = clean(name)

	// Buffer outside of the critical section, the body may be slow to come
	data, err := io.ReadAll(r)
	if err != nil {
		return "", errors.WithStack(err)
	}

	if err := ctx.Err(); err != nil {
		return "", errors.WithStack(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkParent(name); err != nil {
		return "", err
	}

	existing, exists := s.entries[name]
	if exists && existing.collection {
		return "", errors.Wrapf(store.ErrConflict, "'%s' is a collection", name)
	}

	if opts.ExpectedETag != "" {
		if !exists || !store.ETagMatch(existing.etag, opts.ExpectedETag) {
			return "", errors.WithStack(store.ErrETagMismatch)
		}
	}

	var previous int64
	if exists {
		previous = int64(len(existing.data))
	}

	if s.capacity > 0 && s.used-previous+int64(len(data)) > s.capacity {
		return "", errors.Wrapf(store.ErrInsufficientStorage, "writing %d bytes would exceed capacity", len(data))
	}

	e := &entry{
		data:        data,
		modTime:     time.Now().UTC(),
		etag:        computeETag(data),
		contentType: opts.ContentType,
	}

	s.entries[name] = e
	s.used += int64(len(data)) - previous

	return e.etag, nil
}

// Delete implements [store.Store].
func (s *Store) Delete(ctx context.Context, name string) error {
	name = clean(name)

	if store.IsRoot(name) {
		return errors.Wrap(store.ErrConflict, "root collection cannot be deleted")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, exists := s.entries[name]
	if !exists {
		return errors.WithStack(store.ErrNotFound)
	}

	if e.collection && s.hasChildren(name) {
		return errors.Wrapf(store.ErrConflict, "collection '%s' is not empty", name)
	}

	delete(s.entries, name)
	s.used -= int64(len(e.data))

	return nil
}

// Mkcol implements [store.Store].
func (s *Store) Mkcol(ctx context.Context, name string) error {
	name = clean(name)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[name]; exists {
		return errors.WithStack(store.ErrExist)
	}

	if err := s.checkParent(name); err != nil {
		return err
	}

	s.entries[name] = &entry{
		modTime:    time.Now().UTC(),
		collection: true,
		etag:       computeETag([]byte(name)),
	}

	return nil
}

// Move implements [store.Store].
func (s *Store) Move(ctx context.Context, from, to string) error {
	from, to = clean(from), clean(to)

	s.mu.Lock()
	defer s.mu.Unlock()

	e, exists := s.entries[from]
	if !exists {
		return errors.WithStack(store.ErrNotFound)
	}

	if e.collection {
		return errors.Wrapf(store.ErrConflict, "'%s' is a collection", from)
	}

	if err := s.checkDestination(to); err != nil {
		return err
	}

	if previous, exists := s.entries[to]; exists {
		s.used -= int64(len(previous.data))
	}

	delete(s.entries, from)
	s.entries[to] = e

	return nil
}

// Copy implements [store.Store].
func (s *Store) Copy(ctx context.Context, from, to string) error {
	from, to = clean(from), clean(to)

	s.mu.Lock()
	defer s.mu.Unlock()

	e, exists := s.entries[from]
	if !exists {
		return errors.WithStack(store.ErrNotFound)
	}

	if e.collection {
		return errors.Wrapf(store.ErrConflict, "'%s' is a collection", from)
	}

	if err := s.checkDestination(to); err != nil {
		return err
	}

	var previous int64
	if existing, exists := s.entries[to]; exists {
		previous = int64(len(existing.data))
	}

	if s.capacity > 0 && s.used-previous+int64(len(e.data)) > s.capacity {
		return errors.Wrapf(store.ErrInsufficientStorage, "copying %d bytes would exceed capacity", len(e.data))
	}

	copied := *e
	copied.data = bytes.Clone(e.data)
	copied.modTime = time.Now().UTC()

	s.entries[to] = &copied
	s.used += int64(len(e.data)) - previous

	return nil
}

// MoveTree implements [store.TreeMover].
func (s *Store) MoveTree(ctx context.Context, from, to string) error {
	from, to = clean(from), clean(to)

	if store.IsRoot(from) || store.IsDescendant(to, from) {
		return errors.Wrapf(store.ErrConflict, "cannot move '%s' to '%s'", from, to)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[from]; !exists {
		return errors.WithStack(store.ErrNotFound)
	}

	if err := s.checkDestination(to); err != nil {
		return err
	}

	moved := make(map[string]*entry)
	for p, e := range s.entries {
		if p == from || store.IsDescendant(p, from) {
			moved[to+strings.TrimPrefix(p, from)] = e
			delete(s.entries, p)
		}
	}

	for p, e := range moved {
		s.entries[p] = e
	}

	return nil
}

// Used returns the number of content bytes currently stored.
func (s *Store) Used() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.used
}

func (s *Store) checkParent(name string) error {
	if store.IsRoot(name) {
		return errors.Wrap(store.ErrConflict, "root collection has no parent")
	}

	parent, exists := s.entries[store.Parent(name)]
	if !exists || !parent.collection {
		return errors.Wrapf(store.ErrConflict, "parent collection of '%s' does not exist", name)
	}

	return nil
}

func (s *Store) checkDestination(to string) error {
	if err := s.checkParent(to); err != nil {
		return err
	}

	if existing, exists := s.entries[to]; exists && existing.collection {
		return errors.Wrapf(store.ErrExist, "destination '%s' is a collection", to)
	}

	return nil
}

func (s *Store) hasChildren(name string) bool {
	for p := range s.entries {
		if store.IsDescendant(p, name) {
			return true
		}
	}
	return false
}

func (e *entry) info(name string) *store.Info {
	return &store.Info{
		Path:        name,
		Size:        int64(len(e.data)),
		ModTime:     e.modTime,
		ETag:        e.etag,
		ContentType: e.contentType,
		Collection:  e.collection,
	}
}

// NewStore creates an empty store. A positive capacity bounds the total size
// of stored contents.
func NewStore(capacity int64) *Store {
	return &Store{
		capacity: capacity,
		entries: map[string]*entry{
			"/": {
				modTime:    time.Now().UTC(),
				collection: true,
				etag:       computeETag([]byte("/")),
			},
		},
	}
}

var (
	_ store.Store      = &Store{}
	_ store.TreeMover  = &Store{}
	_ store.InfoLister = &Store{}
)

type readSeekNopCloser struct {
	*bytes.Reader
}

func (readSeekNopCloser) Close() error { return nil }

func computeETag(data []byte) string {
	sum := sha256.Sum256(data)
	return store.QuoteETag(hex.EncodeToString(sum[:16]))
}

func clean(name string) string {
	return path.Join("/", name)
}
