package local

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sort"
	"strings"
	"sync"
	"syscall"

	"github.com/bornholm/remotedav/store"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/net/webdav"
)

const tempPrefix = ".remotedav-"

// Store exposes a local directory tree. Member writes are staged into a
// temporary file and renamed in place.
type Store struct {
	fs webdav.FileSystem
	mu sync.Mutex
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
	name = clean(name)

	file, err := s.fs.OpenFile(ctx, name, os.O_RDONLY, 0)
	if err != nil {
		return nil, mapError(err)
	}

	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return nil, mapError(err)
	}

	if !stat.IsDir() {
		return nil, errors.Wrapf(store.ErrConflict, "'%s' is not a collection", name)
	}

	fileInfos, err := file.Readdir(-1)
	if err != nil {
		return nil, mapError(err)
	}

	infos := make([]*store.Info, 0, len(fileInfos))
	for _, fi := range fileInfos {
		if strings.HasPrefix(fi.Name(), tempPrefix) {
			continue
		}

		infos = append(infos, toInfo(store.Join(name, fi.Name()), fi))
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Path < infos[j].Path
	})

	return infos, nil
}

// Stat implements store.Store.
func (s *Store) Stat(ctx context.Context, name string) (*store.Info, error) {
	name = clean(name)

	fi, err := s.fs.Stat(ctx, name)
	if err != nil {
		return nil, mapError(err)
	}

	return toInfo(name, fi), nil
}

// Read implements store.Store.
func (s *Store) Read(ctx context.Context, name string) (io.ReadCloser, error) {
	name = clean(name)

	file, err := s.fs.OpenFile(ctx, name, os.O_RDONLY, 0)
	if err != nil {
		return nil, mapError(err)
	}

	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, mapError(err)
	}

	if stat.IsDir() {
		file.Close()
		return nil, errors.Wrapf(store.ErrConflict, "'%s' is a collection", name)
	}

	return file, nil
}

// Write implements store.Store.
func (s *Store) Write(ctx context.Context, name string, r io.Reader, opts store.WriteOptions) (string, error) {
	name = clean(name)

	if err := s.checkParent(ctx, name); err != nil {
		return "", err
	}

	tmp, err := s.stage(ctx, name, r)
	if err != nil {
		return "", err
	}

	defer s.fs.RemoveAll(context.WithoutCancel(ctx), tmp)

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.fs.Stat(ctx, name)
	switch {
	case err == nil:
		if existing.IsDir() {
			return "", errors.Wrapf(store.ErrConflict, "'%s' is a collection", name)
		}

		if opts.ExpectedETag != "" && !store.ETagMatch(computeETag(existing), opts.ExpectedETag) {
			return "", errors.WithStack(store.ErrETagMismatch)
		}

	case errors.Is(err, fs.ErrNotExist):
		if opts.ExpectedETag != "" {
			return "", errors.WithStack(store.ErrETagMismatch)
		}

	default:
		return "", mapError(err)
	}

	if err := s.fs.Rename(ctx, tmp, name); err != nil {
		return "", mapError(err)
	}

	fi, err := s.fs.Stat(ctx, name)
	if err != nil {
		return "", mapError(err)
	}

	return computeETag(fi), nil
}

// Delete implements store.Store.
func (s *Store) Delete(ctx context.Context, name string) error {
	name = clean(name)

	if store.IsRoot(name) {
		return errors.Wrap(store.ErrConflict, "root collection cannot be deleted")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	fi, err := s.fs.Stat(ctx, name)
	if err != nil {
		return mapError(err)
	}

	if fi.IsDir() {
		empty, err := s.isEmpty(ctx, name)
		if err != nil {
			return err
		}

		if !empty {
			return errors.Wrapf(store.ErrConflict, "collection '%s' is not empty", name)
		}
	}

	if err := s.fs.RemoveAll(ctx, name); err != nil {
		return mapError(err)
	}

	return nil
}

// Mkcol implements store.Store.
func (s *Store) Mkcol(ctx context.Context, name string) error {
	name = clean(name)

	if _, err := s.fs.Stat(ctx, name); err == nil {
		return errors.WithStack(store.ErrExist)
	}

	if err := s.checkParent(ctx, name); err != nil {
		return err
	}

	if err := s.fs.Mkdir(ctx, name, 0o755); err != nil {
		return mapError(err)
	}

	return nil
}

// Move implements store.Store.
func (s *Store) Move(ctx context.Context, from, to string) error {
	from, to = clean(from), clean(to)

	s.mu.Lock()
	defer s.mu.Unlock()

	fi, err := s.fs.Stat(ctx, from)
	if err != nil {
		return mapError(err)
	}

	if fi.IsDir() {
		return errors.Wrapf(store.ErrConflict, "'%s' is a collection", from)
	}

	if err := s.checkDestination(ctx, to); err != nil {
		return err
	}

	if err := s.fs.Rename(ctx, from, to); err != nil {
		return mapError(err)
	}

	return nil
}

// Copy implements store.Store.
func (s *Store) Copy(ctx context.Context, from, to string) error {
	from, to = clean(from), clean(to)

	r, err := s.Read(ctx, from)
	if err != nil {
		return err
	}

	defer r.Close()

	if err := s.checkDestination(ctx, to); err != nil {
		return err
	}

	tmp, err := s.stage(ctx, to, r)
	if err != nil {
		return err
	}

	defer s.fs.RemoveAll(context.WithoutCancel(ctx), tmp)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fs.Rename(ctx, tmp, to); err != nil {
		return mapError(err)
	}

	return nil
}

// MoveTree implements store.TreeMover.
func (s *Store) MoveTree(ctx context.Context, from, to string) error {
	from, to = clean(from), clean(to)

	if store.IsRoot(from) || store.IsDescendant(to, from) {
		return errors.Wrapf(store.ErrConflict, "cannot move '%s' to '%s'", from, to)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.fs.Stat(ctx, from); err != nil {
		return mapError(err)
	}

	if err := s.checkParent(ctx, to); err != nil {
		return err
	}

	if _, err := s.fs.Stat(ctx, to); err == nil {
		return errors.Wrapf(store.ErrExist, "destination '%s' already exists", to)
	}

	if err := s.fs.Rename(ctx, from, to); err != nil {
		return mapError(err)
	}

	return nil
}

func (s *Store) stage(ctx context.Context, name string, r io.Reader) (string, error) {
	tmp := store.Join(store.Parent(name), tempPrefix+uuid.NewString())

	file, err := s.fs.OpenFile(ctx, tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return "", mapError(err)
	}

	if _, err := io.Copy(file, r); err != nil {
		file.Close()
		s.fs.RemoveAll(context.WithoutCancel(ctx), tmp)
		return "", mapError(err)
	}

	if err := file.Close(); err != nil {
		s.fs.RemoveAll(context.WithoutCancel(ctx), tmp)
		return "", mapError(err)
	}

	return tmp, nil
}

func (s *Store) checkParent(ctx context.Context, name string) error {
	if store.IsRoot(name) {
		return errors.Wrap(store.ErrConflict, "root collection has no parent")
	}

	parent := store.Parent(name)

	fi, err := s.fs.Stat(ctx, parent)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return errors.Wrapf(store.ErrConflict, "parent collection of '%s' does not exist", name)
		}

		return mapError(err)
	}

	if !fi.IsDir() {
		return errors.Wrapf(store.ErrConflict, "parent of '%s' is not a collection", name)
	}

	return nil
}

func (s *Store) checkDestination(ctx context.Context, to string) error {
	if err := s.checkParent(ctx, to); err != nil {
		return err
	}

	if fi, err := s.fs.Stat(ctx, to); err == nil && fi.IsDir() {
		return errors.Wrapf(store.ErrExist, "destination '%s' is a collection", to)
	}

	return nil
}

func (s *Store) isEmpty(ctx context.Context, name string) (bool, error) {
	file, err := s.fs.OpenFile(ctx, name, os.O_RDONLY, 0)
	if err != nil {
		return false, mapError(err)
	}

	defer file.Close()

	fileInfos, err := file.Readdir(-1)
	if err != nil {
		return false, mapError(err)
	}

	for _, fi := range fileInfos {
		if !strings.HasPrefix(fi.Name(), tempPrefix) {
			return false, nil
		}
	}

	return true, nil
}

func NewStore(dir string) *Store {
	return &Store{
		fs: webdav.Dir(dir),
	}
}

var (
	_ store.Store      = &Store{}
	_ store.TreeMover  = &Store{}
	_ store.InfoLister = &Store{}
)

func toInfo(name string, fi fs.FileInfo) *store.Info {
	info := &store.Info{
		Path:       name,
		ModTime:    fi.ModTime().UTC(),
		ETag:       computeETag(fi),
		Collection: fi.IsDir(),
	}

	if !fi.IsDir() {
		info.Size = fi.Size()
	}

	return info
}

func computeETag(fi fs.FileInfo) string {
	return fmt.Sprintf(`"%x%x"`, fi.ModTime().UnixNano(), fi.Size())
}

func mapError(err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return errors.WithStack(store.ErrNotFound)
	case errors.Is(err, fs.ErrExist):
		return errors.WithStack(store.ErrExist)
	case errors.Is(err, syscall.ENOSPC), errors.Is(err, syscall.EDQUOT):
		return errors.Wrap(store.ErrInsufficientStorage, err.Error())
	case errors.Is(err, syscall.ENOTDIR), errors.Is(err, syscall.ENOTEMPTY), errors.Is(err, syscall.EISDIR):
		return errors.Wrap(store.ErrConflict, err.Error())
	default:
		return errors.WithStack(err)
	}
}

func clean(name string) string {
	return store.Join("/", name)
}
