package testsuite

import (
	"context"
	"slices"

	"github.com/bornholm/remotedav/store"
	"github.com/pkg/errors"
)

func CreateCollection(ctx context.Context, s store.Store) error {
	dir := "/CreateCollection"

	if err := s.Mkcol(ctx, dir); err != nil {
		return errors.WithStack(err)
	}

	info, err := s.Stat(ctx, dir)
	if err != nil {
		return errors.WithStack(err)
	}

	if !info.Collection {
		return errors.Errorf("'%s' should be a collection", dir)
	}

	if err := s.Mkcol(ctx, dir); !errors.Is(err, store.ErrExist) {
		return errors.Errorf("second mkcol: expected ErrExist, got '%v'", err)
	}

	if err := s.Mkcol(ctx, dir+"/missing/child"); !errors.Is(err, store.ErrConflict) {
		return errors.Errorf("mkcol without parent: expected ErrConflict, got '%v'", err)
	}

	return nil
}

func ListCollection(ctx context.Context, s store.Store) error {
	dir := "/ListCollection"

	if err := ensureCollection(ctx, s, dir); err != nil {
		return errors.WithStack(err)
	}

	if err := ensureCollection(ctx, s, dir+"/sub"); err != nil {
		return errors.WithStack(err)
	}

	for _, name := range []string{"a.txt", "b.txt"} {
		if _, err := writeString(ctx, s, dir+"/"+name, name); err != nil {
			return errors.WithStack(err)
		}
	}

	if _, err := writeString(ctx, s, dir+"/sub/nested.txt", "nested"); err != nil {
		return errors.WithStack(err)
	}

	names, err := s.List(ctx, dir)
	if err != nil {
		return errors.WithStack(err)
	}

	slices.Sort(names)

	if e, g := []string{"a.txt", "b.txt", "sub"}, names; !slices.Equal(e, g) {
		return errors.Errorf("names: expected '%v', got '%v'", e, g)
	}

	infos, err := store.ListInfo(ctx, s, dir)
	if err != nil {
		return errors.WithStack(err)
	}

	if e, g := 3, len(infos); e != g {
		return errors.Errorf("len(infos): expected '%v', got '%v'", e, g)
	}

	for _, info := range infos {
		if e, g := dir+"/"+store.Base(info.Path), info.Path; e != g {
			return errors.Errorf("info.Path: expected '%v', got '%v'", e, g)
		}

		if e, g := store.Base(info.Path) == "sub", info.Collection; e != g {
			return errors.Errorf("'%s' collection: expected '%v', got '%v'", info.Path, e, g)
		}
	}

	if _, err := s.List(ctx, dir+"/a.txt"); !errors.Is(err, store.ErrConflict) {
		return errors.Errorf("list on member: expected ErrConflict, got '%v'", err)
	}

	if _, err := s.List(ctx, dir+"/missing"); !errors.Is(err, store.ErrNotFound) {
		return errors.Errorf("list on missing: expected ErrNotFound, got '%v'", err)
	}

	return nil
}

func DeleteNonEmptyCollection(ctx context.Context, s store.Store) error {
	dir := "/DeleteNonEmptyCollection"

	if err := ensureCollection(ctx, s, dir); err != nil {
		return errors.WithStack(err)
	}

	if _, err := writeString(ctx, s, dir+"/child.txt", "child"); err != nil {
		return errors.WithStack(err)
	}

	if err := s.Delete(ctx, dir); !errors.Is(err, store.ErrConflict) {
		return errors.Errorf("delete non empty collection: expected ErrConflict, got '%v'", err)
	}

	if err := s.Delete(ctx, dir+"/child.txt"); err != nil {
		return errors.WithStack(err)
	}

	if err := s.Delete(ctx, dir); err != nil {
		return errors.WithStack(err)
	}

	if _, err := s.Stat(ctx, dir); !errors.Is(err, store.ErrNotFound) {
		return errors.Errorf("stat after delete: expected ErrNotFound, got '%v'", err)
	}

	return nil
}
