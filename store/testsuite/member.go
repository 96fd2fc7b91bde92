package testsuite

import (
	"bytes"
	"context"
	"crypto/rand"
	"fmt"
	"strings"

	"github.com/bornholm/remotedav/store"
	"github.com/pkg/errors"
)

func WriteMember(ctx context.Context, s store.Store) error {
	dir := "/WriteMember"

	if err := ensureCollection(ctx, s, dir); err != nil {
		return errors.WithStack(err)
	}

	name := dir + "/file.txt"
	content := "hello world"

	etag, err := writeString(ctx, s, name, content)
	if err != nil {
		return errors.WithStack(err)
	}

	if etag == "" {
		return errors.New("write should return an etag")
	}

	info, err := s.Stat(ctx, name)
	if err != nil {
		return errors.WithStack(err)
	}

	if info.Collection {
		return errors.Errorf("'%s' should not be a collection", name)
	}

	if e, g := int64(len(content)), info.Size; e != g {
		return errors.Errorf("info.Size: expected '%v', got '%v'", e, g)
	}

	if !store.ETagMatch(etag, info.ETag) {
		return errors.Errorf("info.ETag: expected '%v', got '%v'", etag, info.ETag)
	}

	data, err := readString(ctx, s, name)
	if err != nil {
		return errors.WithStack(err)
	}

	if e, g := content, data; e != g {
		return errors.Errorf("content: expected '%v', got '%v'", e, g)
	}

	updated, err := writeString(ctx, s, name, "hello again")
	if err != nil {
		return errors.WithStack(err)
	}

	if store.ETagMatch(etag, updated) {
		return errors.Errorf("etag should change after a content change, got '%v' twice", etag)
	}

	return nil
}

func WriteWithoutParent(ctx context.Context, s store.Store) error {
	_, err := writeString(ctx, s, "/WriteWithoutParent/missing/file.txt", "orphan")
	if !errors.Is(err, store.ErrConflict) {
		return errors.Errorf("expected ErrConflict, got '%v'", err)
	}

	return nil
}

func ConditionalWrite(ctx context.Context, s store.Store) error {
	dir := "/ConditionalWrite"

	if err := ensureCollection(ctx, s, dir); err != nil {
		return errors.WithStack(err)
	}

	name := dir + "/file.txt"

	etag, err := writeString(ctx, s, name, "v1")
	if err != nil {
		return errors.WithStack(err)
	}

	_, err = s.Write(ctx, name, strings.NewReader("v2"), store.WriteOptions{ExpectedETag: `"not-the-etag"`})
	if !errors.Is(err, store.ErrETagMismatch) {
		return errors.Errorf("stale write: expected ErrETagMismatch, got '%v'", err)
	}

	data, err := readString(ctx, s, name)
	if err != nil {
		return errors.WithStack(err)
	}

	if e, g := "v1", data; e != g {
		return errors.Errorf("content after stale write: expected '%v', got '%v'", e, g)
	}

	if _, err := s.Write(ctx, name, strings.NewReader("v2"), store.WriteOptions{ExpectedETag: etag}); err != nil {
		return errors.WithStack(err)
	}

	data, err = readString(ctx, s, name)
	if err != nil {
		return errors.WithStack(err)
	}

	if e, g := "v2", data; e != g {
		return errors.Errorf("content after conditional write: expected '%v', got '%v'", e, g)
	}

	return nil
}

func LargeWrite(ctx context.Context, s store.Store) error {
	dir := "/LargeWrite"

	if err := ensureCollection(ctx, s, dir); err != nil {
		return errors.WithStack(err)
	}

	name := dir + "/large.bin"

	data := make([]byte, 8*1024*1024)
	if _, err := rand.Read(data); err != nil {
		return errors.WithStack(err)
	}

	expected, err := shasum(bytes.NewReader(data))
	if err != nil {
		return errors.WithStack(err)
	}

	if _, err := s.Write(ctx, name, bytes.NewReader(data), store.WriteOptions{}); err != nil {
		return errors.WithStack(err)
	}

	r, err := s.Read(ctx, name)
	if err != nil {
		return errors.WithStack(err)
	}

	defer r.Close()

	actual, err := shasum(r)
	if err != nil {
		return errors.WithStack(err)
	}

	if e, g := expected, actual; e != g {
		return errors.Errorf("shasum: expected '%v', got '%v'", e, g)
	}

	return nil
}

func MemberMetadata(ctx context.Context, s store.Store) error {
	dir := "/MemberMetadata"

	if err := ensureCollection(ctx, s, dir); err != nil {
		return errors.WithStack(err)
	}

	name := dir + "/page.html"

	_, err := s.Write(ctx, name, strings.NewReader("<html></html>"), store.WriteOptions{ContentType: "text/html"})
	if err != nil {
		return errors.WithStack(err)
	}

	info, err := s.Stat(ctx, name)
	if err != nil {
		return errors.WithStack(err)
	}

	if info.ModTime.IsZero() {
		return errors.New("info.ModTime should not be zero")
	}

	if info.ContentType != "" && !strings.HasPrefix(info.ContentType, "text/html") {
		return errors.Errorf("info.ContentType: expected 'text/html', got '%v'", info.ContentType)
	}

	return nil
}

func DeleteMember(ctx context.Context, s store.Store) error {
	dir := "/DeleteMember"

	if err := ensureCollection(ctx, s, dir); err != nil {
		return errors.WithStack(err)
	}

	name := dir + "/file-to-delete.txt"

	if _, err := writeString(ctx, s, name, "content to be deleted"); err != nil {
		return errors.WithStack(err)
	}

	if err := s.Delete(ctx, name); err != nil {
		return errors.WithStack(err)
	}

	if _, err := s.Stat(ctx, name); !errors.Is(err, store.ErrNotFound) {
		return errors.Errorf("stat after delete: expected ErrNotFound, got '%v'", err)
	}

	if err := s.Delete(ctx, name); !errors.Is(err, store.ErrNotFound) {
		return errors.Errorf("second delete: expected ErrNotFound, got '%v'", err)
	}

	return nil
}

func MoveMember(ctx context.Context, s store.Store) error {
	dir := "/MoveMember"

	if err := ensureCollection(ctx, s, dir); err != nil {
		return errors.WithStack(err)
	}

	from, to := dir+"/from.txt", dir+"/to.txt"

	if _, err := writeString(ctx, s, from, "moved"); err != nil {
		return errors.WithStack(err)
	}

	if err := s.Move(ctx, from, to); err != nil {
		return errors.WithStack(err)
	}

	if _, err := s.Stat(ctx, from); !errors.Is(err, store.ErrNotFound) {
		return errors.Errorf("stat source: expected ErrNotFound, got '%v'", err)
	}

	data, err := readString(ctx, s, to)
	if err != nil {
		return errors.WithStack(err)
	}

	if e, g := "moved", data; e != g {
		return errors.Errorf("content: expected '%v', got '%v'", e, g)
	}

	if err := s.Move(ctx, from, to); !errors.Is(err, store.ErrNotFound) {
		return errors.Errorf("move missing source: expected ErrNotFound, got '%v'", err)
	}

	return nil
}

func CopyMember(ctx context.Context, s store.Store) error {
	dir := "/CopyMember"

	if err := ensureCollection(ctx, s, dir); err != nil {
		return errors.WithStack(err)
	}

	from := dir + "/source.txt"

	if _, err := writeString(ctx, s, from, "copied"); err != nil {
		return errors.WithStack(err)
	}

	for i := 0; i < 2; i++ {
		to := fmt.Sprintf("%s/copy-%d.txt", dir, i)

		if err := s.Copy(ctx, from, to); err != nil {
			return errors.WithStack(err)
		}

		data, err := readString(ctx, s, to)
		if err != nil {
			return errors.WithStack(err)
		}

		if e, g := "copied", data; e != g {
			return errors.Errorf("content: expected '%v', got '%v'", e, g)
		}
	}

	if _, err := s.Stat(ctx, from); err != nil {
		return errors.Wrap(err, "source should still exist after copy")
	}

	return nil
}

func MoveTree(ctx context.Context, s store.Store) error {
	dir := "/MoveTree"

	if err := ensureCollection(ctx, s, dir); err != nil {
		return errors.WithStack(err)
	}

	from, to := dir+"/from", dir+"/to"

	if err := ensureCollection(ctx, s, from); err != nil {
		return errors.WithStack(err)
	}

	if err := ensureCollection(ctx, s, from+"/sub"); err != nil {
		return errors.WithStack(err)
	}

	for _, name := range []string{"/a.txt", "/sub/b.txt"} {
		if _, err := writeString(ctx, s, from+name, name); err != nil {
			return errors.WithStack(err)
		}
	}

	if err := store.MoveTree(ctx, s, from, to); err != nil {
		if errors.Is(err, store.ErrNotSupported) {
			return nil
		}

		return errors.WithStack(err)
	}

	if _, err := s.Stat(ctx, from); !errors.Is(err, store.ErrNotFound) {
		return errors.Errorf("stat source: expected ErrNotFound, got '%v'", err)
	}

	for _, name := range []string{"/a.txt", "/sub/b.txt"} {
		data, err := readString(ctx, s, to+name)
		if err != nil {
			return errors.WithStack(err)
		}

		if e, g := name, data; e != g {
			return errors.Errorf("content: expected '%v', got '%v'", e, g)
		}
	}

	return nil
}
