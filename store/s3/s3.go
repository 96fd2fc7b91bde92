package s3

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/bornholm/remotedav/store"
	"github.com/minio/minio-go/v7"
	"github.com/pkg/errors"
)

const (
	separator = "/"
	// Content type of the empty objects marking collections
	collectionContentType = "application/x-directory"
)

// Store maps resources onto the objects of a bucket. Collections are
// materialized by empty "<path>/" marker objects but prefixes without
// marker are also reported as collections.
type Store struct {
	client *minio.Client
	bucket string
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

	info, err := s.Stat(ctx, name)
	if err != nil {
		return nil, err
	}

	if !info.Collection {
		return nil, errors.Wrapf(store.ErrConflict, "'%s' is not a collection", name)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	prefix := collectionKey(name)

	opts := minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: false,
	}

	infos := make([]*store.Info, 0)
	for obj := range s.client.ListObjects(ctx, s.bucket, opts) {
		if obj.Err != nil {
			return nil, mapError(obj.Err)
		}

		// Skip the collection marker itself
		if obj.Key == prefix {
			continue
		}

		infos = append(infos, toInfo(obj))
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Path < infos[j].Path
	})

	return infos, nil
}

// Stat implements store.Store.
func (s *Store) Stat(ctx context.Context, name string) (*store.Info, error) {
	name = clean(name)

	if store.IsRoot(name) {
		return &store.Info{
			Path:       separator,
			Collection: true,
			ModTime:    time.Now().UTC(),
		}, nil
	}

	obj, err := s.client.StatObject(ctx, s.bucket, memberKey(name), minio.StatObjectOptions{})
	if err == nil {
		return toInfo(obj), nil
	}

	if !isNotFound(err) {
		return nil, mapError(err)
	}

	marker, err := s.client.StatObject(ctx, s.bucket, collectionKey(name), minio.StatObjectOptions{})
	if err == nil {
		return toInfo(marker), nil
	}

	if !isNotFound(err) {
		return nil, mapError(err)
	}

	// Prefixes without marker are implicit collections
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	opts := minio.ListObjectsOptions{
		Prefix:    collectionKey(name),
		Recursive: true,
		MaxKeys:   1,
	}

	for obj := range s.client.ListObjects(ctx, s.bucket, opts) {
		if obj.Err != nil {
			return nil, mapError(obj.Err)
		}

		return &store.Info{
			Path:       name,
			Collection: true,
			ModTime:    obj.LastModified.UTC(),
		}, nil
	}

	return nil, errors.WithStack(store.ErrNotFound)
}

// Read implements store.Store.
func (s *Store) Read(ctx context.Context, name string) (io.ReadCloser, error) {
	name = clean(name)

	info, err := s.Stat(ctx, name)
	if err != nil {
		return nil, err
	}

	if info.Collection {
		return nil, errors.Wrapf(store.ErrConflict, "'%s' is a collection", name)
	}

	obj, err := s.client.GetObject(ctx, s.bucket, memberKey(name), minio.GetObjectOptions{})
	if err != nil {
		return nil, mapError(err)
	}

	return obj, nil
}

// Write implements store.Store.
func (s *Store) Write(ctx context.Context, name string, r io.Reader, opts store.WriteOptions) (string, error) {
	name = clean(name)

	if err := s.checkParent(ctx, name); err != nil {
		return "", err
	}

	existing, err := s.Stat(ctx, name)
	switch {
	case err == nil:
		if existing.Collection {
			return "", errors.Wrapf(store.ErrConflict, "'%s' is a collection", name)
		}

	case errors.Is(err, store.ErrNotFound):
		if opts.ExpectedETag != "" {
			return "", errors.WithStack(store.ErrETagMismatch)
		}

	default:
		return "", err
	}

	putOpts := minio.PutObjectOptions{
		ContentType: opts.ContentType,
		PartSize:    5 * 1024 * 1024,
	}

	if putOpts.ContentType == "" {
		putOpts.ContentType = "application/octet-stream"
	}

	if opts.ExpectedETag != "" {
		putOpts.SetMatchETag(strings.Trim(strings.TrimPrefix(opts.ExpectedETag, "W/"), `"`))
	}

	upload, err := s.client.PutObject(ctx, s.bucket, memberKey(name), r, -1, putOpts)
	if err != nil {
		return "", mapError(err)
	}

	return store.QuoteETag(upload.ETag), nil
}

// Delete implements store.Store.
func (s *Store) Delete(ctx context.Context, name string) error {
	name = clean(name)

	if store.IsRoot(name) {
		return errors.Wrap(store.ErrConflict, "root collection cannot be deleted")
	}

	info, err := s.Stat(ctx, name)
	if err != nil {
		return err
	}

	if !info.Collection {
		if err := s.client.RemoveObject(ctx, s.bucket, memberKey(name), minio.RemoveObjectOptions{}); err != nil {
			return mapError(err)
		}

		return nil
	}

	children, err := s.List(ctx, name)
	if err != nil {
		return err
	}

	if len(children) > 0 {
		return errors.Wrapf(store.ErrConflict, "collection '%s' is not empty", name)
	}

	if err := s.client.RemoveObject(ctx, s.bucket, collectionKey(name), minio.RemoveObjectOptions{}); err != nil {
		return mapError(err)
	}

	return nil
}

// Mkcol implements store.Store.
func (s *Store) Mkcol(ctx context.Context, name string) error {
	name = clean(name)

	_, err := s.Stat(ctx, name)
	if err == nil {
		return errors.WithStack(store.ErrExist)
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	if err := s.checkParent(ctx, name); err != nil {
		return err
	}

	putOpts := minio.PutObjectOptions{
		ContentType: collectionContentType,
	}

	if _, err := s.client.PutObject(ctx, s.bucket, collectionKey(name), bytes.NewReader(nil), 0, putOpts); err != nil {
		return mapError(err)
	}

	return nil
}

// Move implements store.Store.
func (s *Store) Move(ctx context.Context, from, to string) error {
	from, to = clean(from), clean(to)

	if err := s.Copy(ctx, from, to); err != nil {
		return err
	}

	if err := s.client.RemoveObject(ctx, s.bucket, memberKey(from), minio.RemoveObjectOptions{}); err != nil {
		return mapError(err)
	}

	return nil
}

// Copy implements store.Store.
func (s *Store) Copy(ctx context.Context, from, to string) error {
	from, to = clean(from), clean(to)

	info, err := s.Stat(ctx, from)
	if err != nil {
		return err
	}

	if info.Collection {
		return errors.Wrapf(store.ErrConflict, "'%s' is a collection", from)
	}

	if err := s.checkParent(ctx, to); err != nil {
		return err
	}

	if existing, err := s.Stat(ctx, to); err == nil && existing.Collection {
		return errors.Wrapf(store.ErrExist, "destination '%s' is a collection", to)
	} else if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}

	dest := minio.CopyDestOptions{
		Bucket: s.bucket,
		Object: memberKey(to),
	}
	src := minio.CopySrcOptions{
		Bucket: s.bucket,
		Object: memberKey(from),
	}

	if _, err := s.client.CopyObject(ctx, dest, src); err != nil {
		return mapError(err)
	}

	return nil
}

func (s *Store) checkParent(ctx context.Context, name string) error {
	if store.IsRoot(name) {
		return errors.Wrap(store.ErrConflict, "root collection has no parent")
	}

	parent, err := s.Stat(ctx, store.Parent(name))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return errors.Wrapf(store.ErrConflict, "parent collection of '%s' does not exist", name)
		}

		return err
	}

	if !parent.Collection {
		return errors.Wrapf(store.ErrConflict, "parent of '%s' is not a collection", name)
	}

	return nil
}

// NewStore creates a new S3 store with the given client and bucket
func NewStore(client *minio.Client, bucket string) *Store {
	return &Store{
		client: client,
		bucket: bucket,
	}
}

var (
	_ store.Store      = &Store{}
	_ store.InfoLister = &Store{}
)

func toInfo(obj minio.ObjectInfo) *store.Info {
	collection := strings.HasSuffix(obj.Key, separator)

	info := &store.Info{
		Path:        clean(obj.Key),
		ModTime:     obj.LastModified.UTC(),
		ETag:        store.QuoteETag(obj.ETag),
		ContentType: obj.ContentType,
		Collection:  collection,
	}

	if !collection {
		info.Size = obj.Size
	} else {
		info.ContentType = ""
	}

	return info
}

func isNotFound(err error) bool {
	res := minio.ToErrorResponse(err)
	return res.Code == "NoSuchKey" || res.StatusCode == http.StatusNotFound
}

func mapError(err error) error {
	res := minio.ToErrorResponse(err)

	switch {
	case res.Code == "NoSuchKey":
		return errors.WithStack(store.ErrNotFound)
	case res.Code == "PreconditionFailed" || res.StatusCode == http.StatusPreconditionFailed:
		return errors.WithStack(store.ErrETagMismatch)
	case res.Code == "XMinioStorageFull" || res.Code == "EntityTooLarge":
		return errors.Wrap(store.ErrInsufficientStorage, res.Message)
	case res.Code == "SlowDown" || res.StatusCode >= http.StatusInternalServerError:
		return errors.Wrap(store.ErrUnavailable, err.Error())
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return errors.Wrap(store.ErrUnavailable, err.Error())
	}

	return errors.WithStack(err)
}

func memberKey(name string) string {
	return strings.Trim(name, separator)
}

func collectionKey(name string) string {
	key := strings.Trim(name, separator)
	if key == "" {
		return ""
	}
	return key + separator
}

func clean(name string) string {
	return store.Join(separator, name)
}
