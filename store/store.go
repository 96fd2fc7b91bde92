package store

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/pkg/errors"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrExist               = errors.New("already exists")
	ErrConflict            = errors.New("conflict")
	ErrETagMismatch        = errors.New("etag mismatch")
	ErrUnavailable         = errors.New("store unavailable")
	ErrInsufficientStorage = errors.New("insufficient storage")
	ErrNotSupported        = errors.New("not supported")
)

// Info is the metadata a store reports for a single path.
type Info struct {
	Path        string
	Size        int64
	ModTime     time.Time
	ETag        string
	ContentType string
	Collection  bool
}

type WriteOptions struct {
	// ExpectedETag, when not empty, makes the write fail with ErrETagMismatch
	// unless the current entity tag of the resource matches.
	ExpectedETag string
	ContentType  string
}

// Store is the boundary with the backing storage. Every call is expected to be
// atomic for the single path it names; calls may fail transiently with
// ErrUnavailable.
type Store interface {
	// List returns the names of the immediate children of a collection.
	List(ctx context.Context, name string) ([]string, error)
	Stat(ctx context.Context, name string) (*Info, error)
	Read(ctx context.Context, name string) (io.ReadCloser, error)
	// Write creates or replaces a member and returns its new entity tag.
	Write(ctx context.Context, name string, r io.Reader, opts WriteOptions) (string, error)
	// Delete removes a member or an empty collection.
	Delete(ctx context.Context, name string) error
	Mkcol(ctx context.Context, name string) error
	// Move renames a single member.
	Move(ctx context.Context, from, to string) error
	// Copy duplicates a single member.
	Copy(ctx context.Context, from, to string) error
}

// TreeMover is implemented by stores able to rename a whole collection
// atomically.
type TreeMover interface {
	MoveTree(ctx context.Context, from, to string) error
}

// InfoLister is implemented by stores able to list the metadata of the
// children of a collection in a single call.
type InfoLister interface {
	ListInfo(ctx context.Context, name string) ([]*Info, error)
}

// MoveTree renames a collection with the store's atomic capability. It
// returns ErrNotSupported when the store has none.
func MoveTree(ctx context.Context, s Store, from, to string) error {
	mover, ok := s.(TreeMover)
	if !ok {
		return errors.WithStack(ErrNotSupported)
	}

	return mover.MoveTree(ctx, from, to)
}

// ListInfo lists the children metadata of a collection, falling back to List
// followed by one Stat per child.
func ListInfo(ctx context.Context, s Store, name string) ([]*Info, error) {
	if lister, ok := s.(InfoLister); ok {
		return lister.ListInfo(ctx, name)
	}

	names, err := s.List(ctx, name)
	if err != nil {
		return nil, err
	}

	infos := make([]*Info, 0, len(names))
	for _, n := range names {
		info, err := s.Stat(ctx, Join(name, n))
		if err != nil {
			// Children may vanish between the listing and the stat
			if errors.Is(err, ErrNotFound) {
				continue
			}

			return nil, err
		}

		infos = append(infos, info)
	}

	return infos, nil
}

// ETagMatch reports whether two entity tags designate the same
// representation. Weak prefixes and quotes are ignored.
func ETagMatch(a, b string) bool {
	a, b = trimETag(a), trimETag(b)
	return a != "" && a == b
}

// QuoteETag returns the quoted form of a raw entity tag.
func QuoteETag(raw string) string {
	raw = trimETag(raw)
	if raw == "" {
		return ""
	}
	return `"` + raw + `"`
}

func trimETag(etag string) string {
	etag = strings.TrimSpace(etag)
	etag = strings.TrimPrefix(etag, "W/")
	return strings.Trim(etag, `"`)
}
