// Package resolver maps request paths onto the resources of a store.
package resolver

import (
	"context"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/bornholm/remotedav/store"
	"github.com/pkg/errors"
)

var (
	ErrBadPath        = errors.New("bad path")
	ErrBadDepth       = errors.New("bad depth")
	ErrDepthForbidden = errors.New("depth infinity forbidden")
)

type Kind int

const (
	KindMember Kind = iota
	KindCollection
)

func (k Kind) String() string {
	if k == KindCollection {
		return "collection"
	}
	return "member"
}

type Depth int

const (
	DepthZero Depth = iota
	DepthOne
	DepthInfinity
)

func (d Depth) String() string {
	switch d {
	case DepthZero:
		return "0"
	case DepthOne:
		return "1"
	default:
		return "infinity"
	}
}

// Resource is a store entry materialized for the duration of a request.
type Resource struct {
	Path        string
	Kind        Kind
	Size        int64
	ModTime     time.Time
	ETag        string
	ContentType string
}

func (r *Resource) IsCollection() bool {
	return r.Kind == KindCollection
}

// Name returns the last segment of the resource path.
func (r *Resource) Name() string {
	return store.Base(r.Path)
}

// Clean decodes an escaped request path and normalizes it. The result always
// starts with a slash and never ends with one, except for the root.
func Clean(raw string) (string, error) {
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return "", errors.Wrapf(ErrBadPath, "could not decode '%s': %s", raw, err.Error())
	}

	if strings.ContainsAny(decoded, "\\\x00") {
		return "", errors.Wrapf(ErrBadPath, "invalid character in '%s'", raw)
	}

	for _, segment := range strings.Split(decoded, "/") {
		if segment == ".." {
			return "", errors.Wrapf(ErrBadPath, "parent reference in '%s'", raw)
		}
	}

	return path.Clean("/" + decoded), nil
}

// ParseDepth parses a Depth header value, returning def when it is empty.
func ParseDepth(header string, def Depth) (Depth, error) {
	switch strings.ToLower(strings.TrimSpace(header)) {
	case "":
		return def, nil
	case "0":
		return DepthZero, nil
	case "1":
		return DepthOne, nil
	case "infinity":
		return DepthInfinity, nil
	default:
		return def, errors.Wrapf(ErrBadDepth, "invalid depth '%s'", header)
	}
}

type Resolver struct {
	store store.Store
}

// Resolve returns the resource at the given clean path.
func (r *Resolver) Resolve(ctx context.Context, name string) (*Resource, error) {
	info, err := r.store.Stat(ctx, name)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	res := fromInfo(info)
	res.Path = name

	return res, nil
}

// Children returns the immediate children of a collection, sorted by path.
// Members have no children.
func (r *Resolver) Children(ctx context.Context, res *Resource) ([]*Resource, error) {
	if !res.IsCollection() {
		return nil, nil
	}

	infos, err := store.ListInfo(ctx, r.store, res.Path)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	children := make([]*Resource, 0, len(infos))
	for _, info := range infos {
		child := fromInfo(info)
		child.Path = store.Join(res.Path, store.Base(info.Path))
		children = append(children, child)
	}

	return children, nil
}

// Expand returns the resource followed by its children when depth is one.
func (r *Resolver) Expand(ctx context.Context, res *Resource, depth Depth) ([]*Resource, error) {
	switch depth {
	case DepthZero:
		return []*Resource{res}, nil

	case DepthOne:
		children, err := r.Children(ctx, res)
		if err != nil {
			return nil, err
		}

		return append([]*Resource{res}, children...), nil

	default:
		return nil, errors.WithStack(ErrDepthForbidden)
	}
}

// Descendants returns the resource and every resource below it, parents
// before their children.
func (r *Resolver) Descendants(ctx context.Context, res *Resource) ([]*Resource, error) {
	resources := []*Resource{res}

	children, err := r.Children(ctx, res)
	if err != nil {
		return nil, err
	}

	for _, child := range children {
		if err := ctx.Err(); err != nil {
			return nil, errors.WithStack(err)
		}

		descendants, err := r.Descendants(ctx, child)
		if err != nil {
			return nil, err
		}

		resources = append(resources, descendants...)
	}

	return resources, nil
}

func New(s store.Store) *Resolver {
	return &Resolver{
		store: s,
	}
}

func fromInfo(info *store.Info) *Resource {
	res := &Resource{
		Path:        info.Path,
		Kind:        KindMember,
		Size:        info.Size,
		ModTime:     info.ModTime,
		ETag:        info.ETag,
		ContentType: info.ContentType,
	}

	if info.Collection {
		res.Kind = KindCollection
		res.Size = 0
	}

	return res
}
