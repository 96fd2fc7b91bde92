package handler

import (
	"cmp"
	"context"
	"encoding/xml"
	"maps"
	"net/http"
	"slices"
	"strconv"

	"github.com/bornholm/remotedav/multistatus"
	"github.com/bornholm/remotedav/resolver"
	"github.com/pkg/errors"
	"golang.org/x/net/webdav"
)

// liveProp computes a property from the resource metadata. It returns false
// when the property does not apply to the resource.
type liveProp func(h *Handler, ctx context.Context, res *resolver.Resource) ([]byte, bool, error)

var liveProps = map[xml.Name]liveProp{
	multistatus.Name("resourcetype"): func(h *Handler, ctx context.Context, res *resolver.Resource) ([]byte, bool, error) {
		if res.IsCollection() {
			return []byte("<D:collection/>"), true, nil
		}

		return nil, true, nil
	},
	multistatus.Name("displayname"): func(h *Handler, ctx context.Context, res *resolver.Resource) ([]byte, bool, error) {
		return multistatus.TextValue(res.Name()), true, nil
	},
	multistatus.Name("getcontentlength"): func(h *Handler, ctx context.Context, res *resolver.Resource) ([]byte, bool, error) {
		if res.IsCollection() {
			return nil, false, nil
		}

		return []byte(strconv.FormatInt(res.Size, 10)), true, nil
	},
	multistatus.Name("getlastmodified"): func(h *Handler, ctx context.Context, res *resolver.Resource) ([]byte, bool, error) {
		if res.ModTime.IsZero() {
			return nil, false, nil
		}

		return []byte(res.ModTime.UTC().Format(http.TimeFormat)), true, nil
	},
	multistatus.Name("getcontenttype"): func(h *Handler, ctx context.Context, res *resolver.Resource) ([]byte, bool, error) {
		if res.IsCollection() {
			return nil, false, nil
		}

		return multistatus.TextValue(contentType(res)), true, nil
	},
	multistatus.Name("getetag"): func(h *Handler, ctx context.Context, res *resolver.Resource) ([]byte, bool, error) {
		if res.IsCollection() || res.ETag == "" {
			return nil, false, nil
		}

		return multistatus.TextValue(res.ETag), true, nil
	},
	multistatus.Name("supportedlock"): func(h *Handler, ctx context.Context, res *resolver.Resource) ([]byte, bool, error) {
		return []byte(multistatus.SupportedLock), true, nil
	},
	multistatus.Name("lockdiscovery"): func(h *Handler, ctx context.Context, res *resolver.Resource) ([]byte, bool, error) {
		locks, err := h.locks.Discover(ctx, res.Path)
		if err != nil {
			return nil, false, errors.WithStack(err)
		}

		return multistatus.ActiveLocks(locks, h.prefix, h.now()), true, nil
	},
}

// liveOrder is the order in which live properties are listed.
var liveOrder = []string{
	"resourcetype",
	"displayname",
	"getcontentlength",
	"getlastmodified",
	"getcontenttype",
	"getetag",
	"supportedlock",
	"lockdiscovery",
}

func isLiveProp(name xml.Name) bool {
	_, exists := liveProps[name]
	return exists
}

// properties returns the live and dead properties of a resource, live ones
// first.
func (h *Handler) properties(ctx context.Context, res *resolver.Resource) ([]webdav.Property, error) {
	props := make([]webdav.Property, 0, len(liveOrder))

	for _, local := range liveOrder {
		name := multistatus.Name(local)

		value, ok, err := liveProps[name](h, ctx, res)
		if err != nil {
			return nil, errors.WithStack(err)
		}

		if !ok {
			continue
		}

		props = append(props, webdav.Property{XMLName: name, InnerXML: value})
	}

	dead, err := h.props.Get(ctx, res.Path)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	names := slices.SortedFunc(maps.Keys(dead), func(a, b xml.Name) int {
		return cmp.Or(cmp.Compare(a.Space, b.Space), cmp.Compare(a.Local, b.Local))
	})

	for _, name := range names {
		if isLiveProp(name) {
			continue
		}

		props = append(props, dead[name])
	}

	return props, nil
}
