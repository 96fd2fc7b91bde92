package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/bornholm/remotedav/multistatus"
	"github.com/bornholm/remotedav/resolver"
	"github.com/bornholm/remotedav/store"
	"github.com/pkg/errors"
)

// deleteTree removes a resource and its descendants, deepest first. It
// returns a response for each resource that could not be removed. Ancestors
// of those resources are kept and not reported.
func (h *Handler) deleteTree(ctx context.Context, res *resolver.Resource) ([]multistatus.Response, error) {
	resources := []*resolver.Resource{res}

	if res.IsCollection() {
		descendants, err := h.resolver.Descendants(ctx, res)
		if err != nil {
			return nil, errors.WithStack(err)
		}

		resources = descendants
	}

	failures := make([]multistatus.Response, 0)
	kept := make(map[string]struct{})

	for i := len(resources) - 1; i >= 0; i-- {
		current := resources[i]

		if _, ok := kept[current.Path]; ok {
			kept[store.Parent(current.Path)] = struct{}{}
			continue
		}

		if err := h.store.Delete(ctx, current.Path); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, errors.WithStack(ctxErr)
			}

			failures = append(failures, multistatus.Response{
				Href:   h.href(current),
				Status: statusFromError(err),
			})

			kept[store.Parent(current.Path)] = struct{}{}

			continue
		}

		if err := h.forget(ctx, current.Path); err != nil {
			return nil, errors.WithStack(err)
		}
	}

	return failures, nil
}

// copyTree copies a resource to the destination, its descendants included
// when depth is infinity. Collections are created before their members. The
// descendants of a collection that could not be created are skipped.
func (h *Handler) copyTree(ctx context.Context, src *resolver.Resource, dst string, depth resolver.Depth) ([]multistatus.Response, error) {
	resources := []*resolver.Resource{src}

	if src.IsCollection() && depth == resolver.DepthInfinity {
		descendants, err := h.resolver.Descendants(ctx, src)
		if err != nil {
			return nil, errors.WithStack(err)
		}

		resources = descendants
	}

	failures := make([]multistatus.Response, 0)
	skipped := make(map[string]struct{})

	for _, current := range resources {
		if _, ok := skipped[store.Parent(current.Path)]; ok && current != src {
			skipped[current.Path] = struct{}{}
			continue
		}

		target := &resolver.Resource{
			Path: dst + strings.TrimPrefix(current.Path, src.Path),
			Kind: current.Kind,
		}

		var err error
		if current.IsCollection() {
			err = h.store.Mkcol(ctx, target.Path)
		} else {
			err = h.store.Copy(ctx, current.Path, target.Path)
		}

		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, errors.WithStack(ctxErr)
			}

			failures = append(failures, multistatus.Response{
				Href:   h.href(target),
				Status: statusFromError(err),
			})

			skipped[current.Path] = struct{}{}
		}
	}

	return failures, nil
}

// moveTree moves a resource to the destination, atomically when the store
// supports it, else by copying then deleting every descendant. Locks of the
// moved resources are dropped and their dead properties follow them.
func (h *Handler) moveTree(ctx context.Context, src *resolver.Resource, dst string) ([]multistatus.Response, error) {
	var err error

	if src.IsCollection() {
		err = store.MoveTree(ctx, h.store, src.Path, dst)
	} else {
		err = h.store.Move(ctx, src.Path, dst)
	}

	switch {
	case err == nil:
		if _, err := h.locks.Purge(ctx, src.Path); err != nil {
			return nil, errors.WithStack(err)
		}

		if err := h.props.Rename(ctx, src.Path, dst); err != nil {
			return nil, errors.WithStack(err)
		}

		return nil, nil

	case !errors.Is(err, store.ErrNotSupported):
		return nil, errors.WithStack(err)
	}

	failures, err := h.copyTree(ctx, src, dst, resolver.DepthInfinity)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	// Sources are kept as long as their copy is incomplete
	if len(failures) > 0 {
		return failures, nil
	}

	if err := h.props.Copy(ctx, src.Path, dst, true); err != nil {
		return nil, errors.WithStack(err)
	}

	failures, err = h.deleteTree(ctx, src)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return failures, nil
}

// writeResults answers a request having processed a set of resources. A
// single failure on the target itself is reported with its own status,
// anything else with a multistatus body.
func (h *Handler) writeResults(ex *exchange, target string, failures []multistatus.Response, success int) (int, error) {
	switch {
	case len(failures) == 0:
		return success, nil

	case len(failures) == 1 && strings.TrimSuffix(failures[0].Href, "/") == strings.TrimSuffix(h.prefix+target, "/"):
		return failures[0].Status, errors.WithStack(&StatusError{Status: failures[0].Status, Path: target})

	default:
		return h.writeMultistatus(ex, failures)
	}
}

func (h *Handler) writeMultistatus(ex *exchange, responses []multistatus.Response) (int, error) {
	ex.w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	ex.w.WriteHeader(http.StatusMultiStatus)

	if err := multistatus.Encode(ex.w, responses); err != nil {
		return 0, errors.WithStack(err)
	}

	return 0, nil
}
