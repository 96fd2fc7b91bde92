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

func (h *Handler) handleCopyMove(ctx context.Context, ex *exchange) (int, error) {
	dst, err := h.destination(ex.r)
	if err != nil {
		return statusFromError(err), err
	}

	if err := h.authorize(ctx, ex, dst); err != nil {
		return statusFromError(err), err
	}

	overwrite, err := parseOverwrite(ex.r.Header.Get("Overwrite"))
	if err != nil {
		return statusFromError(err), err
	}

	depth, err := resolver.ParseDepth(ex.r.Header.Get("Depth"), resolver.DepthInfinity)
	if err != nil {
		return statusFromError(err), errors.WithStack(err)
	}

	switch {
	case ex.method == MethodMove && depth != resolver.DepthInfinity:
		return http.StatusBadRequest, errors.Wrapf(ErrInvalidHeader, "MOVE expects depth infinity, got '%s'", depth)
	case depth == resolver.DepthOne:
		return http.StatusBadRequest, errors.Wrap(ErrInvalidHeader, "COPY expects depth 0 or infinity")
	}

	if dst == ex.path {
		return http.StatusForbidden, errors.Wrapf(ErrInvalidDestination, "'%s' is both source and destination", dst)
	}

	src, err := h.resolver.Resolve(ctx, ex.path)
	if err != nil {
		return statusFromError(err), err
	}

	// Overwriting an ancestor would delete the source itself
	if store.IsRoot(dst) || store.IsDescendant(src.Path, dst) || (src.IsCollection() && store.IsDescendant(dst, src.Path)) {
		return http.StatusForbidden, errors.Wrapf(ErrInvalidDestination, "'%s' can not be moved or copied to '%s'", src.Path, dst)
	}

	if ex.method == MethodMove {
		err = h.checkLocks(ctx, ex, true, src.Path, dst)
	} else {
		err = h.checkLocks(ctx, ex, true, dst)
	}
	if err != nil {
		return statusFromError(err), err
	}

	parent, err := h.resolver.Resolve(ctx, store.Parent(dst))
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusConflict, errors.Wrapf(store.ErrConflict, "parent of '%s' does not exist", dst)
	case err != nil:
		return statusFromError(err), err
	case !parent.IsCollection():
		return http.StatusConflict, errors.Wrapf(store.ErrConflict, "parent of '%s' is not a collection", dst)
	}

	created := true

	existing, err := h.resolver.Resolve(ctx, dst)
	switch {
	case errors.Is(err, store.ErrNotFound):
	case err != nil:
		return statusFromError(err), err
	case !overwrite:
		return http.StatusPreconditionFailed, errors.Wrapf(ErrPreconditionFailed, "'%s' already exists", dst)
	default:
		created = false

		failures, err := h.deleteTree(ctx, existing)
		if err != nil {
			return statusFromError(err), err
		}

		if len(failures) > 0 {
			return h.writeResults(ex, dst, failures, 0)
		}
	}

	var failures []multistatus.Response

	if ex.method == MethodMove {
		failures, err = h.moveTree(ctx, src, dst)
		if err != nil {
			return statusFromError(err), err
		}
	} else {
		failures, err = h.copyTree(ctx, src, dst, depth)
		if err != nil {
			return statusFromError(err), err
		}

		if err := h.props.Copy(ctx, src.Path, dst, depth == resolver.DepthInfinity); err != nil {
			return statusFromError(err), errors.WithStack(err)
		}
	}

	ex.advance(StageExecuted)

	if created {
		return h.writeResults(ex, dst, failures, http.StatusCreated)
	}

	return h.writeResults(ex, dst, failures, http.StatusNoContent)
}

func parseOverwrite(raw string) (bool, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "", "T":
		return true, nil
	case "F":
		return false, nil
	default:
		return false, errors.Wrapf(ErrInvalidHeader, "invalid Overwrite header '%s'", raw)
	}
}
