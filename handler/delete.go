package handler

import (
	"context"
	"net/http"

	"github.com/bornholm/remotedav/resolver"
	"github.com/pkg/errors"
)

func (h *Handler) handleDelete(ctx context.Context, ex *exchange) (int, error) {
	depth, err := resolver.ParseDepth(ex.r.Header.Get("Depth"), resolver.DepthInfinity)
	if err != nil {
		return statusFromError(err), errors.WithStack(err)
	}

	if depth != resolver.DepthInfinity {
		return http.StatusBadRequest, errors.Wrapf(ErrInvalidHeader, "DELETE expects depth infinity, got '%s'", depth)
	}

	if err := h.authorize(ctx, ex, ""); err != nil {
		return statusFromError(err), err
	}

	res, err := h.resolver.Resolve(ctx, ex.path)
	if err != nil {
		return statusFromError(err), err
	}

	if err := h.checkLocks(ctx, ex, true, ex.path); err != nil {
		return statusFromError(err), err
	}

	failures, err := h.deleteTree(ctx, res)
	if err != nil {
		return statusFromError(err), err
	}

	ex.advance(StageExecuted)

	return h.writeResults(ex, ex.path, failures, http.StatusNoContent)
}
