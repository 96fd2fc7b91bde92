package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/bornholm/remotedav/store"
	"github.com/pkg/errors"
)

func (h *Handler) handleMkcol(ctx context.Context, ex *exchange) (int, error) {
	if err := h.authorize(ctx, ex, ""); err != nil {
		return statusFromError(err), err
	}

	if ex.r.Body != nil {
		n, err := io.Copy(io.Discard, io.LimitReader(ex.r.Body, 1))
		if err != nil {
			return statusFromError(err), errors.WithStack(err)
		}

		if n > 0 {
			return http.StatusUnsupportedMediaType, errors.Wrap(ErrUnsupportedBody, "MKCOL does not accept a body")
		}
	}

	if err := h.checkLocks(ctx, ex, false, ex.path); err != nil {
		return statusFromError(err), err
	}

	if err := h.store.Mkcol(ctx, ex.path); err != nil {
		if errors.Is(err, store.ErrExist) {
			ex.w.Header().Set("Allow", Allow())
			return http.StatusMethodNotAllowed, errors.WithStack(err)
		}

		return statusFromError(err), errors.WithStack(err)
	}

	ex.advance(StageExecuted)

	return http.StatusCreated, nil
}
