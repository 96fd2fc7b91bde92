package handler

import (
	"context"
	"net/http"
)

// handleOptions advertises the supported methods and DAV compliance classes.
// It is answered before authorization.
func (h *Handler) handleOptions(ctx context.Context, ex *exchange) (int, error) {
	header := ex.w.Header()

	header.Set("Allow", Allow())
	header.Set("DAV", "1, 2")
	header.Set("MS-Author-Via", "DAV")
	header.Set("Content-Length", "0")

	ex.advance(StageExecuted)

	ex.w.WriteHeader(http.StatusOK)

	return 0, nil
}
