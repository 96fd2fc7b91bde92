package handler

import (
	"bytes"
	"context"
	"io"
	"mime"
	"net/http"
	"path"
	"strings"

	"github.com/bornholm/remotedav/store"
	"github.com/gabriel-vasile/mimetype"
	"github.com/pkg/errors"
)

// sniffSize is the amount of bytes inspected to detect a content type.
const sniffSize = 3072

func (h *Handler) handlePut(ctx context.Context, ex *exchange) (int, error) {
	if err := h.authorize(ctx, ex, ""); err != nil {
		return statusFromError(err), err
	}

	if store.IsRoot(ex.path) {
		return http.StatusMethodNotAllowed, errors.Wrap(ErrMethodNotAllowed, "root is a collection")
	}

	if err := h.checkLocks(ctx, ex, false, ex.path); err != nil {
		return statusFromError(err), err
	}

	exists := true

	res, err := h.resolver.Resolve(ctx, ex.path)
	switch {
	case errors.Is(err, store.ErrNotFound):
		exists = false
	case err != nil:
		return statusFromError(err), err
	case res.IsCollection():
		return http.StatusMethodNotAllowed, errors.Wrapf(ErrMethodNotAllowed, "'%s' is a collection", ex.path)
	}

	opts := store.WriteOptions{}

	if ifNoneMatch := ex.r.Header.Get("If-None-Match"); ifNoneMatch != "" {
		etag := ""
		if exists {
			etag = res.ETag
		}

		if matchETags(ifNoneMatch, etag, exists) {
			return http.StatusPreconditionFailed, errors.Wrapf(ErrPreconditionFailed, "'%s' matches '%s'", ex.path, ifNoneMatch)
		}
	}

	if ifMatch := strings.TrimSpace(ex.r.Header.Get("If-Match")); ifMatch != "" {
		if !exists {
			return http.StatusPreconditionFailed, errors.Wrapf(ErrPreconditionFailed, "'%s' does not exist", ex.path)
		}

		if ifMatch != "*" {
			if !matchETags(ifMatch, res.ETag, exists) {
				return http.StatusPreconditionFailed, errors.Wrapf(ErrPreconditionFailed, "etag of '%s' does not match '%s'", ex.path, ifMatch)
			}

			// The store verifies the tag again when replacing the content
			opts.ExpectedETag = res.ETag
		}
	}

	body, contentType, err := detectContentType(ex.r, ex.path)
	if err != nil {
		return statusFromError(err), err
	}

	opts.ContentType = contentType

	etag, err := h.store.Write(ctx, ex.path, body, opts)
	if err != nil {
		return statusFromError(err), errors.WithStack(err)
	}

	ex.advance(StageExecuted)

	if etag != "" {
		ex.w.Header().Set("ETag", etag)
	}

	if exists {
		return http.StatusNoContent, nil
	}

	return http.StatusCreated, nil
}

// detectContentType returns the content type of the request body: the one
// declared by the client, else the one registered for the name extension,
// else the one sniffed from the first bytes of the body.
func detectContentType(r *http.Request, name string) (io.Reader, string, error) {
	var body io.Reader = r.Body
	if body == nil {
		body = http.NoBody
	}

	if declared := r.Header.Get("Content-Type"); declared != "" {
		return body, declared, nil
	}

	if guessed := mime.TypeByExtension(path.Ext(name)); guessed != "" {
		return body, guessed, nil
	}

	head := make([]byte, sniffSize)

	n, err := io.ReadFull(body, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, "", errors.WithStack(err)
	}

	head = head[:n]

	return io.MultiReader(bytes.NewReader(head), body), mimetype.Detect(head).String(), nil
}
