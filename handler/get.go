package handler

import (
	"context"
	"io"
	"mime"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/bornholm/remotedav/resolver"
	"github.com/bornholm/remotedav/store"
	"github.com/pkg/errors"
)

func (h *Handler) handleGetHead(ctx context.Context, ex *exchange) (int, error) {
	if err := h.authorize(ctx, ex, ""); err != nil {
		return statusFromError(err), err
	}

	res, err := h.resolver.Resolve(ctx, ex.path)
	if err != nil {
		return statusFromError(err), err
	}

	if res.IsCollection() {
		ex.w.Header().Set("Allow", "OPTIONS, PROPFIND, PROPPATCH, DELETE, MOVE, COPY, LOCK, UNLOCK")
		return http.StatusMethodNotAllowed, errors.Wrapf(ErrMethodNotAllowed, "'%s' is a collection", ex.path)
	}

	ex.advance(StageLockChecked)

	header := ex.w.Header()

	if res.ETag != "" {
		header.Set("ETag", res.ETag)
	}

	if ifNoneMatch := ex.r.Header.Get("If-None-Match"); ifNoneMatch != "" && matchETags(ifNoneMatch, res.ETag, true) {
		return http.StatusNotModified, nil
	}

	if ifMatch := ex.r.Header.Get("If-Match"); ifMatch != "" && !matchETags(ifMatch, res.ETag, true) {
		return http.StatusPreconditionFailed, errors.Wrapf(ErrPreconditionFailed, "etag of '%s' does not match '%s'", ex.path, ifMatch)
	}

	header.Set("Content-Type", contentType(res))
	header.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": res.Name()}))
	header.Set("Accept-Ranges", "bytes")

	if !res.ModTime.IsZero() {
		header.Set("Last-Modified", res.ModTime.UTC().Format(http.TimeFormat))
	}

	if ex.method == MethodHead {
		header.Set("Content-Length", strconv.FormatInt(res.Size, 10))
		ex.w.WriteHeader(http.StatusOK)
		ex.advance(StageExecuted)
		return 0, nil
	}

	reader, err := h.store.Read(ctx, ex.path)
	if err != nil {
		return statusFromError(err), errors.WithStack(err)
	}

	defer reader.Close()

	ex.advance(StageExecuted)

	if seeker, ok := reader.(io.ReadSeeker); ok {
		http.ServeContent(ex.w, ex.r, res.Name(), res.ModTime, seeker)
		return 0, nil
	}

	header.Set("Content-Length", strconv.FormatInt(res.Size, 10))
	ex.w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(ex.w, reader); err != nil {
		return 0, errors.WithStack(err)
	}

	return 0, nil
}

// contentType returns the content type reported by the store, guessing it
// from the name extension when missing.
func contentType(res *resolver.Resource) string {
	if res.ContentType != "" {
		return res.ContentType
	}

	if guessed := mime.TypeByExtension(path.Ext(res.Path)); guessed != "" {
		return guessed
	}

	return "application/octet-stream"
}

// matchETags reports whether an If-Match or If-None-Match value matches the
// entity tag. A wildcard matches any existing resource.
func matchETags(header string, etag string, exists bool) bool {
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)

		if candidate == "*" {
			return exists
		}

		if etag != "" && store.ETagMatch(candidate, etag) {
			return true
		}
	}

	return false
}
