// Package handler serves the WebDAV methods over a store.
package handler

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bornholm/remotedav"
	"github.com/bornholm/remotedav/authz"
	"github.com/bornholm/remotedav/deadprops"
	"github.com/bornholm/remotedav/lock"
	"github.com/bornholm/remotedav/middleware/retry"
	"github.com/bornholm/remotedav/resolver"
	"github.com/bornholm/remotedav/store"
	"github.com/pkg/errors"
)

type Handler struct {
	store      store.Store
	resolver   *resolver.Resolver
	locks      *lock.Manager
	props      deadprops.Store
	authorizer authz.Authorizer
	prefix     string
	logger     Logger
	metrics    *Metrics
	now        func() time.Time
}

// exchange carries the state of a single request.
type exchange struct {
	w      http.ResponseWriter
	r      *http.Request
	method Method
	// path is the cleaned request path, prefix excluded
	path  string
	stage Stage
}

func (ex *exchange) advance(stage Stage) {
	if stage > ex.stage {
		ex.stage = stage
	}
}

type handlerFunc func(ctx context.Context, ex *exchange) (int, error)

// ServeHTTP implements [http.Handler].
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	recorder := &statusRecorder{ResponseWriter: w}
	done := h.metrics.start()

	method, known := ParseMethod(r.Method)

	status, err := h.serve(recorder, r, method, known)
	if status != 0 && !recorder.written() {
		writeStatus(recorder, status)
	}

	if h.logger != nil {
		h.logger(r, err)
	}

	label := string(method)
	if !known {
		label = "other"
	}

	done(label, recorder.status())
}

func (h *Handler) serve(w http.ResponseWriter, r *http.Request, method Method, known bool) (int, error) {
	if !known {
		w.Header().Set("Allow", Allow())
		return http.StatusMethodNotAllowed, errors.Wrapf(ErrMethodNotAllowed, "unknown method '%s'", r.Method)
	}

	ex := &exchange{
		w:      w,
		r:      r,
		method: method,
		stage:  StageReceived,
	}

	name, err := h.requestPath(r.URL)
	if err != nil {
		return statusFromError(err), errors.WithStack(err)
	}

	ex.path = name

	var fn handlerFunc

	switch method {
	case MethodOptions:
		fn = h.handleOptions
	case MethodGet, MethodHead:
		fn = h.handleGetHead
	case MethodPut:
		fn = h.handlePut
	case MethodDelete:
		fn = h.handleDelete
	case MethodMkcol:
		fn = h.handleMkcol
	case MethodCopy, MethodMove:
		fn = h.handleCopyMove
	case MethodPropfind:
		fn = h.handlePropfind
	case MethodProppatch:
		fn = h.handleProppatch
	case MethodLock:
		fn = h.handleLock
	case MethodUnlock:
		fn = h.handleUnlock
	}

	status, err := fn(r.Context(), ex)
	ex.advance(StageResponded)

	if err != nil {
		return status, errors.Wrapf(err, "%s '%s' failed at stage '%s'", method, ex.path, ex.stage)
	}

	return status, nil
}

// authorize submits the request to the authorizer. Destination is empty for
// methods other than COPY and MOVE.
func (h *Handler) authorize(ctx context.Context, ex *exchange, destination string) error {
	if h.authorizer != nil {
		err := h.authorizer.Authorize(ctx, authz.Request{
			Method:      string(ex.method),
			Path:        ex.path,
			Destination: destination,
		})
		if err != nil {
			return errors.WithStack(err)
		}
	}

	ex.advance(StageAuthorized)

	return nil
}

// checkLocks evaluates the If header against the target and verifies that the
// submitted tokens satisfy the locks covering each of the given paths.
func (h *Handler) checkLocks(ctx context.Context, ex *exchange, recursive bool, names ...string) error {
	tokens, err := h.evaluateIf(ctx, ex, append([]string{ex.path}, names...)...)
	if err != nil {
		return errors.WithStack(err)
	}

	for _, name := range names {
		if err := h.locks.Check(ctx, name, recursive, tokens); err != nil {
			return errors.WithStack(err)
		}
	}

	ex.advance(StageLockChecked)

	return nil
}

// evaluateIf returns the lock tokens submitted in the If header, failing with
// ErrPreconditionFailed when none of its lists holds. Untagged lists are
// evaluated against each of the given names and hold if one of them matches.
func (h *Handler) evaluateIf(ctx context.Context, ex *exchange, names ...string) ([]string, error) {
	raw := ex.r.Header.Get("If")
	if raw == "" {
		return nil, nil
	}

	header, err := parseIfHeader(raw)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	for _, list := range header.lists {
		targets := names

		if list.resourceTag != "" {
			u, err := url.Parse(list.resourceTag)
			if err != nil {
				continue
			}

			if u.Host != "" && u.Host != ex.r.Host {
				continue
			}

			target, err := h.requestPath(u)
			if err != nil {
				continue
			}

			targets = []string{target}
		}

		for _, target := range targets {
			holds, err := h.evaluateList(ctx, target, list)
			if err != nil {
				return nil, errors.WithStack(err)
			}

			if holds {
				return header.tokens(), nil
			}
		}
	}

	return nil, errors.Wrapf(ErrPreconditionFailed, "no condition of If header '%s' holds", raw)
}

func (h *Handler) evaluateList(ctx context.Context, target string, list ifList) (bool, error) {
	for _, cond := range list.conditions {
		var holds bool

		if cond.Token != "" {
			l, err := h.locks.Lookup(ctx, cond.Token)
			switch {
			case errors.Is(err, lock.ErrInvalidToken):
				holds = false
			case err != nil:
				return false, errors.WithStack(err)
			default:
				// Tokens of locks held below the target are accepted for
				// the operations spanning a whole collection
				holds = l.Covers(target) || store.IsDescendant(l.Root, target)
			}
		} else {
			res, err := h.resolver.Resolve(ctx, target)
			switch {
			case errors.Is(err, store.ErrNotFound):
				holds = false
			case err != nil:
				return false, errors.WithStack(err)
			default:
				holds = store.ETagMatch(res.ETag, cond.ETag)
			}
		}

		if holds == cond.Not {
			return false, nil
		}
	}

	return true, nil
}

// requestPath strips the prefix from an URL and cleans the remaining path.
func (h *Handler) requestPath(u *url.URL) (string, error) {
	escaped := u.EscapedPath()

	if h.prefix != "" {
		trimmed := strings.TrimPrefix(escaped, h.prefix)
		if len(trimmed) == len(escaped) || (trimmed != "" && trimmed[0] != '/') {
			return "", errors.Wrapf(ErrPrefixMismatch, "path '%s' is not under '%s'", escaped, h.prefix)
		}

		escaped = trimmed
	}

	name, err := resolver.Clean(escaped)
	if err != nil {
		return "", errors.WithStack(err)
	}

	return name, nil
}

// destination parses the Destination header of COPY and MOVE requests.
func (h *Handler) destination(r *http.Request) (string, error) {
	raw := r.Header.Get("Destination")
	if raw == "" {
		return "", errors.Wrap(ErrMissingHeader, "missing Destination header")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", errors.Wrapf(ErrInvalidHeader, "invalid Destination header '%s': %s", raw, err.Error())
	}

	if u.Host != "" && u.Host != r.Host {
		return "", errors.Wrapf(ErrDestinationServer, "destination '%s' is not served by '%s'", raw, r.Host)
	}

	name, err := h.requestPath(u)
	if err != nil {
		return "", errors.WithStack(err)
	}

	return name, nil
}

// href returns the unescaped href of a resource, with a trailing slash for
// collections.
func (h *Handler) href(res *resolver.Resource) string {
	href := h.prefix + res.Path

	if res.IsCollection() && !strings.HasSuffix(href, "/") {
		href += "/"
	}

	return href
}

// forget drops the locks and dead properties attached to a removed resource.
func (h *Handler) forget(ctx context.Context, name string) error {
	if _, err := h.locks.Purge(ctx, name); err != nil {
		return errors.WithStack(err)
	}

	if err := h.props.RemoveAll(ctx, name); err != nil {
		return errors.WithStack(err)
	}

	return nil
}

func New(s store.Store, funcs ...OptionFunc) *Handler {
	opts := NewOptions(funcs...)

	backend := remotedav.Chain(s, opts.Middlewares...)

	if opts.Retry != nil {
		backend = retry.NewStore(backend, opts.Retry...)
	}

	return &Handler{
		store:      backend,
		resolver:   resolver.New(backend),
		locks:      opts.LockManager,
		props:      opts.DeadProps,
		authorizer: opts.Authorizer,
		prefix:     strings.TrimSuffix(opts.Prefix, "/"),
		logger:     opts.Logger,
		metrics:    opts.Metrics,
		now:        time.Now,
	}
}

var _ http.Handler = &Handler{}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.code == 0 {
		r.code = code
	}

	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(data []byte) (int, error) {
	if r.code == 0 {
		r.code = http.StatusOK
	}

	return r.ResponseWriter.Write(data)
}

func (r *statusRecorder) Flush() {
	if flusher, ok := r.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func (r *statusRecorder) written() bool {
	return r.code != 0
}

func (r *statusRecorder) status() int {
	if r.code == 0 {
		return http.StatusOK
	}

	return r.code
}

func writeStatus(w http.ResponseWriter, status int) {
	w.WriteHeader(status)

	if status != http.StatusNoContent && status != http.StatusNotModified {
		w.Write([]byte(http.StatusText(status)))
	}
}
