package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/bornholm/remotedav/authz"
	"github.com/bornholm/remotedav/lock"
	"github.com/bornholm/remotedav/multistatus"
	"github.com/bornholm/remotedav/resolver"
	"github.com/bornholm/remotedav/store"
	"github.com/pkg/errors"
)

var (
	ErrPrefixMismatch     = errors.New("prefix mismatch")
	ErrDestinationServer  = errors.New("destination on another server")
	ErrMissingHeader      = errors.New("missing header")
	ErrInvalidHeader      = errors.New("invalid header")
	ErrPreconditionFailed = errors.New("precondition failed")
	ErrMethodNotAllowed   = errors.New("method not allowed")
	ErrUnsupportedBody    = errors.New("unsupported request body")
	ErrInvalidDestination = errors.New("invalid destination")
)

// StatusError reports a failure whose response status was already decided,
// such as the status of a resource processed by a tree operation.
type StatusError struct {
	Status int
	Path   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("'%s' failed with status %d", e.Path, e.Status)
}

// statusFromError maps an error to the status of the response.
func statusFromError(err error) int {
	var statusErr *StatusError

	switch {
	case err == nil:
		return http.StatusOK

	case errors.As(err, &statusErr):
		return statusErr.Status

	case errors.Is(err, resolver.ErrBadPath),
		errors.Is(err, resolver.ErrBadDepth),
		errors.Is(err, multistatus.ErrMalformed),
		errors.Is(err, ErrMissingHeader),
		errors.Is(err, ErrInvalidHeader):
		return http.StatusBadRequest

	case errors.Is(err, authz.ErrUnauthenticated):
		return http.StatusUnauthorized

	case errors.Is(err, resolver.ErrDepthForbidden),
		errors.Is(err, authz.ErrForbidden),
		errors.Is(err, ErrInvalidDestination):
		return http.StatusForbidden

	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, ErrPrefixMismatch):
		return http.StatusNotFound

	case errors.Is(err, ErrMethodNotAllowed):
		return http.StatusMethodNotAllowed

	case errors.Is(err, store.ErrETagMismatch),
		errors.Is(err, lock.ErrInvalidToken),
		errors.Is(err, ErrPreconditionFailed):
		return http.StatusPreconditionFailed

	case errors.Is(err, store.ErrConflict),
		errors.Is(err, store.ErrExist):
		return http.StatusConflict

	case errors.Is(err, ErrUnsupportedBody):
		return http.StatusUnsupportedMediaType

	case errors.Is(err, lock.ErrLocked):
		return http.StatusLocked

	case errors.Is(err, ErrDestinationServer):
		return http.StatusBadGateway

	case errors.Is(err, store.ErrNotSupported):
		return http.StatusNotImplemented

	case errors.Is(err, store.ErrUnavailable):
		return http.StatusServiceUnavailable

	case errors.Is(err, store.ErrInsufficientStorage):
		return http.StatusInsufficientStorage

	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable

	default:
		return http.StatusInternalServerError
	}
}
