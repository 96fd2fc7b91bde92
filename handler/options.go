package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/bornholm/remotedav"
	"github.com/bornholm/remotedav/authz"
	"github.com/bornholm/remotedav/deadprops"
	"github.com/bornholm/remotedav/lock"
	"github.com/bornholm/remotedav/middleware/retry"
	"github.com/pkg/errors"
)

// Logger is called once per request with the error that interrupted it, if
// any.
type Logger func(r *http.Request, err error)

type Options struct {
	Prefix      string
	Middlewares []remotedav.Middleware
	LockManager *lock.Manager
	DeadProps   deadprops.Store
	// Authorizer, when nil, grants every request
	Authorizer authz.Authorizer
	Logger     Logger
	Metrics    *Metrics
	// Retry configures the retry of idempotent store calls, nil disables it
	Retry []retry.OptionFunc
}

type OptionFunc func(opts *Options)

func WithPrefix(prefix string) OptionFunc {
	return func(opts *Options) {
		opts.Prefix = prefix
	}
}

func WithMiddlewares(middewares ...remotedav.Middleware) OptionFunc {
	return func(opts *Options) {
		opts.Middlewares = middewares
	}
}

func WithLockManager(manager *lock.Manager) OptionFunc {
	return func(opts *Options) {
		opts.LockManager = manager
	}
}

func WithDeadProps(store deadprops.Store) OptionFunc {
	return func(opts *Options) {
		opts.DeadProps = store
	}
}

func WithAuthorizer(authorizer authz.Authorizer) OptionFunc {
	return func(opts *Options) {
		opts.Authorizer = authorizer
	}
}

func WithLogger(logger Logger) OptionFunc {
	return func(opts *Options) {
		opts.Logger = logger
	}
}

func WithMetrics(metrics *Metrics) OptionFunc {
	return func(opts *Options) {
		opts.Metrics = metrics
	}
}

func WithRetry(funcs ...retry.OptionFunc) OptionFunc {
	return func(opts *Options) {
		opts.Retry = funcs
	}
}

func WithoutRetry() OptionFunc {
	return func(opts *Options) {
		opts.Retry = nil
	}
}

// DefaultLogger logs server side failures as errors and client side ones
// at debug level. Cancelled requests are ignored.
func DefaultLogger(r *http.Request, err error) {
	if err == nil || errors.Is(err, context.Canceled) {
		return
	}

	status := statusFromError(err)

	level := slog.LevelDebug
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}

	slog.Log(r.Context(), level, err.Error(),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.Int("status", status),
		slog.Any("error", errors.WithStack(err)),
	)
}

func NewOptions(funcs ...OptionFunc) *Options {
	opts := &Options{
		Prefix:      "",
		Middlewares: []remotedav.Middleware{},
		Logger:      DefaultLogger,
		Retry:       []retry.OptionFunc{},
	}

	for _, fn := range funcs {
		fn(opts)
	}

	if opts.LockManager == nil {
		opts.LockManager = lock.NewManager(lock.NewMemoryStore())
	}

	if opts.DeadProps == nil {
		opts.DeadProps = deadprops.NewMemStore()
	}

	return opts
}
