package lock

import (
	"log/slog"
	"time"
)

type Options struct {
	Now        func() time.Time
	MaxTimeout time.Duration
	Metrics    *Metrics
	Logger     *slog.Logger
}

type OptionFunc func(opts *Options)

func NewOptions(funcs ...OptionFunc) *Options {
	opts := &Options{
		Now:        time.Now,
		MaxTimeout: 0,
		Logger:     slog.Default(),
	}

	for _, fn := range funcs {
		fn(opts)
	}

	return opts
}

// WithNow replaces the clock used to compute expiries.
func WithNow(now func() time.Time) OptionFunc {
	return func(opts *Options) {
		opts.Now = now
	}
}

// WithMaxTimeout caps the timeout of every lock. Zero disables the cap.
func WithMaxTimeout(maxTimeout time.Duration) OptionFunc {
	return func(opts *Options) {
		opts.MaxTimeout = maxTimeout
	}
}

func WithMetrics(metrics *Metrics) OptionFunc {
	return func(opts *Options) {
		opts.Metrics = metrics
	}
}

func WithLogger(logger *slog.Logger) OptionFunc {
	return func(opts *Options) {
		opts.Logger = logger
	}
}
