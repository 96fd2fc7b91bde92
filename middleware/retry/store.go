// Package retry retries the idempotent operations of a store failing with
// store.ErrUnavailable.
package retry

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/bornholm/remotedav/store"
	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
)

type Options struct {
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

type OptionFunc func(opts *Options)

func NewOptions(funcs ...OptionFunc) *Options {
	opts := &Options{
		MaxRetries:      3,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     2 * time.Second,
	}

	for _, fn := range funcs {
		fn(opts)
	}

	return opts
}

func WithMaxRetries(maxRetries uint64) OptionFunc {
	return func(opts *Options) {
		opts.MaxRetries = maxRetries
	}
}

func WithInterval(initial, max time.Duration) OptionFunc {
	return func(opts *Options) {
		opts.InitialInterval = initial
		opts.MaxInterval = max
	}
}

// Store retries Stat, List, ListInfo and Read. Every other operation is
// forwarded once.
type Store struct {
	backend store.Store
	opts    *Options
}

// List implements store.Store.
func (s *Store) List(ctx context.Context, name string) ([]string, error) {
	var names []string

	err := s.retry(ctx, "list", name, func() (err error) {
		names, err = s.backend.List(ctx, name)
		return err
	})
	if err != nil {
		return nil, err
	}

	return names, nil
}

// ListInfo implements store.InfoLister.
func (s *Store) ListInfo(ctx context.Context, name string) ([]*store.Info, error) {
	var infos []*store.Info

	err := s.retry(ctx, "listinfo", name, func() (err error) {
		infos, err = store.ListInfo(ctx, s.backend, name)
		return err
	})
	if err != nil {
		return nil, err
	}

	return infos, nil
}

// Stat implements store.Store.
func (s *Store) Stat(ctx context.Context, name string) (*store.Info, error) {
	var info *store.Info

	err := s.retry(ctx, "stat", name, func() (err error) {
		info, err = s.backend.Stat(ctx, name)
		return err
	})
	if err != nil {
		return nil, err
	}

	return info, nil
}

// Read implements store.Store.
func (s *Store) Read(ctx context.Context, name string) (io.ReadCloser, error) {
	var reader io.ReadCloser

	err := s.retry(ctx, "read", name, func() (err error) {
		reader, err = s.backend.Read(ctx, name)
		return err
	})
	if err != nil {
		return nil, err
	}

	return reader, nil
}

// Write implements store.Store.
func (s *Store) Write(ctx context.Context, name string, r io.Reader, opts store.WriteOptions) (string, error) {
	return s.backend.Write(ctx, name, r, opts)
}

// Delete implements store.Store.
func (s *Store) Delete(ctx context.Context, name string) error {
	return s.backend.Delete(ctx, name)
}

// Mkcol implements store.Store.
func (s *Store) Mkcol(ctx context.Context, name string) error {
	return s.backend.Mkcol(ctx, name)
}

// Move implements store.Store.
func (s *Store) Move(ctx context.Context, from string, to string) error {
	return s.backend.Move(ctx, from, to)
}

// Copy implements store.Store.
func (s *Store) Copy(ctx context.Context, from string, to string) error {
	return s.backend.Copy(ctx, from, to)
}

// MoveTree implements store.TreeMover.
func (s *Store) MoveTree(ctx context.Context, from string, to string) error {
	return store.MoveTree(ctx, s.backend, from, to)
}

func (s *Store) retry(ctx context.Context, operation string, name string, fn func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.opts.InitialInterval
	b.MaxInterval = s.opts.MaxInterval
	b.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(b, s.opts.MaxRetries), ctx)

	err := backoff.RetryNotify(
		func() error {
			err := fn()
			if err != nil && !errors.Is(err, store.ErrUnavailable) {
				return backoff.Permanent(err)
			}

			return err
		},
		policy,
		func(err error, wait time.Duration) {
			slog.WarnContext(ctx, "store unavailable, retrying",
				slog.String("operation", operation),
				slog.String("name", name),
				slog.Duration("wait", wait),
				slog.Any("error", errors.WithStack(err)),
			)
		},
	)
	if err != nil {
		return errors.WithStack(err)
	}

	return nil
}

func NewStore(backend store.Store, funcs ...OptionFunc) *Store {
	return &Store{
		backend: backend,
		opts:    NewOptions(funcs...),
	}
}

var (
	_ store.Store      = &Store{}
	_ store.TreeMover  = &Store{}
	_ store.InfoLister = &Store{}
)
