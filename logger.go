package remotedav

import (
	"context"
	"io"
	"log/slog"

	"github.com/bornholm/remotedav/store"
)

type LoggerStore struct {
	logger  *slog.Logger
	backend store.Store
}

// List implements store.Store.
func (s *LoggerStore) List(ctx context.Context, name string) ([]string, error) {
	s.logger.DebugContext(ctx, "store operation", slog.String("operation", "list"), slog.String("name", name))
	return s.backend.List(ctx, name)
}

// ListInfo implements store.InfoLister.
func (s *LoggerStore) ListInfo(ctx context.Context, name string) ([]*store.Info, error) {
	s.logger.DebugContext(ctx, "store operation", slog.String("operation", "listinfo"), slog.String("name", name))
	return store.ListInfo(ctx, s.backend, name)
}

// Stat implements store.Store.
func (s *LoggerStore) Stat(ctx context.Context, name string) (*store.Info, error) {
	s.logger.DebugContext(ctx, "store operation", slog.String("operation", "stat"), slog.String("name", name))
	return s.backend.Stat(ctx, name)
}

// Read implements store.Store.
func (s *LoggerStore) Read(ctx context.Context, name string) (io.ReadCloser, error) {
	s.logger.DebugContext(ctx, "store operation", slog.String("operation", "read"), slog.String("name", name))
	return s.backend.Read(ctx, name)
}

// Write implements store.Store.
func (s *LoggerStore) Write(ctx context.Context, name string, r io.Reader, opts store.WriteOptions) (string, error) {
	s.logger.DebugContext(ctx, "store operation", slog.String("operation", "write"), slog.String("name", name), slog.String("expectedETag", opts.ExpectedETag))
	return s.backend.Write(ctx, name, r, opts)
}

// Delete implements store.Store.
func (s *LoggerStore) Delete(ctx context.Context, name string) error {
	s.logger.DebugContext(ctx, "store operation", slog.String("operation", "delete"), slog.String("name", name))
	return s.backend.Delete(ctx, name)
}

// Mkcol implements store.Store.
func (s *LoggerStore) Mkcol(ctx context.Context, name string) error {
	s.logger.DebugContext(ctx, "store operation", slog.String("operation", "mkcol"), slog.String("name", name))
	return s.backend.Mkcol(ctx, name)
}

// Move implements store.Store.
func (s *LoggerStore) Move(ctx context.Context, from, to string) error {
	s.logger.DebugContext(ctx, "store operation", slog.String("operation", "move"), slog.String("from", from), slog.String("to", to))
	return s.backend.Move(ctx, from, to)
}

// Copy implements store.Store.
func (s *LoggerStore) Copy(ctx context.Context, from, to string) error {
	s.logger.DebugContext(ctx, "store operation", slog.String("operation", "copy"), slog.String("from", from), slog.String("to", to))
	return s.backend.Copy(ctx, from, to)
}

// MoveTree implements store.TreeMover.
func (s *LoggerStore) MoveTree(ctx context.Context, from, to string) error {
	s.logger.DebugContext(ctx, "store operation", slog.String("operation", "movetree"), slog.String("from", from), slog.String("to", to))
	return store.MoveTree(ctx, s.backend, from, to)
}

func WithLogger(backend store.Store, logger *slog.Logger) *LoggerStore {
	return &LoggerStore{
		backend: backend,
		logger:  logger,
	}
}

var (
	_ store.Store      = &LoggerStore{}
	_ store.TreeMover  = &LoggerStore{}
	_ store.InfoLister = &LoggerStore{}
)
