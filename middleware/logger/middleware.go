package logger

import (
	"log/slog"

	"github.com/bornholm/remotedav"
	"github.com/bornholm/remotedav/store"
)

func Middleware(logger *slog.Logger) remotedav.Middleware {
	return func(next store.Store) store.Store {
		return remotedav.WithLogger(next, logger)
	}
}
