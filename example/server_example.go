package example

import (
	"log/slog"
	"net/http"

	"github.com/bornholm/remotedav/handler"
	"github.com/bornholm/remotedav/lock"
	"github.com/bornholm/remotedav/middleware/logger"
	"github.com/bornholm/remotedav/store/local"
)

func ExampleServer() {
	s := local.NewStore("my/dir")

	locks := lock.NewManager(lock.NewMemoryStore())

	h := handler.New(s,
		handler.WithLockManager(locks),
		handler.WithMiddlewares(logger.Middleware(slog.Default())),
	)

	if err := http.ListenAndServe(":7860", h); err != nil {
		panic(err)
	}
}
