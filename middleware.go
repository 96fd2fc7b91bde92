package remotedav

import "github.com/bornholm/remotedav/store"

type Middleware func(next store.Store) store.Store

// Chain wraps the store with the given middlewares, the first one being the
// outermost.
func Chain(s store.Store, middlewares ...Middleware) store.Store {
	for i := len(middlewares) - 1; i >= 0; i-- {
		s = middlewares[i](s)
	}

	return s
}
