package cache

import (
	"github.com/bornholm/remotedav"
	"github.com/bornholm/remotedav/store"
)

func Middleware(cache Cache) remotedav.Middleware {
	return func(next store.Store) store.Store {
		return NewStore(next, cache)
	}
}
