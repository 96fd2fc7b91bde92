package retry

import (
	"github.com/bornholm/remotedav"
	"github.com/bornholm/remotedav/store"
)

func Middleware(funcs ...OptionFunc) remotedav.Middleware {
	return func(next store.Store) store.Store {
		return NewStore(next, funcs...)
	}
}
