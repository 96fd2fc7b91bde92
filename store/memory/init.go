package memory

import (
	"github.com/bornholm/remotedav/store"
	"github.com/dustin/go-humanize"
	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
)

const Type store.Type = "memory"

func init() {
	store.Register(Type, CreateStoreFromOptions)
}

type Options struct {
	// Capacity bounds the total size of stored contents, e.g. "512MiB".
	// Empty means unbounded.
	Capacity string `mapstructure:"capacity"`
}

func CreateStoreFromOptions(options any) (store.Store, error) {
	opts := Options{}

	if err := mapstructure.Decode(options, &opts); err != nil {
		return nil, errors.Wrapf(err, "could not parse '%s' store options", Type)
	}

	var capacity uint64
	if opts.Capacity != "" {
		c, err := humanize.ParseBytes(opts.Capacity)
		if err != nil {
			return nil, errors.Wrapf(err, "could not parse capacity '%s'", opts.Capacity)
		}
		capacity = c
	}

	return NewStore(int64(capacity)), nil
}
