package sqlite

import (
	"github.com/bornholm/remotedav/store"
	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
)

const Type store.Type = "sqlite"

func init() {
	store.Register(Type, CreateStoreFromOptions)
}

type Options struct {
	Path string `mapstructure:"path" validate:"required"`
}

func CreateStoreFromOptions(options any) (store.Store, error) {
	opts := Options{}

	if err := mapstructure.Decode(options, &opts); err != nil {
		return nil, errors.Wrapf(err, "could not parse '%s' store options", Type)
	}

	validate := validator.New()
	if err := validate.Struct(&opts); err != nil {
		return nil, errors.Wrap(err, "could not validate sqlite store options")
	}

	return NewStore(opts.Path), nil
}
