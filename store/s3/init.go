package s3

import (
	"context"
	"os"
	"time"

	"github.com/bornholm/remotedav/store"
	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pkg/errors"
)

const Type store.Type = "s3"

func init() {
	store.Register(Type, CreateStoreFromOptions)
}

type Options struct {
	Endpoint     string `mapstructure:"endpoint" validate:"required"`
	User         string `mapstructure:"user"`
	Secret       string `mapstructure:"secret"`
	Token        string `mapstructure:"token"`
	Secure       bool   `mapstructure:"secure"`
	Bucket       string `mapstructure:"bucket" validate:"required"`
	Region       string `mapstructure:"region"`
	BucketLookup string `mapstructure:"bucketLookup" validate:"omitempty,oneof=auto dns path"`
	// CreateBucket creates the bucket at startup when it does not exist yet.
	CreateBucket bool `mapstructure:"createBucket"`
	// Trace dumps the HTTP exchanges with the endpoint on stdout.
	Trace bool `mapstructure:"trace"`
}

func CreateStoreFromOptions(options any) (store.Store, error) {
	opts := Options{}

	if err := mapstructure.Decode(options, &opts); err != nil {
		return nil, errors.Wrapf(err, "could not parse '%s' store options", Type)
	}

	if err := validator.New().Struct(&opts); err != nil {
		return nil, errors.Wrapf(err, "invalid '%s' store options", Type)
	}

	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(opts.User, opts.Secret, opts.Token),
		Secure:       opts.Secure,
		Region:       opts.Region,
		BucketLookup: bucketLookups[opts.BucketLookup],
	})
	if err != nil {
		return nil, errors.Wrapf(err, "could not create client for endpoint '%s'", opts.Endpoint)
	}

	if opts.Trace {
		client.TraceOn(os.Stdout)
	}

	if opts.CreateBucket {
		if err := ensureBucket(client, opts.Bucket, opts.Region); err != nil {
			return nil, errors.WithStack(err)
		}
	}

	return NewStore(client, opts.Bucket), nil
}

var bucketLookups = map[string]minio.BucketLookupType{
	"":     minio.BucketLookupAuto,
	"auto": minio.BucketLookupAuto,
	"dns":  minio.BucketLookupDNS,
	"path": minio.BucketLookupPath,
}

func ensureBucket(client *minio.Client, bucket, region string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return errors.Wrapf(err, "could not check bucket '%s'", bucket)
	}

	if exists {
		return nil
	}

	if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: region}); err != nil {
		return errors.Wrapf(err, "could not create bucket '%s'", bucket)
	}

	return nil
}
