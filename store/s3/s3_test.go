package s3

import (
	"context"
	"testing"

	"github.com/bornholm/remotedav/store"
	"github.com/bornholm/remotedav/store/bench"
	"github.com/bornholm/remotedav/store/testsuite"
	"github.com/pkg/errors"
	"github.com/testcontainers/testcontainers-go"
	testminio "github.com/testcontainers/testcontainers-go/modules/minio"
)

const (
	minioImage    = "minio/minio:RELEASE.2024-01-16T16-07-38Z"
	minioUser     = "remotedav"
	minioPassword = "remotedav-secret"
)

func TestStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container based test in short mode")
	}

	testsuite.TestStore(t, startStore(t))
}

func BenchmarkStore(b *testing.B) {
	bench.RunTestSuite(b, startStore(b))
}

// startStore runs a MinIO container and opens a store on a fresh bucket
// through the registered factory.
func startStore(tb testing.TB) store.Store {
	ctx := context.Background()

	ctr, err := testminio.Run(ctx, minioImage,
		testminio.WithUsername(minioUser),
		testminio.WithPassword(minioPassword),
	)
	tb.Cleanup(func() {
		if err := testcontainers.TerminateContainer(ctr); err != nil {
			tb.Logf("could not terminate container: %+v", errors.WithStack(err))
		}
	})
	if err != nil {
		tb.Fatalf("could not start minio: %+v", errors.WithStack(err))
	}

	endpoint, err := ctr.ConnectionString(ctx)
	if err != nil {
		tb.Fatalf("could not retrieve connection string: %+v", errors.WithStack(err))
	}

	s, err := store.New(Type, map[string]any{
		"endpoint":     endpoint,
		"user":         minioUser,
		"secret":       minioPassword,
		"bucket":       "remotedav",
		"bucketLookup": "path",
		"createBucket": true,
	})
	if err != nil {
		tb.Fatalf("%+v", errors.WithStack(err))
	}

	return s
}
