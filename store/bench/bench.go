package bench

import (
	"bytes"
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"

	"github.com/bornholm/remotedav"
	"github.com/bornholm/remotedav/store"
)

type storeBenchmark struct {
	Name string
	Run  func(b *testing.B, s store.Store)
}

var storeBenchmarks = []storeBenchmark{
	{
		Name: "ConcurrentWrites_1MB",
		Run: func(b *testing.B, s store.Store) {
			size := 1 * 1024 * 1024
			data := make([]byte, size)
			rand.Read(data)

			var counter int64

			b.SetBytes(int64(size))
			b.ResetTimer()

			b.RunParallel(func(pb *testing.PB) {
				for pb.Next() {
					id := atomic.AddInt64(&counter, 1)
					name := fmt.Sprintf("/bench_write_concurrent_%d.bin", id)

					if _, err := s.Write(context.Background(), name, bytes.NewReader(data), store.WriteOptions{}); err != nil {
						b.Fatalf("%+v", err)
					}
				}
			})
		},
	},
	{
		Name: "Read_1MB",
		Run: func(b *testing.B, s store.Store) {
			name := "/bench_read_source.bin"
			size := 1 * 1024 * 1024
			ctx := context.Background()

			if _, err := s.Write(ctx, name, bytes.NewReader(make([]byte, size)), store.WriteOptions{}); err != nil {
				b.Fatalf("%+v", err)
			}

			b.SetBytes(int64(size))
			b.ResetTimer()

			for i := 0; i < b.N; i++ {
				r, err := s.Read(ctx, name)
				if err != nil {
					b.Fatal(err)
				}

				if _, err := io.Copy(io.Discard, r); err != nil {
					b.Fatal(err)
				}

				r.Close()
			}
		},
	},
	{
		Name: "Stat",
		Run: func(b *testing.B, s store.Store) {
			name := "/bench_stat.txt"
			ctx := context.Background()

			if _, err := s.Write(ctx, name, bytes.NewReader([]byte("stat")), store.WriteOptions{}); err != nil {
				b.Fatalf("%+v", err)
			}

			b.ResetTimer()

			for i := 0; i < b.N; i++ {
				if _, err := s.Stat(ctx, name); err != nil {
					b.Fatal(err)
				}
			}
		},
	},
}

func RunTestSuite(b *testing.B, s store.Store) {
	s = remotedav.WithLogger(s, slog.Default())

	for _, bc := range storeBenchmarks {
		b.Run(bc.Name, func(b *testing.B) {
			bc.Run(b, s)
		})
	}
}
