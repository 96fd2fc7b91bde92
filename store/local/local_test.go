package local

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bornholm/remotedav/store"
	"github.com/bornholm/remotedav/store/bench"
	"github.com/bornholm/remotedav/store/testsuite"
	"github.com/pkg/errors"
)

func TestStore(t *testing.T) {
	s := createStore(t)
	testsuite.TestStore(t, s)
}

func TestStagedWritesAreHidden(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s := NewStore(dir)

	if err := os.WriteFile(filepath.Join(dir, tempPrefix+"pending"), []byte("partial"), 0o644); err != nil {
		t.Fatalf("%+v", errors.WithStack(err))
	}

	if _, err := s.Write(ctx, "/visible.txt", strings.NewReader("visible"), store.WriteOptions{}); err != nil {
		t.Fatalf("%+v", errors.WithStack(err))
	}

	names, err := s.List(ctx, "/")
	if err != nil {
		t.Fatalf("%+v", errors.WithStack(err))
	}

	if e, g := 1, len(names); e != g {
		t.Fatalf("len(names): expected '%v', got '%v' (%v)", e, g, names)
	}

	if e, g := "visible.txt", names[0]; e != g {
		t.Errorf("names[0]: expected '%v', got '%v'", e, g)
	}
}

func BenchmarkStore(b *testing.B) {
	s := createStore(b)
	bench.RunTestSuite(b, s)
}

func createStore(t testing.TB) store.Store {
	return NewStore(t.TempDir())
}
