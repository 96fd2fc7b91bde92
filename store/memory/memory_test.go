package memory

import (
	"context"
	"strings"
	"testing"

	"github.com/bornholm/remotedav/store"
	"github.com/bornholm/remotedav/store/bench"
	"github.com/bornholm/remotedav/store/testsuite"
	"github.com/pkg/errors"
)

func TestStore(t *testing.T) {
	testsuite.TestStore(t, NewStore(0))
}

func TestCapacity(t *testing.T) {
	ctx := context.Background()
	s := NewStore(10)

	if _, err := s.Write(ctx, "/a.txt", strings.NewReader("12345678"), store.WriteOptions{}); err != nil {
		t.Fatalf("%+v", errors.WithStack(err))
	}

	_, err := s.Write(ctx, "/b.txt", strings.NewReader("12345"), store.WriteOptions{})
	if !errors.Is(err, store.ErrInsufficientStorage) {
		t.Fatalf("expected ErrInsufficientStorage, got '%v'", err)
	}

	// Replacing an existing member only accounts for the difference
	if _, err := s.Write(ctx, "/a.txt", strings.NewReader("0123456789"), store.WriteOptions{}); err != nil {
		t.Fatalf("%+v", errors.WithStack(err))
	}

	if e, g := int64(10), s.Used(); e != g {
		t.Errorf("s.Used(): expected '%v', got '%v'", e, g)
	}

	if err := s.Delete(ctx, "/a.txt"); err != nil {
		t.Fatalf("%+v", errors.WithStack(err))
	}

	if e, g := int64(0), s.Used(); e != g {
		t.Errorf("s.Used(): expected '%v', got '%v'", e, g)
	}
}

func TestCreateStoreFromOptions(t *testing.T) {
	s, err := CreateStoreFromOptions(map[string]any{
		"capacity": "1KiB",
	})
	if err != nil {
		t.Fatalf("%+v", errors.WithStack(err))
	}

	if e, g := int64(1024), s.(*Store).capacity; e != g {
		t.Errorf("capacity: expected '%v', got '%v'", e, g)
	}

	if _, err := CreateStoreFromOptions(map[string]any{"capacity": "lots"}); err == nil {
		t.Error("expected an error for an invalid capacity")
	}
}

func BenchmarkStore(b *testing.B) {
	bench.RunTestSuite(b, NewStore(0))
}
