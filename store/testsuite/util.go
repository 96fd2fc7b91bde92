package testsuite

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"strings"

	"github.com/bornholm/remotedav/store"
	"github.com/pkg/errors"
)

// shasum calculates the SHA-256 hash of a reader's content
func shasum(r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", errors.WithStack(err)
	}

	hash := sha256.Sum256(data)

	return fmt.Sprintf("%x", hash), nil
}

func ensureCollection(ctx context.Context, s store.Store, name string) error {
	if err := s.Mkcol(ctx, name); err != nil && !errors.Is(err, store.ErrExist) {
		return errors.WithStack(err)
	}

	return nil
}

func writeString(ctx context.Context, s store.Store, name string, content string) (string, error) {
	etag, err := s.Write(ctx, name, strings.NewReader(content), store.WriteOptions{})
	if err != nil {
		return "", errors.WithStack(err)
	}

	return etag, nil
}

func readString(ctx context.Context, s store.Store, name string) (string, error) {
	r, err := s.Read(ctx, name)
	if err != nil {
		return "", errors.WithStack(err)
	}

	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return "", errors.WithStack(err)
	}

	return string(data), nil
}
