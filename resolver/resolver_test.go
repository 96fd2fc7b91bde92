package resolver

import (
	"context"
	"strings"
	"testing"

	"github.com/bornholm/remotedav/store"
	"github.com/bornholm/remotedav/store/memory"
	"github.com/pkg/errors"
)

func TestClean(t *testing.T) {
	type testCase struct {
		Raw         string
		Expected    string
		ExpectedErr error
	}

	testCases := []testCase{
		{Raw: "", Expected: "/"},
		{Raw: "/", Expected: "/"},
		{Raw: "/docs/", Expected: "/docs"},
		{Raw: "docs//a.txt", Expected: "/docs/a.txt"},
		{Raw: "/docs/./a.txt", Expected: "/docs/a.txt"},
		{Raw: "/caf%C3%A9/menu.txt", Expected: "/café/menu.txt"},
		{Raw: "/100%25.txt", Expected: "/100%.txt"},
		{Raw: "/a%252e%252e/b", Expected: "/a%2e%2e/b"},
		{Raw: "/docs/../etc/passwd", ExpectedErr: ErrBadPath},
		{Raw: "/docs/%2e%2e/etc", ExpectedErr: ErrBadPath},
		{Raw: "/docs\\a.txt", ExpectedErr: ErrBadPath},
		{Raw: "/docs/%00", ExpectedErr: ErrBadPath},
		{Raw: "/docs/%zz", ExpectedErr: ErrBadPath},
	}

	for _, tc := range testCases {
		t.Run(tc.Raw, func(t *testing.T) {
			cleaned, err := Clean(tc.Raw)

			if tc.ExpectedErr != nil {
				if !errors.Is(err, tc.ExpectedErr) {
					t.Fatalf("expected error '%v', got '%v'", tc.ExpectedErr, err)
				}
				return
			}

			if err != nil {
				t.Fatalf("%+v", errors.WithStack(err))
			}

			if e, g := tc.Expected, cleaned; e != g {
				t.Errorf("Clean(%q): expected '%v', got '%v'", tc.Raw, e, g)
			}
		})
	}
}

func TestParseDepth(t *testing.T) {
	type testCase struct {
		Header      string
		Default     Depth
		Expected    Depth
		ExpectedErr error
	}

	testCases := []testCase{
		{Header: "", Default: DepthInfinity, Expected: DepthInfinity},
		{Header: "0", Default: DepthInfinity, Expected: DepthZero},
		{Header: "1", Default: DepthZero, Expected: DepthOne},
		{Header: "Infinity", Default: DepthZero, Expected: DepthInfinity},
		{Header: "2", ExpectedErr: ErrBadDepth},
		{Header: "-1", ExpectedErr: ErrBadDepth},
	}

	for _, tc := range testCases {
		depth, err := ParseDepth(tc.Header, tc.Default)

		if tc.ExpectedErr != nil {
			if !errors.Is(err, tc.ExpectedErr) {
				t.Errorf("ParseDepth(%q): expected error '%v', got '%v'", tc.Header, tc.ExpectedErr, err)
			}
			continue
		}

		if err != nil {
			t.Fatalf("%+v", errors.WithStack(err))
		}

		if e, g := tc.Expected, depth; e != g {
			t.Errorf("ParseDepth(%q): expected '%v', got '%v'", tc.Header, e, g)
		}
	}
}

func TestResolver(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStore(0)

	for _, dir := range []string{"/docs", "/docs/sub"} {
		if err := s.Mkcol(ctx, dir); err != nil {
			t.Fatalf("%+v", errors.WithStack(err))
		}
	}

	for _, name := range []string{"/docs/a.txt", "/docs/b.txt", "/docs/sub/c.txt"} {
		if _, err := s.Write(ctx, name, strings.NewReader(name), store.WriteOptions{}); err != nil {
			t.Fatalf("%+v", errors.WithStack(err))
		}
	}

	r := New(s)

	docs, err := r.Resolve(ctx, "/docs")
	if err != nil {
		t.Fatalf("%+v", errors.WithStack(err))
	}

	if !docs.IsCollection() {
		t.Fatalf("'%s' should be a collection", docs.Path)
	}

	if _, err := r.Resolve(ctx, "/missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("resolve missing: expected ErrNotFound, got '%v'", err)
	}

	expanded, err := r.Expand(ctx, docs, DepthOne)
	if err != nil {
		t.Fatalf("%+v", errors.WithStack(err))
	}

	if e, g := "/docs /docs/a.txt /docs/b.txt /docs/sub", joinPaths(expanded); e != g {
		t.Errorf("Expand(1): expected '%v', got '%v'", e, g)
	}

	expanded, err = r.Expand(ctx, docs, DepthZero)
	if err != nil {
		t.Fatalf("%+v", errors.WithStack(err))
	}

	if e, g := "/docs", joinPaths(expanded); e != g {
		t.Errorf("Expand(0): expected '%v', got '%v'", e, g)
	}

	if _, err := r.Expand(ctx, docs, DepthInfinity); !errors.Is(err, ErrDepthForbidden) {
		t.Errorf("Expand(infinity): expected ErrDepthForbidden, got '%v'", err)
	}

	descendants, err := r.Descendants(ctx, docs)
	if err != nil {
		t.Fatalf("%+v", errors.WithStack(err))
	}

	if e, g := "/docs /docs/a.txt /docs/b.txt /docs/sub /docs/sub/c.txt", joinPaths(descendants); e != g {
		t.Errorf("Descendants: expected '%v', got '%v'", e, g)
	}

	member, err := r.Resolve(ctx, "/docs/a.txt")
	if err != nil {
		t.Fatalf("%+v", errors.WithStack(err))
	}

	children, err := r.Children(ctx, member)
	if err != nil {
		t.Fatalf("%+v", errors.WithStack(err))
	}

	if e, g := 0, len(children); e != g {
		t.Errorf("len(children) of member: expected '%v', got '%v'", e, g)
	}
}

func joinPaths(resources []*Resource) string {
	paths := make([]string, 0, len(resources))
	for _, r := range resources {
		paths = append(paths, r.Path)
	}
	return strings.Join(paths, " ")
}
