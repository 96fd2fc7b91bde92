package expr

import (
	"context"
	"testing"
	"time"

	"github.com/bornholm/remotedav/authz"
	"github.com/pkg/errors"
)

func TestRule(t *testing.T) {
	type testCase struct {
		Script   string
		Env      authz.Env
		Expected bool
	}

	env := func(method, path string) authz.Env {
		return authz.Env{
			"method":      method,
			"path":        path,
			"destination": "",
			"user":        map[string]any{"name": "alice"},
			"groups":      []string{"readers"},
		}
	}

	testCases := []testCase{
		{Script: "true", Env: env("PUT", "/"), Expected: true},
		{Script: "isRead(method)", Env: env("PROPFIND", "/"), Expected: true},
		{Script: "isRead(method)", Env: env("PUT", "/"), Expected: false},
		{Script: "isWrite(method)", Env: env("MOVE", "/"), Expected: true},
		{Script: "within(path, '/shared')", Env: env("GET", "/shared/doc.txt"), Expected: true},
		{Script: "within(path, '/shared')", Env: env("GET", "/sharedocs"), Expected: false},
		{Script: "within(path, '/home/' + user.name)", Env: env("PUT", "/home/alice/notes"), Expected: true},
		{Script: "'readers' in groups && method in ['GET', 'HEAD']", Env: env("HEAD", "/"), Expected: true},
	}

	for _, tc := range testCases {
		t.Run(tc.Script, func(t *testing.T) {
			allowed, err := NewRule(tc.Script).Exec(tc.Env)
			if err != nil {
				t.Fatalf("%+v", errors.WithStack(err))
			}

			if e, g := tc.Expected, allowed; e != g {
				t.Errorf("allowed: expected '%v', got '%v'", e, g)
			}
		})
	}
}

func TestCompileError(t *testing.T) {
	if _, err := Compile("method +"); err == nil {
		t.Error("expected a compilation error")
	}

	if _, err := Compile("path"); err == nil {
		t.Error("expected non boolean rule to be rejected")
	}
}

func TestCache(t *testing.T) {
	cache := NewCache(1, time.Hour)

	if _, err := cache.Get("true"); err != nil {
		t.Fatalf("%+v", errors.WithStack(err))
	}

	if _, err := cache.Get("false"); err != nil {
		t.Fatalf("%+v", errors.WithStack(err))
	}

	if e, g := 1, cache.Len(); e != g {
		t.Errorf("cache.Len(): expected '%v', got '%v'", e, g)
	}

	allowed, err := cache.Rule("method == 'GET'").Exec(authz.Env{"method": "GET"})
	if err != nil {
		t.Fatalf("%+v", errors.WithStack(err))
	}

	if !allowed {
		t.Error("expected rule to grant GET")
	}
}

func TestAuthorizerWithExprRules(t *testing.T) {
	bob := authz.NewUser("bob", nil, nil, NewRule("isRead(method)"))
	ctx := authz.WithContextUser(context.Background(), bob)

	authorizer := authz.NewRuleAuthorizer(nil)

	if err := authorizer.Authorize(ctx, authz.Request{Method: "GET", Path: "/"}); err != nil {
		t.Fatalf("%+v", errors.WithStack(err))
	}

	err := authorizer.Authorize(ctx, authz.Request{Method: "DELETE", Path: "/file.txt"})
	if !errors.Is(err, authz.ErrForbidden) {
		t.Errorf("err: expected '%v', got '%v'", authz.ErrForbidden, err)
	}
}
