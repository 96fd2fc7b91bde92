package authz

import (
	"context"
	"testing"

	"github.com/pkg/errors"
)

type ruleFunc func(env Env) (bool, error)

func (fn ruleFunc) Exec(env Env) (bool, error) {
	return fn(env)
}

func methodIs(method string) Rule {
	return ruleFunc(func(env Env) (bool, error) {
		return env["method"] == method, nil
	})
}

func TestRuleAuthorizer(t *testing.T) {
	readers := NewGroup("readers", methodIs("GET"))
	alice := NewUser("alice", nil, []*Group{readers}, methodIs("PUT"))

	authorizer := NewRuleAuthorizer(nil)

	type testCase struct {
		Name     string
		Ctx      context.Context
		Request  Request
		Expected error
	}

	testCases := []testCase{
		{
			Name:     "UserRule",
			Ctx:      WithContextUser(context.Background(), alice),
			Request:  Request{Method: "PUT", Path: "/file.txt"},
			Expected: nil,
		},
		{
			Name:     "GroupRule",
			Ctx:      WithContextUser(context.Background(), alice),
			Request:  Request{Method: "GET", Path: "/file.txt"},
			Expected: nil,
		},
		{
			Name:     "NoMatchingRule",
			Ctx:      WithContextUser(context.Background(), alice),
			Request:  Request{Method: "DELETE", Path: "/file.txt"},
			Expected: ErrForbidden,
		},
		{
			Name:     "Anonymous",
			Ctx:      context.Background(),
			Request:  Request{Method: "GET", Path: "/file.txt"},
			Expected: ErrUnauthenticated,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.Name, func(t *testing.T) {
			err := authorizer.Authorize(tc.Ctx, tc.Request)

			if tc.Expected == nil {
				if err != nil {
					t.Fatalf("%+v", errors.WithStack(err))
				}
				return
			}

			if !errors.Is(err, tc.Expected) {
				t.Errorf("err: expected '%v', got '%v'", tc.Expected, err)
			}
		})
	}
}

func TestRuleError(t *testing.T) {
	failing := ruleFunc(func(env Env) (bool, error) {
		return false, errors.New("boom")
	})

	ctx := WithContextUser(context.Background(), NewUser("bob", nil, nil, failing))

	err := NewRuleAuthorizer(nil).Authorize(ctx, Request{Method: "GET", Path: "/"})
	if err == nil {
		t.Fatal("expected an error")
	}

	if errors.Is(err, ErrForbidden) {
		t.Errorf("rule failure should not be reported as forbidden")
	}
}
