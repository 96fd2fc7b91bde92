package main

import (
	"crypto/subtle"
	"net/http"

	"github.com/bornholm/remotedav/authz"
	"github.com/bornholm/remotedav/authz/expr"
	"github.com/pkg/errors"
)

// newUsers builds the users of the basic auth table with their rules.
func newUsers(conf authConfig) (map[string]authz.User, error) {
	shared := make([]authz.Rule, 0, len(conf.Rules))
	for _, script := range conf.Rules {
		if _, err := expr.Compile(script); err != nil {
			return nil, errors.Wrapf(err, "invalid rule '%s'", script)
		}

		shared = append(shared, expr.NewRule(script))
	}

	everyone := authz.NewGroup("users", shared...)

	users := make(map[string]authz.User, len(conf.Users))
	for name := range conf.Users {
		rules := make([]authz.Rule, 0)
		for _, script := range conf.UserRules[name] {
			if _, err := expr.Compile(script); err != nil {
				return nil, errors.Wrapf(err, "invalid rule '%s' of user '%s'", script, name)
			}

			rules = append(rules, expr.NewRule(script))
		}

		users[name] = authz.NewUser(name, nil, []*authz.Group{everyone}, rules...)
	}

	for name := range conf.UserRules {
		if _, exists := conf.Users[name]; !exists {
			return nil, errors.Errorf("rules declared for unknown user '%s'", name)
		}
	}

	return users, nil
}

// basicAuth authenticates requests against the users table and attaches the
// user to the request context. OPTIONS requests are let through.
func basicAuth(handler http.Handler, realm string, passwords map[string]string, users map[string]authz.User) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			handler.ServeHTTP(w, r)
			return
		}

		username, pass, ok := r.BasicAuth()

		unauthorized := func() {
			w.Header().Set("WWW-Authenticate", `Basic realm="`+realm+`"`)
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte("Unauthorised.\n"))
		}

		expected, exists := passwords[username]
		if !ok || !exists {
			unauthorized()
			return
		}

		if subtle.ConstantTimeCompare([]byte(pass), []byte(expected)) != 1 {
			unauthorized()
			return
		}

		ctx := authz.WithContextUser(r.Context(), users[username])

		handler.ServeHTTP(w, r.WithContext(ctx))
	})
}
