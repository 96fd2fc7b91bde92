package expr

import (
	"github.com/bornholm/remotedav/authz"
	"github.com/expr-lang/expr"
	"github.com/pkg/errors"
)

// Rule is an expr script evaluated against an authz.Env. Programs are
// compiled lazily and shared through a Cache.
type Rule struct {
	script string
	cache  *Cache
}

func (r *Rule) Exec(env authz.Env) (bool, error) {
	program, err := r.cache.Get(r.script)
	if err != nil {
		return false, errors.Wrapf(err, "could not compile rule '%s'", r.script)
	}

	result, err := expr.Run(program, map[string]any(env))
	if err != nil {
		return false, errors.Wrapf(err, "could not evaluate rule '%s'", r.script)
	}

	granted, ok := result.(bool)
	if !ok {
		return false, errors.Errorf("rule '%s' returned %T instead of a boolean", r.script, result)
	}

	return granted, nil
}

func (r *Rule) String() string {
	return r.script
}

// Rule returns a rule sharing the programs of the cache.
func (c *Cache) Rule(script string) *Rule {
	return &Rule{script: script, cache: c}
}

func NewRule(script string) *Rule {
	return defaultCache.Rule(script)
}

var _ authz.Rule = &Rule{}
