package expr

import (
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/pkg/errors"
)

var defaultCache = NewCache(256, time.Hour)

type Cache struct {
	programs *expirable.LRU[string, *vm.Program]
}

func (c *Cache) Get(script string) (*vm.Program, error) {
	if program, ok := c.programs.Get(script); ok {
		return program, nil
	}

	program, err := Compile(script)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	c.programs.Add(script, program)

	return program, nil
}

func (c *Cache) Len() int {
	return c.programs.Len()
}

func NewCache(size int, ttl time.Duration) *Cache {
	return &Cache{
		programs: expirable.NewLRU[string, *vm.Program](size, nil, ttl),
	}
}

// Compile compiles a rule script, it can be used to validate rules
// at startup.
func Compile(script string) (*vm.Program, error) {
	env := map[string]any{
		"method":      "",
		"path":        "",
		"destination": "",
		"user":        map[string]any{},
		"groups":      []string{},
	}

	options := append([]expr.Option{expr.Env(env), expr.AsBool()}, ruleAPI()...)

	program, err := expr.Compile(script, options...)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return program, nil
}
