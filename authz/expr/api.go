package expr

import (
	"slices"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/pkg/errors"
)

var readMethods = []string{"GET", "HEAD", "OPTIONS", "PROPFIND"}

func ruleAPI() []expr.Option {
	return []expr.Option{
		// isRead(method) is true for methods that leave the store untouched
		expr.Function(
			"isRead",
			func(params ...any) (any, error) {
				method, err := stringParam(params, 0)
				if err != nil {
					return nil, errors.WithStack(err)
				}

				return slices.Contains(readMethods, strings.ToUpper(method)), nil
			},
			new(func(string) bool),
		),
		expr.Function(
			"isWrite",
			func(params ...any) (any, error) {
				method, err := stringParam(params, 0)
				if err != nil {
					return nil, errors.WithStack(err)
				}

				return !slices.Contains(readMethods, strings.ToUpper(method)), nil
			},
			new(func(string) bool),
		),
		// within(path, root) is true when path is root or one of its descendants
		expr.Function(
			"within",
			func(params ...any) (any, error) {
				p, err := stringParam(params, 0)
				if err != nil {
					return nil, errors.WithStack(err)
				}

				root, err := stringParam(params, 1)
				if err != nil {
					return nil, errors.WithStack(err)
				}

				root = strings.TrimSuffix(root, "/")
				if root == "" {
					return true, nil
				}

				return p == root || strings.HasPrefix(p, root+"/"), nil
			},
			new(func(string, string) bool),
		),
	}
}

func stringParam(params []any, idx int) (string, error) {
	if idx >= len(params) {
		return "", errors.Errorf("missing parameter #%d", idx)
	}

	s, ok := params[idx].(string)
	if !ok {
		return "", errors.Errorf("unexpected parameter #%d type '%T', expected string", idx, params[idx])
	}

	return s, nil
}
