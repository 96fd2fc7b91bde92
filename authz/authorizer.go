package authz

import (
	"context"
	"log/slog"

	"github.com/pkg/errors"
)

var (
	ErrForbidden       = errors.New("forbidden")
	ErrUnauthenticated = errors.New("unauthenticated")
)

// Request describes the operation submitted to the rules.
type Request struct {
	Method string
	// Path is the cleaned target path.
	Path string
	// Destination is the cleaned destination path of COPY and MOVE, empty otherwise.
	Destination string
}

type Authorizer interface {
	Authorize(ctx context.Context, req Request) error
}

// RuleAuthorizer grants a request as soon as one of the rules of the
// context user, or of one of its groups, evaluates to true.
type RuleAuthorizer struct {
	logger *slog.Logger
}

// Authorize implements Authorizer.
func (a *RuleAuthorizer) Authorize(ctx context.Context, req Request) error {
	user, ok := ContextUser(ctx)
	if !ok {
		return errors.WithStack(ErrUnauthenticated)
	}

	env := newEnv(user, req)
	rules := rulesOf(user)

	for _, r := range rules {
		a.logger.DebugContext(ctx, "executing rule", slog.Any("rule", r), slog.Any("env", env))

		allowed, err := r.Exec(env)
		if err != nil {
			return errors.WithStack(err)
		}

		a.logger.DebugContext(ctx, "rule result", slog.Any("rule", r), slog.Bool("result", allowed))

		if allowed {
			return nil
		}
	}

	return errors.Wrapf(ErrForbidden, "user '%s' is not allowed to %s '%s'", user.Name(), req.Method, req.Path)
}

func NewRuleAuthorizer(logger *slog.Logger) *RuleAuthorizer {
	if logger == nil {
		logger = slog.Default()
	}

	return &RuleAuthorizer{logger: logger}
}

var _ Authorizer = &RuleAuthorizer{}
