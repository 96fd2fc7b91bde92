package authz

import "context"

type userKey struct{}

// WithContextUser attaches the authenticated user to ctx.
func WithContextUser(ctx context.Context, user User) context.Context {
	return context.WithValue(ctx, userKey{}, user)
}

// ContextUser returns the user authenticated for the request carried by ctx.
func ContextUser(ctx context.Context) (User, bool) {
	user, ok := ctx.Value(userKey{}).(User)
	if !ok || user == nil {
		return nil, false
	}

	return user, true
}
