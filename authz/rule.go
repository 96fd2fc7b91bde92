package authz

// Env holds the variables a rule is evaluated against: method, path,
// destination, user (the user attributes) and groups (the group names).
type Env map[string]any

type Rule interface {
	Exec(env Env) (bool, error)
}

func newEnv(user User, req Request) Env {
	groups := make([]string, 0, len(user.Groups()))
	for _, g := range user.Groups() {
		groups = append(groups, g.Name())
	}

	return Env{
		"method":      req.Method,
		"path":        req.Path,
		"destination": req.Destination,
		"user":        user.Attrs(),
		"groups":      groups,
	}
}

// rulesOf returns the rules of the user followed by the rules of its groups.
func rulesOf(user User) []Rule {
	rules := append([]Rule{}, user.Rules()...)
	for _, g := range user.Groups() {
		rules = append(rules, g.Rules()...)
	}

	return rules
}
