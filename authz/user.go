package authz

type User interface {
	Name() string
	Attrs() map[string]any
	Rules() []Rule
	Groups() []*Group
}

type Group struct {
	name  string
	rules []Rule
}

func (g *Group) Name() string {
	return g.name
}

func (g *Group) Rules() []Rule {
	return g.rules
}

func NewGroup(name string, rules ...Rule) *Group {
	return &Group{name, rules}
}

type StaticUser struct {
	name   string
	attrs  map[string]any
	groups []*Group
	rules  []Rule
}

// Name implements User.
func (u *StaticUser) Name() string {
	return u.name
}

// Attrs implements User.
func (u *StaticUser) Attrs() map[string]any {
	attrs := map[string]any{"name": u.name}
	for k, v := range u.attrs {
		attrs[k] = v
	}

	return attrs
}

// Groups implements User.
func (u *StaticUser) Groups() []*Group {
	return u.groups
}

// Rules implements User.
func (u *StaticUser) Rules() []Rule {
	return u.rules
}

func NewUser(name string, attrs map[string]any, groups []*Group, rules ...Rule) *StaticUser {
	return &StaticUser{
		name:   name,
		attrs:  attrs,
		groups: groups,
		rules:  rules,
	}
}

var _ User = &StaticUser{}
