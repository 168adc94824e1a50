package rbac

import (
	"context"
	"strings"
)

// Checker answers whether a role holds a permission. Grants are either exact
// ("lms:restrict"), a prefix pattern ("lms:*") or "*".
type Checker struct {
	exact    map[string]map[string]bool
	prefixes map[string][]string
}

func NewChecker(rp map[string][]string) *Checker {
	if rp == nil {
		rp = RolePermissions
	}
	c := &Checker{exact: map[string]map[string]bool{}, prefixes: map[string][]string{}}
	for role, perms := range rp {
		c.exact[role] = map[string]bool{}
		for _, p := range perms {
			if strings.HasSuffix(p, "*") {
				c.prefixes[role] = append(c.prefixes[role], strings.TrimSuffix(p, "*"))
				continue
			}
			c.exact[role][p] = true
		}
	}
	return c
}

func (c *Checker) Has(role, perm string) bool {
	if c.exact[role][perm] {
		return true
	}
	for _, prefix := range c.prefixes[role] {
		if strings.HasPrefix(perm, prefix) {
			return true
		}
	}
	return false
}

func (c *Checker) Any(role string, perms ...string) bool {
	for _, p := range perms {
		if c.Has(role, p) {
			return true
		}
	}
	return false
}

func (c *Checker) All(role string, perms ...string) bool {
	for _, p := range perms {
		if !c.Has(role, p) {
			return false
		}
	}
	return true
}

// ---- role in context ----

type ctxKey struct{}

var ctxKeyRole = ctxKey{}

func WithRole(ctx context.Context, role string) context.Context {
	return context.WithValue(ctx, ctxKeyRole, role)
}

func RoleFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyRole).(string); ok {
		return v
	}
	return ""
}
