package rbac

import (
	"context"
	"strings"
)

// Checker answers "may this role do that" over a role→permission table.
// Permissions are dotted-ish strings ("attempt:submit"); a trailing "*" in a
// granted permission matches any permission with that prefix, and a bare "*"
// grants everything.
type Checker struct {
	rules map[string][]string
}

func NewChecker(rules map[string][]string) *Checker {
	if rules == nil {
		rules = RolePermissions
	}
	return &Checker{rules: rules}
}

func (c *Checker) Has(role, perm string) bool {
	for _, granted := range c.rules[role] {
		switch {
		case granted == "*" || granted == perm:
			return true
		case strings.HasSuffix(granted, "*") &&
			strings.HasPrefix(perm, strings.TrimSuffix(granted, "*")):
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

// ---- role in context ----

type ctxKey struct{}

var ctxKeyRole = ctxKey{}

func WithRole(ctx context.Context, role string) context.Context {
	return context.WithValue(ctx, ctxKeyRole, role)
}

func RoleFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(ctxKeyRole).(string); ok {
		return s
	}
	return ""
}
