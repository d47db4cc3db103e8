package permission

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

const resourceRegex = `^[a-z][a-z0-9-]*$`

var resourcePattern = regexp.MustCompile(resourceRegex)

// Permission models a single permission of resource + action + scope.
// Example strings: "vaults:update" (own records), "vaults:update:all".
type Permission struct {
	Resource string
	Action   Action
	Scope    Scope
}

// String renders the canonical identifier. The self scope is implicit.
func (p Permission) String() string {
	s := p.Resource + ":" + p.Action.String()
	if p.Scope == ScopeAll {
		s += ":" + ScopeAll.String()
	}
	return s
}

// ValueOf parses "<resource>:<action>[:<scope>]" to a Permission.
func ValueOf(s string) (Permission, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return Permission{}, fmt.Errorf("invalid permission string: %s", s)
	}
	res := strings.ToLower(parts[0])
	if !resourcePattern.MatchString(res) {
		return Permission{}, fmt.Errorf("invalid resource: %s", parts[0])
	}
	a, ok := ParseAction(parts[1])
	if !ok {
		return Permission{}, fmt.Errorf("invalid action: %s", parts[1])
	}
	scope := ScopeSelf
	if len(parts) == 3 {
		if scope, ok = ParseScope(parts[2]); !ok {
			return Permission{}, fmt.Errorf("invalid scope: %s", parts[2])
		}
	}
	return Permission{Resource: res, Action: a, Scope: scope}, nil
}

// MustValueOf is ValueOf for static tables; it panics on malformed input.
func MustValueOf(s string) Permission {
	p, err := ValueOf(s)
	if err != nil {
		panic(err)
	}
	return p
}

// Unscoped returns the ":all" variant of p.
func (p Permission) Unscoped() Permission {
	p.Scope = ScopeAll
	return p
}

// Set is an immutable-by-convention set of permissions.
type Set map[Permission]struct{}

// NewSet builds a Set from the given permissions.
func NewSet(perms ...Permission) Set {
	s := make(Set, len(perms))
	for _, p := range perms {
		s[p] = struct{}{}
	}
	return s
}

// Has reports whether p is in the set.
func (s Set) Has(p Permission) bool {
	_, ok := s[p]
	return ok
}

// HasAny reports whether any of perms is in the set.
func (s Set) HasAny(perms []Permission) bool {
	for _, p := range perms {
		if s.Has(p) {
			return true
		}
	}
	return false
}

// Union returns a new set holding the members of both sets.
func (s Set) Union(other Set) Set {
	out := make(Set, len(s)+len(other))
	for p := range s {
		out[p] = struct{}{}
	}
	for p := range other {
		out[p] = struct{}{}
	}
	return out
}

// Contains reports whether every member of other is in s.
func (s Set) Contains(other Set) bool {
	for p := range other {
		if !s.Has(p) {
			return false
		}
	}
	return true
}

// Strings returns the sorted identifiers of the set.
func (s Set) Strings() []string {
	out := make([]string, 0, len(s))
	for p := range s {
		out = append(out, p.String())
	}
	sort.Strings(out)
	return out
}
