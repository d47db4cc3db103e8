package permission

import "fmt"

// Built-in roles.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// RoleDefinition is one row of the role table.
type RoleDefinition struct {
	// InheritsFrom names the parent role; empty for a base role.
	InheritsFrom string
	Permissions  []Permission
}

// Table maps role names to their definitions.
type Table map[string]RoleDefinition

var (
	userPermissions = []Permission{
		MustValueOf("users:read"),
		MustValueOf("users:update"),
		MustValueOf("users:delete"),
		MustValueOf("vaults:create"),
		MustValueOf("vaults:read"),
		MustValueOf("vaults:update"),
		MustValueOf("vaults:delete"),
		MustValueOf("sessions:read"),
		MustValueOf("sessions:delete"),
	}
)

// DefaultTable returns the role table used by the service.
func DefaultTable() Table {
	admin := []Permission{MustValueOf("users:create:all")}
	for _, p := range userPermissions {
		admin = append(admin, p.Unscoped())
	}
	return Table{
		RoleUser:  {Permissions: append([]Permission(nil), userPermissions...)},
		RoleAdmin: {InheritsFrom: RoleUser, Permissions: admin},
	}
}

// Resolver maps roles to their effective permission sets. The sets are
// computed once at construction.
type Resolver struct {
	effective map[string]Set
}

// NewResolver validates the table and precomputes every role. A parent that
// is not in the table or an inheritance cycle is a configuration error.
func NewResolver(table Table) (*Resolver, error) {
	r := &Resolver{effective: make(map[string]Set, len(table))}
	for role := range table {
		if _, err := r.resolve(table, role, map[string]bool{}); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// MustResolver is NewResolver for startup wiring.
func MustResolver(table Table) *Resolver {
	r, err := NewResolver(table)
	if err != nil {
		panic(err)
	}
	return r
}

func (r *Resolver) resolve(table Table, role string, visiting map[string]bool) (Set, error) {
	if set, ok := r.effective[role]; ok {
		return set, nil
	}
	def, ok := table[role]
	if !ok {
		return nil, fmt.Errorf("permission: role %q is not defined", role)
	}
	if visiting[role] {
		return nil, fmt.Errorf("permission: inheritance cycle at role %q", role)
	}
	visiting[role] = true
	set := NewSet(def.Permissions...)
	if def.InheritsFrom != "" {
		parent, err := r.resolve(table, def.InheritsFrom, visiting)
		if err != nil {
			return nil, err
		}
		set = set.Union(parent)
	}
	r.effective[role] = set
	return set, nil
}

// Resolve returns a copy of the effective permissions of role. Unknown roles
// resolve to the empty set.
func (r *Resolver) Resolve(role string) Set {
	if set, ok := r.effective[role]; ok {
		return set.Union(nil)
	}
	return Set{}
}

// Roles lists the roles known to the resolver.
func (r *Resolver) Roles() []string {
	out := make([]string, 0, len(r.effective))
	for role := range r.effective {
		out = append(out, role)
	}
	return out
}
