package permission

import "strings"

// Action is the verb part of a permission identifier.
// CREATE=1, READ=2, UPDATE=4, DELETE=8.
type Action int

const (
	CREATE Action = 1
	READ   Action = 2
	UPDATE Action = 4
	DELETE Action = 8
)

func (a Action) String() string {
	switch a {
	case CREATE:
		return "create"
	case READ:
		return "read"
	case UPDATE:
		return "update"
	case DELETE:
		return "delete"
	default:
		return "unknown"
	}
}

// ParseAction converts a string to Action, case-insensitive.
// Returns ok=false if the string is not recognized.
func ParseAction(s string) (Action, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "create":
		return CREATE, true
	case "read":
		return READ, true
	case "update":
		return UPDATE, true
	case "delete":
		return DELETE, true
	default:
		return 0, false
	}
}

// Scope limits which records a permission applies to.
type Scope int

const (
	// ScopeSelf applies only when the caller acts on its own records.
	ScopeSelf Scope = iota
	// ScopeAll applies to any record.
	ScopeAll
)

func (s Scope) String() string {
	if s == ScopeAll {
		return "all"
	}
	return "self"
}

// ParseScope accepts "", "self" and "all".
func ParseScope(s string) (Scope, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "self":
		return ScopeSelf, true
	case "all":
		return ScopeAll, true
	default:
		return 0, false
	}
}
