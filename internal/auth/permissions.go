package auth

import "encoding/json"

// PermissionKind discriminates the shape a credential's raw
// permission descriptor took on the wire. Descriptors arrive as
// arbitrary JSON — a list of scope strings, a map of scope→bool, or
// something that parses as neither — so the resolver normalizes them
// into this sum type once at load time rather than re-inspecting raw
// JSON on every has_permission call.
type PermissionKind int

const (
	PermissionAdmin PermissionKind = iota
	PermissionScopes
	PermissionMap
	PermissionMalformed
)

// Permissions is the normalized form of a credential's permission
// descriptor. Exactly one of Scopes/Map is meaningful, selected by
// Kind; PermissionAdmin and PermissionMalformed carry neither.
type Permissions struct {
	Kind   PermissionKind
	Scopes map[string]struct{}
	Map    map[string]bool
}

// ParsePermissions normalizes a raw JSON permission descriptor.
// A list containing "admin", or a map with admin=true, collapses to
// PermissionAdmin regardless of what else the descriptor contains,
// since admin implies every other permission.
func ParsePermissions(raw []byte) Permissions {
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		scopes := make(map[string]struct{}, len(list))
		for _, s := range list {
			if s == "admin" {
				return Permissions{Kind: PermissionAdmin}
			}
			scopes[s] = struct{}{}
		}
		return Permissions{Kind: PermissionScopes, Scopes: scopes}
	}

	var m map[string]bool
	if err := json.Unmarshal(raw, &m); err == nil {
		if m["admin"] {
			return Permissions{Kind: PermissionAdmin}
		}
		return Permissions{Kind: PermissionMap, Map: m}
	}

	return Permissions{Kind: PermissionMalformed}
}

// Has reports whether the descriptor grants permission p. Admin
// grants everything; malformed descriptors grant nothing.
func (p Permissions) Has(permission string) bool {
	switch p.Kind {
	case PermissionAdmin:
		return true
	case PermissionScopes:
		_, ok := p.Scopes[permission]
		return ok
	case PermissionMap:
		return p.Map[permission]
	default:
		return false
	}
}
