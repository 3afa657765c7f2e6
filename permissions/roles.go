package permissions

import "strings"

// RoleName is a platform role. The four built-in roles are closed; anything
// else is carried as an opaque custom tag that grants nothing on its own.
type RoleName string

const (
	RoleAdmin  RoleName = "Admin"
	RoleAlpha  RoleName = "Alpha"
	RoleGamma  RoleName = "Gamma"
	RolePublic RoleName = "Public"
)

var builtinRoles = map[string]RoleName{
	"admin":  RoleAdmin,
	"alpha":  RoleAlpha,
	"gamma":  RoleGamma,
	"public": RolePublic,
}

// ParseRole maps a role string from the platform onto RoleName.
// Built-in names match case-insensitively; custom tags keep their spelling.
func ParseRole(name string) RoleName {
	trimmed := strings.TrimSpace(name)
	if role, ok := builtinRoles[strings.ToLower(trimmed)]; ok {
		return role
	}
	return RoleName(trimmed)
}

func ParseRoles(names []string) []RoleName {
	roles := make([]RoleName, 0, len(names))
	for _, n := range names {
		if strings.TrimSpace(n) == "" {
			continue
		}
		roles = append(roles, ParseRole(n))
	}
	return roles
}

// IsBuiltin reports whether r is one of Admin, Alpha, Gamma or Public.
func (r RoleName) IsBuiltin() bool {
	role, ok := builtinRoles[strings.ToLower(string(r))]
	return ok && role == r
}
