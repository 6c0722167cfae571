package unit

import "time"

// SecurityContext identifies the invoker of lifecycle operations. The engine
// checks a unit's required permissions against it before load.
type SecurityContext struct {
	Principal       string
	Roles           []string
	Permissions     []string
	AuthenticatedAt time.Time
}

// NewSecurityContext builds a security context for the given principal.
func NewSecurityContext(principal string, roles, permissions []string) *SecurityContext {
	return &SecurityContext{
		Principal:       principal,
		Roles:           roles,
		Permissions:     permissions,
		AuthenticatedAt: time.Now(),
	}
}

// HasPermission reports whether the principal holds the permission. The admin
// role grants every permission.
func (s *SecurityContext) HasPermission(permission string) bool {
	for _, r := range s.Roles {
		if r == "admin" {
			return true
		}
	}
	for _, p := range s.Permissions {
		if p == permission {
			return true
		}
	}
	return false
}

// HasRole reports whether the principal holds the role.
func (s *SecurityContext) HasRole(role string) bool {
	for _, r := range s.Roles {
		if r == role {
			return true
		}
	}
	return false
}
