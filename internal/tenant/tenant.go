// Package tenant provides the verified tenant context for a request: which
// tenant the caller belongs to and which roles they hold. Every other engine
// component takes tenant scope from here and never from request payloads.
package tenant

import (
	"context"
	"errors"
)

// Common errors for tenant context resolution.
var (
	ErrNoContext     = errors.New("no tenant context present")
	ErrEmptyTenantID = errors.New("tenant id cannot be empty")
	ErrEmptyActorID  = errors.New("actor id cannot be empty")
)

// Role is a crew role name as carried in access-token claims.
type Role string

// Shipboard roles, least to most privileged.
const (
	RoleCrew     Role = "crew"
	RoleEngineer Role = "engineer"
	RoleHOD      Role = "hod"
	RoleMaster   Role = "master"
	RoleAuditor  Role = "auditor"
)

// validRoles is the closed set of recognized roles. Unknown role strings in a
// token are dropped during resolution rather than granted.
var validRoles = map[Role]bool{
	RoleCrew:     true,
	RoleEngineer: true,
	RoleHOD:      true,
	RoleMaster:   true,
	RoleAuditor:  true,
}

// Capability is a derived permission evaluated at commit time, as opposed to a
// literal role name checked against the registry.
type Capability string

const (
	// CapabilityEngineerQualified gates actions that require a technically
	// qualified actor (e.g. resolving a fault) regardless of rank.
	CapabilityEngineerQualified Capability = "engineer_qualified"
)

// capabilityGrants maps each role to the capabilities it derives. This is the
// role-to-permission table as data: loaded once, queried by value, no mutable
// global state.
var capabilityGrants = map[Role]map[Capability]bool{
	RoleEngineer: {CapabilityEngineerQualified: true},
	RoleHOD:      {CapabilityEngineerQualified: true},
	RoleMaster:   {CapabilityEngineerQualified: true},
}

// Context is the verified identity of a request: tenant, actor, and role set.
// It is constructed only from validated token claims.
type Context struct {
	TenantID  string
	ActorID   string
	ActorName string
	Roles     []Role
}

// New builds a Context from validated claims, dropping unrecognized roles.
// Returns an error if tenant or actor id is empty.
func New(tenantID, actorID, actorName string, roles []string) (Context, error) {
	if tenantID == "" {
		return Context{}, ErrEmptyTenantID
	}
	if actorID == "" {
		return Context{}, ErrEmptyActorID
	}

	resolved := make([]Role, 0, len(roles))
	for _, r := range roles {
		role := Role(r)
		if validRoles[role] {
			resolved = append(resolved, role)
		}
	}

	return Context{
		TenantID:  tenantID,
		ActorID:   actorID,
		ActorName: actorName,
		Roles:     resolved,
	}, nil
}

// HasRole reports whether the context carries the given role.
func (c Context) HasRole(role Role) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// HasAnyRole reports whether the context carries at least one of the given roles.
func (c Context) HasAnyRole(roles []Role) bool {
	for _, r := range roles {
		if c.HasRole(r) {
			return true
		}
	}
	return false
}

// HasCapability reports whether any of the context's roles derives the given
// capability from the grants table.
func (c Context) HasCapability(cap Capability) bool {
	for _, r := range c.Roles {
		if capabilityGrants[r][cap] {
			return true
		}
	}
	return false
}

// ctxKey is the context key for the tenant Context.
type ctxKey struct{}

// WithContext stores the verified tenant context on ctx. Called by the auth
// middleware after token validation.
func WithContext(ctx context.Context, tc Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, tc)
}

// FromContext retrieves the verified tenant context. Returns ErrNoContext if
// the request was not authenticated.
func FromContext(ctx context.Context) (Context, error) {
	tc, ok := ctx.Value(ctxKey{}).(Context)
	if !ok {
		return Context{}, ErrNoContext
	}
	return tc, nil
}
