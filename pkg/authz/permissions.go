package authz

import (
	"context"
	"slices"

	"github.com/nordlys-id/nordlys/pkg/apperr"
)

// Permissions on resources. The façade resolves memberships into roles; the
// core only checks (subject, permission, resourceOwner).
const (
	PermissionInstanceWrite = "instance.write"
	PermissionOrgWrite      = "org.write"
	PermissionUserWrite     = "user.write"
	PermissionUserCredWrite = "user.credential.write"
	PermissionProjectWrite  = "project.write"
	PermissionAppWrite      = "project.app.write"
	PermissionPolicyWrite   = "policy.write"
	PermissionIDPWrite      = "org.idp.write"
	PermissionActionWrite   = "action.write"
	PermissionTargetWrite   = "action.target.write"
	PermissionSessionWrite  = "session.write"
)

// PermissionChecker gates every mutation. orgID is the resource owner of the
// aggregate being written; it may equal the instance id for instance-level
// aggregates.
type PermissionChecker interface {
	CheckPermission(ctx context.Context, permission, orgID string) error
}

// RolePermissionChecker resolves permissions from the roles carried in the
// request context against a static role → permission mapping.
type RolePermissionChecker struct {
	rolePermissions map[string][]string
}

// NewRolePermissionChecker builds a checker from a role mapping. A nil
// mapping yields the default mapping.
func NewRolePermissionChecker(rolePermissions map[string][]string) *RolePermissionChecker {
	if rolePermissions == nil {
		rolePermissions = DefaultRolePermissions()
	}
	return &RolePermissionChecker{rolePermissions: rolePermissions}
}

// DefaultRolePermissions maps the built-in roles.
func DefaultRolePermissions() map[string][]string {
	all := []string{
		PermissionInstanceWrite, PermissionOrgWrite, PermissionUserWrite,
		PermissionUserCredWrite, PermissionProjectWrite, PermissionAppWrite,
		PermissionPolicyWrite, PermissionIDPWrite, PermissionActionWrite,
		PermissionTargetWrite, PermissionSessionWrite,
	}
	return map[string][]string{
		"IAM_OWNER": all,
		"ORG_OWNER": {
			PermissionOrgWrite, PermissionUserWrite, PermissionUserCredWrite,
			PermissionProjectWrite, PermissionAppWrite, PermissionPolicyWrite,
			PermissionIDPWrite, PermissionActionWrite, PermissionTargetWrite,
			PermissionSessionWrite,
		},
		"ORG_USER_MANAGER": {PermissionUserWrite, PermissionUserCredWrite},
		"PROJECT_OWNER":    {PermissionProjectWrite, PermissionAppWrite},
	}
}

// CheckPermission implements PermissionChecker. The SYSTEM role always
// passes. No event may be produced when this fails (checked before load).
func (c *RolePermissionChecker) CheckPermission(ctx context.Context, permission, orgID string) error {
	data := GetCtxData(ctx)
	if slices.Contains(data.Roles, RoleSystem) {
		return nil
	}
	for _, role := range data.Roles {
		if slices.Contains(c.rolePermissions[role], permission) {
			return nil
		}
	}
	return apperr.ThrowPermissionDenied(nil, "AUTHZ-002", "missing permission").
		WithDetail("permission", permission).
		WithDetail("resource_owner", orgID)
}

// SelfOrPermission allows a user to act on their own user aggregate without
// an explicit grant, otherwise falls back to the permission check.
func SelfOrPermission(ctx context.Context, checker PermissionChecker, userID, permission, orgID string) error {
	if data := GetCtxData(ctx); data.UserID != "" && data.UserID == userID {
		return nil
	}
	return checker.CheckPermission(ctx, permission, orgID)
}
