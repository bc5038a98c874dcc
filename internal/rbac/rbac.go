// Package rbac maps account roles to the permissions carried by a security
// session.
package rbac

import (
	mapset "github.com/deckarep/golang-set/v2"
)

type Role string

const (
	RoleViewer Role = "viewer"
	RoleEditor Role = "editor"
	RoleAdmin  Role = "admin"
)

const (
	PermDocumentsRead   = "documents:read"
	PermDocumentsWrite  = "documents:write"
	PermDocumentsDelete = "documents:delete"
	PermVersionsRestore = "versions:restore"
	PermDocumentsShare  = "documents:share"
	PermAIUse           = "ai:use"
	PermSecurityAdmin   = "security:admin"
)

var grants = map[Role][]string{
	RoleViewer: {PermDocumentsRead},
	RoleEditor: {
		PermDocumentsRead, PermDocumentsWrite, PermDocumentsDelete,
		PermVersionsRestore, PermDocumentsShare, PermAIUse,
	},
	RoleAdmin: {
		PermDocumentsRead, PermDocumentsWrite, PermDocumentsDelete,
		PermVersionsRestore, PermDocumentsShare, PermAIUse, PermSecurityAdmin,
	},
}

// Permissions returns a new set with the permissions granted to role.
func Permissions(role Role) mapset.Set[string] {
	return mapset.NewSet(grants[role]...)
}

func Can(role Role, permission string) bool {
	return Permissions(role).Contains(permission)
}

// Roles expands a stored role into the role set of a session. Admins also
// hold the editor role.
func Roles(role Role) mapset.Set[string] {
	roles := mapset.NewSet(string(role))
	if role == RoleAdmin {
		roles.Add(string(RoleEditor))
	}
	return roles
}

func Normalize(role string) Role {
	switch Role(role) {
	case RoleViewer, RoleEditor, RoleAdmin:
		return Role(role)
	default:
		return RoleViewer
	}
}
