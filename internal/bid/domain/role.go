package domain

import "time"

// Role is a named credential or permission group. A role flagged IsBadge is a
// visible, grantable badge; roles also carry a managed-role edge set (see the
// role_managed_roles table) giving holders of the role permission to grant or
// revoke the managed roles on other users.
type Role struct {
	ID          string
	Name        string
	Description string
	IsActive    bool
	IsBadge     bool
	IsPublic    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
