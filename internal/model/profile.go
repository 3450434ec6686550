package model

// Role controls which tenants a dashboard user can see.
type Role string

const (
	RoleAdmin        Role = "admin"
	RoleCollaborator Role = "collaborator"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleCollaborator
}

// Profile links a dashboard user to a role and, for collaborators, to their
// partner id in the firm's system.
type Profile struct {
	Username       string `json:"username"`
	Role           Role   `json:"role"`
	CollaboratorID string `json:"collaborator_id,omitempty"`
}

// Visibility restricts result queries to the rows a viewer may see.
type Visibility struct {
	All            bool
	CollaboratorID string
}

// None reports whether the visibility matches no rows at all.
func (v Visibility) None() bool {
	return !v.All && v.CollaboratorID == ""
}

// VisibilityFor derives the row filter for a profile. Admins see everything,
// collaborators only their assigned tenants, anyone else nothing.
func VisibilityFor(p *Profile) Visibility {
	if p == nil {
		return Visibility{}
	}
	switch p.Role {
	case RoleAdmin:
		return Visibility{All: true}
	case RoleCollaborator:
		return Visibility{CollaboratorID: p.CollaboratorID}
	default:
		return Visibility{}
	}
}
