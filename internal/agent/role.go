package agent

import "fmt"

// Role identifies a participant in a workflow run.
type Role string

const (
	RoleUser       Role = "user"
	RoleDirector   Role = "director"
	RoleEngineer   Role = "engineer"
	RoleCopywriter Role = "copywriter"
	RoleCritic     Role = "critic"
	RoleGrowthLead Role = "growth_lead"
	RoleCreator    Role = "creator"
)

// AgentRoles lists the roles backed by a model, in workflow order.
func AgentRoles() []Role {
	return []Role{RoleDirector, RoleEngineer, RoleCopywriter, RoleCritic, RoleGrowthLead, RoleCreator}
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleDirector, RoleEngineer, RoleCopywriter, RoleCritic, RoleGrowthLead, RoleCreator:
		return true
	}
	return false
}

// ParseRole converts s to a Role.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}
