package models

// Role is the ordered membership tier. Comparison uses the numeric rank, so
// RoleAdmin.AtLeast(RoleOperator) is true.
type Role string

const (
	RoleAssociate Role = "associate"
	RoleMember    Role = "member"
	RoleOperator  Role = "operator"
	RoleAdmin     Role = "admin"
)

var roleRank = map[Role]int{
	RoleAssociate: 0,
	RoleMember:    1,
	RoleOperator:  2,
	RoleAdmin:     3,
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	_, ok := roleRank[r]
	return ok
}

// AtLeast reports whether r is the same tier as other or higher.
func (r Role) AtLeast(other Role) bool {
	return roleRank[r] >= roleRank[other]
}

// allowed role transitions: promotion one tier at a time plus the
// operator->member demotion the admin console supports
var roleTransitions = map[Role][]Role{
	RoleAssociate: {RoleMember},
	RoleMember:    {RoleOperator},
	RoleOperator:  {RoleAdmin, RoleMember},
}

// CanTransitionTo reports whether changing from r to target is an allowed
// promotion or demotion.
func (r Role) CanTransitionTo(target Role) bool {
	for _, t := range roleTransitions[r] {
		if t == target {
			return true
		}
	}
	return false
}
