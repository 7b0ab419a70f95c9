package models

// Role is the closed set of user roles.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// RolePolicy is what a role means for quota accounting.
type RolePolicy struct {
	// ChargeQuota is true when heartbeats decrement the user's quota.
	ChargeQuota bool
	// EnforceQuota is true when an exhausted quota blocks login.
	EnforceQuota bool
}

var rolePolicies = map[Role]RolePolicy{
	RoleAdmin: {ChargeQuota: false, EnforceQuota: false},
	RoleUser:  {ChargeQuota: true, EnforceQuota: true},
}

// ParseRole maps a stored or submitted role name onto the closed set.
// ok is false for anything else.
func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleAdmin:
		return RoleAdmin, true
	case RoleUser:
		return RoleUser, true
	}
	return "", false
}

// Policy returns the quota policy of r. Unknown roles get the most
// restrictive policy, the one of RoleUser.
func (r Role) Policy() RolePolicy {
	if p, ok := rolePolicies[r]; ok {
		return p
	}
	return rolePolicies[RoleUser]
}

func (r Role) IsAdmin() bool {
	return r == RoleAdmin
}
