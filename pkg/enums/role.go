package enums

import "fmt"

// Role is the caller role carried on access tokens.
type Role string

const (
	RoleCustomer Role = "CUSTOMER"
	RoleSeller   Role = "SELLER"
	RoleAdmin    Role = "ADMIN"
	RoleCS       Role = "CS"
)

var validRoles = []Role{RoleCustomer, RoleSeller, RoleAdmin, RoleCS}

func (r Role) String() string {
	return string(r)
}

func (r Role) IsValid() bool {
	for _, candidate := range validRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

// IsStaff reports whether the role may act on any shop's orders.
func (r Role) IsStaff() bool {
	return r == RoleAdmin || r == RoleCS
}

func ParseRole(value string) (Role, error) {
	for _, candidate := range validRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid role %q", value)
}
