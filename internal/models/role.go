package models

import "fmt"

// Role is the lens an actor uses on a campaign. Portal roles are carried by
// session tokens; RoleSystem only appears on activity rows.
type Role string

const (
	RoleCS       Role = "cs"
	RoleCustomer Role = "customer"
	RoleAgency   Role = "agency"
	RoleSystem   Role = "system"
)

func ParsePortalRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleCS, RoleCustomer, RoleAgency:
		return r, nil
	}
	return "", fmt.Errorf("invalid portal type %q", s)
}
