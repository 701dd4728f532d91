package auth

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownRole indicates a role value outside the closed enumeration.
var ErrUnknownRole = errors.New("auth: unknown role")

// Role enumerates every role the backend recognizes. The set is closed:
// visibility queries and mutation permissions dispatch on it exhaustively,
// and an unrecognized value is a configuration error, never an empty result.
type Role string

const (
	RoleAdministrator Role = "administrator"
	RoleOperator      Role = "operator"
	RoleManager       Role = "manager"
	RoleCustomer      Role = "customer"
)

// Roles lists every declared role.
func Roles() []Role {
	return []Role{RoleAdministrator, RoleOperator, RoleManager, RoleCustomer}
}

// ParseRole validates raw input against the closed role set.
func ParseRole(rawInput string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(rawInput))) {
	case RoleAdministrator:
		return RoleAdministrator, nil
	case RoleOperator:
		return RoleOperator, nil
	case RoleManager:
		return RoleManager, nil
	case RoleCustomer:
		return RoleCustomer, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, rawInput)
	}
}

// String returns the wire representation of the role.
func (r Role) String() string {
	return string(r)
}

// Actor is the authenticated principal every engine operation receives
// explicitly. There is no ambient request context: tenant scoping and role
// dispatch both read from this value.
type Actor struct {
	UserID   string
	TenantID string
	Role     Role
}
