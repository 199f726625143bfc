package auth

import (
	"fmt"
	"strings"

	"github.com/eventdesk/server/internal/fault"
)

type Role string

const (
	RoleAdmin       Role = "admin"
	RoleOrganizer   Role = "organizer"
	RoleParticipant Role = "participant"
	RoleModerator   Role = "moderator"
)

var ErrForbidden = fault.New(fault.KindForbidden, "forbidden", "insufficient permissions")

// ParseRole accepts only the known roles, case-insensitively.
func ParseRole(value string) (Role, error) {
	switch role := Role(strings.ToLower(strings.TrimSpace(value))); role {
	case RoleAdmin, RoleOrganizer, RoleParticipant, RoleModerator:
		return role, nil
	default:
		return "", fault.Validation("role", fmt.Sprintf("unknown role %q", value))
	}
}

func (r Role) Valid() bool {
	_, err := ParseRole(string(r))
	return err == nil
}

// RoleSet is a closed set of permitted roles. The zero value permits any
// authenticated user.
type RoleSet map[Role]struct{}

func Roles(roles ...Role) RoleSet {
	set := make(RoleSet, len(roles))
	for _, role := range roles {
		set[role] = struct{}{}
	}
	return set
}

// Allows reports whether role is permitted. An empty set allows every role.
func (s RoleSet) Allows(role Role) bool {
	if len(s) == 0 {
		return role.Valid()
	}
	_, ok := s[role]
	return ok
}

// Principal is the authenticated caller as seen by domain services.
type Principal struct {
	UserID string
	Role   Role
}

func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}
