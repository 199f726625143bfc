package auth

import (
	"testing"

	"github.com/eventdesk/server/internal/fault"
	"github.com/stretchr/testify/require"
)

func TestParseRole(t *testing.T) {
	role, err := ParseRole(" Organizer ")
	require.NoError(t, err)
	require.Equal(t, RoleOrganizer, role)

	_, err = ParseRole("editor")
	require.Error(t, err)
	require.Equal(t, fault.KindValidation, fault.KindOf(err))
}

func TestRoleSetAllows(t *testing.T) {
	set := Roles(RoleAdmin, RoleOrganizer)
	require.True(t, set.Allows(RoleAdmin))
	require.True(t, set.Allows(RoleOrganizer))
	require.False(t, set.Allows(RoleParticipant))
	require.False(t, set.Allows(Role("superuser")))

	var open RoleSet
	require.True(t, open.Allows(RoleModerator))
	require.False(t, open.Allows(Role("superuser")))
}
