package leanstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leanstore/leanstore.go/pkg/acl"
	"github.com/leanstore/leanstore.go/pkg/connection"
	"github.com/leanstore/leanstore.go/pkg/constants"
)

func publicACL() *acl.ACL {
	a := acl.New()
	a.SetPublicReadAccess(true)
	return a
}

func TestNewRoleValidatesNameAndACL(t *testing.T) {
	c, store := newTestClient(t)

	_, err := c.NewRole("Admins", nil)
	assert.Equal(t, constants.InvalidACL, connection.AsError(err).Code)

	_, err = c.NewRole("bad/name", publicACL())
	assert.Equal(t, constants.InvalidRoleName, connection.AsError(err).Code)

	nameless := c.Object(constants.ClassRole)
	nameless.SetACL(publicACL())
	err = awaitErr(t, nameless.Save(testCtx(t)))
	assert.Equal(t, constants.InvalidRoleName, connection.AsError(err).Code)

	noACL := c.Object(constants.ClassRole)
	require.NoError(t, noACL.Set("name", "Editors"))
	err = awaitErr(t, noACL.Save(testCtx(t)))
	assert.Equal(t, constants.InvalidACL, connection.AsError(err).Code)
	assert.Empty(t, store.Calls())
}

func TestRoleMembers(t *testing.T) {
	c, store := newTestClient(t)
	member := signUp(t, c, "ann", "pw", nil)

	role, err := c.NewRole("Admins", publicACL())
	require.NoError(t, err)
	assert.Equal(t, constants.ClassUser, role.Users().TargetClass())
	assert.Equal(t, constants.ClassRole, role.Roles().TargetClass())

	require.NoError(t, role.Users().Add(member.Object))
	await(t, role.Save(testCtx(t)))
	require.NotEmpty(t, role.ID())

	rec, ok := store.Get(constants.ClassRole, role.ID())
	require.True(t, ok)
	assert.Equal(t, "Admins", rec["name"])

	users := await(t, role.Users().Query().Find(testCtx(t)))
	require.Len(t, users, 1)
	assert.Equal(t, member.ID(), users[0].ID())
	assert.False(t, users[0].Has("password"))

	err = role.SetName("Owners")
	assert.Equal(t, constants.InvalidRoleName, connection.AsError(err).Code)
	assert.Equal(t, "Admins", role.Name())
}

func TestAsRole(t *testing.T) {
	c, _ := newTestClient(t)
	_, err := AsRole(c.Object("Post"))
	assert.Equal(t, constants.IncorrectType, connection.AsError(err).Code)

	r, err := AsRole(c.Object(constants.ClassRole))
	require.NoError(t, err)
	assert.Empty(t, r.Name())
}
