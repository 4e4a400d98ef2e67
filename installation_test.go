package leanstore

import (
	"testing"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leanstore/leanstore.go/pkg/connection"
	"github.com/leanstore/leanstore.go/pkg/constants"
)

func TestNewInstallation(t *testing.T) {
	c, store := newTestClient(t)
	in, err := c.NewInstallation("android")
	require.NoError(t, err)

	_, err = uuid.FromString(in.InstallationID())
	require.NoError(t, err)
	assert.Equal(t, "android", in.DeviceType())
	assert.Empty(t, in.Channels())

	require.NoError(t, in.Subscribe("news", "sports"))
	require.NoError(t, in.Subscribe("news"))
	await(t, in.Save(testCtx(t)))

	rec, ok := store.Get(constants.ClassInstallation, in.ID())
	require.True(t, ok)
	assert.Equal(t, in.InstallationID(), rec["installationId"])
	assert.Equal(t, []any{"news", "sports"}, rec["channels"])

	require.NoError(t, in.Unsubscribe("news"))
	await(t, in.Save(testCtx(t)))
	assert.Equal(t, []string{"sports"}, in.Channels())
	rec, _ = store.Get(constants.ClassInstallation, in.ID())
	assert.Equal(t, []any{"sports"}, rec["channels"])
}

func TestInstallationRejectsInvalidChannels(t *testing.T) {
	c, _ := newTestClient(t)
	in, err := c.NewInstallation("ios")
	require.NoError(t, err)

	for _, ch := range []string{"", "1news", "with space", "dash-ed"} {
		err := in.Subscribe("ok", ch)
		assert.Equal(t, constants.InvalidChannelName, connection.AsError(err).Code, ch)
	}
	assert.Empty(t, in.Channels())

	other, err := c.NewInstallation("ios")
	require.NoError(t, err)
	assert.NotEqual(t, in.InstallationID(), other.InstallationID())

	_, err = AsInstallation(c.Object(constants.ClassUser))
	assert.Equal(t, constants.IncorrectType, connection.AsError(err).Code)
}
