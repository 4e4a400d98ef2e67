package leanstore

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leanstore/leanstore.go/internal/fakestore"
	"github.com/leanstore/leanstore.go/pkg/connection"
	"github.com/leanstore/leanstore.go/pkg/constants"
	"github.com/leanstore/leanstore.go/pkg/promise"
)

func newHTTPClient(t *testing.T, store *fakestore.Store, appID string) (*Client, error) {
	t.Helper()
	srv := httptest.NewServer(fakestore.NewHandler(store))
	t.Cleanup(srv.Close)
	return FromEndpointURLString(testCtx(t), srv.URL, func(cfg *connection.Config) {
		cfg.WithApp(appID, "key").WithMasterKey("master")
	}, WithLoop(promise.NewLoop()))
}

func TestServerDate(t *testing.T) {
	c, _ := newTestClient(t)
	before := time.Now().Add(-time.Second)
	d := await(t, c.ServerDate(testCtx(t)))
	assert.True(t, d.After(before))
	assert.WithinDuration(t, time.Now(), d, 5*time.Second)
}

func TestClientOverHTTP(t *testing.T) {
	store := fakestore.New()
	store.AppID = "app"
	store.MasterKey = "master"
	c, err := newHTTPClient(t, store, "app")
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close(testCtx(t)) })

	post := c.Object("Post")
	require.NoError(t, post.SetAll(map[string]any{"title": "over the wire", "tags": []any{"go"}}))
	require.NoError(t, post.Increment("views", 2))
	await(t, post.Save(testCtx(t)))
	require.NotEmpty(t, post.ID())
	assert.False(t, post.CreatedAt().IsZero())

	rec, ok := store.Get("Post", post.ID())
	require.True(t, ok)
	assert.Equal(t, "over the wire", rec["title"])
	assert.EqualValues(t, 2, rec["views"])

	found := await(t, c.Query("Post").EqualTo("tags", "go").Find(testCtx(t)))
	require.Len(t, found, 1)
	assert.Equal(t, post.ID(), found[0].ID())
	assert.Equal(t, "over the wire", found[0].Get("title"))
	assert.EqualValues(t, 2, found[0].Get("views"))

	objects := newObjects(t, c, "Item", 3)
	await(t, c.SaveAll(testCtx(t), objects))
	assert.Equal(t, 3, store.Count("Item"))

	u := signUp(t, c, "ann", "pw", nil)
	require.NoError(t, u.Set("nickname", "annie"))
	await(t, u.Save(testCtx(t)))
	rec, _ = store.Get(constants.ClassUser, u.ID())
	assert.Equal(t, "annie", rec["nickname"])

	err = awaitErr(t, c.CreateWithoutData("Post", "missing").Fetch(testCtx(t)))
	assert.ErrorIs(t, err, constants.ErrNotFound)
}

func TestClientRejectsUnknownApplication(t *testing.T) {
	store := fakestore.New()
	store.AppID = "app"
	_, err := newHTTPClient(t, store, "other")
	require.Error(t, err)
	assert.Equal(t, constants.OperationForbidden, connection.AsError(err).Code)
}

func TestMasterKeyOption(t *testing.T) {
	c, store := newTestClient(t, WithMasterKey())
	store.MasterKey = "master"
	o := saved(t, c, "Post", map[string]any{"title": "a"})
	calls := store.Calls()
	require.Len(t, calls, 1)
	assert.True(t, calls[0].Options.UseMasterKey)

	store.ResetCalls()
	await(t, o.Fetch(testCtx(t), UseMasterKey(false), WithSessionToken("token")))
	calls = store.Calls()
	require.Len(t, calls, 1)
	assert.False(t, calls[0].Options.UseMasterKey)
	assert.Equal(t, "token", calls[0].Options.SessionToken)
}

func TestSessionStoreSuppliesToken(t *testing.T) {
	sessions := &MemorySessionStore{}
	require.NoError(t, sessions.StoreSession("u1", "stored-token"))
	c, store := newTestClient(t, WithSessionStore(sessions))

	saved(t, c, "Post", map[string]any{"title": "a"})
	assert.Equal(t, "stored-token", store.Calls()[0].Options.SessionToken)

	require.NoError(t, c.LogOut())
	_, ok := sessions.CurrentSessionToken()
	assert.False(t, ok)
	assert.Empty(t, sessions.CurrentUserID())
}
