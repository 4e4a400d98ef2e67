package leanstore

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leanstore/leanstore.go/internal/fakestore"
	"github.com/leanstore/leanstore.go/pkg/connection"
	"github.com/leanstore/leanstore.go/pkg/constants"
)

func newObjects(t *testing.T, c *Client, className string, n int) []*Object {
	t.Helper()
	out := make([]*Object, n)
	for i := range out {
		out[i] = c.Object(className)
		require.NoError(t, out[i].Set("n", i))
	}
	return out
}

func TestSaveAllMixesClassesInOneBatch(t *testing.T) {
	c, store := newTestClient(t)
	post, author, comment := c.Object("Post"), c.Object("Author"), c.Object("Comment")
	for _, o := range []*Object{post, author, comment} {
		require.NoError(t, o.Set("name", o.ClassName()))
	}

	got := await(t, c.SaveAll(testCtx(t), []*Object{post, author, comment}))
	assert.Equal(t, []*Object{post, author, comment}, got)
	assert.Equal(t, 1, store.CallCount(connection.IntentBatch))
	for _, o := range got {
		assert.NotEmpty(t, o.ID())
		assert.False(t, o.Dirty())
		_, ok := store.Get(o.ClassName(), o.ID())
		assert.True(t, ok)
	}
}

func TestSaveAllSplitsIntoBatches(t *testing.T) {
	c, store := newTestClient(t)
	objects := newObjects(t, c, "Item", 2*constants.MaxBatchSize+20)

	await(t, c.SaveAll(testCtx(t), objects))
	assert.Equal(t, 3, store.CallCount(connection.IntentBatch))
	assert.Equal(t, len(objects), store.Count("Item"))
	for _, call := range store.Calls() {
		assert.LessOrEqual(t, len(call.Requests), constants.MaxBatchSize)
	}
}

func TestSaveAllSavesReferencedObjectsInEarlierRounds(t *testing.T) {
	c, store := newTestClient(t)
	author := c.Object("Author")
	require.NoError(t, author.Set("name", "ann"))
	post := c.Object("Post")
	require.NoError(t, post.Set("author", author))
	unrelated := c.Object("Tag")
	require.NoError(t, unrelated.Set("label", "go"))

	await(t, c.SaveAll(testCtx(t), []*Object{post, unrelated}))
	assert.Equal(t, 2, store.CallCount(connection.IntentBatch))

	rounds := store.Calls()
	require.Len(t, rounds, 2)
	assert.Len(t, rounds[0].Requests, 2)
	assert.Len(t, rounds[1].Requests, 1)
	assert.Equal(t, "Post", rounds[1].Requests[0].ClassName)

	rec, _ := store.Get("Post", post.ID())
	ptr, _ := rec["author"].(map[string]any)
	assert.Equal(t, author.ID(), ptr["objectId"])
}

func TestSaveAllRejectsReferenceCycles(t *testing.T) {
	c, store := newTestClient(t)
	a, b := c.Object("Node"), c.Object("Node")
	require.NoError(t, a.Set("next", b))
	require.NoError(t, b.Set("next", a))

	err := awaitErr(t, c.SaveAll(testCtx(t), []*Object{a}))
	assert.ErrorIs(t, err, constants.ErrValidation)
	assert.Empty(t, store.Calls())
}

func TestSaveAllReportsPartialFailure(t *testing.T) {
	c, store := newTestClient(t)
	good1 := c.Object("Post")
	bad := c.Object("not a class")
	good2 := c.Object("Post")
	for _, o := range []*Object{good1, bad, good2} {
		require.NoError(t, o.Set("title", "x"))
	}

	var r recorder
	r.on(bad, EventError)

	err := awaitErr(t, c.SaveAll(testCtx(t), []*Object{good1, bad, good2}))

	var agg *AggregateError
	require.True(t, errors.As(err, &agg))
	assert.Equal(t, constants.AggregateError, agg.Code())
	require.Len(t, agg.Errors, 1)
	assert.Equal(t, []*Object{good1, good2}, agg.Succeeded)
	assert.ErrorIs(t, agg.Err, constants.ErrValidation)

	var objErr *ObjectError
	require.True(t, errors.As(agg.Err, &objErr))
	assert.Same(t, bad, objErr.Object)
	assert.Equal(t, constants.InvalidClassName, connection.AsError(objErr.Err).Code)

	assert.NotEmpty(t, good1.ID())
	assert.NotEmpty(t, good2.ID())
	assert.Empty(t, bad.ID())
	assert.True(t, bad.Dirty("title"))
	assert.Equal(t, []string{EventError}, r.names())
	assert.Equal(t, 2, store.Count("Post"))
}

func TestSaveAllStopsAfterFailingRound(t *testing.T) {
	c, store := newTestClient(t)
	bad := c.Object("not a class")
	require.NoError(t, bad.Set("x", 1))
	parent := c.Object("Post")
	require.NoError(t, parent.Set("child", bad))

	awaitErr(t, c.SaveAll(testCtx(t), []*Object{parent}))
	assert.Equal(t, 1, store.CallCount(connection.IntentBatch))
	assert.Empty(t, parent.ID())
}

func TestSaveAllTransportFailureFailsEveryObject(t *testing.T) {
	c, store := newTestClient(t)
	objects := newObjects(t, c, "Item", 3)
	store.AddStubResponse(fakestore.ErrorStubResponse(connection.IntentBatch, constants.ConnectionFailed, "down"))

	err := awaitErr(t, c.SaveAll(testCtx(t), objects))
	var agg *AggregateError
	require.True(t, errors.As(err, &agg))
	assert.Len(t, agg.Errors, 3)
	assert.ErrorIs(t, err, constants.ErrTransport)
	for _, o := range objects {
		assert.True(t, o.Dirty("n"))
	}
}

func TestDestroyAll(t *testing.T) {
	c, store := newTestClient(t)
	objects := newObjects(t, c, "Item", 3)
	await(t, c.SaveAll(testCtx(t), objects))

	var r recorder
	for _, o := range objects {
		r.on(o, EventDestroy)
	}
	await(t, c.DestroyAll(testCtx(t), objects))
	assert.Zero(t, store.Count("Item"))
	assert.Len(t, r.names(), 3)
	for _, o := range objects {
		assert.True(t, o.IsDestroyed())
	}

	empty := await(t, c.DestroyAll(testCtx(t), nil))
	assert.Empty(t, empty)
}

func TestDestroyAllRequiresOneClassOfSavedObjects(t *testing.T) {
	c, store := newTestClient(t)
	post := saved(t, c, "Post", map[string]any{"title": "a"})
	author := saved(t, c, "Author", map[string]any{"name": "b"})
	store.ResetCalls()

	err := awaitErr(t, c.DestroyAll(testCtx(t), []*Object{post, author}))
	assert.ErrorIs(t, err, constants.ErrValidation)

	err = awaitErr(t, c.DestroyAll(testCtx(t), []*Object{post, c.Object("Post")}))
	assert.Equal(t, constants.MissingObjectID, connection.AsError(err).Code)
	assert.Empty(t, store.Calls())
}

func TestFetchAllAndFetchAllIfNeeded(t *testing.T) {
	c, store := newTestClient(t)
	ids := make([]string, 3)
	for i := range ids {
		ids[i] = store.Put("Item", map[string]any{"label": fmt.Sprintf("item-%d", i)})
	}
	objects := make([]*Object, len(ids))
	for i, id := range ids {
		objects[i] = c.CreateWithoutData("Item", id)
	}

	await(t, c.FetchAll(testCtx(t), objects[:1]))
	assert.Equal(t, "item-0", objects[0].Get("label"))

	store.ResetCalls()
	await(t, c.FetchAllIfNeeded(testCtx(t), objects))
	calls := store.Calls()
	require.Len(t, calls, 1)
	assert.Len(t, calls[0].Requests, 2)
	for i, o := range objects {
		assert.Equal(t, fmt.Sprintf("item-%d", i), o.Get("label"))
	}

	store.ResetCalls()
	await(t, c.FetchAllIfNeeded(testCtx(t), objects))
	assert.Empty(t, store.Calls())
}

func TestFetchAllReportsMissingObjects(t *testing.T) {
	c, store := newTestClient(t)
	id := store.Put("Item", map[string]any{"label": "here"})
	present, missing := c.CreateWithoutData("Item", id), c.CreateWithoutData("Item", "gone")

	err := awaitErr(t, c.FetchAll(testCtx(t), []*Object{present, missing}))
	var agg *AggregateError
	require.True(t, errors.As(err, &agg))
	assert.Equal(t, []*Object{present}, agg.Succeeded)
	assert.ErrorIs(t, err, constants.ErrNotFound)
	assert.Equal(t, "here", present.Get("label"))
}
