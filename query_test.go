package leanstore

import (
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leanstore/leanstore.go/pkg/connection"
	"github.com/leanstore/leanstore.go/pkg/constants"
	"github.com/leanstore/leanstore.go/pkg/models"
	"github.com/leanstore/leanstore.go/pkg/promise"
)

func titles(objs []*Object) []string {
	out := make([]string, len(objs))
	for i, o := range objs {
		out[i], _ = o.Get("title").(string)
	}
	return out
}

func seedPosts(t *testing.T, c *Client) {
	t.Helper()
	rows := []map[string]any{
		{"title": "alpha", "views": 10, "tags": []any{"go", "db"}},
		{"title": "beta", "views": 20, "tags": []any{"go"}},
		{"title": "gamma", "views": 30},
		{"title": "delta", "views": 40, "tags": []any{"db"}, "draft": true},
	}
	objs := make([]*Object, len(rows))
	for i, row := range rows {
		objs[i] = c.Object("Post")
		require.NoError(t, objs[i].SetAll(row))
	}
	await(t, c.SaveAll(testCtx(t), objs))
}

func TestQueryConstraints(t *testing.T) {
	c, _ := newTestClient(t)
	seedPosts(t, c)

	tests := []struct {
		name  string
		query *Query
		want  []string
	}{
		{"equal", c.Query("Post").EqualTo("title", "beta"), []string{"beta"}},
		{"array contains", c.Query("Post").EqualTo("tags", "db"), []string{"alpha", "delta"}},
		{"not equal", c.Query("Post").NotEqualTo("title", "beta"), []string{"alpha", "gamma", "delta"}},
		{"range", c.Query("Post").GreaterThan("views", 10).LessThanOrEqualTo("views", 30), []string{"beta", "gamma"}},
		{"contained in", c.Query("Post").ContainedIn("title", "alpha", "gamma"), []string{"alpha", "gamma"}},
		{"not contained in", c.Query("Post").NotContainedIn("title", "alpha", "gamma"), []string{"beta", "delta"}},
		{"contains all", c.Query("Post").ContainsAll("tags", "go", "db"), []string{"alpha"}},
		{"size", c.Query("Post").SizeEqualTo("tags", 1), []string{"beta", "delta"}},
		{"exists", c.Query("Post").Exists("draft"), []string{"delta"}},
		{"does not exist", c.Query("Post").DoesNotExist("tags"), []string{"gamma"}},
		{"starts with", c.Query("Post").StartsWith("title", "ga"), []string{"gamma"}},
		{"ends with", c.Query("Post").EndsWith("title", "ta"), []string{"beta", "delta"}},
		{"contains", c.Query("Post").Contains("title", "lph"), []string{"alpha"}},
		{"regex", c.Query("Post").Matches("title", "^A", "i"), []string{"alpha"}},
		{"or", Or(c.Query("Post").EqualTo("title", "alpha"), c.Query("Post").GreaterThan("views", 30)), []string{"alpha", "delta"}},
		{"and", And(c.Query("Post").EqualTo("tags", "go"), c.Query("Post").GreaterThan("views", 10)), []string{"beta"}},
		{"raw where", c.Query("Post").Where(map[string]any{"views": map[string]any{"$gte": 40}}), []string{"delta"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := await(t, tt.query.Find(testCtx(t)))
			assert.Equal(t, tt.want, titles(got))
		})
	}
}

func TestQueryOrderSkipLimitSelect(t *testing.T) {
	c, _ := newTestClient(t)
	seedPosts(t, c)

	got := await(t, c.Query("Post").Descending("views").Skip(1).Limit(2).Find(testCtx(t)))
	assert.Equal(t, []string{"gamma", "beta"}, titles(got))

	got = await(t, c.Query("Post").Ascending("title").Select("title").Find(testCtx(t)))
	require.Len(t, got, 4)
	assert.Equal(t, []string{"alpha", "beta", "delta", "gamma"}, titles(got))
	assert.False(t, got[0].Has("views"))
	assert.NotEmpty(t, got[0].ID())
}

func TestQueryParams(t *testing.T) {
	c, _ := newTestClient(t)

	params, err := c.Query("Post").
		EqualTo("title", "a").
		GreaterThan("views", 1).
		LessThan("views", 9).
		Include("author", "author.avatar").
		Select("title").
		Ascending("views").
		AddDescending("createdAt").
		Limit(5000).
		Skip(-3).
		Param("redirectClassNameForKey", "likes").
		Params()
	require.NoError(t, err)

	assert.Equal(t, map[string]any{
		"title": "a",
		"views": map[string]any{"$gt": 1, "$lt": 9},
	}, params["where"])
	assert.Equal(t, "author,author.avatar", params["include"])
	assert.Equal(t, "title", params["keys"])
	assert.Equal(t, "views,-createdAt", params["order"])
	assert.Equal(t, constants.MaxLimit, params["limit"])
	assert.NotContains(t, params, "skip")
	assert.Equal(t, "likes", params["redirectClassNameForKey"])

	params, err = c.Query("Post").Params()
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"limit": constants.DefaultLimit}, params)
}

func TestFindSendsDefaultLimit(t *testing.T) {
	c, store := newTestClient(t)
	await(t, c.Query("Post").Find(testCtx(t)))
	await(t, c.Query("Post").Limit(0).Find(testCtx(t)))
	await(t, c.Query("Post").Count(testCtx(t)))

	calls := store.Calls()
	require.Len(t, calls, 3)
	assert.Equal(t, constants.DefaultLimit, calls[0].Params["limit"])
	assert.Equal(t, 0, calls[1].Params["limit"])
	assert.Equal(t, 0, calls[2].Params["limit"])
}

func TestMatchesLeavesPatternToStore(t *testing.T) {
	c, _ := newTestClient(t)

	q := c.Query("Post").Matches("title", `^(?=.*go)\w+$`, "im")
	require.NoError(t, q.Err())
	params, err := q.Params()
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"$regex": `^(?=.*go)\w+$`, "$options": "im"}, params["where"].(map[string]any)["title"])

	q = c.Query("Post").Matches("title", "a", "g")
	assert.Equal(t, constants.InvalidQuery, connection.AsError(q.Err()).Code)
}

func TestQueryDefersBuildErrors(t *testing.T) {
	c, store := newTestClient(t)
	unsaved := c.Object("Author")

	q := c.Query("Post").EqualTo("author", unsaved).EqualTo("title", "x")
	require.Error(t, q.Err())
	assert.Equal(t, constants.MissingObjectID, connection.AsError(q.Err()).Code)

	err := awaitErr(t, q.Find(testCtx(t)))
	assert.Equal(t, constants.MissingObjectID, connection.AsError(err).Code)
	awaitErr(t, q.Count(testCtx(t)))

	err = awaitErr(t, Or(c.Query("Post"), c.Query("Author")).Find(testCtx(t)))
	assert.Equal(t, constants.InvalidQuery, connection.AsError(err).Code)
	assert.Empty(t, store.Calls())
}

func TestSubqueries(t *testing.T) {
	c, _ := newTestClient(t)
	ann := saved(t, c, "Author", map[string]any{"name": "ann", "active": true})
	bob := saved(t, c, "Author", map[string]any{"name": "bob", "active": false})
	saved(t, c, "Post", map[string]any{"title": "by ann", "author": ann, "authorName": "ann"})
	saved(t, c, "Post", map[string]any{"title": "by bob", "author": bob, "authorName": "bob"})

	active := func() *Query { return c.Query("Author").EqualTo("active", true) }

	got := await(t, c.Query("Post").MatchesQuery("author", active()).Find(testCtx(t)))
	assert.Equal(t, []string{"by ann"}, titles(got))

	got = await(t, c.Query("Post").DoesNotMatchQuery("author", active()).Find(testCtx(t)))
	assert.Equal(t, []string{"by bob"}, titles(got))

	got = await(t, c.Query("Post").MatchesKeyInQuery("authorName", "name", active()).Find(testCtx(t)))
	assert.Equal(t, []string{"by ann"}, titles(got))

	got = await(t, c.Query("Post").DoesNotMatchKeyInQuery("authorName", "name", active()).Find(testCtx(t)))
	assert.Equal(t, []string{"by bob"}, titles(got))

	got = await(t, c.Query("Post").EqualTo("author", bob).Include("author").Find(testCtx(t)))
	require.Len(t, got, 1)
	author, ok := got[0].Get("author").(*Object)
	require.True(t, ok)
	assert.Equal(t, "bob", author.Get("name"))
}

func TestGeoQueries(t *testing.T) {
	c, store := newTestClient(t)
	place := func(name string, lat, lng float64) {
		p, err := models.NewGeoPoint(lat, lng)
		require.NoError(t, err)
		store.Put("Place", map[string]any{"title": name, "location": p.Encode()})
	}
	place("far", 40, 40)
	place("near", 0.1, 0.1)
	place("origin", 0, 0)

	origin, err := models.NewGeoPoint(0, 0)
	require.NoError(t, err)

	got := await(t, c.Query("Place").Near("location", origin).Find(testCtx(t)))
	assert.Equal(t, []string{"origin", "near", "far"}, titles(got))

	got = await(t, c.Query("Place").WithinKilometers("location", origin, 50).Find(testCtx(t)))
	assert.Equal(t, []string{"origin", "near"}, titles(got))

	got = await(t, c.Query("Place").WithinMiles("location", origin, 5).Find(testCtx(t)))
	assert.Equal(t, []string{"origin"}, titles(got))

	ne, err := models.NewGeoPoint(1, 1)
	require.NoError(t, err)
	sw, err := models.NewGeoPoint(0.05, 0.05)
	require.NoError(t, err)
	got = await(t, c.Query("Place").WithinGeoBox("location", sw, ne).Find(testCtx(t)))
	assert.Equal(t, []string{"near"}, titles(got))

	err = c.Query("Place").WithinGeoBox("location", ne, sw).Err()
	assert.ErrorIs(t, err, constants.ErrValidation)
}

func TestFirstGetCount(t *testing.T) {
	c, _ := newTestClient(t)
	seedPosts(t, c)

	first := await(t, c.Query("Post").Descending("views").First(testCtx(t)))
	require.NotNil(t, first)
	assert.Equal(t, "delta", first.Get("title"))

	none := await(t, c.Query("Post").EqualTo("title", "missing").First(testCtx(t)))
	assert.Nil(t, none)

	got := await(t, c.Query("Post").Select("title").Get(testCtx(t), first.ID()))
	assert.Equal(t, "delta", got.Get("title"))
	assert.False(t, got.Has("views"))

	err := awaitErr(t, c.Query("Post").Get(testCtx(t), "nope"))
	assert.ErrorIs(t, err, constants.ErrNotFound)

	n := await(t, c.Query("Post").GreaterThan("views", 10).Limit(1).Skip(1).Count(testCtx(t)))
	assert.Equal(t, 3, n)
}

func TestQueryDestroyAll(t *testing.T) {
	c, store := newTestClient(t)
	seedPosts(t, c)

	destroyed := await(t, c.Query("Post").EqualTo("tags", "go").DestroyAll(testCtx(t)))
	assert.Len(t, destroyed, 2)
	assert.Equal(t, 2, store.Count("Post"))
}

func TestEachVisitsEveryObjectInIDOrder(t *testing.T) {
	c, store := newTestClient(t)
	var ids []string
	for i := 0; i < 7; i++ {
		ids = append(ids, store.Put("Item", map[string]any{"n": i}))
	}
	sort.Strings(ids)
	store.ResetCalls()

	var (
		mu      sync.Mutex
		visited []string
	)
	err := c.Query("Item").Each(testCtx(t), func(o *Object) promise.Settler {
		mu.Lock()
		visited = append(visited, o.ID())
		mu.Unlock()
		return nil
	}, BatchSize(3)).Wait(testCtx(t))
	require.NoError(t, err)
	assert.Equal(t, ids, visited)
	assert.Equal(t, 3, store.CallCount(connection.IntentQuery))
}

func TestEachWaitsForReturnedPromises(t *testing.T) {
	c, store := newTestClient(t)
	for i := 0; i < 4; i++ {
		store.Put("Item", map[string]any{"n": i})
	}

	var seen int
	err := c.Query("Item").Each(testCtx(t), func(o *Object) promise.Settler {
		seen++
		require.NoError(t, o.Increment("n", 100))
		return o.Save(testCtx(t))
	}).Wait(testCtx(t))
	require.NoError(t, err)
	assert.Equal(t, 4, seen)

	got := await(t, c.Query("Item").GreaterThanOrEqualTo("n", 100).Count(testCtx(t)))
	assert.Equal(t, 4, got)
}

func TestEachStopsOnRejection(t *testing.T) {
	c, store := newTestClient(t)
	for i := 0; i < 4; i++ {
		store.Put("Item", map[string]any{"n": i})
	}

	var seen int
	err := c.Query("Item").Each(testCtx(t), func(o *Object) promise.Settler {
		seen++
		return promise.Rejected[int](fmt.Errorf("stop at %s", o.ID()))
	}).Wait(testCtx(t))
	require.Error(t, err)
	assert.Equal(t, 1, seen)
}

func TestEachRejectsOrderedQueries(t *testing.T) {
	c, store := newTestClient(t)
	noop := func(*Object) promise.Settler { return nil }

	for _, q := range []*Query{
		c.Query("Item").Ascending("n"),
		c.Query("Item").Limit(5),
		c.Query("Item").Skip(2),
	} {
		err := awaitErr(t, q.Each(testCtx(t), noop))
		assert.Equal(t, constants.InvalidQuery, connection.AsError(err).Code)
	}
	assert.Empty(t, store.Calls())
}
