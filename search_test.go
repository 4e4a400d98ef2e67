package leanstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leanstore/leanstore.go/pkg/connection"
	"github.com/leanstore/leanstore.go/pkg/constants"
	"github.com/leanstore/leanstore.go/pkg/models"
)

func seedArticles(t *testing.T, c *Client) {
	t.Helper()
	for i, title := range []string{"Go in practice", "Learning Go", "Rust notes", "Go concurrency"} {
		saved(t, c, "Article", map[string]any{"title": title, "rank": i})
	}
}

func TestSearchPagesWithSID(t *testing.T) {
	c, store := newTestClient(t)
	seedArticles(t, c)
	store.ResetCalls()

	s := c.SearchQuery("Article").QueryString("title:go").Ascending("rank").Limit(2)

	page := await(t, s.Find(testCtx(t)))
	assert.Equal(t, []string{"Go in practice", "Learning Go"}, titles(page))
	assert.Equal(t, 3, s.Hits())
	assert.True(t, s.HasMore())
	assert.NotEmpty(t, s.SID())

	page = await(t, s.Find(testCtx(t)))
	assert.Equal(t, []string{"Go concurrency"}, titles(page))
	assert.False(t, s.HasMore())

	page = await(t, s.Find(testCtx(t)))
	assert.Empty(t, page)
	assert.Equal(t, 2, store.CallCount(connection.IntentSearch))

	s.Reset()
	assert.Zero(t, s.Hits())
	page = await(t, s.Find(testCtx(t)))
	assert.Len(t, page, 2)
}

func TestSearchHighlightsAndFields(t *testing.T) {
	c, _ := newTestClient(t)
	seedArticles(t, c)

	s := c.SearchQuery("Article").QueryString("rust").Highlights("title").Select("title")
	got := await(t, s.Find(testCtx(t)))
	require.Len(t, got, 1)
	assert.Equal(t, "Rust notes", got[0].Get("title"))
	assert.False(t, got[0].Has("rank"))
	assert.False(t, got[0].Has("_highlight"))
	assert.Equal(t, []any{"<em>Rust</em> notes"}, got[0].Highlights()["title"])
}

func TestSearchSortBuilder(t *testing.T) {
	c, _ := newTestClient(t)
	seedArticles(t, c)

	sort := NewSearchSortBuilder().Descending("rank", "", "")
	assert.Equal(t, []any{
		map[string]any{"rank": map[string]any{"order": "desc", "missing": "_last"}},
	}, sort.Build())

	got := await(t, c.SearchQuery("Article").QueryString("go").SortBy(sort).Find(testCtx(t)))
	assert.Equal(t, []string{"Go concurrency", "Learning Go", "Go in practice"}, titles(got))

	p, err := models.NewGeoPoint(1, 2)
	require.NoError(t, err)
	geo := NewSearchSortBuilder().WhereNear("location", p, "", "min").Build()
	assert.Equal(t, []any{map[string]any{"_geo_distance": map[string]any{
		"location": map[string]any{"lat": 1.0, "lon": 2.0},
		"order":    "asc",
		"unit":     "km",
		"mode":     "min",
	}}}, geo)
}

func TestSearchRequiresQueryString(t *testing.T) {
	c, store := newTestClient(t)
	err := awaitErr(t, c.SearchQuery("Article").Find(testCtx(t)))
	assert.Equal(t, constants.InvalidQuery, connection.AsError(err).Code)
	assert.Empty(t, store.Calls())
}
