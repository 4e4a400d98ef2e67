package leanstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leanstore/leanstore.go/pkg/constants"
	"github.com/leanstore/leanstore.go/pkg/op"
)

func TestRelationAddRemove(t *testing.T) {
	c, store := newTestClient(t)
	post := saved(t, c, "Post", map[string]any{"title": "hello"})
	u1 := saved(t, c, "Fan", map[string]any{"name": "one"})
	u2 := saved(t, c, "Fan", map[string]any{"name": "two"})

	likes := post.Relation("likes")
	assert.Empty(t, likes.TargetClass())
	require.NoError(t, likes.Add(u1, u2))
	assert.Equal(t, "Fan", likes.TargetClass())

	x, ok := post.Op("likes").(op.Relation)
	require.True(t, ok)
	assert.Equal(t, op.KindAddRelation, x.Kind())

	await(t, post.Save(testCtx(t)))
	assert.Len(t, store.RelationTargets("Post", post.ID(), "likes"), 2)

	rel := post.Relation("likes")
	assert.Equal(t, "Fan", rel.TargetClass())
	assert.Same(t, post, rel.Parent())
	assert.Equal(t, "likes", rel.Key())

	members := await(t, rel.Query().Ascending("name").Find(testCtx(t)))
	require.Len(t, members, 2)
	assert.Equal(t, "one", members[0].Get("name"))

	require.NoError(t, rel.Remove(u1))
	await(t, post.Save(testCtx(t)))
	members = await(t, rel.Query().Find(testCtx(t)))
	require.Len(t, members, 1)
	assert.Equal(t, u2.ID(), members[0].ID())

	parents := await(t, c.ReverseQuery("Post", "likes", u2).Find(testCtx(t)))
	require.Len(t, parents, 1)
	assert.Equal(t, post.ID(), parents[0].ID())
	assert.Empty(t, await(t, c.ReverseQuery("Post", "likes", u1).Find(testCtx(t))))
}

func TestRelationRejectsMixedClasses(t *testing.T) {
	c, _ := newTestClient(t)
	post := saved(t, c, "Post", map[string]any{"title": "hello"})
	fan := saved(t, c, "Fan", map[string]any{"name": "one"})
	other := saved(t, c, "Author", map[string]any{"name": "two"})

	err := post.Relation("likes").Add(fan, other)
	assert.ErrorIs(t, err, constants.ErrValidation)
	assert.ErrorIs(t, err, op.ErrRelationClass)
	assert.Nil(t, post.Op("likes"))

	rel := post.Relation("likes")
	require.NoError(t, rel.Add(fan))
	assert.ErrorIs(t, post.Relation("likes").Add(other), constants.ErrValidation)
}

func TestRelationQueryOfUnknownTarget(t *testing.T) {
	c, _ := newTestClient(t)
	post := saved(t, c, "Post", map[string]any{"title": "hello"})
	fan := saved(t, c, "Fan", map[string]any{"name": "one"})
	require.NoError(t, post.Relation("likes").Add(fan))
	await(t, post.Save(testCtx(t)))

	fresh := c.CreateWithoutData("Post", post.ID())
	rel := fresh.Relation("likes")
	assert.Empty(t, rel.TargetClass())

	params, err := rel.Query().Params()
	require.NoError(t, err)
	assert.Equal(t, "likes", params["redirectClassNameForKey"])

	members := await(t, rel.Query().Find(testCtx(t)))
	require.Len(t, members, 1)
	assert.Equal(t, "Fan", members[0].ClassName())
	assert.Equal(t, fan.ID(), members[0].ID())

	await(t, fresh.Fetch(testCtx(t)))
	assert.Equal(t, "Fan", fresh.Relation("likes").TargetClass())
}

func TestRelationQueryNeedsSavedParent(t *testing.T) {
	c, _ := newTestClient(t)
	err := c.Object("Post").Relation("likes").Query().Err()
	assert.ErrorIs(t, err, constants.ErrValidation)
}
