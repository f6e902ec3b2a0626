package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/inkwell-blog/apiserver/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T, ttl time.Duration) (*PostCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb, err := NewRedisClient(context.Background(), mr.Addr(), "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })
	return NewPostCache(rdb, ttl), mr
}

func samplePost() types.Post {
	return types.Post{
		ID:        uuid.New(),
		Title:     "Hello",
		Summary:   "s",
		Content:   "c",
		Cover:     "uploads/abc.png",
		Author:    types.AuthorRef{ID: uuid.New(), Username: "alice"},
		CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		UpdatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestPostCache_MissThenHit(t *testing.T) {
	c, _ := newTestCache(t, time.Minute)
	ctx := context.Background()
	post := samplePost()

	_, found, err := c.GetPost(ctx, post.ID)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, c.SetPost(ctx, post))
	got, found, err := c.GetPost(ctx, post.ID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, post, got)
}

func TestPostCache_ListExpires(t *testing.T) {
	c, mr := newTestCache(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, c.SetList(ctx, []types.Post{samplePost()}))
	posts, found, err := c.GetList(ctx)
	require.NoError(t, err)
	require.True(t, found)
	assert.Len(t, posts, 1)

	mr.FastForward(2 * time.Minute)
	_, found, err = c.GetList(ctx)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestPostCache_Invalidate(t *testing.T) {
	c, mr := newTestCache(t, time.Minute)
	ctx := context.Background()
	post := samplePost()

	require.NoError(t, c.SetList(ctx, []types.Post{post}))
	require.NoError(t, c.SetPost(ctx, post))
	require.NoError(t, c.Invalidate(ctx, post.ID))

	assert.False(t, mr.Exists(listKey))
	assert.False(t, mr.Exists(postKey(post.ID)))
}

func TestPostCache_CorruptEntryIsAMiss(t *testing.T) {
	c, mr := newTestCache(t, time.Minute)
	require.NoError(t, mr.Set(listKey, "{not json"))

	_, found, err := c.GetList(context.Background())
	require.NoError(t, err)
	assert.False(t, found)
	assert.False(t, mr.Exists(listKey))
}

func TestNewRedisClient_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := NewRedisClient(ctx, addr, "", 0)
	assert.Error(t, err)
}
