package store

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/inkwell-blog/apiserver/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryUsers_ConcurrentRegistrationOfSameName(t *testing.T) {
	users := NewMemory().Users()
	ctx := context.Background()

	var created atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := users.Create(ctx, types.User{Username: "alice", PasswordHash: "h"})
			if err == nil {
				created.Add(1)
				return
			}
			assert.ErrorIs(t, err, ErrDuplicateUsername)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), created.Load())
}

func TestMemoryUsers_DuplicateLeavesOriginal(t *testing.T) {
	users := NewMemory().Users()
	ctx := context.Background()

	first, err := users.Create(ctx, types.User{Username: "alice", PasswordHash: "first"})
	require.NoError(t, err)

	_, err = users.Create(ctx, types.User{Username: "alice", PasswordHash: "second"})
	require.ErrorIs(t, err, ErrDuplicateUsername)

	got, err := users.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, first, got)
}

func TestMemoryPosts_ListNewestFirstWithLimit(t *testing.T) {
	mem := NewMemory()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	mem.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	ctx := context.Background()

	author, err := mem.Users().Create(ctx, types.User{Username: "alice", PasswordHash: "h"})
	require.NoError(t, err)

	for i := 0; i < 25; i++ {
		_, err := mem.Posts().Create(ctx, types.Post{Title: fmt.Sprintf("post-%02d", i), Author: types.AuthorRef{ID: author.ID}})
		require.NoError(t, err)
	}

	posts, err := mem.Posts().List(ctx, 20)
	require.NoError(t, err)
	require.Len(t, posts, 20)
	assert.Equal(t, "post-24", posts[0].Title)
	assert.Equal(t, "post-05", posts[19].Title)
	for i := 1; i < len(posts); i++ {
		assert.True(t, posts[i-1].CreatedAt.After(posts[i].CreatedAt))
	}
	assert.Equal(t, "alice", posts[0].Author.Username)
}

func TestMemoryPosts_SameTimestampKeepsInsertionOrder(t *testing.T) {
	mem := NewMemory()
	fixed := time.Now()
	mem.now = func() time.Time { return fixed }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := mem.Posts().Create(ctx, types.Post{Title: fmt.Sprint(i)})
		require.NoError(t, err)
	}

	posts, err := mem.Posts().List(ctx, 20)
	require.NoError(t, err)
	require.Len(t, posts, 3)
	assert.Equal(t, []string{"2", "1", "0"}, []string{posts[0].Title, posts[1].Title, posts[2].Title})
}

func TestMemoryPosts_UpdateKeepsAuthorAndCreatedAt(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()

	author := uuid.New()
	created, err := mem.Posts().Create(ctx, types.Post{Title: "old", Author: types.AuthorRef{ID: author}})
	require.NoError(t, err)

	updated, err := mem.Posts().Update(ctx, types.Post{ID: created.ID, Title: "new", Author: types.AuthorRef{ID: uuid.New()}})
	require.NoError(t, err)
	assert.Equal(t, author, updated.Author.ID)
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)

	got, err := mem.Posts().Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "new", got.Title)
	assert.Equal(t, author, got.Author.ID)

	_, err = mem.Posts().Update(ctx, types.Post{ID: uuid.New()})
	assert.ErrorIs(t, err, ErrNotFound)
}
